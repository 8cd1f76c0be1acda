package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/reliefgrid/reliefgrid/internal/models"
)

func (s *SQLiteStore) InsertDisaster(ctx context.Context, d *models.Disaster) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO disasters
			(id, type, severity, status, title, description, location_id,
			 start_date, end_date, affected_population, casualties, estimated_damage,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, string(d.Type), string(d.Severity), string(d.Status), d.Title, d.Description,
		d.LocationID, d.StartDate, d.EndDate, d.AffectedPopulation, d.Casualties,
		d.EstimatedDamage, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error inserting disaster: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetDisaster(ctx context.Context, id string) (*models.Disaster, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, severity, status, title, description, location_id,
		       start_date, end_date, affected_population, casualties, estimated_damage,
		       created_at, updated_at
		FROM disasters WHERE id = ?`, id)

	d, err := scanDisaster(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting disaster: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) ListDisasters(ctx context.Context, f DisasterFilter) ([]models.Disaster, error) {
	query := `
		SELECT id, type, severity, status, title, description, location_id,
		       start_date, end_date, affected_population, casualties, estimated_damage,
		       created_at, updated_at
		FROM disasters`

	var conds []string
	var args []any
	if f.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.Type != nil {
		conds = append(conds, "type = ?")
		args = append(args, string(*f.Type))
	}
	if f.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *f.Since)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_date DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing disasters: %w", err)
	}
	defer rows.Close()

	var out []models.Disaster
	for rows.Next() {
		d, err := scanDisaster(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning disaster: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateDisasterStatus(ctx context.Context, id string, status models.DisasterStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE disasters SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("error updating disaster status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CountDisastersByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM disasters GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("error counting disasters: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertLocation(ctx context.Context, l *models.Location) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO locations (id, name, latitude, longitude, city, state, country, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Name, l.Latitude, l.Longitude, l.City, l.State, l.Country, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("error inserting location: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetLocation(ctx context.Context, id string) (*models.Location, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, latitude, longitude, city, state, country, created_at
		FROM locations WHERE id = ?`, id)

	l, err := scanLocation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting location: %w", err)
	}
	return l, nil
}

func (s *SQLiteStore) ListLocations(ctx context.Context) ([]models.Location, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, latitude, longitude, city, state, country, created_at
		FROM locations ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("error listing locations: %w", err)
	}
	defer rows.Close()

	var out []models.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning location: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// FindLocationNear returns the first location within toleranceDeg on both
// axes, or ErrNotFound.
func (s *SQLiteStore) FindLocationNear(ctx context.Context, lat, lon, toleranceDeg float64) (*models.Location, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, latitude, longitude, city, state, country, created_at
		FROM locations
		WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?
		LIMIT 1`,
		lat-toleranceDeg, lat+toleranceDeg, lon-toleranceDeg, lon+toleranceDeg)

	l, err := scanLocation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error finding location: %w", err)
	}
	return l, nil
}

func scanDisaster(r rowScanner) (*models.Disaster, error) {
	var d models.Disaster
	var typ, severity, status string
	var desc sql.NullString
	var endDate sql.NullTime

	err := r.Scan(&d.ID, &typ, &severity, &status, &d.Title, &desc, &d.LocationID,
		&d.StartDate, &endDate, &d.AffectedPopulation, &d.Casualties, &d.EstimatedDamage,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}

	d.Type = models.DisasterType(typ)
	d.Severity = models.Severity(severity)
	d.Status = models.DisasterStatus(status)
	d.Description = desc.String
	if endDate.Valid {
		t := endDate.Time
		d.EndDate = &t
	}
	return &d, nil
}

func scanLocation(r rowScanner) (*models.Location, error) {
	var l models.Location
	var city, state, country sql.NullString
	err := r.Scan(&l.ID, &l.Name, &l.Latitude, &l.Longitude, &city, &state, &country, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	l.City = city.String
	l.State = state.String
	l.Country = country.String
	return &l, nil
}
