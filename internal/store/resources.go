package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/reliefgrid/reliefgrid/internal/models"
)

func (s *SQLiteStore) InsertResource(ctx context.Context, r *models.Resource) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resources
			(id, type, quantity, priority, status, location_id, latitude, longitude,
			 disaster_id, expiry_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Type, r.Quantity, r.Priority, string(r.Status), r.LocationID,
		r.Latitude, r.Longitude, r.DisasterID, r.ExpiryDate, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error inserting resource: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, quantity, priority, status, location_id, latitude, longitude,
		       disaster_id, expiry_date, created_at, updated_at
		FROM resources WHERE id = ?`, id)

	r, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting resource: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) ListResources(ctx context.Context) ([]models.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, quantity, priority, status, location_id, latitude, longitude,
		       disaster_id, expiry_date, created_at, updated_at
		FROM resources ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("error listing resources: %w", err)
	}
	defer rows.Close()

	var out []models.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning resource: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListAvailableResources(ctx context.Context) ([]models.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, quantity, priority, status, location_id, latitude, longitude,
		       disaster_id, expiry_date, created_at, updated_at
		FROM resources WHERE status = ? ORDER BY created_at`,
		string(models.ResourceAvailable))
	if err != nil {
		return nil, fmt.Errorf("error listing available resources: %w", err)
	}
	defer rows.Close()

	var out []models.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning resource: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkResourcesAllocated(ctx context.Context, ids []string, disasterID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+2)
	args = append(args, string(models.ResourceAllocated), disasterID)
	for _, id := range ids {
		args = append(args, id)
	}
	query := fmt.Sprintf(`
		UPDATE resources
		SET status = ?, disaster_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id IN (%s)`, placeholders(len(ids)))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("error marking resources allocated: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) ListResourcesAllocatedSince(ctx context.Context, since time.Time) ([]models.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, quantity, priority, status, location_id, latitude, longitude,
		       disaster_id, expiry_date, created_at, updated_at
		FROM resources WHERE status != ? AND updated_at >= ?`,
		string(models.ResourceAvailable), since)
	if err != nil {
		return nil, fmt.Errorf("error listing allocated resources: %w", err)
	}
	defer rows.Close()

	var out []models.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning resource: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertRequest(ctx context.Context, r *models.ResourceRequest) error {
	items, err := marshalJSON(r.Items)
	if err != nil {
		return err
	}
	nlp, err := marshalJSON(r.NLPClassification)
	if err != nil {
		return err
	}
	signals, err := marshalJSON(r.UrgencySignals)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resource_requests
			(id, victim_id, description, items, resource_type, quantity, priority,
			 status, nlp_classification, urgency_signals, ai_confidence,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.VictimID, r.Description, items, r.ResourceType, r.Quantity,
		string(r.Priority), string(r.Status), nlp, signals, r.AIConfidence,
		r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error inserting request: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRequest(ctx context.Context, id string) (*models.ResourceRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, victim_id, description, items, resource_type, quantity, priority,
		       status, nlp_classification, urgency_signals, ai_confidence,
		       created_at, updated_at
		FROM resource_requests WHERE id = ?`, id)

	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting request: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) UpdateRequest(ctx context.Context, r *models.ResourceRequest) error {
	items, err := marshalJSON(r.Items)
	if err != nil {
		return err
	}
	nlp, err := marshalJSON(r.NLPClassification)
	if err != nil {
		return err
	}
	signals, err := marshalJSON(r.UrgencySignals)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE resource_requests
		SET description = ?, items = ?, resource_type = ?, quantity = ?, priority = ?,
		    status = ?, nlp_classification = ?, urgency_signals = ?, ai_confidence = ?,
		    updated_at = ?
		WHERE id = ?`,
		r.Description, items, r.ResourceType, r.Quantity, string(r.Priority),
		string(r.Status), nlp, signals, r.AIConfidence, time.Now().UTC(), r.ID)
	if err != nil {
		return fmt.Errorf("error updating request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListRequests(ctx context.Context, f RequestFilter) ([]models.ResourceRequest, error) {
	query := `
		SELECT id, victim_id, description, items, resource_type, quantity, priority,
		       status, nlp_classification, urgency_signals, ai_confidence,
		       created_at, updated_at
		FROM resource_requests`

	var conds []string
	var args []any
	if f.VictimID != nil {
		conds = append(conds, "victim_id = ?")
		args = append(args, *f.VictimID)
	}
	if f.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *f.Since)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing requests: %w", err)
	}
	defer rows.Close()

	var out []models.ResourceRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning request: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanResource(r rowScanner) (*models.Resource, error) {
	var res models.Resource
	var status string
	var locationID sql.NullString
	var expiry sql.NullTime

	err := r.Scan(&res.ID, &res.Type, &res.Quantity, &res.Priority, &status,
		&locationID, &res.Latitude, &res.Longitude, &res.DisasterID, &expiry,
		&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	res.Status = models.ResourceStatus(status)
	res.LocationID = locationID.String
	if expiry.Valid {
		t := expiry.Time
		res.ExpiryDate = &t
	}
	return &res, nil
}

func scanRequest(r rowScanner) (*models.ResourceRequest, error) {
	var req models.ResourceRequest
	var priority, status string
	var desc, items, resType, nlp, signals sql.NullString

	err := r.Scan(&req.ID, &req.VictimID, &desc, &items, &resType, &req.Quantity,
		&priority, &status, &nlp, &signals, &req.AIConfidence,
		&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	req.Description = desc.String
	req.Items = unmarshalStrings(items)
	req.ResourceType = resType.String
	req.Priority = models.Severity(priority)
	req.Status = models.RequestStatus(status)
	req.NLPClassification = unmarshalMap(nlp)
	req.UrgencySignals = unmarshalStrings(signals)
	return &req, nil
}
