package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/reliefgrid/reliefgrid/internal/models"
)

// sourceErrorMax caps the stored last_error text.
const sourceErrorMax = 500

// EnsureSource returns the registry row for src.SourceName, creating it
// with src's fields if it does not exist yet.
func (s *SQLiteStore) EnsureSource(ctx context.Context, src *models.Source) (*models.Source, error) {
	existing, err := s.getSourceByName(ctx, src.SourceName)
	if err == nil {
		return existing, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sources (id, source_name, source_type, base_url, is_active, poll_interval_s)
		VALUES (?, ?, ?, ?, ?, ?)`,
		src.ID, src.SourceName, src.SourceType, src.BaseURL,
		boolToInt(src.IsActive), int(src.PollInterval.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("error inserting source %s: %w", src.SourceName, err)
	}
	return src, nil
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]models.Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_name, source_type, base_url, is_active,
		       poll_interval_s, last_polled_at, last_status, last_error
		FROM sources ORDER BY source_name`)
	if err != nil {
		return nil, fmt.Errorf("error listing sources: %w", err)
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *src)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RecordPollResult(ctx context.Context, sourceName string, status models.SourceStatus, pollErr string, at time.Time) error {
	if len(pollErr) > sourceErrorMax {
		pollErr = pollErr[:sourceErrorMax]
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sources SET last_polled_at = ?, last_status = ?, last_error = ?
		WHERE source_name = ?`, at, string(status), pollErr, sourceName)
	if err != nil {
		return fmt.Errorf("error recording poll result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) getSourceByName(ctx context.Context, name string) (*models.Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_name, source_type, base_url, is_active,
		       poll_interval_s, last_polled_at, last_status, last_error
		FROM sources WHERE source_name = ?`, name)

	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting source: %w", err)
	}
	return src, nil
}

func scanSource(r rowScanner) (*models.Source, error) {
	var src models.Source
	var baseURL, lastStatus, lastErr sql.NullString
	var isActive, pollSeconds int
	var lastPolled sql.NullTime

	err := r.Scan(&src.ID, &src.SourceName, &src.SourceType, &baseURL, &isActive,
		&pollSeconds, &lastPolled, &lastStatus, &lastErr)
	if err != nil {
		return nil, err
	}

	src.BaseURL = baseURL.String
	src.IsActive = isActive != 0
	src.PollInterval = time.Duration(pollSeconds) * time.Second
	if lastPolled.Valid {
		t := lastPolled.Time
		src.LastPolledAt = &t
	}
	src.LastStatus = models.SourceStatus(lastStatus.String)
	src.LastError = lastErr.String
	return &src, nil
}
