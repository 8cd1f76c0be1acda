package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/reliefgrid/reliefgrid/internal/models"
)

func (s *SQLiteStore) InsertReport(ctx context.Context, r *models.SituationReport) error {
	stats, err := marshalJSON(r.Stats)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO situation_reports (id, report_date, content, stats, generated_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.ReportDate, r.Content, stats, r.GeneratedBy, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("error inserting report: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LatestReport(ctx context.Context) (*models.SituationReport, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, report_date, content, stats, generated_by, created_at
		FROM situation_reports ORDER BY created_at DESC LIMIT 1`)

	var r models.SituationReport
	var stats sql.NullString
	err := row.Scan(&r.ID, &r.ReportDate, &r.Content, &stats, &r.GeneratedBy, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting latest report: %w", err)
	}
	r.Stats = unmarshalMap(stats)
	return &r, nil
}
