package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/reliefgrid/reliefgrid/internal/models"
)

// dedupChunkSize bounds the IN-clause when checking external IDs.
const dedupChunkSize = 100

// insertBatchSize bounds one multi-row INSERT.
const insertBatchSize = 500

func (s *SQLiteStore) InsertEvents(ctx context.Context, events []models.IngestedEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO ingested_events
			(id, source_id, external_id, event_type, title, description, severity,
			 latitude, longitude, location_name, raw_payload, ingested_at, processed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`)
	if err != nil {
		return 0, fmt.Errorf("error preparing insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range events {
		raw, err := marshalJSON(e.RawPayload)
		if err != nil {
			return inserted, err
		}
		res, err := stmt.ExecContext(ctx,
			e.ID, e.SourceID, e.ExternalID, string(e.EventType), e.Title, e.Description,
			string(e.Severity), e.Latitude, e.Longitude, e.LocationName, raw, e.IngestedAt)
		if err != nil {
			return inserted, fmt.Errorf("error inserting event %s: %w", e.ExternalID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing events: %w", err)
	}
	return inserted, nil
}

func (s *SQLiteStore) ExistingEventIDs(ctx context.Context, externalIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	for _, batch := range chunk(externalIDs, dedupChunkSize) {
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		query := fmt.Sprintf(
			"SELECT external_id FROM ingested_events WHERE external_id IN (%s)",
			placeholders(len(batch)))
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("error querying existing events: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("error scanning external id: %w", err)
			}
			existing[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return existing, nil
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*models.IngestedEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, external_id, event_type, title, description, severity,
		       latitude, longitude, location_name, raw_payload, ingested_at,
		       processed, processed_at, disaster_id, prediction_ids
		FROM ingested_events WHERE id = ?`, id)

	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting event: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, f EventFilter) ([]models.IngestedEvent, error) {
	query := `
		SELECT id, source_id, external_id, event_type, title, description, severity,
		       latitude, longitude, location_name, raw_payload, ingested_at,
		       processed, processed_at, disaster_id, prediction_ids
		FROM ingested_events`

	var conds []string
	var args []any
	if f.SourceID != nil {
		conds = append(conds, "source_id = ?")
		args = append(args, *f.SourceID)
	}
	if f.EventType != nil {
		conds = append(conds, "event_type = ?")
		args = append(args, string(*f.EventType))
	}
	if f.Severity != nil {
		conds = append(conds, "severity = ?")
		args = append(args, string(*f.Severity))
	}
	if f.Processed != nil {
		conds = append(conds, "processed = ?")
		args = append(args, boolToInt(*f.Processed))
	}
	if f.Since != nil {
		conds = append(conds, "ingested_at >= ?")
		args = append(args, *f.Since)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ingested_at DESC"
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
		return nil, fmt.Errorf("error listing events: %w", err)
	}
	defer rows.Close()

	var out []models.IngestedEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning event: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkEventProcessed(ctx context.Context, id string, disasterID *string, predictionIDs []string) error {
	preds, err := marshalJSON(predictionIDs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE ingested_events
		SET processed = 1, processed_at = ?, disaster_id = ?, prediction_ids = ?
		WHERE id = ?`, time.Now().UTC(), disasterID, preds, id)
	if err != nil {
		return fmt.Errorf("error marking event processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CountEventsBySource(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.source_name, COUNT(*)
		FROM ingested_events e
		JOIN sources s ON s.id = e.source_id
		WHERE e.ingested_at >= ?
		GROUP BY s.source_name`, since)
	if err != nil {
		return nil, fmt.Errorf("error counting events: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (*models.IngestedEvent, error) {
	var e models.IngestedEvent
	var eventType, severity string
	var title, desc, locName sql.NullString
	var raw, preds sql.NullString
	var processed int
	var processedAt sql.NullTime
	var disasterID sql.NullString

	err := r.Scan(&e.ID, &e.SourceID, &e.ExternalID, &eventType, &title, &desc, &severity,
		&e.Latitude, &e.Longitude, &locName, &raw, &e.IngestedAt,
		&processed, &processedAt, &disasterID, &preds)
	if err != nil {
		return nil, err
	}

	e.EventType = models.EventType(eventType)
	e.Severity = models.Severity(severity)
	e.Title = title.String
	e.Description = desc.String
	e.LocationName = locName.String
	e.RawPayload = unmarshalMap(raw)
	e.Processed = processed != 0
	if processedAt.Valid {
		t := processedAt.Time
		e.ProcessedAt = &t
	}
	if disasterID.Valid {
		d := disasterID.String
		e.DisasterID = &d
	}
	e.PredictionIDs = unmarshalStrings(preds)
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
