package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alertwise/go-emergency-alerts/internal/models"
)

// InsertEvent appends a correlation event unless one with the same
// idempotency key already exists. First writer wins; the loser sees
// (false, nil) and must skip its side effects.
func (s *SQLiteDB) InsertEvent(ctx context.Context, e *models.CorrelationEvent) (bool, error) {
	idsJSON := "[]"
	if len(e.AlertIDs) > 0 {
		b, err := json.Marshal(e.AlertIDs)
		if err != nil {
			return false, fmt.Errorf("error encoding alert ids: %w", err)
		}
		idsJSON = string(b)
	}

	var insertedID string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO correlation_events
			(id, pattern_type, alert_ids, region_code, severity, metadata, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id`,
		e.ID, string(e.PatternType), idsJSON, e.RegionCode, string(e.Severity),
		e.Metadata, e.IdempotencyKey, e.CreatedAt.UTC(),
	).Scan(&insertedID)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error inserting correlation event: %w", err)
	}
	return true, nil
}

func (s *SQLiteDB) GetEventByKey(ctx context.Context, key string) (*models.CorrelationEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pattern_type, alert_ids, region_code, severity, metadata, idempotency_key, created_at
		FROM correlation_events
		WHERE idempotency_key = ?`, key)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("correlation event %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching correlation event: %w", err)
	}
	return e, nil
}

func (s *SQLiteDB) ListRecentEvents(ctx context.Context, limit int) ([]models.CorrelationEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pattern_type, alert_ids, region_code, severity, metadata, idempotency_key, created_at
		FROM correlation_events
		ORDER BY created_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing correlation events: %w", err)
	}
	defer rows.Close()

	var events []models.CorrelationEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning correlation event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func scanEvent(row scanner) (*models.CorrelationEvent, error) {
	var (
		e   models.CorrelationEvent
		ids string
	)
	err := row.Scan(&e.ID, &e.PatternType, &ids, &e.RegionCode, &e.Severity,
		&e.Metadata, &e.IdempotencyKey, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ids), &e.AlertIDs); err != nil {
		return nil, fmt.Errorf("error decoding alert ids: %w", err)
	}
	return &e, nil
}
