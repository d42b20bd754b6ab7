package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alertwise/go-emergency-alerts/internal/models"
)

const alertColumns = `id, headline, description, severity, channel, status, areas,
	expires_at, created_by, approver_id, rejection_reason, version, created_at, updated_at`

func (s *SQLiteDB) CreateAlert(ctx context.Context, a *models.Alert) error {
	areas, err := json.Marshal(a.Areas)
	if err != nil {
		return fmt.Errorf("error encoding areas: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Headline, a.Description, string(a.Severity), string(a.Channel), string(a.Status),
		string(areas), a.ExpiresAt.UTC(), a.CreatedBy, a.ApproverID, a.RejectionReason,
		a.Version, a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("error inserting alert: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)

	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching alert: %w", err)
	}
	return a, nil
}

func (s *SQLiteDB) ListAlerts(ctx context.Context, opts AlertFilter) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	args := []any{}

	if opts.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*opts.Status))
	}
	if opts.Search != "" {
		query += ` AND (headline LIKE ? OR description LIKE ?)`
		pattern := "%" + opts.Search + "%"
		args = append(args, pattern, pattern)
	}

	query += ` ORDER BY created_at DESC, id`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// UpdateAlert is the aggregate's compare-and-swap: the row is written only
// when the stored version still matches expectedVersion, and the version
// counter advances in the same statement. On success a.Version is set to
// the new counter value.
func (s *SQLiteDB) UpdateAlert(ctx context.Context, a *models.Alert, expectedVersion int64) error {
	areas, err := json.Marshal(a.Areas)
	if err != nil {
		return fmt.Errorf("error encoding areas: %w", err)
	}

	var newVersion int64
	err = s.db.QueryRowContext(ctx, `
		UPDATE alerts
		SET headline = ?, description = ?, severity = ?, channel = ?, status = ?, areas = ?,
			expires_at = ?, approver_id = ?, rejection_reason = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
		RETURNING version`,
		a.Headline, a.Description, string(a.Severity), string(a.Channel), string(a.Status),
		string(areas), a.ExpiresAt.UTC(), a.ApproverID, a.RejectionReason, a.UpdatedAt.UTC(),
		a.ID, expectedVersion,
	).Scan(&newVersion)

	if errors.Is(err, sql.ErrNoRows) {
		// Either the alert is gone or another writer advanced the version.
		exists, eerr := s.alertExists(ctx, a.ID)
		if eerr != nil {
			return eerr
		}
		if !exists {
			return fmt.Errorf("alert %s: %w", a.ID, ErrNotFound)
		}
		return fmt.Errorf("alert %s at version %d: %w", a.ID, expectedVersion, ErrVersionMismatch)
	}
	if err != nil {
		return fmt.Errorf("error updating alert: %w", err)
	}

	a.Version = newVersion
	return nil
}

func (s *SQLiteDB) alertExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM alerts WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking alert existence: %w", err)
	}
	return exists, nil
}

// ListExpirableAlerts returns ids of non-terminal alerts whose expiry has
// passed, oldest expiry first.
func (s *SQLiteDB) ListExpirableAlerts(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM alerts
		WHERE status IN (?, ?, ?) AND expires_at <= ?
		ORDER BY expires_at
		LIMIT ?`,
		string(models.StatusDraft), string(models.StatusPendingApproval), string(models.StatusApproved),
		cutoff.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("error listing expirable alerts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning alert id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(row scanner) (*models.Alert, error) {
	var (
		a     models.Alert
		areas string
	)
	err := row.Scan(
		&a.ID, &a.Headline, &a.Description, &a.Severity, &a.Channel, &a.Status, &areas,
		&a.ExpiresAt, &a.CreatedBy, &a.ApproverID, &a.RejectionReason,
		&a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(areas), &a.Areas); err != nil {
		return nil, fmt.Errorf("error decoding areas: %w", err)
	}
	return &a, nil
}
