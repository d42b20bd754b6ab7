package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/alertwise/go-emergency-alerts/internal/models"
)

// AppendAttempt writes one ledger row. Attempts are append-only; there is
// deliberately no update or delete here.
func (s *SQLiteDB) AppendAttempt(ctx context.Context, at *models.DeliveryAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_attempts
			(id, alert_id, recipient_id, attempt_number, outcome, failure_reason, provider_operation_id, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		at.ID, at.AlertID, at.RecipientID, at.AttemptNumber, string(at.Outcome),
		at.FailureReason, at.ProviderOperationID, at.AttemptedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("error inserting delivery attempt: %w", err)
	}
	return nil
}

func (s *SQLiteDB) ListAttempts(ctx context.Context, alertID string) ([]models.DeliveryAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, alert_id, recipient_id, attempt_number, outcome, failure_reason, provider_operation_id, attempted_at
		FROM delivery_attempts
		WHERE alert_id = ?
		ORDER BY attempted_at, attempt_number`,
		alertID,
	)
	if err != nil {
		return nil, fmt.Errorf("error listing delivery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.DeliveryAttempt
	for rows.Next() {
		var at models.DeliveryAttempt
		err := rows.Scan(&at.ID, &at.AlertID, &at.RecipientID, &at.AttemptNumber,
			&at.Outcome, &at.FailureReason, &at.ProviderOperationID, &at.AttemptedAt)
		if err != nil {
			return nil, fmt.Errorf("error scanning delivery attempt: %w", err)
		}
		attempts = append(attempts, at)
	}
	return attempts, rows.Err()
}

// ConsecutiveFailures counts failures recorded after the alert's most
// recent success. Feeds retry-storm detection.
func (s *SQLiteDB) ConsecutiveFailures(ctx context.Context, alertID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM delivery_attempts
		WHERE alert_id = ? AND outcome = ?
		  AND attempted_at > COALESCE(
			(SELECT MAX(attempted_at) FROM delivery_attempts WHERE alert_id = ? AND outcome = ?),
			'1970-01-01')`,
		alertID, string(models.OutcomeFailure), alertID, string(models.OutcomeSuccess),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting consecutive failures: %w", err)
	}
	return count, nil
}

// OutcomeCounts tallies success/failure outcomes recorded since the given
// instant. Feeds success-rate detection.
func (s *SQLiteDB) OutcomeCounts(ctx context.Context, since time.Time) (models.DeliveryStats, error) {
	var stats models.DeliveryStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN outcome = ? THEN 1 END),
			COUNT(CASE WHEN outcome = ? THEN 1 END)
		FROM delivery_attempts
		WHERE attempted_at >= ?`,
		string(models.OutcomeSuccess), string(models.OutcomeFailure), since.UTC(),
	).Scan(&stats.SuccessCount, &stats.FailureCount)
	if err != nil {
		return models.DeliveryStats{}, fmt.Errorf("error counting delivery outcomes: %w", err)
	}
	return stats, nil
}
