// Package delivery records the outcomes the delivery transport reports
// back. The ledger is append-only; retry policy belongs to the transport,
// not to this package.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/alertwise/go-emergency-alerts/internal/alert"
	"github.com/alertwise/go-emergency-alerts/internal/clock"
	"github.com/alertwise/go-emergency-alerts/internal/identity"
	"github.com/alertwise/go-emergency-alerts/internal/models"
	"github.com/alertwise/go-emergency-alerts/internal/repository"
	"github.com/alertwise/go-emergency-alerts/internal/worker"
)

// ErrQueueFull is returned by Enqueue when the background pool cannot
// accept more reports.
var ErrQueueFull = errors.New("delivery report queue is full")

// Report is one transport callback, decoded from the API body.
type Report struct {
	AlertID             string
	Recipient           string // transport address: phone number, endpoint, station id
	AttemptNumber       int
	Outcome             models.DeliveryOutcome
	FailureReason       string
	ProviderOperationID string
}

type Service struct {
	alerts     repository.AlertRepository
	attempts   repository.AttemptRepository
	recipients repository.RecipientRepository
	pool       *worker.Pool[Report]
	clock      clock.Clock
	ids        identity.Provider
}

func NewService(alerts repository.AlertRepository, attempts repository.AttemptRepository, recipients repository.RecipientRepository, clk clock.Clock, ids identity.Provider, workers, bufferSize int) *Service {
	s := &Service{
		alerts:     alerts,
		attempts:   attempts,
		recipients: recipients,
		clock:      clk,
		ids:        ids,
	}
	s.pool = worker.NewPool(workers, bufferSize, s.processQueued)
	return s
}

// Start launches the background workers that drain Enqueue'd reports.
func (s *Service) Start(ctx context.Context) {
	s.pool.Start(ctx)
}

// Stop drains accepted reports and waits for the workers to exit.
func (s *Service) Stop() {
	s.pool.Stop()
}

// Record validates the report, resolves the recipient (creating it on
// first contact) and appends one immutable ledger row.
func (s *Service) Record(ctx context.Context, rep Report) (*models.DeliveryAttempt, error) {
	if err := validateReport(rep); err != nil {
		return nil, err
	}
	if _, err := s.alerts.GetAlert(ctx, rep.AlertID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	recipient, err := s.recipients.GetOrCreateRecipient(ctx, strings.TrimSpace(rep.Recipient), s.ids.NewID(), now)
	if err != nil {
		return nil, err
	}

	attempt := &models.DeliveryAttempt{
		ID:                  s.ids.NewID(),
		AlertID:             rep.AlertID,
		RecipientID:         recipient.ID,
		AttemptNumber:       rep.AttemptNumber,
		Outcome:             rep.Outcome,
		FailureReason:       rep.FailureReason,
		ProviderOperationID: rep.ProviderOperationID,
		AttemptedAt:         now,
	}
	if err := s.attempts.AppendAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	slog.Info("delivery attempt recorded",
		"alert_id", attempt.AlertID,
		"recipient_id", attempt.RecipientID,
		"attempt", attempt.AttemptNumber,
		"outcome", attempt.Outcome)
	return attempt, nil
}

// Enqueue hands the report to the background pool. Validation runs inline
// so malformed reports are still rejected synchronously; the ledger write
// happens after the caller has its answer.
func (s *Service) Enqueue(rep Report) error {
	if err := validateReport(rep); err != nil {
		return err
	}
	if !s.pool.TrySubmit(rep) {
		return ErrQueueFull
	}
	return nil
}

// History lists the attempts for one alert in the order they happened.
func (s *Service) History(ctx context.Context, alertID string) ([]models.DeliveryAttempt, error) {
	if _, err := s.alerts.GetAlert(ctx, alertID); err != nil {
		return nil, err
	}
	return s.attempts.ListAttempts(ctx, alertID)
}

// Stats counts outcomes inside the trailing window.
func (s *Service) Stats(ctx context.Context, window time.Duration) (models.DeliveryStats, error) {
	return s.attempts.OutcomeCounts(ctx, s.clock.Now().Add(-window))
}

// ConsecutiveFailures counts the failures recorded for alertID since its
// last success.
func (s *Service) ConsecutiveFailures(ctx context.Context, alertID string) (int, error) {
	return s.attempts.ConsecutiveFailures(ctx, alertID)
}

func (s *Service) processQueued(ctx context.Context, rep Report) error {
	if _, err := s.Record(ctx, rep); err != nil {
		slog.Error("failed to record queued delivery report",
			"alert_id", rep.AlertID, "error", err)
		return err
	}
	return nil
}

func validateReport(rep Report) error {
	if strings.TrimSpace(rep.AlertID) == "" {
		return &alert.ValidationError{Field: "alertId", Reason: "must not be empty"}
	}
	if strings.TrimSpace(rep.Recipient) == "" {
		return &alert.ValidationError{Field: "recipient", Reason: "must not be empty"}
	}
	if rep.AttemptNumber < 1 {
		return &alert.ValidationError{Field: "attemptNumber", Reason: "must be at least 1"}
	}
	if !rep.Outcome.Valid() {
		return &alert.ValidationError{Field: "outcome", Reason: "unknown value"}
	}
	return nil
}
