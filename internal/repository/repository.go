package repository

import (
	"context"
	"errors"
	"time"

	"github.com/alertwise/go-emergency-alerts/internal/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionMismatch = errors.New("version mismatch")
)

type AlertFilter struct {
	Status *models.AlertStatus
	Search string // matched against headline and description
	Limit  int
	Offset int
}

type AlertRepository interface {
	CreateAlert(ctx context.Context, a *models.Alert) error
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	ListAlerts(ctx context.Context, opts AlertFilter) ([]models.Alert, error)
	// UpdateAlert persists a only if the stored version still equals
	// expectedVersion, incrementing the version atomically. Returns
	// ErrVersionMismatch when another writer got there first.
	UpdateAlert(ctx context.Context, a *models.Alert, expectedVersion int64) error
	ListExpirableAlerts(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

type AttemptRepository interface {
	AppendAttempt(ctx context.Context, at *models.DeliveryAttempt) error
	ListAttempts(ctx context.Context, alertID string) ([]models.DeliveryAttempt, error)
	ConsecutiveFailures(ctx context.Context, alertID string) (int, error)
	OutcomeCounts(ctx context.Context, since time.Time) (models.DeliveryStats, error)
}

type EventRepository interface {
	// InsertEvent writes e unless an event with the same idempotency key
	// already exists. Reports false without error on a duplicate.
	InsertEvent(ctx context.Context, e *models.CorrelationEvent) (bool, error)
	GetEventByKey(ctx context.Context, key string) (*models.CorrelationEvent, error)
	ListRecentEvents(ctx context.Context, limit int) ([]models.CorrelationEvent, error)
}

type RecipientRepository interface {
	GetOrCreateRecipient(ctx context.Context, address, newID string, now time.Time) (*models.Recipient, error)
}
