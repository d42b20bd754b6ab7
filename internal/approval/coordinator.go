// Package approval executes alert lifecycle transitions under optimistic
// concurrency. Exactly one of any set of racing writers succeeds; the
// rest observe a version mismatch or an illegal-transition failure, and
// no conflict is ever resolved by silent retry.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alertwise/go-emergency-alerts/internal/alert"
	"github.com/alertwise/go-emergency-alerts/internal/clock"
	"github.com/alertwise/go-emergency-alerts/internal/dashboard"
	"github.com/alertwise/go-emergency-alerts/internal/identity"
	"github.com/alertwise/go-emergency-alerts/internal/models"
	"github.com/alertwise/go-emergency-alerts/internal/repository"
)

// StatusChange is the dashboard payload published after every successful
// lifecycle mutation.
type StatusChange struct {
	AlertID      string             `json:"alertId"`
	Status       models.AlertStatus `json:"status"`
	Headline     string             `json:"headline"`
	Severity     models.Severity    `json:"severity"`
	ActorID      string             `json:"actorId,omitempty"`
	VersionToken string             `json:"versionToken"`
	ChangedAt    time.Time          `json:"changedAt"`
}

type Coordinator struct {
	repo  repository.AlertRepository
	bus   *dashboard.Broadcaster
	clock clock.Clock
	ids   identity.Provider
}

func NewCoordinator(repo repository.AlertRepository, bus *dashboard.Broadcaster, clk clock.Clock, ids identity.Provider) *Coordinator {
	return &Coordinator{
		repo:  repo,
		bus:   bus,
		clock: clk,
		ids:   ids,
	}
}

// Create validates and persists a new alert, then announces it.
func (c *Coordinator) Create(ctx context.Context, in alert.CreateInput, creatorID string) (*models.Alert, error) {
	a, err := alert.New(in, c.ids.NewID(), creatorID, c.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := c.repo.CreateAlert(ctx, &a); err != nil {
		return nil, err
	}

	slog.Info("alert created", "alert_id", a.ID, "status", a.Status, "severity", a.Severity, "creator", creatorID)
	c.publish(a, creatorID)
	return &a, nil
}

// Submit promotes a draft to PendingApproval.
func (c *Coordinator) Submit(ctx context.Context, alertID, actorID, expectedToken string) (*models.Alert, error) {
	a, err := c.mutate(ctx, alertID, expectedToken, actorID, func(cur models.Alert, now time.Time) (models.Alert, error) {
		return alert.Submit(cur, now)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("alert submitted for approval", "alert_id", alertID, "actor", actorID, "version", a.Version)
	return a, nil
}

// Approve moves a pending alert to Approved. With a precondition token
// the caller's last-observed version must still be current; without one
// the race is resolved by the storage compare-and-swap alone.
func (c *Coordinator) Approve(ctx context.Context, alertID, approverID, expectedToken string) (*models.Alert, error) {
	a, err := c.mutate(ctx, alertID, expectedToken, approverID, func(cur models.Alert, now time.Time) (models.Alert, error) {
		return alert.Approve(cur, approverID, now)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("alert approved", "alert_id", alertID, "approver", approverID, "version", a.Version)
	return a, nil
}

func (c *Coordinator) Reject(ctx context.Context, alertID, approverID, reason, expectedToken string) (*models.Alert, error) {
	a, err := c.mutate(ctx, alertID, expectedToken, approverID, func(cur models.Alert, now time.Time) (models.Alert, error) {
		return alert.Reject(cur, approverID, reason, now)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("alert rejected", "alert_id", alertID, "approver", approverID, "version", a.Version)
	return a, nil
}

func (c *Coordinator) Cancel(ctx context.Context, alertID, actorID, expectedToken string) (*models.Alert, error) {
	a, err := c.mutate(ctx, alertID, expectedToken, actorID, func(cur models.Alert, now time.Time) (models.Alert, error) {
		return alert.Cancel(cur, actorID, now)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("alert cancelled", "alert_id", alertID, "actor", actorID, "version", a.Version)
	return a, nil
}

// MarkDelivered records that the delivery transport finished with this
// alert.
func (c *Coordinator) MarkDelivered(ctx context.Context, alertID, expectedToken string) (*models.Alert, error) {
	a, err := c.mutate(ctx, alertID, expectedToken, "", func(cur models.Alert, now time.Time) (models.Alert, error) {
		return alert.MarkDelivered(cur, now)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("alert delivered", "alert_id", alertID, "version", a.Version)
	return a, nil
}

// Expire transitions an overdue alert to Expired. Lost races are normal
// here: a sweeper may find the same alert twice, or an operator action
// may land first.
func (c *Coordinator) Expire(ctx context.Context, alertID string) (*models.Alert, error) {
	a, err := c.mutate(ctx, alertID, "", "", func(cur models.Alert, now time.Time) (models.Alert, error) {
		return alert.Expire(cur, now)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("alert expired", "alert_id", alertID, "version", a.Version)
	return a, nil
}

// mutate is the shared read -> precondition -> transition -> compare-and-
// swap path. The transition runs on a copy; nothing is written unless it
// succeeds, and the write commits only if the version is still the one
// the transition was computed from.
func (c *Coordinator) mutate(ctx context.Context, alertID, expectedToken, actorID string,
	transition func(models.Alert, time.Time) (models.Alert, error)) (*models.Alert, error) {

	current, err := c.repo.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if expectedToken != "" {
		v, perr := strconv.ParseInt(expectedToken, 10, 64)
		if perr != nil || v != current.Version {
			return nil, fmt.Errorf("alert %s precondition token %q: %w",
				alertID, expectedToken, repository.ErrVersionMismatch)
		}
	}

	next, err := transition(*current, c.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := c.repo.UpdateAlert(ctx, &next, current.Version); err != nil {
		return nil, err
	}

	c.publish(next, actorID)
	return &next, nil
}

// publish is fire-and-forget: the mutation has already committed, and an
// unobserved dashboard message is not a processing failure.
func (c *Coordinator) publish(a models.Alert, actorID string) {
	if c.bus == nil {
		return
	}
	c.bus.Broadcast(dashboard.Message{
		EventType: "alert.status",
		Payload: StatusChange{
			AlertID:      a.ID,
			Status:       a.Status,
			Headline:     a.Headline,
			Severity:     a.Severity,
			ActorID:      actorID,
			VersionToken: a.VersionToken(),
			ChangedAt:    a.UpdatedAt,
		},
	})
}
