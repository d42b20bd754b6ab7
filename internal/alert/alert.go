// Package alert holds the alert aggregate: creation-time validation and
// the status state machine. Transitions are total functions over
// (state, input); they return a new state or a typed failure and never
// partially mutate their input.
package alert

import (
	"strings"
	"time"

	"github.com/alertwise/go-emergency-alerts/internal/models"
)

const maxHeadlineLen = 140

type CreateInput struct {
	Headline    string
	Description string
	Severity    models.Severity
	Channel     models.ChannelType
	Areas       []models.Area
	ExpiresAt   time.Time
	Draft       bool
}

// New validates the input and produces a fresh alert in Draft or
// PendingApproval at version 1.
func New(in CreateInput, id, creatorID string, now time.Time) (models.Alert, error) {
	if strings.TrimSpace(creatorID) == "" {
		return models.Alert{}, &ValidationError{Field: "creatorId", Reason: "must not be empty"}
	}
	if strings.TrimSpace(in.Headline) == "" {
		return models.Alert{}, &ValidationError{Field: "headline", Reason: "must not be empty"}
	}
	if len(in.Headline) > maxHeadlineLen {
		return models.Alert{}, &ValidationError{Field: "headline", Reason: "exceeds 140 characters"}
	}
	if strings.TrimSpace(in.Description) == "" {
		return models.Alert{}, &ValidationError{Field: "description", Reason: "must not be empty"}
	}
	if !in.Severity.Valid() {
		return models.Alert{}, &ValidationError{Field: "severity", Reason: "unknown value"}
	}
	if !in.Channel.Valid() {
		return models.Alert{}, &ValidationError{Field: "channel", Reason: "unknown value"}
	}
	if len(in.Areas) == 0 {
		return models.Alert{}, &ValidationError{Field: "areas", Reason: "at least one area is required"}
	}
	for i, area := range in.Areas {
		if err := validateArea(i, area); err != nil {
			return models.Alert{}, err
		}
	}
	if !in.ExpiresAt.After(now) {
		return models.Alert{}, &ValidationError{Field: "expiresAt", Reason: "must be in the future"}
	}

	status := models.StatusPendingApproval
	if in.Draft {
		status = models.StatusDraft
	}

	now = now.UTC()
	return models.Alert{
		ID:          id,
		Headline:    in.Headline,
		Description: in.Description,
		Severity:    in.Severity,
		Channel:     in.Channel,
		Status:      status,
		Areas:       in.Areas,
		ExpiresAt:   in.ExpiresAt.UTC(),
		CreatedBy:   creatorID,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Submit promotes a draft to PendingApproval.
func Submit(a models.Alert, now time.Time) (models.Alert, error) {
	if a.Status != models.StatusDraft {
		return models.Alert{}, &TransitionError{Op: "submit", Status: a.Status}
	}
	a.Status = models.StatusPendingApproval
	touch(&a, now)
	return a, nil
}

// Approve is legal only from PendingApproval.
func Approve(a models.Alert, approverID string, now time.Time) (models.Alert, error) {
	if strings.TrimSpace(approverID) == "" {
		return models.Alert{}, &ValidationError{Field: "approverId", Reason: "must not be empty"}
	}
	if a.Status != models.StatusPendingApproval {
		return models.Alert{}, &TransitionError{Op: "approve", Status: a.Status}
	}
	a.Status = models.StatusApproved
	a.ApproverID = approverID
	touch(&a, now)
	return a, nil
}

// Reject is legal only from PendingApproval and requires a reason.
func Reject(a models.Alert, approverID, reason string, now time.Time) (models.Alert, error) {
	if strings.TrimSpace(approverID) == "" {
		return models.Alert{}, &ValidationError{Field: "approverId", Reason: "must not be empty"}
	}
	if strings.TrimSpace(reason) == "" {
		return models.Alert{}, &ValidationError{Field: "reason", Reason: "must not be empty"}
	}
	if a.Status != models.StatusPendingApproval {
		return models.Alert{}, &TransitionError{Op: "reject", Status: a.Status}
	}
	a.Status = models.StatusRejected
	a.ApproverID = approverID
	a.RejectionReason = reason
	touch(&a, now)
	return a, nil
}

// Cancel is legal from PendingApproval or Approved.
func Cancel(a models.Alert, actorID string, now time.Time) (models.Alert, error) {
	if strings.TrimSpace(actorID) == "" {
		return models.Alert{}, &ValidationError{Field: "actorId", Reason: "must not be empty"}
	}
	if a.Status != models.StatusPendingApproval && a.Status != models.StatusApproved {
		return models.Alert{}, &TransitionError{Op: "cancel", Status: a.Status}
	}
	a.Status = models.StatusCancelled
	touch(&a, now)
	return a, nil
}

// MarkDelivered records that the delivery transport finished broadcasting
// an approved alert.
func MarkDelivered(a models.Alert, now time.Time) (models.Alert, error) {
	if a.Status != models.StatusApproved {
		return models.Alert{}, &TransitionError{Op: "mark delivered", Status: a.Status}
	}
	a.Status = models.StatusDelivered
	touch(&a, now)
	return a, nil
}

// Expire moves any non-terminal alert to Expired once its expiry has
// passed.
func Expire(a models.Alert, now time.Time) (models.Alert, error) {
	if a.Status.Terminal() {
		return models.Alert{}, &TransitionError{Op: "expire", Status: a.Status}
	}
	if now.Before(a.ExpiresAt) {
		return models.Alert{}, &ValidationError{Field: "expiresAt", Reason: "alert has not expired yet"}
	}
	a.Status = models.StatusExpired
	touch(&a, now)
	return a, nil
}

// touch advances UpdatedAt, keeping it strictly increasing even when the
// clock resolution is too coarse to have moved past the previous write.
func touch(a *models.Alert, now time.Time) {
	now = now.UTC()
	if !now.After(a.UpdatedAt) {
		now = a.UpdatedAt.Add(time.Millisecond)
	}
	a.UpdatedAt = now
}
