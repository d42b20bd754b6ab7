package api

import (
	"time"

	"github.com/alertwise/go-emergency-alerts/internal/models"
)

// alertResponse is the wire form of an alert. Version carries the opaque
// precondition token clients echo back on mutations.
type alertResponse struct {
	ID              string             `json:"id"`
	Headline        string             `json:"headline"`
	Description     string             `json:"description"`
	Severity        models.Severity    `json:"severity"`
	Channel         models.ChannelType `json:"channel"`
	Status          models.AlertStatus `json:"status"`
	Areas           []models.Area      `json:"areas"`
	ExpiresAt       time.Time          `json:"expiresAt"`
	CreatedBy       string             `json:"createdBy"`
	ApproverID      string             `json:"approverId,omitempty"`
	RejectionReason string             `json:"rejectionReason,omitempty"`
	Version         string             `json:"version"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

func toAlertResponse(a *models.Alert) alertResponse {
	return alertResponse{
		ID:              a.ID,
		Headline:        a.Headline,
		Description:     a.Description,
		Severity:        a.Severity,
		Channel:         a.Channel,
		Status:          a.Status,
		Areas:           a.Areas,
		ExpiresAt:       a.ExpiresAt,
		CreatedBy:       a.CreatedBy,
		ApproverID:      a.ApproverID,
		RejectionReason: a.RejectionReason,
		Version:         a.VersionToken(),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toAlertList(alerts []models.Alert) []alertResponse {
	out := make([]alertResponse, 0, len(alerts))
	for i := range alerts {
		out = append(out, toAlertResponse(&alerts[i]))
	}
	return out
}

type attemptResponse struct {
	ID                  string                 `json:"id"`
	AlertID             string                 `json:"alertId"`
	RecipientID         string                 `json:"recipientId"`
	AttemptNumber       int                    `json:"attemptNumber"`
	Outcome             models.DeliveryOutcome `json:"outcome"`
	FailureReason       string                 `json:"failureReason,omitempty"`
	ProviderOperationID string                 `json:"providerOperationId,omitempty"`
	AttemptedAt         time.Time              `json:"attemptedAt"`
}

func toAttemptResponse(at *models.DeliveryAttempt) attemptResponse {
	return attemptResponse{
		ID:                  at.ID,
		AlertID:             at.AlertID,
		RecipientID:         at.RecipientID,
		AttemptNumber:       at.AttemptNumber,
		Outcome:             at.Outcome,
		FailureReason:       at.FailureReason,
		ProviderOperationID: at.ProviderOperationID,
		AttemptedAt:         at.AttemptedAt,
	}
}

func toAttemptList(attempts []models.DeliveryAttempt) []attemptResponse {
	out := make([]attemptResponse, 0, len(attempts))
	for i := range attempts {
		out = append(out, toAttemptResponse(&attempts[i]))
	}
	return out
}

type eventResponse struct {
	ID             string             `json:"id"`
	Pattern        models.PatternType `json:"pattern"`
	AlertIDs       []string           `json:"alertIds"`
	RegionCode     string             `json:"regionCode,omitempty"`
	Severity       models.Severity    `json:"severity,omitempty"`
	Metadata       string             `json:"metadata,omitempty"`
	IdempotencyKey string             `json:"idempotencyKey"`
	CreatedAt      time.Time          `json:"createdAt"`
}

func toEventList(events []models.CorrelationEvent) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			ID:             e.ID,
			Pattern:        e.PatternType,
			AlertIDs:       e.AlertIDs,
			RegionCode:     e.RegionCode,
			Severity:       e.Severity,
			Metadata:       e.Metadata,
			IdempotencyKey: e.IdempotencyKey,
			CreatedAt:      e.CreatedAt,
		})
	}
	return out
}
