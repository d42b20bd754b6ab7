package models

import "time"

type DeliveryOutcome string

const (
	OutcomeSuccess DeliveryOutcome = "SUCCESS"
	OutcomeFailure DeliveryOutcome = "FAILURE"
)

func (o DeliveryOutcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeFailure
}

// DeliveryAttempt is one row of the append-only delivery ledger. Attempts
// are never updated or deleted once recorded.
type DeliveryAttempt struct {
	ID                  string
	AlertID             string
	RecipientID         string
	AttemptNumber       int // which retry this is, not a sequence index
	Outcome             DeliveryOutcome
	FailureReason       string // set when Outcome is FAILURE
	ProviderOperationID string // set when Outcome is SUCCESS
	AttemptedAt         time.Time
}

// Recipient is a contact identity, created lazily the first time the
// delivery transport reports an attempt for its address.
type Recipient struct {
	ID        string
	Address   string
	CreatedAt time.Time
}

// DeliveryStats are outcome counts over a trailing time window.
type DeliveryStats struct {
	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`
}
