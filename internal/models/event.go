package models

import "time"

type PatternType string

const (
	PatternGeographicCluster    PatternType = "GEOGRAPHIC_CLUSTER"
	PatternRegionalHotspot      PatternType = "REGIONAL_HOTSPOT"
	PatternSeverityEscalation   PatternType = "SEVERITY_ESCALATION"
	PatternDuplicateSuppression PatternType = "DUPLICATE_SUPPRESSION"
	PatternAreaExpansion        PatternType = "AREA_EXPANSION"
	PatternSLABreach            PatternType = "SLA_BREACH"
	PatternApprovalTimeout      PatternType = "APPROVAL_TIMEOUT"
	PatternExpiryWarning        PatternType = "EXPIRY_WARNING"
	PatternRetryStorm           PatternType = "RETRY_STORM"
	PatternSLACountdown         PatternType = "SLA_COUNTDOWN"
	PatternAllClear             PatternType = "ALL_CLEAR"
	PatternRateSpike            PatternType = "RATE_SPIKE"
	PatternApproverWorkload     PatternType = "APPROVER_WORKLOAD"
	PatternDeliverySuccessRate  PatternType = "DELIVERY_SUCCESS_RATE"
)

// CorrelationEvent records one detected pattern occurrence. Events are
// written exactly once per idempotency key and never mutated afterwards.
// AlertIDs reference alerts by value only; the alerts may be archived
// independently of historical events.
type CorrelationEvent struct {
	ID             string
	PatternType    PatternType
	AlertIDs       []string
	RegionCode     string
	Severity       Severity
	Metadata       string // free-form, typically structured JSON from the engine
	IdempotencyKey string
	CreatedAt      time.Time
}
