package reaction

import "github.com/alertwise/go-emergency-alerts/internal/models"

// keying selects how the idempotency key for a pattern is derived.
type keying int

const (
	keyWindow keying = iota // stable entity + detection window
	keyHour                 // aggregate snapshot, one per UTC hour
	keyEvent                // always novel, fresh id per delivery
)

// patternSpec describes how one pattern type is processed. Adding a
// pattern means adding a row here and a webhook route; nothing else
// changes.
type patternSpec struct {
	keying        keying
	persist       bool
	minAlerts     int  // distinct alert ids required after dedup
	minRegions    int  // distinct region codes required
	needsRegion   bool // keyed by region instead of an alert id
	needsSeverity bool
	singleAlert   bool // headline/severity enriched from the store
}

var patternTable = map[models.PatternType]patternSpec{
	models.PatternGeographicCluster:    {keying: keyWindow, persist: true, minAlerts: 2},
	models.PatternRegionalHotspot:      {keying: keyWindow, persist: true, minAlerts: 1, needsRegion: true},
	models.PatternSeverityEscalation:   {keying: keyWindow, persist: true, minAlerts: 1, needsSeverity: true},
	models.PatternDuplicateSuppression: {keying: keyWindow, persist: true, minAlerts: 2},
	models.PatternAreaExpansion:        {keying: keyWindow, persist: true, minAlerts: 2, minRegions: 2},
	models.PatternSLABreach:            {keying: keyWindow, persist: true, minAlerts: 1, singleAlert: true},
	models.PatternApprovalTimeout:      {keying: keyWindow, persist: true, minAlerts: 1, singleAlert: true},
	models.PatternExpiryWarning:        {keying: keyWindow, persist: true, minAlerts: 1, singleAlert: true},
	models.PatternRetryStorm:           {keying: keyWindow, persist: true, minAlerts: 1, singleAlert: true},
	models.PatternSLACountdown:         {keying: keyWindow, persist: true, minAlerts: 1, singleAlert: true},
	models.PatternAllClear:             {keying: keyWindow, persist: true, minAlerts: 1, singleAlert: true},
	models.PatternRateSpike:            {keying: keyEvent},
	models.PatternApproverWorkload:     {keying: keyHour, persist: true},
	models.PatternDeliverySuccessRate:  {keying: keyHour, persist: true},
}
