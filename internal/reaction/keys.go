package reaction

import (
	"fmt"
	"time"

	"github.com/alertwise/go-emergency-alerts/internal/models"
)

// WindowKey collapses repeated reports of the same condition into one
// logical occurrence per entity and window. The window start is recovered
// by subtracting the reported elapsed duration from now and truncating to
// whole seconds, so re-deliveries within the same window derive the same
// key.
func WindowKey(pattern models.PatternType, entityID string, now time.Time, elapsed time.Duration) string {
	windowStart := now.Add(-elapsed).Truncate(time.Second).Unix()
	return fmt.Sprintf("%s:%s:%d", pattern, entityID, windowStart)
}

// HourKey keys aggregate snapshots to the current UTC hour.
func HourKey(pattern models.PatternType, now time.Time) string {
	return fmt.Sprintf("%s:%d", pattern, now.UTC().Truncate(time.Hour).Unix())
}

// EventKey marks a delivery as always novel by binding it to a freshly
// minted id.
func EventKey(pattern models.PatternType, eventID string) string {
	return fmt.Sprintf("%s:%s", pattern, eventID)
}
