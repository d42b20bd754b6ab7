package alert

import (
	"fmt"

	"github.com/alertwise/go-emergency-alerts/internal/models"
)

// ValidationError marks malformed caller input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PolygonError is the geometry specialization of validation failure,
// reported distinctly so callers can surface which area ring is broken.
type PolygonError struct {
	AreaIndex int
	Reason    string
}

func (e *PolygonError) Error() string {
	return fmt.Sprintf("invalid polygon in area %d: %s", e.AreaIndex, e.Reason)
}

// TransitionError marks an operation that is illegal in the alert's
// current status.
type TransitionError struct {
	Op     string
	Status models.AlertStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s alert in status %s", e.Op, e.Status)
}
