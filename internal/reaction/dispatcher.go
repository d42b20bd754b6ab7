// Package reaction ingests pattern detections from the external
// correlation engine. Every detection is reduced to a deterministic
// idempotency key, and per key the dispatcher persists at most one
// CorrelationEvent and emits at most one dashboard broadcast, however
// often the engine re-delivers the same detection.
package reaction

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/alertwise/go-emergency-alerts/internal/alert"
	"github.com/alertwise/go-emergency-alerts/internal/clock"
	"github.com/alertwise/go-emergency-alerts/internal/dashboard"
	"github.com/alertwise/go-emergency-alerts/internal/identity"
	"github.com/alertwise/go-emergency-alerts/internal/models"
	"github.com/alertwise/go-emergency-alerts/internal/repository"
)

// Detection is one inbound pattern report, already decoded from the
// pattern-specific webhook body.
type Detection struct {
	Pattern       models.PatternType
	AlertIDs      []string
	RegionCode    string   // hotspot target region
	RegionCodes   []string // distinct regions covered, area expansion only
	Severity      models.Severity
	Headline      string
	WindowSeconds int
	Metadata      string
}

// Notification is the dashboard payload for a recorded detection. The
// idempotency key travels with it so duplicate-tolerant UIs can dedupe
// client-side.
type Notification struct {
	Pattern        models.PatternType `json:"pattern"`
	AlertIDs       []string           `json:"alertIds,omitempty"`
	RegionCode     string             `json:"regionCode,omitempty"`
	Severity       models.Severity    `json:"severity,omitempty"`
	Headline       string             `json:"headline,omitempty"`
	Metadata       string             `json:"metadata,omitempty"`
	DetectedAt     time.Time          `json:"detectedAt"`
	IdempotencyKey string             `json:"idempotencyKey"`
}

// Result reports what a dispatch did. Event is nil for broadcast-only
// patterns and for duplicates.
type Result struct {
	IdempotencyKey string
	Duplicate      bool
	Event          *models.CorrelationEvent
}

type Dispatcher struct {
	events repository.EventRepository
	alerts repository.AlertRepository
	bus    *dashboard.Broadcaster
	clock  clock.Clock
	ids    identity.Provider
}

func NewDispatcher(events repository.EventRepository, alerts repository.AlertRepository, bus *dashboard.Broadcaster, clk clock.Clock, ids identity.Provider) *Dispatcher {
	return &Dispatcher{
		events: events,
		alerts: alerts,
		bus:    bus,
		clock:  clk,
		ids:    ids,
	}
}

// Dispatch validates the detection, derives its idempotency key, persists
// a CorrelationEvent for patterns that are recorded, and broadcasts to
// dashboard observers. A re-delivered detection resolves to the same key,
// persists nothing and broadcasts nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, det Detection) (Result, error) {
	spec, ok := patternTable[det.Pattern]
	if !ok {
		return Result{}, &alert.ValidationError{Field: "pattern", Reason: "unknown pattern type"}
	}
	if det.WindowSeconds < 0 {
		return Result{}, &alert.ValidationError{Field: "windowSeconds", Reason: "must not be negative"}
	}
	if det.Severity != "" && !det.Severity.Valid() {
		return Result{}, &alert.ValidationError{Field: "severity", Reason: "unknown value"}
	}

	alertIDs := dedupeSorted(det.AlertIDs)
	regions := dedupeSorted(det.RegionCodes)

	if len(alertIDs) < spec.minAlerts {
		return Result{}, &alert.ValidationError{
			Field:  "alertIds",
			Reason: fmt.Sprintf("requires at least %d distinct alert ids", spec.minAlerts),
		}
	}
	if spec.minRegions > 0 && len(regions) < spec.minRegions {
		return Result{}, &alert.ValidationError{
			Field:  "regionCodes",
			Reason: fmt.Sprintf("requires at least %d distinct region codes", spec.minRegions),
		}
	}
	if spec.needsRegion && strings.TrimSpace(det.RegionCode) == "" {
		return Result{}, &alert.ValidationError{Field: "regionCode", Reason: "must not be empty"}
	}
	if spec.needsSeverity && det.Severity == "" {
		return Result{}, &alert.ValidationError{Field: "severity", Reason: "must not be empty"}
	}

	now := d.clock.Now()
	var key string
	switch spec.keying {
	case keyWindow:
		entity := det.RegionCode
		if !spec.needsRegion {
			entity = alertIDs[0]
		}
		key = WindowKey(det.Pattern, entity, now, time.Duration(det.WindowSeconds)*time.Second)
	case keyHour:
		key = HourKey(det.Pattern, now)
	case keyEvent:
		key = EventKey(det.Pattern, d.ids.NewID())
	}

	headline, severity := det.Headline, det.Severity
	if spec.singleAlert && (headline == "" || severity == "") {
		// A missing or unreadable alert degrades to placeholders; it
		// never aborts the notification.
		if a, err := d.alerts.GetAlert(ctx, alertIDs[0]); err == nil {
			if headline == "" {
				headline = a.Headline
			}
			if severity == "" {
				severity = a.Severity
			}
		} else {
			if headline == "" {
				headline = "Unknown Alert"
			}
			if severity == "" {
				severity = models.SeverityUnknown
			}
		}
	}

	var event *models.CorrelationEvent
	if spec.persist {
		event = &models.CorrelationEvent{
			ID:             d.ids.NewID(),
			PatternType:    det.Pattern,
			AlertIDs:       alertIDs,
			RegionCode:     det.RegionCode,
			Severity:       severity,
			Metadata:       det.Metadata,
			IdempotencyKey: key,
			CreatedAt:      now,
		}
		inserted, err := d.events.InsertEvent(ctx, event)
		if err != nil {
			return Result{}, fmt.Errorf("recording %s detection: %w", det.Pattern, err)
		}
		if !inserted {
			slog.Info("duplicate detection ignored", "pattern", det.Pattern, "key", key)
			return Result{IdempotencyKey: key, Duplicate: true}, nil
		}
	}

	d.publish(Notification{
		Pattern:        det.Pattern,
		AlertIDs:       alertIDs,
		RegionCode:     det.RegionCode,
		Severity:       severity,
		Headline:       headline,
		Metadata:       det.Metadata,
		DetectedAt:     now,
		IdempotencyKey: key,
	})
	slog.Info("pattern detection recorded", "pattern", det.Pattern, "key", key, "alerts", len(alertIDs))
	return Result{IdempotencyKey: key, Event: event}, nil
}

// publish is fire-and-forget; observers that cannot keep up miss the
// message.
func (d *Dispatcher) publish(n Notification) {
	if d.bus == nil {
		return
	}
	d.bus.Broadcast(dashboard.Message{EventType: "pattern.detected", Payload: n})
}

// dedupeSorted returns the distinct non-blank values in ascending order,
// so derived keys do not depend on the engine's reporting order.
func dedupeSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}
