// Package expiry retires overdue alerts. Expiry has no external actor,
// so a background sweeper supplies one: it scans for alerts past their
// deadline and drives them to Expired through the same coordinator path
// every other mutation takes.
package expiry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alertwise/go-emergency-alerts/internal/alert"
	"github.com/alertwise/go-emergency-alerts/internal/approval"
	"github.com/alertwise/go-emergency-alerts/internal/clock"
	"github.com/alertwise/go-emergency-alerts/internal/repository"
)

type Sweeper struct {
	coord     *approval.Coordinator
	alerts    repository.AlertRepository
	clock     clock.Clock
	interval  time.Duration
	batchSize int
	wg        sync.WaitGroup
}

func NewSweeper(coord *approval.Coordinator, alerts repository.AlertRepository, clk clock.Clock, interval time.Duration, batchSize int) *Sweeper {
	return &Sweeper{
		coord:     coord,
		alerts:    alerts,
		clock:     clk,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()
	slog.Info("starting expiry sweeper", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial sweep so a restart does not wait out a full interval.
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("expiry sweeper shutting down")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	ids, err := s.alerts.ListExpirableAlerts(ctx, s.clock.Now(), s.batchSize)
	if err != nil {
		slog.Error("expiry scan failed", "error", err)
		return
	}

	var expired int
	for _, id := range ids {
		if _, err := s.coord.Expire(ctx, id); err != nil {
			// Another writer may finish the alert between the scan and
			// the expire; losing that race is not a failure.
			if errors.Is(err, repository.ErrVersionMismatch) || errors.Is(err, repository.ErrNotFound) {
				continue
			}
			var terr *alert.TransitionError
			if errors.As(err, &terr) {
				continue
			}
			slog.Error("failed to expire alert", "alert_id", id, "error", err)
			continue
		}
		expired++
	}

	if expired > 0 {
		slog.Info("expired overdue alerts", "count", expired)
	}
}

// Stop waits for the sweep loop to observe context cancellation.
func (s *Sweeper) Stop() {
	s.wg.Wait()
	slog.Info("expiry sweeper stopped")
}
