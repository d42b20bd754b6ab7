package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/alertwise/go-emergency-alerts/internal/alert"
	"github.com/alertwise/go-emergency-alerts/internal/clock"
	"github.com/alertwise/go-emergency-alerts/internal/identity"
	"github.com/alertwise/go-emergency-alerts/internal/models"
	"github.com/alertwise/go-emergency-alerts/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setupService(t *testing.T, workers, buffer int) (*Service, *repository.SQLiteDB, *clock.Fake) {
	t.Helper()
	db, err := repository.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fake := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(db, db, db, fake, identity.NewUUIDProvider(), workers, buffer)
	return svc, db, fake
}

func storeAlert(t *testing.T, db *repository.SQLiteDB, id string) {
	t.Helper()
	a, err := alert.New(alert.CreateInput{
		Headline:    "Coastal Flood Advisory",
		Description: "Minor tidal overflow expected",
		Severity:    models.SeverityModerate,
		Channel:     models.ChannelSMS,
		Areas: []models.Area{{
			Description: "waterfront",
			Polygon: []models.Point{
				{Longitude: 10, Latitude: 50},
				{Longitude: 11, Latitude: 50},
				{Longitude: 11, Latitude: 51},
				{Longitude: 10, Latitude: 50},
			},
		}},
		ExpiresAt: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
	}, id, "operator-1", time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("building alert: %v", err)
	}
	if err := db.CreateAlert(context.Background(), &a); err != nil {
		t.Fatalf("storing alert: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRecord_AppendsToLedger(t *testing.T) {
	svc, db, _ := setupService(t, 0, 1)
	ctx := context.Background()
	storeAlert(t, db, "alert-1")

	attempt, err := svc.Record(ctx, Report{
		AlertID:             "alert-1",
		Recipient:           "+15551230001",
		AttemptNumber:       1,
		Outcome:             models.OutcomeSuccess,
		ProviderOperationID: "op-789",
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if attempt.RecipientID == "" {
		t.Error("expected a resolved recipient id")
	}

	history, err := svc.History(ctx, "alert-1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(history))
	}
	if history[0].ProviderOperationID != "op-789" {
		t.Errorf("provider op id %q", history[0].ProviderOperationID)
	}
}

func TestRecord_ReusesRecipient(t *testing.T) {
	svc, db, _ := setupService(t, 0, 1)
	ctx := context.Background()
	storeAlert(t, db, "alert-1")

	first, err := svc.Record(ctx, Report{
		AlertID: "alert-1", Recipient: "+15551230001",
		AttemptNumber: 1, Outcome: models.OutcomeFailure, FailureReason: "no signal",
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	second, err := svc.Record(ctx, Report{
		AlertID: "alert-1", Recipient: " +15551230001 ",
		AttemptNumber: 2, Outcome: models.OutcomeSuccess,
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if first.RecipientID != second.RecipientID {
		t.Errorf("same address resolved to different recipients: %q vs %q",
			first.RecipientID, second.RecipientID)
	}
}

func TestRecord_UnknownAlert(t *testing.T) {
	svc, _, _ := setupService(t, 0, 1)

	_, err := svc.Record(context.Background(), Report{
		AlertID: "missing", Recipient: "+15551230001",
		AttemptNumber: 1, Outcome: models.OutcomeSuccess,
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecord_Validation(t *testing.T) {
	tests := []struct {
		name  string
		rep   Report
		field string
	}{
		{"blank alert id", Report{Recipient: "r", AttemptNumber: 1, Outcome: models.OutcomeSuccess}, "alertId"},
		{"blank recipient", Report{AlertID: "a", AttemptNumber: 1, Outcome: models.OutcomeSuccess}, "recipient"},
		{"zero attempt number", Report{AlertID: "a", Recipient: "r", Outcome: models.OutcomeSuccess}, "attemptNumber"},
		{"bad outcome", Report{AlertID: "a", Recipient: "r", AttemptNumber: 1, Outcome: "MAYBE"}, "outcome"},
	}

	svc, _, _ := setupService(t, 0, 1)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Record(context.Background(), tt.rep)
			var verr *alert.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}

func TestStats_TrailingWindow(t *testing.T) {
	svc, db, fake := setupService(t, 0, 1)
	ctx := context.Background()
	storeAlert(t, db, "alert-1")

	if _, err := svc.Record(ctx, Report{
		AlertID: "alert-1", Recipient: "r1", AttemptNumber: 1, Outcome: models.OutcomeSuccess,
	}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	fake.Advance(2 * time.Hour)
	if _, err := svc.Record(ctx, Report{
		AlertID: "alert-1", Recipient: "r2", AttemptNumber: 1,
		Outcome: models.OutcomeFailure, FailureReason: "timeout",
	}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	recent, err := svc.Stats(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if recent.SuccessCount != 0 || recent.FailureCount != 1 {
		t.Errorf("1h window: got %+v", recent)
	}

	wide, err := svc.Stats(ctx, 3*time.Hour)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if wide.SuccessCount != 1 || wide.FailureCount != 1 {
		t.Errorf("3h window: got %+v", wide)
	}
}

func TestConsecutiveFailures(t *testing.T) {
	svc, db, fake := setupService(t, 0, 1)
	ctx := context.Background()
	storeAlert(t, db, "alert-1")

	outcomes := []models.DeliveryOutcome{
		models.OutcomeFailure,
		models.OutcomeSuccess,
		models.OutcomeFailure,
		models.OutcomeFailure,
	}
	for i, outcome := range outcomes {
		rep := Report{AlertID: "alert-1", Recipient: "r1", AttemptNumber: i + 1, Outcome: outcome}
		if outcome == models.OutcomeFailure {
			rep.FailureReason = "carrier rejected"
		}
		if _, err := svc.Record(ctx, rep); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		fake.Advance(time.Minute)
	}

	n, err := svc.ConsecutiveFailures(ctx, "alert-1")
	if err != nil {
		t.Fatalf("ConsecutiveFailures failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 consecutive failures, got %d", n)
	}
}

func TestEnqueue_RecordsInBackground(t *testing.T) {
	svc, db, _ := setupService(t, 2, 16)
	ctx, cancel := context.WithCancel(context.Background())
	storeAlert(t, db, "alert-1")

	svc.Start(ctx)
	defer func() {
		cancel()
		svc.Stop()
	}()

	if err := svc.Enqueue(Report{
		AlertID: "alert-1", Recipient: "+15551230001",
		AttemptNumber: 1, Outcome: models.OutcomeSuccess,
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		history, err := svc.History(context.Background(), "alert-1")
		return err == nil && len(history) == 1
	})
}

func TestEnqueue_ValidatesSynchronously(t *testing.T) {
	svc, _, _ := setupService(t, 0, 1)

	err := svc.Enqueue(Report{Recipient: "r", AttemptNumber: 1, Outcome: models.OutcomeSuccess})
	var verr *alert.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestEnqueue_RefusesWhenSaturated(t *testing.T) {
	// No workers started, so the single buffer slot never drains.
	svc, db, _ := setupService(t, 0, 1)
	storeAlert(t, db, "alert-1")

	rep := Report{AlertID: "alert-1", Recipient: "r", AttemptNumber: 1, Outcome: models.OutcomeSuccess}
	if err := svc.Enqueue(rep); err != nil {
		t.Fatalf("first Enqueue failed: %v", err)
	}
	if err := svc.Enqueue(rep); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}
