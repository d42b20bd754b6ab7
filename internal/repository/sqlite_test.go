package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alertwise/go-emergency-alerts/internal/models"
)

func setupTestDB(t *testing.T) *SQLiteDB {
	db, err := NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	return db
}

func testAlert(id string, status models.AlertStatus, now time.Time) *models.Alert {
	return &models.Alert{
		ID:          id,
		Headline:    "Test Flood Warning",
		Description: "Rising water levels",
		Severity:    models.SeveritySevere,
		Channel:     models.ChannelSMS,
		Status:      status,
		Areas: []models.Area{{
			Description: "river basin",
			Polygon: []models.Point{
				{Longitude: 0, Latitude: 0},
				{Longitude: 1, Latitude: 0},
				{Longitude: 1, Latitude: 1},
				{Longitude: 0, Latitude: 0},
			},
			RegionCode: "R1",
		}},
		ExpiresAt: now.Add(2 * time.Hour),
		CreatedBy: "operator-1",
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQLiteDB_CreateAndGetAlert(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	a := testAlert("alert_1", models.StatusPendingApproval, now)
	if err := db.CreateAlert(ctx, a); err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}

	got, err := db.GetAlert(ctx, "alert_1")
	if err != nil {
		t.Fatalf("GetAlert failed: %v", err)
	}
	if got.Headline != "Test Flood Warning" {
		t.Errorf("expected headline 'Test Flood Warning', got '%s'", got.Headline)
	}
	if got.Status != models.StatusPendingApproval {
		t.Errorf("expected status PENDING_APPROVAL, got %s", got.Status)
	}
	if got.Version != 1 {
		t.Errorf("expected version 1, got %d", got.Version)
	}
	if len(got.Areas) != 1 || len(got.Areas[0].Polygon) != 4 {
		t.Errorf("areas did not survive the round trip: %+v", got.Areas)
	}
	if got.Areas[0].RegionCode != "R1" {
		t.Errorf("expected region code 'R1', got '%s'", got.Areas[0].RegionCode)
	}
}

func TestSQLiteDB_GetAlert_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	_, err := db.GetAlert(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteDB_ListAlerts_Filters(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	pending := testAlert("a1", models.StatusPendingApproval, now)
	approved := testAlert("a2", models.StatusApproved, now.Add(time.Second))
	approved.Headline = "Wildfire Evacuation"
	rejected := testAlert("a3", models.StatusRejected, now.Add(2*time.Second))

	for _, a := range []*models.Alert{pending, approved, rejected} {
		if err := db.CreateAlert(ctx, a); err != nil {
			t.Fatalf("CreateAlert failed: %v", err)
		}
	}

	status := models.StatusApproved
	results, err := db.ListAlerts(ctx, AlertFilter{Status: &status})
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a2" {
		t.Errorf("expected only a2 for status filter, got %+v", results)
	}

	results, err = db.ListAlerts(ctx, AlertFilter{Search: "wildfire"})
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a2" {
		t.Errorf("expected only a2 for search filter, got %d results", len(results))
	}

	results, err = db.ListAlerts(ctx, AlertFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 alerts with limit, got %d", len(results))
	}

	results, err = db.ListAlerts(ctx, AlertFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 alert at offset 2, got %d", len(results))
	}
}

func TestSQLiteDB_UpdateAlert_VersionAdvances(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	a := testAlert("alert_1", models.StatusPendingApproval, now)
	db.CreateAlert(ctx, a)

	a.Status = models.StatusApproved
	a.ApproverID = "approver-1"
	a.UpdatedAt = now.Add(time.Second)

	if err := db.UpdateAlert(ctx, a, 1); err != nil {
		t.Fatalf("UpdateAlert failed: %v", err)
	}
	if a.Version != 2 {
		t.Errorf("expected version 2 after update, got %d", a.Version)
	}

	got, err := db.GetAlert(ctx, "alert_1")
	if err != nil {
		t.Fatalf("GetAlert failed: %v", err)
	}
	if got.Status != models.StatusApproved {
		t.Errorf("expected APPROVED, got %s", got.Status)
	}
	if got.Version != 2 {
		t.Errorf("expected persisted version 2, got %d", got.Version)
	}
	if got.ApproverID != "approver-1" {
		t.Errorf("expected approver recorded, got '%s'", got.ApproverID)
	}
}

func TestSQLiteDB_UpdateAlert_StaleVersionLoses(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	a := testAlert("alert_1", models.StatusPendingApproval, now)
	db.CreateAlert(ctx, a)

	first := *a
	first.Status = models.StatusApproved
	first.UpdatedAt = now.Add(time.Second)
	if err := db.UpdateAlert(ctx, &first, 1); err != nil {
		t.Fatalf("first UpdateAlert failed: %v", err)
	}

	// Second writer still holds version 1.
	second := *a
	second.Status = models.StatusRejected
	second.UpdatedAt = now.Add(2 * time.Second)
	err := db.UpdateAlert(ctx, &second, 1)
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}

	// The first writer's state must be untouched.
	got, _ := db.GetAlert(ctx, "alert_1")
	if got.Status != models.StatusApproved {
		t.Errorf("loser overwrote winner: status %s", got.Status)
	}
	if got.Version != 2 {
		t.Errorf("expected version 2, got %d", got.Version)
	}
}

func TestSQLiteDB_UpdateAlert_Missing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	a := testAlert("ghost", models.StatusApproved, time.Now().UTC())
	err := db.UpdateAlert(context.Background(), a, 1)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteDB_ListExpirableAlerts(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	overdue := testAlert("overdue", models.StatusPendingApproval, now.Add(-3*time.Hour))
	overdue.ExpiresAt = now.Add(-time.Hour)
	fresh := testAlert("fresh", models.StatusPendingApproval, now)
	terminal := testAlert("done", models.StatusCancelled, now.Add(-3*time.Hour))
	terminal.ExpiresAt = now.Add(-time.Hour)

	for _, a := range []*models.Alert{overdue, fresh, terminal} {
		if err := db.CreateAlert(ctx, a); err != nil {
			t.Fatalf("CreateAlert failed: %v", err)
		}
	}

	ids, err := db.ListExpirableAlerts(ctx, now, 10)
	if err != nil {
		t.Fatalf("ListExpirableAlerts failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "overdue" {
		t.Errorf("expected only 'overdue', got %v", ids)
	}
}

func TestSQLiteDB_AppendAndListAttempts(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	attempts := []*models.DeliveryAttempt{
		{ID: "at2", AlertID: "alert_1", RecipientID: "r1", AttemptNumber: 2, Outcome: models.OutcomeSuccess, ProviderOperationID: "op-2", AttemptedAt: now.Add(time.Minute)},
		{ID: "at1", AlertID: "alert_1", RecipientID: "r1", AttemptNumber: 1, Outcome: models.OutcomeFailure, FailureReason: "timeout", AttemptedAt: now},
		{ID: "other", AlertID: "alert_2", RecipientID: "r2", AttemptNumber: 1, Outcome: models.OutcomeSuccess, AttemptedAt: now},
	}
	for _, at := range attempts {
		if err := db.AppendAttempt(ctx, at); err != nil {
			t.Fatalf("AppendAttempt failed: %v", err)
		}
	}

	got, err := db.ListAttempts(ctx, "alert_1")
	if err != nil {
		t.Fatalf("ListAttempts failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(got))
	}
	// Ordered by time ascending.
	if got[0].ID != "at1" || got[1].ID != "at2" {
		t.Errorf("expected time-ordered attempts, got %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].FailureReason != "timeout" {
		t.Errorf("expected failure reason 'timeout', got '%s'", got[0].FailureReason)
	}
}

func TestSQLiteDB_ConsecutiveFailures(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	seq := []struct {
		id      string
		outcome models.DeliveryOutcome
	}{
		{"s1", models.OutcomeFailure},
		{"s2", models.OutcomeSuccess},
		{"s3", models.OutcomeFailure},
		{"s4", models.OutcomeFailure},
		{"s5", models.OutcomeFailure},
	}
	for i, s := range seq {
		err := db.AppendAttempt(ctx, &models.DeliveryAttempt{
			ID: s.id, AlertID: "alert_1", RecipientID: "r1",
			AttemptNumber: i + 1, Outcome: s.outcome,
			AttemptedAt: now.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("AppendAttempt failed: %v", err)
		}
	}

	count, err := db.ConsecutiveFailures(ctx, "alert_1")
	if err != nil {
		t.Fatalf("ConsecutiveFailures failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 consecutive failures, got %d", count)
	}

	// Alert with no successes counts all failures.
	db.AppendAttempt(ctx, &models.DeliveryAttempt{
		ID: "n1", AlertID: "alert_2", RecipientID: "r1",
		AttemptNumber: 1, Outcome: models.OutcomeFailure, AttemptedAt: now,
	})
	count, err = db.ConsecutiveFailures(ctx, "alert_2")
	if err != nil {
		t.Fatalf("ConsecutiveFailures failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 consecutive failure, got %d", count)
	}
}

func TestSQLiteDB_OutcomeCounts(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	attempts := []*models.DeliveryAttempt{
		{ID: "w1", AlertID: "a", RecipientID: "r", AttemptNumber: 1, Outcome: models.OutcomeSuccess, AttemptedAt: now.Add(-10 * time.Minute)},
		{ID: "w2", AlertID: "a", RecipientID: "r", AttemptNumber: 2, Outcome: models.OutcomeFailure, AttemptedAt: now.Add(-5 * time.Minute)},
		{ID: "w3", AlertID: "b", RecipientID: "r", AttemptNumber: 1, Outcome: models.OutcomeSuccess, AttemptedAt: now.Add(-time.Minute)},
		{ID: "old", AlertID: "c", RecipientID: "r", AttemptNumber: 1, Outcome: models.OutcomeFailure, AttemptedAt: now.Add(-2 * time.Hour)},
	}
	for _, at := range attempts {
		if err := db.AppendAttempt(ctx, at); err != nil {
			t.Fatalf("AppendAttempt failed: %v", err)
		}
	}

	stats, err := db.OutcomeCounts(ctx, now.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("OutcomeCounts failed: %v", err)
	}
	if stats.SuccessCount != 2 {
		t.Errorf("expected 2 successes in window, got %d", stats.SuccessCount)
	}
	if stats.FailureCount != 1 {
		t.Errorf("expected 1 failure in window, got %d", stats.FailureCount)
	}
}

func TestSQLiteDB_InsertEvent_FirstWins(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	e := &models.CorrelationEvent{
		ID:             "ev1",
		PatternType:    models.PatternGeographicCluster,
		AlertIDs:       []string{"a1", "a2"},
		RegionCode:     "R1",
		Severity:       models.SeveritySevere,
		Metadata:       `{"clusterRadiusKm":25}`,
		IdempotencyKey: "GEOGRAPHIC_CLUSTER:a1:1700000000",
		CreatedAt:      now,
	}

	inserted, err := db.InsertEvent(ctx, e)
	if err != nil {
		t.Fatalf("InsertEvent failed: %v", err)
	}
	if !inserted {
		t.Fatal("expected first insert to win")
	}

	// Same key, different id: must be a no-op.
	dup := *e
	dup.ID = "ev2"
	inserted, err = db.InsertEvent(ctx, &dup)
	if err != nil {
		t.Fatalf("duplicate InsertEvent failed: %v", err)
	}
	if inserted {
		t.Error("expected duplicate insert to report false")
	}

	got, err := db.GetEventByKey(ctx, e.IdempotencyKey)
	if err != nil {
		t.Fatalf("GetEventByKey failed: %v", err)
	}
	if got.ID != "ev1" {
		t.Errorf("expected the first writer's row, got %s", got.ID)
	}
	if len(got.AlertIDs) != 2 {
		t.Errorf("alert ids did not survive the round trip: %v", got.AlertIDs)
	}
}

func TestSQLiteDB_InsertEvent_ConcurrentSameKey(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	var wins atomic.Int32

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			inserted, err := db.InsertEvent(ctx, &models.CorrelationEvent{
				ID:             fmt.Sprintf("ev%d", n),
				PatternType:    models.PatternDuplicateSuppression,
				AlertIDs:       []string{"a1", "a2"},
				IdempotencyKey: "DUPLICATE_SUPPRESSION:a1:1700000000",
				CreatedAt:      now,
			})
			if err != nil {
				t.Errorf("InsertEvent failed: %v", err)
				return
			}
			if inserted {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly 1 winning insert, got %d", wins.Load())
	}

	events, err := db.ListRecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecentEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 persisted event, got %d", len(events))
	}
}

func TestSQLiteDB_InsertEvent_EmptyAlertSet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	e := &models.CorrelationEvent{
		ID:             "ev1",
		PatternType:    models.PatternApproverWorkload,
		IdempotencyKey: "APPROVER_WORKLOAD:1700000000",
		CreatedAt:      time.Now().UTC(),
	}

	inserted, err := db.InsertEvent(ctx, e)
	if err != nil || !inserted {
		t.Fatalf("InsertEvent failed: inserted=%v err=%v", inserted, err)
	}

	got, err := db.GetEventByKey(ctx, e.IdempotencyKey)
	if err != nil {
		t.Fatalf("GetEventByKey failed: %v", err)
	}
	if len(got.AlertIDs) != 0 {
		t.Errorf("expected empty alert set, got %v", got.AlertIDs)
	}
}

func TestSQLiteDB_ListRecentEvents(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		db.InsertEvent(ctx, &models.CorrelationEvent{
			ID:             "ev" + string(rune('a'+i)),
			PatternType:    models.PatternSLABreach,
			AlertIDs:       []string{"a1"},
			IdempotencyKey: "SLA_BREACH:a1:" + string(rune('a'+i)),
			CreatedAt:      now.Add(time.Duration(i) * time.Second),
		})
	}

	events, err := db.ListRecentEvents(ctx, 3)
	if err != nil {
		t.Fatalf("ListRecentEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	// Newest first.
	if events[0].ID != "eve" {
		t.Errorf("expected newest event first, got %s", events[0].ID)
	}
}

func TestSQLiteDB_GetOrCreateRecipient(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	r1, err := db.GetOrCreateRecipient(ctx, "ops@example.com", "rec-1", now)
	if err != nil {
		t.Fatalf("GetOrCreateRecipient failed: %v", err)
	}
	if r1.ID != "rec-1" {
		t.Errorf("expected id rec-1, got %s", r1.ID)
	}

	// Second call with a fresh candidate id returns the existing row.
	r2, err := db.GetOrCreateRecipient(ctx, "ops@example.com", "rec-2", now.Add(time.Second))
	if err != nil {
		t.Fatalf("GetOrCreateRecipient failed: %v", err)
	}
	if r2.ID != "rec-1" {
		t.Errorf("expected existing id rec-1, got %s", r2.ID)
	}
}
