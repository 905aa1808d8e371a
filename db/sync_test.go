// ABOUTME: Tests for sync checkpoint and run audit database operations
// ABOUTME: Covers state upsert, run lifecycle, and the overlap guard query
package db

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stlnu/dealsync/models"
)

func TestGetSyncStateMissing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	state, err := GetSyncState(db, models.IntegrationDeals)
	if err != nil {
		t.Fatalf("GetSyncState failed: %v", err)
	}
	if state != nil {
		t.Error("Expected nil for never-synced integration")
	}
}

func TestSaveSyncStateUpsert(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	attempt := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	state := &models.SyncState{
		IntegrationName: models.IntegrationDeals,
		LastAttempt:     &attempt,
		LastCursor:      "cursor-1",
		CreatedAt:       time.Now().UTC(),
	}
	if err := SaveSyncState(db, state); err != nil {
		t.Fatalf("SaveSyncState failed: %v", err)
	}

	success := attempt.Add(time.Minute)
	state.LastSuccessfulSync = &success
	state.LastCursor = ""
	state.LastError = ""
	if err := SaveSyncState(db, state); err != nil {
		t.Fatalf("Second SaveSyncState failed: %v", err)
	}

	found, err := GetSyncState(db, models.IntegrationDeals)
	if err != nil {
		t.Fatalf("GetSyncState failed: %v", err)
	}
	if found == nil {
		t.Fatal("Expected state, got nil")
	}
	if found.LastSuccessfulSync == nil || !found.LastSuccessfulSync.Equal(success) {
		t.Errorf("Last success not round-tripped: %v", found.LastSuccessfulSync)
	}
	if found.LastCursor != "" {
		t.Errorf("Cursor should be cleared, got %q", found.LastCursor)
	}
}

func TestSyncRunLifecycle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	started := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	run := &models.SyncRun{
		ID:      ulid.Make().String(),
		Started: started,
		Status:  models.RunStarted,
	}
	if err := CreateSyncRun(db, run); err != nil {
		t.Fatalf("CreateSyncRun failed: %v", err)
	}

	finished := started.Add(30 * time.Second)
	run.Finished = &finished
	run.Status = models.RunSucceeded
	run.DealsFetched = 12
	run.DealsImported = 3
	run.DealsUpdated = 8
	run.DealsSkipped = 1
	if err := UpdateSyncRun(db, run); err != nil {
		t.Fatalf("UpdateSyncRun failed: %v", err)
	}

	runs, err := ListRecentRuns(db, 10)
	if err != nil {
		t.Fatalf("ListRecentRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.Status != models.RunSucceeded {
		t.Errorf("Expected Succeeded, got %s", got.Status)
	}
	if got.DealsFetched != 12 || got.DealsImported != 3 || got.DealsUpdated != 8 || got.DealsSkipped != 1 {
		t.Errorf("Counters not round-tripped: %+v", got)
	}
	if got.Finished == nil {
		t.Error("Finished timestamp missing")
	}
}

func TestSyncRunStatusConstraint(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	run := &models.SyncRun{
		ID:      ulid.Make().String(),
		Started: time.Now().UTC(),
		Status:  "Bogus",
	}
	if err := CreateSyncRun(db, run); err == nil {
		t.Error("Expected CHECK constraint violation for unknown status")
	}
}

func TestHasRunInStatusSince(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	old := &models.SyncRun{
		ID:      ulid.Make().String(),
		Started: now.Add(-3 * time.Hour),
		Status:  models.RunStarted,
	}
	recent := &models.SyncRun{
		ID:      ulid.Make().String(),
		Started: now.Add(-30 * time.Minute),
		Status:  models.RunSucceeded,
	}
	for _, run := range []*models.SyncRun{old, recent} {
		if err := CreateSyncRun(db, run); err != nil {
			t.Fatalf("CreateSyncRun failed: %v", err)
		}
	}

	cutoff := now.Add(-2 * time.Hour)

	busy, err := HasRunInStatusSince(db, models.RunStarted, cutoff)
	if err != nil {
		t.Fatalf("HasRunInStatusSince failed: %v", err)
	}
	if busy {
		t.Error("Stale Started run outside the cutoff should not count")
	}

	fresh := &models.SyncRun{
		ID:      ulid.Make().String(),
		Started: now.Add(-10 * time.Minute),
		Status:  models.RunStarted,
	}
	if err := CreateSyncRun(db, fresh); err != nil {
		t.Fatalf("CreateSyncRun failed: %v", err)
	}

	busy, err = HasRunInStatusSince(db, models.RunStarted, cutoff)
	if err != nil {
		t.Fatalf("HasRunInStatusSince failed: %v", err)
	}
	if !busy {
		t.Error("Recent Started run should count")
	}
}
