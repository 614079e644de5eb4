package stores

import (
	"context"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreRequiresPath tests that a path is mandatory
func TestStoreRequiresPath(t *testing.T) {
	_, err := NewSQLiteStore(Config{})
	if err == nil {
		t.Error("expected error when creating store without a path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Check that tables exist by querying them
	tables := []string{"flags", "runs", "events"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// The issues column arrives with the second migration
	var count int
	err := store.db.QueryRowContext(ctx, "SELECT COUNT(issues) FROM runs").Scan(&count)
	if err != nil {
		t.Errorf("issues column is not accessible: %v", err)
	}
}

// TestFlagOperations tests flag set, get, overwrite, and removal
func TestFlagOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Absent flag
	_, ok, err := store.GetFlag(ctx, "plugin_fix_applied")
	if err != nil {
		t.Fatalf("failed to get flag: %v", err)
	}
	if ok {
		t.Error("expected flag to be absent")
	}

	// Set and read back
	if err := store.SetFlag(ctx, "plugin_fix_applied", "1"); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}

	value, ok, err := store.GetFlag(ctx, "plugin_fix_applied")
	if err != nil {
		t.Fatalf("failed to get flag: %v", err)
	}
	if !ok {
		t.Fatal("expected flag to be present")
	}
	if value != "1" {
		t.Errorf("expected value 1, got %s", value)
	}

	// Overwrite
	if err := store.SetFlag(ctx, "plugin_fix_applied", "0"); err != nil {
		t.Fatalf("failed to overwrite flag: %v", err)
	}

	value, _, err = store.GetFlag(ctx, "plugin_fix_applied")
	if err != nil {
		t.Fatalf("failed to get flag: %v", err)
	}
	if value != "0" {
		t.Errorf("expected value 0 after overwrite, got %s", value)
	}

	// List
	if err := store.SetFlag(ctx, "plugin_runtime_loaded", "1"); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}

	flags, err := store.ListFlags(ctx)
	if err != nil {
		t.Fatalf("failed to list flags: %v", err)
	}
	if len(flags) != 2 {
		t.Errorf("expected 2 flags, got %d", len(flags))
	}

	// Remove
	if err := store.RemoveFlag(ctx, "plugin_fix_applied"); err != nil {
		t.Fatalf("failed to remove flag: %v", err)
	}

	_, ok, err = store.GetFlag(ctx, "plugin_fix_applied")
	if err != nil {
		t.Fatalf("failed to get flag: %v", err)
	}
	if ok {
		t.Error("expected flag to be absent after removal")
	}

	// Removing an absent flag must stay quiet so gate resets are idempotent
	if err := store.RemoveFlag(ctx, "plugin_fix_applied"); err != nil {
		t.Errorf("expected removing an absent flag to succeed, got %v", err)
	}
}

// TestRunLifecycle tests run creation, completion, and listing
func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	run := &Run{
		ID:        "run-001",
		Source:    "fix",
		Status:    RunStatusRunning,
		Issues:    `[]`,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	retrieved, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}

	if retrieved.ID != run.ID {
		t.Errorf("expected ID %s, got %s", run.ID, retrieved.ID)
	}
	if retrieved.Source != run.Source {
		t.Errorf("expected Source %s, got %s", run.Source, retrieved.Source)
	}
	if retrieved.Status != RunStatusRunning {
		t.Errorf("expected Status %s, got %s", RunStatusRunning, retrieved.Status)
	}
	if retrieved.CompletedAt != nil {
		t.Error("expected CompletedAt to be unset for a running run")
	}

	// Complete with collected issues
	errMsg := "verification failed"
	issues := `["durable flag not set"]`
	if err := store.CompleteRun(ctx, run.ID, RunStatusFailed, issues, &errMsg); err != nil {
		t.Fatalf("failed to complete run: %v", err)
	}

	completed, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get completed run: %v", err)
	}

	if completed.Status != RunStatusFailed {
		t.Errorf("expected Status %s, got %s", RunStatusFailed, completed.Status)
	}
	if completed.Issues != issues {
		t.Errorf("expected Issues %s, got %s", issues, completed.Issues)
	}
	if completed.Error == nil || *completed.Error != errMsg {
		t.Errorf("expected Error %s, got %v", errMsg, completed.Error)
	}
	if completed.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	// Completing an unknown run must fail
	if err := store.CompleteRun(ctx, "run-missing", RunStatusSucceeded, `[]`, nil); err == nil {
		t.Error("expected error when completing unknown run")
	}
}

// TestListRunsOrdering tests that runs list newest first
func TestListRunsOrdering(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"run-old", "run-mid", "run-new"} {
		started := base.Add(time.Duration(i) * time.Minute)
		run := &Run{
			ID:        id,
			Source:    "watch",
			Status:    RunStatusSucceeded,
			Issues:    `[]`,
			StartedAt: started,
			CreatedAt: started,
			UpdatedAt: started,
		}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("failed to create run %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}

	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-new" || runs[1].ID != "run-mid" {
		t.Errorf("expected newest-first ordering, got %s, %s", runs[0].ID, runs[1].ID)
	}

	rest, err := store.ListRuns(ctx, 2, 2)
	if err != nil {
		t.Fatalf("failed to list runs with offset: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != "run-old" {
		t.Errorf("expected run-old at offset 2, got %d runs", len(rest))
	}
}

// TestEventOperations tests event append and filtered retrieval
func TestEventOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	// Events with a run_id need the run to exist
	run := &Run{
		ID:        "run-002",
		Source:    "fix",
		Status:    RunStatusRunning,
		Issues:    `[]`,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	details := `{"unit":"patch-engine"}`
	events := []*Event{
		{RunID: &run.ID, Level: EventLevelInfo, Message: "unit unloaded", Details: &details, Timestamp: now},
		{RunID: &run.ID, Level: EventLevelError, Message: "verify failed", Timestamp: now.Add(time.Second)},
		{Level: EventLevelInfo, Message: "watcher started", Timestamp: now.Add(2 * time.Second)},
	}

	for _, event := range events {
		if err := store.AppendEvent(ctx, event); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
		if event.ID == 0 {
			t.Error("expected event ID to be assigned")
		}
	}

	// All events
	all, err := store.GetEvents(ctx, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 events, got %d", len(all))
	}

	// Filter by run
	byRun, err := store.GetEvents(ctx, &run.ID, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events by run: %v", err)
	}
	if len(byRun) != 2 {
		t.Errorf("expected 2 events for run, got %d", len(byRun))
	}

	// Filter by level
	level := EventLevelError
	errored, err := store.GetEvents(ctx, nil, &level, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events by level: %v", err)
	}
	if len(errored) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(errored))
	}
	if errored[0].Message != "verify failed" {
		t.Errorf("expected message 'verify failed', got %s", errored[0].Message)
	}
}
