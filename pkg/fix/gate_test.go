package fix

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/replug/replug/pkg/stores"
	"github.com/replug/replug/pkg/telemetry"
)

// newTestStore opens a migrated SQLite store on a throwaway file.
func newTestStore(t *testing.T) *stores.SQLiteStore {
	t.Helper()

	store, err := stores.NewSQLiteStore(stores.Config{
		Path: filepath.Join(t.TempDir(), "replug.db"),
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

// flagStoreFault wraps a flag store and fails reads on demand.
type flagStoreFault struct {
	stores.FlagStore
	failGet bool
}

func (f *flagStoreFault) GetFlag(ctx context.Context, key string) (string, bool, error) {
	if f.failGet {
		return "", false, fmt.Errorf("flag backend offline")
	}
	return f.FlagStore.GetFlag(ctx, key)
}

func newTestGate(t *testing.T) (*Gate, *stores.SQLiteStore, *stores.SessionStore) {
	t.Helper()
	durable := newTestStore(t)
	session := stores.NewSessionStore()
	return NewGate(durable, session, telemetry.NewNopLogger()), durable, session
}

func TestGateLifecycle(t *testing.T) {
	gate, _, _ := newTestGate(t)
	ctx := context.Background()

	should, err := gate.ShouldRun(ctx)
	if err != nil {
		t.Fatalf("Failed to query fresh gate: %v", err)
	}
	if !should {
		t.Error("Expected a fresh gate to allow the fix")
	}

	if err := gate.MarkApplied(ctx); err != nil {
		t.Fatalf("Failed to mark applied: %v", err)
	}
	should, err = gate.ShouldRun(ctx)
	if err != nil {
		t.Fatalf("Failed to query marked gate: %v", err)
	}
	if should {
		t.Error("Expected a marked gate to suppress the fix")
	}

	if err := gate.Reset(ctx); err != nil {
		t.Fatalf("Failed to reset gate: %v", err)
	}
	should, err = gate.ShouldRun(ctx)
	if err != nil {
		t.Fatalf("Failed to query reset gate: %v", err)
	}
	if !should {
		t.Error("Expected a reset gate to allow the fix again")
	}
}

// Either tier alone must suppress the fix: the durable flag covers
// reboots, the session flag covers restarts within one boot.
func TestGateSuppressionPerTier(t *testing.T) {
	ctx := context.Background()

	gate, durable, _ := newTestGate(t)
	if err := durable.SetFlag(ctx, FlagFixApplied, "1"); err != nil {
		t.Fatalf("Failed to set durable flag: %v", err)
	}
	if should, _ := gate.ShouldRun(ctx); should {
		t.Error("Expected the durable flag alone to suppress the fix")
	}

	gate, _, session := newTestGate(t)
	if err := session.SetFlag(ctx, FlagFixApplied, "1"); err != nil {
		t.Fatalf("Failed to set session flag: %v", err)
	}
	if should, _ := gate.ShouldRun(ctx); should {
		t.Error("Expected the session flag alone to suppress the fix")
	}
}

func TestGateIgnoresLoweredFlag(t *testing.T) {
	gate, durable, session := newTestGate(t)
	ctx := context.Background()

	if err := durable.SetFlag(ctx, FlagFixApplied, "0"); err != nil {
		t.Fatalf("Failed to set durable flag: %v", err)
	}
	if err := session.SetFlag(ctx, FlagFixApplied, "0"); err != nil {
		t.Fatalf("Failed to set session flag: %v", err)
	}

	should, err := gate.ShouldRun(ctx)
	if err != nil {
		t.Fatalf("Failed to query gate: %v", err)
	}
	if !should {
		t.Error("Expected lowered flags to leave the gate open")
	}
}

func TestMarkAppliedRaisesBothTiers(t *testing.T) {
	gate, durable, session := newTestGate(t)
	ctx := context.Background()

	if err := gate.MarkApplied(ctx); err != nil {
		t.Fatalf("Failed to mark applied: %v", err)
	}

	value, ok, err := durable.GetFlag(ctx, FlagFixApplied)
	if err != nil || !ok || value != "1" {
		t.Errorf("Expected durable flag raised, got value=%q ok=%v err=%v", value, ok, err)
	}
	value, ok, err = session.GetFlag(ctx, FlagFixApplied)
	if err != nil || !ok || value != "1" {
		t.Errorf("Expected session flag raised, got value=%q ok=%v err=%v", value, ok, err)
	}
}

func TestMarkRuntimeLoadedIsSessionScoped(t *testing.T) {
	gate, durable, session := newTestGate(t)
	ctx := context.Background()

	if err := gate.MarkRuntimeLoaded(ctx); err != nil {
		t.Fatalf("Failed to mark runtime loaded: %v", err)
	}

	if _, ok, _ := session.GetFlag(ctx, FlagRuntimeLoaded); !ok {
		t.Error("Expected runtime-loaded signal in the session store")
	}
	if _, ok, _ := durable.GetFlag(ctx, FlagRuntimeLoaded); ok {
		t.Error("Expected no runtime-loaded signal in the durable store")
	}
}

func TestResetDropsRuntimeLoadedSignal(t *testing.T) {
	gate, _, session := newTestGate(t)
	ctx := context.Background()

	if err := gate.MarkApplied(ctx); err != nil {
		t.Fatalf("Failed to mark applied: %v", err)
	}
	if err := gate.MarkRuntimeLoaded(ctx); err != nil {
		t.Fatalf("Failed to mark runtime loaded: %v", err)
	}

	if err := gate.Reset(ctx); err != nil {
		t.Fatalf("Failed to reset gate: %v", err)
	}

	if _, ok, _ := session.GetFlag(ctx, FlagFixApplied); ok {
		t.Error("Expected reset to clear the session applied flag")
	}
	if _, ok, _ := session.GetFlag(ctx, FlagRuntimeLoaded); ok {
		t.Error("Expected reset to drop the runtime-loaded signal")
	}
}

func TestResetIsIdempotent(t *testing.T) {
	gate, _, _ := newTestGate(t)
	ctx := context.Background()

	if err := gate.Reset(ctx); err != nil {
		t.Fatalf("Failed to reset a clear gate: %v", err)
	}
	if err := gate.Reset(ctx); err != nil {
		t.Fatalf("Failed to reset twice: %v", err)
	}
}

// An unreadable gate answers true: suppression requires positive evidence.
func TestShouldRunDegradesOnStoreFault(t *testing.T) {
	durable := &flagStoreFault{FlagStore: newTestStore(t), failGet: true}
	gate := NewGate(durable, stores.NewSessionStore(), telemetry.NewNopLogger())

	should, err := gate.ShouldRun(context.Background())
	if err == nil {
		t.Fatal("Expected an error from an unreadable gate")
	}
	if !IsOpenFailure(err) {
		t.Errorf("Expected an open failure, got %v", err)
	}
	if !should {
		t.Error("Expected an unreadable gate to answer true")
	}
}

// A faulted tier only degrades itself: the healthy tier still suppresses,
// and the fault still surfaces for the caller to itemize.
func TestShouldRunFaultedTierDoesNotMaskTheOther(t *testing.T) {
	ctx := context.Background()
	durable := &flagStoreFault{FlagStore: newTestStore(t), failGet: true}
	session := stores.NewSessionStore()
	if err := session.SetFlag(ctx, FlagFixApplied, "1"); err != nil {
		t.Fatalf("Failed to set session flag: %v", err)
	}
	gate := NewGate(durable, session, telemetry.NewNopLogger())

	should, err := gate.ShouldRun(ctx)
	if should {
		t.Error("Expected the session flag to suppress despite the durable fault")
	}
	if !IsOpenFailure(err) {
		t.Errorf("Expected the durable fault to surface, got %v", err)
	}
}
