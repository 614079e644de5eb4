package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/replug/replug/pkg/telemetry"
)

// newWatchedFiles creates a config and manifest on disk and returns their
// paths. Files exist before the watcher starts so tests only see edit
// events.
func newWatchedFiles(t *testing.T) (string, string) {
	t.Helper()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "plugind.conf")
	manifestPath := filepath.Join(dir, "plugins.list")
	if err := os.WriteFile(configPath, []byte("PLUGIN_LOADER_ENABLED=1\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if err := os.WriteFile(manifestPath, []byte("ux0:plugins/patch-engine.wasm\n"), 0o644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	return configPath, manifestPath
}

func startWatcher(t *testing.T, configPath, manifestPath string) (*Watcher, chan string) {
	t.Helper()

	w, err := NewWatcher(configPath, manifestPath, 100*time.Millisecond, telemetry.NewNopLogger())
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(func() { _ = w.Close() })

	reasons := make(chan string, 8)
	if err := w.Start(ctx, func(reason string) { reasons <- reason }); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}

	return w, reasons
}

func expectReason(t *testing.T, reasons chan string, want string) {
	t.Helper()

	select {
	case got := <-reasons:
		if got != want {
			t.Fatalf("Expected reason %q, got %q", want, got)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Expected a %q trigger, got none", want)
	}
}

func expectQuiet(t *testing.T, reasons chan string) {
	t.Helper()

	select {
	case got := <-reasons:
		t.Fatalf("Expected no trigger, got %q", got)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcherConfigChange(t *testing.T) {
	configPath, manifestPath := newWatchedFiles(t)
	_, reasons := startWatcher(t, configPath, manifestPath)

	if err := os.WriteFile(configPath, []byte("SAFE_MODE=1\n"), 0o644); err != nil {
		t.Fatalf("Failed to edit config: %v", err)
	}

	expectReason(t, reasons, "config")
}

func TestWatcherManifestChange(t *testing.T) {
	configPath, manifestPath := newWatchedFiles(t)
	_, reasons := startWatcher(t, configPath, manifestPath)

	if err := os.WriteFile(manifestPath, []byte("ur0:plugins/extra.suprx\n"), 0o644); err != nil {
		t.Fatalf("Failed to edit manifest: %v", err)
	}

	expectReason(t, reasons, "manifest")
}

func TestWatcherBurstCoalesced(t *testing.T) {
	configPath, manifestPath := newWatchedFiles(t)
	_, reasons := startWatcher(t, configPath, manifestPath)

	if err := os.WriteFile(configPath, []byte("SAFE_MODE=1\n"), 0o644); err != nil {
		t.Fatalf("Failed to edit config: %v", err)
	}
	if err := os.WriteFile(manifestPath, []byte("ur0:plugins/extra.suprx\n"), 0o644); err != nil {
		t.Fatalf("Failed to edit manifest: %v", err)
	}

	expectReason(t, reasons, "config+manifest")
	expectQuiet(t, reasons)
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	configPath, manifestPath := newWatchedFiles(t)
	_, reasons := startWatcher(t, configPath, manifestPath)

	sibling := filepath.Join(filepath.Dir(configPath), "notes.txt")
	if err := os.WriteFile(sibling, []byte("unrelated\n"), 0o644); err != nil {
		t.Fatalf("Failed to write sibling: %v", err)
	}

	expectQuiet(t, reasons)
}

func TestWatcherAtomicReplace(t *testing.T) {
	configPath, manifestPath := newWatchedFiles(t)
	_, reasons := startWatcher(t, configPath, manifestPath)

	// Editors save through a temp file followed by a rename over the
	// target.
	tmp := configPath + ".tmp"
	if err := os.WriteFile(tmp, []byte("SAFE_MODE=1\n"), 0o644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	if err := os.Rename(tmp, configPath); err != nil {
		t.Fatalf("Failed to rename over config: %v", err)
	}

	expectReason(t, reasons, "config")
}

func TestWatcherHealthyLifecycle(t *testing.T) {
	configPath, manifestPath := newWatchedFiles(t)
	w, err := NewWatcher(configPath, manifestPath, 100*time.Millisecond, telemetry.NewNopLogger())
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}

	if err := w.Healthy(); err == nil {
		t.Error("Expected an unhealthy watcher before start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx, func(string) {}); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	if err := w.Healthy(); err != nil {
		t.Errorf("Expected a healthy watcher after start, got %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close watcher: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for w.Healthy() == nil {
		if time.Now().After(deadline) {
			t.Fatal("Expected the watch loop to stop after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcherStartTwice(t *testing.T) {
	configPath, manifestPath := newWatchedFiles(t)
	w, _ := startWatcher(t, configPath, manifestPath)

	if err := w.Start(context.Background(), func(string) {}); err == nil {
		t.Error("Expected a second start to fail")
	}
}

func TestWatcherMissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent")
	w, err := NewWatcher(
		filepath.Join(missing, "plugind.conf"),
		filepath.Join(missing, "plugins.list"),
		100*time.Millisecond,
		telemetry.NewNopLogger(),
	)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}

	if err := w.Start(context.Background(), func(string) {}); err == nil {
		t.Error("Expected start to fail for a missing directory")
	}
}

func TestNewWatcherValidation(t *testing.T) {
	if _, err := NewWatcher("", "plugins.list", 0, telemetry.NewNopLogger()); err == nil {
		t.Error("Expected an error for a missing config path")
	}
	if _, err := NewWatcher("plugind.conf", "", 0, telemetry.NewNopLogger()); err == nil {
		t.Error("Expected an error for a missing manifest path")
	}
}
