package commands

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/replug/replug/pkg/advisor"
	"github.com/replug/replug/pkg/catalog"
	"github.com/replug/replug/pkg/telemetry"
)

// emptyWasm is a complete WebAssembly module with no sections.
var emptyWasm = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// runCommand executes the CLI root with the given arguments. Each call
// rebuilds the command tree, which resets the package-level flag state.
func runCommand(t *testing.T, args ...string) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cmd := newRootCommand("test", "none", "today")
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// seedTargets writes a canonical config and a manifest into a temp dir.
func seedTargets(t *testing.T) (string, string) {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "plugind.conf")
	manPath := filepath.Join(dir, "plugins.list")

	doc := advisor.New(telemetry.NewNopLogger()).BuildCanonical()
	if err := os.WriteFile(cfgPath, doc.Serialize(), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if err := os.WriteFile(manPath, []byte("[plugins]\nux0:plugins/patch-engine.wasm\n"), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return cfgPath, manPath
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := newRootCommand("1.2.3", "abcdef", "2026-01-01")

	want := map[string]bool{
		"fix": false, "reapply": false, "report": false,
		"validate": false, "watch": false, "titles": false,
	}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %s not registered", name)
		}
	}

	if !strings.Contains(cmd.Version, "abcdef") {
		t.Errorf("version string does not carry the commit: %s", cmd.Version)
	}
}

func TestResolvePathsDefaults(t *testing.T) {
	configPath, manifestPath, databasePath = "", "", ""

	a := &app{}
	a.resolvePaths()
	if a.configPath != catalog.DefaultConfigPath {
		t.Errorf("expected catalog config default, got %s", a.configPath)
	}
	if a.manifestPath != catalog.DefaultManifestPath {
		t.Errorf("expected catalog manifest default, got %s", a.manifestPath)
	}
	if a.statePath != catalog.DefaultStatePath {
		t.Errorf("expected catalog state default, got %s", a.statePath)
	}

	configPath, manifestPath, databasePath = "/mnt/p.conf", "/mnt/p.list", "/mnt/state.db"
	a = &app{}
	a.resolvePaths()
	if a.configPath != "/mnt/p.conf" || a.manifestPath != "/mnt/p.list" || a.statePath != "/mnt/state.db" {
		t.Errorf("flags did not win path resolution: %s %s %s", a.configPath, a.manifestPath, a.statePath)
	}

	configPath, manifestPath, databasePath = "", "", ""
}

func TestFixDryRun(t *testing.T) {
	cfgPath, manPath := seedTargets(t)

	before, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}

	if err := runCommand(t, "fix", "--dry-run", "--config", cfgPath, "--manifest", manPath); err != nil {
		t.Fatalf("dry run failed: %v", err)
	}

	// The dry run must never touch the real files.
	after, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("failed to read config back: %v", err)
	}
	if string(before) != string(after) {
		t.Errorf("config changed on disk during dry run:\n%s", after)
	}
}

func TestFixDryRunMissingFiles(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "absent.conf")
	manPath := filepath.Join(dir, "absent.list")

	// Without a manifest no units load, so verification fails.
	err := runCommand(t, "fix", "--dry-run", "--config", cfgPath, "--manifest", manPath)
	if err == nil {
		t.Fatal("expected a dry run without files to fail verification")
	}
	if !strings.Contains(err.Error(), "failed verification") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFixDryRunRejectsRemote(t *testing.T) {
	err := runCommand(t, "fix", "--dry-run", "--remote", "admin@example.com")
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("expected the flag conflict to be rejected, got %v", err)
	}
}

func TestFixDryRunWithProfile(t *testing.T) {
	cfgPath, manPath := seedTargets(t)

	dir := t.TempDir()
	profilePath := filepath.Join(dir, "site.cue")
	profileSrc := `
profile: {
	name: "cli-test"
	settings: required: KIOSK_MODE: "1"
	timing: {
		disable_settle_ms: 1
		setting_settle_ms: 1
		unload_settle_ms:  1
		reload_settle_ms:  1
	}
}
`
	if err := os.WriteFile(profilePath, []byte(profileSrc), 0o644); err != nil {
		t.Fatalf("failed to write profile: %v", err)
	}

	err := runCommand(t, "fix", "--dry-run",
		"--profile", profilePath, "--config", cfgPath, "--manifest", manPath)
	if err != nil {
		t.Fatalf("profile dry run failed: %v", err)
	}
}

func TestFixLocalRuntimeLifecycle(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "plugind.conf")
	manPath := filepath.Join(dir, "plugins.list")
	dbPath := filepath.Join(dir, "state.db")
	wasmPath := filepath.Join(dir, "overlay.wasm")

	doc := advisor.New(telemetry.NewNopLogger()).BuildCanonical()
	if err := os.WriteFile(cfgPath, doc.Serialize(), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if err := os.WriteFile(wasmPath, emptyWasm, 0o644); err != nil {
		t.Fatalf("failed to write unit: %v", err)
	}
	if err := os.WriteFile(manPath, []byte("[plugins]\n"+wasmPath+"\n"), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	base := []string{"--config", cfgPath, "--manifest", manPath, "--database", dbPath}

	// First run applies the fix against the real temp files.
	if err := runCommand(t, append([]string{"fix"}, base...)...); err != nil {
		t.Fatalf("first fix failed: %v", err)
	}

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("failed to read config back: %v", err)
	}
	for _, setting := range catalog.RequiredSettings() {
		if !strings.Contains(string(data), setting.Key+"="+setting.Value) {
			t.Errorf("canonical config missing %s=%s", setting.Key, setting.Value)
		}
	}

	// A second run is suppressed by the durable gate.
	if err := runCommand(t, append([]string{"fix"}, base...)...); err != nil {
		t.Fatalf("second fix failed: %v", err)
	}

	// Reapply resets the gate and runs the pipeline again.
	if err := runCommand(t, append([]string{"reapply"}, base...)...); err != nil {
		t.Fatalf("reapply failed: %v", err)
	}

	// The report sees the accumulated run history.
	if err := runCommand(t, append([]string{"report"}, base...)...); err != nil {
		t.Fatalf("report failed: %v", err)
	}
}

func TestValidateCanonicalConfig(t *testing.T) {
	cfgPath, manPath := seedTargets(t)

	err := runCommand(t, "validate", "--config", cfgPath, "--manifest", manPath)
	if err != nil {
		t.Fatalf("canonical config should validate: %v", err)
	}
}

func TestValidateBlockedConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "plugind.conf")
	manPath := filepath.Join(dir, "plugins.list")

	blocked := "[Settings]\nPLUGIN_LOADER_ENABLED=1\nPATCH_ENGINE_ENABLED=1\nREMOTE_MANAGEMENT_ENABLED=1\nSAFE_MODE=1\n"
	if err := os.WriteFile(cfgPath, []byte(blocked), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if err := os.WriteFile(manPath, []byte("[plugins]\nux0:plugins/patch-engine.wasm\n"), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	err := runCommand(t, "validate", "--config", cfgPath, "--manifest", manPath)
	if err == nil {
		t.Fatal("expected a safe-mode config to fail validation")
	}
}

func TestValidateApplyWritesRecommendations(t *testing.T) {
	cfgPath, manPath := seedTargets(t)

	err := runCommand(t, "validate", "--apply", "--config", cfgPath, "--manifest", manPath)
	if err != nil {
		t.Fatalf("validate --apply failed: %v", err)
	}

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("failed to read config back: %v", err)
	}
	for _, pref := range catalog.Preferences() {
		if !strings.Contains(string(data), pref.Key+"="+pref.Value) {
			t.Errorf("recommended setting %s=%s not written", pref.Key, pref.Value)
		}
	}
}

func TestWatchRejectsRemote(t *testing.T) {
	err := runCommand(t, "watch", "--remote", "admin@example.com")
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Errorf("expected the remote watch to be rejected, got %v", err)
	}
}

func TestTitlesList(t *testing.T) {
	if err := runCommand(t, "titles"); err != nil {
		t.Fatalf("titles listing failed: %v", err)
	}
	if err := runCommand(t, "titles", "--json"); err != nil {
		t.Fatalf("titles JSON listing failed: %v", err)
	}
}

func TestTitlesCheck(t *testing.T) {
	known := catalog.ProblematicTitles()
	if len(known) == 0 {
		t.Fatal("the problematic-title catalog is empty")
	}

	if err := runCommand(t, "titles", "--check", known[0]); err != nil {
		t.Fatalf("titles check failed: %v", err)
	}
	if err := runCommand(t, "titles", "--check", "definitely-fine-unit"); err != nil {
		t.Fatalf("titles check failed: %v", err)
	}
}

func TestInvalidLogLevelRejected(t *testing.T) {
	cfgPath, manPath := seedTargets(t)

	err := runCommand(t, "validate", "--log-level", "loud", "--config", cfgPath, "--manifest", manPath)
	if err == nil {
		t.Fatal("expected an invalid log level to be rejected")
	}
}
