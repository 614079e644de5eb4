package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/replug/replug/pkg/catalog"
	"github.com/replug/replug/pkg/fix"
	"github.com/replug/replug/pkg/profile"
	"github.com/replug/replug/pkg/rawio"
	"github.com/replug/replug/pkg/reload"
	"github.com/replug/replug/pkg/stores"
	"github.com/replug/replug/pkg/telemetry"
	sftptransport "github.com/replug/replug/pkg/transports/sftp"
	"github.com/replug/replug/pkg/units"
)

// appOptions selects which parts of the stack a command needs.
type appOptions struct {
	// dryRun targets an in-memory runtime seeded from the real files and
	// a throwaway state database.
	dryRun bool

	// withStore opens the state database and the session flag tier.
	withStore bool

	// logFormat overrides the --log-format flag when non-empty.
	logFormat string

	// metrics registers the Prometheus collectors.
	metrics bool
}

// app is the assembled stack behind one command invocation: telemetry,
// the target runtime, and optionally the state stores and a parsed
// profile. Close releases everything in reverse construction order.
type app struct {
	tel      *telemetry.Telemetry
	runtime  rawio.Runtime
	store    *stores.SQLiteStore
	session  *stores.SessionStore
	registry *units.Registry
	mem      *rawio.MemRuntime
	profile  *profile.Profile
	plan     []reload.Step

	configPath   string
	manifestPath string
	statePath    string

	cleanups []func()
}

// newApp assembles the stack from the global flags. Profile targets
// override the catalog defaults, and explicit path flags override the
// profile.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	if opts.dryRun && remoteTarget != "" {
		return nil, fmt.Errorf("--dry-run and --remote are mutually exclusive")
	}

	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := a.initTelemetry(opts); err != nil {
		return nil, err
	}
	if err := a.loadProfile(ctx); err != nil {
		return nil, err
	}
	a.resolvePaths()

	if err := a.initRuntime(ctx, opts); err != nil {
		return nil, err
	}
	if opts.withStore {
		if err := a.initStores(ctx, opts); err != nil {
			return nil, err
		}
	}

	ok = true
	return a, nil
}

// Close releases held resources in reverse construction order.
func (a *app) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}

func (a *app) onClose(fn func()) {
	a.cleanups = append(a.cleanups, fn)
}

func (a *app) initTelemetry(opts appOptions) error {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = cliVersion
	cfg.Logging.Level = logLevel
	cfg.Logging.Format = logFormat
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}
	cfg.Metrics.Enabled = opts.metrics

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return err
	}
	a.tel = tel
	a.onClose(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	})
	return nil
}

// loadProfile parses the CUE profile sources and folds the explicit path
// flags into the profile targets, so the computed step plan and the
// resolved paths always agree.
func (a *app) loadProfile(ctx context.Context) error {
	if len(profileFiles) == 0 {
		return nil
	}

	parser := profile.NewParser()
	prof, err := parser.Load(ctx, profileFiles)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}

	if configPath != "" {
		prof.Targets.Config = configPath
	}
	if manifestPath != "" {
		prof.Targets.Manifest = manifestPath
	}
	if databasePath != "" {
		prof.Targets.State = databasePath
	}

	plan, err := parser.BuildPlan(ctx, prof)
	if err != nil {
		return fmt.Errorf("failed to build profile step plan: %w", err)
	}

	a.profile = prof
	a.plan = plan
	a.tel.Logger.WithField("profile", prof.Name).Debugf("Profile loaded from %d source(s)", len(profileFiles))
	return nil
}

func (a *app) resolvePaths() {
	if a.profile != nil {
		a.configPath = a.profile.ConfigPath()
		a.manifestPath = a.profile.ManifestPath()
		a.statePath = a.profile.StatePath()
		return
	}

	a.configPath = configPath
	if a.configPath == "" {
		a.configPath = catalog.DefaultConfigPath
	}
	a.manifestPath = manifestPath
	if a.manifestPath == "" {
		a.manifestPath = catalog.DefaultManifestPath
	}
	a.statePath = databasePath
	if a.statePath == "" {
		a.statePath = catalog.DefaultStatePath
	}
}

func (a *app) initRuntime(ctx context.Context, opts appOptions) error {
	switch {
	case remoteTarget != "":
		target, err := sftptransport.ParseTarget(remoteTarget)
		if err != nil {
			return err
		}
		client, err := sftptransport.NewClient(target, a.tel.Logger)
		if err != nil {
			return fmt.Errorf("failed to create sftp transport: %w", err)
		}
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to %s: %w", target.Address(), err)
		}
		a.onClose(func() { _ = client.Disconnect() })
		a.runtime = client.Runtime()

	case opts.dryRun:
		mem := rawio.NewMemRuntime()
		a.seedFromDisk(mem, a.configPath)
		a.seedFromDisk(mem, a.manifestPath)
		a.mem = mem
		a.runtime = mem

	default:
		var cat *units.Catalog
		if unitCatalog != "" {
			loaded, err := units.LoadCatalog(unitCatalog)
			if err != nil {
				return fmt.Errorf("failed to load unit catalog: %w", err)
			}
			cat = loaded
		}
		registry, err := units.NewRegistry(ctx, units.RegistryConfig{Catalog: cat})
		if err != nil {
			return fmt.Errorf("failed to create unit registry: %w", err)
		}
		a.registry = registry
		a.onClose(func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = registry.Close(closeCtx)
		})
		a.runtime = rawio.NewRuntime(rawio.NewOSStore(), registry)
	}
	return nil
}

// seedFromDisk copies a real file into the in-memory runtime. A missing
// file is seeded as absent, so a dry run surfaces the same open failures
// a real run would.
func (a *app) seedFromDisk(mem *rawio.MemRuntime, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		a.tel.Logger.WithError(err).WithPath(path).Warnf("Dry run starts without this file")
		return
	}
	mem.SeedFile(path, data)
}

func (a *app) initStores(ctx context.Context, opts appOptions) error {
	statePath := a.statePath
	if opts.dryRun {
		tmpDir, err := os.MkdirTemp("", "replug-dryrun-")
		if err != nil {
			return fmt.Errorf("failed to create dry-run state dir: %w", err)
		}
		a.onClose(func() { _ = os.RemoveAll(tmpDir) })
		statePath = filepath.Join(tmpDir, "replug.db")
	}

	// The default state path lives under /var/lib; create the directory
	// when absent and let Init report anything unfixable.
	_ = os.MkdirAll(filepath.Dir(statePath), 0o755)

	store, err := stores.NewSQLiteStore(stores.Config{Path: statePath})
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("failed to open state database %s: %w", statePath, err)
	}
	a.onClose(func() { _ = store.Close() })
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate state database %s: %w", statePath, err)
	}

	a.store = store
	a.session = stores.NewSessionStore()
	return nil
}

// orchestrator wires the fix pipeline over the assembled stack.
func (a *app) orchestrator() *fix.Orchestrator {
	return fix.NewOrchestrator(a.runtime, a.store, a.session, a.tel, a.fixConfig())
}

// fixConfig builds the orchestrator configuration from the resolved
// paths and the profile overrides, when a profile is active.
func (a *app) fixConfig() fix.OrchestratorConfig {
	cfg := fix.OrchestratorConfig{
		ConfigPath:   a.configPath,
		ManifestPath: a.manifestPath,
		Steps:        a.plan,
	}
	if a.profile != nil {
		cfg.UnloadSet = a.profile.Units()
		cfg.Required = a.profile.RequiredSettings()
	}
	return cfg
}

// requiredSettings returns the profile's required-set override, or nil
// to keep the catalog defaults.
func (a *app) requiredSettings() []catalog.Setting {
	if a.profile == nil {
		return nil
	}
	return a.profile.RequiredSettings()
}
