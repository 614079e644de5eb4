package units

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/replug/replug/pkg/rawio"
)

// wasmMagic is the leading bytes of every WebAssembly binary.
var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// RegistryConfig contains configuration for the unit registry.
type RegistryConfig struct {
	// MemoryLimitPages is the maximum memory limit in pages (64KB each).
	// Default is 256 pages (16MB).
	MemoryLimitPages uint32

	// LoadTimeout bounds a single unit instantiation.
	LoadTimeout time.Duration

	// Catalog optionally pins unit checksums. Units absent from the
	// catalog load without verification.
	Catalog *Catalog
}

// loadedUnit tracks one instantiated module.
type loadedUnit struct {
	handle   rawio.UnitHandle
	name     string
	path     string
	module   api.Module
	loadedAt time.Time
}

// UnitInfo describes a loaded unit for status reports.
type UnitInfo struct {
	Handle   rawio.UnitHandle `json:"handle"`
	Name     string           `json:"name"`
	Path     string           `json:"path"`
	LoadedAt time.Time        `json:"loaded_at"`
}

// Registry hosts WASM plugin units inside a shared wazero runtime. It
// implements the unit half of the rawio.Runtime contract; compose it with
// a file store via rawio.NewRuntime.
type Registry struct {
	// mu protects the registry state.
	mu sync.RWMutex

	// runtime is the wazero runtime shared by all units.
	runtime wazero.Runtime

	// units maps handle to loaded unit.
	units map[rawio.UnitHandle]*loadedUnit

	// byName maps unit name to its current handle.
	byName map[string]rawio.UnitHandle

	// nextID numbers handles.
	nextID int

	config RegistryConfig
}

// NewRegistry creates a unit registry backed by a fresh wazero runtime
// with WASI available to units.
func NewRegistry(ctx context.Context, config RegistryConfig) (*Registry, error) {
	if config.MemoryLimitPages == 0 {
		config.MemoryLimitPages = 256
	}
	if config.LoadTimeout == 0 {
		config.LoadTimeout = 5 * time.Second
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(config.MemoryLimitPages).
		WithCloseOnContextDone(true)

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	return &Registry{
		runtime: runtime,
		units:   make(map[rawio.UnitHandle]*loadedUnit),
		byName:  make(map[string]rawio.UnitHandle),
		config:  config,
	}, nil
}

// FindLoadedUnit returns the handle of the named unit if it is loaded.
func (r *Registry) FindLoadedUnit(name string) (rawio.UnitHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, ok := r.byName[name]
	return handle, ok
}

// UnloadUnit closes the module behind the handle and forgets it.
func (r *Registry) UnloadUnit(handle rawio.UnitHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	unit, ok := r.units[handle]
	if !ok {
		return fmt.Errorf("no loaded unit with handle %s", handle)
	}

	if err := unit.module.Close(context.Background()); err != nil {
		return fmt.Errorf("failed to close unit %s: %w", unit.name, err)
	}

	delete(r.units, handle)
	delete(r.byName, unit.name)

	return nil
}

// LoadUnit reads a WASM module from path and instantiates it. A unit
// with the same name replaces the previous instance. The unit name is
// derived from the path basename without extension.
func (r *Registry) LoadUnit(ctx context.Context, path string) (rawio.UnitHandle, error) {
	wasmModule, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read unit %s: %w", path, err)
	}

	if !bytes.HasPrefix(wasmModule, wasmMagic) {
		return "", fmt.Errorf("unit %s is not a WebAssembly module", path)
	}

	name := rawio.UnitName(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.config.Catalog != nil {
		if err := r.config.Catalog.VerifyChecksum(name, wasmModule); err != nil {
			return "", fmt.Errorf("checksum verification failed for %s: %w", name, err)
		}
	}

	// Module names are unique within the runtime, so a same-name reload
	// has to retire the old instance first.
	if prevHandle, exists := r.byName[name]; exists {
		prev := r.units[prevHandle]
		if err := prev.module.Close(ctx); err != nil {
			return "", fmt.Errorf("failed to replace unit %s: %w", name, err)
		}
		delete(r.units, prevHandle)
		delete(r.byName, name)
	}

	loadCtx, cancel := context.WithTimeout(ctx, r.config.LoadTimeout)
	defer cancel()

	module, err := r.runtime.InstantiateWithConfig(loadCtx, wasmModule,
		wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return "", fmt.Errorf("failed to instantiate unit %s: %w", name, err)
	}

	r.nextID++
	handle := rawio.UnitHandle(fmt.Sprintf("unit-%d", r.nextID))

	r.units[handle] = &loadedUnit{
		handle:   handle,
		name:     name,
		path:     path,
		module:   module,
		loadedAt: time.Now(),
	}
	r.byName[name] = handle

	return handle, nil
}

// LoadedUnits returns the loaded units sorted by name.
func (r *Registry) LoadedUnits() []UnitInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]UnitInfo, 0, len(r.units))
	for _, unit := range r.units {
		infos = append(infos, UnitInfo{
			Handle:   unit.handle,
			Name:     unit.name,
			Path:     unit.path,
			LoadedAt: unit.loadedAt,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})

	return infos
}

// Close unloads every unit and shuts the runtime down.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for handle, unit := range r.units {
		if err := unit.module.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close unit %s: %w", unit.name, err))
		}
		delete(r.units, handle)
		delete(r.byName, unit.name)
	}

	if err := r.runtime.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close runtime: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing registry: %v", errs)
	}

	return nil
}
