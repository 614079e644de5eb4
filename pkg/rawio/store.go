package rawio

import (
	"context"
	"fmt"
	"strings"
)

// OpenMode selects how a resource is opened. Modes are a closed enumeration
// translated by each implementation to whatever flag ABI its backend
// expects; truncation and appending are explicit calls on File rather than
// open flags.
type OpenMode int

const (
	// ReadOnly opens an existing resource for reading.
	ReadOnly OpenMode = iota
	// ReadWrite opens an existing resource for reading and writing.
	ReadWrite
	// ReadWriteCreate opens a resource for reading and writing, creating an
	// empty one when absent.
	ReadWriteCreate
)

// String returns a short name for the mode, used in logs and errors.
func (m OpenMode) String() string {
	switch m {
	case ReadOnly:
		return "ro"
	case ReadWrite:
		return "rw"
	case ReadWriteCreate:
		return "rwc"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// SeekFrom selects the origin of a seek on an open File.
type SeekFrom int

const (
	// Start seeks relative to the beginning of the resource.
	Start SeekFrom = iota
	// Current seeks relative to the current offset.
	Current
	// End seeks relative to the end of the resource.
	End
)

// UnitHandle identifies a loaded unit. The zero value means "no unit".
type UnitHandle string

// None reports whether the handle refers to no unit.
func (h UnitHandle) None() bool {
	return h == ""
}

// File is an open resource. Read may return fewer bytes than requested and
// io.EOF at end of content. Implementations must support calling Close
// exactly once on every exit path of the caller.
type File interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Seek(offset int64, from SeekFrom) (int64, error)
	Truncate(size int64) error
	Close() error
}

// Store provides byte-blob access to named resources. Open reports failure
// through its error return; implementations never panic across this
// boundary. No atomicity is guaranteed across successive calls on a File: a
// crash between Truncate and Write can leave a resource empty.
type Store interface {
	Open(ctx context.Context, path string, mode OpenMode) (File, error)
}

// UnitLoader provides load and unload access to plugin units. FindLoadedUnit
// reports a miss through its boolean rather than an error, because absence
// is an expected state for best-effort unload sweeps.
type UnitLoader interface {
	FindLoadedUnit(name string) (UnitHandle, bool)
	UnloadUnit(handle UnitHandle) error
	LoadUnit(ctx context.Context, path string) (UnitHandle, error)
}

// Runtime is the full capability surface the orchestrator needs: resource
// access plus unit lifecycle.
type Runtime interface {
	Store
	UnitLoader
}

// composed joins an independent Store and UnitLoader into a Runtime.
type composed struct {
	Store
	UnitLoader
}

// NewRuntime combines a store with a unit loader. Use NopUnitLoader for
// stores whose environment has no live unit runtime.
func NewRuntime(store Store, units UnitLoader) Runtime {
	return &composed{Store: store, UnitLoader: units}
}

// Units returns the unit loader half, letting diagnostics reach past the
// composition to implementation-specific surfaces.
func (c *composed) Units() UnitLoader {
	return c.UnitLoader
}

// NopUnitLoader is a UnitLoader for environments without a reachable unit
// runtime, such as remote config patching over sftp. Lookups always miss and
// load/unload return errors the sequencer logs as best-effort failures.
type NopUnitLoader struct{}

// FindLoadedUnit always reports a miss.
func (NopUnitLoader) FindLoadedUnit(string) (UnitHandle, bool) {
	return "", false
}

// UnloadUnit always fails; there is no runtime to unload from.
func (NopUnitLoader) UnloadUnit(UnitHandle) error {
	return fmt.Errorf("no unit runtime attached")
}

// LoadUnit always fails; there is no runtime to load into.
func (NopUnitLoader) LoadUnit(_ context.Context, path string) (UnitHandle, error) {
	return "", fmt.Errorf("no unit runtime attached: cannot load %s", path)
}

// UnitName derives the runtime name of a unit from its manifest path: the
// final path element without its file extension. Both '/' separators and
// device-prefixed paths like "ur0:tai/kernel.skprx" resolve to the bare
// module name.
func UnitName(path string) string {
	name := path
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}
