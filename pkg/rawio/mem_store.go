package rawio

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"sync"
)

// MemRuntime is an in-memory Runtime. It backs dry runs, where the fix
// sequence executes against a seeded copy of the real configuration, and
// test setups. Unit operations are journaled in call order so callers can
// report what a run did (or would do).
type MemRuntime struct {
	mu      sync.Mutex
	files   map[string]*memEntry
	loaded  map[UnitHandle]string
	byName  map[string]UnitHandle
	nextID  int
	journal []string

	// LoadErrors maps unit paths to errors returned by LoadUnit, for
	// exercising best-effort load handling.
	LoadErrors map[string]error
}

type memEntry struct {
	data []byte
}

// NewMemRuntime creates an empty in-memory runtime.
func NewMemRuntime() *MemRuntime {
	return &MemRuntime{
		files:  make(map[string]*memEntry),
		loaded: make(map[UnitHandle]string),
		byName: make(map[string]UnitHandle),
	}
}

// SeedFile installs resource content, replacing any existing entry.
func (m *MemRuntime) SeedFile(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &memEntry{data: append([]byte(nil), data...)}
}

// Snapshot returns a copy of a resource's current content.
func (m *MemRuntime) Snapshot(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.files[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), entry.data...), true
}

// PreloadUnit registers a unit as already loaded and returns its handle.
func (m *MemRuntime) PreloadUnit(name string) UnitHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	handle := UnitHandle(fmt.Sprintf("mem-unit-%d", m.nextID))
	m.loaded[handle] = name
	m.byName[name] = handle
	return handle
}

// LoadedUnits returns the names of currently loaded units, sorted.
func (m *MemRuntime) LoadedUnits() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.byName))
	for name := range m.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Journal returns the unit operations performed so far, in order.
func (m *MemRuntime) Journal() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.journal...)
}

// Open opens an in-memory resource with file-like semantics.
func (m *MemRuntime) Open(ctx context.Context, path string, mode OpenMode) (File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.files[path]
	switch mode {
	case ReadOnly, ReadWrite:
		if !ok {
			return nil, fmt.Errorf("failed to open %s (%s): %w", path, mode, fs.ErrNotExist)
		}
	case ReadWriteCreate:
		if !ok {
			entry = &memEntry{}
			m.files[path] = entry
		}
	default:
		return nil, fmt.Errorf("unsupported open mode: %s", mode)
	}

	return &memFile{rt: m, entry: entry}, nil
}

// FindLoadedUnit looks up a unit by name.
func (m *MemRuntime) FindLoadedUnit(name string) (UnitHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle, ok := m.byName[name]
	if ok {
		m.journal = append(m.journal, "find:"+name+":hit")
	} else {
		m.journal = append(m.journal, "find:"+name+":miss")
	}
	return handle, ok
}

// UnloadUnit removes a loaded unit by handle.
func (m *MemRuntime) UnloadUnit(handle UnitHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.loaded[handle]
	if !ok {
		return fmt.Errorf("unknown unit handle: %s", handle)
	}
	delete(m.loaded, handle)
	delete(m.byName, name)
	m.journal = append(m.journal, "unload:"+name)
	return nil
}

// LoadUnit registers a unit from path. A unit with the same derived name
// replaces the previous registration.
func (m *MemRuntime) LoadUnit(ctx context.Context, path string) (UnitHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, fail := m.LoadErrors[path]; fail {
		m.journal = append(m.journal, "load:"+path+":error")
		return "", err
	}

	m.nextID++
	handle := UnitHandle(fmt.Sprintf("mem-unit-%d", m.nextID))
	name := UnitName(path)
	if old, exists := m.byName[name]; exists {
		delete(m.loaded, old)
	}
	m.loaded[handle] = name
	m.byName[name] = handle
	m.journal = append(m.journal, "load:"+path)
	return handle, nil
}

// memFile is an open handle to a MemRuntime entry.
type memFile struct {
	rt     *MemRuntime
	entry  *memEntry
	pos    int64
	closed bool
}

func (f *memFile) Read(p []byte) (int, error) {
	f.rt.mu.Lock()
	defer f.rt.mu.Unlock()
	if f.closed {
		return 0, os.ErrClosed
	}
	if f.pos >= int64(len(f.entry.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.entry.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	f.rt.mu.Lock()
	defer f.rt.mu.Unlock()
	if f.closed {
		return 0, os.ErrClosed
	}

	end := f.pos + int64(len(p))
	if grow := end - int64(len(f.entry.data)); grow > 0 {
		f.entry.data = append(f.entry.data, make([]byte, grow)...)
	}
	copy(f.entry.data[f.pos:end], p)
	f.pos = end
	return len(p), nil
}

func (f *memFile) Seek(offset int64, from SeekFrom) (int64, error) {
	f.rt.mu.Lock()
	defer f.rt.mu.Unlock()
	if f.closed {
		return 0, os.ErrClosed
	}

	var abs int64
	switch from {
	case Start:
		abs = offset
	case Current:
		abs = f.pos + offset
	case End:
		abs = int64(len(f.entry.data)) + offset
	default:
		return 0, fmt.Errorf("unsupported seek origin: %d", from)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative seek position: %d", abs)
	}
	f.pos = abs
	return abs, nil
}

func (f *memFile) Truncate(size int64) error {
	f.rt.mu.Lock()
	defer f.rt.mu.Unlock()
	if f.closed {
		return os.ErrClosed
	}
	if size < 0 {
		return fmt.Errorf("negative truncate size: %d", size)
	}

	current := int64(len(f.entry.data))
	switch {
	case size < current:
		f.entry.data = f.entry.data[:size]
	case size > current:
		f.entry.data = append(f.entry.data, make([]byte, size-current)...)
	}
	return nil
}

func (f *memFile) Close() error {
	f.rt.mu.Lock()
	defer f.rt.mu.Unlock()
	if f.closed {
		return os.ErrClosed
	}
	f.closed = true
	return nil
}
