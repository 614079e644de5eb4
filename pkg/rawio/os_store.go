package rawio

import (
	"context"
	"fmt"
	"io"
	"os"
)

// OSStore implements Store on the local filesystem.
type OSStore struct {
	// FileMode is the permission applied to files created through
	// ReadWriteCreate. Zero means 0644.
	FileMode os.FileMode
}

// NewOSStore creates a local filesystem store.
func NewOSStore() *OSStore {
	return &OSStore{FileMode: 0o644}
}

// Open opens path with the requested mode, translating the mode enum to
// os.OpenFile flags. Truncation is never requested at open time.
func (s *OSStore) Open(ctx context.Context, path string, mode OpenMode) (File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var flag int
	switch mode {
	case ReadOnly:
		flag = os.O_RDONLY
	case ReadWrite:
		flag = os.O_RDWR
	case ReadWriteCreate:
		flag = os.O_RDWR | os.O_CREATE
	default:
		return nil, fmt.Errorf("unsupported open mode: %s", mode)
	}

	perm := s.FileMode
	if perm == 0 {
		perm = 0o644
	}

	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s (%s): %w", path, mode, err)
	}
	return &osFile{f: f}, nil
}

// osFile adapts *os.File to the File contract.
type osFile struct {
	f *os.File
}

func (o *osFile) Read(p []byte) (int, error) {
	return o.f.Read(p)
}

func (o *osFile) Write(p []byte) (int, error) {
	return o.f.Write(p)
}

func (o *osFile) Seek(offset int64, from SeekFrom) (int64, error) {
	var whence int
	switch from {
	case Start:
		whence = io.SeekStart
	case Current:
		whence = io.SeekCurrent
	case End:
		whence = io.SeekEnd
	default:
		return 0, fmt.Errorf("unsupported seek origin: %d", from)
	}
	return o.f.Seek(offset, whence)
}

func (o *osFile) Truncate(size int64) error {
	return o.f.Truncate(size)
}

func (o *osFile) Close() error {
	return o.f.Close()
}
