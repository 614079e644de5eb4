package reload

import (
	"context"
	"fmt"
	"io"

	"github.com/valyala/bytebufferpool"

	"github.com/replug/replug/pkg/configdoc"
	"github.com/replug/replug/pkg/rawio"
)

// MaxConfigSize bounds how much of a config or manifest file a single
// operation reads. Content past this bound does not survive a rewrite.
const MaxConfigSize = 16 * 1024

// OpenError reports that a target file could not be opened. Callers
// distinguish it from in-flight I/O failures with errors.As.
type OpenError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("failed to open %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *OpenError) Unwrap() error {
	return e.Err
}

// Patcher applies whole-document rewrites to config files through a
// rawio.Store. Every rewrite is seek-truncate-write of the complete
// serialized document: line lengths change on upsert, so partial
// patching is not possible.
type Patcher struct {
	store rawio.Store
}

// NewPatcher creates a patcher over the given store.
func NewPatcher(store rawio.Store) *Patcher {
	return &Patcher{store: store}
}

// ApplySetting upserts key=value in the document at path, creating the
// file if absent. An empty or unreadable-but-openable file patches as an
// empty document.
func (p *Patcher) ApplySetting(ctx context.Context, path, key, value string) error {
	file, err := p.store.Open(ctx, path, rawio.ReadWriteCreate)
	if err != nil {
		return &OpenError{Path: path, Err: err}
	}
	defer file.Close()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if _, err := buf.ReadFrom(io.LimitReader(file, MaxConfigSize)); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc := configdoc.Parse(buf.Bytes())
	doc.Set(key, value)

	return p.rewrite(file, path, doc.Serialize())
}

// WriteDocument replaces the file at path with the serialized document,
// creating the file if absent.
func (p *Patcher) WriteDocument(ctx context.Context, path string, doc *configdoc.Document) error {
	file, err := p.store.Open(ctx, path, rawio.ReadWriteCreate)
	if err != nil {
		return &OpenError{Path: path, Err: err}
	}
	defer file.Close()

	return p.rewrite(file, path, doc.Serialize())
}

// rewrite seeks to the start, drops the old content, and writes data.
// The handle stays open for the caller's deferred close.
func (p *Patcher) rewrite(file rawio.File, path string, data []byte) error {
	if _, err := file.Seek(0, rawio.Start); err != nil {
		return fmt.Errorf("failed to seek %s: %w", path, err)
	}
	if err := file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", path, err)
	}
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
