package sftp

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/sftp"

	"github.com/replug/replug/pkg/rawio"
)

// Open implements rawio.Store over the SFTP session, translating the mode
// enum to the same open flags the local store uses. The remote server
// resolves path against its own filesystem.
func (c *Client) Open(ctx context.Context, path string, mode rawio.OpenMode) (rawio.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := c.getSFTP()
	if err != nil {
		return nil, err
	}

	var flag int
	switch mode {
	case rawio.ReadOnly:
		flag = os.O_RDONLY
	case rawio.ReadWrite:
		flag = os.O_RDWR
	case rawio.ReadWriteCreate:
		flag = os.O_RDWR | os.O_CREATE
	default:
		return nil, fmt.Errorf("unsupported open mode: %s", mode)
	}

	f, err := client.OpenFile(path, flag)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s (%s): %w", path, mode, err)
	}
	return &remoteFile{f: f}, nil
}

// Runtime pairs the remote store with a no-op unit loader. A remote host
// reloads its units out of band, so unit steps surface as logged best-effort
// failures rather than live unload and load calls.
func (c *Client) Runtime() rawio.Runtime {
	return rawio.NewRuntime(c, rawio.NopUnitLoader{})
}

// remoteFile adapts *sftp.File to the File contract.
type remoteFile struct {
	f *sftp.File
}

func (r *remoteFile) Read(p []byte) (int, error) {
	return r.f.Read(p)
}

func (r *remoteFile) Write(p []byte) (int, error) {
	return r.f.Write(p)
}

func (r *remoteFile) Seek(offset int64, from rawio.SeekFrom) (int64, error) {
	var whence int
	switch from {
	case rawio.Start:
		whence = io.SeekStart
	case rawio.Current:
		whence = io.SeekCurrent
	case rawio.End:
		whence = io.SeekEnd
	default:
		return 0, fmt.Errorf("unsupported seek origin: %d", from)
	}
	return r.f.Seek(offset, whence)
}

func (r *remoteFile) Truncate(size int64) error {
	return r.f.Truncate(size)
}

func (r *remoteFile) Close() error {
	return r.f.Close()
}
