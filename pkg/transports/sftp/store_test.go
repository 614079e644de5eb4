package sftp

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/sftp"

	"github.com/replug/replug/pkg/rawio"
	"github.com/replug/replug/pkg/telemetry"
)

// newPipeClient wires a Client to an in-process sftp server over a pipe
// pair. The server serves the test's own filesystem, so opened paths resolve
// against t.TempDir() without a network or an ssh handshake.
func newPipeClient(t *testing.T) *Client {
	t.Helper()

	clientRead, serverWrite := io.Pipe()
	serverRead, clientWrite := io.Pipe()

	server, err := sftp.NewServer(struct {
		io.Reader
		io.WriteCloser
	}{serverRead, serverWrite})
	if err != nil {
		t.Fatalf("failed to create sftp server: %v", err)
	}
	go func() { _ = server.Serve() }()

	sftpClient, err := sftp.NewClientPipe(clientRead, clientWrite)
	if err != nil {
		t.Fatalf("failed to create sftp client: %v", err)
	}

	t.Cleanup(func() {
		_ = sftpClient.Close()
		_ = serverWrite.Close()
	})

	return &Client{
		config:     DefaultConfig("testhost", "tester"),
		log:        telemetry.NewNopLogger(),
		sftpClient: sftpClient,
		connected:  true,
	}
}

func TestOpenCreateWriteRead(t *testing.T) {
	client := newPipeClient(t)
	path := filepath.Join(t.TempDir(), "plugind.conf")
	content := "[Settings]\nPLUGIN_LOADER_ENABLED=1\nSAFE_MODE=0\n"

	f, err := client.Open(context.Background(), path, rawio.ReadWriteCreate)
	if err != nil {
		t.Fatalf("failed to open for create: %v", err)
	}
	if _, err := f.Write([]byte(content)); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	f, err = client.Open(context.Background(), path, rawio.ReadOnly)
	if err != nil {
		t.Fatalf("failed to open for read: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if string(data) != content {
		t.Errorf("expected %q, got %q", content, string(data))
	}
}

func TestOpenMissingFile(t *testing.T) {
	client := newPipeClient(t)
	path := filepath.Join(t.TempDir(), "absent.conf")

	_, err := client.Open(context.Background(), path, rawio.ReadOnly)
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to open") {
		t.Errorf("expected open error, got: %v", err)
	}
}

func TestOpenCreatesAbsentFile(t *testing.T) {
	client := newPipeClient(t)
	path := filepath.Join(t.TempDir(), "fresh.conf")

	f, err := client.Open(context.Background(), path, rawio.ReadWriteCreate)
	if err != nil {
		t.Fatalf("failed to open: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file to exist after create: %v", err)
	}
}

func TestSeekAndTruncate(t *testing.T) {
	client := newPipeClient(t)
	path := filepath.Join(t.TempDir(), "seek.dat")

	f, err := client.Open(context.Background(), path, rawio.ReadWriteCreate)
	if err != nil {
		t.Fatalf("failed to open: %v", err)
	}

	if _, err := f.Write([]byte("0123456789")); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	pos, err := f.Seek(4, rawio.Start)
	if err != nil {
		t.Fatalf("failed to seek from start: %v", err)
	}
	if pos != 4 {
		t.Errorf("expected position 4, got %d", pos)
	}

	buf := make([]byte, 2)
	if _, err := io.ReadFull(f, buf); err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if string(buf) != "45" {
		t.Errorf("expected '45', got '%s'", buf)
	}

	pos, err = f.Seek(-2, rawio.End)
	if err != nil {
		t.Fatalf("failed to seek from end: %v", err)
	}
	if pos != 8 {
		t.Errorf("expected position 8, got %d", pos)
	}

	tail, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("failed to read tail: %v", err)
	}
	if string(tail) != "89" {
		t.Errorf("expected '89', got '%s'", tail)
	}

	if _, err := f.Seek(0, rawio.SeekFrom(99)); err == nil {
		t.Error("expected error for unknown seek origin, got nil")
	}

	if err := f.Truncate(4); err != nil {
		t.Fatalf("failed to truncate: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	f, err = client.Open(context.Background(), path, rawio.ReadOnly)
	if err != nil {
		t.Fatalf("failed to reopen: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	if string(data) != "0123" {
		t.Errorf("expected '0123' after truncate, got '%s'", data)
	}
}

func TestOpenCanceledContext(t *testing.T) {
	client := newPipeClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Open(ctx, "/etc/plugind/plugind.conf", rawio.ReadOnly)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

func TestRuntime(t *testing.T) {
	client := newPipeClient(t)
	rt := client.Runtime()

	// The store half works end to end
	path := filepath.Join(t.TempDir(), "plugins.list")
	f, err := rt.Open(context.Background(), path, rawio.ReadWriteCreate)
	if err != nil {
		t.Fatalf("failed to open through runtime: %v", err)
	}
	if _, err := f.Write([]byte("ux0:plugins/overlay-menu.prx\n")); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	// The unit half refuses everything: remote hosts reload out of band
	if _, found := rt.FindLoadedUnit("overlay-menu"); found {
		t.Error("expected unit lookup to miss on a remote runtime")
	}

	if err := rt.UnloadUnit("h1"); err == nil {
		t.Error("expected unload to fail on a remote runtime")
	}

	if _, err := rt.LoadUnit(context.Background(), "ux0:plugins/overlay-menu.prx"); err == nil {
		t.Error("expected load to fail on a remote runtime")
	}
}
