package rawio

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestOSStoreOpenMissingReadOnly(t *testing.T) {
	store := NewOSStore()
	_, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "absent.conf"), ReadOnly)
	if err == nil {
		t.Fatal("Expected error opening missing file read-only")
	}
}

func TestOSStoreOpenMissingReadWrite(t *testing.T) {
	store := NewOSStore()
	_, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "absent.conf"), ReadWrite)
	if err == nil {
		t.Fatal("Expected error opening missing file read-write")
	}
}

func TestOSStoreCreateWriteRead(t *testing.T) {
	store := NewOSStore()
	path := filepath.Join(t.TempDir(), "plugind.conf")
	ctx := context.Background()

	f, err := store.Open(ctx, path, ReadWriteCreate)
	if err != nil {
		t.Fatalf("Failed to open with create: %v", err)
	}
	if _, err := f.Write([]byte("a=1\n")); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	f, err = store.Open(ctx, path, ReadOnly)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer f.Close()

	buf := make([]byte, 64)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("Failed to read: %v", err)
	}
	if string(buf[:n]) != "a=1\n" {
		t.Errorf("Expected 'a=1\\n', got %q", buf[:n])
	}
}

func TestOSStoreTruncateRewrite(t *testing.T) {
	store := NewOSStore()
	path := filepath.Join(t.TempDir(), "plugind.conf")
	ctx := context.Background()

	if err := os.WriteFile(path, []byte("long original content that should vanish\n"), 0o644); err != nil {
		t.Fatalf("Failed to seed file: %v", err)
	}

	f, err := store.Open(ctx, path, ReadWrite)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	if _, err := f.Seek(0, Start); err != nil {
		t.Fatalf("Failed to seek: %v", err)
	}
	if err := f.Truncate(0); err != nil {
		t.Fatalf("Failed to truncate: %v", err)
	}
	if _, err := f.Write([]byte("short\n")); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read back: %v", err)
	}
	if string(got) != "short\n" {
		t.Errorf("Expected rewrite to leave no tail, got %q", got)
	}
}

func TestOSStoreSeekEnd(t *testing.T) {
	store := NewOSStore()
	path := filepath.Join(t.TempDir(), "plugind.conf")

	if err := os.WriteFile(path, []byte("12345"), 0o644); err != nil {
		t.Fatalf("Failed to seed file: %v", err)
	}

	f, err := store.Open(context.Background(), path, ReadOnly)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	defer f.Close()

	pos, err := f.Seek(-2, End)
	if err != nil {
		t.Fatalf("Failed to seek from end: %v", err)
	}
	if pos != 3 {
		t.Errorf("Expected position 3, got %d", pos)
	}
}

func TestOSStoreCancelledContext(t *testing.T) {
	store := NewOSStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Open(ctx, filepath.Join(t.TempDir(), "any"), ReadWriteCreate); err == nil {
		t.Fatal("Expected error from cancelled context")
	}
}

func TestOpenModeString(t *testing.T) {
	tests := []struct {
		mode OpenMode
		want string
	}{
		{ReadOnly, "ro"},
		{ReadWrite, "rw"},
		{ReadWriteCreate, "rwc"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("OpenMode(%d).String() = %q, want %q", tt.mode, got, tt.want)
		}
	}
}
