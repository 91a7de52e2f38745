package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xplorixa/portal/internal/config"
	"github.com/xplorixa/portal/internal/storage"
)

// pngHeader is enough of a PNG for content sniffing.
var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newTestStorage(t *testing.T, serveDirectly bool) *LocalStorage {
	t.Helper()
	cfg := &config.LocalStorageConfig{
		BasePath:      t.TempDir(),
		ServeDirectly: serveDirectly,
	}
	s, err := New(cfg, "http://localhost:8080/")
	if err != nil {
		t.Fatal("New:", err)
	}
	return s
}

func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if _, err := New(&config.LocalStorageConfig{BasePath: dir}, ""); err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("base directory not created: %v", err)
	}
}

func TestPutOpenRoundTrip(t *testing.T) {
	s := newTestStorage(t, true)
	ctx := context.Background()
	key := storage.AvatarKey("uid-1")

	obj, err := s.Put(ctx, key, bytes.NewReader(pngHeader), int64(len(pngHeader)), "image/png")
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if obj.Size != int64(len(pngHeader)) {
		t.Errorf("Size = %d, want %d", obj.Size, len(pngHeader))
	}
	if len(obj.Checksum) != 64 {
		t.Errorf("Checksum len = %d, want 64", len(obj.Checksum))
	}

	rc, meta, err := s.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if !bytes.Equal(got, pngHeader) {
		t.Error("content mismatch after round trip")
	}
	if meta.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", meta.ContentType)
	}
}

func TestPut_OverwritesExisting(t *testing.T) {
	s := newTestStorage(t, false)
	ctx := context.Background()
	key := storage.AvatarKey("uid-2")

	if _, err := s.Put(ctx, key, strings.NewReader("first"), 5, "image/png"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(ctx, key, strings.NewReader("second"), 6, "image/png"); err != nil {
		t.Fatal(err)
	}
	rc, _, err := s.Open(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "second" {
		t.Errorf("content = %q, want second", got)
	}

	entries, _ := os.ReadDir(filepath.Join(s.basePath, "profile_pictures"))
	if len(entries) != 1 {
		t.Errorf("expected one file after overwrite, found %d", len(entries))
	}
}

func TestOpen_NotFound(t *testing.T) {
	s := newTestStorage(t, false)
	_, _, err := s.Open(context.Background(), "profile_pictures/missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Open() error = %v, want ErrNotFound", err)
	}
}

func TestRejectsTraversal(t *testing.T) {
	s := newTestStorage(t, false)
	ctx := context.Background()
	for _, key := range []string{"../escape", "profile_pictures/../../escape", ""} {
		if _, err := s.Put(ctx, key, strings.NewReader("x"), 1, "image/png"); err == nil {
			t.Errorf("Put(%q) succeeded, want error", key)
		}
	}
}

func TestDeleteAndExists(t *testing.T) {
	s := newTestStorage(t, false)
	ctx := context.Background()
	key := storage.AvatarKey("uid-3")

	if _, err := s.Put(ctx, key, strings.NewReader("x"), 1, "image/png"); err != nil {
		t.Fatal(err)
	}
	ok, err := s.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v; want true, nil", ok, err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	ok, _ = s.Exists(ctx, key)
	if ok {
		t.Error("Exists() = true after delete")
	}
	if _, err := os.Stat(filepath.Join(s.basePath, "profile_pictures")); !os.IsNotExist(err) {
		t.Error("empty parent directory was not removed")
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Errorf("second Delete() error: %v", err)
	}
}

func TestURL(t *testing.T) {
	ctx := context.Background()
	key := storage.AvatarKey("uid-4")

	direct := newTestStorage(t, true)
	u, err := direct.URL(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if u != "http://localhost:8080/files/profile_pictures/uid-4" {
		t.Errorf("URL() = %q", u)
	}

	file := newTestStorage(t, false)
	u, err = file.URL(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(u, "file://") || !strings.HasSuffix(u, filepath.FromSlash(key)) {
		t.Errorf("URL() = %q, want file:// path", u)
	}
}
