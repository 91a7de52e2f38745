package azure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/xplorixa/portal/internal/config"
	"github.com/xplorixa/portal/internal/storage"
)

type fakeBlob struct {
	content     []byte
	contentType string
	metadata    map[string]string
}

// newTestStorage points an anonymous client at a server that speaks enough of the
// Blob REST API for these tests.
func newTestStorage(t *testing.T) (*AzureStorage, map[string]*fakeBlob) {
	t.Helper()

	var mu sync.Mutex
	blobs := map[string]*fakeBlob{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/")
		mu.Lock()
		defer mu.Unlock()
		b, ok := blobs[key]

		notFound := func() {
			w.Header().Set("x-ms-error-code", "BlobNotFound")
			w.WriteHeader(http.StatusNotFound)
		}

		switch r.Method {
		case http.MethodPut:
			data, _ := io.ReadAll(r.Body)
			meta := map[string]string{}
			for k, v := range r.Header {
				if lk := strings.ToLower(k); strings.HasPrefix(lk, "x-ms-meta-") {
					meta[strings.TrimPrefix(lk, "x-ms-meta-")] = v[0]
				}
			}
			blobs[key] = &fakeBlob{content: data, contentType: r.Header.Get("x-ms-blob-content-type"), metadata: meta}
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet, http.MethodHead:
			if !ok {
				notFound()
				return
			}
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(b.content)))
			w.Header().Set("Content-Type", b.contentType)
			for k, v := range b.metadata {
				w.Header().Set("x-ms-meta-"+k, v)
			}
			w.WriteHeader(http.StatusOK)
			if r.Method == http.MethodGet {
				_, _ = w.Write(b.content)
			}
		case http.MethodDelete:
			if !ok {
				notFound()
				return
			}
			delete(blobs, key)
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := azblob.NewClientWithNoCredential(srv.URL, nil)
	if err != nil {
		t.Fatalf("failed to create azblob client: %v", err)
	}
	return &AzureStorage{client: client, containerName: "avatars"}, blobs
}

func TestNew_Validation(t *testing.T) {
	tests := []config.AzureStorageConfig{
		{AccountKey: "k", ContainerName: "c"},
		{AccountName: "a", ContainerName: "c"},
		{AccountName: "a", AccountKey: "k"},
	}
	for i, cfg := range tests {
		cfg := cfg
		if _, err := New(&cfg); err == nil {
			t.Errorf("case %d: New() = nil error, want error", i)
		}
	}
}

func TestPutOpenDelete(t *testing.T) {
	s, blobs := newTestStorage(t)
	ctx := context.Background()
	key := storage.AvatarKey("u1")
	data := []byte("webp-bytes")

	obj, err := s.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "image/webp")
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	stored := blobs["avatars/"+key]
	if stored == nil {
		t.Fatal("blob not stored under container path")
	}
	if stored.contentType != "image/webp" {
		t.Errorf("content type = %q, want image/webp", stored.contentType)
	}

	rc, meta, err := s.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(got, data) {
		t.Errorf("content = %q", got)
	}
	if meta.Checksum != obj.Checksum {
		t.Errorf("checksum = %q, want %q", meta.Checksum, obj.Checksum)
	}

	if ok, err := s.Exists(ctx, key); err != nil || !ok {
		t.Fatalf("Exists() = %v, %v", ok, err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if ok, err := s.Exists(ctx, key); err != nil || ok {
		t.Errorf("Exists() after delete = %v, %v", ok, err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Errorf("Delete() of missing blob: %v", err)
	}
}

func TestOpen_NotFound(t *testing.T) {
	s, _ := newTestStorage(t)
	_, _, err := s.Open(context.Background(), "profile_pictures/none")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Open() error = %v, want ErrNotFound", err)
	}
}

func TestURL(t *testing.T) {
	s, _ := newTestStorage(t)
	u, _ := s.URL(context.Background(), "profile_pictures/u1")
	if !strings.Contains(u, "/avatars/") || !strings.HasSuffix(u, "u1") {
		t.Errorf("URL() = %q", u)
	}

	s.cdnURL = "https://cdn.example.com"
	u, _ = s.URL(context.Background(), "profile_pictures/u1")
	if u != "https://cdn.example.com/profile_pictures/u1" {
		t.Errorf("URL() with CDN = %q", u)
	}
}
