// Package local stores objects on the local filesystem. It is meant for development and
// single-node deployments; files are served back through the API's /files route when
// serve_directly is enabled.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/xplorixa/portal/internal/config"
	"github.com/xplorixa/portal/internal/storage"
)

func init() {
	storage.Register("local", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Local, cfg.Server.BaseURL)
	})
}

// LocalStorage implements storage.Storage on a directory tree.
type LocalStorage struct {
	basePath      string
	serveDirectly bool
	baseURL       string
}

// New creates the base directory if needed.
func New(cfg *config.LocalStorageConfig, serverBaseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(cfg.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{
		basePath:      filepath.Clean(cfg.BasePath),
		serveDirectly: cfg.ServeDirectly,
		baseURL:       strings.TrimSuffix(serverBaseURL, "/"),
	}, nil
}

// resolve maps key to a path under basePath, rejecting keys that escape it.
func (s *LocalStorage) resolve(key string) (string, error) {
	full := filepath.Join(s.basePath, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.basePath, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return full, nil
}

// Put writes to a temporary file and renames it over the target, so readers never
// observe a partial avatar.
func (s *LocalStorage) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*storage.Object, error) {
	full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, checksum, err := storage.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to move file into place: %w", err)
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return &storage.Object{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  contentType,
		Checksum:     checksum,
		LastModified: info.ModTime(),
	}, nil
}

// Open sniffs the content type since the filesystem keeps none.
func (s *LocalStorage) Open(ctx context.Context, key string) (io.ReadCloser, *storage.Object, error) {
	full, err := s.resolve(key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat file: %w", err)
	}

	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to rewind file: %w", err)
	}

	return f, &storage.Object{
		Key:          key,
		Size:         info.Size(),
		ContentType:  http.DetectContentType(head[:n]),
		LastModified: info.ModTime(),
	}, nil
}

// Delete removes key and any directories it leaves empty.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	for dir := filepath.Dir(full); dir != s.basePath; dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// URL points at the API's file route when serving directly, otherwise at the file.
func (s *LocalStorage) URL(ctx context.Context, key string) (string, error) {
	full, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if s.serveDirectly {
		return fmt.Sprintf("%s/files/%s", s.baseURL, key), nil
	}
	return "file://" + full, nil
}

func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	full, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return true, nil
}
