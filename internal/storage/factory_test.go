package storage_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xplorixa/portal/internal/config"
	"github.com/xplorixa/portal/internal/storage"
)

type stubStorage struct{}

func (stubStorage) Put(context.Context, string, io.Reader, int64, string) (*storage.Object, error) {
	return &storage.Object{}, nil
}
func (stubStorage) Open(context.Context, string) (io.ReadCloser, *storage.Object, error) {
	return nil, nil, storage.ErrNotFound
}
func (stubStorage) Delete(context.Context, string) error         { return nil }
func (stubStorage) URL(context.Context, string) (string, error)  { return "", nil }
func (stubStorage) Exists(context.Context, string) (bool, error) { return false, nil }

func TestRegister_AddsFactory(t *testing.T) {
	storage.Register("stub", func(*config.Config) (storage.Storage, error) {
		return stubStorage{}, nil
	})

	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = "stub"

	s, err := storage.NewStorage(cfg)
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Contains(t, storage.Backends(), "stub")
}

func TestNewStorage_UnknownBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = "floppy"

	_, err := storage.NewStorage(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floppy")
}

func TestAvatarKey(t *testing.T) {
	assert.Equal(t, "profile_pictures/abc-123", storage.AvatarKey("abc-123"))
}

func TestReadAll(t *testing.T) {
	data, sum, err := storage.ReadAll(strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
}
