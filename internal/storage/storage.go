// Package storage defines the object store used for profile pictures and the registry
// that maps a configured backend name to its constructor.
//
// Each backend registers itself from an init function in its own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return New(&cfg.Storage.MyBackend)
//	    })
//	}
//
// cmd/server blank-imports every backend so the registrations run.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// AvatarPrefix is the key prefix for profile pictures. A user's picture lives at
// AvatarPrefix + uid and is overwritten on re-upload.
const AvatarPrefix = "profile_pictures/"

// ErrNotFound is returned by Open when the key does not exist.
var ErrNotFound = errors.New("object not found")

// Storage is an object store for small user uploads.
type Storage interface {
	// Put stores body under key, replacing any existing object.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*Object, error)

	// Open returns a reader for key and its attributes. Missing keys yield ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, *Object, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns the long-lived download reference stored on the profile.
	URL(ctx context.Context, key string) (string, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
}

// Object describes a stored object.
type Object struct {
	Key          string
	Size         int64
	ContentType  string
	Checksum     string // hex SHA-256 of the content
	LastModified time.Time
}

// AvatarKey returns the object key of uid's profile picture.
func AvatarKey(uid string) string {
	return AvatarPrefix + uid
}
