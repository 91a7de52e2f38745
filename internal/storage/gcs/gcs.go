// Package gcs stores objects in a Google Cloud Storage bucket. Credentials come from
// Application Default Credentials (which covers Workload Identity) or a service account key.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	appconfig "github.com/xplorixa/portal/internal/config"
	appstorage "github.com/xplorixa/portal/internal/storage"
)

func init() {
	appstorage.Register("gcs", func(cfg *appconfig.Config) (appstorage.Storage, error) {
		return New(&cfg.Storage.GCS)
	})
}

const (
	checksumMetaKey = "sha256"
	publicHost      = "https://storage.googleapis.com"
)

// GCSStorage implements appstorage.Storage on one bucket.
type GCSStorage struct {
	client   *storage.Client
	bucket   string
	endpoint string
}

// New builds a client for cfg. auth_method is one of "default", "service_account" or
// "workload_identity"; the last is served by ADC.
func New(cfg *appconfig.GCSStorageConfig) (*GCSStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	method := cfg.AuthMethod
	if method == "" {
		method = "default"
		if cfg.CredentialsFile != "" || cfg.CredentialsJSON != "" {
			method = "service_account"
		}
	}

	switch method {
	case "service_account":
		switch {
		case cfg.CredentialsJSON != "":
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		case cfg.CredentialsFile != "":
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		default:
			return nil, fmt.Errorf("credentials_file or credentials_json is required for service_account auth")
		}
	case "workload_identity", "default":
	default:
		return nil, fmt.Errorf("unsupported auth_method: %s (must be 'default', 'service_account', or 'workload_identity')", method)
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStorage{
		client:   client,
		bucket:   cfg.Bucket,
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
	}, nil
}

// Close releases the client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

func (s *GCSStorage) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*appstorage.Object, error) {
	data, checksum, err := appstorage.ReadAll(body)
	if err != nil {
		return nil, err
	}

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{checksumMetaKey: checksum}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GCS writer: %w", err)
	}

	return &appstorage.Object{
		Key:         key,
		Size:        int64(len(data)),
		ContentType: contentType,
		Checksum:    checksum,
	}, nil
}

func (s *GCSStorage) Open(ctx context.Context, key string) (io.ReadCloser, *appstorage.Object, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, nil, appstorage.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read from GCS: %w", err)
	}
	return r, &appstorage.Object{
		Key:          key,
		Size:         r.Attrs.Size,
		ContentType:  r.Attrs.ContentType,
		LastModified: r.Attrs.LastModified,
	}, nil
}

func (s *GCSStorage) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}
	return nil
}

// URL returns the public object URL, or the emulator URL when an endpoint is set.
func (s *GCSStorage) URL(ctx context.Context, key string) (string, error) {
	host := publicHost
	if s.endpoint != "" {
		host = s.endpoint
	}
	return fmt.Sprintf("%s/%s/%s", host, s.bucket, (&url.URL{Path: key}).EscapedPath()), nil
}

func (s *GCSStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}
