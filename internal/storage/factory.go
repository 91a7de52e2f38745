package storage

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xplorixa/portal/internal/config"
	"github.com/xplorixa/portal/pkg/checksum"
)

// FactoryFunc builds a backend from configuration.
type FactoryFunc func(*config.Config) (Storage, error)

var factories = make(map[string]FactoryFunc)

// Register makes a backend available under name.
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewStorage builds the backend named by storage.default_backend.
func NewStorage(cfg *config.Config) (Storage, error) {
	factory, ok := factories[cfg.Storage.DefaultBackend]
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %q (registered: %s)",
			cfg.Storage.DefaultBackend, strings.Join(Backends(), ", "))
	}
	return factory(cfg)
}

// Backends lists registered backend names.
func Backends() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadAll buffers body and returns it with its hex SHA-256. Avatars are capped well
// below anything that would make buffering a concern.
func ReadAll(body io.Reader) ([]byte, string, error) {
	cr := checksum.NewReader(body)
	data, err := io.ReadAll(cr)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read data: %w", err)
	}
	return data, cr.Sum(), nil
}
