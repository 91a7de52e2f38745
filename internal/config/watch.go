package config

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// WatchAdminEmails re-reads the config file whenever it changes on disk and hands
// the new admin allow-list to fn. It is a no-op when no config file was loaded.
// Only the allow-list is hot-reloaded; every other setting needs a restart.
func (c *Config) WatchAdminEmails(fn func([]string)) bool {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return false
	}

	var mu sync.Mutex
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		mu.Lock()
		defer mu.Unlock()

		next, err := decode(c.v)
		if err != nil {
			slog.Warn("config reload failed; keeping previous admin allow-list", "file", e.Name, "error", err)
			return
		}
		slog.Info("admin allow-list reloaded", "file", e.Name, "count", len(next.Auth.AdminEmails))
		fn(next.Auth.AdminEmails)
	})
	c.v.WatchConfig()
	return true
}
