// Package safego launches background goroutines that cannot take the process down.
package safego

import (
	"context"
	"log/slog"
	"time"
)

// Go runs fn in a new goroutine. A panic is recovered and logged under name.
func Go(name string, fn func()) {
	go run(name, fn)
}

// Detached runs fn in a new goroutine with a fresh context bounded by timeout. Use it for
// work that must outlive the request that triggered it, such as audit writes.
func Detached(name string, timeout time.Duration, fn func(ctx context.Context)) {
	go run(name, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		fn(ctx)
	})
}

func run(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic in background goroutine", "task", name, "panic", r)
		}
	}()
	fn()
}
