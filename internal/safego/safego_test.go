package safego

import (
	"context"
	"testing"
	"time"
)

func waitOrFail(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not complete within timeout")
	}
}

func TestGo_RunsFunction(t *testing.T) {
	done := make(chan struct{})
	Go("test", func() { close(done) })
	waitOrFail(t, done)
}

func TestGo_RecoversPanic(t *testing.T) {
	done := make(chan struct{})
	Go("panicky", func() {
		defer close(done)
		panic("intentional panic in test")
	})
	waitOrFail(t, done)
}

func TestDetached_ContextHasDeadline(t *testing.T) {
	done := make(chan struct{})
	var hasDeadline bool
	Detached("deadline", time.Second, func(ctx context.Context) {
		defer close(done)
		_, hasDeadline = ctx.Deadline()
	})
	waitOrFail(t, done)
	if !hasDeadline {
		t.Error("Detached context has no deadline")
	}
}
