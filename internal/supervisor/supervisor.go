package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// Run keeps fn alive until ctx is done. Whenever fn returns, with or without
// an error, or panics, the fault is logged and fn restarts after backoff.
func Run(ctx context.Context, name string, backoff time.Duration, fn func(context.Context) error) {
	for {
		err := guard(ctx, fn)
		if ctx.Err() != nil {
			slog.Info("loop stopped", "loop", name)
			return
		}
		if err != nil {
			slog.Error("loop failed", "loop", name, "error", err, "backoff", backoff)
		} else {
			slog.Warn("loop exited", "loop", name, "backoff", backoff)
		}
		if err := Wait(ctx, backoff); err != nil {
			slog.Info("loop stopped", "loop", name)
			return
		}
	}
}

func guard(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("loop panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func Wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
