package schedule

import (
	"context"
	"time"
)

// RunAt calls execute on its own goroutine at runAt, or right away when
// runAt has passed. Nothing runs if ctx ends first.
func RunAt(ctx context.Context, runAt time.Time, execute func(ctx context.Context)) {
	go func() {
		timer := time.NewTimer(time.Until(runAt))
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		execute(ctx)
	}()
}

// Poll calls fn immediately and then every interval until ctx ends. It
// blocks; a slow fn delays the following calls instead of overlapping them.
func Poll(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		fn(ctx)
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
