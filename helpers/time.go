package helpers

import (
	"context"
	"time"
)

func IntSecondDefault(x int, def time.Duration) time.Duration {
	if x == 0 {
		return def
	}
	return time.Duration(x) * time.Second
}

// Sleep blocks for d, returns early with ctx.Err() or errStop when stop is closed.
// Nil stop channel never fires.
func Sleep(ctx context.Context, d time.Duration, stop <-chan struct{}, errStop error) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-stop:
		return errStop
	}
}
