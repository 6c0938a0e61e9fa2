package shutdown

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestShutdownWaitsForSubscribers(t *testing.T) {
	c := NewCoordinator(zerolog.Nop())
	ch := c.Subscribe("worker")

	done := make(chan struct{})
	go func() {
		<-ch
		c.Done("worker")
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Shutdown(ctx)

	select {
	case <-done:
	default:
		t.Error("expected subscriber goroutine to have completed before Shutdown returned")
	}
}

func TestShutdownRespectsDeadline(t *testing.T) {
	c := NewCoordinator(zerolog.Nop())
	c.Subscribe("stuck") // never calls Done

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	c.Shutdown(ctx)
	if time.Since(start) > time.Second {
		t.Error("Shutdown should have returned promptly once the deadline passed")
	}
}
