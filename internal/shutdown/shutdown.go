// Package shutdown coordinates graceful termination across the gateway
// hub, background workers, and the HTTP listener, so a SIGTERM drains
// connections instead of dropping them.
package shutdown

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Coordinator fans a single shutdown signal out to every named subscriber
// and waits for each to report it has finished draining before returning.
type Coordinator struct {
	mu          sync.Mutex
	subscribers map[string]chan struct{}
	wg          sync.WaitGroup
	log         zerolog.Logger
}

func NewCoordinator(logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		subscribers: make(map[string]chan struct{}),
		log:         logger,
	}
}

// Subscribe registers a named component and returns the channel that closes
// when shutdown begins. The component must call Done exactly once when it
// has finished draining.
func (c *Coordinator) Subscribe(name string) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan struct{})
	c.subscribers[name] = ch
	c.wg.Add(1)
	return ch
}

// Done marks a subscriber as finished. It is safe to call at most once per
// subscribed name.
func (c *Coordinator) Done(name string) {
	c.mu.Lock()
	_, ok := c.subscribers[name]
	delete(c.subscribers, name)
	c.mu.Unlock()
	if ok {
		c.wg.Done()
	}
}

// Shutdown closes every subscriber's channel, then blocks until either
// every subscriber has called Done or ctx is cancelled, whichever is
// first.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	names := make([]string, 0, len(c.subscribers))
	for name, ch := range c.subscribers {
		names = append(names, name)
		close(ch)
	}
	c.mu.Unlock()
	c.log.Info().Strs("subscribers", names).Msg("shutdown signal sent")

	drained := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		c.log.Info().Msg("all subscribers drained")
	case <-ctx.Done():
		c.mu.Lock()
		remaining := make([]string, 0, len(c.subscribers))
		for name := range c.subscribers {
			remaining = append(remaining, name)
		}
		c.mu.Unlock()
		c.log.Warn().Strs("remaining", remaining).Msg("shutdown deadline exceeded, forcing exit")
	}
}
