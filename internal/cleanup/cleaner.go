package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper evicts idle sessions and reports how many were removed
type Sweeper interface {
	Sweep(ctx context.Context) int
}

// Cleaner handles periodic eviction of idle sessions
type Cleaner struct {
	sweeper  Sweeper
	interval time.Duration
	wg       sync.WaitGroup
}

// NewCleaner creates a new cleanup worker
func NewCleaner(sweeper Sweeper, interval time.Duration) *Cleaner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &Cleaner{
		sweeper:  sweeper,
		interval: interval,
	}
}

// Start begins the cleanup worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Wait blocks until the worker has returned after ctx was cancelled
func (c *Cleaner) Wait() {
	c.wg.Wait()
}

// run is the main loop for the cleanup worker
func (c *Cleaner) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// cleanup runs one sweep
func (c *Cleaner) cleanup(ctx context.Context) {
	slog.Debug("running cleanup cycle")

	if evicted := c.sweeper.Sweep(ctx); evicted > 0 {
		slog.Info("idle sessions removed", "count", evicted)
		return
	}

	slog.Debug("no idle sessions found")
}
