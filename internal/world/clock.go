// Package world keeps simulated time for a dialogue run.
package world

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock reports the current time used for memory timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// ClockListener receives world tick events.
type ClockListener interface {
	OnTick(worldTime time.Time)
}

// SimClock is a manually advanced clock. The dialogue simulator moves it
// forward by a fixed step per tick so recency decay follows simulated time.
type SimClock struct {
	start     time.Time
	worldTime time.Time
	listeners []ClockListener
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewSimClock creates a clock that starts at start.
func NewSimClock(start time.Time, logger *zap.Logger) *SimClock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimClock{start: start, worldTime: start, logger: logger}
}

// AddListener registers a tick listener.
func (c *SimClock) AddListener(l ClockListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Now returns the current simulated world time.
func (c *SimClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.worldTime
}

// Elapsed is the simulated time since the clock started.
func (c *SimClock) Elapsed() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.worldTime.Sub(c.start)
}

// Advance moves world time forward by d and notifies listeners.
// Non-positive durations are ignored.
func (c *SimClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	if d > 0 {
		c.worldTime = c.worldTime.Add(d)
	}
	wt := c.worldTime
	listeners := make([]ClockListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l.OnTick(wt)
	}
	c.logger.Debug("world clock advanced", zap.Time("world_time", wt))
	return wt
}

// Reset rewinds the clock to its start time. Listeners are kept.
func (c *SimClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.worldTime = c.start
}
