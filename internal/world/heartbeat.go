package world

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HeartbeatFunc is called for each name when a heartbeat fires.
type HeartbeatFunc func(ctx context.Context, name string) error

// Heartbeat is a ClockListener that runs beatFn for every registered name
// once per interval of world time. The app uses it to refresh agent
// summaries as a run progresses.
type Heartbeat struct {
	interval time.Duration
	timeout  time.Duration
	lastBeat time.Time
	names    []string
	beatFn   HeartbeatFunc
	beats    int
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewHeartbeat creates a heartbeat listener. A non-positive interval never fires.
func NewHeartbeat(interval time.Duration, beatFn HeartbeatFunc, logger *zap.Logger) *Heartbeat {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Heartbeat{
		interval: interval,
		timeout:  30 * time.Second,
		beatFn:   beatFn,
		logger:   logger,
	}
}

// SetNames updates the list of names that receive heartbeats.
func (h *Heartbeat) SetNames(names []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.names = append([]string(nil), names...)
}

// Beats reports how many times the heartbeat has fired.
func (h *Heartbeat) Beats() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.beats
}

// FireNow forces a heartbeat for all names, bypassing the interval check.
// It returns how many calls succeeded.
func (h *Heartbeat) FireNow(ctx context.Context) int {
	h.mu.Lock()
	names := append([]string(nil), h.names...)
	h.beats++
	h.mu.Unlock()
	return h.fire(ctx, names)
}

// OnTick implements ClockListener. The first tick only records the time.
func (h *Heartbeat) OnTick(worldTime time.Time) {
	if h.interval <= 0 {
		return
	}
	h.mu.Lock()
	if h.lastBeat.IsZero() || worldTime.Before(h.lastBeat) {
		// First tick, or the clock was rewound.
		h.lastBeat = worldTime
		h.mu.Unlock()
		return
	}
	if worldTime.Sub(h.lastBeat) < h.interval {
		h.mu.Unlock()
		return
	}
	h.lastBeat = worldTime
	h.beats++
	names := append([]string(nil), h.names...)
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	h.fire(ctx, names)
}

func (h *Heartbeat) fire(ctx context.Context, names []string) int {
	fired := 0
	for _, name := range names {
		if err := h.beatFn(ctx, name); err != nil {
			h.logger.Warn("heartbeat failed",
				zap.String("agent", name),
				zap.Error(err))
			continue
		}
		fired++
		h.logger.Debug("heartbeat fired", zap.String("agent", name))
	}
	return fired
}
