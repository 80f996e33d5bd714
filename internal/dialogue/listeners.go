package dialogue

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LogListener writes each turn's content at debug level.
func LogListener(logger *zap.Logger) TurnListener {
	return TurnListenerFunc(func(_ context.Context, t Turn) {
		logger.Debug("dialogue line",
			zap.String("run_id", t.RunID),
			zap.Int("step", t.Step),
			zap.String("speaker", t.Speaker),
			zap.String("message", t.Message))
	})
}

// History collects turns in memory, newest last, keeping at most Limit.
type History struct {
	Limit int

	mu    sync.Mutex
	turns []Turn
}

// OnTurn appends t.
func (h *History) OnTurn(_ context.Context, t Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, t)
	if h.Limit > 0 && len(h.turns) > h.Limit {
		h.turns = h.turns[len(h.turns)-h.Limit:]
	}
}

// Turns returns the recorded turns.
func (h *History) Turns() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Turn(nil), h.turns...)
}
