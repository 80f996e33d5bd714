// Package bus fans dialogue turns out over Redis Streams so external
// consumers can follow a run live.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/nuka-dialogue/internal/dialogue"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultPrefix = "nuka:dialogue:"

// Message is one published turn.
type Message struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Step      int       `json:"step"`
	Speaker   string    `json:"speaker"`
	Content   string    `json:"content"`
	Injected  bool      `json:"injected"`
	WorldTime time.Time `json:"world_time"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptBus publishes turns to a per-run Redis stream.
type TranscriptBus struct {
	rdb    *redis.Client
	prefix string
	maxLen int64
	logger *zap.Logger
}

// Connect parses redisURL, pings the server and returns a bus.
func Connect(ctx context.Context, redisURL, prefix string, logger *zap.Logger) (*TranscriptBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, prefix, logger), nil
}

// New wraps an existing client. An empty prefix selects "nuka:dialogue:".
func New(rdb *redis.Client, prefix string, logger *zap.Logger) *TranscriptBus {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptBus{rdb: rdb, prefix: prefix, maxLen: 10000, logger: logger}
}

// Stream returns the stream key for runID.
func (b *TranscriptBus) Stream(runID string) string {
	return b.prefix + runID
}

// Publish appends a turn to its run's stream.
func (b *TranscriptBus) Publish(ctx context.Context, t dialogue.Turn) error {
	msg := &Message{
		ID:        uuid.New().String(),
		RunID:     t.RunID,
		Step:      t.Step,
		Speaker:   t.Speaker,
		Content:   t.Message,
		Injected:  t.Injected,
		WorldTime: t.At,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	stream := b.Stream(t.RunID)
	err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}

	b.logger.Debug("published turn",
		zap.String("stream", stream),
		zap.Int("step", t.Step),
		zap.String("speaker", t.Speaker))
	return nil
}

// OnTurn publishes t. Failures are logged; the simulation keeps running.
func (b *TranscriptBus) OnTurn(ctx context.Context, t dialogue.Turn) {
	if err := b.Publish(ctx, t); err != nil {
		b.logger.Warn("transcript publish failed", zap.Error(err))
	}
}

// History returns up to count messages of a run from the beginning.
func (b *TranscriptBus) History(ctx context.Context, runID string, count int64) ([]*Message, error) {
	entries, err := b.rdb.XRangeN(ctx, b.Stream(runID), "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.Stream(runID), err)
	}
	out := make([]*Message, 0, len(entries))
	for _, e := range entries {
		if m := decode(e); m != nil {
			out = append(out, m)
		}
	}
	return out, nil
}

// Subscribe follows a run's stream from now on. Cancel ctx to stop; the
// channel is closed when the reader exits.
func (b *TranscriptBus) Subscribe(ctx context.Context, runID string) <-chan *Message {
	ch := make(chan *Message, 16)
	stream := b.Stream(runID)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			if ctx.Err() != nil {
				return
			}
			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if !errors.Is(err, redis.Nil) {
					b.logger.Debug("transcript read failed", zap.Error(err))
				}
				continue
			}

			for _, r := range results {
				for _, e := range r.Messages {
					lastID = e.ID
					m := decode(e)
					if m == nil {
						continue
					}
					select {
					case ch <- m:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (b *TranscriptBus) Close() error {
	return b.rdb.Close()
}

func decode(e redis.XMessage) *Message {
	data, ok := e.Values["data"].(string)
	if !ok {
		return nil
	}
	var m Message
	if json.Unmarshal([]byte(data), &m) != nil {
		return nil
	}
	return &m
}
