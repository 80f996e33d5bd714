package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nidhogg/nuka-dialogue/internal/dialogue"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestBus(t *testing.T) *TranscriptBus {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := New(rdb, "", zap.NewNop())
	t.Cleanup(func() { b.Close() })
	return b
}

func TestPublishAndHistory(t *testing.T) {
	ctx := context.Background()
	b := newTestBus(t)
	at := time.Date(2024, 2, 13, 9, 0, 0, 0, time.UTC)

	b.OnTurn(ctx, dialogue.Turn{RunID: "run1", Step: 0, Speaker: "Narrator", Message: "Once upon a time", Injected: true, At: at})
	b.OnTurn(ctx, dialogue.Turn{RunID: "run1", Step: 1, Speaker: "alice", Message: "Hello", At: at})
	b.OnTurn(ctx, dialogue.Turn{RunID: "run2", Step: 0, Speaker: "bob", Message: "Other run"})

	got, err := b.History(ctx, "run1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Speaker != "Narrator" || !got[0].Injected || got[1].Content != "Hello" {
		t.Errorf("unexpected messages: %+v %+v", got[0], got[1])
	}
	if got[0].ID == "" || got[0].ID == got[1].ID {
		t.Errorf("message ids should be unique")
	}
	if !got[1].WorldTime.Equal(at) {
		t.Errorf("world time = %v", got[1].WorldTime)
	}
	if b.Stream("run1") != "nuka:dialogue:run1" {
		t.Errorf("stream = %s", b.Stream("run1"))
	}
}

func TestHistoryEmptyRun(t *testing.T) {
	got, err := newTestBus(t).History(context.Background(), "missing", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no messages, got %d", len(got))
	}
}
