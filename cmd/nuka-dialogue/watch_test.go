package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nidhogg/nuka-dialogue/internal/bus"
	"github.com/nidhogg/nuka-dialogue/internal/dialogue"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestCurrentRunID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sim/status" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"run_id":"run-42","step":3}`))
	}))
	defer srv.Close()

	got, err := currentRunID(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "run-42" {
		t.Errorf("run id = %q, want run-42", got)
	}

	if _, err := currentRunID(context.Background(), srv.Client(), srv.URL+"/missing"); err == nil {
		t.Error("expected error for a non-200 status")
	}
}

// syncBuffer guards a bytes.Buffer shared with the follow goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFollowRunPrintsTurns(t *testing.T) {
	mr := miniredis.RunT(t)
	b := bus.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "", zap.NewNop())
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan struct{})
	go func() {
		followRun(ctx, out, b, "run1")
		close(done)
	}()

	at := time.Date(2024, 2, 13, 9, 30, 0, 0, time.UTC)
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for !strings.Contains(out.String(), "[09:30] alice: Lovely morning") {
		select {
		case <-tick.C:
			// The subscription starts at "$", so publish until the reader is attached.
			b.OnTurn(context.Background(), dialogue.Turn{RunID: "run1", Speaker: "alice", Message: "Lovely morning", At: at})
		case <-deadline:
			cancel()
			t.Fatalf("no turn printed, output %q", out.String())
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("followRun did not return after cancel")
	}
}
