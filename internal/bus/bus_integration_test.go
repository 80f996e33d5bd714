//go:build integration

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/nidhogg/nuka-dialogue/internal/dialogue"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

func TestSubscribeAgainstRedis(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate redis: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}
	b, err := Connect(ctx, "redis://"+endpoint, "", zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer b.Close()

	subCtx, stop := context.WithCancel(ctx)
	defer stop()
	ch := b.Subscribe(subCtx, "live")
	// XREAD with $ only sees entries added after the read starts.
	time.Sleep(200 * time.Millisecond)

	if err := b.Publish(ctx, dialogue.Turn{RunID: "live", Step: 3, Speaker: "alice", Message: "hi"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case m := <-ch:
		if m.Step != 3 || m.Speaker != "alice" {
			t.Errorf("got %+v", m)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
