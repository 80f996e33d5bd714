package world

import (
	"testing"
	"time"
)

type recordingListener struct {
	ticks []time.Time
}

func (r *recordingListener) OnTick(t time.Time) { r.ticks = append(r.ticks, t) }

func TestSimClockAdvance(t *testing.T) {
	start := time.Date(2024, 2, 13, 9, 0, 0, 0, time.UTC)
	c := NewSimClock(start, nil)
	l := &recordingListener{}
	c.AddListener(l)

	c.Advance(30 * time.Minute)
	c.Advance(-time.Hour)
	got := c.Advance(30 * time.Minute)

	if want := start.Add(time.Hour); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if c.Elapsed() != time.Hour {
		t.Errorf("elapsed = %v, want 1h", c.Elapsed())
	}
	if len(l.ticks) != 3 {
		t.Errorf("listener saw %d ticks, want 3", len(l.ticks))
	}

	c.Reset()
	if !c.Now().Equal(start) {
		t.Errorf("after reset now = %v, want %v", c.Now(), start)
	}
}
