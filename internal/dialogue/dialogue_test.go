package dialogue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nidhogg/nuka-dialogue/internal/world"
)

type fakeParticipant struct {
	name     string
	sent     int
	received []string
	resets   int
	sendErr  error
}

func (f *fakeParticipant) Name() string { return f.name }

func (f *fakeParticipant) Send(context.Context) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent++
	return fmt.Sprintf("%s line %d", f.name, f.sent), nil
}

func (f *fakeParticipant) Receive(_ context.Context, speaker, message string) error {
	f.received = append(f.received, speaker+": "+message)
	return nil
}

func (f *fakeParticipant) Reset(context.Context) error {
	f.resets++
	f.received = nil
	return nil
}

func roster(names ...string) ([]Participant, []*fakeParticipant) {
	ps := make([]Participant, len(names))
	fs := make([]*fakeParticipant, len(names))
	for i, n := range names {
		fs[i] = &fakeParticipant{name: n}
		ps[i] = fs[i]
	}
	return ps, fs
}

func TestNewSimulatorEmpty(t *testing.T) {
	if _, err := NewSimulator(nil, nil, nil); !errors.Is(err, ErrEmptyAgentList) {
		t.Fatalf("expected ErrEmptyAgentList, got %v", err)
	}
}

func TestNewSimulatorDuplicateNames(t *testing.T) {
	ps, _ := roster("a", "a")
	if _, err := NewSimulator(ps, nil, nil); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestInterleavedSequence(t *testing.T) {
	ps, _ := roster("host", "a", "b", "c")
	sim, err := NewSimulator(ps, Interleaved{}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	want := []string{"host", "a", "host", "b", "host", "c", "host", "a", "host"}
	for step, name := range want {
		turn, err := sim.Tick(context.Background())
		if err != nil {
			t.Fatalf("tick %d: %v", step, err)
		}
		if turn.Speaker != name || turn.Step != step {
			t.Errorf("step %d: speaker %s (step %d), want %s", step, turn.Speaker, turn.Step, name)
		}
	}
	if sim.Step() != len(want) {
		t.Errorf("step = %d, want %d", sim.Step(), len(want))
	}
}

func TestInterleavedIndices(t *testing.T) {
	names := []string{"0", "1", "2", "3"}
	want := []int{0, 1, 0, 2, 0, 3, 0, 1, 0}
	for step, w := range want {
		if got := (Interleaved{}).Select(step, names); got != w {
			t.Errorf("step %d: got %d, want %d", step, got, w)
		}
	}
	if got := (Interleaved{}).Select(5, []string{"solo"}); got != 0 {
		t.Errorf("single agent got %d", got)
	}
}

func TestTickBroadcastsToEveryone(t *testing.T) {
	ps, fs := roster("a", "b", "c")
	sim, _ := NewSimulator(ps, RoundRobin{}, nil)
	turn, err := sim.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if turn.Speaker != "a" || turn.Message != "a line 1" {
		t.Fatalf("turn = %+v", turn)
	}
	for _, f := range fs {
		if len(f.received) != 1 || f.received[0] != "a: a line 1" {
			t.Errorf("%s received %v", f.name, f.received)
		}
	}
}

func TestInjectAdvancesStepAndDelivers(t *testing.T) {
	ps, fs := roster("a", "b")
	sim, _ := NewSimulator(ps, nil, nil)
	turn, err := sim.Inject(context.Background(), "Narrator", "It is a rainy morning.")
	if err != nil {
		t.Fatalf("inject: %v", err)
	}
	if !turn.Injected || sim.Step() != 1 {
		t.Errorf("turn = %+v, step = %d", turn, sim.Step())
	}
	for _, f := range fs {
		if len(f.received) != 1 || f.received[0] != "Narrator: It is a rainy morning." {
			t.Errorf("%s received %v", f.name, f.received)
		}
		if f.sent != 0 {
			t.Errorf("%s should not speak on inject", f.name)
		}
	}
}

func TestInvalidSelection(t *testing.T) {
	ps, fs := roster("a", "b")
	sim, _ := NewSimulator(ps, PolicyFunc(func(int, []string) int { return 7 }), nil)
	if _, err := sim.Tick(context.Background()); !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("expected ErrInvalidSelection, got %v", err)
	}
	if sim.Step() != 0 {
		t.Errorf("step advanced to %d", sim.Step())
	}
	if fs[0].sent+fs[1].sent != 0 {
		t.Errorf("no participant should have spoken")
	}
}

func TestSendFailureDoesNotAdvance(t *testing.T) {
	ps, fs := roster("a")
	fs[0].sendErr = errors.New("model down")
	sim, _ := NewSimulator(ps, nil, nil)
	if _, err := sim.Tick(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if sim.Step() != 0 {
		t.Errorf("step = %d", sim.Step())
	}
}

func TestParticipantLookup(t *testing.T) {
	ps, _ := roster("a", "b")
	sim, _ := NewSimulator(ps, nil, nil)
	if p, err := sim.Participant("b"); err != nil || p.Name() != "b" {
		t.Errorf("lookup b: %v", err)
	}
	if _, err := sim.Participant("z"); !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("expected ErrUnknownAgent, got %v", err)
	}
}

func TestRunAdvancesClockAndNotifies(t *testing.T) {
	start := time.Date(2024, 2, 13, 9, 0, 0, 0, time.UTC)
	clock := world.NewSimClock(start, nil)
	history := &History{}
	ps, _ := roster("host", "a", "b")
	sim, _ := NewSimulator(ps, nil, nil, WithClock(clock, 10*time.Minute), WithListener(history))

	turns, err := sim.Run(context.Background(), 5)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(turns) != 5 || len(history.Turns()) != 5 {
		t.Fatalf("turns = %d, history = %d", len(turns), len(history.Turns()))
	}
	if !turns[0].At.Equal(start) || !turns[4].At.Equal(start.Add(40*time.Minute)) {
		t.Errorf("turn times = %v .. %v", turns[0].At, turns[4].At)
	}
	if clock.Elapsed() != 50*time.Minute {
		t.Errorf("elapsed = %v", clock.Elapsed())
	}

	runID := sim.RunID()
	if err := sim.Reset(context.Background()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if sim.Step() != 0 || clock.Elapsed() != 0 || sim.RunID() == runID {
		t.Errorf("reset incomplete: step %d elapsed %v", sim.Step(), clock.Elapsed())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ps, _ := roster("a")
	sim, _ := NewSimulator(ps, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	turns, err := sim.Run(ctx, 3)
	if !errors.Is(err, context.Canceled) || len(turns) != 0 {
		t.Errorf("got %d turns, err %v", len(turns), err)
	}
}

func TestWeightedDeterministic(t *testing.T) {
	names := []string{"a", "b", "c"}
	p := Weighted{Weights: []float64{1, 0, 3}, Seed: 42}
	counts := make([]int, 3)
	for step := 0; step < 200; step++ {
		first := p.Select(step, names)
		if again := p.Select(step, names); again != first {
			t.Fatalf("step %d: %d then %d", step, first, again)
		}
		counts[first]++
	}
	if counts[1] != 0 {
		t.Errorf("zero-weight agent selected %d times", counts[1])
	}
	if counts[2] <= counts[0] {
		t.Errorf("heavier weight should dominate: %v", counts)
	}
}

func TestPolicyByName(t *testing.T) {
	for _, name := range []string{"", "interleaved", "round_robin", "weighted"} {
		if _, err := PolicyByName(name, nil, 1); err != nil {
			t.Errorf("%q: %v", name, err)
		}
	}
	if _, err := PolicyByName("chaos", nil, 1); err == nil {
		t.Error("expected error for unknown policy")
	}
}

type fakeReactor struct {
	name  string
	lines []string
	stops int // the reply index at which to stop
	calls int
	seen  []string
}

func (f *fakeReactor) Name() string { return f.name }

func (f *fakeReactor) React(_ context.Context, obs string) (bool, string, error) {
	f.seen = append(f.seen, obs)
	i := f.calls
	f.calls++
	return i != f.stops, f.lines[i%len(f.lines)], nil
}

func TestConverse(t *testing.T) {
	a := &fakeReactor{name: "Tommie", lines: []string{"Me too.", "Bye"}, stops: 1}
	b := &fakeReactor{name: "Eve", lines: []string{"Nice to meet you.", "Same here."}, stops: -1}

	ex, err := Converse(context.Background(), a, b, "Hi, I'm Tommie.", 10)
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	speakers := []string{}
	for _, e := range ex {
		speakers = append(speakers, e.Speaker)
	}
	want := []string{"Tommie", "Eve", "Tommie", "Eve", "Tommie"}
	if fmt.Sprint(speakers) != fmt.Sprint(want) {
		t.Fatalf("speakers = %v, want %v", speakers, want)
	}
	if ex[len(ex)-1].Continue {
		t.Error("last exchange should end the conversation")
	}
	if b.seen[0] != `Tommie said "Hi, I'm Tommie."` {
		t.Errorf("first observation = %q", b.seen[0])
	}
}

func TestConverseRoundLimit(t *testing.T) {
	a := &fakeReactor{name: "A", lines: []string{"..."}, stops: -1}
	b := &fakeReactor{name: "B", lines: []string{"..."}, stops: -1}
	ex, err := Converse(context.Background(), a, b, "hello", 3)
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	if len(ex) != 4 {
		t.Errorf("exchanges = %d, want opening + 3", len(ex))
	}
}
