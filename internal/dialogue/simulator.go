package dialogue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/nuka-dialogue/internal/world"
	"go.uber.org/zap"
)

// Option customizes a Simulator.
type Option func(*Simulator)

// WithClock advances clock by step after every tick.
func WithClock(clock *world.SimClock, step time.Duration) Option {
	return func(s *Simulator) {
		s.clock = clock
		s.stepDuration = step
	}
}

// WithListener registers a turn listener.
func WithListener(l TurnListener) Option {
	return func(s *Simulator) { s.listeners = append(s.listeners, l) }
}

// Simulator is the turn scheduler. The roster is fixed at construction and
// every tick runs under one lock, so steps are strictly ordered.
type Simulator struct {
	participants []Participant
	roster       []string
	byName       map[string]int
	policy       Policy
	clock        *world.SimClock
	stepDuration time.Duration
	listeners    []TurnListener
	logger       *zap.Logger

	mu    sync.Mutex
	step  int
	runID string
}

// NewSimulator builds a simulator over participants. A nil policy means Interleaved.
func NewSimulator(participants []Participant, policy Policy, logger *zap.Logger, opts ...Option) (*Simulator, error) {
	if len(participants) == 0 {
		return nil, ErrEmptyAgentList
	}
	if policy == nil {
		policy = Interleaved{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Simulator{
		participants: append([]Participant(nil), participants...),
		roster:       make([]string, len(participants)),
		byName:       make(map[string]int, len(participants)),
		policy:       policy,
		logger:       logger,
		runID:        uuid.New().String(),
	}
	for i, p := range participants {
		name := p.Name()
		if _, dup := s.byName[name]; dup {
			return nil, fmt.Errorf("duplicate agent name %q", name)
		}
		s.roster[i] = name
		s.byName[name] = i
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Roster returns participant names in order.
func (s *Simulator) Roster() []string {
	return append([]string(nil), s.roster...)
}

// Participant looks up a participant by name.
func (s *Simulator) Participant(name string) (Participant, error) {
	i, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	return s.participants[i], nil
}

// Step is the number of ticks taken since construction or the last reset.
func (s *Simulator) Step() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// RunID identifies the current run; it changes on Reset.
func (s *Simulator) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// AddListener registers a turn listener after construction.
func (s *Simulator) AddListener(l TurnListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Reset clears every participant and rewinds the step counter and clock.
func (s *Simulator) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if err := p.Reset(ctx); err != nil {
			return fmt.Errorf("reset %s: %w", p.Name(), err)
		}
	}
	s.step = 0
	s.runID = uuid.New().String()
	if s.clock != nil {
		s.clock.Reset()
	}
	s.logger.Info("simulation reset", zap.String("run_id", s.runID))
	return nil
}

// Inject broadcasts an out-of-band message from name, which need not be on
// the roster, and advances the step. No participant takes a turn.
func (s *Simulator) Inject(ctx context.Context, name, message string) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.broadcast(ctx, name, message); err != nil {
		return Turn{}, err
	}
	turn := s.advance(name, message, true)
	s.notify(ctx, turn)
	return turn, nil
}

// Tick lets the selected participant speak and broadcasts its line to every
// participant, the speaker included. An out-of-range selection fails with
// ErrInvalidSelection and leaves the step unchanged.
func (s *Simulator) Tick(ctx context.Context) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.policy.Select(s.step, s.roster)
	if idx < 0 || idx >= len(s.participants) {
		return Turn{}, fmt.Errorf("%w: index %d at step %d with %d agents",
			ErrInvalidSelection, idx, s.step, len(s.participants))
	}
	speaker := s.participants[idx]

	message, err := speaker.Send(ctx)
	if err != nil {
		return Turn{}, fmt.Errorf("step %d: %w", s.step, err)
	}
	if err := s.broadcast(ctx, speaker.Name(), message); err != nil {
		return Turn{}, err
	}
	turn := s.advance(speaker.Name(), message, false)
	s.notify(ctx, turn)
	return turn, nil
}

// Run ticks until maxTurns ticks have completed, ctx is done or a tick fails.
// Completed turns are returned even on error.
func (s *Simulator) Run(ctx context.Context, maxTurns int) ([]Turn, error) {
	turns := make([]Turn, 0, maxTurns)
	for i := 0; i < maxTurns; i++ {
		if err := ctx.Err(); err != nil {
			return turns, err
		}
		turn, err := s.Tick(ctx)
		if err != nil {
			return turns, err
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// broadcast must be called with s.mu held.
func (s *Simulator) broadcast(ctx context.Context, speaker, message string) error {
	for _, p := range s.participants {
		if err := p.Receive(ctx, speaker, message); err != nil {
			return fmt.Errorf("deliver to %s: %w", p.Name(), err)
		}
	}
	return nil
}

// advance must be called with s.mu held.
func (s *Simulator) advance(speaker, message string, injected bool) Turn {
	turn := Turn{
		RunID:    s.runID,
		Step:     s.step,
		Speaker:  speaker,
		Message:  message,
		Injected: injected,
		At:       time.Now(),
	}
	if s.clock != nil {
		turn.At = s.clock.Now()
		s.clock.Advance(s.stepDuration)
	}
	s.step++
	s.logger.Info("turn",
		zap.Int("step", turn.Step),
		zap.String("speaker", speaker),
		zap.Bool("injected", injected))
	return turn
}

func (s *Simulator) notify(ctx context.Context, turn Turn) {
	for _, l := range s.listeners {
		l.OnTurn(ctx, turn)
	}
}
