// Package dialogue drives multi-agent conversations: a turn scheduler that
// picks the next speaker, collects its line and broadcasts it to everyone.
package dialogue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmptyAgentList is returned when a simulator is built with no participants.
	ErrEmptyAgentList = errors.New("dialogue: no agents")
	// ErrInvalidSelection is returned when a policy picks an index outside the roster.
	ErrInvalidSelection = errors.New("dialogue: invalid speaker selection")
	// ErrUnknownAgent is returned when a name does not match any participant.
	ErrUnknownAgent = errors.New("dialogue: unknown agent")
)

// Participant is anything that can take turns in a simulation.
type Participant interface {
	Name() string
	Send(ctx context.Context) (string, error)
	Receive(ctx context.Context, speaker, message string) error
	Reset(ctx context.Context) error
}

// Turn is one scheduler tick.
type Turn struct {
	RunID    string    `json:"run_id"`
	Step     int       `json:"step"`
	Speaker  string    `json:"speaker"`
	Message  string    `json:"message"`
	Injected bool      `json:"injected"`
	At       time.Time `json:"at"`
}

// TurnListener is notified after every completed tick.
type TurnListener interface {
	OnTurn(ctx context.Context, turn Turn)
}

// TurnListenerFunc adapts a function to TurnListener.
type TurnListenerFunc func(ctx context.Context, turn Turn)

// OnTurn calls f.
func (f TurnListenerFunc) OnTurn(ctx context.Context, turn Turn) { f(ctx, turn) }
