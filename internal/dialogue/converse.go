package dialogue

import (
	"context"
	"fmt"
)

// Reactor is an agent that can respond to an observation and signal whether
// it wants to keep talking.
type Reactor interface {
	Name() string
	React(ctx context.Context, observation string) (bool, string, error)
}

// Exchange is one line of a two-party conversation.
type Exchange struct {
	Speaker   string `json:"speaker"`
	Utterance string `json:"utterance"`
	Continue  bool   `json:"continue"`
}

// Converse runs a conversation opened by a with opening. The agents take
// turns reacting to the other's last line until one declines to continue or
// maxRounds lines have been produced after the opening.
func Converse(ctx context.Context, a, b Reactor, opening string, maxRounds int) ([]Exchange, error) {
	transcript := []Exchange{{Speaker: a.Name(), Utterance: opening, Continue: true}}
	observation := fmt.Sprintf("%s said %q", a.Name(), opening)
	speakers := [2]Reactor{b, a}

	for round := 0; round < maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return transcript, err
		}
		speaker := speakers[round%2]
		keepGoing, utterance, err := speaker.React(ctx, observation)
		if err != nil {
			return transcript, fmt.Errorf("round %d: %w", round, err)
		}
		transcript = append(transcript, Exchange{Speaker: speaker.Name(), Utterance: utterance, Continue: keepGoing})
		if !keepGoing {
			break
		}
		observation = fmt.Sprintf("%s said %q", speaker.Name(), utterance)
	}
	return transcript, nil
}
