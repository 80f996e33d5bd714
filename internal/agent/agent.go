// Package agent wraps a memory stream, a persona and a language model into a
// conversational character.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/nuka-dialogue/internal/memory"
	"github.com/nidhogg/nuka-dialogue/internal/provider"
	"go.uber.org/zap"
)

// Options tunes prompt assembly.
type Options struct {
	// ContextK is how many memories a reaction or summary retrieves.
	ContextK int `json:"context_k"`
	// RememberDialogue also stores received dialogue lines as observations.
	RememberDialogue bool `json:"remember_dialogue"`
	// TranscriptLimit caps how many transcript lines Send includes; 0 means all.
	TranscriptLimit int `json:"transcript_limit"`
}

const defaultContextK = 5

// Agent is one simulated character. It owns its memory exclusively.
type Agent struct {
	persona Persona
	llm     provider.LLM
	mem     *memory.Reflector
	opts    Options
	logger  *zap.Logger

	mu         sync.Mutex
	transcript []string
	status     Status

	summaryMu sync.Mutex
	summary   string
}

// New creates an agent with an empty transcript around mem.
func New(persona Persona, llm provider.LLM, mem *memory.Reflector, opts Options, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ContextK <= 0 {
		opts.ContextK = defaultContextK
	}
	return &Agent{
		persona: persona,
		llm:     llm,
		mem:     mem,
		opts:    opts,
		logger:  logger.With(zap.String("agent", persona.Name)),
		status:  StatusIdle,
	}
}

// Name returns the agent's unique name.
func (a *Agent) Name() string { return a.persona.Name }

// Persona returns the agent's identity.
func (a *Agent) Persona() Persona { return a.persona }

// Memory returns the agent's reflective memory.
func (a *Agent) Memory() *memory.Reflector { return a.mem }

// Status reports what the agent is doing right now.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Agent) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

// Observe stores content as a memory, possibly triggering a reflection.
func (a *Agent) Observe(ctx context.Context, content string) error {
	before := a.mem.Passes()
	a.setStatus(StatusReflecting)
	defer a.setStatus(StatusIdle)
	importance, err := a.mem.Observe(ctx, content)
	if err != nil {
		return fmt.Errorf("%s observe: %w", a.persona.Name, err)
	}
	a.logger.Debug("observed",
		zap.Float64("importance", importance),
		zap.Bool("reflected", a.mem.Passes() > before))
	return nil
}

// React records observation, consults memory and asks the model how to
// respond. keepGoing reports whether the agent wants the exchange to continue.
func (a *Agent) React(ctx context.Context, observation string) (keepGoing bool, utterance string, err error) {
	if err := a.Observe(ctx, observation); err != nil {
		return false, "", err
	}
	a.setStatus(StatusThinking)
	defer a.setStatus(StatusIdle)

	summary, err := a.Summary(ctx, false)
	if err != nil {
		return false, "", err
	}
	recalled, err := a.mem.Stream().Query(ctx, observation, a.opts.ContextK)
	if err != nil {
		return false, "", fmt.Errorf("%s recall: %w", a.persona.Name, err)
	}
	now := a.mem.Stream().Now()

	msgs := a.systemMessages(summary)
	if block := memory.FormatContextPrompt(recalled, now); block != "" {
		msgs = append(msgs, provider.System(block))
	}
	msgs = append(msgs, provider.User(reactionPrompt(a.persona, observation, now)))

	out, err := a.llm.Generate(ctx, msgs)
	if err != nil {
		return false, "", fmt.Errorf("%s react: %w", a.persona.Name, err)
	}

	kind, text := ParseReaction(out)
	var note string
	switch kind {
	case KindSay:
		keepGoing = true
		utterance = text
		note = fmt.Sprintf("%s observed %s and said %s", a.persona.Name, observation, text)
	case KindGoodbye:
		utterance = text
		note = fmt.Sprintf("%s observed %s and said %s", a.persona.Name, observation, text)
	default:
		utterance = text
		note = fmt.Sprintf("%s observed %s and reacted by %s", a.persona.Name, observation, text)
	}
	if strings.TrimSpace(text) != "" {
		if err := a.Observe(ctx, note); err != nil {
			return keepGoing, utterance, err
		}
	}
	a.logger.Info("reacted", zap.String("kind", string(kind)), zap.Bool("continue", keepGoing))
	return keepGoing, utterance, nil
}

// Summary returns the cached self-description, regenerating it when force is
// set or nothing is cached yet.
func (a *Agent) Summary(ctx context.Context, force bool) (string, error) {
	a.summaryMu.Lock()
	defer a.summaryMu.Unlock()
	if a.summary != "" && !force {
		return a.summary, nil
	}

	query := fmt.Sprintf("%s's core characteristics", a.persona.Name)
	recalled, err := a.mem.Stream().Query(ctx, query, a.opts.ContextK)
	if err != nil {
		return "", fmt.Errorf("%s summary recall: %w", a.persona.Name, err)
	}

	core := ""
	if len(recalled) > 0 {
		var statements strings.Builder
		for _, r := range recalled {
			statements.WriteString(r.Content)
			statements.WriteString("\n")
		}
		prompt := fmt.Sprintf("How would you summarize %s's core characteristics given the following statements:\n%s\nDo not embellish.\n\nSummary: ",
			a.persona.Name, statements.String())
		core, err = a.llm.Generate(ctx, []provider.Message{
			provider.System("You write short, factual character summaries."),
			provider.User(prompt),
		})
		if err != nil {
			return "", fmt.Errorf("%s summary: %w", a.persona.Name, err)
		}
		core = strings.TrimSpace(core)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s", a.persona.Name)
	if a.persona.Age > 0 {
		fmt.Fprintf(&b, " (age: %d)", a.persona.Age)
	}
	if a.persona.Traits != "" {
		fmt.Fprintf(&b, "\nInnate traits: %s", a.persona.Traits)
	}
	if core != "" {
		fmt.Fprintf(&b, "\n%s", core)
	}
	a.summary = b.String()
	a.logger.Debug("summary refreshed", zap.Int("memories", len(recalled)))
	return a.summary, nil
}

// Send produces the agent's next dialogue line from its transcript.
func (a *Agent) Send(ctx context.Context) (string, error) {
	a.setStatus(StatusThinking)
	defer a.setStatus(StatusIdle)

	a.mu.Lock()
	lines := a.transcript
	if n := a.opts.TranscriptLimit; n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	history := strings.Join(lines, "\n")
	a.mu.Unlock()

	msgs := a.systemMessages("")
	prompt := fmt.Sprintf("%s\n%s:", history, a.persona.Name)
	if history == "" {
		prompt = fmt.Sprintf("Begin the conversation.\n%s:", a.persona.Name)
	}
	msgs = append(msgs, provider.User(prompt))

	out, err := a.llm.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("%s send: %w", a.persona.Name, err)
	}
	out = strings.TrimSpace(out)
	out = strings.TrimSpace(strings.TrimPrefix(out, a.persona.Name+":"))
	return out, nil
}

// Receive appends "speaker: message" to the transcript. With RememberDialogue
// the line is also stored as a memory.
func (a *Agent) Receive(ctx context.Context, speaker, message string) error {
	line := fmt.Sprintf("%s: %s", speaker, message)
	a.mu.Lock()
	a.transcript = append(a.transcript, line)
	a.mu.Unlock()

	if a.opts.RememberDialogue && strings.TrimSpace(message) != "" {
		return a.Observe(ctx, line)
	}
	return nil
}

// Transcript returns a copy of the received lines.
func (a *Agent) Transcript() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.transcript))
	copy(out, a.transcript)
	return out
}

// Reset clears the transcript, the cached summary and all memories.
func (a *Agent) Reset(ctx context.Context) error {
	a.mu.Lock()
	a.transcript = nil
	a.status = StatusIdle
	a.mu.Unlock()

	a.summaryMu.Lock()
	a.summary = ""
	a.summaryMu.Unlock()

	return a.mem.Reset(ctx)
}

func (a *Agent) systemMessages(summary string) []provider.Message {
	var msgs []provider.Message
	if a.persona.SystemPrompt != "" {
		msgs = append(msgs, provider.System(a.persona.SystemPrompt))
	}
	desc := fmt.Sprintf("You are %s.", a.persona.Name)
	if a.persona.Backstory != "" {
		desc += "\nBackground: " + a.persona.Backstory
	}
	if summary != "" {
		desc += "\n" + summary
	}
	return append(msgs, provider.System(desc))
}

func reactionPrompt(p Persona, observation string, now time.Time) string {
	status := p.Status
	if status == "" {
		status = "going about their day"
	}
	return fmt.Sprintf(`It is %s.
%s's status: %s
Observation: %s

Should %s react to the observation, and if so, what would be an appropriate reaction? Respond in one line.
To say something, write:
SAY: what to say
To end the conversation, write:
GOODBYE: what to say
Otherwise, write:
REACT: %s's reaction (if anything).
Either do nothing, react, or say something but not more than one.`,
		now.Format("January 02, 2006, 03:04 PM"), p.Name, status, observation, p.Name, p.Name)
}
