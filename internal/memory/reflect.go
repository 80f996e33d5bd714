package memory

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/nuka-dialogue/internal/provider"
	"go.uber.org/zap"
)

// Reflection prompts. {subject}, {observations}, {question} and {count} are
// substituted before each call.
const (
	DefaultQuestionPrompt = `{observations}

Given only the information above, what are the {count} most salient high-level questions we can answer about {subject}? Write one question per line.`

	DefaultInsightPrompt = `Statements about {subject}:
{observations}

What {count} high-level insights can you infer from the above statements that help answer the question: {question}
Write one insight per line. Do not repeat insights that were already made.`

	DefaultDirectPrompt = `Statements about {subject}:
{observations}

What {count} high-level insights do these observations suggest? Write one insight per line.`
)

const reflectionSystem = "You help a character reflect on their recent experiences."

// State is the reflection engine's phase.
type State int

const (
	Accumulating State = iota
	Synthesizing
)

func (s State) String() string {
	if s == Synthesizing {
		return "synthesizing"
	}
	return "accumulating"
}

// Reflector wraps a Stream and runs a synthesis pass each time the importance
// added since the last pass exceeds the threshold. Observe holds the lock for
// the whole pass, so no other insert reaches the stream until it finishes.
type Reflector struct {
	stream *Stream
	llm    provider.LLM
	cfg    ReflectionConfig
	logger *zap.Logger

	mu        sync.Mutex
	aggregate float64
	state     State
	passes    int
}

// NewReflector attaches a reflection engine to stream. Prompts are sent to llm.
func NewReflector(stream *Stream, llm provider.LLM, logger *zap.Logger) *Reflector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reflector{
		stream: stream,
		llm:    llm,
		cfg:    stream.Config().Reflection,
		logger: logger,
	}
}

// Stream returns the underlying memory stream.
func (r *Reflector) Stream() *Stream { return r.stream }

// Aggregate is the importance accumulated since the last pass.
func (r *Reflector) Aggregate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aggregate
}

// State reports the current phase.
func (r *Reflector) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Passes counts completed synthesis passes.
func (r *Reflector) Passes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.passes
}

// Observe adds content to the stream and reflects if the threshold is crossed.
// The returned importance belongs to content itself.
func (r *Reflector) Observe(ctx context.Context, content string) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	importance, err := r.stream.Add(ctx, content)
	if err != nil {
		return 0, err
	}
	r.aggregate += importance
	if r.aggregate > r.cfg.Threshold && r.state == Accumulating {
		if err := r.reflect(ctx); err != nil {
			return importance, err
		}
	}
	return importance, nil
}

// Reset clears the stream and the accumulated importance.
func (r *Reflector) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aggregate = 0
	r.state = Accumulating
	return r.stream.Reset(ctx)
}

// reflect runs one synthesis pass. Insights are added straight to the stream:
// their importance accrues but cannot start another pass, and the aggregate is
// zeroed when the pass ends whether or not it produced anything.
func (r *Reflector) reflect(ctx context.Context) error {
	start := time.Now()
	r.state = Synthesizing
	inserted := 0
	defer func() {
		r.aggregate = 0
		r.state = Accumulating
		r.passes++
		if r.stream.observer != nil {
			r.stream.observer.ReflectionCompleted(r.stream.subject, inserted, time.Since(start))
		}
	}()

	window := r.stream.Recent(r.cfg.RecentWindow)
	if len(window) == 0 {
		return nil
	}
	observations := numbered(window)

	r.logger.Info("reflection started",
		zap.String("subject", r.stream.subject),
		zap.Float64("aggregate", r.aggregate),
		zap.Int("window", len(window)))

	questions, err := r.ask(ctx, r.cfg.QuestionPrompt, observations, "", r.cfg.Questions)
	if err != nil {
		return fmt.Errorf("reflection questions: %w", err)
	}

	var insights []string
	if len(questions) == 0 {
		insights, err = r.ask(ctx, r.cfg.DirectPrompt, observations, "", r.cfg.InsightsPerQuestion)
		if err != nil {
			return fmt.Errorf("reflection insights: %w", err)
		}
	}
	for _, q := range questions {
		got, err := r.ask(ctx, r.cfg.InsightPrompt, observations, q, r.cfg.InsightsPerQuestion)
		if err != nil {
			return fmt.Errorf("reflection insights: %w", err)
		}
		insights = append(insights, got...)
	}

	if len(insights) == 0 {
		r.logger.Warn("reflection produced no parseable insights",
			zap.String("subject", r.stream.subject))
		return nil
	}

	for _, insight := range insights {
		importance, err := r.stream.Add(ctx, insight)
		if err != nil {
			return fmt.Errorf("store insight: %w", err)
		}
		r.aggregate += importance
		inserted++
	}

	r.logger.Info("reflection complete",
		zap.String("subject", r.stream.subject),
		zap.Int("questions", len(questions)),
		zap.Int("insights", inserted))
	return nil
}

func (r *Reflector) ask(ctx context.Context, template, observations, question string, count int) ([]string, error) {
	prompt := strings.NewReplacer(
		"{subject}", r.stream.subject,
		"{observations}", observations,
		"{question}", question,
		"{count}", strconv.Itoa(count),
	).Replace(template)

	out, err := r.llm.Generate(ctx, []provider.Message{
		provider.System(reflectionSystem),
		provider.User(prompt),
	})
	if err != nil {
		return nil, err
	}
	return ParseList(out, count), nil
}

var (
	listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)
	citation   = regexp.MustCompile(`\s*\((?:because of|because|citing)[^)]*\)\s*\.?$`)
)

// ParseList splits model output into at most max non-empty items, dropping
// bullets, numbering and trailing citations.
func ParseList(text string, max int) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = listMarker.ReplaceAllString(line, "")
		line = citation.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		items = append(items, line)
		if max > 0 && len(items) == max {
			break
		}
	}
	return items
}

func numbered(records []Record) string {
	var b strings.Builder
	for i, rec := range records {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rec.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
