package memory

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nidhogg/nuka-dialogue/internal/provider"
	"go.uber.org/zap"
)

// DefaultImportancePrompt asks for a poignancy rating. {min}, {max} and
// {memory} are substituted before the call.
const DefaultImportancePrompt = `On the scale of {min} to {max}, where {min} is purely mundane (e.g., brushing teeth, making bed) and {max} is extremely poignant (e.g., a break up, college acceptance), rate the likely poignancy of the following piece of memory.
Respond with a single integer.
Memory: {memory}
Rating: `

const importanceSystem = "You rate how important memories are. Answer with a number only."

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// ParseImportance extracts the first number in text and clamps it to [min,max].
// ok is false when text holds no number.
func ParseImportance(text string, min, max float64) (float64, bool) {
	m := numberPattern.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return v, true
}

// scoreImportance asks the model to rate content. Unparseable answers fall
// back to the midpoint of the configured range.
func (s *Stream) scoreImportance(ctx context.Context, content string) (float64, error) {
	prompt := strings.NewReplacer(
		"{min}", formatScale(s.cfg.ImportanceMin),
		"{max}", formatScale(s.cfg.ImportanceMax),
		"{memory}", content,
	).Replace(s.cfg.ImportancePrompt)

	out, err := s.llm.Generate(ctx, []provider.Message{
		provider.System(importanceSystem),
		provider.User(prompt),
	})
	if err != nil {
		return 0, fmt.Errorf("score importance: %w", err)
	}
	if v, ok := ParseImportance(out, s.cfg.ImportanceMin, s.cfg.ImportanceMax); ok {
		return v, nil
	}
	mid := (s.cfg.ImportanceMin + s.cfg.ImportanceMax) / 2
	s.logger.Warn("unparseable importance, using midpoint",
		zap.String("subject", s.subject),
		zap.String("response", out),
		zap.Float64("importance", mid))
	return mid, nil
}

func formatScale(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
