package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nidhogg/nuka-dialogue/internal/embedding"
	"github.com/nidhogg/nuka-dialogue/internal/memory"
	"github.com/nidhogg/nuka-dialogue/internal/provider"
	"go.uber.org/zap"
)

type stubLLM struct {
	reaction  string
	reply     string
	summaries int
	lastSend  []provider.Message
}

func (s *stubLLM) Generate(_ context.Context, msgs []provider.Message) (string, error) {
	prompt := msgs[len(msgs)-1].Content
	switch {
	case strings.Contains(prompt, "poignancy"):
		return "4", nil
	case strings.Contains(prompt, "core characteristics"):
		s.summaries++
		return fmt.Sprintf("Alice is curious (v%d)", s.summaries), nil
	case strings.Contains(prompt, "Should Alice react"):
		return s.reaction, nil
	default:
		s.lastSend = msgs
		return s.reply, nil
	}
}

func newAgent(llm provider.LLM, opts Options) *Agent {
	stream := memory.NewStream("Alice", llm, embedding.NewHashProvider(128), memory.DefaultConfig(), zap.NewNop())
	return New(Persona{Name: "Alice", Age: 30, Traits: "curious, kind"}, llm, memory.NewReflector(stream, llm, nil), opts, zap.NewNop())
}

func TestReceiveAppendsTranscript(t *testing.T) {
	ctx := context.Background()
	a := newAgent(&stubLLM{}, Options{})
	if err := a.Receive(ctx, "Bob", "hello"); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := a.Receive(ctx, "Alice", "hi Bob"); err != nil {
		t.Fatalf("receive: %v", err)
	}
	got := a.Transcript()
	if len(got) != 2 || got[0] != "Bob: hello" || got[1] != "Alice: hi Bob" {
		t.Fatalf("transcript = %v", got)
	}
	if a.Memory().Stream().Len() != 0 {
		t.Errorf("transcript lines must not reach memory by default")
	}
}

func TestReceiveRememberDialogue(t *testing.T) {
	a := newAgent(&stubLLM{}, Options{RememberDialogue: true})
	if err := a.Receive(context.Background(), "Bob", "the bakery closed"); err != nil {
		t.Fatalf("receive: %v", err)
	}
	recs := a.Memory().Stream().Records()
	if len(recs) != 1 || recs[0].Content != "Bob: the bakery closed" {
		t.Fatalf("records = %+v", recs)
	}
}

func TestSendUsesTranscript(t *testing.T) {
	ctx := context.Background()
	llm := &stubLLM{reply: "Alice: Good morning, Bob."}
	a := newAgent(llm, Options{})
	_ = a.Receive(ctx, "Narrator", "Alice meets Bob at the market.")
	_ = a.Receive(ctx, "Bob", "Morning!")

	got, err := a.Send(ctx)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got != "Good morning, Bob." {
		t.Errorf("utterance = %q", got)
	}
	prompt := llm.lastSend[len(llm.lastSend)-1].Content
	if !strings.Contains(prompt, "Bob: Morning!") || !strings.HasSuffix(prompt, "Alice:") {
		t.Errorf("prompt = %q", prompt)
	}
}

func TestReact(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		wantGo    bool
		wantText  string
		wantNotes string
	}{
		{"say", `SAY: "Nice to meet you!"`, true, "Nice to meet you!", "said Nice to meet you!"},
		{"goodbye", "GOODBYE: See you tomorrow.", false, "See you tomorrow.", "said See you tomorrow."},
		{"react", "REACT: Alice waves.", false, "Alice waves.", "reacted by Alice waves."},
		{"raw", "Alice nods quietly.", false, "Alice nods quietly.", "reacted by Alice nods quietly."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAgent(&stubLLM{reaction: tt.output}, Options{})
			keepGoing, text, err := a.React(context.Background(), "Bob says hello")
			if err != nil {
				t.Fatalf("react: %v", err)
			}
			if keepGoing != tt.wantGo || text != tt.wantText {
				t.Errorf("got (%v, %q), want (%v, %q)", keepGoing, text, tt.wantGo, tt.wantText)
			}
			recs := a.Memory().Stream().Records()
			if len(recs) != 2 {
				t.Fatalf("records = %d, want observation + own reaction", len(recs))
			}
			if recs[0].Content != "Bob says hello" || !strings.HasSuffix(recs[1].Content, tt.wantNotes) {
				t.Errorf("records = %q, %q", recs[0].Content, recs[1].Content)
			}
		})
	}
}

func TestSummaryCached(t *testing.T) {
	ctx := context.Background()
	llm := &stubLLM{}
	a := newAgent(llm, Options{})
	if err := a.Observe(ctx, "Alice reads every evening"); err != nil {
		t.Fatalf("observe: %v", err)
	}

	first, err := a.Summary(ctx, false)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	second, err := a.Summary(ctx, false)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if first != second || llm.summaries != 1 {
		t.Fatalf("expected cached summary, got %q then %q (%d calls)", first, second, llm.summaries)
	}
	if !strings.Contains(first, "Innate traits: curious, kind") {
		t.Errorf("summary missing traits: %q", first)
	}

	forced, err := a.Summary(ctx, true)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if forced == first || llm.summaries != 2 {
		t.Errorf("force refresh should regenerate, got %q", forced)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	a := newAgent(&stubLLM{}, Options{RememberDialogue: true})
	_ = a.Receive(ctx, "Bob", "hi")
	if _, err := a.Summary(ctx, false); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if err := a.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(a.Transcript()) != 0 || a.Memory().Stream().Len() != 0 {
		t.Errorf("reset left state behind")
	}
}

func TestParseReaction(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
		text string
	}{
		{`SAY: "hello"`, KindSay, "hello"},
		{"Alice thinks.\nREACT: shrugs\nSAY: no", KindReact, "shrugs"},
		{"GOODBYE: bye!", KindGoodbye, "bye!"},
		{"  nothing  ", KindUnknown, "nothing"},
	}
	for _, tt := range tests {
		kind, text := ParseReaction(tt.in)
		if kind != tt.kind || text != tt.text {
			t.Errorf("ParseReaction(%q) = %v, %q; want %v, %q", tt.in, kind, text, tt.kind, tt.text)
		}
	}
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "alice"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"SOUL.md":     "  Alice is a baker.\n",
		"GOALS.md":    "Open a second shop.",
		"MEMORIES.md": "# seeds\n- Alice burned the rye loaves on Monday\n\n- Alice's oven is new\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, "alice", name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	p, err := LoadProfile(dir, "alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := p.Prompt(); got != "Alice is a baker.\n\n---\n\nOpen a second shop." {
		t.Errorf("prompt = %q", got)
	}
	if len(p.Memories) != 2 || p.Memories[1] != "Alice's oven is new" {
		t.Errorf("memories = %q", p.Memories)
	}

	empty, err := LoadProfile(dir, "nobody")
	if err != nil || empty.Prompt() != "" || len(empty.Memories) != 0 {
		t.Errorf("missing profile should be empty, got %+v, %v", empty, err)
	}
}
