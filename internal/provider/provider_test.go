package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type fakeProvider struct {
	id    string
	reply string
	err   error
	calls int
}

func (f *fakeProvider) ID() string   { return f.id }
func (f *fakeProvider) Name() string { return f.id }
func (f *fakeProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ChatResponse{Content: f.reply}, nil
}

func TestOpenAIProviderChat(t *testing.T) {
	var got ChatRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing auth header")
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(openAIChatResponse{
			Model:   got.Model,
			Choices: []openAIChoice{{Message: Message{Role: "assistant", Content: "hello"}, FinishReason: "stop"}},
			Usage:   Usage{TotalTokens: 7},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewOpenAIProvider(ProviderConfig{ID: "oai", Endpoint: srv.URL, APIKey: "sk-test", Models: []string{"gpt-test"}}, zap.NewNop())
	resp, err := p.Chat(context.Background(), &ChatRequest{Messages: []Message{User("hi")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("got %q, want %q", resp.Content, "hello")
	}
	if got.Model != "gpt-test" {
		t.Errorf("expected default model to be filled, got %q", got.Model)
	}
}

func TestOpenAIProviderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(ProviderConfig{ID: "oai", Endpoint: srv.URL}, nil)
	_, err := p.Chat(context.Background(), &ChatRequest{Messages: []Message{User("hi")}})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusTooManyRequests || !se.Retryable() {
		t.Errorf("got %+v", se)
	}
	if (&StatusError{Code: http.StatusBadRequest}).Retryable() {
		t.Error("400 should not be retryable")
	}
}

func TestAnthropicProviderChat(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "key" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing headers: %v", r.Header)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"model":"claude-test","content":[{"type":"text","text":"SAY: "},{"type":"text","text":"hello"}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider(ProviderConfig{ID: "claude", Endpoint: srv.URL, APIKey: "key", Temperature: 0.7}, nil)
	resp, err := p.Chat(context.Background(), &ChatRequest{Messages: []Message{System("be brief"), User("hi")}, Stop: []string{"\n"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "SAY: hello" || resp.Usage.TotalTokens != 5 {
		t.Errorf("got %+v", resp)
	}
	if got.System != "be brief" || got.Temperature != 0.7 || len(got.StopSequences) != 1 {
		t.Errorf("request = %+v", got)
	}
}

func TestAnthropicConvertRequest(t *testing.T) {
	p := NewAnthropicProvider(ProviderConfig{ID: "claude"}, nil)
	ar := p.convertRequest(&ChatRequest{Messages: []Message{
		System("persona"),
		System("memories"),
		User("one"),
		User("two"),
	}})
	if ar.System != "persona\n\nmemories" {
		t.Errorf("got system %q", ar.System)
	}
	if len(ar.Messages) != 1 || ar.Messages[0].Content != "one\n\ntwo" {
		t.Errorf("expected merged user turn, got %+v", ar.Messages)
	}
	if ar.Model != defaultAnthropicModel || ar.MaxTokens != 4096 {
		t.Errorf("defaults not applied: %+v", ar)
	}
}

func TestRouterFallback(t *testing.T) {
	r := NewRouter(zap.NewNop())
	primary := &fakeProvider{id: "a", err: errors.New("boom")}
	backup := &fakeProvider{id: "b", reply: "ok"}
	r.Register(primary)
	r.Register(backup)
	r.SetFallbacks("alice", []string{"b"})

	out, err := r.For("alice", "", 0).Generate(context.Background(), []Message{User("x")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" || primary.calls != 1 || backup.calls != 1 {
		t.Errorf("got %q primary=%d backup=%d", out, primary.calls, backup.calls)
	}
}

func TestRouterWrapsUnavailable(t *testing.T) {
	r := NewRouter(nil)
	_, err := r.Route(context.Background(), "nobody", &ChatRequest{})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}

	r.Register(&fakeProvider{id: "a", err: errors.New("down")})
	_, err = r.Route(context.Background(), "nobody", &ChatRequest{})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestRouterStopsOnCancelledContext(t *testing.T) {
	r := NewRouter(nil)
	primary := &fakeProvider{id: "a", err: context.Canceled}
	backup := &fakeProvider{id: "b", reply: "ok"}
	r.Register(primary)
	r.Register(backup)
	r.SetFallbacks("alice", []string{"b"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Route(ctx, "alice", &ChatRequest{}); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if backup.calls != 0 {
		t.Errorf("fallback should not run after cancellation, got %d calls", backup.calls)
	}
}

func TestRateLimitedPassthrough(t *testing.T) {
	inner := &fakeProvider{id: "a", reply: "ok"}
	if NewRateLimited(inner, 0, 0) != Provider(inner) {
		t.Fatal("zero rate should return the provider unchanged")
	}
	limited := NewRateLimited(inner, 100, 2)
	for i := 0; i < 2; i++ {
		if _, err := limited.Chat(context.Background(), &ChatRequest{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if inner.calls != 2 {
		t.Errorf("got %d calls, want 2", inner.calls)
	}
}
