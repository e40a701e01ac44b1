package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go/v2"

	"pkt.systems/shellm/schema"
)

func sseChunk(t *testing.T, delta map[string]any) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "test-model",
		"choices": []any{map[string]any{"index": 0, "delta": delta, "finish_reason": nil}},
	})
	if err != nil {
		t.Fatalf("marshal chunk: %v", err)
	}
	return "data: " + string(data) + "\n\n"
}

type capturedRequest struct {
	mu   sync.Mutex
	body map[string]any
}

func newSSEServer(t *testing.T, chunks []string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if captured != nil {
			captured.mu.Lock()
			_ = json.NewDecoder(r.Body).Decode(&captured.body)
			captured.mu.Unlock()
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			_, _ = io.WriteString(w, chunk)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string) *OpenAI {
	t.Helper()
	client, err := NewOpenAI(OpenAIConfig{
		APIKey:  "sk-test",
		BaseURL: baseURL + "/v1",
		Model:   "test-model",
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func collect(t *testing.T, stream Stream) []schema.StreamEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var events []schema.StreamEvent
	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return events
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		events = append(events, ev)
	}
}

func TestOpenAIStreamsTokensThenDone(t *testing.T) {
	captured := &capturedRequest{}
	srv := newSSEServer(t, []string{
		sseChunk(t, map[string]any{"role": "assistant", "reasoning_content": "User wants files."}),
		sseChunk(t, map[string]any{"content": "```json\n{\"command\": \"ls -la\", "}),
		sseChunk(t, map[string]any{"content": "\"answer\": \"List"}),
		sseChunk(t, map[string]any{"content": " files\"}\n```"}),
	}, captured)
	client := newTestClient(t, srv.URL)

	stream, err := client.Submit(context.Background(), schema.ChatRequest{
		ID:       "x-1",
		Question: "list files",
		Env:      schema.EnvContext{OS: "Linux", Arch: "x86_64", Shell: "bash", Lang: "en-US"},
		History:  []schema.Turn{{Question: "hi", Answer: "hello", Command: ""}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	defer func() { _ = stream.Close() }()
	events := collect(t, stream)

	want := []schema.StreamEvent{
		schema.ReasoningEvent("User wants files."),
		schema.TokenEvent("List"),
		schema.TokenEvent(" files"),
		schema.DoneEvent("ls -la", "List files"),
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d: got %+v want %+v", i, events[i], want[i])
		}
	}

	captured.mu.Lock()
	defer captured.mu.Unlock()
	messages, _ := captured.body["messages"].([]any)
	if len(messages) != 4 {
		t.Fatalf("expected system + history pair + question, got %d", len(messages))
	}
	system, _ := messages[0].(map[string]any)
	if content, _ := system["content"].(string); !strings.Contains(content, "Linux (x86_64) running bash") {
		t.Fatalf("expected rendered system prompt, got %q", content)
	}
	last, _ := messages[3].(map[string]any)
	if last["content"] != "list files" {
		t.Fatalf("expected question last, got %+v", last)
	}
	if captured.body["stream"] != true {
		t.Fatalf("expected streaming request, got %+v", captured.body["stream"])
	}
}

func TestOpenAIMalformedReply(t *testing.T) {
	srv := newSSEServer(t, []string{
		sseChunk(t, map[string]any{"content": "I am not sure what you mean."}),
	}, nil)
	stream, err := newTestClient(t, srv.URL).Submit(context.Background(), schema.ChatRequest{Question: "??"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	events := collect(t, stream)
	if len(events) != 1 || events[0].Kind != schema.StreamError || events[0].Error != schema.ErrorMalformedResponse {
		t.Fatalf("expected malformed error, got %+v", events)
	}
}

func TestOpenAIStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   schema.ErrorKind
	}{
		{http.StatusUnauthorized, schema.ErrorAuth},
		{http.StatusForbidden, schema.ErrorAuth},
		{http.StatusTooManyRequests, schema.ErrorRateLimit},
		{http.StatusBadRequest, schema.ErrorNetwork},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After-Ms", "1")
			w.WriteHeader(tc.status)
			_, _ = fmt.Fprintf(w, `{"error":{"message":"status %d","type":"test"}}`, tc.status)
		}))
		stream, err := newTestClient(t, srv.URL).Submit(context.Background(), schema.ChatRequest{Question: "list files"})
		if err != nil {
			srv.Close()
			t.Fatalf("submit: %v", err)
		}
		events := collect(t, stream)
		srv.Close()
		if len(events) != 1 || events[0].Kind != schema.StreamError || events[0].Error != tc.want {
			t.Fatalf("status %d: expected %v, got %+v", tc.status, tc.want, events)
		}
	}
}

func TestOpenAICancelledContextEndsWithoutEvent(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseChunk(t, map[string]any{"content": "{\"answer\": \"par"}))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := newTestClient(t, srv.URL).Submit(ctx, schema.ChatRequest{Question: "list files"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	ev, err := stream.Next(ctx)
	if err != nil || ev.Kind != schema.StreamToken || ev.Text != "par" {
		t.Fatalf("expected first token, got %+v %v", ev, err)
	}
	cancel()
	if _, err := stream.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{Model: "m"})
	if !errors.Is(err, schema.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

type fakeChunks struct {
	chunks []openai.ChatCompletionChunk
	err    error
	closed bool
}

func (f *fakeChunks) Next() bool {
	if len(f.chunks) == 0 {
		return false
	}
	return true
}

func (f *fakeChunks) Current() openai.ChatCompletionChunk {
	c := f.chunks[0]
	f.chunks = f.chunks[1:]
	return c
}

func (f *fakeChunks) Err() error   { return f.err }
func (f *fakeChunks) Close() error { f.closed = true; return nil }

func chunkFromJSON(t *testing.T, raw string) openai.ChatCompletionChunk {
	t.Helper()
	var chunk openai.ChatCompletionChunk
	if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
		t.Fatalf("unmarshal chunk: %v", err)
	}
	return chunk
}

func TestChatStreamReadsAlternateReasoningField(t *testing.T) {
	src := &fakeChunks{chunks: []openai.ChatCompletionChunk{
		chunkFromJSON(t, `{"id":"1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"reasoning":"thinking"}}]}`),
		chunkFromJSON(t, `{"id":"1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"{\"command\":\"pwd\",\"answer\":\"here\"}"}}]}`),
	}}
	cancelled := false
	stream := newChatStream(src, func() { cancelled = true }, discardLogger())
	events := collect(t, stream)
	if len(events) != 3 {
		t.Fatalf("expected reasoning, token, done; got %+v", events)
	}
	if events[0] != schema.ReasoningEvent("thinking") || events[1] != schema.TokenEvent("here") || events[2] != schema.DoneEvent("pwd", "here") {
		t.Fatalf("unexpected events %+v", events)
	}
	if err := stream.Close(); err != nil || !src.closed || !cancelled {
		t.Fatalf("expected close to cancel and release the source")
	}
}

func TestChatStreamTransportErrorIsNetwork(t *testing.T) {
	src := &fakeChunks{err: errors.New("connection reset by peer")}
	events := collect(t, newChatStream(src, nil, discardLogger()))
	if len(events) != 1 || events[0].Error != schema.ErrorNetwork {
		t.Fatalf("expected network error, got %+v", events)
	}
}
