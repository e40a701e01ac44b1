package assistant

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"pkt.systems/shellm/internal/logx"
	"pkt.systems/shellm/schema"
)

// MockConfig tunes the offline backend.
type MockConfig struct {
	// TokenDelay is the pause before each event. Zero means no pause.
	TokenDelay time.Duration
	// Fail, when set, ends every stream with this error kind instead of a reply.
	Fail schema.ErrorKind
}

// Mock is a deterministic backend for demos and tests. It never touches the network.
type Mock struct {
	cfg MockConfig
}

// NewMock returns an offline backend.
func NewMock(cfg MockConfig) *Mock {
	return &Mock{cfg: cfg}
}

type mockRule struct {
	keywords []string
	command  string
	answer   string
}

var mockRules = []mockRule{
	{keywords: []string{"list", "files"}, command: "ls -la", answer: "List files"},
	{keywords: []string{"disk"}, command: "df -h", answer: "Show disk usage per filesystem"},
	{keywords: []string{"where"}, command: "pwd", answer: "Print the working directory"},
	{keywords: []string{"process"}, command: "ps aux", answer: "List running processes"},
	{keywords: []string{"列出", "文件"}, command: "ls -la", answer: "列出文件"},
}

// Submit replies with a canned command for known phrases and echoes the question otherwise.
func (m *Mock) Submit(ctx context.Context, req schema.ChatRequest) (Stream, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, errors.New("empty question")
	}
	events := m.script(req)
	logx.WithExchange(ctx, req.ID).Debug("mock assistant request", "events", len(events))
	return &mockStream{events: events, delay: m.cfg.TokenDelay}, nil
}

func (m *Mock) script(req schema.ChatRequest) []schema.StreamEvent {
	question := strings.ToLower(strings.TrimSpace(req.Question))
	command, answer := "", "No canned command for: "+req.Question
	for _, rule := range mockRules {
		if containsAll(question, rule.keywords) {
			command, answer = rule.command, rule.answer
			break
		}
	}
	events := []schema.StreamEvent{schema.ReasoningEvent("Matching the question against known phrases.")}
	if m.cfg.Fail != 0 {
		return append(events, schema.ErrorEvent(m.cfg.Fail, "mock failure"))
	}
	for _, word := range splitKeepSpace(answer) {
		events = append(events, schema.TokenEvent(word))
	}
	return append(events, schema.DoneEvent(command, answer))
}

func containsAll(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}

// splitKeepSpace splits on spaces, attaching each space to the following word.
func splitKeepSpace(s string) []string {
	var parts []string
	start := 0
	for i := 1; i < len(s); i++ {
		if s[i] == ' ' {
			parts = append(parts, s[start:i])
			start = i
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

type mockStream struct {
	events []schema.StreamEvent
	delay  time.Duration
}

func (s *mockStream) Next(ctx context.Context) (schema.StreamEvent, error) {
	if err := ctx.Err(); err != nil {
		return schema.StreamEvent{}, err
	}
	if len(s.events) == 0 {
		return schema.StreamEvent{}, io.EOF
	}
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return schema.StreamEvent{}, ctx.Err()
		case <-timer.C:
		}
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *mockStream) Close() error {
	s.events = nil
	return nil
}
