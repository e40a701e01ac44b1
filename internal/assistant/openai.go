package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/tidwall/gjson"

	"pkt.systems/pslog"
	"pkt.systems/shellm/internal/logx"
	"pkt.systems/shellm/internal/sysinfo"
	"pkt.systems/shellm/schema"
)

// OpenAIConfig configures an OpenAI-compatible chat completions backend.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	PromptTemplate string
	Timeout        time.Duration
}

// OpenAI streams chat completions from an OpenAI-compatible endpoint.
type OpenAI struct {
	client   *openai.Client
	model    string
	template string
	timeout  time.Duration
}

// NewOpenAI builds the client. A missing API key is a configuration error.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is not set", schema.ErrConfig)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%w: model is not set", schema.ErrConfig)
	}
	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(1),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	c := openai.NewClient(options...)
	template := cfg.PromptTemplate
	if strings.TrimSpace(template) == "" {
		template = sysinfo.DefaultPromptTemplate
	}
	return &OpenAI{client: &c, model: cfg.Model, template: template, timeout: cfg.Timeout}, nil
}

// Submit starts a streaming completion for req.
func (o *OpenAI) Submit(ctx context.Context, req schema.ChatRequest) (Stream, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, errors.New("empty question")
	}
	log := logx.WithExchange(ctx, req.ID)
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: o.messages(req),
	}
	var (
		reqCtx context.Context
		cancel context.CancelFunc
	)
	if o.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, o.timeout)
	} else {
		reqCtx, cancel = context.WithCancel(ctx)
	}
	stream := o.client.Chat.Completions.NewStreaming(reqCtx, params)
	log.Debug("assistant request sent", "model", o.model, "history", len(req.History), "question_len", len(req.Question))
	return newChatStream(stream, cancel, log), nil
}

func (o *OpenAI) messages(req schema.ChatRequest) []openai.ChatCompletionMessageParamUnion {
	system := sysinfo.RenderPrompt(o.template, req.Env.Vars())
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2+2*len(req.History))
	messages = append(messages, openai.SystemMessage(system))
	for _, turn := range req.History {
		messages = append(messages, openai.UserMessage(turn.Question))
		reply := openai.ChatCompletionMessage{
			Role:    "assistant",
			Content: historyReply(turn),
		}
		messages = append(messages, reply.ToParam())
	}
	return append(messages, openai.UserMessage(req.Question))
}

// historyReply re-encodes a past turn in the reply format the prompt asks for.
func historyReply(turn schema.Turn) string {
	data, err := json.Marshal(struct {
		Command string `json:"command"`
		Answer  string `json:"answer"`
	}{turn.Command, turn.Answer})
	if err != nil {
		return turn.Answer
	}
	return "```json\n" + string(data) + "\n```"
}

type chunkSource interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

type chatStream struct {
	src     chunkSource
	cancel  context.CancelFunc
	log     pslog.Logger
	raw     strings.Builder
	answer  answerScanner
	pending []schema.StreamEvent
	done    bool
	started time.Time
	chunks  int
}

func newChatStream(src chunkSource, cancel context.CancelFunc, log pslog.Logger) *chatStream {
	return &chatStream{src: src, cancel: cancel, log: log, started: time.Now()}
}

func (s *chatStream) Next(ctx context.Context) (schema.StreamEvent, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.done {
			return schema.StreamEvent{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return schema.StreamEvent{}, err
		}
		if s.src.Next() {
			s.consume(s.src.Current())
			continue
		}
		s.done = true
		if err := s.src.Err(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return schema.StreamEvent{}, ctxErr
			}
			if errors.Is(err, context.Canceled) {
				return schema.StreamEvent{}, err
			}
			classified := classifyError(err)
			s.log.Warn("assistant stream failed", "err", classified, "chunks", s.chunks)
			return schema.ErrorEventFrom(classified), nil
		}
		return s.finish(), nil
	}
}

func (s *chatStream) consume(chunk openai.ChatCompletionChunk) {
	s.chunks++
	if raw := chunk.RawJSON(); raw != "" {
		reasoning := gjson.Get(raw, "choices.0.delta.reasoning_content")
		if !reasoning.Exists() {
			reasoning = gjson.Get(raw, "choices.0.delta.reasoning")
		}
		if text := reasoning.String(); text != "" {
			s.pending = append(s.pending, schema.ReasoningEvent(text))
		}
	}
	if len(chunk.Choices) == 0 {
		return
	}
	content := chunk.Choices[0].Delta.Content
	if content == "" {
		return
	}
	s.raw.WriteString(content)
	if delta := s.answer.Feed(s.raw.String()); delta != "" {
		s.pending = append(s.pending, schema.TokenEvent(delta))
	}
}

func (s *chatStream) finish() schema.StreamEvent {
	raw := s.raw.String()
	reply, err := DecodeReply(raw)
	if err != nil {
		s.log.Warn("assistant reply malformed", "err", err, "reply_len", len(raw), "chunks", s.chunks)
		return schema.ErrorEventFrom(err)
	}
	s.log.Info("assistant reply complete",
		"duration_ms", time.Since(s.started).Milliseconds(),
		"chunks", s.chunks,
		"has_command", reply.Command != "",
	)
	return schema.DoneEvent(reply.Command, reply.Answer)
}

func (s *chatStream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.src.Close()
}

// classifyError maps transport and HTTP failures to an assistant error kind.
func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return schema.NewAssistantError(schema.ErrorAuth, err)
		case http.StatusTooManyRequests:
			return schema.NewAssistantError(schema.ErrorRateLimit, err)
		}
	}
	return schema.NewAssistantError(schema.ErrorNetwork, err)
}
