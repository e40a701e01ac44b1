// Package assistant turns a natural-language question into a stream of answer tokens and a
// final command/answer pair.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pkt.systems/shellm/internal/appconfig"
	"pkt.systems/shellm/schema"
)

// Client submits questions to an assistant backend.
type Client interface {
	// Submit starts a request. Cancelling ctx aborts the request and releases its resources.
	Submit(ctx context.Context, req schema.ChatRequest) (Stream, error)
}

// Stream is a finite, non-restartable sequence of events for one request. It ends with exactly
// one Done or Error event, after which Next returns io.EOF. A cancelled context makes Next
// return the context error instead of an event.
type Stream interface {
	Next(ctx context.Context) (schema.StreamEvent, error)
	Close() error
}

// NewFromConfig builds the client selected by llm.provider.
func NewFromConfig(cfg appconfig.Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LLM.Provider)) {
	case appconfig.ProviderOpenAI, "":
		return NewOpenAI(OpenAIConfig{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			PromptTemplate: cfg.Prompt.Template,
			Timeout:        time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
	case appconfig.ProviderMock:
		return NewMock(MockConfig{}), nil
	default:
		return nil, fmt.Errorf("%w: unsupported llm.provider %q", schema.ErrConfig, cfg.LLM.Provider)
	}
}
