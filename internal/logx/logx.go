package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pkt.systems/pslog"
)

type contextKey int

const (
	sessionKey contextKey = iota
	exchangeKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSession annotates the logger with a session id when available.
func WithSession(log pslog.Logger, sessionID string) pslog.Logger {
	if sessionID != "" {
		log = log.With("session", sessionID)
	}
	return log
}

// WithExchange annotates the logger with the chat exchange id unless the context already carries it.
func WithExchange(ctx context.Context, exchangeID string) pslog.Logger {
	log := pslog.Ctx(ctx)
	if exchangeID == "" {
		return log
	}
	if current, ok := ctx.Value(exchangeKey).(string); ok && current == exchangeID {
		return log
	}
	return log.With("exchange", exchangeID)
}

// ContextWithSessionLogger attaches a session-annotated logger to the context.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, sessionID string) context.Context {
	ctx = pslog.ContextWithLogger(ctx, WithSession(log, sessionID))
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithExchange binds an exchange-annotated logger and marker to the context.
func ContextWithExchange(ctx context.Context, exchangeID string) context.Context {
	if ctx == nil || exchangeID == "" {
		return ctx
	}
	ctx = pslog.ContextWithLogger(ctx, WithExchange(ctx, exchangeID))
	return context.WithValue(ctx, exchangeKey, exchangeID)
}

// SessionID returns the session marker stored on the context.
func SessionID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(sessionKey).(string)
	return id
}

// Options returns structured logger options for a logging.level value.
func Options(level string) pslog.Options {
	opts := pslog.Options{Mode: pslog.ModeStructured, NoColor: true, MinLevel: pslog.InfoLevel}
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		opts.MinLevel = pslog.TraceLevel
	case "debug":
		opts.MinLevel = pslog.DebugLevel
	case "warn":
		opts.MinLevel = pslog.WarnLevel
	case "error":
		opts.MinLevel = pslog.ErrorLevel
	}
	return opts
}

// OpenSessionLog builds the logger used while the terminal is in raw mode. Lines go to path,
// never to the terminal. An empty path discards session logs.
func OpenSessionLog(path, level string) (pslog.Logger, io.Closer, error) {
	if strings.TrimSpace(path) == "" {
		return pslog.NewWithOptions(io.Discard, Options(level)), io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(f),
		pslog.WithEnvOptions(Options(level)),
	)
	return logger, f, nil
}
