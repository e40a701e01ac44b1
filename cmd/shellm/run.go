package main

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"pkt.systems/pslog"
	"pkt.systems/shellm/internal/appconfig"
	"pkt.systems/shellm/internal/assistant"
	"pkt.systems/shellm/internal/logx"
	"pkt.systems/shellm/proxy"
)

type runOptions struct {
	configPath string
	provider   string
	shell      string
}

// loadConfig resolves and validates the configuration with command-line overrides applied.
func loadConfig(opts runOptions) (appconfig.Config, error) {
	cfg, err := appconfig.Load(opts.configPath)
	if err != nil {
		return appconfig.Config{}, err
	}
	if p := strings.TrimSpace(opts.provider); p != "" {
		cfg.LLM.Provider = p
	}
	if s := strings.TrimSpace(opts.shell); s != "" {
		cfg.Shell.Path = s
	}
	if err := appconfig.Validate(cfg); err != nil {
		return appconfig.Config{}, err
	}
	return cfg, nil
}

func runProxy(ctx context.Context, opts runOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	client, err := assistant.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	sessionLog, closer, err := logx.OpenSessionLog(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	sessionID := uuid.NewString()
	pslog.Ctx(ctx).Debug("starting session", "session", sessionID, "log", cfg.Logging.File, "shell", cfg.Shell.Path)

	code, err := proxy.Run(logx.ContextWithSessionLogger(ctx, sessionLog, sessionID), proxy.Options{
		Config:    cfg,
		Assistant: client,
	})
	if err != nil {
		return err
	}
	if code != 0 {
		return exitCodeError{code: code}
	}
	return nil
}
