package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/shellm/internal/appconfig"
	"pkt.systems/shellm/internal/assistant"
	"pkt.systems/shellm/internal/logx"
	"pkt.systems/shellm/internal/sysinfo"
	"pkt.systems/shellm/internal/ttyctl"
	"pkt.systems/shellm/schema"
)

// doctorPingQuestion is sent to the backend by "doctor --ping".
const doctorPingQuestion = "print the working directory"

type doctorOptions struct {
	ping        bool
	pingTimeout time.Duration
	terminal    terminalChecker
}

type terminalChecker interface {
	IsTerminal() bool
}

func newDoctorCmd() *cobra.Command {
	var run runOptions
	var opts doctorOptions
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run shellm diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			configPath := run.configPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor start", "config", configPath)
			cfg, err := loadConfig(run)
			if err != nil {
				return err
			}
			opts.terminal = ttyctl.New(os.Stdin, os.Stdout)
			return runDoctor(cmd.Context(), logger, cfg, opts)
		},
	}
	cmd.Flags().StringVarP(&run.configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&run.provider, "provider", "", "override llm.provider (openai or mock)")
	cmd.Flags().BoolVar(&opts.ping, "ping", false, "send a test question to the assistant backend")
	cmd.Flags().DurationVar(&opts.pingTimeout, "ping-timeout", 30*time.Second, "timeout for the backend check")
	return cmd
}

func runDoctor(ctx context.Context, logger pslog.Logger, cfg appconfig.Config, opts doctorOptions) error {
	logger.Info("doctor config ok", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model, "theme", cfg.UI.Theme)

	if opts.terminal != nil {
		if opts.terminal.IsTerminal() {
			logger.Info("doctor terminal ok")
		} else {
			logger.Warn("doctor terminal missing; shellm needs an interactive terminal on stdin and stdout")
		}
	}

	shellPath, err := exec.LookPath(cfg.Shell.Path)
	if err != nil {
		return fmt.Errorf("doctor shell (%s): %w", cfg.Shell.Path, err)
	}
	logger.Info("doctor shell ok", "path", shellPath)

	sessionLog, closer, err := logx.OpenSessionLog(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("doctor session log: %w", err)
	}
	sessionLog.Info("doctor session log check")
	_ = closer.Close()
	logger.Info("doctor session log ok", "file", cfg.Logging.File, "level", cfg.Logging.Level)

	env := sysinfo.Collect(cfg.Shell.Path, cfg.Preference.Language)
	logger.Info("doctor environment", "os", env.OS, "arch", env.Arch, "shell", env.Shell, "lang", env.Lang)

	if !opts.ping {
		logger.Info("doctor complete")
		return nil
	}
	client, err := assistant.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	if err := pingAssistant(ctx, logger, client, env, opts.pingTimeout); err != nil {
		return err
	}
	logger.Info("doctor complete")
	return nil
}

// pingAssistant asks one question and requires a final reply.
func pingAssistant(ctx context.Context, logger pslog.Logger, client assistant.Client, env schema.EnvContext, timeout time.Duration) error {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	logger.Info("doctor assistant start", "question", doctorPingQuestion)
	stream, err := client.Submit(runCtx, schema.ChatRequest{
		ID:       uuid.NewString(),
		Question: doctorPingQuestion,
		Env:      env,
	})
	if err != nil {
		return fmt.Errorf("doctor assistant start: %w", err)
	}
	defer func() { _ = stream.Close() }()
	var tokens int
	for {
		ev, err := stream.Next(runCtx)
		if errors.Is(err, io.EOF) {
			return errors.New("doctor assistant: stream ended without a reply")
		}
		if err != nil {
			return fmt.Errorf("doctor assistant: %w", err)
		}
		switch ev.Kind {
		case schema.StreamToken:
			tokens++
		case schema.StreamDone:
			logger.Info("doctor assistant ok", "tokens", tokens, "command", ev.Command)
			return nil
		case schema.StreamError:
			return fmt.Errorf("doctor assistant: %w", schema.NewAssistantError(ev.Error, errors.New(ev.Message)))
		}
	}
}
