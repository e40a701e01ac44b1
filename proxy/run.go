package proxy

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"pkt.systems/pslog"
	"pkt.systems/shellm/internal/appconfig"
	"pkt.systems/shellm/internal/assistant"
	"pkt.systems/shellm/internal/ptyshell"
	"pkt.systems/shellm/internal/sysinfo"
	"pkt.systems/shellm/internal/ttyctl"
	"pkt.systems/shellm/schema"
)

// Options configures Run.
type Options struct {
	Config    appconfig.Config
	Assistant assistant.Client
	// In and Out default to the process's stdin and stdout.
	In  *os.File
	Out *os.File
}

// Run proxies the configured shell on the controlling terminal until the shell exits, input
// closes, or a termination signal arrives. It returns the shell's exit status. Raw mode is
// restored and the shell is reaped on every return path.
func Run(ctx context.Context, opts Options) (int, error) {
	log := pslog.Ctx(ctx)
	if opts.Assistant == nil {
		return 1, fmt.Errorf("%w: no assistant client", schema.ErrConfig)
	}
	in, out := opts.In, opts.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	cfg := opts.Config

	ctrl := ttyctl.New(in, out)
	size, err := ctrl.Size()
	if err != nil {
		return 1, err
	}
	raw, err := ctrl.Enter()
	if err != nil {
		return 1, err
	}
	defer func() { _ = raw.Restore() }()

	ctx, stop := signal.NotifyContext(ctx, unix.SIGHUP, unix.SIGTERM, unix.SIGINT, unix.SIGQUIT)
	defer stop()

	shell, err := ptyshell.Spawn(ctx, ptyshell.Options{
		Path: cfg.Shell.Path,
		Args: cfg.Shell.Args,
		Rows: size.Rows,
		Cols: size.Cols,
	})
	if err != nil {
		return 1, err
	}
	defer func() { _ = shell.Close() }()

	shadow := newVTShadow(size.Rows, size.Cols)
	defer func() { _ = shadow.Close() }()

	env := sysinfo.Collect(cfg.Shell.Path, cfg.Preference.Language)
	theme, _ := schema.NormalizeThemeName(cfg.UI.Theme)
	sess := newSession(log, sessionConfig{
		term:        ctrl,
		shell:       shell,
		client:      opts.Assistant,
		env:         env,
		shadow:      shadow,
		theme:       themeForName(theme),
		rows:        size.Rows,
		cols:        size.Cols,
		maxHeight:   cfg.UI.MaxHeight,
		noticeDelay: time.Duration(cfg.UI.NoticeMillis) * time.Millisecond,
		autoExecute: cfg.Inject.AutoExecute,
		newID:       uuid.NewString,
	})
	if cfg.UI.ClearOnStart {
		_, _ = ctrl.Write([]byte(seqClearScreen))
	}
	log.Info("session started",
		"shell", cfg.Shell.Path,
		"pid", shell.Pid(),
		"rows", size.Rows,
		"cols", size.Cols,
		"provider", cfg.LLM.Provider,
		"lang", env.Lang,
	)

	loopErr := sess.run(ctx, ctrl.WatchResize(ctx))

	termCtx, cancel := context.WithTimeout(context.Background(), ptyshell.DefaultGrace+time.Second)
	defer cancel()
	if err := shell.Terminate(termCtx, ptyshell.DefaultGrace); err != nil {
		log.Warn("shell terminate failed", "err", err)
	}
	code, waitErr := shell.Wait()
	if waitErr != nil {
		log.Warn("shell wait failed", "err", waitErr)
	}
	if err := raw.Restore(); err != nil {
		log.Warn("terminal restore failed", "err", err)
	}
	log.Info("session ended", "exit_code", code)
	if loopErr != nil {
		return 1, loopErr
	}
	return code, nil
}
