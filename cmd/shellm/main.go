package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/psi"
	"pkt.systems/pslog"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	root := newRootCmd()
	root.SetArgs(os.Args[1:])

	if err := root.ExecuteContext(ctx); err != nil {
		return exitCode(ctx, err)
	}
	return 0
}

// exitCodeError carries the shell's exit status out of the root command.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return "shell exited with a non-zero status"
}

// exitCode maps a command error to the process exit status. A shell's own status is passed
// through unchanged and is not logged.
func exitCode(ctx context.Context, err error) int {
	var shellExit exitCodeError
	if errors.As(err, &shellExit) {
		return shellExit.code
	}
	pslog.Ctx(ctx).With("err", err).Error("shellm command failed")
	return 1
}

func newRootCmd() *cobra.Command {
	var opts runOptions
	root := &cobra.Command{
		Use:           "shellm",
		Short:         "Shell proxy with an inline command assistant (Ctrl+L)",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProxy(cmd.Context(), opts)
		},
	}
	root.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	root.Flags().StringVar(&opts.provider, "provider", "", "override llm.provider (openai or mock)")
	root.Flags().StringVar(&opts.shell, "shell", "", "override shell.path")

	root.AddCommand(newConfigCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newVersionCmd())

	return root
}
