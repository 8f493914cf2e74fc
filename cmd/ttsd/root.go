package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ekisa-team/ttsd/internal/config"
	"github.com/ekisa-team/ttsd/internal/env"
	"github.com/ekisa-team/ttsd/internal/logger"
)

type rootFlags struct {
	configPath string
	logFile    string
	logToFile  bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "ttsd",
		Short:         "Text-to-speech HTTP server",
		Long:          "ttsd serves neural text-to-speech models over HTTP and returns WAV audio.",
		Version:       fmt.Sprintf("%s (commit: %s)", version, gitCommit),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			slog.SetDefault(
				logger.New(env.FromEnv(),
					logger.WithLogToFile(flags.logToFile),
					logger.WithLogFile(flags.logFile),
				),
			)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", config.DefaultConfigFile(), "Path to config file")
	pf.StringVar(&flags.logFile, "log-file", "logs/ttsd.log", "Path to the rotating log file")
	pf.BoolVar(&flags.logToFile, "log-to-file", true, "Also write JSON logs to --log-file")

	cmd.AddCommand(
		newServeCmd(flags),
		newSynthCmd(flags),
		newSpeakersCmd(flags),
	)

	return cmd
}
