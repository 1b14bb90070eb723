package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"paperbridge/internal/config"
)

// cliState is shared by every command. The config is loaded once the flags
// are parsed.
type cliState struct {
	configPath string
	logLevel   string
	jsonOutput bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	state := &cliState{}
	var mode string

	cmd := &cobra.Command{
		Use:   "paperbridge",
		Short: "Sync PDFs between a reference library and a reMarkable tablet",
		Long: "paperbridge pushes PDFs of library items tagged to_sync to the tablet and pulls\n" +
			"annotated documents from the tablet's read folder back into the library.",
		Example:       "  paperbridge --mode push\n  paperbridge -m both --log-level debug",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          requireNoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return state.load()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), state, mode)
		},
	}

	cmd.Version = version
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "sync direction: push, pull or both")
	cmd.PersistentFlags().StringVar(&state.configPath, "config", "", "config file (default $PAPERBRIDGE_CONFIG or ~/.paperbridge.toml)")
	cmd.PersistentFlags().StringVar(&state.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&state.jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(
		newStatusCmd(state),
		newDoctorCmd(state),
		newHistoryCmd(state),
		newConfigCmd(state),
	)

	return cmd
}

func (s *cliState) load() error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}
	s.cfg = cfg

	warning, err := configureLoggerForCLI(s.logLevel, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return usageError{err: err}
	}
	if warning != "" {
		fmt.Fprintln(os.Stderr, warning)
	}
	s.logger = slog.Default()
	return nil
}
