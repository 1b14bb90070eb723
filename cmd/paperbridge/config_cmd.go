package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"paperbridge/internal/config"
)

const secretMask = "********"

func newConfigCmd(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration",
	}

	cmd.AddCommand(newConfigGetCmd(state))
	cmd.AddCommand(newConfigSetCmd(state))
	cmd.AddCommand(newConfigInitCmd(state))
	cmd.AddCommand(newConfigPathCmd(state))
	return cmd
}

func newConfigGetCmd(state *cliState) *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a config value",
		Args:  requireExactlyArgs(1, "config get requires exactly one key"),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !config.IsAllowedKey(key) {
				return usageError{err: fmt.Errorf("unknown key: %s (allowed: %s)", key, strings.Join(config.AllowedKeys(), ", "))}
			}
			value, err := state.cfg.Get(key)
			if err != nil {
				return err
			}
			if config.IsSecretKey(key) && value != "" && !showSecrets {
				value = secretMask
			}
			return writePlain("%s\n", value)
		},
	}

	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print secret values instead of a mask")
	return cmd
}

func newConfigSetCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Args:  requireExactlyArgs(2, "config set requires a key and a value"),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := state.configFilePath()
			if err != nil {
				return err
			}
			return config.SetKey(path, args[0], args[1])
		},
	}
}

func newConfigInitCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  requireNoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := state.configFilePath()
			if err != nil {
				return err
			}
			if err := config.WriteTemplate(path, config.Default()); err != nil {
				return err
			}
			return writePlain("wrote %s\n", path)
		},
	}
}

func newConfigPathCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  requireNoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := state.configFilePath()
			if err != nil {
				return err
			}
			return writePlain("%s\n", path)
		},
	}
}

// configFilePath is the file config set and init write to.
func (s *cliState) configFilePath() (string, error) {
	if path := strings.TrimSpace(s.configPath); path != "" {
		return path, nil
	}
	return config.DefaultPath()
}
