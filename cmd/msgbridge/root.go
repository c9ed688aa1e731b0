package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"msgbridge/internal/config"
	"msgbridge/internal/version"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

// load reads the configuration named by --config, or the discovered one.
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newRootCmd creates the root msgbridge command with all subcommands attached.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "msgbridge",
		Short:         "Messaging bridge action dispatcher",
		Long:          "msgbridge drives a desktop messaging application through UI-automation scripts.\nActions are serialized against the application and recovered after UI failures.",
		Version:       fmt.Sprintf("msgbridge %s", version.Long()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (.toml or .yaml); default <home>/config.toml")

	cmd.AddCommand(
		newServeCmd(opts),
		newRunCmd(opts),
		newCheckCmd(opts),
		newStatusCmd(opts),
		newStopCmd(opts),
		newHistoryCmd(opts),
		newWatchCmd(opts),
		newKindsCmd(),
	)

	return cmd
}
