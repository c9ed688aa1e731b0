package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"msgbridge/pkg/server"
)

// errNotConfigured is returned by "msgbridge check" when the probe fails.
var errNotConfigured = errors.New("setup probe did not report action_performed")

// newCheckCmd creates the "msgbridge check" subcommand.
func newCheckCmd(opts *rootOptions) *cobra.Command {
	var direct bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the setup probe",
		Long: `Runs the Setup* script and reports whether the host is configured for UI automation.
The probe bypasses the dispatch queue. Exits non-zero when the host is not configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var configured bool
			if direct {
				logger, err := newLogger(cfg)
				if err != nil {
					return err
				}
				defer func() { _ = logger.Close() }()
				b, err := newBridge(ctx, cfg, logger.Logger)
				if err != nil {
					return err
				}
				defer func() { _ = b.close(context.WithoutCancel(ctx)) }()
				configured = b.dispatcher.IsConfigured(ctx)
			} else {
				c, err := server.Dial(ctx, cfg.SocketPath)
				if err != nil {
					return fmt.Errorf("connect to server (use --direct without one): %w", err)
				}
				defer func() { _ = c.Close() }()
				st, err := c.Check(ctx)
				if err != nil {
					return err
				}
				configured = *st.Configured
			}

			printCheck(cmd.OutOrStdout(), newStyles(DefaultTheme()), configured)
			if !configured {
				return errNotConfigured
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "run the probe in this process instead of through the server")
	return cmd
}
