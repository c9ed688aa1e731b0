package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"msgbridge/pkg/action"
	"msgbridge/pkg/protocol"
	"msgbridge/pkg/server"
)

// actionCaller performs one action and reports it in wire form.
type actionCaller interface {
	Action(ctx context.Context, name string, args []string) (protocol.Response, error)
}

// directCaller dispatches in-process, without a running server.
type directCaller struct {
	b *bridge
}

func (d directCaller) Action(ctx context.Context, name string, args []string) (protocol.Response, error) {
	resp := protocol.Response{Type: protocol.MsgResult}
	kind, err := action.ParseKind(name)
	if err == nil {
		var outcome action.Outcome
		outcome, err = d.b.dispatcher.Dispatch(ctx, kind, args)
		if err == nil {
			return server.EncodeOutcome(resp, outcome), nil
		}
	}
	resp.Error = err.Error()
	resp.ErrorKind = protocol.ErrorKind(err)
	return resp, nil
}

// newRunCmd creates the "msgbridge run" subcommand.
func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		direct  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run <action> [args...]",
		Short: "Dispatch one action",
		Long: `Sends an action to the running server and prints its outcome.
With --direct the action is dispatched in this process instead; use it when no server is running.
Run "msgbridge kinds" for the list of actions and their arguments.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

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
				return runAction(ctx, cmd.OutOrStdout(), directCaller{b: b}, args[0], args[1:])
			}

			c, err := server.Dial(ctx, cfg.SocketPath)
			if err != nil {
				return fmt.Errorf("connect to server (is \"msgbridge serve\" running?): %w", err)
			}
			defer func() { _ = c.Close() }()
			return runAction(ctx, cmd.OutOrStdout(), c, args[0], args[1:])
		},
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "dispatch in this process instead of through the server")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up waiting for the outcome after this long (0 waits forever)")
	return cmd
}

// runAction performs name through caller and prints the outcome. A failed
// dispatch is returned as an error tagged with its kind.
func runAction(ctx context.Context, w io.Writer, caller actionCaller, name string, args []string) error {
	resp, err := caller.Action(ctx, name, args)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%s [%s]", resp.Error, resp.ErrorKind)
	}
	fmt.Fprintln(w, formatOutcome(resp))
	return nil
}

// formatOutcome renders a result response as "<shape>: name, name".
func formatOutcome(resp protocol.Response) string {
	if len(resp.Names) == 0 {
		return "none"
	}
	return resp.Shape + ": " + strings.Join(resp.Names, protocol.ResultSeparator)
}
