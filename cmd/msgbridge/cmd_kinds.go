package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"msgbridge/pkg/action"
)

// newKindsCmd creates the "msgbridge kinds" subcommand.
func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the supported actions and their arguments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printKinds(cmd.OutOrStdout())
		},
	}
}

// kindsTable renders every action with its script prefix and arguments.
func kindsTable() string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(DefaultTheme().Muted)).
		Headers("ACTION", "SCRIPT", "ARGS")
	for _, k := range action.Kinds() {
		names := make([]string, 0, k.Arity())
		for _, n := range k.ArgNames() {
			names = append(names, "<"+n+">")
		}
		t.Row(k.String(), k.ScriptPrefix()+"*", strings.Join(names, " "))
	}
	return t.String()
}

// printKinds writes the action table to w.
func printKinds(w io.Writer) error {
	_, err := fmt.Fprintln(w, kindsTable())
	return err
}
