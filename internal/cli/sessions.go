package cli

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/whole-tale/girder-wt-data-manager/internal/dispatch"
	"github.com/whole-tale/girder-wt-data-manager/internal/render"
)

// newSessionsCmd creates the 'sessions' command group.
func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage data manager sessions",
	}

	var asJSON bool
	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your data manager sessions",
		Long: `List your data manager sessions.

Use a session id with 'watch --session' or 'transfers list --session'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := getAPIClient(cmd)
			if err != nil {
				return err
			}
			sessions, err := client.ListSessions(GetContext())
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, sessions)
			}
			fmt.Fprintln(out, render.Sessions(sessions))
			return nil
		},
	}
	listCmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	var yes bool
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete every data manager session",
		Long: `Delete every data manager session on the server.

This is a testing endpoint: it removes all sessions, not only yours.
You are asked to confirm unless --yes is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				r := bufio.NewReader(cmd.InOrStdin())
				if !confirm(r, cmd.ErrOrStderr(), "Delete all sessions?") {
					fmt.Fprintln(cmd.ErrOrStderr(), "Aborted.")
					return nil
				}
			}
			return runCommand(cmd, dispatch.DeleteSessions())
		},
	}
	deleteCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	cmd.AddCommand(listCmd)
	cmd.AddCommand(deleteCmd)
	return cmd
}

// newTestingCmd creates the 'testing' command group.
func newTestingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "testing",
		Short: "Testing plugin helpers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create-items",
		Short: "Create the testing plugin's sample items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, dispatch.CreateTestItems())
		},
	})
	return cmd
}
