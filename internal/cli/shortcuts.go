package cli

import (
	"github.com/spf13/cobra"

	"github.com/whole-tale/girder-wt-data-manager/internal/dispatch"
)

// AddShortcuts adds shortcut commands to the root command.
// Shortcuts provide convenient aliases for commonly-used operations.
func AddShortcuts(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newPsShortcut())
	rootCmd.AddCommand(newRmShortcut())
}

// newPsShortcut creates the 'ps' shortcut command.
// Shortcut for: containers list
func newPsShortcut() *cobra.Command {
	cmd := newContainersListCmd()
	cmd.Use = "ps"
	cmd.Aliases = nil
	cmd.Short = "List containers (shortcut for 'containers list')"
	cmd.Long = `Shortcut for listing test containers.

Equivalent to: dmwatch containers list

Examples:
  dmwatch ps
  dmwatch ps --json`
	return cmd
}

// newRmShortcut creates the 'rm' shortcut command.
// Shortcut for: containers remove
func newRmShortcut() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <container-id> [container-id...]",
		Short: "Remove containers (shortcut for 'containers remove')",
		Long: `Shortcut for removing test containers.

Containers are removed one at a time; the first failure stops the rest.

Equivalent to: dmwatch containers remove <id>

Examples:
  dmwatch rm 5a1c0f
  dmwatch rm 5a1c0f 5a1c10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := runCommand(cmd, dispatch.RemoveContainer(id)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
