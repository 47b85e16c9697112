package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/whole-tale/girder-wt-data-manager/internal/dispatch"
	"github.com/whole-tale/girder-wt-data-manager/internal/render"
)

// newContainersCmd creates the 'containers' command group.
func newContainersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "containers",
		Aliases: []string{"container", "c"},
		Short:   "Inspect and control test containers",
		Long: `Test container commands.

Commands:
  list    - List containers
  get     - Show one container
  create  - Create a container over a data set
  start   - Start a container
  stop    - Stop a container
  remove  - Remove a container

Commands return as soon as the server accepts them; use 'dmwatch watch'
to follow the container through its lifecycle.`,
	}

	cmd.AddCommand(newContainersListCmd())
	cmd.AddCommand(newContainersGetCmd())
	cmd.AddCommand(newContainersCreateCmd())
	cmd.AddCommand(newContainerActionCmd("start", "Start a container", dispatch.StartContainer))
	cmd.AddCommand(newContainerActionCmd("stop", "Stop a container", dispatch.StopContainer))
	cmd.AddCommand(newContainerActionCmd("remove", "Remove a container", dispatch.RemoveContainer))
	return cmd
}

func newContainersListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List containers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := getAPIClient(cmd)
			if err != nil {
				return err
			}
			containers, err := client.ListContainers(GetContext())
			if err != nil {
				return fmt.Errorf("failed to list containers: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, containers)
			}
			fmt.Fprintln(out, render.Containers(containers))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newContainersGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <container-id>",
		Short: "Show one container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := getAPIClient(cmd)
			if err != nil {
				return err
			}
			c, err := client.GetContainer(GetContext(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get container %s: %w", args[0], err)
			}
			return writeJSON(cmd.OutOrStdout(), c)
		},
	}
}

func newContainersCreateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create [data-set]",
		Short: "Create a container over a data set",
		Long: `Create a test container.

The data set is a JSON document describing the items to mount. It is
passed to the server as-is, as a string.

Examples:
  dmwatch containers create '[{"itemId": "5a1c...", "mountPath": "/data.csv"}]'
  dmwatch containers create --file dataset.json
  cat dataset.json | dmwatch containers create --file -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataSet, err := readDataSet(cmd.InOrStdin(), args, file)
			if err != nil {
				return err
			}
			return runCommand(cmd, dispatch.CreateContainer(dataSet))
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the data set from a file ('-' for stdin)")
	return cmd
}

// readDataSet takes the data set from the argument or --file, exactly one of
// which must be given.
func readDataSet(stdin io.Reader, args []string, file string) (string, error) {
	switch {
	case len(args) == 1 && file != "":
		return "", fmt.Errorf("give the data set as an argument or with --file, not both")
	case len(args) == 1:
		return args[0], nil
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read data set: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read data set: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return "", fmt.Errorf("a data set is required")
}

func newContainerActionCmd(use, short string, build func(id string) dispatch.Command) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <container-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, build(args[0]))
		},
	}
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// printJSON re-indents a raw response body. Bodies that are not JSON are
// printed unchanged.
func printJSON(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = fmt.Fprintln(w, string(raw))
		return err
	}
	_, err := fmt.Fprintln(w, buf.String())
	return err
}
