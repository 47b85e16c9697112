package cli

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/whole-tale/girder-wt-data-manager/internal/api"
	"github.com/whole-tale/girder-wt-data-manager/internal/config"
)

// newSettingsCmd creates the 'settings' command group for the server-side
// data manager settings.
func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and change the data manager's server settings",
		Long: `Server-side data manager settings (requires an admin token).

Keys:
  dm.private_storage_path       directory holding the file cache
  dm.private_storage_capacity   cache capacity (bytes, or sizes like 100GB)
  dm.gc_run_interval            seconds between garbage collection runs
  dm.gc_collect_start_fraction  usage fraction at which collection starts
  dm.gc_collect_end_fraction    usage fraction at which collection stops`,
	}
	cmd.AddCommand(newSettingsGetCmd())
	cmd.AddCommand(newSettingsSetCmd())
	return cmd
}

func newSettingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key...]",
		Short: "Show settings (all of them by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := args
			if len(keys) == 0 {
				keys = config.SettingKeys()
			}
			for _, k := range keys {
				if _, err := config.LookupSetting(k); err != nil {
					return err
				}
			}

			client, _, err := getAPIClient(cmd)
			if err != nil {
				return err
			}
			values, err := client.GetSettings(GetContext(), keys)
			if err != nil {
				return fmt.Errorf("failed to read settings: %w", err)
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("KEY", "VALUE", "DESCRIPTION")
			for _, k := range keys {
				s, _ := config.LookupSetting(k)
				t.Row(k, api.SettingString(values[k]), s.Description)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}
}

func newSettingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY=VALUE [KEY=VALUE...]",
		Short: "Change settings in one request",
		Long: `Change one or more settings.

Values are checked locally first; the server validates them again and
rejects the whole request if any value is invalid.

Example:
  dmwatch settings set dm.private_storage_capacity=50GB dm.gc_run_interval=300`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := config.ParseSettingAssignments(args)
			if err != nil {
				return err
			}

			client, _, err := getAPIClient(cmd)
			if err != nil {
				return err
			}
			if err := checkFractions(client, pairs); err != nil {
				return err
			}

			values := make([]api.SettingValue, 0, len(pairs))
			for _, p := range pairs {
				values = append(values, api.SettingValue{Key: p[0], Value: p[1]})
			}
			if err := client.PutSettings(GetContext(), values); err != nil {
				if apiErr, ok := api.AsError(err); ok && apiErr.Structured() {
					return fmt.Errorf("settings not saved: %s", apiErr.Message)
				}
				return fmt.Errorf("settings not saved: %w", err)
			}

			for _, p := range pairs {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s = %s\n", p[0], p[1])
			}
			return nil
		},
	}
}

// checkFractions verifies the collection end fraction does not exceed the
// start fraction, reading whichever one is not being set from the server.
func checkFractions(client *api.Client, pairs [][2]string) error {
	vals := map[string]string{}
	for _, p := range pairs {
		vals[p[0]] = p[1]
	}
	start, hasStart := vals[config.SettingGCCollectStartFraction]
	end, hasEnd := vals[config.SettingGCCollectEndFraction]
	if !hasStart && !hasEnd {
		return nil
	}

	if !hasStart || !hasEnd {
		missing := config.SettingGCCollectStartFraction
		if hasStart {
			missing = config.SettingGCCollectEndFraction
		}
		current, err := client.GetSettings(GetContext(), []string{missing})
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", missing, err)
		}
		v := api.SettingString(current[missing])
		if hasStart {
			end = v
		} else {
			start = v
		}
	}

	s, err1 := strconv.ParseFloat(start, 64)
	e, err2 := strconv.ParseFloat(end, 64)
	if err1 != nil || err2 != nil {
		// The server value is unset or odd; let the server decide
		GetLogger().Debug().Str("start", start).Str("end", end).Msg("Skipping fraction check")
		return nil
	}
	return config.ValidateFractions(s, e)
}
