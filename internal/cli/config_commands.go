package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/whole-tale/girder-wt-data-manager/internal/constants"
	"github.com/whole-tale/girder-wt-data-manager/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage dmwatch configuration",
		Long: `Configuration management commands for dmwatch.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  set   - Change one configuration key
  test  - Test API connection
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigSetCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPath returns --config or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for dmwatch.

The configuration is saved to ~/.config/wholetale/dmwatch.ini with
owner-only permissions.

Use --force to overwrite existing configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Fprintln(out, "dmwatch Configuration Setup")
			fmt.Fprintln(out, "===========================")
			fmt.Fprintln(out)

			cfg := config.NewConfig()
			r := bufio.NewReader(cmd.InOrStdin())

			if cfg.APIURL, err = promptLine(r, out, "Girder API URL", cfg.APIURL); err != nil {
				return err
			}

			// Token is read without echo when possible
			if termIsTerminal(int(os.Stdin.Fd())) {
				cfg.Token, err = promptSecret(out, "Girder token")
			} else {
				cfg.Token, err = promptLine(r, out, "Girder token", "")
			}
			if err != nil {
				return err
			}

			interval, err := promptLine(r, out, "Poll interval", cfg.PollInterval.String())
			if err != nil {
				return err
			}
			if err := cfg.Set("monitor.poll_interval", interval); err != nil {
				return err
			}

			placeholder, err := promptLine(r, out, "Show placeholder transfer", strconv.FormatBool(cfg.Placeholder))
			if err != nil {
				return err
			}
			if err := cfg.Set("monitor.placeholder_data", placeholder); err != nil {
				return err
			}

			if confirm(r, out, "Configure proxy?") {
				fmt.Fprintln(out, "Proxy modes: no-proxy, system, basic, ntlm")
				mode, err := promptLine(r, out, "Proxy mode", "system")
				if err != nil {
					return err
				}
				if err := cfg.Set("http.proxy_mode", mode); err != nil {
					return err
				}
				if cfg.ProxyMode == "basic" || cfg.ProxyMode == "ntlm" {
					if cfg.ProxyHost, err = promptLine(r, out, "Proxy host", ""); err != nil {
						return err
					}
					port, err := promptLine(r, out, "Proxy port", "8080")
					if err != nil {
						return err
					}
					if err := cfg.Set("http.proxy_port", port); err != nil {
						return err
					}
					if cfg.ProxyUser, err = promptLine(r, out, "Proxy user", ""); err != nil {
						return err
					}
				}
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			GetLogger().Info().Str("path", path).Msg("Configuration saved")

			fmt.Fprintln(out)
			fmt.Fprintf(out, "✓ Configuration saved to: %s\n", path)
			fmt.Fprintln(out, "Test your configuration with: dmwatch config test")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the effective configuration.

Values are merged from:
  1. Configuration file (~/.config/wholetale/dmwatch.ini)
  2. .env and .env.local in the working directory
  3. Environment variables (DMWATCH_API_URL, DMWATCH_TOKEN, ...)
  4. Command-line flags (--api-url, --token)

Secrets are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			out := cmd.OutOrStdout()
			values := cfg.Redacted()
			for _, k := range config.Keys() {
				fmt.Fprintf(out, "%-24s = %s\n", k, values[k])
			}

			path, err := configPath()
			if err == nil {
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Configuration file: %s\n", path)
				if _, err := os.Stat(path); os.IsNotExist(err) {
					fmt.Fprintln(out, "  (file does not exist - using defaults)")
				}
			}
			return nil
		},
	}
}

// newConfigSetCmd creates the 'config set' command.
func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <section.key> <value>",
		Short: "Change one configuration key",
		Long: `Change one key in the configuration file.

Only the file is read and written; environment and flag overrides are
not persisted. http.proxy_password is never stored.

Example:
  dmwatch config set monitor.poll_interval 2s`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			v, _ := cfg.Get(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s = %s\n", args[0], v)
			return nil
		},
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test API connection",
		Long: `Test the API connection with current configuration.

Use this to verify your token and network connectivity.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			client, cfg, err := getAPIClient(cmd)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "API URL: %s\n", cfg.APIURL)
			fmt.Fprintln(out, "Testing connection...")

			ctx, cancel := context.WithTimeout(GetContext(), constants.APIConnectionTestTimeout)
			defer cancel()

			containers, err := client.ListContainers(ctx)
			if err != nil {
				GetLogger().Error().Err(err).Msg("Connection test failed")
				fmt.Fprintln(out, "✗ Connection FAILED")
				return fmt.Errorf("connection test failed: %w", err)
			}

			fmt.Fprintln(out, "✓ Connection SUCCESSFUL")
			fmt.Fprintf(out, "  %d container(s) visible\n", len(containers))
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, path)

			if info, err := os.Stat(path); err == nil {
				fmt.Fprintf(out, "Status:   exists (%d bytes, modified %s)\n",
					info.Size(), info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status:   does not exist")
				fmt.Fprintln(out, "Create it with: dmwatch config init")
			}
			return nil
		},
	}
}
