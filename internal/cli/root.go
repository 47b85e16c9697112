// Package cli provides the command-line interface for dmwatch.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/whole-tale/girder-wt-data-manager/internal/config"
	"github.com/whole-tale/girder-wt-data-manager/internal/logging"
	"github.com/whole-tale/girder-wt-data-manager/internal/version"
)

var (
	// Global flags
	cfgFile string
	apiURL  string
	token   string
	logFile string
	verbose bool
	debug   bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dmwatch",
		Short: "Monitor and drive the Whole Tale data manager",
		Long: `dmwatch ` + version.Version + ` - Built: ` + version.BuildTime + `
Client for the Girder wt_data_manager plugin.

Watch test containers and data transfers as they progress, and issue
the plugin's testing commands (create, start, stop and remove containers,
delete sessions) from the command line.

Configuration is read from ~/.config/wholetale/dmwatch.ini, then .env files
in the working directory, then DMWATCH_* environment variables, then flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				logging.SetGlobalLevel(zerolog.InfoLevel)
			}

			path, err := resolveLogFile()
			if err != nil {
				return err
			}
			logger = logging.NewLogger(logging.Options{Out: cmd.ErrOrStderr(), File: path})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Girder API root, e.g. http://localhost:8080/api/v1 (overrides config)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Girder token (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file (name or path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	return rootCmd
}

// resolveLogFile picks the log file from the flag or, failing that, the
// configuration file. An unreadable config does not block logging.
func resolveLogFile() (string, error) {
	name := logFile
	if name == "" {
		if cfg, err := config.Load(cfgFile); err == nil {
			name = cfg.LogFile
		}
	}
	return config.ResolveLogFile(name)
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Loop so repeated Ctrl+C does not block the sender
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, stopping...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newContainersCmd())
	rootCmd.AddCommand(newTransfersCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newTestingCmd())
	rootCmd.AddCommand(newSettingsCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	AddShortcuts(rootCmd)
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the dmwatch version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "dmwatch %s (built %s)\n", version.Version, version.BuildTime)
			return err
		},
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && termIsTerminal(int(f.Fd()))
}
