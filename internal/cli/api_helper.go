package cli

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/whole-tale/girder-wt-data-manager/internal/api"
	"github.com/whole-tale/girder-wt-data-manager/internal/config"
	"github.com/whole-tale/girder-wt-data-manager/internal/dispatch"
	"github.com/whole-tale/girder-wt-data-manager/internal/http"
	"github.com/whole-tale/girder-wt-data-manager/internal/progress"
)

// loadConfig resolves file, .env, environment and the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadAll(cfgFile)
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if token != "" {
		cfg.Token = token
	}
	return cfg, nil
}

// getAPIClient loads configuration and creates an API client.
// A missing token or proxy password is prompted for when running
// interactively.
func getAPIClient(cmd *cobra.Command) (*api.Client, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Token == "" {
		t, err := promptSecret(cmd.ErrOrStderr(), "Girder token")
		if err != nil {
			return nil, nil, err
		}
		cfg.Token = t
	}
	if http.NeedsProxyPassword(cfg) {
		p, err := promptSecret(cmd.ErrOrStderr(), "Proxy password")
		if err != nil {
			return nil, nil, err
		}
		cfg.ProxyPassword = p
	}
	if err := cfg.ValidateForConnection(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client, err := api.NewClient(cfg, GetLogger())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return client, cfg, nil
}

// runCommand sends one dispatcher command and prints its outcome.
func runCommand(cmd *cobra.Command, c dispatch.Command) error {
	client, _, err := getAPIClient(cmd)
	if err != nil {
		return err
	}
	var res dispatch.Result
	err = withSpinner(cmd, c.String(), func() error {
		d := dispatch.New(client, dispatch.Options{Logger: GetLogger()})
		var err error
		res, err = d.Send(GetContext(), c)
		return err
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ %s", res.Event)
	if c.ID != "" {
		fmt.Fprintf(out, " (%s)", c.ID)
	}
	fmt.Fprintln(out)
	if string(res.Body) != "null" {
		return printJSON(out, res.Body)
	}
	return nil
}

// withSpinner runs fn while a spinner is drawn on stderr. Console log lines
// written by fn are held back and printed once the spinner is cleared.
func withSpinner(cmd *cobra.Command, description string, fn func() error) error {
	errOut := cmd.ErrOrStderr()
	log := GetLogger()

	var held bytes.Buffer
	log.SetOutput(&held)
	spin := progress.StartSpinner(errOut, description)

	err := fn()

	spin.Stop()
	log.SetOutput(errOut)
	_, _ = held.WriteTo(errOut)
	return err
}
