package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/whole-tale/girder-wt-data-manager/internal/render"
	"github.com/whole-tale/girder-wt-data-manager/internal/transfer"
)

// newTransfersCmd creates the 'transfers' command group.
func newTransfersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transfers",
		Aliases: []string{"transfer", "t"},
		Short:   "Inspect data transfers",
	}
	cmd.AddCommand(newTransfersListCmd())
	return cmd
}

func newTransfersListCmd() *cobra.Command {
	var (
		sessionID string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List transfers with their status and progress",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := getAPIClient(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("session") {
				sessionID = cfg.SessionID
			}

			recs, err := client.ListTransfers(GetContext(), sessionID)
			if err != nil {
				return fmt.Errorf("failed to list transfers: %w", err)
			}
			annotated, errs := transfer.AnnotateAll(recs)
			for _, err := range errs {
				GetLogger().Warn().Err(err).Msg("Skipping transfer")
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, annotated)
			}
			fmt.Fprintln(out, render.Transfers(annotated, time.Now()))
			fmt.Fprintln(out, render.SummaryLine(transfer.Summarize(annotated)))
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Only list transfers of this session")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
