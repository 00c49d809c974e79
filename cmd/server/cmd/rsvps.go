package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Togather-Foundation/rsvp/internal/audit"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/domain/access"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/rsvps"
	"github.com/Togather-Foundation/rsvp/internal/export"
	"github.com/spf13/cobra"
)

// operatorActor is the identity recorded in the audit log for CLI actions.
var operatorActor = access.Actor{UserID: "operator:cli", Role: auth.RoleAdmin}

func newRSVPsCommand(root *rootOptions) *cobra.Command {
	rsvpsCmd := &cobra.Command{
		Use:   "rsvps",
		Short: "Inspect event RSVPs",
	}

	var eventID, output string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the RSVPs of an event as CSV",
		Long: `Write the RSVPs of an event as CSV, newest first, with the columns
Name, Email, Message, RSVP Date.

The export runs with admin rights and is recorded in the audit log.`,
		Example: `  rsvp-server rsvps export --event 01HYX3KQW7ERTV9XNBM2P8QJZF --output guests.csv`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			logger := config.NewLogger(cfg.Logging)

			repo, pool, err := openRepository(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			auditLogger := audit.NewLogger(logger)
			eventService := events.NewService(repo.Events(), auditLogger, logger)
			rsvpService := rsvps.NewService(repo.RSVPs(), eventService, auditLogger, logger)

			result, err := rsvpService.Export(cmd.Context(), operatorActor, eventID)
			if errors.Is(err, events.ErrNotFound) {
				return fmt.Errorf("event %q not found", eventID)
			}
			if err != nil {
				return err
			}

			return writeExport(cmd.OutOrStdout(), output, result)
		},
	}
	exportCmd.Flags().StringVar(&eventID, "event", "", "event id")
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	_ = exportCmd.MarkFlagRequired("event")

	rsvpsCmd.AddCommand(exportCmd)
	return rsvpsCmd
}

// writeExport writes the CSV to path, or to stdout when path is empty.
func writeExport(stdout io.Writer, path string, result *rsvps.Export) (err error) {
	if path == "" {
		return export.WriteCSV(stdout, result.Rows)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close output file: %w", closeErr)
		}
	}()

	if err := export.WriteCSV(file, result.Rows); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %d RSVP(s) for %q to %s\n", len(result.Rows), result.Event.Title, path)
	return nil
}
