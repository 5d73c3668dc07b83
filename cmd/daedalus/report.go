package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wehubfusion/Daedalus/pkg/storage"
)

func newReportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report <request-id | blob reference>",
		Short: "Show the outcome a worker saved to blob storage",
		Long: `Download and render the full outcome of a worker run. The argument is the
request ID, or the outcome URL carried by the import report.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.settings
			if s.Azure.ConnectionString == "" {
				return fmt.Errorf("azure.connection_string is required to read saved outcomes")
			}
			blobs, err := storage.NewAzureBlobClient(s.Azure.ConnectionString, s.Azure.Container, a.logger)
			if err != nil {
				return err
			}
			payloads, err := storage.NewPayloadStore(blobs, a.logger)
			if err != nil {
				return err
			}
			return showReport(cmd.Context(), cmd.OutOrStdout(), payloads, args[0])
		},
	}
}

// showReport renders the outcome stored under ref. A bare request ID is
// resolved to its report path.
func showReport(ctx context.Context, w io.Writer, payloads *storage.PayloadStore, ref string) error {
	if !strings.Contains(ref, "/") {
		ref = storage.ReportPath(ref)
	}
	outcome, err := payloads.LoadOutcome(ctx, ref)
	if err != nil {
		return err
	}
	return renderOutcome(w, outcome)
}
