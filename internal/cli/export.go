package cli

import (
	"context"
	"fmt"
	"io"

	"giftmatch/internal/report"

	"github.com/spf13/cobra"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the report and graph to the blob store",
		Long: `Validate the stored assignment and write report.json and graph.json to
a new directory in the configured blob store (filesystem, memory or S3).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				return runExport(ctx, a, prefix)
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "key prefix for the export directory")
	return cmd
}

func runExport(ctx context.Context, a *app, prefix string) error {
	settings := a.settings()
	r, err := a.service.Validate(ctx, settings)
	if err != nil {
		return commandError("validate", err)
	}
	doc, graph, err := a.document(ctx, settings, r)
	if err != nil {
		return commandError("render report", err)
	}
	store, err := a.openBlob(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "open blob store", err)
	}
	m, err := report.NewExporter(store).Export(ctx, prefix, report.Bundle{
		TableID: settings.TableID,
		Report:  doc,
		Graph:   graph,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "export", err)
	}
	a.logger.Info("export written", "driver", store.Driver(), "dir", m.Dir)
	return a.formatter.Success(m, func(w io.Writer) error {
		if _, err := fmt.Fprintf(w, "Exported to %s (%s)\n", m.Dir, store.Driver()); err != nil {
			return err
		}
		for _, obj := range m.Objects {
			if _, err := fmt.Fprintf(w, "  %s (%d bytes)\n", obj.Key, obj.Size); err != nil {
				return err
			}
		}
		return nil
	})
}
