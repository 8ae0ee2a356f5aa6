package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the stored assignment and list every problem",
		Long: `Check the stored assignment against the single-cycle and group rules
and list every problem found. Exits 1 when the assignment is invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, runValidate)
		},
	}
}

func runValidate(ctx context.Context, a *app) error {
	settings := a.settings()
	r, err := a.service.Validate(ctx, settings)
	if err != nil {
		return commandError("validate", err)
	}
	doc, _, err := a.document(ctx, settings, r)
	if err != nil {
		return commandError("render report", err)
	}
	if !r.Valid {
		if err := a.formatter.Failure(doc, doc.Summary, textDocument(doc)); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "match is invalid")
	}
	return a.formatter.Success(doc, textDocument(doc))
}
