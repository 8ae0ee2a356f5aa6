package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"giftmatch/internal/config"
	"giftmatch/internal/roster"
	"giftmatch/pkg/domain"

	"github.com/spf13/cobra"
)

// ImportResult is the import command's output.
type ImportResult struct {
	Table    string          `json:"table"`
	People   int             `json:"people"`
	Settings domain.Settings `json:"settings"`
	// Replaced is true when an existing table of the same name was refilled.
	Replaced bool `json:"replaced,omitempty"`
	// SavedTo is the config file the settings were written to, if any.
	SavedTo string `json:"saved_to,omitempty"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "import <roster.yaml>",
		Short: "Create a participant table from a YAML roster",
		Long: `Create a participant table from a YAML roster and print the settings
that select it. Importing a roster whose table already exists replaces its
people and keeps the table's ids, so saved settings keep working. With --save
the settings are written into the config file so later commands pick them up.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				return runImport(ctx, a, rootOpts, args[0], save)
			})
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "write the new settings into the config file")
	return cmd
}

func runImport(ctx context.Context, a *app, opts *RootOptions, path string, save bool) error {
	f, err := os.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "open roster", err)
	}
	defer f.Close()
	r, err := roster.Parse(f)
	if err != nil {
		return WrapExitError(ExitCommandError, "read roster", err)
	}
	res, err := roster.Import(ctx, a.service.Store(), r)
	if err != nil {
		return WrapExitError(ExitCommandError, "import roster", err)
	}
	a.logger.Info("roster imported", "table", res.Settings.TableID, "people", len(r.People), "replaced", res.Replaced)

	out := ImportResult{Table: res.Table.Name, People: len(r.People), Settings: res.Settings, Replaced: res.Replaced}
	if save {
		target := opts.ConfigPath
		if target == "" {
			target = config.DefaultFile
		}
		cfg := a.cfg
		cfg.SetMatchSettings(res.Settings)
		if err := config.Save(target, cfg); err != nil {
			return WrapExitError(ExitCommandError, "save config", err)
		}
		out.SavedTo = target
	}
	return a.formatter.Success(out, func(w io.Writer) error {
		verb := "Imported"
		if out.Replaced {
			verb = "Reimported"
		}
		_, err := fmt.Fprintf(w, "%s %d people into %q\nsettings:\n  table: %s\n  view: %s\n  assignment_field: %s\n",
			verb, out.People, out.Table, out.Settings.TableID, out.Settings.ViewID, out.Settings.AssignmentFieldID)
		if err != nil {
			return err
		}
		if out.Settings.GroupFieldID != "" {
			if _, err := fmt.Fprintf(w, "  group_field: %s\n", out.Settings.GroupFieldID); err != nil {
				return err
			}
		}
		if out.SavedTo != "" {
			_, err = fmt.Fprintf(w, "Saved settings to %s\n", out.SavedTo)
		}
		return err
	})
}
