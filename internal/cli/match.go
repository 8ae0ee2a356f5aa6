package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"giftmatch/internal/core"
	"giftmatch/internal/match"
	"giftmatch/internal/report"

	"github.com/spf13/cobra"
)

// MatchOptions holds the match command's flags.
type MatchOptions struct {
	Force    bool
	Seed     uint64
	Strategy string
	Attempts int
}

// MatchOutput is the match command's output.
type MatchOutput struct {
	Outcome match.Outcome   `json:"outcome"`
	Report  report.Document `json:"report"`
}

// NewMatchCommand creates the match command.
func NewMatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MatchOptions{}
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Generate and store a new gift assignment",
		Long: `Generate a single-cycle gift assignment and store it in the assignment
field. A currently valid assignment is left alone unless --force is given.
Exits 1 when no valid assignment was found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var seed *uint64
			if cmd.Flags().Changed("seed") {
				seed = &opts.Seed
			}
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app) error {
				return runMatch(ctx, a, opts, seed)
			})
		},
	}
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "throw out the current match even when it is valid")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "seed for a reproducible match")
	cmd.Flags().StringVar(&opts.Strategy, "strategy", "", "construction strategy (random|interleave)")
	cmd.Flags().IntVar(&opts.Attempts, "attempts", 0, "attempts before giving up (default from config)")
	return cmd
}

func runMatch(ctx context.Context, a *app, opts *MatchOptions, seed *uint64) error {
	settings := a.settings()
	result, err := a.service.MakeMatch(ctx, core.MatchRequest{
		Settings: settings,
		Force:    opts.Force,
		Seed:     seed,
		Strategy: opts.Strategy,
		Attempts: opts.Attempts,
	})
	if errors.Is(err, core.ErrMatchAlreadyValid) {
		return WrapExitError(ExitFailure, "match kept", err)
	}
	if err != nil {
		return commandError("make match", err)
	}
	doc, _, err := a.document(ctx, settings, result.Report)
	if err != nil {
		return commandError("render report", err)
	}
	out := MatchOutput{Outcome: result.Outcome, Report: doc}
	text := func(w io.Writer) error {
		if _, err := fmt.Fprintln(w, attemptsLine(result.Outcome)); err != nil {
			return err
		}
		return report.WriteText(w, doc)
	}
	if !result.Outcome.Valid || !result.Report.Valid {
		if err := a.formatter.Failure(out, "no valid match found", text); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "no valid match found")
	}
	return a.formatter.Success(out, text)
}

func attemptsLine(o match.Outcome) string {
	n := len(o.Attempts)
	noun := "attempts"
	if n == 1 {
		noun = "attempt"
	}
	if o.Valid {
		return fmt.Sprintf("Found a match after %d %s.", n, noun)
	}
	last, _ := o.Last()
	if last.Reason != "" {
		return fmt.Sprintf("Gave up after %d %s (%s).", n, noun, last.Reason)
	}
	return fmt.Sprintf("Gave up after %d %s.", n, noun)
}
