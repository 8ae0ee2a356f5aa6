package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the assignment graph as JSON",
		Long: `Print the participants and every stored assignment link, including
broken ones, as JSON nodes and edges for a graph renderer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, runGraph)
		},
	}
}

func runGraph(ctx context.Context, a *app) error {
	graph, err := a.service.Graph(ctx, a.settings())
	if err != nil {
		return commandError("graph", err)
	}
	return a.formatter.Success(graph, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(graph)
	})
}
