package core

import "giftmatch/pkg/domain"

// GraphNode is one participant in the assignment graph.
type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	// Group is the participant's group choice id, empty when groups are off
	// or the participant has none.
	Group string `json:"group,omitempty"`
}

// GraphEdge is one stored assignment link.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the renderer feed for the current assignment relation. It holds
// every stored link, including invalid and dangling ones, so a broken match
// can still be drawn.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
	// Groups lists the group field's choices for styling nodes by color.
	Groups []domain.Choice `json:"groups,omitempty"`
}

// BuildGraph assembles graph elements from participants in their given order.
func BuildGraph(participants []domain.Participant, groups []domain.Choice) Graph {
	g := Graph{
		Nodes:  make([]GraphNode, 0, len(participants)),
		Edges:  []GraphEdge{},
		Groups: append([]domain.Choice(nil), groups...),
	}
	for _, p := range participants {
		g.Nodes = append(g.Nodes, GraphNode{ID: p.ID, Label: p.Name, Group: p.Group})
		for _, target := range p.Assignment {
			g.Edges = append(g.Edges, GraphEdge{Source: p.ID, Target: target})
		}
	}
	return g
}
