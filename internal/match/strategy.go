package match

import (
	"fmt"
	"math/rand/v2"

	"giftmatch/pkg/domain"
)

// FailureReason explains why an attempt did not yield a valid matching.
type FailureReason string

const (
	// ReasonNone marks a successful attempt.
	ReasonNone FailureReason = ""
	// ReasonDeadEnd marks an attempt where no recipient outside the current
	// giver's group remained.
	ReasonDeadEnd FailureReason = "dead_end"
	// ReasonClosingCollision marks an attempt whose closing edge joins two
	// members of one group.
	ReasonClosingCollision FailureReason = "closing_collision"
)

// Attempt is the result of one construction pass.
type Attempt struct {
	// Edges are emitted in walk order; when Success is true they form one
	// cycle through every participant.
	Edges []domain.Edge
	// Cleared lists givers that received no outgoing edge (dead ends only).
	Cleared []string
	Success bool
	Reason  FailureReason
}

// Writes returns the assignment writes that persist the attempt: every edge
// followed by a clear for every giver left without a recipient.
func (a Attempt) Writes() []domain.Edge {
	out := make([]domain.Edge, 0, len(a.Edges)+len(a.Cleared))
	out = append(out, a.Edges...)
	for _, id := range a.Cleared {
		out = append(out, domain.Edge{GiverID: id})
	}
	return out
}

// Strategy constructs one candidate assignment over at least two participants.
type Strategy interface {
	Name() string
	Attempt(participants []domain.Participant, rng *rand.Rand) Attempt
}

// ParseStrategy resolves a strategy by its Name. The empty name selects RandomWalk.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", RandomWalk{}.Name():
		return RandomWalk{}, nil
	case Interleave{}.Name():
		return Interleave{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// RandomWalk builds the cycle one random step at a time: starting from a random
// participant, each step picks a random remaining participant outside the
// current one's group, and the last participant closes the cycle back to the first.
type RandomWalk struct{}

// Name implements Strategy.
func (RandomWalk) Name() string { return "random" }

// Attempt implements Strategy.
func (RandomWalk) Attempt(participants []domain.Participant, rng *rand.Rand) Attempt {
	remaining := append([]domain.Participant(nil), participants...)
	start := rng.IntN(len(remaining))
	first := remaining[start]
	remaining = removeAt(remaining, start)
	current := first

	edges := make([]domain.Edge, 0, len(participants))
	candidates := make([]int, 0, len(remaining))
	for len(remaining) > 0 {
		candidates = candidates[:0]
		for i, p := range remaining {
			if !domain.SameGroup(current, p) {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) == 0 {
			return deadEnd(participants, edges)
		}
		pick := candidates[rng.IntN(len(candidates))]
		next := remaining[pick]
		remaining = removeAt(remaining, pick)
		edges = append(edges, domain.Edge{GiverID: current.ID, RecipientID: next.ID})
		current = next
	}
	return closeCycle(edges, current, first)
}

// Interleave builds the cycle constructively: participants are shuffled within
// their groups, then emitted round-robin, always drawing from the largest
// remaining group other than the previous participant's. Ties prefer the
// starting group so it is exhausted early and the closing edge stays clear of it.
// Ungrouped participants each form a group of one.
type Interleave struct{}

// Name implements Strategy.
func (Interleave) Name() string { return "interleave" }

type bucket struct {
	key     string
	members []domain.Participant
}

// Attempt implements Strategy.
func (Interleave) Attempt(participants []domain.Participant, rng *rand.Rand) Attempt {
	buckets := groupBuckets(participants, rng)

	firstIdx := pickBucket(buckets, "", "", rng)
	first := buckets[firstIdx].pop()
	prevKey := buckets[firstIdx].key
	current := first

	edges := make([]domain.Edge, 0, len(participants))
	for placed := 1; placed < len(participants); placed++ {
		idx := pickBucket(buckets, prevKey, buckets[firstIdx].key, rng)
		if idx < 0 {
			return deadEnd(participants, edges)
		}
		next := buckets[idx].pop()
		edges = append(edges, domain.Edge{GiverID: current.ID, RecipientID: next.ID})
		current = next
		prevKey = buckets[idx].key
	}
	return closeCycle(edges, current, first)
}

func (b *bucket) pop() domain.Participant {
	p := b.members[len(b.members)-1]
	b.members = b.members[:len(b.members)-1]
	return p
}

func groupBuckets(participants []domain.Participant, rng *rand.Rand) []*bucket {
	byKey := make(map[string]*bucket)
	var out []*bucket
	for _, p := range participants {
		key := p.Group
		if key == "" {
			key = "\x00" + p.ID
		}
		b, ok := byKey[key]
		if !ok {
			b = &bucket{key: key}
			byKey[key] = b
			out = append(out, b)
		}
		b.members = append(b.members, p)
	}
	for _, b := range out {
		rng.Shuffle(len(b.members), func(i, j int) { b.members[i], b.members[j] = b.members[j], b.members[i] })
	}
	return out
}

// pickBucket returns the index of the non-empty bucket with the most members
// whose key differs from exclude, or -1 if none qualifies.
func pickBucket(buckets []*bucket, exclude, prefer string, rng *rand.Rand) int {
	best := 0
	var tied []int
	for i, b := range buckets {
		n := len(b.members)
		if n == 0 || (exclude != "" && b.key == exclude) {
			continue
		}
		switch {
		case n > best:
			best = n
			tied = append(tied[:0], i)
		case n == best:
			tied = append(tied, i)
		}
	}
	if len(tied) == 0 {
		return -1
	}
	for _, i := range tied {
		if prefer != "" && buckets[i].key == prefer {
			return i
		}
	}
	return tied[rng.IntN(len(tied))]
}

func closeCycle(edges []domain.Edge, last, first domain.Participant) Attempt {
	// The closing edge is emitted even on collision so the relation stays total.
	edges = append(edges, domain.Edge{GiverID: last.ID, RecipientID: first.ID})
	if domain.SameGroup(last, first) {
		return Attempt{Edges: edges, Reason: ReasonClosingCollision}
	}
	return Attempt{Edges: edges, Success: true}
}

func deadEnd(participants []domain.Participant, edges []domain.Edge) Attempt {
	gives := make(map[string]struct{}, len(edges))
	for _, e := range edges {
		gives[e.GiverID] = struct{}{}
	}
	var cleared []string
	for _, p := range participants {
		if _, ok := gives[p.ID]; !ok {
			cleared = append(cleared, p.ID)
		}
	}
	return Attempt{Edges: edges, Cleared: cleared, Reason: ReasonDeadEnd}
}

func removeAt(ps []domain.Participant, i int) []domain.Participant {
	return append(ps[:i], ps[i+1:]...)
}
