package match

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"giftmatch/pkg/domain"
)

// DefaultAttempts is the number of construction attempts before giving up.
const DefaultAttempts = 5

// ErrTooFewParticipants is returned when fewer than two participants are in scope.
var ErrTooFewParticipants = errors.New("at least two participants are required")

// AttemptSummary describes one finished attempt.
type AttemptSummary struct {
	Number   int           `json:"number"`
	Strategy string        `json:"strategy"`
	Success  bool          `json:"success"`
	Reason   FailureReason `json:"reason,omitempty"`
	Edges    int           `json:"edges"`
	Cleared  int           `json:"cleared"`
	Batches  int           `json:"batches"`
}

// Outcome reports what a Generate run left in the store.
type Outcome struct {
	// Valid is true when the last persisted attempt is a single cycle that
	// respects the group exclusion.
	Valid    bool             `json:"valid"`
	Attempts []AttemptSummary `json:"attempts"`
	// Edges are the persisted edges of the last attempt.
	Edges []domain.Edge `json:"edges"`
}

// Last returns the summary of the final attempt.
func (o Outcome) Last() (AttemptSummary, bool) {
	if len(o.Attempts) == 0 {
		return AttemptSummary{}, false
	}
	return o.Attempts[len(o.Attempts)-1], true
}

// Generator runs bounded randomized attempts and persists each one. A
// Generator is not safe for concurrent use; callers must not overlap runs.
type Generator struct {
	attempts  int
	batchSize int
	strategy  Strategy
	rng       *rand.Rand
}

// Option configures a Generator.
type Option func(*Generator)

// WithAttempts overrides the attempt budget. Values below one are ignored.
func WithAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.attempts = n
		}
	}
}

// WithBatchSize overrides the write chunk size. It is capped at domain.MaxBatchSize.
func WithBatchSize(n int) Option {
	return func(g *Generator) {
		if n > 0 && n <= domain.MaxBatchSize {
			g.batchSize = n
		}
	}
}

// WithSeed makes the generator deterministic.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithStrategy replaces the default RandomWalk strategy.
func WithStrategy(s Strategy) Option {
	return func(g *Generator) {
		if s != nil {
			g.strategy = s
		}
	}
}

// NewGenerator constructs a generator with the default policy: five
// RandomWalk attempts, batches of domain.MaxBatchSize, random seed.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		attempts:  DefaultAttempts,
		batchSize: domain.MaxBatchSize,
		strategy:  RandomWalk{},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return g
}

// Strategy returns the configured construction strategy.
func (g *Generator) Strategy() Strategy { return g.strategy }

// Generate reads the participants once, then runs attempts until one succeeds
// or the budget is spent. Every attempt is written before the next begins, so
// the store always holds the most recent attempt. Exhausting the budget is not
// an error: the returned Outcome has Valid == false.
//
// ctx is only consulted between attempts and by the writer; an attempt whose
// writes have started is always written in full unless a write fails.
func (g *Generator) Generate(ctx context.Context, src domain.ParticipantSource, w domain.AssignmentWriter, settings domain.Settings) (Outcome, error) {
	participants, err := src.ListParticipants(ctx, settings)
	if err != nil {
		return Outcome{}, fmt.Errorf("list participants: %w", err)
	}
	if len(participants) < 2 {
		return Outcome{}, ErrTooFewParticipants
	}

	var out Outcome
	for n := 1; n <= g.attempts; n++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		attempt := g.strategy.Attempt(participants, g.rng)
		batches, err := WriteBatched(ctx, w, settings, attempt.Writes(), g.batchSize)
		if err != nil {
			return out, fmt.Errorf("persist attempt %d: %w", n, err)
		}
		out.Attempts = append(out.Attempts, AttemptSummary{
			Number:   n,
			Strategy: g.strategy.Name(),
			Success:  attempt.Success,
			Reason:   attempt.Reason,
			Edges:    len(attempt.Edges),
			Cleared:  len(attempt.Cleared),
			Batches:  batches,
		})
		out.Edges = attempt.Edges
		out.Valid = attempt.Success
		if attempt.Success {
			break
		}
	}
	return out, nil
}

// WriteBatched issues the writes in sequential chunks of at most size entries,
// waiting for each call before starting the next. It returns the number of
// calls made.
func WriteBatched(ctx context.Context, w domain.AssignmentWriter, settings domain.Settings, writes []domain.Edge, size int) (int, error) {
	if size <= 0 || size > domain.MaxBatchSize {
		size = domain.MaxBatchSize
	}
	calls := 0
	for start := 0; start < len(writes); start += size {
		end := min(start+size, len(writes))
		if err := w.WriteAssignments(ctx, settings, writes[start:end]); err != nil {
			return calls, err
		}
		calls++
	}
	return calls, nil
}
