package match

import (
	"context"
	"errors"
	"fmt"

	"giftmatch/pkg/domain"
)

// fakeStore is an in-memory participant source and assignment writer that
// records every write call.
type fakeStore struct {
	participants []domain.Participant
	batches      []int
	failOnCall   int
	listErr      error
}

func newFakeStore(groups ...string) *fakeStore {
	s := &fakeStore{}
	for i, g := range groups {
		s.participants = append(s.participants, domain.Participant{
			ID:    fmt.Sprintf("p%02d", i),
			Name:  fmt.Sprintf("Person %d", i),
			Group: g,
		})
	}
	return s
}

func ungrouped(n int) *fakeStore {
	return newFakeStore(make([]string, n)...)
}

func (s *fakeStore) ListParticipants(_ context.Context, _ domain.Settings) ([]domain.Participant, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.Participant, len(s.participants))
	for i, p := range s.participants {
		p.Assignment = append([]string(nil), p.Assignment...)
		out[i] = p
	}
	return out, nil
}

func (s *fakeStore) WriteAssignments(_ context.Context, _ domain.Settings, batch []domain.Edge) error {
	if len(batch) > domain.MaxBatchSize {
		return domain.ErrBatchTooLarge
	}
	if s.failOnCall > 0 && len(s.batches)+1 == s.failOnCall {
		return errors.New("write failed")
	}
	s.batches = append(s.batches, len(batch))
	for _, e := range batch {
		for i := range s.participants {
			if s.participants[i].ID != e.GiverID {
				continue
			}
			if e.IsClear() {
				s.participants[i].Assignment = nil
			} else {
				s.participants[i].Assignment = []string{e.RecipientID}
			}
		}
	}
	return nil
}

func (s *fakeStore) assign(pairs map[string][]string) {
	for i := range s.participants {
		s.participants[i].Assignment = pairs[s.participants[i].ID]
	}
}

// cycleLength follows edges from the first giver and returns the number of
// steps taken to return to it, or -1 if the edges do not form a function.
func cycleLength(edges []domain.Edge) int {
	next := make(map[string]string, len(edges))
	for _, e := range edges {
		if _, dup := next[e.GiverID]; dup {
			return -1
		}
		next[e.GiverID] = e.RecipientID
	}
	if len(edges) == 0 {
		return 0
	}
	start := edges[0].GiverID
	cur, steps := start, 0
	for {
		n, ok := next[cur]
		if !ok {
			return -1
		}
		cur = n
		steps++
		if cur == start || steps > len(edges) {
			break
		}
	}
	if cur != start {
		return -1
	}
	return steps
}
