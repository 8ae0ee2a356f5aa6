package core

import (
	"context"
	"fmt"

	"giftmatch/pkg/domain"
)

var (
	_ domain.ParticipantSource = (*RecordSource)(nil)
	_ domain.AssignmentWriter  = (*RecordSource)(nil)
)

// RecordSource adapts a record store to the matching engine: it projects the
// records of the configured view into participants and writes assignment
// links back, one store transaction per batch.
type RecordSource struct {
	store domain.PersistentStore
}

// NewRecordSource wraps the store.
func NewRecordSource(store domain.PersistentStore) *RecordSource {
	return &RecordSource{store: store}
}

// ListParticipants returns the records visible through the configured view,
// in table order. Settings that do not fit the table yield a *domain.SettingsError.
func (s *RecordSource) ListParticipants(ctx context.Context, settings domain.Settings) ([]domain.Participant, error) {
	var out []domain.Participant
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		table, scope, err := resolve(view, settings)
		if err != nil {
			return err
		}
		for _, r := range view.ListRecords(table.ID) {
			if scope.Includes(r) {
				out = append(out, settings.Project(r))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WriteAssignments replaces the assignment link of every giver in the batch.
// An edge without a recipient clears the link. The batch is applied
// atomically; a giver that no longer exists aborts the whole batch.
func (s *RecordSource) WriteAssignments(ctx context.Context, settings domain.Settings, batch []domain.Edge) error {
	if len(batch) > domain.MaxBatchSize {
		return domain.ErrBatchTooLarge
	}
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		table, _, err := resolve(tx.Snapshot(), settings)
		if err != nil {
			return err
		}
		for _, e := range batch {
			_, err := tx.UpdateRecord(table.ID, e.GiverID, func(r *domain.Record) error {
				if r.Links == nil {
					r.Links = make(map[string][]string, 1)
				}
				if e.IsClear() {
					r.Links[settings.AssignmentFieldID] = nil
					return nil
				}
				r.Links[settings.AssignmentFieldID] = []string{e.RecipientID}
				return nil
			})
			if err != nil {
				return fmt.Errorf("write assignment for %s: %w", e.GiverID, err)
			}
		}
		return nil
	})
}

func resolve(view domain.TransactionView, settings domain.Settings) (domain.Table, domain.View, error) {
	table, ok := view.FindTable(settings.TableID)
	var tp *domain.Table
	if ok {
		tp = &table
	}
	if err := settings.Check(tp); err != nil {
		return domain.Table{}, domain.View{}, err
	}
	v, _ := table.FindView(settings.ViewID)
	return table, v, nil
}
