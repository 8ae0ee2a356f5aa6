package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"giftmatch/pkg/domain"
)

const (
	fieldName   = "fld-name"
	fieldGiftee = "fld-giftee"
	fieldHouse  = "fld-house"
	viewAll     = "viw-all"
	viewNorth   = "viw-north"
)

// seedPeople creates a table whose records carry the given house choice ids
// ("" for none) and returns settings pointing at it.
func seedPeople(t *testing.T, store domain.PersistentStore, houses ...string) (domain.Settings, []string) {
	t.Helper()
	var ids []string
	var tableID string
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		table, err := tx.CreateTable(domain.Table{
			Name: "People",
			Fields: []domain.Field{
				{ID: fieldName, Name: "Name", Type: domain.FieldText},
				{ID: fieldGiftee, Name: "Giftee", Type: domain.FieldLink},
				{ID: fieldHouse, Name: "House", Type: domain.FieldSingleSelect, Choices: []domain.Choice{
					{ID: "north", Name: "North", Color: "blueBright"},
					{ID: "south", Name: "South", Color: "redBright"},
					{ID: "east", Name: "East", Color: "greenBright"},
				}},
			},
			Views: []domain.View{
				{ID: viewAll, Name: "All"},
				{ID: viewNorth, Name: "North only", FilterField: fieldHouse, FilterValues: []string{"north"}},
			},
		})
		if err != nil {
			return err
		}
		tableID = table.ID
		for i, house := range houses {
			rec := domain.Record{TableID: table.ID, Name: fmt.Sprintf("P%d", i)}
			if house != "" {
				rec.Choices = map[string]string{fieldHouse: house}
			}
			created, err := tx.CreateRecord(rec)
			if err != nil {
				return err
			}
			ids = append(ids, created.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed people: %v", err)
	}
	return domain.Settings{
		TableID:           tableID,
		ViewID:            viewAll,
		AssignmentFieldID: fieldGiftee,
		GroupFieldID:      fieldHouse,
	}, ids
}

// link overwrites the assignment links of giver.
func link(t *testing.T, store domain.PersistentStore, settings domain.Settings, giver string, targets ...string) {
	t.Helper()
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpdateRecord(settings.TableID, giver, func(r *domain.Record) error {
			if r.Links == nil {
				r.Links = map[string][]string{}
			}
			r.Links[settings.AssignmentFieldID] = targets
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("link %s: %v", giver, err)
	}
}

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

type captureLogger struct{ calls []string }

func (c *captureLogger) Debug(msg string, _ ...any) { c.calls = append(c.calls, "d:"+msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.calls = append(c.calls, "i:"+msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.calls = append(c.calls, "w:"+msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.calls = append(c.calls, "e:"+msg) }

func (c *captureLogger) has(call string) bool {
	for _, got := range c.calls {
		if got == call {
			return true
		}
	}
	return false
}

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}
