// Package memory provides an in-memory implementation of the record store used
// for tests, ephemeral environments, and as the transactional core of the
// snapshotting SQL stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"giftmatch/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Table aliases domain.Table for in-memory persistence operations.
	Table = domain.Table
	// Record aliases domain.Record.
	Record = domain.Record
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	tables  map[string]Table
	records map[string]map[string]Record
	// order holds record ids per table in insertion order.
	order map[string][]string
}

// Snapshot captures a point-in-time clone of the store state. Records are kept
// per table in insertion order so the order survives serialization.
type Snapshot struct {
	Tables  map[string]Table    `json:"tables"`
	Records map[string][]Record `json:"records"`
}

func newMemoryState() memoryState {
	return memoryState{
		tables:  make(map[string]Table),
		records: make(map[string]map[string]Record),
		order:   make(map[string][]string),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Tables:  make(map[string]Table, len(state.tables)),
		Records: make(map[string][]Record, len(state.records)),
	}
	for id, t := range state.tables {
		s.Tables[id] = cloneTable(t)
	}
	for tableID, ids := range state.order {
		rows := make([]Record, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, cloneRecord(state.records[tableID][id]))
		}
		s.Records[tableID] = rows
	}
	return s
}

// memoryStateFromSnapshot rebuilds the state, dropping records whose table is
// missing and duplicate record ids.
func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for id, t := range s.Tables {
		t.ID = id
		state.tables[id] = cloneTable(t)
		state.records[id] = make(map[string]Record)
	}
	for tableID, rows := range s.Records {
		if _, ok := state.tables[tableID]; !ok {
			continue
		}
		for _, r := range rows {
			if _, dup := state.records[tableID][r.ID]; dup || r.ID == "" {
				continue
			}
			r.TableID = tableID
			state.records[tableID][r.ID] = cloneRecord(r)
			state.order[tableID] = append(state.order[tableID], r.ID)
		}
	}
	return state
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for id, t := range s.tables {
		cloned.tables[id] = cloneTable(t)
	}
	for tableID, rows := range s.records {
		cp := make(map[string]Record, len(rows))
		for id, r := range rows {
			cp[id] = cloneRecord(r)
		}
		cloned.records[tableID] = cp
	}
	for tableID, ids := range s.order {
		cloned.order[tableID] = append([]string(nil), ids...)
	}
	return cloned
}

func cloneTable(t Table) Table {
	cp := t
	if t.Fields != nil {
		cp.Fields = make([]domain.Field, len(t.Fields))
		for i, f := range t.Fields {
			cp.Fields[i] = f
			cp.Fields[i].Choices = append([]domain.Choice(nil), f.Choices...)
		}
	}
	if t.Views != nil {
		cp.Views = make([]domain.View, len(t.Views))
		for i, v := range t.Views {
			cp.Views[i] = v
			cp.Views[i].FilterValues = append([]string(nil), v.FilterValues...)
		}
	}
	return cp
}

// cloneRecord deep-copies cell maps. A nil link slice stays nil so an absent
// value remains distinguishable from an empty one.
func cloneRecord(r Record) Record {
	cp := r
	if r.Links != nil {
		cp.Links = make(map[string][]string, len(r.Links))
		for k, v := range r.Links {
			if v == nil {
				cp.Links[k] = nil
				continue
			}
			cp.Links[k] = append(make([]string, 0, len(v)), v...)
		}
	}
	if r.Choices != nil {
		cp.Choices = make(map[string]string, len(r.Choices))
		for k, v := range r.Choices {
			cp.Choices[k] = v
		}
	}
	if r.Text != nil {
		cp.Text = make(map[string]string, len(r.Text))
		for k, v := range r.Text {
			cp.Text[k] = v
		}
	}
	return cp
}

// validateRecord checks every cell against the field type it is stored under.
func validateRecord(table Table, r Record) error {
	for fieldID := range r.Links {
		f, ok := table.FindField(fieldID)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityField, ID: fieldID}
		}
		if f.Type != domain.FieldLink {
			return fmt.Errorf("field %q: %w", f.Name, domain.ErrInvalidCell)
		}
	}
	for fieldID, choiceID := range r.Choices {
		f, ok := table.FindField(fieldID)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityField, ID: fieldID}
		}
		if f.Type != domain.FieldSingleSelect {
			return fmt.Errorf("field %q: %w", f.Name, domain.ErrInvalidCell)
		}
		if choiceID == "" {
			continue
		}
		if _, ok := f.FindChoice(choiceID); !ok {
			return fmt.Errorf("field %q choice %q: %w", f.Name, choiceID, domain.ErrInvalidCell)
		}
	}
	for fieldID := range r.Text {
		f, ok := table.FindField(fieldID)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityField, ID: fieldID}
		}
		if f.Type != domain.FieldText {
			return fmt.Errorf("field %q: %w", f.Name, domain.ErrInvalidCell)
		}
	}
	return nil
}

// Store provides an in-memory transactional record store.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the clock used to stamp entities.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

type transaction struct {
	store *Store
	state memoryState
	now   time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func sortedTables(tables map[string]Table) []Table {
	out := make([]Table, 0, len(tables))
	for _, t := range tables {
		out = append(out, cloneTable(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func orderedRecords(state *memoryState, tableID string) []Record {
	ids := state.order[tableID]
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneRecord(state.records[tableID][id]))
	}
	return out
}

// ListTables returns all tables ordered by creation time.
func (v transactionView) ListTables() []Table {
	return sortedTables(v.state.tables)
}

// FindTable retrieves a table by ID from the snapshot.
func (v transactionView) FindTable(id string) (Table, bool) {
	t, ok := v.state.tables[id]
	if !ok {
		return Table{}, false
	}
	return cloneTable(t), true
}

// ListRecords returns the table's records in insertion order.
func (v transactionView) ListRecords(tableID string) []Record {
	return orderedRecords(v.state, tableID)
}

// FindRecord retrieves a record by table and ID.
func (v transactionView) FindRecord(tableID, id string) (Record, bool) {
	r, ok := v.state.records[tableID][id]
	if !ok {
		return Record{}, false
	}
	return cloneRecord(r), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the committed state only when fn returns nil.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateTable stores a new table. Missing field, choice, and view ids are generated.
func (tx *transaction) CreateTable(t Table) (Table, error) {
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if _, exists := tx.state.tables[t.ID]; exists {
		return Table{}, fmt.Errorf("table %q already exists", t.ID)
	}
	if err := tx.normalizeTable(&t); err != nil {
		return Table{}, err
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.tables[t.ID] = cloneTable(t)
	tx.state.records[t.ID] = make(map[string]Record)
	return cloneTable(t), nil
}

// UpdateTable mutates a table using the provided mutator function. Existing
// records must still fit the mutated schema.
func (tx *transaction) UpdateTable(id string, mutator func(*Table) error) (Table, error) {
	current, ok := tx.state.tables[id]
	if !ok {
		return Table{}, domain.ErrNotFound{Entity: domain.EntityTable, ID: id}
	}
	current = cloneTable(current)
	if err := mutator(&current); err != nil {
		return Table{}, err
	}
	current.ID = id
	if err := tx.normalizeTable(&current); err != nil {
		return Table{}, err
	}
	for _, r := range tx.state.records[id] {
		if err := validateRecord(current, r); err != nil {
			return Table{}, fmt.Errorf("record %q no longer fits table: %w", r.ID, err)
		}
	}
	current.UpdatedAt = tx.now
	tx.state.tables[id] = cloneTable(current)
	return cloneTable(current), nil
}

func (tx *transaction) normalizeTable(t *Table) error {
	fieldIDs := make(map[string]struct{}, len(t.Fields))
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.ID == "" {
			f.ID = tx.store.newID()
		}
		if _, dup := fieldIDs[f.ID]; dup {
			return fmt.Errorf("duplicate field %q", f.ID)
		}
		fieldIDs[f.ID] = struct{}{}
		switch f.Type {
		case domain.FieldText, domain.FieldLink:
			if len(f.Choices) > 0 {
				return fmt.Errorf("field %q: only single select fields carry choices", f.Name)
			}
		case domain.FieldSingleSelect:
			for j := range f.Choices {
				if f.Choices[j].ID == "" {
					f.Choices[j].ID = tx.store.newID()
				}
			}
		default:
			return fmt.Errorf("field %q: unsupported type %q", f.Name, f.Type)
		}
	}
	for i := range t.Views {
		v := &t.Views[i]
		if v.ID == "" {
			v.ID = tx.store.newID()
		}
		if v.FilterField == "" {
			continue
		}
		if f, ok := t.FindField(v.FilterField); !ok || f.Type != domain.FieldSingleSelect {
			return fmt.Errorf("view %q: filter field must be a single select field", v.Name)
		}
	}
	return nil
}

// CreateRecord appends a record to its table.
func (tx *transaction) CreateRecord(r Record) (Record, error) {
	table, ok := tx.state.tables[r.TableID]
	if !ok {
		return Record{}, domain.ErrNotFound{Entity: domain.EntityTable, ID: r.TableID}
	}
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.records[r.TableID][r.ID]; exists {
		return Record{}, fmt.Errorf("record %q already exists", r.ID)
	}
	if err := validateRecord(table, r); err != nil {
		return Record{}, err
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.records[r.TableID][r.ID] = cloneRecord(r)
	tx.state.order[r.TableID] = append(tx.state.order[r.TableID], r.ID)
	return cloneRecord(r), nil
}

// UpdateRecord mutates a record using the provided mutator function.
func (tx *transaction) UpdateRecord(tableID, id string, mutator func(*Record) error) (Record, error) {
	table, ok := tx.state.tables[tableID]
	if !ok {
		return Record{}, domain.ErrNotFound{Entity: domain.EntityTable, ID: tableID}
	}
	current, ok := tx.state.records[tableID][id]
	if !ok {
		return Record{}, domain.ErrNotFound{Entity: domain.EntityRecord, ID: id}
	}
	current = cloneRecord(current)
	if err := mutator(&current); err != nil {
		return Record{}, err
	}
	current.ID = id
	current.TableID = tableID
	if err := validateRecord(table, current); err != nil {
		return Record{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.records[tableID][id] = cloneRecord(current)
	return cloneRecord(current), nil
}

// DeleteRecord removes a record. Links pointing at it are left dangling.
func (tx *transaction) DeleteRecord(tableID, id string) error {
	if _, ok := tx.state.records[tableID][id]; !ok {
		return domain.ErrNotFound{Entity: domain.EntityRecord, ID: id}
	}
	delete(tx.state.records[tableID], id)
	ids := tx.state.order[tableID]
	for i, rid := range ids {
		if rid == id {
			tx.state.order[tableID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// Read helpers ---------------------------------------------------------------

// GetTable retrieves a table by ID from committed state.
func (s *Store) GetTable(id string) (Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.tables[id]
	if !ok {
		return Table{}, false
	}
	return cloneTable(t), true
}

// ListTables returns all tables from committed state.
func (s *Store) ListTables() []Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedTables(s.state.tables)
}

// ListRecords returns the table's committed records in insertion order.
func (s *Store) ListRecords(tableID string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return orderedRecords(&s.state, tableID)
}
