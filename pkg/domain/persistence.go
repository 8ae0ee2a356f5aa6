package domain

import (
	"context"
	"errors"
	"fmt"
)

// MaxBatchSize is the largest number of record updates a store accepts per
// write call. Callers chunk larger result sets into sequential calls.
const MaxBatchSize = 50

// ErrBatchTooLarge is returned when a write call exceeds MaxBatchSize entries.
var ErrBatchTooLarge = fmt.Errorf("batch exceeds %d updates", MaxBatchSize)

// ErrInvalidCell is returned when a cell value does not fit its field type.
var ErrInvalidCell = errors.New("cell value does not match field type")

// ErrNotFound is returned when a referenced entity does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Transaction exposes the operations a persistence implementation must
// support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateTable(Table) (Table, error)
	UpdateTable(id string, mutator func(*Table) error) (Table, error)
	CreateRecord(Record) (Record, error)
	UpdateRecord(tableID, id string, mutator func(*Record) error) (Record, error)
	DeleteRecord(tableID, id string) error
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	ListTables() []Table
	FindTable(id string) (Table, bool)
	// ListRecords returns the table's records in insertion order.
	ListRecords(tableID string) []Record
	FindRecord(tableID, id string) (Record, bool)
}

// PersistentStore is a minimal abstraction over durable record backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
	GetTable(id string) (Table, bool)
	ListTables() []Table
	ListRecords(tableID string) []Record
}

// ParticipantSource lists the participants visible under the given settings.
// It must be re-readable: the generator and validator call it independently.
type ParticipantSource interface {
	ListParticipants(ctx context.Context, settings Settings) ([]Participant, error)
}

// AssignmentWriter replaces the assignment value of each named giver. A single
// call accepts at most MaxBatchSize edges.
type AssignmentWriter interface {
	WriteAssignments(ctx context.Context, settings Settings, batch []Edge) error
}
