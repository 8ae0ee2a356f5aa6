// Package domain defines the record schema, participant projection, assignment
// edges, and warning vocabulary shared by the matching engine and its stores.
package domain

import "time"

// EntityType identifies the type of object stored in the record store.
type EntityType string

// Supported entity type identifiers used in errors and persistence buckets.
const (
	// EntityTable identifies a table definition.
	EntityTable EntityType = "table"
	// EntityRecord identifies a record (a participant row).
	EntityRecord EntityType = "record"
	// EntityField identifies a field definition within a table.
	EntityField EntityType = "field"
	// EntityView identifies a filtered view over a table.
	EntityView EntityType = "view"
)

// FieldType enumerates the cell types a table field can hold.
type FieldType string

// Field types understood by the record store.
const (
	// FieldText holds a free-form string.
	FieldText FieldType = "text"
	// FieldLink holds zero or more links to records of the same table.
	FieldLink FieldType = "link"
	// FieldSingleSelect holds one choice id from the field's Choices.
	FieldSingleSelect FieldType = "single_select"
)

// Base carries identity and bookkeeping timestamps shared by stored entities.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Choice is one option of a single-select field. Color is rendering metadata only.
type Choice struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Field describes a column of a table.
type Field struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Type    FieldType `json:"type"`
	Choices []Choice  `json:"choices,omitempty"`
}

// FindChoice returns the choice with the given id.
func (f Field) FindChoice(id string) (Choice, bool) {
	for _, c := range f.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// View is a named filter over a table's records. A record belongs to the view
// when FilterField is empty or its choice in FilterField is one of FilterValues.
type View struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	FilterField  string   `json:"filter_field,omitempty"`
	FilterValues []string `json:"filter_values,omitempty"`
}

// Includes reports whether the record is visible through the view.
func (v View) Includes(r Record) bool {
	if v.FilterField == "" {
		return true
	}
	choice := r.Choices[v.FilterField]
	for _, want := range v.FilterValues {
		if choice == want {
			return true
		}
	}
	return false
}

// Table is the schema of a set of records.
type Table struct {
	Base
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
	Views  []View  `json:"views"`
}

// FindField returns the field with the given id.
func (t Table) FindField(id string) (Field, bool) {
	for _, f := range t.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// FindView returns the view with the given id.
func (t Table) FindView(id string) (View, bool) {
	for _, v := range t.Views {
		if v.ID == id {
			return v, true
		}
	}
	return View{}, false
}

// Record is a row of a table. Cell values are keyed by field id and split by
// cell type; a nil Links entry is an absent link value.
type Record struct {
	Base
	TableID string              `json:"table_id"`
	Name    string              `json:"name"`
	Links   map[string][]string `json:"links,omitempty"`
	Choices map[string]string   `json:"choices,omitempty"`
	Text    map[string]string   `json:"text,omitempty"`
}

// Participant is a record projected through Settings: its identity, its
// optional group tag, and its current assignment value.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Group is empty when the participant has no group tag.
	Group string `json:"group,omitempty"`
	// Assignment is nil when the stored value is absent.
	Assignment []string `json:"assignment"`
}

// SameGroup reports whether both participants carry the same non-empty group tag.
func SameGroup(a, b Participant) bool {
	return a.Group != "" && b.Group != "" && a.Group == b.Group
}

// Edge is one giver → recipient assignment. An Edge with an empty RecipientID
// clears the giver's stored assignment.
type Edge struct {
	GiverID     string `json:"giver_id"`
	RecipientID string `json:"recipient_id"`
}

// IsClear reports whether the edge removes the giver's assignment.
func (e Edge) IsClear() bool { return e.RecipientID == "" }
