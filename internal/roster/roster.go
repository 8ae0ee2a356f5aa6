// Package roster imports a YAML list of people into the record store as a
// participant table, ready for matching.
package roster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"giftmatch/pkg/domain"

	"gopkg.in/yaml.v3"
)

// Field and view names created by Import.
const (
	NameField         = "Name"
	AssignmentField   = "Giftee"
	DefaultGroupField = "Group"
	AllView           = "All"
)

// palette cycles through single select colors for group choices.
var palette = []string{
	"blueBright", "redBright", "greenBright", "yellowBright", "purpleBright",
	"orangeBright", "cyanBright", "pinkBright", "tealBright", "grayBright",
}

// Roster is the YAML document accepted by Import.
//
//	table: Office 2024
//	group_field: Team
//	people:
//	  - name: Ann
//	    group: Sales
//	  - name: Ben
//	    group: Support
//	    giftee: Ann
type Roster struct {
	Table      string   `yaml:"table"`
	GroupField string   `yaml:"group_field,omitempty"`
	People     []Person `yaml:"people"`
}

// Person is one roster entry. Giftee optionally names an existing assignment.
type Person struct {
	Name   string `yaml:"name"`
	Group  string `yaml:"group,omitempty"`
	Giftee string `yaml:"giftee,omitempty"`
}

// Parse decodes a roster, rejecting unknown keys.
func Parse(r io.Reader) (Roster, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var out Roster
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return Roster{}, errors.New("parse roster: empty document")
		}
		return Roster{}, fmt.Errorf("parse roster: %w", err)
	}
	return out, nil
}

func (r Roster) grouped() bool {
	if r.GroupField != "" {
		return true
	}
	for _, p := range r.People {
		if p.Group != "" {
			return true
		}
	}
	return false
}

// Validate checks names are present and unique and giftees resolve.
func (r Roster) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Table) == "" {
		errs = append(errs, errors.New("table name is required"))
	}
	if len(r.People) == 0 {
		errs = append(errs, errors.New("roster lists nobody"))
	}
	seen := make(map[string]bool, len(r.People))
	for i, p := range r.People {
		name := strings.TrimSpace(p.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("person %d: name is required", i+1))
		case seen[name]:
			errs = append(errs, fmt.Errorf("person %d: duplicate name %q", i+1, name))
		}
		seen[name] = true
	}
	for _, p := range r.People {
		if g := strings.TrimSpace(p.Giftee); g != "" && !seen[g] {
			errs = append(errs, fmt.Errorf("%s: giftee %q is not on the roster", p.Name, g))
		}
	}
	return errors.Join(errs...)
}

// Result describes an imported table.
type Result struct {
	Settings domain.Settings
	Table    domain.Table
	// IDs maps roster names to record ids.
	IDs map[string]string
	// Replaced is true when an existing table of the same name was reused.
	Replaced bool
}

// Import writes the roster into the store in one transaction and returns
// settings pointing at its table. A table with the roster's name is reused:
// its records are replaced and its schema is rebuilt around the existing
// field, choice and view ids, so settings saved for it stay valid. Group
// choices appear in first-mention order.
func Import(ctx context.Context, store domain.PersistentStore, r Roster) (Result, error) {
	if err := r.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid roster: %w", err)
	}
	table := schemaFor(r)

	var res Result
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		var target domain.Table
		if existing, ok := findByName(view.ListTables(), table.Name); ok {
			for _, rec := range view.ListRecords(existing.ID) {
				if err := tx.DeleteRecord(existing.ID, rec.ID); err != nil {
					return fmt.Errorf("clear %s: %w", rec.Name, err)
				}
			}
			updated, err := tx.UpdateTable(existing.ID, func(t *domain.Table) error {
				reuseIDs(&table, *t)
				t.Fields = table.Fields
				t.Views = table.Views
				return nil
			})
			if err != nil {
				return fmt.Errorf("update table: %w", err)
			}
			target = updated
			res.Replaced = true
		} else {
			created, err := tx.CreateTable(table)
			if err != nil {
				return fmt.Errorf("create table: %w", err)
			}
			target = created
		}
		res.Table = target
		res.Settings = domain.Settings{
			TableID:           target.ID,
			ViewID:            target.Views[0].ID,
			AssignmentFieldID: target.Fields[1].ID,
		}
		groupIDs := map[string]string{}
		if len(table.Fields) > 2 {
			group := target.Fields[2]
			res.Settings.GroupFieldID = group.ID
			for _, c := range group.Choices {
				groupIDs[c.Name] = c.ID
			}
		}

		res.IDs = make(map[string]string, len(r.People))
		for _, p := range r.People {
			name := strings.TrimSpace(p.Name)
			rec := domain.Record{
				TableID: target.ID,
				Name:    name,
				Text:    map[string]string{target.Fields[0].ID: name},
			}
			if g := strings.TrimSpace(p.Group); g != "" {
				rec.Choices = map[string]string{res.Settings.GroupFieldID: groupIDs[g]}
			}
			stored, err := tx.CreateRecord(rec)
			if err != nil {
				return fmt.Errorf("create %s: %w", name, err)
			}
			res.IDs[name] = stored.ID
		}
		for _, p := range r.People {
			giftee := strings.TrimSpace(p.Giftee)
			if giftee == "" {
				continue
			}
			giver := res.IDs[strings.TrimSpace(p.Name)]
			_, err := tx.UpdateRecord(target.ID, giver, func(rec *domain.Record) error {
				if rec.Links == nil {
					rec.Links = map[string][]string{}
				}
				rec.Links[res.Settings.AssignmentFieldID] = []string{res.IDs[giftee]}
				return nil
			})
			if err != nil {
				return fmt.Errorf("assign %s: %w", p.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// schemaFor lays out the roster table: name, assignment, then the optional
// group field, with the All view first.
func schemaFor(r Roster) domain.Table {
	table := domain.Table{
		Name: strings.TrimSpace(r.Table),
		Fields: []domain.Field{
			{Name: NameField, Type: domain.FieldText},
			{Name: AssignmentField, Type: domain.FieldLink},
		},
		Views: []domain.View{{Name: AllView}},
	}
	if r.grouped() {
		name := r.GroupField
		if name == "" {
			name = DefaultGroupField
		}
		table.Fields = append(table.Fields, domain.Field{Name: name, Type: domain.FieldSingleSelect, Choices: choicesFor(r.People)})
	}
	return table
}

func findByName(tables []domain.Table, name string) (domain.Table, bool) {
	for _, t := range tables {
		if t.Name == name {
			return t, true
		}
	}
	return domain.Table{}, false
}

// reuseIDs copies ids from existing fields, choices and views that match the
// wanted ones by name and type. Filtered views of the old table are kept when
// their filter field survives.
func reuseIDs(want *domain.Table, existing domain.Table) {
	for i := range want.Fields {
		f := &want.Fields[i]
		for _, old := range existing.Fields {
			if old.Name != f.Name || old.Type != f.Type {
				continue
			}
			f.ID = old.ID
			for j := range f.Choices {
				for _, c := range old.Choices {
					if c.Name == f.Choices[j].Name {
						f.Choices[j].ID = c.ID
						f.Choices[j].Color = c.Color
					}
				}
			}
			break
		}
	}
	for _, old := range existing.Views {
		if old.Name == AllView && old.FilterField == "" {
			want.Views[0].ID = old.ID
			continue
		}
		if _, ok := want.FindField(old.FilterField); ok {
			want.Views = append(want.Views, old)
		}
	}
}

func choicesFor(people []Person) []domain.Choice {
	var choices []domain.Choice
	seen := map[string]bool{}
	for _, p := range people {
		g := strings.TrimSpace(p.Group)
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		choices = append(choices, domain.Choice{Name: g, Color: palette[len(choices)%len(palette)]})
	}
	return choices
}
