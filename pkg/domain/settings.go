package domain

// Settings selects which table, view, and fields the matching engine reads and
// writes. It is passed explicitly to every call; nothing caches it.
type Settings struct {
	TableID           string `json:"table_id" yaml:"table_id"`
	ViewID            string `json:"view_id" yaml:"view_id"`
	AssignmentFieldID string `json:"assignment_field_id" yaml:"assignment_field_id"`
	// GroupFieldID is optional; empty disables the same-group exclusion.
	GroupFieldID string `json:"group_field_id,omitempty" yaml:"group_field_id,omitempty"`
}

// GroupsEnabled reports whether the same-group exclusion constraint is configured.
func (s Settings) GroupsEnabled() bool { return s.GroupFieldID != "" }

// SettingsReason identifies which setting failed validation.
type SettingsReason string

// Reasons returned by Settings.Check, in check order.
const (
	SettingsMissingTable           SettingsReason = "missing_table"
	SettingsMissingView            SettingsReason = "missing_view"
	SettingsMissingAssignmentField SettingsReason = "missing_assignment_field"
	SettingsAssignmentNotLink      SettingsReason = "assignment_field_not_link"
	SettingsGroupNotSingleSelect   SettingsReason = "group_field_not_single_select"
)

var settingsMessages = map[SettingsReason]string{
	SettingsMissingTable:           "Pick the table with the people you want to assign",
	SettingsMissingView:            "Pick the view with the people you want to assign",
	SettingsMissingAssignmentField: "Pick a field to save assignments",
	SettingsAssignmentNotLink:      "Assignment field must be a link field",
	SettingsGroupNotSingleSelect:   "Group field must be a single select field",
}

// SettingsError reports the first unusable setting.
type SettingsError struct {
	Reason SettingsReason
}

func (e *SettingsError) Error() string {
	return settingsMessages[e.Reason]
}

// Check validates the settings against the table they name. table may be nil
// when the table could not be found.
func (s Settings) Check(table *Table) error {
	if table == nil || s.TableID == "" || table.ID != s.TableID {
		return &SettingsError{Reason: SettingsMissingTable}
	}
	if _, ok := table.FindView(s.ViewID); !ok {
		return &SettingsError{Reason: SettingsMissingView}
	}
	assignment, ok := table.FindField(s.AssignmentFieldID)
	if !ok {
		return &SettingsError{Reason: SettingsMissingAssignmentField}
	}
	if assignment.Type != FieldLink {
		return &SettingsError{Reason: SettingsAssignmentNotLink}
	}
	if !s.GroupsEnabled() {
		return nil
	}
	// An unknown group field is treated like a wrong-typed one.
	if group, ok := table.FindField(s.GroupFieldID); !ok || group.Type != FieldSingleSelect {
		return &SettingsError{Reason: SettingsGroupNotSingleSelect}
	}
	return nil
}

// Project maps a record to a participant using the configured fields.
func (s Settings) Project(r Record) Participant {
	p := Participant{ID: r.ID, Name: r.Name}
	if links, ok := r.Links[s.AssignmentFieldID]; ok && links != nil {
		p.Assignment = append([]string(nil), links...)
	}
	if s.GroupsEnabled() {
		p.Group = r.Choices[s.GroupFieldID]
	}
	return p
}
