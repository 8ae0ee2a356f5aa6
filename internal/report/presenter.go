// Package report turns validator output into human readable text and JSON
// documents, and exports them to a blob store.
package report

import (
	"fmt"
	"io"
	"strings"

	"giftmatch/pkg/domain"
)

// Presenter resolves participant and group ids to display names.
type Presenter struct {
	names           map[string]string
	groupNames      map[string]string
	assignmentField string
}

// NewPresenter builds a presenter for the participants in scope. groups are
// the group field choices; assignmentField is the display name of the field
// holding assignments.
func NewPresenter(participants []domain.Participant, groups []domain.Choice, assignmentField string) *Presenter {
	p := &Presenter{
		names:           make(map[string]string, len(participants)),
		groupNames:      make(map[string]string, len(groups)),
		assignmentField: assignmentField,
	}
	for _, part := range participants {
		p.names[part.ID] = part.Name
	}
	for _, c := range groups {
		p.groupNames[c.ID] = c.Name
	}
	return p
}

// Name returns the participant's display name, or the quoted id when the
// participant is not in scope.
func (p *Presenter) Name(id string) string {
	if name, ok := p.names[id]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("%q", id)
}

func (p *Presenter) groupOf(id string) string {
	return p.groupNames[id]
}

// Message renders one warning as a sentence.
func (p *Presenter) Message(w domain.Warning, groupOfGiver string) string {
	switch w.Kind {
	case domain.WarningNoAssignment:
		return p.Name(w.GiverID) + " isn't assigned to give to anyone"
	case domain.WarningMultipleAssignments:
		return p.Name(w.GiverID) + " is assigned to give to multiple people"
	case domain.WarningSelfAssignment:
		return p.Name(w.GiverID) + " is assigned to themself!"
	case domain.WarningInvalidAssignment:
		return p.Name(w.GiverID) + " is assigned to someone who isn't taking part"
	case domain.WarningSameGroupAssignment:
		group := p.groupOf(groupOfGiver)
		if group == "" {
			return fmt.Sprintf("%s is assigned to %s but they're both in the same group", p.Name(w.GiverID), p.Name(w.RecipientID))
		}
		return fmt.Sprintf("%s is assigned to %s but they're both in group %s", p.Name(w.GiverID), p.Name(w.RecipientID), group)
	case domain.WarningNoGivers:
		return "Nobody is assigned to give to " + p.Name(w.RecipientID)
	case domain.WarningMultipleGivers:
		return "Multiple people are assigned to give to " + p.Name(w.RecipientID)
	default:
		return string(w.Kind)
	}
}

// Item is one rendered warning.
type Item struct {
	Kind        domain.WarningKind `json:"kind"`
	GiverID     string             `json:"giver_id,omitempty"`
	Giver       string             `json:"giver,omitempty"`
	RecipientID string             `json:"recipient_id,omitempty"`
	Recipient   string             `json:"recipient,omitempty"`
	Message     string             `json:"message"`
}

// Document is the presentable form of a report.
type Document struct {
	Valid    bool   `json:"is_valid"`
	Summary  string `json:"summary"`
	Warnings []Item `json:"warnings"`
}

// Document renders report. groupOf maps participant ids to group choice ids
// and may be nil.
func (p *Presenter) Document(r domain.Report, groupOf map[string]string) Document {
	doc := Document{Valid: r.Valid, Warnings: make([]Item, 0, len(r.Warnings))}
	if r.Valid {
		doc.Summary = p.successMessage()
	} else {
		doc.Summary = issuesMessage(len(r.Warnings))
	}
	for _, w := range r.Warnings {
		item := Item{Kind: w.Kind, GiverID: w.GiverID, RecipientID: w.RecipientID}
		if w.GiverID != "" {
			item.Giver = p.Name(w.GiverID)
		}
		if w.RecipientID != "" {
			item.Recipient = p.Name(w.RecipientID)
		}
		item.Message = p.Message(w, groupOf[w.GiverID])
		doc.Warnings = append(doc.Warnings, item)
	}
	return doc
}

func (p *Presenter) successMessage() string {
	field := p.assignmentField
	if field == "" {
		field = "assignment"
	}
	return fmt.Sprintf("Success! A perfect gift assignment is stored in the %s field!", field)
}

func issuesMessage(n int) string {
	if n == 1 {
		return "There is 1 issue"
	}
	return fmt.Sprintf("There are %d issues", n)
}

// WriteText renders doc as plain text: the summary line followed by one
// bulleted line per warning.
func WriteText(w io.Writer, doc Document) error {
	var b strings.Builder
	b.WriteString(doc.Summary)
	b.WriteByte('\n')
	for _, item := range doc.Warnings {
		b.WriteString("  - ")
		b.WriteString(item.Message)
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// GroupIndex maps participant ids to their group choice ids.
func GroupIndex(participants []domain.Participant) map[string]string {
	out := make(map[string]string, len(participants))
	for _, p := range participants {
		if p.Group != "" {
			out[p.ID] = p.Group
		}
	}
	return out
}
