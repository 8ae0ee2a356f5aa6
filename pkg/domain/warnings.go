package domain

// WarningKind classifies one way a stored assignment relation violates the
// requirements of a valid matching.
type WarningKind string

// Warning kinds emitted by the validator.
const (
	// WarningNoAssignment: the giver has no recipient.
	WarningNoAssignment WarningKind = "no_assignment"
	// WarningMultipleAssignments: the giver has more than one recipient.
	WarningMultipleAssignments WarningKind = "multiple_assignments"
	// WarningSelfAssignment: the giver's sole recipient is the giver.
	WarningSelfAssignment WarningKind = "self_assignment"
	// WarningInvalidAssignment: the sole recipient does not resolve to a known participant.
	WarningInvalidAssignment WarningKind = "invalid_assignment"
	// WarningSameGroupAssignment: giver and recipient share a group tag.
	WarningSameGroupAssignment WarningKind = "same_group_assignment"
	// WarningNoGivers: nobody gives to the recipient.
	WarningNoGivers WarningKind = "no_givers"
	// WarningMultipleGivers: more than one participant gives to the recipient.
	WarningMultipleGivers WarningKind = "multiple_givers"
)

// WarningKinds lists every kind in emission order.
var WarningKinds = []WarningKind{
	WarningNoAssignment,
	WarningMultipleAssignments,
	WarningSelfAssignment,
	WarningInvalidAssignment,
	WarningSameGroupAssignment,
	WarningNoGivers,
	WarningMultipleGivers,
}

// GiverSide reports whether the kind is raised while scanning a giver's outgoing edges.
func (k WarningKind) GiverSide() bool {
	switch k {
	case WarningNoGivers, WarningMultipleGivers:
		return false
	default:
		return true
	}
}

// Warning names the offending participant(s) for one violation. GiverID is
// empty for recipient-side kinds; RecipientID is set for recipient-side kinds
// and for same-group assignments.
type Warning struct {
	Kind        WarningKind `json:"kind"`
	GiverID     string      `json:"giver_id,omitempty"`
	RecipientID string      `json:"recipient_id,omitempty"`
}

// Key identifies the warning within an unordered multiset of warnings.
func (w Warning) Key() string {
	return string(w.Kind) + "|" + w.GiverID + "|" + w.RecipientID
}

// Report is the validator's classification of an assignment relation.
type Report struct {
	Valid    bool      `json:"is_valid"`
	Warnings []Warning `json:"warnings"`
}

// NewReport builds a report whose validity is derived from the warnings.
func NewReport(warnings []Warning) Report {
	if warnings == nil {
		warnings = []Warning{}
	}
	return Report{Valid: len(warnings) == 0, Warnings: warnings}
}

// Count returns how many warnings of the given kind the report holds.
func (r Report) Count(kind WarningKind) int {
	n := 0
	for _, w := range r.Warnings {
		if w.Kind == kind {
			n++
		}
	}
	return n
}

// Has reports whether the report contains the given warning.
func (r Report) Has(w Warning) bool {
	for _, got := range r.Warnings {
		if got == w {
			return true
		}
	}
	return false
}

// Multiset returns the warnings keyed by Warning.Key with their multiplicity.
func (r Report) Multiset() map[string]int {
	out := make(map[string]int, len(r.Warnings))
	for _, w := range r.Warnings {
		out[w.Key()]++
	}
	return out
}
