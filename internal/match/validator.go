package match

import (
	"context"
	"fmt"

	"giftmatch/pkg/domain"
)

// reverseLookup maps each recipient id to the ordered giver ids that target
// it. order preserves first-insertion order of recipients.
type reverseLookup struct {
	order  []string
	givers map[string][]string
}

func buildReverseLookup(participants []domain.Participant) reverseLookup {
	rl := reverseLookup{givers: make(map[string][]string)}
	for _, p := range participants {
		for _, recipient := range p.Assignment {
			if _, seen := rl.givers[recipient]; !seen {
				rl.order = append(rl.order, recipient)
			}
			rl.givers[recipient] = append(rl.givers[recipient], p.ID)
		}
	}
	return rl
}

// Validate classifies every way the participants' stored assignments violate
// the requirements of a valid matching. It has no side effects and never
// fails: absent values and dangling targets become warnings. Dangling targets
// are only resolved when the group exclusion is configured.
//
// Warnings come in three runs: giver-side checks in participant order,
// NO_GIVERS in participant order, then MULTIPLE_GIVERS in the order recipients
// were first referenced.
func Validate(participants []domain.Participant, settings domain.Settings) domain.Report {
	index := make(map[string]domain.Participant, len(participants))
	for _, p := range participants {
		index[p.ID] = p
	}
	rl := buildReverseLookup(participants)

	var warnings []domain.Warning
	for _, p := range participants {
		if w, ok := giverWarning(p, index, settings); ok {
			warnings = append(warnings, w)
		}
	}
	for _, p := range participants {
		if _, ok := rl.givers[p.ID]; !ok {
			warnings = append(warnings, domain.Warning{Kind: domain.WarningNoGivers, RecipientID: p.ID})
		}
	}
	for _, recipient := range rl.order {
		if len(rl.givers[recipient]) > 1 {
			warnings = append(warnings, domain.Warning{Kind: domain.WarningMultipleGivers, RecipientID: recipient})
		}
	}
	return domain.NewReport(warnings)
}

// giverWarning returns the single giver-side warning for p, if any. The checks
// are ordered so a self assignment is never also reported as same-group.
func giverWarning(p domain.Participant, index map[string]domain.Participant, settings domain.Settings) (domain.Warning, bool) {
	switch len(p.Assignment) {
	case 0:
		return domain.Warning{Kind: domain.WarningNoAssignment, GiverID: p.ID}, true
	case 1:
	default:
		return domain.Warning{Kind: domain.WarningMultipleAssignments, GiverID: p.ID}, true
	}

	recipientID := p.Assignment[0]
	if recipientID == p.ID {
		return domain.Warning{Kind: domain.WarningSelfAssignment, GiverID: p.ID}, true
	}
	if !settings.GroupsEnabled() {
		return domain.Warning{}, false
	}
	recipient, ok := index[recipientID]
	if !ok {
		return domain.Warning{Kind: domain.WarningInvalidAssignment, GiverID: p.ID}, true
	}
	if domain.SameGroup(p, recipient) {
		return domain.Warning{Kind: domain.WarningSameGroupAssignment, GiverID: p.ID, RecipientID: recipient.ID}, true
	}
	return domain.Warning{}, false
}

// ValidateSource reads the current participants and validates them.
func ValidateSource(ctx context.Context, src domain.ParticipantSource, settings domain.Settings) (domain.Report, error) {
	participants, err := src.ListParticipants(ctx, settings)
	if err != nil {
		return domain.Report{}, fmt.Errorf("list participants: %w", err)
	}
	return Validate(participants, settings), nil
}
