package interview

import (
	"github.com/lohnlab/tarifbot/internal/schema"
	"github.com/lohnlab/tarifbot/internal/validate"
)

// maxChips caps the number of tap targets offered per turn.
const maxChips = 4

// suggestions derives quick-reply chips from the current state. Pure
// derivation from the option tables, no oracle call.
func suggestions(state *FormState) []string {
	switch state.Section {
	case schema.SectionSummary:
		return []string{"Ja, das stimmt", "Etwas ändern"}
	case schema.SectionCompleted:
		return nil
	}
	if len(state.MissingFields) == 0 {
		return nil
	}
	field := state.MissingFields[0]
	labels := schema.OptionLabels(field)
	if len(labels) == 0 {
		labels = validate.EscalationOptions(field)
	}
	if len(labels) > maxChips {
		labels = labels[:maxChips]
	}
	return append([]string(nil), labels...)
}

// escalationChips surfaces the validator's options verbatim as tap targets.
func escalationChips(field string, validOptions []string) []string {
	if len(validOptions) > 0 {
		return append([]string(nil), validOptions...)
	}
	return validate.EscalationOptions(field)
}
