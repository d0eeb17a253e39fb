// Package schema is the field registry for the salary interview: per-field
// parsing and normalization rules, phase ordering, and the user-facing
// phrasing for each question. Everything here is pure and stateless.
package schema

import "fmt"

// Section is one of the four sequential interview phases.
type Section string

const (
	SectionJobDetails Section = "job_details"
	SectionTaxDetails Section = "tax_details"
	SectionSummary    Section = "summary"
	SectionCompleted  Section = "completed"
)

// Values is a flat view of all collected canonical field values, keyed by
// field name. Field names are unique across phases.
type Values map[string]any

// Field describes one collectable interview field.
type Field struct {
	Name    string
	Section Section
	// Question is the natural-language prompt shown to the user. It
	// deliberately avoids tariff jargon where a plain question works.
	Question string
	// Options holds the canonical enum values for discrete fields, nil for
	// open fields. These drive near-miss suggestions and escalation chips.
	Options []string
	// Labels are the user-facing spellings of Options, same order.
	Labels []string
	// DependsOn names a field that must be collected first, if any.
	DependsOn string
	// Parse validates rawValue and returns the canonical value.
	Parse func(raw string, values Values) (any, error)
}

// DependencyError reports that a field cannot be parsed until another field
// has been collected.
type DependencyError struct {
	Field    string
	Requires string
	Message  string
}

func (e *DependencyError) Error() string { return e.Message }

// RangeError reports a numeric value outside the allowed bounds and carries
// enough context for a clamp suggestion.
type RangeError struct {
	Field   string
	Value   float64
	Min     float64
	Max     float64
	Message string
}

func (e *RangeError) Error() string { return e.Message }

// ParseError is a plain validation failure with a user-ready message.
type ParseError struct {
	Field    string
	Received string
	Message  string
}

func (e *ParseError) Error() string { return e.Message }

// phaseOrder lists the data-collecting phases in interview order.
var phaseOrder = []Section{SectionJobDetails, SectionTaxDetails}

// Lookup returns the field definition by name.
func Lookup(name string) (*Field, bool) {
	f, ok := registry[name]
	return f, ok
}

// RequiredFields returns the ordered required fields for a phase. Summary and
// completed collect nothing.
func RequiredFields(section Section) []string {
	return fieldOrder[section]
}

// MissingFields recomputes which required fields of a phase are still absent.
// This is the single authoritative source; callers must never hand-edit the
// result.
func MissingFields(section Section, values Values) []string {
	var missing []string
	for _, name := range fieldOrder[section] {
		if _, ok := values[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// PhaseComplete reports whether all required fields of a phase are present.
func PhaseComplete(section Section, values Values) bool {
	return len(MissingFields(section, values)) == 0
}

// AllPhasesComplete reports whether every data-collecting phase is complete.
func AllPhasesComplete(values Values) bool {
	for _, s := range phaseOrder {
		if !PhaseComplete(s, values) {
			return false
		}
	}
	return true
}

// NextSection returns the phase that follows s in the strictly forward order.
func NextSection(s Section) Section {
	switch s {
	case SectionJobDetails:
		return SectionTaxDetails
	case SectionTaxDetails:
		return SectionSummary
	case SectionSummary:
		return SectionCompleted
	default:
		return SectionCompleted
	}
}

// Progress derives a 0-100 completion percentage from filled required fields
// across all phases. Purely a UI affordance.
func Progress(values Values) int {
	total, filled := 0, 0
	for _, s := range phaseOrder {
		for _, name := range fieldOrder[s] {
			total++
			if _, ok := values[name]; ok {
				filled++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return filled * 100 / total
}

// Question returns the user-facing prompt for a field.
func Question(field string) string {
	if f, ok := registry[field]; ok {
		return f.Question
	}
	return fmt.Sprintf("Bitte nennen Sie einen Wert für %s.", field)
}

// OptionLabels returns the user-facing chip labels for a discrete field, nil
// for open fields.
func OptionLabels(field string) []string {
	f, ok := registry[field]
	if !ok {
		return nil
	}
	if len(f.Labels) > 0 {
		return f.Labels
	}
	return f.Options
}

// Label maps a canonical enum value back to its user-facing spelling, for
// summary rendering. Open fields and unknown values come back unchanged.
func Label(field, canonical string) string {
	f, ok := registry[field]
	if !ok || len(f.Labels) == 0 {
		return canonical
	}
	for i, opt := range f.Options {
		if opt == canonical && i < len(f.Labels) {
			return f.Labels[i]
		}
	}
	return canonical
}
