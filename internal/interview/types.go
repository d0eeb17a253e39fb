// Package interview orchestrates the conversational salary interview: it
// threads a FormState through intent classification, LLM extraction, field
// validation and the final net-salary calculation.
package interview

import (
	"github.com/lohnlab/tarifbot/internal/calc"
	"github.com/lohnlab/tarifbot/internal/retrieval"
	"github.com/lohnlab/tarifbot/internal/schema"
)

// contextWindow bounds the conversation context ring buffer.
const contextWindow = 10

// FormData holds the collected values partitioned by phase, plus the
// calculation result slot that is only filled at completion.
type FormData struct {
	JobDetails        schema.Values   `json:"job_details"`
	TaxDetails        schema.Values   `json:"tax_details"`
	CalculationResult *calc.TaxResult `json:"calculation_result,omitempty"`
}

// FormState is the aggregate passed to and from the client each turn. The
// engine never mutates the incoming state; every turn works on a structural
// copy so a failed turn cannot leak partial writes back to the client.
type FormState struct {
	Section             schema.Section       `json:"section"`
	Data                FormData             `json:"data"`
	MissingFields       []string             `json:"missing_fields"`
	UserIntent          string               `json:"user_intent,omitempty"`
	ValidationErrors    map[string]string    `json:"validation_errors,omitempty"`
	ConversationContext []string             `json:"conversation_context,omitempty"`
	RagCitations        []retrieval.Citation `json:"rag_citations,omitempty"`
}

// NewFormState returns the starting state for a fresh session.
func NewFormState() *FormState {
	return &FormState{
		Section: schema.SectionJobDetails,
		Data: FormData{
			JobDetails: schema.Values{},
			TaxDetails: schema.Values{},
		},
		MissingFields: schema.RequiredFields(schema.SectionJobDetails),
	}
}

// clone deep-copies the state so the turn can mutate freely.
func (s *FormState) clone() *FormState {
	if s == nil {
		return NewFormState()
	}
	out := &FormState{
		Section: s.Section,
		Data: FormData{
			JobDetails:        schema.Values{},
			TaxDetails:        schema.Values{},
			CalculationResult: s.Data.CalculationResult,
		},
		UserIntent: s.UserIntent,
	}
	for k, v := range s.Data.JobDetails {
		out.Data.JobDetails[k] = v
	}
	for k, v := range s.Data.TaxDetails {
		out.Data.TaxDetails[k] = v
	}
	out.MissingFields = append([]string(nil), s.MissingFields...)
	out.ConversationContext = append([]string(nil), s.ConversationContext...)
	out.RagCitations = append([]retrieval.Citation(nil), s.RagCitations...)
	if len(s.ValidationErrors) > 0 {
		out.ValidationErrors = make(map[string]string, len(s.ValidationErrors))
		for k, v := range s.ValidationErrors {
			out.ValidationErrors[k] = v
		}
	}
	if s.Section == "" {
		out.Section = schema.SectionJobDetails
	}
	return out
}

// flat merges both phases into the single value view the schema helpers and
// the validator work on.
func (s *FormState) flat() schema.Values {
	flat := make(schema.Values, len(s.Data.JobDetails)+len(s.Data.TaxDetails))
	for k, v := range s.Data.JobDetails {
		flat[k] = v
	}
	for k, v := range s.Data.TaxDetails {
		flat[k] = v
	}
	return flat
}

// setValue stores a normalized value in the phase it belongs to.
func (s *FormState) setValue(field string, value any) {
	def, ok := schema.Lookup(field)
	if !ok {
		return
	}
	switch def.Section {
	case schema.SectionJobDetails:
		s.Data.JobDetails[field] = value
	case schema.SectionTaxDetails:
		s.Data.TaxDetails[field] = value
	}
}

// pushContext appends an utterance to the sliding context window.
func (s *FormState) pushContext(message string) {
	s.ConversationContext = append(s.ConversationContext, message)
	if n := len(s.ConversationContext); n > contextWindow {
		s.ConversationContext = s.ConversationContext[n-contextWindow:]
	}
}

// recomputeMissing refreshes MissingFields from the collected data. The
// client-supplied list is never trusted.
func (s *FormState) recomputeMissing() {
	s.MissingFields = schema.MissingFields(s.Section, s.flat())
}

// Request is one conversational turn from the client.
type Request struct {
	Message          string     `json:"message"`
	CurrentFormState *FormState `json:"current_form_state,omitempty"`
	SessionID        string     `json:"session_id,omitempty"`
}

// Response carries the reply and the authoritative new state.
type Response struct {
	Text              string               `json:"text"`
	FormState         *FormState           `json:"form_state"`
	Progress          int                  `json:"progress"`
	Suggestions       []string             `json:"suggestions,omitempty"`
	CitationsForAudit []retrieval.Citation `json:"citations_for_audit,omitempty"`
}
