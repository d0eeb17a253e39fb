// Package validate applies the field schema to raw candidate values and
// enforces the bounded-retry / escalation policy around it. Parsing itself
// lives in the schema registry; this package owns the per-session retry
// state and the near-miss suggestions.
package validate

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lohnlab/tarifbot/internal/schema"
)

const (
	// MaxRetries is the hard circuit breaker: after this many failed
	// attempts on one field the interview switches to multiple choice
	// instead of asking the same way a fourth time.
	MaxRetries = 3

	// ContextTTL is how long failure counts survive inactivity.
	ContextTTL = 30 * time.Minute
)

// FieldError is the user-facing side of a failed validation.
type FieldError struct {
	Field        string   `json:"field"`
	Message      string   `json:"message"`
	Received     string   `json:"received"`
	Suggestion   string   `json:"suggestion,omitempty"`
	ValidOptions []string `json:"valid_options,omitempty"`
}

// Result is the tagged outcome of a validation attempt.
type Result struct {
	Valid          bool
	Normalized     any
	Err            *FieldError
	RetryCount     int
	ShouldEscalate bool
}

type Validator struct {
	retries *ContextStore
	logger  *slog.Logger
}

func New(logger *slog.Logger) *Validator {
	return &Validator{
		retries: NewContextStore(ContextTTL),
		logger:  logger,
	}
}

// Validate runs the schema parser for field against rawValue, tracking
// retries per sessionID:field. The circuit breaker fires before the new
// value is even looked at: once a field has escalated, only a reset (chip
// selection or TTL expiry) re-opens free-text validation.
func (v *Validator) Validate(sessionID, field, rawValue string, values schema.Values) Result {
	def, ok := schema.Lookup(field)
	if !ok {
		// Extraction drift: the oracle produced a key outside the
		// registry. Not the user's fault, so no retry is consumed.
		v.logger.Warn("validation requested for unknown field", "field", field)
		return Result{
			Valid: false,
			Err:   &FieldError{Field: field, Message: "unbekanntes Feld", Received: rawValue},
		}
	}

	count := v.retries.Count(sessionID, field)
	if count >= MaxRetries {
		return v.escalate(field, rawValue, count)
	}

	normalized, err := def.Parse(rawValue, values)
	if err != nil {
		count = v.retries.Increment(sessionID, field)
		fieldErr := v.describe(def, rawValue, err)
		v.logger.Warn("field validation failed",
			"session_id", sessionID,
			"field", field,
			"received", rawValue,
			"retry_count", count,
			"error", err,
		)
		res := Result{
			Valid:      false,
			Err:        fieldErr,
			RetryCount: count,
		}
		if count >= MaxRetries {
			res.ShouldEscalate = true
			res.Err.ValidOptions = EscalationOptions(field)
		}
		return res
	}

	v.retries.Reset(sessionID, field)
	return Result{Valid: true, Normalized: normalized}
}

// ResetField clears the retry context, re-opening free-text validation after
// an escalation chip was tapped.
func (v *Validator) ResetField(sessionID, field string) {
	v.retries.Reset(sessionID, field)
}

// IsEscalated reports whether the field's circuit breaker is currently open.
func (v *Validator) IsEscalated(sessionID, field string) bool {
	return v.retries.Count(sessionID, field) >= MaxRetries
}

func (v *Validator) escalate(field, rawValue string, count int) Result {
	return Result{
		Valid:          false,
		RetryCount:     count,
		ShouldEscalate: true,
		Err: &FieldError{
			Field:        field,
			Received:     rawValue,
			Message:      "Das klappt so leider nicht. Wählen Sie bitte eine der folgenden Optionen aus.",
			ValidOptions: EscalationOptions(field),
		},
	}
}

// describe turns a parse error into a FieldError, attaching a near-miss
// suggestion where one is warranted.
func (v *Validator) describe(def *schema.Field, rawValue string, err error) *FieldError {
	fe := &FieldError{
		Field:    def.Name,
		Received: rawValue,
		Message:  err.Error(),
	}

	var rangeErr *schema.RangeError
	if errors.As(err, &rangeErr) {
		fe.Suggestion = clampSuggestion(rangeErr)
		return fe
	}

	var depErr *schema.DependencyError
	if errors.As(err, &depErr) {
		return fe
	}

	if len(def.Options) > 0 {
		if match, ok := nearestOption(rawValue, def); ok {
			fe.Suggestion = fmt.Sprintf("Meinten Sie „%s“?", match)
		}
	}
	return fe
}

func clampSuggestion(e *schema.RangeError) string {
	clamped := e.Value
	if clamped < e.Min {
		clamped = e.Min
	}
	if clamped > e.Max {
		clamped = e.Max
	}
	if clamped == float64(int(clamped)) {
		return fmt.Sprintf("Meinten Sie %d?", int(clamped))
	}
	return fmt.Sprintf("Meinten Sie %g?", clamped)
}
