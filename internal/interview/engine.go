package interview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/lohnlab/tarifbot/internal/anthropic"
	"github.com/lohnlab/tarifbot/internal/calc"
	"github.com/lohnlab/tarifbot/internal/extract"
	"github.com/lohnlab/tarifbot/internal/intent"
	"github.com/lohnlab/tarifbot/internal/retrieval"
	"github.com/lohnlab/tarifbot/internal/schema"
	"github.com/lohnlab/tarifbot/internal/validate"
)

// Oracle is the LLM surface the engine uses for free-form answers.
type Oracle interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (string, error)
}

// Persister stores the completed interview for the audit trail. Failures are
// logged, never fatal to the turn.
type Persister interface {
	SaveResult(ctx context.Context, sessionID string, tenantID uuid.UUID, state *FormState, citations []retrieval.Citation) error
}

// Publisher emits interview lifecycle events.
type Publisher interface {
	InterviewCompleted(sessionID string, result *calc.TaxResult) error
	ValidationEscalated(sessionID, field string) error
}

// Deps wires the engine's collaborators. Retriever, Store and Events may be
// nil; the engine degrades gracefully without them. SimilarityFloor is taken
// as-is; zero is a valid setting that disables similarity filtering, the
// config layer supplies the operational default.
type Deps struct {
	Classifier *intent.Classifier
	Extractor  *extract.Extractor
	Validator  *validate.Validator
	Calculator calc.Engine
	Oracle     Oracle
	Retriever  retrieval.Gateway
	Store      Persister
	Events     Publisher

	TenantID        uuid.UUID
	SimilarityFloor float64
	RetrievalTopK   int
	Logger          *slog.Logger
}

// Engine is the interview state machine. It is stateless between turns apart
// from the validator's retry contexts; the whole FormState travels with the
// client.
type Engine struct {
	deps Deps
}

func New(deps Deps) *Engine {
	if deps.RetrievalTopK == 0 {
		deps.RetrievalTopK = 4
	}
	return &Engine{deps: deps}
}

const (
	fallbackMessage = "Entschuldigung, da ist gerade etwas schiefgelaufen. Ihre Angaben sind gespeichert, bitte versuchen Sie es noch einmal."
	noInfoMessage   = "Dazu habe ich leider keine Informationen in den hinterlegten Unterlagen gefunden."
	calcFailMessage = "Entschuldigung, die Berechnung ist leider fehlgeschlagen. Bitte versuchen Sie es noch einmal oder ändern Sie eine Angabe."
	unclearMessage  = "Das habe ich leider nicht verstanden."
)

// HandleTurn processes one conversational turn. It always returns a usable
// response; oracle failures degrade to a fallback message with the incoming
// state preserved.
func (e *Engine) HandleTurn(ctx context.Context, req Request) *Response {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	state := req.CurrentFormState.clone()
	state.pushContext(req.Message)
	state.ValidationErrors = nil

	if state.Section == schema.SectionSummary {
		if resp := e.summaryChipTap(state, sessionID, req.Message); resp != nil {
			return resp
		}
	}

	cls := e.deps.Classifier.Classify(ctx, req.Message, state.Section)
	state.UserIntent = string(cls.Intent)

	if state.Section == schema.SectionCompleted {
		return e.answerAfterCompletion(ctx, state, req.Message)
	}

	switch {
	case cls.Intent == intent.Question:
		return e.answerQuestion(ctx, state, req.Message)
	case state.Section == schema.SectionSummary && cls.Intent == intent.Confirmation:
		return e.confirmAndCalculate(ctx, state, sessionID)
	case state.Section == schema.SectionSummary && cls.Intent == intent.Modification:
		return e.modifyInSummary(ctx, state, sessionID, req.Message)
	}

	merged := 0
	if cls.Intent == intent.DataProvision || cls.Intent == intent.Modification {
		var resp *Response
		merged, resp = e.extractAndValidate(ctx, state, sessionID, req.Message)
		if resp != nil {
			return resp
		}
	}

	state.recomputeMissing()
	for len(state.MissingFields) == 0 && state.Section != schema.SectionSummary {
		state.Section = schema.NextSection(state.Section)
		if state.Section == schema.SectionSummary {
			break
		}
		state.recomputeMissing()
	}

	if state.Section == schema.SectionSummary {
		state.MissingFields = nil
		return e.respond(state, renderSummary(state.flat()))
	}

	prompt := schema.Question(state.MissingFields[0])
	switch {
	case cls.Intent == intent.Unclear:
		prompt = unclearMessage + " " + prompt
	case merged > 0:
		prompt = "Alles klar, danke! " + prompt
	}
	return e.respond(state, prompt)
}

// extractAndValidate runs the oracle extraction over the missing fields and
// validates each hit. A non-nil response short-circuits the turn (oracle
// failure, validation re-prompt or escalation); otherwise the merge count is
// returned and the caller evaluates the phase transition.
func (e *Engine) extractAndValidate(ctx context.Context, state *FormState, sessionID, message string) (int, *Response) {
	state.recomputeMissing()
	if len(state.MissingFields) == 0 {
		return 0, nil
	}

	if field, ok := e.chipTap(state, sessionID, message); ok {
		res := e.deps.Validator.Validate(sessionID, field, message, state.flat())
		if res.Valid {
			state.setValue(field, res.Normalized)
			return 1, nil
		}
		return 0, e.reprompt(state, sessionID, field, res)
	}

	extracted, err := e.deps.Extractor.Extract(ctx, message, state.MissingFields, state.ConversationContext)
	if err != nil {
		e.deps.Logger.Error("extraction failed, preserving state", "session_id", sessionID, "error", err)
		state.recomputeMissing()
		return 0, e.respond(state, fallbackMessage)
	}

	merged := 0
	var firstFailed string
	var firstResult validate.Result
	for _, field := range state.MissingFields {
		raw, ok := extracted[field]
		if !ok {
			continue
		}
		res := e.deps.Validator.Validate(sessionID, field, raw, state.flat())
		if res.Valid {
			state.setValue(field, res.Normalized)
			merged++
			continue
		}
		if state.ValidationErrors == nil {
			state.ValidationErrors = map[string]string{}
		}
		state.ValidationErrors[field] = res.Err.Message
		if firstFailed == "" {
			firstFailed = field
			firstResult = res
		}
	}

	if firstFailed != "" {
		return merged, e.reprompt(state, sessionID, firstFailed, firstResult)
	}
	return merged, nil
}

// chipTap reports whether the message is one of the escalation chips of an
// escalated missing field. Tapping a chip re-opens the circuit breaker.
func (e *Engine) chipTap(state *FormState, sessionID, message string) (string, bool) {
	trimmed := strings.TrimSpace(message)
	for _, field := range state.MissingFields {
		if !e.deps.Validator.IsEscalated(sessionID, field) {
			continue
		}
		for _, opt := range validate.EscalationOptions(field) {
			if strings.EqualFold(trimmed, opt) {
				e.deps.Validator.ResetField(sessionID, field)
				return field, true
			}
		}
	}
	return "", false
}

// summaryChipTap catches a tapped escalation chip while the summary is on
// screen. MissingFields is empty there, so the regular chipTap path never
// sees these; without this check the breaker keeps rejecting the chosen
// option until its context expires.
func (e *Engine) summaryChipTap(state *FormState, sessionID, message string) *Response {
	trimmed := strings.TrimSpace(message)
	var fields []string
	fields = append(fields, schema.RequiredFields(schema.SectionJobDetails)...)
	fields = append(fields, schema.RequiredFields(schema.SectionTaxDetails)...)
	for _, field := range fields {
		if !e.deps.Validator.IsEscalated(sessionID, field) {
			continue
		}
		for _, opt := range validate.EscalationOptions(field) {
			if !strings.EqualFold(trimmed, opt) {
				continue
			}
			e.deps.Validator.ResetField(sessionID, field)
			state.UserIntent = string(intent.Modification)
			res := e.deps.Validator.Validate(sessionID, field, trimmed, state.flat())
			if !res.Valid {
				return e.reprompt(state, sessionID, field, res)
			}
			state.setValue(field, res.Normalized)
			return e.respond(state, "Aktualisiert!\n\n"+renderSummary(state.flat()))
		}
	}
	return nil
}

// reprompt composes the correction request for a single failed field. One
// error at a time; everything else waits for the next turn.
func (e *Engine) reprompt(state *FormState, sessionID, field string, res validate.Result) *Response {
	state.recomputeMissing()

	if res.ShouldEscalate {
		if e.deps.Events != nil {
			if err := e.deps.Events.ValidationEscalated(sessionID, field); err != nil {
				e.deps.Logger.Warn("escalation event not published", "session_id", sessionID, "error", err)
			}
		}
		resp := e.respond(state, res.Err.Message)
		resp.Suggestions = escalationChips(field, res.Err.ValidOptions)
		return resp
	}

	text := res.Err.Message
	if res.Err.Suggestion != "" {
		text += " " + res.Err.Suggestion
	}
	return e.respond(state, text)
}

// answerQuestion handles an off-script question via retrieval. It never
// mutates the collected data and never transitions phases; the reply closes
// with the regular interview prompt.
func (e *Engine) answerQuestion(ctx context.Context, state *FormState, message string) *Response {
	state.recomputeMissing()

	answer := noInfoMessage
	var citations []retrieval.Citation

	if e.deps.Retriever != nil {
		chunks, err := e.deps.Retriever.QueryWithMetadata(ctx, message, e.deps.TenantID, e.deps.RetrievalTopK*2)
		if err != nil {
			e.deps.Logger.Warn("retrieval failed", "error", err)
		} else {
			kept := retrieval.Filter(chunks, e.deps.SimilarityFloor, e.deps.RetrievalTopK)
			if len(kept) > 0 {
				citations = retrieval.Consolidate(kept)
				if grounded, err := e.answerFromChunks(ctx, message, kept); err != nil {
					e.deps.Logger.Warn("grounded answer failed", "error", err)
					answer = fallbackMessage
					citations = nil
				} else {
					answer = grounded
				}
			}
		}
	}

	state.RagCitations = append(state.RagCitations, citations...)

	resp := e.respond(state, answer+"\n\n"+e.resumePrompt(state))
	resp.CitationsForAudit = citations
	return resp
}

const questionSystemPrompt = `Du beantwortest Fragen in einem Gehaltsrechner-Interview für den öffentlichen Dienst.
Antworte ausschließlich auf Grundlage der bereitgestellten Auszüge, auf Deutsch, in zwei bis drei Sätzen.
Keine Quellenangaben, keine Fußnoten, keine Markierungen wie [1] in der Antwort.
Wenn die Auszüge die Frage nicht beantworten, sage das offen.`

func (e *Engine) answerFromChunks(ctx context.Context, question string, chunks []retrieval.Chunk) (string, error) {
	var b strings.Builder
	b.WriteString("Auszüge:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c.Content)
	}
	fmt.Fprintf(&b, "\nFrage: %s", question)

	return e.deps.Oracle.Complete(ctx, questionSystemPrompt, []anthropic.Message{
		{Role: "user", Content: b.String()},
	}, 512)
}

// resumePrompt returns the interview thread the side conversation falls back
// into.
func (e *Engine) resumePrompt(state *FormState) string {
	if state.Section == schema.SectionSummary {
		return "Zurück zu Ihrer Berechnung: Stimmen die zusammengefassten Angaben?"
	}
	if len(state.MissingFields) > 0 {
		return "Zurück zum Interview: " + schema.Question(state.MissingFields[0])
	}
	return "Können wir mit dem Interview fortfahren?"
}

// confirmAndCalculate handles the explicit confirmation in the summary phase.
// A calculation failure keeps the session in summary; completed is only ever
// reached with a real result in hand.
func (e *Engine) confirmAndCalculate(ctx context.Context, state *FormState, sessionID string) *Response {
	flat := state.flat()
	if !schema.AllPhasesComplete(flat) {
		// Guardrails should make this unreachable, but a client can send
		// a doctored state. Fall back to collecting.
		state.Section = firstIncompleteSection(flat)
		state.recomputeMissing()
		e.deps.Logger.Warn("confirmation with incomplete data", "session_id", sessionID, "section", state.Section)
		return e.respond(state, "Da fehlt noch etwas. "+schema.Question(state.MissingFields[0]))
	}

	input, err := salaryInput(flat)
	if err == nil {
		var result *calc.TaxResult
		result, err = e.deps.Calculator.Calculate(input)
		if err == nil {
			state.Data.CalculationResult = result
			state.Section = schema.SectionCompleted
			state.MissingFields = nil
			persisted := e.persistResult(ctx, sessionID, state)
			if e.deps.Events != nil {
				if pubErr := e.deps.Events.InterviewCompleted(sessionID, result); pubErr != nil {
					e.deps.Logger.Warn("completion event not published", "session_id", sessionID, "error", pubErr)
				}
			}
			text := renderResult(result)
			if !persisted {
				text += "\n\nHinweis: Das Ergebnis konnte gerade nicht gespeichert werden."
			}
			return e.respond(state, text)
		}
	}

	e.deps.Logger.Error("calculation failed, staying in summary", "session_id", sessionID, "error", err)
	state.Section = schema.SectionSummary
	state.Data.CalculationResult = nil
	resp := e.respond(state, calcFailMessage)
	resp.Suggestions = []string{"Nochmal versuchen", "Etwas ändern"}
	return resp
}

// persistResult is best-effort; the user gets the calculated result either
// way, with a note when the audit write failed.
func (e *Engine) persistResult(ctx context.Context, sessionID string, state *FormState) bool {
	if e.deps.Store == nil {
		return true
	}
	if err := e.deps.Store.SaveResult(ctx, sessionID, e.deps.TenantID, state, retrieval.MergeCitations(state.RagCitations)); err != nil {
		e.deps.Logger.Error("result not persisted", "session_id", sessionID, "error", err)
		return false
	}
	return true
}

// modifyInSummary applies a single-field correction without leaving the
// summary phase. The regular retry and escalation machinery applies.
func (e *Engine) modifyInSummary(ctx context.Context, state *FormState, sessionID, message string) *Response {
	var fields []string
	fields = append(fields, schema.RequiredFields(schema.SectionJobDetails)...)
	fields = append(fields, schema.RequiredFields(schema.SectionTaxDetails)...)

	field, value, ok, err := e.deps.Extractor.ExtractModification(ctx, message, fields)
	if err != nil {
		e.deps.Logger.Error("modification extraction failed", "session_id", sessionID, "error", err)
		return e.respond(state, fallbackMessage)
	}
	if !ok {
		resp := e.respond(state, "Was möchten Sie ändern? Nennen Sie bitte die Angabe und den neuen Wert.")
		resp.Suggestions = []string{"Steuerklasse ändern", "Stunden ändern", "Zurück zur Zusammenfassung"}
		return resp
	}

	res := e.deps.Validator.Validate(sessionID, field, value, state.flat())
	if !res.Valid {
		if state.ValidationErrors == nil {
			state.ValidationErrors = map[string]string{}
		}
		state.ValidationErrors[field] = res.Err.Message
		return e.reprompt(state, sessionID, field, res)
	}

	state.setValue(field, res.Normalized)
	return e.respond(state, "Aktualisiert!\n\n"+renderSummary(state.flat()))
}

const completedSystemPrompt = `Du hast gerade eine Netto-Gehaltsberechnung für den öffentlichen Dienst abgeschlossen.
Beantworte Rückfragen zum Ergebnis kurz und auf Deutsch. Erfinde keine Zahlen, die nicht im Ergebnis stehen.`

// answerAfterCompletion handles free-form follow-ups once the interview is
// done. No extraction, no transitions.
func (e *Engine) answerAfterCompletion(ctx context.Context, state *FormState, message string) *Response {
	result := state.Data.CalculationResult
	if result == nil {
		return e.respond(state, "Ihre Berechnung ist abgeschlossen. Für eine neue Berechnung starten Sie bitte ein neues Gespräch.")
	}

	prompt := "Ergebnis:\n" + renderResult(result) + "\n\nRückfrage: " + message
	answer, err := e.deps.Oracle.Complete(ctx, completedSystemPrompt, []anthropic.Message{
		{Role: "user", Content: prompt},
	}, 512)
	if err != nil || strings.TrimSpace(answer) == "" {
		if err != nil {
			e.deps.Logger.Warn("follow-up answer failed", "error", err)
		}
		answer = "Ihre Berechnung ist abgeschlossen. " + fmt.Sprintf("Ihr Netto liegt bei %s im Monat.", formatEuro(result.Netto))
	}
	return e.respond(state, answer)
}

// respond assembles the response envelope; MissingFields and Progress are
// always recomputed from the data, never from client input.
func (e *Engine) respond(state *FormState, text string) *Response {
	if state.Section != schema.SectionSummary && state.Section != schema.SectionCompleted {
		state.recomputeMissing()
	}
	return &Response{
		Text:        text,
		FormState:   state,
		Progress:    schema.Progress(state.flat()),
		Suggestions: suggestions(state),
	}
}

func firstIncompleteSection(flat schema.Values) schema.Section {
	if !schema.PhaseComplete(schema.SectionJobDetails, flat) {
		return schema.SectionJobDetails
	}
	return schema.SectionTaxDetails
}

// salaryInput maps the collected canonical values onto the calculation
// contract. JSON round-trips turn ints into float64, so the coercion helpers
// do the narrowing.
func salaryInput(flat schema.Values) (calc.SalaryInput, error) {
	var in calc.SalaryInput
	var ok bool
	if in.Tarif, ok = schema.AsString(flat["tarif"]); !ok {
		return in, fmt.Errorf("map salary input: tarif missing")
	}
	if in.Group, ok = schema.AsString(flat["group"]); !ok {
		return in, fmt.Errorf("map salary input: group missing")
	}
	if in.Stufe, ok = schema.AsInt(flat["experience"]); !ok {
		return in, fmt.Errorf("map salary input: experience missing")
	}
	if in.Hours, ok = schema.AsFloat(flat["hours"]); !ok {
		return in, fmt.Errorf("map salary input: hours missing")
	}
	if in.State, ok = schema.AsString(flat["state"]); !ok {
		return in, fmt.Errorf("map salary input: state missing")
	}
	if in.TaxClass, ok = schema.AsInt(flat["tax_class"]); !ok {
		return in, fmt.Errorf("map salary input: tax_class missing")
	}
	if in.ChurchTax, ok = schema.AsBool(flat["church_tax"]); !ok {
		return in, fmt.Errorf("map salary input: church_tax missing")
	}
	if in.Children, ok = schema.AsInt(flat["children"]); !ok {
		return in, fmt.Errorf("map salary input: children missing")
	}
	return in, nil
}
