package interview

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/lohnlab/tarifbot/internal/anthropic"
	"github.com/lohnlab/tarifbot/internal/calc"
	"github.com/lohnlab/tarifbot/internal/extract"
	"github.com/lohnlab/tarifbot/internal/intent"
	"github.com/lohnlab/tarifbot/internal/retrieval"
	"github.com/lohnlab/tarifbot/internal/schema"
	"github.com/lohnlab/tarifbot/internal/validate"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedOracle replays canned completions in order.
type scriptedOracle struct {
	responses []string
	calls     int
	err       error
}

func (o *scriptedOracle) Complete(_ context.Context, _ string, _ []anthropic.Message, _ int) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	if o.calls >= len(o.responses) {
		return "", errors.New("oracle script exhausted")
	}
	r := o.responses[o.calls]
	o.calls++
	return r, nil
}

type stubGateway struct {
	chunks []retrieval.Chunk
	err    error
	calls  int
}

func (g *stubGateway) QueryWithMetadata(_ context.Context, _ string, _ uuid.UUID, _ int) ([]retrieval.Chunk, error) {
	g.calls++
	return g.chunks, g.err
}

type failingCalc struct{ calls int }

func (c *failingCalc) Calculate(calc.SalaryInput) (*calc.TaxResult, error) {
	c.calls++
	return nil, errors.New("tariff table unavailable")
}

type countingCalc struct {
	inner calc.Engine
	calls int
}

func (c *countingCalc) Calculate(in calc.SalaryInput) (*calc.TaxResult, error) {
	c.calls++
	return c.inner.Calculate(in)
}

type recordingStore struct {
	saves     int
	citations []retrieval.Citation
	err       error
}

func (s *recordingStore) SaveResult(_ context.Context, _ string, _ uuid.UUID, _ *FormState, citations []retrieval.Citation) error {
	s.saves++
	s.citations = citations
	return s.err
}

type recordingEvents struct {
	completed  int
	escalated  int
	lastField  string
	publishErr error
}

func (e *recordingEvents) InterviewCompleted(string, *calc.TaxResult) error {
	e.completed++
	return e.publishErr
}

func (e *recordingEvents) ValidationEscalated(_, field string) error {
	e.escalated++
	e.lastField = field
	return e.publishErr
}

func newTestEngine(oracle *scriptedOracle, calculator calc.Engine, gateway retrieval.Gateway, store Persister, events Publisher) *Engine {
	logger := discardLogger()
	return New(Deps{
		Classifier: intent.New(oracle, logger),
		Extractor:  extract.New(oracle, logger),
		Validator:  validate.New(logger),
		Calculator: calculator,
		Oracle:     oracle,
		Retriever:  gateway,
		Store:      store,
		Events:     events,
		TenantID:   uuid.New(),

		SimilarityFloor: 0.6,
		Logger:          logger,
	})
}

func turn(t *testing.T, e *Engine, state *FormState, sessionID, message string) *Response {
	t.Helper()
	resp := e.HandleTurn(context.Background(), Request{
		Message:          message,
		CurrentFormState: state,
		SessionID:        sessionID,
	})
	if resp == nil || resp.FormState == nil {
		t.Fatal("turn produced no response state")
	}
	return resp
}

// Full happy path: three data turns, a confirmation, a calculated result.
func TestHandleTurn_FullInterview(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"tarif": "TVöD Pflege", "group": "P7", "experience": "5 Jahre", "hours": "Vollzeit"}`,
		`{"state": "Bayern"}`,
		`{"tax_class": "1", "church_tax": "nein", "children": "keine"}`,
	}}
	calculator := &countingCalc{inner: calc.NewTaxEngine(calc.NewStaticTariffTable())}
	store := &recordingStore{}
	events := &recordingEvents{}
	e := newTestEngine(oracle, calculator, nil, store, events)

	resp := turn(t, e, nil, "s1", "Ich arbeite Vollzeit als Pflegefachkraft im TVöD Pflege, seit 5 Jahren")
	state := resp.FormState
	if state.Section != schema.SectionJobDetails {
		t.Fatalf("expected job_details after first turn, got %s", state.Section)
	}
	if len(state.MissingFields) != 1 || state.MissingFields[0] != "state" {
		t.Fatalf("expected only state missing, got %v", state.MissingFields)
	}
	if got, _ := schema.AsString(state.Data.JobDetails["tarif"]); got != "tvoed_pflege" {
		t.Errorf("tarif = %q, want tvoed_pflege", got)
	}
	if got, _ := schema.AsInt(state.Data.JobDetails["experience"]); got != 3 {
		t.Errorf("5 Jahre should map to Stufe 3, got %d", got)
	}

	resp = turn(t, e, resp.FormState, "s1", "Bayern")
	state = resp.FormState
	if state.Section != schema.SectionTaxDetails {
		t.Fatalf("expected tax_details, got %s", state.Section)
	}
	if resp.Progress != 62 {
		t.Errorf("progress = %d, want 62", resp.Progress)
	}

	resp = turn(t, e, resp.FormState, "s1", "Steuerklasse 1, keine Kirche, keine Kinder")
	state = resp.FormState
	if state.Section != schema.SectionSummary {
		t.Fatalf("expected summary, got %s", state.Section)
	}
	if !strings.Contains(resp.Text, "Zusammenfassung") {
		t.Errorf("summary text missing recap: %q", resp.Text)
	}
	if len(resp.Suggestions) == 0 || resp.Suggestions[0] != "Ja, das stimmt" {
		t.Errorf("expected confirmation chips, got %v", resp.Suggestions)
	}
	if calculator.calls != 0 {
		t.Fatal("calculation must not run before explicit confirmation")
	}

	resp = turn(t, e, resp.FormState, "s1", "Ja, das stimmt")
	state = resp.FormState
	if state.Section != schema.SectionCompleted {
		t.Fatalf("expected completed, got %s", state.Section)
	}
	if calculator.calls != 1 {
		t.Errorf("calculator called %d times, want 1", calculator.calls)
	}
	if state.Data.CalculationResult == nil || state.Data.CalculationResult.Netto <= 0 {
		t.Fatalf("expected a real calculation result, got %+v", state.Data.CalculationResult)
	}
	if !strings.Contains(resp.Text, "Netto") {
		t.Errorf("final text should present the net salary: %q", resp.Text)
	}
	if store.saves != 1 {
		t.Errorf("result persisted %d times, want 1", store.saves)
	}
	if events.completed != 1 {
		t.Errorf("completion event published %d times, want 1", events.completed)
	}
	if resp.Progress != 100 {
		t.Errorf("progress = %d, want 100", resp.Progress)
	}
}

// The section must never advance while the current phase has missing fields.
func TestHandleTurn_NoAdvanceWithMissingFields(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"tarif": "TV-L", "group": "E13"}`,
	}}
	e := newTestEngine(oracle, calc.NewTaxEngine(calc.NewStaticTariffTable()), nil, nil, nil)

	resp := turn(t, e, nil, "s2", "TV-L, Entgeltgruppe 13")
	state := resp.FormState
	if state.Section != schema.SectionJobDetails {
		t.Fatalf("section advanced with missing fields: %s", state.Section)
	}
	want := []string{"experience", "hours", "state"}
	if len(state.MissingFields) != len(want) {
		t.Fatalf("missing = %v, want %v", state.MissingFields, want)
	}
	for i, f := range want {
		if state.MissingFields[i] != f {
			t.Errorf("missing[%d] = %s, want %s", i, state.MissingFields[i], f)
		}
	}
}

// A doctored client state cannot force a premature jump to summary.
func TestHandleTurn_ClientMissingFieldsNotTrusted(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{`{}`}}
	e := newTestEngine(oracle, calc.NewTaxEngine(calc.NewStaticTariffTable()), nil, nil, nil)

	doctored := NewFormState()
	doctored.MissingFields = nil // claims completeness

	resp := turn(t, e, doctored, "s3", "weiter bitte 1")
	if resp.FormState.Section != schema.SectionJobDetails {
		t.Fatalf("client-supplied missing_fields was trusted: %s", resp.FormState.Section)
	}
	if len(resp.FormState.MissingFields) != 5 {
		t.Errorf("missing fields not recomputed: %v", resp.FormState.MissingFields)
	}
}

// Calculation failure keeps the session in summary with no result set.
func TestHandleTurn_CalcFailureStaysInSummary(t *testing.T) {
	oracle := &scriptedOracle{}
	calculator := &failingCalc{}
	store := &recordingStore{}
	e := newTestEngine(oracle, calculator, nil, store, nil)

	state := completeState()
	resp := turn(t, e, state, "s4", "Ja, passt")

	if resp.FormState.Section != schema.SectionSummary {
		t.Fatalf("expected summary after calc failure, got %s", resp.FormState.Section)
	}
	if resp.FormState.Data.CalculationResult != nil {
		t.Fatal("calculation result must stay unset on failure")
	}
	if store.saves != 0 {
		t.Error("nothing should be persisted on calc failure")
	}
	if !strings.Contains(resp.Text, "Entschuldigung") {
		t.Errorf("expected an apology, got %q", resp.Text)
	}

	// The session is still alive: a retry with a working engine completes.
	working := newTestEngine(oracle, calc.NewTaxEngine(calc.NewStaticTariffTable()), nil, store, nil)
	resp = turn(t, working, resp.FormState, "s4", "Ja, passt")
	if resp.FormState.Section != schema.SectionCompleted {
		t.Fatalf("retry after calc failure should complete, got %s", resp.FormState.Section)
	}
}

// A failed audit write never costs the user their result.
func TestHandleTurn_PersistFailureStillCompletes(t *testing.T) {
	oracle := &scriptedOracle{}
	store := &recordingStore{err: errors.New("database gone")}
	e := newTestEngine(oracle, calc.NewTaxEngine(calc.NewStaticTariffTable()), nil, store, nil)

	resp := turn(t, e, completeState(), "s12", "Ja, das passt")

	if resp.FormState.Section != schema.SectionCompleted {
		t.Fatalf("expected completed despite store failure, got %s", resp.FormState.Section)
	}
	if resp.FormState.Data.CalculationResult == nil {
		t.Fatal("result lost on store failure")
	}
	if !strings.Contains(resp.Text, "nicht gespeichert") {
		t.Errorf("expected a persistence note, got %q", resp.Text)
	}
}

// Three failed attempts escalate to chips; a chip tap re-opens the field.
func TestHandleTurn_EscalationAndChipTap(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"tax_class": "9"}`,
		`{"tax_class": "0"}`,
		`{"tax_class": "sieben"}`,
	}}
	events := &recordingEvents{}
	e := newTestEngine(oracle, calc.NewTaxEngine(calc.NewStaticTariffTable()), nil, nil, events)

	state := completeState()
	state.Section = schema.SectionTaxDetails
	delete(state.Data.TaxDetails, "tax_class")

	resp := turn(t, e, state, "s5", "Steuerklasse 9")
	if resp.FormState.ValidationErrors["tax_class"] == "" {
		t.Fatal("expected a validation error for tax_class")
	}
	resp = turn(t, e, resp.FormState, "s5", "Steuerklasse 0")
	resp = turn(t, e, resp.FormState, "s5", "Steuerklasse sieben")

	if len(resp.Suggestions) != 6 {
		t.Fatalf("expected six escalation chips, got %v", resp.Suggestions)
	}
	if events.escalated != 1 || events.lastField != "tax_class" {
		t.Errorf("escalation event: count=%d field=%s", events.escalated, events.lastField)
	}

	// Chip tap: validated directly, no extraction call needed.
	resp = turn(t, e, resp.FormState, "s5", "3")
	if got, _ := schema.AsInt(resp.FormState.Data.TaxDetails["tax_class"]); got != 3 {
		t.Fatalf("chip tap did not store tax_class, state: %v", resp.FormState.Data.TaxDetails)
	}
	if resp.FormState.Section != schema.SectionSummary {
		t.Errorf("expected summary once tax details complete, got %s", resp.FormState.Section)
	}
	if oracle.calls != 3 {
		t.Errorf("chip tap must bypass extraction, oracle calls = %d", oracle.calls)
	}
}

// Escalation chips must also work while the summary is on screen, where the
// missing-field list is empty.
func TestHandleTurn_SummaryChipTap(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"field": "tax_class", "value": "9"}`,
		`{"field": "tax_class", "value": "0"}`,
		`{"field": "tax_class", "value": "99"}`,
	}}
	events := &recordingEvents{}
	e := newTestEngine(oracle, calc.NewTaxEngine(calc.NewStaticTariffTable()), nil, nil, events)

	resp := turn(t, e, completeState(), "s14", "Moment, die Steuerklasse ist falsch")
	resp = turn(t, e, resp.FormState, "s14", "Nein, die Steuerklasse ist immer noch falsch")
	resp = turn(t, e, resp.FormState, "s14", "Die Steuerklasse ist immer noch falsch")

	if len(resp.Suggestions) != 6 {
		t.Fatalf("expected six escalation chips, got %v", resp.Suggestions)
	}
	if events.escalated != 1 || events.lastField != "tax_class" {
		t.Fatalf("escalation event: count=%d field=%s", events.escalated, events.lastField)
	}

	resp = turn(t, e, resp.FormState, "s14", "3")
	if got, _ := schema.AsInt(resp.FormState.Data.TaxDetails["tax_class"]); got != 3 {
		t.Fatalf("chip tap in summary did not store tax_class, state: %v", resp.FormState.Data.TaxDetails)
	}
	if resp.FormState.Section != schema.SectionSummary {
		t.Errorf("chip tap must stay in summary, got %s", resp.FormState.Section)
	}
	if !strings.Contains(resp.Text, "Zusammenfassung") {
		t.Errorf("expected the recap to re-render: %q", resp.Text)
	}
	if oracle.calls != 3 {
		t.Errorf("chip tap must bypass the oracle, calls = %d", oracle.calls)
	}
}

// Citations gathered across several question turns collapse to one audit row
// per document when the result is persisted.
func TestHandleTurn_PersistedCitationsMergedPerDocument(t *testing.T) {
	docID := uuid.New()
	gateway := &stubGateway{chunks: []retrieval.Chunk{
		{Content: "Die Jahressonderzahlung beträgt je nach Entgeltgruppe 70 bis 90 Prozent.", Similarity: 0.8,
			Metadata: retrieval.ChunkMetadata{DocumentID: docID, DocumentName: "TVöD §20", PageStart: 3, PageEnd: 4}},
	}}
	oracle := &scriptedOracle{responses: []string{
		"Die Jahressonderzahlung beträgt 70 bis 90 Prozent eines Monatsgehalts.",
		"Sie wird mit dem Novemberentgelt ausgezahlt.",
	}}
	store := &recordingStore{}
	e := newTestEngine(oracle, calc.NewTaxEngine(calc.NewStaticTariffTable()), gateway, store, nil)

	resp := turn(t, e, completeState(), "s15", "Wie hoch ist die Jahressonderzahlung?")
	resp = turn(t, e, resp.FormState, "s15", "Wann wird die Jahressonderzahlung ausgezahlt?")
	if len(resp.FormState.RagCitations) != 2 {
		t.Fatalf("expected one citation per question turn, got %v", resp.FormState.RagCitations)
	}

	resp = turn(t, e, resp.FormState, "s15", "Ja, das stimmt")
	if resp.FormState.Section != schema.SectionCompleted {
		t.Fatalf("expected completed, got %s", resp.FormState.Section)
	}
	if store.saves != 1 {
		t.Fatalf("result persisted %d times, want 1", store.saves)
	}
	if len(store.citations) != 1 {
		t.Fatalf("persisted citations = %+v, want one row per document", store.citations)
	}
	if store.citations[0].DocumentID != docID || store.citations[0].Pages != "3-4" {
		t.Errorf("merged citation = %+v", store.citations[0])
	}
}

// An explicit zero similarity floor disables filtering instead of being
// rewritten to the default.
func TestHandleTurn_ZeroSimilarityFloorKeepsAllChunks(t *testing.T) {
	gateway := &stubGateway{chunks: []retrieval.Chunk{
		{Content: "Randnotiz zur Stufenlaufzeit.", Similarity: 0.2,
			Metadata: retrieval.ChunkMetadata{DocumentID: uuid.New(), DocumentName: "Protokollerklärung", PageStart: 2, PageEnd: 2}},
	}}
	oracle := &scriptedOracle{responses: []string{"Dazu gibt es nur eine Randnotiz."}}
	logger := discardLogger()
	e := New(Deps{
		Classifier: intent.New(oracle, logger),
		Extractor:  extract.New(oracle, logger),
		Validator:  validate.New(logger),
		Calculator: calc.NewTaxEngine(calc.NewStaticTariffTable()),
		Oracle:     oracle,
		Retriever:  gateway,
		TenantID:   uuid.New(),

		SimilarityFloor: 0,
		Logger:          logger,
	})

	resp := turn(t, e, nil, "s16", "Was steht zur Stufenlaufzeit in den Unterlagen?")
	if len(resp.CitationsForAudit) != 1 {
		t.Fatalf("floor 0 must keep low-similarity chunks, citations = %+v", resp.CitationsForAudit)
	}
}

// Question turns answer from retrieval, store citations for audit only, and
// leave the interview untouched.
func TestHandleTurn_QuestionBranch(t *testing.T) {
	docID := uuid.New()
	gateway := &stubGateway{chunks: []retrieval.Chunk{
		{Content: "Die Stufenlaufzeit in Stufe 2 beträgt zwei Jahre.", Similarity: 0.82,
			Metadata: retrieval.ChunkMetadata{DocumentID: docID, DocumentName: "TVöD §16", PageStart: 12, PageEnd: 12}},
		{Content: "irrelevant", Similarity: 0.2,
			Metadata: retrieval.ChunkMetadata{DocumentID: uuid.New(), DocumentName: "other"}},
	}}
	oracle := &scriptedOracle{responses: []string{
		"Die Stufenlaufzeit in Stufe 2 beträgt zwei Jahre.",
	}}
	e := newTestEngine(oracle, calc.NewTaxEngine(calc.NewStaticTariffTable()), gateway, nil, nil)

	state := NewFormState()
	state.Data.JobDetails["tarif"] = "tvoed"
	before := len(schema.MissingFields(schema.SectionJobDetails, state.flat()))

	resp := turn(t, e, state, "s6", "Wie lange dauert die Stufenlaufzeit?")

	if gateway.calls != 1 {
		t.Fatalf("retrieval called %d times, want 1", gateway.calls)
	}
	if len(resp.CitationsForAudit) != 1 || resp.CitationsForAudit[0].DocumentName != "TVöD §16" {
		t.Fatalf("citations = %+v", resp.CitationsForAudit)
	}
	if strings.Contains(resp.Text, "[1]") {
		t.Errorf("citation markers leaked into the answer: %q", resp.Text)
	}
	if !strings.Contains(resp.Text, "Stufenlaufzeit") {
		t.Errorf("grounded answer missing: %q", resp.Text)
	}
	if !strings.Contains(resp.Text, "Zurück zum Interview") {
		t.Errorf("answer should fall back to the interview prompt: %q", resp.Text)
	}
	if resp.FormState.Section != schema.SectionJobDetails {
		t.Errorf("question turn transitioned phases: %s", resp.FormState.Section)
	}
	if len(resp.FormState.MissingFields) != before {
		t.Errorf("question turn mutated missing fields: %v", resp.FormState.MissingFields)
	}
	if len(resp.FormState.RagCitations) != 1 {
		t.Errorf("citations not accumulated on state: %v", resp.FormState.RagCitations)
	}
}

func TestHandleTurn_QuestionWithoutRetriever(t *testing.T) {
	oracle := &scriptedOracle{}
	e := newTestEngine(oracle, calc.NewTaxEngine(calc.NewStaticTariffTable()), nil, nil, nil)

	resp := turn(t, e, nil, "s7", "Was ist die Stufenlaufzeit?")
	if !strings.Contains(resp.Text, "keine Informationen") {
		t.Errorf("expected the no-information fallback, got %q", resp.Text)
	}
	if len(resp.CitationsForAudit) != 0 {
		t.Errorf("no citations expected, got %v", resp.CitationsForAudit)
	}
}

// An oracle outage must not drop collected progress.
func TestHandleTurn_ExtractionFailurePreservesState(t *testing.T) {
	oracle := &scriptedOracle{err: errors.New("upstream overloaded")}
	e := newTestEngine(oracle, calc.NewTaxEngine(calc.NewStaticTariffTable()), nil, nil, nil)

	state := NewFormState()
	state.Data.JobDetails["tarif"] = "tvoed"
	state.recomputeMissing()

	resp := turn(t, e, state, "s8", "Entgeltgruppe 9, Stufe 2")

	if !strings.Contains(resp.Text, "Entschuldigung") {
		t.Errorf("expected a graceful apology, got %q", resp.Text)
	}
	if got, _ := schema.AsString(resp.FormState.Data.JobDetails["tarif"]); got != "tvoed" {
		t.Error("collected data lost on oracle failure")
	}
	if _, there := state.Data.JobDetails["group"]; there {
		t.Error("incoming state was mutated in place")
	}
}

// Modification in summary updates one field and re-renders the recap.
func TestHandleTurn_ModificationInSummary(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"field": "tax_class", "value": "3"}`,
	}}
	e := newTestEngine(oracle, calc.NewTaxEngine(calc.NewStaticTariffTable()), nil, nil, nil)

	state := completeState()
	resp := turn(t, e, state, "s9", "Moment, die Steuerklasse ist falsch")

	if resp.FormState.Section != schema.SectionSummary {
		t.Fatalf("modification must stay in summary, got %s", resp.FormState.Section)
	}
	if got, _ := schema.AsInt(resp.FormState.Data.TaxDetails["tax_class"]); got != 3 {
		t.Errorf("tax_class = %d, want 3", got)
	}
	if !strings.Contains(resp.Text, "Zusammenfassung") {
		t.Errorf("expected the recap to re-render: %q", resp.Text)
	}
	if got, _ := schema.AsInt(state.Data.TaxDetails["tax_class"]); got != 1 {
		t.Error("incoming state was mutated in place")
	}
}

// After completion, turns answer about the result without re-running anything.
func TestHandleTurn_CompletedIsTerminal(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		"Ihr Netto ergibt sich aus Brutto minus Steuern und Sozialabgaben.",
	}}
	calculator := &countingCalc{inner: calc.NewTaxEngine(calc.NewStaticTariffTable())}
	e := newTestEngine(oracle, calculator, nil, nil, nil)

	state := completeState()
	state.Section = schema.SectionCompleted
	state.Data.CalculationResult = &calc.TaxResult{GrossMonthly: 3556, Netto: 2400}

	resp := turn(t, e, state, "s10", "Wie setzt sich das Netto zusammen?")
	if resp.FormState.Section != schema.SectionCompleted {
		t.Fatalf("terminal state changed: %s", resp.FormState.Section)
	}
	if calculator.calls != 0 {
		t.Error("no recalculation in terminal state")
	}
	if !strings.Contains(resp.Text, "Netto") {
		t.Errorf("expected a result answer, got %q", resp.Text)
	}
}

func TestHandleTurn_ConversationContextBounded(t *testing.T) {
	oracle := &scriptedOracle{}
	e := newTestEngine(oracle, calc.NewTaxEngine(calc.NewStaticTariffTable()), nil, nil, nil)

	state := NewFormState()
	for i := 0; i < 14; i++ {
		resp := turn(t, e, state, "s11", "Was?")
		state = resp.FormState
	}
	if len(state.ConversationContext) != 10 {
		t.Errorf("context window = %d, want 10", len(state.ConversationContext))
	}
}

// completeState returns a state with both phases filled, sitting in summary.
func completeState() *FormState {
	s := NewFormState()
	s.Section = schema.SectionSummary
	s.Data.JobDetails = schema.Values{
		"tarif":      "tvoed_pflege",
		"group":      "p7",
		"experience": 3,
		"hours":      38.5,
		"state":      "bayern",
	}
	s.Data.TaxDetails = schema.Values{
		"tax_class":  1,
		"church_tax": false,
		"children":   0,
	}
	s.MissingFields = nil
	return s
}
