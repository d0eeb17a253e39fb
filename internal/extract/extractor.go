// Package extract invokes the oracle to pull candidate field values out of
// free text. Extraction is deliberately dumb: whatever comes back is raw
// material for the validator, never trusted on its own.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lohnlab/tarifbot/internal/anthropic"
)

// Oracle is the narrow LLM surface the extractor needs.
type Oracle interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (string, error)
}

type Extractor struct {
	llm    Oracle
	logger *slog.Logger
}

func New(llm Oracle, logger *slog.Logger) *Extractor {
	return &Extractor{llm: llm, logger: logger}
}

// Extract asks the oracle for values of the currently missing fields. A
// malformed oracle response is not an error, it is an empty extraction: the
// turn simply re-asks for the same fields. Only transport failures are
// returned as errors.
func (e *Extractor) Extract(ctx context.Context, utterance string, missingFields, conversationContext []string) (map[string]string, error) {
	if len(missingFields) == 0 {
		return map[string]string{}, nil
	}

	prompt := fmt.Sprintf(extractUserPrompt,
		strings.Join(missingFields, ", "),
		formatContext(conversationContext),
		utterance,
	)

	raw, err := e.llm.Complete(ctx, extractSystemPrompt, []anthropic.Message{
		{Role: "user", Content: prompt},
	}, 1024)
	if err != nil {
		return nil, fmt.Errorf("llm extraction: %w", err)
	}

	parsed := parseExtraction(raw)
	if parsed == nil {
		e.logger.Warn("unparseable extraction response, treating as empty", "raw", raw)
		return map[string]string{}, nil
	}

	// Constrain keys to the fields actually asked for; the oracle
	// occasionally volunteers extras.
	allowed := make(map[string]bool, len(missingFields))
	for _, f := range missingFields {
		allowed[f] = true
	}
	result := make(map[string]string, len(parsed))
	for field, value := range parsed {
		if !allowed[field] {
			e.logger.Debug("dropping extraction outside missing fields", "field", field)
			continue
		}
		if s := stringify(value); s != "" {
			result[field] = s
		}
	}

	e.logger.Info("extraction complete",
		"missing", len(missingFields),
		"extracted", len(result),
	)
	return result, nil
}

// ExtractModification identifies the single field-and-value pair the user
// wants to change in the summary. ok is false when no field was recognized.
func (e *Extractor) ExtractModification(ctx context.Context, utterance string, fields []string) (field, value string, ok bool, err error) {
	system := fmt.Sprintf(modifySystemPrompt, strings.Join(fields, ", "))
	raw, err := e.llm.Complete(ctx, system, []anthropic.Message{
		{Role: "user", Content: fmt.Sprintf(modifyUserPrompt, utterance)},
	}, 256)
	if err != nil {
		return "", "", false, fmt.Errorf("llm modification: %w", err)
	}

	var parsed struct {
		Field string `json:"field"`
		Value any    `json:"value"`
	}
	if jsonErr := json.Unmarshal([]byte(stripFences(raw)), &parsed); jsonErr != nil {
		e.logger.Warn("unparseable modification response", "raw", raw)
		return "", "", false, nil
	}
	if parsed.Field == "" {
		return "", "", false, nil
	}
	for _, f := range fields {
		if f == parsed.Field {
			return parsed.Field, stringify(parsed.Value), true, nil
		}
	}
	e.logger.Warn("modification named unknown field", "field", parsed.Field)
	return "", "", false, nil
}

// parseExtraction tolerates markdown fences and returns nil on malformed JSON.
func parseExtraction(raw string) map[string]any {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return nil
	}
	return parsed
}

// stripFences removes a surrounding ```json ... ``` block if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// stringify renders an extracted JSON value as the raw string the validator
// expects. Integral floats lose their ".0" so "3" stays "3".
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "ja"
		}
		return "nein"
	default:
		return ""
	}
}

func formatContext(turns []string) string {
	if len(turns) == 0 {
		return "(keiner)"
	}
	return "- " + strings.Join(turns, "\n- ")
}
