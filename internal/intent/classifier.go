// Package intent classifies user utterances against the current interview
// state. A deterministic keyword pass runs first; the oracle is only
// consulted when that pass is inconclusive.
package intent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lohnlab/tarifbot/internal/anthropic"
	"github.com/lohnlab/tarifbot/internal/schema"
)

type Intent string

const (
	DataProvision Intent = "data_provision"
	Question      Intent = "question"
	Modification  Intent = "modification"
	Confirmation  Intent = "confirmation"
	Unclear       Intent = "unclear"
)

// Classification carries the intent plus how it was determined.
type Classification struct {
	Intent     Intent
	Confidence float64
	Source     string // "keyword" or "oracle"
}

// Oracle is the narrow LLM surface the classifier needs.
type Oracle interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (string, error)
}

type Classifier struct {
	llm    Oracle
	logger *slog.Logger
}

func New(llm Oracle, logger *slog.Logger) *Classifier {
	return &Classifier{llm: llm, logger: logger}
}

var interrogatives = []string{
	"was ", "wie ", "wer ", "warum ", "wieso ", "weshalb ", "wann ",
	"wo ", "welche", "wofuer ", "wozu ", "gibt es ", "kann ich ", "muss ich ",
}

var confirmWords = map[string]bool{
	"ja": true, "jawohl": true, "passt": true, "stimmt": true, "korrekt": true,
	"richtig": true, "genau": true, "berechnen": true, "bestaetigen": true,
	"los": true, "ok": true, "okay": true,
}

var modifyWords = map[string]bool{
	"aendern": true, "anpassen": true, "korrigieren": true, "falsch": true,
	"eigentlich": true, "stattdessen": true, "doch": true, "moment": true,
}

var umlauts = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")

// Classify runs the two-tier strategy. The keyword pass is phase-aware:
// confirmation and modification vocabularies only apply in the summary phase,
// where they are unambiguous.
func (c *Classifier) Classify(ctx context.Context, utterance string, section schema.Section) Classification {
	text := strings.TrimSpace(strings.ToLower(umlauts.Replace(utterance)))
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})

	isQuestion := strings.Contains(text, "?")
	if !isQuestion {
		for _, w := range interrogatives {
			if strings.HasPrefix(text, w) {
				isQuestion = true
				break
			}
		}
	}

	var isConfirm, isModify bool
	if section == schema.SectionSummary || section == schema.SectionCompleted {
		for _, w := range words {
			if confirmWords[w] {
				isConfirm = true
			}
			if modifyWords[w] {
				isModify = true
			}
		}
	}

	matches := 0
	for _, m := range []bool{isQuestion, isConfirm, isModify} {
		if m {
			matches++
		}
	}
	if matches == 1 {
		switch {
		case isQuestion:
			return Classification{Intent: Question, Confidence: 0.9, Source: "keyword"}
		case isConfirm:
			return Classification{Intent: Confirmation, Confidence: 0.9, Source: "keyword"}
		case isModify:
			return Classification{Intent: Modification, Confidence: 0.9, Source: "keyword"}
		}
	}

	// During collection, anything carrying a number or domain vocabulary is
	// almost certainly an answer to the question just asked.
	if matches == 0 && section != schema.SectionSummary && section != schema.SectionCompleted {
		if looksLikeData(text, words) {
			return Classification{Intent: DataProvision, Confidence: 0.8, Source: "keyword"}
		}
	}

	return c.classifyWithOracle(ctx, utterance, section)
}

var domainWords = map[string]bool{
	"tvoed": true, "tvl": true, "avr": true, "vollzeit": true, "teilzeit": true,
	"stufe": true, "jahre": true, "jahr": true, "stunden": true, "kinder": true,
	"keine": true, "nein": true, "ja": true, "evangelisch": true, "katholisch": true,
	"steuerklasse": true, "pflege": true,
}

func looksLikeData(text string, words []string) bool {
	if strings.ContainsAny(text, "0123456789") {
		return true
	}
	for _, w := range words {
		if domainWords[w] {
			return true
		}
	}
	for _, w := range words {
		if stateWords[w] {
			return true
		}
	}
	return false
}

var stateWords = func() map[string]bool {
	m := make(map[string]bool)
	for _, label := range schema.OptionLabels("state") {
		for _, part := range strings.Split(strings.ToLower(umlauts.Replace(label)), "-") {
			m[part] = true
		}
	}
	return m
}()

const classifySystemPrompt = `Du klassifizierst Nutzereingaben in einem Gehaltsrechner-Interview.
Antworte mit GENAU EINEM dieser Labels und sonst nichts:
data_provision - die Eingabe beantwortet die gestellte Interviewfrage
question - die Eingabe stellt eine eigene Frage
modification - die Eingabe will einen bereits erfassten Wert aendern
confirmation - die Eingabe bestaetigt die Zusammenfassung
unclear - nichts davon ist erkennbar`

func (c *Classifier) classifyWithOracle(ctx context.Context, utterance string, section schema.Section) Classification {
	prompt := "Interviewphase: " + string(section) + "\nEingabe: " + utterance
	raw, err := c.llm.Complete(ctx, classifySystemPrompt, []anthropic.Message{
		{Role: "user", Content: prompt},
	}, 16)
	if err != nil {
		c.logger.Warn("oracle classification failed, assuming data provision", "error", err)
		return Classification{Intent: DataProvision, Confidence: 0.5, Source: "oracle"}
	}

	switch Intent(strings.TrimSpace(strings.ToLower(raw))) {
	case DataProvision:
		return Classification{Intent: DataProvision, Confidence: 0.7, Source: "oracle"}
	case Question:
		return Classification{Intent: Question, Confidence: 0.7, Source: "oracle"}
	case Modification:
		return Classification{Intent: Modification, Confidence: 0.7, Source: "oracle"}
	case Confirmation:
		return Classification{Intent: Confirmation, Confidence: 0.7, Source: "oracle"}
	case Unclear:
		return Classification{Intent: Unclear, Confidence: 0.7, Source: "oracle"}
	}

	// Unparseable oracle output: the safe default is that the user answered
	// the question just asked.
	c.logger.Warn("unparseable intent from oracle", "raw", raw)
	return Classification{Intent: DataProvision, Confidence: 0.5, Source: "oracle"}
}
