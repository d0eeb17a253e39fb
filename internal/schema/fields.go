package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var fieldOrder = map[Section][]string{
	SectionJobDetails: {"tarif", "group", "experience", "hours", "state"},
	SectionTaxDetails: {"tax_class", "church_tax", "children"},
}

var registry = map[string]*Field{
	"tarif": {
		Name:     "tarif",
		Section:  SectionJobDetails,
		Question: "Nach welchem Tarifvertrag werden Sie bezahlt? Zum Beispiel TVöD, TVöD Pflege, TV-L oder AVR.",
		Options:  []string{"tvoed", "tvoed_pflege", "tvl", "avr"},
		Labels:   []string{"TVöD", "TVöD Pflege", "TV-L", "AVR"},
		Parse:    parseTarif,
	},
	"group": {
		Name:      "group",
		Section:   SectionJobDetails,
		Question:  "In welche Entgeltgruppe sind Sie eingruppiert? Zum Beispiel E9 oder P7.",
		DependsOn: "tarif",
		Parse:     parseGroup,
	},
	"experience": {
		Name:     "experience",
		Section:  SectionJobDetails,
		Question: "Wie viele Jahre Berufserfahrung haben Sie? Oder nennen Sie direkt Ihre Stufe (1 bis 6).",
		Parse:    parseExperience,
	},
	"hours": {
		Name:     "hours",
		Section:  SectionJobDetails,
		Question: "Wie viele Stunden arbeiten Sie pro Woche? Bei Vollzeit reicht einfach „Vollzeit“.",
		Parse:    parseHours,
	},
	"state": {
		Name:     "state",
		Section:  SectionJobDetails,
		Question: "In welchem Bundesland arbeiten Sie?",
		Options:  stateSlugs,
		Labels:   stateLabels,
		Parse:    parseState,
	},
	"tax_class": {
		Name:     "tax_class",
		Section:  SectionTaxDetails,
		Question: "Welche Steuerklasse haben Sie? (1 bis 6)",
		Options:  []string{"1", "2", "3", "4", "5", "6"},
		Parse:    parseTaxClass,
	},
	"church_tax": {
		Name:     "church_tax",
		Section:  SectionTaxDetails,
		Question: "Zahlen Sie Kirchensteuer?",
		Options:  []string{"ja", "nein"},
		Labels:   []string{"Ja", "Nein"},
		Parse:    parseChurchTax,
	},
	"children": {
		Name:     "children",
		Section:  SectionTaxDetails,
		Question: "Wie viele Kinder haben Sie? Bei keinen einfach „keine“.",
		Parse:    parseChildren,
	},
}

// --- tarif ---

var tarifAliases = map[string]string{
	"tvoed":          "tvoed",
	"tarifvertragoeffentlicherdienst": "tvoed",
	"tvoedvka":       "tvoed",
	"tvoedbund":      "tvoed",
	"tvoedp":         "tvoed_pflege",
	"tvoedpflege":    "tvoed_pflege",
	"pflege":         "tvoed_pflege",
	"pflegetarif":    "tvoed_pflege",
	"tvl":            "tvl",
	"tarifvertraglaender": "tvl",
	"avr":            "avr",
	"avrcaritas":     "avr",
	"avrdiakonie":    "avr",
	"caritas":        "avr",
	"diakonie":       "avr",
}

func parseTarif(raw string, _ Values) (any, error) {
	key := compact(raw)
	if canonical, ok := tarifAliases[key]; ok {
		return canonical, nil
	}
	return nil, &ParseError{
		Field:    "tarif",
		Received: raw,
		Message:  "Diesen Tarifvertrag kenne ich leider nicht. Unterstützt werden TVöD, TVöD Pflege, TV-L und AVR.",
	}
}

// --- group ---

var groupPattern = regexp.MustCompile(`^([ep])(\d{1,2})[ab]?$`)

// groupPrefix maps a tariff to the letter prefix used when the user gives a
// bare numeric grade. Care tariffs use the P table, everything else E.
func groupPrefix(tarif string) string {
	switch tarif {
	case "tvoed_pflege", "avr":
		return "p"
	default:
		return "e"
	}
}

func parseGroup(raw string, values Values) (any, error) {
	key := compact(raw)
	for _, prefix := range []string{"entgeltgruppe", "eg"} {
		key = strings.TrimPrefix(key, prefix)
	}

	if n, err := strconv.Atoi(key); err == nil {
		tarif, ok := AsString(values["tarif"])
		if !ok || tarif == "" {
			return nil, &DependencyError{
				Field:    "group",
				Requires: "tarif",
				Message:  "Um die Entgeltgruppe zuzuordnen, brauche ich zuerst Ihren Tarifvertrag (z.B. TVöD oder AVR). Nach welchem Tarif werden Sie bezahlt?",
			}
		}
		key = fmt.Sprintf("%s%d", groupPrefix(tarif), n)
	}

	m := groupPattern.FindStringSubmatch(key)
	if m == nil {
		return nil, &ParseError{
			Field:    "group",
			Received: raw,
			Message:  "Das habe ich nicht als Entgeltgruppe erkannt. Gültig sind E1 bis E15 und P5 bis P16, zum Beispiel „E9“ oder „P7“.",
		}
	}
	n, _ := strconv.Atoi(m[2])
	switch m[1] {
	case "e":
		if n < 1 || n > 15 {
			return nil, &RangeError{Field: "group", Value: float64(n), Min: 1, Max: 15,
				Message: "Entgeltgruppen der E-Tabelle reichen von E1 bis E15."}
		}
	case "p":
		if n < 5 || n > 16 {
			return nil, &RangeError{Field: "group", Value: float64(n), Min: 5, Max: 16,
				Message: "Pflege-Entgeltgruppen reichen von P5 bis P16."}
		}
	}
	return fmt.Sprintf("%s%d", m[1], n), nil
}

// --- experience ---

var numberPattern = regexp.MustCompile(`\d+`)

// yearsToStufe maps years of relevant experience to the tariff Stufe.
func yearsToStufe(years int) int {
	switch {
	case years < 1:
		return 1
	case years < 3:
		return 2
	case years < 6:
		return 3
	case years < 10:
		return 4
	case years < 15:
		return 5
	default:
		return 6
	}
}

func parseExperience(raw string, _ Values) (any, error) {
	text := normalize(raw)
	num := numberPattern.FindString(text)
	if num == "" {
		if strings.Contains(text, "berufseinsteiger") || strings.Contains(text, "keine") || strings.Contains(text, "frisch") {
			return 1, nil
		}
		return nil, &ParseError{
			Field:    "experience",
			Received: raw,
			Message:  "Wie lange arbeiten Sie schon in dem Beruf? Eine Jahreszahl genügt, zum Beispiel „5 Jahre“.",
		}
	}
	n, _ := strconv.Atoi(num)

	if strings.Contains(text, "stufe") {
		if n < 1 || n > 6 {
			return nil, &RangeError{Field: "experience", Value: float64(n), Min: 1, Max: 6,
				Message: "Erfahrungsstufen reichen von 1 bis 6."}
		}
		return n, nil
	}
	// A bare number without a unit in the Stufe range is read as a Stufe.
	// This keeps canonical values stable under re-validation; years always
	// arrive with a unit word from the extraction step.
	if !strings.Contains(text, "jahr") && n >= 1 && n <= 6 {
		return n, nil
	}
	if n > 60 {
		return nil, &ParseError{
			Field:    "experience",
			Received: raw,
			Message:  "So viele Berufsjahre kann ich nicht zuordnen. Wie viele Jahre Berufserfahrung haben Sie?",
		}
	}
	return yearsToStufe(n), nil
}

// --- hours ---

const fullTimeHours = 38.5

var hoursPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

func parseHours(raw string, _ Values) (any, error) {
	text := normalize(raw)
	if strings.Contains(text, "vollzeit") {
		return fullTimeHours, nil
	}
	num := hoursPattern.FindString(text)
	if num == "" {
		if strings.Contains(text, "teilzeit") {
			return nil, &ParseError{
				Field:    "hours",
				Received: raw,
				Message:  "Wie viele Stunden pro Woche arbeiten Sie in Teilzeit? Zum Beispiel „19,25“.",
			}
		}
		return nil, &ParseError{
			Field:    "hours",
			Received: raw,
			Message:  "Das habe ich nicht als Wochenstunden verstanden. Wie viele Stunden arbeiten Sie pro Woche?",
		}
	}
	h, _ := strconv.ParseFloat(strings.ReplaceAll(num, ",", "."), 64)
	if strings.Contains(text, "%") || strings.Contains(text, "prozent") {
		h = fullTimeHours * h / 100
	}
	if h < 1 || h > 48 {
		return nil, &RangeError{Field: "hours", Value: h, Min: 1, Max: 48,
			Message: "Wochenstunden müssen zwischen 1 und 48 liegen."}
	}
	return h, nil
}

// --- state ---

var stateSlugs = []string{
	"baden-wuerttemberg", "bayern", "berlin", "brandenburg", "bremen",
	"hamburg", "hessen", "mecklenburg-vorpommern", "niedersachsen",
	"nordrhein-westfalen", "rheinland-pfalz", "saarland", "sachsen",
	"sachsen-anhalt", "schleswig-holstein", "thueringen",
}

var stateLabels = []string{
	"Baden-Württemberg", "Bayern", "Berlin", "Brandenburg", "Bremen",
	"Hamburg", "Hessen", "Mecklenburg-Vorpommern", "Niedersachsen",
	"Nordrhein-Westfalen", "Rheinland-Pfalz", "Saarland", "Sachsen",
	"Sachsen-Anhalt", "Schleswig-Holstein", "Thüringen",
}

var stateAbbrev = map[string]string{
	"bw":  "baden-wuerttemberg",
	"by":  "bayern",
	"nrw": "nordrhein-westfalen",
	"mv":  "mecklenburg-vorpommern",
	"rlp": "rheinland-pfalz",
	"sh":  "schleswig-holstein",
}

func parseState(raw string, _ Values) (any, error) {
	key := compact(raw)
	if slug, ok := stateAbbrev[key]; ok {
		return slug, nil
	}
	for _, slug := range stateSlugs {
		if compact(slug) == key {
			return slug, nil
		}
	}
	return nil, &ParseError{
		Field:    "state",
		Received: raw,
		Message:  "Das habe ich nicht als Bundesland erkannt. In welchem Bundesland arbeiten Sie?",
	}
}

// --- tax_class ---

var taxClassWords = map[string]int{
	"i": 1, "ii": 2, "iii": 3, "iv": 4, "v": 5, "vi": 6,
	"eins": 1, "zwei": 2, "drei": 3, "vier": 4, "fuenf": 5, "sechs": 6,
}

func parseTaxClass(raw string, _ Values) (any, error) {
	text := normalize(raw)
	for _, prefix := range []string{"steuerklasse", "klasse", "stkl"} {
		text = strings.TrimSpace(strings.TrimPrefix(text, prefix))
	}
	if n, ok := taxClassWords[text]; ok {
		return n, nil
	}
	num := numberPattern.FindString(text)
	if num == "" {
		return nil, &ParseError{
			Field:    "tax_class",
			Received: raw,
			Message:  "Das habe ich nicht als Steuerklasse verstanden. Gültig sind die Klassen 1 bis 6.",
		}
	}
	n, _ := strconv.Atoi(num)
	if n < 1 || n > 6 {
		return nil, &RangeError{Field: "tax_class", Value: float64(n), Min: 1, Max: 6,
			Message: "Steuerklassen reichen von 1 bis 6."}
	}
	return n, nil
}

// --- church_tax ---

var churchYes = map[string]bool{
	"ja": true, "jo": true, "klar": true, "evangelisch": true,
	"katholisch": true, "ev": true, "rk": true,
}
var churchNo = map[string]bool{
	"nein": true, "ne": true, "nee": true, "keine": true, "nicht": true,
	"konfessionslos": true, "ausgetreten": true, "ohne": true,
}

func parseChurchTax(raw string, _ Values) (any, error) {
	for _, word := range strings.FieldsFunc(normalize(raw), func(r rune) bool {
		return !('a' <= r && r <= 'z')
	}) {
		if churchNo[word] {
			return false, nil
		}
		if churchYes[word] {
			return true, nil
		}
	}
	return nil, &ParseError{
		Field:    "church_tax",
		Received: raw,
		Message:  "Zahlen Sie Kirchensteuer? Ein einfaches Ja oder Nein genügt.",
	}
}

// --- children ---

func parseChildren(raw string, _ Values) (any, error) {
	text := normalize(raw)
	if strings.Contains(text, "kein") {
		return 0, nil
	}
	num := numberPattern.FindString(text)
	if num == "" {
		return nil, &ParseError{
			Field:    "children",
			Received: raw,
			Message:  "Wie viele Kinder haben Sie? Eine Zahl genügt, bei keinen einfach „keine“.",
		}
	}
	n, _ := strconv.Atoi(num)
	if n < 0 || n > 12 {
		return nil, &RangeError{Field: "children", Value: float64(n), Min: 0, Max: 12,
			Message: "Bitte geben Sie eine Kinderzahl zwischen 0 und 12 an."}
	}
	return n, nil
}
