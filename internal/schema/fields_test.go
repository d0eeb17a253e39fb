package schema

import (
	"fmt"
	"testing"
)

// canonicalString renders a canonical value the way a client would echo it
// back as raw text.
func canonicalString(v any) string {
	return fmt.Sprint(v)
}

func TestParseTarif(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"TVöD", "tvoed"},
		{"tvoed", "tvoed"},
		{"TVöD-P", "tvoed_pflege"},
		{"tvoed_pflege", "tvoed_pflege"},
		{"Pflege", "tvoed_pflege"},
		{"TV-L", "tvl"},
		{"tv l", "tvl"},
		{"AVR Caritas", "avr"},
		{"Diakonie", "avr"},
	}
	for _, c := range cases {
		got, err := parseTarif(c.in, nil)
		if err != nil {
			t.Errorf("parseTarif(%q): unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseTarif(%q) = %v, want %q", c.in, got, c.want)
		}
	}

	// Typos are parse failures; the correction flow owns them.
	if _, err := parseTarif("TVOD", nil); err == nil {
		t.Error("expected error for misspelled tariff")
	}

	if _, err := parseTarif("Haustarif XY", nil); err == nil {
		t.Error("expected error for unknown tariff")
	}
}

func TestParseGroup(t *testing.T) {
	values := Values{"tarif": "tvoed"}

	got, err := parseGroup("E 9", values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "e9" {
		t.Errorf("expected e9, got %v", got)
	}

	got, err = parseGroup("Entgeltgruppe P7", Values{"tarif": "avr"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "p7" {
		t.Errorf("expected p7, got %v", got)
	}
}

func TestParseGroup_BareNumberUsesTarifPrefix(t *testing.T) {
	got, err := parseGroup("7", Values{"tarif": "tvoed_pflege"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "p7" {
		t.Errorf("expected p7 for bare 7 under care tariff, got %v", got)
	}

	got, err = parseGroup("9", Values{"tarif": "tvl"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "e9" {
		t.Errorf("expected e9 for bare 9 under tvl, got %v", got)
	}
}

func TestParseGroup_MissingTarifDependency(t *testing.T) {
	_, err := parseGroup("7", Values{})
	if err == nil {
		t.Fatal("expected dependency error for bare grade without tariff")
	}
	dep, ok := err.(*DependencyError)
	if !ok {
		t.Fatalf("expected *DependencyError, got %T", err)
	}
	if dep.Requires != "tarif" {
		t.Errorf("expected dependency on tarif, got %q", dep.Requires)
	}
}

func TestParseGroup_OutOfRange(t *testing.T) {
	if _, err := parseGroup("E17", nil); err == nil {
		t.Error("expected range error for E17")
	}
	if _, err := parseGroup("P3", nil); err == nil {
		t.Error("expected range error for P3")
	}
}

func TestParseExperience(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"5 Jahre", 3},
		{"ich arbeite seit 12 Jahren", 5},
		{"Stufe 4", 4},
		{"stufe 1", 1},
		{"20 Jahre", 6},
		{"Berufseinsteiger", 1},
		{"3", 3}, // bare number in Stufe range reads as Stufe
		{"1 Jahr", 2},
	}
	for _, c := range cases {
		got, err := parseExperience(c.in, nil)
		if err != nil {
			t.Errorf("parseExperience(%q): unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseExperience(%q) = %v, want %d", c.in, got, c.want)
		}
	}

	if _, err := parseExperience("Stufe 9", nil); err == nil {
		t.Error("expected range error for Stufe 9")
	}
	if _, err := parseExperience("schon ewig", nil); err == nil {
		t.Error("expected error for non-numeric experience")
	}
}

func TestParseHours(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"Vollzeit", 38.5},
		{"38,5", 38.5},
		{"20 Stunden", 20},
		{"50%", 19.25},
		{"Teilzeit mit 25 Stunden", 25},
	}
	for _, c := range cases {
		got, err := parseHours(c.in, nil)
		if err != nil {
			t.Errorf("parseHours(%q): unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseHours(%q) = %v, want %v", c.in, got, c.want)
		}
	}

	if _, err := parseHours("Teilzeit", nil); err == nil {
		t.Error("expected error for Teilzeit without hours")
	}
	if _, err := parseHours("80 Stunden", nil); err == nil {
		t.Error("expected range error for 80 hours")
	}
}

func TestParseState(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Bayern", "bayern"},
		{"Baden-Württemberg", "baden-wuerttemberg"},
		{"baden wuerttemberg", "baden-wuerttemberg"},
		{"NRW", "nordrhein-westfalen"},
		{"Thüringen", "thueringen"},
	}
	for _, c := range cases {
		got, err := parseState(c.in, nil)
		if err != nil {
			t.Errorf("parseState(%q): unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseState(%q) = %v, want %q", c.in, got, c.want)
		}
	}

	if _, err := parseState("Atlantis", nil); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestParseTaxClass(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"3", 3},
		{"Steuerklasse 1", 1},
		{"III", 3},
		{"drei", 3},
		{"Klasse 4", 4},
	}
	for _, c := range cases {
		got, err := parseTaxClass(c.in, nil)
		if err != nil {
			t.Errorf("parseTaxClass(%q): unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseTaxClass(%q) = %v, want %d", c.in, got, c.want)
		}
	}

	_, err := parseTaxClass("7", nil)
	if err == nil {
		t.Fatal("expected range error for tax class 7")
	}
	if _, ok := err.(*RangeError); !ok {
		t.Errorf("expected *RangeError, got %T", err)
	}
}

func TestParseChurchTax(t *testing.T) {
	yes := []string{"ja", "Ja, katholisch", "evangelisch"}
	for _, in := range yes {
		got, err := parseChurchTax(in, nil)
		if err != nil || got != true {
			t.Errorf("parseChurchTax(%q) = %v, %v; want true", in, got, err)
		}
	}
	no := []string{"nein", "konfessionslos", "bin ausgetreten"}
	for _, in := range no {
		got, err := parseChurchTax(in, nil)
		if err != nil || got != false {
			t.Errorf("parseChurchTax(%q) = %v, %v; want false", in, got, err)
		}
	}
	if _, err := parseChurchTax("vielleicht", nil); err == nil {
		t.Error("expected error for ambiguous church tax answer")
	}
}

func TestParseChildren(t *testing.T) {
	got, err := parseChildren("keine", nil)
	if err != nil || got != 0 {
		t.Errorf("parseChildren(keine) = %v, %v; want 0", got, err)
	}
	got, err = parseChildren("2 Kinder", nil)
	if err != nil || got != 2 {
		t.Errorf("parseChildren(2 Kinder) = %v, %v; want 2", got, err)
	}
	if _, err := parseChildren("20", nil); err == nil {
		t.Error("expected range error for 20 children")
	}
}

func TestMissingFieldsAndProgress(t *testing.T) {
	values := Values{}
	missing := MissingFields(SectionJobDetails, values)
	if len(missing) != 5 {
		t.Fatalf("expected 5 missing job fields, got %d", len(missing))
	}
	if missing[0] != "tarif" {
		t.Errorf("expected tarif first, got %q", missing[0])
	}
	if Progress(values) != 0 {
		t.Errorf("expected 0 progress, got %d", Progress(values))
	}

	values["tarif"] = "tvoed"
	values["group"] = "e9"
	values["experience"] = 3
	values["hours"] = 38.5
	if PhaseComplete(SectionJobDetails, values) {
		t.Error("phase should not be complete with state missing")
	}
	values["state"] = "bayern"
	if !PhaseComplete(SectionJobDetails, values) {
		t.Error("phase should be complete")
	}
	if AllPhasesComplete(values) {
		t.Error("all phases should not be complete without tax details")
	}
	if p := Progress(values); p != 62 {
		t.Errorf("expected 62%% progress (5/8), got %d", p)
	}

	values["tax_class"] = 1
	values["church_tax"] = false
	values["children"] = 0
	if !AllPhasesComplete(values) {
		t.Error("all phases should be complete")
	}
	if Progress(values) != 100 {
		t.Errorf("expected 100%% progress, got %d", Progress(values))
	}
}

func TestNextSection(t *testing.T) {
	if NextSection(SectionJobDetails) != SectionTaxDetails {
		t.Error("job_details should advance to tax_details")
	}
	if NextSection(SectionTaxDetails) != SectionSummary {
		t.Error("tax_details should advance to summary")
	}
	if NextSection(SectionSummary) != SectionCompleted {
		t.Error("summary should advance to completed")
	}
}

func TestRoundTripCanonicalization(t *testing.T) {
	// Normalized values fed back in as raw input must re-validate to the
	// same canonical value.
	cases := []struct {
		field string
		raw   string
	}{
		{"tarif", "TVöD Pflege"},
		{"group", "P 7"},
		{"experience", "5 Jahre"},
		{"hours", "Vollzeit"},
		{"state", "Bayern"},
		{"tax_class", "Steuerklasse 3"},
		{"children", "2 Kinder"},
	}
	values := Values{"tarif": "tvoed_pflege"}
	for _, c := range cases {
		f, ok := Lookup(c.field)
		if !ok {
			t.Fatalf("unknown field %q", c.field)
		}
		first, err := f.Parse(c.raw, values)
		if err != nil {
			t.Fatalf("%s: first parse of %q failed: %v", c.field, c.raw, err)
		}
		second, err := f.Parse(canonicalString(first), values)
		if err != nil {
			t.Fatalf("%s: re-parse of %v failed: %v", c.field, first, err)
		}
		if first != second {
			t.Errorf("%s: canonical value drifted, %v -> %v", c.field, first, second)
		}
	}
}
