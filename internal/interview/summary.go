package interview

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lohnlab/tarifbot/internal/calc"
	"github.com/lohnlab/tarifbot/internal/schema"
)

// renderSummary builds the structured recap shown before confirmation.
func renderSummary(flat schema.Values) string {
	var b strings.Builder
	b.WriteString("Hier ist eine Zusammenfassung Ihrer Angaben:\n\n")

	if v, ok := schema.AsString(flat["tarif"]); ok {
		fmt.Fprintf(&b, "• Tarifvertrag: %s\n", schema.Label("tarif", v))
	}
	if v, ok := schema.AsString(flat["group"]); ok {
		fmt.Fprintf(&b, "• Entgeltgruppe: %s\n", strings.ToUpper(v))
	}
	if v, ok := schema.AsInt(flat["experience"]); ok {
		fmt.Fprintf(&b, "• Stufe: %d\n", v)
	}
	if v, ok := schema.AsFloat(flat["hours"]); ok {
		fmt.Fprintf(&b, "• Wochenstunden: %s\n", formatDecimal(v))
	}
	if v, ok := schema.AsString(flat["state"]); ok {
		fmt.Fprintf(&b, "• Bundesland: %s\n", schema.Label("state", v))
	}
	if v, ok := schema.AsInt(flat["tax_class"]); ok {
		fmt.Fprintf(&b, "• Steuerklasse: %d\n", v)
	}
	if v, ok := schema.AsBool(flat["church_tax"]); ok {
		if v {
			b.WriteString("• Kirchensteuer: Ja\n")
		} else {
			b.WriteString("• Kirchensteuer: Nein\n")
		}
	}
	if v, ok := schema.AsInt(flat["children"]); ok {
		fmt.Fprintf(&b, "• Kinder: %d\n", v)
	}

	b.WriteString("\nStimmt das so? Dann berechne ich Ihr Nettogehalt.")
	return b.String()
}

// renderResult turns the calculation output into the final reply.
func renderResult(r *calc.TaxResult) string {
	var b strings.Builder
	b.WriteString("Ihre Gehaltsberechnung ist fertig:\n\n")
	fmt.Fprintf(&b, "Brutto (monatlich): %s\n", formatEuro(r.GrossMonthly))
	fmt.Fprintf(&b, "Netto (monatlich): %s\n\n", formatEuro(r.Netto))
	b.WriteString("Abzüge im Monat:\n")
	fmt.Fprintf(&b, "• Lohnsteuer: %s\n", formatEuro(r.Taxes.IncomeTax))
	if r.Taxes.ChurchTax > 0 {
		fmt.Fprintf(&b, "• Kirchensteuer: %s\n", formatEuro(r.Taxes.ChurchTax))
	}
	if r.Taxes.Solidarity > 0 {
		fmt.Fprintf(&b, "• Solidaritätszuschlag: %s\n", formatEuro(r.Taxes.Solidarity))
	}
	fmt.Fprintf(&b, "• Rentenversicherung: %s\n", formatEuro(r.SocialSecurity.Pension))
	fmt.Fprintf(&b, "• Krankenversicherung: %s\n", formatEuro(r.SocialSecurity.Health))
	fmt.Fprintf(&b, "• Pflegeversicherung: %s\n", formatEuro(r.SocialSecurity.Care))
	fmt.Fprintf(&b, "• Arbeitslosenversicherung: %s\n", formatEuro(r.SocialSecurity.Unemployment))
	b.WriteString("\nAlle Angaben ohne Gewähr. Haben Sie noch Fragen zum Ergebnis?")
	return b.String()
}

// formatEuro renders a monetary amount in German notation, e.g. "3.556,00 €".
func formatEuro(v float64) string {
	cents := int64(v*100 + 0.5)
	whole := cents / 100
	frac := cents % 100
	return fmt.Sprintf("%s,%02d €", groupThousands(whole), frac)
}

// formatDecimal renders a number with a decimal comma, dropping a zero
// fraction, e.g. 38.5 -> "38,5" and 40 -> "40".
func formatDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	return strings.ReplaceAll(s, ".", ",")
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteString(".")
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
