// Package calc computes the deterministic net-salary result at the end of
// the interview. It is a pure function of its input: no oracle, no state,
// same input always yields the same output.
//
// The payroll math is the simplified statutory model (progressive income tax
// zones, church tax by state, employee shares of social security). It is not
// a Lohnsteuer reference implementation; precision beyond whole-euro
// guidance is out of scope.
package calc

import (
	"fmt"
	"math"
)

// SalaryInput is the canonical form state mapped into the engine.
type SalaryInput struct {
	Tarif     string
	Group     string
	Stufe     int
	Hours     float64
	State     string
	TaxClass  int
	ChurchTax bool
	Children  int
}

type Taxes struct {
	IncomeTax  float64 `json:"income_tax"`
	ChurchTax  float64 `json:"church_tax"`
	Solidarity float64 `json:"solidarity"`
}

type SocialSecurity struct {
	Pension      float64 `json:"pension"`
	Unemployment float64 `json:"unemployment"`
	Health       float64 `json:"health"`
	Care         float64 `json:"care"`
}

// TaxResult is the monthly breakdown returned to the interview.
type TaxResult struct {
	GrossMonthly   float64        `json:"gross_monthly"`
	Netto          float64        `json:"netto"`
	Taxes          Taxes          `json:"taxes"`
	SocialSecurity SocialSecurity `json:"social_security"`
}

// Engine is the calculation contract the interview consumes.
type Engine interface {
	Calculate(input SalaryInput) (*TaxResult, error)
}

const fullTimeHours = 38.5

// 2025 parameters.
const (
	basicAllowance   = 12096.0 // Grundfreibetrag, annual
	childAllowance   = 9600.0  // Kinderfreibetrag incl. care component, annual
	soliThreshold    = 19950.0 // annual income tax below which no Soli is due
	pensionRate      = 0.093
	unemploymentRate = 0.013
	healthRate       = 0.073 + 0.0125 // base + half average additional rate
	careRate         = 0.018
	careChildless    = 0.006
	carePerChild     = 0.0025
	bbgPensionMonth  = 8050.0 // contribution ceiling, pension/unemployment
	bbgHealthMonth   = 5512.5 // contribution ceiling, health/care
)

type TaxEngine struct {
	tariffs TariffSource
}

func NewTaxEngine(tariffs TariffSource) *TaxEngine {
	return &TaxEngine{tariffs: tariffs}
}

func (e *TaxEngine) Calculate(input SalaryInput) (*TaxResult, error) {
	if err := checkInput(input); err != nil {
		return nil, err
	}

	fullTime, err := e.tariffs.GrossSalary(input.Tarif, input.Group, input.Stufe)
	if err != nil {
		return nil, err
	}
	gross := fullTime * input.Hours / fullTimeHours

	incomeTax := annualIncomeTax(gross*12, input.TaxClass) / 12

	var soli float64
	if incomeTax*12 > soliThreshold {
		soli = incomeTax * 0.055
	}

	var church float64
	if input.ChurchTax {
		// The church tax base is reduced by the child allowance.
		churchBase := annualIncomeTax(gross*12-float64(input.Children)*childAllowance, input.TaxClass) / 12
		church = churchBase * churchTaxRate(input.State)
	}

	pensionBase := math.Min(gross, bbgPensionMonth)
	healthBase := math.Min(gross, bbgHealthMonth)
	social := SocialSecurity{
		Pension:      round2(pensionBase * pensionRate),
		Unemployment: round2(pensionBase * unemploymentRate),
		Health:       round2(healthBase * healthRate),
		Care:         round2(healthBase * careEmployeeRate(input)),
	}

	netto := gross - incomeTax - soli - church -
		social.Pension - social.Unemployment - social.Health - social.Care

	return &TaxResult{
		GrossMonthly: round2(gross),
		Netto:        round2(netto),
		Taxes: Taxes{
			IncomeTax:  round2(incomeTax),
			ChurchTax:  round2(church),
			Solidarity: round2(soli),
		},
		SocialSecurity: social,
	}, nil
}

func checkInput(input SalaryInput) error {
	if input.Hours <= 0 || input.Hours > 48 {
		return fmt.Errorf("hours %v out of range", input.Hours)
	}
	if input.TaxClass < 1 || input.TaxClass > 6 {
		return fmt.Errorf("tax class %d out of range", input.TaxClass)
	}
	if input.Children < 0 {
		return fmt.Errorf("negative child count")
	}
	return nil
}

// annualIncomeTax applies the §32a progression zones to annual gross,
// shifting the basic allowance per tax class: class 3 doubles it, classes 5
// and 6 forgo it.
func annualIncomeTax(annualGross float64, taxClass int) float64 {
	taxable := annualGross
	switch taxClass {
	case 3:
		taxable -= basicAllowance
	case 5, 6:
		taxable += basicAllowance
	}
	if taxable < 0 {
		taxable = 0
	}

	zvE := taxable
	var tax float64
	switch {
	case zvE <= basicAllowance:
		tax = 0
	case zvE <= 17443:
		y := (zvE - basicAllowance) / 10000
		tax = (932.3*y + 1400) * y
	case zvE <= 68480:
		z := (zvE - 17443) / 10000
		tax = (176.64*z+2397)*z + 1015.13
	case zvE <= 277825:
		tax = 0.42*zvE - 10911.92
	default:
		tax = 0.45*zvE - 19246.67
	}
	if tax < 0 {
		tax = 0
	}
	return tax
}

// churchTaxRate is 8% in Bavaria and Baden-Württemberg, 9% elsewhere.
func churchTaxRate(state string) float64 {
	switch state {
	case "bayern", "baden-wuerttemberg":
		return 0.08
	default:
		return 0.09
	}
}

// careEmployeeRate is the employee share of long-term care insurance:
// childless employees pay a surcharge, parents get a per-child discount
// (children 2-5), and Saxony shifts half a point onto employees.
func careEmployeeRate(input SalaryInput) float64 {
	rate := careRate
	if input.Children == 0 {
		rate += careChildless
	} else if input.Children > 1 {
		discounted := input.Children - 1
		if discounted > 4 {
			discounted = 4
		}
		rate -= carePerChild * float64(discounted)
	}
	if input.State == "sachsen" {
		rate += 0.005
	}
	return rate
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
