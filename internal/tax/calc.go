// Package tax computes South African individual income tax from the
// progressive bracket tables, including age rebates, medical scheme
// credits, and provisional payment estimates mid-year.
package tax

import (
	"github.com/shopspring/decimal"

	"github.com/provtax/backend/internal/model"
)

var twelve = decimal.NewFromInt(12)

// AnnualInput is one full-year liability computation request.
type AnnualInput struct {
	GrossIncome decimal.Decimal
	Deductions  decimal.Decimal
	Age         int
	// MedicalAidMembers counts everyone on the scheme, main member
	// included. Zero means no medical aid.
	MedicalAidMembers int
}

// AnnualResult is the full liability breakdown for one year of assessment.
type AnnualResult struct {
	Year          int             `json:"year"`
	TablesSource  string          `json:"tables_source"`
	TaxableIncome decimal.Decimal `json:"taxable_income"`

	BracketOrder     int             `json:"bracket_order"`
	MarginalRate     decimal.Decimal `json:"marginal_rate"`
	TaxBeforeRebates decimal.Decimal `json:"tax_before_rebates"`
	Rebates          decimal.Decimal `json:"rebates"`
	MedicalCredits   decimal.Decimal `json:"medical_credits"`
	TaxPayable       decimal.Decimal `json:"tax_payable"`
	EffectiveRate    decimal.Decimal `json:"effective_rate"`
}

// Annual computes the year's liability against the given table set.
// Rebates and credits can only reduce tax to zero, never below.
func Annual(year *model.TaxYear, source string, in AnnualInput) AnnualResult {
	res := AnnualResult{Year: year.Year, TablesSource: source}

	res.TaxableIncome = in.GrossIncome.Sub(in.Deductions)
	if res.TaxableIncome.IsNegative() {
		res.TaxableIncome = decimal.Zero
	}

	bracket := bracketFor(year.Brackets, res.TaxableIncome)
	res.BracketOrder = bracket.Order
	res.MarginalRate = bracket.Rate
	res.TaxBeforeRebates = bracket.BaseTax.Add(
		res.TaxableIncome.Sub(bracket.MinIncome).Mul(bracket.Rate)).Round(2)

	for _, r := range year.Rebates {
		if in.Age >= r.MinAge {
			res.Rebates = res.Rebates.Add(r.Amount)
		}
	}
	res.MedicalCredits = medicalCredits(year.MedicalCredits, in.MedicalAidMembers)

	res.TaxPayable = res.TaxBeforeRebates.Sub(res.Rebates).Sub(res.MedicalCredits)
	if res.TaxPayable.IsNegative() {
		res.TaxPayable = decimal.Zero
	}
	if res.TaxableIncome.IsPositive() {
		res.EffectiveRate = res.TaxPayable.Div(res.TaxableIncome).Round(4)
	}
	return res
}

// bracketFor picks the band containing income. Brackets are ordered
// ascending; the last band is open-ended so a match always exists.
func bracketFor(brackets []model.TaxBracket, income decimal.Decimal) model.TaxBracket {
	for _, b := range brackets {
		if income.GreaterThanOrEqual(b.MinIncome) && (b.MaxIncome == nil || income.LessThanOrEqual(*b.MaxIncome)) {
			return b
		}
	}
	return brackets[len(brackets)-1]
}

// medicalCredits converts the monthly credit tiers into an annual amount:
// main-member tier for the first member, first-dependent tier for the
// second, additional tier for each after that.
func medicalCredits(tiers []model.MedicalAidCredit, members int) decimal.Decimal {
	if members <= 0 {
		return decimal.Zero
	}
	byType := make(map[string]decimal.Decimal, len(tiers))
	for _, t := range tiers {
		byType[t.Type] = t.MonthlyAmount
	}

	monthly := byType[model.MedicalCreditMain]
	if members >= 2 {
		monthly = monthly.Add(byType[model.MedicalCreditFirstDependent])
	}
	if members > 2 {
		extra := decimal.NewFromInt(int64(members - 2))
		monthly = monthly.Add(byType[model.MedicalCreditAdditional].Mul(extra))
	}
	return monthly.Mul(twelve)
}

// ProvisionalInput estimates a provisional payment from a partial year.
type ProvisionalInput struct {
	// PeriodNet is net profit accumulated over MonthsElapsed months of
	// the year of assessment.
	PeriodNet     decimal.Decimal
	MonthsElapsed int

	Age               int
	MedicalAidMembers int

	// PriorPayments is provisional tax already paid this year.
	PriorPayments decimal.Decimal
}

// ProvisionalResult is a mid-year payment estimate. AmountDue is the
// period's share of the annualized liability less payments already made,
// floored at zero.
type ProvisionalResult struct {
	Annualized      decimal.Decimal `json:"annualized_income"`
	Annual          AnnualResult    `json:"annual"`
	MonthsElapsed   int             `json:"months_elapsed"`
	PeriodLiability decimal.Decimal `json:"period_liability"`
	PriorPayments   decimal.Decimal `json:"prior_payments"`
	AmountDue       decimal.Decimal `json:"amount_due"`
}

// Provisional annualizes the period's net profit, computes the full-year
// liability, and scales it back to the elapsed fraction of the year.
func Provisional(year *model.TaxYear, source string, in ProvisionalInput) ProvisionalResult {
	months := in.MonthsElapsed
	if months < 1 {
		months = 1
	}
	if months > 12 {
		months = 12
	}
	m := decimal.NewFromInt(int64(months))

	res := ProvisionalResult{MonthsElapsed: months, PriorPayments: in.PriorPayments}
	res.Annualized = in.PeriodNet.Div(m).Mul(twelve).Round(2)
	if res.Annualized.IsNegative() {
		res.Annualized = decimal.Zero
	}

	res.Annual = Annual(year, source, AnnualInput{
		GrossIncome:       res.Annualized,
		Age:               in.Age,
		MedicalAidMembers: in.MedicalAidMembers,
	})

	res.PeriodLiability = res.Annual.TaxPayable.Mul(m).Div(twelve).Round(2)
	res.AmountDue = res.PeriodLiability.Sub(in.PriorPayments)
	if res.AmountDue.IsNegative() {
		res.AmountDue = decimal.Zero
	}
	return res
}
