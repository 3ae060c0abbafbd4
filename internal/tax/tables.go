package tax

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/provtax/backend/internal/model"
)

// SourceConfigured and SourceFallback tag where a computation's tables came
// from. Fallback results are flagged so callers can surface that the store
// held no tables for the year.
const (
	SourceConfigured = "configured"
	SourceFallback   = "fallback"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fallbackBrackets is the SARS individual table used for both the 2025 and
// 2026 years of assessment (the rates were unchanged between them).
func fallbackBrackets() []model.TaxBracket {
	max := func(s string) *decimal.Decimal { v := d(s); return &v }
	return []model.TaxBracket{
		{Order: 1, MinIncome: d("0"), MaxIncome: max("237100"), Rate: d("0.18"), BaseTax: d("0")},
		{Order: 2, MinIncome: d("237100"), MaxIncome: max("370500"), Rate: d("0.26"), BaseTax: d("42678")},
		{Order: 3, MinIncome: d("370500"), MaxIncome: max("512800"), Rate: d("0.31"), BaseTax: d("77362")},
		{Order: 4, MinIncome: d("512800"), MaxIncome: max("673000"), Rate: d("0.36"), BaseTax: d("121475")},
		{Order: 5, MinIncome: d("673000"), MaxIncome: max("857900"), Rate: d("0.39"), BaseTax: d("179147")},
		{Order: 6, MinIncome: d("857900"), MaxIncome: max("1817000"), Rate: d("0.41"), BaseTax: d("251258")},
		{Order: 7, MinIncome: d("1817000"), Rate: d("0.45"), BaseTax: d("644489")},
	}
}

func fallbackRebates() []model.TaxRebate {
	return []model.TaxRebate{
		{Type: "primary", MinAge: 0, Amount: d("17235")},
		{Type: "secondary", MinAge: 65, Amount: d("9444")},
		{Type: "tertiary", MinAge: 75, Amount: d("3145")},
	}
}

func fallbackMedicalCredits() []model.MedicalAidCredit {
	return []model.MedicalAidCredit{
		{Type: model.MedicalCreditMain, MonthlyAmount: d("364")},
		{Type: model.MedicalCreditFirstDependent, MonthlyAmount: d("246")},
		{Type: model.MedicalCreditAdditional, MonthlyAmount: d("246")},
	}
}

// FallbackTaxYear builds a complete table set for the given year of
// assessment from the compiled-in SARS figures. Only 2025 and 2026 carry
// verified figures; other years reuse the latest known table, which keeps
// the pipeline running but must be flagged to the user via the result's
// Source field.
func FallbackTaxYear(year int) *model.TaxYear {
	start, end := YearDates(year)
	return &model.TaxYear{
		Year:           year,
		Description:    "compiled-in SARS individual tables",
		StartDate:      start,
		EndDate:        end,
		Brackets:       fallbackBrackets(),
		Rebates:        fallbackRebates(),
		MedicalCredits: fallbackMedicalCredits(),
	}
}

// ResolveYear maps a calendar date to its SA year of assessment. The year
// named N runs from 1 March N-1 through end of February N.
func ResolveYear(t time.Time) int {
	if t.Month() >= time.March {
		return t.Year() + 1
	}
	return t.Year()
}

// YearDates returns the first and last day of the year of assessment.
func YearDates(year int) (start, end time.Time) {
	start = time.Date(year-1, time.March, 1, 0, 0, 0, 0, time.UTC)
	end = time.Date(year, time.March, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	return start, end
}
