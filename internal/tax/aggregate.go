package tax

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/provtax/backend/internal/model"
)

// HomeOffice apportions qualifying household running costs to the business
// by floor area. Zero-value fields fall back to the defaults.
type HomeOffice struct {
	OfficeArea decimal.Decimal
	TotalArea  decimal.Decimal
	// Categories names the household cost categories eligible for
	// apportionment.
	Categories []string
}

// Default home-office floor areas in square metres.
var (
	DefaultOfficeArea = d("22")
	DefaultTotalArea  = d("268")
)

// defaultHomeOfficeCategories qualify for floor-area apportionment under
// the home-office rules.
var defaultHomeOfficeCategories = []string{
	"Interest (Mortgage)",
	"Maintenance",
	"Municipal",
	"Insurance",
}

func (h HomeOffice) fraction() decimal.Decimal {
	office, total := h.OfficeArea, h.TotalArea
	if office.IsZero() {
		office = DefaultOfficeArea
	}
	if total.IsZero() {
		total = DefaultTotalArea
	}
	return office.Div(total)
}

func (h HomeOffice) categories() map[string]bool {
	names := h.Categories
	if len(names) == 0 {
		names = defaultHomeOfficeCategories
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// CategoryTotal is one category's contribution to the period aggregate.
type CategoryTotal struct {
	CategoryID   string             `json:"category_id"`
	CategoryName string             `json:"category_name"`
	Type         model.CategoryType `json:"type"`
	Total        decimal.Decimal    `json:"total"`
	Count        int                `json:"count"`
}

// PeriodAggregate is the income statement derived from categorized
// transactions over a date range. Expense totals are positive values.
type PeriodAggregate struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	GrossIncome         decimal.Decimal `json:"gross_income"`
	BusinessExpenses    decimal.Decimal `json:"business_expenses"`
	HomeOfficeDeduction decimal.Decimal `json:"home_office_deduction"`
	PersonalExpenses    decimal.Decimal `json:"personal_expenses"`
	Uncategorized       decimal.Decimal `json:"uncategorized"`
	NetProfit           decimal.Decimal `json:"net_profit"`

	ByCategory    []CategoryTotal `json:"by_category"`
	MonthsElapsed int             `json:"months_elapsed"`
}

// Aggregate folds the effective transactions in [start, end] into the
// period's income statement. Uncategorized spend is treated as personal:
// nothing enters the deduction side without an explicit category. Excluded
// categories are skipped entirely. Household cost categories in the
// home-office set are apportioned by floor area into the deduction.
func Aggregate(txs []*model.Transaction, categories map[string]*model.Category, start, end time.Time, ho HomeOffice) *PeriodAggregate {
	agg := &PeriodAggregate{Start: start, End: end, MonthsElapsed: monthsBetween(start, end)}
	fraction := ho.fraction()
	hoSet := ho.categories()
	totals := make(map[string]*CategoryTotal)

	for _, tx := range txs {
		if !tx.Effective() {
			continue
		}
		if tx.Date.Before(start) || tx.Date.After(end) {
			continue
		}

		var cat *model.Category
		if tx.CategoryID != nil {
			cat = categories[*tx.CategoryID]
		}
		if cat == nil {
			agg.Uncategorized = agg.Uncategorized.Add(tx.Amount.Abs())
			if tx.Amount.IsNegative() {
				agg.PersonalExpenses = agg.PersonalExpenses.Add(tx.Amount.Abs())
			}
			continue
		}
		if cat.ExcludedFromTax() {
			continue
		}

		ct := totals[cat.ID]
		if ct == nil {
			ct = &CategoryTotal{CategoryID: cat.ID, CategoryName: cat.Name, Type: cat.Type}
			totals[cat.ID] = ct
		}
		ct.Total = ct.Total.Add(tx.Amount.Abs())
		ct.Count++

		switch cat.Type {
		case model.CategoryIncome:
			agg.GrossIncome = agg.GrossIncome.Add(tx.Amount.Abs())
		case model.CategoryBusinessExpense:
			agg.BusinessExpenses = agg.BusinessExpenses.Add(tx.Amount.Abs())
		case model.CategoryPersonalExpense:
			amount := tx.Amount.Abs()
			if hoSet[cat.Name] {
				portion := amount.Mul(fraction).Round(2)
				agg.HomeOfficeDeduction = agg.HomeOfficeDeduction.Add(portion)
				amount = amount.Sub(portion)
			}
			agg.PersonalExpenses = agg.PersonalExpenses.Add(amount)
		}
	}

	agg.NetProfit = agg.GrossIncome.Sub(agg.BusinessExpenses).Sub(agg.HomeOfficeDeduction)

	for _, ct := range totals {
		agg.ByCategory = append(agg.ByCategory, *ct)
	}
	sort.Slice(agg.ByCategory, func(i, j int) bool {
		return agg.ByCategory[i].CategoryName < agg.ByCategory[j].CategoryName
	})
	return agg
}

// monthsBetween counts calendar months touched by [start, end], clamped
// to at least one.
func monthsBetween(start, end time.Time) int {
	if end.Before(start) {
		return 1
	}
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month()) + 1
	if months < 1 {
		months = 1
	}
	if months > 12 {
		months = 12
	}
	return months
}
