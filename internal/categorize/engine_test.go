package categorize

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/provtax/backend/internal/model"
)

func testCategories() []*model.Category {
	return []*model.Category{
		{ID: "cat-income", Name: "Consulting Income", Type: model.CategoryIncome, DefaultVATRateType: model.VATStandard},
		{ID: "cat-fees", Name: "Fees/Bank charges", Type: model.CategoryBusinessExpense, DefaultVATRateType: model.VATStandard},
		{ID: "cat-transfer", Name: "Transfers (Excluded)", Type: model.CategoryExcluded, DefaultVATRateType: model.VATNone},
		{ID: "cat-groceries", Name: "Groceries", Type: model.CategoryPersonalExpense, DefaultVATRateType: model.VATStandard},
		{ID: "cat-software", Name: "Software", Type: model.CategoryBusinessExpense, DefaultVATRateType: model.VATStandard},
	}
}

func tx(desc string, amount string) *model.Transaction {
	return &model.Transaction{
		ID:          "t1",
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
	}
}

func TestApplyRulePriorityOrder(t *testing.T) {
	rules := []model.ExpenseRule{
		{ID: "r1", Pattern: "CHECKERS", CategoryID: "cat-groceries", Priority: 10, IsActive: true},
		{ID: "r2", Pattern: "CHECKERS SIXTY60", CategoryID: "cat-software", Priority: 50, IsActive: true},
	}
	e := NewEngine(rules, testCategories())

	got := tx("CHECKERS SIXTY60 SANDTON", "-340.00")
	if !e.Apply(got, false) {
		t.Fatal("Apply() = false, want a change")
	}
	if got.CategoryID == nil || *got.CategoryID != "cat-software" {
		t.Errorf("CategoryID = %v, want cat-software (higher priority rule)", got.CategoryID)
	}
}

func TestApplyPriorityTieBreaksOnID(t *testing.T) {
	rules := []model.ExpenseRule{
		{ID: "r9", Pattern: "WOOLWORTHS", CategoryID: "cat-software", Priority: 10, IsActive: true},
		{ID: "r1", Pattern: "WOOLWORTHS", CategoryID: "cat-groceries", Priority: 10, IsActive: true},
	}
	e := NewEngine(rules, testCategories())

	got := tx("WOOLWORTHS SANDTON", "-210.00")
	e.Apply(got, false)
	if got.CategoryID == nil || *got.CategoryID != "cat-groceries" {
		t.Errorf("CategoryID = %v, want cat-groceries (lowest rule ID wins ties)", got.CategoryID)
	}
}

func TestApplyInactiveRuleSkipped(t *testing.T) {
	rules := []model.ExpenseRule{
		{ID: "r1", Pattern: "NETFLIX", CategoryID: "cat-software", Priority: 10, IsActive: false},
	}
	e := NewEngine(rules, testCategories())

	got := tx("NETFLIX.COM", "-199.00")
	if e.Apply(got, false) {
		t.Fatal("Apply() changed a transaction using an inactive rule")
	}
	if got.CategoryID != nil {
		t.Errorf("CategoryID = %v, want nil", got.CategoryID)
	}
}

func TestApplyRegexRule(t *testing.T) {
	rules := []model.ExpenseRule{
		{ID: "r1", Pattern: `UBER\s*(EATS)?`, IsRegex: true, CategoryID: "cat-groceries", Priority: 10, IsActive: true},
	}
	e := NewEngine(rules, testCategories())

	got := tx("uber eats Midrand", "-145.50")
	e.Apply(got, false)
	if got.CategoryID == nil || *got.CategoryID != "cat-groceries" {
		t.Errorf("CategoryID = %v, want cat-groceries (case-insensitive regex)", got.CategoryID)
	}
}

func TestApplyInvalidRegexWarnsAndContinues(t *testing.T) {
	rules := []model.ExpenseRule{
		{ID: "r1", Pattern: `([unclosed`, IsRegex: true, CategoryID: "cat-software", Priority: 90, IsActive: true},
		{ID: "r2", Pattern: "SPOTIFY", CategoryID: "cat-groceries", Priority: 10, IsActive: true},
	}
	e := NewEngine(rules, testCategories())

	got := tx("SPOTIFY PREMIUM", "-60.00")
	e.Apply(got, false)
	if got.CategoryID == nil || *got.CategoryID != "cat-groceries" {
		t.Errorf("CategoryID = %v, want cat-groceries past the broken rule", got.CategoryID)
	}
	if len(e.Warnings()) == 0 {
		t.Error("Warnings() is empty, want an invalid-pattern diagnostic")
	}
}

func TestApplyTransferBeatsRules(t *testing.T) {
	rules := []model.ExpenseRule{
		{ID: "r1", Pattern: "TRANSFER", CategoryID: "cat-income", Priority: 100, IsActive: true},
	}
	e := NewEngine(rules, testCategories())

	got := tx("IB TRANSFER FROM SAVINGS", "5000.00")
	e.Apply(got, false)
	if got.CategoryID == nil || *got.CategoryID != "cat-transfer" {
		t.Errorf("CategoryID = %v, want cat-transfer before any rule", got.CategoryID)
	}
	if got.VATRateType != model.VATNone {
		t.Errorf("VATRateType = %q, want no_vat from the transfer category default", got.VATRateType)
	}
}

func TestApplyTransmissionFeeNotIncome(t *testing.T) {
	rules := []model.ExpenseRule{
		{ID: "r1", Pattern: "ACME CORP", CategoryID: "cat-income", Priority: 100, IsActive: true},
	}
	e := NewEngine(rules, testCategories())

	got := tx("FEE:TELETRANSMISSION ACME CORP", "-450.00")
	e.Apply(got, false)
	if got.CategoryID == nil || *got.CategoryID != "cat-fees" {
		t.Errorf("CategoryID = %v, want cat-fees for the wire fee line", got.CategoryID)
	}
	if !got.VATClaimable {
		t.Error("VATClaimable = false, want true for a business expense category")
	}
}

func TestApplyMixedMerchantFlagsSplit(t *testing.T) {
	e := NewEngine(nil, testCategories())

	got := tx("TAKEALOT ONLINE", "-1899.00")
	if !e.Apply(got, false) {
		t.Fatal("Apply() = false, want NeedsSplit change")
	}
	if got.CategoryID != nil {
		t.Errorf("CategoryID = %v, want nil for a mixed merchant", got.CategoryID)
	}
	if !got.NeedsSplit {
		t.Error("NeedsSplit = false, want true")
	}
}

func TestApplyManualSurvivesRerun(t *testing.T) {
	rules := []model.ExpenseRule{
		{ID: "r1", Pattern: "CHECKERS", CategoryID: "cat-groceries", Priority: 10, IsActive: true},
	}
	e := NewEngine(rules, testCategories())

	manual := "cat-software"
	got := tx("CHECKERS HYPER", "-500.00")
	got.CategoryID = &manual
	got.IsManual = true
	got.VATRateType = model.VATStandard

	if e.Apply(got, false) {
		t.Error("Apply() overrode a manual categorization without force")
	}
	if !e.Apply(got, true) {
		t.Error("Apply(force) = false, want the rule to reclaim the transaction")
	}
	if *got.CategoryID != "cat-groceries" {
		t.Errorf("CategoryID = %q after force, want cat-groceries", *got.CategoryID)
	}
}

func TestApplyIdempotent(t *testing.T) {
	rules := []model.ExpenseRule{
		{ID: "r1", Pattern: "CHECKERS", CategoryID: "cat-groceries", Priority: 10, IsActive: true},
	}
	e := NewEngine(rules, testCategories())

	got := tx("CHECKERS HYPER", "-500.00")
	if !e.Apply(got, false) {
		t.Fatal("first Apply() = false, want a change")
	}
	if e.Apply(got, false) {
		t.Error("second Apply() = true, want no further changes")
	}
}

func TestApplyKeepsExplicitVAT(t *testing.T) {
	rules := []model.ExpenseRule{
		{ID: "r1", Pattern: "CHECKERS", CategoryID: "cat-groceries", Priority: 10, IsActive: true},
	}
	e := NewEngine(rules, testCategories())

	got := tx("CHECKERS HYPER", "-500.00")
	got.VATRateType = model.VATZeroRated
	e.Apply(got, false)
	if got.VATRateType != model.VATZeroRated {
		t.Errorf("VATRateType = %q, want explicit zero rating preserved", got.VATRateType)
	}
}

func TestIsTransmissionFee(t *testing.T) {
	tests := []struct {
		desc string
		want bool
	}{
		{"FEE:TELETRANSMISSION ACME", true},
		{"fee teletransmission", true},
		{"TELETRANSMISSION INWARD ACME", false},
		{"MONTHLY SERVICE FEE", false},
	}
	for _, tt := range tests {
		if got := IsTransmissionFee(tt.desc); got != tt.want {
			t.Errorf("IsTransmissionFee(%q) = %v, want %v", tt.desc, got, tt.want)
		}
	}
}
