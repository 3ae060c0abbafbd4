package vat

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/provtax/backend/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func historicalRates() *RateTable {
	to := date(2018, 3, 31)
	return NewRateTable([]model.VATRateConfig{
		{
			ID:            "vat-14",
			EffectiveFrom: date(1993, 4, 1),
			EffectiveTo:   &to,
			StandardRate:  decimal.RequireFromString("0.14"),
			IsActive:      true,
		},
		{
			ID:            "vat-15",
			EffectiveFrom: date(2018, 4, 1),
			StandardRate:  decimal.RequireFromString("0.15"),
			IsActive:      true,
		},
	})
}

func TestRateOn(t *testing.T) {
	table := historicalRates()

	tests := []struct {
		name string
		d    time.Time
		want string
	}{
		{"mid old segment", date(2017, 6, 15), "0.14"},
		{"last day of old rate", date(2018, 3, 31), "0.14"},
		{"first day of new rate", date(2018, 4, 1), "0.15"},
		{"open-ended segment", date(2026, 1, 10), "0.15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.RateOn(tt.d)
			if err != nil {
				t.Fatalf("RateOn(%s) error: %v", tt.d.Format("2006-01-02"), err)
			}
			if got.String() != tt.want {
				t.Errorf("RateOn(%s) = %s, want %s", tt.d.Format("2006-01-02"), got, tt.want)
			}
		})
	}
}

func TestRateOnUncoveredDateFails(t *testing.T) {
	table := historicalRates()

	_, err := table.RateOn(date(1990, 1, 1))
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("RateOn before history = %v, want *ConfigurationError", err)
	}
}

func TestDecomposeInclusive(t *testing.T) {
	table := historicalRates()

	tx := &model.Transaction{
		Date:          date(2025, 6, 1),
		Amount:        decimal.RequireFromString("1150.00"),
		VATRateType:   model.VATStandard,
		AmountInclVAT: true,
	}
	b, err := Decompose(tx, table)
	if err != nil {
		t.Fatal(err)
	}
	if b.Exclusive.String() != "1000" {
		t.Errorf("Exclusive = %s, want 1000", b.Exclusive)
	}
	if b.VAT.String() != "150" {
		t.Errorf("VAT = %s, want 150", b.VAT)
	}
	if !b.Exclusive.Add(b.VAT).Equal(b.Inclusive) {
		t.Errorf("exclusive + vat = %s, want inclusive %s", b.Exclusive.Add(b.VAT), b.Inclusive)
	}
}

func TestDecomposeExclusive(t *testing.T) {
	table := historicalRates()

	tx := &model.Transaction{
		Date:        date(2025, 6, 1),
		Amount:      decimal.RequireFromString("1000.00"),
		VATRateType: model.VATStandard,
	}
	b, err := Decompose(tx, table)
	if err != nil {
		t.Fatal(err)
	}
	if b.VAT.String() != "150" {
		t.Errorf("VAT = %s, want 150", b.VAT)
	}
	if b.Inclusive.String() != "1150" {
		t.Errorf("Inclusive = %s, want 1150", b.Inclusive)
	}
}

func TestDecomposeZeroRated(t *testing.T) {
	table := historicalRates()

	tx := &model.Transaction{
		Date:          date(2025, 6, 1),
		Amount:        decimal.RequireFromString("100000.00"),
		VATRateType:   model.VATZeroRated,
		AmountInclVAT: true,
	}
	b, err := Decompose(tx, table)
	if err != nil {
		t.Fatal(err)
	}
	if !b.VAT.IsZero() {
		t.Errorf("VAT = %s, want 0 for zero-rated supply", b.VAT)
	}
	if !b.Included {
		t.Error("Included = false, want zero-rated supplies inside the totals")
	}
	if !b.Exclusive.Equal(tx.Amount) {
		t.Errorf("Exclusive = %s, want full amount %s", b.Exclusive, tx.Amount)
	}
}

func TestDecomposeNoVATExcluded(t *testing.T) {
	table := historicalRates()

	tx := &model.Transaction{
		Date:        date(2025, 6, 1),
		Amount:      decimal.RequireFromString("-8500.00"),
		VATRateType: model.VATNone,
	}
	b, err := Decompose(tx, table)
	if err != nil {
		t.Fatal(err)
	}
	if b.Included {
		t.Error("Included = true, want no_vat transactions excluded from totals")
	}
}

func TestDecomposeExplicitVATOverride(t *testing.T) {
	table := historicalRates()

	override := decimal.RequireFromString("120.00")
	tx := &model.Transaction{
		Date:          date(2025, 6, 1),
		Amount:        decimal.RequireFromString("1150.00"),
		VATRateType:   model.VATStandard,
		AmountInclVAT: true,
		VATAmount:     &override,
	}
	b, err := Decompose(tx, table)
	if err != nil {
		t.Fatal(err)
	}
	if b.VAT.String() != "120" {
		t.Errorf("VAT = %s, want explicit 120", b.VAT)
	}
	if b.Exclusive.String() != "1030" {
		t.Errorf("Exclusive = %s, want 1030", b.Exclusive)
	}
}

func TestDecomposeKeepsSign(t *testing.T) {
	table := historicalRates()

	tx := &model.Transaction{
		Date:          date(2025, 6, 1),
		Amount:        decimal.RequireFromString("-1150.00"),
		VATRateType:   model.VATStandard,
		AmountInclVAT: true,
	}
	b, err := Decompose(tx, table)
	if err != nil {
		t.Fatal(err)
	}
	if !b.VAT.IsNegative() {
		t.Errorf("VAT = %s, want a negative split for an outflow", b.VAT)
	}
}

func TestSummarize(t *testing.T) {
	table := historicalRates()
	categories := map[string]*model.Category{
		"cat-income":   {ID: "cat-income", Type: model.CategoryIncome},
		"cat-biz":      {ID: "cat-biz", Type: model.CategoryBusinessExpense},
		"cat-personal": {ID: "cat-personal", Type: model.CategoryPersonalExpense},
		"cat-excl":     {ID: "cat-excl", Type: model.CategoryExcluded},
	}
	inc, biz, personal, excl := "cat-income", "cat-biz", "cat-personal", "cat-excl"

	txs := []*model.Transaction{
		{ID: "t1", Date: date(2025, 4, 5), Amount: decimal.RequireFromString("11500.00"),
			CategoryID: &inc, VATRateType: model.VATStandard, AmountInclVAT: true},
		{ID: "t2", Date: date(2025, 4, 10), Amount: decimal.RequireFromString("-2300.00"),
			CategoryID: &biz, VATRateType: model.VATStandard, AmountInclVAT: true, VATClaimable: true},
		{ID: "t3", Date: date(2025, 4, 12), Amount: decimal.RequireFromString("-1150.00"),
			CategoryID: &personal, VATRateType: model.VATStandard, AmountInclVAT: true},
		// Outside the period.
		{ID: "t4", Date: date(2025, 7, 1), Amount: decimal.RequireFromString("11500.00"),
			CategoryID: &inc, VATRateType: model.VATStandard, AmountInclVAT: true},
		// Excluded category.
		{ID: "t5", Date: date(2025, 4, 20), Amount: decimal.RequireFromString("-9999.00"),
			CategoryID: &excl, VATRateType: model.VATNone},
		// Duplicate must not count.
		{ID: "t6", Date: date(2025, 4, 5), Amount: decimal.RequireFromString("11500.00"),
			CategoryID: &inc, VATRateType: model.VATStandard, AmountInclVAT: true, IsDuplicate: true},
	}

	s, err := Summarize(txs, categories, table, date(2025, 4, 1), date(2025, 6, 30))
	if err != nil {
		t.Fatal(err)
	}
	if s.OutputVAT.String() != "1500" {
		t.Errorf("OutputVAT = %s, want 1500", s.OutputVAT)
	}
	if s.InputVAT.String() != "300" {
		t.Errorf("InputVAT = %s, want 300", s.InputVAT)
	}
	if s.NetVAT.String() != "1200" {
		t.Errorf("NetVAT = %s, want 1200", s.NetVAT)
	}
	if s.NonClaimableVAT.String() != "150" {
		t.Errorf("NonClaimableVAT = %s, want 150 from the personal purchase", s.NonClaimableVAT)
	}
	if len(s.ByRate) != 1 || s.ByRate[0].Count != 3 {
		t.Errorf("ByRate = %+v, want one standard bucket with 3 transactions", s.ByRate)
	}
}

func TestSummarizeSideFollowsSign(t *testing.T) {
	table := historicalRates()
	biz, inc := "cat-biz", "cat-income"
	categories := map[string]*model.Category{
		biz: {ID: biz, Type: model.CategoryBusinessExpense},
		inc: {ID: inc, Type: model.CategoryIncome},
	}

	txs := []*model.Transaction{
		// A supplier refund is an inflow: output VAT, even though the
		// category is a claimable business expense.
		{ID: "t1", Date: date(2025, 4, 5), Amount: decimal.RequireFromString("1150.00"),
			CategoryID: &biz, VATRateType: model.VATStandard, AmountInclVAT: true, VATClaimable: true},
		// A credit note against income is an outflow and not claimable:
		// it must not inflate either side of the return.
		{ID: "t2", Date: date(2025, 4, 6), Amount: decimal.RequireFromString("-1150.00"),
			CategoryID: &inc, VATRateType: model.VATStandard, AmountInclVAT: true},
	}

	s, err := Summarize(txs, categories, table, date(2025, 4, 1), date(2025, 6, 30))
	if err != nil {
		t.Fatal(err)
	}
	if s.OutputVAT.String() != "150" {
		t.Errorf("OutputVAT = %s, want 150 from the refund inflow", s.OutputVAT)
	}
	if !s.InputVAT.IsZero() {
		t.Errorf("InputVAT = %s, want 0", s.InputVAT)
	}
	if s.NonClaimableVAT.String() != "150" {
		t.Errorf("NonClaimableVAT = %s, want 150 from the credit note", s.NonClaimableVAT)
	}
}

func TestSummarizeUncategorizedWithRateCounts(t *testing.T) {
	table := historicalRates()
	txs := []*model.Transaction{
		{ID: "t1", Date: date(2025, 4, 5), Amount: decimal.RequireFromString("1150.00"),
			VATRateType: model.VATStandard, AmountInclVAT: true},
	}

	s, err := Summarize(txs, map[string]*model.Category{}, table, date(2025, 4, 1), date(2025, 6, 30))
	if err != nil {
		t.Fatal(err)
	}
	if s.OutputVAT.String() != "150" {
		t.Errorf("OutputVAT = %s, want 150 from the uncategorized inflow", s.OutputVAT)
	}
}

func TestSummarizeMissingRateFails(t *testing.T) {
	table := NewRateTable(nil)
	inc := "cat-income"
	categories := map[string]*model.Category{inc: {ID: inc, Type: model.CategoryIncome}}
	txs := []*model.Transaction{
		{ID: "t1", Date: date(2025, 4, 5), Amount: decimal.RequireFromString("100.00"),
			CategoryID: &inc, VATRateType: model.VATStandard},
	}

	_, err := Summarize(txs, categories, table, date(2025, 4, 1), date(2025, 6, 30))
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Summarize with empty rate table = %v, want *ConfigurationError", err)
	}
}
