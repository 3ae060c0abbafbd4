package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/provtax/backend/internal/model"
	"github.com/provtax/backend/internal/tax"
)

type seedCategory struct {
	name    string
	typ     model.CategoryType
	vat     model.VATRateType
	desc    string
	rules   []string
	regexes []string
}

// seedCategories is the starter catalogue. Rule patterns target Standard
// Bank statement descriptions; users refine them through the rules API.
var seedCategories = []seedCategory{
	{name: "Consulting Income", typ: model.CategoryIncome, vat: model.VATStandard,
		desc:  "Professional services invoiced locally",
		rules: []string{"INVOICE", "CONSULTING"}},
	{name: "Foreign Income", typ: model.CategoryIncome, vat: model.VATZeroRated,
		desc:  "Exported services, zero-rated for VAT",
		rules: []string{"TELETRANSMISSION INWARD", "FOREIGN PAYMENT", "SWIFT"}},
	{name: "Interest Income", typ: model.CategoryIncome, vat: model.VATExempt,
		rules: []string{"INTEREST CAPITALISED", "CREDIT INTEREST"}},

	{name: "Fees/Bank charges", typ: model.CategoryBusinessExpense, vat: model.VATStandard,
		rules: []string{"MONTHLY FEE", "SERVICE FEE", "ADMIN CHARGE", "#MONTHLY ACCOUNT FEE", "OVERDRAFT SERVICE FEE", "UCOUNT"}},
	{name: "Accounting", typ: model.CategoryBusinessExpense, vat: model.VATStandard,
		rules: []string{"SARS", "ACCOUNTANT", "TAXTIM"}},
	{name: "Software & Subscriptions", typ: model.CategoryBusinessExpense, vat: model.VATStandard,
		rules: []string{"GOOGLE", "MICROSOFT", "ADOBE", "GITHUB", "OPENAI", "SLACK", "ZOOM"}},
	{name: "Internet & Phone", typ: model.CategoryBusinessExpense, vat: model.VATStandard,
		rules: []string{"AFRIHOST", "VODACOM", "MTN", "TELKOM", "RAIN", "WEBAFRICA", "COOLIDEAS"}},
	{name: "Office Supplies", typ: model.CategoryBusinessExpense, vat: model.VATStandard,
		rules: []string{"WALTONS", "INCREDIBLE CONNECTION", "MAKRO"}},

	{name: "Groceries", typ: model.CategoryPersonalExpense, vat: model.VATStandard,
		rules: []string{"CHECKERS", "WOOLWORTHS", "PICK N PAY", "PNP", "SPAR", "FOOD LOVER"}},
	{name: "Dining & Takeaways", typ: model.CategoryPersonalExpense, vat: model.VATStandard,
		rules:   []string{"UBER EATS", "MR D FOOD", "KAUAI", "NANDOS", "STEERS"},
		regexes: []string{`RESTAURANT|CAFE|COFFEE`}},
	{name: "Fuel & Transport", typ: model.CategoryPersonalExpense, vat: model.VATStandard,
		rules: []string{"ENGEN", "SASOL", "SHELL", "BP ", "CALTEX", "TOTAL", "UBER", "BOLT"}},
	{name: "Medical", typ: model.CategoryPersonalExpense, vat: model.VATExempt,
		rules: []string{"DISCOVERY HEALTH", "DISCHEM", "DIS-CHEM", "CLICKS", "PATHCARE", "LANCET"}},
	{name: "Insurance", typ: model.CategoryPersonalExpense, vat: model.VATExempt,
		rules: []string{"OUTSURANCE", "SANTAM", "NAKED INSURANCE", "INSURANCE PREMIUM"}},
	{name: "Municipal", typ: model.CategoryPersonalExpense, vat: model.VATStandard,
		rules: []string{"CITY OF", "MUNICIPALITY", "ESKOM", "PREPAID ELECTRICITY"}},
	{name: "Maintenance", typ: model.CategoryPersonalExpense, vat: model.VATStandard,
		rules: []string{"BUILDERS WAREHOUSE", "BUILDERS EXPRESS", "CHAMBERLAIN"}},
	{name: "Interest (Mortgage)", typ: model.CategoryPersonalExpense, vat: model.VATExempt,
		rules: []string{"INTEREST DEBITED"}},
	{name: "Entertainment", typ: model.CategoryPersonalExpense, vat: model.VATStandard,
		rules: []string{"NETFLIX", "SPOTIFY", "SHOWMAX", "DSTV", "STEAM"}},

	{name: "Transfers (Excluded)", typ: model.CategoryExcluded, vat: model.VATNone,
		desc: "Movements between own accounts"},
	{name: "Bond Repayment", typ: model.CategoryExcluded, vat: model.VATNone,
		desc:  "Capital portion of the home loan instalment",
		rules: []string{"HOME LOAN INSTALMENT", "SB HOMEL"}},
	{name: "Credit Card Payment", typ: model.CategoryExcluded, vat: model.VATNone,
		rules: []string{"PAYMENT RECEIVED", "CREDIT CARD PAYMENT"}},
}

// Seed installs the starter categories, rules, VAT rate history, and tax
// tables into an empty store. It is a no-op when categories already exist.
func Seed(ctx context.Context, s Store) error {
	existing, err := s.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	for _, sc := range seedCategories {
		cat := &model.Category{
			Name:               sc.name,
			Type:               sc.typ,
			DefaultVATRateType: sc.vat,
			Description:        sc.desc,
		}
		if err := s.CreateCategory(ctx, cat); err != nil {
			return fmt.Errorf("seed category %s: %w", sc.name, err)
		}
		for _, p := range sc.rules {
			rule := &model.ExpenseRule{Pattern: p, CategoryID: cat.ID, Priority: 10, IsActive: true}
			if err := s.CreateRule(ctx, rule); err != nil {
				return fmt.Errorf("seed rule %q: %w", p, err)
			}
		}
		for _, p := range sc.regexes {
			rule := &model.ExpenseRule{Pattern: p, IsRegex: true, CategoryID: cat.ID, Priority: 5, IsActive: true}
			if err := s.CreateRule(ctx, rule); err != nil {
				return fmt.Errorf("seed rule %q: %w", p, err)
			}
		}
	}

	if err := seedVATRates(ctx, s); err != nil {
		return err
	}
	return seedTaxYears(ctx, s)
}

func seedVATRates(ctx context.Context, s Store) error {
	to := time.Date(2018, 3, 31, 0, 0, 0, 0, time.UTC)
	rates := []*model.VATRateConfig{
		{
			EffectiveFrom: time.Date(1993, 4, 1, 0, 0, 0, 0, time.UTC),
			EffectiveTo:   &to,
			StandardRate:  decimal.RequireFromString("0.14"),
			IsActive:      true,
			Notes:         "14% standard rate",
		},
		{
			EffectiveFrom: time.Date(2018, 4, 1, 0, 0, 0, 0, time.UTC),
			StandardRate:  decimal.RequireFromString("0.15"),
			IsActive:      true,
			Notes:         "15% standard rate from 1 April 2018",
		},
	}
	for _, r := range rates {
		if err := s.CreateVATRate(ctx, r); err != nil {
			return fmt.Errorf("seed vat rate: %w", err)
		}
	}
	return nil
}

func seedTaxYears(ctx context.Context, s Store) error {
	for _, year := range []int{2025, 2026} {
		if err := s.CreateTaxYear(ctx, tax.FallbackTaxYear(year)); err != nil {
			return fmt.Errorf("seed tax year %d: %w", year, err)
		}
	}
	return nil
}
