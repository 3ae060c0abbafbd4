package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/provtax/backend/internal/model"
	"github.com/provtax/backend/internal/store"
	"github.com/provtax/backend/internal/tax"
	"github.com/provtax/backend/internal/vat"
)

// ReportService produces the monthly, VAT, and provisional tax views plus
// the CSV export.
type ReportService struct {
	store store.Store
	log   zerolog.Logger
}

// NewReportService creates a report service over the given store.
func NewReportService(s store.Store, log zerolog.Logger) *ReportService {
	return &ReportService{store: s, log: log.With().Str("component", "reports").Logger()}
}

// MonthSummary is one calendar month inside the monthly report.
type MonthSummary struct {
	Month      string              `json:"month"`
	Income     decimal.Decimal     `json:"income"`
	Expenses   decimal.Decimal     `json:"expenses"`
	Net        decimal.Decimal     `json:"net"`
	ByCategory []tax.CategoryTotal `json:"by_category"`
}

// Monthly groups effective transactions by calendar month. Excluded
// categories stay out; uncategorized spend counts as an expense so the
// report never understates outflows.
func (s *ReportService) Monthly(ctx context.Context, accountID string, from, to time.Time) ([]MonthSummary, error) {
	txs, err := s.store.ListTransactions(ctx, store.TransactionFilter{
		AccountID: accountID,
		From:      &from,
		To:        &to,
	})
	if err != nil {
		return nil, err
	}
	categories, err := s.categoryIndex(ctx)
	if err != nil {
		return nil, err
	}

	type monthAcc struct {
		income, expenses decimal.Decimal
		byCategory       map[string]*tax.CategoryTotal
	}
	months := make(map[string]*monthAcc)

	for _, t := range txs {
		var cat *model.Category
		if t.CategoryID != nil {
			cat = categories[*t.CategoryID]
		}
		if cat != nil && cat.ExcludedFromTax() {
			continue
		}

		key := t.Date.Format("2006-01")
		acc := months[key]
		if acc == nil {
			acc = &monthAcc{byCategory: make(map[string]*tax.CategoryTotal)}
			months[key] = acc
		}

		amount := t.Amount.Abs()
		if cat != nil && cat.Type == model.CategoryIncome {
			acc.income = acc.income.Add(amount)
		} else if t.Amount.IsNegative() {
			acc.expenses = acc.expenses.Add(amount)
		} else {
			// Uncategorized inflows sit on the income side so the
			// month nets out until a category corrects them.
			acc.income = acc.income.Add(amount)
		}

		ctKey, ctName, ctType := "uncategorized", "Uncategorized", model.CategoryPersonalExpense
		if cat != nil {
			ctKey, ctName, ctType = cat.ID, cat.Name, cat.Type
		}
		ct := acc.byCategory[ctKey]
		if ct == nil {
			ct = &tax.CategoryTotal{CategoryID: ctKey, CategoryName: ctName, Type: ctType}
			acc.byCategory[ctKey] = ct
		}
		ct.Total = ct.Total.Add(amount)
		ct.Count++
	}

	out := make([]MonthSummary, 0, len(months))
	for key, acc := range months {
		ms := MonthSummary{
			Month:    key,
			Income:   acc.income,
			Expenses: acc.expenses,
			Net:      acc.income.Sub(acc.expenses),
		}
		for _, ct := range acc.byCategory {
			ms.ByCategory = append(ms.ByCategory, *ct)
		}
		sort.Slice(ms.ByCategory, func(i, j int) bool {
			return ms.ByCategory[i].CategoryName < ms.ByCategory[j].CategoryName
		})
		out = append(out, ms)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

// VATPeriod computes the VAT position for a filing period.
func (s *ReportService) VATPeriod(ctx context.Context, from, to time.Time) (*vat.PeriodSummary, error) {
	txs, err := s.store.ListTransactions(ctx, store.TransactionFilter{From: &from, To: &to})
	if err != nil {
		return nil, err
	}
	categories, err := s.categoryIndex(ctx)
	if err != nil {
		return nil, err
	}
	table, err := s.rateTable(ctx)
	if err != nil {
		return nil, err
	}
	return vat.Summarize(txs, categories, table, from, to)
}

// ProvisionalRequest parameterizes a provisional tax estimate.
type ProvisionalRequest struct {
	// Year is the year of assessment; zero resolves from AsOf.
	Year int `json:"year"`
	// AsOf bounds the income period; zero means today.
	AsOf              time.Time       `json:"as_of"`
	Age               int             `json:"age" validate:"gte=0,lte=130"`
	MedicalAidMembers int             `json:"medical_aid_members" validate:"gte=0"`
	PriorPayments     decimal.Decimal `json:"prior_payments"`

	HomeOffice tax.HomeOffice `json:"-"`
}

// ProvisionalReport bundles the aggregate the estimate was computed from
// with the estimate itself.
type ProvisionalReport struct {
	Aggregate   *tax.PeriodAggregate  `json:"aggregate"`
	Provisional tax.ProvisionalResult `json:"provisional"`
}

// Provisional aggregates the year-to-date income statement and estimates
// the provisional payment due. Tables come from the store; when the year
// is not configured the compiled-in fallback is used and the result is
// tagged accordingly.
func (s *ReportService) Provisional(ctx context.Context, req ProvisionalRequest) (*ProvisionalReport, error) {
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	year := req.Year
	if year == 0 {
		year = tax.ResolveYear(asOf)
	}
	start, end := tax.YearDates(year)
	if asOf.Before(start) {
		return nil, model.Validationf("as_of", "precedes the start of the year of assessment")
	}
	if asOf.Before(end) {
		end = asOf
	}

	txs, err := s.store.ListTransactions(ctx, store.TransactionFilter{From: &start, To: &end})
	if err != nil {
		return nil, err
	}
	categories, err := s.categoryIndex(ctx)
	if err != nil {
		return nil, err
	}
	agg := tax.Aggregate(txs, categories, start, end, req.HomeOffice)

	tables, source, err := s.taxTables(ctx, year)
	if err != nil {
		return nil, err
	}

	prov := tax.Provisional(tables, source, tax.ProvisionalInput{
		PeriodNet:         agg.NetProfit,
		MonthsElapsed:     agg.MonthsElapsed,
		Age:               req.Age,
		MedicalAidMembers: req.MedicalAidMembers,
		PriorPayments:     req.PriorPayments,
	})
	return &ProvisionalReport{Aggregate: agg, Provisional: prov}, nil
}

// ExportCSV streams effective transactions for the period as CSV, one row
// per transaction with its category and VAT decomposition.
func (s *ReportService) ExportCSV(ctx context.Context, w io.Writer, from, to time.Time) error {
	txs, err := s.store.ListTransactions(ctx, store.TransactionFilter{From: &from, To: &to})
	if err != nil {
		return err
	}
	categories, err := s.categoryIndex(ctx)
	if err != nil {
		return err
	}
	table, err := s.rateTable(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"date", "account_id", "description", "amount", "category", "category_type", "vat_rate_type", "vat_amount", "amount_excl_vat", "notes"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, t := range txs {
		catName, catType := "", ""
		if t.CategoryID != nil {
			if cat := categories[*t.CategoryID]; cat != nil {
				catName, catType = cat.Name, string(cat.Type)
			}
		}
		b, err := vat.Decompose(t, table)
		if err != nil {
			return err
		}
		vatAmount, excl := "", ""
		if b.Included {
			vatAmount = b.VAT.StringFixed(2)
			excl = b.Exclusive.StringFixed(2)
		}
		row := []string{
			t.Date.Format("2006-01-02"),
			t.AccountID,
			t.Description,
			t.Amount.StringFixed(2),
			catName,
			catType,
			string(t.VATRateType),
			vatAmount,
			excl,
			t.Notes,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *ReportService) categoryIndex(ctx context.Context) (map[string]*model.Category, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	idx := make(map[string]*model.Category, len(categories))
	for _, c := range categories {
		idx[c.ID] = c
	}
	return idx, nil
}

func (s *ReportService) rateTable(ctx context.Context) (*vat.RateTable, error) {
	configs, err := s.store.ListVATRates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vat rates: %w", err)
	}
	vals := make([]model.VATRateConfig, len(configs))
	for i, c := range configs {
		vals[i] = *c
	}
	return vat.NewRateTable(vals), nil
}

// taxTables loads the year's tables, falling back to the compiled-in set
// when the store has none. The fallback is loud: it is logged and tagged
// on the result.
func (s *ReportService) taxTables(ctx context.Context, year int) (*model.TaxYear, string, error) {
	tables, err := s.store.GetTaxYear(ctx, year)
	if err == nil {
		return tables, tax.SourceConfigured, nil
	}
	if !isNotFound(err) {
		return nil, "", err
	}
	s.log.Warn().Int("year", year).Msg("no configured tax tables, using compiled-in fallback")
	return tax.FallbackTaxYear(year), tax.SourceFallback, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
