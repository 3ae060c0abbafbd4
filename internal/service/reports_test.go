package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provtax/backend/internal/model"
	"github.com/provtax/backend/internal/store"
	"github.com/provtax/backend/internal/tax"
)

func reportFixture(t *testing.T) (*ReportService, *store.MemoryStore) {
	t.Helper()
	st := seededStore(t)
	ctx := context.Background()

	income := categoryByName(t, st, "Foreign Income")
	software := categoryByName(t, st, "Software & Subscriptions")
	groceries := categoryByName(t, st, "Groceries")
	transfers := categoryByName(t, st, "Transfers (Excluded)")

	txs := []*model.Transaction{
		{AccountID: "a1", Date: day(2025, 4, 2), Description: "TELETRANSMISSION INWARD", Amount: decimal.RequireFromString("60000.00"),
			CategoryID: &income.ID, VATRateType: model.VATZeroRated, AmountInclVAT: true},
		{AccountID: "a1", Date: day(2025, 4, 10), Description: "GITHUB", Amount: decimal.RequireFromString("-1150.00"),
			CategoryID: &software.ID, VATRateType: model.VATStandard, AmountInclVAT: true, VATClaimable: true},
		{AccountID: "a1", Date: day(2025, 5, 3), Description: "CHECKERS", Amount: decimal.RequireFromString("-2000.00"),
			CategoryID: &groceries.ID, VATRateType: model.VATStandard, AmountInclVAT: true},
		{AccountID: "a1", Date: day(2025, 5, 8), Description: "IB TRANSFER TO SAVINGS", Amount: decimal.RequireFromString("-5000.00"),
			CategoryID: &transfers.ID, VATRateType: model.VATNone},
	}
	require.NoError(t, st.CreateTransactions(ctx, txs))
	return NewReportService(st, zerolog.Nop()), st
}

func TestMonthlyReport(t *testing.T) {
	svc, _ := reportFixture(t)

	months, err := svc.Monthly(context.Background(), "a1", day(2025, 4, 1), day(2025, 5, 31))
	require.NoError(t, err)
	require.Len(t, months, 2)

	april := months[0]
	assert.Equal(t, "2025-04", april.Month)
	assert.Equal(t, "60000", april.Income.String())
	assert.Equal(t, "1150", april.Expenses.String())
	assert.Equal(t, "58850", april.Net.String())

	may := months[1]
	assert.Equal(t, "2025-05", may.Month)
	assert.Equal(t, "2000", may.Expenses.String(), "excluded transfers stay out of the report")
}

func TestVATPeriodReport(t *testing.T) {
	svc, _ := reportFixture(t)

	s, err := svc.VATPeriod(context.Background(), day(2025, 4, 1), day(2025, 5, 31))
	require.NoError(t, err)

	// Zero-rated income carries no output VAT; the software purchase
	// yields claimable input VAT of 150.
	assert.Equal(t, "0", s.OutputVAT.String())
	assert.Equal(t, "150", s.InputVAT.String())
	assert.Equal(t, "-150", s.NetVAT.String())
	assert.Equal(t, "260.87", s.NonClaimableVAT.StringFixed(2), "groceries VAT is visible but not claimable")
}

func TestProvisionalReport(t *testing.T) {
	svc, _ := reportFixture(t)

	rep, err := svc.Provisional(context.Background(), ProvisionalRequest{
		Year: 2026,
		AsOf: day(2025, 5, 31),
		Age:  40,
	})
	require.NoError(t, err)

	assert.Equal(t, "60000", rep.Aggregate.GrossIncome.String())
	assert.Equal(t, "1150", rep.Aggregate.BusinessExpenses.String())
	assert.Equal(t, 3, rep.Aggregate.MonthsElapsed)
	assert.Equal(t, tax.SourceConfigured, rep.Provisional.Annual.TablesSource)
	assert.True(t, rep.Provisional.Annualized.IsPositive())
	assert.True(t, rep.Provisional.AmountDue.IsPositive())
}

func TestProvisionalAsOfBeforeYearStart(t *testing.T) {
	svc, _ := reportFixture(t)

	_, err := svc.Provisional(context.Background(), ProvisionalRequest{
		Year: 2026,
		AsOf: day(2024, 12, 31),
		Age:  40,
	})
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "as_of", ve.Field)
}

func TestProvisionalFallbackTables(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewReportService(st, zerolog.Nop())

	rep, err := svc.Provisional(context.Background(), ProvisionalRequest{
		Year: 2031,
		AsOf: day(2030, 9, 30),
		Age:  40,
	})
	require.NoError(t, err)
	assert.Equal(t, tax.SourceFallback, rep.Provisional.Annual.TablesSource)
}

func TestExportCSV(t *testing.T) {
	svc, _ := reportFixture(t)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(context.Background(), &buf, day(2025, 4, 1), day(2025, 5, 31)))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5, "header plus four transactions")
	assert.Equal(t, "date", records[0][0])

	// The GitHub purchase row carries its VAT decomposition.
	var found bool
	for _, rec := range records[1:] {
		if rec[2] == "GITHUB" {
			found = true
			assert.Equal(t, "-1150.00", rec[3])
			assert.Equal(t, "-150.00", rec[7])
			assert.Equal(t, "-1000.00", rec[8])
		}
	}
	assert.True(t, found)
}
