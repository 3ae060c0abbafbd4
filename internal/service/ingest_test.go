package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provtax/backend/internal/model"
	"github.com/provtax/backend/internal/statement"
	"github.com/provtax/backend/internal/store"
)

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

func seededStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	require.NoError(t, store.Seed(context.Background(), s))
	return s
}

func parsedFixture() *statement.Result {
	return &statement.Result{
		AccountType:   model.AccountCheque,
		AccountNumber: "10217095761",
		StartDate:     day(2025, 4, 1),
		EndDate:       day(2025, 4, 30),
		Candidates: []statement.Candidate{
			{Date: day(2025, 4, 2), Description: "TELETRANSMISSION INWARD ACME LTD", Amount: decimal.RequireFromString("52000.00")},
			{Date: day(2025, 4, 5), Description: "CHECKERS SANDTON", Amount: decimal.RequireFromString("-840.50")},
			{Date: day(2025, 4, 9), Description: "IB TRANSFER TO SAVINGS", Amount: decimal.RequireFromString("-10000.00")},
		},
	}
}

func TestIngestParsedCreatesAccountAndCategorizes(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t)
	svc := NewIngestService(st, zerolog.Nop())

	res, err := svc.IngestParsed(ctx, "april.pdf", parsedFixture())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, 0, res.DuplicatesFlagged)
	assert.Equal(t, 3, res.Categorized)
	require.NotNil(t, res.Account)
	assert.Equal(t, "10217095761", res.Account.Number)

	txs, err := st.ListTransactions(ctx, store.TransactionFilter{AccountID: res.Account.ID})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	for _, tx := range txs {
		assert.NotNil(t, tx.CategoryID, "transaction %q should be auto-categorized", tx.Description)
		assert.Equal(t, res.Statement.ID, tx.StatementID)
	}
}

func TestIngestParsedReusesAccount(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t)
	svc := NewIngestService(st, zerolog.Nop())

	first, err := svc.IngestParsed(ctx, "april.pdf", parsedFixture())
	require.NoError(t, err)

	second := &statement.Result{
		AccountType:   model.AccountCheque,
		AccountNumber: "10217095761",
		StartDate:     day(2025, 5, 1),
		EndDate:       day(2025, 5, 31),
		Candidates: []statement.Candidate{
			{Date: day(2025, 5, 2), Description: "WOOLWORTHS FOOD", Amount: decimal.RequireFromString("-320.00")},
		},
	}
	res, err := svc.IngestParsed(ctx, "may.pdf", second)
	require.NoError(t, err)
	assert.Equal(t, first.Account.ID, res.Account.ID)

	accounts, err := st.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestIngestParsedFlagsOverlappingUpload(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t)
	svc := NewIngestService(st, zerolog.Nop())

	_, err := svc.IngestParsed(ctx, "april.pdf", parsedFixture())
	require.NoError(t, err)

	// Same document again: every row pairs against stored history.
	res, err := svc.IngestParsed(ctx, "april-again.pdf", parsedFixture())
	require.NoError(t, err)
	assert.Equal(t, 3, res.DuplicatesFlagged)

	effective, err := st.ListTransactions(ctx, store.TransactionFilter{AccountID: res.Account.ID})
	require.NoError(t, err)
	assert.Len(t, effective, 3, "re-upload must not inflate the effective set")

	all, err := st.ListTransactions(ctx, store.TransactionFilter{
		AccountID:       res.Account.ID,
		IncludeInactive: true,
	})
	require.NoError(t, err)
	assert.Len(t, all, 6)
	for _, tx := range all {
		if tx.IsDuplicate {
			require.NotNil(t, tx.DuplicateOfID)
			assert.NotEmpty(t, *tx.DuplicateOfID)
		}
	}
}

func TestIngestParsedRejectsMissingAccountNumber(t *testing.T) {
	ctx := context.Background()
	st := seededStore(t)
	svc := NewIngestService(st, zerolog.Nop())

	parsed := parsedFixture()
	parsed.AccountNumber = ""
	_, err := svc.IngestParsed(ctx, "broken.pdf", parsed)

	var perr *statement.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, statement.ErrUnknownLayout, perr.Code)
}
