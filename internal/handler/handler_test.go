package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provtax/backend/internal/model"
	"github.com/provtax/backend/internal/service"
	"github.com/provtax/backend/internal/store"
)

func newServer(t *testing.T) (*echo.Echo, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, store.Seed(context.Background(), st))

	log := zerolog.Nop()
	h := New(
		service.NewIngestService(st, log),
		service.NewTransactionService(st, log),
		service.NewReportService(st, log),
		log,
	)
	e := echo.New()
	h.Register(e)
	return e, st
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func seedTransaction(t *testing.T, st *store.MemoryStore, desc, amount string) *model.Transaction {
	t.Helper()
	tx := &model.Transaction{
		AccountID:   "a1",
		Date:        time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC),
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
	}
	require.NoError(t, st.CreateTransactions(context.Background(), []*model.Transaction{tx}))
	return tx
}

func TestHealth(t *testing.T) {
	e, _ := newServer(t)
	rec := doJSON(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListCategoriesSeeded(t *testing.T) {
	e, _ := newServer(t)
	rec := doJSON(e, http.MethodGet, "/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var cats []model.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cats))
	assert.NotEmpty(t, cats)
}

func TestUpdateTransactionNotFound(t *testing.T) {
	e, _ := newServer(t)
	rec := doJSON(e, http.MethodPut, "/transactions/nope", `{"notes":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteTransaction(t *testing.T) {
	e, st := newServer(t)
	tx := seedTransaction(t, st, "X", "-10.00")

	rec := doJSON(e, http.MethodDelete, "/transactions/"+tx.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	got, err := st.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
}

func TestSplitValidation(t *testing.T) {
	e, st := newServer(t)
	tx := seedTransaction(t, st, "TAKEALOT", "-1000.00")

	// Parts that do not sum to the parent are a 422.
	rec := doJSON(e, http.MethodPost, "/transactions/"+tx.ID+"/split",
		`{"parts":[{"amount":"-600.00"},{"amount":"-300.00"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(e, http.MethodPost, "/transactions/"+tx.ID+"/split",
		`{"parts":[{"amount":"-600.00"},{"amount":"-400.00"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var children []model.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &children))
	assert.Len(t, children, 2)
}

func TestCreateRule(t *testing.T) {
	e, st := newServer(t)

	rec := doJSON(e, http.MethodPost, "/rules", `{"pattern":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "validator rejects the empty pattern")

	cats, err := st.ListCategories(context.Background())
	require.NoError(t, err)
	rec = doJSON(e, http.MethodPost, "/rules",
		`{"pattern":"YOCO","category_id":"`+cats[0].ID+`","priority":20}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var rule model.ExpenseRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rule))
	assert.True(t, rule.IsActive)
	assert.NotEmpty(t, rule.ID)
}

func TestRunCategorize(t *testing.T) {
	e, st := newServer(t)
	seedTransaction(t, st, "CHECKERS SANDTON", "-250.00")

	rec := doJSON(e, http.MethodPost, "/categorize/run", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res service.CategorizeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Categorized)
}

func TestProvisionalReportEndpoint(t *testing.T) {
	e, st := newServer(t)
	tx := seedTransaction(t, st, "TELETRANSMISSION INWARD", "120000.00")
	cats, err := st.ListCategories(context.Background())
	require.NoError(t, err)
	for _, c := range cats {
		if c.Type == model.CategoryIncome {
			tx.CategoryID = &c.ID
			break
		}
	}
	require.NoError(t, st.UpdateTransaction(context.Background(), tx))

	rec := doJSON(e, http.MethodPost, "/reports/provisional",
		`{"year":2026,"as_of":"2025-05-31","age":40}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rep service.ProvisionalReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, 3, rep.Aggregate.MonthsElapsed)
	assert.True(t, rep.Provisional.Annualized.IsPositive())

	// Age zero is a legitimate taxpayer input, not a validation failure.
	rec = doJSON(e, http.MethodPost, "/reports/provisional",
		`{"year":2026,"as_of":"2025-05-31","age":0}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// A negative age fails request validation.
	rec = doJSON(e, http.MethodPost, "/reports/provisional",
		`{"year":2026,"age":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportPeriodInverted(t *testing.T) {
	e, _ := newServer(t)

	rec := doJSON(e, http.MethodGet, "/reports/vat?from=2025-05-31&to=2025-04-01", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(e, http.MethodGet, "/transactions?from=2025-05-31&to=2025-04-01", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestVATReportBadDate(t *testing.T) {
	e, _ := newServer(t)
	rec := doJSON(e, http.MethodGet, "/reports/vat?from=yesterday&to=2025-05-31", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestExportCSVEndpoint(t *testing.T) {
	e, st := newServer(t)
	seedTransaction(t, st, "GITHUB", "-1150.00")

	rec := doJSON(e, http.MethodGet, "/reports/export?from=2025-04-01&to=2025-04-30", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/csv")
	assert.Contains(t, rec.Body.String(), "GITHUB")
}
