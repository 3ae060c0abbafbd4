// Package handler exposes the pipeline over HTTP with echo.
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/provtax/backend/internal/model"
	"github.com/provtax/backend/internal/service"
	"github.com/provtax/backend/internal/statement"
	"github.com/provtax/backend/internal/store"
	"github.com/provtax/backend/internal/tax"
	"github.com/provtax/backend/internal/vat"
)

// maxUploadBytes bounds statement uploads. Statements are a few hundred KB;
// anything bigger is not a statement.
const maxUploadBytes = 20 << 20

// CustomValidator adapts go-playground/validator to echo's Validator hook.
type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// Handler wires the service layer into echo routes.
type Handler struct {
	ingest       *service.IngestService
	transactions *service.TransactionService
	reports      *service.ReportService
	log          zerolog.Logger
}

// New creates a handler over the given services.
func New(ingest *service.IngestService, transactions *service.TransactionService, reports *service.ReportService, log zerolog.Logger) *Handler {
	return &Handler{
		ingest:       ingest,
		transactions: transactions,
		reports:      reports,
		log:          log.With().Str("component", "http").Logger(),
	}
}

// Register sets up validation, error mapping, and all routes on e.
func (h *Handler) Register(e *echo.Echo) {
	e.Validator = &CustomValidator{validator: validator.New()}
	e.HTTPErrorHandler = h.errorHandler

	e.GET("/health", h.health)

	e.POST("/statements", h.uploadStatement)
	e.GET("/accounts", h.listAccounts)
	e.GET("/accounts/:id/statements", h.listStatements)

	e.GET("/transactions", h.listTransactions)
	e.PUT("/transactions/:id", h.updateTransaction)
	e.DELETE("/transactions/:id", h.deleteTransaction)
	e.POST("/transactions/:id/split", h.splitTransaction)
	e.POST("/transactions/:id/duplicate", h.markDuplicate)
	e.GET("/duplicates", h.listDuplicates)

	e.GET("/categories", h.listCategories)
	e.GET("/rules", h.listRules)
	e.POST("/rules", h.createRule)
	e.POST("/categorize/run", h.runCategorize)

	e.GET("/reports/monthly", h.monthlyReport)
	e.GET("/reports/vat", h.vatReport)
	e.POST("/reports/provisional", h.provisionalReport)
	e.GET("/reports/export", h.exportCSV)
}

// errorHandler maps domain errors onto HTTP statuses: validation problems
// are 422, unusable documents 400, missing rows 404, configuration gaps
// 409. Everything else is a 500 with the detail kept out of the response.
func (h *Handler) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		httpErr *echo.HTTPError
		verr    *model.ValidationError
		perr    *statement.ParseError
		cfgErr  *vat.ConfigurationError
	)

	status := http.StatusInternalServerError
	body := map[string]any{"error": "internal error"}

	switch {
	case errors.As(err, &httpErr):
		status = httpErr.Code
		body = map[string]any{"error": httpErr.Message}
	case errors.As(err, &verr):
		status = http.StatusUnprocessableEntity
		body = map[string]any{"error": verr.Message, "field": verr.Field}
	case errors.As(err, &perr):
		status = http.StatusBadRequest
		body = map[string]any{"error": perr.Message, "code": string(perr.Code)}
	case errors.As(err, &cfgErr):
		status = http.StatusConflict
		body = map[string]any{"error": cfgErr.Error()}
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
		body = map[string]any{"error": err.Error()}
	default:
		h.log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
	}

	if err := c.JSON(status, body); err != nil {
		h.log.Error().Err(err).Msg("writing error response failed")
	}
}

func (h *Handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) uploadStatement(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return model.Validationf("file", "multipart field 'file' is required")
	}
	if file.Size > maxUploadBytes {
		return model.Validationf("file", "file too large")
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes))
	if err != nil {
		return err
	}

	hint := model.AccountType(c.FormValue("account_type"))
	switch hint {
	case "", model.AccountCheque, model.AccountCreditCard, model.AccountMortgage:
	default:
		return model.Validationf("account_type", "unknown account type")
	}

	res, err := h.ingest.IngestPDF(c.Request().Context(), file.Filename, data, hint)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) listAccounts(c echo.Context) error {
	accounts, err := h.ingest.ListAccounts(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, accounts)
}

func (h *Handler) listStatements(c echo.Context) error {
	statements, err := h.ingest.ListStatements(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statements)
}

func (h *Handler) listTransactions(c echo.Context) error {
	filter := store.TransactionFilter{
		AccountID:       c.QueryParam("account_id"),
		CategoryID:      c.QueryParam("category_id"),
		Uncategorized:   c.QueryParam("uncategorized") == "true",
		NeedsSplit:      c.QueryParam("needs_split") == "true",
		IncludeInactive: c.QueryParam("include_inactive") == "true",
	}
	var err error
	if filter.From, err = dateParam(c, "from"); err != nil {
		return err
	}
	if filter.To, err = dateParam(c, "to"); err != nil {
		return err
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return model.Validationf("to", "must not precede from")
	}

	txs, err := h.transactions.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, txs)
}

func (h *Handler) updateTransaction(c echo.Context) error {
	var req service.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return model.Validationf("body", "invalid request body")
	}
	tx, err := h.transactions.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tx)
}

func (h *Handler) deleteTransaction(c echo.Context) error {
	if err := h.transactions.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type splitRequest struct {
	Parts []service.SplitPart `json:"parts" validate:"required,min=2,dive"`
}

func (h *Handler) splitTransaction(c echo.Context) error {
	var req splitRequest
	if err := c.Bind(&req); err != nil {
		return model.Validationf("body", "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	children, err := h.transactions.Split(c.Request().Context(), c.Param("id"), req.Parts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, children)
}

type duplicateRequest struct {
	DuplicateOfID string `json:"duplicate_of_id"`
}

func (h *Handler) markDuplicate(c echo.Context) error {
	var req duplicateRequest
	if err := c.Bind(&req); err != nil {
		return model.Validationf("body", "invalid request body")
	}
	tx, err := h.transactions.MarkDuplicate(c.Request().Context(), c.Param("id"), req.DuplicateOfID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tx)
}

func (h *Handler) listDuplicates(c echo.Context) error {
	pairs, err := h.transactions.FindDuplicates(c.Request().Context(), c.QueryParam("account_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pairs)
}

func (h *Handler) listCategories(c echo.Context) error {
	categories, err := h.transactions.ListCategories(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, categories)
}

func (h *Handler) listRules(c echo.Context) error {
	rules, err := h.transactions.ListRules(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rules)
}

type ruleRequest struct {
	Pattern    string `json:"pattern" validate:"required"`
	IsRegex    bool   `json:"is_regex"`
	CategoryID string `json:"category_id" validate:"required"`
	Priority   int    `json:"priority"`
}

func (h *Handler) createRule(c echo.Context) error {
	var req ruleRequest
	if err := c.Bind(&req); err != nil {
		return model.Validationf("body", "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	rule := &model.ExpenseRule{
		Pattern:    req.Pattern,
		IsRegex:    req.IsRegex,
		CategoryID: req.CategoryID,
		Priority:   req.Priority,
		IsActive:   true,
	}
	if err := h.transactions.CreateRule(c.Request().Context(), rule); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rule)
}

func (h *Handler) runCategorize(c echo.Context) error {
	force := c.QueryParam("force") == "true"
	res, err := h.transactions.Recategorize(c.Request().Context(), c.QueryParam("account_id"), force)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) monthlyReport(c echo.Context) error {
	from, to, err := periodParams(c)
	if err != nil {
		return err
	}
	months, err := h.reports.Monthly(c.Request().Context(), c.QueryParam("account_id"), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, months)
}

func (h *Handler) vatReport(c echo.Context) error {
	from, to, err := periodParams(c)
	if err != nil {
		return err
	}
	summary, err := h.reports.VATPeriod(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

type provisionalRequest struct {
	Year              int    `json:"year" validate:"gte=0"`
	AsOf              string `json:"as_of"`
	Age               int    `json:"age" validate:"gte=0,lte=130"`
	MedicalAidMembers int    `json:"medical_aid_members" validate:"gte=0"`
	PriorPayments     string `json:"prior_payments"`
	OfficeArea        string `json:"office_area"`
	TotalArea         string `json:"total_area"`
}

func (h *Handler) provisionalReport(c echo.Context) error {
	var req provisionalRequest
	if err := c.Bind(&req); err != nil {
		return model.Validationf("body", "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	svcReq := service.ProvisionalRequest{
		Year:              req.Year,
		Age:               req.Age,
		MedicalAidMembers: req.MedicalAidMembers,
	}
	var err error
	if req.AsOf != "" {
		if svcReq.AsOf, err = time.Parse("2006-01-02", req.AsOf); err != nil {
			return model.Validationf("as_of", "expected YYYY-MM-DD")
		}
	}
	if svcReq.PriorPayments, err = decimalField(req.PriorPayments, "prior_payments"); err != nil {
		return err
	}
	if svcReq.HomeOffice.OfficeArea, err = decimalField(req.OfficeArea, "office_area"); err != nil {
		return err
	}
	if svcReq.HomeOffice.TotalArea, err = decimalField(req.TotalArea, "total_area"); err != nil {
		return err
	}

	rep, err := h.reports.Provisional(c.Request().Context(), svcReq)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) exportCSV(c echo.Context) error {
	from, to, err := periodParams(c)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="transactions.csv"`)
	c.Response().WriteHeader(http.StatusOK)
	return h.reports.ExportCSV(c.Request().Context(), c.Response(), from, to)
}

// periodParams reads the required from/to query bounds. An omitted year
// falls back to the tax year containing today.
func periodParams(c echo.Context) (time.Time, time.Time, error) {
	fromP, err := dateParam(c, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	toP, err := dateParam(c, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	year := tax.ResolveYear(time.Now().UTC())
	if y := c.QueryParam("year"); y != "" {
		parsed, err := strconv.Atoi(y)
		if err != nil {
			return time.Time{}, time.Time{}, model.Validationf("year", "expected a number")
		}
		year = parsed
	}
	start, end := tax.YearDates(year)
	if fromP != nil {
		start = *fromP
	}
	if toP != nil {
		end = *toP
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, model.Validationf("to", "must not precede from")
	}
	return start, end, nil
}

func dateParam(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, model.Validationf(name, "expected YYYY-MM-DD")
	}
	return &t, nil
}

func decimalField(v, field string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, model.Validationf(field, "expected a decimal number")
	}
	return d, nil
}
