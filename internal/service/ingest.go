// Package service orchestrates the pipeline: statement ingestion,
// transaction management, categorization runs, and report generation.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/provtax/backend/internal/categorize"
	"github.com/provtax/backend/internal/model"
	"github.com/provtax/backend/internal/statement"
	"github.com/provtax/backend/internal/store"
)

// IngestService turns an uploaded statement PDF into stored transactions:
// extract text, parse, auto-categorize, flag duplicates against the
// account's history, persist.
type IngestService struct {
	store store.Store
	log   zerolog.Logger

	// Per-account commit locks. Concurrent uploads for the same account
	// must serialize through duplicate detection or both copies land
	// unflagged.
	locks sync.Map
}

// NewIngestService creates an ingest service over the given store.
func NewIngestService(s store.Store, log zerolog.Logger) *IngestService {
	return &IngestService{store: s, log: log.With().Str("component", "ingest").Logger()}
}

// IngestResult reports what one upload produced.
type IngestResult struct {
	Statement         *model.Statement       `json:"statement"`
	Account           *model.Account         `json:"account"`
	Imported          int                    `json:"imported"`
	DuplicatesFlagged int                    `json:"duplicates_flagged"`
	Categorized       int                    `json:"categorized"`
	Skipped           []statement.Diagnostic `json:"skipped,omitempty"`
	Warnings          []string               `json:"warnings,omitempty"`
}

// IngestPDF runs the full pipeline for one uploaded document. accountHint
// overrides layout detection when the caller knows the account type; pass
// "" to detect from the document.
func (s *IngestService) IngestPDF(ctx context.Context, filename string, data []byte, accountHint model.AccountType) (*IngestResult, error) {
	text, err := statement.ExtractText(data)
	if err != nil {
		return nil, err
	}

	accountType := accountHint
	if accountType == "" {
		accountType, err = statement.DetectAccountType(text)
		if err != nil {
			return nil, err
		}
	}

	parsed, err := statement.Parse(text, accountType)
	if err != nil {
		return nil, err
	}
	return s.IngestParsed(ctx, filename, parsed)
}

// IngestParsed runs the pipeline from parsed candidates onward. Split out
// from IngestPDF so imports that skip text extraction share the same
// account resolution, categorization, and duplicate handling.
func (s *IngestService) IngestParsed(ctx context.Context, filename string, parsed *statement.Result) (*IngestResult, error) {
	account, err := s.resolveAccount(ctx, parsed)
	if err != nil {
		return nil, err
	}

	stmt := &model.Statement{
		AccountID:  account.ID,
		StartDate:  parsed.StartDate,
		EndDate:    parsed.EndDate,
		Filename:   filename,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.store.CreateStatement(ctx, stmt); err != nil {
		return nil, fmt.Errorf("persist statement: %w", err)
	}

	batch := make([]*model.Transaction, 0, len(parsed.Candidates))
	for _, c := range parsed.Candidates {
		v := c.Amount
		batch = append(batch, &model.Transaction{
			StatementID: stmt.ID,
			AccountID:   account.ID,
			Date:        c.Date,
			Description: c.Description,
			Amount:      v,
		})
	}

	result := &IngestResult{
		Statement: stmt,
		Account:   account,
		Imported:  len(batch),
		Skipped:   parsed.Skipped,
	}

	engine, err := s.buildEngine(ctx)
	if err != nil {
		return nil, err
	}
	for _, tx := range batch {
		if engine.Apply(tx, false) && tx.CategoryID != nil {
			result.Categorized++
		}
	}
	result.Warnings = append(result.Warnings, engine.Warnings()...)

	flagged, err := s.commitBatch(ctx, account.ID, batch)
	if err != nil {
		return nil, err
	}
	result.DuplicatesFlagged = flagged

	s.log.Info().
		Str("account", account.ID).
		Str("statement", stmt.ID).
		Int("imported", result.Imported).
		Int("duplicates", flagged).
		Int("skipped", len(result.Skipped)).
		Msg("statement ingested")
	return result, nil
}

// resolveAccount finds the account by parsed number, creating it on first
// sight of a new statement source.
func (s *IngestService) resolveAccount(ctx context.Context, parsed *statement.Result) (*model.Account, error) {
	if parsed.AccountNumber == "" {
		return nil, &statement.ParseError{
			Code:    statement.ErrUnknownLayout,
			Account: string(parsed.AccountType),
			Message: "no account number found in document",
		}
	}
	account, err := s.store.GetAccountByNumber(ctx, parsed.AccountNumber)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	account = &model.Account{
		Name:   fmt.Sprintf("%s %s", accountLabel(parsed.AccountType), parsed.AccountNumber),
		Type:   parsed.AccountType,
		Number: parsed.AccountNumber,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	s.log.Info().Str("account", account.ID).Str("number", account.Number).Msg("new account registered")
	return account, nil
}

func accountLabel(t model.AccountType) string {
	switch t {
	case model.AccountCheque:
		return "Cheque"
	case model.AccountCreditCard:
		return "Credit Card"
	case model.AccountMortgage:
		return "Home Loan"
	default:
		return "Account"
	}
}

// commitBatch flags duplicates against the account's stored history and
// persists the batch, serialized per account.
func (s *IngestService) commitBatch(ctx context.Context, accountID string, batch []*model.Transaction) (int, error) {
	muIface, _ := s.locks.LoadOrStore(accountID, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.store.ListTransactions(ctx, store.TransactionFilter{
		AccountID:       accountID,
		IncludeInactive: true,
	})
	if err != nil {
		return 0, fmt.Errorf("load account history: %w", err)
	}

	// IDs are assigned here so duplicate links inside the batch resolve
	// before insert.
	inBatch := make(map[*model.Transaction]bool, len(batch))
	for _, tx := range batch {
		if tx.ID == "" {
			tx.ID = uuid.New().String()
		}
		inBatch[tx] = true
	}

	combined := make([]*model.Transaction, 0, len(existing)+len(batch))
	combined = append(combined, existing...)
	combined = append(combined, batch...)

	flagged := 0
	for _, pair := range statement.FindDuplicates(combined) {
		// Flag the batch-side row; never touch stored history here.
		target, original := pair.Second, pair.First
		if !inBatch[target] {
			continue
		}
		if target.IsDuplicate {
			continue
		}
		target.IsDuplicate = true
		origID := original.ID
		target.DuplicateOfID = &origID
		flagged++
	}

	if err := s.store.CreateTransactions(ctx, batch); err != nil {
		return 0, fmt.Errorf("persist transactions: %w", err)
	}
	return flagged, nil
}

// ListAccounts returns all registered statement sources.
func (s *IngestService) ListAccounts(ctx context.Context) ([]*model.Account, error) {
	return s.store.ListAccounts(ctx)
}

// ListStatements returns upload history, optionally scoped to one account.
func (s *IngestService) ListStatements(ctx context.Context, accountID string) ([]*model.Statement, error) {
	return s.store.ListStatements(ctx, accountID)
}

// buildEngine snapshots the current rules and categories.
func (s *IngestService) buildEngine(ctx context.Context) (*categorize.Engine, error) {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	ruleVals := make([]model.ExpenseRule, len(rules))
	for i, r := range rules {
		ruleVals[i] = *r
	}
	return categorize.NewEngine(ruleVals, categories), nil
}
