package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/provtax/backend/internal/categorize"
	"github.com/provtax/backend/internal/model"
	"github.com/provtax/backend/internal/statement"
	"github.com/provtax/backend/internal/store"
)

// TransactionService covers manual corrections: edits, soft deletes,
// duplicate resolution, splitting mixed purchases, and re-running the
// categorizer.
type TransactionService struct {
	store store.Store
	log   zerolog.Logger
}

// NewTransactionService creates a transaction service over the given store.
func NewTransactionService(s store.Store, log zerolog.Logger) *TransactionService {
	return &TransactionService{store: s, log: log.With().Str("component", "transactions").Logger()}
}

// List returns transactions matching the filter.
func (s *TransactionService) List(ctx context.Context, filter store.TransactionFilter) ([]*model.Transaction, error) {
	return s.store.ListTransactions(ctx, filter)
}

// Get returns one transaction.
func (s *TransactionService) Get(ctx context.Context, id string) (*model.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// UpdateRequest carries the editable fields of a transaction. Nil fields
// are left untouched.
type UpdateRequest struct {
	Description   *string            `json:"description,omitempty"`
	CategoryID    *string            `json:"category_id,omitempty"`
	VATRateType   *model.VATRateType `json:"vat_rate_type,omitempty"`
	VATClaimable  *bool              `json:"vat_claimable,omitempty"`
	AmountInclVAT *bool              `json:"amount_incl_vat,omitempty"`
	Notes         *string            `json:"notes,omitempty"`
}

// Update applies a manual edit. Any categorization change marks the row
// manual so automated re-runs leave it alone.
func (s *TransactionService) Update(ctx context.Context, id string, req UpdateRequest) (*model.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Description != nil {
		tx.Description = *req.Description
	}
	if req.CategoryID != nil {
		if *req.CategoryID == "" {
			tx.CategoryID = nil
		} else {
			if _, err := s.store.GetCategory(ctx, *req.CategoryID); err != nil {
				return nil, err
			}
			tx.CategoryID = req.CategoryID
		}
		tx.IsManual = true
		tx.NeedsSplit = false
	}
	if req.VATRateType != nil {
		tx.VATRateType = *req.VATRateType
		tx.IsManual = true
	}
	if req.VATClaimable != nil {
		tx.VATClaimable = *req.VATClaimable
		tx.IsManual = true
	}
	if req.AmountInclVAT != nil {
		tx.AmountInclVAT = *req.AmountInclVAT
	}
	if req.Notes != nil {
		tx.Notes = *req.Notes
	}

	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Delete soft-deletes a transaction. The row stays in the store with its
// flag set; nothing is ever physically removed.
func (s *TransactionService) Delete(ctx context.Context, id string) error {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if tx.IsDeleted {
		return nil
	}
	tx.IsDeleted = true
	return s.store.UpdateTransaction(ctx, tx)
}

// MarkDuplicate flags id as a duplicate of originalID, or clears the flag
// when originalID is empty.
func (s *TransactionService) MarkDuplicate(ctx context.Context, id, originalID string) (*model.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	if originalID == "" {
		tx.IsDuplicate = false
		tx.DuplicateOfID = nil
	} else {
		if originalID == id {
			return nil, model.Validationf("duplicate_of_id", "a transaction cannot duplicate itself")
		}
		if _, err := s.store.GetTransaction(ctx, originalID); err != nil {
			return nil, err
		}
		tx.IsDuplicate = true
		tx.DuplicateOfID = &originalID
	}

	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// FindDuplicates scans an account (or all accounts) for unresolved
// duplicate candidates.
func (s *TransactionService) FindDuplicates(ctx context.Context, accountID string) ([]statement.DuplicatePair, error) {
	txs, err := s.store.ListTransactions(ctx, store.TransactionFilter{
		AccountID:       accountID,
		IncludeInactive: true,
	})
	if err != nil {
		return nil, err
	}
	return statement.FindDuplicates(txs), nil
}

// SplitPart is one child of a split request.
type SplitPart struct {
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	CategoryID  string          `json:"category_id"`
	Description string          `json:"description"`
	Notes       string          `json:"notes"`
}

// Split replaces a mixed purchase with child transactions. The parts must
// sum exactly to the parent amount; the parent is soft-deleted and keeps
// its original amount so the lineage stays auditable.
func (s *TransactionService) Split(ctx context.Context, id string, parts []SplitPart) ([]*model.Transaction, error) {
	if len(parts) < 2 {
		return nil, model.Validationf("parts", "a split needs at least two parts")
	}
	parent, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if parent.IsDeleted {
		return nil, model.Validationf("id", "cannot split a deleted transaction")
	}
	if parent.ParentID != nil {
		return nil, model.Validationf("id", "cannot split a split child")
	}

	sum := decimal.Zero
	for _, p := range parts {
		if p.Amount.IsZero() {
			return nil, model.Validationf("parts", "split parts must have non-zero amounts")
		}
		sum = sum.Add(p.Amount)
	}
	if !sum.Equal(parent.Amount) {
		return nil, model.Validationf("parts",
			fmt.Sprintf("split parts sum to %s, parent amount is %s", sum, parent.Amount))
	}

	children := make([]*model.Transaction, 0, len(parts))
	for _, p := range parts {
		desc := p.Description
		if desc == "" {
			desc = parent.Description
		}
		var catID *string
		if p.CategoryID != "" {
			if _, err := s.store.GetCategory(ctx, p.CategoryID); err != nil {
				return nil, err
			}
			c := p.CategoryID
			catID = &c
		}
		children = append(children, &model.Transaction{
			ID:          uuid.New().String(),
			StatementID: parent.StatementID,
			AccountID:   parent.AccountID,
			Date:        parent.Date,
			Description: desc,
			Amount:      p.Amount,
			CategoryID:  catID,
			IsManual:    true,
			ParentID:    &parent.ID,
			Notes:       p.Notes,
		})
	}

	if err := s.store.CreateTransactions(ctx, children); err != nil {
		return nil, fmt.Errorf("persist split: %w", err)
	}

	orig := parent.Amount
	parent.OriginalAmount = &orig
	parent.IsDeleted = true
	parent.NeedsSplit = false
	if err := s.store.UpdateTransaction(ctx, parent); err != nil {
		return nil, fmt.Errorf("retire split parent: %w", err)
	}

	s.log.Info().Str("transaction", parent.ID).Int("parts", len(children)).Msg("transaction split")
	return children, nil
}

// CategorizeResult reports one categorization run.
type CategorizeResult struct {
	Scanned      int      `json:"scanned"`
	Categorized  int      `json:"categorized"`
	FlaggedSplit int      `json:"flagged_split"`
	Warnings     []string `json:"warnings,omitempty"`
}

// Recategorize re-runs the rule engine across stored transactions. With
// force set, manual categorizations are reclaimed too.
func (s *TransactionService) Recategorize(ctx context.Context, accountID string, force bool) (*CategorizeResult, error) {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	ruleVals := make([]model.ExpenseRule, len(rules))
	for i, r := range rules {
		ruleVals[i] = *r
	}
	engine := categorize.NewEngine(ruleVals, categories)

	txs, err := s.store.ListTransactions(ctx, store.TransactionFilter{AccountID: accountID})
	if err != nil {
		return nil, err
	}

	res := &CategorizeResult{Scanned: len(txs)}
	for _, tx := range txs {
		if !engine.Apply(tx, force) {
			continue
		}
		if err := s.store.UpdateTransaction(ctx, tx); err != nil {
			return nil, err
		}
		if tx.NeedsSplit {
			res.FlaggedSplit++
		} else if tx.CategoryID != nil {
			res.Categorized++
		}
	}
	res.Warnings = engine.Warnings()

	s.log.Info().Int("scanned", res.Scanned).Int("categorized", res.Categorized).
		Bool("force", force).Msg("categorization run complete")
	return res, nil
}

// CreateRule validates and stores a new categorization rule.
func (s *TransactionService) CreateRule(ctx context.Context, rule *model.ExpenseRule) error {
	if rule.Pattern == "" {
		return model.Validationf("pattern", "pattern is required")
	}
	if _, err := s.store.GetCategory(ctx, rule.CategoryID); err != nil {
		return err
	}
	return s.store.CreateRule(ctx, rule)
}

// ListRules returns the rule book.
func (s *TransactionService) ListRules(ctx context.Context) ([]*model.ExpenseRule, error) {
	return s.store.ListRules(ctx)
}

// ListCategories returns the category catalogue.
func (s *TransactionService) ListCategories(ctx context.Context) ([]*model.Category, error) {
	return s.store.ListCategories(ctx)
}
