// Package store persists accounts, statements, transactions, the category
// and rule catalogue, and the VAT/tax configuration. Two implementations
// share the interface: an in-memory store for tests and local runs, and a
// postgres store for production.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/provtax/backend/internal/model"
)

// ErrNotFound is returned when a lookup misses. Implementations wrap it so
// callers can test with errors.Is.
var ErrNotFound = errors.New("not found")

// TransactionFilter narrows ListTransactions. Zero values mean "no
// constraint". Soft-flagged rows (duplicates, deleted) are excluded unless
// IncludeInactive is set; callers that manage flags need the full set.
type TransactionFilter struct {
	AccountID       string
	CategoryID      string
	From            *time.Time
	To              *time.Time
	Uncategorized   bool
	NeedsSplit      bool
	IncludeInactive bool
}

// Store is the persistence boundary for the service layer.
type Store interface {
	// Account operations
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	GetAccountByNumber(ctx context.Context, number string) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]*model.Account, error)

	// Statement operations
	CreateStatement(ctx context.Context, statement *model.Statement) error
	ListStatements(ctx context.Context, accountID string) ([]*model.Statement, error)

	// Transaction operations
	CreateTransactions(ctx context.Context, txs []*model.Transaction) error
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	UpdateTransaction(ctx context.Context, tx *model.Transaction) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*model.Transaction, error)

	// Category operations
	CreateCategory(ctx context.Context, category *model.Category) error
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	ListCategories(ctx context.Context) ([]*model.Category, error)

	// Rule operations
	CreateRule(ctx context.Context, rule *model.ExpenseRule) error
	UpdateRule(ctx context.Context, rule *model.ExpenseRule) error
	ListRules(ctx context.Context) ([]*model.ExpenseRule, error)

	// VAT rate history
	CreateVATRate(ctx context.Context, config *model.VATRateConfig) error
	ListVATRates(ctx context.Context) ([]*model.VATRateConfig, error)

	// Tax year tables
	CreateTaxYear(ctx context.Context, year *model.TaxYear) error
	GetTaxYear(ctx context.Context, year int) (*model.TaxYear, error)

	Close() error
}
