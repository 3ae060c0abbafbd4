package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/provtax/backend/internal/model"
)

// MemoryStore implements Store with in-memory maps. It backs tests and
// local runs without a database. Values are copied on the way in and out
// so callers never share memory with the store.
type MemoryStore struct {
	mu sync.RWMutex

	accounts     map[string]*model.Account
	statements   map[string]*model.Statement
	transactions map[string]*model.Transaction
	categories   map[string]*model.Category
	rules        map[string]*model.ExpenseRule
	vatRates     map[string]*model.VATRateConfig
	taxYears     map[int]*model.TaxYear
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[string]*model.Account),
		statements:   make(map[string]*model.Statement),
		transactions: make(map[string]*model.Transaction),
		categories:   make(map[string]*model.Category),
		rules:        make(map[string]*model.ExpenseRule),
		vatRates:     make(map[string]*model.VATRateConfig),
		taxYears:     make(map[int]*model.TaxYear),
	}
}

func (s *MemoryStore) CreateAccount(_ context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if _, exists := s.accounts[account.ID]; exists {
		return fmt.Errorf("account %s already exists", account.ID)
	}
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) GetAccountByNumber(_ context.Context, number string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.Number == number {
			cp := *a
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("account number %s: %w", number, ErrNotFound)
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) CreateStatement(_ context.Context, statement *model.Statement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if statement.ID == "" {
		statement.ID = uuid.New().String()
	}
	cp := *statement
	s.statements[statement.ID] = &cp
	return nil
}

func (s *MemoryStore) ListStatements(_ context.Context, accountID string) ([]*model.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Statement
	for _, st := range s.statements {
		if accountID == "" || st.AccountID == accountID {
			cp := *st
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (s *MemoryStore) CreateTransactions(_ context.Context, txs []*model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		if tx.ID == "" {
			tx.ID = uuid.New().String()
		}
		if _, exists := s.transactions[tx.ID]; exists {
			return fmt.Errorf("transaction %s already exists", tx.ID)
		}
	}
	for _, tx := range txs {
		cp := *tx
		s.transactions[tx.ID] = &cp
	}
	return nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, id string) (*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	cp := *tx
	return &cp, nil
}

func (s *MemoryStore) UpdateTransaction(_ context.Context, tx *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[tx.ID]; !ok {
		return fmt.Errorf("transaction %s: %w", tx.ID, ErrNotFound)
	}
	cp := *tx
	s.transactions[tx.ID] = &cp
	return nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, filter TransactionFilter) ([]*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Transaction
	for _, tx := range s.transactions {
		if !matchesFilter(tx, filter) {
			continue
		}
		cp := *tx
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func matchesFilter(tx *model.Transaction, f TransactionFilter) bool {
	if !f.IncludeInactive && !tx.Effective() {
		return false
	}
	if f.AccountID != "" && tx.AccountID != f.AccountID {
		return false
	}
	if f.CategoryID != "" && (tx.CategoryID == nil || *tx.CategoryID != f.CategoryID) {
		return false
	}
	if f.Uncategorized && tx.CategoryID != nil {
		return false
	}
	if f.NeedsSplit && !tx.NeedsSplit {
		return false
	}
	if f.From != nil && tx.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && tx.Date.After(*f.To) {
		return false
	}
	return true
}

func (s *MemoryStore) CreateCategory(_ context.Context, category *model.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if category.ID == "" {
		category.ID = uuid.New().String()
	}
	cp := *category
	s.categories[category.ID] = &cp
	return nil
}

func (s *MemoryStore) GetCategory(_ context.Context, id string) (*model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListCategories(_ context.Context) ([]*model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Category, 0, len(s.categories))
	for _, c := range s.categories {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) CreateRule(_ context.Context, rule *model.ExpenseRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	cp := *rule
	s.rules[rule.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateRule(_ context.Context, rule *model.ExpenseRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; !ok {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrNotFound)
	}
	cp := *rule
	s.rules[rule.ID] = &cp
	return nil
}

func (s *MemoryStore) ListRules(_ context.Context) ([]*model.ExpenseRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.ExpenseRule, 0, len(s.rules))
	for _, r := range s.rules {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateVATRate(_ context.Context, config *model.VATRateConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if config.ID == "" {
		config.ID = uuid.New().String()
	}
	cp := *config
	s.vatRates[config.ID] = &cp
	return nil
}

func (s *MemoryStore) ListVATRates(_ context.Context) ([]*model.VATRateConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.VATRateConfig, 0, len(s.vatRates))
	for _, v := range s.vatRates {
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EffectiveFrom.Before(out[j].EffectiveFrom) })
	return out, nil
}

func (s *MemoryStore) CreateTaxYear(_ context.Context, year *model.TaxYear) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *year
	cp.Brackets = append([]model.TaxBracket(nil), year.Brackets...)
	cp.Rebates = append([]model.TaxRebate(nil), year.Rebates...)
	cp.MedicalCredits = append([]model.MedicalAidCredit(nil), year.MedicalCredits...)
	s.taxYears[year.Year] = &cp
	return nil
}

func (s *MemoryStore) GetTaxYear(_ context.Context, year int) (*model.TaxYear, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	y, ok := s.taxYears[year]
	if !ok {
		return nil, fmt.Errorf("tax year %d: %w", year, ErrNotFound)
	}
	cp := *y
	cp.Brackets = append([]model.TaxBracket(nil), y.Brackets...)
	cp.Rebates = append([]model.TaxRebate(nil), y.Rebates...)
	cp.MedicalCredits = append([]model.MedicalAidCredit(nil), y.MedicalCredits...)
	return &cp, nil
}

func (s *MemoryStore) Close() error { return nil }
