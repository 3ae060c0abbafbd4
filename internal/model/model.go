// Package model defines the domain records shared by the parser,
// categorizer, calculators and store.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType identifies the statement layout an account uses.
type AccountType string

const (
	AccountCheque     AccountType = "cheque"
	AccountCreditCard AccountType = "credit_card"
	AccountMortgage   AccountType = "mortgage"
)

// CategoryType drives how a category's transactions enter the tax aggregates.
type CategoryType string

const (
	CategoryIncome          CategoryType = "income"
	CategoryBusinessExpense CategoryType = "business_expense"
	CategoryPersonalExpense CategoryType = "personal_expense"
	// CategoryExcluded marks categories removed from tax computations
	// entirely (bond repayments, inter-account transfers).
	CategoryExcluded CategoryType = "excluded"
)

// VATRateType tags how a transaction participates in VAT.
type VATRateType string

const (
	VATStandard VATRateType = "standard"
	// VATZeroRated supplies carry 0% VAT but still count toward
	// input/output totals.
	VATZeroRated VATRateType = "zero"
	VATExempt    VATRateType = "exempt"
	// VATNone excludes the transaction from VAT totals altogether.
	VATNone VATRateType = "no_vat"
)

// Account is one statement source.
type Account struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Type   AccountType `json:"type"`
	Number string      `json:"number"`
}

// Statement records one upload event and the date range the document claims.
type Statement struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Category groups transactions for tax purposes and supplies VAT defaults.
type Category struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Type               CategoryType `json:"type"`
	DefaultVATRateType VATRateType  `json:"default_vat_rate_type"`
	Description        string       `json:"description,omitempty"`
}

// ExcludedFromTax reports whether the category's transactions are ignored
// by both tax engines.
func (c *Category) ExcludedFromTax() bool {
	return c.Type == CategoryExcluded
}

// ExpenseRule is one pattern in the categorization rule book. Higher
// priority rules are evaluated first; ties break on ID.
type ExpenseRule struct {
	ID         string `json:"id"`
	Pattern    string `json:"pattern"`
	IsRegex    bool   `json:"is_regex"`
	CategoryID string `json:"category_id"`
	Priority   int    `json:"priority"`
	IsActive   bool   `json:"is_active"`
}

// Transaction is a single line reconstructed from a statement or entered
// manually. Amount is signed: negative is an outflow. Flags are soft state
// tags; rows are never hard-deleted.
type Transaction struct {
	ID          string          `json:"id"`
	StatementID string          `json:"statement_id,omitempty"`
	AccountID   string          `json:"account_id"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`

	CategoryID *string `json:"category_id,omitempty"`

	// VAT metadata. An empty VATRateType means "use the category default".
	VATRateType   VATRateType      `json:"vat_rate_type,omitempty"`
	VATAmount     *decimal.Decimal `json:"vat_amount,omitempty"`
	AmountInclVAT bool             `json:"amount_incl_vat"`
	VATClaimable  bool             `json:"vat_claimable"`

	IsManual      bool    `json:"is_manual"`
	IsDuplicate   bool    `json:"is_duplicate"`
	DuplicateOfID *string `json:"duplicate_of_id,omitempty"`
	IsDeleted     bool    `json:"is_deleted"`
	NeedsSplit    bool    `json:"needs_split"`

	// Split lineage: children point at the soft-deleted parent and the
	// parent keeps its original amount for the sum invariant.
	ParentID       *string          `json:"parent_id,omitempty"`
	OriginalAmount *decimal.Decimal `json:"original_amount,omitempty"`

	Notes string `json:"notes,omitempty"`
}

// Effective reports whether the transaction participates in totals and
// tax computations.
func (t *Transaction) Effective() bool {
	return !t.IsDuplicate && !t.IsDeleted
}

// VATRateConfig is one dated segment of the standard VAT rate history.
// Ranges do not overlap; a nil EffectiveTo means the rate is current.
type VATRateConfig struct {
	ID            string          `json:"id"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	StandardRate  decimal.Decimal `json:"standard_rate"`
	IsActive      bool            `json:"is_active"`
	Notes         string          `json:"notes,omitempty"`
}

// Covers reports whether d falls inside the config's effective range.
func (v *VATRateConfig) Covers(d time.Time) bool {
	if d.Before(v.EffectiveFrom) {
		return false
	}
	return v.EffectiveTo == nil || !d.After(*v.EffectiveTo)
}

// TaxBracket is one band of the progressive income tax table.
// A nil MaxIncome marks the open-ended top bracket.
type TaxBracket struct {
	Order     int              `json:"order"`
	MinIncome decimal.Decimal  `json:"min_income"`
	MaxIncome *decimal.Decimal `json:"max_income,omitempty"`
	Rate      decimal.Decimal  `json:"rate"`
	BaseTax   decimal.Decimal  `json:"base_tax"`
}

// TaxRebate is an age-gated deduction from computed tax. Rebates are
// additive: every rebate whose MinAge the taxpayer meets applies.
type TaxRebate struct {
	Type   string          `json:"type"`
	MinAge int             `json:"min_age"`
	Amount decimal.Decimal `json:"amount"`
}

// MedicalAidCredit is a monthly tax credit tier.
type MedicalAidCredit struct {
	Type          string          `json:"type"`
	MonthlyAmount decimal.Decimal `json:"monthly_amount"`
}

// Medical credit tier names.
const (
	MedicalCreditMain           = "main"
	MedicalCreditFirstDependent = "first_dependent"
	MedicalCreditAdditional     = "additional"
)

// TaxYear owns the bracket/rebate/credit tables for one SA tax year
// (1 March to end of February). Brackets are ordered ascending by
// MinIncome; the engine trusts the ordering it is given.
type TaxYear struct {
	Year           int                `json:"year"`
	Description    string             `json:"description"`
	StartDate      time.Time          `json:"start_date"`
	EndDate        time.Time          `json:"end_date"`
	Brackets       []TaxBracket       `json:"brackets"`
	Rebates        []TaxRebate        `json:"rebates"`
	MedicalCredits []MedicalAidCredit `json:"medical_credits"`
}
