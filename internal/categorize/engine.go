// Package categorize assigns categories to transactions by running a
// prioritized pattern rule set behind a small set of built-in heuristics.
// Unmatched transactions stay uncategorized; the engine never guesses.
package categorize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/provtax/backend/internal/model"
)

// Category names the built-in heuristics route to. They must exist in the
// category set handed to NewEngine; the seed data installs them.
const (
	DefaultTransferCategory = "Transfers (Excluded)"
	DefaultFeeCategory      = "Fees/Bank charges"
)

// defaultTransferPatterns mark inter-account movements that must never be
// counted as income or expense.
var defaultTransferPatterns = []string{
	"IB TRANSFER TO",
	"IB TRANSFER FROM",
	"FUND TRANSFERS",
	"AUTOBANK TRANSFER",
}

// defaultMixedPatterns mark merchants whose single charge routinely covers
// both deductible and non-deductible items. Those are flagged for manual
// splitting instead of being auto-categorized.
var defaultMixedPatterns = []string{
	"TAKEALOT",
	"TAKEALO",
}

// IsTransmissionFee reports whether a description is a teletransmission /
// wire fee line. Statements print these adjacent to the gross foreign
// income they belong to; the fee is booked separately as a bank charge and
// the income entry keeps its gross value.
func IsTransmissionFee(description string) bool {
	upper := strings.ToUpper(description)
	return strings.Contains(upper, "FEE") && strings.Contains(upper, "TELETRANSMISSION")
}

// Engine evaluates the rule book against transaction descriptions.
// Build a fresh Engine from freshly-read rules for every run: priorities
// and active flags change between runs and must never be cached stale.
type Engine struct {
	// TransferCategory and FeeCategory override where the built-in
	// heuristics route. FeeMatcher overrides fee recognition; the correct
	// treatment of wire fees is a business policy, not a fixed rule.
	TransferCategory string
	FeeCategory      string
	FeeMatcher       func(description string) bool
	TransferPatterns []string
	MixedPatterns    []string

	rules      []model.ExpenseRule
	categories map[string]*model.Category
	byName     map[string]*model.Category
	compiled   map[string]*regexp.Regexp

	warnings []string
}

// NewEngine builds an engine over the active rule set and category
// catalogue. Rules are ordered by descending priority with rule ID as
// the deterministic tie-break.
func NewEngine(rules []model.ExpenseRule, categories []*model.Category) *Engine {
	e := &Engine{
		TransferCategory: DefaultTransferCategory,
		FeeCategory:      DefaultFeeCategory,
		FeeMatcher:       IsTransmissionFee,
		TransferPatterns: defaultTransferPatterns,
		MixedPatterns:    defaultMixedPatterns,
		categories:       make(map[string]*model.Category, len(categories)),
		byName:           make(map[string]*model.Category, len(categories)),
		compiled:         make(map[string]*regexp.Regexp),
	}
	for _, c := range categories {
		e.categories[c.ID] = c
		e.byName[c.Name] = c
	}

	for _, r := range rules {
		if r.IsActive {
			e.rules = append(e.rules, r)
		}
	}
	sort.SliceStable(e.rules, func(i, j int) bool {
		if e.rules[i].Priority != e.rules[j].Priority {
			return e.rules[i].Priority > e.rules[j].Priority
		}
		return e.rules[i].ID < e.rules[j].ID
	})

	return e
}

// Warnings returns diagnostics accumulated across Apply calls (invalid
// rule patterns, references to missing categories).
func (e *Engine) Warnings() []string {
	return e.warnings
}

// Apply categorizes one transaction in place and reports whether any field
// changed. Manual categorizations survive re-runs unless force is set.
// VAT defaults are copied from the assigned category only where the
// transaction carries none of its own.
func (e *Engine) Apply(tx *model.Transaction, force bool) bool {
	if tx.IsManual && !force {
		return false
	}

	if cat := e.match(tx.Description); cat != nil {
		return e.assign(tx, cat, false)
	}

	if e.isMixed(tx.Description) {
		if tx.NeedsSplit {
			return false
		}
		tx.NeedsSplit = true
		return true
	}

	// No match: leave uncategorized. Expected steady state, not an error.
	return false
}

// match resolves a description to a category: built-in transfer and fee
// heuristics first, then the rule book in priority order.
func (e *Engine) match(description string) *model.Category {
	upper := strings.ToUpper(description)

	for _, p := range e.TransferPatterns {
		if strings.Contains(upper, p) {
			return e.lookupName(e.TransferCategory)
		}
	}
	if e.FeeMatcher != nil && e.FeeMatcher(description) {
		return e.lookupName(e.FeeCategory)
	}

	for _, r := range e.rules {
		if !e.ruleMatches(r, upper) {
			continue
		}
		cat := e.categories[r.CategoryID]
		if cat == nil {
			e.warn("rule %s: unknown category %s", r.ID, r.CategoryID)
			continue
		}
		return cat
	}
	return nil
}

func (e *Engine) ruleMatches(r model.ExpenseRule, upperDesc string) bool {
	if !r.IsRegex {
		return strings.Contains(upperDesc, strings.ToUpper(r.Pattern))
	}
	re, ok := e.compiled[r.ID]
	if !ok {
		var err error
		re, err = regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			e.warn("rule %s: invalid pattern %q: %v", r.ID, r.Pattern, err)
			re = nil
		}
		e.compiled[r.ID] = re
	}
	return re != nil && re.MatchString(upperDesc)
}

// assign writes the category and its VAT defaults onto the transaction,
// reporting whether anything actually changed.
func (e *Engine) assign(tx *model.Transaction, cat *model.Category, needsSplit bool) bool {
	changed := false

	if tx.CategoryID == nil || *tx.CategoryID != cat.ID {
		id := cat.ID
		tx.CategoryID = &id
		changed = true
	}
	if tx.NeedsSplit != needsSplit {
		tx.NeedsSplit = needsSplit
		changed = true
	}

	if tx.VATRateType == "" && cat.DefaultVATRateType != "" {
		tx.VATRateType = cat.DefaultVATRateType
		// Input VAT is only reclaimable on business expenses.
		tx.VATClaimable = cat.Type == model.CategoryBusinessExpense
		changed = true
	}

	return changed
}

func (e *Engine) isMixed(description string) bool {
	upper := strings.ToUpper(description)
	for _, p := range e.MixedPatterns {
		if strings.Contains(upper, p) {
			return true
		}
	}
	return false
}

func (e *Engine) lookupName(name string) *model.Category {
	cat := e.byName[name]
	if cat == nil {
		e.warn("built-in category %q not present in category set", name)
	}
	return cat
}

func (e *Engine) warn(format string, args ...any) {
	e.warnings = append(e.warnings, fmt.Sprintf(format, args...))
}
