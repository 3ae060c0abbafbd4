// Package vat decomposes transaction amounts into VAT-exclusive value and
// VAT, using the dated standard-rate history, and aggregates input/output
// VAT over a filing period.
package vat

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/provtax/backend/internal/model"
)

// ConfigurationError reports that the rate history cannot answer a lookup.
// It is a hard error: silently assuming a rate corrupts every downstream
// VAT figure.
type ConfigurationError struct {
	Date    time.Time
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("vat configuration: %s (date %s)", e.Message, e.Date.Format("2006-01-02"))
}

// RateTable answers "what was the standard VAT rate on date d" from the
// configured rate segments.
type RateTable struct {
	configs []model.VATRateConfig
}

// NewRateTable builds a lookup table from the active rate segments,
// ordered by effective date.
func NewRateTable(configs []model.VATRateConfig) *RateTable {
	t := &RateTable{}
	for _, c := range configs {
		if c.IsActive {
			t.configs = append(t.configs, c)
		}
	}
	sort.Slice(t.configs, func(i, j int) bool {
		return t.configs[i].EffectiveFrom.Before(t.configs[j].EffectiveFrom)
	})
	return t
}

// RateOn returns the standard rate in force on d, or a *ConfigurationError
// when no segment covers it.
func (t *RateTable) RateOn(d time.Time) (decimal.Decimal, error) {
	// Segments are few (two since 1993); linear scan newest-first.
	for i := len(t.configs) - 1; i >= 0; i-- {
		if t.configs[i].Covers(d) {
			return t.configs[i].StandardRate, nil
		}
	}
	return decimal.Zero, &ConfigurationError{Date: d, Message: "no standard rate configured for date"}
}

// Breakdown is the VAT decomposition of one transaction. Amounts keep the
// transaction's sign. Included reports whether the transaction participates
// in VAT totals at all.
type Breakdown struct {
	RateType  model.VATRateType
	Rate      decimal.Decimal
	Exclusive decimal.Decimal
	VAT       decimal.Decimal
	Inclusive decimal.Decimal
	Claimable bool
	Included  bool
}

// Decompose splits a transaction amount into exclusive value and VAT.
// An explicit VATAmount on the transaction overrides the computed split.
// Transactions tagged no_vat (or carrying no rate type at all) are returned
// with Included=false and contribute nothing to totals.
func Decompose(tx *model.Transaction, table *RateTable) (Breakdown, error) {
	b := Breakdown{RateType: tx.VATRateType, Claimable: tx.VATClaimable}

	switch tx.VATRateType {
	case model.VATNone, "":
		b.RateType = model.VATNone
		b.Inclusive = tx.Amount
		b.Exclusive = tx.Amount
		return b, nil
	case model.VATZeroRated, model.VATExempt:
		b.Included = true
		b.Inclusive = tx.Amount
		b.Exclusive = tx.Amount
		b.VAT = decimal.Zero
		return b, nil
	case model.VATStandard:
		rate, err := table.RateOn(tx.Date)
		if err != nil {
			return Breakdown{}, err
		}
		b.Included = true
		b.Rate = rate

		if tx.VATAmount != nil {
			b.VAT = *tx.VATAmount
			if tx.AmountInclVAT {
				b.Inclusive = tx.Amount
				b.Exclusive = tx.Amount.Sub(b.VAT)
			} else {
				b.Exclusive = tx.Amount
				b.Inclusive = tx.Amount.Add(b.VAT)
			}
			return b, nil
		}

		one := decimal.NewFromInt(1)
		if tx.AmountInclVAT {
			b.Inclusive = tx.Amount
			b.Exclusive = tx.Amount.Div(one.Add(rate)).Round(2)
			b.VAT = tx.Amount.Sub(b.Exclusive)
		} else {
			b.Exclusive = tx.Amount
			b.VAT = tx.Amount.Mul(rate).Round(2)
			b.Inclusive = tx.Amount.Add(b.VAT)
		}
		return b, nil
	default:
		return Breakdown{}, &ConfigurationError{Date: tx.Date, Message: fmt.Sprintf("unknown vat rate type %q", tx.VATRateType)}
	}
}

// RateBucket accumulates totals for one rate type within a period summary.
type RateBucket struct {
	RateType  model.VATRateType `json:"rate_type"`
	Exclusive decimal.Decimal   `json:"exclusive"`
	VAT       decimal.Decimal   `json:"vat"`
	Count     int               `json:"count"`
}

// PeriodSummary is a VAT position for one filing period. OutputVAT is VAT
// on inflows; InputVAT is reclaimable VAT on outflows. NetVAT = OutputVAT -
// InputVAT (positive means payable to the revenue service). NonClaimableVAT
// is VAT paid but not reclaimable, reported for visibility only.
type PeriodSummary struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	OutputVAT       decimal.Decimal `json:"output_vat"`
	InputVAT        decimal.Decimal `json:"input_vat"`
	NetVAT          decimal.Decimal `json:"net_vat"`
	NonClaimableVAT decimal.Decimal `json:"non_claimable_vat"`

	OutputExclusive decimal.Decimal `json:"output_exclusive"`
	InputExclusive  decimal.Decimal `json:"input_exclusive"`

	ByRate []RateBucket `json:"by_rate"`
}

// Summarize computes the VAT position over [start, end] from the effective
// transactions. Duplicates and soft-deleted rows must already be filtered
// by the caller's Effective checks; Summarize enforces it again to keep the
// figure trustworthy regardless of call site. The sign of the amount decides
// the side of the return: inflows are output VAT, claimable outflows are
// input VAT. Uncategorized rows still count when they carry a rate type.
func Summarize(txs []*model.Transaction, categories map[string]*model.Category, table *RateTable, start, end time.Time) (*PeriodSummary, error) {
	s := &PeriodSummary{Start: start, End: end}
	buckets := make(map[model.VATRateType]*RateBucket)

	for _, tx := range txs {
		if !tx.Effective() {
			continue
		}
		if tx.Date.Before(start) || tx.Date.After(end) {
			continue
		}
		if tx.CategoryID != nil {
			if cat := categories[*tx.CategoryID]; cat != nil && cat.ExcludedFromTax() {
				continue
			}
		}

		b, err := Decompose(tx, table)
		if err != nil {
			return nil, err
		}
		if !b.Included {
			continue
		}

		excl := b.Exclusive.Abs()
		v := b.VAT.Abs()

		bucket := buckets[b.RateType]
		if bucket == nil {
			bucket = &RateBucket{RateType: b.RateType}
			buckets[b.RateType] = bucket
		}
		bucket.Exclusive = bucket.Exclusive.Add(excl)
		bucket.VAT = bucket.VAT.Add(v)
		bucket.Count++

		switch {
		case tx.Amount.IsPositive():
			s.OutputVAT = s.OutputVAT.Add(v)
			s.OutputExclusive = s.OutputExclusive.Add(excl)
		case b.Claimable:
			s.InputVAT = s.InputVAT.Add(v)
			s.InputExclusive = s.InputExclusive.Add(excl)
		default:
			// Non-claimable VAT paid never enters the return.
			s.NonClaimableVAT = s.NonClaimableVAT.Add(v)
		}
	}

	s.NetVAT = s.OutputVAT.Sub(s.InputVAT)

	for _, rt := range []model.VATRateType{model.VATStandard, model.VATZeroRated, model.VATExempt} {
		if b, ok := buckets[rt]; ok {
			s.ByRate = append(s.ByRate, *b)
		}
	}
	return s, nil
}
