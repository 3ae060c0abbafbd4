package statement

import (
	"strings"
	"time"

	"github.com/provtax/backend/internal/model"
)

// Duplicate detection thresholds. A pair qualifies when the dates fall
// within dateTolerance of each other, the amounts match exactly, and the
// descriptions score at or above similarityThreshold.
const (
	dateTolerance       = 24 * time.Hour
	similarityThreshold = 0.8
)

// DuplicatePair is one candidate pair flagged for human review. The
// resolver never merges or deletes; it only reports.
type DuplicatePair struct {
	First      *model.Transaction `json:"first"`
	Second     *model.Transaction `json:"second"`
	Similarity float64            `json:"similarity"`
}

// FindDuplicates scans a combined transaction set for likely duplicates.
// Callers pass the account's full stored set plus any newly parsed batch so
// overlapping statement uploads are caught at commit time. Rows already
// soft-deleted are ignored; rows already flagged duplicate are kept so a
// re-upload of the same statement still pairs against them.
func FindDuplicates(txns []*model.Transaction) []DuplicatePair {
	var pairs []DuplicatePair

	for i := 0; i < len(txns); i++ {
		a := txns[i]
		if a.IsDeleted {
			continue
		}
		for j := i + 1; j < len(txns); j++ {
			b := txns[j]
			if b.IsDeleted {
				continue
			}
			if !withinTolerance(a.Date, b.Date) {
				continue
			}
			if !a.Amount.Equal(b.Amount) {
				continue
			}
			score := descriptionSimilarity(a.Description, b.Description)
			if score >= similarityThreshold {
				pairs = append(pairs, DuplicatePair{First: a, Second: b, Similarity: score})
			}
		}
	}
	return pairs
}

func withinTolerance(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= dateTolerance
}

// descriptionSimilarity scores two descriptions in [0, 1]. Exact matches
// score 1.0 and one description containing the other scores 0.8, matching
// how re-uploaded statements truncate or extend merchant strings. Anything
// else falls back to token overlap against the smaller token set.
func descriptionSimilarity(a, b string) float64 {
	na, nb := normalizeDescription(a), normalizeDescription(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.8
	}

	ta, tb := tokenSet(na), tokenSet(nb)
	smaller := len(ta)
	if len(tb) < smaller {
		smaller = len(tb)
	}
	if smaller == 0 {
		return 0
	}
	shared := 0
	for tok := range ta {
		if tb[tok] {
			shared++
		}
	}
	return float64(shared) / float64(smaller)
}

func normalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}
