package statement

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateFormats to try when parsing statement dates. Statements mix padded and
// unpadded days, abbreviated and full month names, and two- and four-digit years.
var dateFormats = []string{
	"2 Jan 06",
	"2 Jan 2006",
	"2 January 06",
	"2 January 2006",
}

// parseDate resolves a statement date string like "01 Apr 25" or
// "1 April 2025". Returns the zero time when no format matches.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

var (
	// yearMarkerRe matches standalone year context lines ("2024") that some
	// layouts print once above a run of day-month transaction lines.
	yearMarkerRe = regexp.MustCompile(`^\d{4}$`)

	// dateLineRe matches a transaction line start: day + month, optional
	// two-digit year, then the rest of the line.
	dateLineRe = regexp.MustCompile(`^(\d{1,2}\s+[A-Za-z]{3,9})(?:\s+(\d{2})\b)?\s+(.+)$`)

	// amountTokenRe matches one monetary field after comma stripping.
	amountTokenRe = regexp.MustCompile(`^[-+]?\d+\.\d{2}$`)

	// bareNumberRe matches an unsigned monetary field, used when a detached
	// sign token precedes the number ("- 199.98").
	bareNumberRe = regexp.MustCompile(`^[\d,]+\.\d{2}$`)
)

// splitAmounts walks the whitespace-separated fields of a transaction line
// tail and separates description words from monetary fields. Detached sign
// tokens are joined with the number that follows them. The first monetary
// field is the transaction amount; a second, if present, is the running
// balance.
func splitAmounts(rest string) (description string, amounts []decimal.Decimal) {
	parts := strings.Fields(rest)
	var words []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		if (part == "-" || part == "+") && i+1 < len(parts) && bareNumberRe.MatchString(parts[i+1]) {
			if d, err := decimal.NewFromString(part + strings.ReplaceAll(parts[i+1], ",", "")); err == nil {
				amounts = append(amounts, d)
				i++
				continue
			}
		}

		clean := strings.ReplaceAll(part, ",", "")
		if amountTokenRe.MatchString(clean) {
			if d, err := decimal.NewFromString(strings.TrimPrefix(clean, "+")); err == nil {
				amounts = append(amounts, d)
				continue
			}
		}

		words = append(words, part)
	}

	return strings.Join(words, " "), amounts
}

// monthEnd returns the last day of t's month, keeping UTC midnight.
func monthEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC)
}
