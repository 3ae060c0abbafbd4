// Package statement reconstructs candidate transactions from the extracted
// text of bank statement documents. Each account type uses a different
// layout; the parser recovers what it can and reports every skipped line
// instead of failing the document.
package statement

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/provtax/backend/internal/model"
)

// Candidate is one best-effort transaction recovered from statement text.
type Candidate struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Balance     *decimal.Decimal
}

// Diagnostic records one line the parser saw but could not use.
type Diagnostic struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// Result is the parser output: recovered candidates plus everything that
// was skipped. Partial success is the normal outcome for messy documents.
type Result struct {
	AccountType   model.AccountType
	AccountNumber string
	StartDate     time.Time
	EndDate       time.Time
	Candidates    []Candidate
	Skipped       []Diagnostic
}

// Plausibility bounds per account type. Values outside these are almost
// always header/footer numeric noise, not transactions.
var maxAmountByType = map[model.AccountType]decimal.Decimal{
	model.AccountCheque:     decimal.NewFromInt(5_000_000),
	model.AccountCreditCard: decimal.NewFromInt(5_000_000),
	model.AccountMortgage:   decimal.NewFromInt(10_000_000),
}

var minAmount = decimal.RequireFromString("0.01")

var (
	accountNumberRes = []*regexp.Regexp{
		regexp.MustCompile(`Account:\s+(?:Signature|Cheque)\s+([\d\-\s]+)`),
		regexp.MustCompile(`Account number:\s*([\d*][\d*\s]+)`),
		regexp.MustCompile(`Account:\s*Credit Card\s*([\dx\-]+)`),
		regexp.MustCompile(`Account[:\s]+(?:Housing Loan|Home Loan)\s*([\d\s\-]+)`),
	}

	dateRangeRes = []*regexp.Regexp{
		regexp.MustCompile(`Transaction date range:\s*(\d+\s+\w+\s+\d+)\s*-\s*(\d+\s+\w+\s+\d+)`),
		regexp.MustCompile(`Statement Period\s+(\d+\s+\w+\s+\d+)\s+to\s+(\d+\s+\w+\s+\d+)`),
		regexp.MustCompile(`(?s)From:\s*(\d+\s+\w+\s+\d+).*?To:\s*(\d+\s+\w+\s+\d+)`),
	}

	// mortgageMonthEndRe marks line items that statements date mid-month but
	// the bank books at month end (interest runs, insurance premiums).
	mortgageMonthEndRe = regexp.MustCompile(`(?i)INTEREST|INSURANCE`)

	// footerRe matches boilerplate continuation lines that must never be
	// glued onto a description.
	footerRe = regexp.MustCompile(`^(Customer Care|The Standard)`)
)

// Parse converts raw extracted statement text into candidates for the given
// account type. It returns a *ParseError only when the document as a whole
// is unusable; individual bad lines become Skipped diagnostics.
func Parse(text string, accountType model.AccountType) (*Result, error) {
	switch accountType {
	case model.AccountCheque, model.AccountCreditCard, model.AccountMortgage:
	default:
		return nil, &ParseError{
			Code:    ErrUnknownLayout,
			Section: "header",
			Message: "unsupported account type " + string(accountType),
		}
	}

	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{
			Code:    ErrEmptyStatement,
			Section: "document",
			Message: "no text extracted from statement",
		}
	}

	p := &parser{
		result: &Result{AccountType: accountType},
		layout: layoutFor(accountType, text),
	}
	p.run(text)

	if len(p.result.Candidates) == 0 && len(p.result.Skipped) == 0 {
		return nil, &ParseError{
			Code:    ErrEmptyStatement,
			Account: p.result.AccountNumber,
			Section: "transactions",
			Message: "no transaction lines found",
		}
	}
	return p.result, nil
}

// layout captures the per-account-type differences in one place.
type layout struct {
	accountType model.AccountType
	// summary layouts print the description on a continuation line below
	// the amounts and always carry an explicit two-digit year.
	summary bool
	// flipSign coerces positive amounts negative (credit card statements
	// list charges unsigned).
	flipSign bool
	// anchorMonthEnd moves matching line items to the month-end date.
	anchorMonthEnd bool
}

// layoutFor picks the layout variant. Cheque and credit-card statements come
// in a detailed and a 6-month summary flavor, distinguished by the column
// headers on the first page.
func layoutFor(accountType model.AccountType, text string) layout {
	l := layout{accountType: accountType}
	switch accountType {
	case model.AccountCreditCard:
		l.flipSign = true
		l.summary = strings.Contains(text, "Payments") && strings.Contains(text, "Deposits")
	case model.AccountCheque:
		l.summary = strings.Contains(text, "Payments") && strings.Contains(text, "Deposits")
	case model.AccountMortgage:
		l.anchorMonthEnd = true
	}
	return l
}

type parser struct {
	result *Result
	layout layout

	// contextYear is the two-digit year set by the most recent standalone
	// year marker line.
	contextYear string
}

func (p *parser) run(text string) {
	lines := strings.Split(text, "\n")

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		if yearMarkerRe.MatchString(line) {
			p.contextYear = line[len(line)-2:]
			continue
		}

		p.scanHeader(line, lines, i)

		m := dateLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		dayMonth, yearDigits, rest := m[1], m[2], m[3]

		// Summary layouts put the counterparty detail on the next line.
		if p.layout.summary && i+1 < len(lines) {
			next := strings.TrimSpace(lines[i+1])
			if next != "" && !dateLineRe.MatchString(next) && !footerRe.MatchString(next) {
				rest = rest + " " + next
			}
		}

		// Detailed layouts sometimes print amounts on the date line and the
		// description alone on the following line.
		if !p.layout.summary && !strings.ContainsFunc(rest, isLetter) && i+1 < len(lines) {
			next := strings.TrimSpace(lines[i+1])
			if next != "" && !dateLineRe.MatchString(next) && !footerRe.MatchString(next) {
				rest = next + " " + rest
				i++
			}
		}

		p.emit(i+1, line, dayMonth, yearDigits, rest)
	}
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// scanHeader opportunistically fills account number and claimed date range
// from whatever header line mentions them first.
func (p *parser) scanHeader(line string, lines []string, idx int) {
	if p.result.AccountNumber == "" {
		for _, re := range accountNumberRes {
			if m := re.FindStringSubmatch(line); m != nil {
				num := strings.NewReplacer(" ", "", "-", "", "x", "*").Replace(strings.TrimSpace(m[1]))
				if len(num) >= 6 {
					p.result.AccountNumber = num
				}
				break
			}
		}
	}

	if p.result.StartDate.IsZero() {
		// The From:/To: pair can span lines; probe a small window.
		window := line
		for j := idx + 1; j < len(lines) && j <= idx+3; j++ {
			window += "\n" + lines[j]
		}
		for _, re := range dateRangeRes {
			if m := re.FindStringSubmatch(window); m != nil {
				start, end := parseDate(m[1]), parseDate(m[2])
				if !start.IsZero() && !end.IsZero() {
					p.result.StartDate, p.result.EndDate = start, end
				}
				break
			}
		}
	}
}

// emit resolves the date and amount for one matched transaction line and
// appends either a Candidate or a Diagnostic.
func (p *parser) emit(lineNo int, raw, dayMonth, yearDigits, rest string) {
	date := p.resolveDate(dayMonth, yearDigits)
	if date.IsZero() {
		p.skip(lineNo, raw, "unparseable date")
		return
	}

	description, amounts := splitAmounts(rest)
	if len(amounts) == 0 {
		p.skip(lineNo, raw, "no numeric amount")
		return
	}
	if description == "" {
		p.skip(lineNo, raw, "no description")
		return
	}

	amount := amounts[0]
	var balance *decimal.Decimal
	if len(amounts) > 1 {
		b := amounts[1]
		balance = &b
	}

	abs := amount.Abs()
	if abs.LessThan(minAmount) || abs.GreaterThan(maxAmountByType[p.layout.accountType]) {
		p.skip(lineNo, raw, "implausible amount "+amount.StringFixed(2))
		return
	}

	if p.layout.flipSign && amount.IsPositive() {
		amount = amount.Neg()
	}
	if p.layout.anchorMonthEnd && mortgageMonthEndRe.MatchString(description) {
		date = monthEnd(date)
	}

	p.result.Candidates = append(p.result.Candidates, Candidate{
		Date:        date,
		Description: description,
		Amount:      amount,
		Balance:     balance,
	})
}

// resolveDate combines the day-month fragment with the best available year:
// the year printed on the line, the standalone year marker context, then the
// statement's claimed range. With no year source at all the zero time is
// returned and the line becomes a diagnostic rather than a guessed date.
func (p *parser) resolveDate(dayMonth, yearDigits string) time.Time {
	switch {
	case yearDigits != "":
		return parseDate(dayMonth + " " + yearDigits)
	case p.contextYear != "":
		return parseDate(dayMonth + " " + p.contextYear)
	case !p.result.StartDate.IsZero():
		return parseDate(dayMonth + " " + p.result.StartDate.Format("06"))
	}
	return time.Time{}
}

func (p *parser) skip(lineNo int, text, reason string) {
	p.result.Skipped = append(p.result.Skipped, Diagnostic{Line: lineNo, Text: text, Reason: reason})
}
