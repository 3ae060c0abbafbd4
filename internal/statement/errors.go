package statement

import "fmt"

// ParseErrorCode identifies why a statement could not be parsed.
type ParseErrorCode string

const (
	ErrUnknownLayout  ParseErrorCode = "UNKNOWN_LAYOUT"
	ErrScannedPDF     ParseErrorCode = "SCANNED_PDF"
	ErrUnreadablePDF  ParseErrorCode = "UNREADABLE_PDF"
	ErrEmptyStatement ParseErrorCode = "EMPTY_STATEMENT"
)

// ParseError is a structured error for statement parsing failures. It names
// the account and section so the caller can report where parsing stopped.
// Partial recovery never produces a ParseError; only unrecoverable documents do.
type ParseError struct {
	Code    ParseErrorCode
	Account string
	Section string
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	where := e.Section
	if e.Account != "" {
		where = e.Account + "/" + e.Section
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, where, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, where, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}
