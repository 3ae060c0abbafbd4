package statement

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/provtax/backend/internal/model"
)

const (
	// maxTextBytes caps extracted text; statements past this are boilerplate.
	maxTextBytes = 512 * 1024
	// scannedThreshold is the chars-per-page floor below which a PDF is
	// treated as scanned (image-only) rather than text.
	scannedThreshold = 50
)

// ExtractText pulls the plain text out of a statement PDF. Scanned PDFs
// carry no extractable text and fail with a ParseError; the parser has no
// OCR path. The pdf library panics on some malformed files, hence the
// recover guard.
func ExtractText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &ParseError{
				Code:    ErrUnreadablePDF,
				Section: "document",
				Message: fmt.Sprintf("panic during PDF text extraction: %v", r),
			}
		}
	}()

	reader, rerr := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if rerr != nil {
		return "", &ParseError{Code: ErrUnreadablePDF, Section: "document", Message: "open PDF", Cause: rerr}
	}

	pageCount := reader.NumPage()
	if pageCount < 1 {
		pageCount = 1
	}

	plain, rerr := reader.GetPlainText()
	if rerr != nil {
		return "", &ParseError{Code: ErrUnreadablePDF, Section: "document", Message: "extract plain text", Cause: rerr}
	}
	raw, rerr := io.ReadAll(io.LimitReader(plain, maxTextBytes))
	if rerr != nil {
		return "", &ParseError{Code: ErrUnreadablePDF, Section: "document", Message: "read plain text", Cause: rerr}
	}

	text = string(raw)
	if len(strings.TrimSpace(text))/pageCount < scannedThreshold {
		return "", &ParseError{
			Code:    ErrScannedPDF,
			Section: "document",
			Message: fmt.Sprintf("%d chars over %d pages looks like a scanned document", len(text), pageCount),
		}
	}
	return text, nil
}

// accountTypeMarkers maps first-page keywords to account types, checked in
// order. Statements name their product prominently on page one.
var accountTypeMarkers = []struct {
	keywords    []string
	accountType model.AccountType
}{
	{[]string{"SIGNATURE", "CHEQUE"}, model.AccountCheque},
	{[]string{"CREDIT CARD", "CARD DIVISION", "WORLD CITIZEN CARD"}, model.AccountCreditCard},
	{[]string{"HOUSING LOAN", "HOME LOAN"}, model.AccountMortgage},
}

// DetectAccountType classifies a statement by its first-page product
// keywords. Unknown layouts are a hard ParseError: guessing a layout
// produces garbage candidates, not partial results.
func DetectAccountType(text string) (model.AccountType, error) {
	upper := strings.ToUpper(firstPage(text))
	for _, marker := range accountTypeMarkers {
		for _, kw := range marker.keywords {
			if strings.Contains(upper, kw) {
				return marker.accountType, nil
			}
		}
	}
	return "", &ParseError{
		Code:    ErrUnknownLayout,
		Section: "header",
		Message: "no known account type marker on first page",
	}
}

// firstPage approximates the first page as the first 4KB of text; product
// markers sit in the letterhead.
func firstPage(text string) string {
	if len(text) > 4096 {
		return text[:4096]
	}
	return text
}
