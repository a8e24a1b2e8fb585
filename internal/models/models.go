package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the direction of a transaction
type TransactionType string

const (
	// TransactionTypeDebit represents a debit transaction
	TransactionTypeDebit TransactionType = "DEBIT"
	// TransactionTypeCredit represents a credit transaction
	TransactionTypeCredit TransactionType = "CREDIT"
)

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// IsValid checks if the transaction type is valid
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeDebit || t == TransactionTypeCredit
}

// Category represents the business category of a classification
type Category string

const (
	CategoryDeposit    Category = "DEPOSIT"
	CategoryWithdrawal Category = "WITHDRAWAL"
	CategoryFee        Category = "FEE"
	CategoryReversal   Category = "REVERSAL"
	CategoryOther      Category = "OTHER"
)

// String returns the string representation of Category
func (c Category) String() string {
	return string(c)
}

// IsValid checks if the category is one of the known values
func (c Category) IsValid() bool {
	switch c {
	case CategoryDeposit, CategoryWithdrawal, CategoryFee, CategoryReversal, CategoryOther:
		return true
	}
	return false
}

// RowIssue identifies a data problem detected on a single statement row.
// Flagged rows are still emitted so a reviewer can correct them.
type RowIssue string

const (
	IssueBadTransactionDate RowIssue = "bad_transaction_date"
	IssueBadValueDate       RowIssue = "bad_value_date"
	IssueBadDebit           RowIssue = "bad_debit"
	IssueBadCredit          RowIssue = "bad_credit"
	IssueBothSidesSet       RowIssue = "both_sides_set"
)

// RawRow represents one statement line exactly as parsed.
// It is immutable once produced by the parser; the Raw* fields preserve the
// original text for fields that failed to parse.
type RawRow struct {
	RowIndex        int             `json:"rowIndex"`
	TransactionDate time.Time       `json:"-"`
	ValueDate       time.Time       `json:"-"`
	Description     string          `json:"description"`
	Debit           decimal.Decimal `json:"-"`
	Credit          decimal.Decimal `json:"-"`

	RawTransactionDate string `json:"rawTransactionDate,omitempty"`
	RawValueDate       string `json:"rawValueDate,omitempty"`
	RawDebit           string `json:"rawDebit,omitempty"`
	RawCredit          string `json:"rawCredit,omitempty"`

	TellerNo           *int64     `json:"tellerNo,omitempty"`
	ChequeNo           *int64     `json:"chequeNo,omitempty"`
	ExtractedReference string     `json:"extractedReference,omitempty"`
	Issues             []RowIssue `json:"issues,omitempty"`
}

// HasIssues returns true if the row was flagged during parsing
func (r *RawRow) HasIssues() bool {
	return len(r.Issues) > 0
}

// HasIssue checks whether a specific issue was flagged on the row
func (r *RawRow) HasIssue(issue RowIssue) bool {
	for _, i := range r.Issues {
		if i == issue {
			return true
		}
	}
	return false
}

// AddIssue flags a data problem on the row. Duplicate flags are ignored.
func (r *RawRow) AddIssue(issue RowIssue) {
	if !r.HasIssue(issue) {
		r.Issues = append(r.Issues, issue)
	}
}

// String returns a string representation of the RawRow
func (r *RawRow) String() string {
	return fmt.Sprintf("RawRow{Index: %d, Date: %s, Desc: %q, Debit: %s, Credit: %s}",
		r.RowIndex, r.TransactionDate.Format("2006-01-02"), r.Description,
		r.Debit.String(), r.Credit.String())
}

// Classification represents a business-meaning tag for a transaction.
// Classifications are managed by an external registry and are read-only here.
type Classification struct {
	ID       int64    `json:"id"`
	Code     string   `json:"code"`
	Category Category `json:"category"`
	Label    string   `json:"label"`
}

// Validate performs basic validation on the Classification
func (c *Classification) Validate() error {
	if strings.TrimSpace(c.Code) == "" {
		return fmt.Errorf("classification code cannot be empty")
	}
	if !c.Category.IsValid() {
		return fmt.Errorf("invalid classification category: %s", c.Category)
	}
	return nil
}

// ClassificationPattern represents a keyword or regex rule that assigns a
// classification based on a transaction description. A nil BankID means the
// pattern applies to every bank.
type ClassificationPattern struct {
	ID               int64     `json:"id"`
	Keyword          string    `json:"keyword"`
	IsRegex          bool      `json:"isRegex"`
	BankID           *int64    `json:"bankId,omitempty"`
	ClassificationID int64     `json:"classificationId"`
	CreatedAt        time.Time `json:"createdAt"`
}

// IsGlobal returns true if the pattern applies to all banks
func (p *ClassificationPattern) IsGlobal() bool {
	return p.BankID == nil
}

// AppliesTo checks whether the pattern is in scope for the given bank
func (p *ClassificationPattern) AppliesTo(bankID int64) bool {
	return p.BankID == nil || *p.BankID == bankID
}

// Validate performs basic validation on the ClassificationPattern
func (p *ClassificationPattern) Validate() error {
	if strings.TrimSpace(p.Keyword) == "" {
		return fmt.Errorf("pattern keyword cannot be empty")
	}
	if p.IsRegex {
		if _, err := regexp.Compile(p.Keyword); err != nil {
			return fmt.Errorf("pattern is not a valid regular expression: %w", err)
		}
	}
	if p.ClassificationID == 0 {
		return fmt.Errorf("pattern must reference a classification")
	}
	return nil
}

// TransactionPreview is the working unit of the ingestion pipeline: a parsed
// row enriched with signed amount, running balance, classification and
// reversal annotations. Previews stay mutable to the reviewer until committed.
type TransactionPreview struct {
	RawRow

	Amount            decimal.Decimal `json:"-"`
	Type              TransactionType `json:"type"`
	Balance           decimal.Decimal `json:"-"`
	ClassificationID  *int64          `json:"classificationId,omitempty"`
	IsReversal        bool            `json:"isReversal"`
	ReversalPairIndex *int            `json:"reversalPairIndex,omitempty"`
}

// String returns a string representation of the TransactionPreview
func (p *TransactionPreview) String() string {
	return fmt.Sprintf("TransactionPreview{Index: %d, Amount: %s, Type: %s, Balance: %s, Reversal: %v}",
		p.RowIndex, p.Amount.String(), p.Type, p.Balance.String(), p.IsReversal)
}

// MarshalJSON implements custom JSON marshaling so dates render as
// YYYY-MM-DD and amounts as fixed two-decimal strings
func (p *TransactionPreview) MarshalJSON() ([]byte, error) {
	type Alias TransactionPreview
	return json.Marshal(&struct {
		TransactionDate string `json:"transactionDate"`
		ValueDate       string `json:"valueDate"`
		Debit           string `json:"debit"`
		Credit          string `json:"credit"`
		Amount          string `json:"amount"`
		Balance         string `json:"balance"`
		*Alias
	}{
		TransactionDate: formatDate(p.TransactionDate),
		ValueDate:       formatDate(p.ValueDate),
		Debit:           p.Debit.StringFixed(2),
		Credit:          p.Credit.StringFixed(2),
		Amount:          p.Amount.StringFixed(2),
		Balance:         p.Balance.StringFixed(2),
		Alias:           (*Alias)(p),
	})
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// AccountTransaction is the committed, persistent form of a preview row
type AccountTransaction struct {
	ID            string `json:"id"`
	BankAccountID int64  `json:"bankAccountId"`
	UploadedByID  int64  `json:"uploadedById"`

	RowIndex        int             `json:"rowIndex"`
	TransactionDate time.Time       `json:"transactionDate"`
	ValueDate       time.Time       `json:"valueDate"`
	Description     string          `json:"description"`
	Debit           decimal.Decimal `json:"debit"`
	Credit          decimal.Decimal `json:"credit"`
	Amount          decimal.Decimal `json:"amount"`
	Type            TransactionType `json:"type"`
	Balance         decimal.Decimal `json:"balance"`

	TellerNo          *int64 `json:"tellerNo,omitempty"`
	ChequeNo          *int64 `json:"chequeNo,omitempty"`
	ClassificationID  *int64 `json:"classificationId,omitempty"`
	IsReversal        bool   `json:"isReversal"`
	ReversalPairIndex *int   `json:"reversalPairIndex,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Account represents the slice of a bank account this core needs: identity,
// owning bank and the opening balance the running total starts from
type Account struct {
	ID             int64           `json:"id"`
	BankID         int64           `json:"bankId"`
	Name           string          `json:"name"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
}

// Utility functions for field parsing and reference extraction

// ParseDecimalFromString parses a non-negative decimal from statement text.
// Currency symbols and thousand separators are stripped first; an empty
// string parses as zero.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount cannot be negative: %s", d.String())
	}

	return d, nil
}

// ParseDateWithFormats attempts to parse a date using the given formats in
// order; the first format that succeeds wins
func ParseDateWithFormats(s string, formats []string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// DefaultDateFormats returns the date formats tried by default
func DefaultDateFormats() []string {
	return []string{
		"2006-01-02",
		"02/01/2006",
		"02-01-2006",
		"2006/01/02",
		"Jan 2, 2006",
		"2 Jan 2006",
	}
}

// Reference extraction patterns. Each list is applied in order against the
// row description; the first match wins for its field.
var (
	tellerNoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bTELLER\s*(?:NO\.?|#|:)?\s*(\d+)`),
		regexp.MustCompile(`(?i)\bTLR\s*[:#.]?\s*(\d+)`),
	}

	chequeNoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bCHE?QUE\s*(?:NO\.?|#|:)?\s*(\d+)`),
		regexp.MustCompile(`(?i)\bCHQ\s*[:#.]?\s*(\d+)`),
		regexp.MustCompile(`(?i)\bCHK\s*[:#.]?\s*(\d+)`),
	}

	referencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bREF(?:ERENCE)?\s*[:#.]?\s*([A-Za-z0-9][A-Za-z0-9/-]+)`),
	}
)

// ExtractTellerNo extracts a teller number embedded in the description, or
// nil when no pattern matches
func ExtractTellerNo(description string) *int64 {
	return extractNumber(description, tellerNoPatterns)
}

// ExtractChequeNo extracts a cheque number embedded in the description, or
// nil when no pattern matches
func ExtractChequeNo(description string) *int64 {
	return extractNumber(description, chequeNoPatterns)
}

// ExtractReference extracts a free-form reference token from the
// description, or "" when no pattern matches
func ExtractReference(description string) string {
	for _, re := range referencePatterns {
		if m := re.FindStringSubmatch(description); m != nil {
			return m[1]
		}
	}
	return ""
}

func extractNumber(description string, patterns []*regexp.Regexp) *int64 {
	for _, re := range patterns {
		m := re.FindStringSubmatch(description)
		if m == nil {
			continue
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		return &n
	}
	return nil
}
