package parsers

import (
	"fmt"
	"path/filepath"
	"strings"

	"statement-ingestion-service/internal/models"
)

// Format identifies the tabular file format of an uploaded statement
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat guesses the statement format from a file name, defaulting to CSV
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm", ".xls":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// StatementParserConfig holds the column mapping and parsing options for a
// bank statement format
type StatementParserConfig struct {
	TransactionDateColumn string            `json:"transaction_date_column"`
	ValueDateColumn       string            `json:"value_date_column"`
	DescriptionColumn     string            `json:"description_column"`
	DebitColumn           string            `json:"debit_column"`
	CreditColumn          string            `json:"credit_column"`
	DateFormats           []string          `json:"date_formats"`
	HasHeader             bool              `json:"has_header"`
	Delimiter             rune              `json:"delimiter"`
	ColumnAliases         map[string]string `json:"column_aliases,omitempty"`
	Description           string            `json:"description,omitempty"`
}

// Validate checks if the statement parser configuration is valid
func (c *StatementParserConfig) Validate() error {
	if strings.TrimSpace(c.TransactionDateColumn) == "" {
		return fmt.Errorf("transaction date column cannot be empty")
	}

	if strings.TrimSpace(c.ValueDateColumn) == "" {
		return fmt.Errorf("value date column cannot be empty")
	}

	if strings.TrimSpace(c.DescriptionColumn) == "" {
		return fmt.Errorf("description column cannot be empty")
	}

	if strings.TrimSpace(c.DebitColumn) == "" {
		return fmt.Errorf("debit column cannot be empty")
	}

	if strings.TrimSpace(c.CreditColumn) == "" {
		return fmt.Errorf("credit column cannot be empty")
	}

	if len(c.DateFormats) == 0 {
		return fmt.Errorf("at least one date format is required")
	}

	return nil
}

// GetColumnName returns the actual column name, checking aliases first
func (c *StatementParserConfig) GetColumnName(standardName string) string {
	if alias, exists := c.ColumnAliases[standardName]; exists {
		return alias
	}

	switch standardName {
	case "transaction_date":
		return c.TransactionDateColumn
	case "value_date":
		return c.ValueDateColumn
	case "description":
		return c.DescriptionColumn
	case "debit":
		return c.DebitColumn
	case "credit":
		return c.CreditColumn
	default:
		return standardName
	}
}

// DefaultStatementParserConfig returns a configuration with standard defaults
func DefaultStatementParserConfig() *StatementParserConfig {
	return &StatementParserConfig{
		TransactionDateColumn: "transaction_date",
		ValueDateColumn:       "value_date",
		DescriptionColumn:     "description",
		DebitColumn:           "debit",
		CreditColumn:          "credit",
		DateFormats:           models.DefaultDateFormats(),
		HasHeader:             true,
		Delimiter:             ',',
		ColumnAliases:         make(map[string]string),
		Description:           "Standard statement format",
	}
}

// Predefined statement configurations for common bank export formats
var (
	// StandardStatementConfig represents a generic statement format
	StandardStatementConfig = DefaultStatementParserConfig()

	// SemicolonStatementConfig represents European exports that use
	// semicolon delimiters and day-first dates
	SemicolonStatementConfig = &StatementParserConfig{
		TransactionDateColumn: "booking_date",
		ValueDateColumn:       "value_date",
		DescriptionColumn:     "details",
		DebitColumn:           "debit",
		CreditColumn:          "credit",
		DateFormats:           []string{"02/01/2006", "02-01-2006", "2006-01-02"},
		HasHeader:             true,
		Delimiter:             ';',
		Description:           "Semicolon-delimited statement format with day-first dates",
	}
)

// GetStatementConfig returns a predefined statement configuration by name
func GetStatementConfig(name string) *StatementParserConfig {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "standard":
		return StandardStatementConfig
	case "semicolon":
		return SemicolonStatementConfig
	default:
		return nil
	}
}

// AutoDetectStatementConfig attempts to pick a configuration whose key
// columns all appear in the given headers, falling back to the standard one
func AutoDetectStatementConfig(headers []string) *StatementParserConfig {
	headerMap := make(map[string]bool)
	for _, header := range headers {
		headerMap[strings.ToLower(strings.TrimSpace(header))] = true
	}

	for _, config := range []*StatementParserConfig{StandardStatementConfig, SemicolonStatementConfig} {
		if headerMap[strings.ToLower(config.TransactionDateColumn)] &&
			headerMap[strings.ToLower(config.DescriptionColumn)] &&
			headerMap[strings.ToLower(config.DebitColumn)] &&
			headerMap[strings.ToLower(config.CreditColumn)] {
			return config
		}
	}

	return StandardStatementConfig
}
