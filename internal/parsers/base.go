// Package parsers converts uploaded bank statement files into ordered RawRow
// records.
//
// The parser is deliberately forgiving at the row level: a row with a bad
// date or a non-numeric amount is still emitted, flagged, with its raw text
// preserved so a reviewer can correct it. Only structural problems (an
// unreadable file, a missing header row) fail the whole parse.
//
// Two record sources are supported behind the same row-conversion path:
//   - CSV via encoding/csv
//   - XLSX via excelize
package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"statement-ingestion-service/pkg/errors"
)

// ParseError records an error or flag raised while parsing a single row
type ParseError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at line %d (%s='%s'): %s: %v",
			e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at line %d (%s='%s'): %s",
		e.Line, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// recordSource yields one record of cell values at a time, io.EOF at the end
type recordSource interface {
	Read() ([]string, error)
}

// csvSource adapts encoding/csv to the recordSource interface
type csvSource struct {
	reader *csv.Reader
}

func newCSVSource(r io.Reader, delimiter rune) *csvSource {
	reader := csv.NewReader(r)
	if delimiter != 0 {
		reader.Comma = delimiter
	}
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	return &csvSource{reader: reader}
}

func (s *csvSource) Read() ([]string, error) {
	return s.reader.Read()
}

// ParseContext holds state during a single parse run
type ParseContext struct {
	LineNumber int
	Headers    []string
	HeaderMap  map[string]int
	ctx        context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled.
// Cancellation is cooperative and checked between rows.
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// GetColumnIndex returns the index of a column by name, or -1 if not found.
// Lookup falls back to a case-insensitive scan.
func (pc *ParseContext) GetColumnIndex(name string) int {
	if index, exists := pc.HeaderMap[name]; exists {
		return index
	}

	lowerName := strings.ToLower(name)
	for header, index := range pc.HeaderMap {
		if strings.ToLower(header) == lowerName {
			return index
		}
	}

	return -1
}

// readHeaders reads and validates the header row from the record source
func readHeaders(source recordSource, parseCtx *ParseContext, requiredColumns []string) error {
	headers, err := source.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ParseError(errors.CodeMissingHeader, 0, "", "", nil)
		}
		return errors.ParseError(errors.CodeInvalidFormat, 1, "headers", "", err).
			WithSuggestion("Check the file format and ensure it is a valid statement export")
	}

	parseCtx.LineNumber++
	parseCtx.Headers = make([]string, len(headers))
	for i, header := range headers {
		parseCtx.Headers[i] = strings.TrimSpace(header)
	}

	parseCtx.HeaderMap = make(map[string]int)
	for i, header := range parseCtx.Headers {
		parseCtx.HeaderMap[header] = i
	}

	var missing []string
	for _, column := range requiredColumns {
		if parseCtx.GetColumnIndex(column) == -1 {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return errors.ParseError(
			errors.CodeMissingColumn,
			parseCtx.LineNumber,
			strings.Join(missing, ", "),
			"",
			nil,
		).WithSuggestion(fmt.Sprintf("Ensure the statement contains these columns: %s", strings.Join(missing, ", ")))
	}

	return nil
}

// readRecord reads the next non-empty record, validating its encoding
func readRecord(source recordSource, parseCtx *ParseContext) ([]string, error) {
	for {
		if parseCtx.IsCancelled() {
			return nil, errors.InternalError(errors.CodeCancelled, "statement_parsing", parseCtx.ctx.Err())
		}

		record, err := source.Read()
		if err != nil {
			return nil, err // io.EOF or a row-level read error; caller decides
		}

		parseCtx.LineNumber++

		if isEmptyRecord(record) {
			continue
		}

		for i, field := range record {
			if !utf8.ValidString(field) {
				return nil, errors.ParseError(
					errors.CodeEncodingError,
					parseCtx.LineNumber,
					fmt.Sprintf("field_%d", i),
					"",
					nil,
				).WithSuggestion("Save the file in UTF-8 encoding and upload again")
			}
		}

		return record, nil
	}
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// fieldValue retrieves a named field from a record, or "" when the column is
// missing from this particular row
func fieldValue(record []string, parseCtx *ParseContext, columnName string) string {
	index := parseCtx.GetColumnIndex(columnName)
	if index == -1 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalLines  int           `json:"total_lines"`
	RowsEmitted int           `json:"rows_emitted"`
	RowsFlagged int           `json:"rows_flagged"`
	ErrorCount  int           `json:"error_count"`
	Errors      []*ParseError `json:"-"`
}

// NewParseStats creates a new ParseStats instance
func NewParseStats() *ParseStats {
	return &ParseStats{
		Errors: make([]*ParseError, 0),
	}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d rows emitted (%d flagged), %d errors",
		ps.TotalLines, ps.RowsEmitted, ps.RowsFlagged, ps.ErrorCount)
}

// GetSampleErrors returns a sample of the parsing errors for logging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}

	return samples
}
