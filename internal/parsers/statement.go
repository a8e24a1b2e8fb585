package parsers

import (
	"context"
	"encoding/csv"
	"io"
	"time"

	"statement-ingestion-service/internal/models"
	"statement-ingestion-service/pkg/errors"
	"statement-ingestion-service/pkg/logger"
)

// StatementParser converts an uploaded statement stream into ordered RawRow
// records according to a column mapping configuration
type StatementParser struct {
	config *StatementParserConfig
	logger logger.Logger
}

// NewStatementParser creates a new StatementParser with the given configuration
func NewStatementParser(config *StatementParserConfig) (*StatementParser, error) {
	if config == nil {
		config = DefaultStatementParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"statement_parser_config",
			config,
			err,
		).WithSuggestion("Check the statement parser column mapping")
	}

	log := logger.GetGlobalLogger().WithComponent("statement_parser")
	log.WithFields(logger.Fields{
		"has_header": config.HasHeader,
		"delimiter":  string(config.Delimiter),
	}).Debug("Created statement parser")

	return &StatementParser{
		config: config,
		logger: log,
	}, nil
}

// Parse reads an entire statement stream and returns its rows in file order.
//
// Row indexes are 1-based and stable across re-parses of the same input.
// Rows with data problems are emitted flagged rather than dropped; only a
// structurally unreadable file returns an error.
func (sp *StatementParser) Parse(ctx context.Context, r io.Reader, format Format) ([]*models.RawRow, *ParseStats, error) {
	sp.logger.WithField("format", string(format)).Info("Starting statement parsing")

	source, err := sp.newSource(r, format)
	if err != nil {
		return nil, nil, err
	}
	if closer, ok := source.(io.Closer); ok {
		defer closer.Close()
	}

	parseCtx := NewParseContext(ctx)
	stats := NewParseStats()

	if err := readHeaders(source, parseCtx, sp.requiredColumns()); err != nil {
		sp.logger.WithError(err).Error("Failed to read statement headers")
		return nil, stats, err
	}

	progress := logger.NewProgressTracker(sp.logger, "statement_parsing", 0)

	var rows []*models.RawRow
	for {
		record, err := readRecord(source, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}

			// Cancellation and encoding problems abort the parse;
			// a malformed individual line does not.
			if ingestErr, ok := errors.AsIngestError(err); ok {
				sp.logger.WithError(ingestErr).Warn("Statement parsing aborted")
				return nil, stats, ingestErr
			}
			if _, ok := err.(*csv.ParseError); ok {
				sp.logger.WithError(err).WithField("line_number", parseCtx.LineNumber).Warn("Skipping malformed line")
				stats.AddError(&ParseError{
					Line:    parseCtx.LineNumber,
					Message: "malformed line",
					Err:     err,
				})
				continue
			}

			sp.logger.WithError(err).Error("Failed to read statement record")
			return nil, stats, errors.FileError(errors.CodeFileCorrupted, "", err)
		}

		row := sp.rowFromRecord(record, parseCtx, len(rows)+1, stats)
		rows = append(rows, row)
		stats.RowsEmitted++
		if row.HasIssues() {
			stats.RowsFlagged++
		}
		progress.Increment()
	}

	stats.TotalLines = parseCtx.LineNumber
	progress.Finish()

	sp.logger.WithFields(logger.Fields{
		"total_lines":  stats.TotalLines,
		"rows_emitted": stats.RowsEmitted,
		"rows_flagged": stats.RowsFlagged,
		"error_count":  stats.ErrorCount,
	}).Info("Statement parsing completed")

	if stats.HasErrors() {
		sp.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Encountered errors during parsing")
	}

	return rows, stats, nil
}

// newSource builds a record source for the requested format
func (sp *StatementParser) newSource(r io.Reader, format Format) (recordSource, error) {
	switch format {
	case FormatXLSX:
		return newXLSXSource(r)
	case FormatCSV, "":
		return newCSVSource(r, sp.config.Delimiter), nil
	default:
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"statement_format",
			string(format),
			nil,
		).WithSuggestion("Supported statement formats are csv and xlsx")
	}
}

// requiredColumns returns the header names the statement must contain
func (sp *StatementParser) requiredColumns() []string {
	return []string{
		sp.config.GetColumnName("transaction_date"),
		sp.config.GetColumnName("value_date"),
		sp.config.GetColumnName("description"),
		sp.config.GetColumnName("debit"),
		sp.config.GetColumnName("credit"),
	}
}

// rowFromRecord converts one record into a RawRow, flagging data problems
// instead of failing. Raw text is preserved for any field that did not parse.
func (sp *StatementParser) rowFromRecord(record []string, parseCtx *ParseContext, rowIndex int, stats *ParseStats) *models.RawRow {
	row := &models.RawRow{
		RowIndex:    rowIndex,
		Description: fieldValue(record, parseCtx, sp.config.GetColumnName("description")),
	}

	row.TransactionDate = sp.parseDateField(record, parseCtx, "transaction_date",
		&row.RawTransactionDate, models.IssueBadTransactionDate, row, stats)
	row.ValueDate = sp.parseDateField(record, parseCtx, "value_date",
		&row.RawValueDate, models.IssueBadValueDate, row, stats)

	debitStr := fieldValue(record, parseCtx, sp.config.GetColumnName("debit"))
	debit, err := models.ParseDecimalFromString(debitStr)
	if err != nil {
		row.AddIssue(models.IssueBadDebit)
		row.RawDebit = debitStr
		stats.AddError(&ParseError{
			Line:    parseCtx.LineNumber,
			Field:   sp.config.GetColumnName("debit"),
			Value:   debitStr,
			Message: "invalid debit amount",
			Err:     err,
		})
	}
	row.Debit = debit

	creditStr := fieldValue(record, parseCtx, sp.config.GetColumnName("credit"))
	credit, err := models.ParseDecimalFromString(creditStr)
	if err != nil {
		row.AddIssue(models.IssueBadCredit)
		row.RawCredit = creditStr
		stats.AddError(&ParseError{
			Line:    parseCtx.LineNumber,
			Field:   sp.config.GetColumnName("credit"),
			Value:   creditStr,
			Message: "invalid credit amount",
			Err:     err,
		})
	}
	row.Credit = credit

	// Both sides set is semantically invalid double-entry input. The row is
	// surfaced for manual correction, never coerced.
	if row.Debit.IsPositive() && row.Credit.IsPositive() {
		row.AddIssue(models.IssueBothSidesSet)
		stats.AddError(&ParseError{
			Line:    parseCtx.LineNumber,
			Field:   sp.config.GetColumnName("debit"),
			Value:   debitStr,
			Message: "row has both debit and credit set",
		})
	}

	row.TellerNo = models.ExtractTellerNo(row.Description)
	row.ChequeNo = models.ExtractChequeNo(row.Description)
	row.ExtractedReference = models.ExtractReference(row.Description)

	return row
}

// parseDateField parses a date column, flagging the row and keeping the raw
// text on failure
func (sp *StatementParser) parseDateField(record []string, parseCtx *ParseContext, standardName string, rawOut *string, issue models.RowIssue, row *models.RawRow, stats *ParseStats) time.Time {
	columnName := sp.config.GetColumnName(standardName)
	value := fieldValue(record, parseCtx, columnName)

	parsed, err := models.ParseDateWithFormats(value, sp.config.DateFormats)
	if err != nil {
		row.AddIssue(issue)
		*rawOut = value
		stats.AddError(&ParseError{
			Line:    parseCtx.LineNumber,
			Field:   columnName,
			Value:   value,
			Message: "invalid date",
			Err:     err,
		})
		return time.Time{}
	}

	return parsed
}
