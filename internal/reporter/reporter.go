// Package reporter renders ingestion preview results for human review on
// the command line, or as JSON/CSV for downstream tooling.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"statement-ingestion-service/internal/models"
	"statement-ingestion-service/internal/patterns"
	"statement-ingestion-service/internal/pipeline"
	"statement-ingestion-service/pkg/logger"
)

// ReportFormat identifies the output format
type ReportFormat string

const (
	FormatConsole ReportFormat = "console"
	FormatJSON    ReportFormat = "json"
	FormatCSV     ReportFormat = "csv"
)

// ReportConfig controls report rendering
type ReportConfig struct {
	Format          ReportFormat `json:"format"`
	IncludeRows     bool         `json:"include_rows"`
	IncludeFlagged  bool         `json:"include_flagged"`
	CSVDelimiter    rune         `json:"csv_delimiter"`
	MaxSampleErrors int          `json:"max_sample_errors"`
}

// DefaultReportConfig returns a configuration with sensible defaults
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:          FormatConsole,
		IncludeRows:     true,
		IncludeFlagged:  true,
		CSVDelimiter:    ',',
		MaxSampleErrors: 5,
	}
}

// Validate checks if the report configuration is valid
func (c *ReportConfig) Validate() error {
	switch c.Format {
	case FormatConsole, FormatJSON, FormatCSV:
		return nil
	default:
		return fmt.Errorf("invalid report format: %s", c.Format)
	}
}

// Reporter renders preview results
type Reporter struct {
	config   *ReportConfig
	snapshot *patterns.Snapshot
	logger   logger.Logger
}

// NewReporter creates a reporter. The snapshot, when provided, is used to
// resolve classification codes for display; a nil snapshot prints raw ids.
func NewReporter(config *ReportConfig, snapshot *patterns.Snapshot) (*Reporter, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Reporter{
		config:   config,
		snapshot: snapshot,
		logger:   logger.GetGlobalLogger().WithComponent("reporter"),
	}, nil
}

// Generate writes the preview report to w in the configured format
func (r *Reporter) Generate(result *pipeline.PreviewResult, w io.Writer) error {
	switch r.config.Format {
	case FormatJSON:
		return r.generateJSON(result, w)
	case FormatCSV:
		return r.generateCSV(result, w)
	default:
		return r.generateConsole(result, w)
	}
}

func (r *Reporter) generateConsole(result *pipeline.PreviewResult, w io.Writer) error {
	classified := 0
	reversalPairs := 0
	flagged := 0
	for _, p := range result.Previews {
		if p.ClassificationID != nil {
			classified++
		}
		if p.IsReversal {
			reversalPairs++
		}
		if p.HasIssues() {
			flagged++
		}
	}

	fmt.Fprintf(w, "Statement preview for account %d\n", result.AccountID)
	fmt.Fprintf(w, "=================================\n")
	fmt.Fprintf(w, "Rows:            %d\n", len(result.Previews))
	fmt.Fprintf(w, "Classified:      %d\n", classified)
	fmt.Fprintf(w, "Unclassified:    %d\n", len(result.Previews)-classified)
	fmt.Fprintf(w, "Reversal rows:   %d (%d pairs)\n", reversalPairs, reversalPairs/2)
	fmt.Fprintf(w, "Flagged rows:    %d\n", flagged)
	if len(result.Previews) > 0 {
		fmt.Fprintf(w, "Closing balance: %s\n", result.Previews[len(result.Previews)-1].Balance.StringFixed(2))
	}

	if result.Stats != nil && result.Stats.HasErrors() {
		fmt.Fprintf(w, "\nParse warnings:\n")
		for _, sample := range result.Stats.GetSampleErrors(r.config.MaxSampleErrors) {
			fmt.Fprintf(w, "  - %s\n", sample)
		}
	}

	if !r.config.IncludeRows {
		return nil
	}

	fmt.Fprintf(w, "\n%4s  %-10s  %-40s  %12s  %12s  %12s  %-16s %s\n",
		"#", "DATE", "DESCRIPTION", "DEBIT", "CREDIT", "BALANCE", "CLASS", "FLAGS")
	for _, p := range result.Previews {
		if p.HasIssues() && !r.config.IncludeFlagged {
			continue
		}
		fmt.Fprintf(w, "%4d  %-10s  %-40s  %12s  %12s  %12s  %-16s %s\n",
			p.RowIndex,
			displayDate(p),
			truncate(p.Description, 40),
			p.Debit.StringFixed(2),
			p.Credit.StringFixed(2),
			p.Balance.StringFixed(2),
			r.classificationCode(p),
			rowFlags(p))
	}

	return nil
}

func (r *Reporter) generateJSON(result *pipeline.PreviewResult, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func (r *Reporter) generateCSV(result *pipeline.PreviewResult, w io.Writer) error {
	writer := csv.NewWriter(w)
	if r.config.CSVDelimiter != 0 {
		writer.Comma = r.config.CSVDelimiter
	}

	header := []string{
		"row_index", "transaction_date", "value_date", "description",
		"debit", "credit", "amount", "type", "balance",
		"classification", "is_reversal", "reversal_pair_index", "issues",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range result.Previews {
		pairIndex := ""
		if p.ReversalPairIndex != nil {
			pairIndex = strconv.Itoa(*p.ReversalPairIndex)
		}

		issues := make([]string, 0, len(p.Issues))
		for _, issue := range p.Issues {
			issues = append(issues, string(issue))
		}

		record := []string{
			strconv.Itoa(p.RowIndex),
			displayDate(p),
			formatOrRaw(p.ValueDate.IsZero(), p.ValueDate.Format("2006-01-02"), p.RawValueDate),
			p.Description,
			p.Debit.StringFixed(2),
			p.Credit.StringFixed(2),
			p.Amount.StringFixed(2),
			string(p.Type),
			p.Balance.StringFixed(2),
			r.classificationCode(p),
			strconv.FormatBool(p.IsReversal),
			pairIndex,
			strings.Join(issues, ";"),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// classificationCode resolves the display code for a preview's
// classification
func (r *Reporter) classificationCode(p *models.TransactionPreview) string {
	if p.ClassificationID == nil {
		return "-"
	}
	if r.snapshot != nil {
		if c, ok := r.snapshot.Classification(*p.ClassificationID); ok {
			return c.Code
		}
	}
	return strconv.FormatInt(*p.ClassificationID, 10)
}

// displayDate shows the parsed transaction date, or the raw text when the
// date failed to parse
func displayDate(p *models.TransactionPreview) string {
	if p.TransactionDate.IsZero() {
		return p.RawTransactionDate
	}
	return p.TransactionDate.Format("2006-01-02")
}

func formatOrRaw(isZero bool, formatted, raw string) string {
	if isZero {
		return raw
	}
	return formatted
}

func rowFlags(p *models.TransactionPreview) string {
	var flags []string
	if p.IsReversal && p.ReversalPairIndex != nil {
		flags = append(flags, fmt.Sprintf("reversal(%d)", *p.ReversalPairIndex))
	}
	for _, issue := range p.Issues {
		flags = append(flags, string(issue))
	}
	return strings.Join(flags, " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
