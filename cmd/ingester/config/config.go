package config

import (
	"fmt"
	"strings"

	"statement-ingestion-service/internal/models"
	"statement-ingestion-service/internal/parsers"
	"statement-ingestion-service/internal/pipeline"
	"statement-ingestion-service/internal/reporter"
	"statement-ingestion-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// CreateParserConfig resolves a statement parser configuration by profile
// name, applying the delimiter override when given
func CreateParserConfig(profile string, delimiter string) (*parsers.StatementParserConfig, error) {
	config := parsers.GetStatementConfig(profile)
	if config == nil {
		return nil, fmt.Errorf("unknown statement profile '%s' (available: standard, semicolon)", profile)
	}

	if delimiter != "" {
		runes := []rune(delimiter)
		if len(runes) != 1 {
			return nil, fmt.Errorf("delimiter must be a single character, got '%s'", delimiter)
		}
		// Copy before mutating so the shared predefined config stays intact.
		copied := *config
		copied.Delimiter = runes[0]
		config = &copied
	}

	return config, nil
}

// CreatePipelineConfig creates a pipeline configuration from CLI flags
func CreatePipelineConfig(parserConfig *parsers.StatementParserConfig, reversalWindow int) *pipeline.Config {
	config := pipeline.DefaultConfig()
	config.ParserConfig = parserConfig
	if reversalWindow > 0 {
		config.ReversalWindow = reversalWindow
	}
	return config
}

// CreateAccount builds the account record the CLI operates on
func CreateAccount(accountID, bankID int64, openingBalance string) (*models.Account, error) {
	balance := decimal.Zero
	if strings.TrimSpace(openingBalance) != "" {
		var err error
		balance, err = decimal.NewFromString(strings.TrimSpace(openingBalance))
		if err != nil {
			return nil, fmt.Errorf("invalid opening balance '%s': %w", openingBalance, err)
		}
	}

	return &models.Account{
		ID:             accountID,
		BankID:         bankID,
		Name:           fmt.Sprintf("account-%d", accountID),
		OpeningBalance: balance,
	}, nil
}

// CreateReportConfig creates a report configuration for the specified output
// format
func CreateReportConfig(format string) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()

	switch format {
	case "json":
		config.Format = reporter.FormatJSON
	case "csv":
		config.Format = reporter.FormatCSV
	default:
		config.Format = reporter.FormatConsole
		config.IncludeRows = true
		config.IncludeFlagged = true
	}

	return config
}

// CreateLoggerConfig creates the logger configuration from CLI flags
func CreateLoggerConfig(verbose bool, logFormat string) *logger.Config {
	config := logger.DefaultConfig()
	if verbose {
		config.Level = logger.DebugLevel
	}
	if logFormat == "json" {
		config.Format = logger.JSONFormat
	}
	return config
}
