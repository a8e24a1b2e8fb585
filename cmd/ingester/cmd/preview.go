package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	appconfig "statement-ingestion-service/cmd/ingester/config"
	commitpkg "statement-ingestion-service/internal/commit"
	"statement-ingestion-service/internal/parsers"
	"statement-ingestion-service/internal/patterns"
	"statement-ingestion-service/internal/pipeline"
	"statement-ingestion-service/internal/reporter"
	"statement-ingestion-service/internal/storage"
	"statement-ingestion-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the preview command
var (
	inputFile      string
	accountID      int64
	bankID         int64
	openingBalance string
	profileName    string
	delimiter      string
	inputFormat    string
	outputFormat   string
	outputFile     string
	reversalWindow int

	commitBatch bool
	dbPath      string
	uploaderID  int64
)

// previewCmd represents the preview command
var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Parse a statement and produce a reviewable preview",
	Long: `Preview parses an exported bank statement (CSV or XLSX), reconstructs the
running balance from the account's opening balance, classifies each row
against the pattern registry and flags reversal pairs.

Nothing is persisted unless --commit is given, and a commit is refused while
any row still carries unresolved data issues.

Examples:
  # Basic preview to the console
  ingester preview --input statement.csv --account 1 --bank 1 --opening-balance 1000.00

  # JSON preview written to a file
  ingester preview --input statement.xlsx --account 1 --bank 1 \
    --output-format json --output-file preview.json

  # Semicolon-delimited European export
  ingester preview --input export.csv --account 1 --bank 2 --profile semicolon

  # Preview and commit a clean batch to SQLite
  ingester preview --input statement.csv --account 1 --bank 1 \
    --commit --db transactions.db --uploader 42`,

	PreRunE: validatePreviewFlags,
	RunE:    runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)

	// Required flags
	previewCmd.Flags().StringVarP(&inputFile, "input", "i", "", "path to the statement file (required)")
	previewCmd.Flags().Int64Var(&accountID, "account", 0, "bank account id (required)")
	previewCmd.Flags().Int64Var(&bankID, "bank", 0, "bank id the account belongs to (required)")

	// Parsing flags
	previewCmd.Flags().StringVar(&openingBalance, "opening-balance", "0", "account opening balance")
	previewCmd.Flags().StringVar(&profileName, "profile", "standard", "statement profile: standard, semicolon")
	previewCmd.Flags().StringVar(&delimiter, "delimiter", "", "CSV delimiter override (single character)")
	previewCmd.Flags().StringVar(&inputFormat, "format", "", "input format: csv, xlsx (default: by file extension)")
	previewCmd.Flags().IntVarP(&reversalWindow, "reversal-window", "w", 0, "rows to look ahead when pairing reversals")

	// Output flags
	previewCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	previewCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")

	// Commit flags
	previewCmd.Flags().BoolVar(&commitBatch, "commit", false, "persist the batch after a clean preview")
	previewCmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (required with --commit)")
	previewCmd.Flags().Int64Var(&uploaderID, "uploader", 0, "uploader user id (required with --commit)")

	previewCmd.MarkFlagRequired("input")
	previewCmd.MarkFlagRequired("account")
	previewCmd.MarkFlagRequired("bank")

	// Bind flags to viper
	viper.BindPFlag("input", previewCmd.Flags().Lookup("input"))
	viper.BindPFlag("profile", previewCmd.Flags().Lookup("profile"))
	viper.BindPFlag("output-format", previewCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", previewCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("reversal-window", previewCmd.Flags().Lookup("reversal-window"))
}

func validatePreviewFlags(cmd *cobra.Command, args []string) error {
	if accountID <= 0 {
		return fmt.Errorf("account must be a positive id")
	}
	if bankID <= 0 {
		return fmt.Errorf("bank must be a positive id")
	}

	info, err := os.Stat(inputFile)
	if os.IsNotExist(err) {
		return fmt.Errorf("statement file does not exist: %s", inputFile)
	}
	if err != nil {
		return fmt.Errorf("error accessing statement file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("statement path is a directory, expected a file: %s", inputFile)
	}

	validFormats := map[string]bool{"console": true, "json": true, "csv": true}
	if !validFormats[outputFormat] {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", outputFormat)
	}

	if inputFormat != "" {
		switch parsers.Format(strings.ToLower(inputFormat)) {
		case parsers.FormatCSV, parsers.FormatXLSX:
		default:
			return fmt.Errorf("invalid input format '%s'. Valid formats: csv, xlsx", inputFormat)
		}
	}

	if reversalWindow < 0 {
		return fmt.Errorf("reversal window cannot be negative")
	}

	if commitBatch {
		if dbPath == "" {
			return fmt.Errorf("--db is required with --commit")
		}
		if uploaderID <= 0 {
			return fmt.Errorf("--uploader is required with --commit")
		}
	}

	return nil
}

func runPreview(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	loggerConfig := appconfig.CreateLoggerConfig(viper.GetBool("verbose"), viper.GetString("log-format"))
	if log, err := logger.NewLogger(loggerConfig); err == nil {
		logger.SetGlobalLogger(log)
	}

	parserConfig, err := appconfig.CreateParserConfig(profileName, delimiter)
	if err != nil {
		return err
	}

	account, err := appconfig.CreateAccount(accountID, bankID, openingBalance)
	if err != nil {
		return err
	}

	accounts := pipeline.NewStaticAccountRegistry()
	accounts.AddAccount(account)

	registry := patterns.NewDefaultRegistry()

	pipelineConfig := appconfig.CreatePipelineConfig(parserConfig, reversalWindow)
	p, err := pipeline.New(registry, accounts, pipelineConfig)
	if err != nil {
		return err
	}

	format := parsers.DetectFormat(inputFile)
	if inputFormat != "" {
		format = parsers.Format(strings.ToLower(inputFormat))
	}

	file, err := os.Open(inputFile)
	if err != nil {
		return fmt.Errorf("failed to open statement file: %w", err)
	}
	defer file.Close()

	start := time.Now()
	result, err := p.ParseAndPreview(ctx, accountID, file, format)
	if err != nil {
		return err
	}

	// Rebuild the snapshot so the report can resolve classification codes.
	snapshot, err := patterns.BuildSnapshot(ctx, registry, bankID)
	if err != nil {
		return err
	}

	reportConfig := appconfig.CreateReportConfig(outputFormat)
	gen, err := reporter.NewReporter(reportConfig, snapshot)
	if err != nil {
		return fmt.Errorf("failed to create reporter: %w", err)
	}

	output := os.Stdout
	if outputFile != "" {
		output, err = os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	}

	if err := gen.Generate(result, output); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "\nProcessed %d rows in %v (%d flagged)\n",
			len(result.Previews), time.Since(start).Round(time.Millisecond), result.Stats.RowsFlagged)
	}

	if !commitBatch {
		return nil
	}

	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	writer, err := commitpkg.NewWriter(store)
	if err != nil {
		return err
	}

	records, err := writer.Commit(ctx, accountID, uploaderID, result.Previews)
	if err != nil {
		if rowErrors := commitpkg.RowErrorsFromError(err); rowErrors != nil {
			fmt.Fprintf(os.Stderr, "Commit rejected, %d rows failed validation:\n", len(rowErrors))
			for _, rowErr := range rowErrors {
				fmt.Fprintf(os.Stderr, "  %s\n", rowErr.Error())
			}
		}
		return err
	}

	fmt.Fprintf(os.Stderr, "Committed %d transactions to %s\n", len(records), dbPath)
	return nil
}
