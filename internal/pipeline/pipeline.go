// Package pipeline orchestrates the statement ingestion run: parse rows,
// reconstruct balances, classify descriptions, detect reversals and assemble
// the reviewable preview list.
//
// One run is a single synchronous pass over one ordered sequence.
// Correctness depends on strict row order, so the pass is never parallelized
// internally; parallelism happens across independent uploads, each with its
// own isolated working set. The pattern snapshot is obtained once per run
// and threaded through every classification call, which makes the run a
// pure function of (file bytes, snapshot, opening balance): re-running it on
// unchanged input reproduces identical output.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"

	"statement-ingestion-service/internal/classify"
	"statement-ingestion-service/internal/ledger"
	"statement-ingestion-service/internal/models"
	"statement-ingestion-service/internal/parsers"
	"statement-ingestion-service/internal/patterns"
	"statement-ingestion-service/pkg/errors"
	"statement-ingestion-service/pkg/logger"
)

// AccountRegistry is the read interface to the external account CRUD
type AccountRegistry interface {
	GetAccount(ctx context.Context, accountID int64) (*models.Account, error)
}

// Config holds pipeline options
type Config struct {
	ReversalWindow int                            `json:"reversal_window"`
	ParserConfig   *parsers.StatementParserConfig `json:"parser_config"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ReversalWindow: ledger.DefaultReversalWindow,
		ParserConfig:   parsers.DefaultStatementParserConfig(),
	}
}

// Validate checks if the pipeline configuration is valid
func (c *Config) Validate() error {
	if c.ReversalWindow <= 0 {
		return fmt.Errorf("reversal window must be positive, got %d", c.ReversalWindow)
	}
	if c.ParserConfig == nil {
		return fmt.Errorf("parser configuration is required")
	}
	return c.ParserConfig.Validate()
}

// Pipeline runs the full parse-to-preview flow for uploaded statements
type Pipeline struct {
	registry patterns.Registry
	accounts AccountRegistry
	parser   *parsers.StatementParser
	config   *Config
	logger   logger.Logger
}

// New creates a pipeline over the given registries
func New(registry patterns.Registry, accounts AccountRegistry, config *Config) (*Pipeline, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "pipeline_config", config, err)
	}

	if registry == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "pattern_registry", nil, nil)
	}

	if accounts == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "account_registry", nil, nil)
	}

	parser, err := parsers.NewStatementParser(config.ParserConfig)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		registry: registry,
		accounts: accounts,
		parser:   parser,
		config:   config,
		logger:   logger.GetGlobalLogger().WithComponent("pipeline"),
	}, nil
}

// PreviewResult is the output of one ingestion run: the ordered preview list
// plus the parse statistics that accompany it
type PreviewResult struct {
	AccountID int64                        `json:"accountId"`
	Previews  []*models.TransactionPreview `json:"previews"`
	Stats     *parsers.ParseStats          `json:"stats"`
}

// ParseAndPreview runs the whole pipeline for one uploaded statement and
// returns the reviewable preview list in row order.
//
// A structurally unreadable file fails the run; rows with data problems come
// back flagged inside the preview instead. A classification miss leaves
// ClassificationID nil, which is a normal outcome.
func (p *Pipeline) ParseAndPreview(ctx context.Context, accountID int64, r io.Reader, format parsers.Format) (*PreviewResult, error) {
	p.logger.WithFields(logger.Fields{
		"account_id": accountID,
		"format":     string(format),
	}).Info("Starting statement ingestion run")

	account, err := p.accounts.GetAccount(ctx, accountID)
	if err != nil {
		p.logger.WithError(err).WithField("account_id", accountID).Error("Account lookup failed")
		return nil, errors.CommitError(errors.CodeUnknownAccount, fmt.Sprintf("account %d", accountID), err)
	}

	// One consistent snapshot for the whole run.
	snapshot, err := patterns.BuildSnapshot(ctx, p.registry, account.BankID)
	if err != nil {
		p.logger.WithError(err).Error("Failed to build pattern snapshot")
		return nil, err
	}

	rows, stats, err := p.parser.Parse(ctx, r, format)
	if err != nil {
		return nil, err
	}

	previews := ledger.Reconstruct(rows, account.OpeningBalance)

	classifier := classify.NewClassifier(snapshot)
	classified := 0
	for _, preview := range previews {
		if id, ok := classifier.Classify(preview.Description); ok {
			classificationID := id
			preview.ClassificationID = &classificationID
			classified++
		}
	}

	ledger.DetectReversals(previews, p.config.ReversalWindow)

	p.logger.WithFields(logger.Fields{
		"account_id": accountID,
		"rows":       len(previews),
		"classified": classified,
		"flagged":    stats.RowsFlagged,
	}).Info("Statement ingestion run completed")

	return &PreviewResult{
		AccountID: accountID,
		Previews:  previews,
		Stats:     stats,
	}, nil
}

// StaticAccountRegistry is an in-memory AccountRegistry for the CLI and
// tests
type StaticAccountRegistry struct {
	mutex    sync.RWMutex
	accounts map[int64]*models.Account
}

// NewStaticAccountRegistry creates an empty in-memory account registry
func NewStaticAccountRegistry() *StaticAccountRegistry {
	return &StaticAccountRegistry{
		accounts: make(map[int64]*models.Account),
	}
}

// AddAccount registers an account
func (r *StaticAccountRegistry) AddAccount(account *models.Account) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.accounts[account.ID] = account
}

// GetAccount implements AccountRegistry
func (r *StaticAccountRegistry) GetAccount(ctx context.Context, accountID int64) (*models.Account, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	account, ok := r.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %d not found", accountID)
	}
	return account, nil
}
