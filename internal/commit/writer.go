// Package commit persists an approved preview list as permanent account
// transactions.
//
// The write is all-or-nothing for the batch: validation failures reject the
// whole commit listing every offending row, and the store call runs inside a
// single transaction boundary so a half-populated ledger is never observable.
package commit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"statement-ingestion-service/internal/models"
	"statement-ingestion-service/pkg/errors"
	"statement-ingestion-service/pkg/logger"

	"github.com/google/uuid"
)

// Store is the persistence boundary. CreateTransactions must be atomic:
// either every record is written or none is.
type Store interface {
	CreateTransactions(ctx context.Context, records []*models.AccountTransaction) error
}

// RowError describes why a single preview row failed commit validation
type RowError struct {
	RowIndex int    `json:"rowIndex"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.RowIndex, e.Field, e.Message)
}

// Writer validates and persists approved preview batches
type Writer struct {
	store  Store
	logger logger.Logger
}

// NewWriter creates a commit writer over the given store
func NewWriter(store Store) (*Writer, error) {
	if store == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "transaction_store", nil, nil)
	}

	return &Writer{
		store:  store,
		logger: logger.GetGlobalLogger().WithComponent("commit_writer"),
	}, nil
}

// Commit persists an edited preview list against one account.
//
// Every row is validated first; if any row fails, the entire batch is
// rejected with a CodeBatchRejected error carrying the per-row failures and
// nothing is persisted. On success each record gets a server-generated id,
// the uploader stamp and creation timestamps, and the created records are
// returned in the order submitted.
func (w *Writer) Commit(ctx context.Context, accountID, uploaderID int64, previews []*models.TransactionPreview) ([]*models.AccountTransaction, error) {
	w.logger.WithFields(logger.Fields{
		"account_id":  accountID,
		"uploader_id": uploaderID,
		"rows":        len(previews),
	}).Info("Starting commit")

	if len(previews) == 0 {
		return nil, errors.CommitError(errors.CodeBatchRejected, "batch is empty", nil).
			WithSuggestion("Upload and review a statement before committing")
	}

	rowErrors := validateBatch(previews)
	if len(rowErrors) > 0 {
		w.logger.WithFields(logger.Fields{
			"account_id":  accountID,
			"failed_rows": len(rowErrors),
		}).Warn("Commit batch rejected by validation")

		return nil, errors.CommitError(
			errors.CodeBatchRejected,
			fmt.Sprintf("%d of %d rows failed validation", len(rowErrors), len(previews)),
			nil,
		).WithContext("row_errors", rowErrors)
	}

	now := time.Now().UTC()
	records := make([]*models.AccountTransaction, 0, len(previews))
	for _, p := range previews {
		records = append(records, &models.AccountTransaction{
			ID:                uuid.NewString(),
			BankAccountID:     accountID,
			UploadedByID:      uploaderID,
			RowIndex:          p.RowIndex,
			TransactionDate:   p.TransactionDate,
			ValueDate:         p.ValueDate,
			Description:       p.Description,
			Debit:             p.Debit,
			Credit:            p.Credit,
			Amount:            p.Amount,
			Type:              p.Type,
			Balance:           p.Balance,
			TellerNo:          p.TellerNo,
			ChequeNo:          p.ChequeNo,
			ClassificationID:  p.ClassificationID,
			IsReversal:        p.IsReversal,
			ReversalPairIndex: p.ReversalPairIndex,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}

	if err := w.store.CreateTransactions(ctx, records); err != nil {
		w.logger.WithError(err).WithField("account_id", accountID).Error("Failed to persist commit batch")
		return nil, errors.CommitError(errors.CodeStoreFailure, fmt.Sprintf("account %d", accountID), err)
	}

	w.logger.WithFields(logger.Fields{
		"account_id": accountID,
		"records":    len(records),
	}).Info("Commit completed")

	return records, nil
}

// validateBatch checks every row and collects all failures so the reviewer
// can fix them in one pass
func validateBatch(previews []*models.TransactionPreview) []*RowError {
	var rowErrors []*RowError

	for _, p := range previews {
		if p.TransactionDate.IsZero() {
			rowErrors = append(rowErrors, &RowError{
				RowIndex: p.RowIndex,
				Field:    "transactionDate",
				Message:  "transaction date is required",
			})
		}

		if p.ValueDate.IsZero() {
			rowErrors = append(rowErrors, &RowError{
				RowIndex: p.RowIndex,
				Field:    "valueDate",
				Message:  "value date is required",
			})
		}

		if strings.TrimSpace(p.Description) == "" {
			rowErrors = append(rowErrors, &RowError{
				RowIndex: p.RowIndex,
				Field:    "description",
				Message:  "description is required",
			})
		}

		if p.Debit.IsNegative() || p.Credit.IsNegative() {
			rowErrors = append(rowErrors, &RowError{
				RowIndex: p.RowIndex,
				Field:    "amount",
				Message:  "debit and credit must be non-negative",
			})
		}

		if p.Debit.IsPositive() && p.Credit.IsPositive() {
			rowErrors = append(rowErrors, &RowError{
				RowIndex: p.RowIndex,
				Field:    "amount",
				Message:  "row has both debit and credit set",
			})
		}

		if !p.Type.IsValid() {
			rowErrors = append(rowErrors, &RowError{
				RowIndex: p.RowIndex,
				Field:    "type",
				Message:  fmt.Sprintf("invalid transaction type '%s'", p.Type),
			})
		}

		// Parser flags must be cleared by the reviewer before commit.
		if p.HasIssues() {
			issues := make([]string, 0, len(p.Issues))
			for _, issue := range p.Issues {
				issues = append(issues, string(issue))
			}
			rowErrors = append(rowErrors, &RowError{
				RowIndex: p.RowIndex,
				Field:    "issues",
				Message:  fmt.Sprintf("row has unresolved data issues: %s", strings.Join(issues, ", ")),
			})
		}
	}

	return rowErrors
}

// RowErrorsFromError extracts the per-row failures from a batch-rejected
// commit error, or nil when the error carries none
func RowErrorsFromError(err error) []*RowError {
	ingestErr, ok := errors.AsIngestError(err)
	if !ok || ingestErr.Context == nil {
		return nil
	}

	rowErrors, ok := ingestErr.Context["row_errors"].([]*RowError)
	if !ok {
		return nil
	}
	return rowErrors
}
