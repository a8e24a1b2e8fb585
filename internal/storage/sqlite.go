// Package storage provides implementations of the commit writer's Store
// interface: a SQLite-backed store for real persistence and an in-memory
// store for tests and ephemeral runs.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"statement-ingestion-service/internal/models"
	"statement-ingestion-service/pkg/logger"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS account_transactions (
	id TEXT PRIMARY KEY,
	bank_account_id INTEGER NOT NULL,
	uploaded_by_id INTEGER NOT NULL,
	row_index INTEGER NOT NULL,
	transaction_date TEXT NOT NULL,
	value_date TEXT NOT NULL,
	description TEXT NOT NULL,
	debit TEXT NOT NULL,
	credit TEXT NOT NULL,
	amount TEXT NOT NULL,
	type TEXT NOT NULL,
	balance TEXT NOT NULL,
	teller_no INTEGER,
	cheque_no INTEGER,
	classification_id INTEGER,
	is_reversal INTEGER NOT NULL DEFAULT 0,
	reversal_pair_index INTEGER,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_account_transactions_account
	ON account_transactions (bank_account_id, row_index);
`

// SQLiteStore persists committed transactions in a SQLite database.
// Amounts are stored as decimal strings to avoid float drift.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.GetGlobalLogger().WithComponent("sqlite_store"),
	}, nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateTransactions inserts the whole batch inside one database
// transaction. Any insert failure rolls the batch back, so a partial commit
// is never observable.
func (s *SQLiteStore) CreateTransactions(ctx context.Context, records []*models.AccountTransaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO account_transactions (
			id, bank_account_id, uploaded_by_id, row_index,
			transaction_date, value_date, description,
			debit, credit, amount, type, balance,
			teller_no, cheque_no, classification_id,
			is_reversal, reversal_pair_index,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.ID, r.BankAccountID, r.UploadedByID, r.RowIndex,
			r.TransactionDate.Format(time.RFC3339), r.ValueDate.Format(time.RFC3339), r.Description,
			r.Debit.String(), r.Credit.String(), r.Amount.String(), string(r.Type), r.Balance.String(),
			r.TellerNo, r.ChequeNo, r.ClassificationID,
			boolToInt(r.IsReversal), r.ReversalPairIndex,
			r.CreatedAt.Format(time.RFC3339), r.UpdatedAt.Format(time.RFC3339),
		)
		if err != nil {
			_ = tx.Rollback()
			s.logger.WithError(err).WithField("row_index", r.RowIndex).Error("Insert failed, batch rolled back")
			return fmt.Errorf("insert row %d: %w", r.RowIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.WithField("records", len(records)).Debug("Batch persisted")
	return nil
}

// ListByAccount returns an account's committed transactions in row order
func (s *SQLiteStore) ListByAccount(ctx context.Context, accountID int64) ([]*models.AccountTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bank_account_id, uploaded_by_id, row_index,
			transaction_date, value_date, description,
			debit, credit, amount, type, balance,
			teller_no, cheque_no, classification_id,
			is_reversal, reversal_pair_index,
			created_at, updated_at
		FROM account_transactions
		WHERE bank_account_id = ?
		ORDER BY row_index ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.AccountTransaction
	for rows.Next() {
		var (
			r                                      models.AccountTransaction
			txDate, valDate, createdAt, updatedAt  string
			debit, credit, amount, balance, txType string
			isReversal                             int
		)
		if err := rows.Scan(
			&r.ID, &r.BankAccountID, &r.UploadedByID, &r.RowIndex,
			&txDate, &valDate, &r.Description,
			&debit, &credit, &amount, &txType, &balance,
			&r.TellerNo, &r.ChequeNo, &r.ClassificationID,
			&isReversal, &r.ReversalPairIndex,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		if r.TransactionDate, err = time.Parse(time.RFC3339, txDate); err != nil {
			return nil, fmt.Errorf("parse transaction date: %w", err)
		}
		if r.ValueDate, err = time.Parse(time.RFC3339, valDate); err != nil {
			return nil, fmt.Errorf("parse value date: %w", err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parse created at: %w", err)
		}
		if r.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated at: %w", err)
		}

		if r.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, fmt.Errorf("parse debit: %w", err)
		}
		if r.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, fmt.Errorf("parse credit: %w", err)
		}
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		if r.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("parse balance: %w", err)
		}

		r.Type = models.TransactionType(txType)
		r.IsReversal = isReversal != 0
		out = append(out, &r)
	}

	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
