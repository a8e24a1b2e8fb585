// Package ledger reconstructs running balances and detects reversal pairs
// over an ordered sequence of statement rows.
package ledger

import (
	"statement-ingestion-service/internal/models"
	"statement-ingestion-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Reconstruct walks rows in statement order and computes each row's signed
// amount, transaction type and running balance.
//
// Amount is credit minus debit; a zero amount is legal and typed CREDIT.
// Arithmetic is exact decimal end to end: nothing is rounded mid-sequence,
// only at display time. The balance invariant holds for every row:
// balance[i] == balance[i-1] + amount[i], with balance[-1] == openingBalance.
func Reconstruct(rows []*models.RawRow, openingBalance decimal.Decimal) []*models.TransactionPreview {
	log := logger.GetGlobalLogger().WithComponent("balance_reconstructor")

	previews := make([]*models.TransactionPreview, 0, len(rows))
	runningBalance := openingBalance

	for _, row := range rows {
		amount := row.Credit.Sub(row.Debit)
		runningBalance = runningBalance.Add(amount)

		txType := models.TransactionTypeCredit
		if amount.IsNegative() {
			txType = models.TransactionTypeDebit
		}

		previews = append(previews, &models.TransactionPreview{
			RawRow:  *row,
			Amount:  amount,
			Type:    txType,
			Balance: runningBalance,
		})
	}

	log.WithFields(logger.Fields{
		"rows":            len(previews),
		"opening_balance": openingBalance.String(),
		"closing_balance": runningBalance.String(),
	}).Debug("Reconstructed running balance")

	return previews
}
