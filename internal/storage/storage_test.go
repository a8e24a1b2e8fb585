package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"statement-ingestion-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Helper to build a committed transaction record
func record(t *testing.T, accountID int64, rowIndex int, amount string) *models.AccountTransaction {
	t.Helper()

	a := decimal.RequireFromString(amount)
	txType := models.TransactionTypeCredit
	if a.IsNegative() {
		txType = models.TransactionTypeDebit
	}

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	return &models.AccountTransaction{
		ID:              uuid.NewString(),
		BankAccountID:   accountID,
		UploadedByID:    42,
		RowIndex:        rowIndex,
		TransactionDate: now,
		ValueDate:       now,
		Description:     fmt.Sprintf("ROW %d", rowIndex),
		Debit:           decimal.Zero,
		Credit:          a.Abs(),
		Amount:          a,
		Type:            txType,
		Balance:         decimal.RequireFromString("100.50"),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	records := []*models.AccountTransaction{
		record(t, 1, 1, "500"),
		record(t, 1, 2, "-200"),
		record(t, 2, 1, "50"),
	}
	if err := store.CreateTransactions(ctx, records); err != nil {
		t.Fatalf("CreateTransactions failed: %v", err)
	}

	got, err := store.ListByAccount(ctx, 1)
	if err != nil {
		t.Fatalf("ListByAccount failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 records for account 1, got %d", len(got))
	}
	if store.Count() != 3 {
		t.Errorf("Expected 3 total records, got %d", store.Count())
	}
}

func TestMemoryStore_FailWith(t *testing.T) {
	store := NewMemoryStore()
	store.FailWith = fmt.Errorf("injected failure")

	err := store.CreateTransactions(context.Background(), []*models.AccountTransaction{record(t, 1, 1, "10")})
	if err == nil {
		t.Fatal("Expected injected failure")
	}
	if store.Count() != 0 {
		t.Errorf("Expected nothing written on failure, got %d", store.Count())
	}

	// The failure is one-shot.
	if err := store.CreateTransactions(context.Background(), []*models.AccountTransaction{record(t, 1, 1, "10")}); err != nil {
		t.Fatalf("Expected second call to succeed: %v", err)
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	tellerNo := int64(104)
	pairIndex := 2
	classificationID := int64(3)

	first := record(t, 1, 1, "500")
	first.TellerNo = &tellerNo
	first.ClassificationID = &classificationID
	first.IsReversal = true
	first.ReversalPairIndex = &pairIndex

	second := record(t, 1, 2, "-500")

	if err := store.CreateTransactions(ctx, []*models.AccountTransaction{first, second}); err != nil {
		t.Fatalf("CreateTransactions failed: %v", err)
	}

	got, err := store.ListByAccount(ctx, 1)
	if err != nil {
		t.Fatalf("ListByAccount failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(got))
	}

	readBack := got[0]
	if readBack.ID != first.ID {
		t.Errorf("ID = %s, want %s", readBack.ID, first.ID)
	}
	if !readBack.Amount.Equal(first.Amount) {
		t.Errorf("Amount = %s, want %s", readBack.Amount, first.Amount)
	}
	if !readBack.Balance.Equal(first.Balance) {
		t.Errorf("Balance = %s, want %s", readBack.Balance, first.Balance)
	}
	if !readBack.TransactionDate.Equal(first.TransactionDate) {
		t.Errorf("TransactionDate = %s, want %s", readBack.TransactionDate, first.TransactionDate)
	}
	if readBack.TellerNo == nil || *readBack.TellerNo != tellerNo {
		t.Errorf("TellerNo = %v, want %d", readBack.TellerNo, tellerNo)
	}
	if readBack.ClassificationID == nil || *readBack.ClassificationID != classificationID {
		t.Errorf("ClassificationID = %v, want %d", readBack.ClassificationID, classificationID)
	}
	if !readBack.IsReversal || readBack.ReversalPairIndex == nil || *readBack.ReversalPairIndex != pairIndex {
		t.Errorf("Reversal annotations did not survive the round trip")
	}

	if got[1].ChequeNo != nil || got[1].ClassificationID != nil {
		t.Error("Expected nil optional fields to stay nil")
	}
}

func TestSQLiteStore_DuplicateIDRollsBack(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	first := record(t, 1, 1, "100")
	duplicate := record(t, 1, 2, "200")
	duplicate.ID = first.ID // primary key conflict on insert

	if err := store.CreateTransactions(ctx, []*models.AccountTransaction{first, duplicate}); err == nil {
		t.Fatal("Expected duplicate id to fail the batch")
	}

	got, err := store.ListByAccount(ctx, 1)
	if err != nil {
		t.Fatalf("ListByAccount failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected rollback to leave no records, got %d", len(got))
	}
}
