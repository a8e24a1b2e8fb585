package commit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"statement-ingestion-service/internal/models"
	"statement-ingestion-service/internal/storage"
	"statement-ingestion-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// Helper to build a valid, committable preview row
func validPreview(t *testing.T, index int, debit, credit string) *models.TransactionPreview {
	t.Helper()

	d := decimal.RequireFromString(debit)
	c := decimal.RequireFromString(credit)
	txType := models.TransactionTypeCredit
	if c.Sub(d).IsNegative() {
		txType = models.TransactionTypeDebit
	}

	return &models.TransactionPreview{
		RawRow: models.RawRow{
			RowIndex:        index,
			TransactionDate: time.Date(2024, 3, index, 0, 0, 0, 0, time.UTC),
			ValueDate:       time.Date(2024, 3, index, 0, 0, 0, 0, time.UTC),
			Description:     fmt.Sprintf("ROW %d", index),
			Debit:           d,
			Credit:          c,
		},
		Amount:  c.Sub(d),
		Type:    txType,
		Balance: decimal.RequireFromString("100"),
	}
}

func newTestWriter(t *testing.T) (*Writer, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	writer, err := NewWriter(store)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	return writer, store
}

func TestNewWriter_NilStore(t *testing.T) {
	if _, err := NewWriter(nil); err == nil {
		t.Error("Expected error for nil store")
	}
}

func TestCommit(t *testing.T) {
	writer, store := newTestWriter(t)

	previews := []*models.TransactionPreview{
		validPreview(t, 1, "0", "500"),
		validPreview(t, 2, "200", "0"),
	}

	records, err := writer.Commit(context.Background(), 1, 42, previews)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if store.Count() != 2 {
		t.Errorf("Expected 2 stored records, got %d", store.Count())
	}

	for i, record := range records {
		if record.ID == "" {
			t.Errorf("Record %d has no generated id", i)
		}
		if record.BankAccountID != 1 || record.UploadedByID != 42 {
			t.Errorf("Record %d has wrong account/uploader stamps", i)
		}
		if record.CreatedAt.IsZero() {
			t.Errorf("Record %d has no creation timestamp", i)
		}
	}

	if records[0].ID == records[1].ID {
		t.Error("Expected unique record ids")
	}
	if records[0].RowIndex != 1 || records[1].RowIndex != 2 {
		t.Error("Expected records in submission order")
	}
}

func TestCommit_EmptyBatchRejected(t *testing.T) {
	writer, _ := newTestWriter(t)

	_, err := writer.Commit(context.Background(), 1, 42, nil)
	if err == nil {
		t.Fatal("Expected error for empty batch")
	}

	ingestErr, ok := errors.AsIngestError(err)
	if !ok || ingestErr.Code != errors.CodeBatchRejected {
		t.Errorf("Expected batch rejected error, got %v", err)
	}
}

func TestCommit_InvalidRowRejectsWholeBatch(t *testing.T) {
	writer, store := newTestWriter(t)

	bad := validPreview(t, 2, "0", "100")
	bad.Description = "  "

	previews := []*models.TransactionPreview{
		validPreview(t, 1, "0", "500"),
		bad,
		validPreview(t, 3, "50", "0"),
	}

	_, err := writer.Commit(context.Background(), 1, 42, previews)
	if err == nil {
		t.Fatal("Expected commit to be rejected")
	}

	if store.Count() != 0 {
		t.Errorf("Expected nothing persisted on rejection, got %d records", store.Count())
	}

	rowErrors := RowErrorsFromError(err)
	if len(rowErrors) != 1 {
		t.Fatalf("Expected 1 row error, got %d", len(rowErrors))
	}
	if rowErrors[0].RowIndex != 2 || rowErrors[0].Field != "description" {
		t.Errorf("Unexpected row error: %+v", rowErrors[0])
	}
}

func TestCommit_CollectsAllRowErrors(t *testing.T) {
	writer, _ := newTestWriter(t)

	noDate := validPreview(t, 1, "0", "100")
	noDate.TransactionDate = time.Time{}

	noDescription := validPreview(t, 2, "0", "100")
	noDescription.Description = ""

	bothSides := validPreview(t, 3, "0", "0")
	bothSides.Debit = decimal.RequireFromString("10")
	bothSides.Credit = decimal.RequireFromString("10")

	_, err := writer.Commit(context.Background(), 1, 42, []*models.TransactionPreview{noDate, noDescription, bothSides})
	if err == nil {
		t.Fatal("Expected commit to be rejected")
	}

	rowErrors := RowErrorsFromError(err)
	if len(rowErrors) != 3 {
		t.Errorf("Expected 3 row errors collected in one pass, got %d", len(rowErrors))
	}

	seen := make(map[int]bool)
	for _, rowErr := range rowErrors {
		seen[rowErr.RowIndex] = true
	}
	for _, want := range []int{1, 2, 3} {
		if !seen[want] {
			t.Errorf("Expected a row error for row %d", want)
		}
	}
}

func TestCommit_UnresolvedIssuesRejected(t *testing.T) {
	writer, store := newTestWriter(t)

	flagged := validPreview(t, 1, "0", "100")
	flagged.AddIssue(models.IssueBadCredit)

	_, err := writer.Commit(context.Background(), 1, 42, []*models.TransactionPreview{flagged})
	if err == nil {
		t.Fatal("Expected flagged row to reject the commit")
	}
	if store.Count() != 0 {
		t.Error("Expected nothing persisted")
	}

	rowErrors := RowErrorsFromError(err)
	if len(rowErrors) != 1 || rowErrors[0].Field != "issues" {
		t.Errorf("Expected an issues row error, got %+v", rowErrors)
	}
}

func TestCommit_StoreFailureNothingWritten(t *testing.T) {
	writer, store := newTestWriter(t)
	store.FailWith = fmt.Errorf("disk exploded")

	_, err := writer.Commit(context.Background(), 1, 42, []*models.TransactionPreview{
		validPreview(t, 1, "0", "500"),
	})
	if err == nil {
		t.Fatal("Expected store failure to surface")
	}

	ingestErr, ok := errors.AsIngestError(err)
	if !ok || ingestErr.Code != errors.CodeStoreFailure {
		t.Errorf("Expected store failure error, got %v", err)
	}
	if store.Count() != 0 {
		t.Errorf("Expected nothing persisted after store failure, got %d", store.Count())
	}
}

func TestRowErrorsFromError_NonCommitError(t *testing.T) {
	if got := RowErrorsFromError(fmt.Errorf("plain error")); got != nil {
		t.Errorf("Expected nil for non-commit error, got %v", got)
	}
}
