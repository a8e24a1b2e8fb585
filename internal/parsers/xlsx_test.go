package parsers

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"statement-ingestion-service/internal/models"

	"github.com/xuri/excelize/v2"
)

// Helper to build an in-memory XLSX workbook from cell rows
func buildWorkbook(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("Failed to compute cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("Failed to set sheet row: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("Failed to serialize workbook: %v", err)
	}
	return buf
}

func TestStatementParser_Parse_XLSX(t *testing.T) {
	buf := buildWorkbook(t, [][]interface{}{
		{"transaction_date", "value_date", "description", "debit", "credit"},
		{"2024-03-01", "2024-03-01", "SALARY PAYMENT MARCH", "", "500.00"},
		{"2024-03-02", "2024-03-02", "ATM WITHDRAWAL MAIN ST", "200.00", ""},
	})

	parser, err := NewStatementParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	rows, stats, err := parser.Parse(context.Background(), buf, FormatXLSX)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if stats.RowsFlagged != 0 {
		t.Errorf("Expected no flagged rows, got %d", stats.RowsFlagged)
	}

	if rows[0].Credit.String() != "500" {
		t.Errorf("Row 1 credit = %s, want 500", rows[0].Credit)
	}
	if rows[1].Debit.String() != "200" {
		t.Errorf("Row 2 debit = %s, want 200", rows[1].Debit)
	}
	if rows[0].TransactionDate.Format("2006-01-02") != "2024-03-01" {
		t.Errorf("Unexpected transaction date: %s", rows[0].TransactionDate)
	}
}

func TestStatementParser_Parse_XLSX_FlaggedRow(t *testing.T) {
	buf := buildWorkbook(t, [][]interface{}{
		{"transaction_date", "value_date", "description", "debit", "credit"},
		{"2024-03-01", "2024-03-01", "BAD CREDIT ROW", "", "abc"},
	})

	parser, err := NewStatementParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	rows, stats, err := parser.Parse(context.Background(), buf, FormatXLSX)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(rows) != 1 || !rows[0].HasIssue(models.IssueBadCredit) {
		t.Error("Expected flagged row to be emitted from XLSX input")
	}
	if stats.RowsFlagged != 1 {
		t.Errorf("Expected 1 flagged row, got %d", stats.RowsFlagged)
	}
}

func TestStatementParser_Parse_XLSX_NotAWorkbook(t *testing.T) {
	parser, err := NewStatementParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	_, _, err = parser.Parse(context.Background(), strings.NewReader("this is not a workbook"), FormatXLSX)
	if err == nil {
		t.Fatal("Expected error for invalid XLSX input")
	}
}
