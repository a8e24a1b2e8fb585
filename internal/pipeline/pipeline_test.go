package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"statement-ingestion-service/internal/models"
	"statement-ingestion-service/internal/parsers"
	"statement-ingestion-service/internal/patterns"
	"statement-ingestion-service/pkg/errors"

	"github.com/shopspring/decimal"
)

const testStatement = `transaction_date,value_date,description,debit,credit
2024-03-01,2024-03-01,SALARY PAYMENT MARCH,,500.00
2024-03-02,2024-03-02,ATM WITHDRAWAL MAIN ST,500.00,
2024-03-03,2024-03-03,SMS Charge,2.50,
`

// Helper to build a pipeline over the default registry and one account
func newTestPipeline(t *testing.T, openingBalance string) (*Pipeline, int64) {
	t.Helper()

	accounts := NewStaticAccountRegistry()
	accounts.AddAccount(&models.Account{
		ID:             1,
		BankID:         1,
		Name:           "test-account",
		OpeningBalance: decimal.RequireFromString(openingBalance),
	})

	p, err := New(patterns.NewDefaultRegistry(), accounts, nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}
	return p, 1
}

func TestNew_Validation(t *testing.T) {
	accounts := NewStaticAccountRegistry()
	registry := patterns.NewDefaultRegistry()

	if _, err := New(nil, accounts, nil); err == nil {
		t.Error("Expected error for nil pattern registry")
	}
	if _, err := New(registry, nil, nil); err == nil {
		t.Error("Expected error for nil account registry")
	}
	if _, err := New(registry, accounts, &Config{ReversalWindow: -1, ParserConfig: parsers.DefaultStatementParserConfig()}); err == nil {
		t.Error("Expected error for negative reversal window")
	}
}

func TestParseAndPreview(t *testing.T) {
	p, accountID := newTestPipeline(t, "1000.00")

	result, err := p.ParseAndPreview(context.Background(), accountID, strings.NewReader(testStatement), parsers.FormatCSV)
	if err != nil {
		t.Fatalf("ParseAndPreview failed: %v", err)
	}

	if len(result.Previews) != 3 {
		t.Fatalf("Expected 3 previews, got %d", len(result.Previews))
	}

	// Running balance from the opening balance.
	wantBalances := []string{"1500", "1000", "997.5"}
	for i, want := range wantBalances {
		if result.Previews[i].Balance.String() != want {
			t.Errorf("Row %d balance = %s, want %s", i+1, result.Previews[i].Balance, want)
		}
	}

	// Every row should be classified by the seeded registry.
	for i, preview := range result.Previews {
		if preview.ClassificationID == nil {
			t.Errorf("Row %d is unclassified", i+1)
		}
	}

	// 500 credit and 500 debit cancel and sit within the window.
	if !result.Previews[0].IsReversal || !result.Previews[1].IsReversal {
		t.Error("Expected rows 1 and 2 to be paired as reversals")
	}
	if result.Previews[2].IsReversal {
		t.Error("Did not expect row 3 to be a reversal")
	}
}

func TestParseAndPreview_UnknownAccount(t *testing.T) {
	p, _ := newTestPipeline(t, "0")

	_, err := p.ParseAndPreview(context.Background(), 999, strings.NewReader(testStatement), parsers.FormatCSV)
	if err == nil {
		t.Fatal("Expected error for unknown account")
	}

	ingestErr, ok := errors.AsIngestError(err)
	if !ok || ingestErr.Code != errors.CodeUnknownAccount {
		t.Errorf("Expected unknown account error, got %v", err)
	}
}

func TestParseAndPreview_FlaggedRowsSurvive(t *testing.T) {
	content := `transaction_date,value_date,description,debit,credit
2024-03-01,2024-03-01,GOOD ROW,,100.00
2024-03-02,2024-03-02,BAD CREDIT,,abc
`

	p, accountID := newTestPipeline(t, "0")
	result, err := p.ParseAndPreview(context.Background(), accountID, strings.NewReader(content), parsers.FormatCSV)
	if err != nil {
		t.Fatalf("ParseAndPreview failed: %v", err)
	}

	if len(result.Previews) != 2 {
		t.Fatalf("Expected flagged row to be kept, got %d previews", len(result.Previews))
	}
	if !result.Previews[1].HasIssue(models.IssueBadCredit) {
		t.Error("Expected flag to survive into the preview")
	}
	if result.Stats.RowsFlagged != 1 {
		t.Errorf("Expected 1 flagged row in stats, got %d", result.Stats.RowsFlagged)
	}

	// The flagged credit contributes zero to the balance.
	if result.Previews[1].Balance.String() != "100" {
		t.Errorf("Expected balance unchanged by unparseable amount, got %s", result.Previews[1].Balance)
	}
}

func TestParseAndPreview_Deterministic(t *testing.T) {
	p, accountID := newTestPipeline(t, "1000.00")

	run := func() string {
		result, err := p.ParseAndPreview(context.Background(), accountID, strings.NewReader(testStatement), parsers.FormatCSV)
		if err != nil {
			t.Fatalf("ParseAndPreview failed: %v", err)
		}
		data, err := json.Marshal(result.Previews)
		if err != nil {
			t.Fatalf("Failed to marshal previews: %v", err)
		}
		return string(data)
	}

	first := run()
	second := run()
	if first != second {
		t.Error("Expected identical preview output across runs on unchanged input")
	}
}

func TestStaticAccountRegistry(t *testing.T) {
	accounts := NewStaticAccountRegistry()
	accounts.AddAccount(&models.Account{ID: 5, BankID: 2, Name: "acct"})

	account, err := accounts.GetAccount(context.Background(), 5)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if account.BankID != 2 {
		t.Errorf("Unexpected bank id %d", account.BankID)
	}

	if _, err := accounts.GetAccount(context.Background(), 6); err == nil {
		t.Error("Expected error for missing account")
	}
}
