package config

import (
	"testing"

	"statement-ingestion-service/internal/parsers"
	"statement-ingestion-service/internal/reporter"
)

func TestCreateParserConfig(t *testing.T) {
	config, err := CreateParserConfig("standard", "")
	if err != nil {
		t.Fatalf("CreateParserConfig failed: %v", err)
	}
	if config != parsers.StandardStatementConfig {
		t.Error("Expected the shared standard config when no override is given")
	}

	if _, err := CreateParserConfig("unknown", ""); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

func TestCreateParserConfig_DelimiterOverride(t *testing.T) {
	config, err := CreateParserConfig("standard", "|")
	if err != nil {
		t.Fatalf("CreateParserConfig failed: %v", err)
	}
	if config.Delimiter != '|' {
		t.Errorf("Expected delimiter override, got %q", config.Delimiter)
	}

	// The shared predefined config must not be mutated by the override.
	if parsers.StandardStatementConfig.Delimiter != ',' {
		t.Error("Expected predefined config to keep its delimiter")
	}

	if _, err := CreateParserConfig("standard", "||"); err == nil {
		t.Error("Expected error for multi-character delimiter")
	}
}

func TestCreateAccount(t *testing.T) {
	account, err := CreateAccount(1, 2, "1000.50")
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if account.ID != 1 || account.BankID != 2 {
		t.Errorf("Unexpected account identity: %+v", account)
	}
	if account.OpeningBalance.String() != "1000.5" {
		t.Errorf("Unexpected opening balance: %s", account.OpeningBalance)
	}

	account, err = CreateAccount(1, 2, "")
	if err != nil {
		t.Fatalf("CreateAccount with empty balance failed: %v", err)
	}
	if !account.OpeningBalance.IsZero() {
		t.Errorf("Expected zero opening balance for empty input, got %s", account.OpeningBalance)
	}

	if _, err := CreateAccount(1, 2, "not-a-number"); err == nil {
		t.Error("Expected error for invalid opening balance")
	}
}

func TestCreatePipelineConfig(t *testing.T) {
	parserConfig := parsers.DefaultStatementParserConfig()

	config := CreatePipelineConfig(parserConfig, 5)
	if config.ReversalWindow != 5 {
		t.Errorf("Expected window override 5, got %d", config.ReversalWindow)
	}

	config = CreatePipelineConfig(parserConfig, 0)
	if config.ReversalWindow <= 0 {
		t.Error("Expected default window when no override is given")
	}
}

func TestCreateReportConfig(t *testing.T) {
	tests := []struct {
		format string
		want   reporter.ReportFormat
	}{
		{"console", reporter.FormatConsole},
		{"json", reporter.FormatJSON},
		{"csv", reporter.FormatCSV},
		{"anything-else", reporter.FormatConsole},
	}

	for _, tt := range tests {
		config := CreateReportConfig(tt.format)
		if config.Format != tt.want {
			t.Errorf("CreateReportConfig(%q).Format = %s, want %s", tt.format, config.Format, tt.want)
		}
	}
}
