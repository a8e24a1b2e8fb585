package classify

import (
	"context"
	"testing"
	"time"

	"statement-ingestion-service/internal/models"
	"statement-ingestion-service/internal/patterns"
)

func int64Ptr(v int64) *int64 {
	return &v
}

// Helper to build a snapshot from classification/pattern pairs
func buildSnapshot(t *testing.T, bankID int64, setup func(r *patterns.StaticRegistry)) *patterns.Snapshot {
	t.Helper()

	r := patterns.NewStaticRegistry()
	setup(r)

	snapshot, err := patterns.BuildSnapshot(context.Background(), r, bankID)
	if err != nil {
		t.Fatalf("BuildSnapshot failed: %v", err)
	}
	return snapshot
}

func addClassification(t *testing.T, r *patterns.StaticRegistry, id int64, code string) {
	t.Helper()
	err := r.AddClassification(&models.Classification{
		ID:       id,
		Code:     code,
		Category: models.CategoryOther,
		Label:    code,
	})
	if err != nil {
		t.Fatalf("Failed to add classification %s: %v", code, err)
	}
}

func TestClassifier_Classify(t *testing.T) {
	snapshot := buildSnapshot(t, 1, func(r *patterns.StaticRegistry) {
		addClassification(t, r, 1, "SALARY")
		addClassification(t, r, 2, "ATM_WITHDRAWAL")
		addClassification(t, r, 3, "SMS_FEE")

		r.AddPattern(&models.ClassificationPattern{Keyword: "SALARY", ClassificationID: 1})
		r.AddPattern(&models.ClassificationPattern{Keyword: `(?i)\bATM\b`, IsRegex: true, ClassificationID: 2})
		r.AddPattern(&models.ClassificationPattern{Keyword: "SMS Charge", ClassificationID: 3})
	})

	classifier := NewClassifier(snapshot)

	tests := []struct {
		description string
		wantID      int64
		wantMatch   bool
	}{
		{"MARCH SALARY PAYMENT", 1, true},
		{"ATM WITHDRAWAL MAIN ST", 2, true},
		{"SMS Charge", 3, true},
		{"sms charge", 3, true},
		{"UNKNOWN MERCHANT", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		id, ok := classifier.Classify(tt.description)
		if ok != tt.wantMatch || id != tt.wantID {
			t.Errorf("Classify(%q) = (%d, %v), want (%d, %v)",
				tt.description, id, ok, tt.wantID, tt.wantMatch)
		}
	}
}

func TestClassifier_FirstMatchWins(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	snapshot := buildSnapshot(t, 1, func(r *patterns.StaticRegistry) {
		addClassification(t, r, 1, "GENERIC_FEE")
		addClassification(t, r, 2, "SPECIFIC_FEE")

		// Both patterns match "MONTHLY FEE CHARGE". The earlier-created
		// pattern must win regardless of match length.
		r.AddPattern(&models.ClassificationPattern{Keyword: "FEE", ClassificationID: 1, CreatedAt: base})
		r.AddPattern(&models.ClassificationPattern{Keyword: "MONTHLY FEE", ClassificationID: 2, CreatedAt: base.Add(time.Hour)})
	})

	classifier := NewClassifier(snapshot)

	id, ok := classifier.Classify("MONTHLY FEE CHARGE")
	if !ok || id != 1 {
		t.Errorf("Expected first-created pattern (id 1) to win, got (%d, %v)", id, ok)
	}
}

func TestClassifier_BankScopedBeforeGlobal(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	snapshot := buildSnapshot(t, 7, func(r *patterns.StaticRegistry) {
		addClassification(t, r, 1, "GLOBAL_FEE")
		addClassification(t, r, 2, "BANK_FEE")

		// The global pattern is older, but the bank-scoped pattern still
		// takes priority.
		r.AddPattern(&models.ClassificationPattern{Keyword: "FEE", ClassificationID: 1, CreatedAt: base})
		r.AddPattern(&models.ClassificationPattern{Keyword: "SERVICE FEE", BankID: int64Ptr(7), ClassificationID: 2, CreatedAt: base.Add(time.Hour)})
	})

	classifier := NewClassifier(snapshot)

	id, ok := classifier.Classify("SERVICE FEE MARCH")
	if !ok || id != 2 {
		t.Errorf("Expected bank-scoped pattern (id 2) to win over global, got (%d, %v)", id, ok)
	}
}

func TestClassifier_DefaultRegistryScenario(t *testing.T) {
	r := patterns.NewDefaultRegistry()
	snapshot, err := patterns.BuildSnapshot(context.Background(), r, 1)
	if err != nil {
		t.Fatalf("BuildSnapshot failed: %v", err)
	}

	classifier := NewClassifier(snapshot)

	tests := []struct {
		description string
		wantCode    string
	}{
		{"SMS Charge", "SMS_FEE"},
		{"SALARY PAYMENT MARCH", "SALARY"},
		{"ATM WITHDRAWAL MAIN ST", "ATM_WITHDRAWAL"},
	}

	for _, tt := range tests {
		id, ok := classifier.Classify(tt.description)
		if !ok {
			t.Errorf("Classify(%q) found no match, want %s", tt.description, tt.wantCode)
			continue
		}
		c, exists := snapshot.Classification(id)
		if !exists || c.Code != tt.wantCode {
			t.Errorf("Classify(%q) resolved to %v, want %s", tt.description, c, tt.wantCode)
		}
	}
}
