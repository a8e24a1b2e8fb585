// Package patterns provides the classification pattern store.
//
// The store's one critical contract is candidate ordering: bank-scoped
// patterns come before global patterns, and creation order is preserved
// within each scope. The classifier's first-match-wins rule depends on this
// ordering, so it is enforced explicitly when a snapshot is built rather
// than left to whatever order a registry happens to return.
//
// A Snapshot is immutable and safe for concurrent reads. Each pipeline run
// builds one snapshot and threads it through all classification calls, so
// concurrent pattern edits never affect an in-flight run.
package patterns

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"statement-ingestion-service/internal/models"
	"statement-ingestion-service/pkg/errors"
	"statement-ingestion-service/pkg/logger"
)

// Registry is the read interface to the external classification and pattern
// CRUD. ListPatterns must return every pattern in scope for the bank: the
// bank's own patterns plus all global ones. Ordering is imposed here, not
// by the registry.
type Registry interface {
	ListClassifications(ctx context.Context) ([]*models.Classification, error)
	ListPatterns(ctx context.Context, bankID int64) ([]*models.ClassificationPattern, error)
}

// Candidate is one precompiled pattern in snapshot priority order
type Candidate struct {
	Pattern *models.ClassificationPattern

	re           *regexp.Regexp
	keywordLower string
}

// Matches tests the candidate against a transaction description. Literal
// keywords use a case-insensitive substring test; regex patterns use an
// unanchored search.
func (c *Candidate) Matches(description string) bool {
	if c.Pattern.IsRegex {
		return c.re.MatchString(description)
	}
	return strings.Contains(strings.ToLower(description), c.keywordLower)
}

// Snapshot is one consistent, ordered view of the pattern set for a bank
type Snapshot struct {
	bankID          int64
	candidates      []*Candidate
	classifications map[int64]*models.Classification
}

// BuildSnapshot fetches classifications and patterns from the registry and
// freezes them into an ordered, precompiled snapshot for one pipeline run
func BuildSnapshot(ctx context.Context, registry Registry, bankID int64) (*Snapshot, error) {
	log := logger.GetGlobalLogger().WithComponent("pattern_store")

	classifications, err := registry.ListClassifications(ctx)
	if err != nil {
		return nil, errors.ClassificationError(errors.CodeUnexpectedError, "listing classifications", err)
	}

	classificationMap := make(map[int64]*models.Classification, len(classifications))
	for _, c := range classifications {
		classificationMap[c.ID] = c
	}

	patternList, err := registry.ListPatterns(ctx, bankID)
	if err != nil {
		return nil, errors.ClassificationError(errors.CodeUnexpectedError, "listing patterns", err)
	}

	// Bank-scoped before global; creation order within each scope. The sort
	// is stable so registries that already honor creation order are not
	// reshuffled on ties.
	ordered := make([]*models.ClassificationPattern, len(patternList))
	copy(ordered, patternList)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].IsGlobal() != ordered[j].IsGlobal() {
			return !ordered[i].IsGlobal()
		}
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	candidates := make([]*Candidate, 0, len(ordered))
	for _, p := range ordered {
		if !p.AppliesTo(bankID) {
			continue
		}
		if _, exists := classificationMap[p.ClassificationID]; !exists {
			return nil, errors.ClassificationError(
				errors.CodeUnknownClassification,
				fmt.Sprintf("pattern %d -> classification %d", p.ID, p.ClassificationID),
				nil,
			)
		}

		candidate := &Candidate{Pattern: p}
		if p.IsRegex {
			re, err := regexp.Compile(p.Keyword)
			if err != nil {
				return nil, errors.ClassificationError(
					errors.CodeInvalidPattern,
					fmt.Sprintf("pattern %d: %q", p.ID, p.Keyword),
					err,
				)
			}
			candidate.re = re
		} else {
			candidate.keywordLower = strings.ToLower(p.Keyword)
		}
		candidates = append(candidates, candidate)
	}

	log.WithFields(logger.Fields{
		"bank_id":         bankID,
		"candidates":      len(candidates),
		"classifications": len(classificationMap),
	}).Debug("Built pattern snapshot")

	return &Snapshot{
		bankID:          bankID,
		candidates:      candidates,
		classifications: classificationMap,
	}, nil
}

// BankID returns the bank the snapshot was built for
func (s *Snapshot) BankID() int64 {
	return s.bankID
}

// Candidates returns the patterns in classification priority order
func (s *Snapshot) Candidates() []*Candidate {
	return s.candidates
}

// Classification looks up a classification by id
func (s *Snapshot) Classification(id int64) (*models.Classification, bool) {
	c, ok := s.classifications[id]
	return c, ok
}

// Len returns the number of candidate patterns in the snapshot
func (s *Snapshot) Len() int {
	return len(s.candidates)
}

// StaticRegistry is an in-memory Registry implementation. It backs the CLI
// and tests; production callers plug in their own registry over the real
// classification CRUD.
type StaticRegistry struct {
	mutex           sync.RWMutex
	classifications []*models.Classification
	patterns        []*models.ClassificationPattern
	nextPatternID   int64
}

// NewStaticRegistry creates an empty in-memory registry
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{nextPatternID: 1}
}

// AddClassification registers a classification. A duplicate code yields a
// conflict error.
func (r *StaticRegistry) AddClassification(c *models.Classification) error {
	if err := c.Validate(); err != nil {
		return errors.ValidationError(errors.CodeInvalidData, "classification", c.Code, err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, existing := range r.classifications {
		if existing.Code == c.Code {
			return errors.ValidationError(
				errors.CodeInvalidData,
				"classification",
				c.Code,
				fmt.Errorf("classification code already exists"),
			)
		}
	}

	r.classifications = append(r.classifications, c)
	return nil
}

// AddPattern registers a pattern, stamping its id and creation time.
// A duplicate keyword within the same scope yields a conflict error; an
// invalid regex is rejected here, at creation time.
func (r *StaticRegistry) AddPattern(p *models.ClassificationPattern) error {
	if err := p.Validate(); err != nil {
		return errors.ValidationError(errors.CodeInvalidData, "pattern", p.Keyword, err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, existing := range r.patterns {
		if existing.Keyword == p.Keyword && sameScope(existing.BankID, p.BankID) {
			return errors.ValidationError(
				errors.CodeInvalidData,
				"pattern",
				p.Keyword,
				fmt.Errorf("pattern already exists for this scope"),
			)
		}
	}

	p.ID = r.nextPatternID
	r.nextPatternID++
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	r.patterns = append(r.patterns, p)
	return nil
}

func sameScope(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ListClassifications implements Registry
func (r *StaticRegistry) ListClassifications(ctx context.Context) ([]*models.Classification, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]*models.Classification, len(r.classifications))
	copy(out, r.classifications)
	return out, nil
}

// ListPatterns implements Registry: every pattern in scope for the bank, in
// creation order
func (r *StaticRegistry) ListPatterns(ctx context.Context, bankID int64) ([]*models.ClassificationPattern, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var out []*models.ClassificationPattern
	for _, p := range r.patterns {
		if p.AppliesTo(bankID) {
			out = append(out, p)
		}
	}
	return out, nil
}

// NewDefaultRegistry returns a registry seeded with common classifications
// and global patterns, so the CLI can produce a useful preview without an
// external registry
func NewDefaultRegistry() *StaticRegistry {
	r := NewStaticRegistry()

	seed := []struct {
		classification *models.Classification
		keyword        string
		isRegex        bool
	}{
		{&models.Classification{ID: 1, Code: "SALARY", Category: models.CategoryDeposit, Label: "Salary deposit"}, "SALARY", false},
		{&models.Classification{ID: 2, Code: "ATM_WITHDRAWAL", Category: models.CategoryWithdrawal, Label: "ATM withdrawal"}, `(?i)\bATM\b`, true},
		{&models.Classification{ID: 3, Code: "SMS_FEE", Category: models.CategoryFee, Label: "SMS alert charge"}, "SMS Charge", false},
		{&models.Classification{ID: 4, Code: "MAINTENANCE_FEE", Category: models.CategoryFee, Label: "Account maintenance fee"}, `(?i)MAINT(ENANCE)?\s+FEE`, true},
		{&models.Classification{ID: 5, Code: "REVERSAL", Category: models.CategoryReversal, Label: "Reversed entry"}, "REVERSAL", false},
		{&models.Classification{ID: 6, Code: "CHEQUE", Category: models.CategoryWithdrawal, Label: "Cheque payment"}, `(?i)\bCH(E?QUE|Q)\b`, true},
	}

	for _, s := range seed {
		if err := r.AddClassification(s.classification); err != nil {
			continue
		}
		_ = r.AddPattern(&models.ClassificationPattern{
			Keyword:          s.keyword,
			IsRegex:          s.isRegex,
			ClassificationID: s.classification.ID,
		})
	}

	return r
}
