// Package classify assigns business classifications to transaction
// descriptions using an ordered pattern snapshot.
package classify

import (
	"statement-ingestion-service/internal/patterns"
	"statement-ingestion-service/pkg/logger"
)

// Classifier matches descriptions against one pattern snapshot. It is a pure
// function of (description, snapshot): no hidden state, so the same preview
// is reproducible for the whole pipeline run.
type Classifier struct {
	snapshot *patterns.Snapshot
	logger   logger.Logger
}

// NewClassifier creates a classifier bound to a pattern snapshot
func NewClassifier(snapshot *patterns.Snapshot) *Classifier {
	return &Classifier{
		snapshot: snapshot,
		logger:   logger.GetGlobalLogger().WithComponent("classifier"),
	}
}

// Classify returns the classification id for a description, or false when no
// pattern matches.
//
// Candidates are tested in snapshot priority order (bank-scoped before
// global, creation order within scope) and the first match wins. Ties are
// resolved purely by that ordering, never by match length or specificity.
// A miss is a normal outcome, not an error.
func (c *Classifier) Classify(description string) (int64, bool) {
	if description == "" {
		return 0, false
	}

	for _, candidate := range c.snapshot.Candidates() {
		if candidate.Matches(description) {
			return candidate.Pattern.ClassificationID, true
		}
	}

	return 0, false
}

// Snapshot returns the pattern snapshot the classifier was built with
func (c *Classifier) Snapshot() *patterns.Snapshot {
	return c.snapshot
}
