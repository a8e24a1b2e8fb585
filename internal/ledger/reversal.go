package ledger

import (
	"statement-ingestion-service/internal/models"
	"statement-ingestion-service/pkg/logger"
)

// DefaultReversalWindow is the default forward search distance, in rows, for
// a reversal partner. Statements typically post a reversal within a few
// lines of the original; an unbounded search produces false positives on
// large statements with repeated round amounts.
const DefaultReversalWindow = 10

// DetectReversals pairs transactions that cancel each other out: equal
// absolute amount, opposite sign, within the given row window.
//
// The scan is greedy and single-pass. For each unpaired row the nearest
// unpaired forward row whose amount is the exact negation wins; both rows
// are then marked paired and annotated with each other's row index. The
// result is deterministic and stable under re-runs.
//
// Greedy nearest-match can under- or over-pair adversarial inputs (three
// identical amounts in a row, say). That is an accepted limitation; no
// heuristic second-guessing is applied.
func DetectReversals(previews []*models.TransactionPreview, window int) {
	if window <= 0 {
		window = DefaultReversalWindow
	}

	log := logger.GetGlobalLogger().WithComponent("reversal_detector")
	paired := make([]bool, len(previews))
	pairs := 0

	for i := range previews {
		if paired[i] || previews[i].Amount.IsZero() {
			continue
		}

		limit := i + window
		if limit >= len(previews) {
			limit = len(previews) - 1
		}

		for j := i + 1; j <= limit; j++ {
			if paired[j] {
				continue
			}
			if !previews[j].Amount.Equal(previews[i].Amount.Neg()) {
				continue
			}

			iIndex := previews[i].RowIndex
			jIndex := previews[j].RowIndex

			previews[i].IsReversal = true
			previews[i].ReversalPairIndex = &jIndex
			previews[j].IsReversal = true
			previews[j].ReversalPairIndex = &iIndex

			paired[i] = true
			paired[j] = true
			pairs++
			break
		}
	}

	log.WithFields(logger.Fields{
		"rows":   len(previews),
		"window": window,
		"pairs":  pairs,
	}).Debug("Reversal detection completed")
}
