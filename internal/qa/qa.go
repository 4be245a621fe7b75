// Package qa evaluates generated reports against quality checkpoints and
// derives an overall send verdict.
package qa

import (
	"context"
	"fmt"
)

// Checkpoint statuses.
const (
	CheckpointPassed         = "passed"
	CheckpointFailed         = "failed"
	CheckpointReviewRequired = "review_required"
)

// Issue severities, weakest first.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Issue is a single finding raised by a checkpoint.
type Issue struct {
	Message    string `json:"message"`
	Severity   string `json:"severity"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Checkpoint is one named quality check (tone, completeness, factual
// consistency, ...) contributing to a run's overall verdict.
type Checkpoint struct {
	Type   string  `json:"checkpoint_type"`
	Status string  `json:"status"`
	Score  float64 `json:"score"`
	Issues []Issue `json:"issues,omitempty"`
}

// Verdict is the aggregated QA outcome for a run.
type Verdict string

const (
	VerdictReadyToSend  Verdict = "READY_TO_SEND"
	VerdictReviewNeeded Verdict = "REVIEW_NEEDED"
	VerdictFailed       Verdict = "FAILED"
)

// Thresholds holds the score cutoffs for verdict derivation.
type Thresholds struct {
	Ready  float64 // aggregate score >= Ready -> READY_TO_SEND
	Review float64 // aggregate score >= Review -> REVIEW_NEEDED
}

// DefaultThresholds matches the platform's standard QA gate.
var DefaultThresholds = Thresholds{Ready: 0.85, Review: 0.70}

// Evaluator scores a run's output content against quality checkpoints.
// Implementations call the external QA service; tests supply fakes.
type Evaluator interface {
	Evaluate(ctx context.Context, runID, content string) ([]Checkpoint, error)
}

// Aggregate derives the overall verdict and aggregate score from a set of
// checkpoints. The aggregate score is the mean of checkpoint scores. A single
// critical-severity issue forces VerdictFailed regardless of the numeric
// aggregate. Checkpoint scores outside [0,1] are a data-integrity error and
// are reported, never clamped.
func Aggregate(checkpoints []Checkpoint, th Thresholds) (Verdict, float64, error) {
	if len(checkpoints) == 0 {
		return VerdictFailed, 0, fmt.Errorf("qa: no checkpoints returned")
	}

	var sum float64
	critical := false
	for _, cp := range checkpoints {
		if cp.Score < 0 || cp.Score > 1 {
			return VerdictFailed, 0, fmt.Errorf("qa: checkpoint %q score %v out of range [0,1]", cp.Type, cp.Score)
		}
		sum += cp.Score
		for _, issue := range cp.Issues {
			if issue.Severity == SeverityCritical {
				critical = true
			}
		}
	}
	score := sum / float64(len(checkpoints))

	if critical {
		return VerdictFailed, score, nil
	}
	switch {
	case score >= th.Ready:
		return VerdictReadyToSend, score, nil
	case score >= th.Review:
		return VerdictReviewNeeded, score, nil
	default:
		return VerdictFailed, score, nil
	}
}
