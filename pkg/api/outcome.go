package api

import "fmt"

// OutcomeKind classifies how far a multi-step operation got.
type OutcomeKind string

const (
	// OutcomeApplied means every sub-item was applied.
	OutcomeApplied OutcomeKind = "applied"
	// OutcomeAppliedWithSkips means the operation completed but some sub-items were skipped.
	OutcomeAppliedWithSkips OutcomeKind = "applied_with_skips"
	// OutcomeRolledBack means a partial write was compensated.
	OutcomeRolledBack OutcomeKind = "rolled_back"
	// OutcomeNotApplied means nothing was written.
	OutcomeNotApplied OutcomeKind = "not_applied"
)

// Outcome is the discriminated result of an operation that touches several items.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Total   int         `json:"total"`
	Applied int         `json:"applied"`
	Skipped []string    `json:"skipped,omitempty"`
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeAppliedWithSkips:
		return fmt.Sprintf("applied %d of %d (%d skipped)", o.Applied, o.Total, len(o.Skipped))
	case OutcomeApplied:
		return fmt.Sprintf("applied %d of %d", o.Applied, o.Total)
	default:
		return string(o.Kind)
	}
}

// Applied builds a full-success outcome.
func Applied(n int) Outcome {
	return Outcome{Kind: OutcomeApplied, Total: n, Applied: n}
}

// AppliedWithSkips builds an outcome for total items of which the skipped ids were left out.
func AppliedWithSkips(total int, skipped []string) Outcome {
	if len(skipped) == 0 {
		return Applied(total)
	}
	return Outcome{
		Kind:    OutcomeAppliedWithSkips,
		Total:   total,
		Applied: total - len(skipped),
		Skipped: skipped,
	}
}

// NotApplied builds an outcome for an operation that wrote nothing.
func NotApplied(total int) Outcome {
	return Outcome{Kind: OutcomeNotApplied, Total: total}
}

// RolledBack builds an outcome for an operation whose partial writes were undone.
func RolledBack(total int) Outcome {
	return Outcome{Kind: OutcomeRolledBack, Total: total}
}
