package api

import "fmt"

// DefaultReasoningPartType is used when a part starts without a type.
const DefaultReasoningPartType = "summary_text"

// StartPart opens the part with the given summary index. Parts may start in
// any order. Starting a part that already exists keeps its text; starting a
// completed part is rejected.
func (r *Reasoning) StartPart(summaryIndex int, partType string) error {
	if p := r.part(summaryIndex); p != nil {
		if p.IsComplete {
			return r.revisionError(summaryIndex)
		}
		if partType != "" {
			p.Type = partType
		}
		return nil
	}
	if partType == "" {
		partType = DefaultReasoningPartType
	}
	r.Parts = append(r.Parts, ReasoningPart{SummaryIndex: summaryIndex, Type: partType})
	return nil
}

// AppendDelta adds text to a part, opening it first if no start was seen.
func (r *Reasoning) AppendDelta(summaryIndex int, delta string) error {
	p := r.part(summaryIndex)
	if p == nil {
		if err := r.StartPart(summaryIndex, ""); err != nil {
			return err
		}
		p = r.part(summaryIndex)
	}
	if p.IsComplete {
		return r.revisionError(summaryIndex)
	}
	p.Text += delta
	return nil
}

// CompletePart marks a part complete. A non-empty text replaces the
// accumulated deltas. Completing an already complete part again is only
// accepted when it would not change the text.
func (r *Reasoning) CompletePart(summaryIndex int, text string) error {
	p := r.part(summaryIndex)
	if p == nil {
		if err := r.StartPart(summaryIndex, ""); err != nil {
			return err
		}
		p = r.part(summaryIndex)
	}
	if p.IsComplete {
		if text == "" || text == p.Text {
			return nil
		}
		return r.revisionError(summaryIndex)
	}
	if text != "" {
		p.Text = text
	}
	p.IsComplete = true
	return nil
}

// MergePart applies a snapshot of one part, as carried by a segment update
// frame. An open part takes the snapshot's text; a complete part only
// accepts a snapshot that leaves its text unchanged.
func (r *Reasoning) MergePart(snapshot ReasoningPart) error {
	if err := r.StartPart(snapshot.SummaryIndex, snapshot.Type); err != nil {
		if p := r.part(snapshot.SummaryIndex); p.Text == snapshot.Text {
			return nil
		}
		return err
	}
	p := r.part(snapshot.SummaryIndex)
	p.Text = snapshot.Text
	p.IsComplete = snapshot.IsComplete
	return nil
}

// Complete reports whether every part has been marked complete.
func (r *Reasoning) Complete() bool {
	for _, p := range r.Parts {
		if !p.IsComplete {
			return false
		}
	}
	return true
}

func (r *Reasoning) part(summaryIndex int) *ReasoningPart {
	for i := range r.Parts {
		if r.Parts[i].SummaryIndex == summaryIndex {
			return &r.Parts[i]
		}
	}
	return nil
}

func (r *Reasoning) revisionError(summaryIndex int) error {
	return NewValidationError(
		fmt.Sprintf("parts[%d]", summaryIndex),
		fmt.Sprintf("reasoning %s part %d is already complete", r.ID, summaryIndex),
	)
}
