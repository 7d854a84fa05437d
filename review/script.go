package review

import "fmt"

// ScriptedPipeline is a deterministic stand-in for the automated processing
// collaborator, used by tests and demos. The real system receives phase
// updates over the wire; this double replays a fixed script instead of the
// weighted-random status generation the original demo data used.
type ScriptedPipeline struct {
	tracker *Tracker
	updates []*PhaseUpdatePayload
	next    int
}

// NewScriptedPipeline creates a pipeline double that will apply the given
// updates in order.
func NewScriptedPipeline(tracker *Tracker, updates []*PhaseUpdatePayload) *ScriptedPipeline {
	return &ScriptedPipeline{tracker: tracker, updates: updates}
}

// Step applies the next scripted update. Returns false when the script is
// exhausted.
func (p *ScriptedPipeline) Step() (bool, error) {
	if p.next >= len(p.updates) {
		return false, nil
	}
	u := p.updates[p.next]
	p.next++
	if err := p.tracker.ApplyUpdate(u); err != nil {
		return true, fmt.Errorf("scripted update %d (%s %s): %w", p.next, u.Phase, u.Status, err)
	}
	return true, nil
}

// Run applies all remaining scripted updates, stopping at the first error.
func (p *ScriptedPipeline) Run() error {
	for {
		more, err := p.Step()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// CompletionScript builds the update sequence that drives every phase of a
// submission from yet_to_start to completed, attaching the given artifacts at
// each completion. Useful for wiring a submission straight to a reviewable
// state in tests.
func CompletionScript(id string, pages []Page, segment, ocr string, evals []EvaluationArtifact) []*PhaseUpdatePayload {
	return []*PhaseUpdatePayload{
		{SubmissionID: id, Phase: PhaseSegmentation, Status: StatusInProgress},
		{SubmissionID: id, Phase: PhaseSegmentation, Status: StatusCompleted, Pages: pages, SegmentArtifact: segment},
		{SubmissionID: id, Phase: PhaseOCR, Status: StatusInProgress},
		{SubmissionID: id, Phase: PhaseOCR, Status: StatusCompleted, OCRArtifact: ocr},
		{SubmissionID: id, Phase: PhaseEvaluation, Status: StatusInProgress},
		{SubmissionID: id, Phase: PhaseEvaluation, Status: StatusCompleted, Evaluations: evals},
	}
}
