package review

import (
	"fmt"
	"time"
)

// Tracker records phase status changes reported by the automated processing
// collaborator and validates every transition against the shared state
// machine. It never computes phase outputs itself; it only stores and gates
// on them.
type Tracker struct {
	registry *Registry
}

// NewTracker creates a tracker over the given registry.
func NewTracker(registry *Registry) *Tracker {
	return &Tracker{registry: registry}
}

// Advance applies an automated status transition to one phase of one
// submission. Approval is not reachable through this path; it belongs to the
// review controller. Illegal transitions fail with IllegalTransitionError and
// leave state untouched.
func (t *Tracker) Advance(id string, phase Phase, target PhaseStatus) error {
	if !phase.IsValid() {
		return &ValidationError{Field: "phase", Message: fmt.Sprintf("unknown phase: %s", phase)}
	}
	if !target.IsValid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status: %s", target)}
	}
	if target == StatusApproved {
		return &IllegalTransitionError{Phase: phase, From: StatusCompleted, To: StatusApproved}
	}

	return t.registry.mutate(id, func(sub *Submission) error {
		from := sub.StatusOf(phase)
		if !from.CanTransitionTo(target) {
			return &IllegalTransitionError{Phase: phase, From: from, To: target}
		}
		sub.setStatus(phase, target)
		sub.UpdatedAt = time.Now()
		return nil
	})
}

// ApplyUpdate applies a full phase update from the processing collaborator:
// the status transition plus whatever completion artifacts the update
// carries. Artifacts are validated before any state changes; a rejected
// update leaves the submission untouched.
func (t *Tracker) ApplyUpdate(u *PhaseUpdatePayload) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.Status == StatusApproved {
		return &IllegalTransitionError{Phase: u.Phase, From: StatusCompleted, To: StatusApproved}
	}

	return t.registry.mutate(u.SubmissionID, func(sub *Submission) error {
		from := sub.StatusOf(u.Phase)
		if !from.CanTransitionTo(u.Status) {
			return &IllegalTransitionError{Phase: u.Phase, From: from, To: u.Status}
		}

		if u.Status == StatusCompleted || u.Status == StatusPending {
			if len(u.Pages) > 0 {
				if err := ValidatePageOrder(u.Pages); err != nil {
					return err
				}
			}
			for i := range u.Evaluations {
				if err := u.Evaluations[i].Validate(); err != nil {
					return err
				}
			}

			if len(u.Pages) > 0 {
				sub.Pages = append([]Page(nil), u.Pages...)
			}
			if u.SegmentArtifact != "" {
				sub.SegmentArtifact = u.SegmentArtifact
			}
			if u.OCRArtifact != "" {
				sub.OCRArtifact = u.OCRArtifact
			}
			if len(u.Evaluations) > 0 {
				sub.Evaluations = append([]EvaluationArtifact(nil), u.Evaluations...)
			}
		}

		sub.setStatus(u.Phase, u.Status)
		sub.UpdatedAt = time.Now()
		return nil
	})
}
