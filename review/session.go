package review

import (
	"context"
	"sync"
	"time"
)

// Controller drives review sessions. It is the only component that mutates
// phase state for human approval, and it serializes all mutating operations
// per submission so a reorder can never interleave with a concurrent
// approval. Different submissions proceed fully in parallel.
type Controller struct {
	registry  *Registry
	artifacts *ArtifactStore
	persister Persister

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewController creates a review controller.
func NewController(registry *Registry, artifacts *ArtifactStore, persister Persister) *Controller {
	return &Controller{
		registry:  registry,
		artifacts: artifacts,
		persister: persister,
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockFor returns the serialization mutex for a submission.
func (c *Controller) lockFor(id string) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	mu, ok := c.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		c.locks[id] = mu
	}
	return mu
}

// Session is one bounded review interaction for a (submission, phase) pair.
// It holds the transient review state the original UI kept in ambient
// globals: the current sub-item selection and whether an edit is in flight.
type Session struct {
	ctrl *Controller

	// SubmissionID identifies the submission under review.
	SubmissionID string

	// Phase is the phase under review.
	Phase Phase

	items    int
	selected int
	editing  bool
}

// OpenSession starts a review session for one phase of one submission. The
// phase must be completed; any other status fails with
// IllegalTransitionError, since review can only lead to approval.
func (c *Controller) OpenSession(id string, phase Phase) (*Session, error) {
	if !phase.IsValid() {
		return nil, &ValidationError{Field: "phase", Message: "unknown phase: " + string(phase)}
	}
	sub, err := c.registry.Get(id)
	if err != nil {
		return nil, err
	}
	status := sub.StatusOf(phase)
	if !status.Reviewable() {
		return nil, &IllegalTransitionError{Phase: phase, From: status, To: StatusApproved}
	}

	items := 1
	if phase == PhaseOCR || phase == PhaseEvaluation {
		if n := len(sub.Evaluations); n > 0 {
			items = n
		}
	}

	return &Session{
		ctrl:         c,
		SubmissionID: id,
		Phase:        phase,
		items:        items,
	}, nil
}

// Items returns the number of navigable sub-items in this session.
func (s *Session) Items() int {
	return s.items
}

// Selected returns the current 0-based sub-item index.
func (s *Session) Selected() int {
	return s.selected
}

// Editing returns true while staged edits are in flight.
func (s *Session) Editing() bool {
	return s.editing
}

// SelectItem moves the current sub-item selection. Out-of-range indexes fail
// with OutOfRangeError and leave the selection unchanged; there is no
// clamping.
func (s *Session) SelectItem(index int) error {
	if index < 0 || index >= s.items {
		return &OutOfRangeError{What: "item_index", Value: index, Min: 0, Max: s.items - 1}
	}
	s.selected = index
	return nil
}

// Reposition moves the page at 1-based fromPos to toPos and renumbers the
// page set. Only valid in a segmentation review. The new order takes effect
// immediately in memory and is persisted when the phase is approved; there is
// no separate save step for reordering.
func (s *Session) Reposition(fromPos, toPos int) error {
	if s.Phase != PhaseSegmentation {
		return &ValidationError{Field: "phase", Message: "page reposition is only available in segmentation review"}
	}

	mu := s.ctrl.lockFor(s.SubmissionID)
	mu.Lock()
	defer mu.Unlock()

	return s.ctrl.registry.mutate(s.SubmissionID, func(sub *Submission) error {
		status := sub.StatusOf(s.Phase)
		if !status.Reviewable() {
			return &IllegalTransitionError{Phase: s.Phase, From: status, To: StatusApproved}
		}
		reordered, err := Reorder(sub.Pages, fromPos, toPos)
		if err != nil {
			return err
		}
		sub.Pages = reordered
		sub.UpdatedAt = time.Now()
		return nil
	})
}

// BeginEdit switches an OCR review session to editing and loads the
// committed segment and OCR artifacts into the draft buffer.
func (s *Session) BeginEdit() error {
	if s.Phase != PhaseOCR {
		return &ValidationError{Field: "phase", Message: "artifact editing is only available in OCR review"}
	}
	set, err := s.ctrl.artifacts.Get(s.SubmissionID)
	if err != nil {
		return err
	}
	if err := s.ctrl.artifacts.StageEdit(s.SubmissionID, FieldSegment, set.SegmentArtifact); err != nil {
		return err
	}
	if err := s.ctrl.artifacts.StageEdit(s.SubmissionID, FieldOCR, set.OCRArtifact); err != nil {
		return err
	}
	s.editing = true
	return nil
}

// UpdateDraft stages a change to an editable artifact field. Requires an
// active edit started with BeginEdit.
func (s *Session) UpdateDraft(field ArtifactField, value string) error {
	if !s.editing {
		return &ValidationError{Field: "session", Message: "no edit in progress"}
	}
	return s.ctrl.artifacts.StageEdit(s.SubmissionID, field, value)
}

// SaveEdits commits the staged drafts and returns the session to read-only
// display. Saving is independent of approval.
func (s *Session) SaveEdits(ctx context.Context) error {
	if !s.editing {
		return &ValidationError{Field: "session", Message: "no edit in progress"}
	}

	mu := s.ctrl.lockFor(s.SubmissionID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.ctrl.artifacts.Commit(ctx, s.SubmissionID); err != nil {
		return err
	}
	s.editing = false
	return nil
}

// CancelEdits discards the staged drafts and returns the session to
// read-only display. Committed values are untouched.
func (s *Session) CancelEdits() {
	s.ctrl.artifacts.Discard(s.SubmissionID)
	s.editing = false
}

// Approve accepts the phase output. It requires the phase to still be
// completed, commits any staged edits first (approval implicitly saves),
// writes the approved submission through to the persister, and only then
// records the approved status in memory. A persistence failure leaves the
// phase unapproved so the caller can retry the whole operation.
func (s *Session) Approve(ctx context.Context) error {
	mu := s.ctrl.lockFor(s.SubmissionID)
	mu.Lock()
	defer mu.Unlock()

	if s.Phase == PhaseOCR && s.ctrl.artifacts.HasDrafts(s.SubmissionID) {
		if err := s.ctrl.artifacts.Commit(ctx, s.SubmissionID); err != nil {
			return err
		}
		s.editing = false
	}

	return s.ctrl.registry.mutate(s.SubmissionID, func(sub *Submission) error {
		from := sub.StatusOf(s.Phase)
		if !from.CanTransitionTo(StatusApproved) {
			return &IllegalTransitionError{Phase: s.Phase, From: from, To: StatusApproved}
		}

		next := sub.Clone()
		next.setStatus(s.Phase, StatusApproved)
		next.UpdatedAt = time.Now()

		if s.ctrl.persister != nil {
			if err := s.ctrl.persister.SaveSubmission(ctx, next); err != nil {
				return &PersistenceError{Op: "approve", Err: err}
			}
		}

		sub.setStatus(s.Phase, StatusApproved)
		sub.UpdatedAt = next.UpdatedAt
		return nil
	})
}
