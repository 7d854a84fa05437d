package review

import (
	"context"
	"sync"
	"time"
)

// Persister is the downstream persistence collaborator. Every approval and
// every artifact commit writes the updated submission through it; failures
// surface as PersistenceError and the in-memory change is not finalized.
type Persister interface {
	SaveSubmission(ctx context.Context, sub *Submission) error
}

// ArtifactField names an artifact with an edit path. Evaluation results have
// none; they are read-only during review.
type ArtifactField string

const (
	// FieldSegment is the segmentation summary text.
	FieldSegment ArtifactField = "segment_artifact"
	// FieldOCR is the extracted answer text.
	FieldOCR ArtifactField = "ocr_artifact"
)

// IsValid returns true if the field is editable.
func (f ArtifactField) IsValid() bool {
	return f == FieldSegment || f == FieldOCR
}

// ArtifactSet is the committed artifact view for one submission.
type ArtifactSet struct {
	SegmentArtifact string               `json:"segment_artifact"`
	OCRArtifact     string               `json:"ocr_artifact"`
	Evaluations     []EvaluationArtifact `json:"evaluations,omitempty"`
}

// ArtifactStore owns the draft buffers for in-review artifact edits.
// Committed values live on the submission; a draft is held separately until
// Commit replaces the committed value or Discard drops it, so a reader
// mid-session always sees the committed value.
type ArtifactStore struct {
	registry  *Registry
	persister Persister

	mu     sync.Mutex
	drafts map[string]map[ArtifactField]string
}

// NewArtifactStore creates an artifact store over the registry, writing
// through to the given persister on commit.
func NewArtifactStore(registry *Registry, persister Persister) *ArtifactStore {
	return &ArtifactStore{
		registry:  registry,
		persister: persister,
		drafts:    make(map[string]map[ArtifactField]string),
	}
}

// Get returns the committed artifacts for a submission. Staged drafts are
// never visible through Get.
func (s *ArtifactStore) Get(id string) (ArtifactSet, error) {
	sub, err := s.registry.Get(id)
	if err != nil {
		return ArtifactSet{}, err
	}
	return ArtifactSet{
		SegmentArtifact: sub.SegmentArtifact,
		OCRArtifact:     sub.OCRArtifact,
		Evaluations:     sub.Evaluations,
	}, nil
}

// StageEdit holds an uncommitted edit in the submission's draft buffer. The
// committed artifact is untouched until Commit.
func (s *ArtifactStore) StageEdit(id string, field ArtifactField, value string) error {
	if !field.IsValid() {
		return &ValidationError{Field: "field", Message: "not an editable artifact: " + string(field)}
	}
	if _, err := s.registry.Get(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.drafts[id]
	if !ok {
		buf = make(map[ArtifactField]string)
		s.drafts[id] = buf
	}
	buf[field] = value
	return nil
}

// StagedValue returns the draft value for a field, if one is staged.
func (s *ArtifactStore) StagedValue(id string, field ArtifactField) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.drafts[id]
	if !ok {
		return "", false
	}
	v, ok := buf[field]
	return v, ok
}

// HasDrafts returns true if the submission has staged, uncommitted edits.
func (s *ArtifactStore) HasDrafts(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drafts[id]) > 0
}

// Commit atomically replaces the committed artifacts with the staged drafts
// and clears the draft buffer. The updated submission is written through to
// the persister first; if that write fails the drafts are retained, the
// committed values are unchanged, and the caller gets a PersistenceError to
// retry or discard.
func (s *ArtifactStore) Commit(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.drafts[id]
	if len(buf) == 0 {
		// Nothing staged; commit is a no-op by contract, not an error.
		return nil
	}

	err := s.registry.mutate(id, func(sub *Submission) error {
		next := sub.Clone()
		for field, value := range buf {
			switch field {
			case FieldSegment:
				next.SegmentArtifact = value
			case FieldOCR:
				next.OCRArtifact = value
			}
		}
		next.UpdatedAt = time.Now()

		if s.persister != nil {
			if err := s.persister.SaveSubmission(ctx, next); err != nil {
				return &PersistenceError{Op: "commit", Err: err}
			}
		}

		sub.SegmentArtifact = next.SegmentArtifact
		sub.OCRArtifact = next.OCRArtifact
		sub.UpdatedAt = next.UpdatedAt
		return nil
	})
	if err != nil {
		return err
	}

	delete(s.drafts, id)
	return nil
}

// Discard clears the draft buffer, reverting any staged edits without
// touching committed values.
func (s *ArtifactStore) Discard(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, id)
}
