// Package review provides the core of the scanreview pipeline: per-submission
// phase tracking, the page set manager, editable artifacts with draft buffers,
// and the review/approval controller that gates human sign-off on each phase.
package review

import (
	"fmt"
	"time"
)

// Phase identifies one of the three sequential processing stages applied to a
// scanned answer-script submission.
type Phase string

const (
	// PhaseSegmentation is the page segmentation/indexing stage.
	PhaseSegmentation Phase = "segmentation"
	// PhaseOCR is the optical text extraction stage.
	PhaseOCR Phase = "ocr"
	// PhaseEvaluation is the scored evaluation stage.
	PhaseEvaluation Phase = "evaluation"
)

// Phases lists all phases in processing order.
var Phases = []Phase{PhaseSegmentation, PhaseOCR, PhaseEvaluation}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// IsValid returns true if the phase is one of the three known stages.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseSegmentation, PhaseOCR, PhaseEvaluation:
		return true
	default:
		return false
	}
}

// ParsePhase parses a phase name.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.IsValid() {
		return "", &ValidationError{Field: "phase", Message: fmt.Sprintf("unknown phase: %s", s)}
	}
	return p, nil
}

// PhaseStatus represents the state of one phase for one submission.
// All three phases share a single state machine; the phase identity only
// affects the display label.
type PhaseStatus string

const (
	// StatusYetToStart indicates automated processing has not begun.
	StatusYetToStart PhaseStatus = "yet_to_start"
	// StatusInProgress indicates automated processing is underway.
	StatusInProgress PhaseStatus = "in_progress"
	// StatusCompleted indicates automated processing finished cleanly and the
	// phase is ready for human review.
	StatusCompleted PhaseStatus = "completed"
	// StatusPending indicates automated processing finished but flagged the
	// submission for manual attention outside the review flow.
	StatusPending PhaseStatus = "pending"
	// StatusApproved indicates a reviewer accepted the phase output.
	StatusApproved PhaseStatus = "approved"
)

// String returns the string representation of the status.
func (s PhaseStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a known phase status.
func (s PhaseStatus) IsValid() bool {
	switch s {
	case StatusYetToStart, StatusInProgress, StatusCompleted, StatusPending, StatusApproved:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if the status can transition to the target.
// Automated processing drives yet_to_start → in_progress → {completed|pending};
// the only human transition is completed → approved.
func (s PhaseStatus) CanTransitionTo(target PhaseStatus) bool {
	switch s {
	case StatusYetToStart:
		return target == StatusInProgress
	case StatusInProgress:
		return target == StatusCompleted || target == StatusPending
	case StatusCompleted:
		return target == StatusApproved
	case StatusPending, StatusApproved:
		return false // Terminal states
	default:
		return false
	}
}

// Reviewable returns true if a review session may be opened in this status.
func (s PhaseStatus) Reviewable() bool {
	return s == StatusCompleted
}

// Label returns the phase-specific display label for the status,
// e.g. "yet-to-segmentation" or "ocr-approved".
func (s PhaseStatus) Label(p Phase) string {
	switch s {
	case StatusYetToStart:
		return fmt.Sprintf("yet-to-%s", p)
	case StatusInProgress:
		return fmt.Sprintf("%s-in-progress", p)
	case StatusCompleted:
		return fmt.Sprintf("%s-completed", p)
	case StatusPending:
		return fmt.Sprintf("%s-pending", p)
	case StatusApproved:
		return fmt.Sprintf("%s-approved", p)
	default:
		return string(s)
	}
}

// Page is one scanned page image within a submission. PageNumber is 1-based
// and always contiguous across the submission's page set.
type Page struct {
	// PageNumber is the 1-based position within the submission.
	PageNumber int `json:"page_number"`

	// ImageRef identifies the stored page image. Opaque to this core.
	ImageRef string `json:"image_ref"`
}

// EvaluationArtifact is the structured result of the scored evaluation stage
// for one question. It is read-only during review; only approval is permitted.
type EvaluationArtifact struct {
	// QuestionTitle is the question this result belongs to.
	QuestionTitle string `json:"question_title"`

	// MaxScore is the maximum attainable score for the question.
	MaxScore float64 `json:"max_score"`

	// ExtractedInfo is the answer text the evaluator worked from.
	ExtractedInfo string `json:"extracted_info,omitempty"`

	// Keypoints lists the expected answer points, in rubric order.
	Keypoints []string `json:"keypoints,omitempty"`

	// Score is the awarded score, 0..MaxScore.
	Score float64 `json:"score"`

	// Missing lists expected points absent from the answer, in rubric order.
	Missing []string `json:"missing,omitempty"`

	// Rationale explains the awarded score.
	Rationale string `json:"rationale,omitempty"`

	// Extra carries collaborator-specific fields that are not part of the
	// closed schema above.
	Extra map[string]string `json:"extra,omitempty"`
}

// NewEvaluationArtifact constructs an evaluation result, rejecting scores
// outside [0, maxScore] at construction time.
func NewEvaluationArtifact(questionTitle string, maxScore, score float64) (EvaluationArtifact, error) {
	a := EvaluationArtifact{
		QuestionTitle: questionTitle,
		MaxScore:      maxScore,
		Score:         score,
	}
	if err := a.Validate(); err != nil {
		return EvaluationArtifact{}, err
	}
	return a, nil
}

// Validate checks the score bounds invariant.
func (a *EvaluationArtifact) Validate() error {
	if a.QuestionTitle == "" {
		return &ValidationError{Field: "question_title", Message: "question_title is required"}
	}
	if a.MaxScore < 0 {
		return &ValidationError{Field: "max_score", Message: "max_score must not be negative"}
	}
	if a.Score < 0 || a.Score > a.MaxScore {
		return &ValidationError{
			Field:   "score",
			Message: fmt.Sprintf("score %.2f outside [0, %.2f]", a.Score, a.MaxScore),
		}
	}
	return nil
}

// Submission is one candidate's scanned answer-script package as tracked by
// the pipeline. The descriptive metadata is immutable after ingestion; pages
// and artifacts are mutated only through the review controller, and the phase
// statuses only through the tracker and controller.
type Submission struct {
	// ID is the opaque unique submission identifier.
	ID string `json:"id"`

	// CandidateName is the candidate's display name.
	CandidateName string `json:"candidate_name"`

	// RegistrationID is the candidate's registration identifier.
	RegistrationID string `json:"registration_id"`

	// CentreName is the examination centre name.
	CentreName string `json:"centre_name,omitempty"`

	// CentreAddress is the examination centre address.
	CentreAddress string `json:"centre_address,omitempty"`

	// SegmentationStatus tracks the segmentation/indexing phase.
	SegmentationStatus PhaseStatus `json:"segmentation_status"`

	// OCRStatus tracks the text extraction phase.
	OCRStatus PhaseStatus `json:"ocr_status"`

	// EvaluationStatus tracks the scored evaluation phase.
	EvaluationStatus PhaseStatus `json:"evaluation_status"`

	// Pages is the ordered page set, numbered 1..len(Pages).
	Pages []Page `json:"pages,omitempty"`

	// SegmentArtifact is the segmentation summary text. Editable during the
	// OCR review session (the review screen couples both artifacts).
	SegmentArtifact string `json:"segment_artifact,omitempty"`

	// OCRArtifact is the extracted answer text.
	OCRArtifact string `json:"ocr_artifact,omitempty"`

	// Evaluations holds one evaluation result per question.
	Evaluations []EvaluationArtifact `json:"evaluations,omitempty"`

	// CreatedAt is when the submission was ingested.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the submission was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusOf returns the status of the given phase.
func (s *Submission) StatusOf(p Phase) PhaseStatus {
	switch p {
	case PhaseSegmentation:
		return s.SegmentationStatus
	case PhaseOCR:
		return s.OCRStatus
	case PhaseEvaluation:
		return s.EvaluationStatus
	default:
		return ""
	}
}

// setStatus records the status of the given phase. Callers are responsible
// for transition validation.
func (s *Submission) setStatus(p Phase, status PhaseStatus) {
	switch p {
	case PhaseSegmentation:
		s.SegmentationStatus = status
	case PhaseOCR:
		s.OCRStatus = status
	case PhaseEvaluation:
		s.EvaluationStatus = status
	}
}

// Validate checks submission invariants: required identity fields, known
// statuses, contiguous 1..N page numbering, and evaluation score bounds.
func (s *Submission) Validate() error {
	if s.ID == "" {
		return &ValidationError{Field: "id", Message: "id is required"}
	}
	for _, p := range Phases {
		if !s.StatusOf(p).IsValid() {
			return &ValidationError{
				Field:   string(p) + "_status",
				Message: fmt.Sprintf("invalid status: %s", s.StatusOf(p)),
			}
		}
	}
	if err := ValidatePageOrder(s.Pages); err != nil {
		return err
	}
	for i := range s.Evaluations {
		if err := s.Evaluations[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the submission. Reads from the registry hand
// out clones so callers can never mutate tracked state without going through
// the controller.
func (s *Submission) Clone() *Submission {
	out := *s
	if s.Pages != nil {
		out.Pages = make([]Page, len(s.Pages))
		copy(out.Pages, s.Pages)
	}
	if s.Evaluations != nil {
		out.Evaluations = make([]EvaluationArtifact, len(s.Evaluations))
		copy(out.Evaluations, s.Evaluations)
		for i := range out.Evaluations {
			src := s.Evaluations[i]
			if src.Keypoints != nil {
				out.Evaluations[i].Keypoints = append([]string(nil), src.Keypoints...)
			}
			if src.Missing != nil {
				out.Evaluations[i].Missing = append([]string(nil), src.Missing...)
			}
			if src.Extra != nil {
				extra := make(map[string]string, len(src.Extra))
				for k, v := range src.Extra {
					extra[k] = v
				}
				out.Evaluations[i].Extra = extra
			}
		}
	}
	return &out
}
