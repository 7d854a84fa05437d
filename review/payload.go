package review

import (
	"encoding/json"
	"fmt"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
)

func init() {
	// Register PhaseUpdatePayload type for message deserialization
	_ = component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "review",
		Category:    "phase-update",
		Version:     "v1",
		Description: "Phase status update from the automated processing collaborator",
		Factory:     func() any { return &PhaseUpdatePayload{} },
	})
}

// PhaseUpdateType is the message type for phase update payloads.
var PhaseUpdateType = message.Type{
	Domain:   "review",
	Category: "phase-update",
	Version:  "v1",
}

// PhaseUpdatePayload is published by the automated processing collaborator
// when a phase changes state for a submission. Completion updates carry the
// phase's output artifacts; this core stores them but never computes them.
type PhaseUpdatePayload struct {
	// SubmissionID identifies the submission being updated.
	SubmissionID string `json:"submission_id"`

	// Phase is the phase whose status changed.
	Phase Phase `json:"phase"`

	// Status is the new phase status reported by processing.
	Status PhaseStatus `json:"status"`

	// Pages carries the segmented page set on segmentation completion.
	Pages []Page `json:"pages,omitempty"`

	// SegmentArtifact carries the segmentation summary on completion.
	SegmentArtifact string `json:"segment_artifact,omitempty"`

	// OCRArtifact carries the extracted text on OCR completion.
	OCRArtifact string `json:"ocr_artifact,omitempty"`

	// Evaluations carries per-question results on evaluation completion.
	Evaluations []EvaluationArtifact `json:"evaluations,omitempty"`
}

// ParsePhaseUpdate extracts a PhaseUpdatePayload from a BaseMessage-wrapped
// wire message.
func ParsePhaseUpdate(data []byte) (*PhaseUpdatePayload, error) {
	var rawMsg struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &rawMsg); err != nil {
		return nil, fmt.Errorf("unmarshal BaseMessage: %w", err)
	}
	if len(rawMsg.Payload) == 0 {
		return nil, fmt.Errorf("empty payload in BaseMessage")
	}

	var payload PhaseUpdatePayload
	if err := json.Unmarshal(rawMsg.Payload, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal phase update: %w", err)
	}
	return &payload, nil
}

// Schema implements message.Payload.
func (p *PhaseUpdatePayload) Schema() message.Type {
	return PhaseUpdateType
}

// Validate implements message.Payload.
func (p *PhaseUpdatePayload) Validate() error {
	if p.SubmissionID == "" {
		return &ValidationError{Field: "submission_id", Message: "submission_id is required"}
	}
	if !p.Phase.IsValid() {
		return &ValidationError{Field: "phase", Message: "unknown phase: " + string(p.Phase)}
	}
	if !p.Status.IsValid() {
		return &ValidationError{Field: "status", Message: "unknown status: " + string(p.Status)}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *PhaseUpdatePayload) MarshalJSON() ([]byte, error) {
	type Alias PhaseUpdatePayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PhaseUpdatePayload) UnmarshalJSON(data []byte) error {
	type Alias PhaseUpdatePayload
	return json.Unmarshal(data, (*Alias)(p))
}
