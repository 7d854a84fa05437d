package review

import (
	"testing"
)

func TestPhaseStatus_IsValid(t *testing.T) {
	tests := []struct {
		status PhaseStatus
		want   bool
	}{
		{StatusYetToStart, true},
		{StatusInProgress, true},
		{StatusCompleted, true},
		{StatusPending, true},
		{StatusApproved, true},
		{PhaseStatus("unknown"), false},
		{PhaseStatus(""), false},
	}

	for _, tt := range tests {
		name := string(tt.status)
		if name == "" {
			name = "empty_status"
		}
		t.Run(name, func(t *testing.T) {
			if got := tt.status.IsValid(); got != tt.want {
				t.Errorf("PhaseStatus(%q).IsValid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestPhaseStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from PhaseStatus
		to   PhaseStatus
		want bool
	}{
		// From yet_to_start
		{StatusYetToStart, StatusInProgress, true},
		{StatusYetToStart, StatusCompleted, false},
		{StatusYetToStart, StatusPending, false},
		{StatusYetToStart, StatusApproved, false},
		{StatusYetToStart, StatusYetToStart, false},

		// From in_progress
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusPending, true},
		{StatusInProgress, StatusApproved, false},
		{StatusInProgress, StatusYetToStart, false},
		{StatusInProgress, StatusInProgress, false},

		// From completed (approval only)
		{StatusCompleted, StatusApproved, true},
		{StatusCompleted, StatusInProgress, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusYetToStart, false},

		// Terminal states
		{StatusPending, StatusInProgress, false},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusApproved, false},
		{StatusApproved, StatusCompleted, false},
		{StatusApproved, StatusInProgress, false},

		// Invalid states
		{PhaseStatus("unknown"), StatusInProgress, false},
		{StatusYetToStart, PhaseStatus("unknown"), false},
	}

	for _, tt := range tests {
		name := string(tt.from) + "_to_" + string(tt.to)
		t.Run(name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%q -> %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestPhaseStatus_Reviewable(t *testing.T) {
	for _, status := range []PhaseStatus{StatusYetToStart, StatusInProgress, StatusPending, StatusApproved} {
		if status.Reviewable() {
			t.Errorf("PhaseStatus(%q).Reviewable() = true, want false", status)
		}
	}
	if !StatusCompleted.Reviewable() {
		t.Error("StatusCompleted.Reviewable() = false, want true")
	}
}

func TestPhaseStatus_Label(t *testing.T) {
	tests := []struct {
		status PhaseStatus
		phase  Phase
		want   string
	}{
		{StatusYetToStart, PhaseSegmentation, "yet-to-segmentation"},
		{StatusYetToStart, PhaseOCR, "yet-to-ocr"},
		{StatusYetToStart, PhaseEvaluation, "yet-to-evaluation"},
		{StatusInProgress, PhaseOCR, "ocr-in-progress"},
		{StatusCompleted, PhaseSegmentation, "segmentation-completed"},
		{StatusPending, PhaseEvaluation, "evaluation-pending"},
		{StatusApproved, PhaseOCR, "ocr-approved"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.status.Label(tt.phase); got != tt.want {
				t.Errorf("Label(%q, %q) = %q, want %q", tt.status, tt.phase, got, tt.want)
			}
		})
	}
}

func TestParsePhase(t *testing.T) {
	for _, p := range Phases {
		got, err := ParsePhase(string(p))
		if err != nil {
			t.Errorf("ParsePhase(%q) returned error: %v", p, err)
		}
		if got != p {
			t.Errorf("ParsePhase(%q) = %q, want %q", p, got, p)
		}
	}

	if _, err := ParsePhase("indexing"); err == nil {
		t.Error("ParsePhase(\"indexing\") should fail")
	}
}

func TestNewEvaluationArtifact_ScoreBounds(t *testing.T) {
	tests := []struct {
		name     string
		maxScore float64
		score    float64
		wantErr  bool
	}{
		{"zero_score", 10, 0, false},
		{"mid_score", 10, 6.5, false},
		{"full_score", 10, 10, false},
		{"negative_score", 10, -1, true},
		{"over_max", 10, 10.5, true},
		{"negative_max", -5, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEvaluationArtifact("Q1", tt.maxScore, tt.score)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewEvaluationArtifact(max=%v, score=%v) error = %v, wantErr %v",
					tt.maxScore, tt.score, err, tt.wantErr)
			}
		})
	}
}

func TestSubmission_Validate(t *testing.T) {
	sub := &Submission{
		ID:                 "sub-1",
		CandidateName:      "A. Candidate",
		RegistrationID:     "REG-001",
		SegmentationStatus: StatusYetToStart,
		OCRStatus:          StatusYetToStart,
		EvaluationStatus:   StatusYetToStart,
		Pages:              []Page{{PageNumber: 1, ImageRef: "img-1"}, {PageNumber: 2, ImageRef: "img-2"}},
	}
	if err := sub.Validate(); err != nil {
		t.Fatalf("valid submission rejected: %v", err)
	}

	bad := sub.Clone()
	bad.Pages[1].PageNumber = 3
	if err := bad.Validate(); err == nil {
		t.Error("gap in page numbering should fail validation")
	}

	bad = sub.Clone()
	bad.OCRStatus = PhaseStatus("done")
	if err := bad.Validate(); err == nil {
		t.Error("unknown phase status should fail validation")
	}

	bad = sub.Clone()
	bad.ID = ""
	if err := bad.Validate(); err == nil {
		t.Error("missing ID should fail validation")
	}
}

func TestSubmission_Clone_DeepCopy(t *testing.T) {
	orig := &Submission{
		ID:                 "sub-1",
		SegmentationStatus: StatusCompleted,
		OCRStatus:          StatusYetToStart,
		EvaluationStatus:   StatusYetToStart,
		Pages:              []Page{{PageNumber: 1, ImageRef: "img-1"}},
		Evaluations: []EvaluationArtifact{
			{QuestionTitle: "Q1", MaxScore: 10, Score: 7, Keypoints: []string{"a", "b"}, Extra: map[string]string{"k": "v"}},
		},
	}

	clone := orig.Clone()
	clone.Pages[0].ImageRef = "changed"
	clone.Evaluations[0].Keypoints[0] = "changed"
	clone.Evaluations[0].Extra["k"] = "changed"

	if orig.Pages[0].ImageRef != "img-1" {
		t.Error("clone shares Pages backing array with original")
	}
	if orig.Evaluations[0].Keypoints[0] != "a" {
		t.Error("clone shares Keypoints backing array with original")
	}
	if orig.Evaluations[0].Extra["k"] != "v" {
		t.Error("clone shares Extra map with original")
	}
}
