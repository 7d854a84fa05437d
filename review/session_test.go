package review

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupController builds a controller over one submission with every phase
// driven to completed and artifacts attached.
func setupController(t *testing.T) (*Controller, *Registry, *fakePersister) {
	t.Helper()
	registry := NewRegistry()
	registry.Add(newTestSubmission("sub-1"))
	tracker := NewTracker(registry)

	evals := []EvaluationArtifact{
		{QuestionTitle: "Q1", MaxScore: 10, Score: 8, Keypoints: []string{"def", "example"}, Missing: []string{"example"}},
		{QuestionTitle: "Q2", MaxScore: 5, Score: 5},
		{QuestionTitle: "Q3", MaxScore: 10, Score: 4},
	}
	script := CompletionScript("sub-1", makePages("img-1", "img-2", "img-3"), "3 pages segmented", "extracted answers", evals)
	require.NoError(t, NewScriptedPipeline(tracker, script).Run())

	persister := &fakePersister{}
	artifacts := NewArtifactStore(registry, persister)
	return NewController(registry, artifacts, persister), registry, persister
}

func TestSession_SegmentationReorderAndApprove(t *testing.T) {
	ctrl, registry, persister := setupController(t)

	session, err := ctrl.OpenSession("sub-1", PhaseSegmentation)
	require.NoError(t, err)
	assert.Equal(t, 1, session.Items())

	// Move page 1 to the end; order becomes img-2, img-3, img-1.
	require.NoError(t, session.Reposition(1, 3))

	sub, err := registry.Get("sub-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"img-2", "img-3", "img-1"}, refsOf(sub.Pages))
	for i, p := range sub.Pages {
		assert.Equal(t, i+1, p.PageNumber)
	}

	require.NoError(t, session.Approve(context.Background()))

	sub, err = registry.Get("sub-1")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, sub.SegmentationStatus)

	// The persisted record carries the new order and the approved status.
	require.Equal(t, 1, persister.saveCount())
	saved := persister.lastSaved()
	assert.Equal(t, StatusApproved, saved.SegmentationStatus)
	assert.Equal(t, []string{"img-2", "img-3", "img-1"}, refsOf(saved.Pages))
}

func TestSession_RepositionOutsideSegmentation(t *testing.T) {
	ctrl, _, _ := setupController(t)

	session, err := ctrl.OpenSession("sub-1", PhaseOCR)
	require.NoError(t, err)

	err = session.Reposition(1, 2)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSession_OCREditAndApprove(t *testing.T) {
	ctrl, registry, _ := setupController(t)

	session, err := ctrl.OpenSession("sub-1", PhaseOCR)
	require.NoError(t, err)
	assert.Equal(t, 3, session.Items(), "one sub-item per question")

	require.NoError(t, session.BeginEdit())
	assert.True(t, session.Editing())

	require.NoError(t, session.UpdateDraft(FieldOCR, "corrected answers"))
	require.NoError(t, session.UpdateDraft(FieldSegment, "corrected segment summary"))

	// Committed values unchanged until approval.
	sub, err := registry.Get("sub-1")
	require.NoError(t, err)
	assert.Equal(t, "extracted answers", sub.OCRArtifact)

	// Approval implicitly saves the staged edits.
	require.NoError(t, session.Approve(context.Background()))

	sub, err = registry.Get("sub-1")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, sub.OCRStatus)
	assert.Equal(t, "corrected answers", sub.OCRArtifact)
	assert.Equal(t, "corrected segment summary", sub.SegmentArtifact)
}

func TestSession_SaveEditsIndependentOfApproval(t *testing.T) {
	ctrl, registry, _ := setupController(t)

	session, err := ctrl.OpenSession("sub-1", PhaseOCR)
	require.NoError(t, err)
	require.NoError(t, session.BeginEdit())
	require.NoError(t, session.UpdateDraft(FieldOCR, "fixed typo"))
	require.NoError(t, session.SaveEdits(context.Background()))

	assert.False(t, session.Editing())
	sub, err := registry.Get("sub-1")
	require.NoError(t, err)
	assert.Equal(t, "fixed typo", sub.OCRArtifact)
	assert.Equal(t, StatusCompleted, sub.OCRStatus, "saving must not approve")
}

func TestSession_CancelEditsRevertsDrafts(t *testing.T) {
	ctrl, registry, _ := setupController(t)

	session, err := ctrl.OpenSession("sub-1", PhaseOCR)
	require.NoError(t, err)
	require.NoError(t, session.BeginEdit())
	require.NoError(t, session.UpdateDraft(FieldOCR, "half-finished edit"))
	session.CancelEdits()

	assert.False(t, session.Editing())
	sub, err := registry.Get("sub-1")
	require.NoError(t, err)
	assert.Equal(t, "extracted answers", sub.OCRArtifact)
}

func TestSession_UpdateDraftRequiresBeginEdit(t *testing.T) {
	ctrl, _, _ := setupController(t)

	session, err := ctrl.OpenSession("sub-1", PhaseOCR)
	require.NoError(t, err)

	err = session.UpdateDraft(FieldOCR, "x")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSession_BeginEditOutsideOCR(t *testing.T) {
	ctrl, _, _ := setupController(t)

	session, err := ctrl.OpenSession("sub-1", PhaseEvaluation)
	require.NoError(t, err)

	err = session.BeginEdit()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr, "evaluation results are read-only")
}

func TestSession_SelectItemStrictBounds(t *testing.T) {
	ctrl, _, _ := setupController(t)

	session, err := ctrl.OpenSession("sub-1", PhaseEvaluation)
	require.NoError(t, err)
	require.Equal(t, 3, session.Items())

	require.NoError(t, session.SelectItem(2))
	assert.Equal(t, 2, session.Selected())

	// Out-of-range selection fails and leaves the selection unchanged.
	var oor *OutOfRangeError
	require.ErrorAs(t, session.SelectItem(3), &oor)
	require.ErrorAs(t, session.SelectItem(-1), &oor)
	assert.Equal(t, 2, session.Selected())
}

func TestOpenSession_RequiresCompleted(t *testing.T) {
	registry := NewRegistry()
	sub := newTestSubmission("sub-1")
	sub.SegmentationStatus = StatusPending
	sub.OCRStatus = StatusInProgress
	registry.Add(sub)
	persister := &fakePersister{}
	ctrl := NewController(registry, NewArtifactStore(registry, persister), persister)

	for _, phase := range Phases {
		_, err := ctrl.OpenSession("sub-1", phase)
		var illegal *IllegalTransitionError
		require.ErrorAs(t, err, &illegal, "phase %s", phase)
	}
}

func TestSession_DoubleApproval(t *testing.T) {
	ctrl, _, _ := setupController(t)

	session, err := ctrl.OpenSession("sub-1", PhaseSegmentation)
	require.NoError(t, err)
	require.NoError(t, session.Approve(context.Background()))

	err = session.Approve(context.Background())
	var illegal *IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, StatusApproved, illegal.From)
}

func TestSession_ApprovePersistFailureRollsBack(t *testing.T) {
	ctrl, registry, persister := setupController(t)
	persister.fail(errors.New("kv unavailable"))

	session, err := ctrl.OpenSession("sub-1", PhaseSegmentation)
	require.NoError(t, err)

	err = session.Approve(context.Background())
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)

	// Phase stays completed so the approval can be retried.
	sub, getErr := registry.Get("sub-1")
	require.NoError(t, getErr)
	assert.Equal(t, StatusCompleted, sub.SegmentationStatus)

	persister.fail(nil)
	require.NoError(t, session.Approve(context.Background()))
	sub, getErr = registry.Get("sub-1")
	require.NoError(t, getErr)
	assert.Equal(t, StatusApproved, sub.SegmentationStatus)
}

func TestSession_RepositionAfterApprovalRejected(t *testing.T) {
	ctrl, _, _ := setupController(t)

	session, err := ctrl.OpenSession("sub-1", PhaseSegmentation)
	require.NoError(t, err)
	require.NoError(t, session.Approve(context.Background()))

	// The session object outlives the approval; further mutation is gated.
	err = session.Reposition(1, 2)
	var illegal *IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
}
