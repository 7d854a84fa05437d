package review

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePersister records saved submissions and can be told to fail.
type fakePersister struct {
	mu    sync.Mutex
	saved []*Submission
	err   error
}

func (f *fakePersister) SaveSubmission(_ context.Context, sub *Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, sub.Clone())
	return nil
}

func (f *fakePersister) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakePersister) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func (f *fakePersister) lastSaved() *Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		return nil
	}
	return f.saved[len(f.saved)-1]
}

func setupArtifactStore(t *testing.T) (*Registry, *ArtifactStore, *fakePersister) {
	t.Helper()
	registry := NewRegistry()
	sub := newTestSubmission("sub-1")
	sub.SegmentArtifact = "committed segment"
	sub.OCRArtifact = "committed ocr"
	registry.Add(sub)
	persister := &fakePersister{}
	return registry, NewArtifactStore(registry, persister), persister
}

func TestArtifactStore_StagedEditsInvisibleToReaders(t *testing.T) {
	_, store, _ := setupArtifactStore(t)

	require.NoError(t, store.StageEdit("sub-1", FieldOCR, "draft ocr"))

	// A concurrent reader still sees the committed value.
	set, err := store.Get("sub-1")
	require.NoError(t, err)
	assert.Equal(t, "committed ocr", set.OCRArtifact)

	// The draft is held separately.
	v, ok := store.StagedValue("sub-1", FieldOCR)
	assert.True(t, ok)
	assert.Equal(t, "draft ocr", v)
}

func TestArtifactStore_CommitReplacesAndClears(t *testing.T) {
	registry, store, persister := setupArtifactStore(t)

	require.NoError(t, store.StageEdit("sub-1", FieldSegment, "edited segment"))
	require.NoError(t, store.StageEdit("sub-1", FieldOCR, "edited ocr"))
	require.NoError(t, store.Commit(context.Background(), "sub-1"))

	set, err := store.Get("sub-1")
	require.NoError(t, err)
	assert.Equal(t, "edited segment", set.SegmentArtifact)
	assert.Equal(t, "edited ocr", set.OCRArtifact)
	assert.False(t, store.HasDrafts("sub-1"), "drafts should be cleared after commit")

	// Commit wrote through to the persister.
	require.Equal(t, 1, persister.saveCount())
	assert.Equal(t, "edited ocr", persister.lastSaved().OCRArtifact)

	// And the registry holds the committed values.
	sub, err := registry.Get("sub-1")
	require.NoError(t, err)
	assert.Equal(t, "edited segment", sub.SegmentArtifact)
}

func TestArtifactStore_CommitWithoutDraftsIsNoOp(t *testing.T) {
	_, store, persister := setupArtifactStore(t)

	require.NoError(t, store.Commit(context.Background(), "sub-1"))
	assert.Zero(t, persister.saveCount(), "no-op commit must not write through")
}

func TestArtifactStore_DiscardRevertsDrafts(t *testing.T) {
	_, store, persister := setupArtifactStore(t)

	require.NoError(t, store.StageEdit("sub-1", FieldOCR, "abandoned draft"))
	store.Discard("sub-1")

	assert.False(t, store.HasDrafts("sub-1"))
	set, err := store.Get("sub-1")
	require.NoError(t, err)
	assert.Equal(t, "committed ocr", set.OCRArtifact)
	assert.Zero(t, persister.saveCount())
}

func TestArtifactStore_PersistFailureKeepsDrafts(t *testing.T) {
	_, store, persister := setupArtifactStore(t)
	persister.fail(errors.New("kv unavailable"))

	require.NoError(t, store.StageEdit("sub-1", FieldOCR, "edited ocr"))
	err := store.Commit(context.Background(), "sub-1")

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)

	// Committed value unchanged, draft retained for retry.
	set, getErr := store.Get("sub-1")
	require.NoError(t, getErr)
	assert.Equal(t, "committed ocr", set.OCRArtifact)
	assert.True(t, store.HasDrafts("sub-1"))

	// Retry succeeds once persistence recovers.
	persister.fail(nil)
	require.NoError(t, store.Commit(context.Background(), "sub-1"))
	set, getErr = store.Get("sub-1")
	require.NoError(t, getErr)
	assert.Equal(t, "edited ocr", set.OCRArtifact)
}

func TestArtifactStore_RejectsUneditableField(t *testing.T) {
	_, store, _ := setupArtifactStore(t)

	err := store.StageEdit("sub-1", ArtifactField("evaluations"), "nope")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestArtifactStore_UnknownSubmission(t *testing.T) {
	_, store, _ := setupArtifactStore(t)

	_, err := store.Get("missing")
	assert.ErrorIs(t, err, ErrSubmissionNotFound)

	err = store.StageEdit("missing", FieldOCR, "x")
	assert.ErrorIs(t, err, ErrSubmissionNotFound)
}
