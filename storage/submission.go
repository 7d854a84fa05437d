// Package storage provides durable submission storage for scanreview using
// NATS KV. It is the write-through persistence collaborator behind every
// approval and artifact commit.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/gradeworks/scanreview/review"
)

// BucketSubmissions is the KV bucket holding submission records.
const BucketSubmissions = "SCANREVIEW_SUBMISSIONS"

// SubmissionStore provides submission persistence backed by NATS KV.
type SubmissionStore struct {
	submissions jetstream.KeyValue
}

// Compile-time check that SubmissionStore satisfies the write-through
// contract used by the review controller and artifact store.
var _ review.Persister = (*SubmissionStore)(nil)

// NewSubmissionStore creates a SubmissionStore with the given JetStream
// context, creating the bucket if it doesn't exist.
func NewSubmissionStore(ctx context.Context, js jetstream.JetStream) (*SubmissionStore, error) {
	kv, err := getOrCreateBucket(ctx, js, BucketSubmissions)
	if err != nil {
		return nil, fmt.Errorf("create submissions bucket: %w", err)
	}
	return &SubmissionStore{submissions: kv}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "Scanreview submission storage",
		History:     5, // Keep last 5 revisions
	})
}

// SaveSubmission writes a submission record, creating or replacing it. This
// is the Persister implementation used for write-through on approve/commit.
func (s *SubmissionStore) SaveSubmission(ctx context.Context, sub *review.Submission) error {
	if sub.ID == "" {
		return fmt.Errorf("submission id is required")
	}

	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}

	if _, err := s.submissions.Put(ctx, sub.ID, data); err != nil {
		return fmt.Errorf("store submission: %w", err)
	}

	return nil
}

// GetSubmission retrieves a submission by ID.
func (s *SubmissionStore) GetSubmission(ctx context.Context, id string) (*review.Submission, error) {
	entry, err := s.submissions.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}

	var sub review.Submission
	if err := json.Unmarshal(entry.Value(), &sub); err != nil {
		return nil, fmt.Errorf("unmarshal submission: %w", err)
	}

	return &sub, nil
}

// ListSubmissions returns all stored submissions.
func (s *SubmissionStore) ListSubmissions(ctx context.Context) ([]*review.Submission, error) {
	keys, err := s.submissions.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list submission keys: %w", err)
	}

	subs := make([]*review.Submission, 0, len(keys))
	for _, key := range keys {
		entry, err := s.submissions.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var sub review.Submission
		if err := json.Unmarshal(entry.Value(), &sub); err != nil {
			continue
		}
		subs = append(subs, &sub)
	}

	return subs, nil
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "key not found")
}
