// Package batch groups ingested scan manifests into per-candidate
// submissions and computes batch-level summary statistics.
package batch

import (
	"time"

	"github.com/google/uuid"

	"github.com/gradeworks/scanreview/review"
)

// DefaultMaxCandidates caps the number of candidates accepted per batch.
const DefaultMaxCandidates = 125

// FileEntry is one uploaded page image in a batch manifest. The grouping key
// is derived by the ingestion collaborator from its file naming convention;
// this core treats it as opaque.
type FileEntry struct {
	// FileID identifies the stored page image.
	FileID string `json:"file_id"`

	// Size is the raw file size in bytes.
	Size int64 `json:"size"`

	// GroupKey identifies the candidate this file belongs to.
	GroupKey string `json:"group_key"`
}

// Manifest is the flat file list supplied by the ingestion collaborator.
type Manifest struct {
	Files []FileEntry `json:"files"`
}

// Summary aggregates a manifest without side effects.
type Summary struct {
	CandidateCount int   `json:"candidate_count"`
	FileCount      int   `json:"file_count"`
	TotalBytes     int64 `json:"total_bytes"`
}

// CandidateInfo is the descriptive metadata attached to a new submission.
type CandidateInfo struct {
	CandidateName  string
	RegistrationID string
	CentreName     string
	CentreAddress  string
}

// DescribeFunc resolves candidate metadata for a grouping key. The default
// uses the key itself as name and registration ID.
type DescribeFunc func(groupKey string) CandidateInfo

// Aggregator ingests file manifests into per-candidate submissions.
type Aggregator struct {
	maxCandidates int
	describe      DescribeFunc
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithMaxCandidates overrides the per-batch candidate cap.
func WithMaxCandidates(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxCandidates = n
		}
	}
}

// WithDescribeFunc supplies candidate metadata lookup for grouping keys.
func WithDescribeFunc(fn DescribeFunc) Option {
	return func(a *Aggregator) {
		if fn != nil {
			a.describe = fn
		}
	}
}

// NewAggregator creates a batch aggregator with the default cap.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		maxCandidates: DefaultMaxCandidates,
		describe: func(key string) CandidateInfo {
			return CandidateInfo{CandidateName: key, RegistrationID: key}
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ingest groups manifest files by candidate key, preserving first-seen group
// order and per-group file order, and constructs one submission per group
// with every phase yet to start. An empty manifest yields an empty result.
//
// When the manifest groups to more candidates than the cap, the accepted
// subset is returned together with a CapacityExceededError reporting the
// excluded count; files of excluded candidates are not ingested.
func (a *Aggregator) Ingest(m Manifest) ([]*review.Submission, error) {
	groups := make(map[string][]FileEntry)
	var order []string
	for _, f := range m.Files {
		if _, ok := groups[f.GroupKey]; !ok {
			order = append(order, f.GroupKey)
		}
		groups[f.GroupKey] = append(groups[f.GroupKey], f)
	}

	var capErr error
	if len(order) > a.maxCandidates {
		capErr = &review.CapacityExceededError{
			Cap:      a.maxCandidates,
			Excluded: len(order) - a.maxCandidates,
		}
		order = order[:a.maxCandidates]
	}

	now := time.Now()
	subs := make([]*review.Submission, 0, len(order))
	for _, key := range order {
		info := a.describe(key)

		pages := make([]review.Page, 0, len(groups[key]))
		for _, f := range groups[key] {
			pages = append(pages, review.Page{ImageRef: f.FileID})
		}

		subs = append(subs, &review.Submission{
			ID:                 uuid.New().String(),
			CandidateName:      info.CandidateName,
			RegistrationID:     info.RegistrationID,
			CentreName:         info.CentreName,
			CentreAddress:      info.CentreAddress,
			SegmentationStatus: review.StatusYetToStart,
			OCRStatus:          review.StatusYetToStart,
			EvaluationStatus:   review.StatusYetToStart,
			Pages:              review.NumberPages(pages),
			CreatedAt:          now,
			UpdatedAt:          now,
		})
	}

	return subs, capErr
}

// Summarize computes candidate, file, and byte totals for a manifest. Pure
// aggregation with no side effects.
func Summarize(m Manifest) Summary {
	seen := make(map[string]bool)
	var s Summary
	for _, f := range m.Files {
		s.FileCount++
		s.TotalBytes += f.Size
		if !seen[f.GroupKey] {
			seen[f.GroupKey] = true
			s.CandidateCount++
		}
	}
	return s
}
