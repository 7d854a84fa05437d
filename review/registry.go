package review

import (
	"sort"
	"sync"
)

// Registry is the in-memory set of tracked submissions. It is the single
// owner of submission state: reads hand out clones, and all mutation goes
// through the tracker or controller, which serialize per submission.
type Registry struct {
	mu          sync.RWMutex
	submissions map[string]*Submission
}

// NewRegistry creates an empty submission registry.
func NewRegistry() *Registry {
	return &Registry{
		submissions: make(map[string]*Submission),
	}
}

// Add registers a submission. Re-adding an existing ID replaces it, which
// only happens when a batch is discarded and re-ingested.
func (r *Registry) Add(sub *Submission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions[sub.ID] = sub
}

// Get returns a clone of the submission, or ErrSubmissionNotFound.
func (r *Registry) Get(id string) (*Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.submissions[id]
	if !ok {
		return nil, ErrSubmissionNotFound
	}
	return sub.Clone(), nil
}

// List returns clones of all submissions ordered by registration ID.
func (r *Registry) List() []*Submission {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Submission, 0, len(r.submissions))
	for _, sub := range r.submissions {
		out = append(out, sub.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RegistrationID != out[j].RegistrationID {
			return out[i].RegistrationID < out[j].RegistrationID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Count returns the number of tracked submissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.submissions)
}

// Stats summarizes phase progress across all tracked submissions. It is a
// derived view recomputed on demand, never maintained incrementally.
type Stats struct {
	Submissions int                       `json:"submissions"`
	ByPhase     map[Phase]map[PhaseStatus]int `json:"by_phase"`
}

// Stats recomputes aggregate phase counts over the registry.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Submissions: len(r.submissions),
		ByPhase:     make(map[Phase]map[PhaseStatus]int, len(Phases)),
	}
	for _, p := range Phases {
		stats.ByPhase[p] = make(map[PhaseStatus]int)
	}
	for _, sub := range r.submissions {
		for _, p := range Phases {
			stats.ByPhase[p][sub.StatusOf(p)]++
		}
	}
	return stats
}

// mutate runs fn against the live submission under the registry write lock.
// Internal building block for the tracker and controller.
func (r *Registry) mutate(id string, fn func(*Submission) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.submissions[id]
	if !ok {
		return ErrSubmissionNotFound
	}
	return fn(sub)
}
