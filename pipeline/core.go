// Package pipeline assembles the review domain around a persistence backend
// and hands the assembled core to the processors. All three processors share
// one registry so a status update, a manifest ingest, and a review session
// always see the same submission state.
package pipeline

import (
	"context"
	"fmt"

	"github.com/gradeworks/scanreview/batch"
	"github.com/gradeworks/scanreview/review"
)

// Store is the persistence backend the core writes through and hydrates from.
type Store interface {
	review.Persister
	ListSubmissions(ctx context.Context) ([]*review.Submission, error)
}

// Core is the assembled review domain shared by the processors.
type Core struct {
	Registry   *review.Registry
	Tracker    *review.Tracker
	Artifacts  *review.ArtifactStore
	Controller *review.Controller
	Aggregator *batch.Aggregator

	store Store
}

// Option configures core assembly.
type Option func(*options)

type options struct {
	batchOpts []batch.Option
}

// WithBatchOptions forwards options to the batch aggregator.
func WithBatchOptions(opts ...batch.Option) Option {
	return func(o *options) {
		o.batchOpts = append(o.batchOpts, opts...)
	}
}

// New assembles a core over the given store. The store may be nil, in which
// case nothing is persisted and the core is purely in-memory.
func New(store Store, opts ...Option) *Core {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	registry := review.NewRegistry()
	var persister review.Persister
	if store != nil {
		persister = store
	}
	artifacts := review.NewArtifactStore(registry, persister)

	return &Core{
		Registry:   registry,
		Tracker:    review.NewTracker(registry),
		Artifacts:  artifacts,
		Controller: review.NewController(registry, artifacts, persister),
		Aggregator: batch.NewAggregator(o.batchOpts...),
		store:      store,
	}
}

// Hydrate loads every persisted submission into the registry. Called once at
// startup before any processor begins serving.
func (c *Core) Hydrate(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	subs, err := c.store.ListSubmissions(ctx)
	if err != nil {
		return fmt.Errorf("hydrate submissions: %w", err)
	}
	for _, sub := range subs {
		c.Registry.Add(sub)
	}
	return nil
}

// Persist writes the current state of one submission through to the store.
// Used after mutations that don't go through the controller's write-through
// path, such as ingestion and automated status updates.
func (c *Core) Persist(ctx context.Context, id string) error {
	if c.store == nil {
		return nil
	}
	sub, err := c.Registry.Get(id)
	if err != nil {
		return err
	}
	if err := c.store.SaveSubmission(ctx, sub); err != nil {
		return &review.PersistenceError{Op: "save", Err: err}
	}
	return nil
}
