// Package manifestingester watches a drop directory for batch manifest files
// and turns each one into tracked submissions, one per candidate, capped at
// the configured batch size.
package manifestingester

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/gradeworks/scanreview/batch"
	"github.com/gradeworks/scanreview/pipeline"
	"github.com/gradeworks/scanreview/review"
)

// Component implements the manifest-ingester processor.
type Component struct {
	name   string
	config Config
	core   *pipeline.Core
	logger *slog.Logger

	watcher *ManifestWatcher

	// Lifecycle
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// Metrics
	manifestsProcessed   atomic.Int64
	manifestsFailed      atomic.Int64
	submissionsIngested  atomic.Int64
	candidatesExcluded   atomic.Int64
	lastActivityMu       sync.RWMutex
	lastActivity         time.Time
}

// NewComponent creates a new manifest-ingester processor.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies, core *pipeline.Core) (component.Discoverable, error) {
	var config Config
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	// Apply defaults
	defaults := DefaultConfig()
	if config.ManifestDir == "" {
		config.ManifestDir = defaults.ManifestDir
	}
	if config.Pattern == "" {
		config.Pattern = defaults.Pattern
	}
	if config.DebounceDelay == "" {
		config.DebounceDelay = defaults.DebounceDelay
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if core == nil {
		return nil, fmt.Errorf("pipeline core is required")
	}

	return &Component{
		name:   "manifest-ingester",
		config: config,
		core:   core,
		logger: deps.GetLogger(),
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized manifest-ingester",
		"manifest_dir", c.config.ManifestDir,
		"pattern", c.config.Pattern)
	return nil
}

// Start begins watching for manifests.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}

	watcher, err := NewManifestWatcher(c.config.ManifestDir, c.config.Pattern, c.config.GetDebounceDelay(), c.logger)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("create watcher: %w", err)
	}

	c.running = true
	c.startTime = time.Now()
	c.watcher = watcher

	subCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	if err := watcher.Start(subCtx); err != nil {
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.watcher = nil
		c.mu.Unlock()
		cancel()
		_ = watcher.Stop()
		return fmt.Errorf("start watcher: %w", err)
	}

	go c.ingestLoop(subCtx, watcher.Events())

	c.logger.Info("manifest-ingester started",
		"manifest_dir", c.config.ManifestDir,
		"pattern", c.config.Pattern)

	return nil
}

// ingestLoop ingests each manifest the watcher emits.
func (c *Component) ingestLoop(ctx context.Context, events <-chan ManifestEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			c.updateLastActivity()
			if err := c.ingestManifest(ctx, event.AbsPath); err != nil {
				c.manifestsFailed.Add(1)
				c.logger.Error("Manifest ingestion failed",
					"path", event.Path,
					"error", err)
				continue
			}
			c.manifestsProcessed.Add(1)
		}
	}
}

// ingestManifest parses one manifest file and registers its submissions.
// Candidates beyond the batch cap are excluded and logged; the accepted
// subset is still ingested.
func (c *Component) ingestManifest(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	var manifest batch.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	fillGroupKeys(&manifest)

	summary := batch.Summarize(manifest)
	c.logger.Info("Ingesting manifest",
		"path", filepath.Base(path),
		"candidates", summary.CandidateCount,
		"files", summary.FileCount,
		"bytes", summary.TotalBytes)

	subs, err := c.core.Aggregator.Ingest(manifest)
	if err != nil {
		var capErr *review.CapacityExceededError
		if !errors.As(err, &capErr) {
			return err
		}
		c.candidatesExcluded.Add(int64(capErr.Excluded))
		c.logger.Warn("Batch exceeds candidate cap, truncating",
			"path", filepath.Base(path),
			"cap", capErr.Cap,
			"excluded", capErr.Excluded)
	}

	for _, sub := range subs {
		c.core.Registry.Add(sub)
		if err := c.core.Persist(ctx, sub.ID); err != nil {
			c.logger.Error("Failed to persist ingested submission",
				"submission_id", sub.ID,
				"registration_id", sub.RegistrationID,
				"error", err)
			continue
		}
		c.submissionsIngested.Add(1)
	}

	c.logger.Info("Manifest ingested",
		"path", filepath.Base(path),
		"submissions", len(subs))
	return nil
}

// fillGroupKeys derives missing grouping keys from the page file naming
// convention: everything before the last underscore in the file ID's base
// name identifies the candidate (e.g. "REG-001_p03.png" groups as "REG-001").
func fillGroupKeys(m *batch.Manifest) {
	for i := range m.Files {
		if m.Files[i].GroupKey == "" {
			m.Files[i].GroupKey = groupKeyFromFileID(m.Files[i].FileID)
		}
	}
}

// groupKeyFromFileID extracts the candidate key from a page file ID.
func groupKeyFromFileID(fileID string) string {
	base := filepath.Base(fileID)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if idx := strings.LastIndex(base, "_"); idx > 0 {
		return base[:idx]
	}
	return base
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}

	cancel := c.cancel
	watcher := c.watcher
	c.running = false
	c.cancel = nil
	c.watcher = nil
	c.mu.Unlock()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			c.logger.Warn("Watcher stop failed", "error", err)
		}
	}
	if cancel != nil {
		cancel()
	}

	c.logger.Info("manifest-ingester stopped",
		"manifests_processed", c.manifestsProcessed.Load(),
		"manifests_failed", c.manifestsFailed.Load(),
		"submissions_ingested", c.submissionsIngested.Load(),
		"candidates_excluded", c.candidatesExcluded.Load())

	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "manifest-ingester",
		Type:        "processor",
		Description: "Ingests batch manifests into tracked submissions",
		Version:     "0.1.0",
	}
}

// InputPorts returns an empty port list; input arrives via the filesystem.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns an empty port list; submissions land in storage, not
// on a stream.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return manifestIngesterSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	if running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.manifestsFailed.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		MessagesPerSecond: 0,
		BytesPerSecond:    0,
		ErrorRate:         0,
		LastActivity:      c.getLastActivity(),
	}
}

func (c *Component) updateLastActivity() {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastActivityMu.Unlock()
}

func (c *Component) getLastActivity() time.Time {
	c.lastActivityMu.RLock()
	defer c.lastActivityMu.RUnlock()
	return c.lastActivity
}
