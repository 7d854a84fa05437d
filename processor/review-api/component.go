// Package reviewapi exposes the human review surface over HTTP: submission
// listings, page repositioning, staged artifact edits, and per-phase
// approval.
package reviewapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/gradeworks/scanreview/pipeline"
)

// Component implements the review-api component.
type Component struct {
	name   string
	config Config
	core   *pipeline.Core
	logger *slog.Logger

	metrics *metrics

	// Lifecycle state machine
	// States: 0=stopped, 1=starting, 2=running, 3=stopping
	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
	server    *http.Server
}

const (
	stateStopped  = 0
	stateStarting = 1
	stateRunning  = 2
	stateStopping = 3
)

// NewComponent constructs a review-api Component from raw JSON config, deps,
// and the shared pipeline core.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies, core *pipeline.Core) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if config.HTTPPort == 0 {
		config.HTTPPort = DefaultConfig().HTTPPort
	}
	if config.PathPrefix == "" {
		config.PathPrefix = DefaultConfig().PathPrefix
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if core == nil {
		return nil, fmt.Errorf("pipeline core is required")
	}

	return &Component{
		name:    "review-api",
		config:  config,
		core:    core,
		logger:  deps.GetLogger(),
		metrics: newMetrics(),
	}, nil
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized review-api", "port", c.config.HTTPPort, "prefix", c.config.PathPrefix)
	return nil
}

// Start begins serving the review API.
func (c *Component) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(stateStopped, stateStarting) {
		current := c.state.Load()
		if current == stateRunning || current == stateStarting {
			return fmt.Errorf("component already running or starting")
		}
		return fmt.Errorf("component in invalid state: %d", current)
	}

	defer func() {
		if c.state.Load() == stateStarting {
			c.state.Store(stateStopped)
		}
	}()

	_, cancel := context.WithCancel(ctx)

	mux := http.NewServeMux()
	c.RegisterHTTPHandlers(c.config.PathPrefix, mux)
	mux.Handle("/metrics", c.metrics.handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	c.mu.Lock()
	c.cancel = cancel
	c.server = server
	c.startTime = time.Now()
	c.mu.Unlock()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("review-api server failed", "error", err)
		}
	}()

	c.state.Store(stateRunning)
	c.logger.Info("review-api started", "port", c.config.HTTPPort)
	return nil
}

// Stop gracefully stops the component, draining in-flight requests.
func (c *Component) Stop(timeout time.Duration) error {
	if !c.state.CompareAndSwap(stateRunning, stateStopping) {
		current := c.state.Load()
		if current == stateStopped || current == stateStopping {
			return nil
		}
		return fmt.Errorf("component in unexpected state: %d", current)
	}

	c.mu.Lock()
	cancel := c.cancel
	server := c.server
	c.cancel = nil
	c.server = nil
	c.mu.Unlock()

	if server != nil {
		ctx, done := context.WithTimeout(context.Background(), timeout)
		defer done()
		if err := server.Shutdown(ctx); err != nil {
			c.logger.Warn("review-api shutdown incomplete", "error", err)
		}
	}
	if cancel != nil {
		cancel()
	}

	c.state.Store(stateStopped)
	c.logger.Info("review-api stopped")
	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "review-api",
		Type:        "processor",
		Description: "HTTP endpoints for submission review and approval",
		Version:     "0.1.0",
	}
}

// InputPorts returns an empty port list; this component has no NATS inputs.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns an empty port list; this component has no NATS outputs.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return reviewAPISchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	state := c.state.Load()
	running := state == stateRunning

	c.mu.RLock()
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	switch state {
	case stateStarting:
		status = "starting"
	case stateRunning:
		status = "running"
	case stateStopping:
		status = "stopping"
	}

	return component.HealthStatus{
		Healthy:   running,
		LastCheck: time.Now(),
		Uptime:    time.Since(startTime),
		Status:    status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{}
}
