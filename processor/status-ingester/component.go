// Package statusingester consumes phase update messages published by the
// automated processing collaborator and applies them to tracked submissions
// through the review tracker.
package statusingester

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/gradeworks/scanreview/pipeline"
	"github.com/gradeworks/scanreview/review"
)

// Component implements the status-ingester processor.
type Component struct {
	name       string
	config     Config
	core       *pipeline.Core
	natsClient *natsclient.Client
	logger     *slog.Logger

	// JetStream consumer
	consumer jetstream.Consumer
	stream   jetstream.Stream

	// Lifecycle
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// Metrics
	updatesProcessed atomic.Int64
	updatesApplied   atomic.Int64
	updatesInvalid   atomic.Int64
	updatesDropped   atomic.Int64
	updatesFailed    atomic.Int64
	lastActivityMu   sync.RWMutex
	lastActivity     time.Time
}

// NewComponent creates a new status-ingester processor.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies, core *pipeline.Core) (component.Discoverable, error) {
	var config Config
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	// Apply defaults
	defaults := DefaultConfig()
	if config.StreamName == "" {
		config.StreamName = defaults.StreamName
	}
	if config.ConsumerName == "" {
		config.ConsumerName = defaults.ConsumerName
	}
	if config.UpdateSubject == "" {
		config.UpdateSubject = defaults.UpdateSubject
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if core == nil {
		return nil, fmt.Errorf("pipeline core is required")
	}

	return &Component{
		name:       "status-ingester",
		config:     config,
		core:       core,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized status-ingester",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"subject", c.config.UpdateSubject)
	return nil
}

// Start begins consuming phase updates.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}

	c.running = true
	c.startTime = time.Now()

	subCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	js, err := c.natsClient.JetStream()
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get jetstream: %w", err)
	}

	stream, err := js.Stream(subCtx, c.config.StreamName)
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get stream %s: %w", c.config.StreamName, err)
	}
	c.stream = stream

	consumerConfig := jetstream.ConsumerConfig{
		Durable:       c.config.ConsumerName,
		FilterSubject: c.config.UpdateSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
	}

	consumer, err := stream.CreateOrUpdateConsumer(subCtx, consumerConfig)
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("create consumer: %w", err)
	}
	c.consumer = consumer

	go c.consumeLoop(subCtx)

	c.logger.Info("status-ingester started",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"subject", c.config.UpdateSubject)

	return nil
}

func (c *Component) rollbackStart(cancel context.CancelFunc) {
	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.mu.Unlock()
	cancel()
}

// consumeLoop continuously consumes messages from the JetStream consumer.
func (c *Component) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("Fetch timeout or error", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleMessage(ctx, msg)
		}

		if msgs.Error() != nil && msgs.Error() != context.DeadlineExceeded {
			c.logger.Warn("Message fetch error", "error", msgs.Error())
		}
	}
}

// handleMessage processes a single phase update message. Malformed payloads
// and rejected transitions are ACKed so they are never redelivered; only
// transient failures (unknown submission, persistence) are NAKed for retry.
func (c *Component) handleMessage(ctx context.Context, msg jetstream.Msg) {
	c.updatesProcessed.Add(1)
	c.updateLastActivity()

	retry, err := c.processUpdate(ctx, msg.Data())
	if err == nil {
		c.updatesApplied.Add(1)
		if err := msg.Ack(); err != nil {
			c.logger.Warn("Failed to ACK message", "error", err)
		}
		return
	}

	if retry {
		c.updatesFailed.Add(1)
		c.logger.Error("Phase update failed, will retry", "error", err)
		if err := msg.Nak(); err != nil {
			c.logger.Warn("Failed to NAK message", "error", err)
		}
		return
	}

	// Permanent rejection: drop the message, state unchanged.
	var illegal *review.IllegalTransitionError
	if errors.As(err, &illegal) {
		c.updatesDropped.Add(1)
		c.logger.Warn("Dropped phase update with illegal transition",
			"phase", illegal.Phase, "from", illegal.From, "to", illegal.To)
	} else {
		c.updatesInvalid.Add(1)
		c.logger.Error("Rejected invalid phase update", "error", err)
	}
	if err := msg.Ack(); err != nil {
		c.logger.Warn("Failed to ACK message", "error", err)
	}
}

// processUpdate parses and applies one phase update, then persists the
// updated submission. The returned bool reports whether the failure is
// transient and worth a redelivery.
func (c *Component) processUpdate(ctx context.Context, data []byte) (retry bool, err error) {
	u, err := review.ParsePhaseUpdate(data)
	if err != nil {
		return false, err
	}

	if err := c.core.Tracker.ApplyUpdate(u); err != nil {
		switch {
		case errors.Is(err, review.ErrSubmissionNotFound):
			// The manifest may not have been ingested yet.
			return true, err
		case c.isReplay(u, err):
			// Redelivery of an update that already took effect; fall through
			// to persistence so the stored record catches up.
		default:
			return false, err
		}
	}

	if err := c.core.Persist(ctx, u.SubmissionID); err != nil {
		return true, err
	}
	return false, nil
}

// isReplay reports whether a rejected transition is a redelivery of an
// update the tracker has already applied.
func (c *Component) isReplay(u *review.PhaseUpdatePayload, applyErr error) bool {
	var illegal *review.IllegalTransitionError
	if !errors.As(applyErr, &illegal) {
		return false
	}
	sub, err := c.core.Registry.Get(u.SubmissionID)
	if err != nil {
		return false
	}
	return sub.StatusOf(u.Phase) == u.Status
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}

	cancel := c.cancel
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.logger.Info("status-ingester stopped",
		"updates_processed", c.updatesProcessed.Load(),
		"updates_applied", c.updatesApplied.Load(),
		"updates_invalid", c.updatesInvalid.Load(),
		"updates_dropped", c.updatesDropped.Load())

	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "status-ingester",
		Type:        "processor",
		Description: "Applies automated phase updates to tracked submissions",
		Version:     "0.1.0",
	}
}

// InputPorts returns the phase update stream input.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "phase-updates",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "Phase status updates from automated processing",
			Config: component.JetStreamPort{
				StreamName: c.config.StreamName,
				Subjects:   []string{c.config.UpdateSubject},
			},
		},
	}
}

// OutputPorts returns an empty port list; this component only consumes.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return statusIngesterSchema
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
		ErrorCount: int(c.updatesFailed.Load()),
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
