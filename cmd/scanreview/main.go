// Package main provides the scanreview binary entry point.
// Scanreview is the review backbone for scanned answer-script processing:
// it tracks each submission through segmentation, OCR, and evaluation, and
// gates every phase behind human approval.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/componentregistry"
	"github.com/c360studio/semstreams/config"
	"github.com/c360studio/semstreams/metric"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/c360studio/semstreams/service"
	"github.com/c360studio/semstreams/types"
	"github.com/spf13/cobra"

	"github.com/gradeworks/scanreview/batch"
	appconfig "github.com/gradeworks/scanreview/config"
	"github.com/gradeworks/scanreview/pipeline"
	manifestingester "github.com/gradeworks/scanreview/processor/manifest-ingester"
	reviewapi "github.com/gradeworks/scanreview/processor/review-api"
	statusingester "github.com/gradeworks/scanreview/processor/status-ingester"
	"github.com/gradeworks/scanreview/storage"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "scanreview"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "scanreview",
		Short: "Answer-script review pipeline",
		Long: `Scanreview tracks scanned answer-script submissions through three
gated processing phases: page segmentation, text extraction, and scored
evaluation.

It provides:
- Batch manifest ingestion with a per-batch candidate cap
- Phase status tracking driven by the automated processing pipeline
- A review API for page reordering, artifact edits, and per-phase approval

All components communicate via NATS using the semstreams framework.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func run(configPath, logLevel string) error {
	// Print banner
	printBanner()

	// Configure logging
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Load application configuration
	appCfg, err := loadAppConfig(configPath, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Connect to NATS
	ctx := context.Background()
	natsClient, err := connectToNATS(ctx, appCfg, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	// Build the semstreams platform config around the app config
	cfg := buildPlatformConfig(appCfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure JetStream streams exist
	if err := ensureStreams(ctx, cfg, natsClient, logger); err != nil {
		return err
	}

	// Create durable storage and the shared pipeline core
	js, err := natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}
	store, err := storage.NewSubmissionStore(ctx, js)
	if err != nil {
		return fmt.Errorf("create submission store: %w", err)
	}

	core := pipeline.New(store, pipeline.WithBatchOptions(
		batch.WithMaxCandidates(appCfg.Batch.MaxCandidates),
	))
	if err := core.Hydrate(ctx); err != nil {
		return fmt.Errorf("hydrate submissions: %w", err)
	}
	slog.Info("Submission state hydrated", "submissions", core.Registry.Count())

	slog.Info("Scanreview ready", "version", Version)

	// Create remaining infrastructure
	metricsRegistry := metric.NewMetricsRegistry()
	platform := extractPlatformMeta(cfg)

	// Create and start config manager
	configManager, err := config.NewConfigManager(cfg, natsClient, logger)
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	if err := configManager.Start(ctx); err != nil {
		return fmt.Errorf("start config manager: %w", err)
	}
	defer configManager.Stop(5 * time.Second)

	slog.Info("Platform identity configured",
		"org", platform.Org,
		"platform", platform.Platform)

	// Create and populate component registry
	componentRegistry := component.NewRegistry()

	// Register all semstreams components
	slog.Debug("Registering semstreams component factories")
	if err := componentregistry.Register(componentRegistry); err != nil {
		return fmt.Errorf("register semstreams components: %w", err)
	}

	// Register scanreview components over the shared core
	slog.Debug("Registering scanreview component factories")
	if err := manifestingester.Register(componentRegistry, core); err != nil {
		return fmt.Errorf("register manifest-ingester: %w", err)
	}

	if err := statusingester.Register(componentRegistry, core); err != nil {
		return fmt.Errorf("register status-ingester: %w", err)
	}

	if err := reviewapi.Register(componentRegistry, core); err != nil {
		return fmt.Errorf("register review-api: %w", err)
	}

	factories := componentRegistry.ListFactories()
	slog.Info("Component factories registered", "count", len(factories))

	// Create service registry and manager (semstreams pattern)
	serviceRegistry := service.NewServiceRegistry()
	if err := service.RegisterAll(serviceRegistry); err != nil {
		return fmt.Errorf("register services: %w", err)
	}

	manager := service.NewServiceManager(serviceRegistry)
	ensureServiceManagerConfig(cfg)

	// Create service dependencies
	svcDeps := &service.Dependencies{
		NATSClient:        natsClient,
		MetricsRegistry:   metricsRegistry,
		Logger:            logger,
		Platform:          platform,
		Manager:           configManager,
		ComponentRegistry: componentRegistry,
	}

	// Configure and create services
	if err := configureAndCreateServices(cfg, manager, svcDeps); err != nil {
		return err
	}

	slog.Info("All services configured")

	// Setup signal handling
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	// Start all services
	slog.Info("Starting all services")
	if err := manager.StartAll(signalCtx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	slog.Info("All services started successfully")

	// Block until shutdown signal
	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	// Stop all services
	shutdownTimeout := 30 * time.Second
	if err := manager.StopAll(shutdownTimeout); err != nil {
		slog.Error("Error stopping services", "error", err)
	}

	slog.Info("Scanreview shutdown complete")
	return nil
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════╗")
	fmt.Println("║            Scanreview v" + Version + "                  ║")
	fmt.Println("║      Answer-Script Review Pipeline            ║")
	fmt.Println("╚═══════════════════════════════════════════════╝")
}

// loadAppConfig loads the application config: from an explicit file when
// given, otherwise through the layered loader (defaults, user config,
// project config, environment).
func loadAppConfig(configPath string, logger *slog.Logger) (*appconfig.Config, error) {
	if configPath != "" {
		cfg, err := appconfig.LoadFromFile(os.ExpandEnv(configPath))
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return appconfig.NewLoader(logger).Load()
}

// buildPlatformConfig maps the application config onto the semstreams
// platform config: one stream for phase updates plus the three scanreview
// components.
func buildPlatformConfig(appCfg *appconfig.Config) *config.Config {
	reviewAPIConfig := map[string]any{
		"http_port":   appCfg.HTTP.Port,
		"path_prefix": "api/review",
	}
	reviewAPIJSON, _ := json.Marshal(reviewAPIConfig)

	statusIngesterConfig := map[string]any{
		"stream_name":    appCfg.NATS.Stream,
		"consumer_name":  "status-ingester",
		"update_subject": "review.phase.update",
	}
	statusIngesterJSON, _ := json.Marshal(statusIngesterConfig)

	manifestIngesterConfig := map[string]any{
		"manifest_dir": appCfg.Ingest.ManifestDir,
		"pattern":      appCfg.Ingest.Pattern,
	}
	manifestIngesterJSON, _ := json.Marshal(manifestIngesterConfig)

	return &config.Config{
		Version: "1.0.0",
		Platform: config.PlatformConfig{
			Org:         "gradeworks",
			ID:          "scanreview-local",
			Environment: "dev",
		},
		NATS: config.NATSConfig{
			URLs:          []string{appCfg.NATS.URL},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			JetStream: config.JetStreamConfig{
				Enabled: true,
			},
		},
		Services: types.ServiceConfigs{},
		Components: config.ComponentConfigs{
			"review-api": types.ComponentConfig{
				Name:    "review-api",
				Type:    types.ComponentTypeProcessor,
				Enabled: true,
				Config:  reviewAPIJSON,
			},
			"status-ingester": types.ComponentConfig{
				Name:    "status-ingester",
				Type:    types.ComponentTypeProcessor,
				Enabled: true,
				Config:  statusIngesterJSON,
			},
			"manifest-ingester": types.ComponentConfig{
				Name:    "manifest-ingester",
				Type:    types.ComponentTypeProcessor,
				Enabled: true,
				Config:  manifestIngesterJSON,
			},
		},
		Streams: config.StreamConfigs{
			appCfg.NATS.Stream: config.StreamConfig{
				Subjects: []string{
					"review.phase.update",
				},
				MaxAge:   "168h",
				Storage:  "file",
				Replicas: 1,
			},
		},
	}
}

func connectToNATS(ctx context.Context, appCfg *appconfig.Config, logger *slog.Logger) (*natsclient.Client, error) {
	natsURL := appCfg.NATS.URL

	// Environment variable override takes precedence
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		natsURL = envURL
	}

	logger.Info("Connecting to NATS", "url", natsURL)

	client, err := natsclient.NewClient(natsURL,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
		natsclient.WithCircuitBreakerThreshold(20), // Higher threshold for startup bursts
		natsclient.WithHealthInterval(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	logger.Info("Connected to NATS", "url", natsURL)
	return client, nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker compose up -d nats

Or set NATS_URL environment variable to point to your NATS server.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

func ensureStreams(ctx context.Context, cfg *config.Config, natsClient *natsclient.Client, logger *slog.Logger) error {
	logger.Debug("Creating JetStream streams")
	streamsManager := config.NewStreamsManager(natsClient, logger)

	if err := streamsManager.EnsureStreams(ctx, cfg); err != nil {
		return fmt.Errorf("ensure streams: %w", err)
	}

	logger.Debug("JetStream streams ready")
	return nil
}

func extractPlatformMeta(cfg *config.Config) types.PlatformMeta {
	platformID := cfg.Platform.InstanceID
	if platformID == "" {
		platformID = cfg.Platform.ID
	}

	return types.PlatformMeta{
		Org:      cfg.Platform.Org,
		Platform: platformID,
	}
}

// ensureServiceManagerConfig ensures service-manager config exists with defaults
func ensureServiceManagerConfig(cfg *config.Config) {
	if cfg.Services == nil {
		cfg.Services = make(types.ServiceConfigs)
	}

	if _, exists := cfg.Services["service-manager"]; !exists {
		slog.Debug("Adding default service-manager config")
		defaultConfig := map[string]any{
			"http_port":  8081,
			"swagger_ui": false,
			"server_info": map[string]string{
				"title":       "Scanreview API",
				"description": "answer-script review pipeline - submission tracking and approval",
				"version":     Version,
			},
		}
		defaultConfigJSON, _ := json.Marshal(defaultConfig)
		cfg.Services["service-manager"] = types.ServiceConfig{
			Name:    "service-manager",
			Enabled: true,
			Config:  defaultConfigJSON,
		}
		slog.Debug("Service-manager config added", "enabled", true)
	}
}

// configureAndCreateServices configures the manager and creates all services
func configureAndCreateServices(
	cfg *config.Config,
	manager *service.Manager,
	svcDeps *service.Dependencies,
) error {
	slog.Debug("Configuring Manager")
	if err := manager.ConfigureFromServices(cfg.Services, svcDeps); err != nil {
		return fmt.Errorf("configure service manager: %w", err)
	}

	slog.Debug("Creating services from config", "count", len(cfg.Services))
	for name, svcConfig := range cfg.Services {
		if name == "service-manager" {
			slog.Debug("Skipping service-manager (configured directly)")
			continue
		}

		if err := createServiceIfEnabled(manager, name, svcConfig, svcDeps); err != nil {
			return err
		}
	}

	return nil
}

// createServiceIfEnabled creates a service if it's enabled and registered
func createServiceIfEnabled(
	manager *service.Manager,
	name string,
	svcConfig types.ServiceConfig,
	svcDeps *service.Dependencies,
) error {
	slog.Debug("Processing service config", "key", name, "name", svcConfig.Name, "enabled", svcConfig.Enabled)

	if !svcConfig.Enabled {
		slog.Info("Service disabled in config", "name", name)
		return nil
	}

	if !manager.HasConstructor(name) {
		slog.Warn("Service configured but not registered", "key", name, "available_constructors", manager.ListConstructors())
		return nil
	}

	slog.Debug("Creating service", "name", name, "has_constructor", true)
	if _, err := manager.CreateService(name, svcConfig.Config, svcDeps); err != nil {
		return fmt.Errorf("create service %s: %w", name, err)
	}

	slog.Info("Created service", "name", name, "config_name", svcConfig.Name)
	return nil
}
