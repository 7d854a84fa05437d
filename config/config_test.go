package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if config.NATS.URL != "nats://localhost:4222" {
		t.Errorf("default NATS URL = %q", config.NATS.URL)
	}
	if config.Batch.MaxCandidates != 125 {
		t.Errorf("default candidate cap = %d, want 125", config.Batch.MaxCandidates)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing_nats_url", func(c *Config) { c.NATS.URL = "" }},
		{"missing_stream", func(c *Config) { c.NATS.Stream = "" }},
		{"zero_candidate_cap", func(c *Config) { c.Batch.MaxCandidates = 0 }},
		{"negative_candidate_cap", func(c *Config) { c.Batch.MaxCandidates = -1 }},
		{"invalid_port", func(c *Config) { c.HTTP.Port = 70000 }},
		{"missing_bucket", func(c *Config) { c.Storage.Bucket = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "scanreview.yaml")

	config := DefaultConfig()
	config.NATS.URL = "nats://broker:4222"
	config.Batch.MaxCandidates = 50

	if err := config.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if loaded.NATS.URL != "nats://broker:4222" {
		t.Errorf("loaded NATS URL = %q", loaded.NATS.URL)
	}
	if loaded.Batch.MaxCandidates != 50 {
		t.Errorf("loaded candidate cap = %d", loaded.Batch.MaxCandidates)
	}
	// Fields absent from the file keep defaults.
	if loaded.HTTP.Port != 8080 {
		t.Errorf("loaded port = %d, want default 8080", loaded.HTTP.Port)
	}
}

func TestConfig_Merge(t *testing.T) {
	base := DefaultConfig()
	base.Merge(&Config{
		NATS:  NATSConfig{URL: "nats://other:4222"},
		Batch: BatchConfig{MaxCandidates: 10},
	})

	if base.NATS.URL != "nats://other:4222" {
		t.Errorf("merged NATS URL = %q", base.NATS.URL)
	}
	if base.Batch.MaxCandidates != 10 {
		t.Errorf("merged candidate cap = %d", base.Batch.MaxCandidates)
	}
	// Zero values in the overlay leave the base untouched.
	if base.NATS.Stream != "REVIEW" {
		t.Errorf("merged stream = %q, want REVIEW", base.NATS.Stream)
	}
	if base.HTTP.Port != 8080 {
		t.Errorf("merged port = %d, want 8080", base.HTTP.Port)
	}

	base.Merge(nil) // must not panic
}

func TestLoader_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SCANREVIEW_NATS_URL", "nats://env:4222")
	t.Setenv("SCANREVIEW_MAX_CANDIDATES", "77")
	t.Setenv("HOME", t.TempDir()) // avoid picking up a real user config

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	tmp := t.TempDir()
	if err := os.Chdir(tmp); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	config, err := NewLoader(nil).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.NATS.URL != "nats://env:4222" {
		t.Errorf("NATS URL = %q, want env override", config.NATS.URL)
	}
	if config.Batch.MaxCandidates != 77 {
		t.Errorf("candidate cap = %d, want 77", config.Batch.MaxCandidates)
	}
}

func TestLoader_IgnoresInvalidEnvCap(t *testing.T) {
	t.Setenv("SCANREVIEW_NATS_URL", "")
	t.Setenv("SCANREVIEW_MAX_CANDIDATES", "not-a-number")
	t.Setenv("HOME", t.TempDir())

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	config, err := NewLoader(nil).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Batch.MaxCandidates != 125 {
		t.Errorf("candidate cap = %d, want default 125", config.Batch.MaxCandidates)
	}
}
