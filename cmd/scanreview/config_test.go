package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/gradeworks/scanreview/config"
)

// TestBuildPlatformConfig verifies the app config maps onto the semstreams
// platform config with the review stream and all three components enabled.
func TestBuildPlatformConfig(t *testing.T) {
	appCfg := appconfig.DefaultConfig()
	appCfg.NATS.Stream = "REVIEW"
	appCfg.HTTP.Port = 9090

	cfg := buildPlatformConfig(appCfg)
	require.NoError(t, cfg.Validate())

	stream, ok := cfg.Streams["REVIEW"]
	require.True(t, ok, "review stream must be declared")
	assert.Contains(t, stream.Subjects, "review.phase.update")

	for _, name := range []string{"review-api", "status-ingester", "manifest-ingester"} {
		comp, ok := cfg.Components[name]
		require.True(t, ok, "component %s must be configured", name)
		assert.True(t, comp.Enabled, "component %s must be enabled", name)
		assert.NotEmpty(t, comp.Config)
	}

	assert.Equal(t, []string{appCfg.NATS.URL}, cfg.NATS.URLs)
}
