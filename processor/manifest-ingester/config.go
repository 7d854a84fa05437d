package manifestingester

import (
	"fmt"
	"reflect"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/c360studio/semstreams/component"
)

// manifestIngesterSchema holds the configuration schema generated from Config.
var manifestIngesterSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the manifest-ingester component.
type Config struct {
	// ManifestDir is the directory watched for dropped manifest files.
	ManifestDir string `json:"manifest_dir" schema:"type:string,description:Manifest drop directory,category:basic,default:manifests"`

	// Pattern is the doublestar glob accepted manifests must match, relative
	// to ManifestDir.
	Pattern string `json:"pattern" schema:"type:string,description:Manifest filename pattern,category:basic,default:**/*.manifest.json"`

	// DebounceDelay is how long to wait for more changes before processing.
	DebounceDelay string `json:"debounce_delay" schema:"type:string,description:Debounce delay before processing dropped files,category:advanced,default:500ms"`

	// Ports declares optional port configuration.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		ManifestDir:   "manifests",
		Pattern:       "**/*.manifest.json",
		DebounceDelay: "500ms",
	}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if c.ManifestDir == "" {
		return fmt.Errorf("manifest_dir is required")
	}
	if c.Pattern == "" {
		return fmt.Errorf("pattern is required")
	}
	if !doublestar.ValidatePattern(c.Pattern) {
		return fmt.Errorf("invalid pattern: %s", c.Pattern)
	}
	return nil
}

// GetDebounceDelay returns the debounce delay as a duration.
func (c *Config) GetDebounceDelay() time.Duration {
	if c.DebounceDelay == "" {
		return 500 * time.Millisecond
	}
	d, err := time.ParseDuration(c.DebounceDelay)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}
