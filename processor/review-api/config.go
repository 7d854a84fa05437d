package reviewapi

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"
)

// reviewAPISchema holds the configuration schema generated from Config.
var reviewAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the review-api component.
type Config struct {
	// HTTPPort is the port the review API listens on.
	HTTPPort int `json:"http_port" schema:"type:integer,description:HTTP listen port,category:basic,default:8080"`

	// PathPrefix is the path segment the API is served under, without
	// leading or trailing slashes.
	PathPrefix string `json:"path_prefix" schema:"type:string,description:API path prefix,category:basic,default:api/review"`

	// Ports declares optional port configuration.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		HTTPPort:   8080,
		PathPrefix: "api/review",
	}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be a valid port number, got %d", c.HTTPPort)
	}
	if c.PathPrefix == "" {
		return fmt.Errorf("path_prefix is required")
	}
	return nil
}
