package statusingester

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"
)

// statusIngesterSchema holds the configuration schema generated from Config.
var statusIngesterSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the status-ingester component.
type Config struct {
	// StreamName is the JetStream stream carrying phase updates.
	StreamName string `json:"stream_name" schema:"type:string,description:JetStream stream name,category:basic,default:REVIEW"`

	// ConsumerName is the durable consumer name.
	ConsumerName string `json:"consumer_name" schema:"type:string,description:Durable consumer name,category:basic,default:status-ingester"`

	// UpdateSubject is the subject phase updates are published on.
	UpdateSubject string `json:"update_subject" schema:"type:string,description:Phase update subject,category:basic,default:review.phase.update"`

	// Ports declares optional port configuration.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		StreamName:    "REVIEW",
		ConsumerName:  "status-ingester",
		UpdateSubject: "review.phase.update",
	}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer_name is required")
	}
	if c.UpdateSubject == "" {
		return fmt.Errorf("update_subject is required")
	}
	return nil
}
