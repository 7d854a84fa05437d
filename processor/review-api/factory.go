package reviewapi

import (
	"encoding/json"
	"fmt"

	"github.com/c360studio/semstreams/component"

	"github.com/gradeworks/scanreview/pipeline"
)

// RegistryInterface defines the minimal interface required for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the review-api component with the given registry. The
// core is shared with the other processors so every surface sees the same
// submission state.
func Register(registry RegistryInterface, core *pipeline.Core) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	if core == nil {
		return fmt.Errorf("core cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name: "review-api",
		Factory: func(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
			return NewComponent(rawConfig, deps, core)
		},
		Schema:      reviewAPISchema,
		Type:        "processor",
		Protocol:    "http",
		Domain:      "scanreview",
		Description: "HTTP endpoints for submission review and approval",
		Version:     "0.1.0",
	})
}
