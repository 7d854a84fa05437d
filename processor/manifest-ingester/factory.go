package manifestingester

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

// Register registers the manifest-ingester component with the given registry.
func Register(registry RegistryInterface, core *pipeline.Core) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	if core == nil {
		return fmt.Errorf("core cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name: "manifest-ingester",
		Factory: func(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
			return NewComponent(rawConfig, deps, core)
		},
		Schema:      manifestIngesterSchema,
		Type:        "processor",
		Protocol:    "filesystem",
		Domain:      "scanreview",
		Description: "Ingests batch manifests into tracked submissions",
		Version:     "0.1.0",
	})
}
