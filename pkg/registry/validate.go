package registry

import (
	"fmt"
	"strings"

	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validate checks that a definition has a usable name and, when present, an
// input schema that compiles as JSON Schema.
func Validate(def domain.ToolDefinition) error {
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if strings.ContainsAny(def.Name, " \t\r\n") {
		return fmt.Errorf("%w: name %q must not contain whitespace", domain.ErrValidation, def.Name)
	}
	if def.InputSchema == nil {
		return nil
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("input.json", def.InputSchema); err != nil {
		return fmt.Errorf("%w: tool %q: input schema: %v", domain.ErrValidation, def.Name, err)
	}
	if _, err := c.Compile("input.json"); err != nil {
		return fmt.Errorf("%w: tool %q: input schema: %v", domain.ErrValidation, def.Name, err)
	}
	return nil
}
