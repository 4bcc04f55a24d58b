package validate

import (
	"fmt"
	"sort"

	"github.com/requestdirectory/gateway/internal/registry"
)

type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing required parameter: %s", e.Name)
}

// Validate checks that every required parameter of the endpoint is present
// in the decoded body. It runs strictly before any funds are reserved; type
// coercion of values is the upstream's concern, not the validator's.
// Parameters are checked in name order so the reported failure is stable.
func Validate(ep *registry.Endpoint, body Body) error {
	names := make([]string, 0, len(ep.Input.Parameters))
	for name := range ep.Input.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := ep.Input.Parameters[name]
		if p.Required && !body.Has(name) {
			return &MissingParameterError{Name: name}
		}
	}
	return nil
}
