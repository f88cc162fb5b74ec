package seed

import (
	"fmt"

	"github.com/MrSnakeDoc/wagate/internal/domain"
)

// Map validates the declared instances. Invalid and duplicate names are
// skipped and reported in the returned warnings.
func Map(f File) ([]InstanceSpec, []error) {
	var (
		specs    []InstanceSpec
		warnings []error
		seen     = make(map[string]bool, len(f.Instances))
	)

	for i, spec := range f.Instances {
		if err := domain.ValidateName(spec.Name); err != nil {
			warnings = append(warnings, fmt.Errorf("instances[%d]: %w", i, err))
			continue
		}
		if seen[spec.Name] {
			warnings = append(warnings, fmt.Errorf("instances[%d]: duplicate name %q", i, spec.Name))
			continue
		}
		seen[spec.Name] = true
		specs = append(specs, spec)
	}

	return specs, warnings
}
