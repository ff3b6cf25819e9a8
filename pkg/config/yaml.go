package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/helixml/ditty/pkg/accel"
)

// ProcessAcceleratorYAML parses accelerator overrides from YAML content.
// It accepts both a bare options document and one nested under an
// `accelerator:` key, so run configs can carry other sections too.
func ProcessAcceleratorYAML(content []byte) (*accel.Options, error) {
	var rawMap map[string]any
	if err := yaml.Unmarshal(content, &rawMap); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if nested, ok := rawMap["accelerator"]; ok {
		nestedMap, ok := nested.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("accelerator section must be a mapping, got %T", nested)
		}
		rawMap = nestedMap
	}

	// Round-trip through YAML for type safety on the known fields.
	rawBytes, err := yaml.Marshal(rawMap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw map: %w", err)
	}
	var opts accel.Options
	if err := yaml.Unmarshal(rawBytes, &opts); err != nil {
		return nil, fmt.Errorf("error parsing accelerator options: %w", err)
	}
	return &opts, nil
}
