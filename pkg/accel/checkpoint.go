package accel

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/helixml/ditty/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func writeStateFile(path string, state types.StateDict) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}

func readStateFile(path string) (types.StateDict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// %w keeps fs.ErrNotExist visible to errors.Is in callers.
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	var state types.StateDict
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decoding state file %s: %w", path, err)
	}
	return state, nil
}
