package trainer

import (
	"fmt"

	"github.com/helixml/ditty/pkg/types"
)

// TrainerState tracks training progress across checkpoint/resume cycles.
// Only the Trainer mutates it during the loop.
type TrainerState struct {
	// Epoch counts completed epochs.
	Epoch int
	// Steps counts steps completed within the current resumption.
	Steps int
	// GlobalLoss is the running sum of per-step normalized loss.
	GlobalLoss float64
}

var _ types.Checkpointable = (*TrainerState)(nil)

func (s *TrainerState) StateDict() types.StateDict {
	return types.StateDict{
		"epoch":       s.Epoch,
		"steps":       s.Steps,
		"global_loss": s.GlobalLoss,
	}
}

// LoadStateDict overwrites all three fields from a snapshot. It fails
// without touching the state if any key is absent.
func (s *TrainerState) LoadStateDict(state types.StateDict) error {
	epoch, err := intFromState(state, "epoch")
	if err != nil {
		return err
	}
	steps, err := intFromState(state, "steps")
	if err != nil {
		return err
	}
	loss, err := floatFromState(state, "global_loss")
	if err != nil {
		return err
	}
	s.Epoch = epoch
	s.Steps = steps
	s.GlobalLoss = loss
	return nil
}

// intFromState fetches an integer value. Checkpoint files round-trip
// through JSON, so numbers may come back as float64.
func intFromState(state types.StateDict, key string) (int, error) {
	v, ok := state[key]
	if !ok {
		return 0, fmt.Errorf("state is missing key %q", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("state key %q has unexpected type %T", key, v)
	}
}

func floatFromState(state types.StateDict, key string) (float64, error) {
	v, ok := state[key]
	if !ok {
		return 0, fmt.Errorf("state is missing key %q", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("state key %q has unexpected type %T", key, v)
	}
}
