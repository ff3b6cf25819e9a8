package trainer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helixml/ditty/pkg/types"
)

func TestTrainerStateRoundTrip(t *testing.T) {
	original := &TrainerState{Epoch: 3, Steps: 125, GlobalLoss: 42.5}

	restored := &TrainerState{}
	err := restored.LoadStateDict(original.StateDict())
	require.NoError(t, err)
	require.Equal(t, original, restored)
}

func TestTrainerStateZeroRoundTrip(t *testing.T) {
	state := &TrainerState{}
	restored := &TrainerState{Epoch: 9, Steps: 9, GlobalLoss: 9}

	err := restored.LoadStateDict(state.StateDict())
	require.NoError(t, err)
	require.Equal(t, state, restored)
}

func TestTrainerStateMissingKey(t *testing.T) {
	state := &TrainerState{Epoch: 1, Steps: 2, GlobalLoss: 3}
	snapshot := state.StateDict()
	delete(snapshot, "steps")

	target := &TrainerState{Epoch: 7, Steps: 8, GlobalLoss: 9}
	err := target.LoadStateDict(snapshot)
	require.ErrorContains(t, err, `missing key "steps"`)

	// A failed load must not partially overwrite.
	require.Equal(t, &TrainerState{Epoch: 7, Steps: 8, GlobalLoss: 9}, target)
}

func TestTrainerStateJSONNumbers(t *testing.T) {
	// Checkpoint files come back from JSON with float64 numbers.
	state := &TrainerState{}
	err := state.LoadStateDict(types.StateDict{
		"epoch":       float64(2),
		"steps":       float64(80),
		"global_loss": 1.25,
	})
	require.NoError(t, err)
	require.Equal(t, 2, state.Epoch)
	require.Equal(t, 80, state.Steps)
	require.Equal(t, 1.25, state.GlobalLoss)
}
