package trainer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/helixml/ditty/pkg/system"
)

// ProgressionFileName is the durable progress record rewritten on every
// full checkpoint. External supervisors probe it instead of relying on
// process-exit semantics.
const ProgressionFileName = "training_progression.json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Progression is the JSON shape of the progress record.
type Progression struct {
	RunID        string             `json:"run_id"`
	CurrentEpoch int                `json:"current_epoch"`
	CurrentStep  int                `json:"current_step"`
	Metrics      map[string]float64 `json:"training_metrics,omitempty"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func (t *Trainer) writeProgression() error {
	record := Progression{
		RunID:        t.runID,
		CurrentEpoch: t.state.Epoch,
		CurrentStep:  t.state.Steps,
		Metrics: map[string]float64{
			"global_loss": t.state.GlobalLoss,
		},
		UpdatedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding progression record: %w", err)
	}
	return system.WriteFileAtomic(filepath.Join(t.outputDir, ProgressionFileName), data)
}

// ReadProgression loads the progress record from an output directory.
func ReadProgression(outputDir string) (*Progression, error) {
	data, err := os.ReadFile(filepath.Join(outputDir, ProgressionFileName))
	if err != nil {
		return nil, fmt.Errorf("reading progression record: %w", err)
	}
	var record Progression
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding progression record: %w", err)
	}
	return &record, nil
}
