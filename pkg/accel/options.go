package accel

import (
	"github.com/helixml/ditty/pkg/rng"
)

// ProjectConfig controls where an accelerator keeps checkpoints and how it
// names them. Iteration is the next checkpoint number; a resuming trainer
// advances it past the checkpoint it restored from.
type ProjectConfig struct {
	ProjectDir                string `yaml:"project_dir"`
	AutomaticCheckpointNaming bool   `yaml:"automatic_checkpoint_naming"`
	Iteration                 int    `yaml:"iteration"`
}

// Options configures an accelerator.
type Options struct {
	// GradAccumulationSteps is how many consecutive batches accumulate
	// gradients before an optimizer step applies.
	GradAccumulationSteps int `yaml:"gradient_accumulation_steps"`
	// ProjectDir is the run's output directory.
	ProjectDir string `yaml:"project_dir"`
	// MixedPrecision selects the autocast mode ("no", "fp16", "bf16").
	MixedPrecision string `yaml:"mixed_precision"`
	// CPU forces execution on the host CPU even when a device is present.
	CPU bool `yaml:"cpu"`

	Project *ProjectConfig `yaml:"project_config"`
	RNG     *rng.Source    `yaml:"-"`
}

// Merge returns a copy of o with every field the caller set in overrides
// taking precedence.
func (o Options) Merge(overrides Options) Options {
	merged := o
	if overrides.GradAccumulationSteps != 0 {
		merged.GradAccumulationSteps = overrides.GradAccumulationSteps
	}
	if overrides.ProjectDir != "" {
		merged.ProjectDir = overrides.ProjectDir
	}
	if overrides.MixedPrecision != "" {
		merged.MixedPrecision = overrides.MixedPrecision
	}
	if overrides.CPU {
		merged.CPU = true
	}
	if overrides.Project != nil {
		merged.Project = overrides.Project
	}
	if overrides.RNG != nil {
		merged.RNG = overrides.RNG
	}
	return merged
}
