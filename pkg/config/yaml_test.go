package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProcessAcceleratorYAMLBareDocument(t *testing.T) {
	content := []byte(`
gradient_accumulation_steps: 4
mixed_precision: bf16
cpu: true
`)
	opts, err := ProcessAcceleratorYAML(content)
	require.NoError(t, err)
	require.Equal(t, 4, opts.GradAccumulationSteps)
	require.Equal(t, "bf16", opts.MixedPrecision)
	require.True(t, opts.CPU)
}

func TestProcessAcceleratorYAMLNestedDocument(t *testing.T) {
	content := []byte(`
run_name: nightly-finetune
accelerator:
  gradient_accumulation_steps: 2
  project_dir: /data/nightly
  project_config:
    project_dir: /data/nightly
    automatic_checkpoint_naming: true
    iteration: 3
`)
	opts, err := ProcessAcceleratorYAML(content)
	require.NoError(t, err)
	require.Equal(t, 2, opts.GradAccumulationSteps)
	require.Equal(t, "/data/nightly", opts.ProjectDir)
	require.NotNil(t, opts.Project)
	require.True(t, opts.Project.AutomaticCheckpointNaming)
	require.Equal(t, 3, opts.Project.Iteration)
}

func TestProcessAcceleratorYAMLRejectsBadNesting(t *testing.T) {
	_, err := ProcessAcceleratorYAML([]byte(`accelerator: 12`))
	require.ErrorContains(t, err, "must be a mapping")
}

func TestProcessAcceleratorYAMLRejectsInvalid(t *testing.T) {
	_, err := ProcessAcceleratorYAML([]byte(`: [`))
	require.ErrorContains(t, err, "failed to parse YAML")
}
