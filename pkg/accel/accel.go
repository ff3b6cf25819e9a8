// Package accel abstracts the execution environment a training run is
// prepared for: device placement, gradient accumulation, mixed precision
// and resumable state save/restore. The trainer only speaks to the
// Accelerator interface; Local is the single-process implementation that
// ships with this module, and multi-process backends plug in behind the
// same contract.
package accel

import (
	"errors"

	"github.com/helixml/ditty/pkg/types"
)

// ErrNotPrepared is returned when a save or restore runs before the
// accelerator has wrapped any stateful objects.
var ErrNotPrepared = errors.New("accelerator has no prepared objects")

// Accelerator prepares stateful training objects for an execution
// environment and owns the resumable-checkpoint mechanism.
type Accelerator interface {
	// Device reports the device actually used, which replaces whatever the
	// caller asked for.
	Device() Device

	// PrepareModel wraps a model for the execution environment. The
	// returned model is what the training loop must use from then on.
	PrepareModel(m types.Model) types.Model
	// PrepareOptimizer wraps an optimizer so that Step and ZeroGrad only
	// take effect at gradient-accumulation sync points.
	PrepareOptimizer(o types.Optimizer) types.Optimizer
	// PrepareDataLoader wraps a data loader for the execution environment.
	PrepareDataLoader(d types.DataLoader) types.DataLoader
	// PrepareScheduler wraps a learning-rate scheduler.
	PrepareScheduler(s types.Scheduler) types.Scheduler

	// Accumulate scopes one forward/backward/step pass of a batch. The
	// accelerator decides whether gradients sync inside this scope.
	Accumulate(m types.Model, fn func() error) error
	// Backward runs the backward pass for a loss produced inside an
	// Accumulate scope.
	Backward(loss types.Loss) error

	// RegisterForCheckpointing adds objects to the set saved and restored
	// with every checkpoint, alongside the prepared model and optimizer.
	RegisterForCheckpointing(objs ...types.Checkpointable)
	// SaveState persists full resumable state under an auto-incrementing
	// checkpoint directory and returns its path.
	SaveState() (string, error)
	// LoadState restores full resumable state from a checkpoint directory.
	LoadState(dir string) error

	// SkipFirstBatches wraps a loader so that iteration starts after the
	// first n batches, for mid-epoch resume.
	SkipFirstBatches(d types.DataLoader, n int) types.DataLoader
	// WaitForEveryone blocks until all distributed participants arrive.
	WaitForEveryone()
	// UnwrapModel undoes PrepareModel, exposing the caller's original
	// model for standalone export.
	UnwrapModel(m types.Model) types.Model

	// Project exposes the mutable checkpoint-naming configuration.
	Project() *ProjectConfig
}
