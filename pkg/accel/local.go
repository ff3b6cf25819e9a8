package accel

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/helixml/ditty/pkg/rng"
	"github.com/helixml/ditty/pkg/system"
	"github.com/helixml/ditty/pkg/types"
)

const (
	checkpointsDirName = "checkpoints"
	checkpointPrefix   = "checkpoint_"
)

var _ Accelerator = (*Local)(nil)

// Local is the single-process, single-device accelerator. There is no
// distributed transport behind it: barriers are no-ops and gradient sync
// reduces to applying the optimizer step at accumulation boundaries.
type Local struct {
	opts       Options
	device     Device
	project    *ProjectConfig
	rng        *rng.Source
	accumSteps int

	model      *preparedModel
	optimizer  *preparedOptimizer
	registered []types.Checkpointable

	// step counts completed Accumulate scopes since construction.
	step int
}

// NewLocal builds a Local accelerator from options.
func NewLocal(opts Options) (*Local, error) {
	switch opts.MixedPrecision {
	case "", "no":
	case "fp16", "bf16":
		// The local backend has no autocast support. Record the request
		// and run in full precision.
		log.Warn().Str("mixed_precision", opts.MixedPrecision).Msg("mixed precision is not supported by the local accelerator, running in full precision")
	default:
		return nil, fmt.Errorf("unknown mixed precision mode %q", opts.MixedPrecision)
	}

	accumSteps := opts.GradAccumulationSteps
	if accumSteps <= 0 {
		accumSteps = 1
	}

	project := opts.Project
	if project == nil {
		project = &ProjectConfig{
			ProjectDir:                opts.ProjectDir,
			AutomaticCheckpointNaming: true,
		}
	}
	if project.ProjectDir == "" {
		project.ProjectDir = opts.ProjectDir
	}

	source := opts.RNG
	if source == nil {
		source = rng.NewUnseeded()
	}

	return &Local{
		opts:       opts,
		device:     DetectCPU(),
		project:    project,
		rng:        source,
		accumSteps: accumSteps,
	}, nil
}

func (l *Local) Device() Device {
	return l.device
}

func (l *Local) Project() *ProjectConfig {
	return l.project
}

// RNG exposes the accelerator's random source, for loaders that shuffle.
func (l *Local) RNG() *rng.Source {
	return l.rng
}

func (l *Local) PrepareModel(m types.Model) types.Model {
	l.model = &preparedModel{inner: m, device: l.device}
	return l.model
}

func (l *Local) PrepareOptimizer(o types.Optimizer) types.Optimizer {
	l.optimizer = &preparedOptimizer{inner: o, acc: l}
	return l.optimizer
}

func (l *Local) PrepareDataLoader(d types.DataLoader) types.DataLoader {
	// No device placement or sharding to do on a single host.
	return d
}

func (l *Local) PrepareScheduler(s types.Scheduler) types.Scheduler {
	return &preparedScheduler{inner: s, acc: l}
}

func (l *Local) Accumulate(_ types.Model, fn func() error) error {
	if err := fn(); err != nil {
		return err
	}
	l.step++
	return nil
}

func (l *Local) Backward(loss types.Loss) error {
	if err := loss.Backward(); err != nil {
		return fmt.Errorf("backward pass: %w", err)
	}
	return nil
}

// syncGradients reports whether the current Accumulate scope is an
// accumulation boundary, where the optimizer step must apply.
func (l *Local) syncGradients() bool {
	return (l.step+1)%l.accumSteps == 0
}

func (l *Local) RegisterForCheckpointing(objs ...types.Checkpointable) {
	l.registered = append(l.registered, objs...)
}

// SaveState persists the prepared model, optimizer state, every registered
// object and the RNG stream under the next automatically named checkpoint
// directory, then advances the checkpoint counter.
func (l *Local) SaveState() (string, error) {
	if l.model == nil && l.optimizer == nil && len(l.registered) == 0 {
		return "", ErrNotPrepared
	}

	dir := filepath.Join(l.project.ProjectDir, checkpointsDirName, fmt.Sprintf("%s%d", checkpointPrefix, l.project.Iteration))
	if err := system.EnsureDir(dir); err != nil {
		return "", err
	}

	if l.model != nil {
		if err := writeStateFile(filepath.Join(dir, "model_0.json"), l.model.inner.StateDict()); err != nil {
			return "", err
		}
	}
	if l.optimizer != nil {
		if cp, ok := l.optimizer.inner.(types.Checkpointable); ok {
			if err := writeStateFile(filepath.Join(dir, "optimizer_0.json"), cp.StateDict()); err != nil {
				return "", err
			}
		}
	}
	for i, obj := range l.registered {
		if err := writeStateFile(filepath.Join(dir, fmt.Sprintf("custom_checkpoint_%d.json", i)), obj.StateDict()); err != nil {
			return "", err
		}
	}
	if err := writeStateFile(filepath.Join(dir, "random_states_0.json"), l.rng.StateDict()); err != nil {
		return "", err
	}

	l.project.Iteration++
	log.Debug().Str("checkpoint", dir).Msg("saved accelerator state")
	return dir, nil
}

// LoadState restores everything SaveState wrote. Missing files surface
// fs.ErrNotExist so callers can distinguish a first run from corruption.
func (l *Local) LoadState(dir string) error {
	if l.model != nil {
		// SaveState always writes model state, so a model that cannot take
		// it back would silently resume on fresh weights.
		cp, ok := l.model.inner.(types.Checkpointable)
		if !ok {
			return fmt.Errorf("model %T cannot restore state", l.model.inner)
		}
		state, err := readStateFile(filepath.Join(dir, "model_0.json"))
		if err != nil {
			return err
		}
		if err := cp.LoadStateDict(state); err != nil {
			return fmt.Errorf("restoring model state: %w", err)
		}
	}
	if l.optimizer != nil {
		if cp, ok := l.optimizer.inner.(types.Checkpointable); ok {
			state, err := readStateFile(filepath.Join(dir, "optimizer_0.json"))
			if err != nil {
				return err
			}
			if err := cp.LoadStateDict(state); err != nil {
				return fmt.Errorf("restoring optimizer state: %w", err)
			}
		}
	}
	for i, obj := range l.registered {
		state, err := readStateFile(filepath.Join(dir, fmt.Sprintf("custom_checkpoint_%d.json", i)))
		if err != nil {
			return err
		}
		if err := obj.LoadStateDict(state); err != nil {
			return fmt.Errorf("restoring registered object %d: %w", i, err)
		}
	}
	state, err := readStateFile(filepath.Join(dir, "random_states_0.json"))
	if err != nil {
		return err
	}
	if err := l.rng.LoadStateDict(state); err != nil {
		return fmt.Errorf("restoring rng state: %w", err)
	}

	log.Debug().Str("checkpoint", dir).Msg("loaded accelerator state")
	return nil
}

func (l *Local) SkipFirstBatches(d types.DataLoader, n int) types.DataLoader {
	return &skipLoader{inner: d, skip: n}
}

func (l *Local) WaitForEveryone() {
	// Single participant.
}

func (l *Local) UnwrapModel(m types.Model) types.Model {
	for {
		pm, ok := m.(*preparedModel)
		if !ok {
			return m
		}
		m = pm.inner
	}
}
