// Package trainer wires a model, optimizer, scheduler and data loader to an
// accelerator and runs the epoch/step loop with periodic checkpointing and
// exit-safe saves. There is no tensor math here; everything stateful is
// prepared by, and persisted through, the accelerator.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/helixml/ditty/pkg/accel"
	"github.com/helixml/ditty/pkg/rng"
	"github.com/helixml/ditty/pkg/system"
	"github.com/helixml/ditty/pkg/types"
)

const (
	defaultOutputDir       = "./output"
	defaultCheckpointEvery = 1000
	distDirName            = "dist"
	checkpointsDirName     = "checkpoints"
)

// ErrNoSteps is returned when a training run completes without taking a
// single step, leaving the mean loss undefined.
var ErrNoSteps = errors.New("no training steps were taken")

// Params configures a Trainer. Model, Optimizer and Dataset are required;
// everything else has a default.
type Params struct {
	Model     types.Model
	Optimizer types.Optimizer
	Dataset   types.DataLoader

	// Scheduler is used as-is when set. When nil and scheduling is
	// enabled, a step-decay scheduler is constructed.
	Scheduler types.Scheduler
	// UseScheduler defaults to true.
	UseScheduler *bool

	// GradAccum is the gradient-accumulation factor. Defaults to 1.
	GradAccum int
	// Accelerator overrides the default local accelerator, for distributed
	// or mixed-precision backends. An injected accelerator owns its own
	// RNG and options: Seed must be unset and AcceleratorOptions is
	// ignored.
	Accelerator accel.Accelerator
	// AcceleratorOptions are merged over the trainer's defaults when the
	// default accelerator is built; caller values win on collision.
	AcceleratorOptions accel.Options

	// OutputDir receives checkpoints, the standalone model export and the
	// progression record. Defaults to ./output.
	OutputDir string
	// CheckpointEvery is the full-checkpoint cadence in batches. Defaults
	// to 1000.
	CheckpointEvery int
	// LoadCheckpoint resumes from the latest checkpoint on start.
	LoadCheckpoint bool
	// Seed, when set, seeds the default accelerator's RNG context.
	Seed *uint64

	// Cleanup receives the exit-time checkpoint hook. Defaults to the
	// process-wide manager.
	Cleanup *system.CleanupManager
}

// TrainOptions bounds one Train invocation.
type TrainOptions struct {
	// Epochs is the requested epoch count. Defaults to 1.
	Epochs int
	// MaxSteps, when set, ends an epoch's batch loop after processing the
	// batch at that index.
	MaxSteps *int
}

// Trainer orchestrates a training run. Construct with New; the zero value
// is not usable.
type Trainer struct {
	model     types.Model
	optimizer types.Optimizer
	dataset   types.DataLoader
	scheduler types.Scheduler

	useScheduler    bool
	gradAccum       int
	outputDir       string
	checkpointEvery int
	loadCheckpoint  bool
	batchSize       int

	accelerator accel.Accelerator
	device      accel.Device
	state       *TrainerState

	cleanup  *system.CleanupManager
	hookName string
	runID    string
	logger   zerolog.Logger
}

// New prepares all stateful objects through the accelerator and registers
// the scheduler and a fresh TrainerState with its checkpoint mechanism.
// The output directory is created if missing.
func New(params Params) (*Trainer, error) {
	if params.Model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if params.Optimizer == nil {
		return nil, fmt.Errorf("optimizer is required")
	}
	if params.Dataset == nil {
		return nil, fmt.Errorf("dataset is required")
	}
	if params.Accelerator != nil && params.Seed != nil {
		return nil, fmt.Errorf("seed cannot be combined with an injected accelerator, seed the accelerator directly")
	}

	outputDir := params.OutputDir
	if outputDir == "" {
		outputDir = defaultOutputDir
	}
	gradAccum := params.GradAccum
	if gradAccum <= 0 {
		gradAccum = 1
	}
	checkpointEvery := params.CheckpointEvery
	if checkpointEvery <= 0 {
		checkpointEvery = defaultCheckpointEvery
	}
	useScheduler := true
	if params.UseScheduler != nil {
		useScheduler = *params.UseScheduler
	}

	source := rng.NewUnseeded()
	if params.Seed != nil {
		source = rng.New(*params.Seed)
	}

	if err := system.EnsureDir(outputDir); err != nil {
		return nil, err
	}

	scheduler := params.Scheduler
	if useScheduler && scheduler == nil {
		var err error
		scheduler, err = defaultSchedulerFactory(params.Optimizer)
		if err != nil {
			return nil, fmt.Errorf("building default scheduler: %w", err)
		}
	}

	opts := accel.Options{
		GradAccumulationSteps: gradAccum,
		ProjectDir:            outputDir,
		Project: &accel.ProjectConfig{
			ProjectDir:                outputDir,
			AutomaticCheckpointNaming: true,
		},
		RNG: source,
	}
	opts = opts.Merge(params.AcceleratorOptions)

	accelerator := params.Accelerator
	if accelerator == nil {
		var err error
		accelerator, err = accel.NewLocal(opts)
		if err != nil {
			return nil, fmt.Errorf("building accelerator: %w", err)
		}
	}

	cleanup := params.Cleanup
	if cleanup == nil {
		cleanup = system.Default()
	}

	runID := system.NewRunID()
	t := &Trainer{
		useScheduler:    useScheduler,
		gradAccum:       gradAccum,
		outputDir:       outputDir,
		checkpointEvery: checkpointEvery,
		loadCheckpoint:  params.LoadCheckpoint,
		batchSize:       params.Dataset.BatchSize(),
		accelerator:     accelerator,
		device:          accelerator.Device(),
		cleanup:         cleanup,
		hookName:        "trainer-checkpoint-" + runID,
		runID:           runID,
		logger:          log.With().Str("run_id", runID).Logger(),
	}

	t.model = accelerator.PrepareModel(params.Model)
	t.optimizer = accelerator.PrepareOptimizer(params.Optimizer)
	t.dataset = accelerator.PrepareDataLoader(params.Dataset)
	if useScheduler {
		t.scheduler = accelerator.PrepareScheduler(scheduler)
		// The unprepared scheduler holds the state worth checkpointing.
		if cp, ok := scheduler.(types.Checkpointable); ok {
			accelerator.RegisterForCheckpointing(cp)
		} else {
			t.logger.Warn().Msgf("scheduler %T has no state dict, it will not be checkpointed", scheduler)
		}
	}

	t.state = &TrainerState{}
	accelerator.RegisterForCheckpointing(t.state)

	return t, nil
}

// Device reports the device the accelerator actually placed the run on.
func (t *Trainer) Device() accel.Device {
	return t.device
}

// State exposes the trainer's progress record.
func (t *Trainer) State() *TrainerState {
	return t.state
}

// Train runs the epoch loop and returns the mean loss over all steps
// taken. On completion one final full checkpoint is written and the
// exit-time hook is removed.
func (t *Trainer) Train(ctx context.Context, opts TrainOptions) (float64, error) {
	epochs := opts.Epochs
	if epochs <= 0 {
		epochs = 1
	}

	t.logBanner(epochs, opts.MaxSteps)

	t.model.SetTraining(true)

	if t.loadCheckpoint {
		if err := t.resume(); err != nil {
			return 0, err
		}
	} else {
		// First run: capture the initial, untrained parameters.
		if err := t.saveDist(); err != nil {
			return 0, err
		}
	}

	t.cleanup.Register(t.hookName, func(context.Context) error {
		return t.save()
	})

	for epoch := t.state.Epoch; epoch < epochs; epoch++ {
		if err := t.runEpoch(ctx, epoch, opts.MaxSteps); err != nil {
			return 0, err
		}
		t.state.Epoch++
	}

	t.cleanup.Deregister(t.hookName)
	if err := t.save(); err != nil {
		return 0, err
	}

	if t.state.Steps == 0 {
		return 0, ErrNoSteps
	}
	return t.state.GlobalLoss / float64(t.state.Steps), nil
}

func (t *Trainer) runEpoch(ctx context.Context, epoch int, maxSteps *int) error {
	dataset := t.dataset
	if t.state.Steps > 0 {
		// Resuming mid-epoch: fast-forward past the batches already seen.
		dataset = t.accelerator.SkipFirstBatches(t.dataset, t.state.Steps)
	}

	batchIdx := -1
	for batch := range dataset.Batches() {
		batchIdx++

		err := t.accelerator.Accumulate(t.model, func() error {
			return t.step(ctx, epoch, batchIdx, batch)
		})
		if err != nil {
			return err
		}
		t.state.Steps++

		if maxSteps != nil && batchIdx >= *maxSteps {
			break
		}
		if batchIdx%t.checkpointEvery == 0 {
			if err := t.save(); err != nil {
				return err
			}
		}
	}
	return nil
}

// step runs one forward/backward/optimize pass inside the accelerator's
// accumulation scope.
func (t *Trainer) step(ctx context.Context, epoch, batchIdx int, batch types.Batch) error {
	outputs, err := t.model.Forward(ctx, batch)
	if err != nil {
		return fmt.Errorf("forward pass: %w", err)
	}
	loss, err := lossFromOutput(outputs)
	if err != nil {
		return err
	}

	if err := t.accelerator.Backward(loss); err != nil {
		return err
	}
	if err := t.optimizer.Step(); err != nil {
		return fmt.Errorf("optimizer step: %w", err)
	}
	if t.useScheduler {
		t.scheduler.Step()
	}
	t.optimizer.ZeroGrad()

	batchLoss := loss.Item() / float64(t.gradAccum)
	t.logger.Info().
		Int("epoch", epoch).
		Int("batch", batchIdx).
		Float64("loss", batchLoss).
		Msg("training step")
	t.state.GlobalLoss += batchLoss

	return nil
}

// resume restores full state from the latest checkpoint, or falls back to
// a first-run export when nothing is there to load.
func (t *Trainer) resume() error {
	dir := filepath.Join(t.outputDir, checkpointsDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			t.logger.Warn().Err(err).Msg("no checkpoint found, starting from scratch")
			return t.saveDist()
		}
		return fmt.Errorf("listing checkpoints: %w", err)
	}
	if len(entries) == 0 {
		t.logger.Warn().Str("dir", dir).Msg("no checkpoint found, starting from scratch")
		return t.saveDist()
	}

	// os.ReadDir sorts by name; the last entry is assumed to be the most
	// recent. That only holds while checkpoint numbers sort
	// lexicographically.
	last := entries[len(entries)-1].Name()
	t.logger.Info().Str("checkpoint", last).Msg("trying to load checkpoint")

	if err := t.accelerator.LoadState(filepath.Join(dir, last)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			t.logger.Warn().Err(err).Msg("no checkpoint found, starting from scratch")
			return t.saveDist()
		}
		return fmt.Errorf("loading checkpoint %s: %w", last, err)
	}

	// Bump the iteration counter so the next checkpoint name is one past
	// the one we restored from.
	idx := strings.LastIndex(last, "_")
	if idx < 0 || idx == len(last)-1 {
		return fmt.Errorf("checkpoint name %q has no numeric suffix", last)
	}
	num, err := strconv.Atoi(last[idx+1:])
	if err != nil {
		return fmt.Errorf("parsing checkpoint name %q: %w", last, err)
	}
	t.accelerator.Project().Iteration = num + 1

	t.logger.Info().Str("checkpoint", last).Msg("checkpoint loaded")
	return nil
}

// save writes a full resumable checkpoint plus the standalone model export
// and the progression record.
func (t *Trainer) save() error {
	t.accelerator.WaitForEveryone()
	path, err := t.accelerator.SaveState()
	if err != nil {
		return fmt.Errorf("saving accelerator state: %w", err)
	}
	t.logger.Debug().Str("checkpoint", path).Msg("full checkpoint saved")

	if err := t.writeProgression(); err != nil {
		// Progress reporting must not take down a run that just saved.
		t.logger.Warn().Err(err).Msg("failed to write progression record")
	}

	return t.saveDist()
}

// saveDist exports a standalone, non-distributed copy of the unwrapped
// model's parameters. The dist directory is overwritten each time.
func (t *Trainer) saveDist() error {
	model := t.accelerator.UnwrapModel(t.model)
	state := model.StateDict()
	dir := filepath.Join(t.outputDir, distDirName)
	if err := model.SavePretrained(dir, state); err != nil {
		return fmt.Errorf("exporting model to %s: %w", dir, err)
	}
	return nil
}

func (t *Trainer) logBanner(epochs int, maxSteps *int) {
	event := t.logger.Info().
		Str("device", t.device.String()).
		Str("num_examples", humanize.Comma(int64(t.dataset.Len()))).
		Int("num_epochs", epochs).
		Int("batch_size_per_device", t.batchSize).
		Int("gradient_accumulation_steps", t.gradAccum)
	if maxSteps != nil {
		event = event.Int("total_optimization_steps", *maxSteps)
	}
	if counter, ok := t.accelerator.UnwrapModel(t.model).(types.ParameterCounter); ok {
		event = event.Str("trainable_parameters", humanize.Comma(counter.NumTrainableParameters()))
	}
	event.Msg("running training")
}

// lossFromOutput extracts the loss from a forward pass: a mapping with a
// "loss" entry or a sequence whose first element is the loss.
func lossFromOutput(outputs types.Output) (types.Loss, error) {
	switch v := outputs.(type) {
	case map[string]types.Loss:
		loss, ok := v["loss"]
		if !ok {
			return nil, fmt.Errorf("model output mapping has no loss entry")
		}
		return loss, nil
	case map[string]any:
		raw, ok := v["loss"]
		if !ok {
			return nil, fmt.Errorf("model output mapping has no loss entry")
		}
		loss, ok := raw.(types.Loss)
		if !ok {
			return nil, fmt.Errorf("model output loss entry has unexpected type %T", raw)
		}
		return loss, nil
	case []types.Loss:
		if len(v) == 0 {
			return nil, fmt.Errorf("model output sequence is empty")
		}
		return v[0], nil
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("model output sequence is empty")
		}
		loss, ok := v[0].(types.Loss)
		if !ok {
			return nil, fmt.Errorf("model output first element has unexpected type %T", v[0])
		}
		return loss, nil
	default:
		return nil, fmt.Errorf("unsupported model output type %T", outputs)
	}
}
