package trainer

import (
	"context"
	"fmt"
	"iter"

	"github.com/helixml/ditty/pkg/accel"
	"github.com/helixml/ditty/pkg/types"
)

// fakeLoss is a scalar loss whose backward pass increments a counter on
// the model that produced it.
type fakeLoss struct {
	value float64
	model *fakeModel
}

func (l *fakeLoss) Item() float64 {
	return l.value
}

func (l *fakeLoss) Backward() error {
	l.model.backwardCalls++
	return l.model.backwardErr
}

// fakeModel is a stand-in network producing a constant loss.
type fakeModel struct {
	training      bool
	weight        float64
	lossValue     float64
	sequenceOut   bool // return a sequence instead of a mapping
	forwardErr    error
	backwardErr   error
	forwardCalls  int
	backwardCalls int
	exports       int
	exportDirs    []string
}

func newFakeModel(loss float64) *fakeModel {
	return &fakeModel{weight: 1.5, lossValue: loss}
}

func (m *fakeModel) SetTraining(training bool) {
	m.training = training
}

func (m *fakeModel) Forward(_ context.Context, _ types.Batch) (types.Output, error) {
	m.forwardCalls++
	if m.forwardErr != nil {
		return nil, m.forwardErr
	}
	loss := &fakeLoss{value: m.lossValue, model: m}
	if m.sequenceOut {
		return []types.Loss{loss}, nil
	}
	return map[string]types.Loss{"loss": loss}, nil
}

func (m *fakeModel) StateDict() types.StateDict {
	return types.StateDict{"weight": m.weight}
}

func (m *fakeModel) LoadStateDict(state types.StateDict) error {
	v, ok := state["weight"]
	if !ok {
		return fmt.Errorf("state is missing key %q", "weight")
	}
	weight, ok := v.(float64)
	if !ok {
		return fmt.Errorf("state key %q has unexpected type %T", "weight", v)
	}
	m.weight = weight
	return nil
}

func (m *fakeModel) SavePretrained(dir string, _ types.StateDict) error {
	m.exports++
	m.exportDirs = append(m.exportDirs, dir)
	return nil
}

func (m *fakeModel) NumTrainableParameters() int64 {
	return 1
}

// sealedModel exports parameters but cannot restore them.
type sealedModel struct {
	weight float64
}

func (m *sealedModel) SetTraining(bool) {}

func (m *sealedModel) Forward(context.Context, types.Batch) (types.Output, error) {
	return nil, fmt.Errorf("not trainable")
}

func (m *sealedModel) StateDict() types.StateDict {
	return types.StateDict{"weight": m.weight}
}

func (m *sealedModel) SavePretrained(string, types.StateDict) error {
	return nil
}

// fakeOptimizer records step activity and exposes a learning rate.
type fakeOptimizer struct {
	lr        float64
	steps     int
	zeroGrads int
	stepErr   error
}

func newFakeOptimizer() *fakeOptimizer {
	return &fakeOptimizer{lr: 0.01}
}

func (o *fakeOptimizer) Step() error {
	if o.stepErr != nil {
		return o.stepErr
	}
	o.steps++
	return nil
}

func (o *fakeOptimizer) ZeroGrad() {
	o.zeroGrads++
}

func (o *fakeOptimizer) LR() float64 {
	return o.lr
}

func (o *fakeOptimizer) SetLR(lr float64) {
	o.lr = lr
}

// bareOptimizer has no learning-rate surface.
type bareOptimizer struct{}

func (bareOptimizer) Step() error { return nil }
func (bareOptimizer) ZeroGrad()   {}

// fakeLoader yields n synthetic batches.
type fakeLoader struct {
	batches   int
	batchSize int
}

func newFakeLoader(batches int) *fakeLoader {
	return &fakeLoader{batches: batches, batchSize: 2}
}

func (d *fakeLoader) Batches() iter.Seq[types.Batch] {
	return func(yield func(types.Batch) bool) {
		for i := 0; i < d.batches; i++ {
			if !yield(i) {
				return
			}
		}
	}
}

func (d *fakeLoader) BatchSize() int {
	return d.batchSize
}

func (d *fakeLoader) Len() int {
	return d.batches * d.batchSize
}

// recordingAccelerator counts accelerator traffic without touching the
// filesystem. Prepared objects pass through unwrapped.
type recordingAccelerator struct {
	project     accel.ProjectConfig
	saveCalls   int
	loadCalls   int
	loadErr     error
	barriers    int
	accumulated int
	registered  []types.Checkpointable
}

var _ accel.Accelerator = (*recordingAccelerator)(nil)

func (a *recordingAccelerator) Device() accel.Device {
	return accel.Device{Kind: "cpu", Name: "recording"}
}

func (a *recordingAccelerator) PrepareModel(m types.Model) types.Model             { return m }
func (a *recordingAccelerator) PrepareOptimizer(o types.Optimizer) types.Optimizer { return o }
func (a *recordingAccelerator) PrepareDataLoader(d types.DataLoader) types.DataLoader {
	return d
}
func (a *recordingAccelerator) PrepareScheduler(s types.Scheduler) types.Scheduler { return s }

func (a *recordingAccelerator) Accumulate(_ types.Model, fn func() error) error {
	a.accumulated++
	return fn()
}

func (a *recordingAccelerator) Backward(loss types.Loss) error {
	return loss.Backward()
}

func (a *recordingAccelerator) RegisterForCheckpointing(objs ...types.Checkpointable) {
	a.registered = append(a.registered, objs...)
}

func (a *recordingAccelerator) SaveState() (string, error) {
	a.saveCalls++
	path := fmt.Sprintf("checkpoints/checkpoint_%d", a.project.Iteration)
	a.project.Iteration++
	return path, nil
}

func (a *recordingAccelerator) LoadState(_ string) error {
	a.loadCalls++
	return a.loadErr
}

func (a *recordingAccelerator) SkipFirstBatches(d types.DataLoader, n int) types.DataLoader {
	return &skippingLoader{inner: d, skip: n}
}

func (a *recordingAccelerator) WaitForEveryone() {
	a.barriers++
}

func (a *recordingAccelerator) UnwrapModel(m types.Model) types.Model {
	return m
}

func (a *recordingAccelerator) Project() *accel.ProjectConfig {
	return &a.project
}

type skippingLoader struct {
	inner types.DataLoader
	skip  int
}

func (s *skippingLoader) Batches() iter.Seq[types.Batch] {
	return func(yield func(types.Batch) bool) {
		seen := 0
		for batch := range s.inner.Batches() {
			seen++
			if seen <= s.skip {
				continue
			}
			if !yield(batch) {
				return
			}
		}
	}
}

func (s *skippingLoader) BatchSize() int { return s.inner.BatchSize() }
func (s *skippingLoader) Len() int       { return s.inner.Len() }
