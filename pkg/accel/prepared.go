package accel

import (
	"context"
	"iter"

	"github.com/helixml/ditty/pkg/types"
)

// preparedModel is the wrapped form of a model on the local backend. It
// records the device placement and delegates everything else, so that
// UnwrapModel has something real to undo.
type preparedModel struct {
	inner  types.Model
	device Device
}

var _ types.Model = (*preparedModel)(nil)

func (m *preparedModel) SetTraining(training bool) {
	m.inner.SetTraining(training)
}

func (m *preparedModel) Forward(ctx context.Context, batch types.Batch) (types.Output, error) {
	return m.inner.Forward(ctx, batch)
}

func (m *preparedModel) StateDict() types.StateDict {
	return m.inner.StateDict()
}

func (m *preparedModel) SavePretrained(dir string, state types.StateDict) error {
	return m.inner.SavePretrained(dir, state)
}

// preparedOptimizer gates Step and ZeroGrad on the accelerator's
// accumulation boundary, so callers can invoke them every batch and still
// get gradient accumulation.
type preparedOptimizer struct {
	inner types.Optimizer
	acc   *Local
}

var _ types.Optimizer = (*preparedOptimizer)(nil)

func (o *preparedOptimizer) Step() error {
	if !o.acc.syncGradients() {
		return nil
	}
	return o.inner.Step()
}

func (o *preparedOptimizer) ZeroGrad() {
	if !o.acc.syncGradients() {
		return
	}
	o.inner.ZeroGrad()
}

// preparedScheduler steps only at accumulation boundaries, so the
// learning rate decays per optimizer step, not per batch.
type preparedScheduler struct {
	inner types.Scheduler
	acc   *Local
}

var _ types.Scheduler = (*preparedScheduler)(nil)

func (s *preparedScheduler) Step() {
	if !s.acc.syncGradients() {
		return
	}
	s.inner.Step()
}

// skipLoader discards the first skip batches of each iteration, for
// resuming mid-epoch.
type skipLoader struct {
	inner types.DataLoader
	skip  int
}

var _ types.DataLoader = (*skipLoader)(nil)

func (s *skipLoader) Batches() iter.Seq[types.Batch] {
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

func (s *skipLoader) BatchSize() int {
	return s.inner.BatchSize()
}

func (s *skipLoader) Len() int {
	return s.inner.Len()
}
