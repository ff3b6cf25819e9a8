// Package types holds the collaborator contracts consumed by the trainer.
// The tensor math, model architectures and distributed transport all live
// behind these interfaces in external packages.
package types

import (
	"context"
	"iter"
)

// StateDict is a plain key-value snapshot of an object's mutable state,
// suitable for inclusion in a checkpoint.
type StateDict map[string]any

// Checkpointable is implemented by objects whose state should ride along
// in every checkpoint save/restore cycle.
type Checkpointable interface {
	StateDict() StateDict
	// LoadStateDict overwrites the object's state from a snapshot. It must
	// fail if any expected key is absent.
	LoadStateDict(state StateDict) error
}

// Batch is a single unit of work pulled from a DataLoader. Its concrete
// shape is a private matter between the loader and the model.
type Batch any

// Output is whatever a model's forward pass returns: either a mapping with
// a "loss" entry or a sequence whose first element is the loss.
type Output any

// Loss is the scalar training objective produced by a forward pass. It
// keeps a handle on the computation graph so the backward pass can run.
type Loss interface {
	// Item returns the loss as a plain float for bookkeeping.
	Item() float64
	// Backward computes gradients for every parameter the loss depends on.
	Backward() error
}

// Model is a trainable network.
type Model interface {
	// SetTraining toggles training mode (dropout, batch-norm statistics).
	SetTraining(training bool)
	// Forward runs one forward pass over a batch.
	Forward(ctx context.Context, batch Batch) (Output, error)
	// StateDict exports the model parameters.
	StateDict() StateDict
	// SavePretrained writes a standalone copy of the given parameters under
	// dir, in whatever format the model library owns.
	SavePretrained(dir string, state StateDict) error
}

// ParameterCounter is optionally implemented by models that can report how
// many trainable parameters they hold.
type ParameterCounter interface {
	NumTrainableParameters() int64
}

// Optimizer updates model parameters from accumulated gradients.
type Optimizer interface {
	Step() error
	ZeroGrad()
}

// LRController is optionally implemented by optimizers that expose their
// learning rate. Schedulers need it.
type LRController interface {
	LR() float64
	SetLR(lr float64)
}

// Scheduler adjusts the optimizer's learning rate over time.
type Scheduler interface {
	Step()
}

// DataLoader yields batches of training examples.
type DataLoader interface {
	// Batches iterates the loader once, in order.
	Batches() iter.Seq[Batch]
	// BatchSize reports the number of examples per batch.
	BatchSize() int
	// Len reports the total number of examples.
	Len() int
}
