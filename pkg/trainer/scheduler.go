package trainer

import (
	"fmt"

	"github.com/helixml/ditty/pkg/types"
)

const (
	defaultStepSize = 30
	defaultGamma    = 0.1
)

// StepLR decays the optimizer's learning rate by gamma once every stepSize
// calls to Step. It is the default scheduler when the trainer is asked to
// schedule but given nothing.
type StepLR struct {
	opt      types.LRController
	stepSize int
	gamma    float64
	count    int
}

var (
	_ types.Scheduler      = (*StepLR)(nil)
	_ types.Checkpointable = (*StepLR)(nil)
)

func NewStepLR(opt types.LRController, stepSize int, gamma float64) *StepLR {
	return &StepLR{opt: opt, stepSize: stepSize, gamma: gamma}
}

func (s *StepLR) Step() {
	s.count++
	if s.count%s.stepSize == 0 {
		s.opt.SetLR(s.opt.LR() * s.gamma)
	}
}

func (s *StepLR) StateDict() types.StateDict {
	return types.StateDict{
		"last_step": s.count,
		"lr":        s.opt.LR(),
	}
}

func (s *StepLR) LoadStateDict(state types.StateDict) error {
	count, err := intFromState(state, "last_step")
	if err != nil {
		return err
	}
	lr, err := floatFromState(state, "lr")
	if err != nil {
		return err
	}
	s.count = count
	s.opt.SetLR(lr)
	return nil
}

// defaultSchedulerFactory builds the fallback step-decay scheduler.
var defaultSchedulerFactory = func(opt types.Optimizer) (types.Scheduler, error) {
	lc, ok := opt.(types.LRController)
	if !ok {
		return nil, fmt.Errorf("optimizer %T does not expose a learning rate, pass an explicit scheduler", opt)
	}
	return NewStepLR(lc, defaultStepSize, defaultGamma), nil
}
