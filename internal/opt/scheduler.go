package opt

import "math"

// Scheduler adjusts the learning rate between epochs.
type Scheduler interface {
	Step()
	StepWithLoss(loss float32)
	LR() float32
}

// BaseScheduler provides default implementations for Scheduler.
type BaseScheduler struct{}

func (s BaseScheduler) Step()                     {}
func (s BaseScheduler) StepWithLoss(loss float32) {}

// ConstantLR never changes the learning rate.
type ConstantLR struct {
	BaseScheduler
	Rate float32
}

func (s ConstantLR) LR() float32 { return s.Rate }

// StepLR decays the learning rate by gamma every stepSize epochs.
type StepLR struct {
	BaseScheduler
	stepSize  int
	gamma     float32
	lastEpoch int
	lr        float32
}

func NewStepLR(stepSize int, gamma float32, initialLR float32) *StepLR {
	return &StepLR{
		stepSize: stepSize,
		gamma:    gamma,
		lr:       initialLR,
	}
}

func (s *StepLR) Step() {
	s.lastEpoch++
	if s.stepSize > 0 && s.lastEpoch%s.stepSize == 0 {
		s.lr *= s.gamma
	}
}

func (s *StepLR) LR() float32 { return s.lr }

// ExponentialLR decays the learning rate by gamma every epoch.
type ExponentialLR struct {
	BaseScheduler
	gamma float32
	lr    float32
}

func NewExponentialLR(gamma float32, initialLR float32) *ExponentialLR {
	return &ExponentialLR{
		gamma: gamma,
		lr:    initialLR,
	}
}

func (s *ExponentialLR) Step() {
	s.lr *= s.gamma
}

func (s *ExponentialLR) LR() float32 { return s.lr }

// ReduceLROnPlateau reduces the learning rate by factor when the loss has not
// improved by more than threshold for patience epochs.
type ReduceLROnPlateau struct {
	BaseScheduler
	factor    float32
	patience  int
	threshold float32
	cooldown  int
	minLR     float32
	lr        float32

	bestLoss        float32
	numBadEpochs    int
	cooldownCounter int
}

func NewReduceLROnPlateau(initialLR, factor float32, patience int, threshold float32, minLR float32) *ReduceLROnPlateau {
	return &ReduceLROnPlateau{
		factor:    factor,
		patience:  patience,
		threshold: threshold,
		minLR:     minLR,
		lr:        initialLR,
		bestLoss:  math.MaxFloat32,
	}
}

// SetCooldown sets the number of epochs to wait after a reduction before
// bad epochs are counted again.
func (s *ReduceLROnPlateau) SetCooldown(epochs int) {
	s.cooldown = epochs
}

func (s *ReduceLROnPlateau) StepWithLoss(currentLoss float32) {
	if s.cooldownCounter > 0 {
		s.cooldownCounter--
		return
	}

	if currentLoss < s.bestLoss-s.threshold {
		s.bestLoss = currentLoss
		s.numBadEpochs = 0
	} else {
		s.numBadEpochs++
	}

	if s.numBadEpochs >= s.patience {
		s.lr = max(s.lr*s.factor, s.minLR)
		s.numBadEpochs = 0
		s.cooldownCounter = s.cooldown
	}
}

func (s *ReduceLROnPlateau) LR() float32 { return s.lr }

var (
	_ Scheduler = ConstantLR{}
	_ Scheduler = (*StepLR)(nil)
	_ Scheduler = (*ExponentialLR)(nil)
	_ Scheduler = (*ReduceLROnPlateau)(nil)
)
