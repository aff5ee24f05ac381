package net

import (
	"io"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/FlavioCFOliveira/minideep/internal/layer"
	"github.com/FlavioCFOliveira/minideep/internal/opt"
	"github.com/FlavioCFOliveira/minideep/internal/stats"
)

// Trainer runs an optimizer over a sample set for a number of epochs.
type Trainer struct {
	Model     layer.Operation
	Optimizer opt.Optimizer // GradientDescent if nil

	// BatchSize is the number of samples per learning step; 0 or -1 use
	// the whole set.
	BatchSize int

	// LearningRate is used unless Scheduler is set. The scheduler is
	// stepped after every epoch.
	LearningRate float32
	Scheduler    opt.Scheduler

	// Shuffle, if set, draws the sample order of every epoch.
	Shuffle *rand.Rand

	Callbacks []Callback

	// Out receives the messages of callbacks; os.Stdout if nil.
	Out io.Writer

	stopped bool
}

// LR returns the current learning rate.
func (t *Trainer) LR() float32 {
	if t.Scheduler != nil {
		return t.Scheduler.LR()
	}
	return t.LearningRate
}

// Stop ends Fit after the current epoch.
func (t *Trainer) Stop() { t.stopped = true }

// Fit trains the model for at most epochs epochs and returns the statistics
// of the last one.
func (t *Trainer) Fit(inp, target [][]float32, epochs int) (*stats.Stats, error) {
	if t.Model == nil {
		return nil, errors.New("trainer has no model")
	}
	optimizer := t.Optimizer
	if optimizer == nil {
		optimizer = opt.GradientDescent{}
	}
	batchSize := t.BatchSize
	if batchSize == 0 {
		batchSize = -1
	}

	t.stopped = false
	for _, cb := range t.Callbacks {
		cb.OnTrainBegin(t)
	}
	defer func() {
		for _, cb := range t.Callbacks {
			cb.OnTrainEnd(t)
		}
	}()

	var last *stats.Stats
	for epoch := 0; epoch < epochs && !t.stopped; epoch++ {
		for _, cb := range t.Callbacks {
			cb.OnEpochBegin(epoch, t)
		}

		s, err := optimizer.Run(t.Model, inp, target, batchSize, t.LR(), t.Shuffle)
		if err != nil {
			return nil, errors.Wrapf(err, "epoch %d", epoch)
		}
		last = s

		for _, cb := range t.Callbacks {
			cb.OnEpochEnd(epoch, s, t)
		}

		if t.Scheduler != nil {
			t.Scheduler.Step()
			t.Scheduler.StepWithLoss(s.Loss())
		}
	}
	return last, nil
}

// Evaluate runs model forward on every sample and aggregates losses and
// predictions without learning.
func Evaluate(model layer.Operation, inp, target [][]float32) (*stats.Stats, error) {
	if len(inp) != len(target) {
		return nil, errors.Errorf("inp and target must be of equal length, but they are "+
			"len(inp) = %d and len(target) = %d", len(inp), len(target))
	}

	s := stats.New(opt.CategoryCount(model))
	for i := range inp {
		model.CalcOutput(inp[i])
		loss := model.CalcLoss(inp[i], target[i])

		predicted := 0
		if model.HasOutput() {
			predicted = stats.PredictedCategory(model.Output())
		}
		s.Aggregate(stats.RealityCategory(target[i]), predicted, loss)
	}
	return s, nil
}
