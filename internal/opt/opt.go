// Package opt provides optimization algorithms.
package opt

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/FlavioCFOliveira/minideep/internal/layer"
	"github.com/FlavioCFOliveira/minideep/internal/stats"
)

// Optimizer trains a model for one pass over a sample set.
type Optimizer interface {
	// Run trains model on the parallel sample arrays inp and target. A
	// batchSize of -1 uses the whole set as one batch. If rnd is not nil and
	// there is more than one batch, the samples are visited in a random
	// order drawn from rnd.
	Run(model layer.Operation, inp, target [][]float32, batchSize int, learningRate float32, rnd *rand.Rand) (*stats.Stats, error)
}

// GradientDescent is mini-batch gradient descent. Per batch the sample
// gradients are summed and the model learns the sum scaled by
// -learningRate/batchSize, where batchSize is the size of that batch.
type GradientDescent struct{}

func (GradientDescent) Run(model layer.Operation, inp, target [][]float32, batchSize int, learningRate float32, rnd *rand.Rand) (*stats.Stats, error) {
	if len(inp) != len(target) {
		return nil, errors.Errorf("inp and target must be of equal length, but they are "+
			"len(inp) = %d and len(target) = %d", len(inp), len(target))
	}
	if batchSize == -1 {
		batchSize = len(inp)
	}
	if batchSize < 1 && len(inp) > 0 {
		return nil, errors.Errorf("batch size must be positive or -1, got %d", batchSize)
	}

	s := stats.New(CategoryCount(model))

	sampleGrad := model.CreateGradient()
	batchGrad := model.CreateGradient()

	var order []int
	if rnd != nil && batchSize < len(inp) {
		order = rnd.Perm(len(inp))
	}

	for i := 0; i < len(inp); {
		currBatchSize := min(batchSize, len(inp)-i)
		currBatchEnd := i + currBatchSize

		batchGrad.Clear()
		for ; i < currBatchEnd; i++ {
			idx := i
			if order != nil {
				idx = order[i]
			}
			x, t := inp[idx], target[idx]

			model.CalcOutput(x)
			loss := model.CalcLoss(x, t)

			if err := model.CalcGradient(x, t, sampleGrad); err != nil {
				return nil, errors.Wrapf(err, "sample %d", idx)
			}
			if err := batchGrad.Add(sampleGrad); err != nil {
				return nil, err
			}

			s.Aggregate(stats.RealityCategory(t), predicted(model), loss)
		}

		if err := model.Learn(batchGrad, -learningRate/float32(currBatchSize)); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// CategoryCount returns the number of categories the statistics of model
// distinguish: its output size, but at least 2, or 2 if it has no output.
func CategoryCount(model layer.Operation) int {
	if !model.HasOutput() {
		return 2
	}
	return max(2, model.OutputSize())
}

func predicted(model layer.Operation) int {
	if !model.HasOutput() {
		return 0
	}
	return stats.PredictedCategory(model.Output())
}

var _ Optimizer = GradientDescent{}
