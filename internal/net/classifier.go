package net

import (
	"github.com/pkg/errors"

	"github.com/FlavioCFOliveira/minideep/internal/activations"
	"github.com/FlavioCFOliveira/minideep/internal/layer"
	"github.com/FlavioCFOliveira/minideep/internal/loss"
)

// Classifier is a chain of Dense layers separated by activations and ended by
// a combined activation and cross entropy loss. Hidden activations default to
// tanh. The output is sigmoid-ce for one output and softmax-ce otherwise.
type Classifier struct {
	*Chain
}

// NewClassifier builds a classifier for the given layer sizes, input first.
func NewClassifier(shape ...int) (*Classifier, error) {
	if len(shape) < 2 {
		return nil, errors.Errorf("a classifier needs at least an input and an output size, got shape %v", shape)
	}

	c := &Classifier{Chain: &Chain{}}
	for i := 0; i < len(shape)-1; i++ {
		in, out := shape[i], shape[i+1]
		c.Add(layer.NewDense(in, out))

		switch {
		case i < len(shape)-2:
			c.Add(activations.NewTanh(out))
		case out == 1:
			c.Add(loss.NewSigmoidWithCrossEntropy(out))
		default:
			c.Add(loss.NewSoftmaxWithCrossEntropy(out))
		}
	}
	return c, nil
}

// SetHiddenActivation replaces all hidden activations by fresh nodes of type t.
func (c *Classifier) SetHiddenActivation(t activations.Type) error {
	for i := 1; i < c.Len()-2; i += 2 {
		op, err := activations.New(t, c.Get(i).InputSize())
		if err != nil {
			return errors.Wrap(err, "activation function type not supported for hidden layers")
		}
		c.Set(i, op)
	}
	return nil
}

// SetOutputActivation replaces the output node. Only sigmoid and softmax are
// supported, and softmax needs at least two outputs.
func (c *Classifier) SetOutputActivation(t activations.Type) error {
	i := c.Len() - 1
	size := c.Get(i).OutputSize()

	switch t {
	case activations.TypeSigmoid:
		c.Set(i, loss.NewSigmoidWithCrossEntropy(size))
	case activations.TypeSoftmax:
		if size == 1 {
			return errors.New("softmax output activation doesn't make sense for output size 1. use sigmoid instead")
		}
		c.Set(i, loss.NewSoftmaxWithCrossEntropy(size))
	default:
		return errors.Errorf("activation function type not supported for output layer: %v", t)
	}
	return nil
}

// LayerCount returns the number of neuron layers, input layer included.
func (c *Classifier) LayerCount() int {
	return 1 + c.Len()/2
}

// LayerSize returns the neuron count of layer i, where 0 is the input.
func (c *Classifier) LayerSize(i int) int {
	if i == 0 {
		return c.Get(0).InputSize()
	}
	return c.Get(2*i - 1).OutputSize()
}

// Activity returns the activation of layer i after the last CalcOutput. The
// input layer 0 is not stored and yields an error.
func (c *Classifier) Activity(i int) ([]float32, error) {
	if i == 0 {
		return nil, errors.New("layer 0 is the input activity and it's not supported by this method")
	}
	if i < 0 || i >= c.LayerCount() {
		return nil, errors.Errorf("layer %d out of range [1, %d)", i, c.LayerCount())
	}
	return c.Get(2*i - 1).Output(), nil
}

// CreateShape interpolates layerCount layer sizes linearly from inputSize to
// outputSize, rounding half up.
func CreateShape(inputSize, outputSize, layerCount int) ([]int, error) {
	if layerCount < 2 {
		return nil, errors.Errorf("layer count must be at least 2, got %d", layerCount)
	}

	result := make([]int, layerCount)
	iMax := layerCount - 1
	for i := range result {
		size := 2*inputSize*(iMax-i)/iMax + 2*outputSize*i/iMax
		result[i] = (size + 1) / 2
	}
	return result, nil
}
