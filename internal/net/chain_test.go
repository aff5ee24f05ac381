package net

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"

	"github.com/FlavioCFOliveira/minideep/internal/activations"
	"github.com/FlavioCFOliveira/minideep/internal/layer"
	"github.com/FlavioCFOliveira/minideep/internal/loss"
)

func format(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = float64(v[i])
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i := range v {
		out[i] = float32(v[i])
	}
	return out
}

// TestChainShape tests that chains report the sizes of their ends.
func TestChainShape(t *testing.T) {
	shapes := [][]int{{2, 1}, {4, 3, 2}, {5, 8, 8, 3}, {3, 7, 1}}

	for _, shape := range shapes {
		c, err := NewClassifier(shape...)
		require.NoError(t, err)

		assert.Equal(t, shape[0], c.InputSize(), "shape %v", shape)
		assert.Equal(t, c.First().InputSize(), c.InputSize())
		assert.Equal(t, shape[len(shape)-1], c.OutputSize(), "shape %v", shape)
		assert.Equal(t, c.Last().OutputSize(), c.OutputSize())
		assert.True(t, c.HasLoss())
		assert.True(t, c.HasOutput())
	}
}

// TestChainGradientParity tests that a chain's gradient has one element per
// leaf, shaped like the leaf's own gradient.
func TestChainGradientParity(t *testing.T) {
	inner := NewChain(layer.NewDense(3, 4), activations.NewRelu(4))
	c := NewChain(inner, NewChain(NewChain(layer.NewDense(4, 2))), loss.NewSoftmaxWithCrossEntropy(2))

	g, ok := c.CreateGradient().(*ChainGradient)
	require.True(t, ok)

	flat := c.Flattened()
	require.Equal(t, flat.Len(), g.Len())
	for i := 0; i < flat.Len(); i++ {
		assert.Equal(t, flat.Get(i).CreateGradient().Layout(), g.Element(i).Layout())
	}
	assert.Equal(t, "chain_grad(dense_grad[4x3], vector_grad[4], dense_grad[2x4], vector_grad[2])", g.Layout())
}

// TestFlattened tests that flattening keeps the order and shares the leaves.
func TestFlattened(t *testing.T) {
	a, b := layer.NewDense(2, 2), activations.NewTanh(2)
	d, e := layer.NewDense(2, 1), loss.NewSigmoidWithCrossEntropy(1)
	c := NewChain(NewChain(a, b), NewChain(NewChain(d)), e)

	assert.False(t, c.IsFlat())
	flat := c.Flattened()
	assert.True(t, flat.IsFlat())
	require.Equal(t, 4, flat.Len())

	for i, op := range []layer.Operation{a, b, d, e} {
		assert.Same(t, op, flat.Get(i), "leaf %d", i)
	}
	assert.Same(t, flat, flat.Flattened(), "a flat chain flattens to itself")

	// a leaf modified through the flat chain is modified in c as well
	flat.Get(0).(*layer.Dense).Weights[0] = 42
	assert.Equal(t, float32(42), a.Weights[0])

	var visited []layer.Operation
	for it := c.Iterator(); it.Next(); {
		visited = append(visited, it.Op())
	}
	assert.Equal(t, []layer.Operation{a, b, d, e}, visited)
}

// TestEmptyChain tests that an empty chain panics on element queries.
func TestEmptyChain(t *testing.T) {
	c := NewChain()
	assert.PanicsWithError(t, layer.ErrEmptyChain.Error(), func() { c.InputSize() })
	assert.PanicsWithError(t, layer.ErrEmptyChain.Error(), func() { c.Last() })
	assert.Equal(t, "chain()", layer.Dump(c))

	it := c.Iterator()
	assert.False(t, it.Next())
}

// TestChainForward tests that elements without output are skipped and that
// the loss sees the last output.
func TestChainForward(t *testing.T) {
	relu := activations.NewRelu(2)
	ce := loss.NewCrossEntropy(2)
	c := NewChain(relu, ce)

	inp := []float32{-1, 0.5}
	target := []float32{1, 0}

	out := c.CalcOutput(inp)
	assert.Equal(t, []float32{0, 0.5}, out)
	assert.False(t, c.HasOutput())

	got := c.CalcLoss(inp, target)
	want := loss.NewCrossEntropy(2).CalcLoss([]float32{0, 0.5}, target)
	assert.Equal(t, want, got)
	assert.Equal(t, want, c.Loss())

	assert.Equal(t, "chain(relu[2], ce)", c.Layout())
	assert.Equal(t, "chain(relu[2], ce):\n    relu[2]: out: [0 0.5]\n    ce: loss: "+format(got), layer.Dump(c))
}

// TestChainGradientMismatch tests that foreign gradients are rejected.
func TestChainGradientMismatch(t *testing.T) {
	c := NewChain(layer.NewDense(2, 2), loss.NewSoftmaxWithCrossEntropy(2))
	inp, target := []float32{1, 2}, []float32{0, 1}
	c.CalcOutput(inp)

	err := c.CalcGradient(inp, target, layer.NewVectorGradient(2))
	assert.ErrorIs(t, err, layer.ErrShapeMismatch)

	short := &ChainGradient{}
	short.AddElement(layer.NewDenseGradient(2, 2))
	assert.ErrorIs(t, c.CalcGradient(inp, target, short), layer.ErrShapeMismatch)
	assert.ErrorIs(t, c.Learn(short, -1), layer.ErrShapeMismatch)
}

// TestChainGradientAddMismatch tests that a failed Add leaves the receiver
// untouched, even if only a later element is incompatible.
func TestChainGradientAddMismatch(t *testing.T) {
	a := NewChain(layer.NewDense(4, 3), activations.NewRelu(3)).CreateGradient()
	b := NewChain(layer.NewDense(4, 3), activations.NewRelu(2)).CreateGradient()
	c := NewChain(layer.NewDense(4, 3)).CreateGradient()

	dense := a.(*ChainGradient).Element(0).(*layer.DenseGradient)
	for i := range dense.Weights {
		dense.Weights[i] = 1
	}
	for i := range b.(*ChainGradient).Element(0).(*layer.DenseGradient).Weights {
		b.(*ChainGradient).Element(0).(*layer.DenseGradient).Weights[i] = 5
	}
	before := layer.Dump(a)

	assert.ErrorIs(t, a.Add(b), layer.ErrShapeMismatch)
	assert.ErrorIs(t, a.Add(c), layer.ErrShapeMismatch)
	assert.ErrorIs(t, a.Add(layer.NewVectorGradient(3)), layer.ErrShapeMismatch)
	assert.Equal(t, before, layer.Dump(a))

	require.NoError(t, a.Add(a.(*ChainGradient)))
	assert.Equal(t, float32(2), dense.Weights[0])

	a.Mul(0.5)
	assert.Equal(t, float32(1), dense.Weights[0])
	a.Clear()
	assert.Equal(t, float32(0), dense.Weights[0])

	assert.PanicsWithError(t, ErrEmptyGradient.Error(), func() { (&ChainGradient{}).InputGrad() })
}

func newTestChain() (*Chain, *layer.Dense) {
	d := layer.NewDense(3, 4)
	c := NewChain(
		d,
		activations.NewTanh(4),
		NewChain(layer.NewDense(4, 3), activations.NewSwish(3)),
		layer.NewDense(3, 2),
		loss.NewSoftmaxWithCrossEntropy(2),
	)
	c.InitParams(rand.New(rand.NewSource(3)))
	return c, d
}

// TestChainGradientFiniteDifferences tests back propagation against central
// finite differences of the loss, with respect to the input and to the
// weights of the first layer.
func TestChainGradientFiniteDifferences(t *testing.T) {
	c, first := newTestChain()
	inp := []float32{0.5, -0.25, 1}
	target := []float32{0, 1}

	lossAt := func(x []float32) float64 {
		c.CalcOutput(x)
		return float64(c.CalcLoss(x, target))
	}

	c.CalcOutput(inp)
	c.CalcLoss(inp, target)
	grad := c.CreateGradient().(*ChainGradient)
	require.NoError(t, c.CalcGradient(inp, target, grad))

	settings := &fd.Settings{Formula: fd.Central, Step: 1e-2}

	wantInp := fd.Gradient(nil, func(x []float64) float64 {
		return lossAt(toFloat32(x))
	}, toFloat64(inp), settings)
	assert.InDeltaSlice(t, wantInp, toFloat64(grad.InputGrad()), 1e-3, "input gradient")

	weights := append([]float32(nil), first.Weights...)
	wantW := fd.Gradient(nil, func(w []float64) float64 {
		copy(first.Weights, toFloat32(w))
		defer copy(first.Weights, weights)
		return lossAt(inp)
	}, toFloat64(weights), settings)
	gotW := grad.Element(0).(*layer.DenseGradient).Weights
	assert.InDeltaSlice(t, wantW, toFloat64(gotW), 1e-3, "weight gradient")
}

// TestChainLearn tests that a step against the gradient lowers the loss and
// that nested and flat chains learn alike.
func TestChainLearn(t *testing.T) {
	c, _ := newTestChain()
	flat, _ := newTestChain()
	flat = flat.Flattened()

	inp := []float32{0.5, -0.25, 1}
	target := []float32{1, 0}

	step := func(c *Chain) float32 {
		c.CalcOutput(inp)
		l := c.CalcLoss(inp, target)
		g := c.CreateGradient()
		require.NoError(t, c.CalcGradient(inp, target, g))
		require.NoError(t, c.Learn(g, -0.1))
		return l
	}

	before := step(c)
	assert.Equal(t, before, step(flat))

	c.CalcOutput(inp)
	after := c.CalcLoss(inp, target)
	assert.Less(t, after, before)

	flat.CalcOutput(inp)
	assert.Equal(t, after, flat.CalcLoss(inp, target))
	assert.Equal(t, layer.Dump(c.Flattened()), layer.Dump(flat))
}
