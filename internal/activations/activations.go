// Package activations provides element-wise activation nodes.
package activations

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/pkg/errors"

	"github.com/FlavioCFOliveira/minideep/internal/kernels"
	"github.com/FlavioCFOliveira/minideep/internal/layer"
)

// Base holds what all activation nodes share: the output buffer and the
// parameterless parts of the layer.Operation contract. Activations map n
// inputs to n outputs.
type Base struct {
	Out []float32

	name     string
	typeName string
}

// NewBase returns a Base of the given size. owner is the node embedding it
// and names it in error messages.
func NewBase(name string, size int, owner interface{}) Base {
	return Base{
		Out:      make([]float32, size),
		name:     name,
		typeName: fmt.Sprintf("%T", owner),
	}
}

func (a *Base) InputSize() int    { return len(a.Out) }
func (a *Base) HasOutput() bool   { return true }
func (a *Base) OutputSize() int   { return len(a.Out) }
func (a *Base) Output() []float32 { return a.Out }
func (a *Base) HasLoss() bool     { return false }

func (a *Base) CalcLoss(inp, target []float32) float32 {
	panic(layer.LossNotProvided(a.typeName))
}

func (a *Base) Loss() float32 {
	panic(layer.LossNotProvided(a.typeName))
}

// InitParams does nothing; activations have no parameters.
func (a *Base) InitParams(rnd *rand.Rand) {}

func (a *Base) CreateGradient() layer.Gradient {
	return layer.NewVectorGradient(len(a.Out))
}

// Learn does nothing; activations have no parameters.
func (a *Base) Learn(grad layer.Gradient, negLearningRate float32) error {
	return nil
}

func (a *Base) TypeShortname() string { return a.name }

// TypeName returns the Go type of the node embedding a.
func (a *Base) TypeName() string { return a.typeName }

func (a *Base) Layout() string {
	return fmt.Sprintf("%s[%d]", a.name, len(a.Out))
}

func (a *Base) WriteLayoutAndValues(sb *strings.Builder, indent int) {
	sb.WriteString(layer.Pad(indent))
	sb.WriteString(a.Layout())
	sb.WriteString(": out: ")
	kernels.WriteVec(sb, a.Out, len(a.Out))
}

func (a *Base) String() string { return layer.Dump(a) }

// VectorGradient checks that grad is a vector gradient of the activation's
// size.
func (a *Base) VectorGradient(grad layer.Gradient) (*layer.VectorGradient, error) {
	g, ok := grad.(*layer.VectorGradient)
	if !ok {
		return nil, layer.ShapeMismatch("gradient must be of type %T, but it is a %T", g, grad)
	}
	if len(g.Inp) != len(a.Out) {
		return nil, layer.ShapeMismatch("gradient %s does not fit %s", g.Layout(), a.Layout())
	}
	return g, nil
}

// Identity passes its input through unchanged.
type Identity struct{ Base }

func NewIdentity(size int) *Identity {
	a := &Identity{}
	a.Base = NewBase("id", size, a)
	return a
}

func (a *Identity) CalcOutput(inp []float32) []float32 {
	kernels.AssignVecVec(inp, a.Out, len(a.Out))
	return a.Out
}

func (a *Identity) CalcGradient(inp, upstream []float32, grad layer.Gradient) error {
	g, err := a.VectorGradient(grad)
	if err != nil {
		return err
	}
	kernels.AssignVecVec(upstream, g.Inp, len(a.Out))
	return nil
}

// Relu is max(0, x).
type Relu struct{ Base }

func NewRelu(size int) *Relu {
	a := &Relu{}
	a.Base = NewBase("relu", size, a)
	return a
}

func (a *Relu) CalcOutput(inp []float32) []float32 {
	kernels.ReluVec(inp, a.Out, len(a.Out))
	return a.Out
}

func (a *Relu) CalcGradient(inp, upstream []float32, grad layer.Gradient) error {
	g, err := a.VectorGradient(grad)
	if err != nil {
		return err
	}
	kernels.ReluDerivativeVec(g.Inp, inp, upstream, len(a.Out))
	return nil
}

// Sigmoid is the logistic function 1/(1+e^-x).
type Sigmoid struct{ Base }

func NewSigmoid(size int) *Sigmoid {
	a := &Sigmoid{}
	a.Base = NewBase("sigmoid", size, a)
	return a
}

func (a *Sigmoid) CalcOutput(inp []float32) []float32 {
	kernels.SigmoidVec(inp, a.Out, len(a.Out))
	return a.Out
}

func (a *Sigmoid) CalcGradient(inp, upstream []float32, grad layer.Gradient) error {
	g, err := a.VectorGradient(grad)
	if err != nil {
		return err
	}
	kernels.SigmoidDerivativeVec(g.Inp, a.Out, upstream, len(a.Out))
	return nil
}

type Tanh struct{ Base }

func NewTanh(size int) *Tanh {
	a := &Tanh{}
	a.Base = NewBase("tanh", size, a)
	return a
}

func (a *Tanh) CalcOutput(inp []float32) []float32 {
	kernels.TanhVec(inp, a.Out, len(a.Out))
	return a.Out
}

func (a *Tanh) CalcGradient(inp, upstream []float32, grad layer.Gradient) error {
	g, err := a.VectorGradient(grad)
	if err != nil {
		return err
	}
	kernels.TanhDerivativeVec(g.Inp, a.Out, upstream, len(a.Out))
	return nil
}

// Softplus is log(1+e^x). Its derivative is evaluated on the input.
type Softplus struct{ Base }

func NewSoftplus(size int) *Softplus {
	a := &Softplus{}
	a.Base = NewBase("softplus", size, a)
	return a
}

func (a *Softplus) CalcOutput(inp []float32) []float32 {
	kernels.SoftplusVec(inp, a.Out, len(a.Out))
	return a.Out
}

func (a *Softplus) CalcGradient(inp, upstream []float32, grad layer.Gradient) error {
	g, err := a.VectorGradient(grad)
	if err != nil {
		return err
	}
	kernels.SoftplusDerivativeVec(g.Inp, inp, upstream, len(a.Out))
	return nil
}

// Swish is x·σ(x). The sigmoid of the last input is kept in Sig for the
// derivative.
type Swish struct {
	Base
	Sig []float32
}

func NewSwish(size int) *Swish {
	a := &Swish{Sig: make([]float32, size)}
	a.Base = NewBase("swish", size, a)
	return a
}

func (a *Swish) CalcOutput(inp []float32) []float32 {
	kernels.SwishVec(inp, a.Sig, a.Out, len(a.Out))
	return a.Out
}

func (a *Swish) CalcGradient(inp, upstream []float32, grad layer.Gradient) error {
	g, err := a.VectorGradient(grad)
	if err != nil {
		return err
	}
	kernels.SwishDerivativeVec(g.Inp, a.Out, a.Sig, upstream, len(a.Out))
	return nil
}

// Softmax normalizes its input to a probability distribution. It has no
// derivative of its own; train it through loss.SoftmaxWithCrossEntropy.
type Softmax struct{ Base }

func NewSoftmax(size int) *Softmax {
	a := &Softmax{}
	a.Base = NewBase("softmax", size, a)
	return a
}

func (a *Softmax) CalcOutput(inp []float32) []float32 {
	kernels.SoftmaxVec(inp, a.Out, len(a.Out))
	return a.Out
}

// CalcGradient always fails with ErrUnsupported.
func (a *Softmax) CalcGradient(inp, upstream []float32, grad layer.Gradient) error {
	return errors.Wrap(layer.ErrUnsupported, "sole softmax derivative is not supported. "+
		"Use a combined softmax instead, e.g. SoftmaxWithCrossEntropy")
}
