// Package loss provides cross entropy and the combined activation + cross
// entropy nodes that terminate classifier chains.
package loss

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/pkg/errors"

	"github.com/FlavioCFOliveira/minideep/internal/activations"
	"github.com/FlavioCFOliveira/minideep/internal/kernels"
	"github.com/FlavioCFOliveira/minideep/internal/layer"
)

// Combined fuses an activation with a loss. Its gradient is taken with respect
// to the activation's input.
type Combined interface {
	layer.Operation

	// CalcOutputGradient writes the gradient of the loss with respect to
	// the activation's output, the step the fused gradient skips.
	CalcOutputGradient(inp, target []float32, grad *layer.VectorGradient) error
}

// CrossEntropy computes a zero-safe cross entropy. Inputs of size 1 are
// treated as the probability of category 0 of a binary classification; wider
// inputs as multinomial probabilities.
//
// CrossEntropy has no output.
type CrossEntropy struct {
	loss    float32
	inpSize int
}

func NewCrossEntropy(inpSize int) *CrossEntropy {
	return &CrossEntropy{inpSize: inpSize}
}

// crossEntropy dispatches to the binary or multinomial kernel.
func crossEntropy(predicted, target []float32) float32 {
	if len(predicted) == 1 {
		return kernels.CrossEntropyLossTwofold(predicted, target)
	}
	return kernels.CrossEntropyLossManifold(predicted, target, len(predicted))
}

func crossEntropyGradient(predicted, target, gradOut []float32) {
	if len(predicted) == 1 {
		kernels.CrossEntropyLossGradientTwofold(predicted, target, gradOut)
	} else {
		kernels.CrossEntropyLossGradientManifold(predicted, target, len(predicted), gradOut)
	}
}

func (l *CrossEntropy) InputSize() int  { return l.inpSize }
func (l *CrossEntropy) HasOutput() bool { return false }

func (l *CrossEntropy) OutputSize() int {
	panic(layer.OutputNotProvided(fmt.Sprintf("%T", l)))
}

func (l *CrossEntropy) CalcOutput(inp []float32) []float32 {
	panic(layer.OutputNotProvided(fmt.Sprintf("%T", l)))
}

func (l *CrossEntropy) Output() []float32 {
	panic(layer.OutputNotProvided(fmt.Sprintf("%T", l)))
}

func (l *CrossEntropy) HasLoss() bool { return true }

// CalcLoss treats inp as the predicted probabilities.
func (l *CrossEntropy) CalcLoss(inp, target []float32) float32 {
	l.loss = crossEntropy(inp, target)
	return l.loss
}

func (l *CrossEntropy) Loss() float32 { return l.loss }

func (l *CrossEntropy) InitParams(rnd *rand.Rand) {}

func (l *CrossEntropy) CreateGradient() layer.Gradient {
	return layer.NewVectorGradient(l.inpSize)
}

func (l *CrossEntropy) CalcGradient(inp, target []float32, grad layer.Gradient) error {
	g, ok := grad.(*layer.VectorGradient)
	if !ok || len(g.Inp) != l.inpSize {
		return layer.ShapeMismatch("gradient %T does not fit %s", grad, l.Layout())
	}
	crossEntropyGradient(inp, target, g.Inp)
	return nil
}

func (l *CrossEntropy) Learn(grad layer.Gradient, negLearningRate float32) error {
	return nil
}

func (l *CrossEntropy) TypeShortname() string { return "ce" }
func (l *CrossEntropy) Layout() string        { return l.TypeShortname() }

func (l *CrossEntropy) WriteLayoutAndValues(sb *strings.Builder, indent int) {
	sb.WriteString(layer.Pad(indent))
	sb.WriteString(l.Layout())
	sb.WriteString(": loss: ")
	kernels.WriteSca(sb, l.loss)
}

func (l *CrossEntropy) String() string { return layer.Dump(l) }

// combined implements the loss side shared by both combined nodes.
type combined struct {
	activations.Base
	loss float32
}

func (c *combined) HasLoss() bool { return true }
func (c *combined) Loss() float32 { return c.loss }

// CalcLoss computes the loss of the output of the last CalcOutput; inp is
// not read.
func (c *combined) CalcLoss(inp, target []float32) float32 {
	c.loss = crossEntropy(c.Out, target)
	return c.loss
}

func (c *combined) WriteLayoutAndValues(sb *strings.Builder, indent int) {
	c.Base.WriteLayoutAndValues(sb, indent)
	sb.WriteString("\n")
	sb.WriteString(layer.Pad(indent))
	sb.WriteString("    loss: ")
	kernels.WriteSca(sb, c.loss)
}

func (c *combined) String() string { return layer.Dump(c) }

// SigmoidWithCrossEntropy is a sigmoid followed by cross entropy. For a single
// output the gradient collapses to y-t.
type SigmoidWithCrossEntropy struct{ combined }

func NewSigmoidWithCrossEntropy(size int) *SigmoidWithCrossEntropy {
	l := &SigmoidWithCrossEntropy{}
	l.Base = activations.NewBase("sigmoid-ce", size, l)
	return l
}

func (l *SigmoidWithCrossEntropy) CalcOutput(inp []float32) []float32 {
	kernels.SigmoidVec(inp, l.Out, len(l.Out))
	return l.Out
}

func (l *SigmoidWithCrossEntropy) CalcGradient(inp, target []float32, grad layer.Gradient) error {
	g, err := l.VectorGradient(grad)
	if err != nil {
		return err
	}
	if len(l.Out) == 1 {
		kernels.SigmoidWithCrossEntropyLossGradientTwofold(l.Out, target, g.Inp)
	} else {
		kernels.SigmoidWithCrossEntropyLossGradientManifold(l.Out, target, len(l.Out), g.Inp)
	}
	return nil
}

func (l *SigmoidWithCrossEntropy) CalcOutputGradient(inp, target []float32, grad *layer.VectorGradient) error {
	if _, err := l.VectorGradient(grad); err != nil {
		return err
	}
	crossEntropyGradient(l.Out, target, grad.Inp)
	return nil
}

// SoftmaxWithCrossEntropy is a softmax followed by multinomial cross entropy,
// the only supported way to train through a softmax.
type SoftmaxWithCrossEntropy struct{ combined }

func NewSoftmaxWithCrossEntropy(size int) *SoftmaxWithCrossEntropy {
	l := &SoftmaxWithCrossEntropy{}
	l.Base = activations.NewBase("softmax-ce", size, l)
	return l
}

func (l *SoftmaxWithCrossEntropy) CalcOutput(inp []float32) []float32 {
	kernels.SoftmaxVec(inp, l.Out, len(l.Out))
	return l.Out
}

func (l *SoftmaxWithCrossEntropy) CalcGradient(inp, target []float32, grad layer.Gradient) error {
	g, err := l.VectorGradient(grad)
	if err != nil {
		return err
	}
	kernels.SoftmaxWithCrossEntropyLossGradient(l.Out, target, len(l.Out), g.Inp)
	return nil
}

// CalcOutputGradient fails with ErrUnsupported.
func (l *SoftmaxWithCrossEntropy) CalcOutputGradient(inp, target []float32, grad *layer.VectorGradient) error {
	return errors.Wrap(layer.ErrUnsupported, "the sole softmax derivative is not supported, "+
		"because it is inefficient and usually not used")
}

var (
	_ Combined        = (*SigmoidWithCrossEntropy)(nil)
	_ Combined        = (*SoftmaxWithCrossEntropy)(nil)
	_ layer.Operation = (*CrossEntropy)(nil)
)
