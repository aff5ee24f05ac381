// Package layer defines the Operation and Gradient contracts of minideep and
// provides the Dense affine layer with its gradients.
package layer

import (
	"math/rand"
	"strings"
)

// Operation is a differentiable node working on float32 vectors.
//
// CalcOutput repopulates the buffer returned by Output and never reallocates
// it. Nodes without an output (pure losses) panic on OutputSize, Output and
// CalcOutput; nodes without a loss panic on CalcLoss and Loss. The panic value
// is an error wrapping ErrNotProvided.
type Operation interface {
	InputSize() int
	HasOutput() bool
	OutputSize() int
	CalcOutput(inp []float32) []float32
	Output() []float32

	HasLoss() bool
	CalcLoss(inp, target []float32) float32
	Loss() float32

	// InitParams draws all learnable parameters from rnd.
	InitParams(rnd *rand.Rand)

	CreateGradient() Gradient

	// CalcGradient writes the gradient of the loss with respect to the
	// node's input and parameters into grad. inp is the input the node saw in
	// its last CalcOutput. targetOrUpstream is the target if the node has a
	// loss, else the gradient of the loss with respect to the node's output.
	CalcGradient(inp, targetOrUpstream []float32, grad Gradient) error

	// Learn adds negLearningRate times grad to the parameters.
	Learn(grad Gradient, negLearningRate float32) error

	TypeShortname() string
	Layout() string
	WriteLayoutAndValues(sb *strings.Builder, indent int)
}

// Gradient accumulates partial derivatives mirroring the differentiable state
// of the Operation that created it.
type Gradient interface {
	InputGrad() []float32
	Clear()

	// Add accumulates other element-wise. It fails with ErrShapeMismatch,
	// leaving the receiver untouched, unless other has the exact same shape.
	Add(other Gradient) error
	EnsureCompatibleForAdd(other Gradient) error
	Mul(factor float32)

	TypeShortname() string
	Layout() string
	WriteLayoutAndValues(sb *strings.Builder, indent int)
}

// Dump returns the layout and values of v as written by WriteLayoutAndValues.
func Dump(v interface {
	WriteLayoutAndValues(sb *strings.Builder, indent int)
}) string {
	var sb strings.Builder
	v.WriteLayoutAndValues(&sb, 0)
	return sb.String()
}

// Pad returns n spaces.
func Pad(n int) string {
	return strings.Repeat(" ", n)
}
