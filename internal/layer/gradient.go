package layer

import (
	"fmt"
	"strings"

	"github.com/FlavioCFOliveira/minideep/internal/kernels"
)

// VectorGradient holds only the gradient with respect to a node's input.
// It belongs to parameterless nodes.
type VectorGradient struct {
	Inp []float32
}

// NewVectorGradient creates a zeroed gradient for inputs of the given size.
func NewVectorGradient(inpSize int) *VectorGradient {
	return &VectorGradient{Inp: make([]float32, inpSize)}
}

func (g *VectorGradient) InputGrad() []float32 { return g.Inp }

func (g *VectorGradient) Clear() {
	kernels.AssignVecSca(g.Inp, 0, len(g.Inp))
}

func (g *VectorGradient) EnsureCompatibleForAdd(other Gradient) error {
	og, ok := other.(*VectorGradient)
	if !ok {
		return ShapeMismatch("other gradient of type %T is not the same gradient type as "+
			"this gradient, which is a %T", other, g)
	}
	if len(og.Inp) != len(g.Inp) {
		return ShapeMismatch("other gradient's input length of %d is not the same as "+
			"this gradient's input length of %d", len(og.Inp), len(g.Inp))
	}
	return nil
}

func (g *VectorGradient) Add(other Gradient) error {
	if err := g.EnsureCompatibleForAdd(other); err != nil {
		return err
	}
	kernels.AddVec(g.Inp, other.(*VectorGradient).Inp, len(g.Inp))
	return nil
}

func (g *VectorGradient) Mul(factor float32) {
	kernels.MulVecSca(g.Inp, factor, len(g.Inp))
}

func (g *VectorGradient) TypeShortname() string { return "vector_grad" }

func (g *VectorGradient) Layout() string {
	return fmt.Sprintf("%s[%d]", g.TypeShortname(), len(g.Inp))
}

func (g *VectorGradient) WriteLayoutAndValues(sb *strings.Builder, indent int) {
	sb.WriteString(Pad(indent))
	sb.WriteString(g.Layout())
	sb.WriteString(": inp: ")
	kernels.WriteVec(sb, g.Inp, len(g.Inp))
}

func (g *VectorGradient) String() string { return Dump(g) }

// DenseGradient is the gradient of a Dense layer: input, weights (row-major,
// Out x In) and bias.
type DenseGradient struct {
	Inp     []float32
	Weights []float32
	Bias    []float32

	in, out int
}

// NewDenseGradient creates a zeroed gradient for a Dense layer mapping inpSize
// inputs to outSize outputs.
func NewDenseGradient(inpSize, outSize int) *DenseGradient {
	return &DenseGradient{
		Inp:     make([]float32, inpSize),
		Weights: make([]float32, outSize*inpSize),
		Bias:    make([]float32, outSize),
		in:      inpSize,
		out:     outSize,
	}
}

func (g *DenseGradient) InputGrad() []float32 { return g.Inp }

func (g *DenseGradient) Clear() {
	kernels.AssignVecSca(g.Inp, 0, g.in)
	kernels.AssignMatSca(g.Weights, 0, g.out, g.in)
	kernels.AssignVecSca(g.Bias, 0, g.out)
}

// EnsureCompatibleForAdd checks the concrete type and both weight matrix
// dimensions.
func (g *DenseGradient) EnsureCompatibleForAdd(other Gradient) error {
	og, ok := other.(*DenseGradient)
	if !ok {
		return ShapeMismatch("other gradient of type %T is not the same gradient type as "+
			"this gradient, which is a %T", other, g)
	}
	if og.out != g.out {
		return ShapeMismatch("other gradient's weights matrix height of %d is not the same as "+
			"this gradient's weights matrix height of %d", og.out, g.out)
	}
	if og.in != g.in {
		return ShapeMismatch("other gradient's weights matrix width of %d is not the same as "+
			"this gradient's weights matrix width of %d", og.in, g.in)
	}
	return nil
}

func (g *DenseGradient) Add(other Gradient) error {
	if err := g.EnsureCompatibleForAdd(other); err != nil {
		return err
	}
	og := other.(*DenseGradient)
	kernels.AddVec(g.Inp, og.Inp, g.in)
	kernels.AddMat(g.Weights, og.Weights, g.out, g.in)
	kernels.AddVec(g.Bias, og.Bias, g.out)
	return nil
}

func (g *DenseGradient) Mul(factor float32) {
	kernels.MulVecSca(g.Inp, factor, g.in)
	kernels.MulMatSca(g.Weights, factor, g.out, g.in)
	kernels.MulVecSca(g.Bias, factor, g.out)
}

func (g *DenseGradient) TypeShortname() string { return "dense_grad" }

func (g *DenseGradient) Layout() string {
	return fmt.Sprintf("%s[%dx%d]", g.TypeShortname(), g.out, g.in)
}

func (g *DenseGradient) WriteLayoutAndValues(sb *strings.Builder, indent int) {
	pad := Pad(indent)

	sb.WriteString(pad)
	sb.WriteString(g.Layout())
	sb.WriteString("\n")

	sb.WriteString(pad)
	sb.WriteString("    inp    : ")
	kernels.WriteVec(sb, g.Inp, g.in)
	sb.WriteString("\n")

	sb.WriteString(pad)
	sb.WriteString("    weights: ")
	kernels.WriteMat(sb, g.Weights, g.out, g.in, indent+13)
	sb.WriteString("\n")

	sb.WriteString(pad)
	sb.WriteString("    bias   : ")
	kernels.WriteVec(sb, g.Bias, g.out)
}

func (g *DenseGradient) String() string { return Dump(g) }
