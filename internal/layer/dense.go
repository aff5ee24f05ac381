package layer

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/FlavioCFOliveira/minideep/internal/kernels"
)

// Dense is a fully connected affine layer, y = W·x + b.
type Dense struct {
	// Weights is row-major with shape [out * in]: the weight from input j to
	// output i is at Weights[i*in+j].
	Weights []float32
	Bias    []float32

	out     []float32
	inSize  int
	outSize int
}

// NewDense creates a dense layer with zeroed parameters. Call InitParams to
// randomize them.
func NewDense(in, out int) *Dense {
	return &Dense{
		Weights: make([]float32, out*in),
		Bias:    make([]float32, out),
		out:     make([]float32, out),
		inSize:  in,
		outSize: out,
	}
}

func (d *Dense) InputSize() int    { return d.inSize }
func (d *Dense) HasOutput() bool   { return true }
func (d *Dense) OutputSize() int   { return d.outSize }
func (d *Dense) Output() []float32 { return d.out }
func (d *Dense) HasLoss() bool     { return false }

func (d *Dense) CalcOutput(inp []float32) []float32 {
	kernels.MulMatVecPlusBias(d.Weights, inp, d.Bias, d.out, d.outSize, d.inSize)
	return d.out
}

func (d *Dense) CalcLoss(inp, target []float32) float32 {
	panic(LossNotProvided(fmt.Sprintf("%T", d)))
}

func (d *Dense) Loss() float32 {
	panic(LossNotProvided(fmt.Sprintf("%T", d)))
}

// InitParams draws the weights row by row from a Gaussian scaled by the
// Xavier factor 2/(in+out) and zeroes the bias.
func (d *Dense) InitParams(rnd *rand.Rand) {
	xavierFactor := 2.0 / float32(d.inSize+d.outSize)
	kernels.AssignGaussianMat(d.Weights, xavierFactor, rnd, d.outSize, d.inSize)
	kernels.AssignVecSca(d.Bias, 0, d.outSize)
}

func (d *Dense) CreateGradient() Gradient {
	return NewDenseGradient(d.inSize, d.outSize)
}

func (d *Dense) gradient(grad Gradient) (*DenseGradient, error) {
	g, ok := grad.(*DenseGradient)
	if !ok {
		return nil, ShapeMismatch("gradient must be of type %T, but it is a %T", g, grad)
	}
	if g.in != d.inSize || g.out != d.outSize {
		return nil, ShapeMismatch("gradient %s does not fit %s", g.Layout(), d.Layout())
	}
	return g, nil
}

func (d *Dense) CalcGradient(inp, upstream []float32, grad Gradient) error {
	g, err := d.gradient(grad)
	if err != nil {
		return err
	}
	kernels.OuterProduct(upstream, inp, g.Weights, d.outSize, d.inSize)
	kernels.MulVecMat(upstream, d.Weights, g.Inp, d.outSize, d.inSize)
	kernels.AssignVecVec(upstream, g.Bias, d.outSize)
	return nil
}

func (d *Dense) Learn(grad Gradient, negLearningRate float32) error {
	g, err := d.gradient(grad)
	if err != nil {
		return err
	}
	kernels.MulAddMatSca(g.Weights, negLearningRate, d.Weights, d.outSize, d.inSize)
	kernels.MulAddVecSca(g.Bias, negLearningRate, d.Bias, d.outSize)
	return nil
}

func (d *Dense) TypeShortname() string { return "dense" }

func (d *Dense) Layout() string {
	return fmt.Sprintf("%s[%dx%d]*[%d]+[%d]->[%d]",
		d.TypeShortname(), d.outSize, d.inSize, d.inSize, d.outSize, d.outSize)
}

func (d *Dense) WriteLayoutAndValues(sb *strings.Builder, indent int) {
	pad := Pad(indent)

	sb.WriteString(pad)
	sb.WriteString(d.Layout())
	sb.WriteString("\n")

	sb.WriteString(pad)
	sb.WriteString("    weights: ")
	kernels.WriteMat(sb, d.Weights, d.outSize, d.inSize, indent+13)
	sb.WriteString("\n")

	sb.WriteString(pad)
	sb.WriteString("    bias   : ")
	kernels.WriteVec(sb, d.Bias, d.outSize)
	sb.WriteString("\n")

	sb.WriteString(pad)
	sb.WriteString("    out    : ")
	kernels.WriteVec(sb, d.out, d.outSize)
}

func (d *Dense) String() string { return Dump(d) }
