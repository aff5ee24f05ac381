// Package activations provides unit tests for activation nodes.
package activations

import (
	"errors"
	"math"
	"testing"

	"github.com/FlavioCFOliveira/minideep/internal/layer"
)

// TestForward tests the forward pass of every activation node.
func TestForward(t *testing.T) {
	inp := []float32{-1, 0, 2}

	tests := []struct {
		op       layer.Operation
		expected []float64
	}{
		{NewIdentity(3), []float64{-1, 0, 2}},
		{NewRelu(3), []float64{0, 0, 2}},
		{NewSigmoid(3), []float64{1 / (1 + math.E), 0.5, 1 / (1 + math.Exp(-2))}},
		{NewTanh(3), []float64{math.Tanh(-1), 0, math.Tanh(2)}},
		{NewSoftplus(3), []float64{math.Log1p(math.Exp(-1)), math.Ln2, math.Log1p(math.Exp(2))}},
		{NewSwish(3), []float64{-1 / (1 + math.E), 0, 2 / (1 + math.Exp(-2))}},
	}

	for _, tt := range tests {
		out := tt.op.CalcOutput(inp)
		if &out[0] != &tt.op.Output()[0] {
			t.Errorf("%s: CalcOutput did not return the owned buffer", tt.op.Layout())
		}
		for i := range out {
			if math.Abs(float64(out[i])-tt.expected[i]) > 1e-6 {
				t.Errorf("%s: out[%d] = %v, want %v", tt.op.Layout(), i, out[i], tt.expected[i])
			}
		}
	}
}

// TestSoftmaxSumsToOne tests that softmax yields a probability distribution.
func TestSoftmaxSumsToOne(t *testing.T) {
	tests := [][]float32{
		{0.1, 0.2, 0.3, 0.4},
		{-100, 50, 3},
		{1e30, 0, 0, 0},
	}

	for _, inp := range tests {
		s := NewSoftmax(len(inp))
		out := s.CalcOutput(inp)

		var sum float64
		for i, v := range out {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) || v < 0 || v > 1 {
				t.Fatalf("softmax(%v)[%d] = %v, want value in [0, 1]", inp, i, v)
			}
			sum += float64(v)
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("sum(softmax(%v)) = %v, want 1", inp, sum)
		}
	}

	out := NewSoftmax(4).CalcOutput([]float32{1e30, 0, 0, 0})
	if out[0] < 1-1e-6 {
		t.Errorf("softmax(1e30, 0, 0, 0)[0] = %v, want near 1", out[0])
	}
}

// TestSoftmaxGradientUnsupported tests that the sole softmax derivative always
// fails.
func TestSoftmaxGradientUnsupported(t *testing.T) {
	s := NewSoftmax(2)
	s.CalcOutput([]float32{1, 2})

	err := s.CalcGradient([]float32{1, 2}, []float32{1, 0}, s.CreateGradient())
	if !errors.Is(err, layer.ErrUnsupported) {
		t.Errorf("CalcGradient() error = %v, want ErrUnsupported", err)
	}
}

// TestGradients tests backward rules against finite differences of the
// forward pass.
func TestGradients(t *testing.T) {
	inp := []float32{-1.5, -0.25, 0.5, 1.25}
	upstream := []float32{0.5, -1, 2, 1}
	const h = 1e-3

	ops := []func() layer.Operation{
		func() layer.Operation { return NewIdentity(4) },
		func() layer.Operation { return NewSigmoid(4) },
		func() layer.Operation { return NewTanh(4) },
		func() layer.Operation { return NewSoftplus(4) },
		func() layer.Operation { return NewSwish(4) },
		func() layer.Operation { return NewRelu(4) },
	}

	for _, newOp := range ops {
		op := newOp()
		probe := newOp()
		op.CalcOutput(inp)
		grad := op.CreateGradient()
		if err := op.CalcGradient(inp, upstream, grad); err != nil {
			t.Fatalf("%s: CalcGradient() error = %v", op.Layout(), err)
		}

		for i := range inp {
			x := append([]float32(nil), inp...)
			x[i] = inp[i] + h
			plus := float64(probe.CalcOutput(x)[i])
			x[i] = inp[i] - h
			minus := float64(probe.CalcOutput(x)[i])
			want := (plus - minus) / (2 * h) * float64(upstream[i])

			if got := float64(grad.InputGrad()[i]); math.Abs(got-want) > 1e-2 {
				t.Errorf("%s: grad[%d] = %v, want %v", op.Layout(), i, got, want)
			}
		}
	}
}

// TestGradientShapeMismatch tests that a foreign gradient is rejected.
func TestGradientShapeMismatch(t *testing.T) {
	r := NewRelu(3)
	err := r.CalcGradient([]float32{1, 2, 3}, []float32{1, 1, 1}, layer.NewVectorGradient(2))
	if !errors.Is(err, layer.ErrShapeMismatch) {
		t.Errorf("CalcGradient() error = %v, want ErrShapeMismatch", err)
	}
}

// TestLayoutAndDump tests layout strings and value dumps.
func TestLayoutAndDump(t *testing.T) {
	r := NewRelu(2)
	r.CalcOutput([]float32{-1, 3})

	if got := r.Layout(); got != "relu[2]" {
		t.Errorf("Layout() = %q, want %q", got, "relu[2]")
	}
	if got := layer.Dump(r); got != "relu[2]: out: [0 3]" {
		t.Errorf("Dump() = %q", got)
	}
	if got := NewIdentity(1).Layout(); got != "id[1]" {
		t.Errorf("identity Layout() = %q, want %q", got, "id[1]")
	}
}

// TestLossNotProvided tests that activations panic on loss queries.
func TestLossNotProvided(t *testing.T) {
	defer func() {
		err, ok := recover().(error)
		if !ok || !errors.Is(err, layer.ErrNotProvided) {
			t.Fatalf("recovered %v, want error wrapping ErrNotProvided", err)
		}
	}()
	NewTanh(2).CalcLoss([]float32{0, 0}, []float32{1, 0})
}

// TestParseType tests activation name parsing and the factory.
func TestParseType(t *testing.T) {
	for i := TypeSigmoid; i <= TypeSwish; i++ {
		got, err := ParseType(i.String())
		if err != nil || got != i {
			t.Errorf("ParseType(%q) = %v, %v, want %v", i.String(), got, err, i)
		}
		op, err := New(i, 3)
		if err != nil {
			t.Fatalf("New(%v) error = %v", i, err)
		}
		if op.InputSize() != 3 || op.OutputSize() != 3 {
			t.Errorf("New(%v) sizes = %d, %d, want 3, 3", i, op.InputSize(), op.OutputSize())
		}
	}

	if got, err := ParseType("ID"); err != nil || got != TypeIdentity {
		t.Errorf("ParseType(ID) = %v, %v", got, err)
	}
	if _, err := ParseType("gelu"); err == nil {
		t.Error("ParseType(gelu) error = nil, want error")
	}
}
