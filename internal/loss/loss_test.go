// Package loss provides unit tests for loss nodes.
package loss

import (
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/FlavioCFOliveira/minideep/internal/activations"
	"github.com/FlavioCFOliveira/minideep/internal/layer"
)

func format(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

// TestCrossEntropyLoss tests the binary and multinomial losses.
func TestCrossEntropyLoss(t *testing.T) {
	tests := []struct {
		predicted []float32
		target    []float32
		expected  float64
	}{
		{[]float32{0.9}, []float32{1}, -math.Log(0.9)},
		{[]float32{0.9}, []float32{0}, -math.Log(0.1)},
		{[]float32{0.25, 0.75}, []float32{0, 1}, -math.Log(0.75) / 2},
		{[]float32{0.2, 0.3, 0.5}, []float32{1, 0, 0}, -math.Log(0.2) / 3},
	}

	for _, tt := range tests {
		ce := NewCrossEntropy(len(tt.predicted))
		got := ce.CalcLoss(tt.predicted, tt.target)
		if math.Abs(float64(got)-tt.expected) > 1e-5 {
			t.Errorf("CalcLoss(%v, %v) = %v, want %v", tt.predicted, tt.target, got, tt.expected)
		}
		if ce.Loss() != got {
			t.Errorf("Loss() = %v, want %v", ce.Loss(), got)
		}
	}
}

// TestCrossEntropyNoOutput tests that a pure loss panics on output queries.
func TestCrossEntropyNoOutput(t *testing.T) {
	ce := NewCrossEntropy(2)
	if ce.HasOutput() {
		t.Fatal("HasOutput() = true, want false")
	}

	defer func() {
		err, ok := recover().(error)
		if !ok || !errors.Is(err, layer.ErrNotProvided) {
			t.Fatalf("recovered %v, want error wrapping ErrNotProvided", err)
		}
	}()
	ce.OutputSize()
}

// TestSigmoidFusedMatchesUnfused tests that sigmoid-ce's gradient equals the
// chain rule through separate sigmoid and cross entropy nodes.
func TestSigmoidFusedMatchesUnfused(t *testing.T) {
	tests := []struct {
		inp    []float32
		target []float32
	}{
		{[]float32{0.3}, []float32{1}},
		{[]float32{-1.2}, []float32{0}},
		{[]float32{0.4, -0.7, 1.1}, []float32{0, 1, 0}},
	}

	for _, tt := range tests {
		n := len(tt.inp)

		fused := NewSigmoidWithCrossEntropy(n)
		fused.CalcOutput(tt.inp)
		fused.CalcLoss(tt.inp, tt.target)
		fusedGrad := fused.CreateGradient()
		if err := fused.CalcGradient(tt.inp, tt.target, fusedGrad); err != nil {
			t.Fatalf("fused CalcGradient() error = %v", err)
		}

		sig := activations.NewSigmoid(n)
		ce := NewCrossEntropy(n)
		y := sig.CalcOutput(tt.inp)
		ce.CalcLoss(y, tt.target)
		ceGrad := ce.CreateGradient()
		if err := ce.CalcGradient(y, tt.target, ceGrad); err != nil {
			t.Fatalf("ce CalcGradient() error = %v", err)
		}
		sigGrad := sig.CreateGradient()
		if err := sig.CalcGradient(tt.inp, ceGrad.InputGrad(), sigGrad); err != nil {
			t.Fatalf("sigmoid CalcGradient() error = %v", err)
		}

		if math.Abs(float64(fused.Loss()-ce.Loss())) > 1e-6 {
			t.Errorf("fused loss = %v, unfused loss = %v", fused.Loss(), ce.Loss())
		}

		if n == 1 {
			got, want := fusedGrad.InputGrad()[0], sigGrad.InputGrad()[0]
			if math.Abs(float64(got-want)) > 1e-5 {
				t.Errorf("fused grad = %v, unfused grad = %v", got, want)
			}
		}

		// the output gradient is the cross entropy gradient
		outGrad := layer.NewVectorGradient(n)
		if err := fused.CalcOutputGradient(tt.inp, tt.target, outGrad); err != nil {
			t.Fatalf("CalcOutputGradient() error = %v", err)
		}
		for i := range outGrad.Inp {
			if outGrad.Inp[i] != ceGrad.InputGrad()[i] {
				t.Errorf("output grad[%d] = %v, want %v", i, outGrad.Inp[i], ceGrad.InputGrad()[i])
			}
		}
	}
}

// TestSigmoidManifoldGradient tests the rarely used multinomial form y-1
// scaled by t/n.
func TestSigmoidManifoldGradient(t *testing.T) {
	l := NewSigmoidWithCrossEntropy(2)
	y := l.CalcOutput([]float32{0, 0})
	g := l.CreateGradient()
	if err := l.CalcGradient([]float32{0, 0}, []float32{1, 0}, g); err != nil {
		t.Fatalf("CalcGradient() error = %v", err)
	}
	want := 0.5 * (y[0] - 1)
	if g.InputGrad()[0] != want || g.InputGrad()[1] != 0 {
		t.Errorf("grad = %v, want [%v 0]", g.InputGrad(), want)
	}
}

// TestSoftmaxFusedMatchesJacobian tests that softmax-ce's gradient equals
// the cross entropy gradient pushed through the full softmax Jacobian.
func TestSoftmaxFusedMatchesJacobian(t *testing.T) {
	inp := []float32{0.5, -0.3, 1.2, 0.1}
	target := []float32{0, 0, 1, 0}
	n := len(inp)

	l := NewSoftmaxWithCrossEntropy(n)
	y := l.CalcOutput(inp)
	l.CalcLoss(inp, target)
	g := l.CreateGradient()
	if err := l.CalcGradient(inp, target, g); err != nil {
		t.Fatalf("CalcGradient() error = %v", err)
	}

	ce := NewCrossEntropy(n)
	ceGrad := ce.CreateGradient()
	if err := ce.CalcGradient(y, target, ceGrad); err != nil {
		t.Fatalf("ce CalcGradient() error = %v", err)
	}

	for j := 0; j < n; j++ {
		var want float64
		for i := 0; i < n; i++ {
			delta := 0.0
			if i == j {
				delta = 1
			}
			want += float64(ceGrad.InputGrad()[i]) * float64(y[i]) * (delta - float64(y[j]))
		}
		if got := float64(g.InputGrad()[j]); math.Abs(got-want) > 1e-6 {
			t.Errorf("grad[%d] = %v, want %v", j, got, want)
		}
	}

	if got, want := l.Loss(), NewCrossEntropy(n).CalcLoss(y, target); got != want {
		t.Errorf("Loss() = %v, want %v", got, want)
	}

	if err := l.CalcOutputGradient(inp, target, layer.NewVectorGradient(n)); !errors.Is(err, layer.ErrUnsupported) {
		t.Errorf("CalcOutputGradient() error = %v, want ErrUnsupported", err)
	}
}

// TestLayoutAndDump tests layouts and dumps of loss nodes.
func TestLayoutAndDump(t *testing.T) {
	ce := NewCrossEntropy(1)
	ce.CalcLoss([]float32{0.25}, []float32{1})
	if got, want := layer.Dump(ce), "ce: loss: "+format(ce.Loss()); got != want {
		t.Errorf("ce Dump() = %q, want %q", got, want)
	}

	l := NewSigmoidWithCrossEntropy(1)
	l.CalcOutput([]float32{0})
	l.CalcLoss(nil, []float32{1})
	want := "sigmoid-ce[1]: out: [0.5]\n    loss: " + format(l.Loss())
	if got := layer.Dump(l); got != want {
		t.Errorf("sigmoid-ce Dump() = %q, want %q", got, want)
	}
	if got := NewSoftmaxWithCrossEntropy(3).Layout(); got != "softmax-ce[3]" {
		t.Errorf("softmax-ce Layout() = %q", got)
	}
}
