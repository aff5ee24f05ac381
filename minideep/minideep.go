// Package minideep is the public API of the module. Generated code depends on
// it for the Operation and Gradient contracts and the error helpers.
package minideep

import (
	"math/rand"

	"github.com/FlavioCFOliveira/minideep/internal/activations"
	"github.com/FlavioCFOliveira/minideep/internal/compiler"
	"github.com/FlavioCFOliveira/minideep/internal/layer"
	"github.com/FlavioCFOliveira/minideep/internal/loss"
	"github.com/FlavioCFOliveira/minideep/internal/net"
	"github.com/FlavioCFOliveira/minideep/internal/opt"
	"github.com/FlavioCFOliveira/minideep/internal/stats"
)

// Re-export common types for easier access
type (
	Operation  = layer.Operation
	Gradient   = layer.Gradient
	Chain      = net.Chain
	Classifier = net.Classifier
	Dense      = layer.Dense
	Activation = activations.Type
	Stats      = stats.Stats

	Trainer   = net.Trainer
	Callback  = net.Callback
	Optimizer = opt.Optimizer
	Scheduler = opt.Scheduler
	Dataset   = net.Dataset

	CompileOptions = compiler.Options
)

// Errors
var (
	ErrShapeMismatch = layer.ErrShapeMismatch
	ErrUnsupported   = layer.ErrUnsupported
	ErrNotProvided   = layer.ErrNotProvided
	ErrEmptyChain    = layer.ErrEmptyChain
)

// LossNotProvided returns the panic value of loss methods called on an
// operation without a loss.
func LossNotProvided(typeName string) error {
	return layer.LossNotProvided(typeName)
}

// OutputNotProvided returns the panic value of output methods called on an
// operation without an output.
func OutputNotProvided(typeName string) error {
	return layer.OutputNotProvided(typeName)
}

// Activations
const (
	Sigmoid  = activations.TypeSigmoid
	Tanh     = activations.TypeTanh
	Softmax  = activations.TypeSoftmax
	Softplus = activations.TypeSoftplus
	Relu     = activations.TypeRelu
	Identity = activations.TypeIdentity
	Swish    = activations.TypeSwish
)

// Model creation
func NewChain(ops ...Operation) *Chain {
	return net.NewChain(ops...)
}

func NewClassifier(shape ...int) (*Classifier, error) {
	return net.NewClassifier(shape...)
}

// Nodes
func NewDense(in, out int) *Dense {
	return layer.NewDense(in, out)
}

func NewActivation(t Activation, size int) (Operation, error) {
	return activations.New(t, size)
}

func NewCrossEntropy(size int) Operation {
	return loss.NewCrossEntropy(size)
}

func NewSigmoidWithCrossEntropy(size int) Operation {
	return loss.NewSigmoidWithCrossEntropy(size)
}

func NewSoftmaxWithCrossEntropy(size int) Operation {
	return loss.NewSoftmaxWithCrossEntropy(size)
}

// Training
func GradientDescent() Optimizer {
	return opt.GradientDescent{}
}

func Evaluate(model Operation, inp, target [][]float32) (*Stats, error) {
	return net.Evaluate(model, inp, target)
}

func LoadCSV(filename string, labelCol int, hasHeader bool) (*Dataset, error) {
	return net.LoadCSV(filename, labelCol, hasHeader)
}

// Callbacks
func Logger(interval int) net.Logger {
	return net.Logger{Interval: interval}
}

func EarlyStopping(patience int, threshold float32) *net.EarlyStopping {
	return net.NewEarlyStopping(patience, threshold)
}

func CSVLogger(filename string, append bool) *net.CSVLogger {
	return net.NewCSVLogger(filename, append)
}

// Schedulers
func StepLR(stepSize int, gamma, initialLR float32) *opt.StepLR {
	return opt.NewStepLR(stepSize, gamma, initialLR)
}

func ExponentialLR(gamma, initialLR float32) *opt.ExponentialLR {
	return opt.NewExponentialLR(gamma, initialLR)
}

func ReduceLROnPlateau(initialLR, factor float32, patience int, threshold, minLR float32) *opt.ReduceLROnPlateau {
	return opt.NewReduceLROnPlateau(initialLR, factor, patience, threshold, minLR)
}

// Compilation

// Compile returns Go source of a standalone type behaving exactly like op.
func Compile(op Operation, opts CompileOptions) ([]byte, error) {
	c, err := compiler.New(opts)
	if err != nil {
		return nil, err
	}
	return c.Compile(op)
}

// GenerateTypeName makes up a name for the compiled form of op.
func GenerateTypeName(op Operation, rnd *rand.Rand) string {
	return compiler.GenerateTypeName(op, rnd)
}
