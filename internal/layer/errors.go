package layer

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrShapeMismatch is returned when gradients, chains or buffers do not
	// have the shape an operation requires.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrUnsupported is returned for operations a node cannot perform, such as
	// the derivative of a sole softmax.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrNotProvided is wrapped by the panic value of capability violations.
	ErrNotProvided = errors.New("not provided")

	// ErrEmptyChain is the panic value when the first or last element of an
	// empty chain is requested.
	ErrEmptyChain = errors.New("this chain doesn't have any operations. " +
		"you must first add operations to a chain before you can call this method")
)

type notProvidedError struct {
	msg string
}

func (e *notProvidedError) Error() string { return e.msg }
func (e *notProvidedError) Unwrap() error { return ErrNotProvided }

// LossNotProvided returns the panic value for loss methods called on
// operations of the named type.
func LossNotProvided(typeName string) error {
	return &notProvidedError{msg: fmt.Sprintf("loss not provided: "+
		"don't call this method on operations of type %s or their compiled versions, "+
		"because they don't provide a loss", typeName)}
}

// OutputNotProvided returns the panic value for output methods called on
// operations of the named type.
func OutputNotProvided(typeName string) error {
	return &notProvidedError{msg: fmt.Sprintf("output not provided: "+
		"don't call this method on operations of type %s or their compiled versions, "+
		"because they don't provide an output", typeName)}
}

// ShapeMismatch returns an error wrapping ErrShapeMismatch.
func ShapeMismatch(format string, args ...interface{}) error {
	return errors.Wrapf(ErrShapeMismatch, format, args...)
}
