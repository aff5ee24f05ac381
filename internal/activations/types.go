package activations

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/FlavioCFOliveira/minideep/internal/layer"
)

// Type enumerates the activation functions.
type Type int

const (
	TypeSigmoid Type = iota
	TypeRelu
	TypeTanh
	TypeIdentity
	TypeSoftmax
	TypeSoftplus
	TypeSwish
)

var typeNames = [...]string{
	TypeSigmoid:  "sigmoid",
	TypeRelu:     "relu",
	TypeTanh:     "tanh",
	TypeIdentity: "identity",
	TypeSoftmax:  "softmax",
	TypeSoftplus: "softplus",
	TypeSwish:    "swish",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "unknown"
	}
	return typeNames[t]
}

// ParseType returns the activation type with the given name. "id" is accepted
// for identity.
func ParseType(name string) (Type, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "id" {
		return TypeIdentity, nil
	}
	for i, n := range typeNames {
		if n == name {
			return Type(i), nil
		}
	}
	return 0, errors.Errorf("unknown activation type %q", name)
}

// New creates an activation node of the given type and size.
func New(t Type, size int) (layer.Operation, error) {
	switch t {
	case TypeSigmoid:
		return NewSigmoid(size), nil
	case TypeRelu:
		return NewRelu(size), nil
	case TypeTanh:
		return NewTanh(size), nil
	case TypeIdentity:
		return NewIdentity(size), nil
	case TypeSoftmax:
		return NewSoftmax(size), nil
	case TypeSoftplus:
		return NewSoftplus(size), nil
	case TypeSwish:
		return NewSwish(size), nil
	}
	return nil, errors.Errorf("unknown activation type %d", int(t))
}
