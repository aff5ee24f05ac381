package net

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/FlavioCFOliveira/minideep/internal/layer"
)

// ErrEmptyGradient is the panic value of InputGrad on a ChainGradient without
// elements.
var ErrEmptyGradient = errors.New("this type of gradient doesn't have any elements. " +
	"you must first add elements to this type of gradient before you can call this method")

// ChainGradient holds one sub gradient per leaf of a flattened chain.
type ChainGradient struct {
	list []layer.Gradient
}

func (g *ChainGradient) AddElement(el layer.Gradient) {
	g.list = append(g.list, el)
}

func (g *ChainGradient) Element(i int) layer.Gradient { return g.list[i] }
func (g *ChainGradient) Len() int                     { return len(g.list) }

// InputGrad returns the input gradient of the first element.
func (g *ChainGradient) InputGrad() []float32 {
	if len(g.list) == 0 {
		panic(ErrEmptyGradient)
	}
	return g.list[0].InputGrad()
}

func (g *ChainGradient) Clear() {
	for _, el := range g.list {
		el.Clear()
	}
}

func (g *ChainGradient) Mul(factor float32) {
	for _, el := range g.list {
		el.Mul(factor)
	}
}

// EnsureCompatibleForAdd checks the element count and every element.
func (g *ChainGradient) EnsureCompatibleForAdd(other layer.Gradient) error {
	og, ok := other.(*ChainGradient)
	if !ok {
		return layer.ShapeMismatch("other gradient of type %T is not the same gradient type as "+
			"this gradient, which is a %T", other, g)
	}
	if len(og.list) != len(g.list) {
		return layer.ShapeMismatch("other gradient has %d sub gradients, which is incompatible "+
			"to this gradient, which has %d sub gradients", len(og.list), len(g.list))
	}
	for i, el := range g.list {
		if err := el.EnsureCompatibleForAdd(og.list[i]); err != nil {
			return errors.WithMessagef(err, "sub gradient %d", i)
		}
	}
	return nil
}

// Add accumulates other element-wise. Nothing is modified unless all elements
// are compatible.
func (g *ChainGradient) Add(other layer.Gradient) error {
	if err := g.EnsureCompatibleForAdd(other); err != nil {
		return err
	}
	og := other.(*ChainGradient)
	for i, el := range g.list {
		if err := el.Add(og.list[i]); err != nil {
			return err
		}
	}
	return nil
}

func (g *ChainGradient) TypeShortname() string { return "chain_grad" }

func (g *ChainGradient) Layout() string {
	layouts := make([]string, len(g.list))
	for i, el := range g.list {
		layouts[i] = el.Layout()
	}
	return fmt.Sprintf("%s(%s)", g.TypeShortname(), strings.Join(layouts, ", "))
}

func (g *ChainGradient) WriteLayoutAndValues(sb *strings.Builder, indent int) {
	sb.WriteString(layer.Pad(indent))
	sb.WriteString(g.Layout())

	if len(g.list) == 0 {
		return
	}
	sb.WriteString(":")
	for _, el := range g.list {
		sb.WriteString("\n")
		el.WriteLayoutAndValues(sb, indent+4)
	}
}

func (g *ChainGradient) String() string { return layer.Dump(g) }

var _ layer.Gradient = (*ChainGradient)(nil)
