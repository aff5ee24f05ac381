// Package net composes operations into chains and trains them.
package net

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/FlavioCFOliveira/minideep/internal/layer"
)

// Chain is an ordered sequence of operations evaluated one after the other.
// It may contain other chains; Flattened expands them.
type Chain struct {
	list []layer.Operation
}

// NewChain creates a chain of the given operations.
func NewChain(ops ...layer.Operation) *Chain {
	return &Chain{list: append([]layer.Operation(nil), ops...)}
}

func (c *Chain) Add(op layer.Operation) {
	c.list = append(c.list, op)
}

func (c *Chain) Len() int                      { return len(c.list) }
func (c *Chain) Get(i int) layer.Operation     { return c.list[i] }
func (c *Chain) Set(i int, op layer.Operation) { c.list[i] = op }

// First returns the first element. It panics with layer.ErrEmptyChain on an
// empty chain.
func (c *Chain) First() layer.Operation {
	c.ensureNotEmpty()
	return c.list[0]
}

// Last returns the last element. It panics with layer.ErrEmptyChain on an
// empty chain.
func (c *Chain) Last() layer.Operation {
	c.ensureNotEmpty()
	return c.list[len(c.list)-1]
}

func (c *Chain) ensureNotEmpty() {
	if len(c.list) == 0 {
		panic(layer.ErrEmptyChain)
	}
}

// IsFlat reports whether no element is itself a chain.
func (c *Chain) IsFlat() bool {
	for _, op := range c.list {
		if _, ok := op.(*Chain); ok {
			return false
		}
	}
	return true
}

// Flattened returns c if it is flat, else a new flat chain holding the same
// leaf operations in evaluation order. Both chains share the leaves.
func (c *Chain) Flattened() *Chain {
	if c.IsFlat() {
		return c
	}

	result := &Chain{}
	for it := c.Iterator(); it.Next(); {
		result.Add(it.Op())
	}
	return result
}

// leaves returns the elementary operations in evaluation order.
func (c *Chain) leaves() []layer.Operation {
	return c.Flattened().list
}

func (c *Chain) InputSize() int    { return c.First().InputSize() }
func (c *Chain) HasOutput() bool   { return c.Last().HasOutput() }
func (c *Chain) OutputSize() int   { return c.Last().OutputSize() }
func (c *Chain) Output() []float32 { return c.Last().Output() }
func (c *Chain) HasLoss() bool     { return c.Last().HasLoss() }
func (c *Chain) Loss() float32     { return c.Last().Loss() }

// CalcOutput feeds inp through all elements. Elements without an output are
// skipped, so a chain ending in a pure loss returns the last output before it.
func (c *Chain) CalcOutput(inp []float32) []float32 {
	for _, op := range c.list {
		if op.HasOutput() {
			inp = op.CalcOutput(inp)
		}
	}
	return inp
}

// CalcLoss computes the loss of the last element. inp is the chain's input;
// the last element receives the input it saw during CalcOutput.
func (c *Chain) CalcLoss(inp, target []float32) float32 {
	leaves := c.leaves()
	if len(leaves) == 0 {
		panic(layer.ErrEmptyChain)
	}
	last := len(leaves) - 1
	if last > 0 {
		inp = leaves[last-1].Output()
	}
	return leaves[last].CalcLoss(inp, target)
}

func (c *Chain) InitParams(rnd *rand.Rand) {
	for _, op := range c.list {
		op.InitParams(rnd)
	}
}

// CreateGradient returns a ChainGradient with one element per leaf.
func (c *Chain) CreateGradient() layer.Gradient {
	grad := &ChainGradient{}
	for _, op := range c.leaves() {
		grad.AddElement(op.CreateGradient())
	}
	return grad
}

func (c *Chain) chainGradient(grad layer.Gradient, size int) (*ChainGradient, error) {
	g, ok := grad.(*ChainGradient)
	if !ok {
		return nil, layer.ShapeMismatch("gradient of type %T is not the same gradient type as "+
			"this chain's gradient, which is %T", grad, g)
	}
	if g.Len() != size {
		return nil, layer.ShapeMismatch("gradient has %d sub gradients, which is incompatible "+
			"to this chain, because the latter one has %d elements", g.Len(), size)
	}
	return g, nil
}

// CalcGradient back propagates through the leaves in reverse order. Each leaf
// receives the output of its predecessor, or inp for the first one.
func (c *Chain) CalcGradient(inp, targetOrUpstream []float32, grad layer.Gradient) error {
	leaves := c.leaves()
	g, err := c.chainGradient(grad, len(leaves))
	if err != nil {
		return err
	}

	for i := len(leaves) - 1; i >= 0; i-- {
		prev := inp
		if i > 0 {
			prev = leaves[i-1].Output()
		}

		el := g.Element(i)
		if err := leaves[i].CalcGradient(prev, targetOrUpstream, el); err != nil {
			return err
		}
		targetOrUpstream = el.InputGrad()
	}
	return nil
}

func (c *Chain) Learn(grad layer.Gradient, negLearningRate float32) error {
	leaves := c.leaves()
	g, err := c.chainGradient(grad, len(leaves))
	if err != nil {
		return err
	}

	for i, op := range leaves {
		if err := op.Learn(g.Element(i), negLearningRate); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chain) TypeShortname() string { return "chain" }

func (c *Chain) Layout() string {
	layouts := make([]string, len(c.list))
	for i, op := range c.list {
		layouts[i] = op.Layout()
	}
	return fmt.Sprintf("%s(%s)", c.TypeShortname(), strings.Join(layouts, ", "))
}

func (c *Chain) WriteLayoutAndValues(sb *strings.Builder, indent int) {
	sb.WriteString(layer.Pad(indent))
	sb.WriteString(c.Layout())

	if len(c.list) == 0 {
		return
	}
	sb.WriteString(":")
	for _, op := range c.list {
		sb.WriteString("\n")
		op.WriteLayoutAndValues(sb, indent+4)
	}
}

func (c *Chain) String() string { return layer.Dump(c) }

// Iterator walks the leaves of a chain depth first, descending into nested
// chains.
//
//	for it := c.Iterator(); it.Next(); {
//		op := it.Op()
//	}
type Iterator struct {
	stack [][]layer.Operation
	op    layer.Operation
}

func (c *Chain) Iterator() *Iterator {
	return &Iterator{stack: [][]layer.Operation{c.list}}
}

// Next advances to the next leaf and reports whether there is one.
func (it *Iterator) Next() bool {
	for len(it.stack) > 0 {
		top := len(it.stack) - 1
		if len(it.stack[top]) == 0 {
			it.stack = it.stack[:top]
			continue
		}

		op := it.stack[top][0]
		it.stack[top] = it.stack[top][1:]

		if sub, ok := op.(*Chain); ok {
			it.stack = append(it.stack, sub.list)
			continue
		}

		it.op = op
		return true
	}

	it.op = nil
	return false
}

// Op returns the current leaf.
func (it *Iterator) Op() layer.Operation { return it.op }

var _ layer.Operation = (*Chain)(nil)
