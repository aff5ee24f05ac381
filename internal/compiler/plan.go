package compiler

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/FlavioCFOliveira/minideep/internal/activations"
	"github.com/FlavioCFOliveira/minideep/internal/layer"
	"github.com/FlavioCFOliveira/minideep/internal/loss"
	"github.com/FlavioCFOliveira/minideep/internal/net"
)

type nodeKind int

const (
	denseNode nodeKind = iota
	identityNode
	reluNode
	sigmoidNode
	tanhNode
	softplusNode
	swishNode
	sigmoidCENode
	softmaxCENode
	crossEntropyNode
)

// storageSlots is the number of storage vectors a node of the kind owns.
func (k nodeKind) storageSlots() int {
	switch k {
	case swishNode:
		return 2
	case crossEntropyNode:
		return 0
	}
	return 1
}

func (k nodeKind) combined() bool {
	return k == sigmoidCENode || k == softmaxCENode
}

func classify(op layer.Operation) (nodeKind, error) {
	switch op.(type) {
	case *layer.Dense:
		return denseNode, nil
	case *activations.Identity:
		return identityNode, nil
	case *activations.Relu:
		return reluNode, nil
	case *activations.Sigmoid:
		return sigmoidNode, nil
	case *activations.Tanh:
		return tanhNode, nil
	case *activations.Softplus:
		return softplusNode, nil
	case *activations.Swish:
		return swishNode, nil
	case *loss.SigmoidWithCrossEntropy:
		return sigmoidCENode, nil
	case *loss.SoftmaxWithCrossEntropy:
		return softmaxCENode, nil
	case *loss.CrossEntropy:
		return crossEntropyNode, nil
	case *activations.Softmax:
		return 0, errors.Wrapf(ErrUnsupportedNode, "%s (%T): a sole softmax has no derivative, "+
			"use a SoftmaxWithCrossEntropy instead", op.Layout(), op)
	}
	return 0, errors.Wrapf(ErrUnsupportedNode, "%s (%T)", op.Layout(), op)
}

// node is a leaf of the compiled chain with the slots assigned to it.
type node struct {
	op   layer.Operation
	kind nodeKind

	inSize  int
	outSize int // 0 for a pure cross entropy

	// storage slots; slot 0 is the chain input. sig is only used by swish,
	// out is -1 for a pure cross entropy.
	in, sig, out int

	// param is the index of the weight matrix and bias vector of a dense
	// node, -1 for other nodes.
	param int
}

// plan is the slot allocation of a flat chain.
type plan struct {
	nodes []node

	// sizes holds the length of every storage slot.
	sizes   []int
	storage int // highest storage slot
	params  int // number of weight matrices, and of bias vectors

	aWidth, pWidth int
}

func newPlan(flat *net.Chain) (*plan, error) {
	if flat.Len() == 0 {
		return nil, errors.Wrap(ErrUnsupportedNode, "cannot compile an empty chain")
	}

	p := &plan{}

	// Count the slots.
	for i := 0; i < flat.Len(); i++ {
		op := flat.Get(i)
		kind, err := classify(op)
		if err != nil {
			return nil, err
		}
		if op.HasLoss() && i != flat.Len()-1 {
			return nil, errors.Wrapf(ErrUnsupportedNode, "%s (%T): a loss must be the last element of the chain", op.Layout(), op)
		}
		if i > 0 && flat.Get(i-1).OutputSize() != op.InputSize() {
			return nil, layer.ShapeMismatch("%s (%T) takes %d inputs, but its predecessor %s has %d outputs",
				op.Layout(), op, op.InputSize(), flat.Get(i-1).Layout(), flat.Get(i-1).OutputSize())
		}

		n := node{op: op, kind: kind, inSize: op.InputSize(), param: -1}
		if op.HasOutput() {
			n.outSize = op.OutputSize()
		}
		p.nodes = append(p.nodes, n)

		p.storage += kind.storageSlots()
		if kind == denseNode {
			p.params++
		}
	}

	p.aWidth = digits(p.storage)
	p.pWidth = digits(max(p.params-1, 0))

	// Assign them in chain order; slot 0 stays the input.
	p.sizes = make([]int, p.storage+1)
	p.sizes[0] = p.nodes[0].inSize
	storage, param := 0, 0
	for i := range p.nodes {
		n := &p.nodes[i]
		n.in, n.sig, n.out = storage, -1, -1

		switch n.kind {
		case crossEntropyNode:
		case swishNode:
			n.sig, n.out = storage+1, storage+2
			p.sizes[n.sig] = n.outSize
		default:
			n.out = storage + 1
		}
		if n.out >= 0 {
			p.sizes[n.out] = n.outSize
		}
		storage += n.kind.storageSlots()

		if n.kind == denseNode {
			n.param = param
			param++
		}
	}

	return p, nil
}

func (p *plan) last() *node { return &p.nodes[len(p.nodes)-1] }

func (p *plan) hasLoss() bool   { return p.last().op.HasLoss() }
func (p *plan) hasOutput() bool { return p.last().op.HasOutput() }

func (p *plan) a(slot int) string  { return fmt.Sprintf("A%0*d", p.aWidth, slot) }
func (p *plan) w(param int) string { return fmt.Sprintf("W%0*d", p.pWidth, param) }
func (p *plan) b(param int) string { return fmt.Sprintf("B%0*d", p.pWidth, param) }

func digits(n int) int {
	return len(strconv.Itoa(n))
}
