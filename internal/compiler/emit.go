package compiler

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/FlavioCFOliveira/minideep/internal/net"
)

// generator writes the body of a generated file: both types, their methods
// and the helpers they use.
type generator struct {
	lib       *Library
	inlineAll bool
	plan      *plan
	flat      *net.Chain

	typ  string // operation type name
	grad string // gradient type name

	deps map[string]bool
	buf  bytes.Buffer
	err  error
}

func (g *generator) printf(format string, args ...interface{}) {
	fmt.Fprintf(&g.buf, format, args...)
}

// kernel emits a use of the named template. After the first failure nothing
// is emitted anymore.
func (g *generator) kernel(name string, args ...interface{}) {
	if g.err != nil {
		return
	}
	exprs := make([]string, len(args))
	for i, a := range args {
		exprs[i] = fmt.Sprint(a)
	}
	g.err = g.compileTemplate(name, exprs...)
}

// compileTemplate emits the named template applied to the argument
// expressions. A must-inline template takes the destination of its result as
// an extra last argument.
func (g *generator) compileTemplate(name string, args ...string) error {
	t, ok := g.lib.Template(name)
	if !ok {
		return errors.Wrapf(ErrUnknownTemplate, "%s", name)
	}

	params := t.Params
	if t.MustInline {
		params = append(params[:len(params):len(params)], t.Result)
	}
	if len(args) != len(params) {
		return errors.Wrapf(ErrParamCount, "template %q requires %d parameters [%s], but specified expression list has %d [%s]",
			name, len(params), strings.Join(params, ", "), len(args), strings.Join(args, ", "))
	}

	inline := t.MustInline || (g.inlineAll && t.inlinable && !strings.HasPrefix(name, "Write"))
	if !inline {
		if err := g.record(name); err != nil {
			return err
		}
		g.printf("%s(%s)\n", helperName(name), strings.Join(args, ", "))
		return nil
	}

	subst := make(map[string]string, len(params))
	for i, param := range params {
		arg := args[i]
		if !simpleExpr(arg) {
			arg = "(" + arg + ")"
		}
		subst[param] = arg
	}

	var err error
	body := g.lib.substitute(t.body, subst, func(dep string) {
		if err == nil {
			err = g.record(dep)
		}
	})
	if err != nil {
		return err
	}
	g.printf("{%s}\n", body)
	return nil
}

// record marks a library declaration, and everything it refers to, as needed
// by the generated code.
func (g *generator) record(name string) error {
	if g.deps[name] {
		return nil
	}
	d, ok := g.lib.decls[name]
	if !ok {
		return errors.Wrapf(ErrUnknownTemplate, "%s", name)
	}
	g.deps[name] = true
	for _, ref := range d.refs {
		if err := g.record(ref); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) file() {
	g.operationType()
	g.gradientType()

	g.printf("var (\n")
	g.printf("_ minideep.Operation = (*%s)(nil)\n", g.typ)
	g.printf("_ minideep.Gradient = (*%s)(nil)\n", g.grad)
	g.printf(")\n\n")

	g.helpers()
}

func (g *generator) helpers() {
	names := make([]string, 0, len(g.deps))
	for name := range g.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[string]bool)
	for _, name := range names {
		text := g.lib.substitute(g.lib.decls[name].text, nil, func(string) {})
		if seen[text] {
			continue
		}
		seen[text] = true
		g.printf("%s\n\n", text)
	}
}

func (g *generator) method(recv, signature string, body func()) {
	g.printf("func (%s) %s {\n", recv, signature)
	body()
	g.printf("}\n\n")
}

// fwd is the forward storage of a slot. Slot 0 is the input parameter.
func (g *generator) fwd(slot int) string {
	if slot == 0 {
		return "inp"
	}
	return "op." + g.plan.a(slot)
}

// gr is the gradient storage of a slot.
func (g *generator) gr(slot int) string {
	return "g." + g.plan.a(slot)
}

func (g *generator) dense(fn func(n *node)) {
	for i := range g.plan.nodes {
		if g.plan.nodes[i].kind == denseNode {
			fn(&g.plan.nodes[i])
		}
	}
}

func (g *generator) pad() {
	g.printf("sb.WriteString(pad)\n")
}

func (g *generator) str(s string) {
	g.printf("sb.WriteString(%s)\n", strconv.Quote(s))
}

func (g *generator) notProvided(helper string) {
	g.printf("panic(minideep.%s(%q))\n", helper, fmt.Sprintf("%T", g.plan.last().op))
}

// gradientCheck asserts the concrete gradient type, binding it to g if bind is
// set.
func (g *generator) gradientCheck(bind bool) {
	if bind {
		g.printf("g, ok := grad.(*%s)\nif !ok {\n", g.grad)
		g.printf("return fmt.Errorf(\"%%w: gradient must be of type %%T, but it is a %%T\", minideep.ErrShapeMismatch, g, grad)\n}\n")
		return
	}
	g.printf("if _, ok := grad.(*%s); !ok {\n", g.grad)
	g.printf("return fmt.Errorf(\"%%w: gradient must be of type %%T, but it is a %%T\", minideep.ErrShapeMismatch, (*%s)(nil), grad)\n}\n", g.grad)
}

func (g *generator) operationType() {
	p := g.plan
	recv := "op *" + g.typ

	g.printf("// %s is the compiled form of %s.\n", g.typ, g.flat.Layout())
	g.printf("type %s struct {\n", g.typ)
	for s := 1; s <= p.storage; s++ {
		g.printf("%s []float32\n", p.a(s))
	}
	if p.params > 0 {
		g.printf("\n")
		g.dense(func(n *node) { g.printf("%s []float32\n", p.w(n.param)) })
		g.dense(func(n *node) { g.printf("%s []float32\n", p.b(n.param)) })
	}
	if p.hasLoss() {
		g.printf("\nloss float32\n")
	}
	g.printf("}\n\n")

	g.printf("func New%s() *%s {\nreturn &%s{\n", g.typ, g.typ, g.typ)
	for s := 1; s <= p.storage; s++ {
		g.printf("%s: make([]float32, %d),\n", p.a(s), p.sizes[s])
	}
	g.dense(func(n *node) { g.printf("%s: make([]float32, %d),\n", p.w(n.param), n.outSize*n.inSize) })
	g.dense(func(n *node) { g.printf("%s: make([]float32, %d),\n", p.b(n.param), n.outSize) })
	g.printf("}\n}\n\n")

	last := p.last()

	g.method(recv, "InputSize() int", func() {
		g.printf("return %d\n", p.nodes[0].inSize)
	})
	g.method(recv, "HasOutput() bool", func() {
		g.printf("return %t\n", p.hasOutput())
	})
	g.method(recv, "OutputSize() int", func() {
		if p.hasOutput() {
			g.printf("return %d\n", last.outSize)
		} else {
			g.notProvided("OutputNotProvided")
		}
	})
	g.method(recv, "CalcOutput(inp []float32) []float32", func() {
		for i := range p.nodes {
			g.forward(&p.nodes[i])
		}
		if p.hasOutput() {
			g.printf("return %s\n", g.fwd(last.out))
		} else {
			g.printf("return %s\n", g.fwd(last.in))
		}
	})
	g.method(recv, "Output() []float32", func() {
		if p.hasOutput() {
			g.printf("return %s\n", g.fwd(last.out))
		} else {
			g.notProvided("OutputNotProvided")
		}
	})

	g.method(recv, "HasLoss() bool", func() {
		g.printf("return %t\n", p.hasLoss())
	})
	g.method(recv, "CalcLoss(inp, target []float32) float32", func() {
		if !p.hasLoss() {
			g.notProvided("LossNotProvided")
			return
		}
		predicted := g.fwd(last.in)
		if last.kind.combined() {
			predicted = g.fwd(last.out)
		}
		if last.inSize == 1 {
			g.kernel("CrossEntropyLossTwofold", predicted, "target", "op.loss")
		} else {
			g.kernel("CrossEntropyLossManifold", predicted, "target", last.inSize, "op.loss")
		}
		g.printf("return op.loss\n")
	})
	g.method(recv, "Loss() float32", func() {
		if p.hasLoss() {
			g.printf("return op.loss\n")
		} else {
			g.notProvided("LossNotProvided")
		}
	})

	g.method(recv, "InitParams(rnd *rand.Rand)", func() {
		if p.params == 0 {
			return
		}
		g.printf("var xavierFactor float32\n")
		g.dense(func(n *node) {
			g.printf("\nxavierFactor = 2.0 / float32(%d)\n", n.inSize+n.outSize)
			g.kernel("AssignGaussianMat", "op."+p.w(n.param), "xavierFactor", "rnd", n.outSize, n.inSize)
			g.kernel("AssignVecSca", "op."+p.b(n.param), 0, n.outSize)
		})
	})

	g.method(recv, "CreateGradient() minideep.Gradient", func() {
		g.printf("return New%s()\n", g.grad)
	})

	target := "target"
	if !p.hasLoss() {
		target = "upstream"
	}
	g.method(recv, "CalcGradient(inp, "+target+" []float32, grad minideep.Gradient) error", func() {
		g.gradientCheck(true)
		if !p.hasLoss() {
			g.kernel("AssignVecVec", "upstream", g.gr(last.out), last.outSize)
		}
		for i := len(p.nodes) - 1; i >= 0; i-- {
			g.backward(&p.nodes[i])
		}
		g.printf("return nil\n")
	})

	g.method(recv, "Learn(grad minideep.Gradient, negLearningRate float32) error", func() {
		g.gradientCheck(p.params > 0)
		g.dense(func(n *node) {
			g.kernel("MulAddMatSca", "g."+p.w(n.param), "negLearningRate", "op."+p.w(n.param), n.outSize, n.inSize)
			g.kernel("MulAddVecSca", "g."+p.b(n.param), "negLearningRate", "op."+p.b(n.param), n.outSize)
		})
		g.printf("return nil\n")
	})

	g.method(recv, "TypeShortname() string", func() {
		g.printf("return %q\n", "compiled:"+g.flat.TypeShortname())
	})
	g.method(recv, "Layout() string", func() {
		g.printf("return %q\n", "compiled:"+g.flat.Layout())
	})
	g.method(recv, "WriteLayoutAndValues(sb *strings.Builder, indent int)", func() {
		g.printf("pad := strings.Repeat(\" \", indent)\n\n")
		g.pad()
		g.str("compiled:" + g.flat.Layout() + ":")
		for i := range p.nodes {
			g.printf("\n")
			g.str("\n")
			g.dumpNode(&p.nodes[i])
		}
	})
	g.method(recv, "String() string", func() {
		g.printf("var sb strings.Builder\nop.WriteLayoutAndValues(&sb, 0)\nreturn sb.String()\n")
	})
}

func (g *generator) forward(n *node) {
	p := g.plan
	switch n.kind {
	case denseNode:
		g.kernel("MulMatVecPlusBias", "op."+p.w(n.param), g.fwd(n.in), "op."+p.b(n.param), g.fwd(n.out), n.outSize, n.inSize)
	case identityNode:
		g.kernel("AssignVecVec", g.fwd(n.in), g.fwd(n.out), n.outSize)
	case reluNode:
		g.kernel("ReluVec", g.fwd(n.in), g.fwd(n.out), n.outSize)
	case sigmoidNode, sigmoidCENode:
		g.kernel("SigmoidVec", g.fwd(n.in), g.fwd(n.out), n.outSize)
	case tanhNode:
		g.kernel("TanhVec", g.fwd(n.in), g.fwd(n.out), n.outSize)
	case softplusNode:
		g.kernel("SoftplusVec", g.fwd(n.in), g.fwd(n.out), n.outSize)
	case swishNode:
		g.kernel("SwishVec", g.fwd(n.in), g.fwd(n.sig), g.fwd(n.out), n.outSize)
	case softmaxCENode:
		g.kernel("SoftmaxVec", g.fwd(n.in), g.fwd(n.out), n.outSize)
	}
}

// backward writes the gradient with respect to the node's input into the
// gradient slot of its input. The gradient with respect to its output is
// already in the gradient slot of its output.
func (g *generator) backward(n *node) {
	p := g.plan
	switch n.kind {
	case denseNode:
		w, b := p.w(n.param), p.b(n.param)
		g.kernel("OuterProduct", g.gr(n.out), g.fwd(n.in), "g."+w, n.outSize, n.inSize)
		g.kernel("MulVecMat", g.gr(n.out), "op."+w, g.gr(n.in), n.outSize, n.inSize)
		g.kernel("AssignVecVec", g.gr(n.out), "g."+b, n.outSize)
	case identityNode:
		g.kernel("AssignVecVec", g.gr(n.out), g.gr(n.in), n.outSize)
	case reluNode:
		g.kernel("ReluDerivativeVec", g.gr(n.in), g.fwd(n.in), g.gr(n.out), n.outSize)
	case sigmoidNode:
		g.kernel("SigmoidDerivativeVec", g.gr(n.in), g.fwd(n.out), g.gr(n.out), n.outSize)
	case tanhNode:
		g.kernel("TanhDerivativeVec", g.gr(n.in), g.fwd(n.out), g.gr(n.out), n.outSize)
	case softplusNode:
		g.kernel("SoftplusDerivativeVec", g.gr(n.in), g.fwd(n.in), g.gr(n.out), n.outSize)
	case swishNode:
		g.kernel("SwishDerivativeVec", g.gr(n.in), g.fwd(n.out), g.fwd(n.sig), g.gr(n.out), n.outSize)
	case sigmoidCENode:
		if n.outSize == 1 {
			g.kernel("SigmoidWithCrossEntropyLossGradientTwofold", g.fwd(n.out), "target", g.gr(n.in))
		} else {
			g.kernel("SigmoidWithCrossEntropyLossGradientManifold", g.fwd(n.out), "target", n.outSize, g.gr(n.in))
		}
	case softmaxCENode:
		g.kernel("SoftmaxWithCrossEntropyLossGradient", g.fwd(n.out), "target", n.outSize, g.gr(n.in))
	case crossEntropyNode:
		if n.inSize == 1 {
			g.kernel("CrossEntropyLossGradientTwofold", g.fwd(n.in), "target", g.gr(n.in))
		} else {
			g.kernel("CrossEntropyLossGradientManifold", g.fwd(n.in), "target", n.inSize, g.gr(n.in))
		}
	}
}

// dumpNode writes the dump of a node as an element of a chain.
func (g *generator) dumpNode(n *node) {
	p := g.plan
	layout := n.op.Layout()

	switch n.kind {
	case denseNode:
		w, b := p.w(n.param), p.b(n.param)
		g.pad()
		g.str("    " + layout + "\n")
		g.pad()
		g.str("        weights: ")
		g.kernel("WriteMat", "sb", "op."+w, n.outSize, n.inSize, "indent+17")
		g.str("\n")
		g.pad()
		g.str("        bias   : ")
		g.kernel("WriteVec", "sb", "op."+b, n.outSize)
		g.str("\n")
		g.pad()
		g.str("        out    : ")
		g.kernel("WriteVec", "sb", g.fwd(n.out), n.outSize)
	case crossEntropyNode:
		g.pad()
		g.str("    " + layout + ": loss: ")
		g.kernel("WriteSca", "sb", "op.loss")
	default:
		g.pad()
		g.str("    " + layout + ": out: ")
		g.kernel("WriteVec", "sb", g.fwd(n.out), n.outSize)
		if n.kind.combined() {
			g.str("\n")
			g.pad()
			g.str("        loss: ")
			g.kernel("WriteSca", "sb", "op.loss")
		}
	}
}

func (g *generator) gradientType() {
	p := g.plan
	recv := "g *" + g.grad
	chainGrad := g.flat.CreateGradient().(*net.ChainGradient)

	g.printf("// %s is the gradient of %s.\n", g.grad, g.typ)
	g.printf("type %s struct {\n", g.grad)
	for s := 0; s <= p.storage; s++ {
		g.printf("%s []float32\n", p.a(s))
	}
	if p.params > 0 {
		g.printf("\n")
		g.dense(func(n *node) { g.printf("%s []float32\n", p.w(n.param)) })
		g.dense(func(n *node) { g.printf("%s []float32\n", p.b(n.param)) })
	}
	g.printf("}\n\n")

	g.printf("func New%s() *%s {\nreturn &%s{\n", g.grad, g.grad, g.grad)
	for s := 0; s <= p.storage; s++ {
		g.printf("%s: make([]float32, %d),\n", p.a(s), p.sizes[s])
	}
	g.dense(func(n *node) { g.printf("%s: make([]float32, %d),\n", p.w(n.param), n.outSize*n.inSize) })
	g.dense(func(n *node) { g.printf("%s: make([]float32, %d),\n", p.b(n.param), n.outSize) })
	g.printf("}\n}\n\n")

	g.method(recv, "InputGrad() []float32", func() {
		g.printf("return g.%s\n", p.a(0))
	})
	g.method(recv, "Clear()", func() {
		for s := 0; s <= p.storage; s++ {
			g.kernel("AssignVecSca", g.gr(s), 0, p.sizes[s])
		}
		g.dense(func(n *node) {
			g.kernel("AssignMatSca", "g."+p.w(n.param), 0, n.outSize, n.inSize)
			g.kernel("AssignVecSca", "g."+p.b(n.param), 0, n.outSize)
		})
	})
	g.method(recv, "EnsureCompatibleForAdd(other minideep.Gradient) error", func() {
		g.printf("if _, ok := other.(*%s); !ok {\n", g.grad)
		g.printf("return fmt.Errorf(\"%%w: other gradient of type %%T is not the same gradient type as this gradient, which is a %%T\", minideep.ErrShapeMismatch, other, g)\n}\n")
		g.printf("return nil\n")
	})
	g.method(recv, "Add(other minideep.Gradient) error", func() {
		g.printf("if err := g.EnsureCompatibleForAdd(other); err != nil {\nreturn err\n}\n")
		g.printf("og := other.(*%s)\n\n", g.grad)
		for s := 0; s <= p.storage; s++ {
			g.kernel("AddVec", g.gr(s), "og."+p.a(s), p.sizes[s])
		}
		g.dense(func(n *node) {
			g.kernel("AddMat", "g."+p.w(n.param), "og."+p.w(n.param), n.outSize, n.inSize)
			g.kernel("AddVec", "g."+p.b(n.param), "og."+p.b(n.param), n.outSize)
		})
		g.printf("return nil\n")
	})
	g.method(recv, "Mul(factor float32)", func() {
		for s := 0; s <= p.storage; s++ {
			g.kernel("MulVecSca", g.gr(s), "factor", p.sizes[s])
		}
		g.dense(func(n *node) {
			g.kernel("MulMatSca", "g."+p.w(n.param), "factor", n.outSize, n.inSize)
			g.kernel("MulVecSca", "g."+p.b(n.param), "factor", n.outSize)
		})
	})

	g.method(recv, "TypeShortname() string", func() {
		g.printf("return %q\n", "compiled:"+chainGrad.TypeShortname())
	})
	g.method(recv, "Layout() string", func() {
		g.printf("return %q\n", "compiled:"+chainGrad.Layout())
	})
	g.method(recv, "WriteLayoutAndValues(sb *strings.Builder, indent int)", func() {
		g.printf("pad := strings.Repeat(\" \", indent)\n\n")
		g.pad()
		g.str("compiled:" + chainGrad.Layout() + ":")
		for i := range p.nodes {
			g.printf("\n")
			g.str("\n")
			g.dumpGradient(&p.nodes[i], chainGrad.Element(i).Layout())
		}
	})
	g.method(recv, "String() string", func() {
		g.printf("var sb strings.Builder\ng.WriteLayoutAndValues(&sb, 0)\nreturn sb.String()\n")
	})
}

// dumpGradient writes the dump of a node's gradient as an element of a chain
// gradient.
func (g *generator) dumpGradient(n *node, layout string) {
	p := g.plan

	if n.kind != denseNode {
		g.pad()
		g.str("    " + layout + ": inp: ")
		g.kernel("WriteVec", "sb", g.gr(n.in), n.inSize)
		return
	}

	w, b := p.w(n.param), p.b(n.param)
	g.pad()
	g.str("    " + layout + "\n")
	g.pad()
	g.str("        inp    : ")
	g.kernel("WriteVec", "sb", g.gr(n.in), n.inSize)
	g.str("\n")
	g.pad()
	g.str("        weights: ")
	g.kernel("WriteMat", "sb", "g."+w, n.outSize, n.inSize, "indent+17")
	g.str("\n")
	g.pad()
	g.str("        bias   : ")
	g.kernel("WriteVec", "sb", "g."+b, n.outSize)
}
