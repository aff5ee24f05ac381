// Package compiler translates a chain of operations into standalone Go source.
//
// The generated type has the chain's exact behavior: same outputs, losses,
// gradients and dumps, bit for bit. It holds every buffer and parameter as a
// plain field, knows all shapes as constants and calls no interface method.
// The numeric code is taken from the kernel library, either spliced into the
// methods or copied as helper functions. Only the helpers that are used are
// emitted.
package compiler

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"math/rand"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/FlavioCFOliveira/minideep/internal/kernels"
	"github.com/FlavioCFOliveira/minideep/internal/layer"
	"github.com/FlavioCFOliveira/minideep/internal/net"
)

// DefaultFacadePath is the import path of the public package generated code
// depends on.
const DefaultFacadePath = "github.com/FlavioCFOliveira/minideep/minideep"

var (
	// ErrUnknownTemplate is returned for references to templates or
	// declarations the kernel library does not have.
	ErrUnknownTemplate = errors.New("unknown template name")

	// ErrParamCount is returned when a template is used with the wrong number
	// of arguments.
	ErrParamCount = errors.New("template parameter count mismatch")

	// ErrUnsupportedNode is returned for chains the compiler cannot translate.
	ErrUnsupportedNode = errors.New("unsupported node")
)

// Options configures a Compiler.
type Options struct {
	// PackageName is the package clause of the generated file, "compiled"
	// if empty.
	PackageName string

	// TypeName is the name of the generated type. If empty, a name is made up
	// by GenerateTypeName.
	TypeName string

	// InlineAll splices every template into the methods. If false, only
	// must-inline templates are spliced and all others become helper calls.
	InlineAll bool

	// FacadePath is the import path of the package providing Operation,
	// Gradient and the error helpers, DefaultFacadePath if empty.
	FacadePath string
}

// Compiler generates Go source for chains.
type Compiler struct {
	opts Options
	lib  *Library
}

// New returns a compiler using the kernel library of this module.
func New(opts Options) (*Compiler, error) {
	if opts.PackageName == "" {
		opts.PackageName = "compiled"
	}
	if opts.FacadePath == "" {
		opts.FacadePath = DefaultFacadePath
	}
	if !token.IsIdentifier(opts.PackageName) {
		return nil, errors.Errorf("invalid package name %q", opts.PackageName)
	}
	if opts.TypeName != "" && !token.IsIdentifier(opts.TypeName) {
		return nil, errors.Errorf("invalid type name %q", opts.TypeName)
	}

	lib, err := LoadLibrary(kernels.Source())
	if err != nil {
		return nil, err
	}
	return &Compiler{opts: opts, lib: lib}, nil
}

// Compile returns the formatted source of a file implementing src. A source
// with a Flattened method, such as a chain or a classifier, is compiled as its
// flat chain; any other operation as a chain of one.
func (c *Compiler) Compile(src layer.Operation) ([]byte, error) {
	var flat *net.Chain
	if f, ok := src.(interface{ Flattened() *net.Chain }); ok {
		flat = f.Flattened()
	} else {
		flat = net.NewChain(src)
	}

	p, err := newPlan(flat)
	if err != nil {
		return nil, err
	}

	typeName := c.opts.TypeName
	if typeName == "" {
		typeName = GenerateTypeName(src, nil)
	}

	g := &generator{
		lib:       c.lib,
		inlineAll: c.opts.InlineAll,
		plan:      p,
		flat:      flat,
		typ:       typeName,
		grad:      typeName + "Gradient",
		deps:      make(map[string]bool),
	}
	g.file()
	if g.err != nil {
		return nil, g.err
	}

	return c.assemble(g.buf.Bytes())
}

// assemble adds the package clause and the imports the body needs, then
// formats the file.
func (c *Compiler) assemble(body []byte) ([]byte, error) {
	var head bytes.Buffer
	fmt.Fprintf(&head, "// Code generated by nncompile. DO NOT EDIT.\n\npackage %s\n\n", c.opts.PackageName)

	const facadeName = "minideep"
	known := map[string]string{
		"fmt":      "fmt",
		"math":     "math",
		"math32":   "github.com/chewxy/math32",
		"rand":     "math/rand",
		"strconv":  "strconv",
		"strings":  "strings",
		facadeName: c.opts.FacadePath,
	}

	src := append([]byte(head.String()), body...)
	file, err := parser.ParseFile(token.NewFileSet(), "", src, parser.SkipObjectResolution)
	if err != nil {
		return nil, errors.Wrap(err, "generated code does not parse")
	}

	used := map[string]bool{}
	ast.Inspect(file, func(n ast.Node) bool {
		if sel, ok := n.(*ast.SelectorExpr); ok {
			if id, ok := sel.X.(*ast.Ident); ok {
				if _, ok := known[id.Name]; ok {
					used[id.Name] = true
				}
			}
		}
		return true
	})

	var std, ext []string
	for name := range used {
		spec := strconv.Quote(known[name])
		if name == facadeName && path.Base(c.opts.FacadePath) != facadeName {
			spec = facadeName + " " + spec
		}
		if strings.Contains(known[name], ".") {
			ext = append(ext, spec)
		} else {
			std = append(std, spec)
		}
	}
	sort.Strings(std)
	sort.Strings(ext)

	if len(std)+len(ext) > 0 {
		head.WriteString("import (\n")
		for _, spec := range std {
			head.WriteString(spec + "\n")
		}
		if len(std) > 0 && len(ext) > 0 {
			head.WriteString("\n")
		}
		for _, spec := range ext {
			head.WriteString(spec + "\n")
		}
		head.WriteString(")\n\n")
	}
	head.Write(body)

	out, err := format.Source(head.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "format generated code")
	}
	return out, nil
}

// GenerateTypeName makes up a type name for the compiled form of op, like
// CompiledChain123456. rnd may be nil.
func GenerateTypeName(op layer.Operation, rnd *rand.Rand) string {
	var n int
	if rnd != nil {
		n = rnd.Intn(1e9)
	} else {
		n = rand.Intn(1e9)
	}
	return "Compiled" + camelCase(op.TypeShortname()) + strconv.Itoa(n)
}

// camelCase turns a short name like "sigmoid-ce" into "SigmoidCe".
func camelCase(s string) string {
	var sb strings.Builder
	upper := true
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
