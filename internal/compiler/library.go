package compiler

import (
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// inlineDirective marks a template that must always be spliced into its use
// site. Its single named result is bound to a destination expression.
const inlineDirective = "//kernel:inline"

// Template is a kernel function read from the kernel library source.
type Template struct {
	Name   string
	Params []string

	// Result is the named result of a must-inline template.
	Result     string
	MustInline bool

	body      string // statements between the braces, trailing bare return removed
	inlinable bool
}

// decl is a top-level declaration of the library that generated code may
// depend on: a template or a constant.
type decl struct {
	name string
	text string
	refs []string
}

// Library holds the kernel templates and constants of a kernel source file.
type Library struct {
	templates map[string]*Template
	decls     map[string]*decl
}

// LoadLibrary parses the Go source of a kernel library. Every exported
// top-level function becomes a template and every constant a dependency that
// templates may refer to.
func LoadLibrary(src []byte) (*Library, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "kernels.go", src, parser.ParseComments)
	if err != nil {
		return nil, errors.Wrap(err, "parse kernel library")
	}

	lib := &Library{
		templates: make(map[string]*Template),
		decls:     make(map[string]*decl),
	}
	offset := func(p token.Pos) int { return fset.Position(p).Offset }

	for _, d := range file.Decls {
		switch d := d.(type) {
		case *ast.FuncDecl:
			if d.Recv != nil || !d.Name.IsExported() {
				continue
			}
			t, err := newTemplate(d, src, offset)
			if err != nil {
				return nil, err
			}
			lib.templates[t.Name] = t
			lib.decls[t.Name] = &decl{name: t.Name, text: string(src[offset(d.Pos()):offset(d.End())])}

		case *ast.GenDecl:
			if d.Tok != token.CONST {
				continue
			}
			text := string(src[offset(d.Pos()):offset(d.End())])
			for _, spec := range d.Specs {
				for _, name := range spec.(*ast.ValueSpec).Names {
					lib.decls[name.Name] = &decl{name: name.Name, text: text}
				}
			}
		}
	}

	for _, d := range lib.decls {
		seen := map[string]bool{d.name: true}
		scanIdents(d.text, func(name string, _ int) {
			if _, ok := lib.decls[name]; ok && !seen[name] {
				seen[name] = true
				d.refs = append(d.refs, name)
			}
		})
		sort.Strings(d.refs)
	}

	return lib, nil
}

func newTemplate(fn *ast.FuncDecl, src []byte, offset func(token.Pos) int) (*Template, error) {
	t := &Template{Name: fn.Name.Name}

	if fn.Doc != nil {
		for _, c := range fn.Doc.List {
			if strings.TrimSpace(c.Text) == inlineDirective {
				t.MustInline = true
			}
		}
	}

	for _, field := range fn.Type.Params.List {
		for _, name := range field.Names {
			t.Params = append(t.Params, name.Name)
		}
	}

	var results []string
	if fn.Type.Results != nil {
		for _, field := range fn.Type.Results.List {
			if len(field.Names) == 0 {
				return nil, errors.Errorf("template %q: results must be named", t.Name)
			}
			for _, name := range field.Names {
				results = append(results, name.Name)
			}
		}
	}

	stmts := fn.Body.List
	end := fn.Body.Rbrace

	if t.MustInline {
		if len(results) != 1 {
			return nil, errors.Errorf("template %q: a must-inline template needs exactly one named result, has %d", t.Name, len(results))
		}
		t.Result = results[0]

		if len(stmts) == 0 {
			return nil, errors.Errorf("template %q: a must-inline template must end with a bare return", t.Name)
		}
		ret, ok := stmts[len(stmts)-1].(*ast.ReturnStmt)
		if !ok || len(ret.Results) != 0 {
			return nil, errors.Errorf("template %q: a must-inline template must end with a bare return", t.Name)
		}
		stmts = stmts[:len(stmts)-1]
		end = ret.Pos()
	} else if len(results) != 0 {
		return nil, errors.Errorf("template %q: only must-inline templates may have results", t.Name)
	}

	t.inlinable = !containsReturn(stmts)
	if t.MustInline && !t.inlinable {
		return nil, errors.Errorf("template %q: a must-inline template may not return early", t.Name)
	}

	t.body = string(src[offset(fn.Body.Lbrace)+1 : offset(end)])
	return t, nil
}

func containsReturn(stmts []ast.Stmt) bool {
	found := false
	for _, s := range stmts {
		ast.Inspect(s, func(n ast.Node) bool {
			switch n.(type) {
			case *ast.ReturnStmt:
				found = true
			case *ast.FuncLit:
				return false
			}
			return !found
		})
	}
	return found
}

// Template returns the template with the given name.
func (l *Library) Template(name string) (*Template, bool) {
	t, ok := l.templates[name]
	return t, ok
}

// Names returns the sorted names of all templates.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.templates))
	for name := range l.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// scanIdents calls fn for every identifier of src that is not the selector
// of a qualified expression, with its byte offset.
func scanIdents(src string, fn func(name string, offset int)) {
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(src))

	var s scanner.Scanner
	s.Init(file, []byte(src), nil, 0)

	prev := token.ILLEGAL
	for {
		pos, tok, lit := s.Scan()
		if tok == token.EOF {
			return
		}
		if tok == token.IDENT && prev != token.PERIOD {
			fn(lit, file.Offset(pos))
		}
		prev = tok
	}
}

// substitute replaces identifiers of src: parameters by their argument
// expressions and library declarations by their helper names. Every library
// declaration found is passed to use.
func (l *Library) substitute(src string, args map[string]string, use func(name string)) string {
	var sb strings.Builder
	last := 0
	scanIdents(src, func(name string, offset int) {
		repl, ok := args[name]
		if !ok {
			if _, isDecl := l.decls[name]; !isDecl {
				return
			}
			use(name)
			repl = helperName(name)
		}
		sb.WriteString(src[last:offset])
		sb.WriteString(repl)
		last = offset + len(name)
	})
	sb.WriteString(src[last:])
	return sb.String()
}

// helperName is the name of a library declaration in generated code.
func helperName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToLower(r)) + name[size:]
}

// simpleExpr reports whether expr can be substituted for an identifier
// without parentheses.
func simpleExpr(expr string) bool {
	e, err := parser.ParseExpr(expr)
	if err != nil {
		return false
	}
	switch e := e.(type) {
	case *ast.Ident, *ast.SelectorExpr, *ast.IndexExpr, *ast.SliceExpr, *ast.CallExpr, *ast.ParenExpr:
		return true
	case *ast.BasicLit:
		return e.Kind != token.STRING || !strings.HasPrefix(e.Value, "`")
	}
	return false
}
