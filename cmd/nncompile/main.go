// Command nncompile writes the Go source of a compiled classifier.
//
//	nncompile -shape 4,8,3 -hidden relu -type IrisNet -o irisnet.go
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/FlavioCFOliveira/minideep/internal/activations"
	"github.com/FlavioCFOliveira/minideep/internal/compiler"
	"github.com/FlavioCFOliveira/minideep/internal/net"
)

func main() {
	shape := flag.String("shape", "2,3,1", "comma separated layer sizes, input first")
	hidden := flag.String("hidden", "tanh", "activation of the hidden layers")
	output := flag.String("output", "", "output activation, sigmoid or softmax (default by output size)")
	pkg := flag.String("package", "compiled", "package name of the generated file")
	typeName := flag.String("type", "", "name of the generated type (default made up)")
	inline := flag.Bool("inline", false, "splice all kernels into the methods")
	out := flag.String("o", "", "output file (default stdout)")
	flag.Parse()

	if err := run(*shape, *hidden, *output, *out, compiler.Options{
		PackageName: *pkg,
		TypeName:    *typeName,
		InlineAll:   *inline,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "nncompile: %v\n", err)
		os.Exit(1)
	}
}

func run(shape, hidden, output, out string, opts compiler.Options) error {
	sizes, err := parseShape(shape)
	if err != nil {
		return err
	}

	c, err := net.NewClassifier(sizes...)
	if err != nil {
		return err
	}

	hiddenType, err := activations.ParseType(hidden)
	if err != nil {
		return err
	}
	if err := c.SetHiddenActivation(hiddenType); err != nil {
		return err
	}

	if output != "" {
		outputType, err := activations.ParseType(output)
		if err != nil {
			return err
		}
		if err := c.SetOutputActivation(outputType); err != nil {
			return err
		}
	}

	comp, err := compiler.New(opts)
	if err != nil {
		return err
	}
	src, err := comp.Compile(c)
	if err != nil {
		return errors.Wrapf(err, "compile %s", c.Layout())
	}

	if out == "" {
		_, err = os.Stdout.Write(src)
		return err
	}
	return errors.Wrap(os.WriteFile(out, src, 0644), "write output")
}

func parseShape(s string) ([]int, error) {
	var sizes []int
	for _, field := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || n < 1 {
			return nil, errors.Errorf("invalid layer size %q in shape %q", field, s)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}
