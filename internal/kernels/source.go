package kernels

import _ "embed"

//go:embed kernels.go
var source []byte

// Source returns the Go source of the kernel library. The compiler parses it
// to obtain its templates.
func Source() []byte {
	return source
}
