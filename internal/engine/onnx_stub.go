//go:build !onnxruntime

package engine

import "context"

// Available reports whether ONNX support is compiled in.
func Available() bool { return false }

// ONNX returns a factory that always fails with ErrUnavailable.
func ONNX(string) Factory {
	return FactoryFunc(func(context.Context, string, Options) (Engine, error) {
		return nil, ErrUnavailable
	})
}
