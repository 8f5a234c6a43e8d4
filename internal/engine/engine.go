// Package engine runs a model graph on named tensors. The ONNX Runtime
// adapter is compiled only with the onnxruntime build tag; other builds get a
// factory that reports ErrUnavailable.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is returned by factories whose runtime is not compiled in.
var ErrUnavailable = errors.New("onnx runtime not available in this build (rebuild with -tags onnxruntime)")

// DType is a tensor element type.
type DType string

const (
	Float32 DType = "float32"
	Int64   DType = "int64"
)

// Tensor is a dense row-major tensor. Exactly one of Float or Int holds the
// data, selected by DType.
type Tensor struct {
	DType DType     `json:"dtype"`
	Dims  []int64   `json:"dims"`
	Float []float32 `json:"float,omitempty"`
	Int   []int64   `json:"int,omitempty"`
}

// NewFloat32 wraps data with the given shape.
func NewFloat32(dims []int64, data []float32) (*Tensor, error) {
	t := &Tensor{DType: Float32, Dims: dims, Float: data}
	return t, t.Validate()
}

// NewInt64 wraps data with the given shape.
func NewInt64(dims []int64, data []int64) (*Tensor, error) {
	t := &Tensor{DType: Int64, Dims: dims, Int: data}
	return t, t.Validate()
}

// Elements is the product of dims.
func Elements(dims []int64) int64 {
	n := int64(1)
	for _, d := range dims {
		n *= d
	}
	return n
}

// Validate checks that the data length matches the shape.
func (t *Tensor) Validate() error {
	for _, d := range t.Dims {
		if d < 0 {
			return fmt.Errorf("tensor: negative dimension in %v", t.Dims)
		}
	}
	want := Elements(t.Dims)
	var got int
	switch t.DType {
	case Float32:
		got = len(t.Float)
	case Int64:
		got = len(t.Int)
	default:
		return fmt.Errorf("tensor: unsupported dtype %q", t.DType)
	}
	if int64(got) != want {
		return fmt.Errorf("tensor: %d elements for shape %v (want %d)", got, t.Dims, want)
	}
	return nil
}

// Vector returns the innermost float32 vector addressed by the leading
// indices, e.g. logits.Vector(0, pos) on a [batch, seq, vocab] tensor. The
// slice aliases the tensor data.
func (t *Tensor) Vector(index ...int) ([]float32, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("tensor: Vector on %s tensor", t.DType)
	}
	if len(index) != len(t.Dims)-1 {
		return nil, fmt.Errorf("tensor: %d indices for rank %d", len(index), len(t.Dims))
	}
	off := int64(0)
	for i, idx := range index {
		if idx < 0 || int64(idx) >= t.Dims[i] {
			return nil, fmt.Errorf("tensor: index %d out of range for dim %d (size %d)", idx, i, t.Dims[i])
		}
		off = off*t.Dims[i] + int64(idx)
	}
	inner := t.Dims[len(t.Dims)-1]
	off *= inner
	return t.Float[off : off+inner], nil
}

// Options configures an engine session.
type Options struct {
	// ExecutionProviders lists providers in preference order. See
	// NormalizeProviders.
	ExecutionProviders []string
	// Outputs restricts the graph outputs fetched per run. Empty fetches all.
	Outputs []string
}

// Engine is a loaded model graph. Run may be called from several goroutines.
type Engine interface {
	Inputs() []string
	Outputs() []string
	Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error)
	Close() error
}

// Factory opens an engine from a model file on disk.
type Factory interface {
	Open(ctx context.Context, path string, opts Options) (Engine, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, path string, opts Options) (Engine, error)

func (f FactoryFunc) Open(ctx context.Context, path string, opts Options) (Engine, error) {
	return f(ctx, path, opts)
}

const (
	ProviderCPU  = "cpu"
	ProviderCUDA = "cuda"
)

// NormalizeProviders lowercases and deduplicates provider names. "wasm" is
// accepted as an alias for cpu. An empty list selects cpu.
func NormalizeProviders(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "":
			continue
		case "wasm":
			name = ProviderCPU
		case ProviderCPU, ProviderCUDA:
		default:
			return nil, fmt.Errorf("unknown execution provider %q (expected cpu or cuda)", raw)
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		out = append(out, ProviderCPU)
	}
	return out, nil
}
