package engine

import (
	"context"
	"errors"
	"testing"
)

func TestTensorValidate(t *testing.T) {
	t.Parallel()
	if _, err := NewInt64([]int64{2, 3}, make([]int64, 6)); err != nil {
		t.Fatalf("valid tensor rejected: %v", err)
	}
	if _, err := NewFloat32([]int64{2, 3}, make([]float32, 5)); err == nil {
		t.Fatal("expected length mismatch error")
	}
	if _, err := NewFloat32([]int64{-1}, nil); err == nil {
		t.Fatal("expected negative dimension error")
	}
	if err := (&Tensor{DType: "bfloat16"}).Validate(); err == nil {
		t.Fatal("expected unsupported dtype error")
	}
	// A scalar has one element.
	if _, err := NewFloat32(nil, []float32{1}); err != nil {
		t.Fatalf("scalar rejected: %v", err)
	}
}

func TestTensorVector(t *testing.T) {
	t.Parallel()
	data := make([]float32, 2*3*4)
	for i := range data {
		data[i] = float32(i)
	}
	logits, err := NewFloat32([]int64{2, 3, 4}, data)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	v, err := logits.Vector(1, 2)
	if err != nil {
		t.Fatalf("vector: %v", err)
	}
	if len(v) != 4 || v[0] != 20 || v[3] != 23 {
		t.Fatalf("unexpected vector %v", v)
	}
	if _, err := logits.Vector(2, 0); err == nil {
		t.Fatal("expected out of range error")
	}
	if _, err := logits.Vector(0); err == nil {
		t.Fatal("expected rank error")
	}
	ids, _ := NewInt64([]int64{1, 1}, []int64{5})
	if _, err := ids.Vector(0); err == nil {
		t.Fatal("expected dtype error")
	}
}

func TestNormalizeProviders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   []string
		want []string
		err  bool
	}{
		{nil, []string{"cpu"}, false},
		{[]string{"wasm"}, []string{"cpu"}, false},
		{[]string{"CUDA", " cpu ", "cuda"}, []string{"cuda", "cpu"}, false},
		{[]string{"webgl"}, nil, true},
	}
	for _, tc := range tests {
		got, err := NormalizeProviders(tc.in)
		if tc.err {
			if err == nil {
				t.Fatalf("NormalizeProviders(%v): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NormalizeProviders(%v): %v", tc.in, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("NormalizeProviders(%v) = %v, want %v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("NormalizeProviders(%v) = %v, want %v", tc.in, got, tc.want)
			}
		}
	}
}

func TestONNXWithoutRuntime(t *testing.T) {
	t.Parallel()
	if Available() {
		t.Skip("onnxruntime compiled in")
	}
	if _, err := ONNX("").Open(context.Background(), "model.onnx", Options{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
