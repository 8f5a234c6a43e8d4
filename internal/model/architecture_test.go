package model

import (
	"errors"
	"slices"
	"testing"

	"github.com/samcharles93/lmpeek/internal/engine"
)

func TestGPT2OutputNames(t *testing.T) {
	t.Parallel()
	a := GPT2()
	if err := a.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	names := a.OutputNames()
	if want := 3 + 12*(7+5*12) + 2; len(names) != want {
		t.Fatalf("expected %d outputs, got %d", want, len(names))
	}
	for _, want := range []string{
		"tok_emb",
		"block_0_block_input",
		"block_3_attn_attn_input",
		"block_11_attn_head_11_attn_softmax",
		"block_5_attn_head_2_attn_value_output",
		"block_7_mlp_mlp_activation",
		"linear_output",
	} {
		if !slices.Contains(names, want) {
			t.Fatalf("expected output %q", want)
		}
	}
	if names[len(names)-1] != "linear_output" {
		t.Fatalf("logits should come last, got %q", names[len(names)-1])
	}
}

func TestWithShape(t *testing.T) {
	t.Parallel()
	a := GPT2().WithShape(2, 0)
	if a.Layers != 2 || a.Heads != 12 {
		t.Fatalf("unexpected shape %d x %d", a.Layers, a.Heads)
	}
	bad := GPT2()
	bad.Layers = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for zero layers")
	}
}

func tensor(v float32) *engine.Tensor {
	return &engine.Tensor{DType: engine.Float32, Dims: []int64{1}, Float: []float32{v}}
}

func TestRestructure(t *testing.T) {
	t.Parallel()
	a := GPT2().WithShape(2, 3)
	raw := map[string]*engine.Tensor{}
	for i, name := range a.OutputNames() {
		raw[name] = tensor(float32(i))
	}

	out, err := Restructure(a, raw)
	if err != nil {
		t.Fatalf("restructure: %v", err)
	}
	if len(out.Layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(out.Layers))
	}
	for l, layer := range out.Layers {
		if len(layer.AttnHeads) != 3 {
			t.Fatalf("layer %d: expected 3 heads, got %d", l, len(layer.AttnHeads))
		}
	}
	if out.Layers[1].AttnHeads[2].AttnWeight != raw["block_1_attn_head_2_attn_softmax"] {
		t.Fatal("attention weight not taken from the softmax output")
	}
	if out.Layers[0].MLP.Activation != raw["block_0_mlp_mlp_activation"] {
		t.Fatal("mlp activation misplaced")
	}
	if out.Final.Logits != raw["linear_output"] || out.Embeddings.PosEmb != raw["pos_emb"] {
		t.Fatal("final or embedding outputs misplaced")
	}
}

func TestRestructureToleratesMissingIntermediates(t *testing.T) {
	t.Parallel()
	a := GPT2().WithShape(1, 1)
	out, err := Restructure(a, map[string]*engine.Tensor{"linear_output": tensor(1)})
	if err != nil {
		t.Fatalf("restructure: %v", err)
	}
	if out.Layers[0].BlockInput != nil || out.Layers[0].AttnHeads[0].Q != nil {
		t.Fatal("expected nil for activations the graph does not export")
	}

	if _, err := Restructure(a, map[string]*engine.Tensor{"tok_emb": tensor(1)}); err == nil {
		t.Fatal("expected error without logits")
	}
}

func TestPadBatch(t *testing.T) {
	t.Parallel()
	flat, maxLen, err := PadBatch([][]int{{5, 6, 7}, {8}, {}}, 0)
	if err != nil {
		t.Fatalf("pad: %v", err)
	}
	if maxLen != 3 {
		t.Fatalf("expected max length 3, got %d", maxLen)
	}
	want := []int64{5, 6, 7, 8, 0, 0, 0, 0, 0}
	if !slices.Equal(flat, want) {
		t.Fatalf("got %v, want %v", flat, want)
	}

	if _, _, err := PadBatch(nil, 0); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
	if _, _, err := PadBatch([][]int{{}, {}}, 0); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch for all-empty inputs, got %v", err)
	}
}

func TestLastLogits(t *testing.T) {
	t.Parallel()
	data := []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	logits, _ := engine.NewFloat32([]int64{2, 2, 3}, data)
	out := &Outputs{Final: Final{Logits: logits}}

	v, err := out.LastLogits(0, -1)
	if err != nil {
		t.Fatalf("last logits: %v", err)
	}
	if !slices.Equal(v, []float32{3, 4, 5}) {
		t.Fatalf("unexpected vector %v", v)
	}
	v, _ = out.LastLogits(1, 0)
	if !slices.Equal(v, []float32{6, 7, 8}) {
		t.Fatalf("unexpected vector %v", v)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"", "gpt-2", "GPT2"} {
		s, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		if s.Type != DefaultType || s.Architecture().Layers != 12 {
			t.Fatalf("Lookup(%q) returned %+v", name, s)
		}
	}
	if _, err := Lookup("llama-9000"); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if !slices.Contains(Types(), "gpt-2") {
		t.Fatalf("expected gpt-2 in %v", Types())
	}
}
