// Package model describes inspectable model graphs: how many layers and heads
// they have, which graph outputs hold each intermediate activation, and how a
// flat set of engine outputs folds into a per-layer hierarchy.
package model

import (
	"fmt"
)

// Names maps every activation of a transformer graph to its output name.
type Names struct {
	TokEmb   string
	PosEmb   string
	InputEmb string

	BlockInput    func(layer int) string
	AttnInput     func(layer int) string
	AttnOutput    func(layer int) string
	MLPInput      func(layer int) string
	MLPActivation func(layer int) string
	MLPOutput     func(layer int) string
	BlockOutput   func(layer int) string

	HeadQ               func(layer, head int) string
	HeadK               func(layer, head int) string
	HeadV               func(layer, head int) string
	HeadAttnWeight      func(layer, head int) string
	HeadAttnValueOutput func(layer, head int) string

	LnFOutput string
	Logits    string
}

// Architecture is the shape of a model graph.
type Architecture struct {
	Name       string
	Layers     int
	Heads      int
	BOSTokenID int
	PadTokenID int
	// InputName is the graph input receiving the [batch, seq] int64 ids.
	InputName string
	Names     Names
}

// GPT2 returns the architecture of the instrumented GPT-2 small export.
func GPT2() Architecture {
	block := func(suffix string) func(int) string {
		return func(layer int) string { return fmt.Sprintf("block_%d_%s", layer, suffix) }
	}
	head := func(suffix string) func(int, int) string {
		return func(layer, h int) string { return fmt.Sprintf("block_%d_attn_head_%d_%s", layer, h, suffix) }
	}
	return Architecture{
		Name:       "gpt-2",
		Layers:     12,
		Heads:      12,
		BOSTokenID: 50256,
		PadTokenID: 0,
		InputName:  "input",
		Names: Names{
			TokEmb:   "tok_emb",
			PosEmb:   "pos_emb",
			InputEmb: "input_emb",

			BlockInput:    block("block_input"),
			AttnInput:     block("attn_attn_input"),
			AttnOutput:    block("attn_attn_output"),
			MLPInput:      block("mlp_mlp_input"),
			MLPActivation: block("mlp_mlp_activation"),
			MLPOutput:     block("mlp_mlp_output"),
			BlockOutput:   block("block_output"),

			HeadQ:               head("q"),
			HeadK:               head("k"),
			HeadV:               head("v"),
			HeadAttnWeight:      head("attn_softmax"),
			HeadAttnValueOutput: head("attn_value_output"),

			LnFOutput: "ln_f_output",
			Logits:    "linear_output",
		},
	}
}

// WithShape overrides the layer and head counts when they are positive.
func (a Architecture) WithShape(layers, heads int) Architecture {
	if layers > 0 {
		a.Layers = layers
	}
	if heads > 0 {
		a.Heads = heads
	}
	return a
}

// Validate checks that the architecture can be used to build and read a
// forward pass.
func (a Architecture) Validate() error {
	if a.Layers <= 0 || a.Heads <= 0 {
		return fmt.Errorf("architecture %s: layers and heads must be positive (got %d, %d)", a.Name, a.Layers, a.Heads)
	}
	if a.InputName == "" {
		return fmt.Errorf("architecture %s: missing input name", a.Name)
	}
	n := a.Names
	if n.Logits == "" {
		return fmt.Errorf("architecture %s: missing logits output name", a.Name)
	}
	for _, fn := range []func(int) string{n.BlockInput, n.AttnInput, n.AttnOutput, n.MLPInput, n.MLPActivation, n.MLPOutput, n.BlockOutput} {
		if fn == nil {
			return fmt.Errorf("architecture %s: incomplete layer names", a.Name)
		}
	}
	for _, fn := range []func(int, int) string{n.HeadQ, n.HeadK, n.HeadV, n.HeadAttnWeight, n.HeadAttnValueOutput} {
		if fn == nil {
			return fmt.Errorf("architecture %s: incomplete head names", a.Name)
		}
	}
	return nil
}

// OutputNames lists every graph output the architecture reads, in
// hierarchy order.
func (a Architecture) OutputNames() []string {
	n := a.Names
	out := make([]string, 0, 5+a.Layers*(7+5*a.Heads))
	out = append(out, n.TokEmb, n.PosEmb, n.InputEmb)
	for l := 0; l < a.Layers; l++ {
		out = append(out, n.BlockInput(l), n.AttnInput(l))
		for h := 0; h < a.Heads; h++ {
			out = append(out, n.HeadQ(l, h), n.HeadK(l, h), n.HeadV(l, h), n.HeadAttnWeight(l, h), n.HeadAttnValueOutput(l, h))
		}
		out = append(out, n.AttnOutput(l), n.MLPInput(l), n.MLPActivation(l), n.MLPOutput(l), n.BlockOutput(l))
	}
	return append(out, n.LnFOutput, n.Logits)
}
