package model

import (
	"errors"
	"fmt"

	"github.com/samcharles93/lmpeek/internal/engine"
)

// ErrEmptyBatch is returned by PadBatch when there is nothing to run.
var ErrEmptyBatch = errors.New("empty batch")

type Embeddings struct {
	TokEmb   *engine.Tensor `json:"tok_emb,omitempty"`
	PosEmb   *engine.Tensor `json:"pos_emb,omitempty"`
	InputEmb *engine.Tensor `json:"input_emb,omitempty"`
}

type AttentionHead struct {
	Q               *engine.Tensor `json:"q,omitempty"`
	K               *engine.Tensor `json:"k,omitempty"`
	V               *engine.Tensor `json:"v,omitempty"`
	AttnWeight      *engine.Tensor `json:"attn_weight,omitempty"`
	AttnValueOutput *engine.Tensor `json:"attn_value_output,omitempty"`
}

type MLP struct {
	Input      *engine.Tensor `json:"mlp_input,omitempty"`
	Activation *engine.Tensor `json:"mlp_activation,omitempty"`
	Output     *engine.Tensor `json:"mlp_output,omitempty"`
}

type Layer struct {
	BlockInput  *engine.Tensor  `json:"block_input,omitempty"`
	AttnInput   *engine.Tensor  `json:"attn_input,omitempty"`
	AttnHeads   []AttentionHead `json:"attn_heads"`
	AttnOutput  *engine.Tensor  `json:"attn_output,omitempty"`
	MLP         MLP             `json:"mlp"`
	BlockOutput *engine.Tensor  `json:"block_output,omitempty"`
}

type Final struct {
	LnFOutput *engine.Tensor `json:"ln_f_output,omitempty"`
	Logits    *engine.Tensor `json:"logits"`
}

// Outputs is one forward pass folded into embeddings, layers and final
// outputs. Intermediate activations the graph does not export are nil.
type Outputs struct {
	Embeddings Embeddings `json:"embeddings"`
	Layers     []Layer    `json:"layers"`
	Final      Final      `json:"final"`
}

// Restructure folds the flat engine outputs into the hierarchy described by
// a. Only the logits are required.
func Restructure(a Architecture, raw map[string]*engine.Tensor) (*Outputs, error) {
	n := a.Names
	logits := raw[n.Logits]
	if logits == nil {
		return nil, fmt.Errorf("missing logits output %q", n.Logits)
	}

	out := &Outputs{
		Embeddings: Embeddings{
			TokEmb:   raw[n.TokEmb],
			PosEmb:   raw[n.PosEmb],
			InputEmb: raw[n.InputEmb],
		},
		Layers: make([]Layer, a.Layers),
		Final: Final{
			LnFOutput: raw[n.LnFOutput],
			Logits:    logits,
		},
	}
	for l := range out.Layers {
		layer := Layer{
			BlockInput: raw[n.BlockInput(l)],
			AttnInput:  raw[n.AttnInput(l)],
			AttnHeads:  make([]AttentionHead, a.Heads),
			AttnOutput: raw[n.AttnOutput(l)],
			MLP: MLP{
				Input:      raw[n.MLPInput(l)],
				Activation: raw[n.MLPActivation(l)],
				Output:     raw[n.MLPOutput(l)],
			},
			BlockOutput: raw[n.BlockOutput(l)],
		}
		for h := range layer.AttnHeads {
			layer.AttnHeads[h] = AttentionHead{
				Q:               raw[n.HeadQ(l, h)],
				K:               raw[n.HeadK(l, h)],
				V:               raw[n.HeadV(l, h)],
				AttnWeight:      raw[n.HeadAttnWeight(l, h)],
				AttnValueOutput: raw[n.HeadAttnValueOutput(l, h)],
			}
		}
		out.Layers[l] = layer
	}
	return out, nil
}

// PadBatch right-pads every sequence with pad to the longest length and
// returns the row-major [len(seqs), maxLen] ids.
func PadBatch(seqs [][]int, pad int) ([]int64, int, error) {
	if len(seqs) == 0 {
		return nil, 0, ErrEmptyBatch
	}
	maxLen := 0
	for _, s := range seqs {
		maxLen = max(maxLen, len(s))
	}
	if maxLen == 0 {
		return nil, 0, fmt.Errorf("%w: every input tokenized to zero tokens", ErrEmptyBatch)
	}
	flat := make([]int64, 0, len(seqs)*maxLen)
	for _, s := range seqs {
		for _, id := range s {
			flat = append(flat, int64(id))
		}
		for i := len(s); i < maxLen; i++ {
			flat = append(flat, int64(pad))
		}
	}
	return flat, maxLen, nil
}

// LastLogits returns the score vector at position pos of batch item b. A
// negative pos counts from the end.
func (o *Outputs) LastLogits(b, pos int) ([]float32, error) {
	t := o.Final.Logits
	if t == nil || len(t.Dims) != 3 {
		return nil, fmt.Errorf("logits: expected [batch, seq, vocab] tensor")
	}
	if pos < 0 {
		pos += int(t.Dims[1])
	}
	return t.Vector(b, pos)
}
