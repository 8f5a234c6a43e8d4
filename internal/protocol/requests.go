package protocol

import "github.com/samcharles93/lmpeek/internal/sampling"

// Request is the payload of a Command. The set of variants is closed: one
// type per Action, and only this package can add more.
type Request interface {
	Action() Action
	isRequest()
}

// LoadRequest asks the worker to acquire a tokenizer and an inference engine.
type LoadRequest struct {
	ModelType string `json:"modelType,omitempty"`
	// ModelURL overrides the artifact location registered for ModelType.
	ModelURL string `json:"modelUrl,omitempty"`
	// Tokenizer is a local tokenizer.json path or a Hugging Face repo id.
	// Empty selects the model's default tokenizer.
	Tokenizer          string   `json:"tokenizer,omitempty"`
	ExecutionProviders []string `json:"onnxExecutionProviders,omitempty"`
	// Layers and Heads override the registered architecture when non-zero.
	Layers  int  `json:"layers,omitempty"`
	Heads   int  `json:"heads,omitempty"`
	Logging bool `json:"logging,omitempty"`
}

// ForwardRequest runs one batch through the engine. A single input is a
// batch of one.
type ForwardRequest struct {
	Input    []string `json:"input"`
	BOSToken bool     `json:"bosToken,omitempty"`
}

// SampleRequest turns a score vector into a ranked token distribution.
type SampleRequest struct {
	Logits  []float32        `json:"logits"`
	Options sampling.Options `json:"options"`
}

type EncodeRequest struct {
	Text string `json:"text"`
}

type DecodeRequest struct {
	TokenIDs []int `json:"tokenIds"`
}

func (LoadRequest) Action() Action    { return ActionLoadModel }
func (ForwardRequest) Action() Action { return ActionForward }
func (SampleRequest) Action() Action  { return ActionSample }
func (EncodeRequest) Action() Action  { return ActionEncode }
func (DecodeRequest) Action() Action  { return ActionDecode }

func (LoadRequest) isRequest()    {}
func (ForwardRequest) isRequest() {}
func (SampleRequest) isRequest()  {}
func (EncodeRequest) isRequest()  {}
func (DecodeRequest) isRequest()  {}

// newRequest returns a pointer to a zero payload for action, or nil when the
// action is not known.
func newRequest(action Action) Request {
	switch action {
	case ActionLoadModel:
		return &LoadRequest{}
	case ActionForward:
		return &ForwardRequest{}
	case ActionSample:
		return &SampleRequest{}
	case ActionEncode:
		return &EncodeRequest{}
	case ActionDecode:
		return &DecodeRequest{}
	default:
		return nil
	}
}

// deref turns the pointer produced by newRequest back into a value variant.
func deref(r Request) Request {
	switch v := r.(type) {
	case *LoadRequest:
		return *v
	case *ForwardRequest:
		return *v
	case *SampleRequest:
		return *v
	case *EncodeRequest:
		return *v
	case *DecodeRequest:
		return *v
	default:
		return r
	}
}
