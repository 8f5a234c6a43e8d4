// Package lmpeek loads a language model into a worker and exposes its
// intermediate activations, its next-token distribution and its tokenizer.
//
// A Model talks to its worker through request/reply envelopes. The worker
// runs in-process by default, or in a subprocess with WithProcess. Methods
// are safe for concurrent use; the worker handles requests one at a time.
package lmpeek

import (
	"context"
	"fmt"
	"os"

	"github.com/samcharles93/lmpeek/internal/channel"
	"github.com/samcharles93/lmpeek/internal/client"
	"github.com/samcharles93/lmpeek/internal/logger"
	"github.com/samcharles93/lmpeek/internal/model"
	"github.com/samcharles93/lmpeek/internal/protocol"
	"github.com/samcharles93/lmpeek/internal/sampling"
	"github.com/samcharles93/lmpeek/internal/worker"
)

type (
	Logger          = logger.Logger
	Dependencies    = worker.Dependencies
	Outputs         = model.Outputs
	TokenProb       = sampling.TokenProb
	SamplingOptions = sampling.Options
	LoadResult      = protocol.LoadResult
	Error           = protocol.Error
	ErrorKind       = protocol.ErrorKind
)

// Errors returned by Model methods match these under errors.Is.
var (
	ErrModelAlreadyLoaded = protocol.ErrModelAlreadyLoaded
	ErrModelNotLoaded     = protocol.ErrModelNotLoaded
	ErrTokenizerNotLoaded = protocol.ErrTokenizerNotLoaded
	ErrTokenizerLoad      = protocol.ErrTokenizerLoad
	ErrFetchModel         = protocol.ErrFetchModel
	ErrSaveModel          = protocol.ErrSaveModel
	ErrModelLoad          = protocol.ErrModelLoad
	ErrForward            = protocol.ErrForward
	ErrSample             = protocol.ErrSample
	ErrEncode             = protocol.ErrEncode
	ErrDecode             = protocol.ErrDecode
	ErrInvalidRequest     = protocol.ErrInvalidRequest
	ErrChannelFailure     = protocol.ErrChannelFailure
	ErrDisposed           = protocol.ErrDisposed
)

const (
	envCacheDir = "LMPEEK_CACHE_DIR"
	envORTLib   = "LMPEEK_ORT_LIB"
)

// Model is a handle on one worker session.
type Model struct {
	c   *client.Client
	log Logger
}

// Open starts a worker and connects to it. No model is loaded yet.
func Open(ctx context.Context, opts ...Option) (*Model, error) {
	o := options{log: logger.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cacheDir == "" {
		o.cacheDir = os.Getenv(envCacheDir)
	}
	if o.ortLib == "" {
		o.ortLib = os.Getenv(envORTLib)
	}

	factory, err := o.factory()
	if err != nil {
		return nil, err
	}
	c, err := client.Open(ctx, factory, client.WithLogger(o.log), client.WithRequestTimeout(o.timeout))
	if err != nil {
		return nil, err
	}
	return &Model{c: c, log: o.log}, nil
}

func (o *options) factory() (channel.Factory, error) {
	if !o.isolated {
		deps := worker.DefaultDependencies(o.cacheDir, o.ortLib, o.log)
		if o.deps != nil {
			deps = *o.deps
		}
		return channel.Pipe(worker.New(deps, o.log).Serve), nil
	}
	if o.deps != nil {
		return nil, fmt.Errorf("lmpeek: WithDependencies cannot be combined with WithProcess")
	}
	codec, err := protocol.LookupCodec(o.codec)
	if err != nil {
		return nil, err
	}
	env := append([]string(nil), o.workerEnv...)
	if o.cacheDir != "" {
		env = append(env, envCacheDir+"="+o.cacheDir)
	}
	if o.ortLib != "" {
		env = append(env, envORTLib+"="+o.ortLib)
	}
	return channel.Process(channel.ProcessConfig{
		Path:        o.workerPath,
		Args:        o.workerArgs,
		Env:         env,
		Codec:       codec,
		GracePeriod: o.gracePeriod,
		Logger:      o.log,
	}), nil
}

// Load opens a worker and loads modelType into it. Empty modelType selects
// the default GPT-2 export. Load options are given with WithLoadOptions.
func Load(ctx context.Context, modelType string, opts ...Option) (*Model, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	m, err := Open(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := m.Load(ctx, modelType, o.loadOpts...); err != nil {
		_ = m.Dispose()
		return nil, err
	}
	return m, nil
}

// Load acquires the tokenizer and the model graph.
func (m *Model) Load(ctx context.Context, modelType string, opts ...LoadOption) (*LoadResult, error) {
	req := protocol.LoadRequest{ModelType: modelType}
	for _, opt := range opts {
		opt(&req)
	}
	var res LoadResult
	if err := m.call(ctx, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Forward runs text through the model and returns every activation.
func (m *Model) Forward(ctx context.Context, text string, opts ...ForwardOption) (*Outputs, error) {
	return m.ForwardBatch(ctx, []string{text}, opts...)
}

// ForwardBatch runs several inputs as one right-padded batch.
func (m *Model) ForwardBatch(ctx context.Context, texts []string, opts ...ForwardOption) (*Outputs, error) {
	req := protocol.ForwardRequest{Input: texts}
	for _, opt := range opts {
		opt(&req)
	}
	var out Outputs
	if err := m.call(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sample converts scores into a distribution ranked by probability.
func (m *Model) Sample(ctx context.Context, logits []float32, opts SamplingOptions) ([]TokenProb, error) {
	var ranked []TokenProb
	if err := m.call(ctx, protocol.SampleRequest{Logits: logits, Options: opts}, &ranked); err != nil {
		return nil, err
	}
	return ranked, nil
}

// NextToken runs text forward and samples the scores at its last position.
func (m *Model) NextToken(ctx context.Context, text string, opts SamplingOptions, fwd ...ForwardOption) ([]TokenProb, error) {
	out, err := m.Forward(ctx, text, fwd...)
	if err != nil {
		return nil, err
	}
	logits, err := out.LastLogits(0, -1)
	if err != nil {
		return nil, fmt.Errorf("next token: %w", err)
	}
	return m.Sample(ctx, logits, opts)
}

// Encode tokenizes text.
func (m *Model) Encode(ctx context.Context, text string) ([]int, error) {
	var ids []int
	if err := m.call(ctx, protocol.EncodeRequest{Text: text}, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Decode converts token ids back to text.
func (m *Model) Decode(ctx context.Context, ids []int) (string, error) {
	var text string
	if err := m.call(ctx, protocol.DecodeRequest{TokenIDs: ids}, &text); err != nil {
		return "", err
	}
	return text, nil
}

// Dispose fails outstanding requests and stops the worker. It is safe to
// call more than once.
func (m *Model) Dispose() error {
	return m.c.Dispose()
}

func (m *Model) call(ctx context.Context, req protocol.Request, out any) error {
	rep, err := m.c.Call(ctx, req)
	if err != nil {
		return err
	}
	if err := rep.Bind(out); err != nil {
		return fmt.Errorf("%s reply: %w", req.Action(), err)
	}
	return nil
}
