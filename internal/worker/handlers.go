package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/samcharles93/lmpeek/internal/artifact"
	"github.com/samcharles93/lmpeek/internal/engine"
	"github.com/samcharles93/lmpeek/internal/model"
	"github.com/samcharles93/lmpeek/internal/protocol"
	"github.com/samcharles93/lmpeek/internal/sampling"
)

func (w *Worker) load(ctx context.Context, req protocol.LoadRequest) (*protocol.LoadResult, error) {
	s := &w.session
	if s.loaded {
		return nil, protocol.Errorf(protocol.ErrKindModelAlreadyLoaded, fmt.Sprintf("model %s is already loaded", s.modelType))
	}

	spec, err := model.Lookup(req.ModelType)
	if err != nil {
		return nil, protocol.Errorf(protocol.ErrKindInvalidRequest, err.Error())
	}
	arch := spec.Architecture().WithShape(req.Layers, req.Heads)
	if err := arch.Validate(); err != nil {
		return nil, protocol.Errorf(protocol.ErrKindInvalidRequest, err.Error())
	}
	providers, err := engine.NormalizeProviders(req.ExecutionProviders)
	if err != nil {
		return nil, protocol.Errorf(protocol.ErrKindInvalidRequest, err.Error())
	}
	s.logging = req.Logging
	log := w.log.With("model_type", spec.Type)
	total := time.Now()

	ref := req.Tokenizer
	if ref == "" {
		ref = spec.Tokenizer
	}
	start := time.Now()
	tok, err := w.deps.Tokenizers.Load(ctx, ref)
	if err != nil {
		return nil, protocol.Errorf(protocol.ErrKindTokenizerLoad, err.Error())
	}
	// The tokenizer stays usable for encode and decode even if the rest of
	// the load fails.
	s.tokenizer = tok
	w.timing("tokenizer loaded", start, "tokenizer", ref)

	start = time.Now()
	path, err := w.resolveModel(ctx, req.ModelURL, spec.URL)
	if err != nil {
		return nil, err
	}
	w.timing("model fetched", start, "path", path)

	start = time.Now()
	eng, err := w.deps.Engines.Open(ctx, path, engine.Options{
		ExecutionProviders: providers,
		Outputs:            arch.OutputNames(),
	})
	if err != nil {
		return nil, protocol.Errorf(protocol.ErrKindModelLoad, err.Error())
	}
	w.timing("engine created", start, "providers", providers)

	s.engine = eng
	s.arch = arch
	s.modelType = spec.Type
	s.loaded = true
	log.Info("model loaded", "layers", arch.Layers, "heads", arch.Heads, "duration_ms", time.Since(total).Milliseconds())

	return &protocol.LoadResult{
		ModelType:          spec.Type,
		Layers:             arch.Layers,
		Heads:              arch.Heads,
		Path:               path,
		ExecutionProviders: providers,
		Outputs:            len(eng.Outputs()),
	}, nil
}

// resolveModel returns a local path for the model graph. An override that
// names an existing file is used in place.
func (w *Worker) resolveModel(ctx context.Context, override, registered string) (string, error) {
	url := registered
	if override != "" {
		if fi, err := os.Stat(override); err == nil && fi.Mode().IsRegular() {
			return override, nil
		}
		url = override
	}
	path, err := w.deps.Artifacts.FetchOrLoadCached(ctx, url)
	if err == nil {
		return path, nil
	}
	var saveErr *artifact.SaveError
	if errors.As(err, &saveErr) {
		return "", protocol.Errorf(protocol.ErrKindSaveModel, err.Error())
	}
	return "", protocol.Errorf(protocol.ErrKindFetchModel, err.Error())
}

func (w *Worker) forward(ctx context.Context, req protocol.ForwardRequest) (*model.Outputs, error) {
	s := &w.session
	if !s.loaded {
		return nil, errNotLoaded()
	}
	if len(req.Input) == 0 {
		return nil, protocol.Errorf(protocol.ErrKindInvalidRequest, "forward needs at least one input")
	}

	start := time.Now()
	seqs := make([][]int, len(req.Input))
	for i, text := range req.Input {
		ids, err := s.tokenizer.Encode(text)
		if err != nil {
			return nil, classify(protocol.ErrKindForward, fmt.Errorf("encode input %d: %w", i, err))
		}
		if req.BOSToken {
			ids = append([]int{s.arch.BOSTokenID}, ids...)
		}
		seqs[i] = ids
	}
	flat, maxLen, err := model.PadBatch(seqs, s.arch.PadTokenID)
	if err != nil {
		return nil, classify(protocol.ErrKindForward, err)
	}
	input, err := engine.NewInt64([]int64{int64(len(seqs)), int64(maxLen)}, flat)
	if err != nil {
		return nil, classify(protocol.ErrKindForward, err)
	}
	w.timing("tokenized", start, "batch", len(seqs), "max_len", maxLen)

	start = time.Now()
	raw, err := s.engine.Run(ctx, map[string]*engine.Tensor{s.arch.InputName: input})
	if err != nil {
		return nil, classify(protocol.ErrKindForward, err)
	}
	w.timing("inference", start, "outputs", len(raw))

	out, err := model.Restructure(s.arch, raw)
	if err != nil {
		return nil, classify(protocol.ErrKindForward, err)
	}
	return out, nil
}

func (w *Worker) sample(req protocol.SampleRequest) ([]sampling.TokenProb, error) {
	s := &w.session
	if !s.loaded {
		return nil, errNotLoaded()
	}
	if len(req.Logits) == 0 {
		return nil, protocol.Errorf(protocol.ErrKindInvalidRequest, "sample needs a non-empty score vector")
	}
	probs := sampling.Distribution(req.Logits, req.Options)
	ranked, err := sampling.Rank(probs, func(id int) (string, error) {
		return s.tokenizer.Decode([]int{id})
	})
	if err != nil {
		return nil, classify(protocol.ErrKindSample, err)
	}
	return ranked, nil
}

func (w *Worker) encode(req protocol.EncodeRequest) ([]int, error) {
	if w.session.tokenizer == nil {
		return nil, errNoTokenizer()
	}
	ids, err := w.session.tokenizer.Encode(req.Text)
	if err != nil {
		return nil, classify(protocol.ErrKindEncode, err)
	}
	if ids == nil {
		ids = []int{}
	}
	return ids, nil
}

func (w *Worker) decode(req protocol.DecodeRequest) (string, error) {
	if w.session.tokenizer == nil {
		return "", errNoTokenizer()
	}
	text, err := w.session.tokenizer.Decode(req.TokenIDs)
	if err != nil {
		return "", classify(protocol.ErrKindDecode, err)
	}
	return text, nil
}

func errNotLoaded() error {
	return protocol.Errorf(protocol.ErrKindModelNotLoaded, "no model loaded; send loadModel first")
}

func errNoTokenizer() error {
	return protocol.Errorf(protocol.ErrKindTokenizerNotLoaded, "no tokenizer loaded; send loadModel first")
}
