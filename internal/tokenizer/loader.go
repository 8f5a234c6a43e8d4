package tokenizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultRepo is the Hugging Face repo used when no tokenizer is named.
const DefaultRepo = "openai-community/gpt2"

const hubURL = "https://huggingface.co"

// Fetcher reads a small remote artifact, caching it as it sees fit.
type Fetcher interface {
	Read(ctx context.Context, url string) ([]byte, error)
}

// Loader resolves tokenizer references to a BPE tokenizer.
type Loader struct {
	Fetcher Fetcher
	// Hub overrides the Hugging Face base URL.
	Hub string
}

// Load resolves ref. Empty selects DefaultRepo; an existing file or
// directory is read from disk; anything else is treated as an owner/name
// repo id and fetched through the Fetcher.
func (l *Loader) Load(ctx context.Context, ref string) (Tokenizer, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = DefaultRepo
	}
	if _, err := os.Stat(ref); err == nil {
		return LoadBPEFile(ref)
	}
	if strings.Count(ref, "/") != 1 || strings.HasPrefix(ref, "/") || strings.HasSuffix(ref, "/") {
		return nil, fmt.Errorf("tokenizer %q: not a local path or owner/name repo id", ref)
	}
	if l.Fetcher == nil {
		return nil, errors.New("tokenizer: no fetcher configured for remote repos")
	}

	data, err := l.Fetcher.Read(ctx, l.url(ref, "tokenizer.json"))
	if err != nil {
		return nil, err
	}
	// tokenizer_config.json is optional; many repos do not ship one.
	cfg, err := l.Fetcher.Read(ctx, l.url(ref, "tokenizer_config.json"))
	if err != nil {
		cfg = nil
	}
	return LoadBPE(data, cfg)
}

func (l *Loader) url(repo, file string) string {
	base := l.Hub
	if base == "" {
		base = hubURL
	}
	return strings.TrimSuffix(base, "/") + "/" + repo + "/resolve/main/" + file
}
