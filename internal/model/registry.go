package model

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DefaultType is the model loaded when no type is named.
const DefaultType = "gpt-2"

// Spec is a registered model type.
type Spec struct {
	Type string
	// URL is where the ONNX graph is fetched from.
	URL string
	// Tokenizer is the Hugging Face repo id holding the default tokenizer.json.
	Tokenizer    string
	Architecture func() Architecture
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Spec{}
	aliases    = map[string]string{}
)

func init() {
	Register(Spec{
		Type:         DefaultType,
		URL:          "https://huggingface.co/Amanvir/gpt-2-onnx-test/resolve/main/gpt2-no-constant-folding.onnx",
		Tokenizer:    "openai-community/gpt2",
		Architecture: GPT2,
	}, "gpt2")
}

// Register adds or replaces a model type and its aliases.
func Register(s Spec, alias ...string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	key := strings.ToLower(s.Type)
	registry[key] = s
	for _, a := range alias {
		aliases[strings.ToLower(a)] = key
	}
}

// Lookup resolves a model type or alias. Empty selects DefaultType.
func Lookup(modelType string) (Spec, error) {
	key := strings.ToLower(strings.TrimSpace(modelType))
	if key == "" {
		key = DefaultType
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	if target, ok := aliases[key]; ok {
		key = target
	}
	s, ok := registry[key]
	if !ok {
		return Spec{}, fmt.Errorf("unknown model type %q (known: %s)", modelType, strings.Join(typesLocked(), ", "))
	}
	return s, nil
}

// Types lists the registered model types.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return typesLocked()
}

func typesLocked() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
