package tokenizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

const tinyTokenizer = `{
  "model": {
    "type": "BPE",
    "vocab": {"h":0,"e":1,"l":2,"o":3,"Ġ":4,"w":5,"r":6,"d":7,"he":8,"ll":9,"hell":10,"hello":11,"Ġw":12,"!":14,"Ċ":15},
    "merges": ["h e", "l l", ["he", "ll"], "hell o", "Ġ w"]
  },
  "pre_tokenizer": {"type": "ByteLevel"},
  "added_tokens": [{"id": 13, "content": "<|endoftext|>", "special": true}]
}`

func loadTiny(t *testing.T, cfg string) *BPE {
	t.Helper()
	var c []byte
	if cfg != "" {
		c = []byte(cfg)
	}
	tok, err := LoadBPE([]byte(tinyTokenizer), c)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return tok
}

func TestBPEEncodeDecode(t *testing.T) {
	t.Parallel()
	tok := loadTiny(t, "")

	cases := []struct {
		text string
		want []int
	}{
		{"hello world", []int{11, 12, 3, 6, 2, 7}},
		{"hello  world", []int{11, 4, 12, 3, 6, 2, 7}},
		{"he<|endoftext|>he", []int{8, 13, 8}},
		{"hello!", []int{11, 14}},
	}
	for _, tc := range cases {
		ids, err := tok.Encode(tc.text)
		if err != nil {
			t.Fatalf("Encode(%q): %v", tc.text, err)
		}
		if !slices.Equal(ids, tc.want) {
			t.Fatalf("Encode(%q) = %v, want %v", tc.text, ids, tc.want)
		}
		text, err := tok.Decode(ids)
		if err != nil {
			t.Fatalf("Decode(%v): %v", ids, err)
		}
		if text != tc.text {
			t.Fatalf("Decode(%v) = %q, want %q", ids, text, tc.text)
		}
	}
}

func TestBPEErrors(t *testing.T) {
	t.Parallel()
	tok := loadTiny(t, "")
	if _, err := tok.Encode("zzz"); err == nil {
		t.Fatal("expected error for out-of-vocabulary bytes")
	}
	if _, err := tok.Decode([]int{99}); err == nil {
		t.Fatal("expected error for out-of-range id")
	}
	if _, err := LoadBPE([]byte(`{"model":{"type":"Unigram","vocab":{"a":0}}}`), nil); err == nil {
		t.Fatal("expected error for non-BPE model")
	}
	if _, err := LoadBPE([]byte(`{`), nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestBPEBOS(t *testing.T) {
	t.Parallel()
	if got := loadTiny(t, "").BOSID(); got != 13 {
		t.Fatalf("expected <|endoftext|> as BOS, got %d", got)
	}

	tok := loadTiny(t, `{"add_bos_token": true, "bos_token": {"content": "<|endoftext|>"}}`)
	ids, err := tok.Encode("he")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !slices.Equal(ids, []int{13, 8}) {
		t.Fatalf("expected BOS prefix, got %v", ids)
	}
	if tok.VocabSize() != 16 {
		t.Fatalf("unexpected vocab size %d", tok.VocabSize())
	}
}

func TestPretokensNewlines(t *testing.T) {
	t.Parallel()
	tok := loadTiny(t, "")
	got := tok.pretokens("he\n\nhe")
	if want := []string{"he", "\n", "\n", "he"}; !slices.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	got = tok.pretokens("he  ")
	if want := []string{"he", "  "}; !slices.Equal(got, want) {
		t.Fatalf("trailing spaces: got %q, want %q", got, want)
	}
}

type mapFetcher map[string][]byte

func (m mapFetcher) Read(_ context.Context, url string) ([]byte, error) {
	if b, ok := m[url]; ok {
		return b, nil
	}
	return nil, errors.New("404 " + url)
}

func TestLoader(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fetch := mapFetcher{
		"https://hub.test/openai-community/gpt2/resolve/main/tokenizer.json": []byte(tinyTokenizer),
		"https://hub.test/acme/tiny/resolve/main/tokenizer.json":             []byte(tinyTokenizer),
	}
	l := &Loader{Fetcher: fetch, Hub: "https://hub.test/"}

	for _, ref := range []string{"", "acme/tiny"} {
		tok, err := l.Load(ctx, ref)
		if err != nil {
			t.Fatalf("Load(%q): %v", ref, err)
		}
		if ids, _ := tok.Encode("hello"); !slices.Equal(ids, []int{11}) {
			t.Fatalf("Load(%q): unexpected ids %v", ref, ids)
		}
	}
	if _, err := l.Load(ctx, "acme/missing"); err == nil {
		t.Fatal("expected fetch error")
	}
	if _, err := l.Load(ctx, "not/a/repo"); err == nil {
		t.Fatal("expected error for malformed reference")
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tokenizer.json"), []byte(tinyTokenizer), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (&Loader{}).Load(ctx, dir); err != nil {
		t.Fatalf("local dir: %v", err)
	}
	if _, err := (&Loader{}).Load(ctx, filepath.Join(dir, "tokenizer.json")); err != nil {
		t.Fatalf("local file: %v", err)
	}
}
