package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
)

// gpt2Pattern is the GPT-2 pre-tokenizer regex without its trailing-space
// lookahead, which RE2 cannot express; pretokens restores that behaviour.
const gpt2Pattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`

// BPE is a byte-level BPE tokenizer read from a Hugging Face tokenizer.json.
// It is safe for concurrent use.
type BPE struct {
	encoder     map[string]int
	decoder     []string
	bpeRanks    map[Pair]int
	byteEncoder map[byte]string
	byteDecoder map[string]byte
	pattern     *regexp.Regexp
	special     []string

	addBOS       bool
	addEOS       bool
	bosID        int
	eosID        int
	unkID        int
	ignoreMerges bool

	mu    sync.Mutex
	cache map[string][]string
}

type tokenizerJSON struct {
	Model         bpeModel      `json:"model"`
	PreTokenizer  preTokenizer  `json:"pre_tokenizer"`
	PostProcessor postProcessor `json:"post_processor"`
	AddedTokens   []addedToken  `json:"added_tokens"`
}

type bpeModel struct {
	Type         string         `json:"type"`
	Vocab        map[string]int `json:"vocab"`
	Merges       []any          `json:"merges"`
	IgnoreMerges bool           `json:"ignore_merges"`
	UnkToken     string         `json:"unk_token"`
}

type postProcessor struct {
	Type       string `json:"type"`
	Processors []struct {
		Type          string `json:"type"`
		SpecialTokens map[string]struct {
			IDs []int `json:"ids"`
		} `json:"special_tokens"`
	} `json:"processors"`
}

type addedToken struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	Special bool   `json:"special"`
}

type preTokenizer struct {
	Type          string `json:"type"`
	Pretokenizers []struct {
		Type    string `json:"type"`
		Pattern struct {
			Regex string `json:"Regex"`
		} `json:"pattern"`
	} `json:"pretokenizers"`
}

type tokenizerConfig struct {
	AddBOS bool `json:"add_bos_token"`
	AddEOS bool `json:"add_eos_token"`
	BOS    any  `json:"bos_token"`
	EOS    any  `json:"eos_token"`
}

// LoadBPEFile reads tokenizer.json at path, or inside path when it is a
// directory, plus a sibling tokenizer_config.json when present.
func LoadBPEFile(path string) (*BPE, error) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, "tokenizer.json")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := os.ReadFile(filepath.Join(filepath.Dir(path), "tokenizer_config.json"))
	if err != nil {
		cfg = nil
	}
	return LoadBPE(data, cfg)
}

// LoadBPE parses tokenizer.json bytes. tokConfig may be nil.
func LoadBPE(tokJSON, tokConfig []byte) (*BPE, error) {
	var tj tokenizerJSON
	if err := json.Unmarshal(tokJSON, &tj); err != nil {
		return nil, fmt.Errorf("parse tokenizer.json: %w", err)
	}
	if !strings.EqualFold(tj.Model.Type, "BPE") {
		return nil, fmt.Errorf("unsupported tokenizer model: %q", tj.Model.Type)
	}
	if len(tj.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer.json has an empty vocabulary")
	}

	encoder := make(map[string]int, len(tj.Model.Vocab)+len(tj.AddedTokens))
	maxID := -1
	for tok, id := range tj.Model.Vocab {
		encoder[tok] = id
		maxID = max(maxID, id)
	}
	for _, at := range tj.AddedTokens {
		encoder[at.Content] = at.ID
		maxID = max(maxID, at.ID)
	}
	decoder := make([]string, maxID+1)
	for tok, id := range encoder {
		if id >= 0 {
			decoder[id] = tok
		}
	}

	ranks := make(map[Pair]int, len(tj.Model.Merges))
	for _, raw := range tj.Model.Merges {
		p, ok := parseMerge(raw)
		if !ok {
			continue
		}
		if _, dup := ranks[p]; !dup {
			ranks[p] = len(ranks)
		}
	}

	pattern, err := compilePattern(tj.PreTokenizer)
	if err != nil {
		return nil, err
	}

	var cfg tokenizerConfig
	if len(tokConfig) > 0 {
		if err := json.Unmarshal(tokConfig, &cfg); err != nil {
			return nil, fmt.Errorf("parse tokenizer_config.json: %w", err)
		}
	}

	t := &BPE{
		encoder:      encoder,
		decoder:      decoder,
		bpeRanks:     ranks,
		pattern:      pattern,
		special:      collectSpecials(decoder),
		addBOS:       cfg.AddBOS,
		addEOS:       cfg.AddEOS,
		bosID:        lookupSpecial(encoder, cfg.BOS),
		eosID:        lookupSpecial(encoder, cfg.EOS),
		unkID:        -1,
		ignoreMerges: tj.Model.IgnoreMerges,
		cache:        make(map[string][]string),
	}
	t.byteEncoder, t.byteDecoder = bytesToUnicode()
	if id, ok := encoder[tj.Model.UnkToken]; ok && tj.Model.UnkToken != "" {
		t.unkID = id
	}
	if t.bosID < 0 {
		if id, ok := encoder["<|endoftext|>"]; ok {
			t.bosID = id
		}
	}
	for _, proc := range tj.PostProcessor.Processors {
		if proc.Type != "TemplateProcessing" {
			continue
		}
		for _, spec := range proc.SpecialTokens {
			if len(spec.IDs) > 0 {
				t.bosID = spec.IDs[0]
				t.addBOS = true
				break
			}
		}
	}
	return t, nil
}

// lookupSpecial resolves a bos/eos entry, which tokenizer_config.json stores
// either as a string or as an AddedToken object.
func lookupSpecial(encoder map[string]int, v any) int {
	var s string
	switch tok := v.(type) {
	case string:
		s = tok
	case map[string]any:
		s, _ = tok["content"].(string)
	}
	if id, ok := encoder[s]; ok && s != "" {
		return id
	}
	return -1
}

func parseMerge(raw any) (Pair, bool) {
	var line string
	switch v := raw.(type) {
	case string:
		line = v
	case []any:
		if len(v) == 2 {
			a, aok := v[0].(string)
			b, bok := v[1].(string)
			if aok && bok {
				return Pair{A: a, B: b}, true
			}
		}
	}
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Pair{}, false
	}
	a, b, ok := strings.Cut(line, " ")
	if !ok || strings.Contains(b, " ") {
		return Pair{}, false
	}
	return Pair{A: a, B: b}, true
}

func compilePattern(pre preTokenizer) (*regexp.Regexp, error) {
	pat := gpt2Pattern
	if pre.Type == "Sequence" {
		for _, p := range pre.Pretokenizers {
			if p.Type == "Split" && p.Pattern.Regex != "" {
				pat = p.Pattern.Regex
				break
			}
		}
	}
	// Llama-3 style patterns use lookahead; fall back to the RE2-compatible
	// form used by llama.cpp.
	if strings.Contains(pat, `(?!\S)`) || strings.Contains(pat, "(?i:") {
		pat = `(?:'[sS]|'[tT]|'[rR][eE]|'[vV][eE]|'[mM]|'[lL][lL]|'[dD])|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+`
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return nil, fmt.Errorf("pre-tokenizer pattern: %w", err)
	}
	return re, nil
}

// Encode converts text to token ids. Special tokens written literally in
// the text map to their ids.
func (t *BPE) Encode(text string) ([]int, error) {
	var ids []int
	if t.addBOS && t.bosID >= 0 {
		ids = append(ids, t.bosID)
	}
	for _, part := range splitSpecials(text, t.special) {
		if part.isSpecial {
			ids = append(ids, t.encoder[part.text])
			continue
		}
		for _, piece := range t.pretokens(part.text) {
			for _, tok := range t.bpe(t.byteEncode(piece)) {
				id, ok := t.encoder[tok]
				if !ok {
					if t.unkID >= 0 {
						ids = append(ids, t.unkID)
						continue
					}
					return nil, fmt.Errorf("unknown token: %q", tok)
				}
				ids = append(ids, id)
			}
		}
	}
	if t.addEOS && t.eosID >= 0 {
		ids = append(ids, t.eosID)
	}
	return ids, nil
}

// Decode converts token ids back to text.
func (t *BPE) Decode(ids []int) (string, error) {
	var b []byte
	for _, id := range ids {
		if id < 0 || id >= len(t.decoder) {
			return "", fmt.Errorf("token id out of range: %d", id)
		}
		token := t.decoder[id]
		if isSpecialToken(token) {
			b = append(b, token...)
			continue
		}
		for _, r := range token {
			if by, ok := t.byteDecoder[string(r)]; ok {
				b = append(b, by)
			} else {
				b = append(b, string(r)...)
			}
		}
	}
	return string(b), nil
}

// BOSID is the beginning-of-sequence id, or -1 when the vocabulary has none.
func (t *BPE) BOSID() int { return t.bosID }

// VocabSize is one past the largest token id.
func (t *BPE) VocabSize() int { return len(t.decoder) }

// pretokens splits text with the pre-tokenizer pattern. A whitespace run
// followed by a non-space keeps its last character for the next piece, as
// the GPT-2 `\s+(?!\S)` alternative does.
func (t *BPE) pretokens(text string) []string {
	locs := t.pattern.FindAllStringIndex(text, -1)
	out := make([]string, 0, len(locs))
	carry := ""
	for i, loc := range locs {
		piece := carry + text[loc[0]:loc[1]]
		carry = ""
		if i+1 < len(locs) && locs[i+1][0] == loc[1] && isSpaceRun(piece) {
			last := lastRuneStart(piece)
			if last > 0 {
				tail := piece[last:]
				piece = piece[:last]
				if tail == " " {
					carry = tail
				} else {
					out = append(out, piece)
					piece = tail
				}
			}
		}
		out = append(out, piece)
	}
	if carry != "" {
		out = append(out, carry)
	}
	return out
}

func isSpaceRun(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(" \t\n\r\v\f", r) {
			return false
		}
	}
	return true
}

func lastRuneStart(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i]&0xC0 != 0x80 {
			return i
		}
	}
	return 0
}

func (t *BPE) byteEncode(s string) string {
	var b strings.Builder
	for _, by := range []byte(s) {
		b.WriteString(t.byteEncoder[by])
	}
	return b.String()
}

func (t *BPE) bpe(token string) []string {
	t.mu.Lock()
	cached, ok := t.cache[token]
	t.mu.Unlock()
	if ok {
		return cached
	}

	word := splitRunes(token)
	if _, known := t.encoder[token]; !(t.ignoreMerges && known) {
		for pairs := getPairs(word); len(pairs) > 0; pairs = getPairs(word) {
			best, bestRank := Pair{}, -1
			for p := range pairs {
				if rank, ok := t.bpeRanks[p]; ok && (bestRank < 0 || rank < bestRank) {
					best, bestRank = p, rank
				}
			}
			if bestRank < 0 {
				break
			}
			word = mergePair(word, best)
			if len(word) == 1 {
				break
			}
		}
	} else {
		word = []string{token}
	}

	t.mu.Lock()
	t.cache[token] = word
	t.mu.Unlock()
	return word
}
