// Package tokenizer converts between text and model token ids.
package tokenizer

// Tokenizer is the minimal surface the worker needs.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
}
