package api

import (
	"github.com/samcharles93/lmpeek/internal/sampling"
)

type EncodeRequest struct {
	Text string `json:"text"`
}

type EncodeResponse struct {
	TokenIDs []int `json:"tokenIds"`
}

type DecodeRequest struct {
	TokenIDs []int `json:"tokenIds"`
}

type DecodeResponse struct {
	Text string `json:"text"`
}

// ForwardRequest accepts a single string or an array of strings as input.
type ForwardRequest struct {
	Input    any  `json:"input"`
	BOSToken bool `json:"bosToken,omitempty"`
}

type SampleRequest struct {
	Logits []float32 `json:"logits"`
	sampling.Options
}

type SampleResponse struct {
	Tokens []sampling.TokenProb `json:"tokens"`
}

type NextTokenRequest struct {
	Text     string `json:"text"`
	BOSToken bool   `json:"bosToken,omitempty"`
	// Limit truncates the ranked list. Zero returns every token.
	Limit int `json:"limit,omitempty"`
	sampling.Options
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
