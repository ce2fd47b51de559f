// Package encoder provides a pluggable interface for base token encoders.
// A base encoder turns a flat batch of token id sequences into per-token
// hidden states; the hierarchical encoder builds on top of it.
package encoder

import (
	"context"

	"github.com/iasik/hierarchical-encoder/internal/tensor"
)

// TokenEncoder is the contract the hierarchical encoder depends on.
type TokenEncoder interface {
	// Config returns the base model configuration.
	Config() BaseConfig

	// Encode runs the encoder over a (batch, tokens) batch and returns
	// (batch, tokens, hidden) last-layer hidden states.
	Encode(ctx context.Context, batch Batch) (*tensor.Floats, error)
}

// Provider is a TokenEncoder with a lifecycle.
type Provider interface {
	TokenEncoder

	// ModelInfo returns information about the current model.
	ModelInfo() ModelInfo

	// Health checks if the provider is available.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Batch is a flat batch of token sequences. All three tensors are
// (batch, tokens).
type Batch struct {
	InputIDs      *tensor.Ints
	AttentionMask *tensor.Ints
	TokenTypeIDs  *tensor.Ints
}

// BaseConfig mirrors the fields of a Hugging Face style config.json that the
// hierarchical encoder reads.
type BaseConfig struct {
	// Model family (e.g., "bert", "xlm-roberta")
	ModelType string `json:"model_type" yaml:"model_type"`

	// Hidden width of every token vector
	HiddenSize int `json:"hidden_size" yaml:"hidden_size"`

	// Number of attention heads per layer
	NumAttentionHeads int `json:"num_attention_heads" yaml:"num_attention_heads"`

	// Feed-forward width inside each layer
	IntermediateSize int `json:"intermediate_size" yaml:"intermediate_size"`

	// Activation name (e.g., "gelu")
	HiddenAct string `json:"hidden_act" yaml:"hidden_act"`

	// Dropout rate on hidden states
	HiddenDropoutProb float64 `json:"hidden_dropout_prob" yaml:"hidden_dropout_prob"`

	// LayerNorm epsilon
	LayerNormEps float64 `json:"layer_norm_eps" yaml:"layer_norm_eps"`

	// Maximum token sequence length
	MaxPositionEmbeddings int `json:"max_position_embeddings" yaml:"max_position_embeddings"`

	// Vocabulary size
	VocabSize int `json:"vocab_size" yaml:"vocab_size"`

	// Number of token type ids
	TypeVocabSize int `json:"type_vocab_size" yaml:"type_vocab_size"`
}

// ModelInfo contains metadata about a base encoder.
type ModelInfo struct {
	// Provider name (e.g., "remote", "static")
	Provider string

	// Model name or path
	Model string

	// Hidden width
	Dimensions int
}
