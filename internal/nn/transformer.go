package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// TransformerConfig sizes a transformer encoder stack.
type TransformerConfig struct {
	DModel         int
	Heads          int
	FeedForwardDim int
	Activation     string
	Dropout        float64
	NormEps        float64
	Layers         int
}

// EncoderLayer is a post-norm transformer encoder layer:
//
//	x = Norm1(x + SelfAttention(x))
//	x = Norm2(x + Linear2(act(Linear1(x))))
//
// Dropout is kept as a configured rate; Forward is inference and applies none.
type EncoderLayer struct {
	SelfAttention *MultiHeadAttention
	Linear1       *Linear
	Linear2       *Linear
	Norm1         *LayerNorm
	Norm2         *LayerNorm
	Activation    Activation
	Dropout       float64
}

// NewEncoderLayer allocates one encoder layer.
func NewEncoderLayer(cfg TransformerConfig, init *Initializer) (*EncoderLayer, error) {
	act, err := ParseActivation(cfg.Activation)
	if err != nil {
		return nil, err
	}
	attn, err := NewMultiHeadAttention(cfg.DModel, cfg.Heads, init)
	if err != nil {
		return nil, err
	}
	return &EncoderLayer{
		SelfAttention: attn,
		Linear1:       NewLinear(cfg.DModel, cfg.FeedForwardDim, init),
		Linear2:       NewLinear(cfg.FeedForwardDim, cfg.DModel, init),
		Norm1:         NewLayerNorm(cfg.DModel, cfg.NormEps),
		Norm2:         NewLayerNorm(cfg.DModel, cfg.NormEps),
		Activation:    act,
		Dropout:       cfg.Dropout,
	}, nil
}

// Forward applies the layer to an n x DModel sequence.
func (l *EncoderLayer) Forward(x mat.Matrix, mask []bool) *mat.Dense {
	h := l.SelfAttention.Forward(x, mask)
	h.Add(h, x)
	h = l.Norm1.Forward(h)

	ff := l.Linear1.Forward(h)
	ff.Apply(func(_, _ int, v float64) float64 { return l.Activation(v) }, ff)
	ff = l.Linear2.Forward(ff)
	ff.Add(ff, h)
	return l.Norm2.Forward(ff)
}

// TransformerEncoder is a stack of encoder layers followed by a final norm.
type TransformerEncoder struct {
	Layers []*EncoderLayer
	Norm   *LayerNorm
}

// NewTransformerEncoder allocates cfg.Layers encoder layers.
func NewTransformerEncoder(cfg TransformerConfig, init *Initializer) (*TransformerEncoder, error) {
	if cfg.Layers <= 0 {
		return nil, fmt.Errorf("transformer encoder needs at least one layer, got %d", cfg.Layers)
	}
	enc := &TransformerEncoder{
		Layers: make([]*EncoderLayer, cfg.Layers),
		Norm:   NewLayerNorm(cfg.DModel, cfg.NormEps),
	}
	for i := range enc.Layers {
		layer, err := NewEncoderLayer(cfg, init)
		if err != nil {
			return nil, fmt.Errorf("failed to build encoder layer %d: %w", i, err)
		}
		enc.Layers[i] = layer
	}
	return enc, nil
}

// Forward runs the whole stack over an n x DModel sequence.
func (e *TransformerEncoder) Forward(x mat.Matrix, mask []bool) *mat.Dense {
	h := mat.DenseCopyOf(x)
	for _, layer := range e.Layers {
		h = layer.Forward(h, mask)
	}
	return e.Norm.Forward(h)
}
