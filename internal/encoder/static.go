package encoder

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/iasik/hierarchical-encoder/internal/nn"
	"github.com/iasik/hierarchical-encoder/internal/tensor"
)

// StaticEncoder is an embedding-lookup base encoder: every token becomes
// LayerNorm(word[id] + position[t] + type[type id]), and masked tokens are
// zeroed. It has no attention layers. It serves dry runs and tests where no
// inference service is available.
type StaticEncoder struct {
	model     string
	base      BaseConfig
	words     *mat.Dense
	positions *mat.Dense
	types     *mat.Dense
	norm      *nn.LayerNorm
}

// NewStaticEncoder builds the embedding tables from cfg.Seed.
func NewStaticEncoder(cfg Config) (*StaticEncoder, error) {
	base := cfg.Base
	applyBaseDefaults(&base)
	if base.HiddenSize <= 0 {
		return nil, fmt.Errorf("static encoder needs a positive hidden_size")
	}
	if base.VocabSize <= 0 {
		return nil, fmt.Errorf("static encoder needs a positive vocab_size")
	}

	init := nn.NewInitializer(cfg.Seed)
	s := &StaticEncoder{
		model: cfg.Model,
		base:  base,
		words: init.Normal(base.VocabSize, base.HiddenSize, 0.02),
		types: init.Normal(base.TypeVocabSize, base.HiddenSize, 0.02),
		norm:  nn.NewLayerNorm(base.HiddenSize, base.LayerNormEps),
	}
	if base.MaxPositionEmbeddings > 0 {
		s.positions = init.Normal(base.MaxPositionEmbeddings, base.HiddenSize, 0.02)
	}
	return s, nil
}

// Config returns the base model configuration.
func (s *StaticEncoder) Config() BaseConfig { return s.base }

// ModelInfo returns information about the static model.
func (s *StaticEncoder) ModelInfo() ModelInfo {
	return ModelInfo{Provider: "static", Model: s.model, Dimensions: s.base.HiddenSize}
}

// Encode looks up and normalises the token embeddings.
func (s *StaticEncoder) Encode(ctx context.Context, batch Batch) (*tensor.Floats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, tokens := batch.InputIDs.Dim(0), batch.InputIDs.Dim(1)
	if s.positions != nil && tokens > s.base.MaxPositionEmbeddings {
		return nil, &tensor.ShapeError{Op: "static encode", From: batch.InputIDs.Shape(), To: []int{n, s.base.MaxPositionEmbeddings}}
	}

	hidden := s.base.HiddenSize
	out := tensor.Zeros[float64](n, tokens, hidden)
	for i := 0; i < n; i++ {
		seq := mat.NewDense(tokens, hidden, nil)
		for t := 0; t < tokens; t++ {
			id := batch.InputIDs.At(i, t)
			typ := batch.TokenTypeIDs.At(i, t)
			if id < 0 || id >= s.base.VocabSize {
				return nil, fmt.Errorf("token id %d out of vocabulary (size %d)", id, s.base.VocabSize)
			}
			if typ < 0 || typ >= s.base.TypeVocabSize {
				return nil, fmt.Errorf("token type id %d out of range (size %d)", typ, s.base.TypeVocabSize)
			}
			row := seq.RawRowView(t)
			copy(row, s.words.RawRowView(id))
			floats.Add(row, s.types.RawRowView(typ))
			if s.positions != nil {
				floats.Add(row, s.positions.RawRowView(t))
			}
		}

		normed := s.norm.Forward(seq)
		dst := out.Sub(i)
		for t := 0; t < tokens; t++ {
			if batch.AttentionMask.At(i, t) == 0 {
				continue
			}
			copy(dst.Sub(t).Data(), normed.RawRowView(t))
		}
	}
	return out, nil
}

// Health always succeeds.
func (s *StaticEncoder) Health(context.Context) error { return nil }

// Close releases resources (no-op).
func (s *StaticEncoder) Close() error { return nil }
