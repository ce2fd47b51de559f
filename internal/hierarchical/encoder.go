// Package hierarchical implements a two-level document encoder. A base
// token encoder encodes every segment of a document independently; the
// first-token vector of each segment is taken as its summary, and a
// segment encoder combines the summaries into one vector per document.
//
// Inputs are (documents, segments, tokens) tensors. They are flattened to
// (documents*segments, tokens) for the base encoder, so segment s of
// document d is row d*segments+s of the flat batch, and reshaped back
// afterwards using the same ordering.
package hierarchical

import (
	"context"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/iasik/hierarchical-encoder/internal/encoder"
	"github.com/iasik/hierarchical-encoder/internal/nn"
	"github.com/iasik/hierarchical-encoder/internal/tensor"
)

// Options configures New.
type Options struct {
	// Number of segments every document is split into
	MaxSegments int

	// Tokens per segment; must match the base encoder's sequence length
	MaxSegmentLength int

	// Segment encoder variant
	Kind SegmentEncoderKind

	// Seed for parameter initialisation
	Seed uint64
}

// Request is the input of Forward. Each tensor is (documents, segments,
// tokens). AttentionMask defaults to all ones and TokenTypeIDs to zeros
// when nil.
type Request struct {
	InputIDs      *tensor.Ints
	AttentionMask *tensor.Ints
	TokenTypeIDs  *tensor.Ints
}

// Output mirrors the base encoder output convention. LastHiddenState and
// HiddenStates hold the same documents x hidden matrix; the remaining
// fields are never populated.
type Output struct {
	LastHiddenState *mat.Dense
	HiddenStates    *mat.Dense

	PastKeyValues   []*mat.Dense
	Attentions      []*mat.Dense
	CrossAttentions []*mat.Dense
}

// Encoder is the hierarchical document encoder.
type Encoder struct {
	base             encoder.TokenEncoder
	maxSegments      int
	maxSegmentLength int
	hiddenSize       int
	segments         SegmentEncoder
}

// New builds a hierarchical encoder on top of base. It fails with a
// *ConfigError wrapping ErrUnsupportedModel when the base encoder's model
// type is not one of SupportedModelTypes.
func New(base encoder.TokenEncoder, opts Options) (*Encoder, error) {
	cfg := base.Config()
	if !IsSupportedModelType(cfg.ModelType) {
		return nil, &ConfigError{Field: "model_type", Value: cfg.ModelType, Err: ErrUnsupportedModel}
	}
	if opts.MaxSegments <= 0 {
		return nil, &ConfigError{Field: "max_segments", Value: opts.MaxSegments, Err: ErrInvalidOption}
	}
	if opts.MaxSegmentLength <= 0 {
		return nil, &ConfigError{Field: "max_segment_length", Value: opts.MaxSegmentLength, Err: ErrInvalidOption}
	}
	if n := cfg.MaxPositionEmbeddings; n > 0 && opts.MaxSegmentLength > n {
		return nil, &ConfigError{Field: "max_segment_length", Value: opts.MaxSegmentLength, Err: fmt.Errorf("%w: base encoder accepts at most %d tokens", ErrInvalidOption, n)}
	}
	if cfg.HiddenSize <= 0 {
		return nil, &ConfigError{Field: "hidden_size", Value: cfg.HiddenSize, Err: ErrInvalidOption}
	}

	init := nn.NewInitializer(opts.Seed)
	e := &Encoder{
		base:             base,
		maxSegments:      opts.MaxSegments,
		maxSegmentLength: opts.MaxSegmentLength,
		hiddenSize:       cfg.HiddenSize,
	}

	switch opts.Kind {
	case KindRecurrent:
		e.segments = newRecurrentSegmentEncoder(cfg.HiddenSize, init)
	case KindAttention:
		seg, err := newAttentionSegmentEncoder(opts.MaxSegments, cfg, init)
		if err != nil {
			return nil, &ConfigError{Field: "segment_encoder", Value: opts.Kind, Err: err}
		}
		e.segments = seg
	default:
		return nil, &ConfigError{Field: "segment_encoder", Value: opts.Kind, Err: ErrInvalidOption}
	}

	return e, nil
}

// MaxSegments returns the configured number of segments per document.
func (e *Encoder) MaxSegments() int { return e.maxSegments }

// MaxSegmentLength returns the configured tokens per segment.
func (e *Encoder) MaxSegmentLength() int { return e.maxSegmentLength }

// HiddenSize returns the width of the document vectors.
func (e *Encoder) HiddenSize() int { return e.hiddenSize }

// SegmentEncoder returns the segment encoder chosen at construction.
func (e *Encoder) SegmentEncoder() SegmentEncoder { return e.segments }

// Forward encodes a batch of documents. The inputs must be
// (documents, MaxSegments, MaxSegmentLength) and the optional mask and type
// ids must have the shape of the ids; anything else is a *tensor.ShapeError.
func (e *Encoder) Forward(ctx context.Context, req Request) (*Output, error) {
	if req.InputIDs == nil {
		return nil, fmt.Errorf("input ids are required")
	}
	ids := req.InputIDs
	if ids.Rank() != 3 || ids.Dim(1) != e.maxSegments || ids.Dim(2) != e.maxSegmentLength {
		return nil, &tensor.ShapeError{Op: "forward", From: ids.Shape(), To: []int{-1, e.maxSegments, e.maxSegmentLength}}
	}
	if ids.Dim(0) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	mask := req.AttentionMask
	if mask == nil {
		mask = onesLike(ids)
	} else if !slices.Equal(mask.Shape(), ids.Shape()) {
		return nil, &tensor.ShapeError{Op: "attention mask", From: mask.Shape(), To: ids.Shape()}
	}
	types := req.TokenTypeIDs
	if types == nil {
		types = tensor.Zeros[int](ids.Shape()...)
	} else if !slices.Equal(types.Shape(), ids.Shape()) {
		return nil, &tensor.ShapeError{Op: "token type ids", From: types.Shape(), To: ids.Shape()}
	}

	batch, err := flattenBatch(req.InputIDs, mask, types)
	if err != nil {
		return nil, err
	}

	hidden, err := e.base.Encode(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("base encoder failed: %w", err)
	}
	if hidden.Rank() != 3 || hidden.Dim(2) != e.hiddenSize {
		return nil, &tensor.ShapeError{Op: "base encoder output", From: hidden.Shape(), To: []int{-1, e.maxSegmentLength, e.hiddenSize}}
	}

	docs := req.InputIDs.Dim(0)
	tokens, err := hidden.Reshape(docs, e.maxSegments, e.maxSegmentLength, e.hiddenSize)
	if err != nil {
		return nil, err
	}

	pooled, err := e.segments.encode(segmentSummaries(tokens), req.InputIDs)
	if err != nil {
		return nil, fmt.Errorf("segment encoder failed: %w", err)
	}

	return &Output{LastHiddenState: pooled, HiddenStates: pooled}, nil
}

// FlattenSegments merges the documents and segments axes of a rank-3
// tensor: (documents, segments, tokens) -> (documents*segments, tokens).
// The result is a view over the same storage.
func FlattenSegments(t *tensor.Ints) (*tensor.Ints, error) {
	if t.Rank() != 3 {
		return nil, &tensor.ShapeError{Op: "flatten", From: t.Shape(), To: []int{-1, -1, -1}}
	}
	return t.Reshape(-1, t.Dim(2))
}

// SegmentMask marks the segments whose token ids do not sum to zero.
// The result is (documents, segments) with 1 for real and 0 for padding
// segments.
func SegmentMask(ids *tensor.Ints) (*tensor.Ints, error) {
	if ids.Rank() != 3 {
		return nil, &tensor.ShapeError{Op: "segment mask", From: ids.Shape(), To: []int{-1, -1, -1}}
	}
	docs, segments := ids.Dim(0), ids.Dim(1)
	mask := tensor.Zeros[int](docs, segments)
	for d := 0; d < docs; d++ {
		doc := ids.Sub(d)
		for s := 0; s < segments; s++ {
			if doc.Sub(s).Sum() != 0 {
				mask.Set(1, d, s)
			}
		}
	}
	return mask, nil
}

// SegmentPositions returns 1-based segment positions with padding
// segments mapped to 0. The result is (documents, segments).
func SegmentPositions(ids *tensor.Ints) (*tensor.Ints, error) {
	mask, err := SegmentMask(ids)
	if err != nil {
		return nil, err
	}
	segments := mask.Dim(1)
	data := mask.Data()
	for i := range data {
		data[i] *= i%segments + 1
	}
	return mask, nil
}

// segmentSummaries gathers token 0 of every segment:
// (documents, segments, tokens, hidden) -> (documents, segments, hidden).
func segmentSummaries(tokens *tensor.Floats) *tensor.Floats {
	docs, segments, hidden := tokens.Dim(0), tokens.Dim(1), tokens.Dim(3)
	out := tensor.Zeros[float64](docs, segments, hidden)
	for d := 0; d < docs; d++ {
		for s := 0; s < segments; s++ {
			first := tokens.Sub(d).Sub(s).Sub(0)
			copy(out.Sub(d).Sub(s).Data(), first.Data())
		}
	}
	return out
}

func flattenBatch(ids, mask, types *tensor.Ints) (encoder.Batch, error) {
	flatIDs, err := FlattenSegments(ids)
	if err != nil {
		return encoder.Batch{}, err
	}
	flatMask, err := FlattenSegments(mask)
	if err != nil {
		return encoder.Batch{}, err
	}
	flatTypes, err := FlattenSegments(types)
	if err != nil {
		return encoder.Batch{}, err
	}
	return encoder.Batch{InputIDs: flatIDs, AttentionMask: flatMask, TokenTypeIDs: flatTypes}, nil
}

func onesLike(t *tensor.Ints) *tensor.Ints {
	out := tensor.Zeros[int](t.Shape()...)
	for i := range out.Data() {
		out.Data()[i] = 1
	}
	return out
}
