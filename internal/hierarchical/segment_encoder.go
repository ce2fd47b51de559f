package hierarchical

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/iasik/hierarchical-encoder/internal/encoder"
	"github.com/iasik/hierarchical-encoder/internal/nn"
	"github.com/iasik/hierarchical-encoder/internal/tensor"
)

// SegmentEncoderKind names a segment encoder variant.
type SegmentEncoderKind string

const (
	// KindRecurrent combines segments with a bidirectional LSTM.
	KindRecurrent SegmentEncoderKind = "lstm"

	// KindAttention combines segments with a transformer encoder stack.
	KindAttention SegmentEncoderKind = "transformer"
)

// segmentEncoderLayers is the depth of the attention variant's stack.
const segmentEncoderLayers = 2

// ParseKind resolves a segment encoder kind from configuration. The
// aliases "recurrent" and "attention" are accepted.
func ParseKind(s string) (SegmentEncoderKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lstm", "recurrent":
		return KindRecurrent, nil
	case "transformer", "attention", "":
		return KindAttention, nil
	default:
		return "", fmt.Errorf("unknown segment encoder: %s (supported: lstm, transformer)", s)
	}
}

// SegmentEncoder is the segment-level half of the hierarchical encoder. The
// only implementations are *RecurrentSegmentEncoder and
// *AttentionSegmentEncoder; the variant is fixed when the Encoder is built.
type SegmentEncoder interface {
	Kind() SegmentEncoderKind

	// encode pools (documents, segments, hidden) summaries into a
	// documents x hidden matrix. ids is the (documents, segments, tokens)
	// input the summaries came from.
	encode(summaries *tensor.Floats, ids *tensor.Ints) (*mat.Dense, error)
}

// RecurrentSegmentEncoder runs a BiLSTM over the segment summaries and
// projects the concatenated final states back to the hidden width.
type RecurrentSegmentEncoder struct {
	LSTM        *nn.BiLSTM
	DownProject *nn.Linear
}

func newRecurrentSegmentEncoder(hidden int, init *nn.Initializer) *RecurrentSegmentEncoder {
	return &RecurrentSegmentEncoder{
		LSTM:        nn.NewBiLSTM(hidden, hidden, init),
		DownProject: nn.NewLinear(2*hidden, hidden, init),
	}
}

// Kind returns KindRecurrent.
func (r *RecurrentSegmentEncoder) Kind() SegmentEncoderKind { return KindRecurrent }

func (r *RecurrentSegmentEncoder) encode(summaries *tensor.Floats, _ *tensor.Ints) (*mat.Dense, error) {
	docs, segments, hidden := summaries.Dim(0), summaries.Dim(1), summaries.Dim(2)
	concat := mat.NewDense(docs, 2*hidden, nil)

	for d := 0; d < docs; d++ {
		seq, err := tensor.Matrix(summaries.Sub(d))
		if err != nil {
			return nil, err
		}
		states := r.LSTM.Run(seq)

		// forward state after the last segment, backward state after the first
		row := concat.RawRowView(d)
		copy(row[:hidden], states.RawRowView(segments - 1)[:hidden])
		copy(row[hidden:], states.RawRowView(0)[hidden:])
	}
	return r.DownProject.Forward(concat), nil
}

// AttentionSegmentEncoder adds segment position vectors to the summaries,
// runs a transformer encoder stack over them and max-pools across segments.
//
// Padding segments get position 0 (the zero vector) but still take part in
// self-attention; no attention mask is applied.
type AttentionSegmentEncoder struct {
	// Positions is the (max_segments+1) x hidden sinusoidal table.
	Positions *mat.Dense
	Stack     *nn.TransformerEncoder
}

func newAttentionSegmentEncoder(maxSegments int, cfg encoder.BaseConfig, init *nn.Initializer) (*AttentionSegmentEncoder, error) {
	stack, err := nn.NewTransformerEncoder(nn.TransformerConfig{
		DModel:         cfg.HiddenSize,
		Heads:          cfg.NumAttentionHeads,
		FeedForwardDim: cfg.IntermediateSize,
		Activation:     cfg.HiddenAct,
		Dropout:        cfg.HiddenDropoutProb,
		NormEps:        cfg.LayerNormEps,
		Layers:         segmentEncoderLayers,
	}, init)
	if err != nil {
		return nil, err
	}
	return &AttentionSegmentEncoder{
		Positions: SinusoidalTable(maxSegments+1, cfg.HiddenSize),
		Stack:     stack,
	}, nil
}

// Kind returns KindAttention.
func (a *AttentionSegmentEncoder) Kind() SegmentEncoderKind { return KindAttention }

func (a *AttentionSegmentEncoder) encode(summaries *tensor.Floats, ids *tensor.Ints) (*mat.Dense, error) {
	positions, err := SegmentPositions(ids)
	if err != nil {
		return nil, err
	}
	docs, hidden := summaries.Dim(0), summaries.Dim(2)
	pooled := mat.NewDense(docs, hidden, nil)

	for d := 0; d < docs; d++ {
		x, err := a.withPositions(summaries.Sub(d), positions.Sub(d))
		if err != nil {
			return nil, err
		}
		h := a.Stack.Forward(x, nil)
		maxPool(h, pooled.RawRowView(d))
	}
	return pooled, nil
}

// withPositions returns a copy of one document's segments x hidden
// summaries with the position table rows for positions added.
func (a *AttentionSegmentEncoder) withPositions(summaries *tensor.Floats, positions *tensor.Ints) (*mat.Dense, error) {
	seq, err := tensor.Matrix(summaries)
	if err != nil {
		return nil, err
	}
	x := mat.DenseCopyOf(seq)
	rows, _ := a.Positions.Dims()
	for s, p := range positions.Data() {
		if p >= rows {
			return nil, &tensor.ShapeError{Op: "segment positions", From: positions.Shape(), To: []int{rows - 1}}
		}
		floats.Add(x.RawRowView(s), a.Positions.RawRowView(p))
	}
	return x, nil
}

// maxPool writes the column-wise maximum of h into dst.
func maxPool(h *mat.Dense, dst []float64) {
	rows, _ := h.Dims()
	copy(dst, h.RawRowView(0))
	for i := 1; i < rows; i++ {
		for j, v := range h.RawRowView(i) {
			if v > dst[j] {
				dst[j] = v
			}
		}
	}
}
