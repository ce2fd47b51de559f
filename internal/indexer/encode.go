package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/iasik/hierarchical-encoder/internal/hierarchical"
	"github.com/iasik/hierarchical-encoder/internal/metrics"
	"github.com/iasik/hierarchical-encoder/internal/segmenter"
)

// EncodedDocument is a document vector together with how the document was
// segmented.
type EncodedDocument struct {
	Document  segmenter.Document
	Segmented *segmenter.Segmented
	Vector    []float32
}

// DocumentEncoder segments documents and runs them through the
// hierarchical encoder in batches.
type DocumentEncoder struct {
	encoder   *hierarchical.Encoder
	segmenter *segmenter.Segmenter
	metrics   *metrics.Metrics
	batchSize int
}

// NewDocumentEncoder creates a document encoder. The segmenter geometry
// must match the encoder's.
func NewDocumentEncoder(enc *hierarchical.Encoder, seg *segmenter.Segmenter, m *metrics.Metrics, batchSize int) (*DocumentEncoder, error) {
	sc := seg.Config()
	if sc.MaxSegments != enc.MaxSegments() || sc.MaxSegmentLength != enc.MaxSegmentLength() {
		return nil, fmt.Errorf("segmenter geometry %dx%d does not match encoder %dx%d",
			sc.MaxSegments, sc.MaxSegmentLength, enc.MaxSegments(), enc.MaxSegmentLength())
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return &DocumentEncoder{encoder: enc, segmenter: seg, metrics: m, batchSize: batchSize}, nil
}

// Dimensions returns the width of the document vectors.
func (e *DocumentEncoder) Dimensions() int { return e.encoder.HiddenSize() }

// BatchSize returns the number of documents per forward pass.
func (e *DocumentEncoder) BatchSize() int { return e.batchSize }

// Segmenter returns the segmenter in use.
func (e *DocumentEncoder) Segmenter() *segmenter.Segmenter { return e.segmenter }

// Encode encodes docs, batchSize documents per forward pass. Results are
// in input order.
func (e *DocumentEncoder) Encode(ctx context.Context, docs []segmenter.Document) ([]EncodedDocument, error) {
	out := make([]EncodedDocument, 0, len(docs))
	for start := 0; start < len(docs); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+e.batchSize, len(docs))
		batch, err := e.encodeBatch(ctx, docs[start:end])
		if err != nil {
			return nil, fmt.Errorf("encode documents %d-%d: %w", start, end-1, err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (e *DocumentEncoder) encodeBatch(ctx context.Context, docs []segmenter.Document) ([]EncodedDocument, error) {
	segmented := make([]*segmenter.Segmented, len(docs))
	for i, doc := range docs {
		segmented[i] = e.segmenter.Segment(doc)
	}

	req, err := segmenter.Batch(segmented)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	output, err := e.encoder.Forward(ctx, req)
	e.metrics.ObserveForward(string(e.encoder.SegmentEncoder().Kind()), len(docs), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	out := make([]EncodedDocument, len(docs))
	for i, doc := range docs {
		row := output.LastHiddenState.RawRowView(i)
		vec := make([]float32, len(row))
		for j, v := range row {
			vec[j] = float32(v)
		}
		out[i] = EncodedDocument{Document: doc, Segmented: segmented[i], Vector: vec}
	}
	return out, nil
}
