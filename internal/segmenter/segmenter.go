// Package segmenter packs pre-tokenized documents into the fixed
// (segments, tokens) grid the hierarchical encoder consumes.
//
// Each segment is [CLS] body [SEP] followed by pad ids, with a body of at
// most MaxSegmentLength-2 tokens. Segments after the end of a document are
// all zero ids, which is what marks them as padding downstream. Tokens that
// do not fit in MaxSegments segments are dropped and reported.
package segmenter

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/iasik/hierarchical-encoder/internal/hierarchical"
	"github.com/iasik/hierarchical-encoder/internal/tensor"
)

// Document is one pre-tokenized input document.
type Document struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Language string `json:"language,omitempty"`
	InputIDs []int  `json:"input_ids"`
}

// Config holds segment geometry and special token ids.
type Config struct {
	MaxSegments      int
	MaxSegmentLength int
	ClsID            int
	SepID            int
	PadID            int
}

// Segmented is a document packed into MaxSegments x MaxSegmentLength.
type Segmented struct {
	DocumentID string

	// (segments, tokens)
	InputIDs      *tensor.Ints
	AttentionMask *tensor.Ints
	TokenTypeIDs  *tensor.Ints

	// Non-padding segments
	Segments int

	// Body tokens of the document
	TokenCount int

	// Whether tokens were dropped, and how many
	Truncated     bool
	DroppedTokens int

	// SHA256 of the document's token ids
	ContentHash string
}

// Segmenter splits documents into segments.
type Segmenter struct {
	cfg Config
}

// New creates a segmenter. MaxSegmentLength must leave room for at least
// one body token.
func New(cfg Config) (*Segmenter, error) {
	if cfg.MaxSegments <= 0 {
		return nil, fmt.Errorf("max_segments must be positive")
	}
	if cfg.MaxSegmentLength < 3 {
		return nil, fmt.Errorf("max_segment_length must be at least 3, got %d", cfg.MaxSegmentLength)
	}
	return &Segmenter{cfg: cfg}, nil
}

// Config returns the segmenter configuration.
func (s *Segmenter) Config() Config { return s.cfg }

// BodyLength is the number of document tokens per segment.
func (s *Segmenter) BodyLength() int { return s.cfg.MaxSegmentLength - 2 }

// Capacity is the number of document tokens that fit in one grid.
func (s *Segmenter) Capacity() int { return s.cfg.MaxSegments * s.BodyLength() }

// Segment packs doc. An empty document yields an all-padding grid.
func (s *Segmenter) Segment(doc Document) *Segmented {
	segments, length, body := s.cfg.MaxSegments, s.cfg.MaxSegmentLength, s.BodyLength()

	out := &Segmented{
		DocumentID:    doc.ID,
		InputIDs:      tensor.Zeros[int](segments, length),
		AttentionMask: tensor.Zeros[int](segments, length),
		TokenTypeIDs:  tensor.Zeros[int](segments, length),
		TokenCount:    len(doc.InputIDs),
		ContentHash:   HashTokens(doc.InputIDs),
	}

	tokens := doc.InputIDs
	if over := len(tokens) - s.Capacity(); over > 0 {
		out.Truncated = true
		out.DroppedTokens = over
		tokens = tokens[:s.Capacity()]
	}

	for seg := 0; len(tokens) > 0; seg++ {
		n := min(body, len(tokens))
		ids := out.InputIDs.Sub(seg).Data()
		mask := out.AttentionMask.Sub(seg).Data()

		ids[0] = s.cfg.ClsID
		copy(ids[1:], tokens[:n])
		ids[n+1] = s.cfg.SepID
		for k := n + 2; k < length; k++ {
			ids[k] = s.cfg.PadID
		}
		for k := 0; k < n+2; k++ {
			mask[k] = 1
		}

		tokens = tokens[n:]
		out.Segments++
	}
	return out
}

// Batch stacks segmented documents into one encoder request.
func Batch(docs []*Segmented) (hierarchical.Request, error) {
	if len(docs) == 0 {
		return hierarchical.Request{}, fmt.Errorf("empty batch")
	}
	segments, length := docs[0].InputIDs.Dim(0), docs[0].InputIDs.Dim(1)

	ids := tensor.Zeros[int](len(docs), segments, length)
	mask := tensor.Zeros[int](len(docs), segments, length)
	types := tensor.Zeros[int](len(docs), segments, length)
	for d, doc := range docs {
		if doc.InputIDs.Dim(0) != segments || doc.InputIDs.Dim(1) != length {
			return hierarchical.Request{}, &tensor.ShapeError{Op: "batch", From: doc.InputIDs.Shape(), To: []int{segments, length}}
		}
		copy(ids.Sub(d).Data(), doc.InputIDs.Data())
		copy(mask.Sub(d).Data(), doc.AttentionMask.Data())
		copy(types.Sub(d).Data(), doc.TokenTypeIDs.Data())
	}
	return hierarchical.Request{InputIDs: ids, AttentionMask: mask, TokenTypeIDs: types}, nil
}

// HashTokens creates a SHA256 hash of a token id sequence.
func HashTokens(ids []int) string {
	h := sha256.New()
	var buf [8]byte
	for _, id := range ids {
		binary.LittleEndian.PutUint64(buf[:], uint64(id))
		h.Write(buf[:])
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
