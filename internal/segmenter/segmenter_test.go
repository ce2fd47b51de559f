package segmenter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iasik/hierarchical-encoder/internal/hierarchical"
)

func newTestSegmenter(t *testing.T, segments, length int) *Segmenter {
	t.Helper()
	s, err := New(Config{MaxSegments: segments, MaxSegmentLength: length, ClsID: 101, SepID: 102, PadID: 0})
	require.NoError(t, err)
	return s
}

func TestSegment_Layout(t *testing.T) {
	s := newTestSegmenter(t, 3, 5)
	assert.Equal(t, 3, s.BodyLength())
	assert.Equal(t, 9, s.Capacity())

	out := s.Segment(Document{ID: "doc-1", InputIDs: []int{1, 2, 3, 4, 5}})

	assert.Equal(t, []int{101, 1, 2, 3, 102}, out.InputIDs.Sub(0).Data())
	assert.Equal(t, []int{101, 4, 5, 102, 0}, out.InputIDs.Sub(1).Data())
	assert.Equal(t, []int{0, 0, 0, 0, 0}, out.InputIDs.Sub(2).Data())

	assert.Equal(t, []int{1, 1, 1, 1, 1}, out.AttentionMask.Sub(0).Data())
	assert.Equal(t, []int{1, 1, 1, 1, 0}, out.AttentionMask.Sub(1).Data())
	assert.Equal(t, 0, out.AttentionMask.Sub(2).Sum())
	assert.Equal(t, 0, out.TokenTypeIDs.Sum())

	assert.Equal(t, 2, out.Segments)
	assert.Equal(t, 5, out.TokenCount)
	assert.False(t, out.Truncated)
	assert.Equal(t, "doc-1", out.DocumentID)
}

func TestSegment_NonZeroPadInsideSegments(t *testing.T) {
	s, err := New(Config{MaxSegments: 2, MaxSegmentLength: 4, ClsID: 0, SepID: 2, PadID: 1})
	require.NoError(t, err)

	out := s.Segment(Document{InputIDs: []int{7}})
	assert.Equal(t, []int{0, 7, 2, 1}, out.InputIDs.Sub(0).Data())
	// trailing segments stay zero whatever the pad id
	assert.Equal(t, []int{0, 0, 0, 0}, out.InputIDs.Sub(1).Data())
}

func TestSegment_Truncates(t *testing.T) {
	s := newTestSegmenter(t, 2, 4)
	out := s.Segment(Document{InputIDs: []int{1, 2, 3, 4, 5, 6, 7}})

	assert.True(t, out.Truncated)
	assert.Equal(t, 3, out.DroppedTokens)
	assert.Equal(t, 2, out.Segments)
	assert.Equal(t, []int{101, 3, 4, 102}, out.InputIDs.Sub(1).Data())
}

func TestSegment_EmptyDocument(t *testing.T) {
	out := newTestSegmenter(t, 2, 4).Segment(Document{ID: "empty"})
	assert.Equal(t, 0, out.Segments)
	assert.Equal(t, 0, out.InputIDs.Sum())
}

func TestSegment_MaskAgreesWithSegmentPositions(t *testing.T) {
	s := newTestSegmenter(t, 4, 4)
	req, err := Batch([]*Segmented{
		s.Segment(Document{InputIDs: []int{5, 6, 7}}),
		s.Segment(Document{InputIDs: []int{5, 6, 7, 8, 9, 10, 11}}),
	})
	require.NoError(t, err)

	positions, err := hierarchical.SegmentPositions(req.InputIDs)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 0, 0}, positions.Sub(0).Data())
	assert.Equal(t, []int{1, 2, 3, 4}, positions.Sub(1).Data())
}

func TestBatch(t *testing.T) {
	s := newTestSegmenter(t, 2, 3)
	a := s.Segment(Document{InputIDs: []int{1}})
	b := s.Segment(Document{InputIDs: []int{2, 3}})

	req, err := Batch([]*Segmented{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 3}, req.InputIDs.Shape())
	assert.Equal(t, []int{101, 1, 102, 0, 0, 0}, req.InputIDs.Sub(0).Data())
	assert.Equal(t, []int{101, 2, 102, 101, 3, 102}, req.InputIDs.Sub(1).Data())
	assert.Equal(t, 9, req.AttentionMask.Sum())

	_, err = Batch(nil)
	assert.Error(t, err)

	other := newTestSegmenter(t, 3, 3).Segment(Document{InputIDs: []int{1}})
	_, err = Batch([]*Segmented{a, other})
	assert.Error(t, err)
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Config{MaxSegments: 0, MaxSegmentLength: 8})
	assert.Error(t, err)
	_, err = New(Config{MaxSegments: 2, MaxSegmentLength: 2})
	assert.Error(t, err)
}

func TestHashTokens(t *testing.T) {
	assert.Equal(t, HashTokens([]int{1, 2, 3}), HashTokens([]int{1, 2, 3}))
	assert.NotEqual(t, HashTokens([]int{1, 2, 3}), HashTokens([]int{3, 2, 1}))
	assert.Len(t, HashTokens(nil), 64)
}
