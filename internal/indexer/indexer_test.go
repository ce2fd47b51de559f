package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iasik/hierarchical-encoder/internal/config"
	"github.com/iasik/hierarchical-encoder/internal/encoder"
	"github.com/iasik/hierarchical-encoder/internal/hierarchical"
	"github.com/iasik/hierarchical-encoder/internal/metrics"
	"github.com/iasik/hierarchical-encoder/internal/segmenter"
	"github.com/iasik/hierarchical-encoder/internal/vectordb"
)

// fakeVectorDB keeps points in memory.
type fakeVectorDB struct {
	mu             sync.Mutex
	points         map[string]vectordb.Point
	upsertErr      error
	filterDeletes  []vectordb.Filter
	deletedIDs     []string
	collectionDims int
}

func newFakeVectorDB() *fakeVectorDB {
	return &fakeVectorDB{points: make(map[string]vectordb.Point)}
}

func (f *fakeVectorDB) Upsert(_ context.Context, points []vectordb.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, p := range points {
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeVectorDB) Search(context.Context, vectordb.SearchQuery) ([]vectordb.SearchResult, error) {
	return nil, nil
}

func (f *fakeVectorDB) Delete(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.points, id)
	}
	f.deletedIDs = append(f.deletedIDs, ids...)
	return nil
}

func (f *fakeVectorDB) DeleteByFilter(_ context.Context, filter vectordb.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range f.points {
		if p.Payload.CorpusID == filter.CorpusID {
			delete(f.points, id)
		}
	}
	f.filterDeletes = append(f.filterDeletes, filter)
	return nil
}

func (f *fakeVectorDB) EnsureCollection(_ context.Context, dimensions int) error {
	f.collectionDims = dimensions
	return nil
}

func (f *fakeVectorDB) Health(context.Context) error { return nil }
func (f *fakeVectorDB) Close() error                 { return nil }

func (f *fakeVectorDB) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

const testHidden = 8

func newTestDocumentEncoder(t *testing.T, cfg *config.Config) *DocumentEncoder {
	t.Helper()

	base, err := encoder.NewStaticEncoder(encoder.Config{
		Model: "test-bert",
		Seed:  cfg.BaseEncoder.Seed,
		Base: encoder.BaseConfig{
			ModelType:             "bert",
			HiddenSize:            testHidden,
			NumAttentionHeads:     2,
			VocabSize:             256,
			MaxPositionEmbeddings: 32,
		},
	})
	require.NoError(t, err)

	kind, err := hierarchical.ParseKind(cfg.Model.SegmentEncoder)
	require.NoError(t, err)

	enc, err := hierarchical.New(base, hierarchical.Options{
		MaxSegments:      cfg.Model.MaxSegments,
		MaxSegmentLength: cfg.Model.MaxSegmentLength,
		Kind:             kind,
		Seed:             cfg.Model.Seed,
	})
	require.NoError(t, err)

	seg, err := segmenter.New(segmenter.Config{
		MaxSegments:      cfg.Model.MaxSegments,
		MaxSegmentLength: cfg.Model.MaxSegmentLength,
		ClsID:            cfg.Segmenting.ClsID,
		SepID:            cfg.Segmenting.SepID,
		PadID:            cfg.Segmenting.PadID,
	})
	require.NoError(t, err)

	de, err := NewDocumentEncoder(enc, seg, metrics.New("test"), cfg.Model.BatchSize)
	require.NoError(t, err)
	return de
}

func newTestConfig(t *testing.T, dataDir string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
base_encoder: {provider: static, seed: 3}
model:
  segment_encoder: lstm
  max_segments: 2
  max_segment_length: 6
  batch_size: 2
segmenting: {cls_id: 1, sep_id: 2}
`))
	require.NoError(t, err)
	cfg.Cache.Dir = filepath.Join(t.TempDir(), "cache")
	cfg.Corpora.DataBasePath = dataDir
	return cfg
}

func writeCorpus(t *testing.T, path string, docs ...segmenter.Document) {
	t.Helper()
	var sb strings.Builder
	for _, doc := range docs {
		line, err := json.Marshal(doc)
		require.NoError(t, err)
		sb.Write(line)
		sb.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0644))
}

type testHarness struct {
	cfg    *config.Config
	corpus *config.CorpusConfig
	vdb    *fakeVectorDB
	path   string
}

func newHarness(t *testing.T) *testHarness {
	dataDir := t.TempDir()
	return &testHarness{
		cfg:    newTestConfig(t, dataDir),
		corpus: &config.CorpusConfig{CorpusID: "news", DataPath: "news.jsonl"},
		vdb:    newFakeVectorDB(),
		path:   filepath.Join(dataDir, "news.jsonl"),
	}
}

func (h *testHarness) run(t *testing.T, full bool) *IndexResult {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	idx := NewIndexer(h.cfg, newTestDocumentEncoder(t, h.cfg), h.vdb, metrics.New("test"), logger)
	result, err := idx.IndexCorpus(context.Background(), h.corpus, full)
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	return result
}

var (
	docA = segmenter.Document{ID: "a", Title: "Alpha", Language: "en", InputIDs: []int{10, 11, 12}}
	docB = segmenter.Document{ID: "b", Language: "fr", InputIDs: []int{20, 21, 22, 23, 24, 25}}
	// capacity is 2 segments x 4 body tokens
	docLong = segmenter.Document{ID: "long", Language: "en", InputIDs: []int{30, 31, 32, 33, 34, 35, 36, 37, 38, 39}}
)

func TestIndexCorpus_Incremental(t *testing.T) {
	h := newHarness(t)
	writeCorpus(t, h.path, docA, docB, docLong)

	first := h.run(t, false)
	assert.Equal(t, 3, first.DocumentsScanned)
	assert.Equal(t, 3, first.DocumentsIndexed)
	assert.Equal(t, 0, first.DocumentsSkipped)
	assert.Equal(t, 1+2+2, first.SegmentsEncoded)
	require.Len(t, first.TruncatedDocuments, 1)
	assert.Equal(t, TruncatedDocument{DocumentID: "long", TokenCount: 10, DroppedTokens: 2, Capacity: 8}, first.TruncatedDocuments[0])
	assert.Equal(t, 3, h.vdb.count())

	point := h.vdb.points[vectordb.PointID("news", "a")]
	assert.Len(t, point.Vector, testHidden)
	assert.Equal(t, "news", point.Payload.CorpusID)
	assert.Equal(t, "Alpha", point.Payload.Title)
	assert.Equal(t, 1, point.Payload.Segments)
	assert.Equal(t, segmenter.HashTokens(docA.InputIDs), point.Payload.ContentHash)

	_, err := os.Stat(filepath.Join(h.cfg.Cache.Dir, "reports", "news-truncated.json"))
	assert.NoError(t, err)

	second := h.run(t, false)
	assert.Equal(t, 0, second.DocumentsIndexed)
	assert.Equal(t, 3, second.DocumentsSkipped)

	// change b, drop long
	changed := docB
	changed.InputIDs = []int{20, 21}
	writeCorpus(t, h.path, docA, changed)

	third := h.run(t, false)
	assert.Equal(t, 1, third.DocumentsIndexed)
	assert.Equal(t, 1, third.DocumentsSkipped)
	assert.Equal(t, 1, third.DocumentsDeleted)
	assert.Equal(t, []string{vectordb.PointID("news", "long")}, h.vdb.deletedIDs)
	assert.Equal(t, 2, h.vdb.count())
	assert.Equal(t, segmenter.HashTokens(changed.InputIDs), h.vdb.points[vectordb.PointID("news", "b")].Payload.ContentHash)

	cache, err := NewCache(h.cfg.Cache.Dir, "news")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, cache.GetAllDocuments())
	assert.Equal(t, Fingerprint(h.cfg), cache.Fingerprint())
}

func TestIndexCorpus_FullReindex(t *testing.T) {
	h := newHarness(t)
	writeCorpus(t, h.path, docA, docB)

	h.run(t, false)
	assert.Empty(t, h.vdb.filterDeletes)

	result := h.run(t, true)
	assert.Equal(t, 2, result.DocumentsIndexed)
	assert.Equal(t, 0, result.DocumentsSkipped)
	assert.Equal(t, []vectordb.Filter{{CorpusID: "news"}}, h.vdb.filterDeletes)
	assert.Equal(t, 2, h.vdb.count())
}

func TestIndexCorpus_ModelChangeForcesReindex(t *testing.T) {
	h := newHarness(t)
	writeCorpus(t, h.path, docA, docB)

	h.run(t, false)
	before := h.vdb.points[vectordb.PointID("news", "a")].Vector

	h.cfg.Model.Seed = 42
	result := h.run(t, false)
	assert.Equal(t, 2, result.DocumentsIndexed)
	assert.Len(t, h.vdb.filterDeletes, 1)
	assert.NotEqual(t, before, h.vdb.points[vectordb.PointID("news", "a")].Vector)
}

func TestIndexCorpus_LanguageFilter(t *testing.T) {
	h := newHarness(t)
	h.corpus.Languages = []string{"fr"}
	writeCorpus(t, h.path, docA, docB, docLong)

	result := h.run(t, false)
	assert.Equal(t, 1, result.DocumentsScanned)
	assert.Equal(t, 1, result.DocumentsIndexed)
	assert.Contains(t, h.vdb.points, vectordb.PointID("news", "b"))
}

func TestIndexCorpus_GeometryMismatch(t *testing.T) {
	h := newHarness(t)
	h.corpus.Segmenting.MaxSegments = 16
	writeCorpus(t, h.path, docA)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	idx := NewIndexer(h.cfg, newTestDocumentEncoder(t, h.cfg), h.vdb, nil, logger)
	_, err := idx.IndexCorpus(context.Background(), h.corpus, false)
	assert.Error(t, err)
	assert.Zero(t, h.vdb.count())
}

func TestIndexCorpus_UpsertFailureIsReported(t *testing.T) {
	h := newHarness(t)
	h.vdb.upsertErr = errors.New("qdrant unavailable")
	writeCorpus(t, h.path, docA, docB, docLong)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	idx := NewIndexer(h.cfg, newTestDocumentEncoder(t, h.cfg), h.vdb, nil, logger)
	result, err := idx.IndexCorpus(context.Background(), h.corpus, false)
	require.NoError(t, err)
	// batch size 2 gives two failed batches
	assert.Len(t, result.Errors, 2)
	assert.Zero(t, result.DocumentsIndexed)

	// nothing was cached, so the next run retries everything
	h.vdb.upsertErr = nil
	retry := h.run(t, false)
	assert.Equal(t, 3, retry.DocumentsIndexed)
}

func TestIndexer_EnsureCollection(t *testing.T) {
	h := newHarness(t)
	idx := NewIndexer(h.cfg, newTestDocumentEncoder(t, h.cfg), h.vdb, nil, slog.Default())
	require.NoError(t, idx.EnsureCollection(context.Background()))
	assert.Equal(t, testHidden, h.vdb.collectionDims)
}

func TestDocumentEncoder_EncodeMatchesSingleDocuments(t *testing.T) {
	h := newHarness(t)
	de := newTestDocumentEncoder(t, h.cfg)

	batch, err := de.Encode(context.Background(), []segmenter.Document{docA, docB, docLong})
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, doc := range []segmenter.Document{docA, docB, docLong} {
		assert.Equal(t, doc.ID, batch[i].Document.ID)
		single, err := de.Encode(context.Background(), []segmenter.Document{doc})
		require.NoError(t, err)
		assert.InDeltaSlice(t, single[0].Vector, batch[i].Vector, 1e-5)
	}
}

func TestNewDocumentEncoder_GeometryMismatch(t *testing.T) {
	h := newHarness(t)
	de := newTestDocumentEncoder(t, h.cfg)

	seg, err := segmenter.New(segmenter.Config{MaxSegments: 3, MaxSegmentLength: 6})
	require.NoError(t, err)
	_, err = NewDocumentEncoder(de.encoder, seg, nil, 1)
	assert.Error(t, err)
}

func TestDecodeCorpus(t *testing.T) {
	docs, err := DecodeCorpus(strings.NewReader(`{"id":"x","input_ids":[1,2]}
{"id":"y","title":"Why","language":"en","input_ids":[]}`))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, []int{1, 2}, docs[0].InputIDs)
	assert.Equal(t, "Why", docs[1].Title)

	_, err = DecodeCorpus(strings.NewReader(`{"input_ids":[1]}`))
	assert.ErrorContains(t, err, "id is required")

	_, err = DecodeCorpus(strings.NewReader(`{"id":"x"}{"id":"x"}`))
	assert.ErrorContains(t, err, "duplicate")

	_, err = DecodeCorpus(strings.NewReader(`{"id":`))
	assert.Error(t, err)
}
