// Package indexer encodes corpora of pre-tokenized documents with the
// hierarchical encoder and stores the document vectors in the vector
// database. Runs are incremental: a per-corpus hash cache skips documents
// whose tokens did not change.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iasik/hierarchical-encoder/internal/config"
	"github.com/iasik/hierarchical-encoder/internal/metrics"
	"github.com/iasik/hierarchical-encoder/internal/segmenter"
	"github.com/iasik/hierarchical-encoder/internal/vectordb"
)

// Indexer handles corpus indexing operations.
type Indexer struct {
	cfg         *config.Config
	encoder     *DocumentEncoder
	vectorDB    vectordb.Provider
	metrics     *metrics.Metrics
	logger      *slog.Logger
	workerCount int
}

// NewIndexer creates a new indexer instance.
func NewIndexer(
	cfg *config.Config,
	enc *DocumentEncoder,
	vdb vectordb.Provider,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Indexer {
	return &Indexer{
		cfg:         cfg,
		encoder:     enc,
		vectorDB:    vdb,
		metrics:     m,
		logger:      logger,
		workerCount: 4, // parallel forward passes
	}
}

// IndexResult contains the results of an indexing operation.
type IndexResult struct {
	CorpusID           string
	DocumentsScanned   int
	DocumentsIndexed   int
	DocumentsSkipped   int
	DocumentsDeleted   int
	SegmentsEncoded    int
	TruncatedDocuments []TruncatedDocument
	Duration           time.Duration
	Errors             []error
}

// TruncatedDocument is a document that did not fit in max_segments
// segments.
type TruncatedDocument struct {
	DocumentID    string `json:"document_id"`
	TokenCount    int    `json:"token_count"`
	DroppedTokens int    `json:"dropped_tokens"`
	Capacity      int    `json:"capacity"`
}

// Fingerprint identifies the model settings vectors are produced with.
// Changing any of them invalidates previously stored vectors.
func Fingerprint(cfg *config.Config) string {
	return fmt.Sprintf("%s|%s|%dx%d|seed=%d",
		cfg.BaseEncoder.Model,
		cfg.Model.SegmentEncoder,
		cfg.Model.MaxSegments,
		cfg.Model.MaxSegmentLength,
		cfg.Model.Seed)
}

// IndexCorpus indexes a single corpus.
func (idx *Indexer) IndexCorpus(ctx context.Context, corpusCfg *config.CorpusConfig, fullIndex bool) (*IndexResult, error) {
	startTime := time.Now()
	corpusID := corpusCfg.CorpusID
	result := &IndexResult{
		CorpusID: corpusID,
		Errors:   make([]error, 0),
	}

	if err := corpusCfg.CheckModel(idx.cfg.Model); err != nil {
		return nil, err
	}

	cache, err := NewCache(idx.cfg.Cache.Dir, corpusID)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	fingerprint := Fingerprint(idx.cfg)
	if !fullIndex && cache.Fingerprint() != "" && cache.Fingerprint() != fingerprint {
		idx.logger.Warn("model settings changed, forcing full reindex",
			"corpus_id", corpusID,
			"previous", cache.Fingerprint(),
			"current", fingerprint)
		fullIndex = true
	}

	idx.logger.Info("starting indexing",
		"corpus_id", corpusID,
		"full_index", fullIndex)

	if fullIndex {
		cache.Clear()
		if err := idx.vectorDB.DeleteByFilter(ctx, vectordb.Filter{CorpusID: corpusID}); err != nil {
			return nil, fmt.Errorf("failed to clear vectors: %w", err)
		}
		idx.logger.Info("cleared existing index", "corpus_id", corpusID)
	}
	cache.SetFingerprint(fingerprint)

	docs, err := ReadCorpus(corpusCfg.GetFullDataPath(idx.cfg.Corpora.DataBasePath))
	if err != nil {
		return nil, err
	}
	docs = filterLanguages(docs, corpusCfg)
	result.DocumentsScanned = len(docs)
	idx.logger.Info("read corpus", "documents", len(docs))

	if !fullIndex {
		idx.removeDeleted(ctx, corpusID, cache, docs, result)
	}

	var toProcess []segmenter.Document
	for _, doc := range docs {
		if !fullIndex && !cache.HasChanged(doc.ID, segmenter.HashTokens(doc.InputIDs)) {
			result.DocumentsSkipped++
			continue
		}
		toProcess = append(toProcess, doc)
	}
	idx.metrics.AddSkipped(corpusID, result.DocumentsSkipped)

	idx.logger.Info("documents to process",
		"total", len(docs),
		"changed", len(toProcess),
		"skipped", result.DocumentsSkipped)

	idx.processDocuments(ctx, corpusCfg, toProcess, cache, result)

	if len(result.TruncatedDocuments) > 0 {
		idx.saveTruncationReport(corpusID, result.TruncatedDocuments)
	}

	if err := cache.Save(corpusID); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("save cache: %w", err))
	}

	result.Duration = time.Since(startTime)
	idx.logger.Info("indexing complete",
		"corpus_id", corpusID,
		"documents_indexed", result.DocumentsIndexed,
		"segments_encoded", result.SegmentsEncoded,
		"truncated", len(result.TruncatedDocuments),
		"errors", len(result.Errors),
		"duration", result.Duration)

	return result, nil
}

func filterLanguages(docs []segmenter.Document, corpusCfg *config.CorpusConfig) []segmenter.Document {
	if len(corpusCfg.Languages) == 0 {
		return docs
	}
	kept := docs[:0:0]
	for _, doc := range docs {
		if corpusCfg.ShouldIncludeLanguage(doc.Language) {
			kept = append(kept, doc)
		}
	}
	return kept
}

// removeDeleted drops vectors of documents that are cached but no longer
// in the corpus.
func (idx *Indexer) removeDeleted(ctx context.Context, corpusID string, cache *Cache, docs []segmenter.Document, result *IndexResult) {
	current := make(map[string]bool, len(docs))
	for _, doc := range docs {
		current[doc.ID] = true
	}

	var stale []string
	for _, id := range cache.GetAllDocuments() {
		if !current[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return
	}

	pointIDs := make([]string, len(stale))
	for i, id := range stale {
		pointIDs[i] = vectordb.PointID(corpusID, id)
	}
	if err := idx.vectorDB.Delete(ctx, pointIDs); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("delete stale documents: %w", err))
		return
	}
	for _, id := range stale {
		cache.Delete(id)
	}
	result.DocumentsDeleted = len(stale)
	idx.metrics.AddDeleted(corpusID, len(stale))
	idx.logger.Info("deleted stale documents", "count", len(stale))
}

// ProgressStats tracks processing progress and timing.
type ProgressStats struct {
	mu         sync.Mutex
	total      int
	processed  int
	startTime  time.Time
	batchTimes []time.Duration
}

// Update records a completed batch of n documents.
func (p *ProgressStats) Update(n int, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed += n
	p.batchTimes = append(p.batchTimes, d)
}

// GetStats returns processed and total document counts and an ETA.
func (p *ProgressStats) GetStats() (processed, total int, eta time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.processed > 0 {
		perDoc := time.Since(p.startTime) / time.Duration(p.processed)
		eta = perDoc * time.Duration(p.total-p.processed)
	}
	return p.processed, p.total, eta
}

type batchResult struct {
	encoded []EncodedDocument
	err     error
}

// processDocuments encodes and upserts documents in parallel batches.
func (idx *Indexer) processDocuments(
	ctx context.Context,
	corpusCfg *config.CorpusConfig,
	docs []segmenter.Document,
	cache *Cache,
	result *IndexResult,
) {
	if len(docs) == 0 {
		return
	}

	batchSize := idx.encoder.BatchSize()
	batches := make(chan []segmenter.Document, (len(docs)+batchSize-1)/batchSize)
	for start := 0; start < len(docs); start += batchSize {
		batches <- docs[start:min(start+batchSize, len(docs))]
	}
	close(batches)

	stats := &ProgressStats{total: len(docs), startTime: time.Now()}

	// Progress reporter
	progressDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(3 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-progressDone:
				return
			case <-ticker.C:
				processed, total, eta := stats.GetStats()
				idx.logger.Info("indexing progress",
					"processed", processed,
					"total", total,
					"eta", eta.Round(time.Second))
			}
		}
	}()
	defer close(progressDone)

	results := make(chan batchResult, cap(batches))
	var wg sync.WaitGroup
	for i := 0; i < idx.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batches {
				if ctx.Err() != nil {
					results <- batchResult{err: ctx.Err()}
					return
				}
				batchStart := time.Now()
				encoded, err := idx.encodeAndStore(ctx, corpusCfg, batch)
				stats.Update(len(batch), time.Since(batchStart))
				if err != nil {
					err = fmt.Errorf("batch starting at %s: %w", batch[0].ID, err)
				}
				results <- batchResult{encoded: encoded, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	capacity := idx.encoder.Segmenter().Capacity()
	indexedAt := time.Now().UTC()
	for res := range results {
		if res.err != nil {
			result.Errors = append(result.Errors, res.err)
			continue
		}
		for _, enc := range res.encoded {
			seg := enc.Segmented
			result.DocumentsIndexed++
			result.SegmentsEncoded += seg.Segments
			if seg.Truncated {
				result.TruncatedDocuments = append(result.TruncatedDocuments, TruncatedDocument{
					DocumentID:    enc.Document.ID,
					TokenCount:    seg.TokenCount,
					DroppedTokens: seg.DroppedTokens,
					Capacity:      capacity,
				})
			}
			cache.Set(enc.Document.ID, CacheEntry{
				ContentHash: seg.ContentHash,
				IndexedAt:   indexedAt,
				PointID:     vectordb.PointID(corpusCfg.CorpusID, enc.Document.ID),
				Segments:    seg.Segments,
				Truncated:   seg.Truncated,
			})
		}
	}

	idx.metrics.AddIndexed(corpusCfg.CorpusID, result.DocumentsIndexed)
	idx.metrics.AddTruncated(corpusCfg.CorpusID, len(result.TruncatedDocuments))
}

// encodeAndStore runs one batch through the encoder and upserts it.
func (idx *Indexer) encodeAndStore(ctx context.Context, corpusCfg *config.CorpusConfig, batch []segmenter.Document) ([]EncodedDocument, error) {
	encoded, err := idx.encoder.Encode(ctx, batch)
	if err != nil {
		return nil, err
	}

	indexedAt := time.Now().UTC().Format(time.RFC3339)
	points := make([]vectordb.Point, len(encoded))
	for i, enc := range encoded {
		points[i] = vectordb.Point{
			ID:     vectordb.PointID(corpusCfg.CorpusID, enc.Document.ID),
			Vector: enc.Vector,
			Payload: vectordb.Payload{
				CorpusID:    corpusCfg.CorpusID,
				DocumentID:  enc.Document.ID,
				Title:       enc.Document.Title,
				Language:    enc.Document.Language,
				Segments:    enc.Segmented.Segments,
				TokenCount:  enc.Segmented.TokenCount,
				Truncated:   enc.Segmented.Truncated,
				ContentHash: enc.Segmented.ContentHash,
				IndexedAt:   indexedAt,
			},
		}
	}

	if err := idx.vectorDB.Upsert(ctx, points); err != nil {
		return nil, fmt.Errorf("upsert: %w", err)
	}
	return encoded, nil
}

// EnsureCollection ensures the vector DB collection exists.
func (idx *Indexer) EnsureCollection(ctx context.Context) error {
	return idx.vectorDB.EnsureCollection(ctx, idx.encoder.Dimensions())
}

// saveTruncationReport writes truncated documents to a JSON file for
// review.
func (idx *Indexer) saveTruncationReport(corpusID string, docs []TruncatedDocument) {
	reportDir := filepath.Join(idx.cfg.Cache.Dir, "reports")
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		idx.logger.Error("failed to create reports directory", "error", err)
		return
	}

	reportFile := filepath.Join(reportDir, fmt.Sprintf("%s-truncated.json", corpusID))

	report := struct {
		CorpusID         string              `json:"corpus_id"`
		GeneratedAt      string              `json:"generated_at"`
		TotalCount       int                 `json:"total_count"`
		MaxSegments      int                 `json:"max_segments"`
		MaxSegmentLength int                 `json:"max_segment_length"`
		Documents        []TruncatedDocument `json:"documents"`
	}{
		CorpusID:         corpusID,
		GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
		TotalCount:       len(docs),
		MaxSegments:      idx.cfg.Model.MaxSegments,
		MaxSegmentLength: idx.cfg.Model.MaxSegmentLength,
		Documents:        docs,
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		idx.logger.Error("failed to marshal truncation report", "error", err)
		return
	}

	if err := os.WriteFile(reportFile, data, 0644); err != nil {
		idx.logger.Error("failed to write truncation report", "error", err)
		return
	}

	idx.logger.Warn("truncated documents detected",
		"count", len(docs),
		"report", reportFile)
}

// IndexAllCorpora indexes all configured corpora.
func (idx *Indexer) IndexAllCorpora(ctx context.Context, fullIndex bool) (map[string]*IndexResult, error) {
	corpora, err := config.LoadAllCorpora(idx.cfg.Corpora.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpora: %w", err)
	}

	results := make(map[string]*IndexResult)

	for corpusID, corpusCfg := range corpora {
		result, err := idx.IndexCorpus(ctx, corpusCfg, fullIndex)
		if err != nil {
			idx.logger.Error("failed to index corpus",
				"corpus_id", corpusID,
				"error", err)
			results[corpusID] = &IndexResult{
				CorpusID: corpusID,
				Errors:   []error{err},
			}
			continue
		}
		results[corpusID] = result
	}

	return results, nil
}
