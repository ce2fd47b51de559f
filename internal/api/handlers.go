package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/iasik/hierarchical-encoder/internal/segmenter"
	"github.com/iasik/hierarchical-encoder/internal/vectordb"
)

// maxEncodeDocuments bounds the documents accepted by one POST /encode.
const maxEncodeDocuments = 256

// EncodeRequest is the request body for POST /encode.
type EncodeRequest struct {
	// Documents are pre-tokenized; ids are base encoder vocabulary ids
	Documents []segmenter.Document `json:"documents"`
}

// EncodeResponse is the response body for POST /encode.
type EncodeResponse struct {
	Documents []EncodedDocument `json:"documents"`

	// Width of every vector
	Dimensions int `json:"dimensions"`

	TookMs int64 `json:"took_ms"`
}

// EncodedDocument is one document vector.
type EncodedDocument struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`

	// Non-padding segments the document occupied
	Segments int `json:"segments"`

	TokenCount    int  `json:"token_count"`
	Truncated     bool `json:"truncated,omitempty"`
	DroppedTokens int  `json:"dropped_tokens,omitempty"`
}

// SearchRequest is the request body for POST /search.
type SearchRequest struct {
	// CorpusID is required - specifies which corpus to search
	CorpusID string `json:"corpus_id"`

	// InputIDs is the pre-tokenized query document
	InputIDs []int `json:"input_ids"`

	// Language optionally restricts results
	Language string `json:"language,omitempty"`

	// TopK is the number of results to return (default: 5, max: 20)
	TopK int `json:"top_k,omitempty"`

	// ScoreThreshold drops results below this cosine similarity
	ScoreThreshold float32 `json:"score_threshold,omitempty"`
}

// SearchResponse is the response body for POST /search.
type SearchResponse struct {
	Results []SearchResult `json:"results"`

	QueryTruncated bool  `json:"query_truncated,omitempty"`
	QueryTimeMs    int64 `json:"query_time_ms"`
}

// SearchResult is a single search hit.
type SearchResult struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title,omitempty"`
	CorpusID   string  `json:"corpus_id"`
	Language   string  `json:"language,omitempty"`
	Segments   int     `json:"segments"`
	Truncated  bool    `json:"truncated,omitempty"`
	Score      float32 `json:"score"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Model      ModelResponse     `json:"model"`
	Version    string            `json:"version"`
}

// ModelResponse describes the loaded encoder.
type ModelResponse struct {
	BaseProvider     string `json:"base_provider"`
	BaseModel        string `json:"base_model"`
	SegmentEncoder   string `json:"segment_encoder"`
	MaxSegments      int    `json:"max_segments"`
	MaxSegmentLength int    `json:"max_segment_length"`
	Dimensions       int    `json:"dimensions"`
}

// handleEncode handles POST /encode requests.
func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req EncodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "documents is required")
		return
	}
	if len(req.Documents) > maxEncodeDocuments {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d documents per request", maxEncodeDocuments))
		return
	}

	docEncoder, _, _ := s.getProviders()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Get().BaseEncoder.GetTimeout())
	defer cancel()

	encoded, err := docEncoder.Encode(ctx, req.Documents)
	if err != nil {
		s.logger.Error("encoding failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to encode documents")
		return
	}

	docs := make([]EncodedDocument, len(encoded))
	for i, enc := range encoded {
		docs[i] = EncodedDocument{
			ID:            enc.Document.ID,
			Vector:        enc.Vector,
			Segments:      enc.Segmented.Segments,
			TokenCount:    enc.Segmented.TokenCount,
			Truncated:     enc.Segmented.Truncated,
			DroppedTokens: enc.Segmented.DroppedTokens,
		}
	}

	writeJSON(w, http.StatusOK, EncodeResponse{
		Documents:  docs,
		Dimensions: docEncoder.Dimensions(),
		TookMs:     time.Since(startTime).Milliseconds(),
	})
}

// handleSearch handles POST /search requests.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.CorpusID == "" {
		writeError(w, http.StatusBadRequest, "corpus_id is required")
		return
	}
	if len(req.InputIDs) == 0 {
		writeError(w, http.StatusBadRequest, "input_ids is required")
		return
	}

	if req.TopK <= 0 {
		req.TopK = 5
	}
	if req.TopK > 20 {
		req.TopK = 20
	}

	docEncoder, _, vdb := s.getProviders()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Get().BaseEncoder.GetTimeout())
	defer cancel()

	encoded, err := docEncoder.Encode(ctx, []segmenter.Document{{ID: "query", InputIDs: req.InputIDs}})
	if err != nil {
		s.logger.Error("query encoding failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process query")
		return
	}
	query := encoded[0]

	searchResults, err := vdb.Search(ctx, vectordb.SearchQuery{
		Vector: query.Vector,
		TopK:   req.TopK,
		Filter: vectordb.Filter{
			CorpusID: req.CorpusID,
			Language: req.Language,
		},
		ScoreThreshold: req.ScoreThreshold,
	})
	if err != nil {
		s.logger.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	results := make([]SearchResult, len(searchResults))
	for i, sr := range searchResults {
		results[i] = SearchResult{
			DocumentID: sr.Payload.DocumentID,
			Title:      sr.Payload.Title,
			CorpusID:   sr.Payload.CorpusID,
			Language:   sr.Payload.Language,
			Segments:   sr.Payload.Segments,
			Truncated:  sr.Payload.Truncated,
			Score:      sr.Score,
		}
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Results:        results,
		QueryTruncated: query.Segmented.Truncated,
		QueryTimeMs:    time.Since(startTime).Milliseconds(),
	})
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	docEncoder, base, vdb := s.getProviders()

	components := make(map[string]string)
	status := "healthy"

	if err := base.Health(ctx); err != nil {
		components["base_encoder"] = "error: " + err.Error()
		status = "degraded"
	} else {
		components["base_encoder"] = "ok"
	}

	if err := vdb.Health(ctx); err != nil {
		components["vectordb"] = "error: " + err.Error()
		status = "degraded"
	} else {
		components["vectordb"] = "ok"
	}

	cfg := s.cfg.Get()
	info := base.ModelInfo()
	response := HealthResponse{
		Status:     status,
		Components: components,
		Model: ModelResponse{
			BaseProvider:     info.Provider,
			BaseModel:        info.Model,
			SegmentEncoder:   cfg.Model.SegmentEncoder,
			MaxSegments:      cfg.Model.MaxSegments,
			MaxSegmentLength: cfg.Model.MaxSegmentLength,
			Dimensions:       docEncoder.Dimensions(),
		},
		Version: s.version,
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, response)
}

// handleRoot handles GET / requests.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	endpoints := []string{"POST /encode", "POST /search", "GET /health"}
	if s.metrics != nil {
		endpoints = append(endpoints, "GET /metrics")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      "hierarchical-encoder",
		"version":   s.version,
		"endpoints": endpoints,
	})
}
