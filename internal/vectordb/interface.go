// Package vectordb provides a pluggable interface for vector database providers.
// Document vectors produced by the hierarchical encoder are stored and
// searched through it.
package vectordb

import (
	"context"
)

// Provider defines the interface for vector database providers.
type Provider interface {
	// Upsert inserts or updates vectors with metadata.
	Upsert(ctx context.Context, points []Point) error

	// Search performs similarity search with optional filters.
	Search(ctx context.Context, query SearchQuery) ([]SearchResult, error)

	// Delete removes vectors by their IDs.
	Delete(ctx context.Context, ids []string) error

	// DeleteByFilter removes vectors matching a filter.
	DeleteByFilter(ctx context.Context, filter Filter) error

	// EnsureCollection creates the collection if it doesn't exist.
	EnsureCollection(ctx context.Context, dimensions int) error

	// Health checks if the provider is available.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Point represents a document vector with its metadata.
type Point struct {
	// Unique identifier, see PointID
	ID string

	// The document vector
	Vector []float32

	Payload Payload
}

// Payload contains metadata stored with a document vector.
type Payload struct {
	CorpusID   string `json:"corpus_id"`
	DocumentID string `json:"document_id"`
	Title      string `json:"title,omitempty"`
	Language   string `json:"language,omitempty"`

	// Non-padding segments the document occupied
	Segments int `json:"segments"`

	// Token count before truncation
	TokenCount int `json:"token_count"`

	// Whether tokens were dropped to fit the segment grid
	Truncated bool `json:"truncated"`

	// Hash of the token ids for change detection
	ContentHash string `json:"content_hash"`

	// When this document was indexed (RFC 3339)
	IndexedAt string `json:"indexed_at"`
}

// SearchQuery defines parameters for a similarity search.
type SearchQuery struct {
	Vector []float32

	// Number of results to return
	TopK int

	Filter Filter

	// Minimum cosine similarity; 0 disables the threshold
	ScoreThreshold float32
}

// Filter restricts results by payload fields. Empty fields are ignored.
type Filter struct {
	CorpusID string
	Language string
}

// SearchResult represents a single search hit.
type SearchResult struct {
	ID      string
	Score   float32
	Payload Payload
}

// Config holds common configuration for vector database providers.
type Config struct {
	Provider       string
	Host           string
	Port           int
	APIKey         string
	CollectionName string
	TimeoutSeconds int
}
