// Package container wires the encoder stack from configuration.
package container

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iasik/hierarchical-encoder/internal/config"
	"github.com/iasik/hierarchical-encoder/internal/encoder"
	"github.com/iasik/hierarchical-encoder/internal/hierarchical"
	"github.com/iasik/hierarchical-encoder/internal/indexer"
	"github.com/iasik/hierarchical-encoder/internal/metrics"
	"github.com/iasik/hierarchical-encoder/internal/segmenter"
	"github.com/iasik/hierarchical-encoder/internal/vectordb"
)

// Container holds the long-lived components shared by the commands.
type Container struct {
	Config    *config.Config
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Base      encoder.Provider
	Encoder   *hierarchical.Encoder
	Documents *indexer.DocumentEncoder

	// nil until ConnectVectorDB succeeds
	VectorDB vectordb.Provider
}

// New builds the base encoder, the hierarchical encoder and the segmenter.
// The vector database is connected separately with ConnectVectorDB.
func New(cfg *config.Config, logger *slog.Logger) (*Container, error) {
	base, err := encoder.NewProvider(cfg.BaseEncoder)
	if err != nil {
		return nil, fmt.Errorf("create base encoder: %w", err)
	}

	c, err := NewWithProvider(cfg, logger, base)
	if err != nil {
		base.Close()
		return nil, err
	}
	return c, nil
}

// NewWithProvider is New with an existing base encoder.
func NewWithProvider(cfg *config.Config, logger *slog.Logger, base encoder.Provider) (*Container, error) {
	kind, err := hierarchical.ParseKind(cfg.Model.SegmentEncoder)
	if err != nil {
		return nil, err
	}

	enc, err := hierarchical.New(base, hierarchical.Options{
		MaxSegments:      cfg.Model.MaxSegments,
		MaxSegmentLength: cfg.Model.MaxSegmentLength,
		Kind:             kind,
		Seed:             cfg.Model.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("create hierarchical encoder: %w", err)
	}

	seg, err := segmenter.New(segmenter.Config{
		MaxSegments:      cfg.Model.MaxSegments,
		MaxSegmentLength: cfg.Model.MaxSegmentLength,
		ClsID:            cfg.Segmenting.ClsID,
		SepID:            cfg.Segmenting.SepID,
		PadID:            cfg.Segmenting.PadID,
	})
	if err != nil {
		return nil, fmt.Errorf("create segmenter: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}

	docs, err := indexer.NewDocumentEncoder(enc, seg, m, cfg.Model.BatchSize)
	if err != nil {
		return nil, err
	}

	info := base.ModelInfo()
	logger.Info("encoder ready",
		"base_provider", info.Provider,
		"base_model", info.Model,
		"model_type", base.Config().ModelType,
		"segment_encoder", kind,
		"max_segments", cfg.Model.MaxSegments,
		"max_segment_length", cfg.Model.MaxSegmentLength,
		"dimensions", enc.HiddenSize())

	return &Container{
		Config:    cfg,
		Logger:    logger,
		Metrics:   m,
		Base:      base,
		Encoder:   enc,
		Documents: docs,
	}, nil
}

// WaitForBase checks the base encoder, retrying once a second up to
// attempts times.
func (c *Container) WaitForBase(ctx context.Context, attempts int) error {
	c.Logger.Info("waiting for base encoder...", "endpoint", c.Config.BaseEncoder.Endpoint)
	if err := waitHealthy(ctx, attempts, c.Base.Health); err != nil {
		return fmt.Errorf("base encoder health check failed: %w", err)
	}
	return nil
}

// ConnectVectorDB creates the vector database client and checks it is
// reachable, retrying once a second up to attempts times.
func (c *Container) ConnectVectorDB(ctx context.Context, attempts int) error {
	vdb, err := vectordb.NewProvider(c.Config.VectorDB)
	if err != nil {
		return fmt.Errorf("create vectordb: %w", err)
	}
	if err := waitHealthy(ctx, attempts, vdb.Health); err != nil {
		vdb.Close()
		return fmt.Errorf("vectordb health check failed: %w", err)
	}

	c.Logger.Info("vectordb connected",
		"provider", c.Config.VectorDB.Provider,
		"collection", c.Config.VectorDB.CollectionName)
	c.VectorDB = vdb
	return nil
}

func waitHealthy(ctx context.Context, attempts int, check func(context.Context) error) error {
	var err error
	for i := 0; i < max(attempts, 1); i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
		if err = check(ctx); err == nil {
			return nil
		}
	}
	return err
}

// Indexer returns an indexer over the container's components.
// ConnectVectorDB must have succeeded.
func (c *Container) Indexer() *indexer.Indexer {
	return indexer.NewIndexer(c.Config, c.Documents, c.VectorDB, c.Metrics, c.Logger)
}

// Close releases the base encoder and the vector database client.
func (c *Container) Close() {
	if err := c.Base.Close(); err != nil {
		c.Logger.Warn("base encoder close error", "error", err)
	}
	if c.VectorDB != nil {
		if err := c.VectorDB.Close(); err != nil {
			c.Logger.Warn("vectordb close error", "error", err)
		}
	}
}
