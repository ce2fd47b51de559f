package vectordb

import (
	"fmt"

	"github.com/iasik/hierarchical-encoder/internal/config"
)

// NewProvider creates a vector database provider based on configuration.
func NewProvider(cfg config.VectorDBConfig) (Provider, error) {
	providerCfg := Config{
		Provider:       cfg.Provider,
		Host:           cfg.Host,
		Port:           cfg.Port,
		APIKey:         cfg.GetAPIKey(),
		CollectionName: cfg.CollectionName,
		TimeoutSeconds: int(cfg.GetTimeout().Seconds()),
	}

	switch cfg.Provider {
	case "qdrant":
		return NewQdrantClient(providerCfg)

	default:
		return nil, fmt.Errorf("unknown vectordb provider: %s (supported: qdrant)", cfg.Provider)
	}
}
