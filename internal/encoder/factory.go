package encoder

import (
	"fmt"

	"github.com/iasik/hierarchical-encoder/internal/config"
)

// NewProvider creates a base encoder provider from configuration. The base
// model configuration is read from cfg.ConfigPath.
func NewProvider(cfg config.BaseEncoderConfig) (Provider, error) {
	base, err := LoadBaseConfig(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	return NewProviderWithBase(cfg, base)
}

// NewProviderWithBase creates a provider for an already loaded base model
// configuration.
func NewProviderWithBase(cfg config.BaseEncoderConfig, base BaseConfig) (Provider, error) {
	providerCfg := Config{
		Provider:       cfg.Provider,
		Model:          cfg.Model,
		Endpoint:       cfg.Endpoint,
		APIKey:         cfg.GetAPIKey(),
		TimeoutSeconds: int(cfg.GetTimeout().Seconds()),
		Seed:           cfg.Seed,
		Base:           base,
	}

	switch cfg.Provider {
	case "remote":
		return NewRemoteEncoder(providerCfg)

	case "static":
		return NewStaticEncoder(providerCfg)

	default:
		return nil, fmt.Errorf("unknown base encoder provider: %s (supported: remote, static)", cfg.Provider)
	}
}
