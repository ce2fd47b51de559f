package encoder

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds common configuration for base encoder providers.
type Config struct {
	// Provider name
	Provider string

	// Model name or path
	Model string

	// Inference service URL
	Endpoint string

	// Bearer token (optional)
	APIKey string

	// Request timeout in seconds
	TimeoutSeconds int

	// Seed for generated parameters
	Seed uint64

	// Base model configuration
	Base BaseConfig
}

// LoadBaseConfig reads a Hugging Face style config.json. Unknown keys are
// ignored.
func LoadBaseConfig(path string) (BaseConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BaseConfig{}, fmt.Errorf("failed to read base config: %w", err)
	}

	var cfg BaseConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return BaseConfig{}, fmt.Errorf("failed to parse base config: %w", err)
	}
	applyBaseDefaults(&cfg)

	if cfg.ModelType == "" {
		return BaseConfig{}, fmt.Errorf("base config %s has no model_type", path)
	}
	if cfg.HiddenSize <= 0 {
		return BaseConfig{}, fmt.Errorf("base config %s has no hidden_size", path)
	}
	return cfg, nil
}

// applyBaseDefaults fills the values config.json files commonly omit with
// the BERT defaults.
func applyBaseDefaults(cfg *BaseConfig) {
	if cfg.HiddenAct == "" {
		cfg.HiddenAct = "gelu"
	}
	if cfg.LayerNormEps == 0 {
		cfg.LayerNormEps = 1e-12
	}
	if cfg.IntermediateSize == 0 {
		cfg.IntermediateSize = 4 * cfg.HiddenSize
	}
	if cfg.TypeVocabSize == 0 {
		cfg.TypeVocabSize = 2
	}
}
