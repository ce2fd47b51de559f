package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// CorpusConfig represents a single corpus's configuration.
// Each corpus has its own YAML file in configs/corpora/.
type CorpusConfig struct {
	// Unique corpus identifier (lowercase, hyphenated)
	CorpusID string `yaml:"corpus_id"`

	// Human-readable display name
	DisplayName string `yaml:"display_name"`

	// JSONL file of pre-tokenized documents, relative to data_base_path
	DataPath string `yaml:"data_path"`

	// Languages to include; empty means all
	Languages []string `yaml:"languages,omitempty"`

	// Segmenting overrides
	Segmenting CorpusSegmentingConfig `yaml:"segmenting"`

	// Optional metadata stored with every vector
	Metadata CorpusMetadata `yaml:"metadata"`
}

// CorpusSegmentingConfig holds corpus-specific segmenting settings. They
// must agree with the encoder's model settings; they exist so a corpus can
// declare what it was prepared for and fail fast on a mismatch.
type CorpusSegmentingConfig struct {
	MaxSegments      int `yaml:"max_segments,omitempty"`
	MaxSegmentLength int `yaml:"max_segment_length,omitempty"`
}

// CorpusMetadata holds optional corpus metadata.
type CorpusMetadata struct {
	Team string   `yaml:"team,omitempty"`
	Tags []string `yaml:"tags,omitempty"`
}

// GetFullDataPath returns the absolute path to the corpus file.
func (c *CorpusConfig) GetFullDataPath(basePath string) string {
	if filepath.IsAbs(c.DataPath) {
		return c.DataPath
	}
	return filepath.Join(basePath, c.DataPath)
}

// ShouldIncludeLanguage reports whether documents in lang are indexed.
func (c *CorpusConfig) ShouldIncludeLanguage(lang string) bool {
	if len(c.Languages) == 0 {
		return true
	}
	for _, l := range c.Languages {
		if strings.EqualFold(l, lang) {
			return true
		}
	}
	return false
}

// CheckModel returns an error when the corpus declares segment geometry
// different from the model's.
func (c *CorpusConfig) CheckModel(model ModelConfig) error {
	if n := c.Segmenting.MaxSegments; n > 0 && n != model.MaxSegments {
		return fmt.Errorf("corpus %s expects max_segments %d, model uses %d", c.CorpusID, n, model.MaxSegments)
	}
	if n := c.Segmenting.MaxSegmentLength; n > 0 && n != model.MaxSegmentLength {
		return fmt.Errorf("corpus %s expects max_segment_length %d, model uses %d", c.CorpusID, n, model.MaxSegmentLength)
	}
	return nil
}

// Validate checks the corpus configuration for errors.
func (c *CorpusConfig) Validate() error {
	if c.CorpusID == "" {
		return fmt.Errorf("corpus_id is required")
	}

	// lowercase, alphanumeric, hyphens
	for _, r := range c.CorpusID {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return fmt.Errorf("corpus_id must contain only lowercase letters, numbers, and hyphens")
		}
	}

	if c.DataPath == "" {
		return fmt.Errorf("data_path is required")
	}

	if c.Segmenting.MaxSegments < 0 || c.Segmenting.MaxSegmentLength < 0 {
		return fmt.Errorf("segmenting overrides must not be negative")
	}

	return nil
}

// LoadCorpusConfig loads a single corpus configuration from file.
func LoadCorpusConfig(path string) (*CorpusConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus config: %w", err)
	}

	var cfg CorpusConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse corpus config: %w", err)
	}

	if cfg.DisplayName == "" {
		cfg.DisplayName = cfg.CorpusID
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("corpus config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadAllCorpora loads all corpus configurations from the config directory.
func LoadAllCorpora(configDir string) (map[string]*CorpusConfig, error) {
	corpora := make(map[string]*CorpusConfig)

	entries, err := os.ReadDir(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus config directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		cfg, err := LoadCorpusConfig(filepath.Join(configDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", name, err)
		}

		corpora[cfg.CorpusID] = cfg
	}

	return corpora, nil
}

// GetCorpus loads a specific corpus configuration by ID.
func GetCorpus(configDir, corpusID string) (*CorpusConfig, error) {
	for _, path := range []string{
		filepath.Join(configDir, corpusID+".yaml"),
		filepath.Join(configDir, corpusID+".yml"),
	} {
		if _, err := os.Stat(path); err == nil {
			return LoadCorpusConfig(path)
		}
	}

	// Fallback: search all files for a matching corpus_id
	corpora, err := LoadAllCorpora(configDir)
	if err != nil {
		return nil, err
	}

	if cfg, ok := corpora[corpusID]; ok {
		return cfg, nil
	}

	return nil, fmt.Errorf("corpus not found: %s", corpusID)
}
