// Package config provides configuration loading and management for the
// hierarchical encoder services. It supports hot reload via SIGHUP and gives
// every component (base encoder, model, segmenting, vectordb, server) one
// unified configuration structure.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the global application configuration.
// All fields are loaded from configs/config.yaml.
type Config struct {
	BaseEncoder BaseEncoderConfig `yaml:"base_encoder"`
	Model       ModelConfig       `yaml:"model"`
	Segmenting  SegmentingConfig  `yaml:"segmenting"`
	VectorDB    VectorDBConfig    `yaml:"vectordb"`
	Corpora     CorporaConfig     `yaml:"corpora"`
	Cache       CacheConfig       `yaml:"cache"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// BaseEncoderConfig holds base token encoder settings.
type BaseEncoderConfig struct {
	// Provider name: remote | static
	Provider string `yaml:"provider"`

	// Model name or path, reported in model info
	Model string `yaml:"model"`

	// Inference service URL (remote provider)
	Endpoint string `yaml:"endpoint"`

	// Path to a Hugging Face style config.json
	ConfigPath string `yaml:"config_path"`

	// Request timeout
	Timeout string `yaml:"timeout"`

	// Environment variable name for a bearer token
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Seed for the static provider's embedding tables
	Seed uint64 `yaml:"seed"`
}

// ModelConfig holds hierarchical encoder settings.
type ModelConfig struct {
	// Segment encoder: lstm | transformer
	SegmentEncoder string `yaml:"segment_encoder"`

	// Segments per document
	MaxSegments int `yaml:"max_segments"`

	// Tokens per segment
	MaxSegmentLength int `yaml:"max_segment_length"`

	// Parameter initialisation seed
	Seed uint64 `yaml:"seed"`

	// Documents per forward pass
	BatchSize int `yaml:"batch_size"`
}

// SegmentingConfig holds the special token ids used to frame segments.
type SegmentingConfig struct {
	ClsID int `yaml:"cls_id"`
	SepID int `yaml:"sep_id"`
	PadID int `yaml:"pad_id"`
}

// VectorDBConfig holds vector database settings.
type VectorDBConfig struct {
	// Provider name: qdrant
	Provider string `yaml:"provider"`

	// gRPC host and port
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Collection name for storing document vectors
	CollectionName string `yaml:"collection_name"`

	// Environment variable name for the API key
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Request timeout
	Timeout string `yaml:"timeout"`
}

// CorporaConfig holds corpus discovery settings.
type CorporaConfig struct {
	// Directory containing per-corpus YAML configs
	ConfigDir string `yaml:"config_dir"`

	// Base path where corpus files are mounted
	DataBasePath string `yaml:"data_base_path"`
}

// CacheConfig holds index cache settings.
type CacheConfig struct {
	// Directory for storing cache files
	Dir string `yaml:"dir"`

	// Cache format (currently only "json" is supported)
	Format string `yaml:"format"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int    `yaml:"port"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level: debug | info | warn | error
	Level string `yaml:"level"`

	// Output format: json | text
	Format string `yaml:"format"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Metric name prefix
	Namespace string `yaml:"namespace"`
}

// GetTimeout parses and returns the base encoder timeout.
func (b *BaseEncoderConfig) GetTimeout() time.Duration {
	return parseDuration(b.Timeout, 30*time.Second)
}

// GetAPIKey returns the bearer token from the environment.
func (b *BaseEncoderConfig) GetAPIKey() string {
	if b.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(b.APIKeyEnv)
}

// GetTimeout parses and returns the vectordb timeout.
func (v *VectorDBConfig) GetTimeout() time.Duration {
	return parseDuration(v.Timeout, 30*time.Second)
}

// GetAPIKey returns the vectordb API key from the environment.
func (v *VectorDBConfig) GetAPIKey() string {
	if v.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(v.APIKeyEnv)
}

// GetReadTimeout parses and returns the server read timeout.
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return parseDuration(s.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout parses and returns the server write timeout.
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return parseDuration(s.WriteTimeout, 30*time.Second)
}

// GetShutdownTimeout parses and returns the graceful shutdown timeout.
func (s *ServerConfig) GetShutdownTimeout() time.Duration {
	return parseDuration(s.ShutdownTimeout, 10*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Manager handles configuration loading and hot reload.
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
	onChange   []func(*Config)
}

// NewManager creates a new configuration manager.
func NewManager(configPath string) *Manager {
	return &Manager{
		configPath: configPath,
		onChange:   make([]func(*Config), 0),
	}
}

// Path returns the config file the manager reads.
func (m *Manager) Path() string { return m.configPath }

// Load reads and parses the configuration file.
func (m *Manager) Load() error {
	cfg, err := parseFile(m.configPath)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Reload reloads the configuration and notifies listeners. On failure the
// previous configuration stays in effect.
func (m *Manager) Reload() error {
	if err := m.Load(); err != nil {
		return err
	}

	cfg := m.Get()
	m.mu.RLock()
	listeners := append([]func(*Config){}, m.onChange...)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(cfg)
	}

	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// OnChange registers a callback to be called when configuration changes.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Base encoder defaults
	if cfg.BaseEncoder.Provider == "" {
		cfg.BaseEncoder.Provider = "remote"
	}
	if cfg.BaseEncoder.Model == "" {
		cfg.BaseEncoder.Model = "xlm-roberta-base"
	}
	if cfg.BaseEncoder.Endpoint == "" {
		cfg.BaseEncoder.Endpoint = "http://encoder:8000"
	}
	if cfg.BaseEncoder.ConfigPath == "" {
		cfg.BaseEncoder.ConfigPath = "/models/xlm-roberta-base/config.json"
	}
	if cfg.BaseEncoder.Timeout == "" {
		cfg.BaseEncoder.Timeout = "60s"
	}

	// Model defaults
	if cfg.Model.SegmentEncoder == "" {
		cfg.Model.SegmentEncoder = "transformer"
	}
	if cfg.Model.MaxSegments == 0 {
		cfg.Model.MaxSegments = 64
	}
	if cfg.Model.MaxSegmentLength == 0 {
		cfg.Model.MaxSegmentLength = 128
	}
	if cfg.Model.BatchSize == 0 {
		cfg.Model.BatchSize = 8
	}

	// Segmenting defaults (BERT vocabulary ids)
	if cfg.Segmenting.ClsID == 0 && cfg.Segmenting.SepID == 0 {
		cfg.Segmenting.ClsID = 101
		cfg.Segmenting.SepID = 102
	}

	// VectorDB defaults
	if cfg.VectorDB.Provider == "" {
		cfg.VectorDB.Provider = "qdrant"
	}
	if cfg.VectorDB.Host == "" {
		cfg.VectorDB.Host = "qdrant"
	}
	if cfg.VectorDB.Port == 0 {
		cfg.VectorDB.Port = 6334
	}
	if cfg.VectorDB.CollectionName == "" {
		cfg.VectorDB.CollectionName = "documents"
	}
	if cfg.VectorDB.Timeout == "" {
		cfg.VectorDB.Timeout = "30s"
	}

	// Corpora defaults
	if cfg.Corpora.ConfigDir == "" {
		cfg.Corpora.ConfigDir = "/app/configs/corpora"
	}
	if cfg.Corpora.DataBasePath == "" {
		cfg.Corpora.DataBasePath = "/data"
	}

	// Cache defaults
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "/app/data/index-cache"
	}
	if cfg.Cache.Format == "" {
		cfg.Cache.Format = "json"
	}

	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == "" {
		cfg.Server.ReadTimeout = "30s"
	}
	if cfg.Server.WriteTimeout == "" {
		cfg.Server.WriteTimeout = "60s"
	}
	if cfg.Server.ShutdownTimeout == "" {
		cfg.Server.ShutdownTimeout = "10s"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "hierarchical_encoder"
	}
}

// validate checks the configuration for errors.
func validate(cfg *Config) error {
	validBaseProviders := map[string]bool{
		"remote": true,
		"static": true,
	}
	if !validBaseProviders[cfg.BaseEncoder.Provider] {
		return fmt.Errorf("invalid base encoder provider: %s", cfg.BaseEncoder.Provider)
	}

	switch strings.ToLower(cfg.Model.SegmentEncoder) {
	case "lstm", "recurrent", "transformer", "attention":
	default:
		return fmt.Errorf("invalid segment encoder: %s", cfg.Model.SegmentEncoder)
	}
	if cfg.Model.MaxSegments <= 0 {
		return fmt.Errorf("max_segments must be positive")
	}
	// room for [CLS] and [SEP] plus at least one body token
	if cfg.Model.MaxSegmentLength < 3 {
		return fmt.Errorf("max_segment_length must be at least 3")
	}
	if cfg.Model.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}

	if cfg.VectorDB.Provider != "qdrant" {
		return fmt.Errorf("invalid vectordb provider: %s", cfg.VectorDB.Provider)
	}

	if cfg.Cache.Format != "json" {
		return fmt.Errorf("unsupported cache format: %s", cfg.Cache.Format)
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	return nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the environment. A
// missing file is not an error so that plain environment variables work on
// their own.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}

// LoadFromEnv loads configuration from the path specified in CONFIG_PATH.
// A .env file (ENV_FILE, default ".env") is read first.
func LoadFromEnv() (*Manager, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := LoadEnvFile(envFile); err != nil {
		return nil, err
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	// Make path absolute
	if !filepath.IsAbs(configPath) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		configPath = filepath.Join(wd, configPath)
	}

	manager := NewManager(configPath)
	if err := manager.Load(); err != nil {
		return nil, err
	}

	return manager, nil
}
