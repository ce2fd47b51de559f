package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, "remote", cfg.BaseEncoder.Provider)
	assert.Equal(t, "transformer", cfg.Model.SegmentEncoder)
	assert.Equal(t, 64, cfg.Model.MaxSegments)
	assert.Equal(t, 128, cfg.Model.MaxSegmentLength)
	assert.Equal(t, 101, cfg.Segmenting.ClsID)
	assert.Equal(t, 102, cfg.Segmenting.SepID)
	assert.Equal(t, 0, cfg.Segmenting.PadID)
	assert.Equal(t, 6334, cfg.VectorDB.Port)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 60*time.Second, cfg.BaseEncoder.GetTimeout())
	assert.Equal(t, 10*time.Second, cfg.Server.GetShutdownTimeout())
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`
base_encoder:
  provider: static
  seed: 9
model:
  segment_encoder: lstm
  max_segments: 4
  max_segment_length: 16
segmenting:
  cls_id: 0
  sep_id: 2
  pad_id: 1
vectordb:
  host: localhost
server:
  port: 9090
  read_timeout: bogus
`))
	require.NoError(t, err)

	assert.Equal(t, "static", cfg.BaseEncoder.Provider)
	assert.Equal(t, uint64(9), cfg.BaseEncoder.Seed)
	assert.Equal(t, "lstm", cfg.Model.SegmentEncoder)
	assert.Equal(t, 4, cfg.Model.MaxSegments)
	assert.Equal(t, SegmentingConfig{ClsID: 0, SepID: 2, PadID: 1}, cfg.Segmenting)
	assert.Equal(t, "localhost", cfg.VectorDB.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	// unparsable durations fall back
	assert.Equal(t, 30*time.Second, cfg.Server.GetReadTimeout())
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"provider":       "base_encoder: {provider: onnx}",
		"segment kind":   "model: {segment_encoder: gru}",
		"short segments": "model: {max_segment_length: 2}",
		"vectordb":       "vectordb: {provider: milvus}",
		"port":           "server: {port: 70000}",
		"log format":     "logging: {format: xml}",
		"yaml":           "model: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestManager_ReloadNotifies(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "server: {port: 8081}\n")

	m := NewManager(path)
	require.NoError(t, m.Load())
	assert.Equal(t, 8081, m.Get().Server.Port)

	var seen int
	m.OnChange(func(c *Config) { seen = c.Server.Port })

	writeFile(t, dir, "config.yaml", "server: {port: 8082}\n")
	require.NoError(t, m.Reload())
	assert.Equal(t, 8082, seen)

	// a broken file keeps the previous configuration
	writeFile(t, dir, "config.yaml", "server: {port: 0.5}\n")
	assert.Error(t, m.Reload())
	assert.Equal(t, 8082, m.Get().Server.Port)
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "base_encoder: {api_key_env: TEST_ENCODER_TOKEN}\n")
	envPath := writeFile(t, dir, "test.env", "TEST_ENCODER_TOKEN=s3cret\n")

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("ENV_FILE", envPath)
	t.Setenv("TEST_ENCODER_TOKEN", "")
	require.NoError(t, os.Unsetenv("TEST_ENCODER_TOKEN"))

	m, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, path, m.Path())
	assert.Equal(t, "s3cret", m.Get().BaseEncoder.GetAPIKey())
}

func TestLoadEnvFile_MissingIsFine(t *testing.T) {
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
	assert.NoError(t, LoadEnvFile(""))
}

func TestCorpusConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wiki.yaml", `
corpus_id: wiki-fr
data_path: wiki/fr.jsonl
languages: [fr]
segmenting:
  max_segments: 8
metadata:
  tags: [encyclopedia]
`)
	writeFile(t, dir, "named-differently.yml", `
corpus_id: news
data_path: /abs/news.jsonl
`)
	writeFile(t, dir, "README.md", "ignored")

	corpora, err := LoadAllCorpora(dir)
	require.NoError(t, err)
	require.Len(t, corpora, 2)

	wiki := corpora["wiki-fr"]
	assert.Equal(t, "wiki-fr", wiki.DisplayName)
	assert.Equal(t, "/data/wiki/fr.jsonl", wiki.GetFullDataPath("/data"))
	assert.True(t, wiki.ShouldIncludeLanguage("FR"))
	assert.False(t, wiki.ShouldIncludeLanguage("en"))
	assert.NoError(t, wiki.CheckModel(ModelConfig{MaxSegments: 8, MaxSegmentLength: 32}))
	assert.Error(t, wiki.CheckModel(ModelConfig{MaxSegments: 4, MaxSegmentLength: 32}))

	news, err := GetCorpus(dir, "news")
	require.NoError(t, err)
	assert.Equal(t, "/abs/news.jsonl", news.GetFullDataPath("/data"))
	assert.True(t, news.ShouldIncludeLanguage("anything"))

	_, err = GetCorpus(dir, "missing")
	assert.Error(t, err)
}

func TestCorpusConfig_Validate(t *testing.T) {
	assert.Error(t, (&CorpusConfig{}).Validate())
	assert.Error(t, (&CorpusConfig{CorpusID: "Bad_ID", DataPath: "x"}).Validate())
	assert.Error(t, (&CorpusConfig{CorpusID: "ok"}).Validate())
	assert.NoError(t, (&CorpusConfig{CorpusID: "ok-1", DataPath: "x"}).Validate())
}
