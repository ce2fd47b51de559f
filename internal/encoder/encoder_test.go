package encoder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iasik/hierarchical-encoder/internal/config"
	"github.com/iasik/hierarchical-encoder/internal/tensor"
)

func testBatch(t *testing.T, ids []int, rows, tokens int) Batch {
	t.Helper()
	in, err := tensor.New(ids, rows, tokens)
	require.NoError(t, err)
	mask := tensor.Zeros[int](rows, tokens)
	for i, id := range ids {
		if id != 0 {
			mask.Data()[i] = 1
		}
	}
	return Batch{InputIDs: in, AttentionMask: mask, TokenTypeIDs: tensor.Zeros[int](rows, tokens)}
}

func TestRemoteEncoder_Encode(t *testing.T) {
	var got remoteEncodeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/encode", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		states := make([][][]float64, len(got.InputIDs))
		for i, seq := range got.InputIDs {
			for _, id := range seq {
				states[i] = append(states[i], []float64{float64(id), float64(i)})
			}
		}
		_ = json.NewEncoder(w).Encode(remoteEncodeResponse{LastHiddenState: states})
	}))
	defer srv.Close()

	enc, err := NewRemoteEncoder(Config{Endpoint: srv.URL + "/", APIKey: "tok", Base: BaseConfig{ModelType: "bert", HiddenSize: 2}})
	require.NoError(t, err)

	out, err := enc.Encode(context.Background(), testBatch(t, []int{101, 7, 102, 101, 9, 0}, 2, 3))
	require.NoError(t, err)

	assert.Equal(t, [][]int{{101, 7, 102}, {101, 9, 0}}, got.InputIDs)
	assert.Equal(t, [][]int{{1, 1, 1}, {1, 1, 0}}, got.AttentionMask)
	assert.Equal(t, []int{2, 3, 2}, out.Shape())
	assert.Equal(t, 9.0, out.At(1, 1, 0))
	assert.Equal(t, 1.0, out.At(1, 1, 1))
	assert.Equal(t, ModelInfo{Provider: "remote", Dimensions: 2}, enc.ModelInfo())
}

func TestRemoteEncoder_Errors(t *testing.T) {
	var mode string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch mode {
		case "status":
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		case "service":
			_ = json.NewEncoder(w).Encode(remoteEncodeResponse{Error: "oom"})
		case "width":
			_ = json.NewEncoder(w).Encode(remoteEncodeResponse{LastHiddenState: [][][]float64{{{1}}}})
		case "rows":
			_ = json.NewEncoder(w).Encode(remoteEncodeResponse{LastHiddenState: [][][]float64{}})
		}
	}))
	defer srv.Close()

	enc, err := NewRemoteEncoder(Config{Endpoint: srv.URL, Base: BaseConfig{ModelType: "bert", HiddenSize: 2}})
	require.NoError(t, err)
	batch := testBatch(t, []int{5}, 1, 1)

	for _, m := range []string{"status", "service"} {
		mode = m
		_, err := enc.Encode(context.Background(), batch)
		assert.Error(t, err, m)
	}
	for _, m := range []string{"width", "rows"} {
		mode = m
		_, err := enc.Encode(context.Background(), batch)
		var shapeErr *tensor.ShapeError
		assert.ErrorAs(t, err, &shapeErr, m)
	}

	_, err = NewRemoteEncoder(Config{})
	assert.Error(t, err)
}

func TestRemoteEncoder_Health(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !healthy {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	enc, err := NewRemoteEncoder(Config{Endpoint: srv.URL})
	require.NoError(t, err)
	assert.NoError(t, enc.Health(context.Background()))

	healthy = false
	assert.Error(t, enc.Health(context.Background()))
	assert.NoError(t, enc.Close())
}

func TestStaticEncoder_Encode(t *testing.T) {
	base := BaseConfig{ModelType: "bert", HiddenSize: 4, VocabSize: 50, MaxPositionEmbeddings: 8}
	enc, err := NewStaticEncoder(Config{Seed: 1, Base: base})
	require.NoError(t, err)
	assert.Equal(t, 2, enc.Config().TypeVocabSize)

	out, err := enc.Encode(context.Background(), testBatch(t, []int{1, 2, 0, 1, 2, 3}, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, out.Shape())

	// masked positions are zero, the rest are normalised
	assert.Equal(t, 0.0, out.Sub(0).Sub(2).Sum())
	assert.InDelta(t, 0, out.Sub(1).Sub(2).Sum(), 1e-9)
	assert.NotEqual(t, 0.0, out.At(1, 2, 0))
	// same prefix, same vectors
	assert.Equal(t, out.Sub(0).Sub(0).Data(), out.Sub(1).Sub(0).Data())

	again, err := enc.Encode(context.Background(), testBatch(t, []int{1, 2, 0, 1, 2, 3}, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, out.Data(), again.Data())
}

func TestStaticEncoder_Errors(t *testing.T) {
	_, err := NewStaticEncoder(Config{Base: BaseConfig{HiddenSize: 4}})
	assert.Error(t, err)

	enc, err := NewStaticEncoder(Config{Base: BaseConfig{ModelType: "bert", HiddenSize: 4, VocabSize: 10, MaxPositionEmbeddings: 2}})
	require.NoError(t, err)

	_, err = enc.Encode(context.Background(), testBatch(t, []int{11}, 1, 1))
	assert.Error(t, err)

	_, err = enc.Encode(context.Background(), testBatch(t, []int{1, 2, 3}, 1, 3))
	var shapeErr *tensor.ShapeError
	assert.ErrorAs(t, err, &shapeErr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = enc.Encode(ctx, testBatch(t, []int{1}, 1, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func writeBaseConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadBaseConfig(t *testing.T) {
	path := writeBaseConfig(t, `{
		"architectures": ["XLMRobertaModel"],
		"model_type": "xlm-roberta",
		"hidden_size": 768,
		"num_attention_heads": 12,
		"hidden_dropout_prob": 0.1,
		"layer_norm_eps": 1e-05,
		"vocab_size": 250002,
		"type_vocab_size": 1
	}`)

	cfg, err := LoadBaseConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "xlm-roberta", cfg.ModelType)
	assert.Equal(t, 3072, cfg.IntermediateSize)
	assert.Equal(t, "gelu", cfg.HiddenAct)
	assert.Equal(t, 1e-5, cfg.LayerNormEps)
	assert.Equal(t, 1, cfg.TypeVocabSize)

	_, err = LoadBaseConfig(writeBaseConfig(t, `{"hidden_size": 8}`))
	assert.Error(t, err)
	_, err = LoadBaseConfig(writeBaseConfig(t, `{"model_type": "bert"}`))
	assert.Error(t, err)
	_, err = LoadBaseConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	path := writeBaseConfig(t, `{"model_type": "bert", "hidden_size": 8, "vocab_size": 30}`)

	p, err := NewProvider(config.BaseEncoderConfig{Provider: "static", ConfigPath: path, Model: "tiny"})
	require.NoError(t, err)
	assert.Equal(t, ModelInfo{Provider: "static", Model: "tiny", Dimensions: 8}, p.ModelInfo())

	p, err = NewProvider(config.BaseEncoderConfig{Provider: "remote", ConfigPath: path, Endpoint: "http://localhost:1", Timeout: "5s"})
	require.NoError(t, err)
	assert.IsType(t, &RemoteEncoder{}, p)

	_, err = NewProvider(config.BaseEncoderConfig{Provider: "onnx", ConfigPath: path})
	assert.Error(t, err)

	_, err = NewProvider(config.BaseEncoderConfig{Provider: "static", ConfigPath: "/nonexistent.json"})
	assert.Error(t, err)
}
