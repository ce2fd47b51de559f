package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iasik/hierarchical-encoder/internal/tensor"
)

// RemoteEncoder implements Provider against an HTTP inference service that
// runs the base model.
type RemoteEncoder struct {
	client   *http.Client
	endpoint string
	model    string
	apiKey   string
	base     BaseConfig
}

// remoteEncodeRequest is the request body for POST /encode.
type remoteEncodeRequest struct {
	InputIDs      [][]int `json:"input_ids"`
	AttentionMask [][]int `json:"attention_mask"`
	TokenTypeIDs  [][]int `json:"token_type_ids"`
}

// remoteEncodeResponse is the response from POST /encode.
type remoteEncodeResponse struct {
	LastHiddenState [][][]float64 `json:"last_hidden_state"`
	Error           string        `json:"error,omitempty"`
}

// NewRemoteEncoder creates a new remote base encoder.
func NewRemoteEncoder(cfg Config) (*RemoteEncoder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("remote encoder endpoint is required")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &RemoteEncoder{
		client:   &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		base:     cfg.Base,
	}, nil
}

// Config returns the base model configuration.
func (r *RemoteEncoder) Config() BaseConfig { return r.base }

// ModelInfo returns information about the remote model.
func (r *RemoteEncoder) ModelInfo() ModelInfo {
	return ModelInfo{Provider: "remote", Model: r.model, Dimensions: r.base.HiddenSize}
}

// Encode sends the batch to the inference service.
func (r *RemoteEncoder) Encode(ctx context.Context, batch Batch) (*tensor.Floats, error) {
	reqBody := remoteEncodeRequest{
		InputIDs:      rows(batch.InputIDs),
		AttentionMask: rows(batch.AttentionMask),
		TokenTypeIDs:  rows(batch.TokenTypeIDs),
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/encode", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("encode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("encode request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result remoteEncodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("encoder service error: %s", result.Error)
	}

	return r.toTensor(result.LastHiddenState, batch.InputIDs.Dim(0), batch.InputIDs.Dim(1))
}

// toTensor checks the returned states are (n, tokens, hidden) and packs
// them row-major.
func (r *RemoteEncoder) toTensor(states [][][]float64, n, tokens int) (*tensor.Floats, error) {
	hidden := r.base.HiddenSize
	if len(states) != n {
		return nil, &tensor.ShapeError{Op: "remote encode", From: []int{len(states)}, To: []int{n, tokens, hidden}}
	}

	out := tensor.Zeros[float64](n, tokens, hidden)
	data := out.Data()
	for i, seq := range states {
		if len(seq) != tokens {
			return nil, &tensor.ShapeError{Op: "remote encode", From: []int{n, len(seq)}, To: []int{n, tokens, hidden}}
		}
		for t, vec := range seq {
			if len(vec) != hidden {
				return nil, &tensor.ShapeError{Op: "remote encode", From: []int{n, tokens, len(vec)}, To: []int{n, tokens, hidden}}
			}
			copy(data[(i*tokens+t)*hidden:], vec)
		}
	}
	return out, nil
}

// Health checks that the inference service answers.
func (r *RemoteEncoder) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("encoder service returned status %d", resp.StatusCode)
	}
	return nil
}

// Close releases resources (no-op).
func (r *RemoteEncoder) Close() error {
	return nil
}

func rows(t *tensor.Ints) [][]int {
	if t == nil {
		return nil
	}
	n, width := t.Dim(0), t.Dim(1)
	out := make([][]int, n)
	for i := range out {
		out[i] = t.Data()[i*width : (i+1)*width]
	}
	return out
}
