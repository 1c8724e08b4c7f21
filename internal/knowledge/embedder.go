package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultEmbeddingURL = "https://api.openai.com/v1/embeddings"

// HTTPEmbedder generates embeddings through an OpenAI-compatible
// /v1/embeddings endpoint. Ollama and most local inference servers expose
// the same contract.
type HTTPEmbedder struct {
	url    string
	apiKey string
	model  string
	hc     *http.Client
}

// EmbedderConfig holds the endpoint settings.
type EmbedderConfig struct {
	// URL of the embeddings endpoint. Empty selects the OpenAI API.
	URL    string
	APIKey string
	Model  string
}

// NewHTTPEmbedder creates an embeddings client.
func NewHTTPEmbedder(cfg EmbedderConfig) *HTTPEmbedder {
	url := cfg.URL
	if url == "" {
		url = defaultEmbeddingURL
	}
	return &HTTPEmbedder{
		url:    url,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		hc:     &http.Client{},
	}
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed generates one vector per input text, in input order.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody, err := json.Marshal(embedRequest{Input: texts, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("knowledge: marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("knowledge: create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge: embed request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("knowledge: read embed response: %w", err)
	}

	var result embedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("knowledge: decode embed response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("knowledge: embedding endpoint: %s: %s", result.Error.Type, result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("knowledge: embedding endpoint returned status %d", resp.StatusCode)
	}

	// Responses may arrive out of order; the index field restores it.
	vecs := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("knowledge: invalid index %d in embed response", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("knowledge: embed response missing vector for input %d", i)
		}
	}
	return vecs, nil
}
