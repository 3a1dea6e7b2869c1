package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aibanking/lending-assistant/internal/config"
	"github.com/aibanking/lending-assistant/internal/model"
)

// OllamaProvider backs both capability interfaces with a local Ollama host.
type OllamaProvider struct {
	generateURL    string
	embedURL       string
	httpClient     *http.Client
	model          string
	embeddingModel string
	dimensions     int
	timeout        time.Duration
}

// OllamaGenerateRequest is the non-streaming generate call body.
type OllamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// OllamaGenerateResponse is the completed generate response.
type OllamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
	TotalDuration   int64  `json:"total_duration,omitempty"`
}

// OllamaEmbedRequest is the embeddings call body.
type OllamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// OllamaEmbedResponse is the embeddings response.
type OllamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaProvider creates a provider against a local Ollama host.
func NewOllamaProvider(cfg *config.ProviderConfig) *OllamaProvider {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaProvider{
		generateURL:    baseURL + "/api/generate",
		embedURL:       baseURL + "/api/embed",
		httpClient:     &http.Client{Timeout: timeout},
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		dimensions:     cfg.Dimensions,
		timeout:        timeout,
	}
}

// ProviderID identifies the provider in the space registry.
func (o *OllamaProvider) ProviderID() string { return "ollama" }

// EmbeddingSpaceTag declares the space this provider's vectors live in.
func (o *OllamaProvider) EmbeddingSpaceTag() string {
	return SpaceTag("ollama", o.embeddingModel, o.dimensions)
}

// Dimensions is the declared vector dimensionality.
func (o *OllamaProvider) Dimensions() int { return o.dimensions }

// Generate runs a non-streaming completion.
func (o *OllamaProvider) Generate(ctx context.Context, messages []model.PromptMessage) (*model.GenerationResult, error) {
	system, prompt := flattenMessages(messages)

	requestBody := OllamaGenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		System: system,
		Stream: false,
		Options: map[string]any{
			"temperature": 0.3,
			"num_predict": 2048,
		},
	}

	start := time.Now()
	var resp OllamaGenerateResponse
	if err := o.post(ctx, o.generateURL, requestBody, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Response) == "" {
		return nil, model.NewAppError(model.KindProviderInvalidResponse, "ollama returned an empty completion")
	}

	return &model.GenerationResult{
		Text: strings.TrimSpace(resp.Response),
		Usage: model.GenerationUsage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
		},
		LatencyMS: float64(time.Since(start).Microseconds()) / 1000.0,
		Metadata:  map[string]string{"model": o.model, "provider": "ollama"},
	}, nil
}

// EmbedQuery embeds a single query string.
func (o *OllamaProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments embeds a batch of texts.
func (o *OllamaProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	requestBody := OllamaEmbedRequest{
		Model: o.embeddingModel,
		Input: texts,
	}

	var resp OllamaEmbedResponse
	if err := o.post(ctx, o.embedURL, requestBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, model.NewAppError(model.KindProviderInvalidResponse,
			fmt.Sprintf("ollama returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts)))
	}
	for _, v := range resp.Embeddings {
		if len(v) != o.dimensions {
			return nil, model.NewAppError(model.KindProviderInvalidResponse,
				fmt.Sprintf("ollama returned a %d-dim vector, expected %d", len(v), o.dimensions))
		}
	}
	return resp.Embeddings, nil
}

func (o *OllamaProvider) post(ctx context.Context, url string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return model.WrapAppError(model.KindProviderInvalidResponse, "failed to marshal request body", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return model.WrapAppError(model.KindProviderUnavailable, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return model.WrapAppError(model.KindProviderTimeout, "ollama request timed out", err)
		}
		return model.WrapAppError(model.KindProviderUnavailable, "cannot reach ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		log.Warn().
			Int("status", resp.StatusCode).
			Str("url", url).
			Msg("Ollama API returned an error status")
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return model.NewAppError(model.KindProviderQuota, "ollama rejected the request: quota exceeded")
		case resp.StatusCode >= 500, resp.StatusCode == http.StatusNotFound:
			return model.NewAppError(model.KindProviderUnavailable,
				fmt.Sprintf("ollama returned status %d", resp.StatusCode))
		default:
			return model.NewAppError(model.KindProviderInvalidResponse,
				fmt.Sprintf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes))))
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return model.WrapAppError(model.KindProviderInvalidResponse, "failed to decode ollama response", err)
	}
	return nil
}

// flattenMessages splits a composed message list into the system instruction
// and a single prompt string in the host's Human/Assistant convention.
func flattenMessages(messages []model.PromptMessage) (system, prompt string) {
	var builder strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			system = msg.Content
		case model.RoleAssistant:
			builder.WriteString("Assistant: ")
			builder.WriteString(msg.Content)
			builder.WriteString("\n")
		default:
			builder.WriteString("Human: ")
			builder.WriteString(msg.Content)
			builder.WriteString("\n")
		}
	}
	builder.WriteString("Assistant:")
	return system, builder.String()
}
