package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/aibanking/lending-assistant/internal/config"
	"github.com/aibanking/lending-assistant/internal/model"
)

// GeminiProvider backs both capability interfaces with Gemini's
// OpenAI-compatible endpoint.
type GeminiProvider struct {
	client         *openai.Client
	model          string
	embeddingModel string
	dimensions     int
	temperature    float64
	maxTokens      int
	timeout        time.Duration
	// thinkingLevel is opaque: it is reported in the generation-result
	// metadata and is not sent in the API request.
	thinkingLevel string
}

// NewGeminiProvider creates a provider against the hosted API.
func NewGeminiProvider(cfg *config.ProviderConfig, temperature float64, maxTokens int) *GeminiProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &GeminiProvider{
		client:         openai.NewClientWithConfig(clientConfig),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		dimensions:     cfg.Dimensions,
		temperature:    temperature,
		maxTokens:      maxTokens,
		timeout:        timeout,
		thinkingLevel:  cfg.ThinkingLevel,
	}
}

// ProviderID identifies the provider in the space registry.
func (g *GeminiProvider) ProviderID() string { return "gemini" }

// EmbeddingSpaceTag declares the space this provider's vectors live in.
func (g *GeminiProvider) EmbeddingSpaceTag() string {
	return SpaceTag("gemini", g.embeddingModel, g.dimensions)
}

// Dimensions is the declared vector dimensionality.
func (g *GeminiProvider) Dimensions() int { return g.dimensions }

// Generate runs a chat completion.
func (g *GeminiProvider) Generate(ctx context.Context, messages []model.PromptMessage) (*model.GenerationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case model.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case model.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    chatMessages,
		Temperature: float32(g.temperature),
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return nil, classifyHostedError(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, model.NewAppError(model.KindProviderInvalidResponse, "gemini returned no choices")
	}

	metadata := map[string]string{"model": g.model, "provider": "gemini"}
	if g.thinkingLevel != "" {
		metadata["thinking_level"] = g.thinkingLevel
	}

	return &model.GenerationResult{
		Text: strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage: model.GenerationUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
		LatencyMS: float64(time.Since(start).Microseconds()) / 1000.0,
		Metadata:  metadata,
	}, nil
}

// EmbedQuery embeds a single query string.
func (g *GeminiProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments embeds a batch of texts.
func (g *GeminiProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(g.embeddingModel),
	})
	if err != nil {
		return nil, classifyHostedError(err, "embeddings")
	}
	if len(resp.Data) != len(texts) {
		return nil, model.NewAppError(model.KindProviderInvalidResponse,
			fmt.Sprintf("gemini returned %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		if len(item.Embedding) != g.dimensions {
			return nil, model.NewAppError(model.KindProviderInvalidResponse,
				fmt.Sprintf("gemini returned a %d-dim vector, expected %d", len(item.Embedding), g.dimensions))
		}
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

// classifyHostedError maps API failures onto the provider error kinds.
func classifyHostedError(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.WrapAppError(model.KindProviderTimeout, op+" timed out", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return model.WrapAppError(model.KindProviderQuota, op+" rejected: quota exceeded", err)
		case apiErr.HTTPStatusCode >= 500:
			return model.WrapAppError(model.KindProviderUnavailable, op+" failed upstream", err)
		default:
			return model.WrapAppError(model.KindProviderInvalidResponse, op+" rejected", err)
		}
	}

	return model.WrapAppError(model.KindProviderUnavailable, op+" failed", err)
}
