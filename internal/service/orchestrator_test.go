package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibanking/lending-assistant/internal/config"
	"github.com/aibanking/lending-assistant/internal/model"
)

type orchestratorHarness struct {
	orchestrator *Orchestrator
	memory       *ConversationMemory
	generator    *fakeGenerator
	retriever    *fakeRetriever
	conv         *model.Conversation
}

func newOrchestratorHarness(t *testing.T) *orchestratorHarness {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.TurnTimeout = 30
	cfg.Conversation = config.ConversationConfig{
		MaxConversations:    20,
		WarningThreshold:    15,
		SummaryWindow:       50,
		ContextMessageLimit: 5,
	}
	cfg.Retrieval = config.RetrievalConfig{TopK: 5, MaxContextChars: 12000, PromptVersion: "v1"}

	memory := openMemory(t)
	generator := &fakeGenerator{response: "generated answer"}
	retriever := &fakeRetriever{chunks: []model.ScoredChunk{
		{Chunk: model.VectorChunk{
			ChunkID:           "c1",
			SourceDoc:         "lending-policy.pdf",
			Page:              2,
			Content:           "KYC documents: ID and proof of address.",
			EmbeddingSpaceTag: "ollama:nomic-embed-text:dim=768",
		}, Distance: 0.12},
	}}

	events := NewEventLog()
	evaluator := NewEligibilityEvaluator(loadedRegistry(t), events)
	orchestrator := NewOrchestrator(
		cfg,
		NewIntentDetector(),
		evaluator,
		NewPayloadAssembler(),
		retriever,
		NewPromptComposer(&cfg.Retrieval),
		memory,
		NewSummarizer(memory, generator, events),
		generator,
		events,
	)

	conv, err := memory.CreateConversation(context.Background(), "staff-1", "thread")
	require.NoError(t, err)

	return &orchestratorHarness{
		orchestrator: orchestrator,
		memory:       memory,
		generator:    generator,
		retriever:    retriever,
		conv:         conv,
	}
}

func (h *orchestratorHarness) turn(t *testing.T, text string) (*model.ChatResponse, *model.ErrorBody) {
	t.Helper()
	return h.orchestrator.ProcessTurn(context.Background(), &model.ChatRequest{
		UserID:         "staff-1",
		ConversationID: h.conv.ID,
		Text:           text,
		RequestID:      "req-test",
	})
}

func TestEligibilityFlowEndToEnd(t *testing.T) {
	h := newOrchestratorHarness(t)

	resp, errBody := h.turn(t, "Is account 1234567890 eligible?")
	require.Nil(t, errBody)
	require.NotNil(t, resp)

	assert.True(t, resp.IsEligibilityFlow)
	assert.Equal(t, "generated answer", resp.Response)

	// The generator received the frozen formatter prompt plus the payload.
	require.Equal(t, 1, h.generator.calls)
	prompt := h.generator.prompts[0]
	require.Len(t, prompt, 2)
	assert.Contains(t, prompt[0].Content, "NEXT ACCOUNT")

	var payload model.EligibilityPayload
	require.NoError(t, json.Unmarshal([]byte(prompt[1].Content), &payload))
	require.Len(t, payload.Accounts, 1)
	assert.Equal(t, model.StatusEligible, payload.Accounts[0].Status)
	assert.Equal(t, 1, payload.Summary.EligibleCount)

	// Both turn messages were persisted.
	conv, err := h.memory.GetConversation(context.Background(), h.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.MessageCount)
}

func TestEligibilityFlowNoValidAccount(t *testing.T) {
	h := newOrchestratorHarness(t)

	resp, errBody := h.turn(t, "Why is this customer not eligible?")
	require.Nil(t, errBody)
	require.NotNil(t, resp)

	assert.True(t, resp.IsEligibilityFlow)
	assert.Contains(t, resp.Response, "10-digit account number")
	assert.Equal(t, 0, h.generator.calls, "no generation without a valid account")
	assert.Equal(t, "NO_VALID_ACCOUNT", resp.Metadata["outcome"])
}

func TestRAGFlowEndToEnd(t *testing.T) {
	h := newOrchestratorHarness(t)

	resp, errBody := h.turn(t, "What documents do I need for digital lending?")
	require.Nil(t, errBody)
	require.NotNil(t, resp)

	assert.False(t, resp.IsEligibilityFlow)
	assert.Equal(t, "generated answer", resp.Response)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "lending-policy.pdf", resp.Sources[0].SourceDoc)

	// The composed prompt carries the retrieved context and the question.
	prompt := h.generator.prompts[0]
	assert.Contains(t, prompt[1].Content, "KYC documents")
	assert.Contains(t, prompt[1].Content, "QUESTION: What documents do I need for digital lending?")
}

func TestRAGFlowUsesSummaryAndHistory(t *testing.T) {
	h := newOrchestratorHarness(t)
	ctx := context.Background()

	require.NoError(t, h.memory.UpsertSummary(ctx, h.conv.ID, "earlier talk about tariffs"))
	_, _, err := h.memory.SaveMessage(ctx, h.conv.ID, model.RoleUser, "previous question", "req-0", nil)
	require.NoError(t, err)

	resp, errBody := h.turn(t, "And the interest rates?")
	require.Nil(t, errBody)
	require.NotNil(t, resp)

	prompt := h.generator.prompts[0]
	assert.Contains(t, prompt[1].Content, "earlier talk about tariffs")
	assert.Contains(t, prompt[1].Content, "previous question")
}

func TestRetrievalFailureBecomesErrorBody(t *testing.T) {
	h := newOrchestratorHarness(t)
	h.retriever.err = model.NewAppError(model.KindEmbeddingSpaceMismatch, "tag mismatch")

	resp, errBody := h.turn(t, "What documents do I need?")
	assert.Nil(t, resp)
	require.NotNil(t, errBody)
	assert.Equal(t, model.KindEmbeddingSpaceMismatch, errBody.Error.Kind)
	assert.Equal(t, "req-test", errBody.RequestID)

	// The user message was persisted before the failure.
	conv, err := h.memory.GetConversation(context.Background(), h.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.MessageCount)
}

func TestUnknownConversationBecomesErrorBody(t *testing.T) {
	h := newOrchestratorHarness(t)

	resp, errBody := h.orchestrator.ProcessTurn(context.Background(), &model.ChatRequest{
		UserID:         "staff-1",
		ConversationID: "conv_missing",
		Text:           "hello",
		RequestID:      "req-test",
	})
	assert.Nil(t, resp)
	require.NotNil(t, errBody)
	assert.Equal(t, model.KindNotFound, errBody.Error.Kind)
}

func TestProviderRetriesOnceOnTimeout(t *testing.T) {
	h := newOrchestratorHarness(t)
	h.generator.err = model.NewAppError(model.KindProviderTimeout, "slow upstream")

	resp, errBody := h.turn(t, "What documents do I need?")
	assert.Nil(t, resp)
	require.NotNil(t, errBody)
	assert.Equal(t, model.KindProviderTimeout, errBody.Error.Kind)
	assert.Equal(t, 2, h.generator.calls, "one retry on timeout")
}

func TestProviderQuotaDoesNotRetry(t *testing.T) {
	h := newOrchestratorHarness(t)
	h.generator.err = model.NewAppError(model.KindProviderQuota, "over quota")

	_, errBody := h.turn(t, "What documents do I need?")
	require.NotNil(t, errBody)
	assert.Equal(t, model.KindProviderQuota, errBody.Error.Kind)
	assert.Equal(t, 1, h.generator.calls)
}

func TestSummaryRegenerationScheduled(t *testing.T) {
	h := newOrchestratorHarness(t)
	h.orchestrator.cfg.Conversation.SummaryWindow = 2

	resp, errBody := h.turn(t, "What documents do I need?")
	require.Nil(t, errBody)
	require.NotNil(t, resp)

	// The turn writes messages 1 and 2, crossing the window; regeneration is
	// fire-and-forget, so poll for the summary to land.
	assert.Eventually(t, func() bool {
		summary, err := h.memory.GetSummary(context.Background(), h.conv.ID)
		return err == nil && summary.Version > 0
	}, 2*time.Second, 20*time.Millisecond)
}
