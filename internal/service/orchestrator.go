package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aibanking/lending-assistant/internal/config"
	"github.com/aibanking/lending-assistant/internal/model"
)

const (
	noAccountPrompt = "To check eligibility I need a 10-digit account number. " +
		"Please include the account number in your question."
	dataUnavailableMessage = "Eligibility data is currently unavailable. " +
		"Please contact your administrator; the data source has been flagged for a reload."
	genericErrorMessage = "Something went wrong while handling your request. " +
		"Please try again, or share the request ID below with support."
)

// Retriever is the slice of the retrieval service the orchestrator needs.
type Retriever interface {
	Search(ctx context.Context, requestID, query string) ([]model.ScoredChunk, error)
}

// Orchestrator runs one user turn end to end: eligibility first, RAG as the
// fallthrough, conversation memory read before and written after. It never
// raises to its caller; every failure becomes a structured error body.
type Orchestrator struct {
	cfg       *config.Config
	intent    *IntentDetector
	evaluator *EligibilityEvaluator
	assembler *PayloadAssembler
	retrieval Retriever
	composer  *PromptComposer
	memory    *ConversationMemory
	summarize *Summarizer
	generator GenerationProvider
	events    *EventLog
}

// NewOrchestrator wires the turn pipeline.
func NewOrchestrator(
	cfg *config.Config,
	intent *IntentDetector,
	evaluator *EligibilityEvaluator,
	assembler *PayloadAssembler,
	retrieval Retriever,
	composer *PromptComposer,
	memory *ConversationMemory,
	summarize *Summarizer,
	generator GenerationProvider,
	events *EventLog,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		intent:    intent,
		evaluator: evaluator,
		assembler: assembler,
		retrieval: retrieval,
		composer:  composer,
		memory:    memory,
		summarize: summarize,
		generator: generator,
		events:    events,
	}
}

// ProcessTurn handles one user message. Exactly one of the returns is
// non-nil.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, *model.ErrorBody) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(o.cfg.Server.TurnTimeout)*time.Second)
	defer cancel()

	turn := o.events.Begin(req.RequestID, "orchestrator", "turn").
		WithTextHash("message_hash", req.Text).
		WithField("conversation_id", req.ConversationID)

	_, userCount, err := o.memory.SaveMessage(ctx, req.ConversationID, model.RoleUser, req.Text, req.RequestID, nil)
	if err != nil {
		turn.WithError(err).Emit()
		return nil, o.errorBody(req.RequestID, err)
	}

	isEligibility, _ := o.intent.Detect(req.Text)

	var resp *model.ChatResponse
	if isEligibility {
		resp, err = o.eligibilityTurn(ctx, req)
	} else {
		resp, err = o.ragTurn(ctx, req)
	}
	if err != nil {
		turn.WithError(err).Emit()
		return nil, o.errorBody(req.RequestID, err)
	}

	_, newCount, err := o.memory.SaveMessage(ctx, req.ConversationID, model.RoleAssistant, resp.Response, req.RequestID, resp.Metadata)
	if err != nil {
		turn.WithError(err).Emit()
		return nil, o.errorBody(req.RequestID, err)
	}

	// Regenerate when this turn's two writes carried the count across a
	// multiple of K.
	if k := o.cfg.Conversation.SummaryWindow; k > 0 && newCount/k > (userCount-1)/k {
		o.summarize.ScheduleRegeneration(req.RequestID, req.ConversationID)
	}

	turn.WithField("is_eligibility_flow", resp.IsEligibilityFlow).Emit()
	return resp, nil
}

// eligibilityTurn runs extract -> validate -> evaluate -> assemble -> format.
func (o *Orchestrator) eligibilityTurn(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
	candidates := o.intent.ExtractAccounts(req.Text)
	valid, invalid := o.intent.ValidateAccounts(candidates)

	// Counts only; raw candidate values never reach a log.
	o.events.Begin(req.RequestID, "intent", "accounts_extracted").
		WithField("valid_count", len(valid)).
		WithField("invalid_count", len(invalid)).
		Emit()

	if len(valid) == 0 {
		return &model.ChatResponse{
			Response:          noAccountPrompt,
			IsEligibilityFlow: true,
			Metadata:          map[string]string{"outcome": "NO_VALID_ACCOUNT"},
		}, nil
	}

	start := time.Now()
	results, err := o.evaluator.EvaluateBatch(req.RequestID, valid)
	if err != nil {
		return nil, err
	}

	payload, err := o.assembler.Assemble(req.RequestID, results, time.Since(start))
	if err != nil {
		return nil, err
	}
	payloadJSON, err := o.assembler.MarshalPayload(payload)
	if err != nil {
		return nil, err
	}

	result, err := o.generateWithRetry(ctx, req.RequestID, o.composer.BuildEligibility(string(payloadJSON)))
	if err != nil {
		return nil, err
	}

	return &model.ChatResponse{
		Response:          result.Text,
		IsEligibilityFlow: true,
		Metadata: map[string]string{
			"latency_ms":        fmt.Sprintf("%.1f", result.LatencyMS),
			"prompt_tokens":     strconv.Itoa(result.Usage.PromptTokens),
			"completion_tokens": strconv.Itoa(result.Usage.CompletionTokens),
			"accounts":          strconv.Itoa(payload.Summary.TotalAccounts),
		},
	}, nil
}

// ragTurn assembles context from memory and retrieval, then generates.
func (o *Orchestrator) ragTurn(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
	summary, err := o.memory.GetSummary(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	history, err := o.memory.GetLastNMessages(ctx, req.ConversationID, o.cfg.Conversation.ContextMessageLimit)
	if err != nil {
		return nil, err
	}

	chunks, err := o.retrieval.Search(ctx, req.RequestID, req.Text)
	if err != nil {
		return nil, err
	}

	messages := o.composer.Build(summary.SummaryText, history, chunks, req.Text)
	result, err := o.generateWithRetry(ctx, req.RequestID, messages)
	if err != nil {
		return nil, err
	}

	sources := make([]model.SourceRef, 0, len(chunks))
	for _, sc := range chunks {
		sources = append(sources, model.SourceRef{
			SourceDoc: sc.Chunk.SourceDoc,
			Page:      sc.Chunk.Page,
			Distance:  sc.Distance,
		})
	}

	return &model.ChatResponse{
		Response:          result.Text,
		Sources:           sources,
		IsEligibilityFlow: false,
		Metadata: map[string]string{
			"latency_ms":        fmt.Sprintf("%.1f", result.LatencyMS),
			"prompt_tokens":     strconv.Itoa(result.Usage.PromptTokens),
			"completion_tokens": strconv.Itoa(result.Usage.CompletionTokens),
			"sources":           strconv.Itoa(len(sources)),
		},
	}, nil
}

// generateWithRetry retries a provider call at most once, and only on the
// retriable provider kinds.
func (o *Orchestrator) generateWithRetry(ctx context.Context, requestID string, messages []model.PromptMessage) (*model.GenerationResult, error) {
	result, err := o.generator.Generate(ctx, messages)
	if err == nil {
		return result, nil
	}

	kind := model.KindOf(err)
	if kind != model.KindProviderTimeout && kind != model.KindProviderUnavailable {
		return nil, err
	}

	log.Warn().
		Str("request_id", requestID).
		Str("kind", string(kind)).
		Msg("Provider call failed, retrying once")
	return o.generator.Generate(ctx, messages)
}

// errorBody maps an internal error to the user-facing structured response.
func (o *Orchestrator) errorBody(requestID string, err error) *model.ErrorBody {
	kind := model.KindOf(err)
	message := genericErrorMessage

	switch kind {
	case model.KindDataUnavailable:
		message = dataUnavailableMessage
	case model.KindNotFound:
		message = "The requested conversation could not be found."
	case model.KindProviderTimeout:
		message = "The assistant took too long to respond. Please try again."
	case model.KindProviderQuota:
		message = "The assistant is over its usage quota right now. Please try again later."
	case "":
		kind = model.KindProviderInvalidResponse
	}

	return &model.ErrorBody{
		Error:     model.ErrorDetail{Kind: kind, Message: message},
		RequestID: requestID,
	}
}
