package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aibanking/lending-assistant/internal/model"
)

const summarySystemPrompt = `Summarize the following staff-assistant conversation in at most 150 words.
Capture the topics discussed, any account checks performed, and open follow-ups.
Write in the third person; do not include account numbers or customer names.`

// Summarizer regenerates conversation summaries in the background. A
// regeneration never blocks the turn that scheduled it; failures are logged
// and dropped.
type Summarizer struct {
	memory    *ConversationMemory
	generator GenerationProvider
	events    *EventLog
}

// NewSummarizer creates a summarizer.
func NewSummarizer(memory *ConversationMemory, generator GenerationProvider, events *EventLog) *Summarizer {
	return &Summarizer{memory: memory, generator: generator, events: events}
}

// ScheduleRegeneration fires the regeneration on its own goroutine with a
// fresh context, detached from the turn.
func (s *Summarizer) ScheduleRegeneration(requestID, conversationID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.regenerate(ctx, requestID, conversationID); err != nil {
			log.Warn().
				Err(err).
				Str("request_id", requestID).
				Str("conversation_id", conversationID).
				Msg("Summary regeneration failed")
		}
	}()
}

func (s *Summarizer) regenerate(ctx context.Context, requestID, conversationID string) error {
	ev := s.events.Begin(requestID, "summarizer", "summary_regenerated").
		WithField("conversation_id", conversationID)

	messages, err := s.memory.GetAllMessages(ctx, conversationID)
	if err != nil {
		ev.WithError(err).Emit()
		return err
	}
	if len(messages) == 0 {
		ev.Warn().WithField("skipped", true).Emit()
		return nil
	}

	var history strings.Builder
	for _, msg := range messages {
		history.WriteString(fmt.Sprintf("%s: %s\n", strings.ToLower(string(msg.Role)), msg.Content))
	}

	result, err := s.generator.Generate(ctx, []model.PromptMessage{
		{Role: model.RoleSystem, Content: summarySystemPrompt},
		{Role: model.RoleUser, Content: history.String()},
	})
	if err != nil {
		ev.WithError(err).Emit()
		return err
	}

	if err := s.memory.UpsertSummary(ctx, conversationID, result.Text); err != nil {
		ev.WithError(err).Emit()
		return err
	}

	ev.WithField("message_count", len(messages)).Emit()
	return nil
}
