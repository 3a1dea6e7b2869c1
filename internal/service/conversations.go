package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/aibanking/lending-assistant/internal/config"
	"github.com/aibanking/lending-assistant/internal/model"
)

// ConversationManager maintains each user's visible window of conversations:
// bounded capacity, relevance ordering, warning threshold, and automatic
// hiding on overflow. Create and open for one user serialize through a
// per-user lock so the window invariant holds under concurrency.
type ConversationManager struct {
	memory *ConversationMemory
	cfg    *config.ConversationConfig
	events *EventLog

	userLocks sync.Map // user id -> *sync.Mutex

	redisClient    *redis.Client
	redisAvailable bool
	warned         map[string]bool
	warnedMu       sync.Mutex
}

// NewConversationManager creates the manager. Redis, when reachable, holds
// the once-per-session warning flags; otherwise they live in memory.
func NewConversationManager(memory *ConversationMemory, cfg *config.ConversationConfig, redisClient *redis.Client, events *EventLog) *ConversationManager {
	m := &ConversationManager{
		memory:      memory,
		cfg:         cfg,
		events:      events,
		redisClient: redisClient,
		warned:      make(map[string]bool),
	}
	if redisClient != nil {
		if err := redisClient.Ping(context.Background()).Err(); err == nil {
			m.redisAvailable = true
		} else {
			log.Warn().Msg("Redis unavailable for warning flags, using in-memory storage only")
		}
	}
	return m
}

// Config exposes the window configuration surface.
func (m *ConversationManager) Config() model.WindowConfig {
	return model.WindowConfig{
		MaxConversations: m.cfg.MaxConversations,
		WarningThreshold: m.cfg.WarningThreshold,
	}
}

// ListVisible returns the user's ACTIVE conversations in relevance order:
// last_opened_at desc, then last_message_at desc, then created_at desc.
func (m *ConversationManager) ListVisible(ctx context.Context, userID string) ([]*model.Conversation, error) {
	conversations, err := m.memory.ListByStatus(ctx, userID, model.ConversationActive)
	if err != nil {
		return nil, err
	}
	sortByRelevance(conversations)
	return conversations, nil
}

// Create makes a new conversation and marks it active. When the post-create
// visible count would exceed the cap, the least relevant conversation other
// than activeConversationID (and the new one) is archived and reported back.
func (m *ConversationManager) Create(ctx context.Context, userID, title, activeConversationID string) (*model.CreateConversationResult, error) {
	lock := m.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := m.memory.CreateConversation(ctx, userID, title)
	if err != nil {
		return nil, err
	}

	visible, err := m.ListVisible(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &model.CreateConversationResult{Conversation: conv}

	if len(visible) > m.cfg.MaxConversations {
		victim := leastRelevant(visible, map[string]bool{
			conv.ID:              true,
			activeConversationID: true,
		})
		if victim != nil {
			if err := m.memory.UpdateStatus(ctx, victim.ID, model.ConversationArchived); err != nil {
				return nil, err
			}
			result.AutoHidden = &model.AutoHidden{ConversationID: victim.ID}
			log.Info().
				Str("user_id", userID).
				Str("conversation_id", victim.ID).
				Msg("Auto-hid least relevant conversation")
		}
	}

	count := len(visible)
	if result.AutoHidden != nil {
		count--
	}
	result.VisibleCount = count

	if count >= m.cfg.WarningThreshold {
		if !m.isWarned(ctx, userID) {
			result.Warning = fmt.Sprintf(
				"You have %d of %d conversations open. Older conversations will be hidden automatically once you reach the limit.",
				count, m.cfg.MaxConversations)
			m.setWarned(ctx, userID, true)
		}
	} else {
		// Dropping back below the threshold re-arms the warning.
		m.setWarned(ctx, userID, false)
	}

	return result, nil
}

// Open marks a conversation opened now. An ARCHIVED conversation transitions
// back to ACTIVE, hiding another if the window is full. Missing conversations
// report NOT_FOUND.
func (m *ConversationManager) Open(ctx context.Context, conversationID string) (*model.Conversation, error) {
	conv, err := m.memory.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	lock := m.lockFor(conv.UserID)
	lock.Lock()
	defer lock.Unlock()

	if conv.Status == model.ConversationArchived {
		visible, err := m.ListVisible(ctx, conv.UserID)
		if err != nil {
			return nil, err
		}
		if len(visible) >= m.cfg.MaxConversations {
			victim := leastRelevant(visible, map[string]bool{conversationID: true})
			if victim != nil {
				if err := m.memory.UpdateStatus(ctx, victim.ID, model.ConversationArchived); err != nil {
					return nil, err
				}
			}
		}
		if err := m.memory.UpdateStatus(ctx, conversationID, model.ConversationActive); err != nil {
			return nil, err
		}
	}

	if err := m.memory.TouchOpened(ctx, conversationID); err != nil {
		return nil, err
	}
	return m.memory.GetConversation(ctx, conversationID)
}

func (m *ConversationManager) lockFor(userID string) *sync.Mutex {
	lock, _ := m.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func warnedKey(userID string) string {
	return "warned:" + userID
}

func (m *ConversationManager) isWarned(ctx context.Context, userID string) bool {
	if m.redisAvailable && m.redisClient != nil {
		val, err := m.redisClient.Get(ctx, warnedKey(userID)).Result()
		if err == nil {
			return val == "1"
		}
		if err != redis.Nil {
			m.redisAvailable = false
		}
	}
	m.warnedMu.Lock()
	defer m.warnedMu.Unlock()
	return m.warned[userID]
}

func (m *ConversationManager) setWarned(ctx context.Context, userID string, warned bool) {
	if m.redisAvailable && m.redisClient != nil {
		var err error
		if warned {
			err = m.redisClient.Set(ctx, warnedKey(userID), "1", 24*time.Hour).Err()
		} else {
			err = m.redisClient.Del(ctx, warnedKey(userID)).Err()
		}
		if err != nil {
			m.redisAvailable = false
		}
	}
	m.warnedMu.Lock()
	m.warned[userID] = warned
	m.warnedMu.Unlock()
}

// sortByRelevance orders most relevant first.
func sortByRelevance(conversations []*model.Conversation) {
	sort.SliceStable(conversations, func(a, b int) bool {
		ca, cb := conversations[a], conversations[b]
		if !timeEqual(ca.LastOpenedAt, cb.LastOpenedAt) {
			return timeAfter(ca.LastOpenedAt, cb.LastOpenedAt)
		}
		if !timeEqual(ca.LastMessageAt, cb.LastMessageAt) {
			return timeAfter(ca.LastMessageAt, cb.LastMessageAt)
		}
		return ca.CreatedAt.After(cb.CreatedAt)
	})
}

// leastRelevant picks the lowest-relevance conversation not in exclude.
func leastRelevant(visible []*model.Conversation, exclude map[string]bool) *model.Conversation {
	sorted := make([]*model.Conversation, len(visible))
	copy(sorted, visible)
	sortByRelevance(sorted)
	for i := len(sorted) - 1; i >= 0; i-- {
		if !exclude[sorted[i].ID] {
			return sorted[i]
		}
	}
	return nil
}

func timeEqual(a, b *time.Time) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.Equal(*b)
}

// timeAfter treats nil as the distant past.
func timeAfter(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}
