package model

import "time"

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "ACTIVE"
	ConversationArchived ConversationStatus = "ARCHIVED"
	ConversationClosed   ConversationStatus = "CLOSED"
	ConversationDeleted  ConversationStatus = "DELETED"
)

// MessageRole identifies the author of a message.
type MessageRole string

const (
	RoleUser      MessageRole = "USER"
	RoleAssistant MessageRole = "ASSISTANT"
	RoleSystem    MessageRole = "SYSTEM"
)

// Conversation is one chat thread owned by a user. ACTIVE conversations are
// the visible window; ARCHIVED ones can be re-opened.
type Conversation struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id"`
	Title         string             `json:"title"`
	Status        ConversationStatus `json:"status"`
	MessageCount  int                `json:"message_count"`
	CreatedAt     time.Time          `json:"created_at"`
	LastMessageAt *time.Time         `json:"last_message_at,omitempty"`
	LastOpenedAt  *time.Time         `json:"last_opened_at,omitempty"`
	ArchivedAt    *time.Time         `json:"archived_at,omitempty"`
}

// Message is one turn entry. Immutable after insert: UpdatedAt always equals
// CreatedAt.
type Message struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Role           MessageRole       `json:"role"`
	Content        string            `json:"content"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ConversationSummary is the single live rolling summary for a conversation.
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	SummaryText    string    `json:"summary_text"`
	Version        int       `json:"version"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CreateConversationResult is returned by the multi-conversation manager on
// create: the new conversation plus window bookkeeping.
type CreateConversationResult struct {
	Conversation *Conversation `json:"conversation"`
	VisibleCount int           `json:"visible_count"`
	Warning      string        `json:"warning,omitempty"`
	AutoHidden   *AutoHidden   `json:"auto_hidden,omitempty"`
}

// AutoHidden names the conversation archived to keep the window bounded.
type AutoHidden struct {
	ConversationID string `json:"conversation_id"`
}

// WindowConfig is the visible-window configuration surface.
type WindowConfig struct {
	MaxConversations int `json:"max_conversations"`
	WarningThreshold int `json:"warning_threshold"`
}
