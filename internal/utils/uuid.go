package utils

import (
	"github.com/google/uuid"
)

// The assistant mints three kinds of identifiers: one per turn, one per
// conversation, one per message. The prefix makes the kind readable in logs
// and support tickets without a lookup.
func prefixedID(prefix string) string {
	return prefix + "_" + uuid.New().String()
}

// NewRequestID mints the trace ID for one user turn.
func NewRequestID() string {
	return prefixedID("req")
}

// NewConversationID mints a conversation ID.
func NewConversationID() string {
	return prefixedID("conv")
}

// NewMessageID mints a message ID.
func NewMessageID() string {
	return prefixedID("msg")
}
