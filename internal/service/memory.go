package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/aibanking/lending-assistant/internal/model"
	"github.com/aibanking/lending-assistant/internal/utils"
)

const memorySchema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'ACTIVE',
    message_count INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    last_message_at DATETIME,
    last_opened_at DATETIME,
    archived_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_conversations_user_status ON conversations(user_id, status);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS conversation_summaries (
    conversation_id TEXT PRIMARY KEY REFERENCES conversations(id) ON DELETE CASCADE,
    summary_text TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    updated_at DATETIME NOT NULL
);
`

// writeBackoff is the retry policy for transient write failures: 100ms base,
// doubling, capped at 3 attempts. Reads never retry.
func writeBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return backoff.WithMaxRetries(b, 2)
}

// ConversationMemory is the append-only conversation and message store.
// Message rows are immutable once inserted; the insert, the parent's
// message_count bump, and last_message_at all commit in one transaction.
type ConversationMemory struct {
	db *sql.DB
}

// NewConversationMemory opens the store and applies the schema.
func NewConversationMemory(path string) (*ConversationMemory, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}
	if _, err := db.Exec(memorySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply conversation schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Conversation store opened")
	return &ConversationMemory{db: db}, nil
}

// Close releases the store.
func (m *ConversationMemory) Close() error {
	return m.db.Close()
}

// CreateConversation inserts a new ACTIVE conversation.
func (m *ConversationMemory) CreateConversation(ctx context.Context, userID, title string) (*model.Conversation, error) {
	conv := &model.Conversation{
		ID:        utils.NewConversationID(),
		UserID:    userID,
		Title:     title,
		Status:    model.ConversationActive,
		CreatedAt: time.Now().UTC(),
	}

	err := m.retryWrite(ctx, func() error {
		_, err := m.db.ExecContext(ctx,
			`INSERT INTO conversations (id, user_id, title, status, message_count, created_at)
			 VALUES (?, ?, ?, ?, 0, ?)`,
			conv.ID, conv.UserID, conv.Title, string(conv.Status), conv.CreatedAt)
		return classifyDBError(err)
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// SaveMessage appends a message. Within one transaction: insert the row,
// increment message_count, set last_message_at. Transient failures retry with
// backoff; constraint and validation failures fail immediately. Returns the
// stored message and the conversation's new message count.
func (m *ConversationMemory) SaveMessage(ctx context.Context, conversationID string, role model.MessageRole, content, requestID string, metadata map[string]string) (*model.Message, int, error) {
	if conversationID == "" {
		return nil, 0, model.NewAppError(model.KindDBValidation, "conversation id is required")
	}
	if content == "" {
		return nil, 0, model.NewAppError(model.KindDBValidation, "message content is required")
	}

	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["request_id"] = requestID
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, 0, model.WrapAppError(model.KindDBValidation, "failed to marshal message metadata", err)
	}

	now := time.Now().UTC()
	msg := &model.Message{
		ID:             utils.NewMessageID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       metadata,
		CreatedAt:      now,
		// Immutability contract: updated_at is written once, equal to
		// created_at, and never touched again.
		UpdatedAt: now,
	}

	var newCount int
	err = m.retryWrite(ctx, func() error {
		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return classifyDBError(err)
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(ctx,
			`UPDATE conversations SET message_count = message_count + 1, last_message_at = ? WHERE id = ?`,
			now, conversationID)
		if err != nil {
			return classifyDBError(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return classifyDBError(err)
		}
		if affected == 0 {
			return model.NewAppError(model.KindNotFound,
				fmt.Sprintf("conversation %s not found", conversationID))
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, role, content, metadata, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.ConversationID, string(msg.Role), msg.Content, string(metaJSON), msg.CreatedAt, msg.UpdatedAt); err != nil {
			return classifyDBError(err)
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT message_count FROM conversations WHERE id = ?`, conversationID).Scan(&newCount); err != nil {
			return classifyDBError(err)
		}

		return classifyDBError(tx.Commit())
	})
	if err != nil {
		return nil, 0, err
	}
	return msg, newCount, nil
}

// GetConversation fetches one conversation. Reads fail fast.
func (m *ConversationMemory) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, status, message_count, created_at, last_message_at, last_opened_at, archived_at
		 FROM conversations WHERE id = ?`, conversationID)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewAppError(model.KindNotFound,
			fmt.Sprintf("conversation %s not found", conversationID))
	}
	if err != nil {
		return nil, classifyDBError(err)
	}
	return conv, nil
}

// ListByStatus returns a user's conversations with the given status.
func (m *ConversationMemory) ListByStatus(ctx context.Context, userID string, status model.ConversationStatus) ([]*model.Conversation, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, user_id, title, status, message_count, created_at, last_message_at, last_opened_at, archived_at
		 FROM conversations WHERE user_id = ? AND status = ?`, userID, string(status))
	if err != nil {
		return nil, classifyDBError(err)
	}
	defer rows.Close()

	conversations := make([]*model.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, classifyDBError(err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// UpdateStatus transitions a conversation's status. ARCHIVED sets archived_at;
// re-activation clears it.
func (m *ConversationMemory) UpdateStatus(ctx context.Context, conversationID string, status model.ConversationStatus) error {
	return m.retryWrite(ctx, func() error {
		var res sql.Result
		var err error
		switch status {
		case model.ConversationArchived:
			res, err = m.db.ExecContext(ctx,
				`UPDATE conversations SET status = ?, archived_at = ? WHERE id = ?`,
				string(status), time.Now().UTC(), conversationID)
		case model.ConversationActive:
			res, err = m.db.ExecContext(ctx,
				`UPDATE conversations SET status = ?, archived_at = NULL WHERE id = ?`,
				string(status), conversationID)
		default:
			res, err = m.db.ExecContext(ctx,
				`UPDATE conversations SET status = ? WHERE id = ?`,
				string(status), conversationID)
		}
		if err != nil {
			return classifyDBError(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return classifyDBError(err)
		}
		if affected == 0 {
			return model.NewAppError(model.KindNotFound,
				fmt.Sprintf("conversation %s not found", conversationID))
		}
		return nil
	})
}

// TouchOpened sets last_opened_at to now.
func (m *ConversationMemory) TouchOpened(ctx context.Context, conversationID string) error {
	return m.retryWrite(ctx, func() error {
		res, err := m.db.ExecContext(ctx,
			`UPDATE conversations SET last_opened_at = ? WHERE id = ?`,
			time.Now().UTC(), conversationID)
		if err != nil {
			return classifyDBError(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return classifyDBError(err)
		}
		if affected == 0 {
			return model.NewAppError(model.KindNotFound,
				fmt.Sprintf("conversation %s not found", conversationID))
		}
		return nil
	})
}

// GetLastNMessages returns the most recent n messages in chronological order,
// oldest first.
func (m *ConversationMemory) GetLastNMessages(ctx context.Context, conversationID string, n int) ([]model.Message, error) {
	if n <= 0 {
		n = 5
	}
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, metadata, created_at, updated_at
		 FROM (
		     SELECT * FROM messages WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
		 ) ORDER BY created_at ASC, id ASC`, conversationID, n)
	if err != nil {
		return nil, classifyDBError(err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetMessagesPaginated returns messages in chronological ascending order.
func (m *ConversationMemory) GetMessagesPaginated(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, metadata, created_at, updated_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`, conversationID, limit, offset)
	if err != nil {
		return nil, classifyDBError(err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetAllMessages returns a conversation's full history, oldest first.
func (m *ConversationMemory) GetAllMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, metadata, created_at, updated_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, classifyDBError(err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// UpsertSummary replaces the single live summary, bumping its version.
func (m *ConversationMemory) UpsertSummary(ctx context.Context, conversationID, text string) error {
	return m.retryWrite(ctx, func() error {
		_, err := m.db.ExecContext(ctx,
			`INSERT INTO conversation_summaries (conversation_id, summary_text, version, updated_at)
			 VALUES (?, ?, 1, ?)
			 ON CONFLICT(conversation_id) DO UPDATE SET
			     summary_text = excluded.summary_text,
			     version = conversation_summaries.version + 1,
			     updated_at = excluded.updated_at`,
			conversationID, text, time.Now().UTC())
		return classifyDBError(err)
	})
}

// GetSummary returns the live summary, or empty text when none exists yet.
func (m *ConversationMemory) GetSummary(ctx context.Context, conversationID string) (*model.ConversationSummary, error) {
	var summary model.ConversationSummary
	err := m.db.QueryRowContext(ctx,
		`SELECT conversation_id, summary_text, version, updated_at
		 FROM conversation_summaries WHERE conversation_id = ?`, conversationID).
		Scan(&summary.ConversationID, &summary.SummaryText, &summary.Version, &summary.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.ConversationSummary{ConversationID: conversationID}, nil
	}
	if err != nil {
		return nil, classifyDBError(err)
	}
	return &summary, nil
}

// DeleteConversation removes a conversation; messages cascade.
func (m *ConversationMemory) DeleteConversation(ctx context.Context, conversationID string) error {
	return m.retryWrite(ctx, func() error {
		_, err := m.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID)
		return classifyDBError(err)
	})
}

// retryWrite runs op under the write retry policy. Non-retriable kinds abort
// immediately via backoff.Permanent.
func (m *ConversationMemory) retryWrite(ctx context.Context, op func() error) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if model.IsRetriable(err) {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Transient store write failure, retrying")
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(writeBackoff(), ctx))
}

// classifyDBError maps driver errors to the error taxonomy.
func classifyDBError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *model.AppError
	if errors.As(err, &appErr) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(msg, "busy"), strings.Contains(msg, "timeout"):
		return model.WrapAppError(model.KindDBTimeout, "store timed out", err)
	case strings.Contains(msg, "locked"), strings.Contains(msg, "deadlock"):
		return model.WrapAppError(model.KindDBDeadlock, "store lock contention", err)
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "broken pipe"):
		return model.WrapAppError(model.KindDBConnReset, "store connection reset", err)
	case strings.Contains(msg, "constraint"), strings.Contains(msg, "unique"), strings.Contains(msg, "foreign key"):
		return model.WrapAppError(model.KindDBIntegrity, "store integrity violation", err)
	default:
		return model.WrapAppError(model.KindDBValidation, "store operation failed", err)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var conv model.Conversation
	var status string
	var lastMessageAt, lastOpenedAt, archivedAt sql.NullTime
	if err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &status, &conv.MessageCount,
		&conv.CreatedAt, &lastMessageAt, &lastOpenedAt, &archivedAt); err != nil {
		return nil, err
	}
	conv.Status = model.ConversationStatus(status)
	if lastMessageAt.Valid {
		conv.LastMessageAt = &lastMessageAt.Time
	}
	if lastOpenedAt.Valid {
		conv.LastOpenedAt = &lastOpenedAt.Time
	}
	if archivedAt.Valid {
		conv.ArchivedAt = &archivedAt.Time
	}
	return &conv, nil
}

func scanMessages(rows *sql.Rows) ([]model.Message, error) {
	messages := make([]model.Message, 0)
	for rows.Next() {
		var msg model.Message
		var role, metaJSON string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &metaJSON,
			&msg.CreatedAt, &msg.UpdatedAt); err != nil {
			return nil, classifyDBError(err)
		}
		msg.Role = model.MessageRole(role)
		if metaJSON != "" {
			_ = json.Unmarshal([]byte(metaJSON), &msg.Metadata)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
