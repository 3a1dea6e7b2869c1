package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibanking/lending-assistant/internal/config"
	"github.com/aibanking/lending-assistant/internal/model"
)

func newManager(t *testing.T, maxConversations, warningThreshold int) (*ConversationManager, *ConversationMemory) {
	t.Helper()
	memory := openMemory(t)
	cfg := &config.ConversationConfig{
		MaxConversations:    maxConversations,
		WarningThreshold:    warningThreshold,
		SummaryWindow:       15,
		ContextMessageLimit: 5,
	}
	return NewConversationManager(memory, cfg, nil, NewEventLog()), memory
}

func TestCreateAutoHidesLeastRelevant(t *testing.T) {
	manager, _ := newManager(t, 3, 10)
	ctx := context.Background()

	// Three ACTIVE conversations opened in order: A oldest, C newest.
	var ids []string
	for _, title := range []string{"A", "B", "C"} {
		result, err := manager.Create(ctx, "staff-1", title, "")
		require.NoError(t, err)
		ids = append(ids, result.Conversation.ID)
		_, err = manager.Open(ctx, result.Conversation.ID)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	// Creating D with C active pushes the window over the cap; A is the
	// least relevant and gets hidden.
	result, err := manager.Create(ctx, "staff-1", "D", ids[2])
	require.NoError(t, err)

	require.NotNil(t, result.AutoHidden)
	assert.Equal(t, ids[0], result.AutoHidden.ConversationID)
	assert.Equal(t, 3, result.VisibleCount)

	visible, err := manager.ListVisible(ctx, "staff-1")
	require.NoError(t, err)
	assert.Len(t, visible, 3)
	for _, conv := range visible {
		assert.NotEqual(t, ids[0], conv.ID)
		assert.Equal(t, model.ConversationActive, conv.Status)
	}
}

func TestCreateNeverHidesActiveConversation(t *testing.T) {
	manager, _ := newManager(t, 2, 10)
	ctx := context.Background()

	first, err := manager.Create(ctx, "staff-1", "first", "")
	require.NoError(t, err)
	second, err := manager.Create(ctx, "staff-1", "second", "")
	require.NoError(t, err)

	// first is the least relevant but is pinned as active; second is hidden
	// instead.
	result, err := manager.Create(ctx, "staff-1", "third", first.Conversation.ID)
	require.NoError(t, err)
	require.NotNil(t, result.AutoHidden)
	assert.Equal(t, second.Conversation.ID, result.AutoHidden.ConversationID)
}

func TestWarningIssuedOncePerSession(t *testing.T) {
	manager, _ := newManager(t, 20, 3)
	ctx := context.Background()

	first, err := manager.Create(ctx, "staff-1", "one", "")
	require.NoError(t, err)
	assert.Empty(t, first.Warning)

	second, err := manager.Create(ctx, "staff-1", "two", "")
	require.NoError(t, err)
	assert.Empty(t, second.Warning)

	third, err := manager.Create(ctx, "staff-1", "three", "")
	require.NoError(t, err)
	assert.NotEmpty(t, third.Warning)

	fourth, err := manager.Create(ctx, "staff-1", "four", "")
	require.NoError(t, err)
	assert.Empty(t, fourth.Warning, "warning repeats only after dropping below the threshold")
}

func TestListVisibleRelevanceOrder(t *testing.T) {
	manager, memory := newManager(t, 20, 15)
	ctx := context.Background()

	a, err := memory.CreateConversation(ctx, "staff-1", "a")
	require.NoError(t, err)
	b, err := memory.CreateConversation(ctx, "staff-1", "b")
	require.NoError(t, err)
	c, err := memory.CreateConversation(ctx, "staff-1", "c")
	require.NoError(t, err)

	// Open a, then b, so b ranks first and a second; c, never opened, ranks last.
	require.NoError(t, memory.TouchOpened(ctx, a.ID))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, memory.TouchOpened(ctx, b.ID))

	visible, err := manager.ListVisible(ctx, "staff-1")
	require.NoError(t, err)
	require.Len(t, visible, 3)
	assert.Equal(t, b.ID, visible[0].ID)
	assert.Equal(t, a.ID, visible[1].ID)
	assert.Equal(t, c.ID, visible[2].ID)
}

func TestOpenReactivatesArchived(t *testing.T) {
	manager, memory := newManager(t, 20, 15)
	ctx := context.Background()

	conv, err := memory.CreateConversation(ctx, "staff-1", "archived one")
	require.NoError(t, err)
	require.NoError(t, memory.UpdateStatus(ctx, conv.ID, model.ConversationArchived))

	opened, err := manager.Open(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationActive, opened.Status)
	assert.Nil(t, opened.ArchivedAt)
	require.NotNil(t, opened.LastOpenedAt)
}

func TestOpenIsIdempotentModuloTimestamp(t *testing.T) {
	manager, memory := newManager(t, 20, 15)
	ctx := context.Background()

	conv, err := memory.CreateConversation(ctx, "staff-1", "t")
	require.NoError(t, err)

	first, err := manager.Open(ctx, conv.ID)
	require.NoError(t, err)
	second, err := manager.Open(ctx, conv.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.MessageCount, second.MessageCount)
	assert.Equal(t, first.Title, second.Title)
}

func TestOpenUnknownConversation(t *testing.T) {
	manager, _ := newManager(t, 20, 15)

	_, err := manager.Open(context.Background(), "conv_missing")
	require.Error(t, err)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
}

func TestWindowInvariantUnderConcurrentCreates(t *testing.T) {
	manager, _ := newManager(t, 5, 4)
	ctx := context.Background()

	done := make(chan struct{})
	for i := 0; i < 12; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := manager.Create(ctx, "staff-1", "burst", "")
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < 12; i++ {
		<-done
	}

	visible, err := manager.ListVisible(ctx, "staff-1")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(visible), 5)
}

func TestManagerConfigSurface(t *testing.T) {
	manager, _ := newManager(t, 20, 15)
	cfg := manager.Config()
	assert.Equal(t, 20, cfg.MaxConversations)
	assert.Equal(t, 15, cfg.WarningThreshold)
}
