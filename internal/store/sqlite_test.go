package store_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/chatsync/internal/events"
	"github.com/TheMichaelB/chatsync/internal/models"
	"github.com/TheMichaelB/chatsync/internal/store"
)

func newMessageStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(
		filepath.Join(t.TempDir(), "messages.db"), events.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func message(chatJID, id string, ts int64) *models.Message {
	return &models.Message{
		ID:         id,
		ChatJID:    chatJID,
		Timestamp:  ts,
		Sender:     "sender@s.whatsapp.net",
		Content:    "hello " + id,
		SyncSource: "history",
	}
}

func TestUpsertChatAndMessage(t *testing.T) {
	ctx := context.Background()
	s := newMessageStore(t)

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.UpsertChat(&models.Chat{JID: "chat1@g.us", Name: "Family", IsGroup: true}); err != nil {
			return err
		}
		return tx.UpsertMessage(message("chat1@g.us", "m1", 1000))
	})
	require.NoError(t, err)

	chat, err := s.GetChat(ctx, "chat1@g.us")
	require.NoError(t, err)
	assert.Equal(t, "Family", chat.Name)
	assert.True(t, chat.IsGroup)

	msg, err := s.GetMessage(ctx, "chat1@g.us", "m1")
	require.NoError(t, err)
	assert.Equal(t, "hello m1", msg.Content)
	assert.Equal(t, int64(1000), msg.Timestamp)
	assert.Equal(t, "history", msg.SyncSource)

	// Replaying the message with new content overwrites in place.
	err = s.WithTx(ctx, func(tx store.Tx) error {
		edited := message("chat1@g.us", "m1", 1000)
		edited.Content = "edited"
		return tx.UpsertMessage(edited)
	})
	require.NoError(t, err)

	msg, err = s.GetMessage(ctx, "chat1@g.us", "m1")
	require.NoError(t, err)
	assert.Equal(t, "edited", msg.Content)

	count, err := s.CountMessages(ctx, "chat1@g.us")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGetMissingRows(t *testing.T) {
	ctx := context.Background()
	s := newMessageStore(t)

	_, err := s.GetChat(ctx, "missing@g.us")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetMessage(ctx, "missing@g.us", "m1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEnsureChatPlaceholder(t *testing.T) {
	ctx := context.Background()
	s := newMessageStore(t)

	err := s.WithTx(ctx, func(tx store.Tx) error {
		return tx.EnsureChat("chat1@s.whatsapp.net", 500)
	})
	require.NoError(t, err)

	chat, err := s.GetChat(ctx, "chat1@s.whatsapp.net")
	require.NoError(t, err)
	assert.Empty(t, chat.Name)

	// The full chat record later fills in the metadata.
	err = s.WithTx(ctx, func(tx store.Tx) error {
		return tx.UpsertChat(&models.Chat{JID: "chat1@s.whatsapp.net", Name: "Alice"})
	})
	require.NoError(t, err)

	// Another EnsureChat must not reset it back to a placeholder.
	err = s.WithTx(ctx, func(tx store.Tx) error {
		return tx.EnsureChat("chat1@s.whatsapp.net", 999)
	})
	require.NoError(t, err)

	chat, err = s.GetChat(ctx, "chat1@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "Alice", chat.Name)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newMessageStore(t)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.EnsureChat("chat1@s.whatsapp.net", 500); err != nil {
			return err
		}
		if err := tx.UpsertMessage(message("chat1@s.whatsapp.net", "m1", 1000)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Nothing from the failed transaction is visible.
	_, err = s.GetChat(ctx, "chat1@s.whatsapp.net")
	assert.ErrorIs(t, err, store.ErrNotFound)

	count, err := s.CountMessages(ctx, "chat1@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestClearChatCascades(t *testing.T) {
	ctx := context.Background()
	s := newMessageStore(t)

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.EnsureChat("chat1@s.whatsapp.net", 500); err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			if err := tx.UpsertMessage(message("chat1@s.whatsapp.net", fmt.Sprintf("m%d", i), int64(1000+i))); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.ClearChat(ctx, "chat1@s.whatsapp.net"))

	_, err = s.GetChat(ctx, "chat1@s.whatsapp.net")
	assert.ErrorIs(t, err, store.ErrNotFound)

	count, err := s.CountMessages(ctx, "chat1@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMessagesOrderedByTimestamp(t *testing.T) {
	ctx := context.Background()
	s := newMessageStore(t)

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.EnsureChat("chat1@s.whatsapp.net", 500); err != nil {
			return err
		}
		// Inserted newest first; reads come back oldest first.
		for _, ts := range []int64{3000, 1000, 2000} {
			if err := tx.UpsertMessage(message("chat1@s.whatsapp.net", fmt.Sprintf("m%d", ts), ts)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	msgs, err := s.Messages(ctx, "chat1@s.whatsapp.net", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(1000), msgs[0].Timestamp)
	assert.Equal(t, int64(2000), msgs[1].Timestamp)
	assert.Equal(t, int64(3000), msgs[2].Timestamp)

	limited, err := s.Messages(ctx, "chat1@s.whatsapp.net", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
