package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codingarctic/loreshifter-runtime/internal/store"
)

func newTestChat(t *testing.T) (*ChatSystem, *store.FakeStore) {
	t.Helper()
	fs := store.NewFakeStore()
	cs, err := CreateOrLoad(context.Background(), nil, fs.Chats(), fs.Messages(), 1, store.ChatRoom, nil, store.InterfaceFull)
	require.NoError(t, err)
	t.Cleanup(cs.Stop)
	return cs, fs
}

func TestSendMessageAppendsAndEmits(t *testing.T) {
	cs, _ := newTestChat(t)
	events, errc := cs.Listen()

	out, err := cs.SendMessage(context.Background(), nil, store.MessagePlayer, "hello", nil, nil, nil)
	require.NoError(t, err)
	require.Nil(t, out.PreviousID)
	require.Nil(t, out.NextID)

	select {
	case ev := <-events:
		sent, ok := ev.(MessageSentEvent)
		require.True(t, ok)
		require.Equal(t, "hello", sent.Message.Message.Text)
	case err := <-errc:
		t.Fatalf("unexpected pipe failure: %v", err)
	}
}

func TestSendMessageLinksNeighbors(t *testing.T) {
	cs, _ := newTestChat(t)

	first, err := cs.SendMessage(context.Background(), nil, store.MessagePlayer, "one", nil, nil, nil)
	require.NoError(t, err)
	require.Nil(t, first.PreviousID)

	second, err := cs.SendMessage(context.Background(), nil, store.MessagePlayer, "two", nil, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, second.PreviousID)
	require.Equal(t, first.Message.ID, *second.PreviousID)
}

func TestEditMessageNotFound(t *testing.T) {
	cs, _ := newTestChat(t)
	_, err := cs.EditMessage(context.Background(), nil, 999, "new text", nil, nil)
	require.Error(t, err)
}

func TestEditMessageMutatesInPlace(t *testing.T) {
	cs, _ := newTestChat(t)
	sent, err := cs.SendMessage(context.Background(), nil, store.MessagePlayer, "original", nil, nil, nil)
	require.NoError(t, err)

	edited, err := cs.EditMessage(context.Background(), nil, sent.Message.ID, "updated", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "updated", edited.Text)

	page, err := cs.GetMessages(10, nil, nil)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	require.Equal(t, "updated", page.Messages[0].Text)
}

func TestDeleteMessageUnlinks(t *testing.T) {
	cs, _ := newTestChat(t)
	a, err := cs.SendMessage(context.Background(), nil, store.MessagePlayer, "a", nil, nil, nil)
	require.NoError(t, err)
	b, err := cs.SendMessage(context.Background(), nil, store.MessagePlayer, "b", nil, nil, nil)
	require.NoError(t, err)

	_, err = cs.DeleteMessage(context.Background(), nil, a.Message.ID)
	require.NoError(t, err)

	page, err := cs.GetMessages(10, nil, nil)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	require.Equal(t, b.Message.ID, page.Messages[0].ID)
}

func TestGetMessagesMutuallyExclusiveCursors(t *testing.T) {
	cs, _ := newTestChat(t)
	before := int64(1)
	after := int64(2)
	_, err := cs.GetMessages(10, &before, &after)
	require.Error(t, err)
}

func TestGetMessagesPaginationForward(t *testing.T) {
	cs, _ := newTestChat(t)
	var ids []int64
	for i := 0; i < 5; i++ {
		out, err := cs.SendMessage(context.Background(), nil, store.MessagePlayer, "msg", nil, nil, nil)
		require.NoError(t, err)
		ids = append(ids, out.Message.ID)
	}

	page, err := cs.GetMessages(2, nil, &ids[1])
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	require.Equal(t, ids[2], page.Messages[0].ID)
	require.Equal(t, ids[3], page.Messages[1].ID)
	require.NotNil(t, page.PreviousID)
	require.Equal(t, ids[1], *page.PreviousID)
	require.NotNil(t, page.NextID)
	require.Equal(t, ids[4], *page.NextID)
}

func TestGetMessagesPaginationBackwardLatest(t *testing.T) {
	cs, _ := newTestChat(t)
	var ids []int64
	for i := 0; i < 3; i++ {
		out, err := cs.SendMessage(context.Background(), nil, store.MessagePlayer, "msg", nil, nil, nil)
		require.NoError(t, err)
		ids = append(ids, out.Message.ID)
	}

	page, err := cs.GetMessages(2, nil, nil)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	require.Equal(t, ids[1], page.Messages[0].ID)
	require.Equal(t, ids[2], page.Messages[1].ID)
	require.Nil(t, page.NextID)
}

func TestSuggestions(t *testing.T) {
	cs, _ := newTestChat(t)
	cs.AddSuggestion("hi there")
	cs.AddSuggestion("how are you")

	page, err := cs.GetMessages(10, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"hi there", "how are you"}, page.Suggestions)

	cs.ClearSuggestions()
	page, err = cs.GetMessages(10, nil, nil)
	require.NoError(t, err)
	require.Empty(t, page.Suggestions)
}

func TestLoadExistingMessagesOnCreateOrLoad(t *testing.T) {
	fs := store.NewFakeStore()
	chatRow, err := fs.Chats().GetOrCreate(context.Background(), nil, 1, store.ChatRoom, nil, store.InterfaceFull)
	require.NoError(t, err)
	_, err = fs.Messages().Send(context.Background(), nil, chatRow.ID, nil, store.MessageSystem, "seeded", nil, nil)
	require.NoError(t, err)

	cs, err := CreateOrLoad(context.Background(), nil, fs.Chats(), fs.Messages(), 1, store.ChatRoom, nil, store.InterfaceFull)
	require.NoError(t, err)
	t.Cleanup(cs.Stop)

	page, err := cs.GetMessages(10, nil, nil)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	require.Equal(t, "seeded", page.Messages[0].Text)
}
