package gamesys

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codingarctic/loreshifter-runtime/internal/store"
)

func newTestGame(t *testing.T, hostID int64, maxPlayers int) (*GameSystem, *store.FakeStore) {
	t.Helper()
	fs := store.NewFakeStore()
	ctx := context.Background()

	host := hostID
	row, err := fs.Games().CreateWithUniqueCode(ctx, nil, "ABCD", 1, &host, "test game", true, maxPlayers, nil)
	require.NoError(t, err)

	_, err = fs.Players().Join(ctx, nil, row.ID, hostID, false)
	require.NoError(t, err)

	roster, err := fs.Players().ListByGame(ctx, nil, row.ID)
	require.NoError(t, err)

	gs, err := CreateNew(ctx, nil, nil, row, roster, fs.Chats(), fs.Messages(), fs.Players(), fs.Games(), 50*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(gs.Stop)
	return gs, fs
}

func TestConnectPlayerJoinsThenReconnects(t *testing.T) {
	gs, _ := newTestGame(t, 1, 4)
	ctx := context.Background()

	require.NoError(t, gs.ConnectPlayer(ctx, nil, 2))
	p, err := gs.GetPlayer(2)
	require.NoError(t, err)
	require.True(t, p.IsJoined)
	require.False(t, p.IsSpectator)

	require.NoError(t, gs.DisconnectPlayer(ctx, nil, 2, true, nil))
	_, err = gs.GetPlayer(2)
	require.Error(t, err)

	require.NoError(t, gs.ConnectPlayer(ctx, nil, 2))
	p, err = gs.GetPlayer(2)
	require.NoError(t, err)
	require.True(t, p.IsJoined)
}

func TestConnectPlayerBecomesSpectatorWhenFull(t *testing.T) {
	gs, _ := newTestGame(t, 1, 1)
	ctx := context.Background()

	require.NoError(t, gs.ConnectPlayer(ctx, nil, 2))
	p, err := gs.GetPlayer(2)
	require.NoError(t, err)
	require.True(t, p.IsSpectator)
}

func TestDisconnectPlayerNotInGame(t *testing.T) {
	gs, _ := newTestGame(t, 1, 4)
	err := gs.DisconnectPlayer(context.Background(), nil, 99, true, nil)
	require.Error(t, err)
}

func TestDisconnectThenKickAfterTimeout(t *testing.T) {
	gs, _ := newTestGame(t, 1, 4)
	ctx := context.Background()
	require.NoError(t, gs.ConnectPlayer(ctx, nil, 2))

	host := int64(1)
	require.NoError(t, gs.DisconnectPlayer(ctx, nil, 2, false, &host))

	p, err := gs.GetPlayer(2)
	require.NoError(t, err)
	require.False(t, p.IsJoined)

	require.Eventually(t, func() bool {
		_, err := gs.GetPlayer(2)
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestReconnectCancelsPendingKick(t *testing.T) {
	gs, _ := newTestGame(t, 1, 4)
	ctx := context.Background()
	require.NoError(t, gs.ConnectPlayer(ctx, nil, 2))
	require.NoError(t, gs.DisconnectPlayer(ctx, nil, 2, false, nil))
	require.NoError(t, gs.ConnectPlayer(ctx, nil, 2))

	time.Sleep(100 * time.Millisecond)
	p, err := gs.GetPlayer(2)
	require.NoError(t, err)
	require.True(t, p.IsJoined)
}

func TestHostDisconnectKickPromotesNextHost(t *testing.T) {
	gs, _ := newTestGame(t, 1, 4)
	ctx := context.Background()
	require.NoError(t, gs.ConnectPlayer(ctx, nil, 2))

	host := int64(1)
	require.NoError(t, gs.DisconnectPlayer(ctx, nil, 1, true, &host))

	require.Equal(t, int64(2), *gs.HostID())
}

func TestMakeSpectatorRejectsWhenGameFull(t *testing.T) {
	gs, _ := newTestGame(t, 1, 1)
	ctx := context.Background()
	require.NoError(t, gs.ConnectPlayer(ctx, nil, 2))

	p, err := gs.GetPlayer(2)
	require.NoError(t, err)
	require.True(t, p.IsSpectator)

	err = gs.MakeSpectator(ctx, nil, 2, false, nil)
	require.Error(t, err)
}

func TestUpdateSettingsRejectsMaxPlayersBelowRoster(t *testing.T) {
	gs, _ := newTestGame(t, 1, 4)
	ctx := context.Background()
	require.NoError(t, gs.ConnectPlayer(ctx, nil, 2))
	require.NoError(t, gs.ConnectPlayer(ctx, nil, 3))

	tooSmall := 1
	err := gs.UpdateSettings(ctx, nil, nil, nil, &tooSmall)
	require.Error(t, err)
}

func TestSetReadyRequiresCharacter(t *testing.T) {
	gs, _ := newTestGame(t, 1, 4)
	ctx := context.Background()

	err := gs.SetReady(ctx, nil, 1, true)
	require.Error(t, err)
}

func TestStartGameRequiresReadyUnlessForced(t *testing.T) {
	gs, _ := newTestGame(t, 1, 4)
	ctx := context.Background()
	require.NoError(t, gs.ConnectPlayer(ctx, nil, 2))

	host := int64(1)
	err := gs.StartGame(ctx, nil, false, &host)
	require.Error(t, err)

	require.NoError(t, gs.StartGame(ctx, nil, true, &host))
	require.Equal(t, store.StatusPlaying, gs.Status())

	p, err := gs.GetPlayer(1)
	require.NoError(t, err)
	require.True(t, p.IsSpectator)
}

func TestStartGameOnlyHost(t *testing.T) {
	gs, _ := newTestGame(t, 1, 4)
	notHost := int64(2)
	err := gs.StartGame(context.Background(), nil, true, &notHost)
	require.Error(t, err)
}

func TestTerminateIsIdempotentAndArchives(t *testing.T) {
	gs, _ := newTestGame(t, 1, 4)
	ctx := context.Background()
	require.NoError(t, gs.ConnectPlayer(ctx, nil, 2))

	require.NoError(t, gs.Terminate(ctx, nil))
	require.Equal(t, store.StatusArchived, gs.Status())

	require.NoError(t, gs.Terminate(ctx, nil))
	require.Equal(t, store.StatusArchived, gs.Status())
}

func TestSendMessageRejectsNonMember(t *testing.T) {
	gs, _ := newTestGame(t, 1, 4)
	_, err := gs.SendMessage(context.Background(), nil, 99, gs.roomChat.ID(), store.MessagePlayer, "hi", nil, nil)
	require.Error(t, err)
}

func TestSendMessageToRoomChat(t *testing.T) {
	gs, _ := newTestGame(t, 1, 4)
	out, err := gs.SendMessage(context.Background(), nil, 1, gs.roomChat.ID(), store.MessagePlayer, "hi all", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "hi all", out.Message.Text)
}
