package universe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codingarctic/loreshifter-runtime/internal/store"
)

func newTestUniverse(t *testing.T) (*Universe, *store.FakeStore) {
	t.Helper()
	fs := store.NewFakeStore()
	u := New(nil, fs, fs.Users(), fs.Worlds(), fs.Games(), fs.Players(), fs.Chats(), fs.Messages(), 50*time.Millisecond)
	t.Cleanup(u.Stop)
	return u, fs
}

func TestCreateWorldEmitsNewWorldEvent(t *testing.T) {
	u, _ := newTestUniverse(t)
	ctx := context.Background()
	events, _ := u.Listen()

	w, err := u.CreateWorld(ctx, "Riverlands", 1, true, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "Riverlands", w.Name)

	ev := <-events
	nw, ok := ev.(NewWorldEvent)
	require.True(t, ok)
	require.Equal(t, w.ID, nw.World.ID)
}

func TestUpdateWorldRejectsNonOwner(t *testing.T) {
	u, _ := newTestUniverse(t)
	ctx := context.Background()

	w, err := u.CreateWorld(ctx, "Riverlands", 1, true, nil, nil)
	require.NoError(t, err)

	name := "New Name"
	_, err = u.UpdateWorld(ctx, w.ID, 2, &name, nil, nil, nil)
	require.Error(t, err)
}

func TestCopyWorldRejectsPrivateNonOwner(t *testing.T) {
	u, _ := newTestUniverse(t)
	ctx := context.Background()

	w, err := u.CreateWorld(ctx, "Secret Place", 1, false, nil, nil)
	require.NoError(t, err)

	_, err = u.CopyWorld(ctx, w.ID, 2)
	require.Error(t, err)

	copied, err := u.CopyWorld(ctx, w.ID, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), copied.OwnerID)
	require.NotEqual(t, w.ID, copied.ID)
}

func TestGetWorldHidesPrivateFromStranger(t *testing.T) {
	u, _ := newTestUniverse(t)
	ctx := context.Background()

	w, err := u.CreateWorld(ctx, "Secret Place", 1, false, nil, nil)
	require.NoError(t, err)

	stranger := int64(2)
	_, err = u.GetWorld(ctx, w.ID, &stranger)
	require.Error(t, err)

	owner := int64(1)
	got, err := u.GetWorld(ctx, w.ID, &owner)
	require.NoError(t, err)
	require.Equal(t, w.ID, got.ID)
}

func TestCreateGameSeedsStateAndJoinsHost(t *testing.T) {
	u, _ := newTestUniverse(t)
	ctx := context.Background()

	seed := []byte(`{"initialState": {"weather": "clear"}}`)
	w, err := u.CreateWorld(ctx, "Riverlands", 1, true, nil, seed)
	require.NoError(t, err)

	gs, out, err := u.CreateGame(ctx, 1, w.ID, "test game", true, 4)
	require.NoError(t, err)
	require.NotNil(t, gs)
	require.Len(t, out.Players, 1)
	require.Equal(t, int64(1), out.Players[0].UserID)
	require.False(t, out.Players[0].IsSpectator)
	require.JSONEq(t, `{"weather": "clear"}`, string(out.Game.State))
	require.Len(t, out.Game.Code, 4)
}

func TestCreateGameUnknownWorld(t *testing.T) {
	u, _ := newTestUniverse(t)
	_, _, err := u.CreateGame(context.Background(), 1, 9999, "test game", true, 4)
	require.Error(t, err)
}

func TestGetOrLoadGameSystemReturnsSameInstance(t *testing.T) {
	u, _ := newTestUniverse(t)
	ctx := context.Background()

	w, err := u.CreateWorld(ctx, "Riverlands", 1, true, nil, nil)
	require.NoError(t, err)
	gs, out, err := u.CreateGame(ctx, 1, w.ID, "test game", true, 4)
	require.NoError(t, err)

	again, err := u.GetOrLoadGameSystem(ctx, out.Game.ID)
	require.NoError(t, err)
	require.Same(t, gs, again)
}

func TestRestartGameRequiresHostAndFinished(t *testing.T) {
	u, _ := newTestUniverse(t)
	ctx := context.Background()

	w, err := u.CreateWorld(ctx, "Riverlands", 1, true, nil, nil)
	require.NoError(t, err)
	_, out, err := u.CreateGame(ctx, 1, w.ID, "test game", true, 4)
	require.NoError(t, err)

	_, _, err = u.RestartGame(ctx, out.Game.ID, 2)
	require.Error(t, err)

	_, _, err = u.RestartGame(ctx, out.Game.ID, 1)
	require.Error(t, err) // still waiting, not finished
}

func TestRestartGameCarriesOverRoster(t *testing.T) {
	u, _ := newTestUniverse(t)
	ctx := context.Background()

	seed := []byte(`{"initialState": {"characters": {"1": {}, "2": {}, "3": {}}}}`)
	w, err := u.CreateWorld(ctx, "Riverlands", 1, true, nil, seed)
	require.NoError(t, err)
	gs, out, err := u.CreateGame(ctx, 1, w.ID, "test game", true, 4)
	require.NoError(t, err)

	require.NoError(t, gs.ConnectPlayer(ctx, nil, 2))
	require.NoError(t, gs.ConnectPlayer(ctx, nil, 3))
	require.NoError(t, gs.SetReady(ctx, nil, 1, true))
	require.NoError(t, gs.SetReady(ctx, nil, 2, true))
	require.NoError(t, gs.SetReady(ctx, nil, 3, true))
	require.NoError(t, gs.StartGame(ctx, nil, false, nil))
	require.NoError(t, gs.SetFinished(ctx, nil))

	newGS, newOut, err := u.RestartGame(ctx, out.Game.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, newGS)
	require.Len(t, newOut.Players, 3)
}

func TestGetGamesExcludesArchivedByDefault(t *testing.T) {
	u, _ := newTestUniverse(t)
	ctx := context.Background()

	w, err := u.CreateWorld(ctx, "Riverlands", 1, true, nil, nil)
	require.NoError(t, err)
	gs, out, err := u.CreateGame(ctx, 1, w.ID, "test game", true, 4)
	require.NoError(t, err)
	require.NoError(t, gs.Terminate(ctx, nil))

	requester := int64(1)
	games, err := u.GetGames(ctx, GetGamesFilter{GameFilter: store.GameFilter{RequesterID: &requester, Limit: 10}})
	require.NoError(t, err)
	for _, g := range games {
		require.NotEqual(t, out.Game.ID, g.Game.ID)
	}

	withArchived, err := u.GetGames(ctx, GetGamesFilter{GameFilter: store.GameFilter{RequesterID: &requester, Limit: 10}, IncludeArchived: true})
	require.NoError(t, err)
	found := false
	for _, g := range withArchived {
		if g.Game.ID == out.Game.ID {
			found = true
		}
	}
	require.True(t, found)
}

// TestGetGamesListsForJoinedNonHostPlayer guards against List's visibility
// predicate regressing to "public OR host" only: a private game must be
// just as visible to a joined non-host player through GET /game as it is
// through GET /game/{id} (Universe.gameVisible's roster-membership check).
func TestGetGamesListsForJoinedNonHostPlayer(t *testing.T) {
	u, _ := newTestUniverse(t)
	ctx := context.Background()

	w, err := u.CreateWorld(ctx, "Riverlands", 1, true, nil, nil)
	require.NoError(t, err)
	gs, out, err := u.CreateGame(ctx, 1, w.ID, "private game", false, 4)
	require.NoError(t, err)

	require.NoError(t, gs.ConnectPlayer(ctx, nil, 2))

	stranger := int64(99)
	strangerGames, err := u.GetGames(ctx, GetGamesFilter{GameFilter: store.GameFilter{RequesterID: &stranger, Limit: 10}})
	require.NoError(t, err)
	for _, g := range strangerGames {
		require.NotEqual(t, out.Game.ID, g.Game.ID)
	}

	joined := int64(2)
	joinedGames, err := u.GetGames(ctx, GetGamesFilter{GameFilter: store.GameFilter{RequesterID: &joined, Limit: 10}})
	require.NoError(t, err)
	found := false
	for _, g := range joinedGames {
		if g.Game.ID == out.Game.ID {
			found = true
			require.Len(t, g.Players, 2)
		}
	}
	require.True(t, found)
}

func TestGetGameHidesPrivateFromOutsider(t *testing.T) {
	u, _ := newTestUniverse(t)
	ctx := context.Background()

	w, err := u.CreateWorld(ctx, "Riverlands", 1, true, nil, nil)
	require.NoError(t, err)
	_, out, err := u.CreateGame(ctx, 1, w.ID, "private game", false, 4)
	require.NoError(t, err)

	stranger := int64(99)
	_, err = u.GetGame(ctx, out.Game.ID, &stranger)
	require.Error(t, err)

	host := int64(1)
	got, err := u.GetGame(ctx, out.Game.ID, &host)
	require.NoError(t, err)
	require.Equal(t, out.Game.ID, got.Game.ID)
}
