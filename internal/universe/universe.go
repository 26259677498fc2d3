package universe

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/codingarctic/loreshifter-runtime/internal/apperr"
	"github.com/codingarctic/loreshifter-runtime/internal/gamesys"
	"github.com/codingarctic/loreshifter-runtime/internal/store"
	"github.com/codingarctic/loreshifter-runtime/internal/system"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Universe is the process-scoped registry of live GameSystems, per
// spec.md §4.4. It owns creation and read queries; live GameSystems
// register themselves in internal/system's process-global registry rather
// than a map Universe holds directly, breaking the Universe<->GameSystem
// ownership cycle spec.md §9 calls out ("Cycle between Universe and
// GameSystem").
type Universe struct {
	*system.System[Event]

	pool      store.Querier
	beginner  store.Beginner
	kickAfter time.Duration

	userRepo    store.UserRepository
	worldRepo   store.WorldRepository
	gameRepo    store.GameRepository
	playerRepo  store.PlayerRepository
	chatRepo    store.ChatRepository
	messageRepo store.MessageRepository

	mu      sync.Mutex
	gameIDs map[int64]struct{} // games this process has loaded/created, for Stop's cascade
}

// New builds a Universe over the given repositories. pool is used for
// ordinary (non-transactional) reads/writes; beginner opens the
// serializable transaction CreateGame's retry loop needs.
func New(
	pool store.Querier,
	beginner store.Beginner,
	userRepo store.UserRepository,
	worldRepo store.WorldRepository,
	gameRepo store.GameRepository,
	playerRepo store.PlayerRepository,
	chatRepo store.ChatRepository,
	messageRepo store.MessageRepository,
	kickAfter time.Duration,
) *Universe {
	return &Universe{
		System:      system.New[Event]("universe"),
		pool:        pool,
		beginner:    beginner,
		kickAfter:   kickAfter,
		userRepo:    userRepo,
		worldRepo:   worldRepo,
		gameRepo:    gameRepo,
		playerRepo:  playerRepo,
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		gameIDs:     make(map[int64]struct{}),
	}
}

// CreateWorld implements spec.md §4.4's create_world.
func (u *Universe) CreateWorld(ctx context.Context, name string, ownerID int64, public bool, description *string, data json.RawMessage) (*store.World, error) {
	w, err := u.worldRepo.Create(ctx, u.pool, name, ownerID, public, description, data)
	if err != nil {
		return nil, apperr.Wrap(err, "create world")
	}
	u.Emit(NewWorldEvent{World: w})
	return w, nil
}

// UpdateWorld implements the PUT /world/{id} route (§6): owner only.
func (u *Universe) UpdateWorld(ctx context.Context, worldID, requesterID int64, name *string, public *bool, description *string, data json.RawMessage) (*store.World, error) {
	w, err := u.worldRepo.GetByID(ctx, u.pool, worldID)
	if err != nil {
		return nil, apperr.New(apperr.WorldNotFound, "world not found", "world_id", worldID)
	}
	if w.OwnerID != requesterID {
		return nil, apperr.New(apperr.Unauthorized, "only the owner may update this world")
	}

	updated, err := u.worldRepo.Update(ctx, u.pool, worldID, name, public, description, data)
	if err != nil {
		return nil, apperr.Wrap(err, "update world")
	}
	u.Emit(WorldUpdateEvent{World: updated})
	return updated, nil
}

// DeleteWorld implements the DELETE /world/{id} route (§6): owner only,
// soft-delete per spec.md §9 "Soft deletion".
func (u *Universe) DeleteWorld(ctx context.Context, worldID, requesterID int64) error {
	w, err := u.worldRepo.GetByID(ctx, u.pool, worldID)
	if err != nil {
		return apperr.New(apperr.WorldNotFound, "world not found", "world_id", worldID)
	}
	if w.OwnerID != requesterID {
		return apperr.New(apperr.Unauthorized, "only the owner may delete this world")
	}
	if err := u.worldRepo.SoftDelete(ctx, u.pool, worldID); err != nil {
		return apperr.Wrap(err, "delete world")
	}
	w.Deleted = true
	u.Emit(WorldUpdateEvent{World: w})
	return nil
}

// CopyWorld implements the supplemented POST /world/{id}/copy route
// (SPEC_FULL.md §4 expansion): copies name/description/data into a new row
// owned by requesterID. A private world may only be copied by its owner.
func (u *Universe) CopyWorld(ctx context.Context, worldID, requesterID int64) (*store.World, error) {
	w, err := u.worldRepo.GetByID(ctx, u.pool, worldID)
	if err != nil {
		return nil, apperr.New(apperr.WorldNotFound, "world not found", "world_id", worldID)
	}
	if !w.Public && w.OwnerID != requesterID {
		return nil, apperr.New(apperr.Unauthorized, "cannot copy a private world you do not own")
	}

	created, err := u.worldRepo.Create(ctx, u.pool, w.Name, requesterID, false, w.Description, w.Data)
	if err != nil {
		return nil, apperr.Wrap(err, "copy world")
	}
	u.Emit(NewWorldEvent{World: created})
	return created, nil
}

// GetWorld applies the visibility rule (public or owner) and hides the row
// (as WorldNotFound) otherwise, same treatment as a soft-deleted row.
func (u *Universe) GetWorld(ctx context.Context, worldID int64, requesterID *int64) (*store.World, error) {
	w, err := u.worldRepo.GetByID(ctx, u.pool, worldID)
	if err != nil {
		return nil, apperr.New(apperr.WorldNotFound, "world not found", "world_id", worldID)
	}
	if !w.Public && (requesterID == nil || *requesterID != w.OwnerID) {
		return nil, apperr.New(apperr.WorldNotFound, "world not found", "world_id", worldID)
	}
	return w, nil
}

// GetWorlds is the paginated, visibility-filtered world list.
func (u *Universe) GetWorlds(ctx context.Context, filter store.WorldFilter) ([]*store.World, error) {
	return u.worldRepo.List(ctx, u.pool, filter)
}

// GameOut is a fully hydrated game: the row plus its roster, per spec.md
// §4.4 "return a fully hydrated GameOut".
type GameOut struct {
	Game    *store.Game
	Players []*store.GamePlayer
}

// CreateGame implements spec.md §4.4's create_game: a serializable
// transaction generating a random 4-char uppercase alphanumeric code,
// retried until it collides with no live (non-archived) game, seeding the
// new row from the world's initialState and joining the host as the sole
// non-spectator player.
func (u *Universe) CreateGame(ctx context.Context, hostID, worldID int64, name string, public bool, maxPlayers int) (*gamesys.GameSystem, *GameOut, error) {
	world, err := u.worldRepo.GetByID(ctx, u.pool, worldID)
	if err != nil {
		return nil, nil, apperr.New(apperr.WorldNotFound, "world not found", "world_id", worldID)
	}

	state, err := seedState(world.Data)
	if err != nil {
		return nil, nil, apperr.Wrap(err, "decode world initial state")
	}

	game, err := u.createGameRow(ctx, hostID, worldID, name, public, maxPlayers, state)
	if err != nil {
		return nil, nil, err
	}

	roster, err := u.playerRepo.ListByGame(ctx, u.pool, game.ID)
	if err != nil {
		return nil, nil, apperr.Wrap(err, "load roster")
	}

	gs, err := u.buildGameSystem(ctx, game, roster)
	if err != nil {
		return nil, nil, err
	}

	return gs, &GameOut{Game: game, Players: roster}, nil
}

// seedState extracts WorldInitialState.InitialState from a world's data
// column, defaulting to an empty object when data/initialState is absent.
func seedState(data json.RawMessage) (json.RawMessage, error) {
	var seed store.WorldInitialState
	if len(data) > 0 {
		if err := json.Unmarshal(data, &seed); err != nil {
			return nil, err
		}
	}
	if len(seed.InitialState) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return seed.InitialState, nil
}

// createGameRow runs the code-generation retry loop inside a serializable
// transaction, per spec.md §5: on a serialization failure the whole
// transaction (code check + insert) is retried with a fresh code, never
// patched in place. The loop has no attempt bound; it stops early only
// once ctx is done.
func (u *Universe) createGameRow(ctx context.Context, hostID, worldID int64, name string, public bool, maxPlayers int, state json.RawMessage) (*store.Game, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Wrap(err, "allocate game code")
		}
		code, err := randomCode()
		if err != nil {
			return nil, apperr.Wrap(err, "generate game code")
		}

		tx, err := u.beginner.BeginSerializable(ctx)
		if err != nil {
			return nil, apperr.Wrap(err, "begin transaction")
		}

		inUse, err := u.gameRepo.CodeInUse(ctx, tx, code)
		if err != nil {
			_ = tx.Rollback(ctx)
			return nil, apperr.Wrap(err, "check code uniqueness")
		}
		if inUse {
			_ = tx.Rollback(ctx)
			continue
		}

		game, err := u.gameRepo.CreateWithUniqueCode(ctx, tx, code, worldID, &hostID, name, public, maxPlayers, state)
		if err != nil {
			_ = tx.Rollback(ctx)
			if store.IsSerializationFailure(err) {
				continue
			}
			return nil, apperr.Wrap(err, "create game")
		}

		if _, err := u.playerRepo.Join(ctx, tx, game.ID, hostID, false); err != nil {
			_ = tx.Rollback(ctx)
			return nil, apperr.Wrap(err, "join host")
		}

		if err := tx.Commit(ctx); err != nil {
			if store.IsSerializationFailure(err) {
				continue
			}
			return nil, apperr.Wrap(err, "commit transaction")
		}

		return game, nil
	}
}

func randomCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, 4)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}

// RestartGame is the supplemented POST /game/{id}/restart route
// (SPEC_FULL.md §4 expansion): host-only, requires the old game to be
// finished. Creates a new game from the same world and the old game's
// settings, auto-joining every previously joined player (the requester
// lands as host). The old game is left archived-or-finished untouched.
func (u *Universe) RestartGame(ctx context.Context, oldGameID, requesterID int64) (*gamesys.GameSystem, *GameOut, error) {
	old, err := u.gameRepo.GetByID(ctx, u.pool, oldGameID)
	if err != nil {
		return nil, nil, apperr.New(apperr.GameNotFound, "game not found", "game_id", oldGameID)
	}
	if old.HostID == nil || *old.HostID != requesterID {
		return nil, nil, apperr.New(apperr.NotHost, "only the host can restart the game")
	}
	if old.Status != store.StatusFinished {
		return nil, nil, apperr.New(apperr.GameNotFinished, "game is not finished")
	}

	priorRoster, err := u.playerRepo.ListByGame(ctx, u.pool, oldGameID)
	if err != nil {
		return nil, nil, apperr.Wrap(err, "load prior roster")
	}

	gs, out, err := u.CreateGame(ctx, requesterID, old.WorldID, old.Name, old.Public, old.MaxPlayers)
	if err != nil {
		return nil, nil, err
	}

	for _, p := range priorRoster {
		if p.UserID == requesterID {
			continue
		}
		_ = gs.ConnectPlayer(ctx, u.pool, p.UserID)
	}

	roster, err := u.playerRepo.ListByGame(ctx, u.pool, out.Game.ID)
	if err != nil {
		return nil, nil, apperr.Wrap(err, "reload roster")
	}
	out.Players = roster
	return gs, out, nil
}

// GetOrLoadGameSystem returns the live GameSystem for gameID, loading it
// from the database and registering it (spec.md §9: "creates them on first
// access after load from the database") if it is not already live.
func (u *Universe) GetOrLoadGameSystem(ctx context.Context, gameID int64) (*gamesys.GameSystem, error) {
	key := gameRegistryKey(gameID)
	if gs, ok := system.Lookup[*gamesys.GameSystem]("game", key); ok {
		return gs, nil
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if gs, ok := system.Lookup[*gamesys.GameSystem]("game", key); ok {
		return gs, nil
	}

	game, err := u.gameRepo.GetByID(ctx, u.pool, gameID)
	if err != nil {
		return nil, apperr.New(apperr.GameNotFound, "game not found", "game_id", gameID)
	}
	roster, err := u.playerRepo.ListByGame(ctx, u.pool, gameID)
	if err != nil {
		return nil, apperr.Wrap(err, "load roster")
	}

	return u.buildGameSystemLocked(ctx, game, roster)
}

// buildGameSystem acquires the lock and builds+registers a freshly created
// game's GameSystem (CreateGame's caller already knows no prior system for
// this id can exist, since the id was just minted, but the lock is still
// taken to serialize against a concurrent GetOrLoadGameSystem).
func (u *Universe) buildGameSystem(ctx context.Context, game *store.Game, roster []*store.GamePlayer) (*gamesys.GameSystem, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.buildGameSystemLocked(ctx, game, roster)
}

func (u *Universe) buildGameSystemLocked(ctx context.Context, game *store.Game, roster []*store.GamePlayer) (*gamesys.GameSystem, error) {
	gs, err := gamesys.CreateNew(ctx, u.pool, u.pool, game, roster, u.chatRepo, u.messageRepo, u.playerRepo, u.gameRepo, u.kickAfter)
	if err != nil {
		return nil, err
	}

	u.addGamePipe(gs)
	u.gameIDs[game.ID] = struct{}{}
	return gs, nil
}

// addGamePipe forwards every event a GameSystem emits upward as a GameEvent,
// the Go shape of original_source/game/universe.py's per-game listen task
// that wraps each Game event into a UniverseGameEvent.
func (u *Universe) addGamePipe(gs *gamesys.GameSystem) {
	u.AddPipe(func() error {
		events, errc := gs.Listen()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				u.Emit(GameEvent{GameID: ev.GameID(), Inner: ev})
			case err, ok := <-errc:
				if !ok {
					return nil
				}
				return err
			}
		}
	})
}

func gameRegistryKey(gameID int64) string { return fmt.Sprintf("%d", gameID) }

// GetGame reads a game row, hiding it (GameNotFound) from a requester who
// cannot see it: public, host, or a roster member.
func (u *Universe) GetGame(ctx context.Context, gameID int64, requesterID *int64) (*GameOut, error) {
	game, err := u.gameRepo.GetByID(ctx, u.pool, gameID)
	if err != nil {
		return nil, apperr.New(apperr.GameNotFound, "game not found", "game_id", gameID)
	}
	roster, err := u.playerRepo.ListByGame(ctx, u.pool, gameID)
	if err != nil {
		return nil, apperr.Wrap(err, "load roster")
	}
	if !u.gameVisible(game, roster, requesterID) {
		return nil, apperr.New(apperr.GameNotFound, "game not found", "game_id", gameID)
	}
	return &GameOut{Game: game, Players: roster}, nil
}

// GetGameByCode reads a live (non-archived) game by its join code.
func (u *Universe) GetGameByCode(ctx context.Context, code string, requesterID *int64) (*GameOut, error) {
	game, err := u.gameRepo.GetByCode(ctx, u.pool, code)
	if err != nil {
		return nil, apperr.New(apperr.GameNotFound, "game not found", "code", code)
	}
	roster, err := u.playerRepo.ListByGame(ctx, u.pool, game.ID)
	if err != nil {
		return nil, apperr.Wrap(err, "load roster")
	}
	if !u.gameVisible(game, roster, requesterID) {
		return nil, apperr.New(apperr.GameNotFound, "game not found", "code", code)
	}
	return &GameOut{Game: game, Players: roster}, nil
}

func (u *Universe) gameVisible(game *store.Game, roster []*store.GamePlayer, requesterID *int64) bool {
	if game.Public {
		return true
	}
	if requesterID == nil {
		return false
	}
	if game.HostID != nil && *game.HostID == *requesterID {
		return true
	}
	for _, p := range roster {
		if p.UserID == *requesterID {
			return true
		}
	}
	return false
}

// GetGamesFilter narrows GetGames beyond store.GameFilter with the
// include_archived knob spec.md §4.4 names.
type GetGamesFilter struct {
	store.GameFilter
	IncludeArchived bool
}

// GetGames is the paginated, visibility- and status-filtered game list, each
// entry hydrated with its roster (store.GameListItem, read off
// game_players_agg_view) the same way a single GetGame is.
// When Status is unset and IncludeArchived is false, archived games are
// excluded from the result after the repository's visibility query runs.
func (u *Universe) GetGames(ctx context.Context, filter GetGamesFilter) ([]*GameOut, error) {
	items, err := u.gameRepo.List(ctx, u.pool, filter.GameFilter)
	if err != nil {
		return nil, err
	}
	out := make([]*GameOut, 0, len(items))
	for _, it := range items {
		if filter.Status == nil && !filter.IncludeArchived && it.Game.Status == store.StatusArchived {
			continue
		}
		out = append(out, &GameOut{Game: it.Game, Players: it.Players})
	}
	return out, nil
}

// Stop stops every GameSystem this process has loaded or created before
// stopping itself, per spec.md §4.4 "Shutdown".
func (u *Universe) Stop() {
	u.mu.Lock()
	ids := make([]int64, 0, len(u.gameIDs))
	for id := range u.gameIDs {
		ids = append(ids, id)
	}
	u.mu.Unlock()

	for _, id := range ids {
		if gs, ok := system.Lookup[*gamesys.GameSystem]("game", gameRegistryKey(id)); ok {
			gs.Stop()
		}
	}

	u.System.Stop()
}
