package gamesys

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/codingarctic/loreshifter-runtime/internal/apperr"
	"github.com/codingarctic/loreshifter-runtime/internal/chat"
	"github.com/codingarctic/loreshifter-runtime/internal/store"
	"github.com/codingarctic/loreshifter-runtime/internal/system"
)

const stateMessageLimit = 50

// playerState is the in-memory roster entry: the persisted row plus the
// player's owned chats (character_creation/game/advice), present only for
// non-spectators.
type playerState struct {
	row   *store.GamePlayer
	chats map[store.ChatType]*chat.ChatSystem
}

// GameSystem is the state machine of one game session, per spec.md §4.3.
// Mutating operations are exported as Lock-acquiring wrappers around an
// unexported *Locked twin; a *Locked method may call another *Locked method
// directly without re-acquiring mu, which is how reentrancy (start_game
// demoting players via make_spectator, a kick task re-entering during
// disconnect) is achieved without a true reentrant mutex primitive.
type GameSystem struct {
	*system.System[Event]

	id        int64
	worldID   int64
	pool      store.Querier
	kickAfter time.Duration

	gameRepo    store.GameRepository
	playerRepo  store.PlayerRepository
	chatRepo    store.ChatRepository
	messageRepo store.MessageRepository

	mu               sync.Mutex
	hostID           *int64
	name             string
	public           bool
	maxPlayers       int
	status           store.GameStatus
	createdAt        time.Time
	state            json.RawMessage
	numNonSpectators int

	players  map[int64]*playerState
	roomChat *chat.ChatSystem

	kickTimers map[int64]*time.Timer
}

// CreateNew builds a GameSystem from an already-persisted game row and its
// roster, loading/creating the room chat and every non-spectator's owned
// chats, per original_source/game/game.py's Game.__init__ plus
// app/game.py's per-player chat lazy-creation.
func CreateNew(
	ctx context.Context,
	q store.Querier,
	pool store.Querier,
	gameRow *store.Game,
	roster []*store.GamePlayer,
	chatRepo store.ChatRepository,
	messageRepo store.MessageRepository,
	playerRepo store.PlayerRepository,
	gameRepo store.GameRepository,
	kickAfter time.Duration,
) (*GameSystem, error) {
	roomChat, err := chat.CreateOrLoad(ctx, q, chatRepo, messageRepo, gameRow.ID, store.ChatRoom, nil, store.InterfaceFull)
	if err != nil {
		return nil, apperr.Wrap(err, "load room chat")
	}

	g := &GameSystem{
		System:      system.New[Event](fmt.Sprintf("game-%d", gameRow.ID)),
		id:          gameRow.ID,
		worldID:     gameRow.WorldID,
		pool:        pool,
		kickAfter:   kickAfter,
		gameRepo:    gameRepo,
		playerRepo:  playerRepo,
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		hostID:      gameRow.HostID,
		name:        gameRow.Name,
		public:      gameRow.Public,
		maxPlayers:  gameRow.MaxPlayers,
		status:      gameRow.Status,
		createdAt:   gameRow.CreatedAt,
		state:       gameRow.State,
		players:     make(map[int64]*playerState),
		roomChat:    roomChat,
		kickTimers:  make(map[int64]*time.Timer),
	}

	g.addChatPipe(roomChat, store.ChatRoom, nil)

	for _, p := range roster {
		g.players[p.UserID] = &playerState{row: p, chats: make(map[store.ChatType]*chat.ChatSystem)}
		if !p.IsSpectator {
			g.numNonSpectators++
		}
	}
	for _, p := range roster {
		if !p.IsSpectator {
			if err := g.updateChatsForPlayerLocked(ctx, q, p.UserID); err != nil {
				return nil, err
			}
		}
	}

	g.Emit(StatusEvent{baseEvent: newBase(g.id), NewStatus: g.status})
	system.Register("game", fmt.Sprintf("%d", g.id), g)
	return g, nil
}

// addChatPipe forwards every event a chat emits upward as a GameChatEvent,
// the same role original_source/game/game.py's forward_chat_events plays
// for the room chat, generalized here to every owned chat.
func (g *GameSystem) addChatPipe(cs *chat.ChatSystem, chatType store.ChatType, ownerID *int64) {
	g.AddPipe(func() error {
		events, errc := cs.Listen()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				g.Emit(ChatEvent{baseEvent: newBase(g.id), ChatType: chatType, OwnerID: ownerID, Inner: ev})
			case err, ok := <-errc:
				if !ok {
					return nil
				}
				return err
			}
		}
	})
}

var playerChatSpecs = []struct {
	kind  store.ChatType
	iface store.ChatInterfaceType
}{
	{store.ChatCharacterCreation, store.InterfaceFull},
	{store.ChatGame, store.InterfaceFull},
	{store.ChatAdvice, store.InterfaceForeign},
}

func (g *GameSystem) updateChatsForPlayerLocked(ctx context.Context, q store.Querier, playerID int64) error {
	ps, ok := g.players[playerID]
	if !ok {
		return nil
	}

	owner := playerID
	for _, spec := range playerChatSpecs {
		if _, exists := ps.chats[spec.kind]; exists {
			continue
		}
		cs, err := chat.CreateOrLoad(ctx, q, g.chatRepo, g.messageRepo, g.id, spec.kind, &owner, spec.iface)
		if err != nil {
			return apperr.Wrap(err, "load player chat")
		}
		ps.chats[spec.kind] = cs
		g.addChatPipe(cs, spec.kind, &owner)
	}
	return nil
}

func (g *GameSystem) teardownChatsForPlayerLocked(playerID int64) {
	ps, ok := g.players[playerID]
	if !ok {
		return
	}
	for t, cs := range ps.chats {
		cs.Stop()
		delete(ps.chats, t)
	}
}

// ID is the game's database id.
func (g *GameSystem) ID() int64 { return g.id }

// Status returns the game's current lifecycle status.
func (g *GameSystem) Status() store.GameStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// HostID returns the current host's user id, or nil if the game has none.
func (g *GameSystem) HostID() *int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hostID == nil {
		return nil
	}
	h := *g.hostID
	return &h
}

// GetPlayer returns a copy of one player's roster row.
func (g *GameSystem) GetPlayer(userID int64) (*store.GamePlayer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ps, ok := g.players[userID]
	if !ok {
		return nil, apperr.New(apperr.PlayerNotFound, "player not found", "player_id", userID)
	}
	row := *ps.row
	return &row, nil
}

// ListPlayers returns a snapshot of every roster row.
func (g *GameSystem) ListPlayers() []store.GamePlayer {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]store.GamePlayer, 0, len(g.players))
	for _, ps := range g.players {
		out = append(out, *ps.row)
	}
	return out
}

// ConnectPlayer implements spec.md §4.3's connect_player.
func (g *GameSystem) ConnectPlayer(ctx context.Context, q store.Querier, playerID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connectPlayerLocked(ctx, q, playerID)
}

func (g *GameSystem) connectPlayerLocked(ctx context.Context, q store.Querier, playerID int64) error {
	if ps, ok := g.players[playerID]; ok {
		if ps.row.IsJoined {
			return nil
		}
		if err := g.playerRepo.SetJoined(ctx, q, g.id, playerID, true); err != nil {
			return apperr.Wrap(err, "rejoin player")
		}
		ps.row.IsJoined = true
		g.cancelKickLocked(playerID)
		g.Emit(PlayerJoinedEvent{baseEvent: newBase(g.id), PlayerID: playerID})
		return nil
	}

	spectator := g.status != store.StatusWaiting || g.numNonSpectators >= g.maxPlayers

	row, err := g.playerRepo.Join(ctx, q, g.id, playerID, spectator)
	if err != nil {
		return apperr.Wrap(err, "join game")
	}

	ps := &playerState{row: row, chats: make(map[store.ChatType]*chat.ChatSystem)}
	g.players[playerID] = ps
	if !spectator {
		g.numNonSpectators++
		if err := g.updateChatsForPlayerLocked(ctx, q, playerID); err != nil {
			return err
		}
	}

	g.Emit(PlayerJoinedEvent{baseEvent: newBase(g.id), PlayerID: playerID})
	return nil
}

// DisconnectPlayer implements spec.md §4.3's disconnect_player. Only the
// host or the player themself may disconnect another.
func (g *GameSystem) DisconnectPlayer(ctx context.Context, q store.Querier, playerID int64, kickImmediately bool, requesterID *int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disconnectPlayerLocked(ctx, q, playerID, kickImmediately, requesterID)
}

func (g *GameSystem) disconnectPlayerLocked(ctx context.Context, q store.Querier, playerID int64, kickImmediately bool, requesterID *int64) error {
	ps, ok := g.players[playerID]
	if !ok {
		return apperr.New(apperr.PlayerNotInGame, "player not in game", "player_id", playerID)
	}
	if requesterID != nil && *requesterID != playerID && (g.hostID == nil || *g.hostID != *requesterID) {
		return apperr.New(apperr.Unauthorized, "only the host or the player themself may disconnect this player")
	}
	hostInitiated := requesterID != nil && *requesterID != playerID

	if ps.row.IsSpectator {
		if err := g.playerRepo.Remove(ctx, q, g.id, playerID); err != nil {
			return apperr.Wrap(err, "remove spectator")
		}
		delete(g.players, playerID)
		g.Emit(PlayerLeftEvent{baseEvent: newBase(g.id), PlayerID: playerID})
		return nil
	}

	if err := g.playerRepo.SetJoined(ctx, q, g.id, playerID, false); err != nil {
		return apperr.Wrap(err, "mark player left")
	}
	ps.row.IsJoined = false
	g.Emit(PlayerLeftEvent{baseEvent: newBase(g.id), PlayerID: playerID})

	if kickImmediately {
		g.cancelKickLocked(playerID)
		g.kickPlayerLocked(ctx, q, playerID, hostInitiated)
		return nil
	}

	g.scheduleKickLocked(playerID, hostInitiated)
	return nil
}

func (g *GameSystem) cancelKickLocked(playerID int64) {
	if t, ok := g.kickTimers[playerID]; ok {
		t.Stop()
		delete(g.kickTimers, playerID)
	}
}

// scheduleKickLocked arms a background timer that re-acquires the lock and
// runs the kick once the grace period elapses, using g.pool since no
// caller-supplied connection survives past this call's return.
func (g *GameSystem) scheduleKickLocked(playerID int64, hostInitiated bool) {
	g.cancelKickLocked(playerID)

	var timer *time.Timer
	timer = time.AfterFunc(g.kickAfter, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		current, ok := g.kickTimers[playerID]
		if !ok || current != timer {
			return
		}
		delete(g.kickTimers, playerID)
		g.kickPlayerLocked(context.Background(), g.pool, playerID, hostInitiated)
	})
	g.kickTimers[playerID] = timer
}

// kickPlayerLocked removes the roster row and performs the cascade: empty
// roster terminates the game, losing the host promotes the next joined
// player.
func (g *GameSystem) kickPlayerLocked(ctx context.Context, q store.Querier, playerID int64, hostInitiated bool) {
	ps, ok := g.players[playerID]
	if !ok || ps.row.IsJoined {
		return
	}

	wasHost := g.hostID != nil && *g.hostID == playerID

	if err := g.playerRepo.Remove(ctx, q, g.id, playerID); err != nil {
		return
	}

	if !ps.row.IsSpectator {
		g.numNonSpectators--
	}
	g.teardownChatsForPlayerLocked(playerID)
	delete(g.players, playerID)

	if hostInitiated {
		g.Emit(PlayerKickedEvent{baseEvent: newBase(g.id), PlayerID: playerID})
	}

	if len(g.players) == 0 {
		g.terminateLocked(ctx, q)
		return
	}

	if wasHost {
		g.promoteFirstRemainingLocked(ctx, q)
	}
}

func (g *GameSystem) promoteFirstRemainingLocked(ctx context.Context, q store.Querier) {
	var candidate *playerState
	for _, ps := range g.players {
		if !ps.row.IsJoined {
			continue
		}
		if candidate == nil || ps.row.JoinedAt.Before(candidate.row.JoinedAt) {
			candidate = ps
		}
	}
	if candidate == nil {
		g.terminateLocked(ctx, q)
		return
	}
	_ = g.makeHostLocked(ctx, q, candidate.row.UserID, nil)
}

// MakeSpectator implements spec.md §4.3's make_spectator.
func (g *GameSystem) MakeSpectator(ctx context.Context, q store.Querier, playerID int64, spectate bool, requesterID *int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.makeSpectatorLocked(ctx, q, playerID, spectate, requesterID)
}

func (g *GameSystem) makeSpectatorLocked(ctx context.Context, q store.Querier, playerID int64, spectate bool, requesterID *int64) error {
	ps, ok := g.players[playerID]
	if !ok {
		return apperr.New(apperr.PlayerNotInGame, "player not in game", "player_id", playerID)
	}
	if requesterID != nil && *requesterID != playerID && (g.hostID == nil || *g.hostID != *requesterID) {
		return apperr.New(apperr.Unauthorized, "only the host or the player themself may change spectator status")
	}
	if ps.row.IsSpectator == spectate {
		return nil
	}
	if !spectate && g.numNonSpectators >= g.maxPlayers {
		return apperr.New(apperr.GameFull, "promoting this spectator would exceed max_players")
	}

	if err := g.playerRepo.SetSpectator(ctx, q, g.id, playerID, spectate); err != nil {
		return apperr.Wrap(err, "update spectator flag")
	}
	ps.row.IsSpectator = spectate

	if spectate {
		g.numNonSpectators--
		g.teardownChatsForPlayerLocked(playerID)
	} else {
		g.numNonSpectators++
		if err := g.updateChatsForPlayerLocked(ctx, q, playerID); err != nil {
			return err
		}
	}

	g.Emit(PlayerSpectatorEvent{baseEvent: newBase(g.id), PlayerID: playerID, Spectator: spectate})
	return nil
}

// MakeHost implements spec.md §4.3's make_host. requesterID nil bypasses
// the host check, for system-initiated promotion during the kick cascade.
func (g *GameSystem) MakeHost(ctx context.Context, q store.Querier, newHostID int64, requesterID *int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.makeHostLocked(ctx, q, newHostID, requesterID)
}

func (g *GameSystem) makeHostLocked(ctx context.Context, q store.Querier, newHostID int64, requesterID *int64) error {
	if requesterID != nil && (g.hostID == nil || *g.hostID != *requesterID) {
		return apperr.New(apperr.NotHost, "only the host can transfer host")
	}
	if _, ok := g.players[newHostID]; !ok {
		return apperr.New(apperr.GameNewHostNotFound, "new host not found in roster", "player_id", newHostID)
	}

	var oldHost int64
	if g.hostID != nil {
		oldHost = *g.hostID
	}

	if err := g.gameRepo.UpdateHost(ctx, q, g.id, &newHostID); err != nil {
		return apperr.Wrap(err, "update host")
	}
	newHost := newHostID
	g.hostID = &newHost

	g.Emit(PlayerPromotedEvent{baseEvent: newBase(g.id), OldHost: oldHost, NewHost: newHostID})
	return nil
}

// UpdateSettings implements spec.md §4.3's update_settings: only while
// waiting, and max_players may not drop below the joined non-spectator
// count.
func (g *GameSystem) UpdateSettings(ctx context.Context, q store.Querier, public *bool, name *string, maxPlayers *int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.updateSettingsLocked(ctx, q, public, name, maxPlayers)
}

func (g *GameSystem) updateSettingsLocked(ctx context.Context, q store.Querier, public *bool, name *string, maxPlayers *int) error {
	if g.status != store.StatusWaiting {
		return apperr.New(apperr.GameAlreadyStarted, "game already started")
	}
	if maxPlayers != nil && *maxPlayers < g.numNonSpectators {
		return apperr.New(apperr.GameMaxPlayersTooSmall, "max_players cannot be less than joined non-spectators")
	}

	updated, err := g.gameRepo.UpdateSettings(ctx, q, g.id, name, public, maxPlayers)
	if err != nil {
		return apperr.Wrap(err, "update game settings")
	}
	g.name = updated.Name
	g.public = updated.Public
	g.maxPlayers = updated.MaxPlayers

	g.Emit(SettingsUpdateEvent{baseEvent: newBase(g.id), Public: g.public, Name: g.name, MaxPlayers: g.maxPlayers})
	return nil
}

// SetReady implements spec.md §4.3's set_ready: requires a character
// profile to already exist in the game's state JSON.
func (g *GameSystem) SetReady(ctx context.Context, q store.Querier, userID int64, ready bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.setReadyLocked(ctx, q, userID, ready)
}

func (g *GameSystem) setReadyLocked(ctx context.Context, q store.Querier, userID int64, ready bool) error {
	ps, ok := g.players[userID]
	if !ok || ps.row.IsSpectator {
		return apperr.New(apperr.PlayerNotInGame, "player not in game", "player_id", userID)
	}

	if ready {
		var state store.GameState
		if len(g.state) > 0 {
			if err := json.Unmarshal(g.state, &state); err != nil {
				return apperr.Wrap(err, "decode game state")
			}
		}
		if !state.HasCharacter(userID) {
			if cc, ok2 := ps.chats[store.ChatCharacterCreation]; ok2 {
				_, _ = cc.SendMessage(ctx, q, store.MessageGeneralInfo, "Create your character before readying up.", nil, nil, nil)
			}
			return apperr.New(apperr.CharacterNotReady, "character profile not ready", "player_id", userID)
		}
	}

	if err := g.playerRepo.SetReady(ctx, q, g.id, userID, ready); err != nil {
		return apperr.Wrap(err, "update ready flag")
	}
	ps.row.IsReady = ready

	g.Emit(PlayerReadyEvent{baseEvent: newBase(g.id), PlayerID: userID, Ready: ready})
	return nil
}

// StartGame implements spec.md §4.3's start_game.
func (g *GameSystem) StartGame(ctx context.Context, q store.Querier, force bool, requesterID *int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.startGameLocked(ctx, q, force, requesterID)
}

func (g *GameSystem) startGameLocked(ctx context.Context, q store.Querier, force bool, requesterID *int64) error {
	if g.status != store.StatusWaiting {
		return apperr.New(apperr.GameAlreadyStarted, "game already started")
	}
	if requesterID != nil && (g.hostID == nil || *g.hostID != *requesterID) {
		return apperr.New(apperr.NotHost, "only the host can start the game")
	}

	var notReady []int64
	for id, ps := range g.players {
		if ps.row.IsJoined && !ps.row.IsSpectator && !ps.row.IsReady {
			notReady = append(notReady, id)
		}
	}

	if len(notReady) > 0 {
		if !force {
			return apperr.New(apperr.PlayerNotReady, "not every player is ready", "player_ids", notReady)
		}
		for _, id := range notReady {
			if err := g.makeSpectatorLocked(ctx, q, id, true, nil); err != nil {
				return err
			}
		}
	}

	if err := g.gameRepo.UpdateStatus(ctx, q, g.id, store.StatusPlaying); err != nil {
		return apperr.Wrap(err, "update game status")
	}
	g.status = store.StatusPlaying
	g.Emit(StatusEvent{baseEvent: newBase(g.id), NewStatus: store.StatusPlaying})
	return nil
}

// SetFinished is the one integration point the core exposes for an
// out-of-scope game-loop task to move a game from playing to finished; it
// does not implement game-loop scheduling itself.
func (g *GameSystem) SetFinished(ctx context.Context, q store.Querier) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != store.StatusPlaying {
		return apperr.New(apperr.GameAlreadyStarted, "game is not playing")
	}
	if err := g.gameRepo.UpdateStatus(ctx, q, g.id, store.StatusFinished); err != nil {
		return apperr.Wrap(err, "update game status")
	}
	g.status = store.StatusFinished
	g.Emit(StatusEvent{baseEvent: newBase(g.id), NewStatus: store.StatusFinished})
	return nil
}

// Terminate implements spec.md §4.3's terminate: idempotent, disconnects
// every player (triggering the same per-player kick/cleanup as a normal
// disconnect), then archives.
func (g *GameSystem) Terminate(ctx context.Context, q store.Querier) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.terminateLocked(ctx, q)
}

func (g *GameSystem) terminateLocked(ctx context.Context, q store.Querier) error {
	if g.status == store.StatusArchived {
		return nil
	}
	// Set up front: kickPlayerLocked may recurse into terminateLocked when
	// the roster empties mid-loop, and this guard makes that recursion a
	// no-op instead of double-archiving and double-emitting.
	g.status = store.StatusArchived

	for playerID := range g.players {
		g.cancelKickLocked(playerID)
		_ = g.disconnectPlayerLocked(ctx, q, playerID, true, nil)
	}

	if err := g.gameRepo.UpdateStatus(ctx, q, g.id, store.StatusArchived); err != nil {
		return apperr.Wrap(err, "archive game")
	}
	g.Emit(StatusEvent{baseEvent: newBase(g.id), NewStatus: store.StatusArchived})
	return nil
}

// PlayerChats is the last-N-messages window for one non-spectator's owned
// chats, included in get_state once the game has left waiting.
type PlayerChats struct {
	GameMessages   []*store.Message `json:"game_messages,omitempty"`
	AdviceMessages []*store.Message `json:"advice_messages,omitempty"`
}

// StateOut is the snapshot get_state returns.
type StateOut struct {
	GameID                    int64                `json:"game_id"`
	Status                    store.GameStatus     `json:"status"`
	State                     json.RawMessage      `json:"state"`
	RoomMessages              []*store.Message     `json:"room_messages,omitempty"`
	CharacterCreationMessages []*store.Message     `json:"character_creation_messages,omitempty"`
	PlayerChats               map[int64]PlayerChats `json:"player_chats,omitempty"`
}

// GetState implements spec.md §4.3's get_state.
func (g *GameSystem) GetState(requesterID int64) (*StateOut, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ps, ok := g.players[requesterID]
	if !ok || !ps.row.IsJoined {
		return nil, apperr.New(apperr.PlayerNotInGame, "player not in game", "player_id", requesterID)
	}

	roomPage, err := g.roomChat.GetMessages(stateMessageLimit, nil, nil)
	if err != nil {
		return nil, err
	}

	out := &StateOut{
		GameID:       g.id,
		Status:       g.status,
		State:        g.state,
		RoomMessages: roomPage.Messages,
	}

	if cc, ok2 := ps.chats[store.ChatCharacterCreation]; ok2 {
		page, err := cc.GetMessages(stateMessageLimit, nil, nil)
		if err != nil {
			return nil, err
		}
		out.CharacterCreationMessages = page.Messages
	}

	if g.status != store.StatusWaiting {
		out.PlayerChats = make(map[int64]PlayerChats)
		for id, p := range g.players {
			if p.row.IsSpectator {
				continue
			}
			var pc PlayerChats
			if cs, ok2 := p.chats[store.ChatGame]; ok2 {
				page, err := cs.GetMessages(stateMessageLimit, nil, nil)
				if err != nil {
					return nil, err
				}
				pc.GameMessages = page.Messages
			}
			if cs, ok2 := p.chats[store.ChatAdvice]; ok2 {
				page, err := cs.GetMessages(stateMessageLimit, nil, nil)
				if err != nil {
					return nil, err
				}
				pc.AdviceMessages = page.Messages
			}
			out.PlayerChats[id] = pc
		}
	}

	return out, nil
}

// SendMessage implements spec.md §4.3's send_message: looks the chat up
// among this game's owned chats, enforces ownership/interface/membership
// rules, then delegates to the ChatSystem.
func (g *GameSystem) SendMessage(
	ctx context.Context,
	q store.Querier,
	senderID, chatID int64,
	kind store.MessageKind,
	text string,
	special *string,
	metadata json.RawMessage,
) (chat.MessageOutWithNeighbors, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sender, ok := g.players[senderID]
	if !ok || !sender.row.IsJoined {
		return chat.MessageOutWithNeighbors{}, apperr.New(apperr.PlayerNotInGame, "player not in game", "player_id", senderID)
	}

	target := g.findChatLocked(chatID)
	if target == nil {
		return chat.MessageOutWithNeighbors{}, apperr.New(apperr.ChatNotFound, "chat not found", "chat_id", chatID)
	}

	ownerID := target.OwnerID()
	isHost := g.hostID != nil && *g.hostID == senderID
	if ownerID != nil && *ownerID != senderID && !isHost {
		return chat.MessageOutWithNeighbors{}, apperr.New(apperr.CannotAccessChat, "cannot access chat", "chat_id", chatID)
	}
	if !isWritable(target.InterfaceType()) {
		return chat.MessageOutWithNeighbors{}, apperr.New(apperr.CannotAccessChat, "chat is not writable", "chat_id", chatID)
	}

	return target.SendMessage(ctx, q, kind, text, &senderID, special, metadata)
}

func isWritable(t store.ChatInterfaceType) bool {
	return t != store.InterfaceReadonly
}

// GetChatSegment implements spec.md §4.3's get_messages as seen through a
// game: the same ownership check SendMessage applies, without the
// writability requirement, so a readonly chat can still be read by its
// owner or the host.
func (g *GameSystem) GetChatSegment(requesterID, chatID int64, limit int, before, after *int64) (*chat.ChatSegmentOut, error) {
	g.mu.Lock()
	requester, ok := g.players[requesterID]
	if !ok || !requester.row.IsJoined {
		g.mu.Unlock()
		return nil, apperr.New(apperr.PlayerNotInGame, "player not in game", "player_id", requesterID)
	}

	target := g.findChatLocked(chatID)
	if target == nil {
		g.mu.Unlock()
		return nil, apperr.New(apperr.ChatNotFound, "chat not found", "chat_id", chatID)
	}

	ownerID := target.OwnerID()
	isHost := g.hostID != nil && *g.hostID == requesterID
	g.mu.Unlock()

	if ownerID != nil && *ownerID != requesterID && !isHost {
		return nil, apperr.New(apperr.CannotAccessChat, "cannot access chat", "chat_id", chatID)
	}

	return target.GetMessages(limit, before, after)
}

func (g *GameSystem) findChatLocked(chatID int64) *chat.ChatSystem {
	if g.roomChat.ID() == chatID {
		return g.roomChat
	}
	for _, ps := range g.players {
		for _, cs := range ps.chats {
			if cs.ID() == chatID {
				return cs
			}
		}
	}
	return nil
}

// Stop cancels every kick timer, stops every owned chat, then stops the
// GameSystem itself — the Go shape of original_source/game/game.py's
// Game.stop, which stops room_chat before calling super().stop().
func (g *GameSystem) Stop() {
	g.mu.Lock()
	for _, t := range g.kickTimers {
		t.Stop()
	}
	g.kickTimers = make(map[int64]*time.Timer)
	for _, ps := range g.players {
		for _, cs := range ps.chats {
			cs.Stop()
		}
	}
	g.roomChat.Stop()
	g.mu.Unlock()

	system.Deregister("game", fmt.Sprintf("%d", g.id))
	g.System.Stop()
}
