package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// FakeStore is an in-memory stand-in for the Postgres repositories, used by
// internal/chat, internal/gamesys, and internal/universe package tests per
// SPEC_FULL.md's test-tooling expansion. It holds all entity state behind
// one mutex; Users()/Worlds()/Games()/Players()/Chats()/Messages() return
// thin adapters satisfying the matching *Repository interface, since
// several of those interfaces share a method name (GetByID) and so cannot
// all be implemented directly by a single concrete type. The ctx/q
// parameters those interfaces carry for the Postgres implementations are
// accepted but ignored — tests pass a nil Querier.
type FakeStore struct {
	mu sync.Mutex

	users    map[int64]*User
	worlds   map[int64]*World
	games    map[int64]*Game
	players  map[[2]int64]*GamePlayer
	chats    map[int64]*Chat
	messages map[int64]*Message

	nextUser, nextWorld, nextGame, nextChat, nextMessage int64
}

// NewFakeStore returns an empty FakeStore ready for use.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		users:    make(map[int64]*User),
		worlds:   make(map[int64]*World),
		games:    make(map[int64]*Game),
		players:  make(map[[2]int64]*GamePlayer),
		chats:    make(map[int64]*Chat),
		messages: make(map[int64]*Message),
	}
}

// BeginSerializable satisfies Beginner with a no-op transaction: every fake
// repository method already locks FakeStore.mu per call and ignores the q
// parameter, so there is no real snapshot isolation to emulate — the first
// attempt of any retry loop run against a FakeStore always succeeds.
func (s *FakeStore) BeginSerializable(ctx context.Context) (Tx, error) {
	return fakeTx{}, nil
}

type fakeTx struct{}

func (fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) { return nil, nil }
func (fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row        { return nil }
func (fakeTx) Commit(ctx context.Context) error                                     { return nil }
func (fakeTx) Rollback(ctx context.Context) error                                   { return nil }

func (s *FakeStore) Users() UserRepository     { return fakeUserRepo{s} }
func (s *FakeStore) Worlds() WorldRepository   { return fakeWorldRepo{s} }
func (s *FakeStore) Games() GameRepository     { return fakeGameRepo{s} }
func (s *FakeStore) Players() PlayerRepository { return fakePlayerRepo{s} }
func (s *FakeStore) Chats() ChatRepository     { return fakeChatRepo{s} }
func (s *FakeStore) Messages() MessageRepository {
	return fakeMessageRepo{s}
}

// --- users ---

type fakeUserRepo struct{ s *FakeStore }

func (r fakeUserRepo) Create(ctx context.Context, q Querier, name string, email *string) (*User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUser++
	u := &User{ID: s.nextUser, Name: name, Email: email, CreatedAt: time.Now()}
	s.users[u.ID] = u
	return u, nil
}

func (r fakeUserRepo) GetByID(ctx context.Context, q Querier, id int64) (*User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.Deleted {
		return nil, fmt.Errorf("user %d not found", id)
	}
	return u, nil
}

func (r fakeUserRepo) SoftDelete(ctx context.Context, q Querier, id int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %d not found", id)
	}
	u.Deleted = true
	return nil
}

// --- worlds ---

type fakeWorldRepo struct{ s *FakeStore }

func (r fakeWorldRepo) Create(ctx context.Context, q Querier, name string, ownerID int64, public bool, description *string, data json.RawMessage) (*World, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextWorld++
	if data == nil {
		data = defaultWorldData
	}
	now := time.Now()
	w := &World{ID: s.nextWorld, Name: name, OwnerID: ownerID, Public: public, Description: description, Data: data, CreatedAt: now, LastUpdatedAt: now}
	s.worlds[w.ID] = w
	return w, nil
}

func (r fakeWorldRepo) Update(ctx context.Context, q Querier, id int64, name *string, public *bool, description *string, data json.RawMessage) (*World, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.worlds[id]
	if !ok || w.Deleted {
		return nil, fmt.Errorf("world %d not found", id)
	}
	if name != nil {
		w.Name = *name
	}
	if public != nil {
		w.Public = *public
	}
	if description != nil {
		w.Description = description
	}
	if data != nil {
		w.Data = data
	}
	w.LastUpdatedAt = time.Now()
	return w, nil
}

func (r fakeWorldRepo) SoftDelete(ctx context.Context, q Querier, id int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.worlds[id]
	if !ok {
		return fmt.Errorf("world %d not found", id)
	}
	w.Deleted = true
	return nil
}

func (r fakeWorldRepo) GetByID(ctx context.Context, q Querier, id int64) (*World, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.worlds[id]
	if !ok || w.Deleted {
		return nil, fmt.Errorf("world %d not found", id)
	}
	return w, nil
}

func (r fakeWorldRepo) List(ctx context.Context, q Querier, filter WorldFilter) ([]*World, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var requester int64 = -1
	if filter.RequesterID != nil {
		requester = *filter.RequesterID
	}

	var out []*World
	for _, w := range s.worlds {
		if w.Deleted {
			continue
		}
		if w.Public || w.OwnerID == requester {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.Sort == Desc {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return paginate(out, filter.Offset, filter.Limit), nil
}

// --- games ---

type fakeGameRepo struct{ s *FakeStore }

func (r fakeGameRepo) CreateWithUniqueCode(ctx context.Context, q Querier, code string, worldID int64, hostID *int64, name string, public bool, maxPlayers int, state []byte) (*Game, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextGame++
	g := &Game{
		ID: s.nextGame, Code: code, WorldID: worldID, HostID: hostID, Name: name,
		Public: public, MaxPlayers: maxPlayers, Status: StatusWaiting,
		CreatedAt: time.Now(), State: state,
	}
	s.games[g.ID] = g
	return g, nil
}

func (r fakeGameRepo) CodeInUse(ctx context.Context, q Querier, code string) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.games {
		if g.Code == code && g.Status != StatusArchived {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeGameRepo) GetByID(ctx context.Context, q Querier, id int64) (*Game, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return nil, fmt.Errorf("game %d not found", id)
	}
	return g, nil
}

func (r fakeGameRepo) GetByCode(ctx context.Context, q Querier, code string) (*Game, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.games {
		if g.Code == code && g.Status != StatusArchived {
			return g, nil
		}
	}
	return nil, fmt.Errorf("game with code %q not found", code)
}

func (r fakeGameRepo) UpdateStatus(ctx context.Context, q Querier, id int64, status GameStatus) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return fmt.Errorf("game %d not found", id)
	}
	g.Status = status
	return nil
}

func (r fakeGameRepo) UpdateHost(ctx context.Context, q Querier, id int64, hostID *int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return fmt.Errorf("game %d not found", id)
	}
	g.HostID = hostID
	return nil
}

func (r fakeGameRepo) UpdateSettings(ctx context.Context, q Querier, id int64, name *string, public *bool, maxPlayers *int) (*Game, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return nil, fmt.Errorf("game %d not found", id)
	}
	if name != nil {
		g.Name = *name
	}
	if public != nil {
		g.Public = *public
	}
	if maxPlayers != nil {
		g.MaxPlayers = *maxPlayers
	}
	return g, nil
}

func (r fakeGameRepo) UpdateState(ctx context.Context, q Querier, id int64, state []byte) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return fmt.Errorf("game %d not found", id)
	}
	g.State = state
	return nil
}

// List mirrors postgresGameRepo.List's visibility rule (public, host, or any
// game_players row for the requester regardless of join status) and attaches
// each game's roster, the fake's stand-in for joining game_players_agg_view.
func (r fakeGameRepo) List(ctx context.Context, q Querier, filter GameFilter) ([]*GameListItem, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var requester int64 = -1
	if filter.RequesterID != nil {
		requester = *filter.RequesterID
	}

	var out []*Game
	for _, g := range s.games {
		visible := g.Public || (g.HostID != nil && *g.HostID == requester)
		if !visible {
			if _, ok := s.players[[2]int64{g.ID, requester}]; ok {
				visible = true
			}
		}
		if !visible {
			continue
		}
		if filter.Status != nil && g.Status != *filter.Status {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.Sort == Desc {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	out = paginate(out, filter.Offset, filter.Limit)

	items := make([]*GameListItem, 0, len(out))
	for _, g := range out {
		var roster []*GamePlayer
		for _, p := range s.players {
			if p.GameID == g.ID {
				roster = append(roster, p)
			}
		}
		sort.Slice(roster, func(i, j int) bool { return roster[i].JoinedAt.Before(roster[j].JoinedAt) })
		items = append(items, &GameListItem{Game: g, Players: roster})
	}
	return items, nil
}

// --- players ---

type fakePlayerRepo struct{ s *FakeStore }

func (r fakePlayerRepo) Join(ctx context.Context, q Querier, gameID, userID int64, spectator bool) (*GamePlayer, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int64{gameID, userID}
	if p, ok := s.players[key]; ok {
		p.IsJoined = true
		p.IsSpectator = spectator
		p.JoinedAt = time.Now()
		return p, nil
	}
	p := &GamePlayer{GameID: gameID, UserID: userID, IsSpectator: spectator, IsJoined: true, JoinedAt: time.Now()}
	s.players[key] = p
	return p, nil
}

func (r fakePlayerRepo) SetReady(ctx context.Context, q Querier, gameID, userID int64, ready bool) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[[2]int64{gameID, userID}]
	if !ok {
		return fmt.Errorf("player %d/%d not found", gameID, userID)
	}
	p.IsReady = ready
	return nil
}

func (r fakePlayerRepo) SetSpectator(ctx context.Context, q Querier, gameID, userID int64, spectator bool) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[[2]int64{gameID, userID}]
	if !ok {
		return fmt.Errorf("player %d/%d not found", gameID, userID)
	}
	p.IsSpectator = spectator
	return nil
}

func (r fakePlayerRepo) SetJoined(ctx context.Context, q Querier, gameID, userID int64, joined bool) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[[2]int64{gameID, userID}]
	if !ok {
		return fmt.Errorf("player %d/%d not found", gameID, userID)
	}
	p.IsJoined = joined
	return nil
}

func (r fakePlayerRepo) Remove(ctx context.Context, q Querier, gameID, userID int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, [2]int64{gameID, userID})
	return nil
}

func (r fakePlayerRepo) Get(ctx context.Context, q Querier, gameID, userID int64) (*GamePlayer, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[[2]int64{gameID, userID}]
	if !ok {
		return nil, fmt.Errorf("player %d/%d not found", gameID, userID)
	}
	return p, nil
}

func (r fakePlayerRepo) ListByGame(ctx context.Context, q Querier, gameID int64) ([]*GamePlayer, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*GamePlayer
	for key, p := range s.players {
		if key[0] == gameID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

// --- chats ---

type fakeChatRepo struct{ s *FakeStore }

func (r fakeChatRepo) GetOrCreate(ctx context.Context, q Querier, gameID int64, chatType ChatType, ownerID *int64, interfaceType ChatInterfaceType) (*Chat, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chats {
		if c.GameID == gameID && c.ChatType == chatType && ptrEqual(c.OwnerID, ownerID) {
			return c, nil
		}
	}
	s.nextChat++
	c := &Chat{ID: s.nextChat, GameID: gameID, ChatType: chatType, OwnerID: ownerID, InterfaceType: interfaceType}
	s.chats[c.ID] = c
	return c, nil
}

func (r fakeChatRepo) GetByID(ctx context.Context, q Querier, id int64) (*Chat, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, fmt.Errorf("chat %d not found", id)
	}
	return c, nil
}

func ptrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// --- messages ---

type fakeMessageRepo struct{ s *FakeStore }

func (r fakeMessageRepo) Send(ctx context.Context, q Querier, chatID int64, senderID *int64, kind MessageKind, text string, special *string, metadata json.RawMessage) (*Message, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMessage++
	m := &Message{ID: s.nextMessage, ChatID: chatID, SenderID: senderID, Kind: kind, Text: text, Special: special, Metadata: metadata, SentAt: time.Now()}
	s.messages[m.ID] = m
	return m, nil
}

func (r fakeMessageRepo) Edit(ctx context.Context, q Querier, id int64, text string, special *string, metadata json.RawMessage) (*Message, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %d not found", id)
	}
	m.Text = text
	m.Special = special
	m.Metadata = metadata
	return m, nil
}

func (r fakeMessageRepo) Delete(ctx context.Context, q Querier, id int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return fmt.Errorf("message %d not found", id)
	}
	delete(s.messages, id)
	return nil
}

func (r fakeMessageRepo) GetByID(ctx context.Context, q Querier, id int64) (*Message, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %d not found", id)
	}
	return m, nil
}

func (r fakeMessageRepo) GetMessages(ctx context.Context, q Querier, chatID int64, before, after *int64, limit int) (*MessagePage, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*Message
	for _, m := range s.messages {
		if m.ChatID == chatID {
			all = append(all, m)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	var window []*Message
	switch {
	case before != nil:
		for i := len(all) - 1; i >= 0 && len(window) < limit; i-- {
			if all[i].ID < *before {
				window = append([]*Message{all[i]}, window...)
			}
		}
	case after != nil:
		for _, m := range all {
			if m.ID > *after {
				window = append(window, m)
				if len(window) == limit {
					break
				}
			}
		}
	default:
		start := len(all) - limit
		if start < 0 {
			start = 0
		}
		window = all[start:]
	}

	page := &MessagePage{Messages: window}
	if len(window) > 0 {
		first, last := window[0].ID, window[len(window)-1].ID
		page.PreviousID = &first
		page.NextID = &last
	}
	return page, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
