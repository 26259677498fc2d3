// Package store is the persistence layer: pgx/v5-backed repositories for the
// six tables named in spec.md §3, following the teacher's
// interface-plus-postgres-struct shape (database.UserRepository /
// postgresUserRepo in CodingArctic-golf-card-game/database/data_access.go),
// generalized from the card game's two tables to the full session schema.
package store

import (
	"encoding/json"
	"strconv"
	"time"
)

// GameStatus is the closed set of lifecycle states a Game can be in.
type GameStatus string

const (
	StatusWaiting  GameStatus = "waiting"
	StatusPlaying  GameStatus = "playing"
	StatusFinished GameStatus = "finished"
	StatusArchived GameStatus = "archived"
)

// ChatType distinguishes the four logical chat channels a game owns.
type ChatType string

const (
	ChatRoom               ChatType = "room"
	ChatCharacterCreation  ChatType = "character_creation"
	ChatGame               ChatType = "game"
	ChatAdvice             ChatType = "advice"
)

// ChatInterfaceType controls who may write to a chat and under what timing.
type ChatInterfaceType string

const (
	InterfaceReadonly     ChatInterfaceType = "readonly"
	InterfaceForeign      ChatInterfaceType = "foreign"
	InterfaceFull         ChatInterfaceType = "full"
	InterfaceTimed        ChatInterfaceType = "timed"
	InterfaceForeignTimed ChatInterfaceType = "foreign_timed"
)

// MessageKind distinguishes player chat from system/narrative message types.
type MessageKind string

const (
	MessagePlayer             MessageKind = "player"
	MessageSystem             MessageKind = "system"
	MessageCharacterCreation  MessageKind = "character_creation"
	MessageGeneralInfo        MessageKind = "general_info"
	MessagePublicInfo         MessageKind = "public_info"
	MessagePrivateInfo        MessageKind = "private_info"
)

// User mirrors the `users` table.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Deleted   bool      `json:"deleted"`
}

// World mirrors the `worlds` table.
type World struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	OwnerID       int64           `json:"owner_id"`
	Public        bool            `json:"public"`
	Description   *string         `json:"description,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	LastUpdatedAt time.Time       `json:"last_updated_at"`
	Deleted       bool            `json:"deleted"`
}

// WorldInitialState is the typed subset of World.Data the core reads: the
// seed state copied into a new game's `state` column on creation.
type WorldInitialState struct {
	InitialState json.RawMessage `json:"initialState"`
}

// Game mirrors the `games` table.
type Game struct {
	ID         int64           `json:"id"`
	Code       string          `json:"code"`
	WorldID    int64           `json:"world_id"`
	HostID     *int64          `json:"host_id,omitempty"`
	Name       string          `json:"name"`
	Public     bool            `json:"public"`
	MaxPlayers int             `json:"max_players"`
	Status     GameStatus      `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	State      json.RawMessage `json:"state,omitempty"`
}

// GameState is the typed subset of Game.State the core needs to read: per
// spec.md §9 "Free-form state JSON", richer LLM state stays opaque.
type GameState struct {
	Characters map[string]json.RawMessage `json:"characters,omitempty"`
}

// HasCharacter reports whether a player's character profile has been
// recorded yet (gates set_ready's CharacterNotReady check, spec.md §4.3).
func (s GameState) HasCharacter(userID int64) bool {
	_, ok := s.Characters[strconv.FormatInt(userID, 10)]
	return ok
}

// GamePlayer mirrors the `game_players` table. Composite key (GameID, UserID).
type GamePlayer struct {
	GameID      int64     `json:"game_id"`
	UserID      int64     `json:"user_id"`
	IsReady     bool      `json:"is_ready"`
	IsSpectator bool      `json:"is_spectator"`
	IsJoined    bool      `json:"is_joined"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Chat mirrors the `chats` table.
type Chat struct {
	ID            int64             `json:"id"`
	GameID        int64             `json:"game_id"`
	ChatType      ChatType          `json:"chat_type"`
	OwnerID       *int64            `json:"owner_id,omitempty"`
	InterfaceType ChatInterfaceType `json:"interface_type"`
	Deadline      *time.Time        `json:"deadline,omitempty"`
}

// Message mirrors the `messages` table.
type Message struct {
	ID       int64           `json:"id"`
	ChatID   int64           `json:"chat_id"`
	SenderID *int64          `json:"sender_id,omitempty"`
	Kind     MessageKind     `json:"kind"`
	Text     string          `json:"text"`
	Special  *string         `json:"special,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	SentAt   time.Time       `json:"sent_at"`
}
