// Package gamesys implements GameSystem: the state machine of one game
// session, per spec.md §4.3. Grounded on original_source/game/game.py (the
// System[GameEvent] shape, the room-chat pipe) and original_source/app/game.py
// (the operation set and preconditions exercised by the HTTP layer).
package gamesys

import (
	"encoding/json"

	"github.com/codingarctic/loreshifter-runtime/internal/chat"
	"github.com/codingarctic/loreshifter-runtime/internal/store"
)

// Event is the closed set of things a GameSystem emits, all carrying game_id.
// WireType reports the literal event-name string the WebSocket layer puts in
// a frame's "type" field — grounded on original_source/game/game.py's event
// class names (type(ev).__name__), which spec.md §4.3/§6 carries over
// verbatim even though this package's own Go type names drop the "Game"/
// "Player" stutter a Go linter would flag on gamesys.GameStatusEvent.
type Event interface {
	GameID() int64
	WireType() string
}

type baseEvent struct {
	gameID int64
}

func (e baseEvent) GameID() int64 { return e.gameID }

func newBase(gameID int64) baseEvent { return baseEvent{gameID: gameID} }

// StatusEvent fires on every status transition, including the initial
// waiting status at creation and the terminal archived status.
type StatusEvent struct {
	baseEvent
	NewStatus store.GameStatus `json:"new_status"`
}

// WireType reports "GameStatusEvent", per spec.md §4.3's event name.
func (StatusEvent) WireType() string { return "GameStatusEvent" }

// MarshalJSON flattens game_id alongside the event's own fields, matching
// spec.md §8's literal example payload shape.
func (e StatusEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		GameID    int64            `json:"game_id"`
		NewStatus store.GameStatus `json:"new_status"`
	}{e.gameID, e.NewStatus})
}

// SettingsUpdateEvent fires after update_settings.
type SettingsUpdateEvent struct {
	baseEvent
	Public     bool
	Name       string
	MaxPlayers int
}

// WireType reports "GameSettingsUpdateEvent", per spec.md §4.3.
func (SettingsUpdateEvent) WireType() string { return "GameSettingsUpdateEvent" }

func (e SettingsUpdateEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		GameID     int64  `json:"game_id"`
		Public     bool   `json:"public"`
		Name       string `json:"name"`
		MaxPlayers int    `json:"max_players"`
	}{e.gameID, e.Public, e.Name, e.MaxPlayers})
}

// ChatEvent wraps a chat-level event forwarded up from one of this game's
// owned ChatSystems.
type ChatEvent struct {
	baseEvent
	ChatType store.ChatType
	OwnerID  *int64
	Inner    chat.Event
}

// WireType reports "GameChatEvent", per spec.md §4.3.
func (ChatEvent) WireType() string { return "GameChatEvent" }

func (e ChatEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		GameID   int64          `json:"game_id"`
		ChatID   int64          `json:"chat_id"`
		ChatType store.ChatType `json:"chat_type"`
		OwnerID  *int64         `json:"owner_id,omitempty"`
		Inner    chat.Event     `json:"inner"`
	}{e.gameID, e.Inner.ChatID(), e.ChatType, e.OwnerID, e.Inner})
}

// PlayerJoinedEvent fires when a new roster row is created or a previously
// disconnected player reconnects.
type PlayerJoinedEvent struct {
	baseEvent
	PlayerID int64
}

func (PlayerJoinedEvent) WireType() string { return "PlayerJoinedEvent" }

func (e PlayerJoinedEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		GameID   int64 `json:"game_id"`
		PlayerID int64 `json:"player_id"`
	}{e.gameID, e.PlayerID})
}

// PlayerLeftEvent fires when is_joined flips false, whether by self-leave,
// unattributable timeout, or as the first half of a host-initiated kick.
type PlayerLeftEvent struct {
	baseEvent
	PlayerID int64
}

func (PlayerLeftEvent) WireType() string { return "PlayerLeftEvent" }

func (e PlayerLeftEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		GameID   int64 `json:"game_id"`
		PlayerID int64 `json:"player_id"`
	}{e.gameID, e.PlayerID})
}

// PlayerKickedEvent additionally fires, instead of a second PlayerLeftEvent,
// when the kick task actually removes the roster row and the departure was
// host-initiated.
type PlayerKickedEvent struct {
	baseEvent
	PlayerID int64
}

func (PlayerKickedEvent) WireType() string { return "PlayerKickedEvent" }

func (e PlayerKickedEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		GameID   int64 `json:"game_id"`
		PlayerID int64 `json:"player_id"`
	}{e.gameID, e.PlayerID})
}

// PlayerPromotedEvent fires after make_host.
type PlayerPromotedEvent struct {
	baseEvent
	OldHost int64
	NewHost int64
}

func (PlayerPromotedEvent) WireType() string { return "PlayerPromotedEvent" }

func (e PlayerPromotedEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		GameID  int64 `json:"game_id"`
		OldHost int64 `json:"old_host"`
		NewHost int64 `json:"new_host"`
	}{e.gameID, e.OldHost, e.NewHost})
}

// PlayerReadyEvent fires after set_ready.
type PlayerReadyEvent struct {
	baseEvent
	PlayerID int64
	Ready    bool
}

func (PlayerReadyEvent) WireType() string { return "PlayerReadyEvent" }

func (e PlayerReadyEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		GameID   int64 `json:"game_id"`
		PlayerID int64 `json:"player_id"`
		Ready    bool  `json:"ready"`
	}{e.gameID, e.PlayerID, e.Ready})
}

// PlayerSpectatorEvent fires after make_spectator.
type PlayerSpectatorEvent struct {
	baseEvent
	PlayerID  int64
	Spectator bool
}

func (PlayerSpectatorEvent) WireType() string { return "PlayerSpectatorEvent" }

func (e PlayerSpectatorEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		GameID    int64 `json:"game_id"`
		PlayerID  int64 `json:"player_id"`
		Spectator bool  `json:"spectator"`
	}{e.gameID, e.PlayerID, e.Spectator})
}
