// Package chat implements ChatSystem: the in-memory doubly-linked message
// index for one chat channel, backed by persistent message rows. Grounded
// on original_source/game/chat.py, translated onto internal/system's
// generic actor base and internal/store's repositories.
package chat

import (
	"encoding/json"

	"github.com/codingarctic/loreshifter-runtime/internal/store"
)

// Event is the closed set of things a ChatSystem emits. WireType reports the
// literal event-name string the WebSocket layer would use if a chat event
// were ever broadcast unwrapped, mirroring original_source/game/chat.py's
// event class names (ChatMessageSentEvent, etc.) — see gamesys.Event.WireType
// for why these differ from the Go type names in this package.
type Event interface {
	ChatID() int64
	WireType() string
}

type baseEvent struct {
	chatID int64
}

func (e baseEvent) ChatID() int64 { return e.chatID }

// MessageOutWithNeighbors is a persisted message plus the ids of its
// immediate neighbors in the index at the moment it was sent.
type MessageOutWithNeighbors struct {
	Message    *store.Message `json:"message"`
	PreviousID *int64         `json:"previous_id,omitempty"`
	NextID     *int64         `json:"next_id,omitempty"`
}

// MessageSentEvent fires after send_message appends to the tail.
type MessageSentEvent struct {
	baseEvent
	Message MessageOutWithNeighbors
}

func (MessageSentEvent) WireType() string { return "ChatMessageSentEvent" }

func (e MessageSentEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ChatID  int64                   `json:"chat_id"`
		Message MessageOutWithNeighbors `json:"message"`
	}{e.chatID, e.Message})
}

// MessageEditEvent fires after edit_message mutates a node in place.
type MessageEditEvent struct {
	baseEvent
	Message *store.Message
}

func (MessageEditEvent) WireType() string { return "ChatMessageEditEvent" }

func (e MessageEditEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ChatID  int64          `json:"chat_id"`
		Message *store.Message `json:"message"`
	}{e.chatID, e.Message})
}

// MessageDeletedEvent fires after delete_message unlinks a node.
type MessageDeletedEvent struct {
	baseEvent
	Message *store.Message
}

func (MessageDeletedEvent) WireType() string { return "ChatMessageDeletedEvent" }

func (e MessageDeletedEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ChatID  int64          `json:"chat_id"`
		Message *store.Message `json:"message"`
	}{e.chatID, e.Message})
}

// UpdatedSuggestionsEvent fires after add_suggestion/clear_suggestions.
type UpdatedSuggestionsEvent struct {
	baseEvent
	Suggestions []string
}

func (UpdatedSuggestionsEvent) WireType() string { return "ChatUpdatedSuggestions" }

func (e UpdatedSuggestionsEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ChatID      int64    `json:"chat_id"`
		Suggestions []string `json:"suggestions"`
	}{e.chatID, e.Suggestions})
}

func newBase(chatID int64) baseEvent { return baseEvent{chatID: chatID} }
