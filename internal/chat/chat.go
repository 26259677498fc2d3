package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/codingarctic/loreshifter-runtime/internal/apperr"
	"github.com/codingarctic/loreshifter-runtime/internal/store"
	"github.com/codingarctic/loreshifter-runtime/internal/system"
)

const (
	minMessageLimit     = 1
	maxMessageLimit     = 500
	defaultMessageLimit = 50
)

// ChatSystem is one live chat channel: an in-memory message index backed by
// persistent rows, per spec.md §4.2.
type ChatSystem struct {
	*system.System[Event]

	id            int64
	gameID        int64
	ownerID       *int64
	chatType      store.ChatType
	interfaceType store.ChatInterfaceType
	deadline      *time.Time

	messageRepo store.MessageRepository

	mu          sync.Mutex
	idx         *index
	suggestions []string
}

// ChatInterface describes who may write to a chat and under what timing.
type ChatInterface struct {
	Type     store.ChatInterfaceType `json:"type"`
	Deadline *time.Time              `json:"deadline,omitempty"`
}

// ChatSegmentOut is the result of get_messages: a window of messages plus
// pagination boundary ids and the chat's current state.
type ChatSegmentOut struct {
	ChatID      int64            `json:"chat_id"`
	ChatOwner   *int64           `json:"chat_owner,omitempty"`
	Messages    []*store.Message `json:"messages"`
	PreviousID  *int64           `json:"previous_id,omitempty"`
	NextID      *int64           `json:"next_id,omitempty"`
	Suggestions []string         `json:"suggestions,omitempty"`
	Interface   ChatInterface    `json:"interface"`
}

// CreateOrLoad finds the chat row by (gameID, chatType, ownerID), inserting
// one with interfaceType when absent, then loads every existing message
// ordered by id into the in-memory index.
func CreateOrLoad(
	ctx context.Context,
	q store.Querier,
	chatRepo store.ChatRepository,
	messageRepo store.MessageRepository,
	gameID int64,
	chatType store.ChatType,
	ownerID *int64,
	interfaceType store.ChatInterfaceType,
) (*ChatSystem, error) {
	row, err := chatRepo.GetOrCreate(ctx, q, gameID, chatType, ownerID, interfaceType)
	if err != nil {
		return nil, apperr.Wrap(err, "load or create chat")
	}

	cs := &ChatSystem{
		System:        system.New[Event](fmt.Sprintf("chat-%d", row.ID)),
		id:            row.ID,
		gameID:        row.GameID,
		ownerID:       row.OwnerID,
		chatType:      row.ChatType,
		interfaceType: row.InterfaceType,
		deadline:      row.Deadline,
		messageRepo:   messageRepo,
		idx:           newIndex(),
	}

	var all []*store.Message
	after := int64(0)
	for {
		page, err := messageRepo.GetMessages(ctx, q, cs.id, nil, &after, maxMessageLimit)
		if err != nil {
			return nil, apperr.Wrap(err, "load chat messages")
		}
		all = append(all, page.Messages...)
		if len(page.Messages) < maxMessageLimit {
			break
		}
		after = page.Messages[len(page.Messages)-1].ID
	}
	cs.idx.loadAll(all)

	system.Register("chat", fmt.Sprintf("%d", cs.id), cs)
	return cs, nil
}

// Stop deregisters the chat from the process registry, then stops its
// event queue.
func (c *ChatSystem) Stop() {
	system.Deregister("chat", fmt.Sprintf("%d", c.id))
	c.System.Stop()
}

// ID is the chat's database id.
func (c *ChatSystem) ID() int64 { return c.id }

// GameID is the owning game's id.
func (c *ChatSystem) GameID() int64 { return c.gameID }

// OwnerID is the per-player owner, or nil for a shared chat.
func (c *ChatSystem) OwnerID() *int64 { return c.ownerID }

// InterfaceType reports who may write and under what timing constraints.
func (c *ChatSystem) InterfaceType() store.ChatInterfaceType { return c.interfaceType }

// SendMessage persists a message, appends it to the tail of the index, and
// emits MessageSentEvent carrying the message plus its neighbor ids.
func (c *ChatSystem) SendMessage(
	ctx context.Context,
	q store.Querier,
	kind store.MessageKind,
	text string,
	senderID *int64,
	special *string,
	metadata json.RawMessage,
) (MessageOutWithNeighbors, error) {
	msg, err := c.messageRepo.Send(ctx, q, c.id, senderID, kind, text, special, metadata)
	if err != nil {
		return MessageOutWithNeighbors{}, apperr.Wrap(err, "send message")
	}

	c.mu.Lock()
	n := c.idx.append(msg)
	var prevID *int64
	if n.prev.message != nil {
		id := n.prev.message.ID
		prevID = &id
	}
	c.mu.Unlock()

	out := MessageOutWithNeighbors{Message: msg, PreviousID: prevID, NextID: nil}
	c.Emit(MessageSentEvent{baseEvent: newBase(c.id), Message: out})
	return out, nil
}

// EditMessage updates a message's text/metadata in place, leaving its
// neighbor pointers unchanged, and emits MessageEditEvent. Fails
// MessageNotFound when id is absent from the index.
func (c *ChatSystem) EditMessage(ctx context.Context, q store.Querier, id int64, text string, special *string, metadata json.RawMessage) (*store.Message, error) {
	c.mu.Lock()
	n, ok := c.idx.get(id)
	c.mu.Unlock()
	if !ok {
		return nil, apperr.New(apperr.MessageNotFound, "message not found", "message_id", id)
	}

	msg, err := c.messageRepo.Edit(ctx, q, id, text, special, metadata)
	if err != nil {
		return nil, apperr.Wrap(err, "edit message")
	}

	c.mu.Lock()
	n.message = msg
	c.mu.Unlock()

	c.Emit(MessageEditEvent{baseEvent: newBase(c.id), Message: msg})
	return msg, nil
}

// DeleteMessage deletes a message row, unlinks its node from the index, and
// emits MessageDeletedEvent.
func (c *ChatSystem) DeleteMessage(ctx context.Context, q store.Querier, id int64) (*store.Message, error) {
	c.mu.Lock()
	n, ok := c.idx.get(id)
	c.mu.Unlock()
	if !ok {
		return nil, apperr.New(apperr.MessageNotFound, "message not found", "message_id", id)
	}

	if err := c.messageRepo.Delete(ctx, q, id); err != nil {
		return nil, apperr.Wrap(err, "delete message")
	}

	c.mu.Lock()
	c.idx.remove(id)
	c.mu.Unlock()

	c.Emit(MessageDeletedEvent{baseEvent: newBase(c.id), Message: n.message})
	return n.message, nil
}

// GetMessages returns a page of the in-memory index. before and after are
// mutually exclusive; limit is clamped to [1, 500].
func (c *ChatSystem) GetMessages(limit int, before, after *int64) (*ChatSegmentOut, error) {
	if before != nil && after != nil {
		return nil, apperr.New(apperr.MutuallyExclusiveOptions, "before and after are mutually exclusive")
	}
	if limit < minMessageLimit {
		limit = minMessageLimit
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		window []*node
		ok     bool
	)
	if after != nil {
		window, ok = c.idx.walkForward(after, limit)
	} else {
		window, ok = c.idx.walkBackward(before, limit)
	}
	if !ok {
		return nil, apperr.New(apperr.MessageNotFound, "pagination cursor not found")
	}

	previousID, nextID := boundaryIDs(window)

	messages := make([]*store.Message, len(window))
	for i, n := range window {
		messages[i] = n.message
	}

	suggestions := make([]string, len(c.suggestions))
	copy(suggestions, c.suggestions)

	return &ChatSegmentOut{
		ChatID:      c.id,
		ChatOwner:   c.ownerID,
		Messages:    messages,
		PreviousID:  previousID,
		NextID:      nextID,
		Suggestions: suggestions,
		Interface:   ChatInterface{Type: c.interfaceType, Deadline: c.deadline},
	}, nil
}

// AddSuggestion appends a quick-reply suggestion and emits
// UpdatedSuggestionsEvent.
func (c *ChatSystem) AddSuggestion(s string) {
	c.mu.Lock()
	c.suggestions = append(c.suggestions, s)
	current := append([]string(nil), c.suggestions...)
	c.mu.Unlock()

	c.Emit(UpdatedSuggestionsEvent{baseEvent: newBase(c.id), Suggestions: current})
}

// ClearSuggestions resets the suggestion vector and emits
// UpdatedSuggestionsEvent with an empty slice.
func (c *ChatSystem) ClearSuggestions() {
	c.mu.Lock()
	c.suggestions = nil
	c.mu.Unlock()

	c.Emit(UpdatedSuggestionsEvent{baseEvent: newBase(c.id), Suggestions: nil})
}
