package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
)

// MessagePage is a get_messages result: the window of messages plus the
// boundary ids needed to request the next/previous page, spec.md §4.2.
type MessagePage struct {
	Messages   []*Message
	PreviousID *int64
	NextID     *int64
}

// MessageRepository is what ChatSystem depends on for message persistence.
//
// GetMessages accepts before/after as mutually-exclusive cursors (the caller
// enforces exclusivity — ChatSystem.GetMessages in spec.md §4.2) and returns
// up to limit rows ordered by id, with PreviousID/NextID set to the ids of
// the window's first and last rows whenever the window is non-empty (both
// nil for an empty window).
type MessageRepository interface {
	Send(ctx context.Context, q Querier, chatID int64, senderID *int64, kind MessageKind, text string, special *string, metadata json.RawMessage) (*Message, error)
	Edit(ctx context.Context, q Querier, id int64, text string, special *string, metadata json.RawMessage) (*Message, error)
	Delete(ctx context.Context, q Querier, id int64) error
	GetByID(ctx context.Context, q Querier, id int64) (*Message, error)
	GetMessages(ctx context.Context, q Querier, chatID int64, before, after *int64, limit int) (*MessagePage, error)
}

type postgresMessageRepo struct{}

// NewMessageRepository returns the Postgres-backed MessageRepository.
func NewMessageRepository() MessageRepository {
	return &postgresMessageRepo{}
}

func (r *postgresMessageRepo) Send(ctx context.Context, q Querier, chatID int64, senderID *int64, kind MessageKind, text string, special *string, metadata json.RawMessage) (*Message, error) {
	var m Message
	err := q.QueryRow(ctx,
		`INSERT INTO messages (chat_id, sender_id, kind, text, special, metadata, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, chat_id, sender_id, kind, text, special, metadata, sent_at`,
		chatID, senderID, kind, text, special, metadata, time.Now(),
	).Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Kind, &m.Text, &m.Special, &m.Metadata, &m.SentAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *postgresMessageRepo) Edit(ctx context.Context, q Querier, id int64, text string, special *string, metadata json.RawMessage) (*Message, error) {
	var m Message
	err := q.QueryRow(ctx,
		`UPDATE messages SET text = $2, special = $3, metadata = $4 WHERE id = $1
		 RETURNING id, chat_id, sender_id, kind, text, special, metadata, sent_at`,
		id, text, special, metadata,
	).Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Kind, &m.Text, &m.Special, &m.Metadata, &m.SentAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *postgresMessageRepo) Delete(ctx context.Context, q Querier, id int64) error {
	_, err := q.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	return err
}

func (r *postgresMessageRepo) GetByID(ctx context.Context, q Querier, id int64) (*Message, error) {
	var m Message
	err := q.QueryRow(ctx,
		`SELECT id, chat_id, sender_id, kind, text, special, metadata, sent_at
		 FROM messages WHERE id = $1`,
		id).Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Kind, &m.Text, &m.Special, &m.Metadata, &m.SentAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *postgresMessageRepo) GetMessages(ctx context.Context, q Querier, chatID int64, before, after *int64, limit int) (*MessagePage, error) {
	var (
		rows pgx.Rows
		err  error
	)

	switch {
	case before != nil:
		rows, err = q.Query(ctx,
			`SELECT id, chat_id, sender_id, kind, text, special, metadata, sent_at
			 FROM messages WHERE chat_id = $1 AND id < $2
			 ORDER BY id DESC LIMIT $3`,
			chatID, *before, limit)
	case after != nil:
		rows, err = q.Query(ctx,
			`SELECT id, chat_id, sender_id, kind, text, special, metadata, sent_at
			 FROM messages WHERE chat_id = $1 AND id > $2
			 ORDER BY id ASC LIMIT $3`,
			chatID, *after, limit)
	default:
		rows, err = q.Query(ctx,
			`SELECT id, chat_id, sender_id, kind, text, special, metadata, sent_at
			 FROM messages WHERE chat_id = $1
			 ORDER BY id DESC LIMIT $2`,
			chatID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Kind, &m.Text, &m.Special, &m.Metadata, &m.SentAt); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// before/default fetch newest-first; re-ascend to chronological order.
	if after == nil {
		reverseMessages(messages)
	}

	page := &MessagePage{Messages: messages}
	if len(messages) > 0 {
		first, last := messages[0].ID, messages[len(messages)-1].ID
		page.PreviousID = &first
		page.NextID = &last
	}
	return page, nil
}

func reverseMessages(messages []*Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
