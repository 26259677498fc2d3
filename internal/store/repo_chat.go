package store

import (
	"context"
)

// ChatRepository is what ChatSystem depends on for the create-or-load
// lookup keyed by (game_id, chat_type, owner_id), spec.md §4.2.
type ChatRepository interface {
	GetOrCreate(ctx context.Context, q Querier, gameID int64, chatType ChatType, ownerID *int64, interfaceType ChatInterfaceType) (*Chat, error)
	GetByID(ctx context.Context, q Querier, id int64) (*Chat, error)
}

type postgresChatRepo struct{}

// NewChatRepository returns the Postgres-backed ChatRepository.
func NewChatRepository() ChatRepository {
	return &postgresChatRepo{}
}

// GetOrCreate relies on the two partial unique indexes on chats
// (chats_shared_unique for owner_id IS NULL, chats_owned_unique otherwise)
// to make the lookup-or-insert race-safe under concurrent joins.
func (r *postgresChatRepo) GetOrCreate(ctx context.Context, q Querier, gameID int64, chatType ChatType, ownerID *int64, interfaceType ChatInterfaceType) (*Chat, error) {
	existing, err := r.lookup(ctx, q, gameID, chatType, ownerID)
	if err == nil {
		return existing, nil
	}

	var c Chat
	err = q.QueryRow(ctx,
		`INSERT INTO chats (game_id, chat_type, owner_id, interface_type, deadline)
		 VALUES ($1, $2, $3, $4, NULL)
		 ON CONFLICT DO NOTHING
		 RETURNING id, game_id, chat_type, owner_id, interface_type, deadline`,
		gameID, chatType, ownerID, interfaceType,
	).Scan(&c.ID, &c.GameID, &c.ChatType, &c.OwnerID, &c.InterfaceType, &c.Deadline)
	if err == nil {
		return &c, nil
	}

	return r.lookup(ctx, q, gameID, chatType, ownerID)
}

func (r *postgresChatRepo) lookup(ctx context.Context, q Querier, gameID int64, chatType ChatType, ownerID *int64) (*Chat, error) {
	var c Chat
	var err error
	if ownerID == nil {
		err = q.QueryRow(ctx,
			`SELECT id, game_id, chat_type, owner_id, interface_type, deadline
			 FROM chats WHERE game_id = $1 AND chat_type = $2 AND owner_id IS NULL`,
			gameID, chatType).Scan(&c.ID, &c.GameID, &c.ChatType, &c.OwnerID, &c.InterfaceType, &c.Deadline)
	} else {
		err = q.QueryRow(ctx,
			`SELECT id, game_id, chat_type, owner_id, interface_type, deadline
			 FROM chats WHERE game_id = $1 AND chat_type = $2 AND owner_id = $3`,
			gameID, chatType, *ownerID).Scan(&c.ID, &c.GameID, &c.ChatType, &c.OwnerID, &c.InterfaceType, &c.Deadline)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *postgresChatRepo) GetByID(ctx context.Context, q Querier, id int64) (*Chat, error) {
	var c Chat
	err := q.QueryRow(ctx,
		`SELECT id, game_id, chat_type, owner_id, interface_type, deadline
		 FROM chats WHERE id = $1`,
		id).Scan(&c.ID, &c.GameID, &c.ChatType, &c.OwnerID, &c.InterfaceType, &c.Deadline)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
