package store

import (
	"context"
	"time"
)

// PlayerRepository is what other layers depend on for roster persistence.
type PlayerRepository interface {
	Join(ctx context.Context, q Querier, gameID, userID int64, spectator bool) (*GamePlayer, error)
	SetReady(ctx context.Context, q Querier, gameID, userID int64, ready bool) error
	SetSpectator(ctx context.Context, q Querier, gameID, userID int64, spectator bool) error
	SetJoined(ctx context.Context, q Querier, gameID, userID int64, joined bool) error
	Remove(ctx context.Context, q Querier, gameID, userID int64) error
	Get(ctx context.Context, q Querier, gameID, userID int64) (*GamePlayer, error)
	ListByGame(ctx context.Context, q Querier, gameID int64) ([]*GamePlayer, error)
}

type postgresPlayerRepo struct{}

// NewPlayerRepository returns the Postgres-backed PlayerRepository.
func NewPlayerRepository() PlayerRepository {
	return &postgresPlayerRepo{}
}

// Join inserts a roster row, or re-marks an existing one as joined if the
// player previously left (spec.md §4.3 reconnection semantics) — upsert on
// the (game_id, user_id) primary key.
func (r *postgresPlayerRepo) Join(ctx context.Context, q Querier, gameID, userID int64, spectator bool) (*GamePlayer, error) {
	var p GamePlayer
	err := q.QueryRow(ctx,
		`INSERT INTO game_players (game_id, user_id, is_ready, is_spectator, is_joined, joined_at)
		 VALUES ($1, $2, false, $3, true, $4)
		 ON CONFLICT (game_id, user_id) DO UPDATE
		   SET is_joined = true, is_spectator = EXCLUDED.is_spectator, joined_at = EXCLUDED.joined_at
		 RETURNING game_id, user_id, is_ready, is_spectator, is_joined, joined_at`,
		gameID, userID, spectator, time.Now(),
	).Scan(&p.GameID, &p.UserID, &p.IsReady, &p.IsSpectator, &p.IsJoined, &p.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postgresPlayerRepo) SetReady(ctx context.Context, q Querier, gameID, userID int64, ready bool) error {
	_, err := q.Exec(ctx,
		`UPDATE game_players SET is_ready = $3 WHERE game_id = $1 AND user_id = $2`,
		gameID, userID, ready)
	return err
}

func (r *postgresPlayerRepo) SetSpectator(ctx context.Context, q Querier, gameID, userID int64, spectator bool) error {
	_, err := q.Exec(ctx,
		`UPDATE game_players SET is_spectator = $3 WHERE game_id = $1 AND user_id = $2`,
		gameID, userID, spectator)
	return err
}

func (r *postgresPlayerRepo) SetJoined(ctx context.Context, q Querier, gameID, userID int64, joined bool) error {
	_, err := q.Exec(ctx,
		`UPDATE game_players SET is_joined = $3 WHERE game_id = $1 AND user_id = $2`,
		gameID, userID, joined)
	return err
}

func (r *postgresPlayerRepo) Remove(ctx context.Context, q Querier, gameID, userID int64) error {
	_, err := q.Exec(ctx,
		`DELETE FROM game_players WHERE game_id = $1 AND user_id = $2`,
		gameID, userID)
	return err
}

func (r *postgresPlayerRepo) Get(ctx context.Context, q Querier, gameID, userID int64) (*GamePlayer, error) {
	var p GamePlayer
	err := q.QueryRow(ctx,
		`SELECT game_id, user_id, is_ready, is_spectator, is_joined, joined_at
		 FROM game_players WHERE game_id = $1 AND user_id = $2`,
		gameID, userID).Scan(&p.GameID, &p.UserID, &p.IsReady, &p.IsSpectator, &p.IsJoined, &p.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postgresPlayerRepo) ListByGame(ctx context.Context, q Querier, gameID int64) ([]*GamePlayer, error) {
	rows, err := q.Query(ctx,
		`SELECT game_id, user_id, is_ready, is_spectator, is_joined, joined_at
		 FROM game_players WHERE game_id = $1
		 ORDER BY joined_at ASC`,
		gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []*GamePlayer
	for rows.Next() {
		var p GamePlayer
		if err := rows.Scan(&p.GameID, &p.UserID, &p.IsReady, &p.IsSpectator, &p.IsJoined, &p.JoinedAt); err != nil {
			return nil, err
		}
		players = append(players, &p)
	}
	return players, rows.Err()
}
