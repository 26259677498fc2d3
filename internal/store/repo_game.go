package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
)

// GameFilter narrows ListGames: visibility, status, and pagination.
type GameFilter struct {
	RequesterID *int64
	Status      *GameStatus
	Limit       int
	Offset      int
	Sort        SortOrder
}

// GameListItem pairs a game row with its roster, the shape List returns by
// reading game_players_agg_view (spec.md §6 "used by list queries") instead
// of a second per-game round trip.
type GameListItem struct {
	Game    *Game
	Players []*GamePlayer
}

// GameRepository is what other layers depend on for game persistence.
//
// CreateWithUniqueCode is the one operation spec.md §4.4/§5 expects to run
// inside a caller-managed serializable transaction: Universe retries the
// whole transaction on a serialization failure, generating a fresh 4-char
// code each attempt, so the code-uniqueness check and the insert must
// observe the same snapshot.
type GameRepository interface {
	CreateWithUniqueCode(ctx context.Context, q Querier, code string, worldID int64, hostID *int64, name string, public bool, maxPlayers int, state []byte) (*Game, error)
	GetByID(ctx context.Context, q Querier, id int64) (*Game, error)
	GetByCode(ctx context.Context, q Querier, code string) (*Game, error)
	CodeInUse(ctx context.Context, q Querier, code string) (bool, error)
	UpdateStatus(ctx context.Context, q Querier, id int64, status GameStatus) error
	UpdateHost(ctx context.Context, q Querier, id int64, hostID *int64) error
	UpdateSettings(ctx context.Context, q Querier, id int64, name *string, public *bool, maxPlayers *int) (*Game, error)
	UpdateState(ctx context.Context, q Querier, id int64, state []byte) error
	List(ctx context.Context, q Querier, filter GameFilter) ([]*GameListItem, error)
}

type postgresGameRepo struct{}

// NewGameRepository returns the Postgres-backed GameRepository.
func NewGameRepository() GameRepository {
	return &postgresGameRepo{}
}

// CodeInUse checks the same partial-unique constraint the games_code_active_unique
// index enforces (code unique among non-archived rows), so Universe can
// decide whether to retry before attempting the insert.
func (r *postgresGameRepo) CodeInUse(ctx context.Context, q Querier, code string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM games WHERE code = $1 AND status <> 'archived')`,
		code).Scan(&exists)
	return exists, err
}

func (r *postgresGameRepo) CreateWithUniqueCode(ctx context.Context, q Querier, code string, worldID int64, hostID *int64, name string, public bool, maxPlayers int, state []byte) (*Game, error) {
	var g Game
	err := q.QueryRow(ctx,
		`INSERT INTO games (code, world_id, host_id, name, public, max_players, status, created_at, state)
		 VALUES ($1, $2, $3, $4, $5, $6, 'waiting', $7, $8)
		 RETURNING id, code, world_id, host_id, name, public, max_players, status, created_at, state`,
		code, worldID, hostID, name, public, maxPlayers, time.Now(), state,
	).Scan(&g.ID, &g.Code, &g.WorldID, &g.HostID, &g.Name, &g.Public, &g.MaxPlayers, &g.Status, &g.CreatedAt, &g.State)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *postgresGameRepo) GetByID(ctx context.Context, q Querier, id int64) (*Game, error) {
	var g Game
	err := q.QueryRow(ctx,
		`SELECT id, code, world_id, host_id, name, public, max_players, status, created_at, state
		 FROM games WHERE id = $1`,
		id).Scan(&g.ID, &g.Code, &g.WorldID, &g.HostID, &g.Name, &g.Public, &g.MaxPlayers, &g.Status, &g.CreatedAt, &g.State)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *postgresGameRepo) GetByCode(ctx context.Context, q Querier, code string) (*Game, error) {
	var g Game
	err := q.QueryRow(ctx,
		`SELECT id, code, world_id, host_id, name, public, max_players, status, created_at, state
		 FROM games WHERE code = $1 AND status <> 'archived'`,
		code).Scan(&g.ID, &g.Code, &g.WorldID, &g.HostID, &g.Name, &g.Public, &g.MaxPlayers, &g.Status, &g.CreatedAt, &g.State)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *postgresGameRepo) UpdateStatus(ctx context.Context, q Querier, id int64, status GameStatus) error {
	_, err := q.Exec(ctx, `UPDATE games SET status = $2 WHERE id = $1`, id, status)
	return err
}

func (r *postgresGameRepo) UpdateHost(ctx context.Context, q Querier, id int64, hostID *int64) error {
	_, err := q.Exec(ctx, `UPDATE games SET host_id = $2 WHERE id = $1`, id, hostID)
	return err
}

func (r *postgresGameRepo) UpdateSettings(ctx context.Context, q Querier, id int64, name *string, public *bool, maxPlayers *int) (*Game, error) {
	var g Game
	err := q.QueryRow(ctx,
		`UPDATE games
		 SET name = COALESCE($2, name),
		     public = COALESCE($3, public),
		     max_players = COALESCE($4, max_players)
		 WHERE id = $1
		 RETURNING id, code, world_id, host_id, name, public, max_players, status, created_at, state`,
		id, name, public, maxPlayers,
	).Scan(&g.ID, &g.Code, &g.WorldID, &g.HostID, &g.Name, &g.Public, &g.MaxPlayers, &g.Status, &g.CreatedAt, &g.State)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *postgresGameRepo) UpdateState(ctx context.Context, q Querier, id int64, state []byte) error {
	_, err := q.Exec(ctx, `UPDATE games SET state = $2 WHERE id = $1`, id, state)
	return err
}

// aggPlayer is the shape of one element of game_players_agg_view's players
// column: every GamePlayer field except game_id, which the row's own g.id
// supplies.
type aggPlayer struct {
	UserID      int64     `json:"user_id"`
	IsReady     bool      `json:"is_ready"`
	IsSpectator bool      `json:"is_spectator"`
	IsJoined    bool      `json:"is_joined"`
	JoinedAt    time.Time `json:"joined_at"`
}

// List applies the same visibility rule as Universe.gameVisible (public, or
// the requester is host, or the requester holds any game_players row
// regardless of join status), plus an optional status filter, joining
// game_players_agg_view so the roster comes back in the same round trip
// (spec.md §6 "Persisted state layout").
func (r *postgresGameRepo) List(ctx context.Context, q Querier, filter GameFilter) ([]*GameListItem, error) {
	var requester int64 = -1
	if filter.RequesterID != nil {
		requester = *filter.RequesterID
	}

	order := filter.Sort.sqlKeyword()

	var (
		rows pgx.Rows
		err  error
	)

	visibility := `(g.public OR g.host_id = $1 OR EXISTS (
		SELECT 1 FROM game_players gp WHERE gp.game_id = g.id AND gp.user_id = $1
	))`

	if filter.Status != nil {
		sql := `SELECT g.id, g.code, g.world_id, g.host_id, g.name, g.public, g.max_players, g.status, g.created_at, g.state, v.players
		 FROM games g
		 JOIN game_players_agg_view v ON v.game_id = g.id
		 WHERE ` + visibility + ` AND g.status = $2
		 ORDER BY g.created_at ` + order + `
		 LIMIT $3 OFFSET $4`
		rows, err = q.Query(ctx, sql, requester, *filter.Status, filter.Limit, filter.Offset)
	} else {
		sql := `SELECT g.id, g.code, g.world_id, g.host_id, g.name, g.public, g.max_players, g.status, g.created_at, g.state, v.players
		 FROM games g
		 JOIN game_players_agg_view v ON v.game_id = g.id
		 WHERE ` + visibility + `
		 ORDER BY g.created_at ` + order + `
		 LIMIT $2 OFFSET $3`
		rows, err = q.Query(ctx, sql, requester, filter.Limit, filter.Offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*GameListItem
	for rows.Next() {
		var g Game
		var playersJSON []byte
		if err := rows.Scan(&g.ID, &g.Code, &g.WorldID, &g.HostID, &g.Name, &g.Public, &g.MaxPlayers, &g.Status, &g.CreatedAt, &g.State, &playersJSON); err != nil {
			return nil, err
		}

		var agg []aggPlayer
		if len(playersJSON) > 0 {
			if err := json.Unmarshal(playersJSON, &agg); err != nil {
				return nil, err
			}
		}
		players := make([]*GamePlayer, 0, len(agg))
		for _, a := range agg {
			players = append(players, &GamePlayer{
				GameID:      g.ID,
				UserID:      a.UserID,
				IsReady:     a.IsReady,
				IsSpectator: a.IsSpectator,
				IsJoined:    a.IsJoined,
				JoinedAt:    a.JoinedAt,
			})
		}

		items = append(items, &GameListItem{Game: &g, Players: players})
	}
	return items, rows.Err()
}
