package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SortOrder is the explicit asc/desc sort direction spec.md §4.4 requires for
// paginated reads.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

func (o SortOrder) sqlKeyword() string {
	if o == Asc {
		return "ASC"
	}
	return "DESC"
}

// WorldFilter narrows GetWorlds: visible-to-requester plus pagination/sort.
type WorldFilter struct {
	RequesterID *int64
	Limit       int
	Offset      int
	Sort        SortOrder
}

// WorldRepository is what other layers depend on for world persistence.
type WorldRepository interface {
	Create(ctx context.Context, q Querier, name string, ownerID int64, public bool, description *string, data json.RawMessage) (*World, error)
	Update(ctx context.Context, q Querier, id int64, name *string, public *bool, description *string, data json.RawMessage) (*World, error)
	SoftDelete(ctx context.Context, q Querier, id int64) error
	GetByID(ctx context.Context, q Querier, id int64) (*World, error)
	List(ctx context.Context, q Querier, filter WorldFilter) ([]*World, error)
}

type postgresWorldRepo struct{}

// NewWorldRepository returns the Postgres-backed WorldRepository.
func NewWorldRepository() WorldRepository {
	return &postgresWorldRepo{}
}

var defaultWorldData = json.RawMessage(`{"initialState": {}}`)

func (r *postgresWorldRepo) Create(ctx context.Context, q Querier, name string, ownerID int64, public bool, description *string, data json.RawMessage) (*World, error) {
	if data == nil {
		data = defaultWorldData
	}

	var w World
	now := time.Now()
	err := q.QueryRow(ctx,
		`INSERT INTO worlds (name, owner_id, public, description, data, created_at, last_updated_at, deleted)
		 VALUES ($1, $2, $3, $4, $5, $6, $6, false)
		 RETURNING id, name, owner_id, public, description, data, created_at, last_updated_at, deleted`,
		name, ownerID, public, description, data, now,
	).Scan(&w.ID, &w.Name, &w.OwnerID, &w.Public, &w.Description, &w.Data, &w.CreatedAt, &w.LastUpdatedAt, &w.Deleted)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *postgresWorldRepo) Update(ctx context.Context, q Querier, id int64, name *string, public *bool, description *string, data json.RawMessage) (*World, error) {
	var w World
	err := q.QueryRow(ctx,
		`UPDATE worlds
		 SET name = COALESCE($2, name),
		     public = COALESCE($3, public),
		     description = COALESCE($4, description),
		     data = COALESCE($5, data),
		     last_updated_at = now()
		 WHERE id = $1 AND NOT deleted
		 RETURNING id, name, owner_id, public, description, data, created_at, last_updated_at, deleted`,
		id, name, public, description, data,
	).Scan(&w.ID, &w.Name, &w.OwnerID, &w.Public, &w.Description, &w.Data, &w.CreatedAt, &w.LastUpdatedAt, &w.Deleted)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *postgresWorldRepo) SoftDelete(ctx context.Context, q Querier, id int64) error {
	_, err := q.Exec(ctx, `UPDATE worlds SET deleted = true, last_updated_at = now() WHERE id = $1`, id)
	return err
}

func (r *postgresWorldRepo) GetByID(ctx context.Context, q Querier, id int64) (*World, error) {
	var w World
	err := q.QueryRow(ctx,
		`SELECT id, name, owner_id, public, description, data, created_at, last_updated_at, deleted
		 FROM worlds WHERE id = $1 AND NOT deleted`,
		id).Scan(&w.ID, &w.Name, &w.OwnerID, &w.Public, &w.Description, &w.Data, &w.CreatedAt, &w.LastUpdatedAt, &w.Deleted)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// List applies the visibility rule from spec.md §4.4: a row is visible when
// public, or the requester owns it.
func (r *postgresWorldRepo) List(ctx context.Context, q Querier, filter WorldFilter) ([]*World, error) {
	sql := fmt.Sprintf(
		`SELECT id, name, owner_id, public, description, data, created_at, last_updated_at, deleted
		 FROM worlds
		 WHERE NOT deleted AND (public OR owner_id = $1)
		 ORDER BY created_at %s
		 LIMIT $2 OFFSET $3`,
		filter.Sort.sqlKeyword(),
	)

	var requester int64 = -1
	if filter.RequesterID != nil {
		requester = *filter.RequesterID
	}

	rows, err := q.Query(ctx, sql, requester, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var worlds []*World
	for rows.Next() {
		var w World
		if err := rows.Scan(&w.ID, &w.Name, &w.OwnerID, &w.Public, &w.Description, &w.Data, &w.CreatedAt, &w.LastUpdatedAt, &w.Deleted); err != nil {
			return nil, err
		}
		worlds = append(worlds, &w)
	}
	return worlds, rows.Err()
}
