package store

import "context"

// UserRepository is what other layers depend on, not the concrete Postgres
// type — same split as the teacher's database.UserRepository.
type UserRepository interface {
	GetByID(ctx context.Context, q Querier, id int64) (*User, error)
	Create(ctx context.Context, q Querier, name string, email *string) (*User, error)
	SoftDelete(ctx context.Context, q Querier, id int64) error
}

type postgresUserRepo struct{}

// NewUserRepository returns the Postgres-backed UserRepository.
func NewUserRepository() UserRepository {
	return &postgresUserRepo{}
}

func (r *postgresUserRepo) GetByID(ctx context.Context, q Querier, id int64) (*User, error) {
	var u User
	err := q.QueryRow(ctx,
		`SELECT id, name, email, created_at, deleted FROM users WHERE id = $1 AND NOT deleted`,
		id).Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt, &u.Deleted)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *postgresUserRepo) Create(ctx context.Context, q Querier, name string, email *string) (*User, error) {
	var u User
	err := q.QueryRow(ctx,
		`INSERT INTO users (name, email) VALUES ($1, $2)
		 RETURNING id, name, email, created_at, deleted`,
		name, email).Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt, &u.Deleted)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *postgresUserRepo) SoftDelete(ctx context.Context, q Querier, id int64) error {
	_, err := q.Exec(ctx, `UPDATE users SET deleted = true WHERE id = $1`, id)
	return err
}
