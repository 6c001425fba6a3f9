package database

import (
	"context"

	"github.com/google/uuid"
)

const userColumns = `id, full_name, email, hashed_password, role, is_active, created_at`

func scanUser(row interface{ Scan(dest ...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.HashedPassword, &u.Role, &u.IsActive, &u.CreatedAt)
	return u, err
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 AND is_active`, email)
	return scanUser(row)
}

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY full_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type CreateUserParams struct {
	FullName       string
	Email          string
	HashedPassword string
	Role           string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO users (full_name, email, hashed_password, role)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		arg.FullName, arg.Email, arg.HashedPassword, arg.Role)
	return scanUser(row)
}

type UpdateUserParams struct {
	ID       uuid.UUID
	FullName string
	Email    string
	Role     string
}

func (q *Queries) UpdateUser(ctx context.Context, arg UpdateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE users SET full_name = $2, email = $3, role = $4
		WHERE id = $1
		RETURNING `+userColumns,
		arg.ID, arg.FullName, arg.Email, arg.Role)
	return scanUser(row)
}

func (q *Queries) DeactivateUser(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, `UPDATE users SET is_active = false WHERE id = $1 RETURNING id`, id)
	err := row.Scan(&id)
	return id, err
}
