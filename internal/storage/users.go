package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gastos/internal/auth"
)

const userColumns = "id, email, name, password_hash, created_at"

func scanUser(s rowScanner) (auth.User, error) {
	var (
		u         auth.User
		createdAt string
	)
	if err := s.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &createdAt); err != nil {
		return auth.User{}, err
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return auth.User{}, fmt.Errorf("user %s created_at: %w", u.ID, err)
	}
	u.CreatedAt = t
	return u, nil
}

// CreateUser checks for an existing id or email inside the same transaction
// as the insert.
func (r *Repository) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.User{}, fmt.Errorf("begin create user: %w", err)
	}
	defer tx.Rollback()

	var n int
	err = tx.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM users WHERE id = ? OR email = ?`), u.ID, u.Email).Scan(&n)
	if err != nil {
		return auth.User{}, fmt.Errorf("check user: %w", err)
	}
	if n > 0 {
		return auth.User{}, auth.ErrUserExists
	}

	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now().UTC()
	}
	_, err = tx.ExecContext(ctx, r.rebind(`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?)`),
		u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return auth.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return auth.User{}, fmt.Errorf("commit user: %w", err)
	}
	return u, nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (auth.User, error) {
	return r.findUser(ctx, "id", id)
}

func (r *Repository) FindUserByEmail(ctx context.Context, email string) (auth.User, error) {
	return r.findUser(ctx, "email", email)
}

// findUser looks a user up by column, which is always a constant.
func (r *Repository) findUser(ctx context.Context, column, value string) (auth.User, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`), value)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrUserNotFound
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("find user by %s: %w", column, err)
	}
	return u, nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]auth.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
