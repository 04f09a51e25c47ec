// Package users は user テーブルへのアクセスを提供します。
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/yourusername/flaskr/internal/storage"
)

var (
	// ErrNotFound は該当するユーザーが存在しない場合のエラーです。
	ErrNotFound = errors.New("users: not found")
	// ErrUsernameTaken はユーザー名が既に登録済みの場合のエラーです。
	ErrUsernameTaken = errors.New("users: username already registered")
)

// User は登録済みユーザーを表します。
type User struct {
	ID           int64
	Username     string
	PasswordHash string
}

// FindByID は id でユーザーを取得します。
func FindByID(ctx context.Context, q storage.Querier, id int64) (*User, error) {
	row := q.QueryRowContext(ctx,
		"SELECT id, username, password FROM user WHERE id = ?", id)
	return scanUser(row)
}

// FindByUsername はユーザー名でユーザーを取得します。
func FindByUsername(ctx context.Context, q storage.Querier, username string) (*User, error) {
	row := q.QueryRowContext(ctx,
		"SELECT id, username, password FROM user WHERE username = ?", username)
	return scanUser(row)
}

// Exists はユーザー名が登録済みかどうかを返します。
func Exists(ctx context.Context, q storage.Querier, username string) (bool, error) {
	var id int64
	err := q.QueryRowContext(ctx, "SELECT id FROM user WHERE username = ?", username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return true, nil
}

// Create はユーザーを挿入し、採番された id を返します。
// UNIQUE 制約に違反した場合は ErrUsernameTaken を返します。
func Create(ctx context.Context, q storage.Querier, username, passwordHash string) (int64, error) {
	res, err := q.ExecContext(ctx,
		"INSERT INTO user (username, password) VALUES (?, ?)", username, passwordHash)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return 0, ErrUsernameTaken
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
