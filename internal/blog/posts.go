// Package blog は投稿の一覧・作成・更新・削除を提供します。
package blog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/flaskr/internal/storage"
)

// ErrPostNotFound は該当する投稿が存在しない場合のエラーです。
var ErrPostNotFound = errors.New("blog: post not found")

// Post は投稿と投稿者名を表します。
type Post struct {
	ID         int64
	AuthorID   int64
	AuthorName string
	Created    time.Time
	Title      string
	Body       string
}

const selectPosts = `SELECT p.id, p.author_id, u.username, p.created, p.title, p.body
FROM post p JOIN user u ON p.author_id = u.id`

// ListPosts は新しい順に投稿を返します。
func ListPosts(ctx context.Context, q storage.Querier) ([]Post, error) {
	rows, err := q.QueryContext(ctx, selectPosts+" ORDER BY p.created DESC, p.id DESC")
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.AuthorName, &p.Created, &p.Title, &p.Body); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// GetPost は id の投稿を返します。
func GetPost(ctx context.Context, q storage.Querier, id int64) (*Post, error) {
	var p Post
	err := q.QueryRowContext(ctx, selectPosts+" WHERE p.id = ?", id).
		Scan(&p.ID, &p.AuthorID, &p.AuthorName, &p.Created, &p.Title, &p.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return &p, nil
}

// CreatePost は投稿を挿入し、採番された id を返します。
func CreatePost(ctx context.Context, q storage.Querier, authorID int64, title, body string) (int64, error) {
	res, err := q.ExecContext(ctx,
		"INSERT INTO post (title, body, author_id) VALUES (?, ?, ?)", title, body, authorID)
	if err != nil {
		return 0, fmt.Errorf("insert post: %w", err)
	}
	return res.LastInsertId()
}

// UpdatePost は投稿のタイトルと本文を更新します。
func UpdatePost(ctx context.Context, q storage.Querier, id int64, title, body string) error {
	return execOne(ctx, q, "UPDATE post SET title = ?, body = ? WHERE id = ?", title, body, id)
}

// DeletePost は投稿を削除します。
func DeletePost(ctx context.Context, q storage.Querier, id int64) error {
	return execOne(ctx, q, "DELETE FROM post WHERE id = ?", id)
}

func execOne(ctx context.Context, q storage.Querier, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec post: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrPostNotFound
	}
	return nil
}
