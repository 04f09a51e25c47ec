// Package storage は SQLite データベースへの接続管理を提供します。
//
// プロセス全体で1つの *sql.DB を保持し、リクエストごとに1本の接続を
// 遅延的に払い出します（request.go を参照）。
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// dsnParams は全接続に適用する SQLite の設定です。
// _txlock=immediate により、登録時の存在確認と挿入を書き込みロック下で行えます。
const dsnParams = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

//go:embed schema.sql
var schemaSQL string

// Querier は *sql.Conn / *sql.Tx / *sql.DB に共通するクエリ操作です。
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Manager はデータベースとリクエスト単位の接続を管理します。
type Manager struct {
	db     *sql.DB
	logger *log.Logger
}

// Open は path の SQLite ファイルを開きます。親ディレクトリが無ければ作成します。
func Open(path string, logger *log.Logger) (*Manager, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", cleanPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	return &Manager{db: sqlDB, logger: logger}, nil
}

// DB は内部の *sql.DB を返します。
func (m *Manager) DB() *sql.DB {
	if m == nil {
		return nil
	}
	return m.db
}

// Close はデータベースを閉じます。
func (m *Manager) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

// InitSchema は既存のテーブルを削除し、schema.sql からテーブルを作り直します。
// 既存データはすべて失われます。
func (m *Manager) InitSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// WithTx は conn 上でトランザクションを開始し fn を実行します。
// fn がエラーを返すかパニックした場合はロールバックします。
func WithTx(ctx context.Context, conn *sql.Conn, fn func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// IsUniqueViolation は UNIQUE / PRIMARY KEY 制約違反かどうかを判定します。
func IsUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
