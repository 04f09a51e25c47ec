package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
)

const contextConnKey = "storage.conn"

// ErrNoRequestConn は Middleware が適用されていないリクエストで Conn を呼んだ場合のエラーです。
var ErrNoRequestConn = errors.New("storage: middleware not installed for this request")

// requestConn はリクエスト内で共有される遅延接続です。
// 1リクエストは1つの goroutine で処理されるためロックは持ちません。
type requestConn struct {
	db   *sql.DB
	ctx  context.Context
	conn *sql.Conn
}

func (r *requestConn) get() (*sql.Conn, error) {
	if r.conn != nil {
		return r.conn, nil
	}
	conn, err := r.db.Conn(r.ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	r.conn = conn
	return conn, nil
}

func (r *requestConn) close() error {
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

// Middleware はリクエストごとの遅延接続を登録し、リクエスト終了時に必ず閉じます。
// ハンドラーがパニックした場合も defer により接続は返却されます。
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := &requestConn{db: m.db, ctx: c.Request.Context()}
		c.Set(contextConnKey, rc)
		defer func() {
			if err := rc.close(); err != nil {
				m.logger.Printf("failed to close request connection path=%s: %v", c.Request.URL.Path, err)
			}
		}()
		c.Next()
	}
}

// Conn は現在のリクエストに紐づく接続を返します。初回呼び出し時にプールから取得し、
// 以降は同じ接続を返します。
func Conn(c *gin.Context) (*sql.Conn, error) {
	v, ok := c.Get(contextConnKey)
	if !ok {
		return nil, ErrNoRequestConn
	}
	rc, ok := v.(*requestConn)
	if !ok || rc == nil {
		return nil, ErrNoRequestConn
	}
	return rc.get()
}
