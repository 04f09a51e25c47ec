// Package requestctx はリクエスト単位の状態（ログインユーザー、リクエストID）を扱います。
package requestctx

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourusername/flaskr/internal/users"
)

const (
	userKey      = "requestctx.user"
	requestIDKey = "requestctx.request_id"

	// RequestIDHeader はリクエストIDを運ぶヘッダー名です。
	RequestIDHeader = "X-Request-ID"

	maxRequestIDLen = 128
)

// SetUser は現在のリクエストのログインユーザーを設定します。nil は匿名を表します。
func SetUser(c *gin.Context, user *users.User) {
	c.Set(userKey, user)
}

// User は現在のリクエストのログインユーザーを返します。匿名の場合は nil です。
func User(c *gin.Context) *users.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*users.User)
	return user
}

// RequestID はリクエストIDを払い出すミドルウェアを返します。
// クライアントが X-Request-ID を送ってきた場合はそれを引き継ぎます。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// validRequestID は 1〜128 文字の [A-Za-z0-9._-] のみを受け付けます。
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		ch := id[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '.' || ch == '_' || ch == '-':
		default:
			return false
		}
	}
	return true
}

// RequestIDFrom は現在のリクエストIDを返します。未設定なら空文字です。
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
