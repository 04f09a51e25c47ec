package auth

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/flaskr/internal/requestctx"
	"github.com/yourusername/flaskr/internal/storage"
	"github.com/yourusername/flaskr/internal/users"
	"github.com/yourusername/flaskr/internal/web"
)

// LoadLoggedInUser はすべてのリクエストの前にセッションからログインユーザーを読み込むミドルウェアです。
// セッションに user_id が無い、または該当ユーザーが存在しない場合は匿名として扱います。
func (m *Manager) LoadLoggedInUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := readUserID(sessions.Default(c).Get(sessionKeyUserID))
		if !ok {
			requestctx.SetUser(c, nil)
			c.Next()
			return
		}

		conn, err := storage.Conn(c)
		if err != nil {
			web.ServerError(c, m.logger, "load user", err)
			return
		}

		user, err := users.FindByID(c.Request.Context(), conn, userID)
		if err != nil && !errors.Is(err, users.ErrNotFound) {
			web.ServerError(c, m.logger, "load user", err)
			return
		}

		requestctx.SetUser(c, user)
		c.Next()
	}
}

// RequireLogin は匿名リクエストをログインページへリダイレクトするミドルウェアです。
// LoadLoggedInUser の後に適用してください。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if requestctx.User(c) == nil {
			c.Redirect(http.StatusFound, LoginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

func readUserID(v interface{}) (int64, bool) {
	switch id := v.(type) {
	case int64:
		return id, true
	case int:
		return int64(id), true
	case float64:
		return int64(id), true
	default:
		return 0, false
	}
}
