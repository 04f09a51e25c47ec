package auth

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

// NewSessionStore は署名付きCookieのセッションストアを作成します。
func NewSessionStore(secret string, maxAge time.Duration, secure bool) cookie.Store {
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return store
}

// Sessions はセッションミドルウェアを返します。
func Sessions(store sessions.Store) gin.HandlerFunc {
	return sessions.Sessions(SessionCookieName, store)
}
