// Package auth は認証・認可機能を提供します。
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/flaskr/internal/requestctx"
	"github.com/yourusername/flaskr/internal/storage"
	"github.com/yourusername/flaskr/internal/throttle"
	"github.com/yourusername/flaskr/internal/users"
	"github.com/yourusername/flaskr/internal/web"
)

const (
	SessionCookieName = "flaskr_session"
	sessionKeyUserID  = "user_id"

	LoginPath    = "/auth/login"
	RegisterPath = "/auth/register"
	IndexPath    = "/"

	registerTemplate = "auth/register.html"
	loginTemplate    = "auth/login.html"
)

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	limiter  throttle.Limiter
	logger   *log.Logger
	hashCost int
}

// NewManager は認証マネージャーを作成します。limiter が nil の場合は
// throttle.DefaultPolicy のプロセス内リミッターを使用します。
func NewManager(limiter throttle.Limiter, logger *log.Logger) *Manager {
	if limiter == nil {
		limiter = throttle.NewMemory(throttle.DefaultPolicy)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		limiter:  limiter,
		logger:   logger,
		hashCost: bcrypt.DefaultCost,
	}
}

// RegisterRoutes は /auth 配下のルートを登録します。
func (m *Manager) RegisterRoutes(r gin.IRouter) {
	authRoutes := r.Group("/auth")
	{
		authRoutes.GET("/register", m.Register)
		authRoutes.POST("/register", m.Register)
		authRoutes.GET("/login", m.Login)
		authRoutes.POST("/login", m.Login)
		authRoutes.GET("/logout", m.Logout)
	}
}

// Register は /auth/register のハンドラーです。
func (m *Manager) Register(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		web.Render(c, http.StatusOK, registerTemplate, gin.H{"Title": "Register"})
		return
	}

	form := bindCredentials(c)
	if msg := form.validate(); msg != "" {
		m.rejectForm(c, http.StatusOK, registerTemplate, "Register", msg)
		return
	}

	// ハッシュ化は書き込みロックの外で行う。長すぎるパスワードの報告は重複チェックの後
	var hash []byte
	if !form.passwordTooLong() {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(form.Password), m.hashCost)
		if err != nil {
			web.ServerError(c, m.logger, "hash password", err)
			return
		}
	}

	conn, err := storage.Conn(c)
	if err != nil {
		web.ServerError(c, m.logger, "register", err)
		return
	}

	ctx := c.Request.Context()
	err = storage.WithTx(ctx, conn, func(tx *sql.Tx) error {
		exists, err := users.Exists(ctx, tx, form.Username)
		if err != nil {
			return err
		}
		if exists {
			return users.ErrUsernameTaken
		}
		if hash == nil {
			return bcrypt.ErrPasswordTooLong
		}
		_, err = users.Create(ctx, tx, form.Username, string(hash))
		return err
	})
	switch {
	case errors.Is(err, users.ErrUsernameTaken):
		m.rejectForm(c, http.StatusOK, registerTemplate, "Register",
			fmt.Sprintf("User %s is already registered.", form.Username))
		return
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		m.rejectForm(c, http.StatusOK, registerTemplate, "Register", msgPasswordTooLong)
		return
	}
	if err != nil {
		web.ServerError(c, m.logger, "register", err)
		return
	}

	m.logger.Printf("registered user=%q request_id=%s", form.Username, requestctx.RequestIDFrom(c))
	c.Redirect(http.StatusFound, LoginPath)
}

// Login は /auth/login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		web.Render(c, http.StatusOK, loginTemplate, gin.H{"Title": "Log In"})
		return
	}

	ctx := c.Request.Context()
	ip := c.ClientIP()
	if retryAfter := m.checkLock(ctx, ip); retryAfter > 0 {
		// Retry-After は秒数で返す
		c.Header("Retry-After", strconv.FormatInt(int64(math.Ceil(retryAfter.Seconds())), 10))
		m.rejectForm(c, http.StatusTooManyRequests, loginTemplate, "Log In", msgTooManyAttempts)
		return
	}

	form := bindCredentials(c)

	conn, err := storage.Conn(c)
	if err != nil {
		web.ServerError(c, m.logger, "login", err)
		return
	}

	user, err := users.FindByUsername(ctx, conn, form.Username)
	var msg string
	switch {
	case errors.Is(err, users.ErrNotFound):
		msg = msgIncorrectUsername
	case err != nil:
		web.ServerError(c, m.logger, "login", err)
		return
	case bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(form.Password)) != nil:
		msg = msgIncorrectPassword
	}

	if msg != "" {
		m.recordFailure(ctx, ip)
		m.rejectForm(c, http.StatusOK, loginTemplate, "Log In", msg)
		return
	}

	if err := m.limiter.Reset(ctx, ip); err != nil {
		m.logger.Printf("failed to reset login attempts ip=%s: %v", ip, err)
	}

	session := sessions.Default(c)
	session.Clear()
	session.Set(sessionKeyUserID, user.ID)
	if err := session.Save(); err != nil {
		web.ServerError(c, m.logger, "save session", err)
		return
	}

	c.Redirect(http.StatusFound, IndexPath)
}

// Logout は /auth/logout のハンドラーです。ログイン状態に関わらずセッションを消去します。
func (m *Manager) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		web.ServerError(c, m.logger, "clear session", err)
		return
	}
	c.Redirect(http.StatusFound, IndexPath)
}

// rejectForm はメッセージをフラッシュしてフォームを再表示します。
func (m *Manager) rejectForm(c *gin.Context, code int, tmpl, title, msg string) {
	web.Flash(c, msg)
	web.Render(c, code, tmpl, gin.H{"Title": title})
}

// checkLock はロック中であれば残り時間を返します。
// ストアの障害時はログに残してログインを許可します。
func (m *Manager) checkLock(ctx context.Context, ip string) time.Duration {
	retryAfter, err := m.limiter.Check(ctx, ip)
	if err != nil {
		m.logger.Printf("failed to check login attempts ip=%s: %v", ip, err)
		return 0
	}
	return retryAfter
}

func (m *Manager) recordFailure(ctx context.Context, ip string) {
	remaining, err := m.limiter.RecordFailure(ctx, ip)
	if err != nil {
		m.logger.Printf("failed to record login failure ip=%s: %v", ip, err)
		return
	}
	if remaining == 0 {
		m.logger.Printf("login locked ip=%s", ip)
	}
}
