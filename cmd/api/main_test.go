package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/flaskr/internal/config"
	"github.com/yourusername/flaskr/internal/storage"
	"github.com/yourusername/flaskr/internal/storage/storagetest"
	"github.com/yourusername/flaskr/internal/throttle"
)

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:          "test-secret",
		SessionMaxAgeHours: 1,
		GinMode:            gin.TestMode,
		LoginMaxAttempts:   5,
		LoginWindowMinutes: 15,
		LoginLockMinutes:   10,
	}
}

func newServer(t *testing.T, cfg *config.Config) (*httptest.Server, *storage.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storagetest.Open(t)
	limiter, closeLimiter, err := setupLoginLimiter(cfg)
	require.NoError(t, err)
	t.Cleanup(closeLimiter)

	router := gin.New()
	require.NoError(t, setupRouter(router, cfg, store, limiter))

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, store
}

func TestRunCommandInitDB(t *testing.T) {
	store := storagetest.Open(t)
	_, err := store.DB().Exec("INSERT INTO user (username, password) VALUES ('a', 'x')")
	require.NoError(t, err)

	require.NoError(t, runCommand(context.Background(), "init-db", store))

	var n int
	require.NoError(t, store.DB().QueryRow("SELECT COUNT(*) FROM user").Scan(&n))
	assert.Zero(t, n)
}

func TestRunCommandUnknown(t *testing.T) {
	store := storagetest.Open(t)
	err := runCommand(context.Background(), "drop-everything", store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init-db")
}

func TestHealth(t *testing.T) {
	server, _ := newServer(t, testConfig())

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestCORSOnlyForConfiguredOrigins(t *testing.T) {
	cfg := testConfig()
	cfg.CORSAllowedOrigins = "http://allowed.example, "
	server, _ := newServer(t, cfg)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://allowed.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://allowed.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"http://a", "http://b"}, splitList(" http://a ,,http://b"))
}

func failLogin(t *testing.T, serverURL, forwardedFor string) int {
	t.Helper()
	form := url.Values{"username": {"nobody"}, "password": {"wrong"}}
	req, err := http.NewRequest(http.MethodPost, serverURL+"/auth/login", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode
}

func TestLoginLockoutIgnoresForwardedForByDefault(t *testing.T) {
	cfg := testConfig()
	cfg.LoginMaxAttempts = 2
	server, _ := newServer(t, cfg)

	assert.Equal(t, http.StatusOK, failLogin(t, server.URL, "203.0.113.1"))
	assert.Equal(t, http.StatusOK, failLogin(t, server.URL, "203.0.113.2"))
	for i := 3; i <= 6; i++ {
		assert.Equal(t, http.StatusTooManyRequests, failLogin(t, server.URL, fmt.Sprintf("203.0.113.%d", i)))
	}
}

func TestLoginLockoutUsesForwardedForFromTrustedProxy(t *testing.T) {
	cfg := testConfig()
	cfg.LoginMaxAttempts = 2
	cfg.TrustedProxies = "127.0.0.1, ::1"
	server, _ := newServer(t, cfg)

	assert.Equal(t, http.StatusOK, failLogin(t, server.URL, "203.0.113.1"))
	assert.Equal(t, http.StatusOK, failLogin(t, server.URL, "203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, failLogin(t, server.URL, "203.0.113.1"))
	// プロキシ経由の別クライアントは独立して数える
	assert.Equal(t, http.StatusOK, failLogin(t, server.URL, "203.0.113.2"))
}

func TestSetupRouterRejectsInvalidTrustedProxy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.TrustedProxies = "not-an-ip"

	err := setupRouter(gin.New(), cfg, storagetest.Open(t), throttle.NewMemory(throttle.DefaultPolicy))
	assert.Error(t, err)
}

func TestSetupLoginLimiter(t *testing.T) {
	limiter, closeFn, err := setupLoginLimiter(testConfig())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &throttle.Memory{}, limiter)

	cfg := testConfig()
	cfg.LoginThrottleRedisURL = "not-a-redis-url"
	_, _, err = setupLoginLimiter(cfg)
	assert.Error(t, err)
}

func TestBlogFlow(t *testing.T) {
	server, store := newServer(t, testConfig())

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	post := func(path string, form url.Values) *http.Response {
		resp, err := client.PostForm(server.URL+path, form)
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return resp
	}
	get := func(path string) (*http.Response, string) {
		resp, err := client.Get(server.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, string(b)
	}

	creds := url.Values{"username": {"alice"}, "password": {"s3cret"}}
	resp := post("/auth/register", creds)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/auth/login", resp.Header.Get("Location"))

	resp = post("/auth/login", creds)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp = post("/create", url.Values{"title": {"hello world"}, "body": {"first"}})
	require.Equal(t, http.StatusFound, resp.StatusCode)

	_, body := get("/")
	assert.Contains(t, body, "hello world")
	assert.Contains(t, body, "by alice on")
	assert.Contains(t, body, "Log Out")

	resp, _ = get("/auth/logout")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	resp, _ = get("/create")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/auth/login", resp.Header.Get("Location"))

	// リクエスト終了時に接続がプールへ返却されている
	assert.Zero(t, store.DB().Stats().InUse)
}
