// Package main は Web サーバーのエントリーポイントです。
//
// 使い方:
//
//	api          HTTP サーバーを起動します
//	api init-db  テーブルを削除して作り直します
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/flaskr/internal/auth"
	"github.com/yourusername/flaskr/internal/blog"
	"github.com/yourusername/flaskr/internal/config"
	"github.com/yourusername/flaskr/internal/requestctx"
	"github.com/yourusername/flaskr/internal/storage"
	"github.com/yourusername/flaskr/internal/throttle"
	"github.com/yourusername/flaskr/internal/web"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.Open(cfg.DatabasePath, log.Default())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	if len(os.Args) > 1 {
		if err := runCommand(context.Background(), os.Args[1], store); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	limiter, closeLimiter, err := setupLoginLimiter(cfg)
	if err != nil {
		log.Fatalf("Failed to set up login limiter: %v", err)
	}
	defer closeLimiter()

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()
	if err := setupRouter(router, cfg, store, limiter); err != nil {
		log.Fatalf("Failed to set up router: %v", err)
	}

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting server on %s (mode: %s, database: %s)", addr, cfg.GinMode, cfg.DatabasePath)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// runCommand は管理用サブコマンドを実行します。
func runCommand(ctx context.Context, name string, store *storage.Manager) error {
	switch name {
	case "init-db":
		if err := store.InitSchema(ctx); err != nil {
			return err
		}
		fmt.Println("Initialized the database.")
		return nil
	default:
		return fmt.Errorf("unknown command %q (available: init-db)", name)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(store *storage.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.DB().PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unavailable",
				"service": "flaskr",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "flaskr",
		})
	}
}

// setupRouter はミドルウェアとルーティングの配線を行います。
// ミドルウェアの順序: リクエストID → セッション → リクエスト単位のDB接続 → ログインユーザー読み込み
func setupRouter(router *gin.Engine, cfg *config.Config, store *storage.Manager, limiter throttle.Limiter) error {
	// ログイン試行制限は c.ClientIP() 単位のため、X-Forwarded-For は信頼済みプロキシからのみ受け付ける
	if err := router.SetTrustedProxies(splitList(cfg.TrustedProxies)); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	router.SetHTMLTemplate(web.Templates())

	// CORS は許可オリジンが設定されている場合のみ有効にする
	if origins := splitList(cfg.CORSAllowedOrigins); len(origins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
		corsConfig.ExposeHeaders = []string{requestctx.RequestIDHeader}
		router.Use(cors.New(corsConfig))
	}

	sessionStore := auth.NewSessionStore(cfg.SecretKey, cfg.SessionMaxAge(), cfg.GinMode == gin.ReleaseMode)
	authManager := auth.NewManager(limiter, log.Default())

	router.Use(
		requestctx.RequestID(),
		auth.Sessions(sessionStore),
		store.Middleware(),
		authManager.LoadLoggedInUser(),
	)

	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth(store))

	authManager.RegisterRoutes(router)
	blog.NewHandler(log.Default()).RegisterRoutes(router, authManager.RequireLogin())
	return nil
}

// splitList はカンマ区切りの設定値を分割します。空なら nil を返します。
func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
