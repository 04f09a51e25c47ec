// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultSecretKey は開発用のセッション署名鍵です。release モードでは使用できません。
const DefaultSecretKey = "dev"

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// データベース設定
	DatabasePath string // SQLite ファイルのパス

	// セッション設定
	SecretKey          string // セッションCookie署名用の秘密鍵
	SessionMaxAgeHours int    // セッションCookieの有効期間（時間）

	// サーバー設定
	Port    string // HTTPサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り、空なら無効）

	// リバースプロキシ設定
	TrustedProxies string // X-Forwarded-For を信頼するプロキシのIP/CIDR（カンマ区切り、空なら信頼しない）

	// ログイン試行制限
	LoginMaxAttempts      int    // ロックまでの失敗回数
	LoginWindowMinutes    int    // 失敗回数を数える期間（分）
	LoginLockMinutes      int    // ロック期間（分）
	LoginThrottleRedisURL string // 設定時は試行状態を Redis に保存
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		DatabasePath: getEnv("DATABASE", filepath.Join("instance", "flaskr.sqlite")),

		SecretKey:          getEnv("SECRET_KEY", DefaultSecretKey),
		SessionMaxAgeHours: getEnvAsInt("SESSION_MAX_AGE_HOURS", 12),

		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		TrustedProxies:     getEnv("TRUSTED_PROXIES", ""),

		LoginMaxAttempts:      getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginWindowMinutes:    getEnvAsInt("LOGIN_WINDOW_MINUTES", 15),
		LoginLockMinutes:      getEnvAsInt("LOGIN_LOCK_MINUTES", 10),
		LoginThrottleRedisURL: getEnv("LOGIN_THROTTLE_REDIS_URL", ""),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE is required")
	}
	if c.LoginMaxAttempts <= 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive, got %d", c.LoginMaxAttempts)
	}

	// ローカル開発では dev 鍵を許容する
	if c.GinMode == "release" {
		if c.SecretKey == "" || c.SecretKey == DefaultSecretKey {
			return fmt.Errorf("SECRET_KEY must be set to a non-default value in release mode")
		}
	}

	return nil
}

// SessionMaxAge はセッションCookieの有効期間を返します。
func (c *Config) SessionMaxAge() time.Duration {
	hours := c.SessionMaxAgeHours
	if hours <= 0 {
		hours = 12
	}
	return time.Duration(hours) * time.Hour
}

// LoginWindow は失敗回数を数える期間を返します。
func (c *Config) LoginWindow() time.Duration {
	return minutesOr(c.LoginWindowMinutes, 15)
}

// LoginLock はロック期間を返します。
func (c *Config) LoginLock() time.Duration {
	return minutesOr(c.LoginLockMinutes, 10)
}

func minutesOr(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Minute
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
