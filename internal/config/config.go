// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// 資格情報ストア設定
	DatabasePath string // SQLiteデータベースのパス

	// セッション設定
	SessionRedisURL    string // セッションストア用Redis接続URL
	SessionSecret      string // Cookie署名用の秘密鍵
	SessionCryptoKey   string // ストア上のペイロード暗号化鍵（署名鍵とは別）
	SessionCookieName  string // セッションCookie名（実装技術を推測されない名前にする）
	SessionMaxAgeHours int    // セッションの有効期間（時間）
	SessionTouchHours  int    // 最終アクセス時刻を書き直す間隔（時間）

	// ログインロックアウト設定
	LoginMaxAttempts int // ロックまでの連続失敗回数
	LoginLockMinutes int // ロック継続時間（分）

	// 外部ストア呼び出し
	StoreTimeoutSeconds int // Redis/SQLite呼び出しのタイムアウト（秒）

	// CSP許可オリジン（カンマ区切り）
	CSPScriptOrigins  string
	CSPStyleOrigins   string
	CSPImgOrigins     string
	CSPConnectOrigins string
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// 資格情報ストア設定
		DatabasePath: getEnv("DATABASE_PATH", "camp-trail.db"),

		// セッション設定
		SessionRedisURL:    getEnv("SESSION_REDIS_URL", "redis://127.0.0.1:6379/0"),
		SessionSecret:      getEnv("SESSION_SECRET", ""),
		SessionCryptoKey:   getEnv("SESSION_CRYPTO_KEY", ""),
		SessionCookieName:  getEnv("SESSION_COOKIE_NAME", "session"),
		SessionMaxAgeHours: getEnvAsInt("SESSION_MAX_AGE_HOURS", 24*7), // 7日
		SessionTouchHours:  getEnvAsInt("SESSION_TOUCH_HOURS", 24),

		// ログインロックアウト設定
		LoginMaxAttempts: getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginLockMinutes: getEnvAsInt("LOGIN_LOCK_MINUTES", 10),

		// 外部ストア呼び出し
		StoreTimeoutSeconds: getEnvAsInt("STORE_TIMEOUT_SECONDS", 3),

		// CSP許可オリジン
		CSPScriptOrigins:  getEnv("CSP_SCRIPT_ORIGINS", "https://cdn.jsdelivr.net,https://cdn.maptiler.com"),
		CSPStyleOrigins:   getEnv("CSP_STYLE_ORIGINS", "https://cdn.jsdelivr.net,https://cdn.maptiler.com"),
		CSPImgOrigins:     getEnv("CSP_IMG_ORIGINS", "https://res.cloudinary.com,https://api.maptiler.com,https://images.unsplash.com"),
		CSPConnectOrigins: getEnv("CSP_CONNECT_ORIGINS", "https://cdn.jsdelivr.net,https://cdn.maptiler.com,https://api.maptiler.com"),
	}

	// 必須設定のバリデーション
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
	// ローカル開発では秘密鍵は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.SessionCryptoKey == "" {
			return fmt.Errorf("SESSION_CRYPTO_KEY is required in release mode")
		}
		if c.SessionRedisURL == "" {
			return fmt.Errorf("SESSION_REDIS_URL is required in release mode")
		}
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required in release mode")
		}
	}

	if c.SessionMaxAgeHours <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE_HOURS must be positive")
	}
	if c.SessionTouchHours <= 0 || c.SessionTouchHours > c.SessionMaxAgeHours {
		return fmt.Errorf("SESSION_TOUCH_HOURS must be positive and not exceed SESSION_MAX_AGE_HOURS")
	}
	if c.LoginMaxAttempts <= 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive")
	}

	return nil
}

// SplitOrigins はカンマ区切りのオリジン一覧を配列に変換します。
func SplitOrigins(value string) []string {
	var origins []string
	for _, origin := range strings.Split(value, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
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
