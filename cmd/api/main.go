// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yourusername/camp-trail/internal/account"
	"github.com/yourusername/camp-trail/internal/auth"
	"github.com/yourusername/camp-trail/internal/config"
	"github.com/yourusername/camp-trail/internal/httpx"
	"github.com/yourusername/camp-trail/internal/security"
	"github.com/yourusername/camp-trail/internal/session"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// 資格情報ストア（SQLite）
	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	storeTimeout := time.Duration(cfg.StoreTimeoutSeconds) * time.Second
	accounts, err := account.NewStore(db, account.Policy{
		MaxAttempts:  cfg.LoginMaxAttempts,
		LockDuration: time.Duration(cfg.LoginLockMinutes) * time.Minute,
		StoreTimeout: storeTimeout,
	}, log.Default())
	if err != nil {
		log.Fatalf("Failed to init account store: %v", err)
	}

	// セッションストア（Redis）
	opt, err := redis.ParseURL(cfg.SessionRedisURL)
	if err != nil {
		log.Fatalf("Failed to parse session redis url: %v", err)
	}
	rdb := redis.NewClient(opt)

	sessionManager, err := session.NewManager(rdb, cfg.SessionSecret, cfg.SessionCryptoKey, session.Options{
		CookieName:   cfg.SessionCookieName,
		MaxAge:       time.Duration(cfg.SessionMaxAgeHours) * time.Hour,
		TouchAfter:   time.Duration(cfg.SessionTouchHours) * time.Hour,
		Secure:       cfg.GinMode == gin.ReleaseMode,
		StoreTimeout: storeTimeout,
	}, log.Default())
	if err != nil {
		log.Fatalf("Failed to init session manager: %v", err)
	}

	authManager := auth.NewManager(accounts, sessionManager, log.Default())

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
	router.Use(cors.New(corsConfig))

	// レスポンス毎のCSPノンスとセキュリティヘッダー
	router.Use(security.Headers(security.Policy{
		ScriptOrigins:  config.SplitOrigins(cfg.CSPScriptOrigins),
		StyleOrigins:   config.SplitOrigins(cfg.CSPStyleOrigins),
		ImgOrigins:     config.SplitOrigins(cfg.CSPImgOrigins),
		ConnectOrigins: config.SplitOrigins(cfg.CSPConnectOrigins),
	}))

	// セッションを解決して現在のユーザーを載せる
	router.Use(authManager.CurrentIdentity())

	// ルーティングの設定
	maintenanceManager, err := setupMaintenance(cfg, accounts, sessionManager)
	if err != nil {
		// 掃除が止まっていてもサービス自体は提供できる
		log.Printf("maintenance disabled: %v", err)
		maintenanceManager = nil
	}
	setupRoutes(router, authManager, maintenanceManager)
	router.NoRoute(httpx.NotFound)

	if maintenanceManager != nil {
		maintenanceManager.Start()
	}

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "camp-trail-api",
		"version": "0.1.0",
	})
}
