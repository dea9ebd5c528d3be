// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/news-portal/internal/account"
	"github.com/yourusername/news-portal/internal/auth"
	"github.com/yourusername/news-portal/internal/captcha"
	"github.com/yourusername/news-portal/internal/challenge"
	"github.com/yourusername/news-portal/internal/config"
	"github.com/yourusername/news-portal/internal/jobs"
	"github.com/yourusername/news-portal/internal/sms"
	"github.com/yourusername/news-portal/internal/storage"
)

// app は起動時に組み立てた依存関係をまとめたものです。
type app struct {
	db         *sql.DB
	auth       *auth.Manager
	dispatcher *jobs.Manager
	closers    []func() error
}

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log.Default())
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.close()

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// セッションストアの設定
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		// release モードでは Validate で弾かれるので、ここに来るのは開発時のみ
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			log.Fatalf("Failed to generate session secret: %v", err)
		}
		log.Printf("SESSION_SECRET is empty; using a random key (sessions will not survive restart)")
	}
	store := cookie.NewStore(secret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

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
		"X-CSRF-Token", // CSRF保護用ヘッダー
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token"}
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	setupRoutes(router, a)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if a.dispatcher != nil {
		if err := a.dispatcher.Shutdown(shutdownCtx); err != nil {
			log.Printf("Dispatcher shutdown error: %v", err)
		}
	}
}

// buildApp は DB・認証コード・SMS 送信ドライバーを設定に従って組み立てます。
func buildApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*app, error) {
	a := &app{}

	db, err := storage.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	accounts := account.NewService(
		account.NewStore(db),
		account.DefaultPasswordPolicy(cfg.PasswordPunctuation),
	)

	backend, err := setupChallengeBackend(ctx, cfg, a, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	renderer, err := captcha.NewDigitRenderer(cfg.CaptchaLength, 0, 0)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("captcha renderer: %w", err)
	}

	sender, err := setupSender(cfg, a, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	challenges, err := challenge.NewService(backend, renderer, sender, challenge.Policy{
		ImageTTL:             cfg.ImageCodeTTL,
		SmsTTL:               cfg.SMSCodeTTL,
		DispatchTimeout:      cfg.SMSDispatchTimeout,
		CaseInsensitiveImage: cfg.CaptchaCaseFold,
		DebugLogCodes:        cfg.DebugLogCodes,
		ValidateMobile:       account.ValidateMobile,
	}, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("challenge service: %w", err)
	}

	a.auth = auth.NewManager(cfg, accounts, challenges, logger)
	return a, nil
}

func setupChallengeBackend(ctx context.Context, cfg *config.Config, a *app, logger *log.Logger) (challenge.Backend, error) {
	switch cfg.ChallengeBackend {
	case config.ChallengeBackendRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		a.closers = append(a.closers, rdb.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return challenge.NewRedisBackend(rdb, ""), nil
	default:
		backend := challenge.NewMemoryBackend()
		backend.StartReaper(ctx, cfg.ChallengeReaperPeriod, logger)
		return backend, nil
	}
}

func setupSender(cfg *config.Config, a *app, logger *log.Logger) (challenge.Sender, error) {
	switch cfg.SMSDriver {
	case config.SMSDriverHTTP:
		return sms.NewGatewayClient(cfg.SMSGatewayAPIKey, cfg.SMSGatewayURL, cfg.SMSSenderID, cfg.SMSDispatchTimeout), nil
	case config.SMSDriverQueue:
		manager, closeRedis, err := setupDispatch(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("sms dispatch queue: %w", err)
		}
		a.closers = append(a.closers, closeRedis)
		manager.StartWorkers()
		a.dispatcher = manager
		return manager, nil
	default:
		return &sms.LogSender{Logger: logger}, nil
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("close error: %v", err)
		}
	}
	a.closers = nil
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "news-portal-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, a *app) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		user := api.Group("/user")
		a.auth.RegisterRoutes(user)

		// キュー送信ドライバーのときだけ送信状況を参照できる
		if a.dispatcher != nil {
			user.GET("/sms_dispatch/:id", dispatchStatusHandler(a.dispatcher))
		}
	}
}
