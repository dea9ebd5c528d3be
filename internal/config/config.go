// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// SMS 送信ドライバーの種別
const (
	SMSDriverLog   = "log"   // 送信せずログ出力のみ（開発用）
	SMSDriverHTTP  = "http"  // SMS ゲートウェイへ同期送信
	SMSDriverQueue = "queue" // Asynq 経由で非同期送信
)

// 検証コードの保存先
const (
	ChallengeBackendMemory = "memory"
	ChallengeBackendRedis  = "redis"
)

// DefaultPasswordPunctuation はパスワードに使用できる記号のデフォルト集合です。
const DefaultPasswordPunctuation = "!@#$%^&*,.?:-=+_/"

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// アプリケーション設定
	SessionSecret string // セッション署名用の秘密鍵
	DatabasePath  string // ユーザー情報を保存する SQLite ファイル

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// 検証コード設定
	ChallengeBackend      string        // memory または redis
	RedisURL              string        // 検証コード保存・SMSキュー用のRedis接続URL
	ImageCodeTTL          time.Duration // 画像認証コードの有効期限
	SMSCodeTTL            time.Duration // SMS認証コードの有効期限
	ChallengeReaperPeriod time.Duration // 期限切れコードの掃除間隔（0で無効、memoryのみ）
	CaptchaLength         int           // 画像認証コードの桁数
	CaptchaCaseFold       bool          // 画像認証コードの大文字小文字を区別しない
	DebugLogCodes         bool          // 発行したコードをログに出す（開発用）

	// SMS送信設定
	SMSDriver          string        // log, http, queue
	SMSGatewayURL      string        // SMSゲートウェイのエンドポイント
	SMSGatewayAPIKey   string        // SMSゲートウェイのAPIキー
	SMSSenderID        string        // 送信者ID
	SMSDispatchTimeout time.Duration // 1回の送信処理のタイムアウト
	DispatchRecordTTL  time.Duration // 送信ジョブ状態の保持期間

	// パスワードポリシー
	PasswordPunctuation string // 許可する記号
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// アプリケーション設定
		SessionSecret: getEnv("SESSION_SECRET", ""),
		DatabasePath:  getEnv("DATABASE_PATH", "data/news.db"),

		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// 検証コード設定
		ChallengeBackend:      strings.ToLower(getEnv("CHALLENGE_BACKEND", ChallengeBackendMemory)),
		RedisURL:              getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		ImageCodeTTL:          getEnvAsSeconds("IMAGE_CODE_TTL_SECONDS", 300),
		SMSCodeTTL:            getEnvAsSeconds("SMS_CODE_TTL_SECONDS", 600),
		ChallengeReaperPeriod: getEnvAsSeconds("CHALLENGE_REAPER_SECONDS", 60),
		CaptchaLength:         getEnvAsInt("CAPTCHA_LENGTH", 4),
		CaptchaCaseFold:       getEnvAsBool("CAPTCHA_CASE_INSENSITIVE", false),
		DebugLogCodes:         getEnvAsBool("DEBUG_LOG_CODES", false),

		// SMS送信設定
		SMSDriver:          strings.ToLower(getEnv("SMS_DRIVER", SMSDriverLog)),
		SMSGatewayURL:      getEnv("SMS_GATEWAY_URL", ""),
		SMSGatewayAPIKey:   getEnv("SMS_GATEWAY_API_KEY", ""),
		SMSSenderID:        getEnv("SMS_SENDER_ID", ""),
		SMSDispatchTimeout: getEnvAsSeconds("SMS_DISPATCH_TIMEOUT_SECONDS", 10),
		DispatchRecordTTL:  time.Duration(getEnvAsInt("DISPATCH_RECORD_TTL_MINUTES", 30)) * time.Minute,

		// パスワードポリシー
		PasswordPunctuation: getEnv("PASSWORD_PUNCTUATION", DefaultPasswordPunctuation),
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
	switch c.ChallengeBackend {
	case ChallengeBackendMemory:
	case ChallengeBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when CHALLENGE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unsupported CHALLENGE_BACKEND: %q", c.ChallengeBackend)
	}

	switch c.SMSDriver {
	case SMSDriverLog:
	case SMSDriverHTTP, SMSDriverQueue:
		if c.SMSGatewayAPIKey == "" {
			return fmt.Errorf("SMS_GATEWAY_API_KEY is required when SMS_DRIVER=%s", c.SMSDriver)
		}
		if c.SMSDriver == SMSDriverQueue && c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SMS_DRIVER=queue")
		}
	default:
		return fmt.Errorf("unsupported SMS_DRIVER: %q", c.SMSDriver)
	}

	if c.CaptchaLength < 4 || c.CaptchaLength > 6 {
		return fmt.Errorf("CAPTCHA_LENGTH must be between 4 and 6")
	}
	if c.ImageCodeTTL <= 0 || c.SMSCodeTTL <= 0 {
		return fmt.Errorf("code TTL must be positive")
	}
	if c.SMSDispatchTimeout <= 0 {
		return fmt.Errorf("SMS_DISPATCH_TIMEOUT_SECONDS must be positive")
	}
	if c.PasswordPunctuation == "" {
		return fmt.Errorf("PASSWORD_PUNCTUATION must not be empty")
	}

	// ローカル開発では緩くてよいが、本番環境では厳格にチェックする
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.SMSDriver == SMSDriverLog {
			return fmt.Errorf("SMS_DRIVER=log is not allowed in release mode")
		}
		if c.DebugLogCodes {
			return fmt.Errorf("DEBUG_LOG_CODES is not allowed in release mode")
		}
	}

	return nil
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

// getEnvAsSeconds は秒数の環境変数を time.Duration として取得します。
func getEnvAsSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSeconds)) * time.Second
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
