// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// 認証モード
const (
	AuthModeBackend = "backend"
	AuthModeLocal   = "local"
)

// ストレージドライバー
const (
	StorageDriverLocal   = "local"
	StorageDriverBackend = "backend"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string `env:"PORT,default=8080"`     // APIサーバーのポート番号
	GinMode string `env:"GIN_MODE,default=debug"` // Ginの実行モード (debug, release, test)
	BaseURL string `env:"BASE_URL,default=http://localhost:8080"`

	// ログ設定
	LogLevel string `env:"LOG_LEVEL,default=info"`

	// CORS設定
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:5173"` // カンマ区切り

	// セッション/認証設定
	SessionSecret   string `env:"SESSION_SECRET"` // セッション署名用の秘密鍵
	AuthMode        string `env:"AUTH_MODE,default=backend"`
	AppUsername     string `env:"APP_USERNAME"`      // local モードのログイン用ユーザー名
	AppPasswordHash string `env:"APP_PASSWORD_HASH"` // bcryptでハッシュ化されたパスワード

	// バックエンド（BaaS）設定
	BackendURL        string        `env:"BACKEND_URL"`
	BackendServiceKey string        `env:"BACKEND_SERVICE_KEY"`
	BackendAnonKey    string        `env:"BACKEND_ANON_KEY"`
	BackendTimeout    time.Duration `env:"BACKEND_TIMEOUT,default=15s"`
	DatabaseURL       string        `env:"DATABASE_URL"` // マイグレーション専用の Postgres 接続文字列

	// ストレージ設定
	StorageDriver   string `env:"STORAGE_DRIVER,default=local"`
	StorageLocalDir string `env:"STORAGE_LOCAL_DIR,default=/tmp/club-portal"`
	StorageBucket   string `env:"STORAGE_BUCKET,default=registration-documents"`

	// ジョブ/キュー設定
	QueueRedisURL     string `env:"QUEUE_REDIS_URL,default=redis://127.0.0.1:6379/0"`
	JobsInline        bool   `env:"JOBS_INLINE,default=false"` // true の場合は Webhook 受信時にその場で処理する
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=4"`

	// 登録フォーム設定
	RegistrationDraftTTL       time.Duration `env:"REGISTRATION_DRAFT_TTL,default=24h"`
	RegistrationFeeJuniorCents int64         `env:"REGISTRATION_FEE_JUNIOR_CENTS,default=12000"`
	RegistrationFeeSeniorCents int64         `env:"REGISTRATION_FEE_SENIOR_CENTS,default=18000"`
	RegistrationCurrency       string        `env:"REGISTRATION_CURRENCY,default=eur"`
	SeasonCutoff               string        `env:"SEASON_CUTOFF,default=09-01"` // MM-DD
	MaxDocumentSize            int64         `env:"MAX_DOCUMENT_SIZE,default=10485760"`
	MaxDocumentPages           int           `env:"MAX_DOCUMENT_PAGES,default=10"`
	RegistrationRatePerMinute  int           `env:"REGISTRATION_RATE_PER_MINUTE,default=30"`

	// 決済設定
	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	CheckoutSuccessURL  string `env:"CHECKOUT_SUCCESS_URL,default=http://localhost:5173/registration/success?session_id={CHECKOUT_SESSION_ID}"`
	CheckoutCancelURL   string `env:"CHECKOUT_CANCEL_URL,default=http://localhost:5173/registration/cancelled"`
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{}
	if err := envdecode.Decode(config); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
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

// Validate は設定値の形式を検証します。migrate を含むすべてのコマンドで使われます。
func (c *Config) Validate() error {
	switch c.AuthMode {
	case AuthModeBackend, AuthModeLocal:
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q", AuthModeBackend, AuthModeLocal)
	}
	switch c.StorageDriver {
	case StorageDriverLocal, StorageDriverBackend:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q", StorageDriverLocal, StorageDriverBackend)
	}
	if _, _, err := c.SeasonCutoffMonthDay(); err != nil {
		return err
	}
	return nil
}

// ValidateServer は serve / worker の起動に必要な設定がそろっているかを検証します。
// Webhook の署名鍵とキューの接続先は release モードでのみ必須です。
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}

	type setting struct{ name, value string }
	required := []setting{
		{"SESSION_SECRET", c.SessionSecret},
		{"BACKEND_URL", c.BackendURL},
		{"BACKEND_SERVICE_KEY", c.BackendServiceKey},
		{"STRIPE_SECRET_KEY", c.StripeSecretKey},
	}
	if c.AuthMode == AuthModeLocal {
		required = append(required,
			setting{"APP_USERNAME", c.AppUsername},
			setting{"APP_PASSWORD_HASH", c.AppPasswordHash},
		)
	}
	if c.IsRelease() {
		required = append(required,
			setting{"STRIPE_WEBHOOK_SECRET", c.StripeWebhookSecret},
			setting{"QUEUE_REDIS_URL", c.QueueRedisURL},
		)
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}
	return nil
}

// SeasonCutoffMonthDay は SEASON_CUTOFF (MM-DD) を月と日に分解します。
func (c *Config) SeasonCutoffMonthDay() (time.Month, int, error) {
	t, err := time.Parse("01-02", c.SeasonCutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("SEASON_CUTOFF must be MM-DD: %w", err)
	}
	return t.Month(), t.Day(), nil
}

// IsRelease は release モードかどうかを返します。
func (c *Config) IsRelease() bool {
	return c.GinMode == "release"
}
