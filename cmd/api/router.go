package main

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/club-portal/internal/auth"
	"github.com/yourusername/club-portal/internal/club"
	"github.com/yourusername/club-portal/internal/config"
	"github.com/yourusername/club-portal/internal/content"
	"github.com/yourusername/club-portal/internal/logging"
	"github.com/yourusername/club-portal/internal/metrics"
	"github.com/yourusername/club-portal/internal/payment"
	"github.com/yourusername/club-portal/internal/ratelimit"
	"github.com/yourusername/club-portal/internal/registration"
	"github.com/yourusername/club-portal/internal/web"
)

// dashboardPrefix 配下はセッションゲートで保護されます。
const dashboardPrefix = "/dashboard"

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "club-portal-api",
		"version": version,
	})
}

// newRouter はミドルウェアとルーティングを配線した gin.Engine を返します。
func newRouter(cfg *config.Config, deps *app, logger logrus.FieldLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(logger), metrics.Middleware())

	// セッションストアの設定（クッキー署名鍵は必須）
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.IsRelease(),
		// ゲートのリダイレクト後にログイン画面へクッキーを送るため Lax
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-CSRF-Token",
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token"}
	router.Use(cors.New(corsConfig))

	router.SetHTMLTemplate(web.Templates())

	gate := auth.NewGate(auth.NewCookieSessions(deps.auth), logger)
	router.Use(gate.Protect(dashboardPrefix))

	setupRoutes(router, cfg, deps, logger)
	return router
}

// setupRoutes は公開APIとダッシュボードのルートを登録します。
func setupRoutes(router *gin.Engine, cfg *config.Config, deps *app, logger logrus.FieldLogger) {
	router.GET("/health", handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	authManager := auth.NewManager(deps.auth, logger)
	// ログイン時はセッション未生成なので CSRF 検証は不要
	router.GET(auth.DefaultLoginPath, authManager.LoginPage)
	router.POST(auth.DefaultLoginPath, authManager.Login)

	sponsors := content.NewResource[club.Sponsor, club.SponsorInput]("sponsors", "sponsor", deps.sponsors, logger)
	teams := content.NewResource[club.Team, club.TeamInput]("teams", "team", deps.teams, logger)
	players := content.NewResource[club.Player, club.PlayerInput]("players", "player", deps.players, logger)
	coaches := content.NewResource[club.Coach, club.CoachInput]("coaches", "coach", deps.coaches, logger)
	news := content.NewResource[club.NewsItem, club.NewsItemInput]("news", "news", deps.news, logger)
	results := content.NewResource[club.Result, club.ResultInput]("results", "result", deps.results, logger)
	registrations := content.NewResource[club.Registration, club.RegistrationInput]("registrations", "registration", deps.registrationRows, logger)

	api := router.Group("/api")
	{
		news.RegisterPublic(api)
		results.RegisterPublic(api)
		sponsors.RegisterPublic(api)
		teams.RegisterPublic(api)
		coaches.RegisterPublic(api)

		limiter := ratelimit.PerMinute(cfg.RegistrationRatePerMinute)
		registration.NewHandler(deps.registrations, cfg.MaxDocumentSize, logger).
			Register(api, limiter.Middleware())

		webhook := payment.NewWebhookHandler(cfg.StripeWebhookSecret, deps.dispatcher, logger)
		api.POST("/payments/webhook", webhook.Handle)
	}

	// ゲートを通過したリクエストのみ到達する
	dashboard := router.Group(dashboardPrefix, authManager.VerifyCSRF())
	{
		dashboard.GET("", authManager.Dashboard)
		dashboard.POST("/logout", authManager.Logout)

		admin := dashboard.Group("/api")
		admin.GET("/session", authManager.SessionInfo)
		sponsors.RegisterAdmin(admin)
		teams.RegisterAdmin(admin)
		players.RegisterAdmin(admin)
		coaches.RegisterAdmin(admin)
		news.RegisterAdmin(admin)
		results.RegisterAdmin(admin)
		registrations.RegisterPublic(admin)
	}
}
