package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/club-portal/internal/auth"
	"github.com/yourusername/club-portal/internal/backend"
	"github.com/yourusername/club-portal/internal/club"
	"github.com/yourusername/club-portal/internal/config"
	"github.com/yourusername/club-portal/internal/jobs"
	"github.com/yourusername/club-portal/internal/registration"
	"github.com/yourusername/club-portal/internal/repository"
	"github.com/yourusername/club-portal/internal/service"
	"github.com/yourusername/club-portal/internal/storage"
)

type stubCheckout struct{}

func (stubCheckout) CreateCheckout(_ context.Context, req registration.CheckoutRequest) (*registration.CheckoutSession, error) {
	return &registration.CheckoutSession{ID: "cs_test_" + req.RegistrationID, URL: "https://checkout.stripe.com/c/pay/cs_test"}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		GinMode:                    gin.TestMode,
		SessionSecret:              "test-session-secret",
		CORSAllowedOrigins:         "http://localhost:5173",
		StripeWebhookSecret:        "whsec_test",
		RegistrationDraftTTL:       time.Hour,
		RegistrationFeeJuniorCents: 12000,
		RegistrationFeeSeniorCents: 18000,
		RegistrationCurrency:       "eur",
		SeasonCutoff:               "09-01",
		MaxDocumentSize:            1 << 20,
		MaxDocumentPages:           5,
		RegistrationRatePerMinute:  60,
	}
}

// newTestRouter は PostgREST 互換のスタブに接続したルーターを返します。
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/rest/v1/news":
			_, _ = w.Write([]byte(`[{"id":"n1","title":"Cup win","slug":"cup-win","body":"...","created_at":"2026-10-01T00:00:00Z"}]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	t.Cleanup(backendSrv.Close)

	client, err := backend.New(backend.Config{URL: backendSrv.URL, ServiceKey: "service-key"})
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	authenticator, err := auth.NewLocalAuthenticator("admin@club.test", string(hash), "test-session-secret")
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	files, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	cfg := testConfig()
	playerRepo := repository.NewPlayerRepository(client)
	registrationRepo := repository.NewRegistrationRepository(client)
	registrations, err := registration.NewService(cfg, registration.Deps{
		Drafts:        registration.NewRedisStore(rdb, cfg.RegistrationDraftTTL),
		Registrations: registrationRepo,
		Players:       playerRepo,
		Checkout:      stubCheckout{},
		Storage:       files,
		Logger:        logger,
	})
	require.NoError(t, err)

	deps := &app{
		auth:             authenticator,
		sponsors:         service.New(repository.NewSponsorRepository(client)),
		teams:            service.New(repository.NewTeamRepository(client)),
		players:          service.New[club.Player, club.PlayerInput](playerRepo),
		coaches:          service.New(repository.NewCoachRepository(client)),
		news:             service.New(repository.NewNewsRepository(client)),
		results:          service.New(repository.NewResultRepository(client)),
		registrationRows: service.New[club.Registration, club.RegistrationInput](registrationRepo),
		registrations:    registrations,
		dispatcher:       jobs.NewInline(registrations),
	}
	return newRouter(cfg, deps, logger)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestDashboardRedirectsWithoutSession(t *testing.T) {
	r := newTestRouter(t)

	for _, path := range []string{"/dashboard", "/dashboard/api/teams"} {
		w := serve(r, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusFound, w.Code, path)
		assert.Equal(t, auth.LoginRedirectURL("/login", path), w.Header().Get("Location"))
	}
}

func TestPublicContentIsNotGated(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/news?limit=5", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"title":"Cup win"`)
	assert.Contains(t, w.Body.String(), `"limit":5`)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/players", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoginOpensDashboard(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"admin@club.test","password":"s3cret"}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(r, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	cookie := strings.SplitN(w.Header().Get("Set-Cookie"), ";", 2)[0]
	require.NotEmpty(t, cookie)

	req = httptest.NewRequest(http.MethodGet, "/dashboard/api/teams", nil)
	req.Header.Set("Cookie", cookie)
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[],"page":1,"limit":10}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Cookie", cookie)
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin@club.test")
}

func TestRegistrationStartIsPublic(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodPost, "/api/registrations", nil))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"nextStep":"player"`)
}

func TestWebhookRequiresSignature(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader([]byte(`{}`))))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t)
	serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))

	w := serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "club_portal_http_requests_total")
}

func TestVersionCommand(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "club-portal version "+version)
}
