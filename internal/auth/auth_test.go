package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/club-portal/internal/web"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type stubSessions struct {
	session *Session
	err     error
	calls   int
}

func (s *stubSessions) Session(*gin.Context) (*Session, error) {
	s.calls++
	return s.session, s.err
}

func newGateRouter(provider SessionProvider) *gin.Engine {
	r := gin.New()
	r.Use(NewGate(provider, quietLogger()).Protect("/dashboard"))
	handler := func(c *gin.Context) {
		if user, ok := CurrentUser(c); ok {
			c.String(http.StatusOK, "hello "+user.Email)
			return
		}
		c.String(http.StatusOK, "public")
	}
	r.GET("/dashboard", handler)
	r.GET("/dashboard/news", handler)
	r.GET("/dashboardish", handler)
	r.GET("/news", handler)
	return r
}

func TestGateRedirectsWithoutSession(t *testing.T) {
	r := newGateRouter(&stubSessions{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard/news", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?redirectedFrom=%2Fdashboard%2Fnews", w.Header().Get("Location"))
}

func TestGateFailsClosedOnError(t *testing.T) {
	provider := &stubSessions{
		session: &Session{User: &User{ID: "u1"}},
		err:     errors.New("network down"),
	}
	r := newGateRouter(provider)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?redirectedFrom=%2Fdashboard", w.Header().Get("Location"))
}

func TestGateRedirectsSessionWithoutUser(t *testing.T) {
	r := newGateRouter(&stubSessions{session: &Session{AccessToken: "t"}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusFound, w.Code)
}

func TestGateAllowsAndRechecksEveryRequest(t *testing.T) {
	provider := &stubSessions{session: &Session{User: &User{ID: "u1", Email: "coach@example.com"}}}
	r := newGateRouter(provider)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard/news", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "hello coach@example.com", w.Body.String())
	}
	assert.Equal(t, 2, provider.calls)
}

func TestGateIgnoresUnprotectedPaths(t *testing.T) {
	provider := &stubSessions{}
	r := newGateRouter(provider)

	for _, path := range []string{"/news", "/dashboardish"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "public", w.Body.String())
	}
	assert.Zero(t, provider.calls)
}

func TestSafeRedirect(t *testing.T) {
	assert.Equal(t, "/dashboard/news", SafeRedirect("/dashboard/news"))
	assert.Empty(t, SafeRedirect("https://evil.example"))
	assert.Empty(t, SafeRedirect("//evil.example"))
	assert.Empty(t, SafeRedirect(`/\evil.example`))
	assert.Empty(t, SafeRedirect(""))
}

type fakeAuthenticator struct {
	users     map[string]*User
	refreshed int
	refreshTo *Tokens
	signedOut []string
}

func (f *fakeAuthenticator) SignIn(context.Context, string, string) (*Tokens, error) {
	return nil, ErrInvalidCredentials
}

func (f *fakeAuthenticator) Refresh(_ context.Context, refreshToken string) (*Tokens, error) {
	f.refreshed++
	if f.refreshTo == nil || refreshToken != "refresh-1" {
		return nil, errors.New("refresh rejected")
	}
	return f.refreshTo, nil
}

func (f *fakeAuthenticator) User(_ context.Context, accessToken string) (*User, error) {
	if u, ok := f.users[accessToken]; ok {
		return u, nil
	}
	return nil, errors.New("bad_jwt")
}

func (f *fakeAuthenticator) SignOut(_ context.Context, accessToken string) error {
	f.signedOut = append(f.signedOut, accessToken)
	return nil
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("remote-secret"))
	require.NoError(t, err)
	return token
}

// newSessionRouter は /seed でクッキーにトークンを設定し、/whoami でセッションを解決するルーターを返します。
func newSessionRouter(provider *CookieSessions, access, refresh string) *gin.Engine {
	r := gin.New()
	r.Use(sessions.Sessions(SessionCookieName, cookie.NewStore([]byte("test-secret"))))
	r.GET("/seed", func(c *gin.Context) {
		_ = saveTokens(sessions.Default(c), &Tokens{AccessToken: access, RefreshToken: refresh})
		c.Status(http.StatusNoContent)
	})
	r.GET("/whoami", func(c *gin.Context) {
		session, err := provider.Session(c)
		if err != nil {
			c.String(http.StatusUnauthorized, err.Error())
			return
		}
		if session == nil {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, session.User.ID+":"+session.AccessToken)
	})
	return r
}

func seedCookie(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/seed", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	return w.Header().Get("Set-Cookie")
}

func whoami(r *gin.Engine, cookieHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if cookieHeader != "" {
		req.Header.Set("Cookie", strings.SplitN(cookieHeader, ";", 2)[0])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCookieSessionsWithoutCookie(t *testing.T) {
	provider := NewCookieSessions(&fakeAuthenticator{})
	r := newSessionRouter(provider, "", "")

	w := whoami(r, "")
	assert.Equal(t, "anonymous", w.Body.String())
}

func TestCookieSessionsValidToken(t *testing.T) {
	access := signedToken(t, time.Now().Add(time.Hour))
	fake := &fakeAuthenticator{users: map[string]*User{access: {ID: "u1"}}}
	r := newSessionRouter(NewCookieSessions(fake), access, "refresh-1")

	w := whoami(r, seedCookie(t, r))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1:"+access, w.Body.String())
	assert.Zero(t, fake.refreshed)
}

func TestCookieSessionsRefreshesExpiredToken(t *testing.T) {
	expired := signedToken(t, time.Now().Add(-time.Minute))
	fresh := signedToken(t, time.Now().Add(time.Hour))
	fake := &fakeAuthenticator{
		users:     map[string]*User{fresh: {ID: "u1"}},
		refreshTo: &Tokens{AccessToken: fresh, RefreshToken: "refresh-2"},
	}
	r := newSessionRouter(NewCookieSessions(fake), expired, "refresh-1")

	w := whoami(r, seedCookie(t, r))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1:"+fresh, w.Body.String())
	assert.Equal(t, 1, fake.refreshed)
	assert.NotEmpty(t, w.Header().Get("Set-Cookie"))
}

func TestCookieSessionsFailedRefreshIsError(t *testing.T) {
	expired := signedToken(t, time.Now().Add(-time.Minute))
	fake := &fakeAuthenticator{}
	r := newSessionRouter(NewCookieSessions(fake), expired, "refresh-1")

	w := whoami(r, seedCookie(t, r))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "refresh session")
}

func TestCookieSessionsMalformedToken(t *testing.T) {
	r := newSessionRouter(NewCookieSessions(&fakeAuthenticator{}), "not-a-jwt", "")

	w := whoami(r, seedCookie(t, r))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "malformed access token")
}

func newLocalAuthenticator(t *testing.T) *LocalAuthenticator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	local, err := NewLocalAuthenticator("admin@club.test", string(hash), "session-secret")
	require.NoError(t, err)
	return local
}

func TestLocalAuthenticator(t *testing.T) {
	local := newLocalAuthenticator(t)
	ctx := context.Background()

	_, err := local.SignIn(ctx, "admin@club.test", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	tokens, err := local.SignIn(ctx, "admin@club.test", "s3cret")
	require.NoError(t, err)

	user, err := local.User(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin@club.test", user.Email)

	_, err = local.User(ctx, tokens.RefreshToken)
	assert.Error(t, err, "refresh token must not be accepted as access token")

	refreshed, err := local.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	local.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = local.User(ctx, tokens.AccessToken)
	assert.Error(t, err)
}

func TestNewLocalAuthenticatorRequiresSettings(t *testing.T) {
	_, err := NewLocalAuthenticator("", "hash", "secret")
	assert.Error(t, err)
	_, err = NewLocalAuthenticator("admin", "", "secret")
	assert.Error(t, err)
	_, err = NewLocalAuthenticator("admin", "hash", "")
	assert.Error(t, err)
}

func newAuthRouter(t *testing.T, authenticator Authenticator) (*gin.Engine, *Manager) {
	t.Helper()
	manager := NewManager(authenticator, quietLogger())
	gate := NewGate(NewCookieSessions(authenticator), quietLogger())

	r := gin.New()
	r.SetHTMLTemplate(web.Templates())
	r.Use(sessions.Sessions(SessionCookieName, cookie.NewStore([]byte("test-secret"))))
	r.Use(gate.Protect("/dashboard"))
	r.GET("/login", manager.LoginPage)
	r.POST("/login", manager.Login)
	dashboard := r.Group("/dashboard", manager.VerifyCSRF())
	dashboard.GET("", manager.Dashboard)
	dashboard.GET("/api/session", manager.SessionInfo)
	dashboard.POST("/logout", manager.Logout)
	return r, manager
}

func postJSON(r *gin.Engine, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLoginFlowWithLocalAuthenticator(t *testing.T) {
	r, _ := newAuthRouter(t, newLocalAuthenticator(t))

	w := postJSON(r, "/login", `{"email":"admin@club.test","password":"s3cret"}`, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	csrf := w.Header().Get(csrfHeader)
	require.NotEmpty(t, csrf)
	sessionCookie := strings.SplitN(w.Header().Get("Set-Cookie"), ";", 2)[0]
	require.NotEmpty(t, sessionCookie)

	req := httptest.NewRequest(http.MethodGet, "/dashboard/api/session", nil)
	req.Header.Set("Cookie", sessionCookie)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"admin@club.test"`)
	assert.Contains(t, w.Body.String(), csrf)

	w = postJSON(r, "/dashboard/logout", `{}`, map[string]string{"Cookie": sessionCookie})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"CSRF_INVALID"`)

	w = postJSON(r, "/dashboard/logout", `{}`, map[string]string{"Cookie": sessionCookie, csrfHeader: csrf})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestFormLoginRedirectsToOriginalPath(t *testing.T) {
	r, _ := newAuthRouter(t, newLocalAuthenticator(t))

	form := url.Values{
		"email":          {"admin@club.test"},
		"password":       {"s3cret"},
		"redirectedFrom": {"/dashboard/news"},
	}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/dashboard/news", w.Header().Get("Location"))
}

func TestFormLoginIgnoresExternalRedirect(t *testing.T) {
	r, _ := newAuthRouter(t, newLocalAuthenticator(t))

	form := url.Values{
		"email":          {"admin@club.test"},
		"password":       {"s3cret"},
		"redirectedFrom": {"//evil.example/phish"},
	}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, DefaultAfterLogin, w.Header().Get("Location"))
}

func TestLoginPageKeepsRedirectTarget(t *testing.T) {
	r, _ := newAuthRouter(t, newLocalAuthenticator(t))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login?redirectedFrom=%2Fdashboard%2Fteams", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `value="/dashboard/teams"`)
}

func TestLoginLockout(t *testing.T) {
	r, manager := newAuthRouter(t, &fakeAuthenticator{})
	now := time.Now()
	manager.now = func() time.Time { return now }

	for i := 0; i < maxLoginAttempts; i++ {
		w := postJSON(r, "/login", `{"email":"a@b.c","password":"x"}`, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := postJSON(r, "/login", `{"email":"a@b.c","password":"x"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "600", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "TOO_MANY_ATTEMPTS")

	now = now.Add(lockDuration + time.Second)
	w = postJSON(r, "/login", `{"email":"a@b.c","password":"x"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginRejectsMissingFields(t *testing.T) {
	r, _ := newAuthRouter(t, &fakeAuthenticator{})

	w := postJSON(r, "/login", `{"email":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_INPUT")
}
