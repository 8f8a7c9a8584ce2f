// Package auth はダッシュボードの認証・認可機能を提供します。
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/club-portal/internal/apierror"
	"github.com/yourusername/club-portal/internal/logging"
)

const (
	csrfHeader    = "X-CSRF-Token"
	csrfFormField = "csrf_token"

	// DefaultAfterLogin はリダイレクト先の指定がない場合の遷移先です。
	DefaultAfterLogin = "/dashboard"

	loginTemplate     = "login.tmpl"
	dashboardTemplate = "dashboard.tmpl"
)

var (
	loginWindow      = 15 * time.Minute
	lockDuration     = 10 * time.Minute
	maxLoginAttempts = 5
)

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Manager はログイン・ログアウト処理と試行回数の状態をまとめた構造体です。
type Manager struct {
	auth     Authenticator
	logger   logrus.FieldLogger
	lock     sync.Mutex
	attempts map[string]*attemptState
	now      func() time.Time
}

// NewManager は認証マネージャーを作成します。
func NewManager(auth Authenticator, logger logrus.FieldLogger) *Manager {
	return &Manager{
		auth:     auth,
		logger:   logger,
		attempts: make(map[string]*attemptState),
		now:      time.Now,
	}
}

type loginRequest struct {
	Email          string `form:"email" json:"email" binding:"required"`
	Password       string `form:"password" json:"password" binding:"required"`
	RedirectedFrom string `form:"redirectedFrom" json:"redirectedFrom"`
}

// LoginPage は GET /login のハンドラーです。
func (m *Manager) LoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, loginTemplate, gin.H{
		"RedirectedFrom": SafeRedirect(c.Query(RedirectParam)),
	})
}

// Login は POST /login のハンドラーです。フォームとJSONの両方を受け付けます。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		m.loginFailed(c, req, http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "email と password を入力してください",
		})
		return
	}

	ip := c.ClientIP()
	if retryAfter := m.checkLock(ip); retryAfter > 0 {
		// Retry-After は秒数またはHTTP-Date形式が推奨されているため秒数で返す
		c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
		m.loginFailed(c, req, http.StatusTooManyRequests, gin.H{
			"code":    "TOO_MANY_ATTEMPTS",
			"message": "一定時間後に再度お試しください",
		})
		return
	}

	tokens, err := m.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		remaining := m.recordFailure(ip)
		m.loginFailed(c, req, http.StatusUnauthorized, gin.H{
			"code":              "INVALID_CREDENTIALS",
			"message":           "メールアドレスまたはパスワードが正しくありません",
			"remainingAttempts": remaining,
		})
		return
	}
	if err != nil {
		logging.FromContext(c, m.logger).WithError(err).Error("sign in failed")
		m.loginFailed(c, req, http.StatusBadGateway, gin.H{
			"code":    "BACKEND_ERROR",
			"message": "認証サービスに接続できません",
		})
		return
	}

	m.resetAttempts(ip)

	csrf, err := generateToken()
	if err != nil {
		m.loginFailed(c, req, http.StatusInternalServerError, gin.H{
			"code":    "TOKEN_GENERATION_FAILED",
			"message": "CSRF トークンの生成に失敗しました",
		})
		return
	}

	session := sessions.Default(c)
	session.Clear()
	session.Set(sessionKeyCSRF, csrf)
	if err := saveTokens(session, tokens); err != nil {
		m.loginFailed(c, req, http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの保存に失敗しました",
		})
		return
	}

	c.Header(csrfHeader, csrf)
	if wantsJSON(c) {
		c.Status(http.StatusNoContent)
		return
	}
	target := SafeRedirect(req.RedirectedFrom)
	if target == "" {
		target = DefaultAfterLogin
	}
	c.Redirect(http.StatusSeeOther, target)
}

// Logout は POST /dashboard/logout のハンドラーです。
func (m *Manager) Logout(c *gin.Context) {
	session := sessions.Default(c)
	if access, _ := session.Get(sessionKeyAccessToken).(string); access != "" {
		if err := m.auth.SignOut(c.Request.Context(), access); err != nil {
			logging.FromContext(c, m.logger).WithError(err).Warn("remote sign out failed")
		}
	}

	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1, HttpOnly: true})
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの削除に失敗しました",
		})
		return
	}
	if wantsJSON(c) {
		c.Status(http.StatusNoContent)
		return
	}
	c.Redirect(http.StatusSeeOther, DefaultLoginPath)
}

// SessionInfo は GET /dashboard/api/session のハンドラーです。
func (m *Manager) SessionInfo(c *gin.Context) {
	user, _ := CurrentUser(c)
	csrf, _ := sessions.Default(c).Get(sessionKeyCSRF).(string)
	c.JSON(http.StatusOK, gin.H{
		"user":      user,
		"csrfToken": csrf,
	})
}

// Dashboard は GET /dashboard のハンドラーです。
func (m *Manager) Dashboard(c *gin.Context) {
	user, _ := CurrentUser(c)
	csrf, _ := sessions.Default(c).Get(sessionKeyCSRF).(string)
	c.HTML(http.StatusOK, dashboardTemplate, gin.H{
		"User":      user,
		"CSRFToken": csrf,
	})
}

// VerifyCSRF は X-CSRF-Token ヘッダー（フォームの場合は csrf_token フィールド）を検証するミドルウェアです。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		session := sessions.Default(c)
		expected, ok := session.Get(sessionKeyCSRF).(string)
		if !ok || expected == "" {
			apierror.Abort(c, apierror.New(http.StatusForbidden, "CSRF_MISSING", "CSRF トークンが設定されていません"))
			return
		}

		received := c.GetHeader(csrfHeader)
		if received == "" {
			received = c.PostForm(csrfFormField)
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			apierror.Abort(c, apierror.New(http.StatusForbidden, "CSRF_INVALID", "CSRF トークンが一致しません"))
			return
		}

		c.Next()
	}
}

// SafeRedirect は target がサイト内のパスであればそのまま返し、それ以外は空文字を返します。
func SafeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return ""
	}
	return target
}

func (m *Manager) loginFailed(c *gin.Context, req loginRequest, status int, body gin.H) {
	if wantsJSON(c) {
		c.JSON(status, body)
		return
	}
	c.HTML(status, loginTemplate, gin.H{
		"Error":          body["message"],
		"Email":          req.Email,
		"RedirectedFrom": SafeRedirect(req.RedirectedFrom),
	})
}

func (m *Manager) checkLock(ip string) time.Duration {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[ip]
	if !ok {
		return 0
	}
	now := m.now()
	if now.After(state.lockedUntil) {
		return 0
	}
	return state.lockedUntil.Sub(now)
}

func (m *Manager) recordFailure(ip string) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	state, ok := m.attempts[ip]
	if !ok || now.Sub(state.firstAttempt) > loginWindow {
		state = &attemptState{firstAttempt: now}
		m.attempts[ip] = state
	}

	state.count++
	if state.count >= maxLoginAttempts {
		state.lockedUntil = now.Add(lockDuration)
		state.count = maxLoginAttempts
	}

	return maxLoginAttempts - state.count
}

func (m *Manager) resetAttempts(ip string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, ip)
}

func wantsJSON(c *gin.Context) bool {
	return c.ContentType() == gin.MIMEJSON || strings.Contains(c.GetHeader("Accept"), gin.MIMEJSON)
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
