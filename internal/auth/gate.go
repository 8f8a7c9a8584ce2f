package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/club-portal/internal/logging"
	"github.com/yourusername/club-portal/internal/metrics"
)

// Decision はセッションゲートの判定結果です。
type Decision int

const (
	Redirect Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "redirect"
}

const (
	// DefaultLoginPath はログインページのパスです。
	DefaultLoginPath = "/login"
	// RedirectParam はログイン後に戻るパスを渡すクエリパラメーター名です。
	RedirectParam = "redirectedFrom"

	// ContextUserKey は、ハンドラー間でログイン済みユーザーを共有するためのキーです。
	ContextUserKey = "auth.user"
)

// Gate は保護されたパスへのリクエストを、セッションの有無で通過かリダイレクトに振り分けます。
//
// 判定はリクエストごとに行い、結果は保持しません。
// セッションの取得でエラーが起きた場合はセッションなしと同じくリダイレクトします。
type Gate struct {
	sessions  SessionProvider
	loginPath string
	logger    logrus.FieldLogger
}

// NewGate は Gate を作成します。
func NewGate(sessions SessionProvider, logger logrus.FieldLogger) *Gate {
	return &Gate{sessions: sessions, loginPath: DefaultLoginPath, logger: logger}
}

// Decide はリクエストを判定します。Allow の場合はセッションも返します。
func (g *Gate) Decide(c *gin.Context) (Decision, *Session) {
	session, err := g.sessions.Session(c)
	if err != nil {
		logging.FromContext(c, g.logger).WithError(err).Debug("session lookup failed")
		return Redirect, nil
	}
	if session == nil || session.User == nil {
		return Redirect, nil
	}
	return Allow, session
}

// Protect は prefixes 配下のパスを保護するミドルウェアを返します。
func (g *Gate) Protect(prefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if !matchesAny(path, prefixes) {
			c.Next()
			return
		}

		decision, session := g.Decide(c)
		metrics.ObserveGateDecision(decision.String())
		logging.FromContext(c, g.logger).WithFields(logrus.Fields{
			"path":     path,
			"decision": decision.String(),
		}).Debug("session gate")

		if decision != Allow {
			c.Redirect(http.StatusFound, LoginRedirectURL(g.loginPath, path))
			c.Abort()
			return
		}

		c.Set(ContextUserKey, session.User)
		c.Next()
	}
}

// CurrentUser はゲートを通過したリクエストのユーザーを返します。
func CurrentUser(c *gin.Context) (*User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*User)
	return user, ok && user != nil
}

// LoginRedirectURL はログインページへのリダイレクト先を組み立てます。
func LoginRedirectURL(loginPath, original string) string {
	if original == "" {
		return loginPath
	}
	return loginPath + "?" + url.Values{RedirectParam: {original}}.Encode()
}

// matchesAny は path が prefixes のいずれかとパスセグメント単位で一致するかを返します。
func matchesAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		prefix = strings.TrimRight(prefix, "/")
		if prefix == "" {
			return true
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
