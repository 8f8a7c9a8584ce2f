package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	SessionCookieName = "club_session"

	sessionKeyAccessToken  = "access_token"
	sessionKeyRefreshToken = "refresh_token"
	sessionKeyCSRF         = "csrf_token"

	// refreshSkew より残り時間が短いアクセストークンは期限切れとして扱います。
	refreshSkew = 30 * time.Second

	sessionMaxAge = 7 * 24 * time.Hour
)

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(sessionMaxAge.Seconds())
}

// Session はリクエストに紐づく認証済みセッションです。
type Session struct {
	User        *User
	AccessToken string
}

// SessionProvider はリクエストのクッキーからセッションを解決します。
// セッションがない場合は nil, nil を返します。
type SessionProvider interface {
	Session(c *gin.Context) (*Session, error)
}

// CookieSessions は gin-contrib/sessions のクッキーにトークンを保持する SessionProvider です。
type CookieSessions struct {
	auth Authenticator
	now  func() time.Time
}

// NewCookieSessions は CookieSessions を作成します。
func NewCookieSessions(auth Authenticator) *CookieSessions {
	return &CookieSessions{auth: auth, now: time.Now}
}

// Session はクッキーのアクセストークンを認証基盤に問い合わせてユーザーを解決します。
// アクセストークンが期限切れの場合はリフレッシュを1回だけ試み、新しいトークンをクッキーに書き戻します。
func (p *CookieSessions) Session(c *gin.Context) (*Session, error) {
	store := sessions.Default(c)
	access, _ := store.Get(sessionKeyAccessToken).(string)
	if access == "" {
		return nil, nil
	}

	expired, err := p.accessExpired(access)
	if err != nil {
		return nil, err
	}
	if expired {
		refresh, _ := store.Get(sessionKeyRefreshToken).(string)
		if refresh == "" {
			return nil, errors.New("access token expired without refresh token")
		}
		tokens, err := p.auth.Refresh(c.Request.Context(), refresh)
		if err != nil {
			return nil, fmt.Errorf("refresh session: %w", err)
		}
		if err := saveTokens(store, tokens); err != nil {
			return nil, err
		}
		access = tokens.AccessToken
	}

	user, err := p.auth.User(c.Request.Context(), access)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, AccessToken: access}, nil
}

// accessExpired は署名を検証せずに exp クレームだけを確認します。
// 署名の検証は認証基盤への問い合わせで行われます。
func (p *CookieSessions) accessExpired(raw string) (bool, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return false, fmt.Errorf("malformed access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return false, nil
	}
	return !p.now().Add(refreshSkew).Before(claims.ExpiresAt.Time), nil
}

func saveTokens(store sessions.Session, tokens *Tokens) error {
	store.Set(sessionKeyAccessToken, tokens.AccessToken)
	store.Set(sessionKeyRefreshToken, tokens.RefreshToken)
	if err := store.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
