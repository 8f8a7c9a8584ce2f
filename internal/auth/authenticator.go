package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/club-portal/internal/backend"
)

// ErrInvalidCredentials はメールアドレスまたはパスワードが一致しないことを示します。
var ErrInvalidCredentials = errors.New("invalid credentials")

// User はログイン中のユーザーです。
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// Tokens は認証基盤が発行するトークンの組です。
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Authenticator は外部の認証基盤を抽象化します。
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
	// User はアクセストークンに対応するユーザーを返します。ユーザーがいない場合は nil です。
	User(ctx context.Context, accessToken string) (*User, error)
	SignOut(ctx context.Context, accessToken string) error
}

// BackendAuthenticator はBaaSの認証APIを使う Authenticator です。
type BackendAuthenticator struct {
	client *backend.AuthClient
}

// NewBackendAuthenticator は BackendAuthenticator を作成します。
func NewBackendAuthenticator(client *backend.Client) *BackendAuthenticator {
	return &BackendAuthenticator{client: client.Auth()}
}

func (b *BackendAuthenticator) SignIn(ctx context.Context, email, password string) (*Tokens, error) {
	session, err := b.client.SignInWithPassword(ctx, email, password)
	if backend.IsUnauthorized(err) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if err != nil {
		return nil, err
	}
	return &Tokens{AccessToken: session.AccessToken, RefreshToken: session.RefreshToken}, nil
}

func (b *BackendAuthenticator) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	session, err := b.client.RefreshSession(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return &Tokens{AccessToken: session.AccessToken, RefreshToken: session.RefreshToken}, nil
}

func (b *BackendAuthenticator) User(ctx context.Context, accessToken string) (*User, error) {
	u, err := b.client.GetUser(ctx, accessToken)
	if err != nil || u == nil {
		return nil, err
	}
	return &User{ID: u.ID, Email: u.Email, Role: u.Role}, nil
}

func (b *BackendAuthenticator) SignOut(ctx context.Context, accessToken string) error {
	return b.client.SignOut(ctx, accessToken)
}

const (
	localIssuer      = "club-portal"
	localAccessTTL   = time.Hour
	localRefreshTTL  = 12 * time.Hour
	localUserID      = "local-operator"
	tokenUseAccess   = "access"
	tokenUseRefresh  = "refresh"
	localTokenLeeway = 5 * time.Second
)

type localClaims struct {
	Email string `json:"email"`
	Use   string `json:"use"`
	jwt.RegisteredClaims
}

// LocalAuthenticator は環境変数で指定した1アカウントだけを認証する Authenticator です。
// パスワードは bcrypt ハッシュで照合し、トークンは SESSION_SECRET で署名した HS256 JWT です。
type LocalAuthenticator struct {
	username     string
	passwordHash []byte
	secret       []byte
	now          func() time.Time
}

// NewLocalAuthenticator は LocalAuthenticator を作成します。
func NewLocalAuthenticator(username, passwordHash, secret string) (*LocalAuthenticator, error) {
	if username == "" {
		return nil, errors.New("APP_USERNAME が設定されていません")
	}
	if passwordHash == "" {
		return nil, errors.New("APP_PASSWORD_HASH が設定されていません")
	}
	if secret == "" {
		return nil, errors.New("SESSION_SECRET が設定されていません")
	}
	return &LocalAuthenticator{
		username:     username,
		passwordHash: []byte(passwordHash),
		secret:       []byte(secret),
		now:          time.Now,
	}, nil
}

func (l *LocalAuthenticator) SignIn(_ context.Context, email, password string) (*Tokens, error) {
	userOK := subtle.ConstantTimeCompare([]byte(email), []byte(l.username)) == 1
	// ユーザー名が違っても bcrypt の比較は行う
	passOK := bcrypt.CompareHashAndPassword(l.passwordHash, []byte(password)) == nil
	if !userOK || !passOK {
		return nil, ErrInvalidCredentials
	}
	return l.issue()
}

func (l *LocalAuthenticator) Refresh(_ context.Context, refreshToken string) (*Tokens, error) {
	if _, err := l.parse(refreshToken, tokenUseRefresh); err != nil {
		return nil, err
	}
	return l.issue()
}

func (l *LocalAuthenticator) User(_ context.Context, accessToken string) (*User, error) {
	claims, err := l.parse(accessToken, tokenUseAccess)
	if err != nil {
		return nil, err
	}
	return &User{ID: claims.Subject, Email: claims.Email, Role: "operator"}, nil
}

// SignOut は何もしません。トークンは有効期限で失効します。
func (l *LocalAuthenticator) SignOut(context.Context, string) error {
	return nil
}

func (l *LocalAuthenticator) issue() (*Tokens, error) {
	now := l.now()
	access, err := l.sign(tokenUseAccess, now, localAccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := l.sign(tokenUseRefresh, now, localRefreshTTL)
	if err != nil {
		return nil, err
	}
	return &Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

func (l *LocalAuthenticator) sign(use string, now time.Time, ttl time.Duration) (string, error) {
	claims := localClaims{
		Email: l.username,
		Use:   use,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    localIssuer,
			Subject:   localUserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", use, err)
	}
	return signed, nil
}

func (l *LocalAuthenticator) parse(raw, use string) (*localClaims, error) {
	claims := &localClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return l.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(localIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(localTokenLeeway),
		jwt.WithTimeFunc(l.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse %s token: %w", use, err)
	}
	if claims.Use != use {
		return nil, fmt.Errorf("token is not a %s token", use)
	}
	return claims, nil
}
