package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// User は認証基盤のユーザーです。
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// AuthSession はサインインやトークン更新で発行されるセッションです。
type AuthSession struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// AuthClient は認証APIのクライアントです。
type AuthClient struct {
	client *Client
}

// Auth は認証APIのクライアントを返します。
func (c *Client) Auth() *AuthClient {
	return &AuthClient{client: c}
}

func (a *AuthClient) token(ctx context.Context, grantType string, payload any) (*AuthSession, error) {
	body, err := a.client.newJSONBody(payload)
	if err != nil {
		return nil, err
	}
	var session AuthSession
	err = a.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {grantType}},
		body:   body,
		apiKey: a.client.anonKey,
		bearer: a.client.anonKey,
	}, &session)
	if err != nil {
		return nil, err
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("auth response without access token")
	}
	return &session, nil
}

// SignInWithPassword はメールアドレスとパスワードでサインインします。
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*AuthSession, error) {
	return a.token(ctx, "password", map[string]string{
		"email":    email,
		"password": password,
	})
}

// RefreshSession はリフレッシュトークンで新しいセッションを取得します。
func (a *AuthClient) RefreshSession(ctx context.Context, refreshToken string) (*AuthSession, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}
	return a.token(ctx, "refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
}

// GetUser はアクセストークンに対応するユーザーを取得します。
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}
	var user User
	err := a.client.do(ctx, request{
		method: http.MethodGet,
		path:   "/auth/v1/user",
		apiKey: a.client.anonKey,
		bearer: accessToken,
	}, &user)
	if err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, nil
	}
	return &user, nil
}

// SignOut はアクセストークンのセッションを失効させます。
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	return a.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		apiKey: a.client.anonKey,
		bearer: accessToken,
	}, nil)
}
