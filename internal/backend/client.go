// Package backend は外部のBaaS（認証・テーブル・オブジェクトストレージ）へのRESTクライアントを提供します。
//
// テーブル操作は PostgREST、認証は GoTrue、ストレージは Storage API の
// エンドポイントをそのまま呼び出します。キャッシュやリトライは行いません。
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	maxResponseBytes = 8 << 20
	maxErrorBytes    = 32 << 10
)

// Config はクライアントの接続設定です。
type Config struct {
	URL        string
	ServiceKey string
	// AnonKey は認証APIの apikey ヘッダーに使います。空の場合は ServiceKey を使います。
	AnonKey    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client はBaaSのRESTクライアントです。
type Client struct {
	baseURL    string
	serviceKey string
	anonKey    string
	httpClient *http.Client
}

// New は Client を作成します。
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("backend URL is required")
	}
	if cfg.ServiceKey == "" {
		return nil, fmt.Errorf("backend service key is required")
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("backend URL is invalid: %q", cfg.URL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	anonKey := cfg.AnonKey
	if anonKey == "" {
		anonKey = cfg.ServiceKey
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		serviceKey: cfg.ServiceKey,
		anonKey:    anonKey,
		httpClient: httpClient,
	}, nil
}

type request struct {
	method  string
	path    string
	query   url.Values
	headers http.Header
	body    io.Reader
	// bearer が空の場合は service key を Authorization に使います。
	bearer string
	apiKey string
}

func (c *Client) newJSONBody(v any) (io.Reader, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	return bytes.NewReader(data), nil
}

// do はリクエストを送信し、成功時はレスポンスボディを out にデコードします。
func (c *Client) do(ctx context.Context, r request, out any) error {
	reqURL := c.baseURL + r.path
	if len(r.query) > 0 {
		reqURL += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, reqURL, r.body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, values := range r.headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	apiKey := r.apiKey
	if apiKey == "" {
		apiKey = c.serviceKey
	}
	bearer := r.bearer
	if bearer == "" {
		bearer = c.serviceKey
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if r.body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return decodeAPIError(resp.StatusCode, body)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxResponseBytes {
		return fmt.Errorf("response from %s exceeds %d bytes", r.path, maxResponseBytes)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", r.path, err)
	}
	return nil
}
