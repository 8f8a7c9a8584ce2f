package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Bucket はストレージバケットのクライアントです。
type Bucket struct {
	client *Client
	name   string
}

// Storage はバケット name のクライアントを返します。
func (c *Client) Storage(name string) *Bucket {
	return &Bucket{client: c, name: name}
}

func (b *Bucket) objectPath(path string) string {
	segments := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "/storage/v1/object/" + url.PathEscape(b.name) + "/" + strings.Join(segments, "/")
}

// Upload は path にオブジェクトを保存します（既存は上書き）。
func (b *Bucket) Upload(ctx context.Context, path, contentType string, body io.Reader) error {
	if path == "" {
		return fmt.Errorf("object path is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	headers := http.Header{}
	headers.Set("Content-Type", contentType)
	headers.Set("x-upsert", "true")
	return b.client.do(ctx, request{
		method:  http.MethodPost,
		path:    b.objectPath(path),
		headers: headers,
		body:    body,
	}, nil)
}

// Remove はオブジェクトを削除します。
func (b *Bucket) Remove(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	body, err := b.client.newJSONBody(map[string][]string{"prefixes": paths})
	if err != nil {
		return err
	}
	return b.client.do(ctx, request{
		method: http.MethodDelete,
		path:   "/storage/v1/object/" + url.PathEscape(b.name),
		body:   body,
	}, nil)
}
