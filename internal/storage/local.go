// Package storage はアップロードされたファイルの保存先を抽象化します。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourusername/club-portal/internal/backend"
	"github.com/yourusername/club-portal/internal/config"
)

// ErrInvalidPath は保存先のパスが不正であることを示します。
var ErrInvalidPath = errors.New("invalid object path")

// Storage はファイルの保存と削除を行います。
type Storage interface {
	Save(ctx context.Context, path, contentType string, r io.Reader) error
	Delete(ctx context.Context, path string) error
}

// New は設定に応じた Storage を返します。
func New(cfg *config.Config, client *backend.Client) (Storage, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverLocal:
		return NewLocal(cfg.StorageLocalDir)
	case config.StorageDriverBackend:
		if client == nil {
			return nil, errors.New("backend storage requires BACKEND_URL")
		}
		return NewBucket(client.Storage(cfg.StorageBucket)), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// Local はローカルファイルシステムに保存する Storage です（開発環境用）。
type Local struct {
	root string
}

// NewLocal は root 配下に保存する Local を作成します。
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, errors.New("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Local{root: abs}, nil
}

func (l *Local) resolve(path string) (string, error) {
	if path == "" || filepath.IsAbs(path) {
		return "", ErrInvalidPath
	}
	full := filepath.Join(l.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(l.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return full, nil
}

// Save は r の内容を path に書き込みます。途中で失敗した場合は書きかけのファイルを残しません。
func (l *Local) Save(ctx context.Context, path, _ string, r io.Reader) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), full)
}

// Delete は path のファイルを削除します。存在しない場合はエラーになりません。
func (l *Local) Delete(_ context.Context, path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Bucket はBaaSのストレージバケットに保存する Storage です。
type Bucket struct {
	bucket *backend.Bucket
}

// NewBucket は Bucket を作成します。
func NewBucket(bucket *backend.Bucket) *Bucket {
	return &Bucket{bucket: bucket}
}

func (b *Bucket) Save(ctx context.Context, path, contentType string, r io.Reader) error {
	if path == "" || strings.Contains(path, "..") {
		return ErrInvalidPath
	}
	return b.bucket.Upload(ctx, path, contentType, r)
}

func (b *Bucket) Delete(ctx context.Context, path string) error {
	return b.bucket.Remove(ctx, path)
}
