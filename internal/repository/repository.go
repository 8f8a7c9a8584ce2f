// Package repository はエンティティごとのテーブル操作をBaaSのテーブルAPIへそのまま委譲します。
//
// 「行が存在しない」エラー（PGRST116）は nil の結果に変換し、それ以外のエラーは
// 加工せずに呼び出し元へ返します。キャッシュ・リトライ・トランザクションはありません。
package repository

import (
	"context"

	"github.com/yourusername/club-portal/internal/backend"
)

const (
	// DefaultLimit は limit 未指定時の件数です。
	DefaultLimit = 10
	// MaxLimit は1ページで取得できる最大件数です。
	MaxLimit = 100
)

// Repository はエンティティ T を入力 D で操作するリポジトリです。
type Repository[T any, D any] interface {
	GetAll(ctx context.Context, limit, page int) ([]T, error)
	GetByID(ctx context.Context, id string) (*T, error)
	Create(ctx context.Context, dto D) (*T, error)
	Update(ctx context.Context, id string, dto D) (*T, error)
	Delete(ctx context.Context, id string) error
}

// Ordering はテーブルの既定の並び順です。
type Ordering struct {
	Column    string
	Ascending bool
}

// Table は Repository のBaaSテーブル実装です。
type Table[T any, D any] struct {
	client *backend.Client
	name   string
	order  Ordering
}

var _ Repository[struct{}, struct{}] = (*Table[struct{}, struct{}])(nil)

// NewTable はテーブル name のリポジトリを作成します。
func NewTable[T any, D any](client *backend.Client, name string, order Ordering) *Table[T, D] {
	return &Table[T, D]{client: client, name: name, order: order}
}

// Normalize は limit と page を有効な範囲に丸め、取得開始位置を返します。
// page は1始まりです。
func Normalize(limit, page int) (normalizedLimit, normalizedPage, offset int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if page < 1 {
		page = 1
	}
	return limit, page, (page - 1) * limit
}

// GetAll は page ページ目の limit 件を既定の並び順で取得します。
func (t *Table[T, D]) GetAll(ctx context.Context, limit, page int) ([]T, error) {
	limit, _, offset := Normalize(limit, page)

	query := t.client.From(t.name).Range(offset, limit)
	if t.order.Column != "" {
		query = query.Order(t.order.Column, t.order.Ascending)
	}

	items := []T{}
	if err := query.Select(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetByID は id の行を取得します。存在しない場合は nil を返します。
func (t *Table[T, D]) GetByID(ctx context.Context, id string) (*T, error) {
	return t.FindOne(ctx, "id", id)
}

// FindOne は column が value に一致する1行を取得します。存在しない場合は nil を返します。
func (t *Table[T, D]) FindOne(ctx context.Context, column, value string) (*T, error) {
	var item T
	err := t.client.From(t.name).Eq(column, value).Single().Select(ctx, &item)
	if backend.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Create は dto から行を作成し、作成された行を返します。
func (t *Table[T, D]) Create(ctx context.Context, dto D) (*T, error) {
	var item T
	if err := t.client.From(t.name).Single().Insert(ctx, dto, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Update は id の行を dto で更新します。存在しない場合は nil を返します。
func (t *Table[T, D]) Update(ctx context.Context, id string, dto D) (*T, error) {
	var item T
	err := t.client.From(t.name).Eq("id", id).Single().Update(ctx, dto, &item)
	if backend.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Delete は id の行を削除します。存在しない id はエラーになりません。
func (t *Table[T, D]) Delete(ctx context.Context, id string) error {
	return t.client.From(t.name).Eq("id", id).Delete(ctx)
}
