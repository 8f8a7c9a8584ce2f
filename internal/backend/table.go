package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const singleObjectMediaType = "application/vnd.pgrst.object+json"

// Query はテーブルに対するクエリビルダーです。
type Query struct {
	client  *Client
	table   string
	filters url.Values
	orders  []string
	limit   int
	offset  int
	single  bool
}

// From はテーブル table に対するクエリを開始します。
func (c *Client) From(table string) *Query {
	return &Query{
		client:  c,
		table:   table,
		filters: url.Values{},
	}
}

// Eq は等価フィルターを追加します。
func (q *Query) Eq(column, value string) *Query {
	q.filters.Add(column, "eq."+value)
	return q
}

// Order は並び順を追加します。
func (q *Query) Order(column string, ascending bool) *Query {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	q.orders = append(q.orders, column+"."+dir)
	return q
}

// Range は offset から limit 件を取得するよう指定します。
func (q *Query) Range(offset, limit int) *Query {
	q.offset = offset
	q.limit = limit
	return q
}

// Single は結果を1行のオブジェクトとして要求します。0行の場合は CodeNoRows のエラーになります。
func (q *Query) Single() *Query {
	q.single = true
	return q
}

func (q *Query) path() string {
	return "/rest/v1/" + url.PathEscape(q.table)
}

func (q *Query) values(includeShape bool) url.Values {
	params := url.Values{}
	for k, v := range q.filters {
		params[k] = append([]string(nil), v...)
	}
	if !includeShape {
		return params
	}
	if len(q.orders) > 0 {
		params.Set("order", strings.Join(q.orders, ","))
	}
	if q.limit > 0 {
		params.Set("limit", strconv.Itoa(q.limit))
	}
	if q.offset > 0 {
		params.Set("offset", strconv.Itoa(q.offset))
	}
	return params
}

func (q *Query) headers(prefer string) http.Header {
	h := http.Header{}
	if q.single {
		h.Set("Accept", singleObjectMediaType)
	}
	if prefer != "" {
		h.Set("Prefer", prefer)
	}
	return h
}

func (q *Query) validate() error {
	if q.table == "" {
		return fmt.Errorf("table is required")
	}
	return nil
}

// Select はクエリを実行して結果を dest にデコードします。
func (q *Query) Select(ctx context.Context, dest any) error {
	if err := q.validate(); err != nil {
		return err
	}
	return q.client.do(ctx, request{
		method:  http.MethodGet,
		path:    q.path(),
		query:   q.values(true),
		headers: q.headers(""),
	}, dest)
}

// Insert は row を挿入し、作成された行を dest にデコードします。
func (q *Query) Insert(ctx context.Context, row any, dest any) error {
	if err := q.validate(); err != nil {
		return err
	}
	body, err := q.client.newJSONBody(row)
	if err != nil {
		return err
	}
	return q.client.do(ctx, request{
		method:  http.MethodPost,
		path:    q.path(),
		query:   q.values(false),
		headers: q.headers("return=representation"),
		body:    body,
	}, dest)
}

// Update はフィルターに一致する行を row で更新し、更新後の行を dest にデコードします。
func (q *Query) Update(ctx context.Context, row any, dest any) error {
	if err := q.validate(); err != nil {
		return err
	}
	if len(q.filters) == 0 {
		return fmt.Errorf("update on %s requires a filter", q.table)
	}
	body, err := q.client.newJSONBody(row)
	if err != nil {
		return err
	}
	return q.client.do(ctx, request{
		method:  http.MethodPatch,
		path:    q.path(),
		query:   q.values(false),
		headers: q.headers("return=representation"),
		body:    body,
	}, dest)
}

// Delete はフィルターに一致する行を削除します。
func (q *Query) Delete(ctx context.Context) error {
	if err := q.validate(); err != nil {
		return err
	}
	if len(q.filters) == 0 {
		return fmt.Errorf("delete on %s requires a filter", q.table)
	}
	return q.client.do(ctx, request{
		method:  http.MethodDelete,
		path:    q.path(),
		query:   q.values(false),
		headers: q.headers("return=minimal"),
	}, nil)
}
