// Package content はクラブサイトのコンテンツ（ニュース・試合結果・スポンサーなど）のHTTPハンドラーを提供します。
package content

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/club-portal/internal/apierror"
	"github.com/yourusername/club-portal/internal/backend"
	"github.com/yourusername/club-portal/internal/logging"
	"github.com/yourusername/club-portal/internal/repository"
)

// Service はハンドラーが利用するエンティティ操作です。
type Service[T any, D any] interface {
	GetAll(ctx context.Context, limit, page int) ([]T, error)
	GetByID(ctx context.Context, id string) (*T, error)
	Create(ctx context.Context, dto D) (*T, error)
	Update(ctx context.Context, id string, dto D) (*T, error)
	Delete(ctx context.Context, id string) error
}

// ListResponse は一覧APIのレスポンスです。
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Resource は1種類のエンティティのハンドラー群です。
type Resource[T any, D any] struct {
	path         string
	notFoundCode string
	svc          Service[T, D]
	logger       logrus.FieldLogger
}

// NewResource は path（例: "news"）で公開する Resource を作成します。
// 見つからない場合のエラーコードは entity を大文字にした "<ENTITY>_NOT_FOUND" です。
func NewResource[T any, D any](path, entity string, svc Service[T, D], logger logrus.FieldLogger) *Resource[T, D] {
	return &Resource[T, D]{
		path:         path,
		notFoundCode: strings.ToUpper(entity) + "_NOT_FOUND",
		svc:          svc,
		logger:       logger,
	}
}

// RegisterPublic は一覧・詳細の読み取り専用ルートを登録します。
func (r *Resource[T, D]) RegisterPublic(g *gin.RouterGroup) {
	g.GET("/"+r.path, r.List)
	g.GET("/"+r.path+"/:id", r.Get)
}

// RegisterAdmin は作成・更新・削除を含む全ルートを登録します。
func (r *Resource[T, D]) RegisterAdmin(g *gin.RouterGroup) {
	r.RegisterPublic(g)
	g.POST("/"+r.path, r.Create)
	g.PUT("/"+r.path+"/:id", r.Update)
	g.DELETE("/"+r.path+"/:id", r.Delete)
}

// List は GET /{path} のハンドラーです。
func (r *Resource[T, D]) List(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	page, err := queryInt(c, "page")
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	limit, page, _ = repository.Normalize(limit, page)

	items, err := r.svc.GetAll(c.Request.Context(), limit, page)
	if err != nil {
		r.fail(c, "list", err)
		return
	}
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, ListResponse[T]{Items: items, Page: page, Limit: limit})
}

// Get は GET /{path}/:id のハンドラーです。
func (r *Resource[T, D]) Get(c *gin.Context) {
	item, err := r.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		r.fail(c, "get", err)
		return
	}
	if item == nil {
		r.notFound(c)
		return
	}
	c.JSON(http.StatusOK, item)
}

// Create は POST /{path} のハンドラーです。
func (r *Resource[T, D]) Create(c *gin.Context) {
	var dto D
	if err := c.ShouldBindJSON(&dto); err != nil {
		apierror.Respond(c, apierror.InvalidInput(err.Error()))
		return
	}

	item, err := r.svc.Create(c.Request.Context(), dto)
	if err != nil {
		r.fail(c, "create", err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// Update は PUT /{path}/:id のハンドラーです。
func (r *Resource[T, D]) Update(c *gin.Context) {
	var dto D
	if err := c.ShouldBindJSON(&dto); err != nil {
		apierror.Respond(c, apierror.InvalidInput(err.Error()))
		return
	}

	item, err := r.svc.Update(c.Request.Context(), c.Param("id"), dto)
	if err != nil {
		r.fail(c, "update", err)
		return
	}
	if item == nil {
		r.notFound(c)
		return
	}
	c.JSON(http.StatusOK, item)
}

// Delete は DELETE /{path}/:id のハンドラーです。
func (r *Resource[T, D]) Delete(c *gin.Context) {
	if err := r.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		r.fail(c, "delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Resource[T, D]) notFound(c *gin.Context) {
	apierror.Respond(c, apierror.NotFound(r.notFoundCode, "指定されたデータが見つかりません"))
}

func (r *Resource[T, D]) fail(c *gin.Context, op string, err error) {
	log := logging.FromContext(c, r.logger).WithError(err).WithFields(logrus.Fields{
		"resource": r.path,
		"op":       op,
	})
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError && r.reject(c, op, apiErr.Code) {
		log.WithField("code", apiErr.Code).Warn("content request rejected by backend")
		return
	}
	log.Error("content operation failed")
	apierror.Respond(c, apierror.Backend(err))
}

// reject はクライアントの入力が原因で拒否されたエラーをレスポンスに変換します。
// 対応するエラーコードでなければ false を返します。
func (r *Resource[T, D]) reject(c *gin.Context, op, code string) bool {
	switch code {
	case backend.CodeInvalidText:
		// 不正な形式のIDに一致する行は存在しない
		switch op {
		case "create":
			apierror.Respond(c, apierror.InvalidInput("入力値の形式が正しくありません"))
		case "delete":
			c.Status(http.StatusNoContent)
		default:
			r.notFound(c)
		}
	case backend.CodeUniqueViolation:
		apierror.Respond(c, apierror.Conflict("DUPLICATE_VALUE", "同じ値のデータが既に存在します"))
	case backend.CodeForeignKeyViolation:
		apierror.Respond(c, apierror.InvalidInput("参照先のデータが存在しません"))
	case backend.CodeCheckViolation:
		apierror.Respond(c, apierror.InvalidInput("入力値が制約を満たしていません"))
	default:
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierror.InvalidInput(key + " は整数で指定してください")
	}
	return n, nil
}
