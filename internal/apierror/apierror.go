// Package apierror はAPIレスポンス用のエラー表現を提供します。
package apierror

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error はクライアントへ返すエラーコードとメッセージを保持します。
type Error struct {
	Status  int
	Code    string
	Message string
	cause   error
}

// New は Error を作成します。
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// Wrap は原因となるエラーを保持した Error を作成します。
func Wrap(status int, code, message string, cause error) *Error {
	return &Error{Status: status, Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// InvalidInput は 400 INVALID_INPUT を返します。
func InvalidInput(message string) *Error {
	return New(http.StatusBadRequest, "INVALID_INPUT", message)
}

// NotFound は 404 を返します。
func NotFound(code, message string) *Error {
	return New(http.StatusNotFound, code, message)
}

// Conflict は 409 を返します。
func Conflict(code, message string) *Error {
	return New(http.StatusConflict, code, message)
}

// Backend は外部サービスの失敗を 502 BACKEND_ERROR に変換します。
// キャンセルされたリクエストはそのまま返します。
func Backend(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return err
	}
	return Wrap(http.StatusBadGateway, "BACKEND_ERROR", "外部サービスとの通信に失敗しました。", err)
}

// Respond は err をJSONレスポンスに変換します。
func Respond(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := apiErr.Status
		if status == 0 {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

// Abort は err をJSONレスポンスに変換し、後続のハンドラーを中断します。
func Abort(c *gin.Context, err error) {
	Respond(c, err)
	c.Abort()
}
