package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// CodeNoRows は単一行を要求したクエリが0行を返したときのエラーコードです。
const CodeNoRows = "PGRST116"

// Postgres のエラーコード（PostgREST はそのまま返します）
const (
	CodeInvalidText         = "22P02"
	CodeForeignKeyViolation = "23503"
	CodeUniqueViolation     = "23505"
	CodeCheckViolation      = "23514"
)

// APIError はBaaSが返したエラーレスポンスです。
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// IsNotFound は err が「行が存在しない」ことを示すエラーかどうかを返します。
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeNoRows
}

// IsUnauthorized は認証APIがトークンやクレデンシャルを拒否したかどうかを返します。
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == 400 || apiErr.Status == 401 || apiErr.Status == 403
}

// authErrorBody は認証APIのエラー形式です。
type authErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	ErrorCode        string `json:"error_code"`
	Code             any    `json:"code"`
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status}

	var rest APIError
	if err := json.Unmarshal(body, &rest); err == nil && (rest.Code != "" || rest.Message != "") {
		rest.Status = status
		return &rest
	}

	var auth authErrorBody
	if err := json.Unmarshal(body, &auth); err == nil {
		apiErr.Code = auth.ErrorCode
		if apiErr.Code == "" {
			apiErr.Code = auth.Error
		}
		switch {
		case auth.ErrorDescription != "":
			apiErr.Message = auth.ErrorDescription
		case auth.Msg != "":
			apiErr.Message = auth.Msg
		default:
			apiErr.Message = auth.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
