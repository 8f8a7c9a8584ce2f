// Package logging はアプリケーション共通のロガーとリクエストログを提供します。
package logging

import (
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader はリクエストIDを受け渡すヘッダー名です。
const RequestIDHeader = "X-Request-ID"

const contextRequestIDKey = "logging.requestId"

// New は logrus ロガーを作成します。release モードではJSON形式で出力します。
func New(level string, release bool) *logrus.Logger {
	return NewWithOutput(os.Stdout, level, release)
}

// NewWithOutput は出力先を指定してロガーを作成します。
func NewWithOutput(out io.Writer, level string, release bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	if release {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// Middleware はリクエストごとにアクセスログを出力するミドルウェアです。
func Middleware(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(contextRequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request handled")
		}
	}
}

// RequestID はミドルウェアが払い出したリクエストIDを返します。
func RequestID(c *gin.Context) string {
	return c.GetString(contextRequestIDKey)
}

// FromContext はリクエストIDを付与したログエントリを返します。
func FromContext(c *gin.Context, logger logrus.FieldLogger) logrus.FieldLogger {
	if id := RequestID(c); id != "" {
		return logger.WithField("request_id", id)
	}
	return logger
}
