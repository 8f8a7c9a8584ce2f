// Package ratelimit はクライアント単位のレート制限ミドルウェアを提供します。
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yourusername/club-portal/internal/apierror"
)

// idleTTL を超えて使われていないリミッターは掃除の対象になります。
// 掃除は sweepInterval に1回だけ行います。
const (
	idleTTL       = 10 * time.Minute
	sweepInterval = time.Minute
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter はキー（通常はクライアントIP）ごとのトークンバケットを保持します。
type Limiter struct {
	mu        sync.Mutex
	limiters  map[string]*entry
	rate      rate.Limit
	burst     int
	now       func() time.Time
	nextSweep time.Time
}

// PerMinute は1分あたり n 回まで許可する Limiter を作成します。
func PerMinute(n int) *Limiter {
	if n <= 0 {
		n = 1
	}
	return New(rate.Every(time.Minute/time.Duration(n)), n)
}

// New は Limiter を作成します。
func New(r rate.Limit, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*entry),
		rate:     r,
		burst:    burst,
		now:      time.Now,
	}
}

// Allow は key のリクエストを許可するかどうかを返します。
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	l.sweep(now)
	return e.limiter.AllowN(now, 1)
}

// sweep は一定時間アクセスのないリミッターを削除します。呼び出し側でロックを保持していること。
func (l *Limiter) sweep(now time.Time) {
	if now.Before(l.nextSweep) {
		return
	}
	l.nextSweep = now.Add(sweepInterval)
	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) > idleTTL {
			delete(l.limiters, key)
		}
	}
}

// Middleware はクライアントIPをキーにしたレート制限ミドルウェアです。
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.Allow(c.ClientIP()) {
			c.Next()
			return
		}

		retryAfter := time.Duration(float64(time.Second) / float64(l.rate))
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
		apierror.Abort(c, apierror.New(http.StatusTooManyRequests, "RATE_LIMITED", "リクエストが多すぎます。しばらくしてから再度お試しください。"))
	}
}
