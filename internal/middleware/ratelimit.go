package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はユーザーごとのトークンバケットのパラメータ。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般の補充レート（req/sec）
	GeneralBurst    int           // API全般の瞬間許容量
	TaskCreateRate  rate.Limit    // タスク作成の補充レート（req/sec）
	TaskCreateBurst int           // タスク作成の瞬間許容量
	CleanupInterval time.Duration // 放置エントリの回収間隔
}

// DefaultRateLimiterConfig は標準のレート制限パラメータを返す。
// API全般 120 req/min/user、タスク作成 30 req/min/user。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0),
		GeneralBurst:    120,
		TaskCreateRate:  rate.Limit(30.0 / 60.0),
		TaskCreateBurst: 30,
		CleanupInterval: 5 * time.Minute,
	}
}

// userLimiter はユーザーごとのレートリミッターとアクセス時刻を保持する。
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はユーザーID単位のトークンバケットを種別ごとに管理する。
// API全般とタスク作成の2種類のバケットは互いに独立に消費される。
type RateLimiter struct {
	config RateLimiterConfig

	mu       sync.Mutex
	limiters map[string]map[string]*userLimiter // kind -> userID -> limiter

	stopCh chan struct{}
}

const (
	limitKindGeneral    = "general"
	limitKindTaskCreate = "task_create"
)

// NewRateLimiter はRateLimiterを生成し、放置エントリを回収する
// バックグラウンドループを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config: config,
		limiters: map[string]map[string]*userLimiter{
			limitKindGeneral:    {},
			limitKindTaskCreate: {},
		},
		stopCh: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のバケットを消費するミドルウェアを返す。
// ユーザーIDをコンテキストから取るため、SessionMiddlewareより後に配置すること。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(limitKindGeneral, rl.config.GeneralRate, rl.config.GeneralBurst)
}

// TaskCreateMiddleware はタスク作成専用のバケットを消費するミドルウェアを返す。
func (rl *RateLimiter) TaskCreateMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(limitKindTaskCreate, rl.config.TaskCreateRate, rl.config.TaskCreateBurst)
}

// middleware は指定種別のレート制限ミドルウェアを構築する共通処理。
func (rl *RateLimiter) middleware(kind string, limit rate.Limit, burst int) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			limiter := rl.getOrCreate(kind, userID, limit, burst)

			if !limiter.Allow() {
				writeRateLimitResponse(w, limit)
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", kind),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCount は指定種別の現在管理されているリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) LimiterCount(kind string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters[kind])
}

// getOrCreate はユーザーのリミッターを取得または作成する。
func (rl *RateLimiter) getOrCreate(kind, userID string, limit rate.Limit, burst int) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if ul, exists := rl.limiters[kind][userID]; exists {
		ul.lastAccess = time.Now()
		return ul.limiter
	}

	limiter := rate.NewLimiter(limit, burst)
	rl.limiters[kind][userID] = &userLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for _, byUser := range rl.limiters {
		for userID, ul := range byUser {
			if now.Sub(ul.lastAccess) > ttl {
				delete(byUser, userID)
			}
		}
	}
}

// writeRateLimitResponse は429を書き込む。Retry-Afterには
// トークン1個が補充されるまでの秒数を切り上げで設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "RATE_LIMIT_EXCEEDED",
		"message":  "リクエストが多すぎます。",
		"category": "system",
		"action":   "しばらく待ってから再度お試しください。",
	})
}
