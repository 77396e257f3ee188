// Package ratelimiter はリクエスト間の待機ポリシーを提供します。
package ratelimiter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultDelay は取引所へのページ取得間の既定の待機時間です。
const DefaultDelay = 200 * time.Millisecond

// Limiter は、API呼び出しなどの操作の頻度を制限するインターフェースです。
// Wait は ctx がキャンセルされた場合 ctx.Err() を返します。
type Limiter interface {
	Wait(ctx context.Context) error
}

var (
	_ Limiter = (*FixedDelay)(nil)
	_ Limiter = (*TokenBucket)(nil)
	_ Limiter = (*Window)(nil)
	_ Limiter = Noop{}
)

// FixedDelay は呼び出しごとに一定時間待機します。
type FixedDelay struct {
	delay time.Duration
}

// NewFixedDelay は新しいFixedDelayを生成します。delay <= 0 の場合は待機しません。
func NewFixedDelay(delay time.Duration) *FixedDelay {
	return &FixedDelay{delay: delay}
}

func (f *FixedDelay) Wait(ctx context.Context) error {
	return sleep(ctx, f.delay)
}

// TokenBucket は golang.org/x/time/rate によるトークンバケットです。
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket は毎秒 rps 件、最大 burst 件のトークンバケットを生成します。
func NewTokenBucket(rps float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.limiter.Wait(ctx)
}

// Window は interval ごとに limit 回までの呼び出しを許可します。
// 上限に達した場合は次のウィンドウが始まるまで待機します。
type Window struct {
	mu        sync.Mutex
	limit     int           // ウィンドウあたりの上限
	interval  time.Duration // どの単位でリセットするか
	count     int
	lastReset time.Time
}

// NewWindow は新しいWindowのインスタンスを生成します。
func NewWindow(limit int, interval time.Duration) *Window {
	if limit < 1 {
		limit = 1
	}
	return &Window{
		limit:     limit,
		interval:  interval,
		lastReset: time.Now(),
	}
}

// Wait はレートリミットの上限に達しているかを確認し、必要であれば待機します。
// 複数のゴルーチンから呼び出しても安全です。
func (w *Window) Wait(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	// interval を過ぎたらカウントリセット
	if now.Sub(w.lastReset) >= w.interval {
		w.count = 0
		w.lastReset = now
	}

	w.count++
	if w.count <= w.limit {
		return nil
	}

	d := w.interval - now.Sub(w.lastReset)
	if d > 0 {
		slog.Warn("rate limit reached, waiting", "limit", w.limit, "wait", d)
		if err := sleep(ctx, d); err != nil {
			w.count--
			return err
		}
	}
	// リセット
	w.count = 1
	w.lastReset = time.Now()
	return nil
}

// Noop は待機しません。テストやバックフィル用です。
type Noop struct{}

func (Noop) Wait(ctx context.Context) error {
	return ctx.Err()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
