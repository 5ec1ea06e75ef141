package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/watchlog/internal/omdb"
)

const (
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 500 * time.Millisecond
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 8 * time.Second
	// defaultMaxAttempts は1件あたりのプロバイダ呼び出しの最大試行回数。
	defaultMaxAttempts = 3
)

// CalculateBackoff は失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回500ms、2倍ずつ増加、最大8秒。
func CalculateBackoff(failures int) time.Duration {
	delay := initialBackoff
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// IsRetryable はプロバイダ呼び出しのエラーが再試行で回復し得るかを判定する。
// 429/5xxとネットワークエラーは再試行し、それ以外のステータスや不正なレスポンスは再試行しない。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, omdb.ErrMalformedResponse) {
		return false
	}
	var statusErr *omdb.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}

// withRetry はfnを最大attempts回実行する。再試行不能なエラーかctxのキャンセルで打ち切る。
// sleepは待機の差し替え用で、ctxがキャンセルされた場合はctx.Err()を返す必要がある。
func withRetry[T any](ctx context.Context, attempts int, sleep func(context.Context, time.Duration) error, fn func() (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = fn()
		if err == nil || !IsRetryable(err) || attempt == attempts {
			return result, err
		}
		if serr := sleep(ctx, CalculateBackoff(attempt)); serr != nil {
			return result, serr
		}
	}
	return result, err
}

// sleepContext はdだけ待機する。ctxがキャンセルされた場合は即座に戻る。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
