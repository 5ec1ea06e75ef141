// Package refresh は外部プロバイダから評価を取り直すバックグラウンドジョブを提供する。
// 外部IDを持つコンテンツをキーセットページングで走査し、評価が変わったものだけを更新する。
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/watchlog/internal/metrics"
	"github.com/hitoshi/watchlog/internal/model"
	"github.com/hitoshi/watchlog/internal/repository"
)

// defaultPageSize は1回の取得で読むコンテンツ件数。
const defaultPageSize = 100

// Provider は評価更新に使う外部プロバイダのインターフェース。
type Provider interface {
	Enabled() bool
	// LookupByID は外部IDでコンテンツを取得する。見つからない場合は nil, nil。
	LookupByID(ctx context.Context, imdbID string) (*model.Content, error)
}

// Result は1回の更新ジョブの結果。
type Result struct {
	Checked int
	Updated int
	Failed  int
}

// Refresher は外部評価の更新ジョブ。
type Refresher struct {
	contentRepo repository.ContentRepository
	provider    Provider
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	pageSize    int
	apiInterval time.Duration
	maxAttempts int
	sleep       func(context.Context, time.Duration) error
}

// Option はRefresherの設定を変更する。
type Option func(*Refresher)

// WithPageSize は1回の取得で読むコンテンツ件数を設定する。0以下は無視する。
func WithPageSize(n int) Option {
	return func(r *Refresher) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// WithAPIInterval は外部プロバイダへの問い合わせ間の待機時間を設定する。
func WithAPIInterval(d time.Duration) Option {
	return func(r *Refresher) {
		if d > 0 {
			r.apiInterval = d
		}
	}
}

// NewRefresher はRefresherの新しいインスタンスを生成する。
func NewRefresher(contentRepo repository.ContentRepository, provider Provider, m metrics.MetricsCollector, logger *slog.Logger, opts ...Option) *Refresher {
	if m == nil {
		m = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Refresher{
		contentRepo: contentRepo,
		provider:    provider,
		metrics:     m,
		logger:      logger,
		pageSize:    defaultPageSize,
		maxAttempts: defaultMaxAttempts,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce は外部IDを持つ全コンテンツの評価を1巡更新する。
// 1件ごとの失敗はFailedに数えて処理を続ける。ストアの読み出しに失敗した場合と
// ctxがキャンセルされた場合は、それまでの結果とともにエラーを返す。
func (r *Refresher) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	if !r.provider.Enabled() {
		r.logger.Warn("外部プロバイダが無効のため評価更新をスキップします")
		return res, nil
	}

	start := time.Now()
	defer func() {
		r.metrics.RecordRefresh(res.Checked, res.Updated, res.Failed)
		r.logger.Info("評価更新が完了しました",
			slog.Int("checked", res.Checked),
			slog.Int("updated", res.Updated),
			slog.Int("failed", res.Failed),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}()

	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		page, err := r.contentRepo.ListWithIMDbID(ctx, afterID, r.pageSize)
		if err != nil {
			return res, fmt.Errorf("評価更新対象の取得に失敗しました: %w", err)
		}
		if len(page) == 0 {
			return res, nil
		}

		for i := range page {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if res.Checked > 0 && r.apiInterval > 0 {
				if err := r.sleep(ctx, r.apiInterval); err != nil {
					return res, err
				}
			}
			c := &page[i]
			res.Checked++
			updated, err := r.refreshOne(ctx, c)
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				res.Failed++
				r.logger.Warn("評価の更新に失敗しました",
					slog.Int64("content_id", c.ID),
					slog.String("imdb_id", c.IMDbID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if updated {
				res.Updated++
			}
		}

		afterID = page[len(page)-1].ID
		if len(page) < r.pageSize {
			return res, nil
		}
	}
}

// refreshOne は1件の評価を取り直し、値が変わった場合のみ保存する。
func (r *Refresher) refreshOne(ctx context.Context, c *model.Content) (bool, error) {
	fresh, err := withRetry(ctx, r.maxAttempts, r.sleep, func() (*model.Content, error) {
		return r.provider.LookupByID(ctx, c.IMDbID)
	})
	if err != nil {
		return false, err
	}
	if fresh == nil || fresh.IMDbRating == nil {
		return false, nil
	}
	if c.IMDbRating != nil && *c.IMDbRating == *fresh.IMDbRating {
		return false, nil
	}

	if err := r.contentRepo.UpdateRating(ctx, c.ID, fresh.IMDbRating); err != nil {
		return false, fmt.Errorf("評価の保存に失敗しました: %w", err)
	}
	r.logger.Debug("評価を更新しました",
		slog.Int64("content_id", c.ID),
		slog.Float64("rating", *fresh.IMDbRating),
	)
	return true, nil
}
