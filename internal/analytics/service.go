// Package analytics は視聴データの読み取り専用集計を提供する。
package analytics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/watchlog/internal/model"
	"github.com/hitoshi/watchlog/internal/repository"
)

const (
	// DefaultStatsWindow はユーザー統計のデフォルト集計期間。
	DefaultStatsWindow = 30 * 24 * time.Hour
	// DefaultTimelineWindow はタイムラインのデフォルト集計期間。
	DefaultTimelineWindow = 365 * 24 * time.Hour
	// ActiveWindow はアクティブユーザーとみなす期間。
	ActiveWindow = 7 * 24 * time.Hour
	// MinRatingsForRanking は評価ランキングに載るための最小評価数。
	MinRatingsForRanking = 3

	topGenresLimit  = 5
	topContentLimit = 10
)

// Service は集計サービス。すべての操作は読み取り専用で副作用を持たない。
type Service struct {
	repo repository.AnalyticsRepository
	now  func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.AnalyticsRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// UserStats はユーザーの期間内統計を返す。
// from / to がゼロ値の場合は直近30日間を対象とする。
func (s *Service) UserStats(ctx context.Context, userID int64, from, to time.Time) (*model.UserStats, error) {
	from, to, err := s.window(from, to, DefaultStatsWindow)
	if err != nil {
		return nil, err
	}

	stats := &model.UserStats{UserID: userID, From: from, To: to}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		byKind, err := s.repo.CountUserViewsByKind(gctx, userID, from, to)
		if err != nil {
			return fmt.Errorf("種別ごとの視聴数の集計に失敗しました: %w", err)
		}
		stats.MovieViews = byKind[model.KindMovie]
		stats.SeriesViews = byKind[model.KindSeries]
		stats.TotalViews = stats.MovieViews + stats.SeriesViews
		return nil
	})
	g.Go(func() error {
		avg, err := s.repo.AverageUserRating(gctx, userID, from, to)
		if err != nil {
			return fmt.Errorf("平均評価の集計に失敗しました: %w", err)
		}
		stats.AverageRating = avg
		return nil
	})
	g.Go(func() error {
		genres, err := s.repo.TopUserGenres(gctx, userID, from, to, topGenresLimit)
		if err != nil {
			return fmt.Errorf("ジャンル集計に失敗しました: %w", err)
		}
		stats.TopGenres = genres
		return nil
	})
	g.Go(func() error {
		monthly, err := s.repo.UserTimeline(gctx, userID, model.GranularityMonthly, from, to)
		if err != nil {
			return fmt.Errorf("月別集計に失敗しました: %w", err)
		}
		stats.Monthly = monthly
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if stats.TopGenres == nil {
		stats.TopGenres = []model.GenreCount{}
	}
	if stats.Monthly == nil {
		stats.Monthly = []model.BucketStat{}
	}
	return stats, nil
}

// Timeline はユーザーの視聴数を指定粒度で集計する。
// from / to がゼロ値の場合は直近1年間を対象とする。
func (s *Service) Timeline(ctx context.Context, userID int64, g model.Granularity, from, to time.Time) ([]model.BucketStat, error) {
	if g == "" {
		g = model.GranularityMonthly
	}
	if !g.Valid() {
		return nil, model.NewInvalidGranularityError(string(g))
	}
	from, to, err := s.window(from, to, DefaultTimelineWindow)
	if err != nil {
		return nil, err
	}

	buckets, err := s.repo.UserTimeline(ctx, userID, g, from, to)
	if err != nil {
		return nil, fmt.Errorf("タイムラインの集計に失敗しました: %w", err)
	}
	if buckets == nil {
		buckets = []model.BucketStat{}
	}
	return buckets, nil
}

// ContentStats はストア全体の人気・高評価コンテンツを返す。
// 高評価ランキングは評価数が3件以上のコンテンツのみを対象とする。
func (s *Service) ContentStats(ctx context.Context) (*model.ContentStats, error) {
	stats := &model.ContentStats{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		movies, err := s.repo.TopContentByViews(gctx, model.KindMovie, topContentLimit)
		if err != nil {
			return fmt.Errorf("人気映画の集計に失敗しました: %w", err)
		}
		stats.TopMovies = movies
		return nil
	})
	g.Go(func() error {
		series, err := s.repo.TopContentByViews(gctx, model.KindSeries, topContentLimit)
		if err != nil {
			return fmt.Errorf("人気シリーズの集計に失敗しました: %w", err)
		}
		stats.TopSeries = series
		return nil
	})
	g.Go(func() error {
		rated, err := s.repo.HighestRated(gctx, MinRatingsForRanking, topContentLimit)
		if err != nil {
			return fmt.Errorf("評価ランキングの集計に失敗しました: %w", err)
		}
		stats.HighestRated = rated
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if stats.TopMovies == nil {
		stats.TopMovies = []model.ContentViews{}
	}
	if stats.TopSeries == nil {
		stats.TopSeries = []model.ContentViews{}
	}
	if stats.HighestRated == nil {
		stats.HighestRated = []model.RatedContent{}
	}
	return stats, nil
}

// Overview はシステム全体の概要を返す。アクティブユーザーと日別活動は直近7日間。
func (s *Service) Overview(ctx context.Context) (*model.SystemOverview, error) {
	since := s.now().Add(-ActiveWindow)
	o := &model.SystemOverview{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if o.TotalUsers, err = s.repo.CountUsers(gctx); err != nil {
			return fmt.Errorf("ユーザー数の集計に失敗しました: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if o.ActiveUsers, err = s.repo.CountActiveUsers(gctx, since); err != nil {
			return fmt.Errorf("アクティブユーザー数の集計に失敗しました: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if o.ContentByKind, err = s.repo.CountContentByKind(gctx); err != nil {
			return fmt.Errorf("コンテンツ数の集計に失敗しました: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if o.TotalViews, err = s.repo.CountViews(gctx); err != nil {
			return fmt.Errorf("視聴数の集計に失敗しました: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if o.DailyActivity, err = s.repo.DailyActivity(gctx, since); err != nil {
			return fmt.Errorf("日別活動の集計に失敗しました: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if o.ContentByKind == nil {
		o.ContentByKind = map[model.ContentKind]int{}
	}
	for _, n := range o.ContentByKind {
		o.TotalContent += n
	}
	if o.DailyActivity == nil {
		o.DailyActivity = []model.BucketStat{}
	}
	return o, nil
}

// window は集計期間を決定する。ゼロ値は現在時刻とデフォルト期間で補完する。
func (s *Service) window(from, to time.Time, def time.Duration) (time.Time, time.Time, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-def)
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, model.NewInvalidDateRangeError()
	}
	return from, to, nil
}
