package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hitoshi/watchlog/internal/analytics"
	"github.com/hitoshi/watchlog/internal/model"
	"github.com/hitoshi/watchlog/internal/repository"
)

// statsOptions はstatsサブコマンドのフラグ。
type statsOptions struct {
	UserID int64
	Days   int
}

// statsSource はstatsサブコマンドが使う集計操作。
type statsSource interface {
	Overview(ctx context.Context) (*model.SystemOverview, error)
	ContentStats(ctx context.Context) (*model.ContentStats, error)
	UserStats(ctx context.Context, userID int64, from, to time.Time) (*model.UserStats, error)
}

// runStats はシステム概要と人気コンテンツを表形式で出力する。
// UserIDが指定された場合は直近Days日のユーザー統計も出力する。
func runStats(cmd *cobra.Command, a *appContext, opts statsOptions) error {
	db, err := openDB(cmd.Context(), a.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := analytics.NewService(repository.NewPostgresAnalyticsRepo(db))
	return printStats(cmd.Context(), cmd.OutOrStdout(), svc, opts, time.Now())
}

func printStats(ctx context.Context, w io.Writer, src statsSource, opts statsOptions, now time.Time) error {
	overview, err := src.Overview(ctx)
	if err != nil {
		return fmt.Errorf("failed to load overview: %w", err)
	}
	analytics.RenderOverview(w, overview)

	cs, err := src.ContentStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to load content stats: %w", err)
	}
	analytics.RenderContentStats(w, cs)

	if opts.UserID <= 0 {
		return nil
	}
	days := opts.Days
	if days <= 0 {
		days = 30
	}
	us, err := src.UserStats(ctx, opts.UserID, now.AddDate(0, 0, -days), now)
	if err != nil {
		return fmt.Errorf("failed to load user stats: %w", err)
	}
	analytics.RenderUserStats(w, us)
	return nil
}
