package app

import (
	"database/sql"
	"log/slog"

	"github.com/hitoshi/watchlog/internal/analytics"
	"github.com/hitoshi/watchlog/internal/config"
	"github.com/hitoshi/watchlog/internal/content"
	"github.com/hitoshi/watchlog/internal/dialogue"
	"github.com/hitoshi/watchlog/internal/history"
	"github.com/hitoshi/watchlog/internal/metrics"
	"github.com/hitoshi/watchlog/internal/omdb"
	"github.com/hitoshi/watchlog/internal/repository"
	"github.com/hitoshi/watchlog/internal/security"
	"github.com/hitoshi/watchlog/internal/user"
)

// components はserveとworkerで共有するドメインサービス群。
type components struct {
	contentRepo *repository.PostgresContentRepo
	provider    *omdb.Client
	resolver    *content.Resolver
	users       *user.Service
	recorder    *history.Recorder
	analytics   *analytics.Service
	dialogue    *dialogue.Engine
}

// newComponents はリポジトリからドメインサービスまでを組み立てる。
// HTTPハンドラー、チャット対話、評価更新ワーカーは同じResolverを共有する。
func newComponents(cfg *config.Config, db *sql.DB, m metrics.MetricsCollector, logger *slog.Logger) *components {
	// 1. リポジトリ
	contentRepo := repository.NewPostgresContentRepo(db)
	categoryRepo := repository.NewPostgresCategoryRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)
	historyRepo := repository.NewPostgresHistoryRepo(db)
	watchlistRepo := repository.NewPostgresWatchlistRepo(db)
	analyticsRepo := repository.NewPostgresAnalyticsRepo(db)
	sessionRepo := repository.NewPostgresDialogueSessionRepo(db)

	// 2. 外部プロバイダ（SSRF対策済みクライアント経由）
	guard := security.NewOutboundGuard()
	provider := omdb.NewClient(guard.HTTPClient(cfg.OMDbTimeout), omdb.Config{
		APIKey:     cfg.OMDbAPIKey,
		BaseURL:    cfg.OMDbBaseURL,
		Timeout:    cfg.OMDbTimeout,
		RatePerSec: cfg.OMDbRatePerSec,
	}, guard, m, logger)

	// 3. ドメインサービス
	resolver := content.NewResolver(contentRepo, categoryRepo, provider, m, logger)
	users := user.NewService(userRepo, logger)
	recorder := history.NewRecorder(historyRepo, watchlistRepo, contentRepo, logger)
	stats := analytics.NewService(analyticsRepo)
	engine := dialogue.NewEngine(dialogue.NewRepoStore(sessionRepo), resolver, recorder, users, stats, m, logger)

	return &components{
		contentRepo: contentRepo,
		provider:    provider,
		resolver:    resolver,
		users:       users,
		recorder:    recorder,
		analytics:   stats,
		dialogue:    engine,
	}
}
