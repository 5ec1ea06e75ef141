package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/watchlog/internal/metrics"
	"github.com/hitoshi/watchlog/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector
	// MetricsHandler は /metrics で公開するハンドラー。nilの場合はルートを登録しない。
	MetricsHandler http.Handler
	DB             Pinger

	ContentService   ContentServiceInterface
	UserService      UserServiceInterface
	HistoryService   HistoryServiceInterface
	AnalyticsService AnalyticsServiceInterface
	DialogueEngine   DialogueEngine
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → RateLimit(General)
//
// /api/v1/me 配下はさらにIdentityミドルウェアでユーザーを解決する。
// 外部プロバイダを呼び得る検索には検索専用のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	limiter := deps.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(m))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	contentHandler := NewContentHandler(deps.ContentService)
	userHandler := NewUserHandler(deps.UserService)
	historyHandler := NewHistoryHandler(deps.HistoryService)
	statsHandler := NewStatsHandler(deps.AnalyticsService)
	botHandler := NewBotHandler(deps.DialogueEngine)

	// --- 運用エンドポイント（レート制限なし） ---
	r.Get("/health", HealthHandler(deps.DB))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limiter.GeneralMiddleware())

		// コンテンツ
		r.Route("/content", func(r chi.Router) {
			r.With(limiter.SearchMiddleware()).Get("/search", contentHandler.Search)
			r.Get("/", contentHandler.List)
			r.Post("/", contentHandler.Create)
			r.Get("/imdb/{imdbID}", contentHandler.GetByIMDbID)
			r.Get("/{id}", contentHandler.Get)
		})
		r.Get("/categories", contentHandler.Categories)

		// ユーザー
		r.Route("/users", func(r chi.Router) {
			r.Post("/", userHandler.GetOrCreate)
			r.Get("/{id}", userHandler.Get)
		})

		// --- 識別が必要なルート ---
		r.Route("/me", func(r chi.Router) {
			r.Use(middleware.NewIdentityMiddleware(deps.UserService))

			r.Route("/history", func(r chi.Router) {
				r.Get("/", historyHandler.ListHistory)
				r.Post("/", historyHandler.RecordWatch)
				r.Patch("/{id}", historyHandler.UpdateWatch)
				r.Delete("/{id}", historyHandler.DeleteWatch)
			})

			r.Route("/watchlist", func(r chi.Router) {
				r.Get("/", historyHandler.ListWatchlist)
				r.Post("/", historyHandler.AddToWatchlist)
				r.Delete("/", historyHandler.ClearWatchlist)
				r.Get("/check/{contentID}", historyHandler.CheckWatchlist)
				r.Delete("/{id}", historyHandler.RemoveFromWatchlist)
				r.Post("/{id}/promote", historyHandler.Promote)
			})

			r.Get("/stats", statsHandler.UserStats)
			r.Get("/timeline", statsHandler.Timeline)
		})

		// 統計
		r.Route("/analytics", func(r chi.Router) {
			r.Get("/content", statsHandler.ContentStats)
			r.Get("/overview", statsHandler.Overview)
		})

		// チャットボット
		r.Post("/bot/messages", botHandler.HandleMessage)
	})

	return r
}
