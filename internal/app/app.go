// Package app はコマンドツリーの実行と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/watchlog/internal/config"
	"github.com/hitoshi/watchlog/internal/database"
	"github.com/hitoshi/watchlog/internal/handler"
	"github.com/hitoshi/watchlog/internal/logger"
	"github.com/hitoshi/watchlog/internal/metrics"
	"github.com/hitoshi/watchlog/internal/middleware"
	"github.com/hitoshi/watchlog/internal/worker/cleanup"
	"github.com/hitoshi/watchlog/internal/worker/refresh"
)

// appContext はサブコマンドの実行に必要な初期化済みの値。
type appContext struct {
	cfg    *config.Config
	logger *slog.Logger
}

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// wが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込みの失敗もJSONで出力できるよう、先にinfoレベルで初期化する
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetupDefault(w, level)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMを受信するとコマンドのコンテキストをキャンセルする。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// runWithConfig は設定とロガーを初期化してからfnを実行する。
func runWithConfig(cmd *cobra.Command, w io.Writer, name Command, fn func(*cobra.Command, *appContext) error) error {
	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	l := slog.Default()
	l.Info("starting application",
		slog.String("command", string(name)),
		slog.String("port", cfg.ServerPort),
		slog.Bool("omdb_enabled", cfg.OMDbEnabled()),
	)
	return fn(cmd, &appContext{cfg: cfg, logger: l})
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// コマンドのコンテキストがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(cmd *cobra.Command, a *appContext) error {
	ctx := cmd.Context()
	cfg := a.cfg

	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	a.logger.Info("database connection established")

	reg := newRegistry()
	collector := metrics.NewCollector(reg)
	c := newComponents(cfg, db, collector, a.logger)

	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            a.logger,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),
		DB:                db,

		ContentService:   c.resolver,
		UserService:      c.users,
		HistoryService:   c.recorder,
		AnalyticsService: c.analytics,
		DialogueEngine:   c.dialogue,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serveUntilDone(ctx, server, cfg.ShutdownTimeout, a.logger)
}

// serveUntilDone はctxがキャンセルされるまでserverを動かし、その後グレースフルシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server, timeout time.Duration, l *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		l.Info("HTTP server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	l.Info("shutting down HTTP server...", slog.String("addr", server.Addr))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	l.Info("HTTP server stopped gracefully", slog.String("addr", server.Addr))
	return nil
}

// runWorker はワーカーモードで起動する。
// 評価更新スケジューラと対話セッションのクリーンアップジョブを並行して実行し、
// コマンドのコンテキストがキャンセルされると両方の終了を待って戻る。
func runWorker(cmd *cobra.Command, a *appContext) error {
	cfg := a.cfg

	db, err := openDB(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	a.logger.Info("database connection established (worker)")

	reg := newRegistry()
	collector := metrics.NewCollector(reg)
	c := newComponents(cfg, db, collector, a.logger)

	if !c.provider.Enabled() {
		a.logger.Warn("OMDB_API_KEY is not set; rating refresh will be skipped")
	}

	refresher := refresh.NewRefresher(c.contentRepo, c.provider, collector, a.logger,
		refresh.WithPageSize(cfg.RefreshBatchSize),
		refresh.WithAPIInterval(cfg.RefreshAPIInterval),
	)
	scheduler := refresh.NewScheduler(refresher, a.logger)
	cleanupJob := cleanup.NewCleanupJob(db, a.logger, cfg.DialogueSessionTTL)

	a.logger.Info("worker starting",
		slog.Duration("refresh_interval", cfg.RefreshInterval),
		slog.Int("refresh_batch_size", cfg.RefreshBatchSize),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("session_ttl", cfg.DialogueSessionTTL),
	)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		scheduler.Start(ctx, cfg.RefreshInterval)
		return nil
	})
	g.Go(func() error {
		cleanupJob.Start(ctx, cfg.CleanupInterval)
		return nil
	})
	if cfg.WorkerMetricsPort != "" {
		server := &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           metrics.Handler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			return serveUntilDone(ctx, server, cfg.ShutdownTimeout, a.logger)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用し、seedがtrueの場合はデフォルトのカテゴリを投入する。
func runMigrate(cmd *cobra.Command, a *appContext, seed bool) error {
	cfg := a.cfg
	a.logger.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	a.logger.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)

	if !seed {
		return nil
	}

	seeds, err := database.DefaultCategorySeeds()
	if err != nil {
		return err
	}
	db, err := openDB(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := database.SeedCategories(cmd.Context(), db, seeds)
	if err != nil {
		return fmt.Errorf("category seed failed: %w", err)
	}
	a.logger.Info("categories seeded", slog.Int("count", n))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://localhost:%s/health", port), nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// newRegistry はGoランタイムとプロセスのメトリクスを含むレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
