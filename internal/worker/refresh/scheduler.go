package refresh

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval は評価更新ジョブのデフォルト実行間隔。
const DefaultInterval = 24 * time.Hour

// Job はスケジューラから実行される1回分の処理。
type Job interface {
	RunOnce(ctx context.Context) (Result, error)
}

// Scheduler は評価更新ジョブを定期実行する。
type Scheduler struct {
	job    Job
	logger *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(job Job, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{job: job, logger: logger}
}

// Start は起動直後に1回実行し、その後intervalごとに実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("評価更新スケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	s.run(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("評価更新スケジューラを停止しました")
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	if _, err := s.job.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("評価更新ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
