package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/watchlog/internal/model"
)

// AnalyticsServiceInterface は統計ハンドラーが必要とするサービスインターフェース。
// 期間のゼロ値はサービス側のデフォルト期間を意味する。
type AnalyticsServiceInterface interface {
	UserStats(ctx context.Context, userID int64, from, to time.Time) (*model.UserStats, error)
	Timeline(ctx context.Context, userID int64, g model.Granularity, from, to time.Time) ([]model.BucketStat, error)
	ContentStats(ctx context.Context) (*model.ContentStats, error)
	Overview(ctx context.Context) (*model.SystemOverview, error)
}

// StatsHandler は統計APIのHTTPハンドラー。
type StatsHandler struct {
	service AnalyticsServiceInterface
}

// NewStatsHandler はStatsHandlerを生成する。
func NewStatsHandler(service AnalyticsServiceInterface) *StatsHandler {
	return &StatsHandler{service: service}
}

// dateRange はfrom/toクエリパラメータを読み取る。失敗時は400を書き込みfalseを返す。
func dateRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	from, err := dateQuery(r, "from", false)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidDateRangeError())
		return time.Time{}, time.Time{}, false
	}
	to, err := dateQuery(r, "to", true)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidDateRangeError())
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// UserStats はユーザーの視聴統計を返す。
// GET /api/v1/me/stats?from=&to=
func (h *StatsHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	from, to, ok := dateRange(w, r)
	if !ok {
		return
	}
	stats, err := h.service.UserStats(r.Context(), userID, from, to)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserStatsResponse(stats))
}

// Timeline は時間バケットごとの視聴数を返す。
// GET /api/v1/me/timeline?granularity=&from=&to=
func (h *StatsHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	from, to, ok := dateRange(w, r)
	if !ok {
		return
	}
	g := model.Granularity(r.URL.Query().Get("granularity"))
	buckets, err := h.service.Timeline(r.Context(), userID, g, from, to)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBucketResponses(buckets))
}

// ContentStats はストア全体のコンテンツ統計を返す。
// GET /api/v1/analytics/content
func (h *StatsHandler) ContentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.ContentStats(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContentStatsResponse(stats))
}

// Overview はシステム全体の概要統計を返す。
// GET /api/v1/analytics/overview
func (h *StatsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.Overview(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOverviewResponse(o))
}
