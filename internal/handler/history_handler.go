package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/watchlog/internal/history"
	"github.com/hitoshi/watchlog/internal/model"
)

// HistoryServiceInterface は視聴履歴・ウォッチリストハンドラーが必要とするサービスインターフェース。
type HistoryServiceInterface interface {
	RecordWatch(ctx context.Context, userID int64, in history.WatchInput) (*model.ViewEvent, error)
	UpdateWatch(ctx context.Context, userID, id int64, rating *float64, notes *string) (*model.ViewEvent, error)
	DeleteWatch(ctx context.Context, userID, id int64) error
	ListHistory(ctx context.Context, userID int64, limit, offset int) ([]model.ViewEventWithContent, error)

	AddToWatchlist(ctx context.Context, userID int64, in history.WatchlistInput) (*model.WatchlistEntry, error)
	// PromoteWatchlistToHistory はウォッチリスト項目を視聴履歴に変換する。
	// 戻り値のboolはウォッチリスト項目が削除されたかどうか。
	PromoteWatchlistToHistory(ctx context.Context, userID, entryID int64, in history.PromoteInput) (*model.ViewEvent, bool, error)
	ListWatchlist(ctx context.Context, userID int64) ([]model.WatchlistEntryWithContent, error)
	RemoveFromWatchlist(ctx context.Context, userID, id int64) error
	ClearWatchlist(ctx context.Context, userID int64) (int64, error)
	IsInWatchlist(ctx context.Context, userID, contentID int64) (*model.WatchlistEntry, error)
}

// HistoryHandler は識別済みユーザーの視聴履歴とウォッチリストを扱うHTTPハンドラー。
type HistoryHandler struct {
	service HistoryServiceInterface
}

// NewHistoryHandler はHistoryHandlerを生成する。
func NewHistoryHandler(service HistoryServiceInterface) *HistoryHandler {
	return &HistoryHandler{service: service}
}

type recordWatchRequest struct {
	ContentID       int64    `json:"content_id"`
	Rating          *float64 `json:"rating"`
	Notes           string   `json:"notes"`
	WatchedAt       string   `json:"watched_at"`
	Season          *int     `json:"season"`
	Episode         *int     `json:"episode"`
	EpisodeTitle    string   `json:"episode_title"`
	DurationWatched *int     `json:"duration_watched"`
}

type updateWatchRequest struct {
	Rating *float64 `json:"rating"`
	Notes  *string  `json:"notes"`
}

type addWatchlistRequest struct {
	ContentID int64  `json:"content_id"`
	Priority  int    `json:"priority"`
	Notes     string `json:"notes"`
}

type promoteRequest struct {
	Rating    *float64 `json:"rating"`
	Notes     string   `json:"notes"`
	WatchedAt string   `json:"watched_at"`
}

type promoteResponse struct {
	Event   viewEventResponse `json:"event"`
	Removed bool              `json:"removed"`
}

type watchlistCheckResponse struct {
	InWatchlist bool               `json:"in_watchlist"`
	Entry       *watchlistResponse `json:"entry,omitempty"`
}

// parseWatchedAt は視聴日時をRFC3339または日付のみの形式で解釈する。空文字列はnil。
func parseWatchedAt(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, model.NewInvalidWatchedAtError("日付の形式が正しくありません")
	}
	return &t, nil
}

// ListHistory は視聴履歴を新しい順に返す。
// GET /api/v1/me/history?limit=&offset=
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		writeInvalidRequest(w, "limitは整数で指定してください。")
		return
	}
	offset, err := intQuery(r, "offset", 0)
	if err != nil {
		writeInvalidRequest(w, "offsetは整数で指定してください。")
		return
	}

	events, err := h.service.ListHistory(r.Context(), userID, limit, offset)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	out := make([]viewEventResponse, len(events))
	for i := range events {
		out[i] = toViewEventResponse(&events[i].ViewEvent)
		c := toContentResponse(&events[i].Content)
		out[i].Content = &c
	}
	writeJSON(w, http.StatusOK, out)
}

// RecordWatch は視聴を記録する。
// POST /api/v1/me/history
func (h *HistoryHandler) RecordWatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req recordWatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	watchedAt, err := parseWatchedAt(req.WatchedAt)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	event, err := h.service.RecordWatch(r.Context(), userID, history.WatchInput{
		ContentID:       req.ContentID,
		Rating:          req.Rating,
		Notes:           req.Notes,
		WatchedAt:       watchedAt,
		Season:          req.Season,
		Episode:         req.Episode,
		EpisodeTitle:    req.EpisodeTitle,
		DurationWatched: req.DurationWatched,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toViewEventResponse(event))
}

// UpdateWatch は視聴履歴の評価とメモを更新する。
// PATCH /api/v1/me/history/{id}
func (h *HistoryHandler) UpdateWatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req updateWatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	event, err := h.service.UpdateWatch(r.Context(), userID, id, req.Rating, req.Notes)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toViewEventResponse(event))
}

// DeleteWatch は視聴履歴を削除する。
// DELETE /api/v1/me/history/{id}
func (h *HistoryHandler) DeleteWatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteWatch(r.Context(), userID, id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListWatchlist はウォッチリストを優先度順に返す。
// GET /api/v1/me/watchlist
func (h *HistoryHandler) ListWatchlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.ListWatchlist(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	out := make([]watchlistResponse, len(entries))
	for i := range entries {
		out[i] = toWatchlistResponse(&entries[i].WatchlistEntry)
		c := toContentResponse(&entries[i].Content)
		out[i].Content = &c
	}
	writeJSON(w, http.StatusOK, out)
}

// AddToWatchlist はウォッチリストに追加する。
// POST /api/v1/me/watchlist
func (h *HistoryHandler) AddToWatchlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req addWatchlistRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := h.service.AddToWatchlist(r.Context(), userID, history.WatchlistInput{
		ContentID: req.ContentID,
		Priority:  req.Priority,
		Notes:     req.Notes,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWatchlistResponse(entry))
}

// RemoveFromWatchlist はウォッチリスト項目を削除する。
// DELETE /api/v1/me/watchlist/{id}
func (h *HistoryHandler) RemoveFromWatchlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.RemoveFromWatchlist(r.Context(), userID, id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearWatchlist はウォッチリストを空にする。
// DELETE /api/v1/me/watchlist
func (h *HistoryHandler) ClearWatchlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	n, err := h.service.ClearWatchlist(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": n})
}

// Promote はウォッチリスト項目を視聴履歴に変換する。
// POST /api/v1/me/watchlist/{id}/promote
func (h *HistoryHandler) Promote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req promoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	watchedAt, err := parseWatchedAt(req.WatchedAt)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	event, removed, err := h.service.PromoteWatchlistToHistory(r.Context(), userID, id, history.PromoteInput{
		Rating:    req.Rating,
		Notes:     req.Notes,
		WatchedAt: watchedAt,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, promoteResponse{Event: toViewEventResponse(event), Removed: removed})
}

// CheckWatchlist はコンテンツがウォッチリストにあるかを返す。
// GET /api/v1/me/watchlist/check/{contentID}
func (h *HistoryHandler) CheckWatchlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	contentID, ok := idParam(w, r, "contentID")
	if !ok {
		return
	}
	entry, err := h.service.IsInWatchlist(r.Context(), userID, contentID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	resp := watchlistCheckResponse{InWatchlist: entry != nil}
	if entry != nil {
		e := toWatchlistResponse(entry)
		resp.Entry = &e
	}
	writeJSON(w, http.StatusOK, resp)
}
