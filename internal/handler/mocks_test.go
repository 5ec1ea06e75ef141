package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/watchlog/internal/dialogue"
	"github.com/hitoshi/watchlog/internal/history"
	"github.com/hitoshi/watchlog/internal/middleware"
	"github.com/hitoshi/watchlog/internal/model"
)

// --- モック定義 ---

type mockContentService struct {
	resolveFn     func(ctx context.Context, query string, kind *model.ContentKind) (*model.Content, error)
	searchFn      func(ctx context.Context, query string, kind *model.ContentKind) ([]model.Content, error)
	ensureFn      func(ctx context.Context, candidate *model.Content) (*model.Content, error)
	getFn         func(ctx context.Context, id int64) (*model.Content, error)
	getByIMDbIDFn func(ctx context.Context, imdbID string) (*model.Content, error)
	listFn        func(ctx context.Context, q model.ContentQuery) ([]model.Content, error)
	categoriesFn  func(ctx context.Context) ([]model.Category, error)
}

func (m *mockContentService) Resolve(ctx context.Context, query string, kind *model.ContentKind) (*model.Content, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, query, kind)
	}
	return nil, nil
}

func (m *mockContentService) Search(ctx context.Context, query string, kind *model.ContentKind) ([]model.Content, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, kind)
	}
	return []model.Content{}, nil
}

func (m *mockContentService) EnsureContentExists(ctx context.Context, candidate *model.Content) (*model.Content, error) {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, candidate)
	}
	return candidate, nil
}

func (m *mockContentService) Get(ctx context.Context, id int64) (*model.Content, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewContentNotFoundError("")
}

func (m *mockContentService) GetByIMDbID(ctx context.Context, imdbID string) (*model.Content, error) {
	if m.getByIMDbIDFn != nil {
		return m.getByIMDbIDFn(ctx, imdbID)
	}
	return nil, model.NewContentNotFoundError(imdbID)
}

func (m *mockContentService) List(ctx context.Context, q model.ContentQuery) ([]model.Content, error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return []model.Content{}, nil
}

func (m *mockContentService) Categories(ctx context.Context) ([]model.Category, error) {
	if m.categoriesFn != nil {
		return m.categoriesFn(ctx)
	}
	return []model.Category{}, nil
}

type mockUserService struct {
	getOrCreateFn func(ctx context.Context, chatID string, profile model.UserProfile) (*model.User, error)
	getFn         func(ctx context.Context, id int64) (*model.User, error)
}

func (m *mockUserService) GetOrCreate(ctx context.Context, chatID string, profile model.UserProfile) (*model.User, error) {
	if m.getOrCreateFn != nil {
		return m.getOrCreateFn(ctx, chatID, profile)
	}
	return &model.User{ID: 1, ChatID: chatID}, nil
}

func (m *mockUserService) Get(ctx context.Context, id int64) (*model.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewUserNotFoundError()
}

type mockHistoryService struct {
	recordWatchFn   func(ctx context.Context, userID int64, in history.WatchInput) (*model.ViewEvent, error)
	updateWatchFn   func(ctx context.Context, userID, id int64, rating *float64, notes *string) (*model.ViewEvent, error)
	deleteWatchFn   func(ctx context.Context, userID, id int64) error
	listHistoryFn   func(ctx context.Context, userID int64, limit, offset int) ([]model.ViewEventWithContent, error)
	addFn           func(ctx context.Context, userID int64, in history.WatchlistInput) (*model.WatchlistEntry, error)
	promoteFn       func(ctx context.Context, userID, entryID int64, in history.PromoteInput) (*model.ViewEvent, bool, error)
	listWatchlistFn func(ctx context.Context, userID int64) ([]model.WatchlistEntryWithContent, error)
	removeFn        func(ctx context.Context, userID, id int64) error
	clearFn         func(ctx context.Context, userID int64) (int64, error)
	isInFn          func(ctx context.Context, userID, contentID int64) (*model.WatchlistEntry, error)
}

func (m *mockHistoryService) RecordWatch(ctx context.Context, userID int64, in history.WatchInput) (*model.ViewEvent, error) {
	if m.recordWatchFn != nil {
		return m.recordWatchFn(ctx, userID, in)
	}
	return &model.ViewEvent{ID: 1, UserID: userID, ContentID: in.ContentID}, nil
}

func (m *mockHistoryService) UpdateWatch(ctx context.Context, userID, id int64, rating *float64, notes *string) (*model.ViewEvent, error) {
	if m.updateWatchFn != nil {
		return m.updateWatchFn(ctx, userID, id, rating, notes)
	}
	return &model.ViewEvent{ID: id, UserID: userID}, nil
}

func (m *mockHistoryService) DeleteWatch(ctx context.Context, userID, id int64) error {
	if m.deleteWatchFn != nil {
		return m.deleteWatchFn(ctx, userID, id)
	}
	return nil
}

func (m *mockHistoryService) ListHistory(ctx context.Context, userID int64, limit, offset int) ([]model.ViewEventWithContent, error) {
	if m.listHistoryFn != nil {
		return m.listHistoryFn(ctx, userID, limit, offset)
	}
	return []model.ViewEventWithContent{}, nil
}

func (m *mockHistoryService) AddToWatchlist(ctx context.Context, userID int64, in history.WatchlistInput) (*model.WatchlistEntry, error) {
	if m.addFn != nil {
		return m.addFn(ctx, userID, in)
	}
	return &model.WatchlistEntry{ID: 1, UserID: userID, ContentID: in.ContentID, Priority: model.DefaultPriority}, nil
}

func (m *mockHistoryService) PromoteWatchlistToHistory(ctx context.Context, userID, entryID int64, in history.PromoteInput) (*model.ViewEvent, bool, error) {
	if m.promoteFn != nil {
		return m.promoteFn(ctx, userID, entryID, in)
	}
	return &model.ViewEvent{ID: 1, UserID: userID}, true, nil
}

func (m *mockHistoryService) ListWatchlist(ctx context.Context, userID int64) ([]model.WatchlistEntryWithContent, error) {
	if m.listWatchlistFn != nil {
		return m.listWatchlistFn(ctx, userID)
	}
	return []model.WatchlistEntryWithContent{}, nil
}

func (m *mockHistoryService) RemoveFromWatchlist(ctx context.Context, userID, id int64) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, userID, id)
	}
	return nil
}

func (m *mockHistoryService) ClearWatchlist(ctx context.Context, userID int64) (int64, error) {
	if m.clearFn != nil {
		return m.clearFn(ctx, userID)
	}
	return 0, nil
}

func (m *mockHistoryService) IsInWatchlist(ctx context.Context, userID, contentID int64) (*model.WatchlistEntry, error) {
	if m.isInFn != nil {
		return m.isInFn(ctx, userID, contentID)
	}
	return nil, nil
}

type mockAnalyticsService struct {
	userStatsFn    func(ctx context.Context, userID int64, from, to time.Time) (*model.UserStats, error)
	timelineFn     func(ctx context.Context, userID int64, g model.Granularity, from, to time.Time) ([]model.BucketStat, error)
	contentStatsFn func(ctx context.Context) (*model.ContentStats, error)
	overviewFn     func(ctx context.Context) (*model.SystemOverview, error)
}

func (m *mockAnalyticsService) UserStats(ctx context.Context, userID int64, from, to time.Time) (*model.UserStats, error) {
	if m.userStatsFn != nil {
		return m.userStatsFn(ctx, userID, from, to)
	}
	return &model.UserStats{UserID: userID}, nil
}

func (m *mockAnalyticsService) Timeline(ctx context.Context, userID int64, g model.Granularity, from, to time.Time) ([]model.BucketStat, error) {
	if m.timelineFn != nil {
		return m.timelineFn(ctx, userID, g, from, to)
	}
	return []model.BucketStat{}, nil
}

func (m *mockAnalyticsService) ContentStats(ctx context.Context) (*model.ContentStats, error) {
	if m.contentStatsFn != nil {
		return m.contentStatsFn(ctx)
	}
	return &model.ContentStats{}, nil
}

func (m *mockAnalyticsService) Overview(ctx context.Context) (*model.SystemOverview, error) {
	if m.overviewFn != nil {
		return m.overviewFn(ctx)
	}
	return &model.SystemOverview{ContentByKind: map[model.ContentKind]int{}}, nil
}

type mockDialogueEngine struct {
	handleFn func(ctx context.Context, chatID string, profile model.UserProfile, text string) (*dialogue.Reply, error)
}

func (m *mockDialogueEngine) Handle(ctx context.Context, chatID string, profile model.UserProfile, text string) (*dialogue.Reply, error) {
	if m.handleFn != nil {
		return m.handleFn(ctx, chatID, profile, text)
	}
	return &dialogue.Reply{Text: "ok", State: dialogue.StateIdle}, nil
}

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID int64) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) apiErrorResponse {
	t.Helper()
	var result apiErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	return result
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), "body: %s", w.Body.String())
	return v
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
