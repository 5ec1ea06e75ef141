// Package history は視聴履歴とウォッチリストのドメインロジックを提供する。
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hitoshi/watchlog/internal/model"
	"github.com/hitoshi/watchlog/internal/repository"
	"github.com/hitoshi/watchlog/internal/security"
)

const (
	// maxNotesLength はメモの最大文字数。
	maxNotesLength = 2000
	// futureSkew は視聴日時の未来方向に許容する時計のずれ。
	futureSkew = time.Minute
	// defaultHistoryLimit は視聴履歴一覧のデフォルト件数。
	defaultHistoryLimit = 20
	// maxHistoryLimit は視聴履歴一覧の最大件数。
	maxHistoryLimit = 100
)

// ContentFinder はコンテンツの存在確認に使うインターフェース。
type ContentFinder interface {
	FindByID(ctx context.Context, id int64) (*model.Content, error)
}

// WatchInput は視聴記録の入力。
type WatchInput struct {
	ContentID       int64
	Rating          *float64
	Notes           string
	WatchedAt       *time.Time // nilの場合は現在時刻
	Season          *int
	Episode         *int
	EpisodeTitle    string
	DurationWatched *int
}

// WatchlistInput はウォッチリスト追加の入力。
type WatchlistInput struct {
	ContentID int64
	Priority  int // 0の場合はDefaultPriority
	Notes     string
}

// PromoteInput はウォッチリストから視聴履歴への変換の入力。
type PromoteInput struct {
	Rating    *float64
	Notes     string
	WatchedAt *time.Time
}

// Recorder は視聴履歴とウォッチリストの記録を担うサービス。
type Recorder struct {
	historyRepo   repository.HistoryRepository
	watchlistRepo repository.WatchlistRepository
	contents      ContentFinder
	sanitizer     *security.TextSanitizer
	logger        *slog.Logger
	now           func() time.Time
}

// NewRecorder はRecorderの新しいインスタンスを生成する。
func NewRecorder(
	historyRepo repository.HistoryRepository,
	watchlistRepo repository.WatchlistRepository,
	contents ContentFinder,
	logger *slog.Logger,
) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		historyRepo:   historyRepo,
		watchlistRepo: watchlistRepo,
		contents:      contents,
		sanitizer:     security.NewTextSanitizer(maxNotesLength),
		logger:        logger,
		now:           time.Now,
	}
}

// RecordWatch は視聴履歴を1件登録する。
// 評価は [1, 10] の範囲、視聴日時は未来でないことを検証する。
// 同じコンテンツの視聴履歴が既にある場合は再視聴として記録する。
func (r *Recorder) RecordWatch(ctx context.Context, userID int64, in WatchInput) (*model.ViewEvent, error) {
	if err := ValidateRating(in.Rating); err != nil {
		return nil, err
	}
	watchedAt, err := r.resolveWatchedAt(in.WatchedAt)
	if err != nil {
		return nil, err
	}
	if err := r.requireContent(ctx, in.ContentID); err != nil {
		return nil, err
	}

	rewatch, err := r.historyRepo.ExistsForContent(ctx, userID, in.ContentID)
	if err != nil {
		return nil, fmt.Errorf("視聴履歴の確認に失敗しました: %w", err)
	}

	event := &model.ViewEvent{
		UserID:          userID,
		ContentID:       in.ContentID,
		WatchedAt:       watchedAt,
		Rating:          in.Rating,
		Season:          in.Season,
		Episode:         in.Episode,
		EpisodeTitle:    r.sanitizer.Sanitize(in.EpisodeTitle),
		DurationWatched: in.DurationWatched,
		Rewatch:         rewatch,
		Notes:           r.sanitizer.Sanitize(in.Notes),
	}
	if err := r.historyRepo.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("視聴履歴の登録に失敗しました: %w", err)
	}

	r.logger.Info("視聴を記録しました",
		slog.Int64("user_id", userID),
		slog.Int64("content_id", in.ContentID),
		slog.Bool("rewatch", rewatch),
	)
	return event, nil
}

// AddToWatchlist はウォッチリストに追加する。
// 同じコンテンツが既にある場合は登録前にDUPLICATE_WATCHLISTエラーを返す。
func (r *Recorder) AddToWatchlist(ctx context.Context, userID int64, in WatchlistInput) (*model.WatchlistEntry, error) {
	priority := in.Priority
	if priority == 0 {
		priority = model.DefaultPriority
	}
	if priority < model.MinPriority || priority > model.MaxPriority {
		return nil, model.NewInvalidPriorityError(priority)
	}
	if err := r.requireContent(ctx, in.ContentID); err != nil {
		return nil, err
	}

	existing, err := r.watchlistRepo.FindByUserAndContent(ctx, userID, in.ContentID)
	if err != nil {
		return nil, fmt.Errorf("ウォッチリストの確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateWatchlistError()
	}

	entry := &model.WatchlistEntry{
		UserID:    userID,
		ContentID: in.ContentID,
		Priority:  priority,
		Notes:     r.sanitizer.Sanitize(in.Notes),
	}
	if err := r.watchlistRepo.Create(ctx, entry); err != nil {
		// 確認後に別リクエストが先に登録した場合
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateWatchlistError()
		}
		return nil, fmt.Errorf("ウォッチリストへの追加に失敗しました: %w", err)
	}
	return entry, nil
}

// PromoteWatchlistToHistory はウォッチリスト項目を視聴履歴に変換する。
// 視聴履歴の登録と項目の削除は1トランザクションで行う。
// 削除のみ失敗した場合も視聴履歴は失わず、removed=falseを返す。
func (r *Recorder) PromoteWatchlistToHistory(ctx context.Context, userID, entryID int64, in PromoteInput) (event *model.ViewEvent, removed bool, err error) {
	if err := ValidateRating(in.Rating); err != nil {
		return nil, false, err
	}
	watchedAt, err := r.resolveWatchedAt(in.WatchedAt)
	if err != nil {
		return nil, false, err
	}

	entry, err := r.watchlistRepo.FindByID(ctx, entryID)
	if err != nil {
		return nil, false, fmt.Errorf("ウォッチリスト項目の取得に失敗しました: %w", err)
	}
	if entry == nil || entry.UserID != userID {
		return nil, false, model.NewWatchlistNotFoundError(entryID)
	}

	rewatch, err := r.historyRepo.ExistsForContent(ctx, userID, entry.ContentID)
	if err != nil {
		return nil, false, fmt.Errorf("視聴履歴の確認に失敗しました: %w", err)
	}

	notes := in.Notes
	if notes == "" {
		notes = entry.Notes
	}
	event = &model.ViewEvent{
		UserID:    userID,
		ContentID: entry.ContentID,
		WatchedAt: watchedAt,
		Rating:    in.Rating,
		Rewatch:   rewatch,
		Notes:     r.sanitizer.Sanitize(notes),
	}

	removed, err = r.watchlistRepo.Promote(ctx, entryID, event)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, model.NewWatchlistNotFoundError(entryID)
	}
	if err != nil {
		return nil, false, fmt.Errorf("ウォッチリストからの変換に失敗しました: %w", err)
	}
	if !removed {
		r.logger.Warn("視聴履歴は登録されましたがウォッチリスト項目が残っています",
			slog.Int64("watchlist_id", entryID),
			slog.Int64("event_id", event.ID),
		)
	}
	return event, removed, nil
}

// UpdateWatch は視聴履歴の評価とメモを更新する。nilの項目は変更しない。
func (r *Recorder) UpdateWatch(ctx context.Context, userID, id int64, rating *float64, notes *string) (*model.ViewEvent, error) {
	if err := ValidateRating(rating); err != nil {
		return nil, err
	}

	event, err := r.historyRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("視聴履歴の取得に失敗しました: %w", err)
	}
	if event == nil || event.UserID != userID {
		return nil, model.NewHistoryNotFoundError(id)
	}

	if rating != nil {
		event.Rating = rating
	}
	if notes != nil {
		event.Notes = r.sanitizer.Sanitize(*notes)
	}

	if err := r.historyRepo.Update(ctx, event); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewHistoryNotFoundError(id)
		}
		return nil, fmt.Errorf("視聴履歴の更新に失敗しました: %w", err)
	}
	return event, nil
}

// DeleteWatch は視聴履歴を削除する。
func (r *Recorder) DeleteWatch(ctx context.Context, userID, id int64) error {
	deleted, err := r.historyRepo.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("視聴履歴の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewHistoryNotFoundError(id)
	}
	return nil
}

// ListHistory はユーザーの視聴履歴を新しい順に返す。
func (r *Recorder) ListHistory(ctx context.Context, userID int64, limit, offset int) ([]model.ViewEventWithContent, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	events, err := r.historyRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("視聴履歴の取得に失敗しました: %w", err)
	}
	if events == nil {
		events = []model.ViewEventWithContent{}
	}
	return events, nil
}

// ListWatchlist はユーザーのウォッチリストを優先度の高い順に返す。
func (r *Recorder) ListWatchlist(ctx context.Context, userID int64) ([]model.WatchlistEntryWithContent, error) {
	entries, err := r.watchlistRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ウォッチリストの取得に失敗しました: %w", err)
	}
	if entries == nil {
		entries = []model.WatchlistEntryWithContent{}
	}
	return entries, nil
}

// RemoveFromWatchlist はウォッチリスト項目を削除する。
func (r *Recorder) RemoveFromWatchlist(ctx context.Context, userID, id int64) error {
	deleted, err := r.watchlistRepo.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("ウォッチリスト項目の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewWatchlistNotFoundError(id)
	}
	return nil
}

// ClearWatchlist はユーザーのウォッチリストを全削除し、削除件数を返す。
func (r *Recorder) ClearWatchlist(ctx context.Context, userID int64) (int64, error) {
	n, err := r.watchlistRepo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("ウォッチリストの削除に失敗しました: %w", err)
	}
	return n, nil
}

// IsInWatchlist はコンテンツがウォッチリストにあればその項目を返す。無ければnil。
func (r *Recorder) IsInWatchlist(ctx context.Context, userID, contentID int64) (*model.WatchlistEntry, error) {
	entry, err := r.watchlistRepo.FindByUserAndContent(ctx, userID, contentID)
	if err != nil {
		return nil, fmt.Errorf("ウォッチリストの確認に失敗しました: %w", err)
	}
	return entry, nil
}

// ValidateRating は評価が [MinRating, MaxRating] の範囲にあることを検証する。nilは許可する。
func ValidateRating(rating *float64) error {
	if rating == nil {
		return nil
	}
	v := *rating
	if math.IsNaN(v) || v < model.MinRating || v > model.MaxRating {
		return model.NewInvalidRatingError(v)
	}
	return nil
}

// resolveWatchedAt は視聴日時を決定する。未指定なら現在時刻、未来の日時はエラー。
func (r *Recorder) resolveWatchedAt(at *time.Time) (time.Time, error) {
	now := r.now()
	if at == nil || at.IsZero() {
		return now, nil
	}
	if at.After(now.Add(futureSkew)) {
		return time.Time{}, model.NewInvalidWatchedAtError("未来の日時は指定できません")
	}
	return *at, nil
}

func (r *Recorder) requireContent(ctx context.Context, contentID int64) error {
	c, err := r.contents.FindByID(ctx, contentID)
	if err != nil {
		return fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
	}
	if c == nil {
		return model.NewContentNotFoundError(fmt.Sprintf("%d", contentID))
	}
	return nil
}
