// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/watchlog/internal/model"
)

// ContentRepository はコンテンツデータの永続化インターフェース。
type ContentRepository interface {
	// FindByID は指定IDのコンテンツを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Content, error)

	// FindByIMDbID は外部IDでコンテンツを取得する。見つからない場合はnilを返す。
	FindByIMDbID(ctx context.Context, imdbID string) (*model.Content, error)

	// Search はtitle / original_title / descriptionの部分一致（大文字小文字無視）でコンテンツを検索する。
	// 並び順: タイトル完全一致 → release_yearの新しい順（NULLは最後） → idの昇順。
	Search(ctx context.Context, q model.ContentQuery) ([]model.Content, error)

	// List はコンテンツを新しい順に取得する。
	List(ctx context.Context, q model.ContentQuery) ([]model.Content, error)

	// InsertOrGet はコンテンツを登録する。
	// 同じimdb_idのコンテンツが既に存在する場合は登録せず既存レコードを返す。
	// 2番目の戻り値は新規登録した場合にtrueとなる。
	InsertOrGet(ctx context.Context, content *model.Content) (*model.Content, bool, error)

	// UpdateRating は外部評価を更新する。
	UpdateRating(ctx context.Context, id int64, rating *float64) error

	// ListWithIMDbID は外部IDを持つコンテンツをid昇順でafterIDより後からlimit件取得する。
	ListWithIMDbID(ctx context.Context, afterID int64, limit int) ([]model.Content, error)
}

// CategoryRepository はカテゴリデータの永続化インターフェース。
type CategoryRepository interface {
	// List は全カテゴリを名前順に取得する。
	List(ctx context.Context) ([]model.Category, error)
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByChatID はチャットIDでユーザーを取得する。見つからない場合はnilを返す。
	FindByChatID(ctx context.Context, chatID string) (*model.User, error)

	// InsertOrGet はユーザーを登録する。
	// 同じchat_idのユーザーが既に存在する場合は上書きせず既存レコードを返す。
	InsertOrGet(ctx context.Context, user *model.User) (*model.User, bool, error)
}

// HistoryRepository は視聴履歴の永続化インターフェース。
type HistoryRepository interface {
	// Create は視聴履歴を登録し、採番されたIDと時刻を設定する。
	Create(ctx context.Context, event *model.ViewEvent) error

	// FindByID は指定IDの視聴履歴を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.ViewEvent, error)

	// ExistsForContent はユーザーが指定コンテンツの視聴履歴を持つかどうかを返す。
	ExistsForContent(ctx context.Context, userID, contentID int64) (bool, error)

	// ListByUser はユーザーの視聴履歴をコンテンツ付きで新しい順に取得する。
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]model.ViewEventWithContent, error)

	// Update は評価とメモを更新する。
	Update(ctx context.Context, event *model.ViewEvent) error

	// Delete は指定ユーザーの視聴履歴を削除する。削除対象が無い場合はfalseを返す。
	Delete(ctx context.Context, userID, id int64) (bool, error)
}

// WatchlistRepository はウォッチリストの永続化インターフェース。
type WatchlistRepository interface {
	// Create はウォッチリスト項目を登録する。
	// (user_id, content_id) が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, entry *model.WatchlistEntry) error

	// FindByID は指定IDのウォッチリスト項目を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.WatchlistEntry, error)

	// FindByUserAndContent はユーザーIDとコンテンツIDで検索する。見つからない場合はnilを返す。
	FindByUserAndContent(ctx context.Context, userID, contentID int64) (*model.WatchlistEntry, error)

	// ListByUser はユーザーのウォッチリストをコンテンツ付きで優先度の高い順、追加の新しい順に取得する。
	ListByUser(ctx context.Context, userID int64) ([]model.WatchlistEntryWithContent, error)

	// Delete は指定ユーザーのウォッチリスト項目を削除する。削除対象が無い場合はfalseを返す。
	Delete(ctx context.Context, userID, id int64) (bool, error)

	// DeleteByUser はユーザーのウォッチリストを全削除し、削除件数を返す。
	DeleteByUser(ctx context.Context, userID int64) (int64, error)

	// Promote はウォッチリスト項目を視聴履歴に変換する。
	// 視聴履歴の登録とウォッチリスト項目の削除を1トランザクションで行う。
	// 削除のみが失敗した場合は視聴履歴を確定させ、removed=falseを返す。
	// 項目が存在しない場合はErrNotFoundを返す。
	Promote(ctx context.Context, entryID int64, event *model.ViewEvent) (removed bool, err error)
}

// AnalyticsRepository は集計クエリのインターフェース。
// すべて読み取り専用で、該当行が無い場合はゼロ値または空スライスを返す。
type AnalyticsRepository interface {
	// CountUserViewsByKind は期間内のユーザーの視聴数を種別ごとに返す。
	CountUserViewsByKind(ctx context.Context, userID int64, from, to time.Time) (map[model.ContentKind]int, error)

	// AverageUserRating は期間内のユーザーの平均評価を返す。評価が無い場合はnil。
	AverageUserRating(ctx context.Context, userID int64, from, to time.Time) (*float64, error)

	// TopUserGenres は期間内のユーザーのジャンル別視聴数を多い順にlimit件返す。
	TopUserGenres(ctx context.Context, userID int64, from, to time.Time, limit int) ([]model.GenreCount, error)

	// UserTimeline は期間内のユーザーの視聴数を粒度ごとに集計する。
	UserTimeline(ctx context.Context, userID int64, g model.Granularity, from, to time.Time) ([]model.BucketStat, error)

	// TopContentByViews は種別ごとの視聴数上位を返す。
	TopContentByViews(ctx context.Context, kind model.ContentKind, limit int) ([]model.ContentViews, error)

	// HighestRated は評価数がminRatings以上のコンテンツを平均評価の高い順に返す。
	HighestRated(ctx context.Context, minRatings, limit int) ([]model.RatedContent, error)

	// CountUsers は全ユーザー数を返す。
	CountUsers(ctx context.Context) (int, error)

	// CountActiveUsers はsince以降に視聴記録のあるユーザー数を返す。
	CountActiveUsers(ctx context.Context, since time.Time) (int, error)

	// CountContentByKind は有効なコンテンツ数を種別ごとに返す。
	CountContentByKind(ctx context.Context) (map[model.ContentKind]int, error)

	// CountViews は全視聴記録数を返す。
	CountViews(ctx context.Context) (int, error)

	// DailyActivity はsince以降の日別視聴数を返す。
	DailyActivity(ctx context.Context, since time.Time) ([]model.BucketStat, error)
}

// DialogueSessionRepository はチャット対話セッションの永続化インターフェース。
type DialogueSessionRepository interface {
	// Load はチャットIDのセッション状態とペイロードを取得する。見つからない場合はok=false。
	Load(ctx context.Context, chatID string) (state string, payload []byte, ok bool, err error)

	// Save はセッション状態を保存する。
	Save(ctx context.Context, chatID, state string, payload []byte) error

	// Delete はセッションを削除する。
	Delete(ctx context.Context, chatID string) error
}
