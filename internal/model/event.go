package model

import "time"

const (
	// MinRating は評価の下限。
	MinRating = 1.0
	// MaxRating は評価の上限。
	MaxRating = 10.0
	// MinPriority はウォッチリスト優先度の下限。
	MinPriority = 1
	// MaxPriority はウォッチリスト優先度の上限。
	MaxPriority = 5
	// DefaultPriority はウォッチリスト優先度のデフォルト値。
	DefaultPriority = 1
)

// ViewEvent は視聴履歴の1件を表す。
// Ratingが存在する場合は [MinRating, MaxRating] の範囲に収まる。
type ViewEvent struct {
	ID              int64
	UserID          int64
	ContentID       int64
	WatchedAt       time.Time
	Rating          *float64
	Season          *int
	Episode         *int
	EpisodeTitle    string
	DurationWatched *int
	Rewatch         bool
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ViewEventWithContent は視聴履歴とコンテンツを結合したモデル。
type ViewEventWithContent struct {
	ViewEvent
	Content Content
}

// WatchlistEntry はウォッチリストの1件を表す。
// (UserID, ContentID) の組はユーザーごとに一意。
type WatchlistEntry struct {
	ID        int64
	UserID    int64
	ContentID int64
	Priority  int
	Notes     string
	AddedAt   time.Time
}

// WatchlistEntryWithContent はウォッチリストとコンテンツを結合したモデル。
type WatchlistEntryWithContent struct {
	WatchlistEntry
	Content Content
}
