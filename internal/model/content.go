// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// ContentKind はコンテンツ種別（映画 / シリーズ）を表す。
type ContentKind string

const (
	// KindMovie は映画を表す。
	KindMovie ContentKind = "movie"
	// KindSeries はシリーズ（ドラマ等）を表す。
	KindSeries ContentKind = "series"
)

// ParseContentKind は文字列をContentKindに変換する。
// 空文字列の場合はnil、不明な値の場合はfalseを返す。
func ParseContentKind(s string) (*ContentKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return nil, true
	case string(KindMovie):
		k := KindMovie
		return &k, true
	case string(KindSeries):
		k := KindSeries
		return &k, true
	default:
		return nil, false
	}
}

// Content は正規化されたコンテンツ（映画・シリーズ）レコードを表す。
// IMDbIDが存在する場合は全レコードで一意となる。Titleは一意ではない。
// 文字列フィールドの空文字列はNULL（値なし）として扱う。
type Content struct {
	ID              int64
	Title           string
	OriginalTitle   string
	Description     string
	Kind            ContentKind
	ReleaseYear     *int
	DurationMinutes *int // 映画の上映時間（分）
	TotalSeasons    *int // シリーズのみ
	TotalEpisodes   *int // シリーズのみ
	IMDbRating      *float64
	IMDbID          string
	PosterURL       string
	Genre           string
	Director        string
	Cast            string
	Language        string
	Country         string
	CategoryID      *int64
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasExternalID は外部識別子（IMDb ID）を持つかどうかを返す。
func (c *Content) HasExternalID() bool {
	return c.IMDbID != ""
}

// ContentQuery はコンテンツ検索条件を表す。
type ContentQuery struct {
	Text       string       // title / original_title / description の部分一致（大文字小文字無視）
	Kind       *ContentKind // nilの場合は種別を問わない
	CategoryID *int64
	Limit      int
	Offset     int
}

// Category はコンテンツのカテゴリを表す。
type Category struct {
	ID          int64
	Name        string
	Description string
}
