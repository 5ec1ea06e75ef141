package model

import "time"

// Granularity はタイムライン集計の時間粒度を表す。
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
	GranularityYearly  Granularity = "yearly"
)

// Valid は粒度がサポート対象かどうかを返す。
func (g Granularity) Valid() bool {
	switch g {
	case GranularityDaily, GranularityWeekly, GranularityMonthly, GranularityYearly:
		return true
	}
	return false
}

// BucketStat は時間バケットごとの視聴数と平均評価を表す。
type BucketStat struct {
	Bucket        time.Time
	Views         int
	AverageRating *float64
}

// GenreCount はジャンルごとの視聴数を表す。
type GenreCount struct {
	Genre string
	Views int
}

// UserStats はユーザーの期間内視聴統計を表す。
type UserStats struct {
	UserID        int64
	From          time.Time
	To            time.Time
	TotalViews    int
	MovieViews    int
	SeriesViews   int
	AverageRating *float64
	TopGenres     []GenreCount
	Monthly       []BucketStat
}

// ContentViews はコンテンツごとの視聴数を表す。
type ContentViews struct {
	ContentID int64
	Title     string
	Kind      ContentKind
	Views     int
}

// RatedContent はコンテンツごとの平均評価を表す。
type RatedContent struct {
	ContentID     int64
	Title         string
	Kind          ContentKind
	AverageRating float64
	Ratings       int
}

// ContentStats はストア全体のコンテンツ統計を表す。
type ContentStats struct {
	TopMovies    []ContentViews
	TopSeries    []ContentViews
	HighestRated []RatedContent
}

// SystemOverview はシステム全体の概要統計を表す。
type SystemOverview struct {
	TotalUsers    int
	ActiveUsers   int // 直近7日間に視聴記録のあるユーザー数
	TotalContent  int
	TotalViews    int
	ContentByKind map[ContentKind]int
	DailyActivity []BucketStat // 直近7日間の日別視聴数
}
