package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/watchlog/internal/model"
)

// PostgresAnalyticsRepo はPostgreSQLの集計クエリを実行するリポジトリ。
type PostgresAnalyticsRepo struct {
	db *sql.DB
}

// NewPostgresAnalyticsRepo はPostgresAnalyticsRepoを生成する。
func NewPostgresAnalyticsRepo(db *sql.DB) *PostgresAnalyticsRepo {
	return &PostgresAnalyticsRepo{db: db}
}

// truncUnits は集計粒度とDATE_TRUNCの単位の対応。
var truncUnits = map[model.Granularity]string{
	model.GranularityDaily:   "day",
	model.GranularityWeekly:  "week",
	model.GranularityMonthly: "month",
	model.GranularityYearly:  "year",
}

// CountUserViewsByKind は期間内のユーザーの視聴数を種別ごとに返す。
func (r *PostgresAnalyticsRepo) CountUserViewsByKind(ctx context.Context, userID int64, from, to time.Time) (map[model.ContentKind]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.content_type, COUNT(*)
		 FROM view_history h
		 INNER JOIN content c ON c.id = h.content_id
		 WHERE h.user_id = $1 AND h.watched_at >= $2 AND h.watched_at < $3
		 GROUP BY c.content_type`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("種別ごとの視聴数の集計に失敗しました: %w", err)
	}
	return scanKindCounts(rows)
}

func scanKindCounts(rows *sql.Rows) (map[model.ContentKind]int, error) {
	defer rows.Close()

	counts := make(map[model.ContentKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("集計結果のスキャンに失敗しました: %w", err)
		}
		counts[model.ContentKind(kind)] = n
	}
	return counts, rows.Err()
}

// AverageUserRating は期間内のユーザーの平均評価を小数点以下2桁で返す。
func (r *PostgresAnalyticsRepo) AverageUserRating(ctx context.Context, userID int64, from, to time.Time) (*float64, error) {
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		`SELECT ROUND(AVG(rating)::numeric, 2)
		 FROM view_history
		 WHERE user_id = $1 AND watched_at >= $2 AND watched_at < $3 AND rating IS NOT NULL`,
		userID, from, to,
	).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("平均評価の集計に失敗しました: %w", err)
	}
	return nullFloatValue(avg), nil
}

// TopUserGenres は期間内のユーザーのジャンル別視聴数を多い順に返す。
// genreはカンマ区切りのため個々のジャンルに分解して集計する。
func (r *PostgresAnalyticsRepo) TopUserGenres(ctx context.Context, userID int64, from, to time.Time, limit int) ([]model.GenreCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.genre, COUNT(*) AS views
		 FROM (
		     SELECT TRIM(unnest(string_to_array(c.genre, ','))) AS genre
		     FROM view_history h
		     INNER JOIN content c ON c.id = h.content_id
		     WHERE h.user_id = $1 AND h.watched_at >= $2 AND h.watched_at < $3
		       AND c.genre IS NOT NULL
		 ) g
		 WHERE g.genre <> ''
		 GROUP BY g.genre
		 ORDER BY views DESC, g.genre ASC
		 LIMIT $4`,
		userID, from, to, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ジャンル別視聴数の集計に失敗しました: %w", err)
	}
	defer rows.Close()

	genres := []model.GenreCount{}
	for rows.Next() {
		var g model.GenreCount
		if err := rows.Scan(&g.Genre, &g.Views); err != nil {
			return nil, fmt.Errorf("ジャンル集計のスキャンに失敗しました: %w", err)
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

// UserTimeline は期間内のユーザーの視聴数と平均評価を時間バケットごとに集計する。
func (r *PostgresAnalyticsRepo) UserTimeline(ctx context.Context, userID int64, g model.Granularity, from, to time.Time) ([]model.BucketStat, error) {
	unit, ok := truncUnits[g]
	if !ok {
		return nil, fmt.Errorf("unsupported granularity: %s", g)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT DATE_TRUNC($4, watched_at) AS bucket, COUNT(*), ROUND(AVG(rating)::numeric, 2)
		 FROM view_history
		 WHERE user_id = $1 AND watched_at >= $2 AND watched_at < $3
		 GROUP BY 1
		 ORDER BY 1`,
		userID, from, to, unit,
	)
	if err != nil {
		return nil, fmt.Errorf("タイムラインの集計に失敗しました: %w", err)
	}
	return scanBuckets(rows)
}

func scanBuckets(rows *sql.Rows) ([]model.BucketStat, error) {
	defer rows.Close()

	buckets := []model.BucketStat{}
	for rows.Next() {
		var b model.BucketStat
		var avg sql.NullFloat64
		if err := rows.Scan(&b.Bucket, &b.Views, &avg); err != nil {
			return nil, fmt.Errorf("時間バケットのスキャンに失敗しました: %w", err)
		}
		b.AverageRating = nullFloatValue(avg)
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// TopContentByViews は種別ごとの視聴数上位を返す。
func (r *PostgresAnalyticsRepo) TopContentByViews(ctx context.Context, kind model.ContentKind, limit int) ([]model.ContentViews, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.title, c.content_type, COUNT(h.id) AS views
		 FROM view_history h
		 INNER JOIN content c ON c.id = h.content_id
		 WHERE c.content_type = $1
		 GROUP BY c.id, c.title, c.content_type
		 ORDER BY views DESC, c.id ASC
		 LIMIT $2`,
		string(kind), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("視聴数ランキングの集計に失敗しました: %w", err)
	}
	defer rows.Close()

	result := []model.ContentViews{}
	for rows.Next() {
		var cv model.ContentViews
		var k string
		if err := rows.Scan(&cv.ContentID, &cv.Title, &k, &cv.Views); err != nil {
			return nil, fmt.Errorf("ランキングのスキャンに失敗しました: %w", err)
		}
		cv.Kind = model.ContentKind(k)
		result = append(result, cv)
	}
	return result, rows.Err()
}

// HighestRated は評価数がminRatings以上のコンテンツを平均評価の高い順に返す。
func (r *PostgresAnalyticsRepo) HighestRated(ctx context.Context, minRatings, limit int) ([]model.RatedContent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.title, c.content_type,
		        ROUND(AVG(h.rating)::numeric, 2) AS avg_rating, COUNT(h.rating) AS ratings
		 FROM view_history h
		 INNER JOIN content c ON c.id = h.content_id
		 WHERE h.rating IS NOT NULL
		 GROUP BY c.id, c.title, c.content_type
		 HAVING COUNT(h.rating) >= $1
		 ORDER BY avg_rating DESC, ratings DESC, c.id ASC
		 LIMIT $2`,
		minRatings, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("高評価ランキングの集計に失敗しました: %w", err)
	}
	defer rows.Close()

	result := []model.RatedContent{}
	for rows.Next() {
		var rc model.RatedContent
		var k string
		if err := rows.Scan(&rc.ContentID, &rc.Title, &k, &rc.AverageRating, &rc.Ratings); err != nil {
			return nil, fmt.Errorf("高評価ランキングのスキャンに失敗しました: %w", err)
		}
		rc.Kind = model.ContentKind(k)
		result = append(result, rc)
	}
	return result, rows.Err()
}

func (r *PostgresAnalyticsRepo) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("件数の集計に失敗しました: %w", err)
	}
	return n, nil
}

// CountUsers は全ユーザー数を返す。
func (r *PostgresAnalyticsRepo) CountUsers(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM users`)
}

// CountActiveUsers はsince以降に視聴記録のあるユーザー数を返す。
func (r *PostgresAnalyticsRepo) CountActiveUsers(ctx context.Context, since time.Time) (int, error) {
	return r.count(ctx, `SELECT COUNT(DISTINCT user_id) FROM view_history WHERE watched_at >= $1`, since)
}

// CountContentByKind は有効なコンテンツ数を種別ごとに返す。
func (r *PostgresAnalyticsRepo) CountContentByKind(ctx context.Context) (map[model.ContentKind]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT content_type, COUNT(*) FROM content WHERE is_active = TRUE GROUP BY content_type`,
	)
	if err != nil {
		return nil, fmt.Errorf("種別ごとのコンテンツ数の集計に失敗しました: %w", err)
	}
	return scanKindCounts(rows)
}

// CountViews は全視聴記録数を返す。
func (r *PostgresAnalyticsRepo) CountViews(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM view_history`)
}

// DailyActivity はsince以降の日別視聴数を返す。
func (r *PostgresAnalyticsRepo) DailyActivity(ctx context.Context, since time.Time) ([]model.BucketStat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DATE_TRUNC('day', watched_at) AS bucket, COUNT(*), ROUND(AVG(rating)::numeric, 2)
		 FROM view_history
		 WHERE watched_at >= $1
		 GROUP BY 1
		 ORDER BY 1`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("日別アクティビティの集計に失敗しました: %w", err)
	}
	return scanBuckets(rows)
}

// compile-time interface check
var _ AnalyticsRepository = (*PostgresAnalyticsRepo)(nil)
