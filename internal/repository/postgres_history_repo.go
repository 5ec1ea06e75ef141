package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/watchlog/internal/model"
)

// PostgresHistoryRepo はPostgreSQLを使用した視聴履歴リポジトリ。
type PostgresHistoryRepo struct {
	db *sql.DB
}

// NewPostgresHistoryRepo はPostgresHistoryRepoを生成する。
func NewPostgresHistoryRepo(db *sql.DB) *PostgresHistoryRepo {
	return &PostgresHistoryRepo{db: db}
}

const historyColumns = `id, user_id, content_id, watched_at, rating, season, episode,
	episode_title, duration_watched, rewatch, notes, created_at, updated_at`

func scanViewEvent(s rowScanner, e *model.ViewEvent, extra ...any) error {
	var rating sql.NullFloat64
	var season, episode, duration sql.NullInt64
	var episodeTitle, notes sql.NullString

	dest := []any{
		&e.ID, &e.UserID, &e.ContentID, &e.WatchedAt, &rating, &season, &episode,
		&episodeTitle, &duration, &e.Rewatch, &notes, &e.CreatedAt, &e.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return err
	}

	e.Rating = nullFloatValue(rating)
	e.Season = nullIntValue(season)
	e.Episode = nullIntValue(episode)
	e.DurationWatched = nullIntValue(duration)
	e.EpisodeTitle = nullStringValue(episodeTitle)
	e.Notes = nullStringValue(notes)
	return nil
}

// queryRower はsql.DBとsql.Txの共通インターフェース。
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// insertViewEvent は視聴履歴を登録し、採番結果をeventに反映する。
func insertViewEvent(ctx context.Context, q queryRower, event *model.ViewEvent) error {
	return q.QueryRowContext(ctx,
		`INSERT INTO view_history (user_id, content_id, watched_at, rating, season, episode,
		        episode_title, duration_watched, rewatch, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		event.UserID, event.ContentID, event.WatchedAt, nullFloat(event.Rating),
		nullInt(event.Season), nullInt(event.Episode), nullString(event.EpisodeTitle),
		nullInt(event.DurationWatched), event.Rewatch, nullString(event.Notes),
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
}

// Create は視聴履歴を登録する。
func (r *PostgresHistoryRepo) Create(ctx context.Context, event *model.ViewEvent) error {
	if err := insertViewEvent(ctx, r.db, event); err != nil {
		return fmt.Errorf("視聴履歴の登録に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの視聴履歴を取得する。見つからない場合はnilを返す。
func (r *PostgresHistoryRepo) FindByID(ctx context.Context, id int64) (*model.ViewEvent, error) {
	e := &model.ViewEvent{}
	err := scanViewEvent(r.db.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM view_history WHERE id = $1`,
		id,
	), e)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("視聴履歴の取得に失敗しました: %w", err)
	}
	return e, nil
}

// ExistsForContent はユーザーが指定コンテンツの視聴履歴を持つかどうかを返す。
func (r *PostgresHistoryRepo) ExistsForContent(ctx context.Context, userID, contentID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM view_history WHERE user_id = $1 AND content_id = $2)`,
		userID, contentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("視聴履歴の存在確認に失敗しました: %w", err)
	}
	return exists, nil
}

// ListByUser はユーザーの視聴履歴をコンテンツ付きで新しい順に取得する。
func (r *PostgresHistoryRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]model.ViewEventWithContent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT h.id, h.user_id, h.content_id, h.watched_at, h.rating, h.season, h.episode,
		        h.episode_title, h.duration_watched, h.rewatch, h.notes, h.created_at, h.updated_at,
		        c.title, c.content_type, c.release_year, c.imdb_id, c.poster_url
		 FROM view_history h
		 INNER JOIN content c ON c.id = h.content_id
		 WHERE h.user_id = $1
		 ORDER BY h.watched_at DESC, h.id DESC
		 LIMIT $2 OFFSET $3`,
		userID, limitOrDefault(limit), offset,
	)
	if err != nil {
		return nil, fmt.Errorf("視聴履歴一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var events []model.ViewEventWithContent
	for rows.Next() {
		var ev model.ViewEventWithContent
		var kind string
		var year sql.NullInt64
		var imdbID, poster sql.NullString
		if err := scanViewEvent(rows, &ev.ViewEvent, &ev.Content.Title, &kind, &year, &imdbID, &poster); err != nil {
			return nil, fmt.Errorf("視聴履歴のスキャンに失敗しました: %w", err)
		}
		ev.Content.ID = ev.ContentID
		ev.Content.Kind = model.ContentKind(kind)
		ev.Content.ReleaseYear = nullIntValue(year)
		ev.Content.IMDbID = nullStringValue(imdbID)
		ev.Content.PosterURL = nullStringValue(poster)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("視聴履歴の走査に失敗しました: %w", err)
	}
	return events, nil
}

// Update は評価とメモを更新する。
func (r *PostgresHistoryRepo) Update(ctx context.Context, event *model.ViewEvent) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE view_history SET rating = $1, notes = $2, updated_at = NOW()
		 WHERE id = $3 AND user_id = $4
		 RETURNING updated_at`,
		nullFloat(event.Rating), nullString(event.Notes), event.ID, event.UserID,
	).Scan(&event.UpdatedAt)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("視聴履歴の更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定ユーザーの視聴履歴を削除する。
func (r *PostgresHistoryRepo) Delete(ctx context.Context, userID, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM view_history WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("視聴履歴の削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ HistoryRepository = (*PostgresHistoryRepo)(nil)
