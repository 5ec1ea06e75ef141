package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/hitoshi/watchlog/internal/model"
)

// PostgresWatchlistRepo はPostgreSQLを使用したウォッチリストリポジトリ。
type PostgresWatchlistRepo struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresWatchlistRepo はPostgresWatchlistRepoを生成する。
func NewPostgresWatchlistRepo(db *sql.DB) *PostgresWatchlistRepo {
	return &PostgresWatchlistRepo{db: db, logger: slog.Default()}
}

const watchlistColumns = `id, user_id, content_id, priority, notes, added_at`

func scanWatchlistEntry(s rowScanner, e *model.WatchlistEntry, extra ...any) error {
	var notes sql.NullString
	dest := []any{&e.ID, &e.UserID, &e.ContentID, &e.Priority, &notes, &e.AddedAt}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	e.Notes = nullStringValue(notes)
	return nil
}

// Create はウォッチリスト項目を登録する。
// (user_id, content_id) の一意制約違反はErrDuplicateとして返す。
func (r *PostgresWatchlistRepo) Create(ctx context.Context, entry *model.WatchlistEntry) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO watchlist (user_id, content_id, priority, notes)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, added_at`,
		entry.UserID, entry.ContentID, entry.Priority, nullString(entry.Notes),
	).Scan(&entry.ID, &entry.AddedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("ウォッチリストの登録に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのウォッチリスト項目を取得する。見つからない場合はnilを返す。
func (r *PostgresWatchlistRepo) FindByID(ctx context.Context, id int64) (*model.WatchlistEntry, error) {
	e := &model.WatchlistEntry{}
	err := scanWatchlistEntry(r.db.QueryRowContext(ctx,
		`SELECT `+watchlistColumns+` FROM watchlist WHERE id = $1`,
		id,
	), e)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ウォッチリスト項目の取得に失敗しました: %w", err)
	}
	return e, nil
}

// FindByUserAndContent はユーザーIDとコンテンツIDで検索する。見つからない場合はnilを返す。
func (r *PostgresWatchlistRepo) FindByUserAndContent(ctx context.Context, userID, contentID int64) (*model.WatchlistEntry, error) {
	e := &model.WatchlistEntry{}
	err := scanWatchlistEntry(r.db.QueryRowContext(ctx,
		`SELECT `+watchlistColumns+` FROM watchlist WHERE user_id = $1 AND content_id = $2`,
		userID, contentID,
	), e)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ウォッチリスト項目の検索に失敗しました: %w", err)
	}
	return e, nil
}

// ListByUser はユーザーのウォッチリストをコンテンツ付きで取得する。
func (r *PostgresWatchlistRepo) ListByUser(ctx context.Context, userID int64) ([]model.WatchlistEntryWithContent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT w.id, w.user_id, w.content_id, w.priority, w.notes, w.added_at,
		        c.title, c.content_type, c.release_year, c.imdb_id, c.imdb_rating
		 FROM watchlist w
		 INNER JOIN content c ON c.id = w.content_id
		 WHERE w.user_id = $1
		 ORDER BY w.priority DESC, w.added_at DESC, w.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ウォッチリスト一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []model.WatchlistEntryWithContent
	for rows.Next() {
		var e model.WatchlistEntryWithContent
		var kind string
		var year sql.NullInt64
		var imdbID sql.NullString
		var rating sql.NullFloat64
		if err := scanWatchlistEntry(rows, &e.WatchlistEntry, &e.Content.Title, &kind, &year, &imdbID, &rating); err != nil {
			return nil, fmt.Errorf("ウォッチリストのスキャンに失敗しました: %w", err)
		}
		e.Content.ID = e.ContentID
		e.Content.Kind = model.ContentKind(kind)
		e.Content.ReleaseYear = nullIntValue(year)
		e.Content.IMDbID = nullStringValue(imdbID)
		e.Content.IMDbRating = nullFloatValue(rating)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ウォッチリストの走査に失敗しました: %w", err)
	}
	return entries, nil
}

// Delete は指定ユーザーのウォッチリスト項目を削除する。
func (r *PostgresWatchlistRepo) Delete(ctx context.Context, userID, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM watchlist WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("ウォッチリスト項目の削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteByUser はユーザーのウォッチリストを全削除する。
func (r *PostgresWatchlistRepo) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM watchlist WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("ウォッチリストの全削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// Promote はウォッチリスト項目を視聴履歴に変換する。
//
// 1トランザクション内で以下を行う:
//  1. ウォッチリスト項目をFOR UPDATEでロックして取得
//  2. 視聴履歴を登録（user_id / content_idは項目から引き継ぐ）
//  3. SAVEPOINTを張ってウォッチリスト項目を削除
//
// 3が失敗した場合はSAVEPOINTまでロールバックし、視聴履歴のみをコミットする。
// このとき項目はウォッチリストに残り、removed=falseを返す。
func (r *PostgresWatchlistRepo) Promote(ctx context.Context, entryID int64, event *model.ViewEvent) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var userID, contentID int64
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, content_id FROM watchlist WHERE id = $1 FOR UPDATE`,
		entryID,
	).Scan(&userID, &contentID)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("ウォッチリスト項目のロックに失敗しました: %w", err)
	}

	event.UserID = userID
	event.ContentID = contentID
	if err := insertViewEvent(ctx, tx, event); err != nil {
		return false, fmt.Errorf("視聴履歴の登録に失敗しました: %w", err)
	}

	removed := true
	if _, err := tx.ExecContext(ctx, `SAVEPOINT promote_delete`); err != nil {
		return false, fmt.Errorf("failed to create savepoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM watchlist WHERE id = $1`, entryID); err != nil {
		r.logger.Warn("ウォッチリスト項目の削除に失敗したため視聴履歴のみ確定します",
			slog.Int64("watchlist_id", entryID),
			slog.String("error", err.Error()),
		)
		if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT promote_delete`); rbErr != nil {
			return false, fmt.Errorf("failed to rollback to savepoint: %w", rbErr)
		}
		removed = false
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return removed, nil
}

// compile-time interface check
var _ WatchlistRepository = (*PostgresWatchlistRepo)(nil)
