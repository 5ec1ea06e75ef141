package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/watchlog/internal/model"
)

// PostgresContentRepo はPostgreSQLを使用したコンテンツリポジトリ。
type PostgresContentRepo struct {
	db *sql.DB
}

// NewPostgresContentRepo はPostgresContentRepoを生成する。
func NewPostgresContentRepo(db *sql.DB) *PostgresContentRepo {
	return &PostgresContentRepo{db: db}
}

const contentColumns = `id, title, original_title, description, content_type, release_year,
	duration_minutes, total_seasons, total_episodes, imdb_rating, imdb_id, poster_url,
	genre, director, actors_cast, language, country, category_id, is_active,
	created_at, updated_at`

// defaultSearchLimit は検索件数が未指定の場合の上限。
const defaultSearchLimit = 20

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanContent は contentColumns の順序で1行を読み込む。
func scanContent(s rowScanner, c *model.Content) error {
	var originalTitle, description, imdbID, posterURL sql.NullString
	var genre, director, cast, language, country sql.NullString
	var releaseYear, duration, seasons, episodes, categoryID sql.NullInt64
	var rating sql.NullFloat64
	var kind string

	err := s.Scan(
		&c.ID, &c.Title, &originalTitle, &description, &kind, &releaseYear,
		&duration, &seasons, &episodes, &rating, &imdbID, &posterURL,
		&genre, &director, &cast, &language, &country, &categoryID, &c.IsActive,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return err
	}

	c.Kind = model.ContentKind(kind)
	c.OriginalTitle = nullStringValue(originalTitle)
	c.Description = nullStringValue(description)
	c.IMDbID = nullStringValue(imdbID)
	c.PosterURL = nullStringValue(posterURL)
	c.Genre = nullStringValue(genre)
	c.Director = nullStringValue(director)
	c.Cast = nullStringValue(cast)
	c.Language = nullStringValue(language)
	c.Country = nullStringValue(country)
	c.ReleaseYear = nullIntValue(releaseYear)
	c.DurationMinutes = nullIntValue(duration)
	c.TotalSeasons = nullIntValue(seasons)
	c.TotalEpisodes = nullIntValue(episodes)
	c.CategoryID = nullInt64Value(categoryID)
	c.IMDbRating = nullFloatValue(rating)
	return nil
}

func (r *PostgresContentRepo) findOne(ctx context.Context, where string, arg any) (*model.Content, error) {
	c := &model.Content{}
	err := scanContent(r.db.QueryRowContext(ctx,
		`SELECT `+contentColumns+` FROM content WHERE `+where,
		arg,
	), c)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindByID は指定IDのコンテンツを取得する。見つからない場合はnilを返す。
func (r *PostgresContentRepo) FindByID(ctx context.Context, id int64) (*model.Content, error) {
	c, err := r.findOne(ctx, "id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
	}
	return c, nil
}

// FindByIMDbID は外部IDでコンテンツを取得する。見つからない場合はnilを返す。
func (r *PostgresContentRepo) FindByIMDbID(ctx context.Context, imdbID string) (*model.Content, error) {
	c, err := r.findOne(ctx, "imdb_id = $1", imdbID)
	if err != nil {
		return nil, fmt.Errorf("外部IDによるコンテンツの取得に失敗しました: %w", err)
	}
	return c, nil
}

// escapeLike はLIKEパターンのメタ文字をエスケープする。
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// buildContentFilter はContentQueryからWHERE句と引数を組み立てる。
func buildContentFilter(q model.ContentQuery, args []any) (string, []any) {
	conds := []string{"is_active = TRUE"}

	if q.Text != "" {
		args = append(args, "%"+escapeLike(q.Text)+"%")
		p := fmt.Sprintf("$%d", len(args))
		conds = append(conds, "(title ILIKE "+p+" OR original_title ILIKE "+p+" OR description ILIKE "+p+")")
	}
	if q.Kind != nil {
		args = append(args, string(*q.Kind))
		conds = append(conds, fmt.Sprintf("content_type = $%d", len(args)))
	}
	if q.CategoryID != nil {
		args = append(args, *q.CategoryID)
		conds = append(conds, fmt.Sprintf("category_id = $%d", len(args)))
	}

	return strings.Join(conds, " AND "), args
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	return limit
}

// Search はtitle / original_title / descriptionの部分一致でコンテンツを検索する。
// 並び順: タイトル完全一致 → release_yearの新しい順（NULLは最後） → idの昇順。
func (r *PostgresContentRepo) Search(ctx context.Context, q model.ContentQuery) ([]model.Content, error) {
	args := []any{q.Text}
	where, args := buildContentFilter(q, args)
	args = append(args, limitOrDefault(q.Limit), q.Offset)

	query := fmt.Sprintf(
		`SELECT %s FROM content
		 WHERE %s
		 ORDER BY (LOWER(title) = LOWER($1)) DESC, release_year DESC NULLS LAST, id ASC
		 LIMIT $%d OFFSET $%d`,
		contentColumns, where, len(args)-1, len(args),
	)

	return r.queryContents(ctx, query, args...)
}

// List はコンテンツを新しい順に取得する。
func (r *PostgresContentRepo) List(ctx context.Context, q model.ContentQuery) ([]model.Content, error) {
	where, args := buildContentFilter(q, nil)
	args = append(args, limitOrDefault(q.Limit), q.Offset)

	query := fmt.Sprintf(
		`SELECT %s FROM content
		 WHERE %s
		 ORDER BY created_at DESC, id DESC
		 LIMIT $%d OFFSET $%d`,
		contentColumns, where, len(args)-1, len(args),
	)

	return r.queryContents(ctx, query, args...)
}

func (r *PostgresContentRepo) queryContents(ctx context.Context, query string, args ...any) ([]model.Content, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("コンテンツの検索に失敗しました: %w", err)
	}
	defer rows.Close()

	var contents []model.Content
	for rows.Next() {
		var c model.Content
		if err := scanContent(rows, &c); err != nil {
			return nil, fmt.Errorf("コンテンツのスキャンに失敗しました: %w", err)
		}
		contents = append(contents, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コンテンツの走査に失敗しました: %w", err)
	}
	return contents, nil
}

// InsertOrGet はコンテンツを登録する。
// imdb_idの一意制約に対してON CONFLICT DO NOTHINGで登録し、
// 競合した場合は既存レコードを取得して返す。imdb_idが空の場合は常に新規登録となる。
func (r *PostgresContentRepo) InsertOrGet(ctx context.Context, content *model.Content) (*model.Content, bool, error) {
	inserted := &model.Content{}
	err := scanContent(r.db.QueryRowContext(ctx,
		`INSERT INTO content (title, original_title, description, content_type, release_year,
		        duration_minutes, total_seasons, total_episodes, imdb_rating, imdb_id, poster_url,
		        genre, director, actors_cast, language, country, category_id, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, TRUE)
		 ON CONFLICT (imdb_id) DO NOTHING
		 RETURNING `+contentColumns,
		content.Title, nullString(content.OriginalTitle), nullString(content.Description),
		string(content.Kind), nullInt(content.ReleaseYear), nullInt(content.DurationMinutes),
		nullInt(content.TotalSeasons), nullInt(content.TotalEpisodes), nullFloat(content.IMDbRating),
		nullString(content.IMDbID), nullString(content.PosterURL), nullString(content.Genre),
		nullString(content.Director), nullString(content.Cast), nullString(content.Language),
		nullString(content.Country), nullInt64(content.CategoryID),
	), inserted)

	if err == nil {
		return inserted, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("コンテンツの登録に失敗しました: %w", err)
	}

	// 競合: 同時に登録された既存レコードを返す
	existing, err := r.FindByIMDbID(ctx, content.IMDbID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("競合したコンテンツが見つかりません: imdb_id=%s", content.IMDbID)
	}
	return existing, false, nil
}

// UpdateRating は外部評価を更新する。
func (r *PostgresContentRepo) UpdateRating(ctx context.Context, id int64, rating *float64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE content SET imdb_rating = $1, updated_at = NOW() WHERE id = $2`,
		nullFloat(rating), id,
	)
	if err != nil {
		return fmt.Errorf("外部評価の更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWithIMDbID は外部IDを持つコンテンツをid昇順でキーセットページングして取得する。
func (r *PostgresContentRepo) ListWithIMDbID(ctx context.Context, afterID int64, limit int) ([]model.Content, error) {
	return r.queryContents(ctx,
		`SELECT `+contentColumns+` FROM content
		 WHERE imdb_id IS NOT NULL AND is_active = TRUE AND id > $1
		 ORDER BY id ASC
		 LIMIT $2`,
		afterID, limitOrDefault(limit),
	)
}

// compile-time interface check
var _ ContentRepository = (*PostgresContentRepo)(nil)
