// Package content はタイトル文字列から正規のコンテンツレコードを解決するドメインロジックを提供する。
// HTTPハンドラー、チャット対話、評価更新ワーカーはすべてこのResolverを経由する。
package content

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/watchlog/internal/metrics"
	"github.com/hitoshi/watchlog/internal/model"
	"github.com/hitoshi/watchlog/internal/repository"
)

const (
	// MaxSearchResults は複数件モードで返す最大件数。
	MaxSearchResults = 5
	// MaxExternalResults は複数件モードで外部プロバイダから追加する最大件数。
	MaxExternalResults = 4
	// defaultListLimit は一覧取得のデフォルト件数。
	defaultListLimit = 20
	// maxListLimit は一覧取得の最大件数。
	maxListLimit = 100
)

// Provider は外部メタデータプロバイダのインターフェース。
// 見つからない場合は nil, nil を返す。
type Provider interface {
	LookupByTitle(ctx context.Context, title string, kind *model.ContentKind, year int) (*model.Content, error)
}

// Resolver はコンテンツ解決サービス。
// ローカルストアを優先し、見つからない場合のみ外部プロバイダに問い合わせる。
// プロバイダの失敗はローカル結果のみへ縮退し、ストアの失敗は呼び出し元へ伝播する。
type Resolver struct {
	contentRepo  repository.ContentRepository
	categoryRepo repository.CategoryRepository
	provider     Provider
	metrics      metrics.MetricsCollector
	logger       *slog.Logger
}

// NewResolver はResolverの新しいインスタンスを生成する。
// providerがnilの場合はローカル検索のみを行う。
func NewResolver(
	contentRepo repository.ContentRepository,
	categoryRepo repository.CategoryRepository,
	provider Provider,
	m metrics.MetricsCollector,
	logger *slog.Logger,
) *Resolver {
	if m == nil {
		m = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		contentRepo:  contentRepo,
		categoryRepo: categoryRepo,
		provider:     provider,
		metrics:      m,
		logger:       logger,
	}
}

// Resolve はクエリに一致するコンテンツを1件返す（単一モード）。
// ローカルに一致があれば先頭の1件を返し、外部プロバイダは呼ばない。
// どこにも見つからない場合は nil, nil を返す。
func (r *Resolver) Resolve(ctx context.Context, query string, kind *model.ContentKind) (*model.Content, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, model.NewInvalidQueryError()
	}

	local, err := r.contentRepo.Search(ctx, model.ContentQuery{Text: query, Kind: kind, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("コンテンツの検索に失敗しました: %w", err)
	}
	if len(local) > 0 {
		r.metrics.RecordResolution(metrics.SourceLocal)
		return &local[0], nil
	}

	for _, k := range lookupKinds(kind) {
		candidate := r.lookupExternal(ctx, query, k)
		if candidate == nil {
			continue
		}
		return r.persist(ctx, candidate)
	}

	r.metrics.RecordResolution(metrics.SourceMiss)
	return nil, nil
}

// Search はクエリに一致するコンテンツの候補一覧を返す（複数件モード）。
// ローカル一致を先頭に、外部IDで重複排除した外部結果を最大4件続け、全体で最大5件とする。
// 種別指定がありローカル一致がある場合は外部プロバイダを呼ばない。
func (r *Resolver) Search(ctx context.Context, query string, kind *model.ContentKind) ([]model.Content, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, model.NewInvalidQueryError()
	}

	results, err := r.contentRepo.Search(ctx, model.ContentQuery{Text: query, Kind: kind, Limit: MaxSearchResults})
	if err != nil {
		return nil, fmt.Errorf("コンテンツの検索に失敗しました: %w", err)
	}
	if len(results) > 0 {
		r.metrics.RecordResolution(metrics.SourceLocal)
	}
	if kind != nil && len(results) > 0 {
		return results, nil
	}

	seen := make(map[string]bool, len(results))
	seenIDs := make(map[int64]bool, len(results))
	for _, c := range results {
		if c.HasExternalID() {
			seen[c.IMDbID] = true
		}
		seenIDs[c.ID] = true
	}

	external := 0
	for _, k := range lookupKinds(kind) {
		if external >= MaxExternalResults || len(results) >= MaxSearchResults {
			break
		}
		candidate := r.lookupExternal(ctx, query, k)
		if candidate == nil || (candidate.HasExternalID() && seen[candidate.IMDbID]) {
			continue
		}

		stored, err := r.persist(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if seenIDs[stored.ID] {
			continue
		}
		if stored.HasExternalID() {
			seen[stored.IMDbID] = true
		}
		seenIDs[stored.ID] = true
		results = append(results, *stored)
		external++
	}

	if len(results) == 0 {
		r.metrics.RecordResolution(metrics.SourceMiss)
	}
	return results, nil
}

// EnsureContentExists は候補レコードに対応する永続化済みの正規レコードを返す。
// 内部ID、外部IDの順に既存レコードを探し、外部IDを持たない候補はタイトルでも検索する。
// 見つからない場合は候補から新規登録する。同じ候補で繰り返し呼んでも同じレコードを返す。
func (r *Resolver) EnsureContentExists(ctx context.Context, candidate *model.Content) (*model.Content, error) {
	if candidate == nil {
		return nil, model.NewInvalidContentError("コンテンツが指定されていません")
	}

	if candidate.ID > 0 {
		existing, err := r.contentRepo.FindByID(ctx, candidate.ID)
		if err != nil {
			return nil, fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	candidate.Title = strings.TrimSpace(candidate.Title)
	candidate.IMDbID = strings.TrimSpace(candidate.IMDbID)
	if candidate.Title == "" {
		return nil, model.NewInvalidContentError("タイトルは必須です")
	}
	if candidate.Kind == "" {
		candidate.Kind = model.KindMovie
	}
	if candidate.Kind != model.KindMovie && candidate.Kind != model.KindSeries {
		return nil, model.NewInvalidKindError(string(candidate.Kind))
	}

	if !candidate.HasExternalID() {
		matches, err := r.contentRepo.Search(ctx, model.ContentQuery{Text: candidate.Title, Limit: 1})
		if err != nil {
			return nil, fmt.Errorf("コンテンツの検索に失敗しました: %w", err)
		}
		if len(matches) > 0 {
			return &matches[0], nil
		}
	}

	return r.persist(ctx, candidate)
}

// Get は指定IDのコンテンツを返す。存在しない場合はCONTENT_NOT_FOUNDエラー。
func (r *Resolver) Get(ctx context.Context, id int64) (*model.Content, error) {
	c, err := r.contentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewContentNotFoundError(fmt.Sprintf("%d", id))
	}
	return c, nil
}

// GetByIMDbID は外部IDでコンテンツを返す。存在しない場合はCONTENT_NOT_FOUNDエラー。
func (r *Resolver) GetByIMDbID(ctx context.Context, imdbID string) (*model.Content, error) {
	c, err := r.contentRepo.FindByIMDbID(ctx, strings.TrimSpace(imdbID))
	if err != nil {
		return nil, fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewContentNotFoundError(imdbID)
	}
	return c, nil
}

// List はコンテンツを新しい順に返す。
func (r *Resolver) List(ctx context.Context, q model.ContentQuery) ([]model.Content, error) {
	if q.Limit <= 0 {
		q.Limit = defaultListLimit
	}
	if q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	items, err := r.contentRepo.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("コンテンツ一覧の取得に失敗しました: %w", err)
	}
	if items == nil {
		items = []model.Content{}
	}
	return items, nil
}

// Categories は全カテゴリを返す。
func (r *Resolver) Categories(ctx context.Context) ([]model.Category, error) {
	cats, err := r.categoryRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の取得に失敗しました: %w", err)
	}
	if cats == nil {
		cats = []model.Category{}
	}
	return cats, nil
}

// lookupExternal は外部プロバイダに問い合わせる。
// 失敗は結果なしとして扱い、呼び出し元には伝播しない。
func (r *Resolver) lookupExternal(ctx context.Context, query string, kind model.ContentKind) *model.Content {
	if r.provider == nil {
		return nil
	}
	c, err := r.provider.LookupByTitle(ctx, query, &kind, 0)
	if err != nil {
		r.logger.Warn("外部プロバイダが利用できないためローカル結果のみを返します",
			slog.String("title", query),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return c
}

// persist は候補を登録する。外部IDが既に登録済みの場合は既存レコードを返す。
func (r *Resolver) persist(ctx context.Context, candidate *model.Content) (*model.Content, error) {
	if candidate.HasExternalID() {
		existing, err := r.contentRepo.FindByIMDbID(ctx, candidate.IMDbID)
		if err != nil {
			return nil, fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
		}
		if existing != nil {
			r.metrics.RecordResolution(metrics.SourceExisting)
			return existing, nil
		}
	}

	candidate.IsActive = true
	stored, created, err := r.contentRepo.InsertOrGet(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("コンテンツの登録に失敗しました: %w", err)
	}
	if created {
		r.metrics.RecordResolution(metrics.SourceExternal)
		r.logger.Info("コンテンツを登録しました",
			slog.Int64("content_id", stored.ID),
			slog.String("title", stored.Title),
			slog.String("imdb_id", stored.IMDbID),
		)
	} else {
		r.metrics.RecordResolution(metrics.SourceExisting)
	}
	return stored, nil
}

// lookupKinds は外部プロバイダに問い合わせる種別の順序を返す。
func lookupKinds(kind *model.ContentKind) []model.ContentKind {
	if kind != nil {
		return []model.ContentKind{*kind}
	}
	return []model.ContentKind{model.KindMovie, model.KindSeries}
}
