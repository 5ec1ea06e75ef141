package content

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/watchlog/internal/model"
	"github.com/hitoshi/watchlog/internal/repository"
)

// --- テスト用モック ---

// memContentRepo はContentRepositoryのインメモリ実装。
// 外部IDの一意性をストアレベルで保証する点を実装と揃えている。
type memContentRepo struct {
	mu        sync.Mutex
	rows      []model.Content
	nextID    int64
	searchErr error
	inserts   int
}

func newMemContentRepo(rows ...model.Content) *memContentRepo {
	r := &memContentRepo{nextID: 1}
	for _, c := range rows {
		r.insert(c)
	}
	return r
}

func (r *memContentRepo) insert(c model.Content) model.Content {
	c.ID = r.nextID
	r.nextID++
	r.rows = append(r.rows, c)
	return c
}

func (r *memContentRepo) FindByID(_ context.Context, id int64) (*model.Content, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.rows {
		if c.ID == id {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memContentRepo) FindByIMDbID(_ context.Context, imdbID string) (*model.Content, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.rows {
		if imdbID != "" && c.IMDbID == imdbID {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memContentRepo) Search(_ context.Context, q model.ContentQuery) ([]model.Content, error) {
	if r.searchErr != nil {
		return nil, r.searchErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	needle := strings.ToLower(q.Text)
	var out []model.Content
	for _, c := range r.rows {
		if q.Kind != nil && c.Kind != *q.Kind {
			continue
		}
		if strings.Contains(strings.ToLower(c.Title), needle) ||
			strings.Contains(strings.ToLower(c.OriginalTitle), needle) ||
			strings.Contains(strings.ToLower(c.Description), needle) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ei := strings.EqualFold(out[i].Title, q.Text)
		ej := strings.EqualFold(out[j].Title, q.Text)
		if ei != ej {
			return ei
		}
		yi, yj := out[i].ReleaseYear, out[j].ReleaseYear
		switch {
		case yi != nil && yj == nil:
			return true
		case yi == nil && yj != nil:
			return false
		case yi != nil && yj != nil && *yi != *yj:
			return *yi > *yj
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *memContentRepo) List(_ context.Context, q model.ContentQuery) ([]model.Content, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]model.Content(nil), r.rows...)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *memContentRepo) InsertOrGet(_ context.Context, c *model.Content) (*model.Content, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.IMDbID != "" {
		for _, existing := range r.rows {
			if existing.IMDbID == c.IMDbID {
				existing := existing
				return &existing, false, nil
			}
		}
	}
	r.inserts++
	stored := r.insert(*c)
	return &stored, true, nil
}

func (r *memContentRepo) UpdateRating(_ context.Context, id int64, rating *float64) error {
	return nil
}

func (r *memContentRepo) ListWithIMDbID(_ context.Context, afterID int64, limit int) ([]model.Content, error) {
	return nil, nil
}

func (r *memContentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// fakeProvider はProviderのモック。種別ごとの応答と呼び出し回数を保持する。
type fakeProvider struct {
	mu      sync.Mutex
	results map[model.ContentKind]*model.Content
	err     error
	calls   []model.ContentKind
}

func (p *fakeProvider) LookupByTitle(_ context.Context, title string, kind *model.ContentKind, year int) (*model.Content, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, *kind)
	if p.err != nil {
		return nil, p.err
	}
	c, ok := p.results[*kind]
	if !ok || c == nil {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

type stubCategoryRepo struct {
	categories []model.Category
}

func (s *stubCategoryRepo) List(_ context.Context) ([]model.Category, error) {
	return s.categories, nil
}

var (
	_ repository.ContentRepository  = (*memContentRepo)(nil)
	_ repository.CategoryRepository = (*stubCategoryRepo)(nil)
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestResolver(repo *memContentRepo, provider Provider, buf *bytes.Buffer) *Resolver {
	return NewResolver(repo, &stubCategoryRepo{}, provider, nil, newTestLogger(buf))
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func kindPtr(k model.ContentKind) *model.ContentKind { return &k }

func arrival() *model.Content {
	return &model.Content{
		Title:           "Arrival",
		OriginalTitle:   "Arrival",
		Kind:            model.KindMovie,
		ReleaseYear:     intPtr(2016),
		DurationMinutes: intPtr(116),
		IMDbRating:      floatPtr(7.9),
		IMDbID:          "tt2543164",
	}
}

// --- Resolve ---

// TestResolve_LocalHit はローカル一致時に外部プロバイダを呼ばないことを検証する。
func TestResolve_LocalHit(t *testing.T) {
	repo := newMemContentRepo(model.Content{Title: "Inception", Kind: model.KindMovie, IMDbID: "tt1375666"})
	provider := &fakeProvider{}
	var buf bytes.Buffer
	r := newTestResolver(repo, provider, &buf)

	got, err := r.Resolve(context.Background(), "  inception ", kindPtr(model.KindMovie))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Inception", got.Title)
	assert.Empty(t, provider.calls)
}

func TestResolve_ExternalFallbackInsertsOnce(t *testing.T) {
	repo := newMemContentRepo()
	provider := &fakeProvider{results: map[model.ContentKind]*model.Content{model.KindMovie: arrival()}}
	var buf bytes.Buffer
	r := newTestResolver(repo, provider, &buf)

	got, err := r.Resolve(context.Background(), "Arrival", nil)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.NotZero(t, got.ID)
	assert.Equal(t, 2016, *got.ReleaseYear)
	assert.InDelta(t, 7.9, *got.IMDbRating, 0.001)
	assert.Equal(t, 116, *got.DurationMinutes)
	assert.Equal(t, 1, repo.count())
	assert.Equal(t, []model.ContentKind{model.KindMovie}, provider.calls, "series should not be queried after a movie hit")
}

// TestResolve_ExistingExternalIDIsReused は外部IDが登録済みなら重複登録しないことを検証する。
func TestResolve_ExistingExternalIDIsReused(t *testing.T) {
	existing := *arrival()
	existing.Title = "Arrival (2016)"
	existing.OriginalTitle = ""
	repo := newMemContentRepo(existing)

	provider := &fakeProvider{results: map[model.ContentKind]*model.Content{model.KindMovie: arrival()}}
	var buf bytes.Buffer
	r := newTestResolver(repo, provider, &buf)

	got, err := r.Resolve(context.Background(), "Arrivals", nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, 1, repo.count())
	assert.Zero(t, repo.inserts)
}

func TestResolve_QueriesSeriesAfterMovieMiss(t *testing.T) {
	repo := newMemContentRepo()
	series := &model.Content{Title: "Sherlock", Kind: model.KindSeries, IMDbID: "tt1475582"}
	provider := &fakeProvider{results: map[model.ContentKind]*model.Content{model.KindSeries: series}}
	var buf bytes.Buffer
	r := newTestResolver(repo, provider, &buf)

	got, err := r.Resolve(context.Background(), "Sherlock", nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.KindSeries, got.Kind)
	assert.Equal(t, []model.ContentKind{model.KindMovie, model.KindSeries}, provider.calls)
}

// TestResolve_ProviderFailureDegrades はプロバイダ障害時にエラーではなく結果なしになることを検証する。
func TestResolve_ProviderFailureDegrades(t *testing.T) {
	repo := newMemContentRepo()
	provider := &fakeProvider{err: errors.New("timeout")}
	var buf bytes.Buffer
	r := newTestResolver(repo, provider, &buf)

	got, err := r.Resolve(context.Background(), "Arrival", nil)
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.Contains(t, buf.String(), "timeout")
}

func TestResolve_StoreFailurePropagates(t *testing.T) {
	repo := newMemContentRepo()
	repo.searchErr = errors.New("connection refused")
	var buf bytes.Buffer
	r := newTestResolver(repo, &fakeProvider{}, &buf)

	_, err := r.Resolve(context.Background(), "Arrival", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestResolve_EmptyQuery(t *testing.T) {
	var buf bytes.Buffer
	r := newTestResolver(newMemContentRepo(), nil, &buf)

	_, err := r.Resolve(context.Background(), "   ", nil)

	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, model.ErrCodeInvalidQuery, apiErr.Code)
}

func TestResolve_NilProviderIsLocalOnly(t *testing.T) {
	var buf bytes.Buffer
	r := newTestResolver(newMemContentRepo(), nil, &buf)

	got, err := r.Resolve(context.Background(), "Arrival", nil)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

// TestResolve_DeterministicTieBreak は完全一致、公開年の新しい順の優先順位を検証する。
func TestResolve_DeterministicTieBreak(t *testing.T) {
	repo := newMemContentRepo(
		model.Content{Title: "Dune: Part Two", Kind: model.KindMovie, ReleaseYear: intPtr(2024)},
		model.Content{Title: "Dune", Kind: model.KindMovie, ReleaseYear: intPtr(1984)},
		model.Content{Title: "Dune", Kind: model.KindMovie, ReleaseYear: intPtr(2021)},
	)
	var buf bytes.Buffer
	r := newTestResolver(repo, nil, &buf)

	got, err := r.Resolve(context.Background(), "dune", nil)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
	assert.Equal(t, 2021, *got.ReleaseYear)
}

// --- Search ---

func TestSearch_LocalFirstThenExternal(t *testing.T) {
	repo := newMemContentRepo(model.Content{Title: "The Office", Kind: model.KindSeries, IMDbID: "tt0290978"})
	provider := &fakeProvider{results: map[model.ContentKind]*model.Content{
		model.KindMovie:  {Title: "The Office Movie", Kind: model.KindMovie, IMDbID: "tt9999991"},
		model.KindSeries: {Title: "The Office", Kind: model.KindSeries, IMDbID: "tt0386676"},
	}}
	var buf bytes.Buffer
	r := newTestResolver(repo, provider, &buf)

	got, err := r.Search(context.Background(), "the office", nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "tt0290978", got[0].IMDbID)
	assert.Equal(t, "tt9999991", got[1].IMDbID)
	assert.Equal(t, "tt0386676", got[2].IMDbID)
}

func TestSearch_DeduplicatesByExternalID(t *testing.T) {
	repo := newMemContentRepo(*arrival())
	provider := &fakeProvider{results: map[model.ContentKind]*model.Content{model.KindMovie: arrival()}}
	var buf bytes.Buffer
	r := newTestResolver(repo, provider, &buf)

	got, err := r.Search(context.Background(), "Arrival", nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, repo.count())
}

func TestSearch_KindHintWithLocalHitSkipsProvider(t *testing.T) {
	repo := newMemContentRepo(*arrival())
	provider := &fakeProvider{}
	var buf bytes.Buffer
	r := newTestResolver(repo, provider, &buf)

	got, err := r.Search(context.Background(), "arrival", kindPtr(model.KindMovie))
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Empty(t, provider.calls)
}

func TestSearch_CappedAtFive(t *testing.T) {
	var rows []model.Content
	for i := 0; i < 7; i++ {
		rows = append(rows, model.Content{Title: "Star Trek", Kind: model.KindMovie, ReleaseYear: intPtr(1979 + i)})
	}
	repo := newMemContentRepo(rows...)
	provider := &fakeProvider{results: map[model.ContentKind]*model.Content{
		model.KindSeries: {Title: "Star Trek", Kind: model.KindSeries, IMDbID: "tt0060028"},
	}}
	var buf bytes.Buffer
	r := newTestResolver(repo, provider, &buf)

	got, err := r.Search(context.Background(), "star trek", nil)
	require.NoError(t, err)
	assert.Len(t, got, MaxSearchResults)
	assert.Empty(t, provider.calls)
}

func TestSearch_ProviderFailureReturnsLocalOnly(t *testing.T) {
	repo := newMemContentRepo(model.Content{Title: "Heat", Kind: model.KindMovie})
	provider := &fakeProvider{err: errors.New("503")}
	var buf bytes.Buffer
	r := newTestResolver(repo, provider, &buf)

	got, err := r.Search(context.Background(), "heat", nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

// --- EnsureContentExists ---

// TestEnsureContentExists_Idempotent は同じ候補で2回呼んでも同じレコードになることを検証する。
func TestEnsureContentExists_Idempotent(t *testing.T) {
	repo := newMemContentRepo()
	var buf bytes.Buffer
	r := newTestResolver(repo, nil, &buf)

	first, err := r.EnsureContentExists(context.Background(), arrival())
	require.NoError(t, err)
	second, err := r.EnsureContentExists(context.Background(), arrival())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.count())
}

func TestEnsureContentExists_ByID(t *testing.T) {
	repo := newMemContentRepo(model.Content{Title: "Heat", Kind: model.KindMovie})
	var buf bytes.Buffer
	r := newTestResolver(repo, nil, &buf)

	got, err := r.EnsureContentExists(context.Background(), &model.Content{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, "Heat", got.Title)
}

func TestEnsureContentExists_TitleMatchWithoutExternalID(t *testing.T) {
	repo := newMemContentRepo(model.Content{Title: "Heat", Kind: model.KindMovie, ReleaseYear: intPtr(1995)})
	var buf bytes.Buffer
	r := newTestResolver(repo, nil, &buf)

	got, err := r.EnsureContentExists(context.Background(), &model.Content{Title: "heat", Kind: model.KindSeries})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, 1, repo.count())
}

// TestEnsureContentExists_RemakeIsDistinct は同名でも外部IDが異なれば別レコードになることを検証する。
func TestEnsureContentExists_RemakeIsDistinct(t *testing.T) {
	repo := newMemContentRepo(model.Content{Title: "Dune", Kind: model.KindMovie, IMDbID: "tt0087182"})
	var buf bytes.Buffer
	r := newTestResolver(repo, nil, &buf)

	got, err := r.EnsureContentExists(context.Background(), &model.Content{Title: "Dune", Kind: model.KindMovie, IMDbID: "tt1160419"})
	require.NoError(t, err)
	assert.NotEqual(t, int64(1), got.ID)
	assert.Equal(t, 2, repo.count())
}

func TestEnsureContentExists_Validation(t *testing.T) {
	var buf bytes.Buffer
	r := newTestResolver(newMemContentRepo(), nil, &buf)

	tests := []struct {
		name      string
		candidate *model.Content
		wantCode  string
	}{
		{name: "nil", candidate: nil, wantCode: model.ErrCodeInvalidContent},
		{name: "empty title", candidate: &model.Content{Title: " "}, wantCode: model.ErrCodeInvalidContent},
		{name: "bad kind", candidate: &model.Content{Title: "X", Kind: "episode"}, wantCode: model.ErrCodeInvalidKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.EnsureContentExists(context.Background(), tt.candidate)
			var apiErr *model.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}

// TestEnsureContentExists_Concurrent は同時呼び出しでも外部IDの行が1件になることを検証する。
func TestEnsureContentExists_Concurrent(t *testing.T) {
	repo := newMemContentRepo()
	var buf bytes.Buffer
	r := newTestResolver(repo, nil, &buf)

	var wg sync.WaitGroup
	ids := make([]int64, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := r.EnsureContentExists(context.Background(), arrival())
			if err == nil {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, repo.count())
}

// --- Get / List ---

func TestGet_NotFound(t *testing.T) {
	var buf bytes.Buffer
	r := newTestResolver(newMemContentRepo(), nil, &buf)

	_, err := r.Get(context.Background(), 42)
	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, model.ErrCodeContentNotFound, apiErr.Code)
}

func TestList_ClampsLimit(t *testing.T) {
	var buf bytes.Buffer
	r := newTestResolver(newMemContentRepo(), nil, &buf)

	got, err := r.List(context.Background(), model.ContentQuery{Limit: 1000})
	require.NoError(t, err)
	assert.NotNil(t, got)
}
