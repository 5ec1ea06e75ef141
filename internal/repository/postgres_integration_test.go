//go:build integration

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hitoshi/watchlog/internal/database"
	"github.com/hitoshi/watchlog/internal/model"
)

var testDB *sql.DB

// TestMain はPostgreSQLコンテナを起動し、マイグレーションを適用してからテストを実行する。
func TestMain(m *testing.M) {
	ctx := context.Background()

	container, dbURL, err := startPostgres(ctx)
	if err != nil {
		fmt.Printf("Failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(dbURL); err != nil {
		fmt.Printf("Failed to run migrations: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}
	testDB, err = database.Open(dbURL)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	if err := container.Terminate(ctx); err != nil {
		fmt.Printf("Failed to terminate postgres container: %v\n", err)
	}
	os.Exit(code)
}

func startPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "watchlog",
			"POSTGRES_PASSWORD": "watchlog",
			"POSTGRES_DB":       "watchlog_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return container, "", fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return container, "", fmt.Errorf("failed to get container port: %w", err)
	}

	dbURL := fmt.Sprintf("postgres://watchlog:watchlog@%s:%s/watchlog_test?sslmode=disable", host, port.Port())
	return container, dbURL, nil
}

// resetTables は各テストの前に全データを削除する。
func resetTables(t *testing.T) {
	t.Helper()
	_, err := testDB.Exec(`TRUNCATE dialogue_sessions, watchlist, view_history, users, content, categories RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

func intPtr(v int) *int { return &v }

func mustInsertContent(t *testing.T, repo *PostgresContentRepo, c model.Content) *model.Content {
	t.Helper()
	stored, created, err := repo.InsertOrGet(context.Background(), &c)
	require.NoError(t, err)
	require.True(t, created)
	return stored
}

func TestPostgresUserRepo_InsertOrGet_Concurrent(t *testing.T) {
	resetTables(t)
	repo := NewPostgresUserRepo(testDB)
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	ids := make([]int64, workers)
	created := make([]bool, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, c, err := repo.InsertOrGet(ctx, &model.User{ChatID: "chat-1", Username: fmt.Sprintf("name-%d", i)})
			errs[i] = err
			if u != nil {
				ids[i] = u.ID
			}
			created[i] = c
		}(i)
	}
	wg.Wait()

	createdCount := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount)

	var rows int
	require.NoError(t, testDB.QueryRow(`SELECT COUNT(*) FROM users WHERE chat_id = 'chat-1'`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestPostgresContentRepo_InsertOrGet_SameExternalID(t *testing.T) {
	resetTables(t)
	repo := NewPostgresContentRepo(testDB)
	ctx := context.Background()

	first, created, err := repo.InsertOrGet(ctx, &model.Content{Title: "Arrival", Kind: model.KindMovie, IMDbID: "tt2543164", IsActive: true})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := repo.InsertOrGet(ctx, &model.Content{Title: "Arrival (2016)", Kind: model.KindMovie, IMDbID: "tt2543164", IsActive: true})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Arrival", second.Title)

	// 外部IDが異なる同名タイトルは別レコード
	other, created, err := repo.InsertOrGet(ctx, &model.Content{Title: "Arrival", Kind: model.KindMovie, IMDbID: "tt0115571", IsActive: true})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestPostgresContentRepo_Search_TieBreak(t *testing.T) {
	resetTables(t)
	repo := NewPostgresContentRepo(testDB)
	ctx := context.Background()

	noYear := mustInsertContent(t, repo, model.Content{Title: "Dune Messiah", Kind: model.KindMovie, IsActive: true})
	older := mustInsertContent(t, repo, model.Content{Title: "Dune: Part One", Kind: model.KindMovie, ReleaseYear: intPtr(2021), IsActive: true})
	newer := mustInsertContent(t, repo, model.Content{Title: "Dune: Part Two", Kind: model.KindMovie, ReleaseYear: intPtr(2024), IsActive: true})
	exact := mustInsertContent(t, repo, model.Content{Title: "Dune", Kind: model.KindMovie, ReleaseYear: intPtr(1984), IsActive: true})
	mustInsertContent(t, repo, model.Content{Title: "Dark", Kind: model.KindSeries, Description: "not a match", IsActive: true})

	got, err := repo.Search(ctx, model.ContentQuery{Text: "dune", Limit: 10})
	require.NoError(t, err)

	var ids []int64
	for _, c := range got {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []int64{exact.ID, newer.ID, older.ID, noYear.ID}, ids)
}

func TestPostgresWatchlistRepo_DuplicateAndPromote(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	users := NewPostgresUserRepo(testDB)
	contents := NewPostgresContentRepo(testDB)
	watchlist := NewPostgresWatchlistRepo(testDB)
	history := NewPostgresHistoryRepo(testDB)

	u, _, err := users.InsertOrGet(ctx, &model.User{ChatID: "chat-2"})
	require.NoError(t, err)
	c := mustInsertContent(t, contents, model.Content{Title: "Severance", Kind: model.KindSeries, IsActive: true})

	entry := &model.WatchlistEntry{UserID: u.ID, ContentID: c.ID, Priority: 3}
	require.NoError(t, watchlist.Create(ctx, entry))
	assert.ErrorIs(t, watchlist.Create(ctx, &model.WatchlistEntry{UserID: u.ID, ContentID: c.ID, Priority: 1}), ErrDuplicate)

	rating := 9.0
	event := &model.ViewEvent{WatchedAt: time.Now().Add(-time.Hour), Rating: &rating}
	removed, err := watchlist.Promote(ctx, entry.ID, event)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NotZero(t, event.ID)
	assert.Equal(t, u.ID, event.UserID)
	assert.Equal(t, c.ID, event.ContentID)

	remaining, err := watchlist.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Nil(t, remaining)

	exists, err := history.ExistsForContent(ctx, u.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = watchlist.Promote(ctx, entry.ID, &model.ViewEvent{WatchedAt: time.Now()})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresAnalyticsRepo_HighestRatedRequiresMinimumRatings(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	users := NewPostgresUserRepo(testDB)
	contents := NewPostgresContentRepo(testDB)
	history := NewPostgresHistoryRepo(testDB)
	analytics := NewPostgresAnalyticsRepo(testDB)

	popular := mustInsertContent(t, contents, model.Content{Title: "Heat", Kind: model.KindMovie, IsActive: true})
	niche := mustInsertContent(t, contents, model.Content{Title: "Primer", Kind: model.KindMovie, IsActive: true})

	for i, r := range []float64{8, 9, 10} {
		u, _, err := users.InsertOrGet(ctx, &model.User{ChatID: fmt.Sprintf("rater-%d", i)})
		require.NoError(t, err)
		rating := r
		require.NoError(t, history.Create(ctx, &model.ViewEvent{UserID: u.ID, ContentID: popular.ID, WatchedAt: time.Now().Add(-time.Hour), Rating: &rating}))
		if i < 2 {
			ten := 10.0
			require.NoError(t, history.Create(ctx, &model.ViewEvent{UserID: u.ID, ContentID: niche.ID, WatchedAt: time.Now().Add(-time.Hour), Rating: &ten}))
		}
	}

	got, err := analytics.HighestRated(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, popular.ID, got[0].ContentID)
	assert.InDelta(t, 9.0, got[0].AverageRating, 0.001)
	assert.Equal(t, 3, got[0].Ratings)

	active, err := analytics.CountActiveUsers(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, active)
}
