package handler

import (
	"time"

	"github.com/hitoshi/watchlog/internal/model"
)

// contentResponse はコンテンツのAPIレスポンス。
type contentResponse struct {
	ID              int64    `json:"id"`
	Title           string   `json:"title"`
	OriginalTitle   string   `json:"original_title,omitempty"`
	Description     string   `json:"description,omitempty"`
	Kind            string   `json:"kind"`
	ReleaseYear     *int     `json:"release_year,omitempty"`
	DurationMinutes *int     `json:"duration,omitempty"`
	TotalSeasons    *int     `json:"total_seasons,omitempty"`
	TotalEpisodes   *int     `json:"total_episodes,omitempty"`
	IMDbRating      *float64 `json:"imdb_rating,omitempty"`
	IMDbID          string   `json:"imdb_id,omitempty"`
	PosterURL       string   `json:"poster_url,omitempty"`
	Genre           string   `json:"genre,omitempty"`
	Director        string   `json:"director,omitempty"`
	Cast            string   `json:"cast,omitempty"`
	Language        string   `json:"language,omitempty"`
	Country         string   `json:"country,omitempty"`
	CategoryID      *int64   `json:"category_id,omitempty"`
	IsActive        bool     `json:"is_active"`
}

func toContentResponse(c *model.Content) contentResponse {
	return contentResponse{
		ID:              c.ID,
		Title:           c.Title,
		OriginalTitle:   c.OriginalTitle,
		Description:     c.Description,
		Kind:            string(c.Kind),
		ReleaseYear:     c.ReleaseYear,
		DurationMinutes: c.DurationMinutes,
		TotalSeasons:    c.TotalSeasons,
		TotalEpisodes:   c.TotalEpisodes,
		IMDbRating:      c.IMDbRating,
		IMDbID:          c.IMDbID,
		PosterURL:       c.PosterURL,
		Genre:           c.Genre,
		Director:        c.Director,
		Cast:            c.Cast,
		Language:        c.Language,
		Country:         c.Country,
		CategoryID:      c.CategoryID,
		IsActive:        c.IsActive,
	}
}

func toContentResponses(items []model.Content) []contentResponse {
	out := make([]contentResponse, len(items))
	for i := range items {
		out[i] = toContentResponse(&items[i])
	}
	return out
}

// contentRequest はコンテンツ登録リクエストのボディ。
type contentRequest struct {
	Title           string   `json:"title"`
	OriginalTitle   string   `json:"original_title"`
	Description     string   `json:"description"`
	Kind            string   `json:"kind"`
	ReleaseYear     *int     `json:"release_year"`
	DurationMinutes *int     `json:"duration"`
	TotalSeasons    *int     `json:"total_seasons"`
	TotalEpisodes   *int     `json:"total_episodes"`
	IMDbRating      *float64 `json:"imdb_rating"`
	IMDbID          string   `json:"imdb_id"`
	PosterURL       string   `json:"poster_url"`
	Genre           string   `json:"genre"`
	Director        string   `json:"director"`
	Cast            string   `json:"cast"`
	Language        string   `json:"language"`
	Country         string   `json:"country"`
	CategoryID      *int64   `json:"category_id"`
}

func (req contentRequest) toModel() *model.Content {
	return &model.Content{
		Title:           req.Title,
		OriginalTitle:   req.OriginalTitle,
		Description:     req.Description,
		Kind:            model.ContentKind(req.Kind),
		ReleaseYear:     req.ReleaseYear,
		DurationMinutes: req.DurationMinutes,
		TotalSeasons:    req.TotalSeasons,
		TotalEpisodes:   req.TotalEpisodes,
		IMDbRating:      req.IMDbRating,
		IMDbID:          req.IMDbID,
		PosterURL:       req.PosterURL,
		Genre:           req.Genre,
		Director:        req.Director,
		Cast:            req.Cast,
		Language:        req.Language,
		Country:         req.Country,
		CategoryID:      req.CategoryID,
		IsActive:        true,
	}
}

type categoryResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// userResponse はユーザーのAPIレスポンス。
type userResponse struct {
	ID        int64     `json:"id"`
	ChatID    string    `json:"chat_id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		ChatID:    u.ChatID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		CreatedAt: u.CreatedAt,
	}
}

// viewEventResponse は視聴履歴のAPIレスポンス。
type viewEventResponse struct {
	ID              int64            `json:"id"`
	ContentID       int64            `json:"content_id"`
	WatchedAt       time.Time        `json:"watched_at"`
	Rating          *float64         `json:"rating,omitempty"`
	Season          *int             `json:"season,omitempty"`
	Episode         *int             `json:"episode,omitempty"`
	EpisodeTitle    string           `json:"episode_title,omitempty"`
	DurationWatched *int             `json:"duration_watched,omitempty"`
	Rewatch         bool             `json:"rewatch"`
	Notes           string           `json:"notes,omitempty"`
	Content         *contentResponse `json:"content,omitempty"`
}

func toViewEventResponse(e *model.ViewEvent) viewEventResponse {
	return viewEventResponse{
		ID:              e.ID,
		ContentID:       e.ContentID,
		WatchedAt:       e.WatchedAt,
		Rating:          e.Rating,
		Season:          e.Season,
		Episode:         e.Episode,
		EpisodeTitle:    e.EpisodeTitle,
		DurationWatched: e.DurationWatched,
		Rewatch:         e.Rewatch,
		Notes:           e.Notes,
	}
}

// watchlistResponse はウォッチリスト項目のAPIレスポンス。
type watchlistResponse struct {
	ID        int64            `json:"id"`
	ContentID int64            `json:"content_id"`
	Priority  int              `json:"priority"`
	Notes     string           `json:"notes,omitempty"`
	AddedAt   time.Time        `json:"added_at"`
	Content   *contentResponse `json:"content,omitempty"`
}

func toWatchlistResponse(e *model.WatchlistEntry) watchlistResponse {
	return watchlistResponse{
		ID:        e.ID,
		ContentID: e.ContentID,
		Priority:  e.Priority,
		Notes:     e.Notes,
		AddedAt:   e.AddedAt,
	}
}

type bucketResponse struct {
	Bucket        string   `json:"bucket"`
	Views         int      `json:"views"`
	AverageRating *float64 `json:"average_rating,omitempty"`
}

func toBucketResponses(buckets []model.BucketStat) []bucketResponse {
	out := make([]bucketResponse, len(buckets))
	for i, b := range buckets {
		out[i] = bucketResponse{Bucket: b.Bucket.Format(dateLayout), Views: b.Views, AverageRating: b.AverageRating}
	}
	return out
}

type genreResponse struct {
	Genre string `json:"genre"`
	Views int    `json:"views"`
}

type userStatsResponse struct {
	From          string           `json:"from"`
	To            string           `json:"to"`
	TotalViews    int              `json:"total_views"`
	MovieViews    int              `json:"movie_views"`
	SeriesViews   int              `json:"series_views"`
	AverageRating *float64         `json:"average_rating,omitempty"`
	TopGenres     []genreResponse  `json:"top_genres"`
	Monthly       []bucketResponse `json:"monthly"`
}

func toUserStatsResponse(s *model.UserStats) userStatsResponse {
	genres := make([]genreResponse, len(s.TopGenres))
	for i, g := range s.TopGenres {
		genres[i] = genreResponse{Genre: g.Genre, Views: g.Views}
	}
	return userStatsResponse{
		From:          s.From.Format(dateLayout),
		To:            s.To.Format(dateLayout),
		TotalViews:    s.TotalViews,
		MovieViews:    s.MovieViews,
		SeriesViews:   s.SeriesViews,
		AverageRating: s.AverageRating,
		TopGenres:     genres,
		Monthly:       toBucketResponses(s.Monthly),
	}
}

type contentViewsResponse struct {
	ContentID int64  `json:"content_id"`
	Title     string `json:"title"`
	Kind      string `json:"kind"`
	Views     int    `json:"views"`
}

type ratedContentResponse struct {
	ContentID     int64   `json:"content_id"`
	Title         string  `json:"title"`
	Kind          string  `json:"kind"`
	AverageRating float64 `json:"average_rating"`
	Ratings       int     `json:"ratings"`
}

type contentStatsResponse struct {
	TopMovies    []contentViewsResponse `json:"top_movies"`
	TopSeries    []contentViewsResponse `json:"top_series"`
	HighestRated []ratedContentResponse `json:"highest_rated"`
}

func toContentViewsResponses(items []model.ContentViews) []contentViewsResponse {
	out := make([]contentViewsResponse, len(items))
	for i, c := range items {
		out[i] = contentViewsResponse{ContentID: c.ContentID, Title: c.Title, Kind: string(c.Kind), Views: c.Views}
	}
	return out
}

func toContentStatsResponse(s *model.ContentStats) contentStatsResponse {
	rated := make([]ratedContentResponse, len(s.HighestRated))
	for i, c := range s.HighestRated {
		rated[i] = ratedContentResponse{
			ContentID:     c.ContentID,
			Title:         c.Title,
			Kind:          string(c.Kind),
			AverageRating: c.AverageRating,
			Ratings:       c.Ratings,
		}
	}
	return contentStatsResponse{
		TopMovies:    toContentViewsResponses(s.TopMovies),
		TopSeries:    toContentViewsResponses(s.TopSeries),
		HighestRated: rated,
	}
}

type overviewResponse struct {
	TotalUsers    int              `json:"total_users"`
	ActiveUsers   int              `json:"active_users"`
	TotalContent  int              `json:"total_content"`
	TotalViews    int              `json:"total_views"`
	ContentByKind map[string]int   `json:"content_by_kind"`
	DailyActivity []bucketResponse `json:"daily_activity"`
}

func toOverviewResponse(o *model.SystemOverview) overviewResponse {
	byKind := make(map[string]int, len(o.ContentByKind))
	for k, v := range o.ContentByKind {
		byKind[string(k)] = v
	}
	return overviewResponse{
		TotalUsers:    o.TotalUsers,
		ActiveUsers:   o.ActiveUsers,
		TotalContent:  o.TotalContent,
		TotalViews:    o.TotalViews,
		ContentByKind: byKind,
		DailyActivity: toBucketResponses(o.DailyActivity),
	}
}
