// Package omdb は外部メタデータプロバイダ（OMDb API）のクライアントを提供する。
package omdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/hitoshi/watchlog/internal/metrics"
	"github.com/hitoshi/watchlog/internal/model"
	"github.com/hitoshi/watchlog/internal/security"
)

const (
	// DefaultBaseURL はOMDb APIのエンドポイント。
	DefaultBaseURL = "http://www.omdbapi.com/"
	// DefaultTimeout は1回の呼び出しに許す最大時間。
	DefaultTimeout = 10 * time.Second
	// DefaultRatePerSec は1秒あたりの最大呼び出し回数。
	DefaultRatePerSec = 5
)

// Config はクライアントの設定。
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
}

// Client はOMDb APIのクライアント。
// APIキーが未設定の場合は全ての呼び出しが「結果なし」になる。
type Client struct {
	http    *resty.Client
	apiKey  string
	timeout time.Duration
	limiter *rate.Limiter
	guard   *security.OutboundGuard
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientにはSSRF対策済みのクライアントを渡すことを想定する。
func NewClient(httpClient *http.Client, cfg Config, guard *security.OutboundGuard, m metrics.MetricsCollector, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = DefaultRatePerSec
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if guard == nil {
		guard = security.NewOutboundGuard()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	rc := resty.NewWithClient(httpClient).
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "watchlog/1.0")

	return &Client{
		http:    rc,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		guard:   guard,
		metrics: m,
		logger:  logger,
	}
}

// Enabled はAPIキーが設定されているかどうかを返す。
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// LookupByTitle はタイトル（と任意の種別・公開年）でコンテンツを検索する。
// 見つからない場合やAPIキー未設定の場合は nil, nil を返す。
// 通信失敗・タイムアウト・不正なレスポンスはエラーを返す。
func (c *Client) LookupByTitle(ctx context.Context, title string, kind *model.ContentKind, year int) (*model.Content, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}

	params := map[string]string{"t": title}
	if kind != nil {
		params["type"] = string(*kind)
	}
	if year > 0 {
		params["y"] = strconv.Itoa(year)
	}

	content, err := c.lookup(ctx, params)
	if err != nil {
		kindLabel := ""
		if kind != nil {
			kindLabel = string(*kind)
		}
		c.logger.Warn("外部メタデータの検索に失敗しました",
			slog.String("title", title),
			slog.String("kind", kindLabel),
			slog.String("error", err.Error()),
		)
	}
	return content, err
}

// LookupByID はIMDb IDでコンテンツを取得する。
func (c *Client) LookupByID(ctx context.Context, imdbID string) (*model.Content, error) {
	imdbID = strings.TrimSpace(imdbID)
	if imdbID == "" {
		return nil, nil
	}

	content, err := c.lookup(ctx, map[string]string{"i": imdbID})
	if err != nil {
		c.logger.Warn("外部メタデータの取得に失敗しました",
			slog.String("imdb_id", imdbID),
			slog.String("error", err.Error()),
		)
	}
	return content, err
}

func (c *Client) lookup(ctx context.Context, params map[string]string) (*model.Content, error) {
	if !c.Enabled() {
		c.logger.Warn("OMDb APIキーが設定されていないため外部検索をスキップします")
		c.metrics.RecordProviderRequest(metrics.OutcomeDisabled, 0)
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.RecordProviderRequest(metrics.OutcomeError, 0)
		return nil, fmt.Errorf("レート制限の待機に失敗しました: %w", err)
	}

	start := time.Now()
	content, err := c.fetch(ctx, params)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		c.metrics.RecordProviderRequest(metrics.OutcomeError, elapsed)
	case content == nil:
		c.metrics.RecordProviderRequest(metrics.OutcomeNotFound, elapsed)
	default:
		c.metrics.RecordProviderRequest(metrics.OutcomeFound, elapsed)
	}
	return content, err
}

func (c *Client) fetch(ctx context.Context, params map[string]string) (*model.Content, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam("apikey", c.apiKey).
		Get("")
	if err != nil {
		return nil, fmt.Errorf("OMDb APIの呼び出しに失敗しました: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode()}
	}

	var raw Title
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("OMDb APIのレスポンスのパースに失敗しました: %w", err)
	}

	if raw.Response == "False" {
		c.logger.Debug("OMDb APIで該当なし", slog.String("reason", raw.Error))
		return nil, nil
	}

	content := Normalize(raw)
	if content == nil {
		return nil, ErrMalformedResponse
	}
	content.PosterURL = c.guard.SafePublicURL(content.PosterURL)
	return content, nil
}

// StatusError はOMDb APIが200以外のステータスを返した場合のエラー。
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("OMDb APIがステータス %d を返しました", e.StatusCode)
}

// Temporary は再試行で回復し得るステータス（429/5xx）かどうかを返す。
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// ErrMalformedResponse はレスポンスに必須項目が欠けている場合のエラー。
var ErrMalformedResponse = errors.New("OMDb APIのレスポンスにタイトルが含まれていません")
