package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/watchlog/internal/model"
)

// 検索モード
const (
	searchModeSingle = "single"
	searchModeMulti  = "multi"
)

// ContentServiceInterface はコンテンツハンドラーが必要とするサービスインターフェース。
type ContentServiceInterface interface {
	// Resolve はクエリに一致するコンテンツを1件返す。見つからない場合は nil, nil。
	Resolve(ctx context.Context, query string, kind *model.ContentKind) (*model.Content, error)
	// Search はローカルと外部プロバイダを合わせた候補を最大5件返す。
	Search(ctx context.Context, query string, kind *model.ContentKind) ([]model.Content, error)
	EnsureContentExists(ctx context.Context, candidate *model.Content) (*model.Content, error)
	Get(ctx context.Context, id int64) (*model.Content, error)
	GetByIMDbID(ctx context.Context, imdbID string) (*model.Content, error)
	List(ctx context.Context, q model.ContentQuery) ([]model.Content, error)
	Categories(ctx context.Context) ([]model.Category, error)
}

// ContentHandler はコンテンツ参照・登録のHTTPハンドラー。
type ContentHandler struct {
	service ContentServiceInterface
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(service ContentServiceInterface) *ContentHandler {
	return &ContentHandler{service: service}
}

// Search はタイトル検索を処理する。
// GET /api/v1/content/search?query=&kind=&mode=single|multi
func (h *ContentHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("query"))
	if query == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidQueryError())
		return
	}
	kind, ok := model.ParseContentKind(q.Get("kind"))
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidKindError(q.Get("kind")))
		return
	}

	switch q.Get("mode") {
	case searchModeSingle:
		c, err := h.service.Resolve(r.Context(), query, kind)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if c == nil {
			writeAPIErrorResponse(w, http.StatusNotFound, model.NewContentNotFoundError(query))
			return
		}
		writeJSON(w, http.StatusOK, toContentResponse(c))
	case "", searchModeMulti:
		items, err := h.service.Search(r.Context(), query, kind)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toContentResponses(items))
	default:
		writeInvalidRequest(w, "modeはsingleまたはmultiを指定してください。")
	}
}

// List はコンテンツ一覧を返す。
// GET /api/v1/content?kind=&category_id=&q=&limit=&offset=
func (h *ContentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, ok := model.ParseContentKind(q.Get("kind"))
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidKindError(q.Get("kind")))
		return
	}
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		writeInvalidRequest(w, "limitは整数で指定してください。")
		return
	}
	offset, err := intQuery(r, "offset", 0)
	if err != nil {
		writeInvalidRequest(w, "offsetは整数で指定してください。")
		return
	}

	query := model.ContentQuery{
		Text:   strings.TrimSpace(q.Get("q")),
		Kind:   kind,
		Limit:  limit,
		Offset: offset,
	}
	if raw := q.Get("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeInvalidRequest(w, "category_idは整数で指定してください。")
			return
		}
		query.CategoryID = &id
	}

	items, err := h.service.List(r.Context(), query)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContentResponses(items))
}

// Get はコンテンツ詳細を返す。
// GET /api/v1/content/{id}
func (h *ContentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContentResponse(c))
}

// GetByIMDbID は外部IDでコンテンツを返す。
// GET /api/v1/content/imdb/{imdbID}
func (h *ContentHandler) GetByIMDbID(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetByIMDbID(r.Context(), chi.URLParam(r, "imdbID"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContentResponse(c))
}

// Create はコンテンツを登録する。同じ外部IDのレコードが既にあればそれを返す。
// POST /api/v1/content
func (h *ContentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.service.EnsureContentExists(r.Context(), req.toModel())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContentResponse(c))
}

// Categories はカテゴリ一覧を返す。
// GET /api/v1/categories
func (h *ContentHandler) Categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.service.Categories(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	out := make([]categoryResponse, len(cats))
	for i, c := range cats {
		out[i] = categoryResponse{ID: c.ID, Name: c.Name, Description: c.Description}
	}
	writeJSON(w, http.StatusOK, out)
}
