package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIやチャットに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, not_found, conflict, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryValidation = "validation"
	CategoryNotFound   = "not_found"
	CategoryConflict   = "conflict"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeInvalidQuery       = "INVALID_QUERY"
	ErrCodeInvalidKind        = "INVALID_KIND"
	ErrCodeInvalidContent     = "INVALID_CONTENT"
	ErrCodeInvalidRating      = "INVALID_RATING"
	ErrCodeInvalidWatchedAt   = "INVALID_WATCHED_AT"
	ErrCodeInvalidPriority    = "INVALID_PRIORITY"
	ErrCodeInvalidGranularity = "INVALID_GRANULARITY"
	ErrCodeInvalidDateRange   = "INVALID_DATE_RANGE"
	ErrCodeInvalidChatID      = "INVALID_CHAT_ID"
	ErrCodeDuplicateWatchlist = "DUPLICATE_WATCHLIST"
	ErrCodeContentNotFound    = "CONTENT_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeHistoryNotFound    = "HISTORY_NOT_FOUND"
	ErrCodeWatchlistNotFound  = "WATCHLIST_NOT_FOUND"
)

// NewInvalidQueryError は検索クエリが空の場合のエラーを生成する。
func NewInvalidQueryError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuery,
		Message:  "検索キーワードが空です。",
		Category: CategoryValidation,
		Action:   "タイトルの一部を入力してください。",
	}
}

// NewInvalidKindError は無効なコンテンツ種別のエラーを生成する。
func NewInvalidKindError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidKind,
		Message:  fmt.Sprintf("無効なコンテンツ種別です: %s", kind),
		Category: CategoryValidation,
		Action:   "種別には movie または series を指定してください。",
	}
}

// NewInvalidContentError はコンテンツの必須項目が不足している場合のエラーを生成する。
func NewInvalidContentError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidContent,
		Message:  fmt.Sprintf("コンテンツ情報が不正です: %s", reason),
		Category: CategoryValidation,
		Action:   "タイトルを指定してください。",
	}
}

// NewInvalidRatingError は評価が範囲外の場合のエラーを生成する。
func NewInvalidRatingError(rating float64) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRating,
		Message:  fmt.Sprintf("評価が範囲外です: %g", rating),
		Category: CategoryValidation,
		Action:   fmt.Sprintf("評価は%gから%gの範囲で指定してください。", MinRating, MaxRating),
	}
}

// NewInvalidWatchedAtError は視聴日時が不正な場合のエラーを生成する。
func NewInvalidWatchedAtError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWatchedAt,
		Message:  fmt.Sprintf("視聴日時が不正です: %s", reason),
		Category: CategoryValidation,
		Action:   "未来ではない日付を YYYY-MM-DD 形式で指定してください。",
	}
}

// NewInvalidPriorityError は優先度が範囲外の場合のエラーを生成する。
func NewInvalidPriorityError(priority int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPriority,
		Message:  fmt.Sprintf("優先度が範囲外です: %d", priority),
		Category: CategoryValidation,
		Action:   fmt.Sprintf("優先度は%dから%dの範囲で指定してください。", MinPriority, MaxPriority),
	}
}

// NewInvalidGranularityError は無効な集計粒度のエラーを生成する。
func NewInvalidGranularityError(g string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidGranularity,
		Message:  fmt.Sprintf("無効な集計粒度です: %s", g),
		Category: CategoryValidation,
		Action:   "daily、weekly、monthly、yearly のいずれかを指定してください。",
	}
}

// NewInvalidDateRangeError は集計期間が不正な場合のエラーを生成する。
func NewInvalidDateRangeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDateRange,
		Message:  "集計期間の開始日が終了日より後になっています。",
		Category: CategoryValidation,
		Action:   "開始日と終了日を確認してください。",
	}
}

// NewInvalidChatIDError はチャットIDが未指定の場合のエラーを生成する。
func NewInvalidChatIDError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidChatID,
		Message:  "チャットIDが指定されていません。",
		Category: CategoryValidation,
		Action:   "X-Chat-ID ヘッダーまたは chat_id を指定してください。",
	}
}

// NewDuplicateWatchlistError は既にウォッチリストに存在するコンテンツを追加しようとした場合のエラーを生成する。
func NewDuplicateWatchlistError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateWatchlist,
		Message:  "このコンテンツは既にウォッチリストに追加されています。",
		Category: CategoryConflict,
		Action:   "ウォッチリストから該当コンテンツを確認してください。",
	}
}

// NewContentNotFoundError はコンテンツが見つからない場合のエラーを生成する。
func NewContentNotFoundError(ref string) *APIError {
	return &APIError{
		Code:     ErrCodeContentNotFound,
		Message:  fmt.Sprintf("指定されたコンテンツが見つかりません: %s", ref),
		Category: CategoryNotFound,
		Action:   "コンテンツIDを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: CategoryNotFound,
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewHistoryNotFoundError は視聴履歴が見つからない場合のエラーを生成する。
func NewHistoryNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeHistoryNotFound,
		Message:  fmt.Sprintf("指定された視聴履歴が見つかりません: %d", id),
		Category: CategoryNotFound,
		Action:   "視聴履歴IDを確認してください。",
	}
}

// NewWatchlistNotFoundError はウォッチリスト項目が見つからない場合のエラーを生成する。
func NewWatchlistNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeWatchlistNotFound,
		Message:  fmt.Sprintf("指定されたウォッチリスト項目が見つかりません: %d", id),
		Category: CategoryNotFound,
		Action:   "ウォッチリストIDを確認してください。",
	}
}
