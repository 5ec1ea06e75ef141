// Package dialogue はチャットボットの対話フローを有限状態機械として実装する。
// 対話はResolverとRecorderの操作を呼び出すだけで、ドメインロジックは持たない。
package dialogue

import (
	"fmt"
	"time"

	"github.com/hitoshi/watchlog/internal/model"
)

// State は対話の状態を表す。
type State string

const (
	StateIdle                  State = "idle"
	StateAwaitingQuery         State = "awaiting_query"
	StateAwaitingSelection     State = "awaiting_selection"
	StateAwaitingAction        State = "awaiting_action"
	StateAwaitingReview        State = "awaiting_review"
	StateAwaitingWatchedAt     State = "awaiting_watched_at"
	StateAwaitingRating        State = "awaiting_rating"
	StateAwaitingWatchlistPick State = "awaiting_watchlist_pick"
)

// Valid は既知の状態かどうかを返す。
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateAwaitingQuery, StateAwaitingSelection, StateAwaitingAction,
		StateAwaitingReview, StateAwaitingWatchedAt, StateAwaitingRating, StateAwaitingWatchlistPick:
		return true
	}
	return false
}

// Candidate は検索結果またはウォッチリストから選ばれたコンテンツの要約。
// 検索結果は保存前の場合があるため、ContentIDが0のこともある。
type Candidate struct {
	ContentID int64             `json:"content_id,omitempty"`
	IMDbID    string            `json:"imdb_id,omitempty"`
	Title     string            `json:"title"`
	Kind      model.ContentKind `json:"kind"`
	Year      *int              `json:"year,omitempty"`
}

// Label は選択肢として表示する文字列を返す。
func (c Candidate) Label() string {
	if c.Year != nil {
		return fmt.Sprintf("%s (%d, %s)", c.Title, *c.Year, c.Kind)
	}
	return fmt.Sprintf("%s (%s)", c.Title, c.Kind)
}

// content はEnsureContentExistsに渡す候補レコードを組み立てる。
func (c Candidate) content() *model.Content {
	return &model.Content{
		ID:          c.ContentID,
		IMDbID:      c.IMDbID,
		Title:       c.Title,
		Kind:        c.Kind,
		ReleaseYear: c.Year,
	}
}

func candidateFrom(c model.Content) Candidate {
	return Candidate{
		ContentID: c.ID,
		IMDbID:    c.IMDbID,
		Title:     c.Title,
		Kind:      c.Kind,
		Year:      c.ReleaseYear,
	}
}

// WatchlistOption はウォッチリスト選択肢の1件。
type WatchlistOption struct {
	EntryID   int64     `json:"entry_id"`
	Candidate Candidate `json:"candidate"`
}

// Session はチャットごとの対話状態と、状態間で受け渡すペイロード。
type Session struct {
	State            State             `json:"-"`
	Token            string            `json:"token,omitempty"`
	Candidates       []Candidate       `json:"candidates,omitempty"`
	Watchlist        []WatchlistOption `json:"watchlist,omitempty"`
	Selected         *Candidate        `json:"selected,omitempty"`
	WatchlistEntryID int64             `json:"watchlist_entry_id,omitempty"`
	Review           string            `json:"review,omitempty"`
	WatchedAt        *time.Time        `json:"watched_at,omitempty"`
}

// newSession はidle状態の空セッションを返す。
func newSession() *Session {
	return &Session{State: StateIdle}
}

// reset はペイロードを破棄してidleに戻す。
func (s *Session) reset() {
	*s = Session{State: StateIdle}
}
