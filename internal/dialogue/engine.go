package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/watchlog/internal/history"
	"github.com/hitoshi/watchlog/internal/metrics"
	"github.com/hitoshi/watchlog/internal/model"
)

// ContentResolver は対話から利用するコンテンツ解決の操作。
type ContentResolver interface {
	Search(ctx context.Context, query string, kind *model.ContentKind) ([]model.Content, error)
	EnsureContentExists(ctx context.Context, candidate *model.Content) (*model.Content, error)
}

// EventRecorder は対話から利用する記録操作。
type EventRecorder interface {
	RecordWatch(ctx context.Context, userID int64, in history.WatchInput) (*model.ViewEvent, error)
	AddToWatchlist(ctx context.Context, userID int64, in history.WatchlistInput) (*model.WatchlistEntry, error)
	PromoteWatchlistToHistory(ctx context.Context, userID, entryID int64, in history.PromoteInput) (*model.ViewEvent, bool, error)
	ListWatchlist(ctx context.Context, userID int64) ([]model.WatchlistEntryWithContent, error)
	ListHistory(ctx context.Context, userID int64, limit, offset int) ([]model.ViewEventWithContent, error)
}

// StatsReader はユーザー統計の取得操作。
type StatsReader interface {
	UserStats(ctx context.Context, userID int64, from, to time.Time) (*model.UserStats, error)
}

// UserResolver はチャットIDからユーザーを解決する。
type UserResolver interface {
	GetOrCreate(ctx context.Context, chatID string, profile model.UserProfile) (*model.User, error)
}

// Reply はボットの応答。
type Reply struct {
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
	State   State    `json:"state"`
}

// 選択肢として表示する操作
const (
	ActionWatched   = "watched"
	ActionWatchlist = "watchlist"
	skipInput       = "-"
	todayInput      = "today"

	// historyPageSize は /history で表示する件数。
	historyPageSize = 10
)

var watchedAtLayouts = []string{"2006-01-02", "02.01.2006", "2006/01/02"}

// Engine は対話の状態遷移を処理する。
type Engine struct {
	store    SessionStore
	resolver ContentResolver
	recorder EventRecorder
	users    UserResolver
	stats    StatsReader
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine はEngineの新しいインスタンスを生成する。
func NewEngine(store SessionStore, resolver ContentResolver, recorder EventRecorder, users UserResolver, stats StatsReader, m metrics.MetricsCollector, logger *slog.Logger) *Engine {
	if m == nil {
		m = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		resolver: resolver,
		recorder: recorder,
		users:    users,
		stats:    stats,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle はチャットからの1メッセージを処理し、応答を返す。
// セッションの状態はメッセージごとにSessionStoreへ保存される。
func (e *Engine) Handle(ctx context.Context, chatID string, profile model.UserProfile, text string) (*Reply, error) {
	user, err := e.users.GetOrCreate(ctx, chatID, profile)
	if err != nil {
		return nil, err
	}

	sess, err := e.store.Load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = newSession()
	}

	from := sess.State
	text = strings.TrimSpace(text)

	var reply *Reply
	if strings.HasPrefix(text, "/") {
		reply, err = e.handleCommand(ctx, user, sess, text)
	} else {
		reply, err = e.handleInput(ctx, user, sess, text)
	}
	if err != nil {
		return nil, err
	}

	if sess.State == StateIdle {
		if err := e.store.Delete(ctx, chatID); err != nil {
			return nil, err
		}
	} else {
		if sess.Token == "" {
			sess.Token = uuid.NewString()
		}
		if err := e.store.Save(ctx, chatID, sess); err != nil {
			return nil, err
		}
	}

	if from != sess.State {
		e.metrics.RecordDialogueTransition(string(from), string(sess.State))
		e.logger.Debug("対話状態が遷移しました",
			slog.String("chat_id", chatID),
			slog.String("session", sess.Token),
			slog.String("from", string(from)),
			slog.String("to", string(sess.State)),
		)
	}

	reply.State = sess.State
	return reply, nil
}

func (e *Engine) handleCommand(ctx context.Context, user *model.User, sess *Session, text string) (*Reply, error) {
	cmd, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "/start":
		sess.reset()
		return &Reply{Text: "ようこそ。/search で作品を検索し、/watchlist でウォッチリスト、/history で視聴履歴、/stats で統計を表示します。"}, nil
	case "/cancel":
		sess.reset()
		return &Reply{Text: "操作をキャンセルしました。"}, nil
	case "/search":
		sess.reset()
		if arg != "" {
			return e.search(ctx, sess, arg)
		}
		sess.State = StateAwaitingQuery
		return &Reply{Text: "作品のタイトルを入力してください。"}, nil
	case "/watchlist":
		sess.reset()
		return e.showWatchlist(ctx, user, sess)
	case "/history":
		sess.reset()
		return e.showHistory(ctx, user)
	case "/stats":
		sess.reset()
		return e.showStats(ctx, user)
	default:
		return &Reply{Text: "不明なコマンドです。/search、/watchlist、/history、/stats、/cancel が使えます。"}, nil
	}
}

func (e *Engine) handleInput(ctx context.Context, user *model.User, sess *Session, text string) (*Reply, error) {
	if sessionLost(sess) {
		sess.reset()
		return &Reply{Text: "セッションの有効期限が切れました。/search からやり直してください。"}, nil
	}

	switch sess.State {
	case StateAwaitingQuery:
		return e.search(ctx, sess, text)
	case StateAwaitingSelection:
		return e.selectCandidate(ctx, sess, text)
	case StateAwaitingAction:
		return e.chooseAction(ctx, user, sess, text)
	case StateAwaitingReview:
		if text != skipInput {
			sess.Review = text
		}
		sess.State = StateAwaitingWatchedAt
		return &Reply{Text: "視聴日を入力してください（例: 2024-05-01）。今日の場合は today。", Options: []string{todayInput}}, nil
	case StateAwaitingWatchedAt:
		return e.setWatchedAt(sess, text)
	case StateAwaitingRating:
		return e.finish(ctx, user, sess, text)
	case StateAwaitingWatchlistPick:
		return e.pickWatchlistEntry(sess, text)
	default:
		sess.reset()
		return &Reply{Text: "/search で作品を検索できます。"}, nil
	}
}

func (e *Engine) search(ctx context.Context, sess *Session, query string) (*Reply, error) {
	results, err := e.resolver.Search(ctx, query, nil)
	if err != nil {
		if msg, ok := validationMessage(err); ok {
			sess.State = StateAwaitingQuery
			return &Reply{Text: msg}, nil
		}
		return nil, err
	}
	if len(results) == 0 {
		sess.State = StateAwaitingQuery
		return &Reply{Text: "見つかりませんでした。別のタイトルを入力してください。"}, nil
	}

	sess.Candidates = make([]Candidate, len(results))
	options := make([]string, len(results))
	for i, c := range results {
		sess.Candidates[i] = candidateFrom(c)
		options[i] = fmt.Sprintf("%d. %s", i+1, sess.Candidates[i].Label())
	}
	sess.State = StateAwaitingSelection
	return &Reply{Text: "番号で作品を選んでください。", Options: options}, nil
}

func (e *Engine) selectCandidate(ctx context.Context, sess *Session, text string) (*Reply, error) {
	idx, ok := parseChoice(text, len(sess.Candidates))
	if !ok {
		return &Reply{Text: fmt.Sprintf("1から%dの番号を入力してください。", len(sess.Candidates))}, nil
	}

	content, err := e.resolver.EnsureContentExists(ctx, sess.Candidates[idx].content())
	if err != nil {
		return nil, err
	}
	selected := candidateFrom(*content)
	sess.Selected = &selected
	sess.Candidates = nil
	sess.State = StateAwaitingAction
	return &Reply{
		Text:    fmt.Sprintf("%s を選択しました。視聴済みとして記録しますか、ウォッチリストに追加しますか？", selected.Label()),
		Options: []string{ActionWatched, ActionWatchlist},
	}, nil
}

func (e *Engine) chooseAction(ctx context.Context, user *model.User, sess *Session, text string) (*Reply, error) {
	switch strings.ToLower(text) {
	case ActionWatched, "1":
		sess.State = StateAwaitingReview
		return &Reply{Text: "感想を入力してください。省略する場合は - を送ってください。", Options: []string{skipInput}}, nil
	case ActionWatchlist, "2":
		selected := sess.Selected
		sess.reset()
		_, err := e.recorder.AddToWatchlist(ctx, user.ID, history.WatchlistInput{ContentID: selected.ContentID})
		if err != nil {
			if msg, ok := validationMessage(err); ok {
				return &Reply{Text: msg}, nil
			}
			return nil, err
		}
		return &Reply{Text: fmt.Sprintf("%s をウォッチリストに追加しました。", selected.Title)}, nil
	default:
		return &Reply{Text: "watched か watchlist を選んでください。", Options: []string{ActionWatched, ActionWatchlist}}, nil
	}
}

func (e *Engine) setWatchedAt(sess *Session, text string) (*Reply, error) {
	now := e.now()
	var at time.Time
	if strings.EqualFold(text, todayInput) || text == skipInput {
		at = now
	} else {
		parsed, ok := parseDate(text)
		if !ok {
			return &Reply{Text: "日付の形式が正しくありません（例: 2024-05-01）。", Options: []string{todayInput}}, nil
		}
		if parsed.After(now) {
			return &Reply{Text: "未来の日付は指定できません。", Options: []string{todayInput}}, nil
		}
		at = parsed
	}

	sess.WatchedAt = &at
	sess.State = StateAwaitingRating
	return &Reply{Text: "1から10で評価してください。省略する場合は - を送ってください。", Options: []string{skipInput}}, nil
}

func (e *Engine) finish(ctx context.Context, user *model.User, sess *Session, text string) (*Reply, error) {
	var rating *float64
	if text != skipInput {
		v, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", "."), 64)
		if err != nil {
			return &Reply{Text: "評価は数値で入力してください。"}, nil
		}
		if err := history.ValidateRating(&v); err != nil {
			return &Reply{Text: "評価は1から10の範囲で入力してください。"}, nil
		}
		rating = &v
	}

	selected := *sess.Selected
	entryID := sess.WatchlistEntryID
	review := sess.Review
	watchedAt := sess.WatchedAt
	sess.reset()

	var err error
	if entryID > 0 {
		_, _, err = e.recorder.PromoteWatchlistToHistory(ctx, user.ID, entryID, history.PromoteInput{
			Rating:    rating,
			Notes:     review,
			WatchedAt: watchedAt,
		})
	} else {
		_, err = e.recorder.RecordWatch(ctx, user.ID, history.WatchInput{
			ContentID: selected.ContentID,
			Rating:    rating,
			Notes:     review,
			WatchedAt: watchedAt,
		})
	}
	if err != nil {
		if msg, ok := validationMessage(err); ok {
			return &Reply{Text: msg}, nil
		}
		return nil, err
	}
	return &Reply{Text: fmt.Sprintf("%s の視聴を記録しました。", selected.Title)}, nil
}

func (e *Engine) showWatchlist(ctx context.Context, user *model.User, sess *Session) (*Reply, error) {
	entries, err := e.recorder.ListWatchlist(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return &Reply{Text: "ウォッチリストは空です。"}, nil
	}

	sess.Watchlist = make([]WatchlistOption, len(entries))
	options := make([]string, len(entries))
	for i, entry := range entries {
		sess.Watchlist[i] = WatchlistOption{EntryID: entry.ID, Candidate: candidateFrom(entry.Content)}
		options[i] = fmt.Sprintf("%d. %s", i+1, sess.Watchlist[i].Candidate.Label())
	}
	sess.State = StateAwaitingWatchlistPick
	return &Reply{Text: "視聴済みにする作品を番号で選んでください。", Options: options}, nil
}

func (e *Engine) showHistory(ctx context.Context, user *model.User) (*Reply, error) {
	events, err := e.recorder.ListHistory(ctx, user.ID, historyPageSize, 0)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return &Reply{Text: "視聴履歴はまだありません。"}, nil
	}

	lines := make([]string, 0, len(events)+1)
	lines = append(lines, fmt.Sprintf("最近の視聴履歴（%d件）:", len(events)))
	for _, ev := range events {
		line := fmt.Sprintf("%s %s", ev.WatchedAt.Format("2006-01-02"), candidateFrom(ev.Content).Label())
		if ev.Rating != nil {
			line += fmt.Sprintf(" ★%.1f", *ev.Rating)
		}
		if ev.Rewatch {
			line += " (再視聴)"
		}
		lines = append(lines, line)
	}
	return &Reply{Text: strings.Join(lines, "\n")}, nil
}

// showStats は直近30日間のユーザー統計を返す。
func (e *Engine) showStats(ctx context.Context, user *model.User) (*Reply, error) {
	if e.stats == nil {
		return &Reply{Text: "統計は利用できません。"}, nil
	}
	st, err := e.stats.UserStats(ctx, user.ID, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	if st.TotalViews == 0 {
		return &Reply{Text: "直近30日間の視聴記録はありません。"}, nil
	}

	lines := []string{
		"直近30日間の統計:",
		fmt.Sprintf("視聴数: %d（映画 %d / シリーズ %d）", st.TotalViews, st.MovieViews, st.SeriesViews),
	}
	if st.AverageRating != nil {
		lines = append(lines, fmt.Sprintf("平均評価: %.1f", *st.AverageRating))
	}
	if len(st.TopGenres) > 0 {
		genres := make([]string, len(st.TopGenres))
		for i, g := range st.TopGenres {
			genres[i] = fmt.Sprintf("%s (%d)", g.Genre, g.Views)
		}
		lines = append(lines, "よく見るジャンル: "+strings.Join(genres, ", "))
	}
	return &Reply{Text: strings.Join(lines, "\n")}, nil
}

func (e *Engine) pickWatchlistEntry(sess *Session, text string) (*Reply, error) {
	idx, ok := parseChoice(text, len(sess.Watchlist))
	if !ok {
		return &Reply{Text: fmt.Sprintf("1から%dの番号を入力してください。", len(sess.Watchlist))}, nil
	}

	picked := sess.Watchlist[idx]
	sess.Watchlist = nil
	sess.Selected = &picked.Candidate
	sess.WatchlistEntryID = picked.EntryID
	sess.State = StateAwaitingReview
	return &Reply{Text: "感想を入力してください。省略する場合は - を送ってください。", Options: []string{skipInput}}, nil
}

// sessionLost は現在の状態に必要なペイロードが失われているかどうかを返す。
func sessionLost(s *Session) bool {
	switch s.State {
	case StateAwaitingSelection:
		return len(s.Candidates) == 0
	case StateAwaitingWatchlistPick:
		return len(s.Watchlist) == 0
	case StateAwaitingAction, StateAwaitingReview, StateAwaitingWatchedAt, StateAwaitingRating:
		return s.Selected == nil
	}
	return false
}

// parseChoice は "2" や "2. Title" のような入力から0始まりの添字を返す。
func parseChoice(text string, n int) (int, bool) {
	head, _, _ := strings.Cut(text, ".")
	v, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil || v < 1 || v > n {
		return 0, false
	}
	return v - 1, true
}

func parseDate(text string) (time.Time, bool) {
	for _, layout := range watchedAtLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// validationMessage はユーザーに返すべき検証・重複エラーのメッセージを取り出す。
func validationMessage(err error) (string, bool) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return "", false
	}
	switch apiErr.Category {
	case model.CategoryValidation, model.CategoryConflict, model.CategoryNotFound:
		return apiErr.Message, true
	}
	return "", false
}
