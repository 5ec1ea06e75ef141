package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hitoshi/watchlog/internal/repository"
)

// SessionStore は対話セッションの保存先。
// 見つからない場合は nil, nil を返す。
type SessionStore interface {
	Load(ctx context.Context, chatID string) (*Session, error)
	Save(ctx context.Context, chatID string, s *Session) error
	Delete(ctx context.Context, chatID string) error
}

// RepoStore はdialogue_sessionsテーブルにJSONペイロードとして保存するSessionStore。
type RepoStore struct {
	repo repository.DialogueSessionRepository
}

// NewRepoStore はRepoStoreを生成する。
func NewRepoStore(repo repository.DialogueSessionRepository) *RepoStore {
	return &RepoStore{repo: repo}
}

// Load はセッションを読み込む。未知の状態や壊れたペイロードはidleとして扱う。
func (s *RepoStore) Load(ctx context.Context, chatID string) (*Session, error) {
	state, payload, ok, err := s.repo.Load(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("対話セッションの読み込みに失敗しました: %w", err)
	}
	if !ok {
		return nil, nil
	}

	sess := newSession()
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, sess); err != nil {
			return newSession(), nil
		}
	}
	sess.State = State(state)
	if !sess.State.Valid() {
		return newSession(), nil
	}
	return sess, nil
}

// Save はセッションを保存する。
func (s *RepoStore) Save(ctx context.Context, chatID string, sess *Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("対話セッションのエンコードに失敗しました: %w", err)
	}
	if err := s.repo.Save(ctx, chatID, string(sess.State), payload); err != nil {
		return fmt.Errorf("対話セッションの保存に失敗しました: %w", err)
	}
	return nil
}

// Delete はセッションを削除する。
func (s *RepoStore) Delete(ctx context.Context, chatID string) error {
	if err := s.repo.Delete(ctx, chatID); err != nil {
		return fmt.Errorf("対話セッションの削除に失敗しました: %w", err)
	}
	return nil
}

// MemoryStore はプロセス内メモリに保持するSessionStore。
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (m *MemoryStore) Load(_ context.Context, chatID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[chatID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, chatID string, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[chatID] = *s
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, chatID)
	return nil
}

var (
	_ SessionStore = (*RepoStore)(nil)
	_ SessionStore = (*MemoryStore)(nil)
)
