package dialogue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/watchlog/internal/model"
	"github.com/hitoshi/watchlog/internal/repository"
)

// mockSessionRepo はDialogueSessionRepositoryのインメモリモック。
type mockSessionRepo struct {
	states   map[string]string
	payloads map[string][]byte
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{states: map[string]string{}, payloads: map[string][]byte{}}
}

func (m *mockSessionRepo) Load(_ context.Context, chatID string) (string, []byte, bool, error) {
	state, ok := m.states[chatID]
	return state, m.payloads[chatID], ok, nil
}

func (m *mockSessionRepo) Save(_ context.Context, chatID, state string, payload []byte) error {
	m.states[chatID] = state
	m.payloads[chatID] = payload
	return nil
}

func (m *mockSessionRepo) Delete(_ context.Context, chatID string) error {
	delete(m.states, chatID)
	delete(m.payloads, chatID)
	return nil
}

var _ repository.DialogueSessionRepository = (*mockSessionRepo)(nil)

func TestRepoStore_RoundTrip(t *testing.T) {
	repo := newMockSessionRepo()
	store := NewRepoStore(repo)
	ctx := context.Background()

	in := &Session{
		State:    StateAwaitingAction,
		Token:    "tok",
		Selected: &Candidate{ContentID: 5, Title: "Heat", Kind: model.KindMovie},
	}
	require.NoError(t, store.Save(ctx, "c", in))
	assert.Equal(t, "awaiting_action", repo.states["c"])

	out, err := store.Load(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRepoStore_MissingAndCorrupt(t *testing.T) {
	repo := newMockSessionRepo()
	store := NewRepoStore(repo)
	ctx := context.Background()

	got, err := store.Load(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)

	repo.states["bad"] = "awaiting_query"
	repo.payloads["bad"] = []byte("{not json")
	got, err = store.Load(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, got.State)

	repo.states["old"] = "awaiting_genre"
	repo.payloads["old"] = []byte("{}")
	got, err = store.Load(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, got.State)
}
