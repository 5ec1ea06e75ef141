package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/watchlog/internal/model"
)

type mockUserResolver struct {
	userID   int64
	err      error
	gotChat  string
	gotProfs []model.UserProfile
}

func (m *mockUserResolver) GetOrCreate(_ context.Context, chatID string, profile model.UserProfile) (*model.User, error) {
	m.gotChat = chatID
	m.gotProfs = append(m.gotProfs, profile)
	if m.err != nil {
		return nil, m.err
	}
	return &model.User{ID: m.userID, ChatID: chatID}, nil
}

func TestIdentityMiddleware_ResolvesUser(t *testing.T) {
	users := &mockUserResolver{userID: 12}
	var got int64
	handler := NewIdentityMiddleware(users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := UserIDFromContext(r.Context())
		require.NoError(t, err)
		got = id
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me/watchlist", nil)
	req.Header.Set(HeaderChatID, "555")
	req.Header.Set(HeaderUsername, "kenji")
	req.Header.Set(HeaderFirstName, "Kenji")
	w := serve(handler, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(12), got)
	assert.Equal(t, "555", users.gotChat)
	require.Len(t, users.gotProfs, 1)
	assert.Equal(t, model.UserProfile{Username: "kenji", FirstName: "Kenji"}, users.gotProfs[0])
}

func TestIdentityMiddleware_MissingHeader_Returns401(t *testing.T) {
	users := &mockUserResolver{userID: 1}
	handler := NewIdentityMiddleware(users)(okHandler())

	w := serve(handler, httptest.NewRequest(http.MethodGet, "/api/me/history", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, users.gotProfs, "resolver must not be called")
}

func TestIdentityMiddleware_ResolverErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", model.NewInvalidChatIDError(), http.StatusBadRequest, model.ErrCodeInvalidChatID},
		{"internal", errors.New("connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewIdentityMiddleware(&mockUserResolver{err: tt.err})(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/api/me/history", nil)
			req.Header.Set(HeaderChatID, "x")

			w := serve(handler, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decodeErrorBody(t, w).Code)
		})
	}
}

func TestUserIDFromContext_Missing(t *testing.T) {
	_, err := UserIDFromContext(context.Background())
	assert.Error(t, err)

	id, err := UserIDFromContext(ContextWithUserID(context.Background(), 3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
}
