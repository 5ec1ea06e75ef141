package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/watchlog/internal/dialogue"
	"github.com/hitoshi/watchlog/internal/model"
)

func TestUserHandler_GetOrCreate(t *testing.T) {
	svc := &mockUserService{
		getOrCreateFn: func(ctx context.Context, chatID string, profile model.UserProfile) (*model.User, error) {
			assert.Equal(t, "42", chatID)
			assert.Equal(t, "akiko", profile.Username)
			return &model.User{ID: 7, ChatID: chatID, Username: profile.Username}, nil
		},
	}
	w := httptest.NewRecorder()
	NewUserHandler(svc).GetOrCreate(w, httptest.NewRequest(http.MethodPost, "/api/v1/users", bytes.NewBufferString(`{"chat_id":"42","username":"akiko"}`)))

	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[userResponse](t, w)
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, "akiko", got.Username)
}

func TestUserHandler_GetOrCreate_InvalidChatID(t *testing.T) {
	svc := &mockUserService{
		getOrCreateFn: func(ctx context.Context, chatID string, profile model.UserProfile) (*model.User, error) {
			return nil, model.NewInvalidChatIDError()
		},
	}
	w := httptest.NewRecorder()
	NewUserHandler(svc).GetOrCreate(w, httptest.NewRequest(http.MethodPost, "/api/v1/users", bytes.NewBufferString(`{"chat_id":""}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.ErrCodeInvalidChatID, parseAPIErrorResponse(t, w).Code)
}

func TestUserHandler_Get_NotFound(t *testing.T) {
	w := httptest.NewRecorder()
	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/users/3", nil), "id", "3")
	NewUserHandler(&mockUserService{}).Get(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, model.ErrCodeUserNotFound, parseAPIErrorResponse(t, w).Code)
}

func TestBotHandler_HandleMessage(t *testing.T) {
	engine := &mockDialogueEngine{
		handleFn: func(ctx context.Context, chatID string, profile model.UserProfile, text string) (*dialogue.Reply, error) {
			assert.Equal(t, "100", chatID)
			assert.Equal(t, "/search arrival", text)
			assert.Equal(t, "Taro", profile.FirstName)
			return &dialogue.Reply{
				Text:    "Choose a title",
				Options: []string{"1. Arrival (2016, movie)"},
				State:   dialogue.StateAwaitingSelection,
			}, nil
		},
	}
	body := `{"chat_id":"100","text":"/search arrival","first_name":"Taro"}`
	w := httptest.NewRecorder()
	NewBotHandler(engine).HandleMessage(w, httptest.NewRequest(http.MethodPost, "/api/v1/bot/messages", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[dialogue.Reply](t, w)
	assert.Equal(t, dialogue.StateAwaitingSelection, got.State)
	assert.Len(t, got.Options, 1)
}

func TestBotHandler_HandleMessage_MissingChatID(t *testing.T) {
	w := httptest.NewRecorder()
	NewBotHandler(&mockDialogueEngine{}).HandleMessage(w, httptest.NewRequest(http.MethodPost, "/api/v1/bot/messages", bytes.NewBufferString(`{"text":"hi"}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
