package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/watchlog/internal/dialogue"
	"github.com/hitoshi/watchlog/internal/model"
)

// DialogueEngine はチャットメッセージを処理する対話エンジンのインターフェース。
type DialogueEngine interface {
	Handle(ctx context.Context, chatID string, profile model.UserProfile, text string) (*dialogue.Reply, error)
}

// BotHandler はチャットプラットフォームからのメッセージを受け付けるHTTPハンドラー。
type BotHandler struct {
	engine DialogueEngine
}

// NewBotHandler はBotHandlerを生成する。
func NewBotHandler(engine DialogueEngine) *BotHandler {
	return &BotHandler{engine: engine}
}

type botMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// HandleMessage は1メッセージを対話エンジンに渡し、応答を返す。
// POST /api/v1/bot/messages
func (h *BotHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req botMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ChatID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidChatIDError())
		return
	}

	reply, err := h.engine.Handle(r.Context(), req.ChatID, model.UserProfile{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, req.Text)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
