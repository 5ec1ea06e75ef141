// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/watchlog/internal/model"
)

// 識別に使うリクエストヘッダー
const (
	HeaderChatID    = "X-Chat-ID"
	HeaderUsername  = "X-Username"
	HeaderFirstName = "X-First-Name"
	HeaderLastName  = "X-Last-Name"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// UserResolver はチャットIDからユーザーを解決するインターフェース。
type UserResolver interface {
	GetOrCreate(ctx context.Context, chatID string, profile model.UserProfile) (*model.User, error)
}

// NewIdentityMiddleware はX-Chat-IDヘッダーからユーザーを解決するミドルウェアを返す。
// 初回のチャットIDはその場でユーザーを作成する。ヘッダーが無い場合は401を返す。
func NewIdentityMiddleware(users UserResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			chatID := r.Header.Get(HeaderChatID)
			if chatID == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
					Code:     "UNAUTHORIZED",
					Message:  "ユーザーを識別できません。",
					Category: "auth",
					Action:   "X-Chat-IDヘッダーを指定してください。",
				})
				return
			}

			user, err := users.GetOrCreate(r.Context(), chatID, model.UserProfile{
				Username:  r.Header.Get(HeaderUsername),
				FirstName: r.Header.Get(HeaderFirstName),
				LastName:  r.Header.Get(HeaderLastName),
			})
			if err != nil {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) {
					WriteErrorResponse(w, http.StatusBadRequest, apiErr)
					return
				}
				slog.Error("failed to resolve user",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			if holder, ok := r.Context().Value(userHolderContextKey).(*userHolder); ok {
				holder.userID = user.ID
			}
			ctx := context.WithValue(r.Context(), userIDContextKey, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 識別ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	if !ok || userID == 0 {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
