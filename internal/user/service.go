// Package user はユーザー識別（get-or-create）のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/watchlog/internal/model"
	"github.com/hitoshi/watchlog/internal/repository"
)

// maxChatIDLength はチャットIDの最大長（users.chat_id の列長）。
const maxChatIDLength = 64

// maxProfileLength はプロフィール項目の最大長。
const maxProfileLength = 100

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		userRepo: userRepo,
		logger:   logger,
	}
}

// GetOrCreate はチャットIDに対応するユーザーを返し、存在しなければ作成する。
// 既存ユーザーのプロフィールは新しいヒントで上書きしない。
// 同じチャットIDで同時に呼ばれても1ユーザーに収束する。
func (s *Service) GetOrCreate(ctx context.Context, chatID string, profile model.UserProfile) (*model.User, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" || len(chatID) > maxChatIDLength {
		return nil, model.NewInvalidChatIDError()
	}

	existing, err := s.userRepo.FindByChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	u, created, err := s.userRepo.InsertOrGet(ctx, &model.User{
		ChatID:    chatID,
		Username:  clip(profile.Username),
		FirstName: clip(profile.FirstName),
		LastName:  clip(profile.LastName),
	})
	if err != nil {
		return nil, fmt.Errorf("ユーザーの登録に失敗しました: %w", err)
	}
	if created {
		s.logger.Info("ユーザーを登録しました",
			slog.Int64("user_id", u.ID),
			slog.String("chat_id", chatID),
		)
	}
	return u, nil
}

// Get は指定IDのユーザーを返す。存在しない場合はUSER_NOT_FOUNDエラー。
func (s *Service) Get(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxProfileLength {
		return string(r[:maxProfileLength])
	}
	return s
}
