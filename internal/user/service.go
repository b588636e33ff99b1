// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/sentilens/internal/model"
	"github.com/hitoshi/sentilens/internal/repository"
)

// PasswordHasher はパスワードのハッシュ化インターフェース。
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// UpdateParams はユーザー情報の部分更新の入力。
// nilの項目は変更しない。
type UpdateParams struct {
	Username *string
	Email    *string
	Password *string
	Role     *model.Role // 管理者による更新でのみ指定する
}

// Service はユーザー管理のサービス層。
// プロフィール更新と退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	hasher   PasswordHasher
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, hasher PasswordHasher, logger *slog.Logger) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		logger:   logger,
		now:      time.Now,
	}
}

// Get は指定IDのユーザーを返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.PublicUser, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(userID)
	}
	return user.Public(), nil
}

// Update はユーザー情報を部分更新する。
// ユーザー名、メールアドレスを変更する場合は項目ごとに重複を確認する。
func (s *Service) Update(ctx context.Context, userID string, params UpdateParams) (*model.PublicUser, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(userID)
	}

	if params.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*params.Email))
		if email != user.Email {
			existing, err := s.userRepo.FindByEmail(ctx, email)
			if err != nil {
				return nil, fmt.Errorf("failed to find user by email: %w", err)
			}
			if existing != nil {
				return nil, model.NewUserConflictError("email")
			}
			user.Email = email
		}
	}

	if params.Username != nil {
		username := strings.TrimSpace(*params.Username)
		if username != user.Username {
			existing, err := s.userRepo.FindByUsername(ctx, username)
			if err != nil {
				return nil, fmt.Errorf("failed to find user by username: %w", err)
			}
			if existing != nil {
				return nil, model.NewUserConflictError("username")
			}
			user.Username = username
		}
	}

	if params.Password != nil {
		hash, err := s.hasher.Hash(*params.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if params.Role != nil {
		if !params.Role.Valid() {
			return nil, model.NewInvalidRequestError(fmt.Sprintf("未定義のロールです: %s", *params.Role))
		}
		user.Role = *params.Role
	}

	user.UpdatedAt = s.now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewUserConflictError("")
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	s.logger.Info("user updated",
		slog.String("user_id", userID),
		slog.String("role", string(user.Role)),
	)
	return user.Public(), nil
}

// Withdraw はユーザーの退会処理を実行する。
// 所有する分析と予測はCASCADE削除される。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	deleted, err := s.userRepo.DeleteByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if !deleted {
		return model.NewUserNotFoundError(userID)
	}

	s.logger.Info("user withdrawn",
		slog.String("user_id", userID),
	)
	return nil
}
