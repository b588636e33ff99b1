// Package auth はユーザー登録、資格情報の検証、アクセストークンの発行を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/sentilens/internal/model"
	"github.com/hitoshi/sentilens/internal/repository"
)

// dummyPassword はユーザーが存在しない場合の照合に使うパスワード。
const dummyPassword = "sentilens-dummy-password"

// RegisterParams はユーザー登録の入力。
// Roleが空の場合はviewerとして登録する。
type RegisterParams struct {
	Username string
	Email    string
	Password string
	Role     model.Role
}

// LoginResult はログイン成功時の応答。
type LoginResult struct {
	AccessToken string            `json:"access_token"`
	ExpiresAt   time.Time         `json:"expires_at"`
	User        *model.PublicUser `json:"user"`
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	hasher   PasswordHasher
	tokens   *TokenIssuer
	logger   *slog.Logger
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, hasher PasswordHasher, tokens *TokenIssuer, logger *slog.Logger) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		tokens:   tokens,
		logger:   logger,
		now:      time.Now,
	}
}

// Register はユーザーを登録する。
// ユーザー名またはメールアドレスのどちらかが既存ユーザーと重複する場合はConflictを返す。
func (s *Service) Register(ctx context.Context, params RegisterParams) (*model.PublicUser, error) {
	role := params.Role
	if role == "" {
		role = model.RoleViewer
	}
	if !role.Valid() {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("未定義のロールです: %s", role))
	}

	username := strings.TrimSpace(params.Username)
	email := strings.ToLower(strings.TrimSpace(params.Email))

	byName, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}
	if byName != nil {
		return nil, model.NewUserConflictError("")
	}
	byEmail, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if byEmail != nil {
		return nil, model.NewUserConflictError("")
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// 事前確認と保存の間に同じ値で登録された場合
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewUserConflictError("")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return user.Public(), nil
}

// ValidateCredentials はユーザー名とパスワードを照合する。
// ユーザーが存在しない場合もパスワード不一致の場合もnil, nilを返す。
// 存在しない場合もダミーハッシュとの照合を行い、応答時間を揃える。
func (s *Service) ValidateCredentials(ctx context.Context, username, password string) (*model.PublicUser, error) {
	user, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}

	if user == nil {
		if hash := s.getDummyHash(); hash != "" {
			_ = s.hasher.Compare(hash, password)
		}
		return nil, nil
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if !errors.Is(err, ErrPasswordMismatch) {
			s.logger.Warn("password comparison failed",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, nil
	}

	return user.Public(), nil
}

// Login は検証済みユーザーのアクセストークンを発行する。
// パスワードの再検証は行わない。
func (s *Service) Login(user *model.PublicUser) (*LoginResult, error) {
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: token, ExpiresAt: expiresAt, User: user}, nil
}

// VerifyToken はアクセストークンを検証し、クレームを返す。
func (s *Service) VerifyToken(token string) (*Claims, error) {
	return s.tokens.Verify(token)
}

func (s *Service) getDummyHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Error("failed to prepare dummy hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
