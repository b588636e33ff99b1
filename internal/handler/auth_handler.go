// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/sentilens/internal/auth"
	"github.com/hitoshi/sentilens/internal/metrics"
	"github.com/hitoshi/sentilens/internal/middleware"
	"github.com/hitoshi/sentilens/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, params auth.RegisterParams) (*model.PublicUser, error)
	ValidateCredentials(ctx context.Context, username, password string) (*model.PublicUser, error)
	Login(user *model.PublicUser) (*auth.LoginResult, error)
}

// LoginRecorder はログイン試行の結果の記録先。
type LoginRecorder interface {
	RecordLogin(result string)
}

// AuthHandler は登録・ログイン・プロフィールのHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	recorder LoginRecorder
}

// NewAuthHandler はAuthHandlerを生成する。recorderはnilでもよい。
func NewAuthHandler(service AuthServiceInterface, recorder LoginRecorder) *AuthHandler {
	return &AuthHandler{
		service:  service,
		recorder: recorder,
	}
}

// registerRequest はユーザー登録リクエストのボディ。
// adminは登録時に指定できない（既存の管理者が昇格させる）。
type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=analyst viewer"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// profileResponse はトークンから復元した呼び出し元の情報。
type profileResponse struct {
	UserID   string     `json:"user_id"`
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
}

// Register はユーザーを登録する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if apiErr := decodeAndValidate(w, r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	user, err := h.service.Register(r.Context(), auth.RegisterParams{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     model.Role(req.Role),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Login はユーザー名とパスワードを検証し、アクセストークンを発行する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if apiErr := decodeAndValidate(w, r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	user, err := h.service.ValidateCredentials(r.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if user == nil {
		h.record(false)
		slog.InfoContext(r.Context(), "login failed")
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
		return
	}

	result, err := h.service.Login(user)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.record(true)
	writeJSON(w, http.StatusOK, result)
}

// Profile はトークンに含まれる呼び出し元の情報を返す。
// GET /api/auth/profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{UserID: p.UserID, Username: p.Username, Role: p.Role})
}

func (h *AuthHandler) record(success bool) {
	if h.recorder == nil {
		return
	}
	if success {
		h.recorder.RecordLogin(metrics.LoginSucceeded)
	} else {
		h.recorder.RecordLogin(metrics.LoginFailed)
	}
}
