package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/sentilens/internal/middleware"
	"github.com/hitoshi/sentilens/internal/model"
	"github.com/hitoshi/sentilens/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Get はユーザーの公開情報を取得する。
	Get(ctx context.Context, userID string) (*model.PublicUser, error)
	// Update はユーザー情報を部分更新する。
	Update(ctx context.Context, userID string, params user.UpdateParams) (*model.PublicUser, error)
	// Withdraw はユーザーを削除する。所有する分析と予測も削除される。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// updateProfileRequest は本人によるプロフィール更新リクエストのボディ。
type updateProfileRequest struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=50"`
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
}

// adminUpdateRequest は管理者によるユーザー更新リクエストのボディ。
type adminUpdateRequest struct {
	updateProfileRequest
	Role *string `json:"role" validate:"omitempty,oneof=admin analyst viewer"`
}

func (req updateProfileRequest) params() user.UpdateParams {
	return user.UpdateParams{Username: req.Username, Email: req.Email, Password: req.Password}
}

// GetMe は呼び出し元の登録情報を返す。
// GET /api/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	u, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// UpdateMe は呼び出し元のプロフィールを更新する。ロールは変更できない。
// PATCH /api/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req updateProfileRequest
	if apiErr := decodeAndValidate(w, r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	updated, err := h.service.Update(r.Context(), userID, req.params())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Withdraw は呼び出し元のユーザーを削除する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateUser は管理者が任意のユーザーを更新する。ロールも変更できる。
// PATCH /api/users/{id}
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(userID); err != nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError(userID))
		return
	}

	var req adminUpdateRequest
	if apiErr := decodeAndValidate(w, r, &req); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	params := req.params()
	if req.Role != nil {
		role := model.Role(*req.Role)
		params.Role = &role
	}

	updated, err := h.service.Update(r.Context(), userID, params)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
