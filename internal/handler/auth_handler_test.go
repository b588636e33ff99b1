package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/sentilens/internal/auth"
	"github.com/hitoshi/sentilens/internal/model"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn            func(ctx context.Context, params auth.RegisterParams) (*model.PublicUser, error)
	validateCredentialsFn func(ctx context.Context, username, password string) (*model.PublicUser, error)
	loginFn               func(user *model.PublicUser) (*auth.LoginResult, error)
}

func (m *mockAuthService) Register(ctx context.Context, params auth.RegisterParams) (*model.PublicUser, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, params)
	}
	return &model.PublicUser{ID: "user-1", Username: params.Username, Email: params.Email, Role: model.RoleViewer}, nil
}

func (m *mockAuthService) ValidateCredentials(ctx context.Context, username, password string) (*model.PublicUser, error) {
	if m.validateCredentialsFn != nil {
		return m.validateCredentialsFn(ctx, username, password)
	}
	return nil, nil
}

func (m *mockAuthService) Login(user *model.PublicUser) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(user)
	}
	return &auth.LoginResult{AccessToken: "token", ExpiresAt: time.Now().Add(time.Hour), User: user}, nil
}

// fakeLoginRecorder は記録されたログイン結果を保持する。
type fakeLoginRecorder struct {
	results []string
}

func (f *fakeLoginRecorder) RecordLogin(result string) {
	f.results = append(f.results, result)
}

// --- POST /api/auth/register テスト ---

func TestAuthHandler_Register_Success(t *testing.T) {
	var got auth.RegisterParams
	svc := &mockAuthService{
		registerFn: func(_ context.Context, params auth.RegisterParams) (*model.PublicUser, error) {
			got = params
			return &model.PublicUser{ID: "user-1", Username: params.Username, Email: params.Email, Role: model.RoleAnalyst}, nil
		},
	}
	h := NewAuthHandler(svc, nil)

	req := jsonRequest(http.MethodPost, "/api/auth/register",
		`{"username":"alice","email":"alice@example.com","password":"password123","role":"analyst"}`)
	w := httptest.NewRecorder()
	h.Register(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, http.StatusCreated, w.Body.String())
	}
	if got.Username != "alice" || got.Role != model.RoleAnalyst {
		t.Errorf("params = %+v", got)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body["id"] != "user-1" {
		t.Errorf("id = %v, want user-1", body["id"])
	}
	if _, ok := body["password"]; ok {
		t.Error("response must not contain password")
	}
}

func TestAuthHandler_Register_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "ユーザー名が短い", body: `{"username":"al","email":"a@example.com","password":"password123"}`},
		{name: "メールアドレス不正", body: `{"username":"alice","email":"not-an-email","password":"password123"}`},
		{name: "パスワードが短い", body: `{"username":"alice","email":"a@example.com","password":"short"}`},
		{name: "adminは指定できない", body: `{"username":"alice","email":"a@example.com","password":"password123","role":"admin"}`},
		{name: "未知のフィールド", body: `{"username":"alice","email":"a@example.com","password":"password123","extra":1}`},
		{name: "不正なJSON", body: `{"username":`},
		{name: "空のボディ", body: ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockAuthService{
				registerFn: func(context.Context, auth.RegisterParams) (*model.PublicUser, error) {
					called = true
					return nil, nil
				},
			}
			h := NewAuthHandler(svc, nil)

			w := httptest.NewRecorder()
			h.Register(w, jsonRequest(http.MethodPost, "/api/auth/register", tt.body))

			assertError(t, w, http.StatusBadRequest, model.ErrCodeInvalidRequest)
			if called {
				t.Error("service must not be called on invalid input")
			}
		})
	}
}

func TestAuthHandler_Register_Conflict(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(context.Context, auth.RegisterParams) (*model.PublicUser, error) {
			return nil, model.NewUserConflictError("")
		},
	}
	h := NewAuthHandler(svc, nil)

	w := httptest.NewRecorder()
	h.Register(w, jsonRequest(http.MethodPost, "/api/auth/register",
		`{"username":"alice","email":"a@example.com","password":"password123"}`))

	assertError(t, w, http.StatusConflict, model.ErrCodeUserConflict)
}

// --- POST /api/auth/login テスト ---

func TestAuthHandler_Login_Success(t *testing.T) {
	user := &model.PublicUser{ID: "user-1", Username: "alice", Role: model.RoleAdmin}
	svc := &mockAuthService{
		validateCredentialsFn: func(_ context.Context, username, password string) (*model.PublicUser, error) {
			if username != "alice" || password != "password123" {
				t.Errorf("credentials = %q/%q", username, password)
			}
			return user, nil
		},
		loginFn: func(u *model.PublicUser) (*auth.LoginResult, error) {
			return &auth.LoginResult{AccessToken: "signed.jwt.token", ExpiresAt: time.Now().Add(time.Hour), User: u}, nil
		},
	}
	rec := &fakeLoginRecorder{}
	h := NewAuthHandler(svc, rec)

	w := httptest.NewRecorder()
	h.Login(w, jsonRequest(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"password123"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.AccessToken != "signed.jwt.token" || body.User.ID != "user-1" {
		t.Errorf("body = %+v", body)
	}
	if len(rec.results) != 1 || rec.results[0] != "success" {
		t.Errorf("recorded = %v, want [success]", rec.results)
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	loginCalled := false
	svc := &mockAuthService{
		loginFn: func(*model.PublicUser) (*auth.LoginResult, error) {
			loginCalled = true
			return nil, nil
		},
	}
	rec := &fakeLoginRecorder{}
	h := NewAuthHandler(svc, rec)

	w := httptest.NewRecorder()
	h.Login(w, jsonRequest(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"wrong"}`))

	assertError(t, w, http.StatusUnauthorized, model.ErrCodeInvalidCredentials)
	if loginCalled {
		t.Error("Login must not be called for invalid credentials")
	}
	if len(rec.results) != 1 || rec.results[0] != "failure" {
		t.Errorf("recorded = %v, want [failure]", rec.results)
	}
}

func TestAuthHandler_Login_RepositoryError(t *testing.T) {
	svc := &mockAuthService{
		validateCredentialsFn: func(context.Context, string, string) (*model.PublicUser, error) {
			return nil, errors.New("connection refused")
		},
	}
	h := NewAuthHandler(svc, nil)

	w := httptest.NewRecorder()
	h.Login(w, jsonRequest(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"password123"}`))

	assertError(t, w, http.StatusInternalServerError, model.ErrCodeInternal)
}

// --- GET /api/auth/profile テスト ---

func TestAuthHandler_Profile(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, nil)

	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil), "user-1", model.RoleAnalyst)
	w := httptest.NewRecorder()
	h.Profile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body profileResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.UserID != "user-1" || body.Role != model.RoleAnalyst {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthHandler_Profile_NoPrincipal(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, nil)

	w := httptest.NewRecorder()
	h.Profile(w, httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil))

	assertError(t, w, http.StatusUnauthorized, model.ErrCodeUnauthorized)
}
