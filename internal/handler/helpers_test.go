package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/sentilens/internal/middleware"
	"github.com/hitoshi/sentilens/internal/model"
)

// withPrincipal はリクエストコンテキストに認証済みユーザーを注入する。
func withPrincipal(r *http.Request, userID string, role model.Role) *http.Request {
	p := &middleware.Principal{UserID: userID, Username: "user-" + userID, Role: role}
	return r.WithContext(middleware.ContextWithPrincipal(r.Context(), p))
}

// withURLParam はchiのURLパラメータを注入する。
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decodeErrorBody はエラーレスポンスのボディを読み取る。
func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// assertError はステータスコードとエラーコードを検証する。
func assertError(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if w.Code != wantStatus {
		t.Errorf("status = %d, want %d (body=%s)", w.Code, wantStatus, w.Body.String())
		return
	}
	if body := decodeErrorBody(t, w); body.Code != wantCode {
		t.Errorf("code = %q, want %q", body.Code, wantCode)
	}
}
