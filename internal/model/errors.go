// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, analysis, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest          = "INVALID_REQUEST"
	ErrCodeUnauthorized            = "UNAUTHORIZED"
	ErrCodeInvalidCredentials      = "INVALID_CREDENTIALS"
	ErrCodeInsufficientRole        = "INSUFFICIENT_ROLE"
	ErrCodeUserNotFound            = "USER_NOT_FOUND"
	ErrCodeUserConflict            = "USER_CONFLICT"
	ErrCodeAnalysisNotFound        = "ANALYSIS_NOT_FOUND"
	ErrCodeAnalysisForbidden       = "ANALYSIS_FORBIDDEN"
	ErrCodeInvalidStatusTransition = "INVALID_STATUS_TRANSITION"
	ErrCodeRateLimited             = "RATE_LIMITED"
	ErrCodeInternal                = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエスト内容の検証エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してから再度お試しください。",
	}
}

// NewUnauthorizedError は認証が必要な場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はユーザー名またはパスワードが一致しない場合のエラーを生成する。
// ユーザーの存在有無は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認してから再度ログインしてください。",
	}
}

// NewInsufficientRoleError はロールが不足している場合のエラーを生成する。
func NewInsufficientRoleError() *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientRole,
		Message:  "この操作を実行する権限がありません。",
		Category: "auth",
		Action:   "管理者に権限の付与を依頼してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("ユーザーが見つかりません: %s", userID),
		Category: "auth",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewUserConflictError はユーザー名またはメールアドレスが既に使われている場合のエラーを生成する。
// fieldが空の場合はどちらが重複したかを明示しない。
func NewUserConflictError(field string) *APIError {
	msg := "このユーザー名またはメールアドレスは既に登録されています。"
	switch field {
	case "email":
		msg = "このメールアドレスは既に登録されています。"
	case "username":
		msg = "このユーザー名は既に登録されています。"
	}
	return &APIError{
		Code:     ErrCodeUserConflict,
		Message:  msg,
		Category: "validation",
		Action:   "別のユーザー名またはメールアドレスを指定してください。",
	}
}

// NewAnalysisNotFoundError は分析が見つからない場合のエラーを生成する。
func NewAnalysisNotFoundError(source Source, analysisID string) *APIError {
	return &APIError{
		Code:     ErrCodeAnalysisNotFound,
		Message:  fmt.Sprintf("%s の分析が見つかりません: %s", source.Label(), analysisID),
		Category: "analysis",
		Action:   "分析IDを確認してください。",
	}
}

// NewAnalysisForbiddenError は所有者以外が分析にアクセスした場合のエラーを生成する。
func NewAnalysisForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeAnalysisForbidden,
		Message:  "この分析にアクセスする権限がありません。",
		Category: "analysis",
		Action:   "自分が作成した分析を指定してください。",
	}
}

// NewInvalidStatusTransitionError は許可されていないステータス遷移のエラーを生成する。
func NewInvalidStatusTransitionError(from, to AnalysisStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatusTransition,
		Message:  fmt.Sprintf("ステータスを %s から %s に変更することはできません。", from, to),
		Category: "analysis",
		Action:   "現在のステータスを確認してください。",
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエスト数が上限を超えました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
