// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限ロールを表す。
type Role string

const (
	// RoleAdmin は全操作が可能な管理者ロール。予測データの登録も行える。
	RoleAdmin Role = "admin"
	// RoleAnalyst は分析を作成できるロール。
	RoleAnalyst Role = "analyst"
	// RoleViewer は閲覧のみ可能なロール。登録時のデフォルト。
	RoleViewer Role = "viewer"
)

// Valid はロールが定義済みの値かを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAnalyst, RoleViewer:
		return true
	}
	return false
}

// User はサービス利用ユーザーを表す。
// PasswordHashは外部に出さないため、API応答にはPublicUserを使う。
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string `json:"-"`
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser はパスワードハッシュを含まないユーザー表現。
type PublicUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Public はパスワードハッシュを除いたユーザー表現を返す。
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
