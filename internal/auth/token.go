package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/sentilens/internal/model"
)

// TokenConfig はアクセストークン発行の設定。
// 署名鍵はプロセス全体のデフォルト値を持たず、必ず呼び出し側から渡す。
type TokenConfig struct {
	Secret    []byte
	ExpiresIn time.Duration
}

// Claims はアクセストークンに含めるクレーム。
// subjectにユーザーIDを入れる。
type Claims struct {
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
	jwt.RegisteredClaims
}

// UserID はsubjectに入っているユーザーIDを返す。
func (c *Claims) UserID() string {
	return c.Subject
}

// ErrInvalidToken はトークンの検証に失敗したことを表す。
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenIssuer はHS256署名のJWTを発行・検証する。
type TokenIssuer struct {
	config TokenConfig
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。署名鍵が空の場合はエラーを返す。
func NewTokenIssuer(config TokenConfig) (*TokenIssuer, error) {
	if len(config.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if config.ExpiresIn <= 0 {
		return nil, fmt.Errorf("token expiry must be positive: %s", config.ExpiresIn)
	}
	return &TokenIssuer{config: config, now: time.Now}, nil
}

// Issue はユーザーのアクセストークンを発行し、有効期限とともに返す。
func (t *TokenIssuer) Issue(user *model.PublicUser) (string, time.Time, error) {
	issuedAt := t.now()
	expiresAt := issuedAt.Add(t.config.ExpiresIn)

	claims := Claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.config.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify はトークンの署名と有効期限を検証し、クレームを返す。
// HS256以外の署名方式は受け付けない。
func (t *TokenIssuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return t.config.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
