// Package security 长连接握手与 REST 接口共用的鉴权网关
package security

import (
	"Murmur/internal/api/config"
	"Murmur/internal/pkg/apperr"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenMissing = apperr.ErrAuth.WithMessage("token is missing")
	ErrTokenInvalid = apperr.ErrAuth.WithMessage("token is invalid or expired")
	ErrTokenRevoked = apperr.ErrAuth.WithMessage("token has been revoked")
)

// Revocations 已注销 Token 的签名列表
type Revocations interface {
	IsRevoked(ctx context.Context, signature string) (bool, error)
	Revoke(ctx context.Context, signature string, ttl time.Duration) error
}

// Gate 校验 HS256 Token，把凭据解析成用户身份；revocations 为空时不检查注销
type Gate struct {
	secret      []byte
	issuer      string
	expiration  time.Duration
	revocations Revocations
	now         func() time.Time
}

func NewGate(cfg config.JWTConfig, revocations Revocations) *Gate {
	expiration := time.Duration(cfg.Expiration) * time.Hour
	if expiration <= 0 {
		expiration = 72 * time.Hour
	}
	return &Gate{
		secret:      []byte(cfg.Secret),
		issuer:      cfg.Issuer,
		expiration:  expiration,
		revocations: revocations,
		now:         time.Now,
	}
}

// GenerateToken 签发一个新的 Token
func (g *Gate) GenerateToken(userID uint64, roles []string) (string, error) {
	now := g.now()
	claims := &UserClaims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(g.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    g.issuer,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Authenticate 解析 Token，失败时一律返回 AuthError
func (g *Gate) Authenticate(ctx context.Context, tokenString string) (*UserClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	claims := &UserClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.now),
	}
	if g.issuer != "" {
		opts = append(opts, jwt.WithIssuer(g.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return g.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid.Wrap(err)
	}
	if claims.UserID == 0 {
		return nil, ErrTokenInvalid
	}

	if g.revocations != nil {
		signature, err := ExtractSignature(tokenString)
		if err != nil {
			return nil, ErrTokenInvalid.Wrap(err)
		}
		revoked, err := g.revocations.IsRevoked(ctx, signature)
		if err != nil {
			log.ErrorContext(ctx, "check token revocation failed", "err", err)
			return nil, apperr.ErrServer.Wrap(err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return claims, nil
}

// Revoke 注销 Token，记录保留到 Token 自然过期
func (g *Gate) Revoke(ctx context.Context, tokenString string) error {
	if g.revocations == nil {
		return nil
	}
	claims, err := g.Authenticate(ctx, tokenString)
	if err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			return nil
		}
		return err
	}
	signature, _ := ExtractSignature(tokenString)
	ttl := claims.ExpiresAt.Sub(g.now())
	return g.revocations.Revoke(ctx, signature, ttl)
}

// ExtractSignature 从 Token 字符串中提取签名
func ExtractSignature(tokenString string) (string, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return "", errors.New("malformed token")
	}
	return parts[2], nil
}

// BearerToken 从 Authorization 头中取出 Token
func BearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
