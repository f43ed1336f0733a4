package auth

import (
	"context"
	"crypto/rsa"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/supportrag/config"
	"github.com/BaSui01/supportrag/types"
)

// 默认签发方与受众，与下发 token 的账户服务保持一致
const (
	DefaultIssuer   = "toxicity-api"
	DefaultAudience = "toxicity-client"
)

// Identity 通过校验的调用方身份
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Claims token 载荷。账户服务写 userId，兼容 user_id 与 sub。
type Claims struct {
	UserID    string `json:"userId,omitempty"`
	UserIDAlt string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) identity() Identity {
	id := c.UserID
	if id == "" {
		id = c.UserIDAlt
	}
	if id == "" {
		id = c.Subject
	}
	return Identity{UserID: id, Email: c.Email}
}

// Verifier 校验 HS256 / RS256 签名的 token
type Verifier struct {
	secret []byte
	rsaKey *rsa.PublicKey
	parser *jwt.Parser
	logger *zap.Logger
}

// NewVerifier 按配置创建校验器。公钥无法解析时返回错误；
// 密钥与公钥都为空时同样返回错误，调用方据此决定是否关闭认证。
func NewVerifier(cfg config.JWTConfig, logger *zap.Logger) (*Verifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Verifier{
		secret: []byte(cfg.Secret),
		logger: logger.With(zap.String("component", "auth")),
	}

	if cfg.PublicKey != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKey))
		if err != nil {
			return nil, types.NewError(types.ErrInvalidCredential, "invalid RSA public key").WithCause(err)
		}
		v.rsaKey = key
	}
	if len(v.secret) == 0 && v.rsaKey == nil {
		return nil, types.NewError(types.ErrInvalidCredential, "no JWT secret or public key configured")
	}

	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	audience := cfg.Audience
	if audience == "" {
		audience = DefaultAudience
	}

	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	return v, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	switch token.Method.Alg() {
	case jwt.SigningMethodHS256.Alg():
		if len(v.secret) == 0 {
			return nil, types.NewError(types.ErrInvalidCredential, "HMAC secret not configured")
		}
		return v.secret, nil
	case jwt.SigningMethodRS256.Alg():
		if v.rsaKey == nil {
			return nil, types.NewError(types.ErrInvalidCredential, "RSA public key not configured")
		}
		return v.rsaKey, nil
	default:
		return nil, types.NewError(types.ErrInvalidCredential, "unexpected signing method: "+token.Method.Alg())
	}
}

// Verify 校验签名、签发方、受众与过期时间并返回身份
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, invalid("authentication token required", nil)
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, v.keyFunc)
	if err != nil {
		v.logger.Debug("token rejected", zap.Error(err))
		return Identity{}, invalid("invalid or expired token", err)
	}
	if !token.Valid {
		return Identity{}, invalid("invalid or expired token", nil)
	}

	id := claims.identity()
	if id.UserID == "" {
		return Identity{}, invalid("token has no user id", nil)
	}
	return id, nil
}

func invalid(msg string, cause error) *types.Error {
	e := types.NewError(types.ErrInvalidCredential, msg).WithHTTPStatus(http.StatusUnauthorized)
	if cause != nil {
		e = e.WithCause(cause)
	}
	return e
}

// =============================================================================
// 上下文
// =============================================================================

type identityKey struct{}

// WithIdentity 将身份写入上下文
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom 读取上下文中的身份
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
