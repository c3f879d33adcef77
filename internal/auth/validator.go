package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ptonlix/gohumanloophub/internal/cache"
	"github.com/ptonlix/gohumanloophub/internal/metrics"
	"github.com/ptonlix/gohumanloophub/types"
)

// =============================================================================
// 🔐 认证校验器
// =============================================================================

const (
	apiKeyCachePrefix = "auth:apikey:"
	apiKeyCacheTTL    = 5 * time.Minute
)

// Validator 认证校验器
//
// 调用方走 X-API-Key，管理端走 Bearer JWT。cache 与 collector 均可为 nil，
// 为 nil 时退化为纯数据库查找。
type Validator struct {
	db        *gorm.DB
	cache     *cache.Manager
	collector *metrics.Collector
	secret    []byte
	tokenTTL  time.Duration
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// NewValidator 创建认证校验器
func NewValidator(db *gorm.DB, cacheManager *cache.Manager, collector *metrics.Collector, secret string, tokenTTL time.Duration, logger *zap.Logger) *Validator {
	return &Validator{
		db:        db,
		cache:     cacheManager,
		collector: collector,
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		cacheTTL:  apiKeyCacheTTL,
		logger:    logger.With(zap.String("component", "auth")),
	}
}

// WithAPIKeyCacheTTL 覆盖 API Key 身份缓存的有效期
func (v *Validator) WithAPIKeyCacheTTL(ttl time.Duration) *Validator {
	if ttl > 0 {
		v.cacheTTL = ttl
	}
	return v
}

// =============================================================================
// 🔑 API Key 认证
// =============================================================================

// ValidateAPIKey 校验调用方 API Key，返回归属账户的身份
//
// 命中缓存时跳过两次 SELECT，last_used_at 的刷新总是执行。
func (v *Validator) ValidateAPIKey(ctx context.Context, key string) (*Identity, error) {
	if key == "" {
		return nil, types.NewError(types.ErrAuthentication, "API Key required")
	}

	if id, ok := v.cachedIdentity(ctx, key); ok {
		v.touchLastUsed(ctx, key)
		return id, nil
	}

	var apiKey APIKey
	err := v.db.WithContext(ctx).Where("key = ? AND is_active = ?", key, true).First(&apiKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewError(types.ErrAuthentication, "Invalid API Key")
		}
		return nil, types.NewError(types.ErrInternalError, "failed to look up API key").WithCause(err)
	}

	var user User
	err = v.db.WithContext(ctx).Where("id = ?", apiKey.OwnerID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewError(types.ErrNotFound, "User not found")
		}
		return nil, types.NewError(types.ErrInternalError, "failed to look up user").WithCause(err)
	}
	if !user.IsActive {
		return nil, types.NewError(types.ErrInvalidRequest, "Inactive user").WithHTTPStatus(http.StatusBadRequest)
	}

	id := identityOf(&user)
	v.storeIdentity(ctx, key, id)
	v.touchLastUsed(ctx, key)
	return id, nil
}

// RevokeAPIKey 吊销 API Key 并使缓存失效
func (v *Validator) RevokeAPIKey(ctx context.Context, key string) error {
	err := v.db.WithContext(ctx).Model(&APIKey{}).Where("key = ?", key).Update("is_active", false).Error
	if err != nil {
		return types.NewError(types.ErrInternalError, "failed to revoke API key").WithCause(err)
	}
	if v.cache != nil {
		if err := v.cache.Delete(ctx, apiKeyCachePrefix+key); err != nil {
			v.logger.Warn("failed to invalidate API key cache", zap.Error(err))
		}
	}
	return nil
}

func (v *Validator) cachedIdentity(ctx context.Context, key string) (*Identity, bool) {
	if v.cache == nil {
		return nil, false
	}
	var id Identity
	if err := v.cache.GetJSON(ctx, apiKeyCachePrefix+key, &id); err != nil {
		if !cache.IsCacheMiss(err) {
			v.logger.Warn("API key cache lookup failed", zap.Error(err))
		}
		if v.collector != nil {
			v.collector.RecordCacheMiss("api_key")
		}
		return nil, false
	}
	if v.collector != nil {
		v.collector.RecordCacheHit("api_key")
	}
	return &id, true
}

func (v *Validator) storeIdentity(ctx context.Context, key string, id *Identity) {
	if v.cache == nil {
		return
	}
	if err := v.cache.SetJSON(ctx, apiKeyCachePrefix+key, id, v.cacheTTL); err != nil {
		v.logger.Warn("failed to cache API key identity", zap.Error(err))
	}
}

// touchLastUsed 刷新 last_used_at，失败只记日志不影响认证结果
func (v *Validator) touchLastUsed(ctx context.Context, key string) {
	now := time.Now().UTC()
	err := v.db.WithContext(ctx).Model(&APIKey{}).Where("key = ?", key).UpdateColumn("last_used_at", now).Error
	if err != nil {
		v.logger.Warn("failed to update API key last_used_at", zap.Error(err))
	}
}

// =============================================================================
// 🎫 管理端 JWT 认证
// =============================================================================

// Login 用邮箱密码换取会话令牌
func (v *Validator) Login(ctx context.Context, email, password string) (string, error) {
	var user User
	err := v.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", incorrectCredentialsError()
		}
		return "", types.NewError(types.ErrInternalError, "failed to look up user").WithCause(err)
	}
	if !VerifyPassword(password, user.HashedPassword) {
		return "", incorrectCredentialsError()
	}
	if !user.IsActive {
		return "", types.NewError(types.ErrInvalidRequest, "Inactive user").WithHTTPStatus(http.StatusBadRequest)
	}
	return v.IssueToken(user.ID)
}

func incorrectCredentialsError() error {
	return types.NewError(types.ErrAuthentication, "Incorrect email or password").
		WithHTTPStatus(http.StatusBadRequest)
}

// IssueToken 为账户签发 HS256 会话令牌
func (v *Validator) IssueToken(userID uuid.UUID) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(v.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", types.NewError(types.ErrInternalError, "failed to sign token").WithCause(err)
	}
	return signed, nil
}

// ValidateToken 校验 Bearer 令牌并加载账户身份
func (v *Validator) ValidateToken(ctx context.Context, tokenStr string) (*Identity, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method: " + token.Method.Alg())
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		v.logger.Debug("token validation failed", zap.Error(err))
		return nil, credentialsError()
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, credentialsError()
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, credentialsError()
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		return nil, credentialsError()
	}

	var user User
	err = v.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewError(types.ErrNotFound, "User not found")
		}
		return nil, types.NewError(types.ErrInternalError, "failed to look up user").WithCause(err)
	}
	if !user.IsActive {
		return nil, types.NewError(types.ErrInvalidRequest, "Inactive user").WithHTTPStatus(http.StatusBadRequest)
	}

	return identityOf(&user), nil
}

// RequireSuperuser 管理端接口要求超级管理员
func RequireSuperuser(id *Identity) error {
	if !id.IsSuperuser {
		return types.NewError(types.ErrForbidden, "The user doesn't have enough privileges")
	}
	return nil
}

func credentialsError() error {
	return types.NewError(types.ErrAuthentication, "Could not validate credentials").
		WithHTTPStatus(http.StatusForbidden)
}
