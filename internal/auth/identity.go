package auth

import (
	"context"

	"github.com/google/uuid"
)

// =============================================================================
// 🪪 请求身份
// =============================================================================

// Identity 认证通过后附着在请求上下文中的身份
type Identity struct {
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name,omitempty"`
	IsSuperuser bool      `json:"is_superuser"`
}

// Label 身份的展示名：优先全名，缺省回退邮箱
func (id *Identity) Label() string {
	if id.FullName != "" {
		return id.FullName
	}
	return id.Email
}

type identityKey struct{}

// WithIdentity 把身份注入上下文
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom 从上下文取出身份，认证中间件之外返回 false
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok
}

func identityOf(u *User) *Identity {
	id := &Identity{
		UserID:      u.ID,
		Email:       u.Email,
		IsSuperuser: u.IsSuperuser,
	}
	if u.FullName != nil {
		id.FullName = *u.FullName
	}
	return id
}
