// Package auth provides internal authentication and identity management.
// This package is internal and should not be imported by external projects.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// =============================================================================
// 👤 账户模型
// =============================================================================

// User 账户记录
type User struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email          string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	FullName       *string   `gorm:"size:255" json:"full_name,omitempty"`
	HashedPassword string    `gorm:"size:255;not null" json:"-"`
	IsActive       bool      `gorm:"not null;default:true" json:"is_active"`
	IsSuperuser    bool      `gorm:"not null;default:false" json:"is_superuser"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName 表名
func (User) TableName() string {
	return "users"
}

// BeforeCreate 创建前分配 UUID 主键
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Label 用于 responded_by 字段的展示名：优先全名，缺省回退邮箱
func (u *User) Label() string {
	if u.FullName != nil && *u.FullName != "" {
		return *u.FullName
	}
	return u.Email
}

// APIKey 调用方 API Key 记录，归属某个账户
type APIKey struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Key        string     `gorm:"size:64;not null;uniqueIndex" json:"key"`
	OwnerID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_id"`
	Name       string     `gorm:"size:255;not null" json:"name"`
	IsActive   bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// TableName 表名
func (APIKey) TableName() string {
	return "api_keys"
}

// BeforeCreate 创建前分配 UUID 主键与密钥值
func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	if k.Key == "" {
		k.Key = GenerateAPIKey()
	}
	return nil
}

// GenerateAPIKey 生成 32 字节随机 API Key，URL 安全编码
func GenerateAPIKey() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// InitDatabase 迁移账户相关表结构
func InitDatabase(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &APIKey{})
}
