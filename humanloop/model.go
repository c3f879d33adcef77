package humanloop

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ptonlix/gohumanloophub/types"
)

// =============================================================================
// 📦 枚举定义
// =============================================================================

// LoopType 人机循环交互模式
type LoopType string

const (
	LoopTypeApproval     LoopType = "approval"     // 一次性审批（approved/rejected）
	LoopTypeInformation  LoopType = "information"  // 一次性信息获取
	LoopTypeConversation LoopType = "conversation" // 多轮对话
)

// Valid 检查循环类型是否合法
func (t LoopType) Valid() bool {
	switch t {
	case LoopTypeApproval, LoopTypeInformation, LoopTypeConversation:
		return true
	}
	return false
}

// LoopTypes 返回全部循环类型（固定顺序，供统计使用）
func LoopTypes() []LoopType {
	return []LoopType{LoopTypeApproval, LoopTypeInformation, LoopTypeConversation}
}

// Platform 请求来源平台
type Platform string

const (
	PlatformWechat Platform = "wechat"
	PlatformFeishu Platform = "feishu"
	PlatformOther  Platform = "other"
)

// Valid 检查平台是否合法
func (p Platform) Valid() bool {
	switch p {
	case PlatformWechat, PlatformFeishu, PlatformOther:
		return true
	}
	return false
}

// Platforms 返回全部平台（固定顺序，供统计使用）
func Platforms() []Platform {
	return []Platform{PlatformWechat, PlatformFeishu, PlatformOther}
}

// Status 请求状态
//
// 状态机: pending → {inprogress, completed, cancelled, approved, rejected, error, expired}
//
//	inprogress → {completed, cancelled, approved, rejected, error, expired}
//
// 终态只能通过 continue 操作重新打开；管理员状态覆写不受状态机约束。
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "inprogress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusError      Status = "error"
	StatusExpired    Status = "expired"
)

// Valid 检查状态是否为八个枚举值之一
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled,
		StatusApproved, StatusRejected, StatusError, StatusExpired:
		return true
	}
	return false
}

// Resolvable 检查状态是否可以被处理（审批/回复/批量操作的前置条件）
func (s Status) Resolvable() bool {
	return s == StatusPending || s == StatusInProgress
}

// Terminal 检查状态是否为终态
func (s Status) Terminal() bool {
	return s.Valid() && s != StatusPending && s != StatusInProgress
}

// Statuses 返回全部状态（固定顺序，供统计使用）
func Statuses() []Status {
	return []Status{
		StatusPending, StatusInProgress, StatusCompleted, StatusCancelled,
		StatusApproved, StatusRejected, StatusError, StatusExpired,
	}
}

// =============================================================================
// 📦 数据模型
// =============================================================================

// Request 人机循环请求记录
//
// (conversation_id, request_id, platform, owner_id) 为幂等查找的自然键，
// 同一活跃交互下不允许出现两条相同自然键的记录。
// loop_type/platform/owner_id/context 创建后不可变；
// response/feedback/responded_by/responded_at 只会整体设置或整体清除。
type Request struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_humanloop_natural_key" json:"owner_id"`
	TaskID         string         `gorm:"size:255;not null" json:"task_id"`
	ConversationID string         `gorm:"size:255;not null;uniqueIndex:idx_humanloop_natural_key" json:"conversation_id"`
	RequestID      string         `gorm:"size:255;not null;uniqueIndex:idx_humanloop_natural_key" json:"request_id"`
	LoopType       LoopType       `gorm:"size:32;not null;index" json:"loop_type"`
	Platform       Platform       `gorm:"size:32;not null;uniqueIndex:idx_humanloop_natural_key" json:"platform"`
	Status         Status         `gorm:"size:32;not null;default:pending;index" json:"status"`
	Context        types.Document `gorm:"type:json" json:"context"`
	Metadata       types.Document `gorm:"type:json" json:"metadata,omitempty"`
	Response       types.Document `gorm:"type:json" json:"response,omitempty"`
	Feedback       *string        `gorm:"type:text" json:"feedback,omitempty"`
	RespondedBy    *string        `gorm:"size:255" json:"responded_by,omitempty"`
	RespondedAt    *time.Time     `json:"responded_at,omitempty"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TableName 指定表名
func (Request) TableName() string {
	return "humanloop_requests"
}

// BeforeCreate 生成主键
func (r *Request) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// NaturalKey 自然键
type NaturalKey struct {
	ConversationID string
	RequestID      string
	Platform       Platform
	OwnerID        uuid.UUID
}

// InitDatabase 初始化人机循环请求表结构
func InitDatabase(db *gorm.DB) error {
	return db.AutoMigrate(&Request{})
}
