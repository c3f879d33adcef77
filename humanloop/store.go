package humanloop

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ptonlix/gohumanloophub/types"
)

// =============================================================================
// 🗄️ 请求存储
// =============================================================================

// Store 人机循环请求的事务性存储
//
// 所有读取方法接收一个 *gorm.DB 句柄，调用方在事务内传入 tx，
// 使"读当前行 → 校验前置条件 → 写入"在单个事务中完成。
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore 创建请求存储
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "humanloop_store")),
	}
}

// DB 返回底层数据库句柄
func (s *Store) DB() *gorm.DB {
	return s.db
}

// WithTx 在单个事务中执行 fn
func (s *Store) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// lockForUpdate 为支持行锁的数据库追加 SELECT ... FOR UPDATE
// SQLite 不支持 FOR UPDATE，事务本身已提供串行化写入。
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// wrapDBError 把底层数据库错误统一包装为内部错误
func wrapDBError(err error, op string) error {
	return types.NewError(types.ErrInternalError, "failed to "+op).WithCause(err)
}

// isUniqueViolation 判断错误是否为唯一约束冲突
// 并发创建同一自然键时，先查后插的窗口内另一个事务可能已经插入成功。
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// =============================================================================
// 🎯 读取
// =============================================================================

// GetByID 按内部主键查找（管理员路径，不限定归属）
func (s *Store) GetByID(tx *gorm.DB, id uuid.UUID, lock bool) (*Request, error) {
	if lock {
		tx = lockForUpdate(tx)
	}

	var req Request
	if err := tx.Where("id = ?", id).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewError(types.ErrNotFound, "Request not found")
		}
		return nil, types.NewError(types.ErrInternalError, "failed to load request").WithCause(err)
	}
	return &req, nil
}

// GetByNaturalKey 按自然键查找（调用方路径，限定归属）
func (s *Store) GetByNaturalKey(tx *gorm.DB, key NaturalKey, lock bool) (*Request, error) {
	if lock {
		tx = lockForUpdate(tx)
	}

	var req Request
	err := tx.Where(
		"conversation_id = ? AND request_id = ? AND platform = ? AND owner_id = ?",
		key.ConversationID, key.RequestID, key.Platform, key.OwnerID,
	).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewError(types.ErrNotFound, "Request not found")
		}
		return nil, types.NewError(types.ErrInternalError, "failed to load request").WithCause(err)
	}
	return &req, nil
}

// PendingByConversation 查找某个对话下全部 pending 状态的请求
func (s *Store) PendingByConversation(tx *gorm.DB, conversationID string, platform Platform, ownerID uuid.UUID, lock bool) ([]Request, error) {
	if lock {
		tx = lockForUpdate(tx)
	}

	var reqs []Request
	err := tx.Where(
		"conversation_id = ? AND platform = ? AND owner_id = ? AND status = ?",
		conversationID, platform, ownerID, StatusPending,
	).Find(&reqs).Error
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to load pending requests").WithCause(err)
	}
	return reqs, nil
}

// =============================================================================
// ✏️ 写入
// =============================================================================

// Insert 插入新记录，自然键上的唯一冲突归为已存在
func (s *Store) Insert(tx *gorm.DB, req *Request) error {
	if err := tx.Create(req).Error; err != nil {
		if isUniqueViolation(err) {
			return types.NewError(types.ErrAlreadyExists, "Request already exists").WithCause(err)
		}
		s.logger.Error("insert request failed",
			zap.String("conversation_id", req.ConversationID),
			zap.String("request_id", req.RequestID),
			zap.Error(err),
		)
		return types.NewError(types.ErrInternalError, "failed to create request").WithCause(err)
	}
	return nil
}

// Apply 对已加载的记录应用字段更新，updated_at 随每次变更自动推进
func (s *Store) Apply(tx *gorm.DB, req *Request, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if err := tx.Model(req).Updates(updates).Error; err != nil {
		s.logger.Error("update request failed",
			zap.String("id", req.ID.String()),
			zap.Error(err),
		)
		return types.NewError(types.ErrInternalError, "failed to update request").WithCause(err)
	}
	return nil
}
