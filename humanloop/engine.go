package humanloop

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ptonlix/gohumanloophub/internal/metrics"
	"github.com/ptonlix/gohumanloophub/types"
)

// =============================================================================
// ⚙️ 生命周期引擎
// =============================================================================

// Engine 人机循环请求的状态机引擎
//
// 引擎本身无状态，所有持久状态在 Store 中。每个操作在单个事务内完成：
// 读取当前行（带行锁）→ 依据刚读到的状态校验前置条件 → 写入。
// 并发的第二个写入方会在行锁上等待，随后因前置条件不满足而失败，
// 而不是静默覆盖第一个写入方的结果。
type Engine struct {
	store   *Store
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewEngine 创建生命周期引擎
func NewEngine(store *Store, collector *metrics.Collector, logger *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		metrics: collector,
		logger:  logger.With(zap.String("component", "humanloop_engine")),
	}
}

// =============================================================================
// 📦 操作入参
// =============================================================================

// CreateInput 创建请求入参
type CreateInput struct {
	TaskID         string         `json:"task_id"`
	ConversationID string         `json:"conversation_id"`
	RequestID      string         `json:"request_id"`
	LoopType       LoopType       `json:"loop_type"`
	Platform       Platform       `json:"platform"`
	Context        types.Document `json:"context"`
	Metadata       types.Document `json:"metadata,omitempty"`
}

// StatusResult 状态查询结果
type StatusResult struct {
	Status      Status         `json:"status"`
	Response    types.Document `json:"response,omitempty"`
	Feedback    *string        `json:"feedback,omitempty"`
	RespondedBy *string        `json:"responded_by,omitempty"`
	RespondedAt *time.Time     `json:"responded_at,omitempty"`
}

// ApprovalInput 审批模式处理入参
type ApprovalInput struct {
	RequestID uuid.UUID
	Action    Status // approved | rejected
	Response  types.Document
	Feedback  *string
}

// InformationInput 信息获取模式处理入参
type InformationInput struct {
	RequestID uuid.UUID
	Response  types.Document
	Feedback  *string
}

// ConversationInput 对话模式处理入参
type ConversationInput struct {
	RequestID  uuid.UUID
	Response   types.Document
	Feedback   *string
	IsComplete bool // true-完成对话(completed), false-继续对话(inprogress)
}

// ContinueInput 继续对话入参
type ContinueInput struct {
	TaskID         string         `json:"task_id"`
	ConversationID string         `json:"conversation_id"`
	RequestID      string         `json:"request_id"`
	Platform       Platform       `json:"platform"`
	Context        types.Document `json:"context"`
	Metadata       types.Document `json:"metadata,omitempty"`
}

// BatchInput 批量处理入参
type BatchInput struct {
	RequestIDs []string
	Action     Status // approved | rejected | cancelled
	Feedback   *string
}

// BatchResult 批量处理结果
//
// Processed 与 Errors 独立累计：单条失败不会中止其余条目，
// 已处理条目也不会因后续失败回滚。
type BatchResult struct {
	Processed int
	Errors    []string
}

// OK 整体是否成功：至少处理一条即为成功
func (r *BatchResult) OK() bool {
	return r.Processed > 0
}

// =============================================================================
// 🎯 调用方操作（归属限定）
// =============================================================================

// Create 创建人机循环请求
//
// 自然键 (conversation_id, request_id, platform, owner_id) 已存在时
// 返回 ALREADY_EXISTS，不做隐式更新。
func (e *Engine) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*Request, error) {
	if !in.LoopType.Valid() {
		return nil, types.NewErrorf(types.ErrInvalidArgument, "Invalid loop_type: %s", in.LoopType)
	}
	if !in.Platform.Valid() {
		return nil, types.NewErrorf(types.ErrInvalidArgument, "Invalid platform: %s", in.Platform)
	}

	var created *Request
	err := e.store.WithTx(ctx, func(tx *gorm.DB) error {
		key := NaturalKey{
			ConversationID: in.ConversationID,
			RequestID:      in.RequestID,
			Platform:       in.Platform,
			OwnerID:        ownerID,
		}
		_, err := e.store.GetByNaturalKey(tx, key, false)
		if err == nil {
			return types.NewError(types.ErrAlreadyExists, "Request already exists")
		}
		if !types.IsCode(err, types.ErrNotFound) {
			return err
		}

		req := &Request{
			OwnerID:        ownerID,
			TaskID:         in.TaskID,
			ConversationID: in.ConversationID,
			RequestID:      in.RequestID,
			LoopType:       in.LoopType,
			Platform:       in.Platform,
			Status:         StatusPending,
			Context:        in.Context,
			Metadata:       in.Metadata,
		}
		if err := e.store.Insert(tx, req); err != nil {
			return err
		}
		created = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("humanloop request created",
		zap.String("id", created.ID.String()),
		zap.String("conversation_id", created.ConversationID),
		zap.String("loop_type", string(created.LoopType)),
		zap.String("platform", string(created.Platform)),
	)
	if e.metrics != nil {
		e.metrics.RecordRequestCreated(string(created.LoopType), string(created.Platform))
	}
	return created, nil
}

// GetStatus 查询请求状态，附带处理结果字段（未处理时为空）
func (e *Engine) GetStatus(ctx context.Context, ownerID uuid.UUID, conversationID, requestID string, platform Platform) (*StatusResult, error) {
	key := NaturalKey{
		ConversationID: conversationID,
		RequestID:      requestID,
		Platform:       platform,
		OwnerID:        ownerID,
	}

	req, err := e.store.GetByNaturalKey(e.store.DB().WithContext(ctx), key, false)
	if err != nil {
		return nil, err
	}

	return &StatusResult{
		Status:      req.Status,
		Response:    req.Response,
		Feedback:    req.Feedback,
		RespondedBy: req.RespondedBy,
		RespondedAt: req.RespondedAt,
	}, nil
}

// CancelOne 取消单个请求
//
// 只有 pending 状态的请求可以被取消；inprogress 的对话轮次不可经此取消。
func (e *Engine) CancelOne(ctx context.Context, ownerID uuid.UUID, conversationID, requestID string, platform Platform) error {
	return e.store.WithTx(ctx, func(tx *gorm.DB) error {
		key := NaturalKey{
			ConversationID: conversationID,
			RequestID:      requestID,
			Platform:       platform,
			OwnerID:        ownerID,
		}
		req, err := e.store.GetByNaturalKey(tx, key, true)
		if err != nil {
			return err
		}

		if req.Status != StatusPending {
			return types.NewErrorf(types.ErrInvalidState, "Cannot cancel request with status: %s", req.Status)
		}

		if err := e.store.Apply(tx, req, map[string]any{"status": StatusCancelled}); err != nil {
			return err
		}
		e.recordTransition(req.LoopType, StatusPending, StatusCancelled)
		return nil
	})
}

// CancelConversation 取消整个对话下所有 pending 状态的请求，返回取消数量
//
// 数量为零不视为引擎错误，由边界层向调用方发出 NO_PENDING_REQUESTS。
func (e *Engine) CancelConversation(ctx context.Context, ownerID uuid.UUID, conversationID string, platform Platform) (int, error) {
	count := 0
	err := e.store.WithTx(ctx, func(tx *gorm.DB) error {
		pending, err := e.store.PendingByConversation(tx, conversationID, platform, ownerID, true)
		if err != nil {
			return err
		}

		for i := range pending {
			if err := e.store.Apply(tx, &pending[i], map[string]any{"status": StatusCancelled}); err != nil {
				return err
			}
			e.recordTransition(pending[i].LoopType, StatusPending, StatusCancelled)
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.logger.Info("conversation cancelled",
		zap.String("conversation_id", conversationID),
		zap.Int("cancelled", count),
	)
	return count, nil
}

// Continue 继续对话请求
//
// 已存在且处于 completed/cancelled：重置为 pending 并整体清除处理结果字段；
// 已存在且处于其他状态：保留状态与处理结果；
// 两种情况下 task_id/context/metadata 均被新入参覆盖（破坏性刷新）。
// 不存在：按 conversation 类型创建新的 pending 记录。
func (e *Engine) Continue(ctx context.Context, ownerID uuid.UUID, in ContinueInput) (*Request, error) {
	var result *Request
	err := e.store.WithTx(ctx, func(tx *gorm.DB) error {
		key := NaturalKey{
			ConversationID: in.ConversationID,
			RequestID:      in.RequestID,
			Platform:       in.Platform,
			OwnerID:        ownerID,
		}
		req, err := e.store.GetByNaturalKey(tx, key, true)
		if types.IsCode(err, types.ErrNotFound) {
			fresh := &Request{
				OwnerID:        ownerID,
				TaskID:         in.TaskID,
				ConversationID: in.ConversationID,
				RequestID:      in.RequestID,
				LoopType:       LoopTypeConversation,
				Platform:       in.Platform,
				Status:         StatusPending,
				Context:        in.Context,
				Metadata:       in.Metadata,
			}
			if err := e.store.Insert(tx, fresh); err != nil {
				return err
			}
			result = fresh
			return nil
		}
		if err != nil {
			return err
		}

		updates := map[string]any{
			"task_id":  in.TaskID,
			"context":  in.Context,
			"metadata": in.Metadata,
		}
		if req.Status == StatusCompleted || req.Status == StatusCancelled {
			updates["status"] = StatusPending
			updates["response"] = nil
			updates["feedback"] = nil
			updates["responded_by"] = nil
			updates["responded_at"] = nil
			e.recordTransition(req.LoopType, req.Status, StatusPending)
		}
		if err := e.store.Apply(tx, req, updates); err != nil {
			return err
		}
		result = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// =============================================================================
// 🛡️ 管理员操作（不限定归属）
// =============================================================================

// Get 按内部主键读取完整请求记录
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	return e.store.GetByID(e.store.DB().WithContext(ctx), id, false)
}

// ResolveApproval 处理审批模式请求
func (e *Engine) ResolveApproval(ctx context.Context, actor string, in ApprovalInput) error {
	return e.store.WithTx(ctx, func(tx *gorm.DB) error {
		req, err := e.store.GetByID(tx, in.RequestID, true)
		if err != nil {
			return err
		}

		if req.LoopType != LoopTypeApproval {
			return types.NewErrorf(types.ErrTypeMismatch,
				"Request type mismatch. Expected '%s', got '%s'", LoopTypeApproval, req.LoopType)
		}
		if !req.Status.Resolvable() {
			return types.NewErrorf(types.ErrInvalidState, "Cannot process request with status: %s", req.Status)
		}
		if in.Action != StatusApproved && in.Action != StatusRejected {
			return types.NewError(types.ErrInvalidArgument, "Invalid action. Must be 'approved' or 'rejected'")
		}

		from := req.Status
		if err := e.store.Apply(tx, req, e.resolutionUpdates(in.Action, in.Response, in.Feedback, actor)); err != nil {
			return err
		}
		e.recordTransition(req.LoopType, from, in.Action)
		return nil
	})
}

// ResolveInformation 处理信息获取模式请求，完成后状态固定为 completed
func (e *Engine) ResolveInformation(ctx context.Context, actor string, in InformationInput) error {
	return e.store.WithTx(ctx, func(tx *gorm.DB) error {
		req, err := e.store.GetByID(tx, in.RequestID, true)
		if err != nil {
			return err
		}

		if req.LoopType != LoopTypeInformation {
			return types.NewErrorf(types.ErrTypeMismatch,
				"Request type mismatch. Expected '%s', got '%s'", LoopTypeInformation, req.LoopType)
		}
		if !req.Status.Resolvable() {
			return types.NewErrorf(types.ErrInvalidState, "Cannot process request with status: %s", req.Status)
		}

		from := req.Status
		if err := e.store.Apply(tx, req, e.resolutionUpdates(StatusCompleted, in.Response, in.Feedback, actor)); err != nil {
			return err
		}
		e.recordTransition(req.LoopType, from, StatusCompleted)
		return nil
	})
}

// ResolveConversation 处理对话模式请求
//
// is_complete 决定落点：true → completed；false → inprogress（等待下一轮）。
// 对话轮次总是携带回复，两种落点都会整体盖章处理结果字段。
func (e *Engine) ResolveConversation(ctx context.Context, actor string, in ConversationInput) error {
	return e.store.WithTx(ctx, func(tx *gorm.DB) error {
		req, err := e.store.GetByID(tx, in.RequestID, true)
		if err != nil {
			return err
		}

		if req.LoopType != LoopTypeConversation {
			return types.NewErrorf(types.ErrTypeMismatch,
				"Request type mismatch. Expected '%s', got '%s'", LoopTypeConversation, req.LoopType)
		}
		if !req.Status.Resolvable() {
			return types.NewErrorf(types.ErrInvalidState, "Cannot process request with status: %s", req.Status)
		}

		newStatus := StatusInProgress
		if in.IsComplete {
			newStatus = StatusCompleted
		}

		from := req.Status
		if err := e.store.Apply(tx, req, e.resolutionUpdates(newStatus, in.Response, in.Feedback, actor)); err != nil {
			return err
		}
		e.recordTransition(req.LoopType, from, newStatus)
		return nil
	})
}

// UpdateStatusAdmin 管理员直接覆写状态
//
// 仅校验目标状态是八个枚举值之一，不做任何当前状态前置检查——
// 这是唯一允许绕过 loop_type 转移规则的操作，属于刻意保留的设计。
func (e *Engine) UpdateStatusAdmin(ctx context.Context, actor string, id uuid.UUID, status Status) error {
	if !status.Valid() {
		return types.NewErrorf(types.ErrInvalidArgument,
			"Invalid status. Must be one of: %s", statusList())
	}

	return e.store.WithTx(ctx, func(tx *gorm.DB) error {
		req, err := e.store.GetByID(tx, id, true)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		from := req.Status
		updates := map[string]any{
			"status":       status,
			"responded_by": actor,
			"responded_at": now,
		}
		if err := e.store.Apply(tx, req, updates); err != nil {
			return err
		}

		e.logger.Info("admin status override",
			zap.String("id", id.String()),
			zap.String("from", string(from)),
			zap.String("to", string(status)),
			zap.String("actor", actor),
		)
		e.recordTransition(req.LoopType, from, status)
		return nil
	})
}

// BatchTransition 批量转移请求状态
//
// 逐条处理，条目之间没有原子性：中途失败不回滚已处理条目。
// 所有单条错误累计到结果中，整体成功与否只看处理数量。
func (e *Engine) BatchTransition(ctx context.Context, actor string, in BatchInput) (*BatchResult, error) {
	if len(in.RequestIDs) == 0 {
		return nil, types.NewError(types.ErrInvalidArgument, "Request IDs cannot be empty")
	}
	if in.Action != StatusApproved && in.Action != StatusRejected && in.Action != StatusCancelled {
		return nil, types.NewError(types.ErrInvalidArgument,
			"Invalid action. Must be 'approved', 'rejected', or 'cancelled'")
	}

	result := &BatchResult{}
	for _, rawID := range in.RequestIDs {
		id, err := uuid.Parse(rawID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Invalid request ID format: %s", rawID))
			continue
		}

		err = e.store.WithTx(ctx, func(tx *gorm.DB) error {
			req, err := e.store.GetByID(tx, id, true)
			if err != nil {
				return err
			}
			if !req.Status.Resolvable() {
				return types.NewErrorf(types.ErrInvalidState,
					"Request %s cannot be processed with status: %s", rawID, req.Status)
			}

			now := time.Now().UTC()
			from := req.Status
			updates := map[string]any{
				"status":       in.Action,
				"feedback":     in.Feedback,
				"responded_by": actor,
				"responded_at": now,
			}
			if err := e.store.Apply(tx, req, updates); err != nil {
				return err
			}
			e.recordTransition(req.LoopType, from, in.Action)
			return nil
		})
		if err != nil {
			if types.IsCode(err, types.ErrNotFound) {
				result.Errors = append(result.Errors, fmt.Sprintf("Request %s not found", rawID))
			} else if e2, ok := err.(*types.Error); ok {
				result.Errors = append(result.Errors, e2.Message)
			} else {
				result.Errors = append(result.Errors, fmt.Sprintf("Error processing request %s: %v", rawID, err))
			}
			continue
		}
		result.Processed++
	}

	e.logger.Info("batch transition finished",
		zap.String("action", string(in.Action)),
		zap.Int("processed", result.Processed),
		zap.Int("errors", len(result.Errors)),
	)
	if e.metrics != nil {
		e.metrics.RecordBatchTransition(string(in.Action), result.Processed, len(result.Errors))
	}
	return result, nil
}

// =============================================================================
// 🔧 内部辅助
// =============================================================================

// resolutionUpdates 处理结果字段整体盖章：四个字段同生同灭
func (e *Engine) resolutionUpdates(status Status, response types.Document, feedback *string, actor string) map[string]any {
	now := time.Now().UTC()
	return map[string]any{
		"status":       status,
		"response":     response,
		"feedback":     feedback,
		"responded_by": actor,
		"responded_at": now,
	}
}

func (e *Engine) recordTransition(loopType LoopType, from, to Status) {
	if e.metrics != nil {
		e.metrics.RecordTransition(string(loopType), string(from), string(to))
	}
}

func statusList() string {
	out := ""
	for i, s := range Statuses() {
		if i > 0 {
			out += ", "
		}
		out += string(s)
	}
	return out
}
