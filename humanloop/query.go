package humanloop

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🔍 查询与统计
// =============================================================================

const (
	// DefaultListLimit 列表默认分页大小
	DefaultListLimit = 100
	// recentLimit 统计摘要携带的最近请求条数
	recentLimit = 5
)

// Filter 列表过滤条件
//
// 日期过滤为 YYYY-MM-DD 格式，无法解析的值静默忽略（视为无该边界），
// 不会让整个列表请求失败。
type Filter struct {
	LoopType       string
	Status         string
	Platform       string
	CreatedAtStart string
	CreatedAtEnd   string
	Skip           int
	Limit          int
}

// Query 只读查询层，分页列表与统计聚合
type Query struct {
	store  *Store
	logger *zap.Logger
}

// NewQuery 创建查询层
func NewQuery(store *Store, logger *zap.Logger) *Query {
	return &Query{
		store:  store,
		logger: logger.With(zap.String("component", "humanloop_query")),
	}
}

// List 分页查询请求列表，按创建时间倒序
//
// 返回当前页数据与满足过滤条件的总数（总数不受 skip/limit 影响）。
func (q *Query) List(ctx context.Context, f Filter) ([]Request, int64, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Skip < 0 {
		f.Skip = 0
	}

	base := q.filtered(q.store.DB().WithContext(ctx).Model(&Request{}), f)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, wrapDBError(err, "count humanloop requests")
	}

	var requests []Request
	err := q.filtered(q.store.DB().WithContext(ctx).Model(&Request{}), f).
		Order("created_at DESC").
		Offset(f.Skip).
		Limit(f.Limit).
		Find(&requests).Error
	if err != nil {
		return nil, 0, wrapDBError(err, "list humanloop requests")
	}
	return requests, total, nil
}

// Count 统计满足过滤条件的请求总数
func (q *Query) Count(ctx context.Context, f Filter) (int64, error) {
	var total int64
	err := q.filtered(q.store.DB().WithContext(ctx).Model(&Request{}), f).Count(&total).Error
	if err != nil {
		return 0, wrapDBError(err, "count humanloop requests")
	}
	return total, nil
}

// filtered 组装过滤条件
func (q *Query) filtered(tx *gorm.DB, f Filter) *gorm.DB {
	if f.LoopType != "" {
		tx = tx.Where("loop_type = ?", f.LoopType)
	}
	if f.Status != "" {
		tx = tx.Where("status = ?", f.Status)
	}
	if f.Platform != "" {
		tx = tx.Where("platform = ?", f.Platform)
	}
	if f.CreatedAtStart != "" {
		if start, err := time.Parse("2006-01-02", f.CreatedAtStart); err == nil {
			tx = tx.Where("created_at >= ?", start)
		} else {
			q.logger.Debug("ignoring malformed created_at_start filter", zap.String("value", f.CreatedAtStart))
		}
	}
	if f.CreatedAtEnd != "" {
		if end, err := time.Parse("2006-01-02", f.CreatedAtEnd); err == nil {
			// 结束日期按整天计，含当天
			tx = tx.Where("created_at < ?", end.AddDate(0, 0, 1))
		} else {
			q.logger.Debug("ignoring malformed created_at_end filter", zap.String("value", f.CreatedAtEnd))
		}
	}
	return tx
}

// =============================================================================
// 📊 统计聚合
// =============================================================================

// RecentRequest 统计摘要中的最近请求条目
type RecentRequest struct {
	ID             string     `json:"id"`
	TaskID         string     `json:"task_id"`
	ConversationID string     `json:"conversation_id"`
	LoopType       LoopType   `json:"loop_type"`
	Platform       Platform   `json:"platform"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	RespondedAt    *time.Time `json:"responded_at,omitempty"`
}

// Stats 请求统计汇总
//
// 维度表中所有枚举值都会出现，计数为零的也不省略，
// 前端图表无需补洞。
type Stats struct {
	Total      int64            `json:"total"`
	ByStatus   map[string]int64 `json:"by_status"`
	ByType     map[string]int64 `json:"by_type"`
	ByPlatform map[string]int64 `json:"by_platform"`
	Recent     []RecentRequest  `json:"recent"`
}

// Summary 面板摘要：completed_requests 把 approved/rejected 也计入"已完结"
func (s *Stats) Summary() map[string]any {
	return map[string]any{
		"total_requests":     s.Total,
		"pending_requests":   s.ByStatus[string(StatusPending)],
		"completed_requests": s.ByStatus[string(StatusCompleted)] + s.ByStatus[string(StatusApproved)] + s.ByStatus[string(StatusRejected)],
	}
}

// Stats 全局统计
func (q *Query) Stats(ctx context.Context) (*Stats, error) {
	return q.stats(ctx, nil)
}

// OwnerStats 单个归属方的统计
func (q *Query) OwnerStats(ctx context.Context, ownerID uuid.UUID) (*Stats, error) {
	return q.stats(ctx, &ownerID)
}

func (q *Query) stats(ctx context.Context, ownerID *uuid.UUID) (*Stats, error) {
	scope := func() *gorm.DB {
		tx := q.store.DB().WithContext(ctx).Model(&Request{})
		if ownerID != nil {
			tx = tx.Where("owner_id = ?", *ownerID)
		}
		return tx
	}

	stats := &Stats{
		ByStatus:   zeroCounts(statusKeys()),
		ByType:     zeroCounts(loopTypeKeys()),
		ByPlatform: zeroCounts(platformKeys()),
	}

	if err := scope().Count(&stats.Total).Error; err != nil {
		return nil, wrapDBError(err, "count humanloop requests")
	}
	if err := groupCounts(scope(), "status", stats.ByStatus); err != nil {
		return nil, err
	}
	if err := groupCounts(scope(), "loop_type", stats.ByType); err != nil {
		return nil, err
	}
	if err := groupCounts(scope(), "platform", stats.ByPlatform); err != nil {
		return nil, err
	}

	var recent []Request
	if err := scope().Order("created_at DESC").Limit(recentLimit).Find(&recent).Error; err != nil {
		return nil, wrapDBError(err, "list recent humanloop requests")
	}
	stats.Recent = make([]RecentRequest, 0, len(recent))
	for _, req := range recent {
		stats.Recent = append(stats.Recent, RecentRequest{
			ID:             req.ID.String(),
			TaskID:         req.TaskID,
			ConversationID: req.ConversationID,
			LoopType:       req.LoopType,
			Platform:       req.Platform,
			Status:         req.Status,
			CreatedAt:      req.CreatedAt,
			RespondedAt:    req.RespondedAt,
		})
	}
	return stats, nil
}

// groupCounts 按单列分组计数，结果覆盖到预填零值的维度表上
func groupCounts(tx *gorm.DB, column string, into map[string]int64) error {
	var rows []struct {
		Dim string
		Cnt int64
	}
	err := tx.Select(column + " AS dim, COUNT(*) AS cnt").Group(column).Scan(&rows).Error
	if err != nil {
		return wrapDBError(err, "aggregate humanloop requests by "+column)
	}
	for _, row := range rows {
		into[row.Dim] = row.Cnt
	}
	return nil
}

func zeroCounts(keys []string) map[string]int64 {
	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		out[k] = 0
	}
	return out
}

func statusKeys() []string {
	keys := make([]string, 0, len(Statuses()))
	for _, s := range Statuses() {
		keys = append(keys, string(s))
	}
	return keys
}

func loopTypeKeys() []string {
	keys := make([]string, 0, len(LoopTypes()))
	for _, t := range LoopTypes() {
		keys = append(keys, string(t))
	}
	return keys
}

func platformKeys() []string {
	keys := make([]string, 0, len(Platforms()))
	for _, p := range Platforms() {
		keys = append(keys, string(p))
	}
	return keys
}
