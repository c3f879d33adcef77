package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ptonlix/gohumanloophub/humanloop"
	"github.com/ptonlix/gohumanloophub/internal/auth"
	"github.com/ptonlix/gohumanloophub/types"
)

// =============================================================================
// 🛡️ 人机循环管理端接口
// =============================================================================

// AdminHandler 管理后台使用的人机循环接口
//
// 全部经 Bearer JWT 认证且要求超级管理员，可以跨归属方查看与处理请求。
type AdminHandler struct {
	engine *humanloop.Engine
	query  *humanloop.Query
	logger *zap.Logger
}

// NewAdminHandler 创建管理端处理器
func NewAdminHandler(engine *humanloop.Engine, query *humanloop.Query, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		engine: engine,
		query:  query,
		logger: logger.With(zap.String("handler", "admin_humanloop")),
	}
}

// ApprovalRequest 审批模式处理入参
type ApprovalRequest struct {
	RequestID string           `json:"request_id"`
	Action    humanloop.Status `json:"action"`
	Feedback  *string          `json:"feedback,omitempty"`
	Response  types.Document   `json:"response,omitempty"`
}

// InformationRequest 信息获取模式处理入参
type InformationRequest struct {
	RequestID string         `json:"request_id"`
	Response  types.Document `json:"response"`
	Feedback  *string        `json:"feedback,omitempty"`
}

// ConversationRequest 对话模式处理入参
type ConversationRequest struct {
	RequestID  string         `json:"request_id"`
	Response   types.Document `json:"response"`
	Feedback   *string        `json:"feedback,omitempty"`
	IsComplete bool           `json:"is_complete"`
}

// BatchRequest 批量处理入参
type BatchRequest struct {
	RequestIDs []string         `json:"request_ids"`
	Action     humanloop.Status `json:"action"`
	Feedback   *string          `json:"feedback,omitempty"`
}

// BatchResponse 批量处理结果
type BatchResponse struct {
	ProcessedCount int      `json:"processed_count"`
	Errors         []string `json:"errors,omitempty"`
}

// actorLabel 拿到操作者的展示名写入 responded_by
func actorLabel(r *http.Request) (string, bool) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		return "", false
	}
	return identity.Label(), true
}

// =============================================================================
// 🔍 查询接口
// =============================================================================

// HandleListRequests 获取请求列表
// @Summary List human loop requests
// @Description List requests with optional filters and pagination
// @Tags admin-humanloop
// @Produce json
// @Param loop_type query string false "Loop type filter"
// @Param status query string false "Status filter"
// @Param platform query string false "Platform filter"
// @Param created_at_start query string false "Created after (YYYY-MM-DD)"
// @Param created_at_end query string false "Created before (YYYY-MM-DD)"
// @Param skip query int false "Records to skip"
// @Param limit query int false "Records to return"
// @Success 200 {object} ListResponse "Request list"
// @Security BearerAuth
// @Router /v1/admin/humanloop/requests [get]
func (h *AdminHandler) HandleListRequests(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := humanloop.Filter{
		LoopType:       query.Get("loop_type"),
		Status:         query.Get("status"),
		Platform:       query.Get("platform"),
		CreatedAtStart: query.Get("created_at_start"),
		CreatedAtEnd:   query.Get("created_at_end"),
		Skip:           parseIntParam(query.Get("skip"), 0),
		Limit:          parseIntParam(query.Get("limit"), humanloop.DefaultListLimit),
	}

	requests, total, err := h.query.List(r.Context(), filter)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	WriteList(w, requests, total, filter.Skip, filter.Limit)
}

// HandleGetRequest 获取单个请求详情
// @Summary Get request detail
// @Description Get a single request by its internal ID
// @Tags admin-humanloop
// @Produce json
// @Param id path string true "Request UUID"
// @Success 200 {object} Response "Request detail"
// @Failure 400 {object} Response "Invalid request ID format"
// @Failure 404 {object} Response "Request not found"
// @Security BearerAuth
// @Router /v1/admin/humanloop/requests/{id} [get]
func (h *AdminHandler) HandleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "Invalid request ID format", h.logger)
		return
	}

	req, err := h.engine.Get(r.Context(), id)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	WriteSuccess(w, req)
}

// HandleStats 获取全局统计
// @Summary Get statistics
// @Description Aggregate request counts by status, type and platform
// @Tags admin-humanloop
// @Produce json
// @Success 200 {object} Response "Statistics"
// @Security BearerAuth
// @Router /v1/admin/humanloop/stats [get]
func (h *AdminHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.query.Stats(r.Context())
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]any{
		"total":       stats.Total,
		"by_status":   stats.ByStatus,
		"by_type":     stats.ByType,
		"by_platform": stats.ByPlatform,
		"recent":      stats.Recent,
		"summary":     stats.Summary(),
	})
}

// =============================================================================
// ⚙️ 处理接口
// =============================================================================

// HandleApproval 处理审批模式请求
// @Summary Resolve approval request
// @Description Approve or reject a pending approval request
// @Tags admin-humanloop
// @Accept json
// @Produce json
// @Success 200 {object} Response "Resolved"
// @Security BearerAuth
// @Router /v1/admin/humanloop/approval [post]
func (h *AdminHandler) HandleApproval(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorLabel(r)
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrAuthentication, "Could not validate credentials", h.logger)
		return
	}

	var in ApprovalRequest
	if err := DecodeJSONBody(w, r, &in, h.logger); err != nil {
		return
	}
	id, err := uuid.Parse(in.RequestID)
	if err != nil {
		WriteFailure(w, types.ErrInvalidRequest, "Invalid request ID format", h.logger)
		return
	}

	err = h.engine.ResolveApproval(r.Context(), actor, humanloop.ApprovalInput{
		RequestID: id,
		Action:    in.Action,
		Response:  in.Response,
		Feedback:  in.Feedback,
	})
	if err != nil {
		WriteDomainFailure(w, err, h.logger)
		return
	}

	WriteSuccess(w, nil)
}

// HandleInformation 处理信息获取模式请求
// @Summary Resolve information request
// @Description Supply the requested information and complete the request
// @Tags admin-humanloop
// @Accept json
// @Produce json
// @Success 200 {object} Response "Resolved"
// @Security BearerAuth
// @Router /v1/admin/humanloop/information [post]
func (h *AdminHandler) HandleInformation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorLabel(r)
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrAuthentication, "Could not validate credentials", h.logger)
		return
	}

	var in InformationRequest
	if err := DecodeJSONBody(w, r, &in, h.logger); err != nil {
		return
	}
	id, err := uuid.Parse(in.RequestID)
	if err != nil {
		WriteFailure(w, types.ErrInvalidRequest, "Invalid request ID format", h.logger)
		return
	}

	err = h.engine.ResolveInformation(r.Context(), actor, humanloop.InformationInput{
		RequestID: id,
		Response:  in.Response,
		Feedback:  in.Feedback,
	})
	if err != nil {
		WriteDomainFailure(w, err, h.logger)
		return
	}

	WriteSuccess(w, nil)
}

// HandleConversation 处理对话模式请求
// @Summary Resolve conversation turn
// @Description Reply to a conversation turn, optionally completing the dialogue
// @Tags admin-humanloop
// @Accept json
// @Produce json
// @Success 200 {object} Response "Resolved"
// @Security BearerAuth
// @Router /v1/admin/humanloop/conversation [post]
func (h *AdminHandler) HandleConversation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorLabel(r)
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrAuthentication, "Could not validate credentials", h.logger)
		return
	}

	var in ConversationRequest
	if err := DecodeJSONBody(w, r, &in, h.logger); err != nil {
		return
	}
	id, err := uuid.Parse(in.RequestID)
	if err != nil {
		WriteFailure(w, types.ErrInvalidRequest, "Invalid request ID format", h.logger)
		return
	}

	err = h.engine.ResolveConversation(r.Context(), actor, humanloop.ConversationInput{
		RequestID:  id,
		Response:   in.Response,
		Feedback:   in.Feedback,
		IsComplete: in.IsComplete,
	})
	if err != nil {
		WriteDomainFailure(w, err, h.logger)
		return
	}

	WriteSuccess(w, nil)
}

// HandleUpdateStatus 管理员覆写请求状态，status 走查询参数
// @Summary Update request status
// @Description Force a request into any valid status
// @Tags admin-humanloop
// @Produce json
// @Param id path string true "Request UUID"
// @Param status query string true "Target status"
// @Success 200 {object} Response "Updated"
// @Security BearerAuth
// @Router /v1/admin/humanloop/requests/{id}/status [post]
func (h *AdminHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorLabel(r)
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrAuthentication, "Could not validate credentials", h.logger)
		return
	}

	status := humanloop.Status(r.URL.Query().Get("status"))
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteFailure(w, types.ErrInvalidRequest, "Invalid request ID format", h.logger)
		return
	}

	if err := h.engine.UpdateStatusAdmin(r.Context(), actor, id, status); err != nil {
		WriteDomainFailure(w, err, h.logger)
		return
	}

	WriteSuccess(w, nil)
}

// HandleBatch 批量处理请求
// @Summary Batch transition requests
// @Description Apply approved/rejected/cancelled to a list of requests, accumulating per-item errors
// @Tags admin-humanloop
// @Accept json
// @Produce json
// @Success 200 {object} Response "Batch result"
// @Security BearerAuth
// @Router /v1/admin/humanloop/batch [post]
func (h *AdminHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorLabel(r)
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrAuthentication, "Could not validate credentials", h.logger)
		return
	}

	var in BatchRequest
	if err := DecodeJSONBody(w, r, &in, h.logger); err != nil {
		return
	}

	result, err := h.engine.BatchTransition(r.Context(), actor, humanloop.BatchInput{
		RequestIDs: in.RequestIDs,
		Action:     in.Action,
		Feedback:   in.Feedback,
	})
	if err != nil {
		WriteDomainFailure(w, err, h.logger)
		return
	}

	data := BatchResponse{ProcessedCount: result.Processed, Errors: result.Errors}
	if len(result.Errors) > 0 {
		// 整体成败只看处理数量，汇总错误作为消息附带
		message := "Processed " + strconv.Itoa(result.Processed) + " requests. Errors: " + strings.Join(result.Errors, "; ")
		WriteJSON(w, http.StatusOK, Response{
			Success: result.OK(),
			Data:    data,
			Error: &ErrorInfo{
				Code:    string(types.ErrInvalidState),
				Message: message,
			},
			Timestamp: time.Now(),
		})
		return
	}

	WriteSuccess(w, data)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func parseIntParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
