package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ptonlix/gohumanloophub/humanloop"
	"github.com/ptonlix/gohumanloophub/internal/auth"
	"github.com/ptonlix/gohumanloophub/types"
)

// =============================================================================
// 🔄 人机循环调用方接口
// =============================================================================

// HumanLoopHandler 调用方（Agent SDK）使用的人机循环接口
//
// 全部经 API Key 认证，所有操作限定在认证账户自己的请求上。
type HumanLoopHandler struct {
	engine *humanloop.Engine
	query  *humanloop.Query
	logger *zap.Logger
}

// NewHumanLoopHandler 创建人机循环处理器
func NewHumanLoopHandler(engine *humanloop.Engine, query *humanloop.Query, logger *zap.Logger) *HumanLoopHandler {
	return &HumanLoopHandler{
		engine: engine,
		query:  query,
		logger: logger.With(zap.String("handler", "humanloop")),
	}
}

// CancelRequest 取消单个请求的入参
type CancelRequest struct {
	ConversationID string             `json:"conversation_id"`
	RequestID      string             `json:"request_id"`
	Platform       humanloop.Platform `json:"platform"`
}

// CancelConversationRequest 取消整个对话的入参
type CancelConversationRequest struct {
	ConversationID string             `json:"conversation_id"`
	Platform       humanloop.Platform `json:"platform"`
}

// StatusResponse 状态查询响应，未处理的请求各结果字段为空
type StatusResponse struct {
	Success     bool             `json:"success"`
	Status      humanloop.Status `json:"status"`
	Response    types.Document   `json:"response,omitempty"`
	Feedback    *string          `json:"feedback,omitempty"`
	RespondedBy *string          `json:"responded_by,omitempty"`
	RespondedAt *time.Time       `json:"responded_at,omitempty"`
}

// =============================================================================
// 🎯 HTTP Handlers
// =============================================================================

// HandleCreateRequest 创建人机循环请求
// @Summary Create human loop request
// @Description Create a new human-in-the-loop request for the authenticated owner
// @Tags humanloop
// @Accept json
// @Produce json
// @Success 200 {object} Response "Created, or failure detail with success=false"
// @Security ApiKeyAuth
// @Router /v1/humanloop/request [post]
func (h *HumanLoopHandler) HandleCreateRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrAuthentication, "API Key required", h.logger)
		return
	}

	var in humanloop.CreateInput
	if err := DecodeJSONBody(w, r, &in, h.logger); err != nil {
		return
	}
	if in.ConversationID == "" || in.RequestID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "conversation_id and request_id are required", h.logger)
		return
	}

	if _, err := h.engine.Create(r.Context(), identity.UserID, in); err != nil {
		WriteDomainFailure(w, err, h.logger)
		return
	}

	WriteSuccess(w, nil)
}

// HandleGetStatus 查询请求状态
// @Summary Get request status
// @Description Query the status and resolution of a request by its natural key
// @Tags humanloop
// @Produce json
// @Param conversation_id query string true "Conversation ID"
// @Param request_id query string true "Request ID"
// @Param platform query string true "Platform"
// @Success 200 {object} StatusResponse "Status"
// @Failure 404 {object} Response "Request not found"
// @Security ApiKeyAuth
// @Router /v1/humanloop/status [get]
func (h *HumanLoopHandler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrAuthentication, "API Key required", h.logger)
		return
	}

	query := r.URL.Query()
	conversationID := query.Get("conversation_id")
	requestID := query.Get("request_id")
	platform := humanloop.Platform(query.Get("platform"))
	if conversationID == "" || requestID == "" || platform == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "conversation_id, request_id and platform are required", h.logger)
		return
	}

	result, err := h.engine.GetStatus(r.Context(), identity.UserID, conversationID, requestID, platform)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, StatusResponse{
		Success:     true,
		Status:      result.Status,
		Response:    result.Response,
		Feedback:    result.Feedback,
		RespondedBy: result.RespondedBy,
		RespondedAt: result.RespondedAt,
	})
}

// HandleCancel 取消单个 pending 状态的请求
// @Summary Cancel request
// @Description Cancel a single pending request
// @Tags humanloop
// @Accept json
// @Produce json
// @Success 200 {object} Response "Cancelled, or failure detail with success=false"
// @Security ApiKeyAuth
// @Router /v1/humanloop/cancel [post]
func (h *HumanLoopHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrAuthentication, "API Key required", h.logger)
		return
	}

	var in CancelRequest
	if err := DecodeJSONBody(w, r, &in, h.logger); err != nil {
		return
	}

	if err := h.engine.CancelOne(r.Context(), identity.UserID, in.ConversationID, in.RequestID, in.Platform); err != nil {
		WriteDomainFailure(w, err, h.logger)
		return
	}

	WriteSuccess(w, nil)
}

// HandleCancelConversation 取消整个对话下的所有 pending 请求
// @Summary Cancel conversation
// @Description Cancel every pending request in a conversation
// @Tags humanloop
// @Accept json
// @Produce json
// @Success 200 {object} Response "Cancelled, or failure detail with success=false"
// @Security ApiKeyAuth
// @Router /v1/humanloop/cancel_conversation [post]
func (h *HumanLoopHandler) HandleCancelConversation(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrAuthentication, "API Key required", h.logger)
		return
	}

	var in CancelConversationRequest
	if err := DecodeJSONBody(w, r, &in, h.logger); err != nil {
		return
	}

	count, err := h.engine.CancelConversation(r.Context(), identity.UserID, in.ConversationID, in.Platform)
	if err != nil {
		WriteDomainFailure(w, err, h.logger)
		return
	}
	if count == 0 {
		WriteFailure(w, types.ErrNoPendingRequests, "No pending requests found for this conversation", h.logger)
		return
	}

	WriteSuccess(w, map[string]any{"cancelled_count": count})
}

// HandleContinue 继续对话请求
// @Summary Continue conversation
// @Description Reopen or create a conversation request with fresh context
// @Tags humanloop
// @Accept json
// @Produce json
// @Success 200 {object} Response "Continued, or failure detail with success=false"
// @Security ApiKeyAuth
// @Router /v1/humanloop/continue [post]
func (h *HumanLoopHandler) HandleContinue(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrAuthentication, "API Key required", h.logger)
		return
	}

	var in humanloop.ContinueInput
	if err := DecodeJSONBody(w, r, &in, h.logger); err != nil {
		return
	}
	if in.ConversationID == "" || in.RequestID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "conversation_id and request_id are required", h.logger)
		return
	}

	if _, err := h.engine.Continue(r.Context(), identity.UserID, in); err != nil {
		WriteDomainFailure(w, err, h.logger)
		return
	}

	WriteSuccess(w, nil)
}

// HandleDashboard 查询当前账户的请求统计
// @Summary Get owner dashboard
// @Description Aggregate the authenticated owner's requests by status, type and platform
// @Tags humanloop
// @Produce json
// @Success 200 {object} Response "Owner statistics"
// @Security ApiKeyAuth
// @Router /v1/humanloop/dashboard [get]
func (h *HumanLoopHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrAuthentication, "API Key required", h.logger)
		return
	}

	stats, err := h.query.OwnerStats(r.Context(), identity.UserID)
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
