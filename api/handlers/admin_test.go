package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ptonlix/gohumanloophub/humanloop"
	"github.com/ptonlix/gohumanloophub/internal/auth"
)

func newAdminTestHandler(t *testing.T) (*AdminHandler, *humanloop.Engine) {
	t.Helper()
	store := humanloop.NewStore(setupHumanloopDB(t), zap.NewNop())
	engine := humanloop.NewEngine(store, nil, zap.NewNop())
	query := humanloop.NewQuery(store, zap.NewNop())
	return NewAdminHandler(engine, query, zap.NewNop()), engine
}

func withAdmin(r *http.Request) *http.Request {
	id := &auth.Identity{
		UserID:      uuid.New(),
		Email:       "admin@example.com",
		FullName:    "Admin Wang",
		IsSuperuser: true,
	}
	return r.WithContext(auth.WithIdentity(r.Context(), id))
}

func seedApproval(t *testing.T, engine *humanloop.Engine, conversationID, requestID string) *humanloop.Request {
	t.Helper()
	req, err := engine.Create(context.Background(), uuid.New(), humanloop.CreateInput{
		TaskID:         "task-1",
		ConversationID: conversationID,
		RequestID:      requestID,
		LoopType:       humanloop.LoopTypeApproval,
		Platform:       humanloop.PlatformWechat,
	})
	require.NoError(t, err)
	return req
}

// =============================================================================
// 🧪 列表与详情测试
// =============================================================================

func TestAdminHandler_ListRequests(t *testing.T) {
	handler, engine := newAdminTestHandler(t)
	seedApproval(t, engine, "conv-1", "req-1")
	seedApproval(t, engine, "conv-1", "req-2")

	r := withAdmin(httptest.NewRequest(http.MethodGet, "/api/v1/admin/humanloop/requests?loop_type=approval", nil))
	w := httptest.NewRecorder()
	handler.HandleListRequests(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp ListResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(2), resp.Count)
	assert.Equal(t, humanloop.DefaultListLimit, resp.Limit)
}

func TestAdminHandler_GetRequest(t *testing.T) {
	handler, engine := newAdminTestHandler(t)
	req := seedApproval(t, engine, "conv-1", "req-1")

	r := withAdmin(httptest.NewRequest(http.MethodGet, "/api/v1/admin/humanloop/requests/"+req.ID.String(), nil))
	r.SetPathValue("id", req.ID.String())
	w := httptest.NewRecorder()
	handler.HandleGetRequest(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
}

func TestAdminHandler_GetRequest_InvalidID(t *testing.T) {
	handler, _ := newAdminTestHandler(t)

	r := withAdmin(httptest.NewRequest(http.MethodGet, "/api/v1/admin/humanloop/requests/garbage", nil))
	r.SetPathValue("id", "garbage")
	w := httptest.NewRecorder()
	handler.HandleGetRequest(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request ID format", decodeResponse(t, w).Error.Message)
}

func TestAdminHandler_GetRequest_NotFound(t *testing.T) {
	handler, _ := newAdminTestHandler(t)

	id := uuid.NewString()
	r := withAdmin(httptest.NewRequest(http.MethodGet, "/api/v1/admin/humanloop/requests/"+id, nil))
	r.SetPathValue("id", id)
	w := httptest.NewRecorder()
	handler.HandleGetRequest(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Request not found", decodeResponse(t, w).Error.Message)
}

// =============================================================================
// 🧪 处理接口测试
// =============================================================================

func TestAdminHandler_Approval(t *testing.T) {
	handler, engine := newAdminTestHandler(t)
	req := seedApproval(t, engine, "conv-1", "req-1")

	r := withAdmin(httptest.NewRequest(http.MethodPost, "/api/v1/admin/humanloop/approval",
		jsonBody(t, map[string]any{
			"request_id": req.ID.String(),
			"action":     "approved",
			"feedback":   "ok",
		})))
	w := httptest.NewRecorder()
	handler.HandleApproval(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeResponse(t, w).Success)

	// responded_by 使用操作者的全名
	got, err := engine.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, humanloop.StatusApproved, got.Status)
	require.NotNil(t, got.RespondedBy)
	assert.Equal(t, "Admin Wang", *got.RespondedBy)
}

func TestAdminHandler_Approval_InvalidID(t *testing.T) {
	handler, _ := newAdminTestHandler(t)

	r := withAdmin(httptest.NewRequest(http.MethodPost, "/api/v1/admin/humanloop/approval",
		jsonBody(t, map[string]any{"request_id": "oops", "action": "approved"})))
	w := httptest.NewRecorder()
	handler.HandleApproval(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "Invalid request ID format", resp.Error.Message)
}

func TestAdminHandler_Approval_TypeMismatch(t *testing.T) {
	handler, engine := newAdminTestHandler(t)
	req, err := engine.Create(context.Background(), uuid.New(), humanloop.CreateInput{
		TaskID:         "task-1",
		ConversationID: "conv-1",
		RequestID:      "req-1",
		LoopType:       humanloop.LoopTypeInformation,
		Platform:       humanloop.PlatformWechat,
	})
	require.NoError(t, err)

	r := withAdmin(httptest.NewRequest(http.MethodPost, "/api/v1/admin/humanloop/approval",
		jsonBody(t, map[string]any{"request_id": req.ID.String(), "action": "approved"})))
	w := httptest.NewRecorder()
	handler.HandleApproval(w, r)

	// 业务失败以 200 包络返回，success=false 加可读错误
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TYPE_MISMATCH", resp.Error.Code)
	assert.Equal(t, "Request type mismatch. Expected 'approval', got 'information'", resp.Error.Message)

	// 原记录不受影响
	got, err := engine.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, humanloop.StatusPending, got.Status)
}

func TestAdminHandler_Information(t *testing.T) {
	handler, engine := newAdminTestHandler(t)
	req, err := engine.Create(context.Background(), uuid.New(), humanloop.CreateInput{
		TaskID:         "task-1",
		ConversationID: "conv-1",
		RequestID:      "req-1",
		LoopType:       humanloop.LoopTypeInformation,
		Platform:       humanloop.PlatformFeishu,
	})
	require.NoError(t, err)

	r := withAdmin(httptest.NewRequest(http.MethodPost, "/api/v1/admin/humanloop/information",
		jsonBody(t, map[string]any{
			"request_id": req.ID.String(),
			"response":   map[string]any{"answer": "42"},
		})))
	w := httptest.NewRecorder()
	handler.HandleInformation(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	got, err := engine.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, humanloop.StatusCompleted, got.Status)
}

func TestAdminHandler_Conversation(t *testing.T) {
	handler, engine := newAdminTestHandler(t)
	req, err := engine.Create(context.Background(), uuid.New(), humanloop.CreateInput{
		TaskID:         "task-1",
		ConversationID: "conv-1",
		RequestID:      "turn-1",
		LoopType:       humanloop.LoopTypeConversation,
		Platform:       humanloop.PlatformWechat,
	})
	require.NoError(t, err)

	r := withAdmin(httptest.NewRequest(http.MethodPost, "/api/v1/admin/humanloop/conversation",
		jsonBody(t, map[string]any{
			"request_id":  req.ID.String(),
			"response":    map[string]any{"reply": "请补充"},
			"is_complete": false,
		})))
	w := httptest.NewRecorder()
	handler.HandleConversation(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	got, err := engine.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, humanloop.StatusInProgress, got.Status)
}

func TestAdminHandler_UpdateStatus(t *testing.T) {
	handler, engine := newAdminTestHandler(t)
	req := seedApproval(t, engine, "conv-1", "req-1")

	r := withAdmin(httptest.NewRequest(http.MethodPost,
		"/api/v1/admin/humanloop/requests/"+req.ID.String()+"/status?status=expired", nil))
	r.SetPathValue("id", req.ID.String())
	w := httptest.NewRecorder()
	handler.HandleUpdateStatus(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	got, err := engine.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, humanloop.StatusExpired, got.Status)
}

func TestAdminHandler_UpdateStatus_InvalidStatus(t *testing.T) {
	handler, engine := newAdminTestHandler(t)
	req := seedApproval(t, engine, "conv-1", "req-1")

	r := withAdmin(httptest.NewRequest(http.MethodPost,
		"/api/v1/admin/humanloop/requests/"+req.ID.String()+"/status?status=frozen", nil))
	r.SetPathValue("id", req.ID.String())
	w := httptest.NewRecorder()
	handler.HandleUpdateStatus(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error.Message, "Invalid status. Must be one of:")
}

// =============================================================================
// 🧪 批量接口测试
// =============================================================================

func TestAdminHandler_Batch(t *testing.T) {
	handler, engine := newAdminTestHandler(t)
	first := seedApproval(t, engine, "conv-1", "req-1")
	second := seedApproval(t, engine, "conv-1", "req-2")

	r := withAdmin(httptest.NewRequest(http.MethodPost, "/api/v1/admin/humanloop/batch",
		jsonBody(t, map[string]any{
			"request_ids": []string{first.ID.String(), second.ID.String()},
			"action":      "approved",
		})))
	w := httptest.NewRecorder()
	handler.HandleBatch(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
}

func TestAdminHandler_Batch_PartialFailure(t *testing.T) {
	handler, engine := newAdminTestHandler(t)
	ok := seedApproval(t, engine, "conv-1", "req-1")

	r := withAdmin(httptest.NewRequest(http.MethodPost, "/api/v1/admin/humanloop/batch",
		jsonBody(t, map[string]any{
			"request_ids": []string{ok.ID.String(), "bogus"},
			"action":      "rejected",
		})))
	w := httptest.NewRecorder()
	handler.HandleBatch(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	// 有成功条目即视为整体成功，错误列表随消息附带
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.True(t, strings.HasPrefix(resp.Error.Message, "Processed 1 requests. Errors: "))
	assert.Contains(t, resp.Error.Message, "Invalid request ID format: bogus")
}

func TestAdminHandler_Batch_Empty(t *testing.T) {
	handler, _ := newAdminTestHandler(t)

	r := withAdmin(httptest.NewRequest(http.MethodPost, "/api/v1/admin/humanloop/batch",
		jsonBody(t, map[string]any{"request_ids": []string{}, "action": "approved"})))
	w := httptest.NewRecorder()
	handler.HandleBatch(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "Request IDs cannot be empty", resp.Error.Message)
}

// =============================================================================
// 🧪 统计接口测试
// =============================================================================

func TestAdminHandler_Stats(t *testing.T) {
	handler, engine := newAdminTestHandler(t)
	seedApproval(t, engine, "conv-1", "req-1")

	r := withAdmin(httptest.NewRequest(http.MethodGet, "/api/v1/admin/humanloop/stats", nil))
	w := httptest.NewRecorder()
	handler.HandleStats(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, data["total"])
	assert.Contains(t, data, "by_status")
	assert.Contains(t, data, "summary")
}
