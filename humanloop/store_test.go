package humanloop

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ptonlix/gohumanloophub/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(setupTestDB(t), zap.NewNop())
}

func seedRequest(t *testing.T, store *Store, owner uuid.UUID, conversationID, requestID string, status Status) *Request {
	t.Helper()
	req := &Request{
		OwnerID:        owner,
		TaskID:         "task-1",
		ConversationID: conversationID,
		RequestID:      requestID,
		LoopType:       LoopTypeApproval,
		Platform:       PlatformWechat,
		Status:         status,
		Context:        types.Document{"message": "hello"},
	}
	require.NoError(t, store.Insert(store.DB(), req))
	return req
}

// =============================================================================
// 🧪 Store 测试
// =============================================================================

func TestStore_Insert_AssignsID(t *testing.T) {
	store := newTestStore(t)
	req := seedRequest(t, store, uuid.New(), "conv-1", "req-1", StatusPending)

	assert.NotEqual(t, uuid.Nil, req.ID)
	assert.False(t, req.CreatedAt.IsZero())
}

func TestStore_Insert_DuplicateNaturalKey(t *testing.T) {
	store := newTestStore(t)
	owner := uuid.New()
	seedRequest(t, store, owner, "conv-1", "req-1", StatusPending)

	// 复核前的查找窗口里另一个写入者可能抢先插入，
	// 唯一索引冲突必须落为已存在而非内部错误。
	err := store.Insert(store.DB(), &Request{
		OwnerID:        owner,
		TaskID:         "task-1",
		ConversationID: "conv-1",
		RequestID:      "req-1",
		LoopType:       LoopTypeApproval,
		Platform:       PlatformWechat,
		Status:         StatusPending,
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrAlreadyExists, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "Request already exists")
}

func TestStore_GetByID(t *testing.T) {
	store := newTestStore(t)
	req := seedRequest(t, store, uuid.New(), "conv-1", "req-1", StatusPending)

	got, err := store.GetByID(store.DB(), req.ID, false)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, "hello", got.Context["message"])
}

func TestStore_GetByID_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetByID(store.DB(), uuid.New(), false)
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "Request not found")
}

func TestStore_GetByNaturalKey(t *testing.T) {
	store := newTestStore(t)
	owner := uuid.New()
	req := seedRequest(t, store, owner, "conv-1", "req-1", StatusPending)

	got, err := store.GetByNaturalKey(store.DB(), NaturalKey{
		ConversationID: "conv-1",
		RequestID:      "req-1",
		Platform:       PlatformWechat,
		OwnerID:        owner,
	}, false)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)

	// 平台不同视为另一条记录
	_, err = store.GetByNaturalKey(store.DB(), NaturalKey{
		ConversationID: "conv-1",
		RequestID:      "req-1",
		Platform:       PlatformFeishu,
		OwnerID:        owner,
	}, false)
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestStore_PendingByConversation(t *testing.T) {
	store := newTestStore(t)
	owner := uuid.New()
	seedRequest(t, store, owner, "conv-1", "req-1", StatusPending)
	seedRequest(t, store, owner, "conv-1", "req-2", StatusPending)
	seedRequest(t, store, owner, "conv-1", "req-3", StatusCompleted)
	seedRequest(t, store, owner, "conv-2", "req-1", StatusPending)
	seedRequest(t, store, uuid.New(), "conv-1", "req-1", StatusPending)

	pending, err := store.PendingByConversation(store.DB(), "conv-1", PlatformWechat, owner, false)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	for _, req := range pending {
		assert.Equal(t, StatusPending, req.Status)
		assert.Equal(t, "conv-1", req.ConversationID)
		assert.Equal(t, owner, req.OwnerID)
	}
}

func TestStore_Apply_BumpsUpdatedAt(t *testing.T) {
	store := newTestStore(t)
	req := seedRequest(t, store, uuid.New(), "conv-1", "req-1", StatusPending)
	before := req.UpdatedAt

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.Apply(store.DB(), req, map[string]any{"status": StatusCancelled}))

	got, err := store.GetByID(store.DB(), req.ID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.True(t, got.UpdatedAt.After(before))
}

func TestStore_Apply_Empty(t *testing.T) {
	store := newTestStore(t)
	req := seedRequest(t, store, uuid.New(), "conv-1", "req-1", StatusPending)

	// 空更新不触发写入
	require.NoError(t, store.Apply(store.DB(), req, nil))
}
