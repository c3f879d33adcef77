package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ptonlix/gohumanloophub/types"
)

// fakeIssuer 模拟令牌签发
type fakeIssuer struct {
	token string
	err   error
}

func (f *fakeIssuer) Login(ctx context.Context, email, password string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

func loginRequest(form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/login/access-token",
		strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestAuthHandler_Login(t *testing.T) {
	handler := NewAuthHandler(&fakeIssuer{token: "tok-123"}, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleLogin(w, loginRequest(url.Values{
		"username": {"admin@example.com"},
		"password": {"s3cret"},
	}))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp TokenResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "tok-123", resp.AccessToken)
	assert.Equal(t, "bearer", resp.TokenType)
}

func TestAuthHandler_Login_MissingFields(t *testing.T) {
	handler := NewAuthHandler(&fakeIssuer{token: "tok"}, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleLogin(w, loginRequest(url.Values{"username": {"admin@example.com"}}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandler_Login_BadCredentials(t *testing.T) {
	issuer := &fakeIssuer{err: types.NewError(types.ErrAuthentication, "Incorrect email or password").
		WithHTTPStatus(http.StatusBadRequest)}
	handler := NewAuthHandler(issuer, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleLogin(w, loginRequest(url.Values{
		"username": {"admin@example.com"},
		"password": {"wrong"},
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Incorrect email or password", decodeResponse(t, w).Error.Message)
}

func TestAuthHandler_Login_MethodNotAllowed(t *testing.T) {
	handler := NewAuthHandler(&fakeIssuer{token: "tok"}, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleLogin(w, httptest.NewRequest(http.MethodGet, "/api/v1/login/access-token", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
