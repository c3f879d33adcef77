package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ptonlix/gohumanloophub/types"
)

// =============================================================================
// 🎫 登录处理器
// =============================================================================

// TokenIssuer 用邮箱密码换取会话令牌
type TokenIssuer interface {
	Login(ctx context.Context, email, password string) (string, error)
}

// AuthHandler 管理端登录处理器
type AuthHandler struct {
	issuer TokenIssuer
	logger *zap.Logger
}

// NewAuthHandler 创建登录处理器
func NewAuthHandler(issuer TokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		issuer: issuer,
		logger: logger.With(zap.String("handler", "auth")),
	}
}

// TokenResponse 令牌响应
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// HandleLogin 登录换取访问令牌
// @Summary Login for access token
// @Description Exchange email and password for a bearer token
// @Tags auth
// @Accept x-www-form-urlencoded
// @Produce json
// @Param username formData string true "Email"
// @Param password formData string true "Password"
// @Success 200 {object} TokenResponse "Access token"
// @Failure 400 {object} Response "Incorrect credentials"
// @Router /v1/login/access-token [post]
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "Method not allowed", h.logger)
		return
	}

	if err := r.ParseForm(); err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "Invalid form data", h.logger)
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "Username and password are required", h.logger)
		return
	}

	token, err := h.issuer.Login(r.Context(), username, password)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(TokenResponse{AccessToken: token, TokenType: "bearer"}); err != nil {
		h.logger.Error("failed to encode token response", zap.Error(err))
	}
}
