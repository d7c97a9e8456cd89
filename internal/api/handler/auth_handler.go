package handler

import (
	"Murmur/internal/pkg/response"
	"Murmur/internal/pkg/security"

	"github.com/gin-gonic/gin"
)

// AuthHandler 凭据签发由外部身份服务负责，这里只提供注销
type AuthHandler struct {
	gate *security.Gate
}

func NewAuthHandler(gate *security.Gate) *AuthHandler {
	return &AuthHandler{gate: gate}
}

// Logout 注销当前 Token，之后的握手与 REST 请求都会被拒绝
func (s *AuthHandler) Logout(c *gin.Context) {
	token := security.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}
	if err := s.gate.Revoke(c.Request.Context(), token); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
