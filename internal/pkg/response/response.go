package response

import (
	"Murmur/internal/pkg/apperr"
	"errors"
	log "log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// Response 统一返回结构
type Response struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

const CodeOK = "OK"

// Success 成功返回封装
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeOK,
		Message: "success",
		Data:    data,
	})
}

// Fail 失败返回封装
func Fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{
		Code:    code,
		Message: message,
	})
}

// Error 处理错误，未知错误记录日志后以 SERVER_ERROR 返回且不暴露细节
func Error(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		Fail(c, http.StatusBadRequest, apperr.CodeValidation, "invalid parameters")
		return
	}

	var unmarshalTypeError *json.UnmarshalTypeError
	if errors.As(err, &unmarshalTypeError) {
		Fail(c, http.StatusBadRequest, apperr.CodeValidation, "malformed json")
		return
	}

	if !apperr.IsKnown(err) {
		log.ErrorContext(c.Request.Context(), "unhandled error", "path", c.FullPath(), "err", err)
	} else if apperr.Is(err, apperr.ErrServer) {
		log.ErrorContext(c.Request.Context(), "server error", "path", c.FullPath(), "err", err)
	}
	Fail(c, apperr.GetStatus(err), apperr.GetCode(err), apperr.GetMessage(err))
}
