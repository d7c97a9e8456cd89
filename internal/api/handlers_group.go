package api

import (
	"Murmur/internal/api/handler"
	"Murmur/internal/pkg/security"
)

// HandlersGroup 封装了所有已初始化的 Handler 实例
type HandlersGroup struct {
	Gate        *security.Gate
	AuthHandler *handler.AuthHandler
	IMHandler   *handler.IMHandler
	WsHandler   *handler.WsHandler
}
