package handler

import (
	"Murmur/internal/api/config"
	"Murmur/internal/api/dto"
	"Murmur/internal/im/hub"
	"Murmur/internal/pkg/apperr"
	"Murmur/internal/pkg/response"
	"Murmur/internal/pkg/security"
	"Murmur/internal/pkg/util"
	"Murmur/internal/service"
	"context"
	"fmt"
	log "log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

var ErrUnknownEvent = apperr.ErrValidation.WithMessage("unknown event")

type WsHandler struct {
	imService  service.IMService
	gate       *security.Gate
	upgrader   websocket.Upgrader
	sendBuffer int
	writeWait  time.Duration
	pongWait   time.Duration
	maxMessage int64
}

func NewWsHandler(im service.IMService, gate *security.Gate, cfg config.HubConfig) *WsHandler {
	s := &WsHandler{
		imService:  im,
		gate:       gate,
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		sendBuffer: cfg.SendBuffer,
		writeWait:  time.Duration(cfg.WriteWait) * time.Second,
		pongWait:   time.Duration(cfg.PongWait) * time.Second,
		maxMessage: cfg.MaxMessageSize,
	}
	if s.writeWait <= 0 {
		s.writeWait = 10 * time.Second
	}
	if s.pongWait <= 0 {
		s.pongWait = 60 * time.Second
	}
	if s.maxMessage <= 0 {
		s.maxMessage = 64 * 1024
	}
	return s
}

// Connect 握手阶段完成鉴权，失败时在升级前返回 401
func (s *WsHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = security.BearerToken(c.GetHeader("Authorization"))
	}
	claims, err := s.gate.Authenticate(c.Request.Context(), token)
	if err != nil {
		log.WarnContext(c.Request.Context(), "ws handshake rejected", "err", err)
		response.Error(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.ErrorContext(c.Request.Context(), "ws upgrade failed", "err", err)
		return
	}

	// 连接上的变更在连接断开后仍需完成
	ctx := context.WithoutCancel(c.Request.Context())
	client := hub.NewClient(claims.UserID, s.sendBuffer)
	if err := s.imService.Connect(ctx, client); err != nil {
		log.ErrorContext(ctx, "bind connection failed", "userID", claims.UserID, "err", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, apperr.GetMessage(err)),
			time.Now().Add(s.writeWait))
		_ = conn.Close()
		return
	}

	go s.writePump(ctx, conn, client)
	s.readPump(ctx, conn, client)
}

func (s *WsHandler) readPump(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		s.imService.Disconnect(ctx, client)
		client.Close()
		_ = conn.Close()
	}()

	conn.SetReadLimit(s.maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WarnContext(ctx, "ws read failed", "connID", client.ID(), "err", err)
			}
			return
		}

		var env hub.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			s.reply(ctx, client, "", apperr.ErrValidation.WithMessage("malformed envelope"))
			continue
		}
		if err := s.handle(ctx, client, env); err != nil {
			s.reply(ctx, client, env.Event, err)
		}
	}
}

func (s *WsHandler) writePump(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(s.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg := <-client.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.WarnContext(ctx, "ws write failed", "connID", client.ID(), "err", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(s.writeWait))
			return
		}
	}
}

// handle 单个事件的处理，panic 被恢复并以 SERVER_ERROR 回复
func (s *WsHandler) handle(ctx context.Context, client *hub.Client, env hub.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "ws event handler panic", "event", env.Event, "panic", r)
			err = apperr.ErrServer.Wrap(fmt.Errorf("panic: %v", r))
		}
	}()

	uid := client.UserID()
	switch env.Event {
	case dto.EventJoinConversation:
		req, err := decode[dto.ConversationReq](env.Data)
		if err != nil {
			return err
		}
		return s.imService.JoinConversation(ctx, client, req.ConversationID)
	case dto.EventLeaveConversation:
		req, err := decode[dto.ConversationReq](env.Data)
		if err != nil {
			return err
		}
		s.imService.LeaveConversation(ctx, client, req.ConversationID)
		return nil
	case dto.EventMessageSend:
		req, err := decode[dto.SendMessageReq](env.Data)
		if err != nil {
			return err
		}
		_, err = s.imService.SendMessage(ctx, uid, req)
		return err
	case dto.EventMessageEdit:
		req, err := decode[dto.EditMessageReq](env.Data)
		if err != nil {
			return err
		}
		return s.imService.EditMessage(ctx, uid, req)
	case dto.EventMessageDelete:
		req, err := decode[dto.MessageIDReq](env.Data)
		if err != nil {
			return err
		}
		return s.imService.DeleteMessage(ctx, uid, req.MessageID)
	case dto.EventMessageRead:
		req, err := decode[dto.ReadReq](env.Data)
		if err != nil {
			return err
		}
		return s.imService.MarkRead(ctx, uid, req.ConversationID, req.MessageID)
	case dto.EventMessageReact:
		req, err := decode[dto.ReactReq](env.Data)
		if err != nil {
			return err
		}
		return s.imService.React(ctx, uid, req)
	case dto.EventTyping:
		req, err := decode[dto.TypingReq](env.Data)
		if err != nil {
			return err
		}
		return s.imService.Typing(ctx, client, req)
	}
	return ErrUnknownEvent
}

func decode[T any](data json.RawMessage) (*T, error) {
	req := new(T)
	if len(data) == 0 {
		return nil, apperr.ErrValidation.WithMessage("data is required")
	}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, apperr.ErrValidation.WithMessage("malformed data")
	}
	if err := util.ValidateDTO(req); err != nil {
		return nil, err
	}
	return req, nil
}

// reply 错误只发给发起事件的连接
func (s *WsHandler) reply(ctx context.Context, client *hub.Client, event string, err error) {
	if !apperr.IsKnown(err) || apperr.Is(err, apperr.ErrServer) {
		log.ErrorContext(ctx, "ws event failed", "event", event, "connID", client.ID(), "err", err)
	}
	payload, encErr := hub.Encode(dto.EventErrorGeneric, &dto.ErrorDTO{
		Code:    apperr.GetCode(err),
		Message: apperr.GetMessage(err),
		Event:   event,
	})
	if encErr != nil {
		return
	}
	client.TrySend(payload)
}
