package handler

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/pkg/apperr"
	"Murmur/internal/pkg/consts"
	"Murmur/internal/pkg/response"
	"Murmur/internal/pkg/util"
	"Murmur/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type IMHandler struct {
	imService service.IMService
}

func NewIMHandler(imService service.IMService) *IMHandler {
	return &IMHandler{imService: imService}
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, apperr.ErrValidation.WithMessage("invalid parameters"))
		return false
	}
	return true
}

func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := util.ParseID(c.Param(name), name)
	if err != nil {
		response.Error(c, err)
		return 0, false
	}
	return id, true
}

// CreateConversation 创建会话
func (s *IMHandler) CreateConversation(c *gin.Context) {
	var req dto.CreateConversationReq
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.imService.CreateConversation(c.Request.Context(), c.GetUint64(consts.UserIDKey), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// ListConversations 会话列表，置顶优先，其次按最近活跃
func (s *IMHandler) ListConversations(c *gin.Context) {
	res, err := s.imService.ListConversations(c.Request.Context(), c.GetUint64(consts.UserIDKey))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) GetConversation(c *gin.Context) {
	convID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}
	res, err := s.imService.GetConversation(c.Request.Context(), c.GetUint64(consts.UserIDKey), convID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetHistory 历史消息，before 为上一页最后一条消息 ID
func (s *IMHandler) GetHistory(c *gin.Context) {
	convID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(consts.DefaultHistoryLimit)))
	if err != nil {
		response.Error(c, apperr.ErrValidation.WithMessage("field [limit] must be an integer"))
		return
	}

	res, err := s.imService.History(c.Request.Context(), c.GetUint64(consts.UserIDKey), convID, c.Query("before"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// SendMessage 与 socket 上的 message_send 等价，返回发送者视角的消息
func (s *IMHandler) SendMessage(c *gin.Context) {
	convID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}
	var req dto.SendMessageReq
	if !bindJSON(c, &req) {
		return
	}
	req.ConversationID = convID
	if err := util.ValidateDTO(&req); err != nil {
		response.Error(c, err)
		return
	}
	res, err := s.imService.SendMessage(c.Request.Context(), c.GetUint64(consts.UserIDKey), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *IMHandler) EditMessage(c *gin.Context) {
	var req dto.EditMessageReq
	if !bindJSON(c, &req) {
		return
	}
	req.MessageID = c.Param("message_id")
	if err := util.ValidateDTO(&req); err != nil {
		response.Error(c, err)
		return
	}
	if err := s.imService.EditMessage(c.Request.Context(), c.GetUint64(consts.UserIDKey), &req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// DeleteMessage 软删除，只有发送者可以删除
func (s *IMHandler) DeleteMessage(c *gin.Context) {
	if err := s.imService.DeleteMessage(c.Request.Context(), c.GetUint64(consts.UserIDKey), c.Param("message_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// AddReaction 已回应过时不重复计数
func (s *IMHandler) AddReaction(c *gin.Context) {
	var req dto.EmojiReq
	if !bindJSON(c, &req) {
		return
	}
	if err := s.imService.AddReaction(c.Request.Context(), c.GetUint64(consts.UserIDKey), c.Param("message_id"), req.Emoji); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *IMHandler) RemoveReaction(c *gin.Context) {
	if err := s.imService.RemoveReaction(c.Request.Context(), c.GetUint64(consts.UserIDKey), c.Param("message_id"), c.Param("emoji")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// RenameConversation 私聊不可改名，群聊需要管理员或协管
func (s *IMHandler) RenameConversation(c *gin.Context) {
	convID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}
	var req dto.RenameConversationReq
	if !bindJSON(c, &req) {
		return
	}
	if err := s.imService.RenameConversation(c.Request.Context(), c.GetUint64(consts.UserIDKey), convID, req.Name); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// SyncUnread 重连后校准未读数
func (s *IMHandler) SyncUnread(c *gin.Context) {
	res, err := s.imService.SyncUnread(c.Request.Context(), c.GetUint64(consts.UserIDKey))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// MarkAsRead 与 socket 上的 message_read 等价
func (s *IMHandler) MarkAsRead(c *gin.Context) {
	convID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}
	var req dto.MessageIDReq
	if !bindJSON(c, &req) {
		return
	}
	if err := util.ValidateDTO(&req); err != nil {
		response.Error(c, err)
		return
	}
	if err := s.imService.MarkRead(c.Request.Context(), c.GetUint64(consts.UserIDKey), convID, req.MessageID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *IMHandler) AddMember(c *gin.Context) {
	convID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}
	var req dto.AddMemberReq
	if !bindJSON(c, &req) {
		return
	}
	if err := s.imService.AddMember(c.Request.Context(), c.GetUint64(consts.UserIDKey), convID, &req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// RemoveMember 移除成员，移除自己即退出会话
func (s *IMHandler) RemoveMember(c *gin.Context) {
	convID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}
	target, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	if err := s.imService.RemoveMember(c.Request.Context(), c.GetUint64(consts.UserIDKey), convID, target); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *IMHandler) UpdateRole(c *gin.Context) {
	convID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}
	target, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	var req dto.UpdateRoleReq
	if !bindJSON(c, &req) {
		return
	}
	if err := s.imService.UpdateRole(c.Request.Context(), c.GetUint64(consts.UserIDKey), convID, target, req.Role); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// UpdateSettings 免打扰与置顶
func (s *IMHandler) UpdateSettings(c *gin.Context) {
	convID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}
	var req dto.UpdateSettingsReq
	if !bindJSON(c, &req) {
		return
	}
	if err := s.imService.UpdateSettings(c.Request.Context(), c.GetUint64(consts.UserIDKey), convID, &req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *IMHandler) GetPresence(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	res, err := s.imService.Presence(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
