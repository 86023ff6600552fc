package handlers

import (
	"ShopHub/models"
	"ShopHub/services"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type ConversationHandler struct {
	conversations *services.ConversationService
	customers     *services.CustomerService
}

func NewConversationHandler(conversations *services.ConversationService, customers *services.CustomerService) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		customers:     customers,
	}
}

// service error 映射为 HTTP 状态码
func conversationError(c echo.Context, err error) error {
	switch err {
	case services.ErrConversationNotFound:
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case services.ErrPermissionDenied:
		return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
	case services.ErrAgentOnly:
		return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
	case services.ErrConversationClosed:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case services.ErrAlreadyClaimed:
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func conversationIDParam(c echo.Context) (uint, error) {
	id64, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return uint(id64), err
}

// CreateConversation 客户/游客开会话。请求显式带 guest_session_id 时
// 强制按游客处理——登出后浏览器里可能还有没过期的登录态，不能让
// 新会话挂回原账号。
func (h *ConversationHandler) CreateConversation(c echo.Context) error {
	var req struct {
		GuestSessionID string `json:"guest_session_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	var ident services.Identity
	if req.GuestSessionID != "" {
		ident = services.GuestIdentity(req.GuestSessionID)
	} else {
		ident = currentIdentity(c)
	}

	conv, err := h.conversations.Create(ident)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to create conversation",
		})
	}

	resp := map[string]interface{}{
		"conversation": conv,
	}
	if ident.GuestMinted {
		// 新发的游客标识，前端要存下来带在后续请求上
		resp["guest_session_id"] = ident.GuestSessionID
	}
	return c.JSON(http.StatusCreated, resp)
}

// ListConversations 坐席看全部，客户只看自己的
func (h *ConversationHandler) ListConversations(c echo.Context) error {
	user, ok := c.Get("user").(*models.User)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication required"})
	}

	conversations, err := h.conversations.List(user, c.QueryParam("status"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to fetch conversations",
		})
	}

	summaries := make([]models.ConversationSummary, 0, len(conversations))
	for i := range conversations {
		summaries = append(summaries, services.ToSummary(&conversations[i]))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"conversations": summaries,
		"total":         len(summaries),
	})
}

// GetConversation 详情 + 全部消息（升序）
func (h *ConversationHandler) GetConversation(c echo.Context) error {
	id, err := conversationIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid conversation ID"})
	}

	conv, err := h.conversations.Get(id, currentIdentity(c))
	if err != nil {
		return conversationError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// ClaimConversation 坐席认领，并发抢占只有一个成功
func (h *ConversationHandler) ClaimConversation(c echo.Context) error {
	id, err := conversationIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid conversation ID"})
	}
	user, ok := c.Get("user").(*models.User)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication required"})
	}

	conv, err := h.conversations.Claim(id, user)
	if err != nil {
		return conversationError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// CloseConversation 坐席关闭，幂等
func (h *ConversationHandler) CloseConversation(c echo.Context) error {
	id, err := conversationIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid conversation ID"})
	}
	user, ok := c.Get("user").(*models.User)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication required"})
	}

	conv, err := h.conversations.Close(id, user)
	if err != nil {
		return conversationError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// GetCustomerDetails 坐席侧客户面板（订单/购物车/心愿单）
func (h *ConversationHandler) GetCustomerDetails(c echo.Context) error {
	id, err := conversationIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid conversation ID"})
	}
	user, _ := c.Get("user").(*models.User)

	conv, err := h.conversations.Get(id, services.Identity{User: user})
	if err != nil {
		return conversationError(c, err)
	}

	details, err := h.customers.DetailsFor(conv)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to fetch customer details",
		})
	}
	return c.JSON(http.StatusOK, details)
}
