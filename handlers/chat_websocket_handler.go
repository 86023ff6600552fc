package handlers

import (
	"ShopHub/bus"
	redisclient "ShopHub/redis"
	"ShopHub/services"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ChatClient 一条 WebSocket 连接。实现 bus.Subscriber，
// 广播经 send 队列由 writePump 串行写出。
type ChatClient struct {
	id             string // 连接唯一标识（UUID）
	identity       services.Identity
	conversationID uint
	conn           *websocket.Conn
	send           chan bus.Event // 发送消息队列（缓冲256条）
	groups         []string       // 已加入的广播组
	ctx            context.Context
	cancel         context.CancelFunc
}

func (c *ChatClient) ID() string { return c.id }

func (c *ChatClient) Deliver(event bus.Event) bool {
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// Close 被总线驱逐时由总线调用；取消上下文让两个 pump 退出
func (c *ChatClient) Close() {
	c.cancel()
}

// 仅发给本连接的本地错误事件，不广播、不断连
func (c *ChatClient) sendError(message string) {
	c.Deliver(bus.Event{
		"type":    "error",
		"message": message,
	})
}

func (c *ChatClient) username() string {
	if c.identity.User != nil {
		return c.identity.User.Username
	}
	return "Guest"
}

// 连接状态机：connecting -> joined -> closed。
// 连接期间入站事件只有 message / typing，出站都走广播组。
type ChatWebSocketHandler struct {
	db            *gorm.DB
	bus           bus.Bus
	redis         *redisclient.RedisClient // 可为 nil（测试/无 redis 部署）
	conversations *services.ConversationService
	messages      *services.MessageService
}

func NewChatWebSocketHandler(db *gorm.DB, b bus.Bus, redisClient *redisclient.RedisClient,
	conversations *services.ConversationService, messages *services.MessageService) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{
		db:            db,
		bus:           b,
		redis:         redisClient,
		conversations: conversations,
		messages:      messages,
	}
}

type inboundEvent struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	IsTyping bool   `json:"is_typing"`
}

func (h *ChatWebSocketHandler) HandleWebSocket(c echo.Context) error {
	conversationID64, err := strconv.ParseUint(c.Param("conversationId"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid conversation ID"})
	}
	conversationID := uint(conversationID64)

	ident := currentIdentity(c)

	// 升级前先做会话访问校验，无权直接 403
	if _, err := h.conversations.Authorize(conversationID, ident); err != nil {
		switch err {
		case services.ErrConversationNotFound:
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		case services.ErrPermissionDenied:
			return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to open conversation"})
		}
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &ChatClient{
		id:             uuid.New().String(),
		identity:       ident,
		conversationID: conversationID,
		conn:           ws,
		send:           make(chan bus.Event, 256),
		ctx:            ctx,
		cancel:         cancel,
	}

	// 加入会话组；坐席额外加入 agents 通知组
	client.groups = append(client.groups, bus.ConversationGroup(conversationID))
	if services.IsSupportAgent(h.db, ident.User) {
		client.groups = append(client.groups, bus.AgentsGroup)
	}
	for _, g := range client.groups {
		h.bus.Join(g, client)
	}

	h.addPresence(client)

	// 启动写入goroutine
	go h.writePump(client)

	// 当前goroutine处理读取
	h.readPump(client)

	return nil
}

// 读取客户端消息
func (h *ChatWebSocketHandler) readPump(client *ChatClient) {
	defer func() {
		client.cancel()
		for _, g := range client.groups {
			h.bus.Leave(g, client)
		}
		h.removePresence(client)
		client.conn.Close()
	}()

	client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var event inboundEvent
		if err := json.Unmarshal(data, &event); err != nil {
			// 格式坏了只通知发送方，连接照常
			client.sendError("Invalid JSON")
			continue
		}

		h.handleEvent(client, &event)
	}
}

// 向客户端写入消息
func (h *ChatWebSocketHandler) writePump(client *ChatClient) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case <-client.ctx.Done():
			return

		case event := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteJSON(event); err != nil {
				log.Printf("WriteJSON error: %v", err)
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// 入站事件分发
func (h *ChatWebSocketHandler) handleEvent(client *ChatClient, event *inboundEvent) {
	switch event.Type {
	case "message":
		h.handleChatMessage(client, event.Content)
	case "typing":
		h.handleTyping(client, event.IsTyping)
	default:
		client.sendError("unknown event type")
	}
}

// 文本消息：先落库再经会话组广播，发送方自己也从广播收，
// 所有订阅方看到的是同一个顺序流
func (h *ChatWebSocketHandler) handleChatMessage(client *ChatClient, content string) {
	_, err := h.messages.Append(client.conversationID, client.identity, content)
	if err != nil {
		switch err {
		case services.ErrEmptyMessage:
			client.sendError("message content is empty")
		case services.ErrConversationNotFound:
			client.sendError("conversation not found")
		default:
			// 没落库就不广播，失败只报给发送方
			log.Printf("Failed to save message: %v", err)
			client.sendError("failed to save message")
		}
	}
}

// typing 是瞬时状态，不落库，排除发送方后直接转发
func (h *ChatWebSocketHandler) handleTyping(client *ChatClient, isTyping bool) {
	h.bus.Publish(bus.ConversationGroup(client.conversationID), &bus.Broadcast{
		Data: bus.Event{
			"type":      "typing",
			"user":      client.username(),
			"is_typing": isTyping,
		},
		ExceptIDs: map[string]bool{client.id: true},
	})
}

func (h *ChatWebSocketHandler) addPresence(client *ChatClient) {
	if h.redis == nil {
		return
	}
	info := redisclient.OnlineUser{
		ConnectionID: client.id,
		Username:     client.username(),
	}
	if client.identity.User != nil {
		info.UserID = client.identity.User.ID
		info.IsAgent = len(client.groups) > 1
	}
	h.redis.AddOnlineUser(context.Background(), client.conversationID, info)
}

func (h *ChatWebSocketHandler) removePresence(client *ChatClient) {
	if h.redis == nil {
		return
	}
	h.redis.RemoveOnlineUser(context.Background(), client.conversationID, client.id)
}

// HTTP接口：获取会话在线成员
func (h *ChatWebSocketHandler) GetOnlineUsers(c echo.Context) error {
	conversationID64, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid conversation ID"})
	}
	conversationID := uint(conversationID64)

	if _, err := h.conversations.Authorize(conversationID, currentIdentity(c)); err != nil {
		return conversationError(c, err)
	}

	users := []redisclient.OnlineUser{}
	if h.redis != nil {
		users, err = h.redis.GetOnlineUsers(c.Request().Context(), conversationID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "failed to fetch online users",
			})
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"count":           len(users),
		"users":           users,
	})
}

// 获取历史消息（升序，可分页重复拉取）
func (h *ChatWebSocketHandler) GetMessages(c echo.Context) error {
	conversationID64, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid conversation ID"})
	}
	conversationID := uint(conversationID64)

	if _, err := h.conversations.Authorize(conversationID, currentIdentity(c)); err != nil {
		return conversationError(c, err)
	}

	limit := 50
	offset := 0
	if v := c.QueryParam("offset"); v != "" {
		offset, _ = strconv.Atoi(v)
	}
	if v := c.QueryParam("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	messages, err := h.messages.List(conversationID, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to fetch messages",
		})
	}

	dtos := make([]map[string]interface{}, 0, len(messages))
	for i := range messages {
		dtos = append(dtos, services.MessageDTO(&messages[i]))
	}
	return c.JSON(http.StatusOK, dtos)
}
