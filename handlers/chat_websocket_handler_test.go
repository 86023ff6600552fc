package handlers

import (
	"ShopHub/bus"
	"ShopHub/models"
	"ShopHub/services"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type wsTestServer struct {
	server  *httptest.Server
	db      *gorm.DB
	convSvc *services.ConversationService
	msgSvc  *services.MessageService
}

// 起一个只挂 ws 路由的测试服务。userFor 模拟 auth 中间件：
// 按请求返回登录用户，nil 表示游客。
func newWSTestServer(t *testing.T, userFor func(r *http.Request) *models.User) *wsTestServer {
	t.Helper()
	db := newTestDB(t)
	memoryBus := bus.NewMemory()
	convSvc := services.NewConversationService(db, memoryBus, nil)
	msgSvc := services.NewMessageService(db, memoryBus)
	h := NewChatWebSocketHandler(db, memoryBus, nil, convSvc, msgSvc)

	e := echo.New()
	inject := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if user := userFor(c.Request()); user != nil {
				c.Set("user", user)
			}
			return next(c)
		}
	}
	e.GET("/conversations/:conversationId/ws", h.HandleWebSocket, inject)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return &wsTestServer{server: srv, db: db, convSvc: convSvc, msgSvc: msgSvc}
}

func (s *wsTestServer) wsURL(conversationID uint, query string) string {
	url := strings.Replace(s.server.URL, "http", "ws", 1)
	url = fmt.Sprintf("%s/conversations/%d/ws", url, conversationID)
	if query != "" {
		url += "?" + query
	}
	return url
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event map[string]interface{}
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func expectNoEvent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var event map[string]interface{}
	err := conn.ReadJSON(&event)
	require.Error(t, err, "expected no event, got %v", event)
}

func TestWebSocketMessageBroadcast(t *testing.T) {
	srv := newWSTestServer(t, func(*http.Request) *models.User { return nil })
	conv, err := srv.convSvc.Create(services.GuestIdentity("g1"))
	require.NoError(t, err)

	first := dialWS(t, srv.wsURL(conv.ID, "guest_session=g1"))
	second := dialWS(t, srv.wsURL(conv.ID, "guest_session=g1"))

	// 等两个连接都注册进广播组
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, first.WriteJSON(map[string]interface{}{
		"type":    "message",
		"content": "hello",
	}))

	// 发送方自己也从广播收，所有人看到同一条流
	for _, conn := range []*websocket.Conn{first, second} {
		event := readEvent(t, conn)
		require.Equal(t, "message", event["type"])
		data := event["data"].(map[string]interface{})
		assert.Equal(t, "hello", data["content"])
		assert.Equal(t, "Guest", data["sender_name"])
		assert.Nil(t, data["sender"])
		assert.Equal(t, false, data["is_from_agent"])
	}

	// 消息真的落了库
	stored, err := srv.msgSvc.List(conv.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "hello", stored[0].Content)
}

func TestWebSocketMessageOrdering(t *testing.T) {
	srv := newWSTestServer(t, func(*http.Request) *models.User { return nil })
	conv, err := srv.convSvc.Create(services.GuestIdentity("g1"))
	require.NoError(t, err)

	sender := dialWS(t, srv.wsURL(conv.ID, "guest_session=g1"))
	receiver := dialWS(t, srv.wsURL(conv.ID, "guest_session=g1"))
	time.Sleep(100 * time.Millisecond)

	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, sender.WriteJSON(map[string]interface{}{
			"type":    "message",
			"content": fmt.Sprintf("msg-%02d", i),
		}))
	}

	for i := 0; i < n; i++ {
		event := readEvent(t, receiver)
		data := event["data"].(map[string]interface{})
		assert.Equal(t, fmt.Sprintf("msg-%02d", i), data["content"])
	}
}

func TestWebSocketMalformedJSON(t *testing.T) {
	srv := newWSTestServer(t, func(*http.Request) *models.User { return nil })
	conv, err := srv.convSvc.Create(services.GuestIdentity("g1"))
	require.NoError(t, err)

	sender := dialWS(t, srv.wsURL(conv.ID, "guest_session=g1"))
	other := dialWS(t, srv.wsURL(conv.ID, "guest_session=g1"))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte("{not json")))

	// 错误只回给发送方，连接不断
	event := readEvent(t, sender)
	assert.Equal(t, "error", event["type"])
	assert.Equal(t, "Invalid JSON", event["message"])
	expectNoEvent(t, other)

	// 连接还能继续用。gorilla 的读错误是粘性的：expectNoEvent 超时后
	// other 不能再读，所以从 sender（广播也会回给发送方）确认
	require.NoError(t, sender.WriteJSON(map[string]interface{}{
		"type":    "message",
		"content": "still alive",
	}))
	event = readEvent(t, sender)
	assert.Equal(t, "message", event["type"])
}

func TestWebSocketUnknownEventType(t *testing.T) {
	srv := newWSTestServer(t, func(*http.Request) *models.User { return nil })
	conv, err := srv.convSvc.Create(services.GuestIdentity("g1"))
	require.NoError(t, err)

	conn := dialWS(t, srv.wsURL(conv.ID, "guest_session=g1"))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "dance"}))
	event := readEvent(t, conn)
	assert.Equal(t, "error", event["type"])
	assert.Equal(t, "unknown event type", event["message"])
}

func TestWebSocketEmptyMessageNotBroadcast(t *testing.T) {
	srv := newWSTestServer(t, func(*http.Request) *models.User { return nil })
	conv, err := srv.convSvc.Create(services.GuestIdentity("g1"))
	require.NoError(t, err)

	sender := dialWS(t, srv.wsURL(conv.ID, "guest_session=g1"))
	other := dialWS(t, srv.wsURL(conv.ID, "guest_session=g1"))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, sender.WriteJSON(map[string]interface{}{
		"type":    "message",
		"content": "",
	}))

	event := readEvent(t, sender)
	assert.Equal(t, "error", event["type"])
	expectNoEvent(t, other)

	stored, err := srv.msgSvc.List(conv.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestWebSocketTypingExcludesSender(t *testing.T) {
	srv := newWSTestServer(t, func(*http.Request) *models.User { return nil })
	conv, err := srv.convSvc.Create(services.GuestIdentity("g1"))
	require.NoError(t, err)

	sender := dialWS(t, srv.wsURL(conv.ID, "guest_session=g1"))
	other := dialWS(t, srv.wsURL(conv.ID, "guest_session=g1"))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, sender.WriteJSON(map[string]interface{}{
		"type":      "typing",
		"is_typing": true,
	}))

	event := readEvent(t, other)
	assert.Equal(t, "typing", event["type"])
	assert.Equal(t, "Guest", event["user"])
	assert.Equal(t, true, event["is_typing"])
	// typing 不回显给发送方
	expectNoEvent(t, sender)

	// 也不落库
	stored, err := srv.msgSvc.List(conv.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestWebSocketAgentAttribution(t *testing.T) {
	var agent *models.User
	srv := newWSTestServer(t, func(r *http.Request) *models.User {
		if r.URL.Query().Get("as") == "agent" {
			return agent
		}
		return nil
	})
	agent = createTestAgent(t, srv.db, "carol")

	conv, err := srv.convSvc.Create(services.GuestIdentity("g1"))
	require.NoError(t, err)
	_, err = srv.convSvc.Claim(conv.ID, agent)
	require.NoError(t, err)

	guest := dialWS(t, srv.wsURL(conv.ID, "guest_session=g1"))
	agentConn := dialWS(t, srv.wsURL(conv.ID, "as=agent"))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, agentConn.WriteJSON(map[string]interface{}{
		"type":    "message",
		"content": "how can I help",
	}))

	event := readEvent(t, guest)
	data := event["data"].(map[string]interface{})
	assert.Equal(t, true, data["is_from_agent"])
	assert.Equal(t, "carol", data["sender_name"])
	assert.Equal(t, float64(agent.ID), data["sender"])
}

// 坐席连接会加入 agents 组，收到新会话通知
func TestWebSocketAgentReceivesNewConversation(t *testing.T) {
	var agent *models.User
	srv := newWSTestServer(t, func(r *http.Request) *models.User {
		if r.URL.Query().Get("as") == "agent" {
			return agent
		}
		return nil
	})
	agent = createTestAgent(t, srv.db, "carol")

	conv, err := srv.convSvc.Create(services.GuestIdentity("g1"))
	require.NoError(t, err)
	_, err = srv.convSvc.Claim(conv.ID, agent)
	require.NoError(t, err)

	agentConn := dialWS(t, srv.wsURL(conv.ID, "as=agent"))
	time.Sleep(100 * time.Millisecond)

	_, err = srv.convSvc.Create(services.GuestIdentity("g2"))
	require.NoError(t, err)

	event := readEvent(t, agentConn)
	assert.Equal(t, "new_conversation", event["type"])
}

func TestWebSocketHandshakeDeniedForWrongGuest(t *testing.T) {
	srv := newWSTestServer(t, func(*http.Request) *models.User { return nil })
	conv, err := srv.convSvc.Create(services.GuestIdentity("g1"))
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(srv.wsURL(conv.ID, "guest_session=wrong"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebSocketHandshakeUnknownConversation(t *testing.T) {
	srv := newWSTestServer(t, func(*http.Request) *models.User { return nil })

	_, resp, err := websocket.DefaultDialer.Dial(srv.wsURL(99999, "guest_session=g1"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
