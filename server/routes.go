package server

import (
	custommiddleware "ShopHub/middleware"
	"time"

	"github.com/labstack/echo/v4"
)

func (s *Server) SetupRoutes(authMiddleware, optionalAuth, agentMiddleware echo.MiddlewareFunc) {
	e := s.Echo
	api := e.Group("/api/v1")

	// Auth routes (unprotected)
	auth := api.Group("/auth")
	{
		auth.POST("/register", s.AuthHandler.Register)
		auth.POST("/login", s.AuthHandler.Login)
	}

	api.GET("/user", s.AuthHandler.GetCurrentUser, authMiddleware)

	// 客服入口对游客开放，token 可选；会话归属在 service 层逐条校验
	support := api.Group("/support")
	support.Use(optionalAuth)
	{
		createLimit := custommiddleware.NewRateLimitMiddleware(s.RateLimiter, custommiddleware.RateLimitConfig{
			Limit:  10,
			Window: time.Minute,
		})
		uploadLimit := custommiddleware.NewRateLimitMiddleware(s.RateLimiter, custommiddleware.RateLimitConfig{
			Limit:  20,
			Window: time.Minute,
		})

		support.POST("/conversations", s.ConversationHandler.CreateConversation, createLimit)                              // 客户/游客开会话
		support.GET("/conversations", s.ConversationHandler.ListConversations, authMiddleware)                             // 坐席全量，客户只看自己的
		support.GET("/conversations/:id", s.ConversationHandler.GetConversation)                                           // 详情+消息
		support.POST("/conversations/:id/claim", s.ConversationHandler.ClaimConversation, authMiddleware, agentMiddleware) // 坐席认领
		support.POST("/conversations/:id/close", s.ConversationHandler.CloseConversation, authMiddleware, agentMiddleware) // 坐席关闭
		support.GET("/conversations/:id/customer-details", s.ConversationHandler.GetCustomerDetails, authMiddleware, agentMiddleware)
		support.GET("/conversations/:id/messages", s.ChatWebSocketHandler.GetMessages)          // 历史消息
		support.GET("/conversations/:id/online-users", s.ChatWebSocketHandler.GetOnlineUsers)   // 在线成员
		support.POST("/upload", s.UploadHandler.Upload, uploadLimit)                            // 附件上传
		support.GET("/conversations/:conversationId/ws", s.ChatWebSocketHandler.HandleWebSocket)
	}
}
