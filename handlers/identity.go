package handlers

import (
	"ShopHub/models"
	"ShopHub/services"

	"github.com/labstack/echo/v4"
)

// 游客会话标识的传递位置。header 优先，WebSocket 握手用 query 参数。
const (
	guestSessionHeader = "X-Guest-Session"
	guestSessionQuery  = "guest_session"
)

// currentIdentity 从请求里取调用方身份。登录用户由 auth 中间件放进
// context；否则按游客处理，没带标识就现场发一个（响应里会带回去）。
func currentIdentity(c echo.Context) services.Identity {
	if user, ok := c.Get("user").(*models.User); ok && user != nil {
		return services.Identity{User: user}
	}
	session := c.Request().Header.Get(guestSessionHeader)
	if session == "" {
		session = c.QueryParam(guestSessionQuery)
	}
	return services.GuestIdentity(session)
}
