package services

import (
	"ShopHub/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Identity 调用方身份：已登录用户或带会话标识的游客，二者取一。
type Identity struct {
	User           *models.User
	GuestSessionID string
	GuestMinted    bool // 本次请求新发的游客标识，响应里要带回去给前端复用
}

func (i Identity) IsAuthenticated() bool {
	return i.User != nil
}

// GuestIdentity 游客身份；sessionID 为空时现场发一个
func GuestIdentity(sessionID string) Identity {
	if sessionID == "" {
		return Identity{GuestSessionID: uuid.New().String(), GuestMinted: true}
	}
	return Identity{GuestSessionID: sessionID}
}

// IsSupportAgent 判断用户能否执行坐席操作：有坐席档案，或是管理员。
// 注意这只是操作权限，消息归属永远比对会话里存的 agent（见 ResolveSender）。
func IsSupportAgent(db *gorm.DB, user *models.User) bool {
	if user == nil {
		return false
	}
	if user.Type == "admin" {
		return true
	}
	var count int64
	db.Model(&models.SupportAgent{}).Where("user_id = ?", user.ID).Count(&count)
	return count > 0
}

// ResolveSender 消息归属。发送者永远从会话里存的 customer/agent 推出来，
// 不信连接上残留的登录态：
//   - 当前登录用户就是会话已认领的坐席 -> 坐席消息
//   - 否则会话有 customer 就记在 customer 头上
//   - 否则是游客会话，sender 为空
//
// 这样登出后还挂着的旧连接发消息不会串到原账号，
// 员工以客户身份看会话也不会被误标成坐席。
func ResolveSender(conv *models.Conversation, ident Identity) (senderID *uint, isFromAgent bool) {
	if ident.User != nil && conv.AgentID != nil && *conv.AgentID == ident.User.ID {
		id := ident.User.ID
		return &id, true
	}
	if conv.CustomerID != nil {
		id := *conv.CustomerID
		return &id, false
	}
	return nil, false
}
