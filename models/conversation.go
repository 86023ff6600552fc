package models

import "time"

// 会话状态机: waiting -> active -> closed
const (
	ConversationWaiting = "waiting"
	ConversationActive  = "active"
	ConversationClosed  = "closed"
)

// Conversation 客服会话。CustomerID 和 GuestSessionID 互斥：
// 注册用户会话只设 CustomerID，游客会话只设 GuestSessionID。
type Conversation struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	CustomerID     *uint      `json:"customer_id" gorm:"index"`
	AgentID        *uint      `json:"agent_id" gorm:"index"` // 认领后才有值
	GuestSessionID string     `json:"guest_session_id,omitempty" gorm:"index"`
	Status         string     `json:"status" gorm:"index;default:'waiting'"`
	CreatedAt      time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ClosedAt       *time.Time `json:"closed_at"`
	// 关联
	Customer *User     `json:"customer,omitempty" gorm:"foreignKey:CustomerID"`
	Agent    *User     `json:"agent,omitempty" gorm:"foreignKey:AgentID"`
	Messages []Message `json:"messages,omitempty" gorm:"foreignKey:ConversationID"`
}

func (c *Conversation) IsClosed() bool {
	return c.Status == ConversationClosed
}

// ConversationSummary 列表视图，不带消息
type ConversationSummary struct {
	ID             uint       `json:"id"`
	CustomerName   string     `json:"customer_name"`
	AgentName      string     `json:"agent_name,omitempty"`
	Status         string     `json:"status"`
	GuestSessionID string     `json:"guest_session_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
}
