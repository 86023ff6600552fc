package models

import "time"

type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex"`
	Username  string    `json:"username" gorm:"uniqueIndex"`
	Password  string    `json:"-"`    // hashed
	Type      string    `json:"type"` // admin, agent, client(客户)
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

// SupportAgent 客服坐席档案，和 User 一对一
type SupportAgent struct {
	ID                       uint      `json:"id" gorm:"primaryKey"`
	UserID                   uint      `json:"user_id" gorm:"uniqueIndex"`
	IsAvailable              bool      `json:"is_available" gorm:"default:true"`
	ActiveConversationsCount int       `json:"active_conversations_count" gorm:"default:0"` // 由 claim/close 重新统计，不做自增
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
	// 关联
	User User `json:"user" gorm:"foreignKey:UserID"`
}
