package models

import "time"

const (
	MessageText = "text"
	MessageFile = "file"
)

// Message 会话消息，写入后不可变（审计用，不支持编辑/删除）。
// SenderID 为空表示游客消息；IsFromAgent 只有在发送者是该会话
// 已认领坐席时才为 true，不等于“发送者是员工”。
type Message struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ConversationID uint      `json:"conversation_id" gorm:"index:idx_conv_created,priority:1"`
	SenderID       *uint     `json:"sender_id"`
	IsFromAgent    bool      `json:"is_from_agent" gorm:"index"`
	MessageType    string    `json:"message_type" gorm:"default:'text'"`
	Content        string    `json:"content" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at" gorm:"index:idx_conv_created,priority:2"`
	// 关联
	Sender      *User        `json:"sender,omitempty" gorm:"foreignKey:SenderID"`
	Attachments []Attachment `json:"attachments" gorm:"foreignKey:MessageID"`
}

const (
	FileTypePDF   = "pdf"
	FileTypeImage = "image"
	FileTypeVideo = "video"
	FileTypeOther = "other"
)

// Attachment 消息附件
type Attachment struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	MessageID  uint      `json:"message_id" gorm:"index"`
	FilePath   string    `json:"file_path"` // 存储路径（相对于上传目录）
	FileType   string    `json:"file_type"` // pdf, image, video, other
	FileName   string    `json:"file_name"`
	FileSize   int64     `json:"file_size"` // bytes
	UploadedAt time.Time `json:"uploaded_at" gorm:"autoCreateTime"`
}
