package services

import (
	"ShopHub/bus"
	"ShopHub/models"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"
)

var (
	ErrEmptyMessage    = errors.New("message content is empty")
	ErrMessageNotFound = errors.New("message not found")
)

// MessageService 追加写消息日志。每个会话一把锁，入库和广播在锁内
// 完成，保证会话内 持久化顺序 == 广播顺序；入库失败就不广播，
// 不会出现订阅方看到一条库里没有的消息。消息本身不可变，没有写写冲突。
type MessageService struct {
	db    *gorm.DB
	bus   bus.Bus
	locks sync.Map // conversationID -> *sync.Mutex
}

func NewMessageService(db *gorm.DB, b bus.Bus) *MessageService {
	return &MessageService{db: db, bus: b}
}

func (s *MessageService) lockFor(conversationID uint) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(conversationID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Append 追加一条文本消息并广播给会话组（发送方也走同一条广播，
// 所有订阅方看到同一个顺序流）。
func (s *MessageService) Append(conversationID uint, ident Identity, content string) (*models.Message, error) {
	if content == "" {
		return nil, ErrEmptyMessage
	}

	mu := s.lockFor(conversationID)
	mu.Lock()
	defer mu.Unlock()

	conv, err := s.loadConversation(conversationID)
	if err != nil {
		return nil, err
	}

	msg, err := s.persist(conv, ident, models.MessageText, content)
	if err != nil {
		return nil, err
	}

	s.publish(msg)
	return msg, nil
}

// AppendFile 附件消息。messageID 给了就挂在已有消息上，
// 没给就新建一条 file 消息（content = 文件名）。附件落库后
// 把完整消息（带附件）重新广播一次。
func (s *MessageService) AppendFile(conversationID uint, ident Identity, messageID *uint, attachment *models.Attachment) (*models.Message, error) {
	mu := s.lockFor(conversationID)
	mu.Lock()
	defer mu.Unlock()

	conv, err := s.loadConversation(conversationID)
	if err != nil {
		return nil, err
	}

	var msg *models.Message
	if messageID != nil {
		var existing models.Message
		if err := s.db.Where("id = ? AND conversation_id = ?", *messageID, conversationID).
			First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrMessageNotFound
			}
			return nil, err
		}
		msg = &existing
	} else {
		msg, err = s.persist(conv, ident, models.MessageFile, attachment.FileName)
		if err != nil {
			return nil, err
		}
	}

	attachment.MessageID = msg.ID
	if err := s.db.Create(attachment).Error; err != nil {
		return nil, err
	}

	// 带上全部附件重新加载再广播
	if err := s.db.Preload("Sender").Preload("Attachments").First(msg, msg.ID).Error; err != nil {
		return nil, err
	}

	s.publish(msg)
	return msg, nil
}

// List 会话内消息，按创建时间升序，可分页重复拉取
func (s *MessageService) List(conversationID uint, limit, offset int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var messages []models.Message
	err := s.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Limit(limit).Offset(offset).
		Preload("Sender").Preload("Attachments").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *MessageService) loadConversation(conversationID uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.First(&conv, conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conv, nil
}

func (s *MessageService) persist(conv *models.Conversation, ident Identity, messageType, content string) (*models.Message, error) {
	senderID, isFromAgent := ResolveSender(conv, ident)
	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		IsFromAgent:    isFromAgent,
		MessageType:    messageType,
		Content:        content,
		CreatedAt:      time.Now(),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conv.ID).
			Update("updated_at", msg.CreatedAt).Error
	})
	if err != nil {
		return nil, err
	}

	if msg.SenderID != nil {
		var sender models.User
		if err := s.db.First(&sender, *msg.SenderID).Error; err == nil {
			msg.Sender = &sender
		}
	}
	return msg, nil
}

func (s *MessageService) publish(msg *models.Message) {
	s.bus.Publish(bus.ConversationGroup(msg.ConversationID), &bus.Broadcast{
		Data: bus.Event{
			"type": "message",
			"data": MessageDTO(msg),
		},
	})
}

// MessageDTO 广播/接口里的消息形态。sender_name 跟 is_from_agent 对齐：
// 坐席消息没名字时显示 Support Agent，客户消息没名字时显示 Guest。
func MessageDTO(msg *models.Message) map[string]interface{} {
	senderName := "Guest"
	if msg.IsFromAgent {
		senderName = "Support Agent"
	}
	if msg.Sender != nil {
		senderName = msg.Sender.Username
	}

	attachments := make([]map[string]interface{}, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		attachments = append(attachments, map[string]interface{}{
			"id":          a.ID,
			"file_path":   a.FilePath,
			"file_type":   a.FileType,
			"file_name":   a.FileName,
			"file_size":   a.FileSize,
			"uploaded_at": a.UploadedAt,
		})
	}

	var senderID interface{}
	if msg.SenderID != nil {
		senderID = *msg.SenderID
	}

	return map[string]interface{}{
		"id":            msg.ID,
		"conversation":  msg.ConversationID,
		"sender":        senderID,
		"sender_name":   senderName,
		"is_from_agent": msg.IsFromAgent,
		"message_type":  msg.MessageType,
		"content":       msg.Content,
		"created_at":    msg.CreatedAt,
		"attachments":   attachments,
	}
}
