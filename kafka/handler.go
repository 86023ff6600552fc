package kafka

import (
	"ShopHub/models"
	"context"
	"encoding/json"
	"log"

	"github.com/IBM/sarama"
	"gorm.io/gorm"
)

// ConversationEventHandler 消费会话审计事件。除了落日志之外，
// 在 claim/close 事件上按库里真实数据重算坐席的 active_conversations_count，
// 作为事务内重算的对账兜底。
type ConversationEventHandler struct {
	db *gorm.DB
}

func NewConversationEventHandler(db *gorm.DB) *ConversationEventHandler {
	return &ConversationEventHandler{db: db}
}

func (h *ConversationEventHandler) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	var event ConversationEvent

	if err := json.Unmarshal(message.Value, &event); err != nil {
		log.Printf("Failed to unmarshal conversation event: %v", err)
		return err
	}

	log.Printf("Conversation audit: #%d %s", event.ConversationID, event.Action)

	if event.AgentID == 0 {
		return nil
	}

	switch event.Action {
	case EventConversationClaimed, EventConversationClosed:
		return h.reconcileAgentCount(event.AgentID)
	}

	return nil
}

func (h *ConversationEventHandler) reconcileAgentCount(agentUserID uint) error {
	var count int64
	if err := h.db.Model(&models.Conversation{}).
		Where("agent_id = ? AND status = ?", agentUserID, models.ConversationActive).
		Count(&count).Error; err != nil {
		return err
	}

	return h.db.Model(&models.SupportAgent{}).
		Where("user_id = ?", agentUserID).
		Update("active_conversations_count", count).Error
}
