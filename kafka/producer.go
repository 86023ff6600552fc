package kafka

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
)

// 会话生命周期审计事件
const (
	EventConversationCreated = "conversation_created"
	EventConversationClaimed = "conversation_claimed"
	EventConversationClosed  = "conversation_closed"
)

type ConversationEvent struct {
	ConversationID uint   `json:"conversation_id"`
	Action         string `json:"action"`
	AgentID        uint   `json:"agent_id,omitempty"`
	GuestSession   string `json:"guest_session,omitempty"`
	CustomerID     uint   `json:"customer_id,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

func NewConversationEvent(conversationID uint, action string) ConversationEvent {
	return ConversationEvent{
		ConversationID: conversationID,
		Action:         action,
		Timestamp:      time.Now().Unix(),
	}
}

type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(brokers []string, topic string, config *sarama.Config) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &Producer{producer: producer, topic: topic}, nil
}

// SendConversationEvent 按会话 ID 作 key，同一会话的事件保序
func (p *Producer) SendConversationEvent(event ConversationEvent) error {
	jsonValue, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("%d", event.ConversationID)),
		Value: sarama.ByteEncoder(jsonValue),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		log.Printf("Failed to send conversation event: %v", err)
		return err
	}

	log.Printf("Conversation event %s sent to partition %d at offset %d", event.Action, partition, offset)
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
