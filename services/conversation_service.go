package services

import (
	"ShopHub/bus"
	"ShopHub/kafka"
	"ShopHub/models"
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrAgentOnly            = errors.New("only support agents can perform this action")
	ErrConversationClosed   = errors.New("conversation is closed")
	ErrAlreadyClaimed       = errors.New("conversation already claimed by another agent")
)

// ConversationService 会话存储：状态机 waiting -> active -> closed，
// 认领互斥、关闭幂等都在这里保证。只有本服务改会话行。
type ConversationService struct {
	db       *gorm.DB
	bus      bus.Bus
	producer *kafka.Producer // 审计流，可为 nil（未启用 kafka）
}

func NewConversationService(db *gorm.DB, b bus.Bus, producer *kafka.Producer) *ConversationService {
	return &ConversationService{db: db, bus: b, producer: producer}
}

// Create 开一条会话。CustomerID / GuestSessionID 互斥，由身份决定。
// 新会话广播给所有在线坐席（尽力通知，不是队列；离线坐席靠 List 拉取）。
func (s *ConversationService) Create(ident Identity) (*models.Conversation, error) {
	conv := &models.Conversation{
		Status: models.ConversationWaiting,
	}
	if ident.User != nil {
		id := ident.User.ID
		conv.CustomerID = &id
	} else {
		conv.GuestSessionID = ident.GuestSessionID
	}

	if err := s.db.Create(conv).Error; err != nil {
		return nil, err
	}

	s.bus.Publish(bus.AgentsGroup, &bus.Broadcast{
		Data: bus.Event{
			"type":            "new_conversation",
			"conversation_id": conv.ID,
		},
	})

	event := kafka.NewConversationEvent(conv.ID, kafka.EventConversationCreated)
	if conv.CustomerID != nil {
		event.CustomerID = *conv.CustomerID
	}
	event.GuestSession = conv.GuestSessionID
	s.audit(event)

	return conv, nil
}

// List 坐席看全部（可按状态过滤，waiting 排最前再按新旧），客户只看自己的
func (s *ConversationService) List(caller *models.User, statusFilter string) ([]models.Conversation, error) {
	var conversations []models.Conversation
	query := s.db.Preload("Customer").Preload("Agent")

	if IsSupportAgent(s.db, caller) {
		if statusFilter != "" {
			query = query.Where("status = ?", statusFilter)
		}
		query = query.
			Order("CASE status WHEN 'waiting' THEN 0 WHEN 'active' THEN 1 ELSE 2 END").
			Order("created_at DESC")
	} else {
		query = query.Where("customer_id = ?", caller.ID).Order("created_at DESC")
	}

	if err := query.Find(&conversations).Error; err != nil {
		return nil, err
	}
	return conversations, nil
}

// Get 带权限校验的详情。坐席、会话归属客户、持对应游客标识的调用方可读。
func (s *ConversationService) Get(id uint, ident Identity) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.Preload("Customer").Preload("Agent").
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Messages.Sender").
		Preload("Messages.Attachments").
		First(&conv, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	if err := s.authorize(&conv, ident); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Authorize 校验调用方对会话的访问权（上传等路径复用）
func (s *ConversationService) Authorize(id uint, ident Identity) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.First(&conv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if err := s.authorize(&conv, ident); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *ConversationService) authorize(conv *models.Conversation, ident Identity) error {
	if ident.User != nil {
		if IsSupportAgent(s.db, ident.User) {
			return nil
		}
		if conv.CustomerID != nil && *conv.CustomerID == ident.User.ID {
			return nil
		}
		return ErrPermissionDenied
	}
	// 游客只能访问自己标识开的会话
	if conv.GuestSessionID != "" && conv.GuestSessionID == ident.GuestSessionID {
		return nil
	}
	return ErrPermissionDenied
}

// Claim 坐席认领。waiting -> active 的迁移用条件 UPDATE 做 CAS，
// 两个坐席并发抢同一条时只有一个写得进去，输家拿到明确错误，
// 绝不会后写的悄悄顶掉先写的。坐席的 active_conversations_count
// 在同一事务里按真实数据重算（不是自增），并发 claim/close 下也不会飘。
func (s *ConversationService) Claim(id uint, agent *models.User) (*models.Conversation, error) {
	if !IsSupportAgent(s.db, agent) {
		return nil, ErrAgentOnly
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Conversation{}).
			Where("id = ? AND status = ?", id, models.ConversationWaiting).
			Updates(map[string]interface{}{
				"agent_id": agent.ID,
				"status":   models.ConversationActive,
			})
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			// CAS 没写进去：要么会话不存在，要么不在 waiting
			var conv models.Conversation
			if err := tx.First(&conv, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrConversationNotFound
				}
				return err
			}
			switch {
			case conv.Status == models.ConversationClosed:
				return ErrConversationClosed
			case conv.AgentID != nil && *conv.AgentID == agent.ID:
				// 自己重复认领，幂等放过
			default:
				return ErrAlreadyClaimed
			}
		}

		return s.recountActive(tx, agent.ID)
	})
	if err != nil {
		return nil, err
	}

	var conv models.Conversation
	if err := s.db.Preload("Customer").Preload("Agent").First(&conv, id).Error; err != nil {
		return nil, err
	}

	// 通知会话内的客户：坐席已加入
	s.bus.Publish(bus.ConversationGroup(id), &bus.Broadcast{
		Data: bus.Event{
			"type":       "agent_joined",
			"agent_name": agent.Username,
		},
	})

	event := kafka.NewConversationEvent(id, kafka.EventConversationClaimed)
	event.AgentID = agent.ID
	s.audit(event)

	return &conv, nil
}

// Close 坐席关闭会话，终态。幂等：重复关闭不动 closed_at。
func (s *ConversationService) Close(id uint, agent *models.User) (*models.Conversation, error) {
	if !IsSupportAgent(s.db, agent) {
		return nil, ErrAgentOnly
	}

	var conv models.Conversation
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&conv, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConversationNotFound
			}
			return err
		}

		res := tx.Model(&models.Conversation{}).
			Where("id = ? AND status <> ?", id, models.ConversationClosed).
			Updates(map[string]interface{}{
				"status":    models.ConversationClosed,
				"closed_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		// RowsAffected == 0 说明已经关了，保持原 closed_at 不动

		if conv.AgentID != nil {
			if err := s.recountActive(tx, *conv.AgentID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.Preload("Customer").Preload("Agent").First(&conv, id).Error; err != nil {
		return nil, err
	}

	s.bus.Publish(bus.ConversationGroup(id), &bus.Broadcast{
		Data: bus.Event{
			"type":            "conversation_closed",
			"conversation_id": id,
		},
	})

	event := kafka.NewConversationEvent(id, kafka.EventConversationClosed)
	if conv.AgentID != nil {
		event.AgentID = *conv.AgentID
	}
	s.audit(event)

	return &conv, nil
}

// recountActive 按库里真实数据重算坐席名下 active 会话数
func (s *ConversationService) recountActive(tx *gorm.DB, agentUserID uint) error {
	var count int64
	if err := tx.Model(&models.Conversation{}).
		Where("agent_id = ? AND status = ?", agentUserID, models.ConversationActive).
		Count(&count).Error; err != nil {
		return err
	}

	profile := models.SupportAgent{UserID: agentUserID}
	if err := tx.Where(models.SupportAgent{UserID: agentUserID}).FirstOrCreate(&profile).Error; err != nil {
		return err
	}
	return tx.Model(&profile).Update("active_conversations_count", count).Error
}

func (s *ConversationService) audit(event kafka.ConversationEvent) {
	if s.producer == nil {
		return
	}
	// 审计失败不影响业务路径，producer 里已有日志
	_ = s.producer.SendConversationEvent(event)
}

// ToSummary 列表视图
func ToSummary(conv *models.Conversation) models.ConversationSummary {
	summary := models.ConversationSummary{
		ID:             conv.ID,
		Status:         conv.Status,
		GuestSessionID: conv.GuestSessionID,
		CustomerName:   "Guest",
		CreatedAt:      conv.CreatedAt,
		UpdatedAt:      conv.UpdatedAt,
		ClosedAt:       conv.ClosedAt,
	}
	if conv.Customer != nil {
		summary.CustomerName = conv.Customer.Username
	}
	if conv.Agent != nil {
		summary.AgentName = conv.Agent.Username
	}
	return summary
}
