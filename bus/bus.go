// Package bus 进程内/跨进程的命名组广播。
// 连接层只依赖 Bus 接口，不关心单机（memory）还是集群（redis pub/sub）部署。
package bus

import "fmt"

// Event 广播载荷
type Event map[string]interface{}

// Broadcast 一次投递：Data 发给组内所有订阅者，ExceptIDs 排除的客户端除外
type Broadcast struct {
	Data      Event           `json:"data"`
	ExceptIDs map[string]bool `json:"except_ids,omitempty"`
}

// Subscriber 组内的一个接收端（通常是一条 WebSocket 连接）
type Subscriber interface {
	// ID 集群内唯一标识
	ID() string
	// Deliver 非阻塞投递；缓冲满时返回 false
	Deliver(event Event) bool
	// Close 被总线驱逐（消费过慢）时调用
	Close()
}

// Bus 命名组广播总线。同一个组内投递顺序与 Publish 调用顺序一致，
// 组与组之间没有顺序保证。
type Bus interface {
	Join(group string, sub Subscriber)
	Leave(group string, sub Subscriber)
	Publish(group string, msg *Broadcast)
}

// AgentsGroup 所有在线坐席的通知组
const AgentsGroup = "agents"

// ConversationGroup 单个会话的组名
func ConversationGroup(conversationID uint) string {
	return fmt.Sprintf("conversation_%d", conversationID)
}
