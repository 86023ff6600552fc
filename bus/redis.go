package bus

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "bus:"

// Redis 跨进程总线：发布走 redis pub/sub，本地投递复用 Memory。
// 发布者自己也通过订阅回流收到消息，保证每个进程内的投递顺序
// 与 redis channel 的消息顺序一致。
type Redis struct {
	local  *Memory
	rdb    *redis.Client
	pubsub *redis.PubSub
	refs   map[string]int // 组名 -> 本进程订阅数
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRedis(rdb *redis.Client) *Redis {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Redis{
		local:  NewMemory(),
		rdb:    rdb,
		refs:   make(map[string]int),
		ctx:    ctx,
		cancel: cancel,
	}
	b.pubsub = rdb.Subscribe(ctx)
	go b.receive()
	return b
}

func (b *Redis) Join(groupName string, sub Subscriber) {
	b.local.Join(groupName, sub)

	b.mu.Lock()
	b.refs[groupName]++
	first := b.refs[groupName] == 1
	b.mu.Unlock()

	if first {
		if err := b.pubsub.Subscribe(b.ctx, channelPrefix+groupName); err != nil {
			log.Printf("bus: redis subscribe %s failed: %v", groupName, err)
		}
	}
}

func (b *Redis) Leave(groupName string, sub Subscriber) {
	b.local.Leave(groupName, sub)

	b.mu.Lock()
	b.refs[groupName]--
	last := b.refs[groupName] <= 0
	if last {
		delete(b.refs, groupName)
	}
	b.mu.Unlock()

	if last {
		if err := b.pubsub.Unsubscribe(b.ctx, channelPrefix+groupName); err != nil {
			log.Printf("bus: redis unsubscribe %s failed: %v", groupName, err)
		}
	}
}

func (b *Redis) Publish(groupName string, msg *Broadcast) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("bus: marshal broadcast failed: %v", err)
		return
	}
	if err := b.rdb.Publish(b.ctx, channelPrefix+groupName, data).Err(); err != nil {
		// redis 不可用时退化为本进程投递
		log.Printf("bus: redis publish %s failed, delivering locally: %v", groupName, err)
		b.local.dispatch(groupName, msg)
	}
}

// receive 订阅回流，把远端（含本进程）发布的消息转投本地组
func (b *Redis) receive() {
	for m := range b.pubsub.Channel() {
		groupName := strings.TrimPrefix(m.Channel, channelPrefix)
		var msg Broadcast
		if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
			log.Printf("bus: undecodable broadcast on %s: %v", m.Channel, err)
			continue
		}
		b.local.dispatch(groupName, &msg)
	}
}

func (b *Redis) Close() error {
	b.cancel()
	return b.pubsub.Close()
}
