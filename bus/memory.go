package bus

import (
	"context"
	"log"
	"sync"
)

// Memory 单进程内存总线。每个组一个分发 goroutine，
// 注册/注销/广播都走 channel，组内顺序由单协程保证。
type Memory struct {
	groups map[string]*group
	mu     sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{
		groups: make(map[string]*group),
	}
}

type group struct {
	name       string
	subs       map[string]Subscriber
	mu         sync.RWMutex // 保护 subs
	broadcast  chan *Broadcast
	register   chan Subscriber
	unregister chan Subscriber
	ctx        context.Context
	cancel     context.CancelFunc
}

func (b *Memory) getOrCreate(name string) *group {
	b.mu.Lock()
	defer b.mu.Unlock()

	if g, exists := b.groups[name]; exists {
		return g
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &group{
		name:       name,
		subs:       make(map[string]Subscriber),
		broadcast:  make(chan *Broadcast, 256),
		register:   make(chan Subscriber, 16),
		unregister: make(chan Subscriber, 16),
		ctx:        ctx,
		cancel:     cancel,
	}
	b.groups[name] = g

	go g.run()

	return g
}

func (b *Memory) Join(groupName string, sub Subscriber) {
	b.getOrCreate(groupName).register <- sub
}

func (b *Memory) Leave(groupName string, sub Subscriber) {
	b.mu.RLock()
	g, exists := b.groups[groupName]
	b.mu.RUnlock()
	if !exists {
		return
	}
	g.unregister <- sub
}

func (b *Memory) Publish(groupName string, msg *Broadcast) {
	b.getOrCreate(groupName).broadcast <- msg
}

// dispatch 只投递给本进程已存在的组（远端转发用，不创建新组）
func (b *Memory) dispatch(groupName string, msg *Broadcast) {
	b.mu.RLock()
	g, exists := b.groups[groupName]
	b.mu.RUnlock()
	if !exists {
		return
	}
	g.broadcast <- msg
}

// 组的核心消息分发循环
func (g *group) run() {
	for {
		select {
		case <-g.ctx.Done():
			return

		case sub := <-g.register:
			g.mu.Lock()
			g.subs[sub.ID()] = sub
			g.mu.Unlock()

		case sub := <-g.unregister:
			g.mu.Lock()
			delete(g.subs, sub.ID())
			g.mu.Unlock()

		case msg := <-g.broadcast:
			g.mu.RLock()
			subs := make([]Subscriber, 0, len(g.subs))
			for _, sub := range g.subs {
				subs = append(subs, sub)
			}
			g.mu.RUnlock()

			for _, sub := range subs {
				if msg.ExceptIDs != nil && msg.ExceptIDs[sub.ID()] {
					continue
				}

				if !sub.Deliver(msg.Data) {
					// 消费过慢，踢出该组并关闭订阅端
					log.Printf("bus: subscriber %s buffer full in group %s, evicting", sub.ID(), g.name)
					g.mu.Lock()
					delete(g.subs, sub.ID())
					g.mu.Unlock()
					sub.Close()
				}
			}
		}
	}
}
