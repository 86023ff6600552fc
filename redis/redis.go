package redis

import (
	"ShopHub/config"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisClient struct {
	Client *redis.Client
}

// NewRedisClient 初始化并返回一个新的 RedisClient 实例
func NewRedisClient(cfg *config.RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password, // 密码，没有则留空
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// PING 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("redis client connection test failed: %w", err)
	}

	return &RedisClient{
		Client: client,
	}, nil
}

// Close 关闭 Redis 连接
func (r *RedisClient) Close() error {
	return r.Client.Close()
}

// OnlineUser 会话在线成员（在线列表用）
type OnlineUser struct {
	ConnectionID string `json:"connection_id"`
	UserID       uint   `json:"user_id,omitempty"`
	Username     string `json:"username"`
	IsAgent      bool   `json:"is_agent"`
}

func presenceKey(conversationID uint) string {
	return fmt.Sprintf("support:conversation:%d:online", conversationID)
}

// AddOnlineUser 连接建立时记录在线成员，按连接 ID 存 field，
// 同一用户开多个标签页互不覆盖
func (r *RedisClient) AddOnlineUser(ctx context.Context, conversationID uint, info OnlineUser) {
	data, err := json.Marshal(info)
	if err != nil {
		log.Printf("Failed to marshal online user: %v", err)
		return
	}

	key := presenceKey(conversationID)
	if err := r.Client.HSet(ctx, key, info.ConnectionID, data).Err(); err != nil {
		log.Printf("Failed to add online user to Redis: %v", err)
		return
	}

	// 过期兜底，防止异常断连留下脏数据
	r.Client.Expire(ctx, key, 24*time.Hour)
}

// RemoveOnlineUser 连接断开时移除
func (r *RedisClient) RemoveOnlineUser(ctx context.Context, conversationID uint, connectionID string) {
	if err := r.Client.HDel(ctx, presenceKey(conversationID), connectionID).Err(); err != nil {
		log.Printf("Failed to remove online user from Redis: %v", err)
	}
}

// GetOnlineUsers 获取会话当前在线成员
func (r *RedisClient) GetOnlineUsers(ctx context.Context, conversationID uint) ([]OnlineUser, error) {
	result, err := r.Client.HGetAll(ctx, presenceKey(conversationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch online users for conversation %d: %w", conversationID, err)
	}

	users := make([]OnlineUser, 0, len(result))
	for _, data := range result {
		var info OnlineUser
		if err := json.Unmarshal([]byte(data), &info); err != nil {
			log.Printf("Failed to unmarshal online user: %v", err)
			continue
		}
		users = append(users, info)
	}

	return users, nil
}
