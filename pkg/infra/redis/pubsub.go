package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"elx/engine/internal/model"
)

// Notifier 异常生命周期通知发布器
type Notifier struct {
	client  *Client
	channel string
}

// NewNotifier 创建 Notifier 实例
// channel 为 Redis 频道名称（建议：exception_lifecycle）
func NewNotifier(client *Client, channel string) *Notifier {
	return &Notifier{
		client:  client,
		channel: channel,
	}
}

// PublishLifecycle 发布生命周期事件（created/updated/resolved/blocked）
func (n *Notifier) PublishLifecycle(ctx context.Context, notification *model.ExceptionLifecycleNotification) error {
	// 序列化通知消息
	msgJSON, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	// 发布到 Redis 频道
	if err := n.client.rdb.Publish(ctx, n.channel, msgJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}

// Subscribe 订阅生命周期频道（用于测试和本地联调）
func (n *Notifier) Subscribe(ctx context.Context) *redis.PubSub {
	return n.client.rdb.Subscribe(ctx, n.channel)
}
