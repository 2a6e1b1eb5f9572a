package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBudget 租户级日 token 预算（Redis 实现）
// 按 UTC 日期分 key，INCRBY 原子记账，超限即回滚并拒绝
type TokenBudget struct {
	client *Client
}

// NewTokenBudget 创建 TokenBudget 实例
func NewTokenBudget(client *Client) *TokenBudget {
	return &TokenBudget{client: client}
}

func budgetKey(tenant string, day time.Time) string {
	return fmt.Sprintf("elx:budget:%s:%s", tenant, day.UTC().Format("2006-01-02"))
}

// reserveScript 原子预留 token
// 超出限额则回滚本次累加并返回 0；key 过期时间覆盖跨日边界
var reserveScript = redis.NewScript(`
local consumed = redis.call('INCRBY', KEYS[1], ARGV[1])
if consumed > tonumber(ARGV[2]) then
  redis.call('DECRBY', KEYS[1], ARGV[1])
  return 0
end
redis.call('EXPIRE', KEYS[1], 172800)
return 1
`)

// Reserve 预留 tokens 个 token
// 返回 false 表示当日预算已耗尽，调用方应视为 AI 不可用
func (b *TokenBudget) Reserve(ctx context.Context, tenant string, now time.Time, tokens, limit int64) (bool, error) {
	if limit <= 0 {
		// 未配置限额视为不限制
		return true, nil
	}
	ok, err := reserveScript.Run(ctx, b.client.rdb, []string{budgetKey(tenant, now)}, tokens, limit).Int()
	if err != nil {
		return false, fmt.Errorf("token budget reserve failed: %w", err)
	}
	return ok == 1, nil
}

// Consumed 查询当日已消耗量（观测用）
func (b *TokenBudget) Consumed(ctx context.Context, tenant string, now time.Time) (int64, error) {
	v, err := b.client.rdb.Get(ctx, budgetKey(tenant, now)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("token budget query failed: %w", err)
	}
	return v, nil
}
