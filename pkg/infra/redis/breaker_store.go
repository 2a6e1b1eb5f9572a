package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"elx/engine/internal/breaker"
)

// BreakerStore 熔断器共享状态存储（Redis 实现）
// 状态存为 hash：state / failures / opened_at / probe / probe_at / generation，
// 所有迁移在 Lua 中原子完成。generation 逢迁移自增，Mark* 带着 Acquire 时
// 拿到的代数回报，代数不匹配的过期结果直接丢弃
type BreakerStore struct {
	client *Client
}

// NewBreakerStore 创建 BreakerStore 实例
func NewBreakerStore(client *Client) *BreakerStore {
	return &BreakerStore{client: client}
}

func breakerKey(name string) string {
	return "elx:breaker:" + name
}

// acquireScript 放行决策，返回 {决策, 代数}
// OPEN 且冷却结束 → 原子切换 HALF_OPEN 并占用探测名额，保证全集群只放行一个探测；
// 已占用的名额超过 probeTTL（ARGV[3]）未回报，按探测者已死换代重占
var acquireScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
local gen = tonumber(redis.call('HGET', KEYS[1], 'generation') or '0')
if not state or state == 'CLOSED' then
  return {'CLOSED', gen}
end
if state == 'OPEN' then
  local opened = tonumber(redis.call('HGET', KEYS[1], 'opened_at') or '0')
  if tonumber(ARGV[1]) - opened >= tonumber(ARGV[2]) then
    gen = gen + 1
    redis.call('HSET', KEYS[1], 'state', 'HALF_OPEN', 'probe', '1', 'probe_at', ARGV[1], 'generation', gen)
    return {'PROBE', gen}
  end
  return {'DENY', gen}
end
if redis.call('HGET', KEYS[1], 'probe') == '1' then
  local probe_at = tonumber(redis.call('HGET', KEYS[1], 'probe_at') or '0')
  if tonumber(ARGV[1]) - probe_at >= tonumber(ARGV[3]) then
    gen = gen + 1
    redis.call('HSET', KEYS[1], 'probe_at', ARGV[1], 'generation', gen)
    return {'PROBE', gen}
  end
  return {'DENY', gen}
end
redis.call('HSET', KEYS[1], 'probe', '1', 'probe_at', ARGV[1])
return {'PROBE', gen}
`)

// successScript 成功复位：CLOSED + 计数归零，返回迁移前状态
// 代数（ARGV[1]）不匹配返回空串，不改任何状态
var successScript = redis.NewScript(`
local gen = tonumber(redis.call('HGET', KEYS[1], 'generation') or '0')
if gen ~= tonumber(ARGV[1]) then
  return ''
end
local prev = redis.call('HGET', KEYS[1], 'state')
if not prev then
  prev = 'CLOSED'
end
if prev ~= 'CLOSED' then
  gen = gen + 1
end
redis.call('HSET', KEYS[1], 'state', 'CLOSED', 'failures', '0', 'probe', '0', 'generation', gen)
return prev
`)

// failureScript 失败记账
// 探测失败直接回 OPEN；CLOSED 下累加连续失败计数，达到阈值跳闸。
// 代数（ARGV[4]）不匹配不落账
var failureScript = redis.NewScript(`
local gen = tonumber(redis.call('HGET', KEYS[1], 'generation') or '0')
if gen ~= tonumber(ARGV[4]) then
  return 0
end
if ARGV[3] == 'PROBE' then
  redis.call('HSET', KEYS[1], 'state', 'OPEN', 'opened_at', ARGV[1], 'probe', '0', 'generation', gen + 1)
  return 1
end
local failures = redis.call('HINCRBY', KEYS[1], 'failures', 1)
local state = redis.call('HGET', KEYS[1], 'state')
if (not state or state == 'CLOSED') and failures >= tonumber(ARGV[2]) then
  redis.call('HSET', KEYS[1], 'state', 'OPEN', 'opened_at', ARGV[1], 'generation', gen + 1)
  return 1
end
return 0
`)

// Acquire 请求放行
func (s *BreakerStore) Acquire(ctx context.Context, name string, now time.Time, cooldown, probeTTL time.Duration) (breaker.Decision, int64, error) {
	res, err := acquireScript.Run(ctx, s.client.rdb, []string{breakerKey(name)},
		now.Unix(), int64(cooldown.Seconds()), int64(probeTTL.Seconds())).Slice()
	if err != nil {
		return breaker.DecisionDeny, 0, fmt.Errorf("breaker acquire failed: %w", err)
	}
	if len(res) != 2 {
		return breaker.DecisionDeny, 0, fmt.Errorf("breaker acquire returned unexpected reply: %v", res)
	}

	decision, ok := res[0].(string)
	if !ok {
		return breaker.DecisionDeny, 0, fmt.Errorf("breaker acquire returned non-string decision: %v", res[0])
	}
	generation, ok := res[1].(int64)
	if !ok {
		return breaker.DecisionDeny, 0, fmt.Errorf("breaker acquire returned non-integer generation: %v", res[1])
	}
	return breaker.Decision(decision), generation, nil
}

// MarkSuccess 记录成功
func (s *BreakerStore) MarkSuccess(ctx context.Context, name string, decision breaker.Decision, generation int64) (string, error) {
	prev, err := successScript.Run(ctx, s.client.rdb, []string{breakerKey(name)}, generation).Text()
	if err != nil {
		return "", fmt.Errorf("breaker mark success failed: %w", err)
	}
	return prev, nil
}

// MarkFailure 记录失败
func (s *BreakerStore) MarkFailure(ctx context.Context, name string, decision breaker.Decision, generation int64, now time.Time, threshold int) (bool, error) {
	tripped, err := failureScript.Run(ctx, s.client.rdb, []string{breakerKey(name)},
		now.Unix(), threshold, string(decision), generation).Int()
	if err != nil {
		return false, fmt.Errorf("breaker mark failure failed: %w", err)
	}
	return tripped == 1, nil
}

// Snapshot 读取当前状态
func (s *BreakerStore) Snapshot(ctx context.Context, name string) (*breaker.Snapshot, error) {
	vals, err := s.client.rdb.HGetAll(ctx, breakerKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("breaker snapshot failed: %w", err)
	}

	snap := &breaker.Snapshot{State: breaker.StateClosed}
	if st, ok := vals["state"]; ok && st != "" {
		snap.State = st
	}
	if f, ok := vals["failures"]; ok {
		fmt.Sscanf(f, "%d", &snap.ConsecutiveFailures)
	}
	if at, ok := vals["opened_at"]; ok {
		var unix int64
		fmt.Sscanf(at, "%d", &unix)
		if unix > 0 {
			snap.OpenedAt = time.Unix(unix, 0)
		}
	}
	if at, ok := vals["probe_at"]; ok {
		var unix int64
		fmt.Sscanf(at, "%d", &unix)
		if unix > 0 {
			snap.ProbeStartedAt = time.Unix(unix, 0)
		}
	}
	if g, ok := vals["generation"]; ok {
		fmt.Sscanf(g, "%d", &snap.Generation)
	}
	snap.ProbeInFlight = vals["probe"] == "1"
	return snap, nil
}
