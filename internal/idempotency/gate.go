package idempotency

import (
	"context"
	"fmt"
	"time"

	"elx/engine/pkg/errorutil"
	"elx/engine/pkg/logger"
)

// Admission 准入结果
type Admission string

const (
	// Accepted 事件首见，调用方继续持久化并走完整管线
	Accepted Admission = "ACCEPTED"
	// Duplicate 重复事件，调用方必须按无操作处理并向源端返回成功
	Duplicate Admission = "DUPLICATE"
)

// Locker 短时独占锁接口
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// DedupStore 去重标记存储接口
type DedupStore interface {
	// PutDedupIfAbsent 插入去重标记，已存在返回 false
	PutDedupIfAbsent(ctx context.Context, tenant, source, externalEventID string) (bool, error)
}

// Gate 幂等准入闸门
// 两层防护：
//  1. 短时锁——同一事件的并发请求只放行一个，其余按重复处理；
//  2. 去重标记——覆盖"处理已在两次重试之间完成"的场景，锁拿到了标记也可能已存在
type Gate struct {
	locker  Locker
	store   DedupStore
	lockTTL time.Duration
	logger  logger.Logger
}

// NewGate 创建 Gate 实例
func NewGate(locker Locker, store DedupStore, lockTTL time.Duration, log logger.Logger) *Gate {
	if lockTTL <= 0 {
		lockTTL = 5 * time.Second
	}
	return &Gate{
		locker:  locker,
		store:   store,
		lockTTL: lockTTL,
		logger:  log,
	}
}

// LockKey 同一事件的互斥键
func LockKey(tenant, source, externalEventID string) string {
	return fmt.Sprintf("elx:ingest:%s:%s:%s", tenant, source, externalEventID)
}

// Admit 事件准入
// 锁获取失败 → 另一请求正在处理同一事件 → Duplicate；
// 标记已存在 → 处理早已完成 → Duplicate（即使锁拿到了）。
// 返回 Accepted 时调用方处理完成后应调用 Done 释放锁；
// 锁自带 TTL，崩溃的 worker 不会永久卡住该事件的重处理
func (g *Gate) Admit(ctx context.Context, tenant, source, externalEventID string) (Admission, error) {
	key := LockKey(tenant, source, externalEventID)

	locked, err := g.locker.AcquireLock(ctx, key, g.lockTTL)
	if err != nil {
		return Duplicate, errorutil.RetriableWithDetails("idempotency lock unavailable", err.Error())
	}
	if !locked {
		g.logger.Debugf(ctx, "[Gate] lock held elsewhere, treating as duplicate: %s", key)
		return Duplicate, nil
	}

	inserted, err := g.store.PutDedupIfAbsent(ctx, tenant, source, externalEventID)
	if err != nil {
		// 标记写入失败必须放锁，否则 TTL 内该事件无法重试
		_ = g.locker.ReleaseLock(ctx, key)
		return Duplicate, errorutil.RetriableWithDetails("dedup marker write failed", err.Error())
	}
	if !inserted {
		_ = g.locker.ReleaseLock(ctx, key)
		g.logger.Debugf(ctx, "[Gate] dedup marker exists: %s", key)
		return Duplicate, nil
	}

	return Accepted, nil
}

// Done 处理结束后释放互斥锁
func (g *Gate) Done(ctx context.Context, tenant, source, externalEventID string) {
	key := LockKey(tenant, source, externalEventID)
	if err := g.locker.ReleaseLock(ctx, key); err != nil {
		// 释放失败不致命，锁会随 TTL 过期
		g.logger.Warnf(ctx, "[Gate] release lock failed: %s, err: %v", key, err)
	}
}
