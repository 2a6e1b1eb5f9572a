package dlq

import (
	"context"
	"time"

	"elx/engine/internal/entity"
	"elx/engine/pkg/config"
	"elx/engine/pkg/logger"
	"elx/engine/pkg/metrics"
)

// ItemStore 死信条目存储接口
type ItemStore interface {
	Insert(ctx context.Context, item *entity.DLQItem) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]entity.DLQItem, error)
	MarkReplayed(ctx context.Context, id int64) error
	Reschedule(ctx context.Context, id int64, nextRetryAt time.Time, exhausted bool) error
	GetByID(ctx context.Context, id int64) (*entity.DLQItem, error)
	CountPending(ctx context.Context) (int64, error)
}

// ResubmitFunc 重放回调：把原始载荷按新事件重新送入同一摄入入口
// 幂等闸门会再跑一遍，迟到成功的重复无害
type ResubmitFunc func(ctx context.Context, payload []byte) error

// Service 死信队列服务
type Service struct {
	store  ItemStore
	cfg    config.DLQConfig
	logger logger.Logger
	now    func() time.Time
}

// NewService 创建死信服务
func NewService(store ItemStore, cfg config.DLQConfig, log logger.Logger) *Service {
	return &Service{
		store:  store,
		cfg:    cfg,
		logger: log,
		now:    time.Now,
	}
}

// Capture 捕获处理失败
// 首次重放按 base 延迟排期（捕获本身即第一次失败）
func (s *Service) Capture(ctx context.Context, payload []byte, reason string) error {
	now := s.now()
	item := &entity.DLQItem{
		OriginalPayload: payload,
		FailureReason:   reason,
		AttemptCount:    0,
		Status:          entity.DLQStatusPending,
		NextRetryAt:     now.Add(NextDelay(1, s.cfg.BaseDelay, s.cfg.MaxDelay)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.Insert(ctx, item); err != nil {
		return err
	}

	metrics.DLQCaptured.Inc()
	s.logger.Warnf(ctx, "[DLQ] captured failure: %s, next retry at %s",
		reason, item.NextRetryAt.Format(time.RFC3339))
	return nil
}

// ListDue 查询到期待重放的条目
func (s *Service) ListDue(ctx context.Context, limit int) ([]entity.DLQItem, error) {
	return s.store.ListDue(ctx, s.now(), limit)
}

// ReplayItem 重放单个条目，返回重放是否成功
// 成功 → 标记 REPLAYED（保留追溯）；失败 → 指数退避改期；
// 计划内重试用尽不删除，转 EXHAUSTED 留待人工
func (s *Service) ReplayItem(ctx context.Context, item *entity.DLQItem, resubmit ResubmitFunc) (bool, error) {
	err := resubmit(ctx, item.OriginalPayload)
	if err == nil {
		if markErr := s.store.MarkReplayed(ctx, item.ID); markErr != nil {
			return true, markErr
		}
		metrics.DLQReplayed.WithLabelValues("success").Inc()
		s.logger.Infof(ctx, "[DLQ] item %d replayed successfully", item.ID)
		return true, nil
	}

	attempts := item.AttemptCount + 1
	exhausted := attempts >= s.cfg.MaxAttempts
	// 捕获算第一次失败，改期用总失败次数推延迟
	delay := NextDelay(attempts+1, s.cfg.BaseDelay, s.cfg.MaxDelay)
	if reschedErr := s.store.Reschedule(ctx, item.ID, s.now().Add(delay), exhausted); reschedErr != nil {
		return false, reschedErr
	}

	metrics.DLQReplayed.WithLabelValues("failure").Inc()
	if exhausted {
		s.logger.Errorf(ctx, "[DLQ] item %d exhausted after %d replay attempts, awaiting manual action: %v",
			item.ID, attempts, err)
	} else {
		s.logger.Warnf(ctx, "[DLQ] item %d replay failed, retrying in %s: %v", item.ID, delay, err)
	}
	return false, nil
}

// ReplayDue 批量重放到期条目（定时驱动与管理端共用）
// 返回成功/失败条数
func (s *Service) ReplayDue(ctx context.Context, batchSize, maxBatches int, resubmit ResubmitFunc) (int, int, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.BatchSize
	}
	if maxBatches <= 0 {
		maxBatches = 1
	}

	succeeded, failed := 0, 0
	for batch := 0; batch < maxBatches; batch++ {
		items, err := s.ListDue(ctx, batchSize)
		if err != nil {
			return succeeded, failed, err
		}
		if len(items) == 0 {
			break
		}

		for i := range items {
			item := items[i]
			ok, err := s.ReplayItem(ctx, &item, resubmit)
			if err != nil {
				s.logger.Errorf(ctx, "[DLQ] replay bookkeeping failed for item %d: %v", item.ID, err)
			}
			if ok {
				succeeded++
			} else {
				failed++
			}
		}
	}

	s.refreshDepth(ctx)
	return succeeded, failed, nil
}

// refreshDepth 刷新死信深度指标
func (s *Service) refreshDepth(ctx context.Context) {
	depth, err := s.store.CountPending(ctx)
	if err != nil {
		s.logger.Warnf(ctx, "[DLQ] depth query failed: %v", err)
		return
	}
	metrics.DLQDepth.Set(float64(depth))
}
