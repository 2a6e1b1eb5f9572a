package sla

import (
	"context"
	"time"

	"elx/engine/internal/entity"
	"elx/engine/pkg/config"
	"elx/engine/pkg/logger"
)

// ExceptionCreator 条件创建接口
// 实现必须保证原子性：同一 (tenant, order_id, reason_code) 已有未关闭异常时返回 false
type ExceptionCreator interface {
	CreateIfNoOpen(ctx context.Context, rec *entity.ExceptionRecord) (bool, error)
}

// StagePolicyProvider 按租户取生效的阶段策略
type StagePolicyProvider func(tenant string) []config.SLAStage

// Engine SLA 评估引擎
// 逐阶段比对时间线与配置阈值，超时即创建异常工单。
// 重复评估同一时间线不会产生重复工单——这是正确性约束，由条件创建保证
type Engine struct {
	stagesFor StagePolicyProvider
	severity  config.SeverityConfig
	creator   ExceptionCreator
	logger    logger.Logger
	now       func() time.Time
}

// NewEngine 创建评估引擎
func NewEngine(stagesFor StagePolicyProvider, severity config.SeverityConfig, creator ExceptionCreator, log logger.Logger) *Engine {
	return &Engine{
		stagesFor: stagesFor,
		severity:  severity,
		creator:   creator,
		logger:    log,
		now:       time.Now,
	}
}

// Evaluate 评估订单时间线，返回本次新建的异常
// 阶段未开始（起点事件缺失）不算超时；起点到了、终点迟迟未到且已超窗才算
func (e *Engine) Evaluate(ctx context.Context, tenant, orderID string, timeline []entity.OrderEvent) ([]*entity.ExceptionRecord, error) {
	occurred := indexTimeline(timeline)
	now := e.now()

	var created []*entity.ExceptionRecord
	for _, stage := range e.stagesFor(tenant) {
		from, ok := occurred[stage.FromEvent]
		if !ok {
			continue
		}

		// 终点事件已发生按实际耗时算，未发生按"至今仍未完成"算
		end, done := occurred[stage.ToEvent]
		if !done {
			end = now
		}

		elapsed := end.Sub(from).Minutes()
		slaMinutes := float64(stage.Minutes)
		if elapsed <= slaMinutes {
			continue
		}

		ratio := (elapsed - slaMinutes) / slaMinutes
		rec := &entity.ExceptionRecord{
			Tenant:     tenant,
			OrderID:    orderID,
			ReasonCode: stage.ReasonCode,
			Status:     entity.ExceptionStatusOpen,
			Severity:   e.severityFor(ratio),
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		ok, err := e.creator.CreateIfNoOpen(ctx, rec)
		if err != nil {
			return created, err
		}
		if !ok {
			// 已有同因未关闭异常，幂等忽略
			e.logger.Debugf(ctx, "[SLA] open exception exists: order=%s reason=%s", orderID, stage.ReasonCode)
			continue
		}

		e.logger.Infof(ctx, "[SLA] breach detected: order=%s reason=%s elapsed=%.1fmin sla=%dmin severity=%s",
			orderID, stage.ReasonCode, elapsed, stage.Minutes, rec.Severity)
		created = append(created, rec)
	}

	return created, nil
}

// severityFor 按超时比推导严重级别（阈值来自配置）
func (e *Engine) severityFor(ratio float64) string {
	switch {
	case ratio < e.severity.MediumBelow:
		return entity.SeverityMedium
	case ratio < e.severity.HighBelow:
		return entity.SeverityHigh
	default:
		return entity.SeverityCritical
	}
}

// indexTimeline 事件类型 → 最早发生时间
func indexTimeline(timeline []entity.OrderEvent) map[string]time.Time {
	occurred := make(map[string]time.Time, len(timeline))
	for _, ev := range timeline {
		if at, ok := occurred[ev.EventType]; !ok || ev.OccurredAt.Before(at) {
			occurred[ev.EventType] = ev.OccurredAt
		}
	}
	return occurred
}
