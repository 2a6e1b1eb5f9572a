package governor

import (
	"context"
	"fmt"
	"time"

	"elx/engine/internal/entity"
	"elx/engine/internal/model"
	"elx/engine/pkg/logger"
	"elx/engine/pkg/metrics"
)

// 阻断原因文案
const (
	blockReasonLowConfidence = "AI confidence too low, manual review required"
)

// Outcome 单次自动处置的结果
type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeFailed    Outcome = "FAILED"
)

// ExceptionStore 处置跟踪存储接口
// IncrementAttempt 必须原子执行条件自增；不满足条件时返回 (nil, nil)
type ExceptionStore interface {
	IncrementAttempt(ctx context.Context, id int64, now time.Time) (*entity.ExceptionRecord, error)
	Resolve(ctx context.Context, id int64) error
	Block(ctx context.Context, id int64, reason string) error
	ResetResolutionTracking(ctx context.Context, id int64) error
}

// Governor 处置尝试治理器
// 把"无限重试"变成"有界重试，然后升级给人"：
// 次数封顶、低置信度立即阻断、人工复位是唯一解锁路径
type Governor struct {
	store  ExceptionStore
	logger logger.Logger
}

// NewGovernor 创建治理器
func NewGovernor(store ExceptionStore, log logger.Logger) *Governor {
	return &Governor{
		store:  store,
		logger: log,
	}
}

// IsEligible 是否允许自动处置
// 全部满足：状态未关闭、未被阻断、次数未用尽
func (g *Governor) IsEligible(exc *entity.ExceptionRecord) bool {
	if exc == nil {
		return false
	}
	return exc.IsOpen() &&
		!exc.ResolutionBlocked &&
		exc.ResolutionAttempts < exc.MaxResolutionAttempts
}

// RecordAttempt 记录一次处置尝试并落实结果
// 返回更新后的记录；记录已不满足条件时返回 (nil, nil)，调用方不得执行处置逻辑
func (g *Governor) RecordAttempt(ctx context.Context, exc *entity.ExceptionRecord, outcome Outcome) (*entity.ExceptionRecord, error) {
	updated, err := g.store.IncrementAttempt(ctx, exc.ID, time.Now())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// 并发触发器抢先用尽了名额
		g.logger.Infof(ctx, "[Governor] attempt rejected, exception %d no longer eligible", exc.ID)
		return nil, nil
	}

	metrics.ResolutionAttempts.WithLabelValues(string(outcome)).Inc()

	if outcome == OutcomeSucceeded {
		if err := g.store.Resolve(ctx, updated.ID); err != nil {
			return updated, err
		}
		updated.Status = entity.ExceptionStatusResolved
		g.logger.Infof(ctx, "[Governor] exception %d resolved on attempt %d", updated.ID, updated.ResolutionAttempts)
		return updated, nil
	}

	// 失败且名额用尽 → 阻断，等待人工
	if updated.ResolutionAttempts >= updated.MaxResolutionAttempts {
		reason := fmt.Sprintf("Maximum resolution attempts (%d) reached", updated.MaxResolutionAttempts)
		if err := g.store.Block(ctx, updated.ID, reason); err != nil {
			return updated, err
		}
		updated.ResolutionBlocked = true
		updated.ResolutionBlockReason = &reason
		updated.Status = entity.ExceptionStatusBlocked
		metrics.ResolutionBlocked.WithLabelValues("attempts_exhausted").Inc()
		g.logger.Warnf(ctx, "[Governor] exception %d blocked: %s", updated.ID, reason)
	}

	return updated, nil
}

// ApplyAdvisoryGate 基于 AI 分析的即时阻断
// 模型调用成功但置信度低于硬下限：继续自动重试只是浪费周期，直接升级人工。
// 只看真实模型置信度——兜底结果没有置信度，不参与该判定
func (g *Governor) ApplyAdvisoryGate(ctx context.Context, exc *entity.ExceptionRecord, adv *model.Advisory, blockFloor float64) (bool, error) {
	if adv == nil || !adv.AICallSucceeded || adv.Confidence == nil {
		return false, nil
	}
	if *adv.Confidence >= blockFloor {
		return false, nil
	}

	if err := g.store.Block(ctx, exc.ID, blockReasonLowConfidence); err != nil {
		return false, err
	}
	reason := blockReasonLowConfidence
	exc.ResolutionBlocked = true
	exc.ResolutionBlockReason = &reason
	exc.Status = entity.ExceptionStatusBlocked
	metrics.ResolutionBlocked.WithLabelValues("low_confidence").Inc()
	g.logger.Warnf(ctx, "[Governor] exception %d blocked: confidence %.2f below floor %.2f",
		exc.ID, *adv.Confidence, blockFloor)
	return true, nil
}

// Reset 人工复位处置跟踪（解除阻断的唯一途径）
func (g *Governor) Reset(ctx context.Context, exceptionID int64) error {
	if err := g.store.ResetResolutionTracking(ctx, exceptionID); err != nil {
		return err
	}
	g.logger.Infof(ctx, "[Governor] resolution tracking reset for exception %d", exceptionID)
	return nil
}
