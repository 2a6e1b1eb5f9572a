package sla

import (
	"context"
	"time"

	"elx/engine/internal/entity"
	"elx/engine/pkg/logger"
)

// problemRule 问题事件规则（固定规则，事件类型直接映射异常）
type problemRule struct {
	ReasonCode string
	Severity   string
}

// problemRules 问题事件类型 → 异常原因码
var problemRules = map[string]problemRule{
	"address_invalid":    {ReasonCode: entity.ReasonAddressError, Severity: entity.SeverityHigh},
	"address_unresolved": {ReasonCode: entity.ReasonAddressError, Severity: entity.SeverityMedium},
	"carrier_exception":  {ReasonCode: entity.ReasonCarrierIssue, Severity: entity.SeverityHigh},
	"delivery_failed":    {ReasonCode: entity.ReasonCarrierIssue, Severity: entity.SeverityCritical},
	"system_error":       {ReasonCode: entity.ReasonSystemError, Severity: entity.SeverityCritical},
	"inventory_mismatch": {ReasonCode: entity.ReasonOther, Severity: entity.SeverityMedium},
}

// ProblemDetector 订单问题检测器（规则引擎）
// SLA 超时之外的另一条异常来源：事件本身就声明了问题
type ProblemDetector struct {
	creator ExceptionCreator
	logger  logger.Logger
}

// NewProblemDetector 创建问题检测器实例
func NewProblemDetector(creator ExceptionCreator, log logger.Logger) *ProblemDetector {
	return &ProblemDetector{
		creator: creator,
		logger:  log,
	}
}

// Inspect 检查单个事件是否声明了订单问题
// 返回新建的异常；同因已有未关闭异常时幂等忽略
func (d *ProblemDetector) Inspect(ctx context.Context, ev *entity.OrderEvent) (*entity.ExceptionRecord, error) {
	rule, ok := problemRules[ev.EventType]
	if !ok {
		return nil, nil
	}

	now := time.Now()
	rec := &entity.ExceptionRecord{
		Tenant:     ev.Tenant,
		OrderID:    ev.OrderID,
		ReasonCode: rule.ReasonCode,
		Status:     entity.ExceptionStatusOpen,
		Severity:   rule.Severity,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	created, err := d.creator.CreateIfNoOpen(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !created {
		d.logger.Debugf(ctx, "[Detector] open exception exists: order=%s reason=%s", ev.OrderID, rule.ReasonCode)
		return nil, nil
	}

	d.logger.Infof(ctx, "[Detector] problem event: order=%s event=%s reason=%s severity=%s",
		ev.OrderID, ev.EventType, rule.ReasonCode, rule.Severity)
	return rec, nil
}
