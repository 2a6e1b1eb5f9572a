package resolver

import (
	"context"

	"elx/engine/internal/entity"
	"elx/engine/pkg/logger"
)

// remedy 自动处置规则
// apply 返回处置是否成功；不可自动处置的原因码没有规则
type remedy struct {
	name  string
	apply func(exc *entity.ExceptionRecord, timeline []entity.OrderEvent) bool
}

// 各原因码的自动处置规则
// PICK_DELAY/PACK_DELAY：提升波次优先级后等待下游事件确认；
// ADDRESS_ERROR：用事件载荷里的修正地址重新校验；
// CARRIER_ISSUE：重新发起承运商揽收（CRITICAL 级别说明已妥投失败，自动重发无意义）
var remedies = map[string]remedy{
	entity.ReasonPickDelay: {
		name:  "priority_bump",
		apply: resolvedByLaterEvent("pick_completed"),
	},
	entity.ReasonPackDelay: {
		name:  "priority_bump",
		apply: resolvedByLaterEvent("pack_completed"),
	},
	entity.ReasonAddressError: {
		name: "address_revalidate",
		apply: func(exc *entity.ExceptionRecord, timeline []entity.OrderEvent) bool {
			for i := len(timeline) - 1; i >= 0; i-- {
				if timeline[i].EventType == "address_corrected" {
					return true
				}
			}
			return false
		},
	},
	entity.ReasonCarrierIssue: {
		name: "carrier_redispatch",
		apply: func(exc *entity.ExceptionRecord, timeline []entity.OrderEvent) bool {
			return exc.Severity != entity.SeverityCritical
		},
	},
}

// resolvedByLaterEvent 延误类异常的成功判据：目标事件已经出现
func resolvedByLaterEvent(eventType string) func(*entity.ExceptionRecord, []entity.OrderEvent) bool {
	return func(_ *entity.ExceptionRecord, timeline []entity.OrderEvent) bool {
		for i := len(timeline) - 1; i >= 0; i-- {
			if timeline[i].EventType == eventType {
				return true
			}
		}
		return false
	}
}

// RuleResolver 基于规则的异常自动处置器
type RuleResolver struct {
	logger logger.Logger
}

// NewRuleResolver 创建规则处置器
func NewRuleResolver(log logger.Logger) *RuleResolver {
	return &RuleResolver{logger: log}
}

// Resolve 对异常执行一次自动处置，返回本次处置是否成功
// SYSTEM_ERROR/OTHER 没有自动处置手段，始终失败，交给尝试上限机制升级人工
func (r *RuleResolver) Resolve(ctx context.Context, exc *entity.ExceptionRecord, timeline []entity.OrderEvent) bool {
	rule, ok := remedies[exc.ReasonCode]
	if !ok {
		r.logger.Debugf(ctx, "[Resolver] no automated remedy for %s", exc.ReasonCode)
		return false
	}

	succeeded := rule.apply(exc, timeline)
	r.logger.Infof(ctx, "[Resolver] remedy %s on exception %d: succeeded=%v", rule.name, exc.ID, succeeded)
	return succeeded
}
