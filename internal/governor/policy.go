package governor

import (
	"context"

	"elx/engine/internal/entity"
)

// Creator 异常创建接口
type Creator interface {
	CreateIfNoOpen(ctx context.Context, rec *entity.ExceptionRecord) (bool, error)
}

// PolicyCreator 包装异常创建，为新异常盖上处置尝试预算
type PolicyCreator struct {
	inner       Creator
	maxAttempts int
}

// NewPolicyCreator 创建带预算策略的异常创建器
func NewPolicyCreator(inner Creator, maxAttempts int) *PolicyCreator {
	return &PolicyCreator{inner: inner, maxAttempts: maxAttempts}
}

// CreateIfNoOpen 填充尝试预算后透传创建
func (p *PolicyCreator) CreateIfNoOpen(ctx context.Context, rec *entity.ExceptionRecord) (bool, error) {
	if rec.MaxResolutionAttempts == 0 {
		rec.MaxResolutionAttempts = p.maxAttempts
	}
	return p.inner.CreateIfNoOpen(ctx, rec)
}
