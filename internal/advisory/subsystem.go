package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"elx/engine/internal/breaker"
	"elx/engine/internal/entity"
	"elx/engine/internal/model"
	"elx/engine/pkg/config"
	"elx/engine/pkg/logger"
	"elx/engine/pkg/metrics"
)

// BudgetStore 日 token 预算接口
type BudgetStore interface {
	Reserve(ctx context.Context, tenant string, now time.Time, tokens, limit int64) (bool, error)
}

// Subsystem AI 分析子系统
// 预算 → 采样策略 → 熔断器包裹的模型调用 → 宽容解析 → 兜底。
// Analyze 永不失败：模型不可用不是错误，是一条正常分支
type Subsystem struct {
	cfg     config.AIConfig
	client  ModelClient
	breaker *breaker.Breaker
	budget  BudgetStore
	logger  logger.Logger
}

// NewSubsystem 创建分析子系统
func NewSubsystem(cfg config.AIConfig, client ModelClient, brk *breaker.Breaker, budget BudgetStore, log logger.Logger) *Subsystem {
	return &Subsystem{
		cfg:     cfg,
		client:  client,
		breaker: brk,
		budget:  budget,
		logger:  log,
	}
}

// Analyze 分析异常
// 每一条退出路径都有结果；兜底路径自身不会失败
func (s *Subsystem) Analyze(ctx context.Context, exc *entity.ExceptionRecord, rawContext map[string]interface{}) *model.Advisory {
	// 1. 采样策略：只有"重要"级别才花钱调模型
	if !s.sampled(exc.Severity) {
		s.logger.Debugf(ctx, "[Advisory] severity %s excluded by sampling policy", exc.Severity)
		return s.fallback(exc)
	}

	// 2. 日预算检查：耗尽按 AI 不可用处理
	ok, err := s.budget.Reserve(ctx, exc.Tenant, time.Now(), s.cfg.EstimatedCallCost, s.cfg.DailyTokenLimit)
	if err != nil {
		s.logger.Warnf(ctx, "[Advisory] budget check failed, falling back: %v", err)
		return s.fallback(exc)
	}
	if !ok {
		s.logger.Infof(ctx, "[Advisory] daily token budget exhausted for tenant %s", exc.Tenant)
		return s.fallback(exc)
	}

	// 3. 熔断器包裹的模型调用，硬超时兜底
	var raw string
	var usedTokens int64
	callErr := s.breaker.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()

		var err error
		raw, usedTokens, err = s.client.Complete(callCtx, s.buildPrompt(exc, rawContext))
		return err
	})
	if usedTokens > 0 {
		metrics.TokensConsumed.WithLabelValues(exc.Tenant).Add(float64(usedTokens))
	}
	if callErr != nil {
		// 熔断打开、超时、API 错误——一律走兜底，不向上抛
		s.logger.Warnf(ctx, "[Advisory] model unavailable, falling back: %v", callErr)
		return s.fallback(exc)
	}

	// 4. 宽容解析：连 JSON 都提不出来 → 置信度保持 NULL 的兜底
	parsed := ParseModelOutput(raw)
	if !parsed.Parsed {
		s.logger.Warnf(ctx, "[Advisory] unparseable model output, falling back")
		return s.fallback(exc)
	}

	adv := &model.Advisory{
		Label:           entity.ReasonOther,
		Confidence:      parsed.Confidence,
		OpsNote:         parsed.OpsNote,
		ClientNote:      parsed.ClientNote,
		Reasoning:       parsed.Reasoning,
		Source:          model.AdvisorySourceAI,
		AICallSucceeded: true,
	}
	if parsed.HasLabel {
		adv.Label = parsed.Label
	}

	// 5. 低置信度：内容换成兜底，原始置信度按原样保留（不清零），
	//    阻断判定仍以该值为准
	if parsed.Confidence != nil && *parsed.Confidence < s.cfg.MinConfidence {
		s.logger.Infof(ctx, "[Advisory] low confidence %.2f, using fallback content", *parsed.Confidence)
		fb := Fallback(exc)
		fb.Confidence = parsed.Confidence
		fb.AICallSucceeded = true
		metrics.AdvisoryResults.WithLabelValues(model.AdvisorySourceFallback).Inc()
		return fb
	}

	metrics.AdvisoryResults.WithLabelValues(model.AdvisorySourceAI).Inc()
	return adv
}

// fallback 统一的兜底出口（含指标）
func (s *Subsystem) fallback(exc *entity.ExceptionRecord) *model.Advisory {
	metrics.AdvisoryResults.WithLabelValues(model.AdvisorySourceFallback).Inc()
	return Fallback(exc)
}

// sampled 严重级别是否在采样名单内
func (s *Subsystem) sampled(severity string) bool {
	for _, sv := range s.cfg.SampleSeverities {
		if sv == severity {
			return true
		}
	}
	return false
}

// buildPrompt 构造结构化 prompt
func (s *Subsystem) buildPrompt(exc *entity.ExceptionRecord, rawContext map[string]interface{}) string {
	ctxJSON, _ := json.Marshal(rawContext)
	return fmt.Sprintf(
		"Order exception:\nreason_code: %s\nseverity: %s\norder_id: %s\ncontext: %s\n",
		exc.ReasonCode, exc.Severity, exc.OrderID, string(ctxJSON))
}
