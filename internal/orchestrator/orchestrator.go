package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"elx/engine/internal/entity"
	"elx/engine/internal/governor"
	"elx/engine/internal/idempotency"
	"elx/engine/internal/model"
	"elx/engine/pkg/config"
	"elx/engine/pkg/errorutil"
	"elx/engine/pkg/logger"
	"elx/engine/pkg/metrics"
)

// Admitter 事件准入（幂等闸门）
type Admitter interface {
	Admit(ctx context.Context, tenant, source, externalEventID string) (idempotency.Admission, error)
	Done(ctx context.Context, tenant, source, externalEventID string)
}

// EventStore 订单事件存储
type EventStore interface {
	Insert(ctx context.Context, ev *entity.OrderEvent) error
	Timeline(ctx context.Context, tenant, orderID string) ([]entity.OrderEvent, error)
}

// BreachEvaluator 时间线 SLA 评估
type BreachEvaluator interface {
	Evaluate(ctx context.Context, tenant, orderID string, timeline []entity.OrderEvent) ([]*entity.ExceptionRecord, error)
}

// ProblemInspector 问题事件检查
type ProblemInspector interface {
	Inspect(ctx context.Context, ev *entity.OrderEvent) (*entity.ExceptionRecord, error)
}

// Analyzer 异常分析（含兜底，永不失败）
type Analyzer interface {
	Analyze(ctx context.Context, exc *entity.ExceptionRecord, rawContext map[string]interface{}) *model.Advisory
}

// AdvisoryWriter 分析结果落库
type AdvisoryWriter interface {
	UpdateAdvisory(ctx context.Context, id int64, label string, confidence *float64, source, opsNote, clientNote string) error
}

// AttemptGovernor 处置尝试治理
type AttemptGovernor interface {
	IsEligible(exc *entity.ExceptionRecord) bool
	RecordAttempt(ctx context.Context, exc *entity.ExceptionRecord, outcome governor.Outcome) (*entity.ExceptionRecord, error)
	ApplyAdvisoryGate(ctx context.Context, exc *entity.ExceptionRecord, adv *model.Advisory, blockFloor float64) (bool, error)
}

// Resolver 自动处置执行器
type Resolver interface {
	Resolve(ctx context.Context, exc *entity.ExceptionRecord, timeline []entity.OrderEvent) bool
}

// LifecyclePublisher 生命周期通知发布
type LifecyclePublisher interface {
	PublishLifecycle(ctx context.Context, notification *model.ExceptionLifecycleNotification) error
}

// FailureSink 处理失败兜底（死信）
type FailureSink interface {
	Capture(ctx context.Context, payload []byte, reason string) error
}

// Orchestrator 事件处理编排器
// 管线：准入 → 事件落库 → 问题检查 + SLA 评估 → AI 分析 → 处置治理 → 通知。
// 准入之后的任何一步失败都在编排器边界捕获进死信，事件源只会看到摄入确认
type Orchestrator struct {
	gate      Admitter
	events    EventStore
	evaluator BreachEvaluator
	inspector ProblemInspector
	analyzer  Analyzer
	advisory  AdvisoryWriter
	governor  AttemptGovernor
	resolver  Resolver
	notifier  LifecyclePublisher
	failures  FailureSink
	aiCfg     config.AIConfig
	logger    logger.Logger
}

// NewOrchestrator 创建编排器
func NewOrchestrator(
	gate Admitter,
	events EventStore,
	evaluator BreachEvaluator,
	inspector ProblemInspector,
	analyzer Analyzer,
	advisory AdvisoryWriter,
	gov AttemptGovernor,
	res Resolver,
	notifier LifecyclePublisher,
	failures FailureSink,
	aiCfg config.AIConfig,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		gate:      gate,
		events:    events,
		evaluator: evaluator,
		inspector: inspector,
		analyzer:  analyzer,
		advisory:  advisory,
		governor:  gov,
		resolver:  res,
		notifier:  notifier,
		failures:  failures,
		aiCfg:     aiCfg,
		logger:    log,
	}
}

// Process 处理一条摄入事件
// 返回错误仅限准入层故障（锁/去重存储不可用），属可重试；
// 准入通过后的处理失败进死信，对事件源仍返回 ACCEPTED
func (o *Orchestrator) Process(ctx context.Context, raw []byte, ev *model.InboundOrderEvent) (*model.IngestAck, error) {
	admission, err := o.gate.Admit(ctx, ev.Tenant, ev.Source, ev.ExternalEventID)
	if err != nil {
		return nil, err
	}
	if admission == idempotency.Duplicate {
		o.logger.Infof(ctx, "[Orchestrator] duplicate event ignored: tenant=%s source=%s id=%s",
			ev.Tenant, ev.Source, ev.ExternalEventID)
		return o.ack(ev, model.IngestAckDuplicate), nil
	}
	defer o.gate.Done(ctx, ev.Tenant, ev.Source, ev.ExternalEventID)

	if err := o.runPipeline(ctx, ev); err != nil {
		o.captureFailure(ctx, raw, ev, err)
	}
	return o.ack(ev, model.IngestAckAccepted), nil
}

// Reprocess 死信重放入口，跳过准入闸门直接重跑管线
// 事件落库与异常创建本身幂等，重复执行安全
func (o *Orchestrator) Reprocess(ctx context.Context, raw []byte) error {
	var job model.OrderEventIngestJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return errorutil.NonRetriableWithDetails("dead letter payload unparseable", err.Error())
	}
	ev := job.Payload.Data.Data
	if ev.Tenant == "" || ev.OrderID == "" {
		return errorutil.NonRetriable("dead letter payload missing tenant or order_id")
	}
	return o.runPipeline(ctx, &ev)
}

// runPipeline 准入之后的处理管线
func (o *Orchestrator) runPipeline(ctx context.Context, ev *model.InboundOrderEvent) error {
	record, err := o.persistEvent(ctx, ev)
	if err != nil {
		return err
	}

	timeline, err := o.events.Timeline(ctx, ev.Tenant, ev.OrderID)
	if err != nil {
		return errorutil.RetriableWithDetails("timeline load failed", err.Error())
	}

	var created []*entity.ExceptionRecord

	// 问题事件直接建异常，不经 SLA 窗口
	problem, err := o.inspector.Inspect(ctx, record)
	if err != nil {
		return err
	}
	if problem != nil {
		created = append(created, problem)
	}

	breaches, err := o.evaluator.Evaluate(ctx, ev.Tenant, ev.OrderID, timeline)
	if err != nil {
		return err
	}
	created = append(created, breaches...)

	for _, exc := range created {
		if err := o.handleException(ctx, exc, ev.Payload, timeline); err != nil {
			return err
		}
	}
	return nil
}

// persistEvent 事件标准化落库（append-only，冲突即已存在）
func (o *Orchestrator) persistEvent(ctx context.Context, ev *model.InboundOrderEvent) (*entity.OrderEvent, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, errorutil.NonRetriableWithDetails("event payload marshal failed", err.Error())
	}

	record := &entity.OrderEvent{
		Tenant:          ev.Tenant,
		Source:          ev.Source,
		ExternalEventID: ev.ExternalEventID,
		EventType:       ev.EventType,
		OrderID:         ev.OrderID,
		OccurredAt:      time.Unix(ev.OccurredAt, 0).UTC(),
		Payload:         datatypes.JSON(payload),
		CorrelationID:   ev.CorrelationID,
		CreatedAt:       time.Now(),
	}
	if err := o.events.Insert(ctx, record); err != nil {
		return nil, errorutil.RetriableWithDetails("order event insert failed", err.Error())
	}
	return record, nil
}

// handleException 单个新建异常的后续处理：分析 → 落库 → 治理 → 通知
func (o *Orchestrator) handleException(ctx context.Context, exc *entity.ExceptionRecord, rawContext map[string]interface{}, timeline []entity.OrderEvent) error {
	metrics.ExceptionsCreated.WithLabelValues(exc.ReasonCode, exc.Severity).Inc()
	o.notify(ctx, exc, model.LifecycleCreated)

	adv := o.analyzer.Analyze(ctx, exc, rawContext)
	if err := o.advisory.UpdateAdvisory(ctx, exc.ID, adv.Label, adv.Confidence, adv.Source, adv.OpsNote, adv.ClientNote); err != nil {
		return errorutil.RetriableWithDetails("advisory persist failed", err.Error())
	}
	exc.AILabel = adv.Label
	exc.AIConfidence = adv.Confidence
	exc.AISource = adv.Source
	exc.OpsNote = adv.OpsNote
	exc.ClientNote = adv.ClientNote
	o.notify(ctx, exc, model.LifecycleUpdated)

	blocked, err := o.governor.ApplyAdvisoryGate(ctx, exc, adv, o.aiCfg.BlockConfidence)
	if err != nil {
		return err
	}
	if blocked {
		o.notify(ctx, exc, model.LifecycleBlocked)
		return nil
	}

	if !o.governor.IsEligible(exc) {
		return nil
	}

	outcome := governor.OutcomeFailed
	if o.resolver.Resolve(ctx, exc, timeline) {
		outcome = governor.OutcomeSucceeded
	}
	updated, err := o.governor.RecordAttempt(ctx, exc, outcome)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}

	switch {
	case updated.Status == entity.ExceptionStatusResolved:
		o.notify(ctx, updated, model.LifecycleResolved)
	case updated.ResolutionBlocked:
		o.notify(ctx, updated, model.LifecycleBlocked)
	default:
		o.notify(ctx, updated, model.LifecycleUpdated)
	}
	return nil
}

// notify 生命周期通知，尽力而为，失败只记日志
func (o *Orchestrator) notify(ctx context.Context, exc *entity.ExceptionRecord, action string) {
	n := &model.ExceptionLifecycleNotification{
		ExceptionID: exc.ID,
		Tenant:      exc.Tenant,
		OrderID:     exc.OrderID,
		ReasonCode:  exc.ReasonCode,
		Action:      action,
		Status:      exc.Status,
		Severity:    exc.Severity,
		Timestamp:   time.Now().Unix(),
	}
	if err := o.notifier.PublishLifecycle(ctx, n); err != nil {
		o.logger.Warnf(ctx, "[Orchestrator] lifecycle notify failed: exception=%d action=%s, err: %v",
			exc.ID, action, err)
	}
}

// captureFailure 管线失败进死信，等待重放
func (o *Orchestrator) captureFailure(ctx context.Context, raw []byte, ev *model.InboundOrderEvent, cause error) {
	o.logger.Errorf(ctx, "[Orchestrator] pipeline failed: tenant=%s order=%s event=%s, err: %v",
		ev.Tenant, ev.OrderID, ev.ExternalEventID, cause)
	if err := o.failures.Capture(ctx, raw, cause.Error()); err != nil {
		o.logger.Errorf(ctx, "[Orchestrator] dead letter capture failed, event lost to manual recovery: %v", err)
	}
}

// ack 摄入确认
func (o *Orchestrator) ack(ev *model.InboundOrderEvent, status string) *model.IngestAck {
	return &model.IngestAck{
		Tenant:          ev.Tenant,
		ExternalEventID: ev.ExternalEventID,
		Status:          status,
		ProcessedAt:     time.Now().Unix(),
	}
}
