package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"elx/engine/internal/domains/common"
	"elx/engine/internal/domains/common/job"
	"elx/engine/internal/domains/common/response"
	"elx/engine/internal/entity"
	"elx/engine/internal/framework"
	"elx/engine/internal/model"
	"elx/engine/internal/orchestrator"
	"elx/engine/pkg/errorutil"
)

// IngestHandler 订单事件摄入 Handler
type IngestHandler struct {
	ctx   context.Context
	meta  *job.Meta
	raw   []byte
	event *model.InboundOrderEvent
}

// NewIngestHandler 创建摄入 Handler
// 解析标准化 Job 消息中的业务数据
func NewIngestHandler(ctx context.Context, meta *job.Meta, payload interface{}, raw []byte) (common.HandlerServ, error) {
	// 解析 payload（业务数据）
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload failed: %w", err)
	}

	var ev model.InboundOrderEvent
	if err := json.Unmarshal(payloadBytes, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal business data failed: %w", err)
	}

	// 外部事件 ID 缺省取信封 ID
	if ev.ExternalEventID == "" {
		ev.ExternalEventID = meta.ID
	}

	return &IngestHandler{
		ctx:   ctx,
		meta:  meta,
		raw:   raw,
		event: &ev,
	}, nil
}

// GetProcess 处理摄入请求
func (h *IngestHandler) GetProcess() *response.Response {
	result := response.NewIngestResult()

	err := h.process(result)

	resp := &response.Response{}
	resp.WrapResponse(result, h.meta, err)

	return resp
}

// process 业务处理逻辑
func (h *IngestHandler) process(result *response.IngestResult) error {
	// 校验链：必填字段 → 来源合法性
	pre := framework.NewPreProcessor([]framework.ProcessorFunc{
		h.checkRequired,
		h.checkSource,
	})
	if err := pre.Run(h.ctx); err != nil {
		return errorutil.NonRetriableWithDetails("invalid order event", err.Error())
	}

	// 从 Context 获取编排器
	orch, ok := h.ctx.Value("orchestrator").(*orchestrator.Orchestrator)
	if !ok || orch == nil {
		return errorutil.NonRetriable("orchestrator not found in context")
	}

	ack, err := orch.Process(h.ctx, h.raw, h.event)
	if err != nil {
		// 只有准入层故障会走到这里，可重试
		return err
	}

	ack.RequestID = h.meta.RequestID
	result.Ack = ack
	return nil
}

// checkRequired 必填字段校验
func (h *IngestHandler) checkRequired(ctx context.Context) error {
	ev := h.event
	if ev.Tenant == "" {
		return fmt.Errorf("tenant is required")
	}
	if ev.OrderID == "" {
		return fmt.Errorf("order_id is required")
	}
	if ev.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if ev.ExternalEventID == "" {
		return fmt.Errorf("external_event_id is required")
	}
	if ev.OccurredAt <= 0 {
		return fmt.Errorf("occurred_at is required")
	}
	return nil
}

// checkSource 来源合法性校验
func (h *IngestHandler) checkSource(ctx context.Context) error {
	switch h.event.Source {
	case entity.SourceWarehouse, entity.SourceStorefront, entity.SourceCarrier:
		return nil
	default:
		return fmt.Errorf("unknown event source: %s", h.event.Source)
	}
}
