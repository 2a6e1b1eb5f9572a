package model

// OrderEventIngestJob 订单事件摄入任务消息（标准化）
// 用于上游采集端 → engine worker 的消息传递
type OrderEventIngestJob struct {
	Payload OrderEventIngestPayload `json:"payload"`
}

// OrderEventIngestPayload Job 负载
type OrderEventIngestPayload struct {
	Data OrderEventIngestData `json:"data"`
}

// OrderEventIngestData Job 数据层
type OrderEventIngestData struct {
	// 元信息
	RequestID  string `json:"request_id"`  // 请求 ID（全链路追踪）
	OrgID      string `json:"org_id"`      // 组织 ID
	ActionType string `json:"action_type"` // 动作类型，固定值 "order_event_ingest"
	ID         string `json:"id"`          // 外部事件 ID

	// 业务数据
	Data InboundOrderEvent `json:"data"`
}

// InboundOrderEvent 摄入的订单事件
// 包含处理该事件所需的全部数据（避免回查上游）
type InboundOrderEvent struct {
	Tenant          string                 `json:"tenant"`            // 租户
	Source          string                 `json:"source"`            // 来源：warehouse/storefront/carrier
	EventType       string                 `json:"event_type"`        // 事件类型（order_paid/pick_completed/...）
	ExternalEventID string                 `json:"external_event_id"` // 外部事件 ID（幂等键的一部分）
	OrderID         string                 `json:"order_id"`          // 订单 ID
	OccurredAt      int64                  `json:"occurred_at"`       // 发生时间（Unix timestamp）
	Payload         map[string]interface{} `json:"payload"`           // 原始载荷
	CorrelationID   string                 `json:"correlation_id"`    // 关联 ID
}

// 摄入确认状态常量
const (
	IngestAckAccepted  = "ACCEPTED"  // 已接收，进入处理管线
	IngestAckDuplicate = "DUPLICATE" // 重复事件，幂等忽略
)

// IngestAck 摄入确认（事件源只会看到这个，不会看到处理层结果）
type IngestAck struct {
	RequestID       string `json:"request_id"`
	Tenant          string `json:"tenant"`
	ExternalEventID string `json:"external_event_id"`
	Status          string `json:"status"` // ACCEPTED / DUPLICATE
	ProcessedAt     int64  `json:"processed_at"`
}
