package model

// 异常生命周期动作常量
const (
	LifecycleCreated  = "CREATED"
	LifecycleUpdated  = "UPDATED"
	LifecycleResolved = "RESOLVED"
	LifecycleBlocked  = "BLOCKED"
)

// ExceptionLifecycleNotification 异常生命周期通知消息
// 发布到 Redis 频道，供看板/告警消费
type ExceptionLifecycleNotification struct {
	ExceptionID int64  `json:"exception_id"`
	Tenant      string `json:"tenant"`
	OrderID     string `json:"order_id"`
	ReasonCode  string `json:"reason_code"`
	Action      string `json:"action"` // CREATED/UPDATED/RESOLVED/BLOCKED
	Status      string `json:"status"`
	Severity    string `json:"severity"`
	Timestamp   int64  `json:"timestamp"`
}
