package entity

import (
	"time"

	"gorm.io/datatypes"
)

// 事件来源常量
const (
	SourceWarehouse  = "warehouse"
	SourceStorefront = "storefront"
	SourceCarrier    = "carrier"
)

// OrderEvent 订单事件实体（append-only，只插入不修改不删除）
type OrderEvent struct {
	// 基础字段
	ID     int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Tenant string `gorm:"column:tenant;type:varchar(64);not null;uniqueIndex:uk_tenant_source_event;index:idx_tenant_order,priority:1"`
	Source string `gorm:"column:source;type:varchar(16);not null;uniqueIndex:uk_tenant_source_event"`

	// 外部事件标识（幂等键的一部分）
	ExternalEventID string `gorm:"column:external_event_id;type:varchar(128);not null;uniqueIndex:uk_tenant_source_event"`

	// 事件数据
	EventType     string         `gorm:"column:event_type;type:varchar(64);not null"`
	OrderID       string         `gorm:"column:order_id;type:varchar(64);not null;index:idx_tenant_order,priority:2"`
	OccurredAt    time.Time      `gorm:"column:occurred_at;not null"`
	Payload       datatypes.JSON `gorm:"column:payload;type:json"`
	CorrelationID string         `gorm:"column:correlation_id;type:varchar(64)"`

	// 时间戳
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName 指定表名
func (OrderEvent) TableName() string {
	return "order_events"
}

// EventDedup 幂等去重标记（插入即声明，冲突即重复）
type EventDedup struct {
	Tenant          string    `gorm:"column:tenant;type:varchar(64);primaryKey"`
	Source          string    `gorm:"column:source;type:varchar(16);primaryKey"`
	ExternalEventID string    `gorm:"column:external_event_id;type:varchar(128);primaryKey"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
}

// TableName 指定表名
func (EventDedup) TableName() string {
	return "event_dedup"
}
