package entity

import (
	"time"

	"gorm.io/datatypes"
)

// 死信状态常量
const (
	DLQStatusPending   = "PENDING"   // 等待重放
	DLQStatusReplayed  = "REPLAYED"  // 重放成功
	DLQStatusExhausted = "EXHAUSTED" // 计划内重试用尽，等待人工处理
)

// DLQItem 死信队列条目
// 任何处理步骤超出本地重试预算后的失败都会落入此表，重放成功前不删除
type DLQItem struct {
	ID              int64          `gorm:"column:id;primaryKey;autoIncrement"`
	OriginalPayload datatypes.JSON `gorm:"column:original_payload;type:json;not null"`
	FailureReason   string         `gorm:"column:failure_reason;type:varchar(512);not null"`
	AttemptCount    int            `gorm:"column:attempt_count;not null;default:0"`
	Status          string         `gorm:"column:status;type:varchar(16);not null;default:'PENDING';index:idx_due,priority:1"`
	NextRetryAt     time.Time      `gorm:"column:next_retry_at;not null;index:idx_due,priority:2"`
	CreatedAt       time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (DLQItem) TableName() string {
	return "dlq_items"
}
