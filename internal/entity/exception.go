package entity

import "time"

// 异常原因码常量
const (
	ReasonPickDelay    = "PICK_DELAY"
	ReasonPackDelay    = "PACK_DELAY"
	ReasonCarrierIssue = "CARRIER_ISSUE"
	ReasonAddressError = "ADDRESS_ERROR"
	ReasonSystemError  = "SYSTEM_ERROR"
	ReasonOther        = "OTHER"
)

// 异常状态常量
const (
	ExceptionStatusOpen       = "OPEN"
	ExceptionStatusInProgress = "IN_PROGRESS"
	ExceptionStatusResolved   = "RESOLVED"
	ExceptionStatusBlocked    = "BLOCKED"
)

// 严重级别常量
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// ExceptionRecord 异常工单实体
// OpenUniq 为条件唯一辅助列：OPEN/IN_PROGRESS 时为 "1"，关闭后置 NULL，
// 配合唯一索引保证同一 (tenant, order_id, reason_code) 最多一条在处理中的异常
type ExceptionRecord struct {
	// 基础字段
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Tenant     string `gorm:"column:tenant;type:varchar(64);not null;uniqueIndex:uk_open_exception;index:idx_eligible,priority:1"`
	OrderID    string `gorm:"column:order_id;type:varchar(64);not null;uniqueIndex:uk_open_exception"`
	ReasonCode string `gorm:"column:reason_code;type:varchar(32);not null;uniqueIndex:uk_open_exception"`

	// 状态与分级
	Status   string  `gorm:"column:status;type:varchar(16);not null;default:'OPEN';index:idx_eligible,priority:2"`
	Severity string  `gorm:"column:severity;type:varchar(16);not null"`
	OpenUniq *string `gorm:"column:open_uniq;type:varchar(1);uniqueIndex:uk_open_exception"`

	// AI 分析结果（AIConfidence 为 NULL 表示未得到可解析的分析结果，是重处理信号）
	AILabel      string   `gorm:"column:ai_label;type:varchar(64)"`
	AIConfidence *float64 `gorm:"column:ai_confidence"`
	AISource     string   `gorm:"column:ai_source;type:varchar(16)"`
	OpsNote      string   `gorm:"column:ops_note;type:text"`
	ClientNote   string   `gorm:"column:client_note;type:text"`

	// 自动处置跟踪
	ResolutionAttempts      int        `gorm:"column:resolution_attempts;not null;default:0"`
	MaxResolutionAttempts   int        `gorm:"column:max_resolution_attempts;not null;default:2"`
	LastResolutionAttemptAt *time.Time `gorm:"column:last_resolution_attempt_at"`
	ResolutionBlocked       bool       `gorm:"column:resolution_blocked;not null;default:false;index:idx_eligible,priority:3"`
	ResolutionBlockReason   *string    `gorm:"column:resolution_block_reason;type:varchar(255)"`

	// 时间戳
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (ExceptionRecord) TableName() string {
	return "exception_records"
}

// IsOpen 是否处于可处理状态（OPEN 或 IN_PROGRESS）
func (e *ExceptionRecord) IsOpen() bool {
	return e.Status == ExceptionStatusOpen || e.Status == ExceptionStatusInProgress
}

// OpenMarker 条件唯一列的取值
func OpenMarker() *string {
	s := "1"
	return &s
}
