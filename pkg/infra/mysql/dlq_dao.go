package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"elx/engine/internal/entity"
)

// DLQDAO 死信队列数据访问对象
type DLQDAO struct {
	db *gorm.DB
}

// NewDLQDAO 创建 DLQDAO 实例
func NewDLQDAO(db *gorm.DB) *DLQDAO {
	return &DLQDAO{db: db}
}

// Insert 写入死信条目
func (dao *DLQDAO) Insert(ctx context.Context, item *entity.DLQItem) error {
	if err := dao.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("failed to insert dlq item: %w", err)
	}
	return nil
}

// ListDue 查询到期待重放的条目（按到期时间升序）
func (dao *DLQDAO) ListDue(ctx context.Context, now time.Time, limit int) ([]entity.DLQItem, error) {
	var items []entity.DLQItem
	err := dao.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", entity.DLQStatusPending, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due dlq items: %w", err)
	}
	return items, nil
}

// MarkReplayed 标记重放成功
func (dao *DLQDAO) MarkReplayed(ctx context.Context, id int64) error {
	err := dao.db.WithContext(ctx).
		Model(&entity.DLQItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     entity.DLQStatusReplayed,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark dlq item replayed: %w", err)
	}
	return nil
}

// Reschedule 重放失败后改期
// attempt_count 原子自增，避免定时与人工触发并发时读改写竞争
func (dao *DLQDAO) Reschedule(ctx context.Context, id int64, nextRetryAt time.Time, exhausted bool) error {
	updates := map[string]interface{}{
		"attempt_count": gorm.Expr("attempt_count + 1"),
		"next_retry_at": nextRetryAt,
		"updated_at":    time.Now(),
	}
	if exhausted {
		// 用尽计划内重试不删除，留待人工检视/管理端重放
		updates["status"] = entity.DLQStatusExhausted
	}

	err := dao.db.WithContext(ctx).
		Model(&entity.DLQItem{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to reschedule dlq item: %w", err)
	}
	return nil
}

// GetByID 根据 ID 查询条目（管理端重放用）
func (dao *DLQDAO) GetByID(ctx context.Context, id int64) (*entity.DLQItem, error) {
	var item entity.DLQItem
	if err := dao.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, fmt.Errorf("failed to get dlq item: %w", err)
	}
	return &item, nil
}

// CountPending 统计待重放深度（指标用）
func (dao *DLQDAO) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := dao.db.WithContext(ctx).
		Model(&entity.DLQItem{}).
		Where("status = ?", entity.DLQStatusPending).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count pending dlq items: %w", err)
	}
	return count, nil
}
