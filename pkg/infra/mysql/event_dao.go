package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"elx/engine/internal/entity"
)

// EventDAO 订单事件数据访问对象
// 事件表 append-only：只插入，不更新不删除
type EventDAO struct {
	db *gorm.DB
}

// NewEventDAO 创建 EventDAO 实例
func NewEventDAO(db *gorm.DB) *EventDAO {
	return &EventDAO{db: db}
}

// PutDedupIfAbsent 插入幂等去重标记
// 返回 false 表示标记已存在（事件已被处理过），调用方应按重复处理
func (dao *EventDAO) PutDedupIfAbsent(ctx context.Context, tenant, source, externalEventID string) (bool, error) {
	marker := &entity.EventDedup{
		Tenant:          tenant,
		Source:          source,
		ExternalEventID: externalEventID,
		CreatedAt:       time.Now(),
	}

	result := dao.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(marker)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert dedup marker: %w", result.Error)
	}

	// RowsAffected == 0 表示冲突：处理已在两次重试之间完成
	return result.RowsAffected > 0, nil
}

// Insert 持久化订单事件
// 唯一索引兜底：并发竞争下冲突按无操作处理
func (dao *EventDAO) Insert(ctx context.Context, ev *entity.OrderEvent) error {
	result := dao.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(ev)
	if result.Error != nil {
		return fmt.Errorf("failed to insert order event: %w", result.Error)
	}
	return nil
}

// Timeline 查询订单事件时间线（按发生时间升序）
func (dao *EventDAO) Timeline(ctx context.Context, tenant, orderID string) ([]entity.OrderEvent, error) {
	var events []entity.OrderEvent
	err := dao.db.WithContext(ctx).
		Where("tenant = ? AND order_id = ?", tenant, orderID).
		Order("occurred_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline: %w", err)
	}
	return events, nil
}
