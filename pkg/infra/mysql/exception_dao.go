package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"elx/engine/internal/entity"
)

// ExceptionDAO 异常工单数据访问对象
type ExceptionDAO struct {
	db *gorm.DB
}

// NewExceptionDAO 创建 ExceptionDAO 实例
func NewExceptionDAO(db *gorm.DB) *ExceptionDAO {
	return &ExceptionDAO{db: db}
}

// CreateIfNoOpen 条件创建异常
// 依赖 (tenant, order_id, reason_code, open_uniq) 唯一索引：同一原因已有未关闭
// 异常时插入冲突，按无操作返回 false。重复评估同一时间线不会产生重复工单
func (dao *ExceptionDAO) CreateIfNoOpen(ctx context.Context, rec *entity.ExceptionRecord) (bool, error) {
	rec.OpenUniq = entity.OpenMarker()
	if rec.Status == "" {
		rec.Status = entity.ExceptionStatusOpen
	}

	result := dao.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create exception: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetByID 根据 ID 查询异常
func (dao *ExceptionDAO) GetByID(ctx context.Context, id int64) (*entity.ExceptionRecord, error) {
	var rec entity.ExceptionRecord
	err := dao.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get exception: %w", err)
	}
	return &rec, nil
}

// UpdateAdvisory 写入 AI 分析结果
// confidence 为 nil 时列写入 NULL——这是重处理信号，绝不能写成 0
func (dao *ExceptionDAO) UpdateAdvisory(ctx context.Context, id int64, label string, confidence *float64, source, opsNote, clientNote string) error {
	updates := map[string]interface{}{
		"ai_label":      label,
		"ai_confidence": confidence,
		"ai_source":     source,
		"ops_note":      opsNote,
		"client_note":   clientNote,
		"updated_at":    time.Now(),
	}

	err := dao.db.WithContext(ctx).
		Model(&entity.ExceptionRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update advisory: %w", err)
	}
	return nil
}

// IncrementAttempt 原子递增处置次数
// 条件更新保证不会越过 max_resolution_attempts，也不会与并发触发器竞争计数。
// 记录已不满足处置条件时返回 (nil, nil)
func (dao *ExceptionDAO) IncrementAttempt(ctx context.Context, id int64, now time.Time) (*entity.ExceptionRecord, error) {
	result := dao.db.WithContext(ctx).
		Model(&entity.ExceptionRecord{}).
		Where("id = ? AND resolution_blocked = ? AND resolution_attempts < max_resolution_attempts AND status IN ?",
			id, false, []string{entity.ExceptionStatusOpen, entity.ExceptionStatusInProgress}).
		Updates(map[string]interface{}{
			"resolution_attempts":        gorm.Expr("resolution_attempts + 1"),
			"last_resolution_attempt_at": now,
			"status":                     entity.ExceptionStatusInProgress,
			"updated_at":                 now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to increment attempt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	return dao.GetByID(ctx, id)
}

// Resolve 结单：状态置 RESOLVED，释放条件唯一标记
func (dao *ExceptionDAO) Resolve(ctx context.Context, id int64) error {
	err := dao.db.WithContext(ctx).
		Model(&entity.ExceptionRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     entity.ExceptionStatusResolved,
			"open_uniq":  nil,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to resolve exception: %w", err)
	}
	return nil
}

// Block 阻断自动处置（附人类可读原因）
func (dao *ExceptionDAO) Block(ctx context.Context, id int64, reason string) error {
	err := dao.db.WithContext(ctx).
		Model(&entity.ExceptionRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"resolution_blocked":      true,
			"resolution_block_reason": reason,
			"status":                  entity.ExceptionStatusBlocked,
			"updated_at":              time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to block exception: %w", err)
	}
	return nil
}

// ResetResolutionTracking 人工复位处置跟踪
// 这是解除阻断的唯一途径，只应在人工修复后由管理入口触发
func (dao *ExceptionDAO) ResetResolutionTracking(ctx context.Context, id int64) error {
	result := dao.db.WithContext(ctx).
		Model(&entity.ExceptionRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"resolution_attempts":        0,
			"resolution_blocked":         false,
			"resolution_block_reason":    nil,
			"last_resolution_attempt_at": nil,
			"status":                     entity.ExceptionStatusOpen,
			"open_uniq":                  entity.OpenMarker(),
			"updated_at":                 time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to reset resolution tracking: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("exception not found: %d", id)
	}
	return nil
}

// ListEligible 查询可自动处置的异常
// 命中 idx_eligible (tenant, status, resolution_blocked)，该查询每个处理周期都会执行
func (dao *ExceptionDAO) ListEligible(ctx context.Context, tenant string, limit int) ([]entity.ExceptionRecord, error) {
	var recs []entity.ExceptionRecord
	err := dao.db.WithContext(ctx).
		Where("tenant = ? AND status IN ? AND resolution_blocked = ? AND resolution_attempts < max_resolution_attempts",
			tenant, []string{entity.ExceptionStatusOpen, entity.ExceptionStatusInProgress}, false).
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible exceptions: %w", err)
	}
	return recs, nil
}
