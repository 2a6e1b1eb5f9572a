package admin

import (
	"context"

	"elx/engine/internal/dlq"
	"elx/engine/internal/entity"
	"elx/engine/pkg/logger"
)

// AttemptResetter 处置跟踪复位接口
type AttemptResetter interface {
	Reset(ctx context.Context, exceptionID int64) error
}

// ExceptionReader 异常读取接口
type ExceptionReader interface {
	GetByID(ctx context.Context, id int64) (*entity.ExceptionRecord, error)
}

// Service 运维操作入口
// 死信重放与处置复位都是显式人工动作，不做任何自动触发
type Service struct {
	dlqSvc     *dlq.Service
	resubmit   dlq.ResubmitFunc
	resetter   AttemptResetter
	exceptions ExceptionReader
	logger     logger.Logger
}

// NewService 创建运维服务
func NewService(dlqSvc *dlq.Service, resubmit dlq.ResubmitFunc, resetter AttemptResetter, exceptions ExceptionReader, log logger.Logger) *Service {
	return &Service{
		dlqSvc:     dlqSvc,
		resubmit:   resubmit,
		resetter:   resetter,
		exceptions: exceptions,
		logger:     log,
	}
}

// ReplayDLQ 手动触发一轮死信重放
func (s *Service) ReplayDLQ(ctx context.Context, batchSize, maxBatches int) (int, int, error) {
	s.logger.Infof(ctx, "[Admin] manual dlq replay: batch_size=%d max_batches=%d", batchSize, maxBatches)
	return s.dlqSvc.ReplayDue(ctx, batchSize, maxBatches, s.resubmit)
}

// ResetResolution 复位异常的处置跟踪（解除阻断的唯一途径）
func (s *Service) ResetResolution(ctx context.Context, exceptionID int64) error {
	s.logger.Infof(ctx, "[Admin] manual resolution reset: exception=%d", exceptionID)
	return s.resetter.Reset(ctx, exceptionID)
}

// ShowException 查看异常详情
func (s *Service) ShowException(ctx context.Context, id int64) (*entity.ExceptionRecord, error) {
	return s.exceptions.GetByID(ctx, id)
}
