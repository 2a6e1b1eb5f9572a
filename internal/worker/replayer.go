package worker

import (
	"context"
	"sync"
	"time"

	"elx/engine/internal/dlq"
	"elx/engine/pkg/config"
	"elx/engine/pkg/logger"
)

// Replayer 死信重放驱动：周期扫描到期死信并重放
type Replayer struct {
	svc        *dlq.Service
	resubmit   dlq.ResubmitFunc
	cfg        config.DLQConfig
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	logger     logger.Logger
}

// NewReplayer 创建重放驱动
func NewReplayer(svc *dlq.Service, resubmit dlq.ResubmitFunc, cfg config.DLQConfig, log logger.Logger) *Replayer {
	return &Replayer{
		svc:      svc,
		resubmit: resubmit,
		cfg:      cfg,
		logger:   log,
	}
}

// Start 启动重放循环
func (r *Replayer) Start(parentCtx context.Context) {
	ctx, cancel := context.WithCancel(parentCtx)
	r.cancelFunc = cancel

	r.logger.Infof(ctx, "[Replayer] Starting, interval: %s, batch_size: %d",
		r.cfg.ReplayInterval, r.cfg.BatchSize)

	r.wg.Add(1)
	go r.loop(ctx)
}

// Shutdown 停止重放循环并等待退出
func (r *Replayer) Shutdown() {
	if r.cancelFunc != nil {
		r.cancelFunc()
	}
	r.wg.Wait()
	r.logger.Infof(context.Background(), "[Replayer] Shutdown complete")
}

// loop 重放循环
func (r *Replayer) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.ReplayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Infof(ctx, "[Replayer] Context cancelled, exiting")
			return
		case <-ticker.C:
			succeeded, failed, err := r.svc.ReplayDue(ctx, r.cfg.BatchSize, 1, r.resubmit)
			if err != nil {
				r.logger.Warnf(ctx, "[Replayer] replay sweep error: %v", err)
				continue
			}
			if succeeded+failed > 0 {
				r.logger.Infof(ctx, "[Replayer] sweep done: succeeded=%d failed=%d", succeeded, failed)
			}
		}
	}
}
