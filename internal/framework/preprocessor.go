package framework

import (
	"context"
	"fmt"
)

// PreProcessor 消费前的准备函数链
// Processor 启动前按注册顺序依次执行，常用于建表检查、预热缓存
type PreProcessor struct {
	processFuncs []ProcessorFunc
}

// NewPreProcessor 创建准备函数链
func NewPreProcessor(processFuncs []ProcessorFunc) *PreProcessor {
	return &PreProcessor{
		processFuncs: processFuncs,
	}
}

// Run 顺序执行注册的函数，任一步失败立即中断并带上位置信息返回
func (p *PreProcessor) Run(ctx context.Context) error {
	for i, processFunc := range p.processFuncs {
		if processFunc == nil {
			continue
		}
		if err := processFunc(ctx); err != nil {
			return fmt.Errorf("preprocess step[%d] failed: %w", i, err)
		}
	}
	return nil
}
