package common

import (
	"context"

	"elx/engine/internal/domains/common/job"
	"elx/engine/internal/domains/common/response"
)

// HandlerServProc Handler 构造函数类型
// raw 为 Job 原始 bytes，失败捕获进死信时原样保留
type HandlerServProc func(ctx context.Context, meta *job.Meta, payload interface{}, raw []byte) (HandlerServ, error)

// HandlerServ Handler 接口
type HandlerServ interface {
	GetProcess() *response.Response
}
