package response

import (
	"elx/engine/internal/domains/common/job"
	"elx/engine/internal/model"
	"elx/engine/pkg/errorutil"
)

// IngestResult 事件摄入结果（实现 ResultI 接口）
type IngestResult struct {
	ID     string           `json:"id"`
	Status string           `json:"status"`
	Ack    *model.IngestAck `json:"ack,omitempty"`
	Error  *errorutil.Error `json:"error,omitempty"`
}

const (
	IngestStatusSuccess = "SUCCESS"
	IngestStatusFailed  = "FAILED"
)

// NewIngestResult 创建摄入结果
func NewIngestResult() *IngestResult {
	return &IngestResult{}
}

// Set 实现 ResultI 接口
func (r *IngestResult) Set(meta *job.Meta, err error) {
	r.ID = meta.ID
	if err != nil {
		r.Status = IngestStatusFailed
		r.Error = errorutil.Wrap(err)
	} else {
		r.Status = IngestStatusSuccess
	}
}

// GetStatus 实现 ResultI 接口
func (r *IngestResult) GetStatus() string {
	return r.Status
}
