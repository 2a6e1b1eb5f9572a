package job

// Job 队列消息的标准信封
// 事件入队时按此结构序列化，Processor 解析后路由到对应 Handler
type Job struct {
	Payload *JobPayload `json:"payload"`
}

// JobPayload 信封负载
type JobPayload struct {
	Data *JobPayloadData `json:"data"`
}

// JobPayloadData 信封数据段
type JobPayloadData struct {
	// 元信息
	RequestID  string `json:"request_id"`  // 请求 ID（TraceID），为空时由解析方补齐
	OrgID      string `json:"org_id"`      // 租户 ID
	ActionType string `json:"action_type"` // 动作类型，Handler 路由键
	ID         string `json:"id"`          // 业务 ID

	// 业务数据，各 Handler 自行断言具体类型
	Data interface{} `json:"data"`
}

// Meta 从信封中提取的元数据，贯穿单条消息的处理全程
type Meta struct {
	RequestID  string
	OrgID      string
	ActionType string
	ID         string
}
