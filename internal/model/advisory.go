package model

// Advisory AI 分析结果
// Confidence 为 nil 表示模型未返回可解析的置信度（重处理信号），绝不以 0 兜底
type Advisory struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence"`
	OpsNote    string   `json:"ops_note"`
	ClientNote string   `json:"client_note"`
	Reasoning  string   `json:"reasoning"`

	// Source 标记结果来源：AI / FALLBACK，下游据此区分真实模型洞察与兜底结果
	Source string `json:"source"`

	// AICallSucceeded 表示模型调用本身成功且返回了可解析输出。
	// 低置信度会触发兜底内容，但原始置信度仍按此标记参与阻断判定
	AICallSucceeded bool `json:"ai_call_succeeded"`
}

// 分析来源常量
const (
	AdvisorySourceAI       = "AI"
	AdvisorySourceFallback = "FALLBACK"
)
