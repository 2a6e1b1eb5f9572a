package advisory

import (
	"encoding/json"
	"strings"
)

// ParsedOutput 宽容解析结果
// 生成式模型的输出可能缺字段、带注释、混杂自由文本——缺什么标什么，绝不报错
type ParsedOutput struct {
	Label      string
	HasLabel   bool
	Confidence *float64 // nil 表示模型未给出数值置信度
	OpsNote    string
	ClientNote string
	Reasoning  string
	Parsed     bool // 是否提取到了任何结构化内容
}

// ParseModelOutput 从模型原文中尽力提取结构化字段
// 策略：截取首个 '{' 到最后一个 '}' 之间的内容按 JSON 解析；
// 解析失败或字段缺失只体现在标记位上，不会向上传播为处理失败
func ParseModelOutput(raw string) *ParsedOutput {
	out := &ParsedOutput{}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return out
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &fields); err != nil {
		return out
	}
	out.Parsed = true

	if label, ok := fields["label"].(string); ok && label != "" {
		out.Label = strings.ToUpper(strings.TrimSpace(label))
		out.HasLabel = true
	}

	// 置信度兼容数值与字符串两种给法，越界值按缺失处理
	switch v := fields["confidence"].(type) {
	case float64:
		if v >= 0 && v <= 1 {
			conf := v
			out.Confidence = &conf
		}
	case string:
		var conf float64
		if err := json.Unmarshal([]byte(v), &conf); err == nil && conf >= 0 && conf <= 1 {
			out.Confidence = &conf
		}
	}

	if note, ok := fields["ops_note"].(string); ok {
		out.OpsNote = strings.TrimSpace(note)
	}
	if note, ok := fields["client_note"].(string); ok {
		out.ClientNote = strings.TrimSpace(note)
	}
	if reasoning, ok := fields["reasoning"].(string); ok {
		out.Reasoning = strings.TrimSpace(reasoning)
	}

	return out
}
