package advisory

import (
	"elx/engine/internal/entity"
	"elx/engine/internal/model"
)

// fallbackRule 兜底规则（确定性，从原因码直接推导）
type fallbackRule struct {
	Label      string
	OpsNote    string
	ClientNote string
}

// fallbackRules 原因码 → 兜底内容
var fallbackRules = map[string]fallbackRule{
	entity.ReasonPickDelay: {
		Label:      "PICK_DELAY",
		OpsNote:    "Pick stage exceeded SLA window. Check warehouse staffing and pick queue backlog.",
		ClientNote: "Your order is being prepared and is taking slightly longer than usual.",
	},
	entity.ReasonPackDelay: {
		Label:      "PACK_DELAY",
		OpsNote:    "Pack stage exceeded SLA window. Check packing station throughput.",
		ClientNote: "Your order is being packed and will ship shortly.",
	},
	entity.ReasonCarrierIssue: {
		Label:      "CARRIER_ISSUE",
		OpsNote:    "Carrier-side delay or exception. Verify carrier status feed and consider rebooking.",
		ClientNote: "Your shipment is experiencing a carrier delay. We are monitoring it closely.",
	},
	entity.ReasonAddressError: {
		Label:      "ADDRESS_ERROR",
		OpsNote:    "Address validation failed. Contact customer to confirm delivery details.",
		ClientNote: "We need to confirm your delivery address to avoid a delay.",
	},
	entity.ReasonSystemError: {
		Label:      "SYSTEM_ERROR",
		OpsNote:    "Internal processing error on this order. Escalate to platform support.",
		ClientNote: "We hit a technical issue while processing your order and are on it.",
	},
}

// Fallback 生成确定性兜底分析
// 这条路径永远成功：任何原因码（含未知）都有结果，Source 明确标记为 FALLBACK。
// Confidence 保持 nil——兜底不是模型判断，不得伪造置信度
func Fallback(exc *entity.ExceptionRecord) *model.Advisory {
	rule, ok := fallbackRules[exc.ReasonCode]
	if !ok {
		rule = fallbackRule{
			Label:      entity.ReasonOther,
			OpsNote:    "Unclassified exception. Manual review recommended.",
			ClientNote: "We are reviewing an issue with your order.",
		}
	}

	return &model.Advisory{
		Label:      rule.Label,
		Confidence: nil,
		OpsNote:    rule.OpsNote,
		ClientNote: rule.ClientNote,
		Reasoning:  "Deterministic rule-based assessment derived from reason code " + exc.ReasonCode,
		Source:     model.AdvisorySourceFallback,
	}
}
