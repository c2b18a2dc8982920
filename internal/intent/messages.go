package intent

import (
	"fmt"

	"dataclean/internal"
)

// UnsupportedMessage is returned when an intent passes banding but has no
// handler.
const UnsupportedMessage = "无法识别的指令。支持的指令：提取数据、分析数据、转换格式等"

var typeDescriptions = map[internal.IntentType]string{
	internal.IntentExtract:   "提取数据",
	internal.IntentAnalyze:   "分析数据",
	internal.IntentTransform: "转换格式",
	internal.IntentUnknown:   "未知",
}

// Describe names the intent for users, with the target in parentheses.
func Describe(in internal.Intent) string {
	desc, ok := typeDescriptions[in.Type]
	if !ok {
		desc = string(in.Type)
	}
	if in.Target != "" {
		desc += "(" + in.Target + ")"
	}
	return desc
}

func percent(confidence float64) string {
	return fmt.Sprintf("%.0f%%", confidence*100)
}

// Disclosure is appended to a successful mid-confidence result.
func Disclosure(in internal.Intent) string {
	return fmt.Sprintf("\n\n💡 提示: 系统以 %s 的置信度识别您的意图为\"%s\"，如果不正确请尝试更明确的指令（如\"提取机票数据\"）。",
		percent(in.Confidence), Describe(in))
}

// Clarification replaces execution for low-confidence intents.
func Clarification(in internal.Intent) string {
	return fmt.Sprintf(`无法确定您的意图（置信度 %s）。

您是想：
1️⃣ 提取数据 - 说"提取机票数据"、"导出酒店信息"
2️⃣ 分析数据 - 说"分析数据质量"、"统计一下"
3️⃣ 转换格式 - 说"转成 JSON"、"导出为 CSV"

请用更明确的指令描述您的需求。`, percent(in.Confidence))
}
