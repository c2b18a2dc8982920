// Package apperr holds the error codes shared by analysis, extraction and the
// tool surfaces, with the user-facing text and recovery hint for each.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Code string

const (
	FileNotFound      Code = "FILE_001"
	FileTooLarge      Code = "FILE_002"
	FileFormatInvalid Code = "FILE_003"
	FileReadError     Code = "FILE_004"
	FilePathMissing   Code = "FILE_005"

	DataEmpty      Code = "DATA_001"
	DataParseError Code = "DATA_002"
	SheetNotFound  Code = "DATA_003"
	TargetNotFound Code = "DATA_004"

	AIKeyMissing      Code = "AI_001"
	AICallFailed      Code = "AI_002"
	AIRateLimit       Code = "AI_003"
	AITimeout         Code = "AI_004"
	AIResponseInvalid Code = "AI_005"

	AgentIntentUnknown   Code = "AGENT_001"
	AgentExecutionFailed Code = "AGENT_002"
	AgentBudgetExceeded  Code = "AGENT_003"

	SystemUnavailable     Code = "SYS_001"
	SystemTransportFailed Code = "SYS_002"
	SystemUnknown         Code = "SYS_999"
)

// DefaultTargets is listed when a caller does not supply its own target set.
var DefaultTargets = []string{"机票", "酒店", "火车", "用车", "对账单"}

// Details fills the placeholders of a message template. Only the fields a
// given code uses are read.
type Details struct {
	FileName         string
	SizeMB           float64
	LimitMB          float64
	Format           string
	SheetName        string
	AvailableSheets  []string
	Target           string
	AvailableTargets []string
	Provider         string
	RetryAfter       string
	Suggestion       string
	LimitType        string
	Current          int
	Max              int
	Original         string
}

type Detail struct {
	Code        Code   `json:"code"`
	Message     string `json:"message"`
	UserMessage string `json:"userMessage"`
	Suggestion  string `json:"suggestion"`
	Recoverable bool   `json:"recoverable"`
}

func Describe(code Code, d Details) Detail {
	out := Detail{Code: code}
	switch code {
	case FileNotFound:
		out.Message = "文件不存在"
		out.UserMessage = fmt.Sprintf("找不到文件 \"%s\"，请检查文件是否被移动或删除。", or(d.FileName, "未知"))
		out.Suggestion = or(d.Suggestion, "请重新上传文件，或检查文件路径是否正确。")
		out.Recoverable = true
	case FileTooLarge:
		out.Message = "文件过大"
		out.UserMessage = fmt.Sprintf("文件 \"%s\" 太大 (%gMB)，超过限制 %gMB。", d.FileName, d.SizeMB, d.LimitMB)
		out.Suggestion = "请压缩文件、分批处理，或联系管理员放宽限制。"
	case FileFormatInvalid:
		out.Message = "文件格式不支持"
		out.UserMessage = fmt.Sprintf("不支持的文件格式 \"%s\"。", d.Format)
		out.Suggestion = "请上传 CSV、Excel (.xlsx/.xls) 或 JSON 格式的文件。"
	case FileReadError:
		out.Message = "文件读取失败"
		out.UserMessage = fmt.Sprintf("无法读取文件 \"%s\"，文件可能已损坏。", d.FileName)
		out.Suggestion = "请检查文件是否完整，尝试用 Excel 打开后重新保存。"
		out.Recoverable = true
	case FilePathMissing:
		out.Message = "文件路径缺失"
		out.UserMessage = "文件路径不可用，可能是拖拽上传的问题。"
		out.Suggestion = "请重新上传文件，或刷新页面后重试。"
		out.Recoverable = true
	case DataEmpty:
		out.Message = "数据为空"
		out.UserMessage = fmt.Sprintf("\"%s\" 没有数据可处理。", d.SheetName)
		out.Suggestion = "请检查文件内容是否为空，或选择其他 sheet。"
	case DataParseError:
		out.Message = "数据解析失败"
		out.UserMessage = "解析数据时出错，可能是格式不兼容。"
		out.Suggestion = "请检查文件格式是否正确，或尝试先另存为标准 Excel 格式。"
		out.Recoverable = true
	case SheetNotFound:
		out.Message = "Sheet 不存在"
		out.UserMessage = fmt.Sprintf("找不到 sheet \"%s\"。", d.SheetName)
		out.Suggestion = "可用的 sheets: " + orList(d.AvailableSheets, "请检查文件名")
	case TargetNotFound:
		out.Message = "未找到目标数据"
		out.UserMessage = fmt.Sprintf("未找到 \"%s\" 相关数据。", or(d.Target, "目标"))
		out.Suggestion = fmt.Sprintf("可用数据类型: %s，请检查关键词是否正确。", orList(d.AvailableTargets, strings.Join(DefaultTargets, "、")))
		if len(d.AvailableSheets) > 0 {
			out.Suggestion += "\n可用的 sheets: " + strings.Join(d.AvailableSheets, ", ")
		}
	case AIKeyMissing:
		out.Message = "API Key 未配置"
		out.UserMessage = fmt.Sprintf("未配置 %s 的 API Key。", d.Provider)
		out.Suggestion = "请在设置面板中配置 API Key，或切换到本地模式使用。"
		out.Recoverable = true
	case AICallFailed:
		out.Message = "AI API 调用失败"
		out.UserMessage = "调用 AI 服务失败，可能是网络问题或服务不可用。"
		out.Suggestion = "请检查网络连接，稍后重试，或切换到本地模式。"
		out.Recoverable = true
	case AIRateLimit:
		out.Message = "AI 请求频率超限"
		out.UserMessage = "请求太频繁，已达到速率限制。"
		out.Suggestion = fmt.Sprintf("请等待 %s 后重试，或切换到本地模式。", or(d.RetryAfter, "几分钟"))
		out.Recoverable = true
	case AITimeout:
		out.Message = "AI 请求超时"
		out.UserMessage = "AI 服务响应超时，可能是请求太复杂。"
		out.Suggestion = "请尝试减少文件大小或分批处理，或切换到本地模式。"
		out.Recoverable = true
	case AIResponseInvalid:
		out.Message = "AI 响应格式无效"
		out.UserMessage = "AI 返回的数据格式不正确。"
		out.Suggestion = "已切换到备用方案，如果问题持续请反馈给开发者。"
		out.Recoverable = true
	case AgentIntentUnknown:
		out.Message = "无法识别用户意图"
		out.UserMessage = "无法理解您的指令，请说得更明确一些。"
		out.Suggestion = "您可以尝试：\"提取机票数据\"、\"分析数据质量\"、\"导出为 JSON\"。"
		out.Recoverable = true
	case AgentExecutionFailed:
		out.Message = "Agent 执行失败"
		out.UserMessage = "执行指令时出错。"
		out.Suggestion = or(d.Suggestion, "请检查文件是否正确上传，或尝试重新操作。")
		out.Recoverable = true
	case AgentBudgetExceeded:
		out.Message = "超出处理限制"
		out.UserMessage = fmt.Sprintf("处理超出限制：%s (%d/%d)。", d.LimitType, d.Current, d.Max)
		out.Suggestion = "请减少文件数量或分批处理，或联系管理员放宽限制。"
	case SystemUnavailable:
		out.Message = "运行环境不可用"
		out.UserMessage = "文件操作功能在当前环境不可用。"
		out.Suggestion = "请检查数据目录是否可写，或重启服务后重试。"
	case SystemTransportFailed:
		out.Message = "进程通信失败"
		out.UserMessage = "与系统通信失败，可能是后台进程异常。"
		out.Suggestion = "请重启应用，或检查是否有安全软件阻止了进程通信。"
		out.Recoverable = true
	default:
		out.Code = code
		out.Message = "未知系统错误"
		out.UserMessage = "发生未知错误，请稍后重试。"
		out.Suggestion = "如果问题持续，请截图并反馈给开发者。"
	}
	return out
}

// Error carries a Detail through ordinary error returns.
type Error struct {
	Detail
	Err error
}

func New(code Code, d Details, err error) *Error {
	return &Error{Detail: Describe(code, d), Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Code, e.Detail.Message, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Code, e.Detail.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result is what every command surface returns to the user.
type Result struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Data        any    `json:"data,omitempty"`
	ErrorCode   Code   `json:"errorCode,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`
}

func OK(message string, data any) Result {
	return Result{Success: true, Message: message, Data: data}
}

func Fail(code Code, d Details) Result {
	detail := Describe(code, d)
	return Result{
		Success:     false,
		Message:     detail.UserMessage + "\n\n💡 " + detail.Suggestion,
		ErrorCode:   code,
		Recoverable: detail.Recoverable,
	}
}

// FromError maps an arbitrary error to a failure result. Typed errors keep
// their code; otherwise the message text decides, then fallback.
func FromError(err error, fallback Code) Result {
	if err == nil {
		return Fail(fallback, Details{})
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return Result{
			Success:     false,
			Message:     appErr.UserMessage + "\n\n💡 " + appErr.Suggestion,
			ErrorCode:   appErr.Code,
			Recoverable: appErr.Recoverable,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Fail(AITimeout, Details{})
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "api key"):
		return Fail(AIKeyMissing, Details{})
	case strings.Contains(lower, "timeout") || strings.Contains(msg, "超时"):
		return Fail(AITimeout, Details{})
	case strings.Contains(lower, "rate limit") || strings.Contains(msg, "限速"):
		return Fail(AIRateLimit, Details{})
	case strings.Contains(lower, "not found") || strings.Contains(msg, "找不到"):
		return Fail(FileNotFound, Details{FileName: msg})
	}
	return Fail(fallback, Details{Original: msg})
}

func or(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func orList(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return strings.Join(values, ", ")
}
