// Package timeout defines centralized timeout constants for call-turn operations.
// Package timeout 定义通话轮次操作的集中式超时常量。
package timeout

import "time"

// Call-turn timeout constants. Profile values override the defaults at startup.
// 通话轮次超时常量，启动时可被 Profile 覆盖。
const (
	// ChatTimeout bounds one chat-completion round, retries included.
	// ChatTimeout 是单轮对话补全（含重试）的超时时间。
	ChatTimeout = 8 * time.Second

	// SpeechTimeout bounds one text-to-speech synthesis.
	// SpeechTimeout 是单次语音合成的超时时间。
	SpeechTimeout = 5 * time.Second

	// ToolExecutionTimeout is the timeout for individual tool execution.
	// ToolExecutionTimeout 是单个工具执行的超时时间。
	ToolExecutionTimeout = 10 * time.Second

	// MaxResumptionRounds caps the model rounds after a tool round.
	// MaxResumptionRounds 是工具执行后继续调用模型的最大轮数。
	MaxResumptionRounds = 1

	// SessionIdleTTL is how long an untouched session survives the sweep.
	// SessionIdleTTL 是会话空闲多久后被清理。
	SessionIdleTTL = 30 * time.Minute

	// SessionSweepInterval is the period of the idle session sweep.
	// SessionSweepInterval 是空闲会话清理的执行间隔。
	SessionSweepInterval = time.Minute

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	// MaxTruncateLength 是日志中字符串截断的最大长度。
	MaxTruncateLength = 200
)

// Truncate shortens s to MaxTruncateLength runes for logging.
func Truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxTruncateLength {
		return s
	}
	return string(r[:MaxTruncateLength]) + "..."
}
