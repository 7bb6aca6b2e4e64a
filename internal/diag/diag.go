// Package diag defines the diagnostics channel shared by the store
// subsystem. Components never write to a user-facing stream themselves;
// they hand informational events and warning/error diagnostics to an
// injected Sink, so callers decide how (and whether) to surface them.
package diag

import "strings"

// Severity 标记诊断级别，info 级别走 Event 通道，不参与 Diagnostic。
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic 表示一条（可能多行的）警告或错误文本。
type Diagnostic struct {
	Text     []string
	Severity Severity
}

// Errorf 构造单行 error 级诊断。
func Errorf(text string) Diagnostic {
	return Diagnostic{Text: []string{text}, Severity: SeverityError}
}

// Warningf 构造单行 warning 级诊断。
func Warningf(text string) Diagnostic {
	return Diagnostic{Text: []string{text}, Severity: SeverityWarning}
}

// WithCause 在诊断末尾追加底层原因行，保持原有级别。
func (d Diagnostic) WithCause(cause string) Diagnostic {
	if strings.TrimSpace(cause) == "" {
		return d
	}
	out := d
	out.Text = append(append([]string(nil), d.Text...), cause)
	return out
}

// Message 将多行文本拼接为单条消息，便于日志输出。
func (d Diagnostic) Message() string {
	return strings.Join(d.Text, "\n")
}

// Sink 是组件构造时注入的诊断出口，替代任何进程级事件总线。
type Sink interface {
	// Event 上报 info 级事件（例如 “开始安装某版本”）。
	Event(text string)

	// Report 上报 warning/error 级诊断。
	Report(d Diagnostic)
}
