package diag

import "github.com/sirupsen/logrus"

// LogrusSink 将诊断转发到结构化日志，是 CLI 进程中的默认 Sink 实现。
type LogrusSink struct {
	logger *logrus.Logger
}

// NewLogrusSink 包装共享 logger；logger 为 nil 时 Sink 退化为丢弃实现。
func NewLogrusSink(logger *logrus.Logger) *LogrusSink {
	return &LogrusSink{logger: logger}
}

// Event 以 info 级别输出事件文本。
func (s *LogrusSink) Event(text string) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.WithFields(logrus.Fields{"action": "store_event"}).Info(text)
}

// Report 按诊断级别输出 warning/error 日志。
func (s *LogrusSink) Report(d Diagnostic) {
	if s == nil || s.logger == nil {
		return
	}
	entry := s.logger.WithFields(logrus.Fields{
		"action":   "store_diagnostic",
		"severity": string(d.Severity),
	})
	if d.Severity == SeverityWarning {
		entry.Warn(d.Message())
		return
	}
	entry.Error(d.Message())
}
