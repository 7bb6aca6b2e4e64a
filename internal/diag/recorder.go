package diag

import "sync"

// Recorder 收集诊断与事件，供测试断言；实现 Sink 接口。
type Recorder struct {
	mu          sync.Mutex
	events      []string
	diagnostics []Diagnostic
}

// Event 记录 info 级事件。
func (r *Recorder) Event(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, text)
}

// Report 记录 warning/error 诊断。
func (r *Recorder) Report(d Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics = append(r.diagnostics, d)
}

// Events 返回已记录事件的副本。
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Diagnostics 返回已记录诊断的副本。
func (r *Recorder) Diagnostics() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Diagnostic(nil), r.diagnostics...)
}

// Reset 清空全部记录，便于复用同一个 Recorder。
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.diagnostics = nil
}
