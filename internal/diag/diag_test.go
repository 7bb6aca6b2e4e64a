package diag

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestDiagnosticWithCause(t *testing.T) {
	d := Errorf("Failed to install 'typescript@5.4.2'.").WithCause("installer exited with code 1")
	if len(d.Text) != 2 {
		t.Fatalf("附加原因后应有两行文本: %v", d.Text)
	}
	if !strings.Contains(d.Message(), "\n") {
		t.Fatalf("Message 应以换行拼接多行")
	}

	// 空原因不追加。
	d = Warningf("warn").WithCause("  ")
	if len(d.Text) != 1 {
		t.Fatalf("空原因不应追加: %v", d.Text)
	}
}

func TestWithCauseDoesNotMutateOriginal(t *testing.T) {
	original := Errorf("base")
	_ = original.WithCause("cause")
	if len(original.Text) != 1 {
		t.Fatalf("WithCause 不应修改原诊断: %v", original.Text)
	}
}

func TestRecorderCollects(t *testing.T) {
	r := &Recorder{}
	r.Event("开始安装")
	r.Report(Errorf("失败"))
	r.Report(Warningf("警告"))

	if len(r.Events()) != 1 {
		t.Fatalf("事件数量不符")
	}
	if len(r.Diagnostics()) != 2 {
		t.Fatalf("诊断数量不符")
	}

	r.Reset()
	if len(r.Events()) != 0 || len(r.Diagnostics()) != 0 {
		t.Fatalf("Reset 后应为空")
	}
}

func TestLogrusSinkSeverityMapping(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	sink := NewLogrusSink(logger)
	sink.Event("install begins")
	sink.Report(Warningf("stale"))
	sink.Report(Errorf("broken"))

	out := buf.String()
	for _, want := range []string{`"level":"info"`, `"level":"warning"`, `"level":"error"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("缺少 %s 级日志: %s", want, out)
		}
	}
}

func TestLogrusSinkNilSafe(t *testing.T) {
	var sink *LogrusSink
	sink.Event("ignored")
	sink.Report(Errorf("ignored"))

	NewLogrusSink(nil).Event("ignored")
}
