package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tsver/tsver/internal/config"
	"github.com/tsver/tsver/internal/diag"
	"github.com/tsver/tsver/internal/registry"
)

func newRecorder() *diag.Recorder {
	return &diag.Recorder{}
}

// testStoreConfig 返回指向临时目录、时间参数收紧后的存储配置。
func testStoreConfig(t *testing.T) config.StoreConfig {
	t.Helper()
	return config.StoreConfig{
		Path:             t.TempDir(),
		InstallTimeout:   config.Duration(2 * time.Second),
		LockTimeout:      config.Duration(500 * time.Millisecond),
		LockPollInterval: config.Duration(10 * time.Millisecond),
		ManifestMaxAge:   config.Duration(2 * time.Hour),
		StaleTolerance:   config.Duration(60 * time.Second),
		NpmExecutable:    "npm",
	}
}

// samplePackument 构造带有多于窗口数量 dist-tag 的抓取结果，
// 末尾五个 tag 处于 “最近加入” 窗口。
func samplePackument() *registry.Packument {
	return &registry.Packument{
		DistTags: []registry.TagResolution{
			{Tag: "typescript2", Version: "2.9.2"},
			{Tag: "typescript3", Version: "3.9.10"},
			{Tag: "beta", Version: "5.5.0-beta"},
			{Tag: "rc", Version: "5.4.1"},
			{Tag: "next", Version: "5.5.0-dev.20240301"},
			{Tag: "latest", Version: "5.4.2"},
			{Tag: "insiders", Version: "5.4.2"},
		},
		Versions: []string{"5.2.0", "5.3.1", "5.4.2"},
	}
}

// fakeFetcher 以固定结果或固定错误充当注册表客户端。
type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	pack  *registry.Packument
	err   error
}

func (f *fakeFetcher) Packument(ctx context.Context, pkg string) (*registry.Packument, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.pack, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeInstaller 统计调用次数，可注入失败、延迟或自定义行为。
type fakeInstaller struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
}

func (f *fakeInstaller) Install(ctx context.Context, dir, version string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.err
}

func (f *fakeInstaller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// openedManifestStore 构造固定时钟的 ManifestStore 及其已打开的 manifest。
func openedManifestStore(t *testing.T, cfg config.StoreConfig, now time.Time) (*ManifestStore, *Manifest) {
	t.Helper()

	fetcher := &fakeFetcher{pack: samplePackument()}
	recorder := newRecorder()
	ms := NewManifestStore(cfg, fetcher, recorder)
	ms.now = func() time.Time { return now }

	manifest, err := ms.Open(context.Background(), nil)
	if err != nil {
		t.Fatalf("打开 manifest 失败: %v", err)
	}
	return ms, manifest
}
