package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestServiceGuardsBeforeOpen(t *testing.T) {
	cfg := testStoreConfig(t)
	recorder := newRecorder()
	service := NewService(cfg, &fakeFetcher{pack: samplePackument()}, &fakeInstaller{}, recorder)

	if version, ok := service.ResolveTag("latest"); ok || version != "" {
		t.Fatalf("未打开时 ResolveTag 应返回中性结果")
	}
	if service.ValidateTag("latest") {
		t.Fatalf("未打开时 ValidateTag 应返回 false")
	}
	if entry, ok := service.Install(context.Background(), "latest"); ok || entry != "" {
		t.Fatalf("未打开时 Install 应返回中性结果")
	}
	if service.Update(context.Background()) {
		t.Fatalf("未打开时 Update 应返回 false")
	}

	diags := recorder.Diagnostics()
	if len(diags) != 4 {
		t.Fatalf("每个操作都应上报一条未打开诊断，得到 %d", len(diags))
	}
	for _, d := range diags {
		if !strings.Contains(d.Text[0], "not open") {
			t.Fatalf("诊断文本不符: %v", d.Text)
		}
	}
}

func TestServiceOpenIdempotent(t *testing.T) {
	cfg := testStoreConfig(t)
	fetcher := &fakeFetcher{pack: samplePackument()}
	service := NewService(cfg, fetcher, &fakeInstaller{}, newRecorder())

	if err := service.Open(context.Background()); err != nil {
		t.Fatalf("打开失败: %v", err)
	}
	if err := service.Open(context.Background()); err != nil {
		t.Fatalf("重复打开应为空操作: %v", err)
	}
	if fetcher.callCount() != 1 {
		t.Fatalf("重复打开不应再次抓取, 实际 %d", fetcher.callCount())
	}
}

func TestServiceInstallResolvesAndStampsUsage(t *testing.T) {
	cfg := testStoreConfig(t)
	installer := &fakeInstaller{}
	service := NewService(cfg, &fakeFetcher{pack: samplePackument()}, installer, newRecorder())

	if err := service.Open(context.Background()); err != nil {
		t.Fatalf("打开失败: %v", err)
	}

	before := time.Now().UnixMilli()
	entry, ok := service.Install(context.Background(), "latest")
	if !ok {
		t.Fatalf("安装应成功")
	}
	if filepath.Base(entry) != "typescript.js" {
		t.Fatalf("latest(5.4.2) 应解析到 typescript.js 入口: %s", entry)
	}
	if installer.callCount() != 1 {
		t.Fatalf("应调用一次安装器")
	}

	// 使用时间戳应随安装落盘。
	loaded, err := loadManifest(cfg.Path)
	if err != nil || loaded == nil {
		t.Fatalf("读取 manifest 失败: %v", err)
	}
	used, ok := loaded.LastUsed["5.4.2"]
	if !ok {
		t.Fatalf("lastUsed 应包含安装过的版本")
	}
	if used < before {
		t.Fatalf("使用时间戳不合理: %d < %d", used, before)
	}
}

func TestServiceInstallUnresolvableTag(t *testing.T) {
	cfg := testStoreConfig(t)
	installer := &fakeInstaller{}
	recorder := newRecorder()
	service := NewService(cfg, &fakeFetcher{pack: samplePackument()}, installer, recorder)

	if err := service.Open(context.Background()); err != nil {
		t.Fatalf("打开失败: %v", err)
	}
	recorder.Reset()

	if entry, ok := service.Install(context.Background(), "no-such-tag"); ok || entry != "" {
		t.Fatalf("无法解析的 tag 应返回中性结果")
	}
	if installer.callCount() != 0 {
		t.Fatalf("解析失败不应触发安装")
	}

	diags := recorder.Diagnostics()
	if len(diags) != 1 {
		t.Fatalf("应上报一条无法解析诊断，得到 %d", len(diags))
	}
	if !strings.Contains(diags[0].Text[0], "'no-such-tag'") {
		t.Fatalf("诊断应点名 tag: %v", diags[0].Text)
	}
}

func TestServicePrune(t *testing.T) {
	cfg := testStoreConfig(t)
	service := NewService(cfg, &fakeFetcher{pack: samplePackument()}, &fakeInstaller{}, newRecorder())

	if err := service.Open(context.Background()); err != nil {
		t.Fatalf("打开失败: %v", err)
	}
	if _, ok := service.Install(context.Background(), "latest"); !ok {
		t.Fatalf("安装失败")
	}

	if err := service.Prune(); err != nil {
		t.Fatalf("清理失败: %v", err)
	}
	if _, err := os.Stat(cfg.Path); !os.IsNotExist(err) {
		t.Fatalf("缓存根应被整体删除")
	}

	// 根不存在时静默成功。
	if err := service.Prune(); err != nil {
		t.Fatalf("根不存在时清理应成功: %v", err)
	}
}

func TestServiceOpenPrunesOnSchemaMismatch(t *testing.T) {
	cfg := testStoreConfig(t)

	// 预置旧格式快照和一个残留的安装目录。
	if err := os.MkdirAll(filepath.Join(cfg.Path, "5.0.4"), 0o755); err != nil {
		t.Fatalf("mkdir 失败: %v", err)
	}
	snapshot := `{"$version":"1","resolutions":{},"versions":[],"lastFetched":0}`
	if err := os.WriteFile(filepath.Join(cfg.Path, manifestFileName), []byte(snapshot), 0o644); err != nil {
		t.Fatalf("写旧快照失败: %v", err)
	}

	fetcher := &fakeFetcher{pack: samplePackument()}
	service := NewService(cfg, fetcher, &fakeInstaller{}, newRecorder())

	if err := service.Open(context.Background()); err != nil {
		t.Fatalf("打开失败: %v", err)
	}
	if fetcher.callCount() != 1 {
		t.Fatalf("清理后应重新抓取")
	}

	// 旧的安装目录应随整库清理消失，新 manifest 已落盘。
	if _, err := os.Stat(filepath.Join(cfg.Path, "5.0.4")); !os.IsNotExist(err) {
		t.Fatalf("残留安装目录应被清理")
	}
	loaded, err := loadManifest(cfg.Path)
	if err != nil || loaded == nil {
		t.Fatalf("新 manifest 应已落盘: %v", err)
	}
	if loaded.SchemaVersion != manifestSchemaVersion {
		t.Fatalf("新 manifest 格式版本不符")
	}
}

func TestServiceUpdate(t *testing.T) {
	cfg := testStoreConfig(t)
	fetcher := &fakeFetcher{pack: samplePackument()}
	service := NewService(cfg, fetcher, &fakeInstaller{}, newRecorder())

	if err := service.Open(context.Background()); err != nil {
		t.Fatalf("打开失败: %v", err)
	}

	pack := samplePackument()
	pack.DistTags[5].Version = "5.4.5" // latest
	pack.Versions = append(pack.Versions, "5.4.5")
	fetcher.pack = pack

	if !service.Update(context.Background()) {
		t.Fatalf("更新应成功")
	}
	if version, ok := service.ResolveTag("latest"); !ok || version != "5.4.5" {
		t.Fatalf("更新后 latest 应解析到 5.4.5, 得到 %q", version)
	}
}
