package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tsver/tsver/internal/config"
	"github.com/tsver/tsver/internal/diag"
)

// Service 是面向客户端的门面：组合 manifest 管理器与安装 worker，
// 并在每次成功安装后回写版本的使用时间戳。
type Service struct {
	storePath string
	manifests *ManifestStore
	worker    *Worker
	sink      diag.Sink

	manifest *Manifest
	opened   bool
}

// NewService 组装存储子系统。fetcher 与 installer 均为外部协作者，
// 测试可整体替换。
func NewService(cfg config.StoreConfig, fetcher Fetcher, installer Installer, sink diag.Sink) *Service {
	return &Service{
		storePath: cfg.Path,
		manifests: NewManifestStore(cfg, fetcher, sink),
		worker:    NewWorker(cfg, installer, sink),
		sink:      sink,
	}
}

// Open 加载或抓取 manifest，可重复调用，重复调用为空操作。
func (s *Service) Open(ctx context.Context) error {
	if s.opened {
		return nil
	}

	manifest, err := s.manifests.Open(ctx, s.Prune)
	if err != nil {
		return err
	}
	s.manifest = manifest
	s.opened = true
	return nil
}

// ensureOpen 校验门面是否已成功打开；未打开则上报诊断并让调用方返回中性结果。
func (s *Service) ensureOpen(op string) bool {
	if s.opened {
		return true
	}
	s.sink.Report(diag.Errorf(fmt.Sprintf(
		"Cannot %s: the store manifest is not open.", op)))
	return false
}

// ResolveTag 将 tag 解析为具体版本；无法解析时上报诊断并返回空结果。
func (s *Service) ResolveTag(tag string) (string, bool) {
	if !s.ensureOpen("resolve a tag") {
		return "", false
	}

	version := s.manifests.ResolveTag(s.manifest, tag)
	if version == "" {
		s.sink.Report(diag.Errorf(fmt.Sprintf(
			"Cannot resolve the '%s' tag to a version of the 'typescript' package.", tag)))
		return "", false
	}
	return version, true
}

// ValidateTag 判断 tag 在当前 manifest 下是否可解析。
func (s *Service) ValidateTag(tag string) bool {
	if !s.ensureOpen("validate a tag") {
		return false
	}
	return s.manifests.ValidateTag(s.manifest, tag)
}

// Install 解析 tag 并确保对应版本已安装；成功后记录版本的使用时间并落盘。
func (s *Service) Install(ctx context.Context, tag string) (string, bool) {
	if !s.ensureOpen("install") {
		return "", false
	}

	version, ok := s.ResolveTag(tag)
	if !ok {
		return "", false
	}

	entry, ok := s.worker.Ensure(ctx, version)
	if !ok {
		return "", false
	}

	s.manifest.MarkUsed(version, time.Now())
	if err := s.manifests.Persist(s.manifest); err != nil {
		s.sink.Report(diag.Warningf("Failed to persist the store manifest.").WithCause(err.Error()))
	}
	return entry, true
}

// Update 从注册表刷新 manifest；失败已在内部上报，返回值仅指示成败。
func (s *Service) Update(ctx context.Context) bool {
	if !s.ensureOpen("update the manifest") {
		return false
	}
	return s.manifests.Update(ctx, s.manifest)
}

// Prune 递归删除整个缓存根；根不存在视为成功。
func (s *Service) Prune() error {
	return os.RemoveAll(s.storePath)
}
