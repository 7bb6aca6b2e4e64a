package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tsver/tsver/internal/config"
	"github.com/tsver/tsver/internal/diag"
	"github.com/tsver/tsver/internal/registry"
)

// Fetcher 是注册表客户端的最小契约，便于测试注入替身。
type Fetcher interface {
	Packument(ctx context.Context, pkg string) (*registry.Packument, error)
}

// ManifestStore 拥有 manifest 的完整生命周期：加载、抓取刷新与 tag 解析。
type ManifestStore struct {
	storePath string
	fetcher   Fetcher
	sink      diag.Sink
	maxAge    time.Duration
	tolerance time.Duration
	now       func() time.Time
}

// NewManifestStore 构造 manifest 管理器，默认使用 time.Now 作为时钟。
func NewManifestStore(cfg config.StoreConfig, fetcher Fetcher, sink diag.Sink) *ManifestStore {
	return &ManifestStore{
		storePath: cfg.Path,
		fetcher:   fetcher,
		sink:      sink,
		maxAge:    cfg.ManifestMaxAge.DurationValue(),
		tolerance: cfg.StaleTolerance.DurationValue(),
		now:       time.Now,
	}
}

// Open 加载持久化快照；快照缺失或超过 maxAge 则从注册表抓取并落盘。
// 旧格式快照触发 onPrune 清理整个缓存后重建。抓取失败时优先退回
// 最近一次成功的快照；完全没有快照才算打开失败。
func (s *ManifestStore) Open(ctx context.Context, onPrune func() error) (*Manifest, error) {
	manifest, err := loadManifest(s.storePath)
	if err != nil {
		if !errors.Is(err, errSchemaMismatch) {
			return nil, err
		}
		s.sink.Event("Clearing the store: the manifest snapshot is incompatible with this version.")
		if onPrune != nil {
			if pruneErr := onPrune(); pruneErr != nil {
				return nil, pruneErr
			}
		}
		manifest = nil
	}

	if manifest != nil && !manifest.IsOutdated(s.now(), s.maxAge) {
		return manifest, nil
	}

	pack, fetchErr := s.fetcher.Packument(ctx, registry.CompilerPackage)
	if fetchErr != nil {
		if ctx.Err() != nil {
			// 取消是独立的静默结局，不产生诊断。
			return nil, ctx.Err()
		}
		if manifest != nil {
			s.sink.Report(diag.Warningf(
				"Failed to update metadata of the 'typescript' package from the registry.").
				WithCause(fetchErr.Error()))
			return manifest, nil
		}
		s.sink.Report(diag.Errorf(
			"Failed to fetch metadata of the 'typescript' package from the registry.").
			WithCause(fetchErr.Error()))
		return nil, fetchErr
	}

	if manifest == nil {
		manifest = newManifest(pack, s.now())
	} else {
		manifest.merge(pack, s.now())
	}

	if err := saveManifest(s.storePath, manifest); err != nil {
		s.sink.Report(diag.Warningf("Failed to persist the store manifest.").WithCause(err.Error()))
	}
	return manifest, nil
}

// Update 重新抓取 resolutions/versions 并原位合并。失败时保持
// 最后一次已知良好状态并上报诊断；取消保持静默。
func (s *ManifestStore) Update(ctx context.Context, manifest *Manifest) bool {
	pack, err := s.fetcher.Packument(ctx, registry.CompilerPackage)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.sink.Report(diag.Warningf(
			"Failed to update metadata of the 'typescript' package from the registry.").
			WithCause(err.Error()))
		return false
	}

	manifest.merge(pack, s.now())
	if err := saveManifest(s.storePath, manifest); err != nil {
		s.sink.Report(diag.Warningf("Failed to persist the store manifest.").WithCause(err.Error()))
		return false
	}
	return true
}

// Persist 将当前 manifest 原子落盘，供安装成功后刷新 lastUsed 时复用。
func (s *ManifestStore) Persist(manifest *Manifest) error {
	return saveManifest(s.storePath, manifest)
}

// ResolveTag 将符号化 tag 解析为具体版本：
//  1. tag 本身是已知具体版本时原样返回；
//  2. 否则查 resolutions，未命中返回空串；
//  3. 快照过期且 tag 处于最近加入窗口时附带新鲜度警告，解析值照常返回。
func (s *ManifestStore) ResolveTag(manifest *Manifest, tag string) string {
	if manifest.HasVersion(tag) {
		return tag
	}

	version, ok := manifest.Resolutions.Lookup(tag)
	if !ok {
		return ""
	}

	if manifest.IsOutdated(s.now(), s.tolerance) && manifest.Resolutions.IsRecent(tag) {
		s.reportStale(tag)
	}
	return version
}

// ValidateTag 判断 tag 是否可被本 manifest 解析。未命中但与 “latest”
// 共享 major.minor 前缀且快照已过期时，发出同样的新鲜度警告作为提示
// （元数据刷新后该 tag 可能变为有效），返回值仍为 false。
func (s *ManifestStore) ValidateTag(manifest *Manifest, tag string) bool {
	if manifest.HasVersion(tag) {
		return true
	}
	if _, ok := manifest.Resolutions.Lookup(tag); ok {
		return true
	}

	if manifest.IsOutdated(s.now(), s.tolerance) {
		if latest, ok := manifest.Resolutions.Lookup("latest"); ok && sharesMinorPrefix(tag, latest) {
			s.reportStale(tag)
		}
	}
	return false
}

func (s *ManifestStore) reportStale(tag string) {
	s.sink.Report(diag.Warningf(fmt.Sprintf(
		"The resolution of the '%s' tag may be outdated.", tag)).
		WithCause(fmt.Sprintf("The store manifest was last fetched more than %s ago.", s.tolerance)))
}

// sharesMinorPrefix 比较两个点分版本串的前三个字符（major.minor）。
func sharesMinorPrefix(a, b string) bool {
	if len(a) < 3 || len(b) < 3 {
		return false
	}
	return a[:3] == b[:3]
}
