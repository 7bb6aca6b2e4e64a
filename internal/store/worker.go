package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tsver/tsver/internal/config"
	"github.com/tsver/tsver/internal/diag"
)

// descriptorFileName 是写入安装目录的包描述文件，供外部安装器消费。
const descriptorFileName = "package.json"

// installOutcome 描述一次加锁安装尝试的结局。
type installOutcome int

const (
	installDone installOutcome = iota
	installContended
	installFailed
	installCanceled
)

// Worker 保证某个具体版本在缓存根下存在可用的安装产物，
// 并在多调用方（含跨进程）竞争时保持安全。
type Worker struct {
	storePath      string
	installer      Installer
	sink           diag.Sink
	installTimeout time.Duration
	lockTimeout    time.Duration
	lockInterval   time.Duration
}

// NewWorker 构造安装 worker；时间参数全部来自配置。
func NewWorker(cfg config.StoreConfig, installer Installer, sink diag.Sink) *Worker {
	return &Worker{
		storePath:      cfg.Path,
		installer:      installer,
		sink:           sink,
		installTimeout: cfg.InstallTimeout.DurationValue(),
		lockTimeout:    cfg.LockTimeout.DurationValue(),
		lockInterval:   cfg.LockPollInterval.DurationValue(),
	}
}

// Ensure 返回指定版本可加载的入口文件路径。版本不可用（安装失败、锁超时、
// 取消）时 ok 为 false。失败不会留下就绪标记，下一次调用会从头重试。
func (w *Worker) Ensure(ctx context.Context, version string) (entry string, ok bool) {
	installPath := installPathFor(w.storePath, version)

	// 第二轮处理 “观察到未锁定后、抢锁前被他人捷足先登” 的窗口：
	// 再等一次释放并重读就绪标记。
	for attempt := 0; attempt < 2; attempt++ {
		if stillLocked := WaitUnlocked(ctx, installPath, w.lockTimeout, w.lockInterval, w.sink); stillLocked {
			return "", false
		}
		if ctx.Err() != nil {
			return "", false
		}

		if isReady(installPath) {
			return compilerEntryFor(installPath, version), true
		}

		switch w.installLocked(ctx, version, installPath) {
		case installDone:
			return compilerEntryFor(installPath, version), true
		case installContended:
			continue
		default:
			return "", false
		}
	}

	w.sink.Report(diag.Errorf(fmt.Sprintf(
		"Timed out waiting for the lock on %s to be released.", installPath)))
	return "", false
}

// installLocked 在持锁状态下完成一次安装。锁在任何退出路径上都会释放。
func (w *Worker) installLocked(ctx context.Context, version, installPath string) installOutcome {
	if err := os.MkdirAll(installPath, 0o755); err != nil {
		w.reportInstallFailure(version, err.Error())
		return installFailed
	}

	lock, err := AcquireLock(installPath)
	if err != nil {
		if isLockContention(err) {
			return installContended
		}
		w.reportInstallFailure(version, err.Error())
		return installFailed
	}
	defer lock.Release()

	// 拿到锁后必须重读就绪标记：上一个持有者可能已经完成了安装。
	if isReady(installPath) {
		return installDone
	}

	w.sink.Event(fmt.Sprintf("Installing 'typescript@%s' in %s.", version, installPath))

	if err := writeDescriptor(installPath, version); err != nil {
		w.reportInstallFailure(version, err.Error())
		return installFailed
	}

	installCtx, cancel := context.WithTimeout(ctx, w.installTimeout)
	defer cancel()

	if err := w.installer.Install(installCtx, installPath, version); err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled {
			return installCanceled
		}
		cause := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			cause = fmt.Sprintf("the installer did not finish within %s", w.installTimeout)
		}
		w.reportInstallFailure(version, cause)
		return installFailed
	}

	// 就绪标记是唯一的提交点：严格在安装器成功退出之后、释放锁之前写入。
	if err := writeReadyMarker(installPath); err != nil {
		w.reportInstallFailure(version, err.Error())
		return installFailed
	}
	return installDone
}

func (w *Worker) reportInstallFailure(version, cause string) {
	w.sink.Report(diag.Errorf(fmt.Sprintf(
		"Failed to install 'typescript@%s'.", version)).WithCause(cause))
}

// isReady 判断就绪标记是否存在。标记存在即产物完整，可直接跳过安装。
func isReady(installPath string) bool {
	_, err := os.Stat(readyMarkerFor(installPath))
	return err == nil
}

func writeReadyMarker(installPath string) error {
	return os.WriteFile(readyMarkerFor(installPath), nil, 0o644)
}

// packageDescriptor 是生成的包描述：固定名称、钉死的编译器依赖、
// private 防止误发布。
type packageDescriptor struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Private      bool              `json:"private"`
	Dependencies map[string]string `json:"dependencies"`
}

func writeDescriptor(installPath, version string) error {
	descriptor := packageDescriptor{
		Name:         "tsver-install",
		Version:      "1.0.0",
		Private:      true,
		Dependencies: map[string]string{"typescript": version},
	}
	raw, err := json.Marshal(descriptor)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(installPath, descriptorFileName), raw, 0o644)
}
