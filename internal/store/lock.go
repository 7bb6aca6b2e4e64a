package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tsver/tsver/internal/diag"
)

// lockSuffix 拼接在安装路径之后构成锁指示目录，例如 <root>/5.4.2__lock__。
// 目录通过 os.Mkdir 创建，“不存在则创建” 在文件系统层面是原子的，
// 因此同一路径的多进程竞争只会有一个赢家。
const lockSuffix = "__lock__"

func lockPathFor(installPath string) string {
	return installPath + lockSuffix
}

// lockOwner 是写入锁目录的持有者元数据，仅用于排障观察，不参与互斥判定。
type lockOwner struct {
	Token      string `json:"token"`
	PID        int    `json:"pid"`
	Hostname   string `json:"hostname"`
	AcquiredAt int64  `json:"acquiredAt"`
}

// Lock 是绑定到单个安装路径的跨进程互斥令牌。
// 实例归创建它的 worker 独占，不得共享或转移。
type Lock struct {
	indicator string

	mu       sync.Mutex
	released bool
}

// AcquireLock 原子地声明安装路径的锁。路径已被占用时立即失败，
// 竞争方应先通过 WaitUnlocked 观察锁的释放，而不是重试本函数。
func AcquireLock(installPath string) (*Lock, error) {
	indicator := lockPathFor(installPath)
	if err := os.Mkdir(indicator, 0o755); err != nil {
		return nil, fmt.Errorf("无法获取安装锁: %w", err)
	}

	writeLockOwner(indicator)
	return &Lock{indicator: indicator}, nil
}

// writeLockOwner 尽力写入持有者信息；失败不影响互斥语义。
func writeLockOwner(indicator string) {
	hostname, _ := os.Hostname()
	owner := lockOwner{
		Token:      uuid.NewString(),
		PID:        os.Getpid(),
		Hostname:   hostname,
		AcquiredAt: time.Now().UnixMilli(),
	}
	raw, err := json.Marshal(owner)
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(indicator, "owner.json"), raw, 0o644)
}

// Release 移除锁指示目录。每次获取至多调用一次生效，重复调用为空操作。
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	l.released = true
	return os.RemoveAll(l.indicator)
}

// isLockedNow 观察锁指示是否存在。
func isLockedNow(installPath string) bool {
	_, err := os.Stat(lockPathFor(installPath))
	return err == nil
}

// WaitUnlocked 以固定间隔轮询锁指示，等待竞争方释放。
// 指示消失（或本就不存在）立即返回 false；超时仍被占用返回 true 并上报
// 超时诊断；取消信号触发时同样返回 true，但不产生诊断。
func WaitUnlocked(ctx context.Context, installPath string, timeout, interval time.Duration, sink diag.Sink) bool {
	if !isLockedNow(installPath) {
		return false
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return true
		case <-deadline.C:
			sink.Report(diag.Errorf(fmt.Sprintf(
				"Timed out waiting for the lock on %s to be released.", installPath)))
			return true
		case <-ticker.C:
			if !isLockedNow(installPath) {
				return false
			}
		}
	}
}

// isLockContention 判断 AcquireLock 的失败是否源于指示目录已存在。
func isLockContention(err error) bool {
	return errors.Is(err, fs.ErrExist)
}
