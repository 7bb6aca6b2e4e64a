package store

import (
	"context"
	"fmt"
	"os/exec"
)

// Installer 抽象外部安装进程：在目标目录内装好指定版本的依赖树。
// 测试通过替身实现避免真实进程。
type Installer interface {
	Install(ctx context.Context, dir, version string) error
}

// NpmInstaller 通过 npm 子进程完成安装。依赖解析完全委托给 npm，
// 本包只关心进程生命周期：超时、取消与退出码。
type NpmInstaller struct {
	executable string
}

// NewNpmInstaller 构造 npm 实现；executable 为空时使用 PATH 中的 npm。
func NewNpmInstaller(executable string) *NpmInstaller {
	if executable == "" {
		executable = "npm"
	}
	return &NpmInstaller{executable: executable}
}

// Install 在 dir 内执行安装。跳过生命周期脚本、bin 链接与 lockfile 落盘，
// 标准流全部丢弃；ctx 到期或取消时子进程被终止。
func (i *NpmInstaller) Install(ctx context.Context, dir, version string) error {
	cmd := exec.CommandContext(ctx, i.executable,
		"install",
		"--ignore-scripts",
		"--no-bin-links",
		"--no-package-lock",
	)
	cmd.Dir = dir

	err := cmd.Run()
	if err == nil {
		return nil
	}

	// 超时/取消优先于退出码上报，便于上层区分静默取消与真实失败。
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return fmt.Errorf("installer exited with code %d", exitErr.ExitCode())
	}
	return fmt.Errorf("installer failed to start: %w", err)
}
