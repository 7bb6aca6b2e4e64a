package store

import (
	"path/filepath"

	"golang.org/x/mod/semver"
)

// entryPointBoundary 之前的编译器版本没有合并后的 typescript.js API 入口，
// 需要退回加载 tsserverlibrary.js。
const entryPointBoundary = "v5.3.0"

const readyMarkerName = "__ready__"

// installPathFor 返回某个具体版本在缓存根下的安装目录。
func installPathFor(storePath, version string) string {
	return filepath.Join(storePath, version)
}

func readyMarkerFor(installPath string) string {
	return filepath.Join(installPath, readyMarkerName)
}

// compilerEntryFor 按版本边界选择可加载的编译器入口文件。
func compilerEntryFor(installPath, version string) string {
	entryFile := "typescript.js"
	if semver.Compare("v"+version, entryPointBoundary) < 0 {
		entryFile = "tsserverlibrary.js"
	}
	return filepath.Join(installPath, "node_modules", "typescript", "lib", entryFile)
}
