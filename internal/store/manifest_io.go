package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const manifestFileName = "store-manifest.json"

// errSchemaMismatch 表示磁盘快照来自不同的格式版本（或已损坏），
// 调用方应清理整个缓存后重新抓取。
var errSchemaMismatch = errors.New("store manifest schema mismatch")

// loadManifest 读取持久化快照。快照不存在返回 (nil, nil)；
// 无法解析或格式版本不符返回 errSchemaMismatch。
func loadManifest(storePath string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(storePath, manifestFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取 manifest 失败: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errSchemaMismatch
	}
	if m.SchemaVersion != manifestSchemaVersion {
		return nil, errSchemaMismatch
	}

	// lastUsed 建模为显式的默认空表，读入后立即补齐，后续不再做存在性判断。
	if m.LastUsed == nil {
		m.LastUsed = map[string]int64{}
	}
	return &m, nil
}

// saveManifest 以临时文件 + rename 的方式原子落盘，调用方视角下不存在半写状态。
func saveManifest(storePath string, m *Manifest) error {
	if err := os.MkdirAll(storePath, 0o755); err != nil {
		return fmt.Errorf("创建缓存根目录失败: %w", err)
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("序列化 manifest 失败: %w", err)
	}

	tempFile, err := os.CreateTemp(storePath, ".manifest-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, writeErr := tempFile.Write(raw)
	closeErr := tempFile.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tempName)
		return writeErr
	}

	if err := os.Rename(tempName, filepath.Join(storePath, manifestFileName)); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}
