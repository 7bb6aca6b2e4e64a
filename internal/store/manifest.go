package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tsver/tsver/internal/registry"
)

// manifestSchemaVersion 是快照格式版本；不匹配的旧快照会触发整库清理后重建。
const manifestSchemaVersion = "2"

// recentTagWindow 定义 “最近加入的 resolution” 判定窗口，用于新鲜度提示。
const recentTagWindow = 5

// TagEntry 记录一条 tag → 具体版本的映射。
type TagEntry struct {
	Tag     string
	Version string
}

// Resolutions 是保序的 tag 映射表。插入顺序有意义：末尾的条目视为最近加入，
// 过期提示只针对这部分 tag 发出。
type Resolutions []TagEntry

// Lookup 返回 tag 对应的版本；未命中时 ok 为 false。
func (r Resolutions) Lookup(tag string) (string, bool) {
	for _, entry := range r {
		if entry.Tag == tag {
			return entry.Version, true
		}
	}
	return "", false
}

// Set 原位更新已有 tag 的版本，新 tag 追加到末尾。
func (r *Resolutions) Set(tag, version string) {
	for i, entry := range *r {
		if entry.Tag == tag {
			(*r)[i].Version = version
			return
		}
	}
	*r = append(*r, TagEntry{Tag: tag, Version: version})
}

// IsRecent 判断 tag 是否处于最近加入的窗口内。
func (r Resolutions) IsRecent(tag string) bool {
	start := len(r) - recentTagWindow
	if start < 0 {
		start = 0
	}
	for _, entry := range r[start:] {
		if entry.Tag == tag {
			return true
		}
	}
	return false
}

// MarshalJSON 按插入顺序序列化为 JSON 对象，保证快照与内存中的顺序一致。
func (r Resolutions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Tag)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(entry.Version)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 用 token 流读取对象，保留键的出现顺序。
func (r *Resolutions) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("resolutions 必须是对象")
	}

	out := Resolutions{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("非法的 resolution 键: %v", keyTok)
		}
		var version string
		if err := dec.Decode(&version); err != nil {
			return fmt.Errorf("resolution %q 的值必须是字符串: %w", key, err)
		}
		out = append(out, TagEntry{Tag: key, Version: version})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}

// Manifest 是对可用编译器版本所知信息的权威记录。
type Manifest struct {
	SchemaVersion string           `json:"$version"`
	Resolutions   Resolutions      `json:"resolutions"`
	Versions      []string         `json:"versions"`
	LastFetched   int64            `json:"lastFetched"`
	LastUsed      map[string]int64 `json:"lastUsed,omitempty"`
}

// newManifest 基于一次注册表抓取结果构建新快照。
func newManifest(pack *registry.Packument, now time.Time) *Manifest {
	m := &Manifest{
		SchemaVersion: manifestSchemaVersion,
		Resolutions:   Resolutions{},
		Versions:      append([]string(nil), pack.Versions...),
		LastFetched:   now.UnixMilli(),
		LastUsed:      map[string]int64{},
	}
	for _, tag := range pack.DistTags {
		m.Resolutions.Set(tag.Tag, tag.Version)
	}
	return m
}

// merge 将新的抓取结果原位合并：已有 tag 原位更新，新 tag 追加，
// versions 以注册表为准整体替换，lastUsed 保留。
func (m *Manifest) merge(pack *registry.Packument, now time.Time) {
	for _, tag := range pack.DistTags {
		m.Resolutions.Set(tag.Tag, tag.Version)
	}
	if len(pack.Versions) > 0 {
		m.Versions = append([]string(nil), pack.Versions...)
	}
	m.LastFetched = now.UnixMilli()
}

// HasVersion 判断给定字符串是否是已知的具体版本。
func (m *Manifest) HasVersion(version string) bool {
	for _, v := range m.Versions {
		if v == version {
			return true
		}
	}
	return false
}

// IsOutdated 判断快照距上次抓取是否超过容忍窗口。
func (m *Manifest) IsOutdated(now time.Time, tolerance time.Duration) bool {
	age := now.UnixMilli() - m.LastFetched
	return age > tolerance.Milliseconds()
}

// MarkUsed 记录某版本最近一次成功安装/使用的时间。
func (m *Manifest) MarkUsed(version string, now time.Time) {
	if m.LastUsed == nil {
		m.LastUsed = map[string]int64{}
	}
	m.LastUsed[version] = now.UnixMilli()
}
