package registry

import (
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/mod/semver"
)

// parsePackument 用 token 流解析响应体，保留 dist-tags 的文档顺序。
// encoding/json 的 map 反序列化会打乱键序，而下游把 “最近加入的 tag”
// 当作新鲜度启发，因此顺序必须保真。
func parsePackument(r io.Reader) (*Packument, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("packument 顶层必须是对象")
	}

	pack := &Packument{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("非法的对象键: %v", keyTok)
		}

		switch key {
		case "dist-tags":
			tags, err := parseDistTags(dec)
			if err != nil {
				return nil, err
			}
			pack.DistTags = tags
		case "versions":
			versions, err := parseVersionKeys(dec)
			if err != nil {
				return nil, err
			}
			pack.Versions = versions
		default:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
		}
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return pack, nil
}

func parseDistTags(dec *json.Decoder) ([]TagResolution, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("dist-tags 必须是对象")
	}

	var tags []TagResolution
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("非法的 dist-tag 键: %v", keyTok)
		}

		var version string
		if err := dec.Decode(&version); err != nil {
			return nil, fmt.Errorf("dist-tag %q 的值必须是字符串: %w", key, err)
		}
		tags = append(tags, TagResolution{Tag: key, Version: version})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return tags, nil
}

// parseVersionKeys 只收集 versions 对象的键，值整体跳过；
// 预发布版本与过旧版本不进入可安装集合。
func parseVersionKeys(dec *json.Decoder) ([]string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("versions 必须是对象")
	}

	var versions []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("非法的版本键: %v", keyTok)
		}

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}

		if includeVersion(key) {
			versions = append(versions, key)
		}
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	sortVersions(versions)
	return versions, nil
}

func includeVersion(version string) bool {
	v := "v" + version
	if !semver.IsValid(v) {
		return false
	}
	if semver.Prerelease(v) != "" {
		return false
	}
	return semver.Compare(v, minSupportedVersion) >= 0
}

// sortVersions 按语义化版本升序排序，保证 manifest 持久化结果稳定。
func sortVersions(versions []string) {
	prefixed := make([]string, len(versions))
	for i, ver := range versions {
		prefixed[i] = "v" + ver
	}
	semver.Sort(prefixed)
	for i, ver := range prefixed {
		versions[i] = ver[1:]
	}
}
