// Package registry implements the npm registry client that backs the store
// manifest. It fetches the abbreviated packument for a package and reduces
// it to the {resolutions, versions} contract the manifest consumes:
// dist-tags in document order plus the stable version list at or above the
// minimum supported compiler release.
package registry

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tsver/tsver/internal/config"
)

// CompilerPackage 是本工具关心的唯一 npm 包名。
const CompilerPackage = "typescript"

// minSupportedVersion 之下的编译器版本不再进入 manifest 的 versions 集合。
const minSupportedVersion = "v4.2.0"

// packumentAccept 请求 npm 的精简元数据格式，响应体比完整 packument 小一个量级。
const packumentAccept = "application/vnd.npm.install-v1+json"

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// TagResolution 记录一条 dist-tag 到具体版本的映射，保持文档内出现顺序。
type TagResolution struct {
	Tag     string
	Version string
}

// Packument 是注册表抓取结果的裁剪视图。
type Packument struct {
	DistTags []TagResolution
	Versions []string
}

// Client 负责与 npm registry 通信，带有限次重试与退避。
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
	backoff    time.Duration
}

// NewClient 根据配置构造共享 registry 客户端。
func NewClient(cfg config.RegistryConfig) *Client {
	timeout := 30 * time.Second
	if cfg.Timeout.DurationValue() > 0 {
		timeout = cfg.Timeout.DurationValue()
	}
	backoff := time.Second
	if cfg.InitialBackoff.DurationValue() > 0 {
		backoff = cfg.InitialBackoff.DurationValue()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: defaultTransport.Clone(),
		},
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		maxRetries: cfg.MaxRetries,
		backoff:    backoff,
	}
}

// Packument 抓取并解析指定包的精简元数据。5xx 与网络错误触发重试，
// 4xx 视为永久失败直接返回。
func (c *Client) Packument(ctx context.Context, pkg string) (*Packument, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(pkg)

	var lastErr error
	backoff := c.backoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		pack, retryable, err := c.fetchOnce(ctx, endpoint)
		if err == nil {
			return pack, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("registry 请求重试耗尽: %w", lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, endpoint string) (pack *Packument, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", packumentAccept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("registry 返回 %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("registry 返回 %d", resp.StatusCode)
	}

	pack, err = parsePackument(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("解析 packument 失败: %w", err)
	}
	return pack, false, nil
}
