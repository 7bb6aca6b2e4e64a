package config

import (
	"errors"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动工具。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", "无法识别的日志级别")
	}
	if g.LogMaxSize <= 0 {
		return newFieldError("Global.LogMaxSize", "必须大于 0")
	}
	if g.LogMaxBackups < 0 {
		return newFieldError("Global.LogMaxBackups", "不能为负数")
	}

	s := c.Store
	if strings.TrimSpace(s.Path) == "" {
		return newFieldError("Store.Path", "不能为空")
	}
	if s.InstallTimeout.DurationValue() <= 0 {
		return newFieldError("Store.InstallTimeout", "必须大于 0")
	}
	if s.LockTimeout.DurationValue() <= 0 {
		return newFieldError("Store.LockTimeout", "必须大于 0")
	}
	if s.LockPollInterval.DurationValue() <= 0 {
		return newFieldError("Store.LockPollInterval", "必须大于 0")
	}
	if s.LockPollInterval.DurationValue() > s.LockTimeout.DurationValue() {
		return newFieldError("Store.LockPollInterval", "不能超过 LockTimeout")
	}
	if s.ManifestMaxAge.DurationValue() <= 0 {
		return newFieldError("Store.ManifestMaxAge", "必须大于 0")
	}
	if s.StaleTolerance.DurationValue() <= 0 {
		return newFieldError("Store.StaleTolerance", "必须大于 0")
	}
	if strings.TrimSpace(s.NpmExecutable) == "" {
		return newFieldError("Store.NpmExecutable", "不能为空")
	}

	r := c.Registry
	parsed, err := url.Parse(r.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return newFieldError("Registry.URL", "必须是合法的绝对 URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return newFieldError("Registry.URL", "仅支持 http/https")
	}
	if r.Timeout.DurationValue() <= 0 {
		return newFieldError("Registry.Timeout", "必须大于 0")
	}
	if r.MaxRetries < 0 {
		return newFieldError("Registry.MaxRetries", "不能为负数")
	}
	if r.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Registry.InitialBackoff", "必须大于 0")
	}

	return nil
}
