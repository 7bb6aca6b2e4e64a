package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述日志等全局运行时行为。
type GlobalConfig struct {
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
}

// StoreConfig 决定磁盘缓存根目录与安装/锁相关的时间参数。
type StoreConfig struct {
	Path             string   `mapstructure:"Path"`
	InstallTimeout   Duration `mapstructure:"InstallTimeout"`
	LockTimeout      Duration `mapstructure:"LockTimeout"`
	LockPollInterval Duration `mapstructure:"LockPollInterval"`
	ManifestMaxAge   Duration `mapstructure:"ManifestMaxAge"`
	StaleTolerance   Duration `mapstructure:"StaleTolerance"`
	NpmExecutable    string   `mapstructure:"NpmExecutable"`
}

// RegistryConfig 描述 npm registry 上游的访问方式与重试参数。
type RegistryConfig struct {
	URL            string   `mapstructure:"URL"`
	Timeout        Duration `mapstructure:"Timeout"`
	MaxRetries     int      `mapstructure:"MaxRetries"`
	InitialBackoff Duration `mapstructure:"InitialBackoff"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global   GlobalConfig   `mapstructure:"Global"`
	Store    StoreConfig    `mapstructure:"Store"`
	Registry RegistryConfig `mapstructure:"Registry"`
}
