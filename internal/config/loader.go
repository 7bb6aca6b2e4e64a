package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
//
// explicit 标记 path 是否由用户显式指定：显式路径缺失视为错误，
// 默认路径缺失则回退到纯默认值，保证 tsver 无配置文件也可运行。
func Load(path string, explicit bool) (*Config, error) {
	if path == "" {
		path = "tsver.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	bindEnvOverrides(v)

	if err := v.ReadInConfig(); err != nil {
		if explicit || !isMissingConfigFile(err) {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyStoreDefaults(&cfg.Store)
	applyRegistryDefaults(&cfg.Registry)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStore, err := filepath.Abs(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Store.Path = absStore

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Global.LogLevel", "info")
	v.SetDefault("Global.LogFilePath", "")
	v.SetDefault("Global.LogMaxSize", 100)
	v.SetDefault("Global.LogMaxBackups", 10)
	v.SetDefault("Global.LogCompress", true)
	v.SetDefault("Store.Path", defaultStorePath())
	v.SetDefault("Store.InstallTimeout", "300s")
	v.SetDefault("Store.LockTimeout", "30s")
	v.SetDefault("Store.LockPollInterval", "200ms")
	v.SetDefault("Store.ManifestMaxAge", "2h")
	v.SetDefault("Store.StaleTolerance", "60s")
	v.SetDefault("Store.NpmExecutable", "npm")
	v.SetDefault("Registry.URL", "https://registry.npmjs.org")
	v.SetDefault("Registry.Timeout", "30s")
	v.SetDefault("Registry.MaxRetries", 3)
	v.SetDefault("Registry.InitialBackoff", "1s")
}

// bindEnvOverrides 允许环境变量直接覆盖缓存根目录，方便 CI 与多用户环境。
func bindEnvOverrides(v *viper.Viper) {
	if storePath := os.Getenv("TSVER_STORE_PATH"); storePath != "" {
		v.Set("Store.Path", storePath)
	}
}

// defaultStorePath 把缓存根放进用户缓存目录，取不到时退回当前目录。
func defaultStorePath() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return "./tsver-store"
	}
	return filepath.Join(base, "tsver")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	if g.LogMaxSize == 0 {
		g.LogMaxSize = 100
	}
	if g.LogMaxBackups == 0 {
		g.LogMaxBackups = 10
	}
}

func applyStoreDefaults(s *StoreConfig) {
	if s.Path == "" {
		s.Path = defaultStorePath()
	}
	if s.InstallTimeout.DurationValue() == 0 {
		s.InstallTimeout = Duration(300 * time.Second)
	}
	if s.LockTimeout.DurationValue() == 0 {
		s.LockTimeout = Duration(30 * time.Second)
	}
	if s.LockPollInterval.DurationValue() == 0 {
		s.LockPollInterval = Duration(200 * time.Millisecond)
	}
	if s.ManifestMaxAge.DurationValue() == 0 {
		s.ManifestMaxAge = Duration(2 * time.Hour)
	}
	if s.StaleTolerance.DurationValue() == 0 {
		s.StaleTolerance = Duration(60 * time.Second)
	}
	if s.NpmExecutable == "" {
		s.NpmExecutable = "npm"
	}
}

func applyRegistryDefaults(r *RegistryConfig) {
	if r.URL == "" {
		r.URL = "https://registry.npmjs.org"
	}
	if r.Timeout.DurationValue() == 0 {
		r.Timeout = Duration(30 * time.Second)
	}
	if r.InitialBackoff.DurationValue() == 0 {
		r.InitialBackoff = Duration(time.Second)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

// isMissingConfigFile 识别 “配置文件不存在” 这一可容忍的读取失败。
func isMissingConfigFile(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	return errors.Is(err, fs.ErrNotExist)
}
