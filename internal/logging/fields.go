package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// StoreFields 提供版本/标签/缓存目录字段，供安装与解析流程日志复用。
func StoreFields(tag, version, storePath string) logrus.Fields {
	return logrus.Fields{
		"tag":        tag,
		"version":    version,
		"store_path": storePath,
	}
}
