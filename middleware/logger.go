/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-22 08:40:17
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-08 19:11:26
 * @FilePath: \go-relay\middleware\logger.go
 * @Description: go-relay 日志接口，直接复用 go-logger
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package middleware

import (
	"time"

	wscconfig "github.com/kamalyes/go-config/pkg/wsc"
	"github.com/kamalyes/go-logger"
)

// RelayLogger 直接使用 go-logger.ILogger
type RelayLogger = logger.ILogger

// NewDefaultRelayLogger 创建默认配置的日志器
func NewDefaultRelayLogger() RelayLogger {
	return logger.NewLogger().
		WithLevel(logger.INFO).
		WithPrefix("[RELAY] ").
		WithShowCaller(false).
		WithColorful(true).
		WithTimeFormat(time.RFC3339Nano)
}

// NewDebugRelayLogger 调试级别日志器
func NewDebugRelayLogger() RelayLogger {
	return logger.NewLogger().
		WithLevel(logger.DEBUG).
		WithPrefix("[RELAY] ").
		WithShowCaller(true).
		WithColorful(true).
		WithTimeFormat(time.RFC3339Nano)
}

// NewNoOpLogger 创建空日志实例
func NewNoOpLogger() RelayLogger {
	return logger.NewEmptyLogger()
}

// InitLogger 根据配置初始化日志器，未开启日志配置时使用默认日志器
func InitLogger(config *wscconfig.WSC) RelayLogger {
	if config == nil || config.Logging == nil || !config.Logging.Enabled {
		return NewDefaultRelayLogger()
	}
	return config.Logging.ToLoggerInstance()
}
