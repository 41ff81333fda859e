/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-27 09:55:02
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-13 10:31:48
 * @FilePath: \go-relay\middleware\http.go
 * @Description: HTTP 中间件 - CORS、安全响应头、请求日志、panic 恢复
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package middleware

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 上下文键
const (
	ContextKeyTenantID  = "tenant_id"
	ContextKeyRequestID = "request_id"
	HeaderRequestID     = "X-Request-ID"
)

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源，包含 "*" 时放行所有来源
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
}

// DefaultCORSConfig 默认跨域配置
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "Cache-Control", "Last-Event-ID", HeaderRequestID},
		ExposedHeaders: []string{"Content-Length", HeaderRequestID},
	}
}

// allows 判断来源是否允许，返回应写回的 Allow-Origin 值
func (c CORSConfig) allows(origin string) (string, bool) {
	if slices.Contains(c.AllowedOrigins, "*") {
		return "*", true
	}
	if origin == "" {
		return "", false
	}
	if slices.Contains(c.AllowedOrigins, origin) {
		return origin, true
	}
	return "", false
}

// CORS 跨域中间件，OPTIONS 预检直接返回 200 空响应
func CORS(cfg CORSConfig) gin.HandlerFunc {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	exposed := strings.Join(cfg.ExposedHeaders, ", ")

	return func(c *gin.Context) {
		if allowOrigin, ok := cfg.allows(c.GetHeader("Origin")); ok {
			c.Header("Access-Control-Allow-Origin", allowOrigin)
			if allowOrigin != "*" {
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", headers)
			c.Header("Access-Control-Expose-Headers", exposed)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// SecurityHeaders 安全响应头
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// RequestID 为每个请求分配 ID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

// RequestLogger 请求日志，长连接在断开时才记录一次
func RequestLogger(log RelayLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		kv := []any{
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(ContextKeyRequestID),
		}
		if tenant := c.GetString(ContextKeyTenantID); tenant != "" {
			kv = append(kv, "tenant_id", tenant)
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.ErrorKV("HTTP 请求", kv...)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.WarnKV("HTTP 请求", kv...)
		default:
			log.DebugKV("HTTP 请求", kv...)
		}
	}
}

// Recovery 捕获处理器 panic，返回 500
func Recovery(log RelayLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.ErrorKV("请求处理 panic",
					"panic", r,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"client_ip", c.ClientIP(),
				)
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}
