/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-10-07 10:25:03
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 19:02:11
 * @FilePath: \go-relay\handler\handler.go
 * @Description: HTTP 接入层 - 路由注册与租户参数解析
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kamalyes/go-toolbox/pkg/mathx"

	"github.com/kamalyes/go-relay/hub"
	"github.com/kamalyes/go-relay/middleware"
	"github.com/kamalyes/go-relay/models"
	"github.com/kamalyes/go-relay/protocol"
)

// 查询参数中可携带租户的键，按顺序尝试
var tenantQueryKeys = []string{"workSetId", "workset_id", "tenantId"}

// ============================================================================
// 配置
// ============================================================================

// Config HTTP 接入层配置
type Config struct {
	DefaultTenant       TenantID      // 请求未携带租户时使用，为空则返回 400
	EnableTestEndpoints bool          // 是否开放 /trigger 与 /simulate
	AllowedOrigins      []string      // CORS 与 WebSocket 来源白名单
	WriteTimeout        time.Duration // 单帧写超时
	BufferSize          int           // WebSocket 读写缓冲
}

// Simulator 模拟一条上游消息，走完整的解码与租户解析流程
type Simulator interface {
	Handle(ctx context.Context, source models.SourceKind, channel string, payload []byte) error
}

// Option Handler 可选项
type Option func(*Handler)

// WithLogger 设置日志器
func WithLogger(l RelayLogger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithSimulator 设置 /simulate 使用的流水线
func WithSimulator(s Simulator) Option {
	return func(h *Handler) { h.simulator = s }
}

// WithSources 设置健康检查中展示的数据源
func WithSources(fn func() []models.SourceKind) Option {
	return func(h *Handler) { h.sources = fn }
}

// ============================================================================
// Handler
// ============================================================================

// Handler 流式推送与管理接口
type Handler struct {
	hub       *Hub
	config    Config
	logger    RelayLogger
	upgrader  *websocket.Upgrader
	simulator Simulator
	sources   func() []models.SourceKind
}

// New 创建 Handler
func New(h *Hub, config Config, opts ...Option) *Handler {
	config.WriteTimeout = mathx.IfNotZero(config.WriteTimeout, h.GetConfig().WriteTimeout)
	config.BufferSize = mathx.IfNotZero(config.BufferSize, 1024)

	handler := &Handler{
		hub:      h,
		config:   config,
		logger:   h.GetLogger(),
		upgrader: hub.ConfigureUpgrader(config.BufferSize, config.AllowedOrigins),
	}
	for _, opt := range opts {
		opt(handler)
	}
	return handler
}

// Register 注册全部路由
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/events", h.StreamEvents)
	r.GET("/events/:tenantId", h.StreamEvents)
	r.GET("/ws", h.StreamWebSocket)

	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)
	if collector := h.hub.GetMetrics(); collector != nil {
		r.GET("/metrics", gin.WrapH(collector.Handler()))
	}

	r.POST("/trigger/:tenantId", h.testOnly(h.Trigger))
	r.POST("/simulate/:tenantId", h.testOnly(h.Simulate))
}

// NewRouter 创建带完整中间件链的 gin 引擎
func NewRouter(h *Handler) *gin.Engine {
	cors := middleware.DefaultCORSConfig()
	if len(h.config.AllowedOrigins) > 0 {
		cors.AllowedOrigins = h.config.AllowedOrigins
	}

	engine := gin.New()
	engine.Use(
		middleware.Recovery(h.logger),
		middleware.RequestID(),
		middleware.SecurityHeaders(),
		middleware.CORS(cors),
		middleware.RequestLogger(h.logger),
	)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	h.Register(engine)
	return engine
}

// resolveTenant 从路径或查询参数解析租户
func (h *Handler) resolveTenant(c *gin.Context) (TenantID, error) {
	raw := c.Param("tenantId")
	for _, key := range tenantQueryKeys {
		if strings.TrimSpace(raw) != "" {
			break
		}
		raw = c.Query(key)
	}

	if strings.TrimSpace(raw) == "" {
		if !h.config.DefaultTenant.IsEmpty() {
			return h.config.DefaultTenant, nil
		}
		return "", models.ErrTenantRequired
	}
	return protocol.ParseTenantParam(raw)
}

// testOnly 未开启测试接口时返回 404
func (h *Handler) testOnly(next gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.config.EnableTestEndpoints {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		next(c)
	}
}

func abortWithError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
