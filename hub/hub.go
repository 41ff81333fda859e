/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-28 09:10:44
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 11:48:20
 * @FilePath: \go-relay\hub\hub.go
 * @Description: Hub 核心结构 - 连接注册表、分发循环、心跳调度的宿主
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kamalyes/go-cachex"
	wscconfig "github.com/kamalyes/go-config/pkg/wsc"
	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-toolbox/pkg/osx"

	"github.com/kamalyes/go-relay/metrics"
	"github.com/kamalyes/go-relay/middleware"
	"github.com/kamalyes/go-relay/models"
	"github.com/kamalyes/go-relay/repository"
)

// 类型别名
type (
	RelayLogger                = middleware.RelayLogger
	Envelope                   = models.Envelope
	TenantID                   = models.TenantID
	DisconnectReason           = models.DisconnectReason
	NodeStatsRepository        = repository.NodeStatsRepository
	ConnectionRecordRepository = repository.ConnectionRecordRepository
)

// 默认值
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultSendQueueSize     = 256
	DefaultDispatchQueueSize = 4096
	DefaultStatsSyncInterval = 15 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
)

// Hub 变更通知中继的核心
//
// 所有投递都在单个事件循环 goroutine 中串行执行，保证同一租户的事件顺序；
// 每个连接的网络写入在各自的 goroutine 中完成，互不阻塞
type Hub struct {
	nodeID    string
	config    *wscconfig.WSC
	logger    RelayLogger
	metrics   *metrics.Collector
	startedAt time.Time

	registry   *Registry
	dispatchCh chan *Envelope

	sendQueueSize  int
	withEventField bool
	statsInterval  time.Duration
	channels       func() []string

	dedup     Deduplicator
	pubsub    *cachex.PubSub
	statsRepo NodeStatsRepository
	auditRepo ConnectionRecordRepository

	delivered         atomic.Int64
	dropped           atomic.Int64
	reportedDelivered atomic.Int64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  atomic.Bool
	shutdown atomic.Bool
	startCh  chan struct{}
}

// Option Hub 可选项
type Option func(*Hub)

// WithLogger 设置日志器
func WithLogger(l RelayLogger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithDispatchQueueSize 分发队列容量，满时新事件被丢弃
func WithDispatchQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.dispatchCh = make(chan *Envelope, n)
		}
	}
}

// WithSSEEventField 是否在 SSE 帧中输出 event: 行
func WithSSEEventField(enabled bool) Option {
	return func(h *Hub) { h.withEventField = enabled }
}

// WithStatsSyncInterval 节点统计上报间隔
func WithStatsSyncInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.statsInterval = d
		}
	}
}

// WithNodeID 显式指定节点ID
func WithNodeID(id string) Option {
	return func(h *Hub) {
		if id != "" {
			h.nodeID = id
		}
	}
}

// NewHub 创建 Hub
func NewHub(config *wscconfig.WSC, opts ...Option) *Hub {
	if config == nil {
		config = wscconfig.Default()
	}
	config.HeartbeatInterval = mathx.IfNotZero(config.HeartbeatInterval, DefaultHeartbeatInterval)

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		nodeID:         generateNodeID(config),
		config:         config,
		logger:         middleware.InitLogger(config),
		startedAt:      time.Now(),
		registry:       NewRegistry(),
		dispatchCh:     make(chan *Envelope, DefaultDispatchQueueSize),
		sendQueueSize:  mathx.IF(config.MessageBufferSize > 0, config.MessageBufferSize, DefaultSendQueueSize),
		withEventField: true,
		statsInterval:  DefaultStatsSyncInterval,
		ctx:            ctx,
		cancel:         cancel,
		startCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ============================================================================
// 基础 Getter/Setter 方法
// ============================================================================

func (h *Hub) GetNodeID() string              { return h.nodeID }
func (h *Hub) GetLogger() RelayLogger         { return h.logger }
func (h *Hub) GetConfig() *wscconfig.WSC      { return h.config }
func (h *Hub) GetRegistry() *Registry         { return h.registry }
func (h *Hub) GetMetrics() *metrics.Collector { return h.metrics }
func (h *Hub) Context() context.Context       { return h.ctx }
func (h *Hub) IsStarted() bool                { return h.started.Load() }
func (h *Hub) IsShutdown() bool               { return h.shutdown.Load() }
func (h *Hub) Uptime() time.Duration          { return time.Since(h.startedAt) }
func (h *Hub) SendQueueSize() int             { return h.sendQueueSize }
func (h *Hub) SSEEventField() bool            { return h.withEventField }

// SetPubSub 设置集群 PubSub，用于跨节点转发手动触发事件
func (h *Hub) SetPubSub(pubsub *cachex.PubSub) {
	h.pubsub = pubsub
	h.logger.InfoKV("PubSub已设置", "enabled", pubsub != nil)
}

// SetStatsRepository 设置节点统计仓库
func (h *Hub) SetStatsRepository(repo NodeStatsRepository) {
	h.statsRepo = repo
}

// SetConnectionRecordRepository 设置连接审计仓库
func (h *Hub) SetConnectionRecordRepository(repo ConnectionRecordRepository) {
	h.auditRepo = repo
}

// SetDeduplicator 设置事件去重器，nil 表示不去重
func (h *Hub) SetDeduplicator(d Deduplicator) {
	h.dedup = d
}

// SetChannelProvider 设置健康检查中展示的订阅频道来源
func (h *Hub) SetChannelProvider(fn func() []string) {
	h.channels = fn
}

// generateNodeID 生成节点ID（支持K8s环境）
// 优先级: POD_NAME > HOSTNAME > NODE_ID > IP-Port
func generateNodeID(config *wscconfig.WSC) string {
	if podName := osx.Getenv("POD_NAME", ""); podName != "" {
		return podName
	}
	if hostname := osx.Getenv("HOSTNAME", ""); hostname != "" {
		return hostname
	}
	if nodeID := osx.Getenv("NODE_ID", ""); nodeID != "" {
		return nodeID
	}
	return fmt.Sprintf("%s-%d", config.NodeIP, config.NodePort)
}
