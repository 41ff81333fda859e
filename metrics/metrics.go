/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-25 09:33:50
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-12 15:20:19
 * @FilePath: \go-relay\metrics\metrics.go
 * @Description: Prometheus 指标收集 - 连接数、事件收发、数据源状态
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package metrics

import (
	"net/http"
	"runtime"
	"strings"

	"github.com/kamalyes/go-relay/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 丢弃原因标签
const (
	DropReasonDecode      = "decode"
	DropReasonUnresolved  = "unresolved"
	DropReasonQueueFull   = "dispatch_queue_full"
	DropReasonDuplicate   = "duplicate"
	DropReasonNoListeners = "no_listeners"
)

// Collector 中继指标集合，所有方法对 nil 接收者安全
type Collector struct {
	registry *prometheus.Registry

	connections      *prometheus.GaugeVec
	eventsReceived   *prometheus.CounterVec
	eventsDelivered  *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	sessionFailures  *prometheus.CounterVec
	heartbeatsSent   prometheus.Counter
	sourceUp         *prometheus.GaugeVec
	sourceReconnects *prometheus.CounterVec
}

// NewCollector 创建指标收集器，使用独立的 Registry 避免与全局默认注册冲突
func NewCollector(namespace string) *Collector {
	ns := strings.ReplaceAll(namespace, "-", "_")
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "connections_active",
			Help:      "Active downstream connections",
		}, []string{"protocol"}),
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_received_total",
			Help:      "Upstream notifications received",
		}, []string{"source"}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_delivered_total",
			Help:      "Envelopes handed to downstream connections",
		}, []string{"kind"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_dropped_total",
			Help:      "Notifications dropped before delivery",
		}, []string{"reason"}),
		sessionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "session_failures_total",
			Help:      "Connections removed after a failed write",
		}, []string{"reason"}),
		heartbeatsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "heartbeats_sent_total",
			Help:      "Heartbeat envelopes dispatched",
		}),
		sourceUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "source_up",
			Help:      "Whether an upstream source is connected (1) or not (0)",
		}, []string{"source"}),
		sourceReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "source_reconnects_total",
			Help:      "Upstream reconnect attempts",
		}, []string{"source"}),
	}

	reg.MustRegister(
		c.connections,
		c.eventsReceived,
		c.eventsDelivered,
		c.eventsDropped,
		c.sessionFailures,
		c.heartbeatsSent,
		c.sourceUp,
		c.sourceReconnects,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry 返回底层 Registry（测试用）
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler 返回 /metrics 处理器
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ConnectionOpened 连接建立
func (c *Collector) ConnectionOpened(protocol models.TransportProtocol) {
	if c == nil {
		return
	}
	c.connections.WithLabelValues(string(protocol)).Inc()
}

// ConnectionClosed 连接关闭
func (c *Collector) ConnectionClosed(protocol models.TransportProtocol) {
	if c == nil {
		return
	}
	c.connections.WithLabelValues(string(protocol)).Dec()
}

// EventReceived 收到上游通知
func (c *Collector) EventReceived(source models.SourceKind) {
	if c == nil {
		return
	}
	c.eventsReceived.WithLabelValues(string(source)).Inc()
}

// EventDelivered 事件投递到 n 个连接
func (c *Collector) EventDelivered(kind models.EventKind, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.eventsDelivered.WithLabelValues(string(kind)).Add(float64(n))
}

// EventDropped 事件被丢弃
func (c *Collector) EventDropped(reason string) {
	if c == nil {
		return
	}
	c.eventsDropped.WithLabelValues(reason).Inc()
}

// SessionFailed 连接写入失败被移除
func (c *Collector) SessionFailed(reason models.DisconnectReason) {
	if c == nil {
		return
	}
	c.sessionFailures.WithLabelValues(string(reason)).Inc()
}

// HeartbeatSent 心跳已发送
func (c *Collector) HeartbeatSent() {
	if c == nil {
		return
	}
	c.heartbeatsSent.Inc()
}

// SourceUp 数据源连接状态
func (c *Collector) SourceUp(source models.SourceKind, up bool) {
	if c == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	c.sourceUp.WithLabelValues(string(source)).Set(v)
}

// SourceReconnect 数据源重连
func (c *Collector) SourceReconnect(source models.SourceKind) {
	if c == nil {
		return
	}
	c.sourceReconnects.WithLabelValues(string(source)).Inc()
}

// MemorySnapshot 采集进程内存概要
func MemorySnapshot() models.MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return models.MemoryStats{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		HeapInuse:  m.HeapInuse,
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
}
