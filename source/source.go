/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-10-02 09:14:36
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 15:20:11
 * @FilePath: \go-relay\source\source.go
 * @Description: 上游数据源抽象与处理流水线（解码 -> 租户解析 -> 分发）
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package source

import (
	"context"
	"sort"
	"time"

	"github.com/kamalyes/go-relay/metrics"
	"github.com/kamalyes/go-relay/middleware"
	"github.com/kamalyes/go-relay/models"
	"github.com/kamalyes/go-relay/protocol"
)

// Source 上游数据源适配器
type Source interface {
	// Name 数据源类型
	Name() models.SourceKind
	// Start 建立订阅，初始订阅失败时返回错误
	Start(ctx context.Context) error
	// Stop 停止订阅并释放连接
	Stop() error
	// Channels 已订阅的频道或模式
	Channels() []string
}

// Dispatcher 流水线的下游
type Dispatcher interface {
	Dispatch(env *models.Envelope) error
	RecordDrop(reason string)
}

// Pipeline 所有数据源共用的处理流水线
type Pipeline struct {
	dispatcher Dispatcher
	logger     middleware.RelayLogger
	metrics    *metrics.Collector
}

// NewPipeline 创建流水线
func NewPipeline(dispatcher Dispatcher, log middleware.RelayLogger, m *metrics.Collector) *Pipeline {
	if log == nil {
		log = middleware.NewNoOpLogger()
	}
	return &Pipeline{dispatcher: dispatcher, logger: log, metrics: m}
}

// Handle 处理一条原始上游消息
// 解码或租户解析失败时记录并返回错误，不会 panic
func (p *Pipeline) Handle(ctx context.Context, source models.SourceKind, channel string, payload []byte) error {
	p.metrics.EventReceived(source)

	env, err := protocol.DecodeEnvelope(payload, channel, source)
	if err != nil {
		p.dispatcher.RecordDrop(metrics.DropReasonDecode)
		p.logger.WarnKV("上游消息解码失败",
			"source", source,
			"channel", channel,
			"payload_size", len(payload),
			"error", err,
		)
		return err
	}

	tenant, err := protocol.ResolveTenant(payload, channel)
	if err != nil {
		p.dispatcher.RecordDrop(metrics.DropReasonUnresolved)
		p.logger.WarnKV("上游消息无法解析租户",
			"source", source,
			"channel", channel,
			"event_kind", env.EventKind,
			"error", err,
		)
		return err
	}

	env.TenantID = tenant
	if env.ReceivedAt.IsZero() {
		env.ReceivedAt = time.Now()
	}

	if err := p.dispatcher.Dispatch(env); err != nil {
		return err
	}

	p.logger.DebugKV("上游事件已提交",
		"source", source,
		"channel", channel,
		"event_kind", env.EventKind,
		"tenant_id", tenant,
	)
	return nil
}

// BuildChannels 事件类型 × 租户 生成订阅频道，结果有序
func BuildChannels(kinds []models.EventKind, tenants []models.TenantID) []string {
	channels := make([]string, 0, len(kinds)*len(tenants))
	for _, kind := range kinds {
		for _, tenant := range tenants {
			channels = append(channels, protocol.ChannelName(kind, tenant))
		}
	}
	sort.Strings(channels)
	return channels
}

// BuildPatterns 每种事件类型一个通配模式 <kind>_*
func BuildPatterns(kinds []models.EventKind) []string {
	patterns := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		patterns = append(patterns, string(kind)+"_*")
	}
	sort.Strings(patterns)
	return patterns
}
