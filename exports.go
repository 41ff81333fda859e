/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-10-10 11:02:47
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-15 11:16:09
 * @FilePath: \go-relay\exports.go
 * @Description: 子包的常用类型和函数导出
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package relay

import (
	"github.com/kamalyes/go-relay/client"
	"github.com/kamalyes/go-relay/hub"
	"github.com/kamalyes/go-relay/middleware"
	"github.com/kamalyes/go-relay/models"
	"github.com/kamalyes/go-relay/protocol"
)

// ============================================================================
// 类型导出
// ============================================================================

type (
	RelayLogger = middleware.RelayLogger

	Hub          = hub.Hub
	HubOption    = hub.Option
	Session      = hub.Session
	Transport    = hub.Transport
	Deduplicator = hub.Deduplicator

	Envelope         = models.Envelope
	TenantID         = models.TenantID
	EventKind        = models.EventKind
	Operation        = models.Operation
	SourceKind       = models.SourceKind
	HealthReport     = models.HealthReport
	StatsReport      = models.StatsReport
	ConnectionRecord = models.ConnectionRecord

	ReconnectConfig  = client.Config
	ReconnectClient  = client.Controller
	DelayPolicy      = client.DelayPolicy
	LinearDelay      = client.LinearDelay
	ExponentialDelay = client.ExponentialDelay
	SSEDialer        = client.SSEDialer
	WebSocketDialer  = client.WebSocketDialer
)

// ============================================================================
// 函数导出
// ============================================================================

var (
	NewHub             = hub.NewHub
	NewEnvelope        = models.NewEnvelope
	NewReconnectClient = client.NewController
	ParseTenantParam   = protocol.ParseTenantParam
	ChannelName        = protocol.ChannelName
	NewDefaultLogger   = middleware.NewDefaultRelayLogger
	NewNoOpLogger      = middleware.NewNoOpLogger
	IsTransportError   = models.IsTransportError
	IsUpstreamError    = models.IsUpstreamError
	IsErrorType        = models.IsErrorType
)
