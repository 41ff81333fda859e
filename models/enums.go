/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-21 10:12:36
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-09 17:40:02
 * @FilePath: \go-relay\models\enums.go
 * @Description: 变更通知中继的枚举定义
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package models

import (
	"strings"
)

// EventKind 事件类型（封闭集合）
type EventKind string

const (
	// 上游事件类型
	EventKindShiftCreated    EventKind = "shift_created"    // 排班创建
	EventKindShiftUpdated    EventKind = "shift_updated"    // 排班更新
	EventKindShiftDeleted    EventKind = "shift_deleted"    // 排班删除
	EventKindEmployeeUpdated EventKind = "employee_updated" // 员工变更
	EventKindWorksetUpdated  EventKind = "workset_updated"  // 工作集变更
	EventKindSummaryUpdated  EventKind = "summary_updated"  // 汇总变更

	// 中继自身合成的事件类型
	EventKindHeartbeat EventKind = "heartbeat" // 心跳
	EventKindConnected EventKind = "connected" // 连接建立
	EventKindTrigger   EventKind = "trigger"   // 手动触发（测试）
)

// UpstreamEventKinds 默认订阅的上游事件类型
var UpstreamEventKinds = []EventKind{
	EventKindShiftCreated,
	EventKindShiftUpdated,
	EventKindShiftDeleted,
	EventKindEmployeeUpdated,
	EventKindWorksetUpdated,
	EventKindSummaryUpdated,
}

// String 实现Stringer接口
func (k EventKind) String() string {
	return string(k)
}

// IsValid 检查事件类型是否在封闭集合内
func (k EventKind) IsValid() bool {
	return EventKindValidator.IsValid(k)
}

// IsUpstream 是否为上游数据库变更事件
func (k EventKind) IsUpstream() bool {
	switch k {
	case EventKindShiftCreated, EventKindShiftUpdated, EventKindShiftDeleted,
		EventKindEmployeeUpdated, EventKindWorksetUpdated, EventKindSummaryUpdated:
		return true
	default:
		return false
	}
}

// IsSynthetic 是否为中继合成事件
func (k EventKind) IsSynthetic() bool {
	switch k {
	case EventKindHeartbeat, EventKindConnected, EventKindTrigger:
		return true
	default:
		return false
	}
}

// DefaultOperation 根据事件类型后缀推断默认操作
func (k EventKind) DefaultOperation() Operation {
	s := string(k)
	switch {
	case strings.HasSuffix(s, "_created"):
		return OperationInsert
	case strings.HasSuffix(s, "_updated"):
		return OperationUpdate
	case strings.HasSuffix(s, "_deleted"):
		return OperationDelete
	default:
		return OperationNone
	}
}

// ParseEventKind 解析事件类型，未知类型返回错误
func ParseEventKind(s string) (EventKind, error) {
	kind := EventKind(strings.ToLower(strings.TrimSpace(s)))
	if !kind.IsValid() {
		return "", NewUnknownEventKindError(s)
	}
	return kind, nil
}

// Operation 行级变更操作
type Operation string

const (
	OperationInsert Operation = "INSERT"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
	OperationNone   Operation = "NONE"
)

// String 实现Stringer接口
func (o Operation) String() string {
	return string(o)
}

// ParseOperation 解析上游操作字段，无法识别时返回 OperationNone 和 false
func ParseOperation(s string) (Operation, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "insert", "created", "create":
		return OperationInsert, true
	case "update", "updated", "modify":
		return OperationUpdate, true
	case "delete", "deleted", "remove":
		return OperationDelete, true
	default:
		return OperationNone, false
	}
}

// SourceKind 事件来源
type SourceKind string

const (
	SourceKindBroker   SourceKind = "broker"   // 消息代理（Redis）
	SourceKindDatabase SourceKind = "database" // 数据库 LISTEN/NOTIFY（PostgreSQL）
	SourceKindInternal SourceKind = "internal" // 中继内部（心跳、触发）
	SourceKindCluster  SourceKind = "cluster"  // 其他节点转发
)

// String 实现Stringer接口
func (s SourceKind) String() string {
	return string(s)
}

// TransportProtocol 下游推送协议
type TransportProtocol string

const (
	TransportProtocolSSE       TransportProtocol = "sse"
	TransportProtocolWebSocket TransportProtocol = "websocket"
)

// DisconnectReason 断开连接原因
type DisconnectReason string

const (
	DisconnectReasonWriteError     DisconnectReason = "write_error"     // 写入错误
	DisconnectReasonQueueFull      DisconnectReason = "queue_full"      // 发送队列已满
	DisconnectReasonContextDone    DisconnectReason = "context_done"    // 客户端断开（请求上下文结束）
	DisconnectReasonClientRequest  DisconnectReason = "client_request"  // 客户端主动断开
	DisconnectReasonServerShutdown DisconnectReason = "server_shutdown" // 服务器关闭
	DisconnectReasonUnknown        DisconnectReason = "unknown"         // 未知原因
)

// String 实现Stringer接口
func (r DisconnectReason) String() string {
	return string(r)
}

// IsValid 检查断开原因是否有效
func (r DisconnectReason) IsValid() bool {
	return DisconnectReasonValidator.IsValid(r)
}

// IsAbnormal 是否异常断开
func (r DisconnectReason) IsAbnormal() bool {
	return r != DisconnectReasonClientRequest &&
		r != DisconnectReasonContextDone &&
		r != DisconnectReasonServerShutdown
}

// ConnectionState 客户端重连控制器状态
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "DISCONNECTED" // 未连接
	ConnectionStateConnecting   ConnectionState = "CONNECTING"   // 连接中
	ConnectionStateConnected    ConnectionState = "CONNECTED"    // 已连接
	ConnectionStateError        ConnectionState = "ERROR"        // 连接错误
	ConnectionStateBackoff      ConnectionState = "BACKOFF"      // 退避等待
	ConnectionStateGaveUp       ConnectionState = "GAVE_UP"      // 放弃重连（终态）
)

// String 实现Stringer接口
func (s ConnectionState) String() string {
	return string(s)
}

// IsValid 检查状态是否有效
func (s ConnectionState) IsValid() bool {
	return ConnectionStateValidator.IsValid(s)
}
