/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-21 11:05:19
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-09 17:40:02
 * @FilePath: \go-relay\models\envelope.go
 * @Description: 事件信封 - 上游变更通知的统一表示
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package models

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// TenantID 租户（工作集）ID
// 上游可能给出整数或字符串，统一规范为十进制字符串
type TenantID string

// String 实现Stringer接口
func (t TenantID) String() string {
	return string(t)
}

// IsEmpty 是否为空
func (t TenantID) IsEmpty() bool {
	return t == ""
}

// TenantIDFromInt 由整数构造租户ID
func TenantIDFromInt(v int64) TenantID {
	return TenantID(strconv.FormatInt(v, 10))
}

// Envelope 事件信封，路由到租户后原样推送给客户端
type Envelope struct {
	EventID       string          `json:"eventId,omitempty"`       // 上游事件ID（去重用，可选）
	EventKind     EventKind       `json:"eventKind"`               // 事件类型
	TenantID      TenantID        `json:"tenantId"`                // 目标租户
	Operation     Operation       `json:"operation,omitempty"`     // 行级操作
	Payload       json.RawMessage `json:"payload"`                 // 原始数据（不透明转发）
	SourceChannel string          `json:"sourceChannel,omitempty"` // 来源频道
	Source        SourceKind      `json:"source,omitempty"`        // 来源类型
	ReceivedAt    time.Time       `json:"receivedAt"`              // 中继接收时间
}

// NewEnvelope 创建中继合成的事件信封
func NewEnvelope(kind EventKind, tenantID TenantID, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		EventID:    uuid.NewString(),
		EventKind:  kind,
		TenantID:   tenantID,
		Operation:  kind.DefaultOperation(),
		Payload:    data,
		Source:     SourceKindInternal,
		ReceivedAt: time.Now(),
	}, nil
}

// Channel 推送时使用的频道名
// 上游事件沿用来源频道，合成事件使用事件类型
func (e *Envelope) Channel() string {
	if e.SourceChannel != "" {
		return e.SourceChannel
	}
	return string(e.EventKind)
}

// Marshal 序列化为 JSON
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// HeartbeatPayload 心跳事件数据
type HeartbeatPayload struct {
	Connections      int   `json:"connections"`      // 当前租户连接数
	TotalConnections int   `json:"totalConnections"` // 本节点总连接数
	Uptime           int64 `json:"uptime"`           // 运行时长(秒)
	Timestamp        int64 `json:"timestamp"`        // 毫秒时间戳
}

// ConnectedPayload 连接建立事件数据
type ConnectedPayload struct {
	ConnectionID string   `json:"connectionId"`
	TenantID     TenantID `json:"tenantId"`
	Timestamp    int64    `json:"timestamp"`
}

// TriggerPayload 手动触发事件数据
type TriggerPayload struct {
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}
