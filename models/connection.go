/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-22 09:18:40
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-10 14:27:13
 * @FilePath: \go-relay\models\connection.go
 * @Description: 推送连接审计记录模型 - 用于持久化连接历史
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package models

import (
	"time"

	"github.com/kamalyes/go-sqlbuilder"
)

// ConnectionRecord 推送连接记录模型
type ConnectionRecord struct {
	// ========== 基础标识信息 ==========
	ID           uint64 `gorm:"primaryKey;autoIncrement;comment:自增主键" json:"id"`
	ConnectionID string `gorm:"column:connection_id;size:64;uniqueIndex;not null;comment:连接ID(唯一)" json:"connection_id"`
	TenantID     string `gorm:"column:tenant_id;size:64;not null;index;comment:租户(工作集)ID" json:"tenant_id"`

	// ========== 服务器节点信息 ==========
	NodeID   string `gorm:"column:node_id;size:100;index;comment:服务器节点ID" json:"node_id"`
	NodeIP   string `gorm:"column:node_ip;size:45;comment:服务器IP" json:"node_ip"`
	NodePort int    `gorm:"column:node_port;comment:服务器端口" json:"node_port"`

	// ========== 客户端信息 ==========
	ClientIP  string `gorm:"column:client_ip;size:45;index;comment:客户端IP地址" json:"client_ip"`
	UserAgent string `gorm:"column:user_agent;size:255;comment:客户端UA" json:"user_agent,omitempty"`
	Protocol  string `gorm:"column:protocol;size:20;default:sse;comment:协议类型(sse/websocket)" json:"protocol"`

	// ========== 连接时间信息 ==========
	ConnectedAt    time.Time  `gorm:"column:connected_at;index;not null;comment:连接建立时间" json:"connected_at"`
	DisconnectedAt *time.Time `gorm:"column:disconnected_at;index;comment:断开连接时间" json:"disconnected_at,omitempty"`
	Duration       int64      `gorm:"column:duration;comment:连接持续时长(秒)" json:"duration,omitempty"`

	// ========== 断开连接信息 ==========
	DisconnectReason  string `gorm:"column:disconnect_reason;size:50;comment:断开原因" json:"disconnect_reason,omitempty"`
	DisconnectMessage string `gorm:"column:disconnect_message;type:text;comment:断开消息/错误信息" json:"disconnect_message,omitempty"`

	// ========== 推送统计 ==========
	EventsSent int64 `gorm:"column:events_sent;default:0;comment:推送事件总数" json:"events_sent"`

	// ========== 状态标识 ==========
	IsActive   bool `gorm:"column:is_active;default:true;index;comment:是否活跃连接" json:"is_active"`
	IsAbnormal bool `gorm:"column:is_abnormal;default:false;index;comment:是否异常断开" json:"is_abnormal"`

	// ========== 元数据 ==========
	Metadata sqlbuilder.MapAny `gorm:"column:metadata;type:json;comment:请求元数据JSON" json:"metadata,omitempty"`

	// ========== 系统字段 ==========
	CreatedAt time.Time `gorm:"autoCreateTime;comment:记录创建时间" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;comment:记录更新时间" json:"updated_at"`
}

// TableName 指定表名
func (ConnectionRecord) TableName() string {
	return "relay_connection_records"
}

// TableComment 表注释
func (ConnectionRecord) TableComment() string {
	return "推送连接历史记录表-记录每个下游连接的生命周期用于审计"
}
