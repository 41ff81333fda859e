/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-23 15:41:08
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-12 11:06:55
 * @FilePath: \go-relay\models\stats.go
 * @Description: 健康检查与统计接口的响应结构
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package models

import "time"

// ClientInfo 单个连接的概要信息
type ClientInfo struct {
	ID          string            `json:"id"`
	TenantID    TenantID          `json:"tenantId"`
	Protocol    TransportProtocol `json:"protocol"`
	ConnectedAt time.Time         `json:"connectedAt"`
	EventsSent  int64             `json:"eventsSent"`
	LastSentAt  *time.Time        `json:"lastSentAt,omitempty"` // 尚未写出过任何帧时为空
}

// HealthReport GET /health 响应
type HealthReport struct {
	Status           string       `json:"status"`
	ConnectedClients int          `json:"connectedClients"`
	Channels         []string     `json:"channels"`
	Clients          []ClientInfo `json:"clients"`
	Sources          []SourceKind `json:"sources,omitempty"`
	Timestamp        time.Time    `json:"timestamp"`
}

// MemoryStats 进程内存概要
type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"totalAlloc"`
	Sys        uint64 `json:"sys"`
	HeapInuse  uint64 `json:"heapInuse"`
	NumGC      uint32 `json:"numGC"`
	Goroutines int    `json:"goroutines"`
}

// StatsReport GET /stats 响应
type StatsReport struct {
	NodeID             string           `json:"nodeId"`
	TotalClients       int              `json:"totalClients"`
	WorksetConnections map[TenantID]int `json:"worksetConnections"`
	Uptime             float64          `json:"uptime"`
	Memory             MemoryStats      `json:"memory"`
	Delivered          int64            `json:"delivered"`
	Dropped            int64            `json:"dropped"`
	Cluster            *ClusterStats    `json:"cluster,omitempty"`
}

// ClusterStats 集群维度的连接统计（由各节点上报至 Redis 汇总）
type ClusterStats struct {
	Nodes              []string           `json:"nodes"`
	TotalClients       int64              `json:"totalClients"`
	WorksetConnections map[TenantID]int64 `json:"worksetConnections"`
}
