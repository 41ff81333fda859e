/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-29 09:18:26
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 11:48:20
 * @FilePath: \go-relay\hub\query.go
 * @Description: Hub 查询 - 健康检查与统计
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"time"

	"github.com/kamalyes/go-relay/metrics"
	"github.com/kamalyes/go-relay/models"
)

// Health 健康检查报告
func (h *Hub) Health() *models.HealthReport {
	sessions := h.registry.Snapshot()
	clients := make([]models.ClientInfo, 0, len(sessions))
	for _, s := range sessions {
		clients = append(clients, s.Info())
	}

	channels := []string{}
	if h.channels != nil {
		channels = h.channels()
	}

	status := "ok"
	if h.shutdown.Load() {
		status = "shutting_down"
	}

	return &models.HealthReport{
		Status:           status,
		ConnectedClients: len(sessions),
		Channels:         channels,
		Clients:          clients,
		Timestamp:        time.Now(),
	}
}

// Stats 统计报告，cluster 为 true 时附带集群汇总
func (h *Hub) Stats(ctx context.Context, cluster bool) (*models.StatsReport, error) {
	report := &models.StatsReport{
		NodeID:             h.nodeID,
		TotalClients:       h.registry.Total(),
		WorksetConnections: h.registry.CountsByTenant(),
		Uptime:             h.Uptime().Seconds(),
		Memory:             metrics.MemorySnapshot(),
		Delivered:          h.delivered.Load(),
		Dropped:            h.dropped.Load(),
	}

	if !cluster || h.statsRepo == nil {
		return report, nil
	}

	clusterStats, err := h.statsRepo.GetClusterStats(ctx)
	if err != nil {
		return report, err
	}
	report.Cluster = clusterStats
	return report, nil
}

// GetClientCount 当前连接数
func (h *Hub) GetClientCount() int {
	return h.registry.Total()
}

// GetTenantClientCount 租户连接数
func (h *Hub) GetTenantClientCount(tenant TenantID) int {
	return h.registry.Count(tenant)
}
