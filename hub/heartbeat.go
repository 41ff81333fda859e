/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-28 16:22:09
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 11:48:20
 * @FilePath: \go-relay\hub\heartbeat.go
 * @Description: 心跳调度与节点统计上报
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/syncx"

	"github.com/kamalyes/go-relay/models"
)

// sendHeartbeats 向每个有连接的租户投递一次心跳
// 心跳与上游事件走同一条投递路径
func (h *Hub) sendHeartbeats() {
	counts := h.registry.CountsByTenant()
	if len(counts) == 0 {
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	uptime := int64(h.Uptime().Seconds())
	now := time.Now().UnixMilli()

	for tenant, n := range counts {
		env, err := models.NewEnvelope(models.EventKindHeartbeat, tenant, models.HeartbeatPayload{
			Connections:      n,
			TotalConnections: total,
			Uptime:           uptime,
			Timestamp:        now,
		})
		if err != nil {
			h.logger.ErrorKV("构造心跳失败", "tenant_id", tenant, "error", err)
			continue
		}
		if h.deliver(env) > 0 {
			h.metrics.HeartbeatSent()
		}
	}

	h.logger.DebugKV("心跳已发送", "tenants", len(counts), "total_connections", total)
}

// syncNodeStats 上报本节点各租户连接数
func (h *Hub) syncNodeStats() {
	if h.statsRepo == nil {
		return
	}
	counts := h.registry.CountsByTenant()
	delivered := h.delivered.Load()

	syncx.Go(h.ctx).
		WithTimeout(2 * time.Second).
		OnError(func(err error) {
			h.logger.WarnKV("上报节点统计失败", "node_id", h.nodeID, "error", err)
		}).
		ExecWithContext(func(ctx context.Context) error {
			if err := h.statsRepo.ReportTenantCounts(ctx, h.nodeID, counts); err != nil {
				return err
			}
			if delta := delivered - h.reportedDelivered.Swap(delivered); delta > 0 {
				return h.statsRepo.IncrementEventsDelivered(ctx, h.nodeID, delta)
			}
			return nil
		})
}
