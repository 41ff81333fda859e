/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-28 15:05:37
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 11:48:20
 * @FilePath: \go-relay\hub\dispatch.go
 * @Description: 按租户扇出投递
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

// Dispatch 提交一个已解析租户的信封
// 非阻塞，分发队列满时丢弃并返回 ErrDispatchQueueFull
func (h *Hub) Dispatch(env *Envelope) error {
	if env == nil {
		return models.ErrEmptyPayload
	}
	if env.TenantID.IsEmpty() {
		return models.ErrTenantRequired
	}
	if h.shutdown.Load() {
		return models.ErrRelayNotRunning
	}

	select {
	case h.dispatchCh <- env:
		return nil
	default:
		h.drop(metrics.DropReasonQueueFull)
		h.logger.WarnKV("分发队列已满，丢弃事件",
			"event_kind", env.EventKind,
			"tenant_id", env.TenantID,
			"channel", env.Channel(),
			"queue_size", cap(h.dispatchCh),
		)
		return models.ErrDispatchQueueFull
	}
}

// handleDispatch 事件循环中处理一个信封
func (h *Hub) handleDispatch(env *Envelope) {
	if h.dedup != nil && !env.EventKind.IsSynthetic() && env.EventID != "" {
		ctx, cancel := context.WithTimeout(h.ctx, time.Second)
		seen := h.dedup.Seen(ctx, env.EventID)
		cancel()
		if seen {
			h.drop(metrics.DropReasonDuplicate)
			h.logger.DebugKV("重复事件已忽略", "event_id", env.EventID, "tenant_id", env.TenantID)
			return
		}
	}
	h.deliver(env)
}

// deliver 将信封放入租户所有会话的发送队列，返回成功入队数
// 入队失败的会话在本轮遍历结束后统一注销，不影响其余会话
func (h *Hub) deliver(env *Envelope) int {
	var (
		delivered int
		failed    []*Session
	)

	h.registry.ForEach(env.TenantID, func(s *Session) {
		if err := s.Enqueue(env); err != nil {
			failed = append(failed, s)
			return
		}
		delivered++
	})

	for _, s := range failed {
		reason := models.DisconnectReasonQueueFull
		if s.IsClosed() {
			reason = s.Reason()
		}
		h.Unregister(s, reason, models.ErrSendQueueFull)
	}

	if delivered == 0 && len(failed) == 0 {
		if !env.EventKind.IsSynthetic() {
			h.drop(metrics.DropReasonNoListeners)
		}
		h.logger.DebugKV("租户无在线连接", "tenant_id", env.TenantID, "event_kind", env.EventKind)
		return 0
	}

	h.delivered.Add(int64(delivered))
	h.metrics.EventDelivered(env.EventKind, delivered)

	if !env.EventKind.IsSynthetic() {
		h.logger.DebugKV("事件已投递",
			"event_kind", env.EventKind,
			"tenant_id", env.TenantID,
			"channel", env.Channel(),
			"delivered", delivered,
			"failed", len(failed),
		)
	}
	return delivered
}

func (h *Hub) drop(reason string) {
	h.dropped.Add(1)
	h.metrics.EventDropped(reason)
}

// DeliveredCount 累计入队投递数
func (h *Hub) DeliveredCount() int64 { return h.delivered.Load() }

// DroppedCount 累计丢弃数
func (h *Hub) DroppedCount() int64 { return h.dropped.Load() }

// RecordDrop 供上游流水线记录解码/解析失败
func (h *Hub) RecordDrop(reason string) { h.drop(reason) }
