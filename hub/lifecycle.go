/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-28 17:01:45
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 11:48:20
 * @FilePath: \go-relay\hub\lifecycle.go
 * @Description: Hub 生命周期管理
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-toolbox/pkg/syncx"

	"github.com/kamalyes/go-relay/models"
)

// Run 启动Hub（阻塞直到 Shutdown）
func (h *Hub) Run() {
	h.wg.Add(1)
	defer h.wg.Done()

	cg := h.logger.NewConsoleGroup()
	cg.Group("🚀 Relay Hub 启动")
	startTimer := cg.Time("Hub 启动耗时")

	cg.Table(map[string]interface{}{
		"节点ID":     h.nodeID,
		"节点IP":     h.config.NodeIP,
		"节点端口":     h.config.NodePort,
		"发送队列大小":   h.sendQueueSize,
		"分发队列大小":   cap(h.dispatchCh),
		"心跳间隔":     h.config.HeartbeatInterval.String(),
		"统计上报":     h.statsRepo != nil,
		"集群PubSub": h.pubsub != nil,
	})

	if h.started.CompareAndSwap(false, true) {
		if h.statsRepo != nil {
			syncx.Go().
				WithTimeout(2 * time.Second).
				OnError(func(err error) {
					h.logger.ErrorKV("设置启动时间到Redis失败", "error", err)
				}).
				ExecWithContext(func(execCtx context.Context) error {
					return h.statsRepo.SetStartTime(execCtx, h.nodeID, h.startedAt.Unix())
				})
		}

		startTimer.End()
		cg.Info("✅ Hub 启动成功")
		cg.GroupEnd()

		close(h.startCh)
	}

	if h.pubsub != nil {
		if err := h.SubscribeClusterChannel(h.ctx); err != nil {
			h.logger.ErrorKV("订阅集群频道失败", "error", err)
		}
	}

	syncx.NewEventLoop(h.ctx).
		// 投递事件：串行处理，保持同一租户的事件顺序
		OnChannel(h.dispatchCh, h.handleDispatch).
		// 心跳定时器
		OnTicker(h.config.HeartbeatInterval, h.sendHeartbeats).
		// 节点统计上报（配置了统计仓库时）
		IfTicker(h.statsRepo != nil, h.statsInterval, h.syncNodeStats).
		OnPanic(func(r interface{}) {
			h.logger.ErrorKV("Hub事件循环panic", "panic", r, "node_id", h.nodeID)
		}).
		OnShutdown(func() {
			h.logger.InfoKV("Hub事件循环已停止", "node_id", h.nodeID)
		}).
		Run()
}

// WaitForStart 等待Hub启动完成
func (h *Hub) WaitForStart() {
	<-h.startCh
}

// WaitForStartWithTimeout 带超时的等待Hub启动
func (h *Hub) WaitForStartWithTimeout(timeout time.Duration) error {
	select {
	case <-h.startCh:
		return nil
	case <-time.After(timeout):
		return models.ErrRelayStartupTimeout
	}
}

// SafeShutdown 安全关闭Hub
// 先主动关闭所有连接，再停止事件循环，最后从集群统计中移除本节点
func (h *Hub) SafeShutdown() error {
	if !h.shutdown.CompareAndSwap(false, true) {
		h.logger.Debug("Hub已经关闭，跳过重复关闭操作")
		return nil
	}

	cg := h.logger.NewConsoleGroup()
	cg.Group("🛑 Relay Hub 安全关闭流程")
	shutdownTimer := cg.Time("Hub 关闭耗时")
	cg.Info("开始安全关闭 Hub [节点: %s]", h.nodeID)

	cg.Info("→ 关闭所有客户端连接...")
	sessions := h.registry.CloseAll()
	for _, s := range sessions {
		if s.Close(models.DisconnectReasonServerShutdown) {
			h.metrics.ConnectionClosed(s.Protocol())
			h.recordDisconnect(s, models.DisconnectReasonServerShutdown, nil)
		}
	}

	cg.Info("→ 取消所有上下文...")
	h.cancel()

	timeout := mathx.IfNotZero(h.config.ShutdownBaseTimeout, DefaultShutdownTimeout)
	done := make(chan struct{})
	syncx.Go().
		OnPanic(func(r any) {
			h.logger.ErrorKV("WaitGroup等待崩溃", "panic", r)
		}).
		Exec(func() {
			h.wg.Wait()
			close(done)
		})

	select {
	case <-done:
	case <-time.After(timeout):
		shutdownTimer.End()
		cg.Info("⚠️ Hub 关闭超时（超时时间: %v）", timeout)
		cg.GroupEnd()
		return models.ErrRelayShutdown
	}

	if h.statsRepo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := h.statsRepo.RemoveNode(ctx, h.nodeID); err != nil {
			h.logger.WarnKV("移除节点统计失败", "node_id", h.nodeID, "error", err)
		}
		cancel()
	}

	shutdownTimer.End()
	cg.Table(map[string]any{
		"closed_connections": len(sessions),
		"events_delivered":   h.delivered.Load(),
		"events_dropped":     h.dropped.Load(),
	})
	cg.Info("✅ Hub 安全关闭成功")
	cg.GroupEnd()
	return nil
}

// Shutdown 关闭Hub
func (h *Hub) Shutdown() {
	_ = h.SafeShutdown()
}
