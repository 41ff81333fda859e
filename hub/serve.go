/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-28 13:40:12
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 11:48:20
 * @FilePath: \go-relay\hub\serve.go
 * @Description: 会话注册、写出循环与注销
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"time"

	"github.com/kamalyes/go-sqlbuilder"
	"github.com/kamalyes/go-toolbox/pkg/syncx"

	"github.com/kamalyes/go-relay/models"
)

// Register 注册会话
// connected 信封在加入注册表之前入队，保证它是客户端收到的第一帧
func (h *Hub) Register(s *Session) error {
	if h.shutdown.Load() {
		return models.ErrRelayNotRunning
	}

	connected, err := models.NewEnvelope(models.EventKindConnected, s.TenantID, models.ConnectedPayload{
		ConnectionID: s.ID,
		TenantID:     s.TenantID,
		Timestamp:    time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	if err := s.Enqueue(connected); err != nil {
		return err
	}

	// 与 SafeShutdown 的 CloseAll 竞争时由注册表锁裁决
	if !h.registry.Register(s) {
		return models.ErrRelayNotRunning
	}
	h.metrics.ConnectionOpened(s.Protocol())

	h.logger.InfoKV("客户端已连接",
		"connection_id", s.ID,
		"tenant_id", s.TenantID,
		"protocol", s.Protocol(),
		"client_ip", s.ClientIP,
		"tenant_connections", h.registry.Count(s.TenantID),
		"total_connections", h.registry.Total(),
	)

	h.recordConnect(s)
	return nil
}

// Serve 注册会话并在当前 goroutine 中持续写出，直到连接结束
// 返回值为断开原因；结束前会话已从注册表移除
func (h *Hub) Serve(ctx context.Context, s *Session) models.DisconnectReason {
	if err := h.Register(s); err != nil {
		h.logger.WarnKV("会话注册失败", "connection_id", s.ID, "tenant_id", s.TenantID, "error", err)
		s.Close(models.DisconnectReasonServerShutdown)
		return models.DisconnectReasonServerShutdown
	}

	reason, cause := h.pump(ctx, s)
	h.Unregister(s, reason, cause)
	return s.Reason()
}

// pump 写出循环
func (h *Hub) pump(ctx context.Context, s *Session) (models.DisconnectReason, error) {
	for {
		select {
		case <-ctx.Done():
			return models.DisconnectReasonContextDone, ctx.Err()
		case <-s.done:
			return s.Reason(), nil
		case env := <-s.sendCh:
			if err := s.transport.Write(env); err != nil {
				return models.DisconnectReasonWriteError, models.NewWriteError(err)
			}
			s.markSent()
		}
	}
}

// Unregister 注销会话（幂等）
// 注册表移除、关闭传输、记录审计都只会发生一次
func (h *Hub) Unregister(s *Session, reason models.DisconnectReason, cause error) {
	removed := h.registry.Unregister(s.ID)
	closed := s.Close(reason)
	if !removed && !closed {
		return
	}
	// 先关闭者的原因为准
	reason = s.Reason()

	if removed {
		h.metrics.ConnectionClosed(s.Protocol())
	}
	if reason.IsAbnormal() {
		h.metrics.SessionFailed(reason)
	}

	kv := []any{
		"connection_id", s.ID,
		"tenant_id", s.TenantID,
		"reason", reason,
		"events_sent", s.EventsSent(),
		"duration", time.Since(s.ConnectedAt).String(),
		"total_connections", h.registry.Total(),
	}
	if cause != nil {
		kv = append(kv, "error", cause)
	}
	if reason.IsAbnormal() {
		h.logger.WarnKV("客户端异常断开", kv...)
	} else {
		h.logger.InfoKV("客户端已断开", kv...)
	}

	h.recordDisconnect(s, reason, cause)
}

// recordConnect 异步写入连接审计记录
func (h *Hub) recordConnect(s *Session) {
	if h.auditRepo == nil {
		return
	}
	record := &models.ConnectionRecord{
		ConnectionID: s.ID,
		TenantID:     s.TenantID.String(),
		NodeID:       h.nodeID,
		NodeIP:       h.config.NodeIP,
		NodePort:     h.config.NodePort,
		ClientIP:     s.ClientIP,
		UserAgent:    s.UserAgent,
		Protocol:     string(s.Protocol()),
		ConnectedAt:  s.ConnectedAt,
		IsActive:     true,
		Metadata:     sqlbuilder.MapAny(s.Metadata),
	}
	syncx.Go().
		WithTimeout(3 * time.Second).
		OnError(func(err error) {
			h.logger.WarnKV("写入连接记录失败", "connection_id", s.ID, "error", err)
		}).
		ExecWithContext(func(ctx context.Context) error {
			return h.auditRepo.Create(ctx, record)
		})
}

// recordDisconnect 异步更新断开信息
func (h *Hub) recordDisconnect(s *Session, reason models.DisconnectReason, cause error) {
	if h.auditRepo == nil {
		return
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	eventsSent := s.EventsSent()
	syncx.Go().
		WithTimeout(3 * time.Second).
		OnError(func(err error) {
			h.logger.WarnKV("更新断开记录失败", "connection_id", s.ID, "error", err)
		}).
		ExecWithContext(func(ctx context.Context) error {
			return h.auditRepo.MarkDisconnected(ctx, s.ID, reason, message, eventsSent)
		})
}
