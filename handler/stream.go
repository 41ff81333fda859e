/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-10-07 11:02:48
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 19:02:11
 * @FilePath: \go-relay\handler\stream.go
 * @Description: 下行流接口 - SSE 与 WebSocket
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kamalyes/go-relay/hub"
	"github.com/kamalyes/go-relay/middleware"
	"github.com/kamalyes/go-relay/models"
)

// StreamEvents GET /events?workSetId=1 | /events/:tenantId
// 请求 goroutine 即会话的写出循环，客户端断开后返回
func (h *Handler) StreamEvents(c *gin.Context) {
	tenant, ok := h.acceptTenant(c)
	if !ok {
		return
	}

	transport, err := hub.NewSSETransport(c.Writer, h.config.WriteTimeout, h.hub.SSEEventField())
	if err != nil {
		h.logger.ErrorKV("无法建立 SSE 流", "tenant_id", tenant, "error", err)
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	session := hub.NewSession(tenant, transport, h.hub.SendQueueSize()).
		WithClient(c.ClientIP(), c.Request.UserAgent()).
		WithMetadata(requestMetadata(c))
	h.hub.Serve(c.Request.Context(), session)
}

// StreamWebSocket GET /ws?workSetId=1
// 每个文本帧一个 JSON 信封，客户端只需保持连接
func (h *Handler) StreamWebSocket(c *gin.Context) {
	tenant, ok := h.acceptTenant(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时已写出错误响应
		h.logger.WarnKV("WebSocket 升级失败", "tenant_id", tenant, "client_ip", c.ClientIP(), "error", err)
		return
	}

	transport := hub.NewWebSocketTransport(conn, h.config.WriteTimeout)
	session := hub.NewSession(tenant, transport, h.hub.SendQueueSize()).
		WithClient(c.ClientIP(), c.Request.UserAgent()).
		WithMetadata(requestMetadata(c))

	go func() {
		session.Close(transport.ReadLoop())
	}()
	h.hub.Serve(c.Request.Context(), session)
}

// acceptTenant 解析租户并检查中继状态，失败时已写出响应
func (h *Handler) acceptTenant(c *gin.Context) (TenantID, bool) {
	tenant, err := h.resolveTenant(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return "", false
	}
	if h.hub.IsShutdown() {
		abortWithError(c, http.StatusServiceUnavailable, models.ErrRelayNotRunning)
		return "", false
	}
	c.Set(middleware.ContextKeyTenantID, tenant.String())
	return tenant, true
}

// requestMetadata 连接审计记录的请求元数据
func requestMetadata(c *gin.Context) map[string]any {
	md := map[string]any{}
	if requestID := c.GetString(middleware.ContextKeyRequestID); requestID != "" {
		md["request_id"] = requestID
	}
	if path := c.FullPath(); path != "" {
		md["path"] = path
	}
	for key, header := range map[string]string{
		"origin":        "Origin",
		"referer":       "Referer",
		"last_event_id": "Last-Event-ID",
	} {
		if v := c.GetHeader(header); v != "" {
			md[key] = v
		}
	}
	return md
}
