/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-10-07 14:30:19
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 19:02:11
 * @FilePath: \go-relay\handler\admin.go
 * @Description: 管理接口 - 健康检查、统计、手动触发与模拟
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kamalyes/go-relay/middleware"
	"github.com/kamalyes/go-relay/models"
	"github.com/kamalyes/go-relay/protocol"
)

var errInvalidBody = errors.New("request body must be valid JSON")

// Health GET /health
func (h *Handler) Health(c *gin.Context) {
	report := h.hub.Health()
	if h.sources != nil {
		report.Sources = h.sources()
	}

	status := http.StatusOK
	if h.hub.IsShutdown() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// Stats GET /stats[?scope=cluster]
// 集群汇总失败时仍返回本节点统计
func (h *Handler) Stats(c *gin.Context) {
	cluster := c.Query("scope") == "cluster"
	report, err := h.hub.Stats(c.Request.Context(), cluster)
	if err != nil {
		h.logger.WarnKV("获取集群统计失败", "error", err)
	}
	c.JSON(http.StatusOK, report)
}

// Trigger POST /trigger/:tenantId
// 请求体（可选 JSON）作为 data 字段，经集群频道投递到所有节点
func (h *Handler) Trigger(c *gin.Context) {
	tenant, data, ok := h.parseInjection(c)
	if !ok {
		return
	}

	env, err := models.NewEnvelope(models.EventKindTrigger, tenant, models.TriggerPayload{
		Message:   "manual trigger",
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	if err := h.hub.PublishCluster(c.Request.Context(), env); err != nil {
		h.respondDispatchError(c, err)
		return
	}

	h.logger.InfoKV("手动触发事件", "tenant_id", tenant, "event_id", env.EventID)
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"tenantId": tenant,
		"eventId":  env.EventID,
		"clients":  h.hub.GetTenantClientCount(tenant),
	})
}

// Simulate POST /simulate/:tenantId[?kind=shift_updated]
// 构造上游频道 <kind>_<tenantId> 的消息，走与真实数据源相同的流水线
func (h *Handler) Simulate(c *gin.Context) {
	if h.simulator == nil {
		abortWithError(c, http.StatusNotImplemented, errors.New("simulator not configured"))
		return
	}

	kind, err := models.ParseEventKind(c.DefaultQuery("kind", string(models.EventKindShiftUpdated)))
	if err != nil || !kind.IsUpstream() {
		abortWithError(c, http.StatusBadRequest, kindError(err, kind))
		return
	}

	tenant, data, ok := h.parseInjection(c)
	if !ok {
		return
	}
	if len(data) == 0 {
		data = []byte(fmt.Sprintf(`{"simulated":true,"timestamp":%d}`, time.Now().UnixMilli()))
	}

	channel := protocol.ChannelName(kind, tenant)
	if err := h.simulator.Handle(c.Request.Context(), models.SourceKindInternal, channel, data); err != nil {
		if models.IsDecodeError(err) || models.IsResolutionError(err) {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
		h.respondDispatchError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"tenantId": tenant,
		"channel":  channel,
		"clients":  h.hub.GetTenantClientCount(tenant),
	})
}

// parseInjection 解析路径租户与可选 JSON 请求体
func (h *Handler) parseInjection(c *gin.Context) (TenantID, json.RawMessage, bool) {
	tenant, err := h.resolveTenant(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return "", nil, false
	}
	c.Set(middleware.ContextKeyTenantID, tenant.String())

	body, err := c.GetRawData()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return "", nil, false
	}
	if len(body) == 0 {
		return tenant, nil, true
	}
	if !json.Valid(body) {
		abortWithError(c, http.StatusBadRequest, errInvalidBody)
		return "", nil, false
	}
	return tenant, json.RawMessage(body), true
}

func (h *Handler) respondDispatchError(c *gin.Context, err error) {
	if models.IsErrorType(err, models.ErrTypeRelayNotRunning, models.ErrTypeDispatchQueueFull) {
		abortWithError(c, http.StatusServiceUnavailable, err)
		return
	}
	h.logger.ErrorKV("事件注入失败", "path", c.Request.URL.Path, "error", err)
	abortWithError(c, http.StatusInternalServerError, err)
}

// kindError 非上游事件类型返回未知类型错误
func kindError(err error, kind models.EventKind) error {
	if err != nil {
		return err
	}
	return models.NewUnknownEventKindError(string(kind))
}
