/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-10-07 10:21:36
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 19:02:11
 * @FilePath: \go-relay\handler\aliases.go
 * @Description: handler 包类型别名
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package handler

import (
	"github.com/kamalyes/go-relay/hub"
	"github.com/kamalyes/go-relay/middleware"
	"github.com/kamalyes/go-relay/models"
)

// ============================================================================
// 类型别名 - Logger
// ============================================================================

// RelayLogger 日志器类型别名
type RelayLogger = middleware.RelayLogger

// ============================================================================
// 类型别名 - Models / Hub
// ============================================================================

type (
	// Envelope 事件信封
	Envelope = models.Envelope

	// TenantID 租户ID
	TenantID = models.TenantID

	// Hub 中继核心
	Hub = hub.Hub
)
