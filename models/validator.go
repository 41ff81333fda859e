/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-21 10:12:36
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-09-21 10:12:36
 * @FilePath: \go-relay\models\validator.go
 * @Description: 枚举验证器集中管理
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package models

import (
	"github.com/kamalyes/go-toolbox/pkg/types"
)

// 全局枚举验证器实例
var (
	// EventKindValidator 事件类型验证器
	EventKindValidator = types.NewEnumValidator(
		EventKindShiftCreated,
		EventKindShiftUpdated,
		EventKindShiftDeleted,
		EventKindEmployeeUpdated,
		EventKindWorksetUpdated,
		EventKindSummaryUpdated,
		EventKindHeartbeat,
		EventKindConnected,
		EventKindTrigger,
	)

	// DisconnectReasonValidator 断开原因验证器
	DisconnectReasonValidator = types.NewEnumValidator(
		DisconnectReasonWriteError,
		DisconnectReasonQueueFull,
		DisconnectReasonContextDone,
		DisconnectReasonClientRequest,
		DisconnectReasonServerShutdown,
		DisconnectReasonUnknown,
	)

	// ConnectionStateValidator 连接状态验证器
	ConnectionStateValidator = types.NewEnumValidator(
		ConnectionStateDisconnected,
		ConnectionStateConnecting,
		ConnectionStateConnected,
		ConnectionStateError,
		ConnectionStateBackoff,
		ConnectionStateGaveUp,
	)
)
