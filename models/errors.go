/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-21 10:30:44
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-11 09:02:51
 * @FilePath: \go-relay\models\errors.go
 * @Description: 中继错误定义 - 基于errorx.BaseError模式
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package models

import (
	"errors"

	"github.com/kamalyes/go-toolbox/pkg/errorx"
)

// ErrorType 错误类型定义，基于errorx.ErrorType
type ErrorType = errorx.ErrorType

// 中继错误码常量定义
// 使用 91xxx 区间，与其他 errorx 注册码区分
const (
	// 传输错误 (91000-91099) - 单连接范围，不影响其他连接
	ErrTypeSessionClosed  ErrorType = 91001 // 连接已关闭
	ErrTypeSendQueueFull  ErrorType = 91002 // 发送队列已满
	ErrTypeWriteFailed    ErrorType = 91003 // 写入失败
	ErrTypeStreamNotReady ErrorType = 91004 // 响应不支持流式输出

	// 解码错误 (91100-91199) - 单条消息范围，记录后丢弃
	ErrTypeDecodeFailed     ErrorType = 91101 // 消息解码失败
	ErrTypeUnknownEventKind ErrorType = 91102 // 未知事件类型
	ErrTypeEmptyPayload     ErrorType = 91103 // 空消息

	// 租户解析错误 (91200-91299) - 单条消息范围，记录后丢弃
	ErrTypeTenantUnresolvable ErrorType = 91201 // 无法确定租户
	ErrTypeInvalidTenant      ErrorType = 91202 // 租户ID无效
	ErrTypeTenantRequired     ErrorType = 91203 // 请求缺少租户参数

	// 上游错误 (91300-91399) - 由适配器重连
	ErrTypeUpstreamConnect ErrorType = 91301 // 上游连接失败
	ErrTypeUpstreamLost    ErrorType = 91302 // 上游连接中断
	ErrTypeSourceStopped   ErrorType = 91303 // 数据源已停止

	// 中继生命周期错误 (91400-91499)
	ErrTypeRelayStartupTimeout  ErrorType = 91401 // 启动超时
	ErrTypeRelayShutdownTimeout ErrorType = 91402 // 关闭超时
	ErrTypeRelayNotRunning      ErrorType = 91403 // 中继未运行
	ErrTypeDispatchQueueFull    ErrorType = 91404 // 分发队列已满

	// 客户端重连错误 (91500-91599)
	ErrTypeReconnectGaveUp ErrorType = 91501 // 超过最大重试次数
	ErrTypeStreamIdle      ErrorType = 91502 // 流空闲超时
	ErrTypeBadStatus       ErrorType = 91503 // 服务端返回非预期状态码

	// 配置与依赖错误 (91600-91699)
	ErrTypeConfigInvalid    ErrorType = 91601 // 配置无效
	ErrTypePubSubNotSet     ErrorType = 91602 // 未配置 PubSub
	ErrTypeRepositoryNotSet ErrorType = 91603 // 未配置仓库
)

// errorMessages 错误码对应的消息模板，哨兵错误在 init 之前直接读取
var errorMessages = map[ErrorType]string{
	ErrTypeSessionClosed:  "session closed",
	ErrTypeSendQueueFull:  "send queue is full",
	ErrTypeWriteFailed:    "write failed: %v",
	ErrTypeStreamNotReady: "response writer does not support streaming",

	ErrTypeDecodeFailed:     "decode failed: %v",
	ErrTypeUnknownEventKind: "unknown event kind: %s",
	ErrTypeEmptyPayload:     "empty payload",

	ErrTypeTenantUnresolvable: "tenant unresolvable for channel: %s",
	ErrTypeInvalidTenant:      "invalid tenant id: %v",
	ErrTypeTenantRequired:     "workSetId is required",

	ErrTypeUpstreamConnect: "upstream connect failed: %s: %v",
	ErrTypeUpstreamLost:    "upstream connection lost: %s",
	ErrTypeSourceStopped:   "source stopped",

	ErrTypeRelayStartupTimeout:  "relay startup timeout",
	ErrTypeRelayShutdownTimeout: "relay shutdown timeout",
	ErrTypeRelayNotRunning:      "relay is not running",
	ErrTypeDispatchQueueFull:    "dispatch queue is full",

	ErrTypeReconnectGaveUp: "reconnect gave up after %d attempts",
	ErrTypeStreamIdle:      "stream idle for %s",
	ErrTypeBadStatus:       "unexpected status code: %d",

	ErrTypeConfigInvalid:    "invalid config: %s",
	ErrTypePubSubNotSet:     "pubsub not configured",
	ErrTypeRepositoryNotSet: "repository not configured",
}

func init() {
	for errType, msg := range errorMessages {
		errorx.RegisterError(errType, msg)
	}
}

// sentinel 构造固定消息的错误，不经过 errorx 注册表
func sentinel(errType ErrorType) error {
	return errorx.NewBaseError(errorMessages[errType], errType)
}

// 预定义错误变量
var (
	ErrSessionClosed       = sentinel(ErrTypeSessionClosed)
	ErrSendQueueFull       = sentinel(ErrTypeSendQueueFull)
	ErrStreamNotReady      = sentinel(ErrTypeStreamNotReady)
	ErrEmptyPayload        = sentinel(ErrTypeEmptyPayload)
	ErrTenantRequired      = sentinel(ErrTypeTenantRequired)
	ErrSourceStopped       = sentinel(ErrTypeSourceStopped)
	ErrRelayStartupTimeout = sentinel(ErrTypeRelayStartupTimeout)
	ErrRelayShutdown       = sentinel(ErrTypeRelayShutdownTimeout)
	ErrRelayNotRunning     = sentinel(ErrTypeRelayNotRunning)
	ErrDispatchQueueFull   = sentinel(ErrTypeDispatchQueueFull)
	ErrPubSubNotSet        = sentinel(ErrTypePubSubNotSet)
	ErrRepositoryNotSet    = sentinel(ErrTypeRepositoryNotSet)
)

// NewUnknownEventKindError 未知事件类型
func NewUnknownEventKindError(kind string) error {
	return errorx.NewError(ErrTypeUnknownEventKind, kind)
}

// NewDecodeError 解码失败
func NewDecodeError(cause error) error {
	return errorx.NewError(ErrTypeDecodeFailed, cause)
}

// NewTenantUnresolvableError 无法解析租户
func NewTenantUnresolvableError(channel string) error {
	return errorx.NewError(ErrTypeTenantUnresolvable, channel)
}

// NewInvalidTenantError 租户值非法
func NewInvalidTenantError(v any) error {
	return errorx.NewError(ErrTypeInvalidTenant, v)
}

// NewWriteError 写入失败
func NewWriteError(cause error) error {
	return errorx.NewError(ErrTypeWriteFailed, cause)
}

// NewUpstreamConnectError 上游连接失败
func NewUpstreamConnectError(source SourceKind, cause error) error {
	return errorx.NewError(ErrTypeUpstreamConnect, source, cause)
}

// NewUpstreamLostError 上游连接中断
func NewUpstreamLostError(source SourceKind) error {
	return errorx.NewError(ErrTypeUpstreamLost, source)
}

// NewReconnectGaveUpError 重连放弃
func NewReconnectGaveUpError(attempts int) error {
	return errorx.NewError(ErrTypeReconnectGaveUp, attempts)
}

// NewStreamIdleError 流空闲超时
func NewStreamIdleError(idle string) error {
	return errorx.NewError(ErrTypeStreamIdle, idle)
}

// NewBadStatusError 非预期状态码
func NewBadStatusError(code int) error {
	return errorx.NewError(ErrTypeBadStatus, code)
}

// NewConfigError 配置无效
func NewConfigError(reason string) error {
	return errorx.NewError(ErrTypeConfigInvalid, reason)
}

// ============================================================================
// 错误类型判断辅助函数
// ============================================================================

// ErrorTypeOf 提取错误类型，非 errorx 错误返回 0 和 false
func ErrorTypeOf(err error) (ErrorType, bool) {
	if err == nil {
		return 0, false
	}
	var base errorx.BaseError
	if !errors.As(err, &base) || base.GetType() == 0 {
		return 0, false
	}
	return base.GetType(), true
}

// IsErrorType 判断错误是否为指定类型之一
func IsErrorType(err error, types ...ErrorType) bool {
	t, ok := ErrorTypeOf(err)
	if !ok {
		return false
	}
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}

// IsTransportError 单连接传输错误
func IsTransportError(err error) bool {
	return IsErrorType(err, ErrTypeSessionClosed, ErrTypeSendQueueFull, ErrTypeWriteFailed, ErrTypeStreamNotReady)
}

// IsDecodeError 消息解码错误
func IsDecodeError(err error) bool {
	return IsErrorType(err, ErrTypeDecodeFailed, ErrTypeUnknownEventKind, ErrTypeEmptyPayload)
}

// IsResolutionError 租户解析错误
func IsResolutionError(err error) bool {
	return IsErrorType(err, ErrTypeTenantUnresolvable, ErrTypeInvalidTenant)
}

// IsUpstreamError 上游连接错误
func IsUpstreamError(err error) bool {
	return IsErrorType(err, ErrTypeUpstreamConnect, ErrTypeUpstreamLost)
}
