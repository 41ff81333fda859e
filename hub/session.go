/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-28 10:26:31
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 11:48:20
 * @FilePath: \go-relay\hub\session.go
 * @Description: 下游连接会话 - 有界发送队列 + 传输层抽象
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kamalyes/go-relay/models"
)

// Transport 连接的传输层（SSE 或 WebSocket）
type Transport interface {
	// Protocol 协议类型
	Protocol() models.TransportProtocol
	// Write 写出一个信封，必须在写超时内返回
	Write(env *Envelope) error
	// Close 关闭底层连接
	Close() error
}

// Session 一个下游订阅连接
type Session struct {
	ID          string
	TenantID    TenantID
	ClientIP    string
	UserAgent   string
	Metadata    map[string]any // 请求元数据，写入连接审计记录
	ConnectedAt time.Time

	transport Transport
	sendCh    chan *Envelope
	done      chan struct{}
	closeOnce sync.Once
	reason    atomic.Value // DisconnectReason

	eventsSent atomic.Int64
	lastSentAt atomic.Int64
}

// NewSession 创建会话，queueSize 为发送队列容量
func NewSession(tenantID TenantID, transport Transport, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = DefaultSendQueueSize
	}
	return &Session{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		ConnectedAt: time.Now(),
		transport:   transport,
		sendCh:      make(chan *Envelope, queueSize),
		done:        make(chan struct{}),
	}
}

// WithClient 记录客户端信息
func (s *Session) WithClient(ip, userAgent string) *Session {
	s.ClientIP = ip
	s.UserAgent = userAgent
	return s
}

// WithMetadata 记录请求元数据，空值忽略
func (s *Session) WithMetadata(md map[string]any) *Session {
	if len(md) > 0 {
		s.Metadata = md
	}
	return s
}

// Protocol 传输协议
func (s *Session) Protocol() models.TransportProtocol {
	return s.transport.Protocol()
}

// Enqueue 非阻塞入队，队列满或已关闭返回错误
func (s *Session) Enqueue(env *Envelope) error {
	select {
	case <-s.done:
		return models.ErrSessionClosed
	default:
	}

	select {
	case s.sendCh <- env:
		return nil
	default:
		return models.ErrSendQueueFull
	}
}

// Close 关闭会话（幂等），首次关闭返回 true
func (s *Session) Close(reason DisconnectReason) bool {
	closed := false
	s.closeOnce.Do(func() {
		s.reason.Store(reason)
		close(s.done)
		_ = s.transport.Close()
		closed = true
	})
	return closed
}

// Done 会话关闭信号
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// IsClosed 是否已关闭
func (s *Session) IsClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Reason 关闭原因，未关闭时为空
func (s *Session) Reason() DisconnectReason {
	if v, ok := s.reason.Load().(DisconnectReason); ok {
		return v
	}
	return ""
}

// EventsSent 已写出的信封数
func (s *Session) EventsSent() int64 {
	return s.eventsSent.Load()
}

// LastSentAt 最后一次成功写出时间
func (s *Session) LastSentAt() time.Time {
	if ts := s.lastSentAt.Load(); ts > 0 {
		return time.Unix(0, ts)
	}
	return time.Time{}
}

// Info 概要信息
func (s *Session) Info() models.ClientInfo {
	info := models.ClientInfo{
		ID:          s.ID,
		TenantID:    s.TenantID,
		Protocol:    s.Protocol(),
		ConnectedAt: s.ConnectedAt,
		EventsSent:  s.EventsSent(),
	}
	if last := s.LastSentAt(); !last.IsZero() {
		info.LastSentAt = &last
	}
	return info
}

func (s *Session) markSent() {
	s.eventsSent.Add(1)
	s.lastSentAt.Store(time.Now().UnixNano())
}
