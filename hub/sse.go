/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-29 14:06:51
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 11:48:20
 * @FilePath: \go-relay\hub\sse.go
 * @Description: SSE 传输层
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kamalyes/go-relay/models"
	"github.com/kamalyes/go-relay/protocol"
)

// SSETransport 基于 http.ResponseWriter 的 SSE 传输
// Write 只在会话的写出循环中调用
type SSETransport struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
	withEvent    bool
	closed       atomic.Bool
}

// NewSSETransport 写出 SSE 响应头并立即刷新
func NewSSETransport(w http.ResponseWriter, writeTimeout time.Duration, withEvent bool) (*SSETransport, error) {
	if _, ok := w.(http.Flusher); !ok {
		return nil, models.ErrStreamNotReady
	}

	for k, v := range protocol.SSEHeaders {
		w.Header().Set(k, v)
	}
	w.WriteHeader(http.StatusOK)

	t := &SSETransport{
		w:            w,
		rc:           http.NewResponseController(w),
		writeTimeout: writeTimeout,
		withEvent:    withEvent,
	}
	if err := t.rc.Flush(); err != nil {
		return nil, err
	}
	return t, nil
}

// Protocol 实现 Transport
func (t *SSETransport) Protocol() models.TransportProtocol {
	return models.TransportProtocolSSE
}

// Write 实现 Transport
func (t *SSETransport) Write(env *Envelope) error {
	if t.closed.Load() {
		return models.ErrSessionClosed
	}
	frame, err := protocol.EncodeEnvelopeSSE(env, t.withEvent)
	if err != nil {
		return err
	}

	if t.writeTimeout > 0 {
		if err := t.rc.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	if _, err := t.w.Write(frame); err != nil {
		return err
	}
	return t.rc.Flush()
}

// Close 实现 Transport
// HTTP 响应由处理器返回时结束，这里只阻止后续写入
func (t *SSETransport) Close() error {
	t.closed.Store(true)
	return nil
}
