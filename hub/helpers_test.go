/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-30 10:12:40
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 11:48:20
 * @FilePath: \go-relay\hub\helpers_test.go
 * @Description: Hub 测试辅助
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	wscconfig "github.com/kamalyes/go-config/pkg/wsc"
	"github.com/stretchr/testify/require"

	"github.com/kamalyes/go-relay/middleware"
	"github.com/kamalyes/go-relay/models"
	"github.com/kamalyes/go-relay/repository"
)

var errFakeWrite = errors.New("fake write failure")

// fakeTransport 记录写出的信封
type fakeTransport struct {
	mu       sync.Mutex
	written  []*Envelope
	failing  bool
	closed   bool
	received chan *Envelope
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{received: make(chan *Envelope, 128)}
}

func (f *fakeTransport) Protocol() models.TransportProtocol {
	return models.TransportProtocolSSE
}

func (f *fakeTransport) Write(env *Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errFakeWrite
	}
	f.written = append(f.written, env)
	select {
	case f.received <- env:
	default:
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) envelopes() []*Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Envelope, len(f.written))
	copy(out, f.written)
	return out
}

// waitKind 等待指定类型的信封
func (f *fakeTransport) waitKind(t *testing.T, kind models.EventKind, timeout time.Duration) *Envelope {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case env := <-f.received:
			if env.EventKind == kind {
				return env
			}
		case <-deadline:
			t.Fatalf("等待 %s 超时", kind)
			return nil
		}
	}
}

// newTestHub 创建并启动测试 Hub
func newTestHub(t *testing.T, mod func(*wscconfig.WSC), opts ...Option) *Hub {
	t.Helper()
	config := wscconfig.Default().WithNodeInfo("127.0.0.1", 8080)
	if mod != nil {
		mod(config)
	}
	opts = append([]Option{WithLogger(middleware.NewNoOpLogger()), WithNodeID("test-node")}, opts...)
	h := NewHub(config, opts...)
	go h.Run()
	require.NoError(t, h.WaitForStartWithTimeout(2*time.Second))
	t.Cleanup(h.Shutdown)
	return h
}

// connect 创建会话并在后台运行写出循环
func connect(t *testing.T, h *Hub, tenant TenantID) (*Session, *fakeTransport, <-chan models.DisconnectReason) {
	t.Helper()
	transport := newFakeTransport()
	s := NewSession(tenant, transport, h.SendQueueSize())
	done := make(chan models.DisconnectReason, 1)
	go func() {
		done <- h.Serve(context.Background(), s)
	}()
	transport.waitKind(t, models.EventKindConnected, time.Second)
	return s, transport, done
}

func upstreamEnvelope(t *testing.T, kind models.EventKind, tenant TenantID, payload any) *Envelope {
	t.Helper()
	env, err := models.NewEnvelope(kind, tenant, payload)
	require.NoError(t, err)
	env.Source = models.SourceKindBroker
	env.SourceChannel = string(kind) + "_" + tenant.String()
	return env
}

// recordingAuditRepo 记录审计写入
type recordingAuditRepo struct {
	mu      sync.Mutex
	created []*models.ConnectionRecord
	reasons map[string]models.DisconnectReason
	sent    map[string]int64
}

func newRecordingAuditRepo() *recordingAuditRepo {
	return &recordingAuditRepo{reasons: map[string]models.DisconnectReason{}, sent: map[string]int64{}}
}

func (r *recordingAuditRepo) Create(_ context.Context, record *models.ConnectionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, record)
	return nil
}

func (r *recordingAuditRepo) MarkDisconnected(_ context.Context, connectionID string, reason models.DisconnectReason, _ string, eventsSent int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons[connectionID] = reason
	r.sent[connectionID] = eventsSent
	return nil
}

func (r *recordingAuditRepo) GetByConnectionID(context.Context, string) (*models.ConnectionRecord, error) {
	return nil, nil
}

func (r *recordingAuditRepo) List(context.Context, *repository.ConnectionQueryOptions) ([]*models.ConnectionRecord, error) {
	return nil, nil
}

func (r *recordingAuditRepo) Count(context.Context, *repository.ConnectionQueryOptions) (int64, error) {
	return 0, nil
}

func (r *recordingAuditRepo) CleanupInactiveRecords(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *recordingAuditRepo) Close() error { return nil }

func (r *recordingAuditRepo) snapshot() ([]*models.ConnectionRecord, map[string]models.DisconnectReason, map[string]int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reasons := make(map[string]models.DisconnectReason, len(r.reasons))
	for k, v := range r.reasons {
		reasons[k] = v
	}
	sent := make(map[string]int64, len(r.sent))
	for k, v := range r.sent {
		sent[k] = v
	}
	return append([]*models.ConnectionRecord(nil), r.created...), reasons, sent
}
