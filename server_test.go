/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-10-10 15:26:03
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-15 11:40:52
 * @FilePath: \go-relay\server_test.go
 * @Description: 中继服务组装与启停测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamalyes/go-relay/client"
	"github.com/kamalyes/go-relay/models"
	"github.com/kamalyes/go-relay/source"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	return NewDefaultConfig().
		WithListen("127.0.0.1", freePort(t)).
		WithTenants("7").
		WithTestEndpoints(true)
}

func shutdownServer(t *testing.T, s *Server) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}

// failingListener 首次连接即失败的 PostgreSQL 监听器
type failingListener struct{ closed bool }

func (f *failingListener) Listen(string) error                          { return nil }
func (f *failingListener) NotificationChannel() <-chan *pq.Notification { return nil }
func (f *failingListener) Ping() error                                  { return nil }
func (f *failingListener) Close() error {
	f.closed = true
	return nil
}

func TestNewServerRejectsInvalidConfig(t *testing.T) {
	config := NewDefaultConfig().WithListen("127.0.0.1", 0)

	_, err := NewServer(config, WithServerLogger(NewNoOpLogger()))
	require.Error(t, err)
	assert.True(t, IsErrorType(err, models.ErrTypeConfigInvalid))
}

func TestNewServerWithoutSources(t *testing.T) {
	s, err := NewServer(newTestConfig(t), WithServerLogger(NewNoOpLogger()))
	require.NoError(t, err)

	assert.Empty(t, s.Sources())
	assert.Equal(t, []string{}, s.channels())
	assert.NotNil(t, s.Handler())
	assert.Equal(t, s.config.ListenAddr(), s.Addr())
}

// TestServerRelaysBrokerMessage 上游 Redis 消息经完整链路送达 SSE 客户端
func TestServerRelaysBrokerMessage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	config := newTestConfig(t).
		WithBroker(BrokerConfig{Addr: mr.Addr()}).
		WithEventKinds(models.EventKindShiftUpdated)

	s, err := NewServer(config, WithServerLogger(NewNoOpLogger()), WithRedisClient(rdb))
	require.NoError(t, err)
	require.Len(t, s.Sources(), 1)
	assert.Equal(t, models.SourceKindBroker, s.Sources()[0].Name())
	assert.Equal(t, []string{"shift_updated_7"}, s.channels())

	require.NoError(t, s.Start(context.Background()))
	defer shutdownServer(t, s)

	base := fmt.Sprintf("http://%s", s.Addr())

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	var health models.HealthReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, health.Sources, models.SourceKindBroker)

	stream, err := (&client.SSEDialer{URL: base + "/events?workSetId=7"}).Dial(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	first, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, models.EventKindConnected, first.EventKind)

	require.NoError(t, rdb.Publish(context.Background(), "shift_updated_7", `{"id":42,"operation":"UPDATE"}`).Err())

	for {
		env, err := stream.Next()
		require.NoError(t, err)
		if env.EventKind != models.EventKindShiftUpdated {
			continue
		}
		assert.Equal(t, models.TenantID("7"), env.TenantID)
		assert.Equal(t, models.SourceKindBroker, env.Source)
		assert.Equal(t, "shift_updated_7", env.SourceChannel)
		break
	}
}

func TestServerTriggerEndpoint(t *testing.T) {
	s, err := NewServer(newTestConfig(t), WithServerLogger(NewNoOpLogger()))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer shutdownServer(t, s)

	resp, err := http.Post(fmt.Sprintf("http://%s/trigger/7", s.Addr()), "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestServerStartFailsFast 上游初始连接失败时 Start 返回错误且不监听端口
func TestServerStartFailsFast(t *testing.T) {
	listener := &failingListener{}
	factory := func(callback pq.EventCallbackType) source.Listener {
		go callback(pq.ListenerEventConnectionAttemptFailed, nil)
		return listener
	}

	config := newTestConfig(t).WithPostgresDSN("postgres://unused")
	s, err := NewServer(config, WithServerLogger(NewNoOpLogger()), WithListenerFactory(factory))
	require.NoError(t, err)

	err = s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsUpstreamError(err))
	assert.True(t, listener.closed)
	assert.True(t, s.Hub().IsShutdown())

	_, dialErr := net.DialTimeout("tcp", config.ListenAddr(), 200*time.Millisecond)
	assert.Error(t, dialErr, "启动失败时不应开始监听")
}

func TestServerStartFailsOnPortInUse(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	config := newTestConfig(t)
	config.NodePort = occupied.Addr().(*net.TCPAddr).Port

	s, err := NewServer(config, WithServerLogger(NewNoOpLogger()))
	require.NoError(t, err)
	require.Error(t, s.Start(context.Background()))
	assert.True(t, s.Hub().IsShutdown())
}

func TestServerShutdownIsIdempotent(t *testing.T) {
	s, err := NewServer(newTestConfig(t), WithServerLogger(NewNoOpLogger()))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	shutdownServer(t, s)
	shutdownServer(t, s)

	select {
	case err, ok := <-s.Done():
		assert.False(t, ok, "正常关闭时 Done 通道应直接关闭: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("Done 通道未关闭")
	}
}
