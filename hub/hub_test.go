/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-30 11:25:17
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 11:48:20
 * @FilePath: \go-relay\hub\hub_test.go
 * @Description: Hub 投递、心跳、关闭测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kamalyes/go-cachex"
	wscconfig "github.com/kamalyes/go-config/pkg/wsc"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamalyes/go-relay/metrics"
	"github.com/kamalyes/go-relay/middleware"
	"github.com/kamalyes/go-relay/models"
	"github.com/kamalyes/go-relay/repository"
)

// TestConnectedIsFirstFrame 首帧为 connected 且携带连接ID与租户
func TestConnectedIsFirstFrame(t *testing.T) {
	h := newTestHub(t, nil)
	s, transport, _ := connect(t, h, "1")

	frames := transport.envelopes()
	require.NotEmpty(t, frames)
	assert.Equal(t, models.EventKindConnected, frames[0].EventKind)

	var payload models.ConnectedPayload
	require.NoError(t, json.Unmarshal(frames[0].Payload, &payload))
	assert.Equal(t, s.ID, payload.ConnectionID)
	assert.Equal(t, TenantID("1"), payload.TenantID)
}

// TestTenantIsolation 租户 1 的事件不会送达租户 2
func TestTenantIsolation(t *testing.T) {
	h := newTestHub(t, nil)
	_, t1, _ := connect(t, h, "1")
	_, t2, _ := connect(t, h, "2")

	require.NoError(t, h.Dispatch(upstreamEnvelope(t, models.EventKindShiftCreated, "1", map[string]int{"id": 1})))

	env := t1.waitKind(t, models.EventKindShiftCreated, time.Second)
	assert.Equal(t, TenantID("1"), env.TenantID)

	time.Sleep(50 * time.Millisecond)
	for _, e := range t2.envelopes() {
		assert.NotEqual(t, models.EventKindShiftCreated, e.EventKind, "租户2不应收到租户1的事件")
	}
}

// TestWriteFailureIsolation 一个连接写失败不影响同租户其他连接
func TestWriteFailureIsolation(t *testing.T) {
	h := newTestHub(t, nil)
	s1, t1, _ := connect(t, h, "1")
	s2, t2, done2 := connect(t, h, "1")
	s3, t3, _ := connect(t, h, "1")

	t2.setFailing(true)
	require.NoError(t, h.Dispatch(upstreamEnvelope(t, models.EventKindShiftUpdated, "1", map[string]int{"id": 9})))

	t1.waitKind(t, models.EventKindShiftUpdated, time.Second)
	t3.waitKind(t, models.EventKindShiftUpdated, time.Second)

	select {
	case reason := <-done2:
		assert.Equal(t, models.DisconnectReasonWriteError, reason)
	case <-time.After(time.Second):
		t.Fatal("写失败的连接应结束")
	}

	_, ok := h.GetRegistry().Get(s2.ID)
	assert.False(t, ok, "写失败的连接应被移出注册表")
	_, ok = h.GetRegistry().Get(s1.ID)
	assert.True(t, ok)
	_, ok = h.GetRegistry().Get(s3.ID)
	assert.True(t, ok)
}

// TestSlowSessionIsDropped 发送队列满的连接被注销，其余连接正常
func TestSlowSessionIsDropped(t *testing.T) {
	h := newTestHub(t, nil)
	_, fast, _ := connect(t, h, "1")

	// 不运行写出循环的会话，队列很快被填满
	slow := NewSession("1", newFakeTransport(), 1)
	require.NoError(t, h.Register(slow))

	require.NoError(t, h.Dispatch(upstreamEnvelope(t, models.EventKindSummaryUpdated, "1", map[string]int{"n": 1})))
	fast.waitKind(t, models.EventKindSummaryUpdated, time.Second)

	assert.Eventually(t, func() bool {
		_, ok := h.GetRegistry().Get(slow.ID)
		return !ok
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, models.DisconnectReasonQueueFull, slow.Reason())
}

// TestHeartbeatCadence 心跳间隔 100ms，两倍间隔内至少收到一次
func TestHeartbeatCadence(t *testing.T) {
	h := newTestHub(t, func(c *wscconfig.WSC) {
		c.WithHeartbeatInterval(100 * time.Millisecond)
	})
	_, transport, _ := connect(t, h, "3")

	env := transport.waitKind(t, models.EventKindHeartbeat, 200*time.Millisecond)
	assert.Equal(t, TenantID("3"), env.TenantID)

	var payload models.HeartbeatPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, 1, payload.Connections)
	assert.GreaterOrEqual(t, payload.Uptime, int64(0))
}

// TestDispatchValidation 缺少租户的信封被拒绝
func TestDispatchValidation(t *testing.T) {
	h := newTestHub(t, nil)

	assert.ErrorIs(t, h.Dispatch(nil), models.ErrEmptyPayload)
	env := upstreamEnvelope(t, models.EventKindShiftDeleted, "1", nil)
	env.TenantID = ""
	assert.ErrorIs(t, h.Dispatch(env), models.ErrTenantRequired)
}

// TestDispatchQueueFull 分发队列满时丢弃
func TestDispatchQueueFull(t *testing.T) {
	config := wscconfig.Default()
	h := NewHub(config, WithDispatchQueueSize(1), WithLogger(middleware.NewNoOpLogger()))
	defer h.Shutdown()

	// 事件循环未启动，队列不会被消费
	require.NoError(t, h.Dispatch(upstreamEnvelope(t, models.EventKindShiftCreated, "1", nil)))
	assert.ErrorIs(t, h.Dispatch(upstreamEnvelope(t, models.EventKindShiftCreated, "1", nil)), models.ErrDispatchQueueFull)
	assert.Equal(t, int64(1), h.DroppedCount())
}

// TestShutdownClosesSessions 关闭时主动断开所有连接
func TestShutdownClosesSessions(t *testing.T) {
	config := wscconfig.Default()
	h := NewHub(config, WithLogger(middleware.NewNoOpLogger()))
	go h.Run()
	h.WaitForStart()

	s1, t1, done1 := connect(t, h, "1")
	_, t2, done2 := connect(t, h, "2")

	require.NoError(t, h.SafeShutdown())

	for _, done := range []<-chan models.DisconnectReason{done1, done2} {
		select {
		case reason := <-done:
			assert.Equal(t, models.DisconnectReasonServerShutdown, reason)
		case <-time.After(time.Second):
			t.Fatal("连接应在关闭时结束")
		}
	}
	assert.True(t, t1.isClosed())
	assert.True(t, t2.isClosed())
	assert.Equal(t, 0, h.GetClientCount())
	assert.True(t, s1.IsClosed())

	assert.NoError(t, h.SafeShutdown(), "重复关闭应无副作用")
	assert.ErrorIs(t, h.Register(NewSession("1", newFakeTransport(), 1)), models.ErrRelayNotRunning)
}

// TestServeAfterRegistrySweep 关闭标记尚未可见但注册表已清空时，新会话立即结束而不是挂起
func TestServeAfterRegistrySweep(t *testing.T) {
	h := NewHub(wscconfig.Default(), WithLogger(middleware.NewNoOpLogger()))
	go h.Run()
	h.WaitForStart()
	defer h.Shutdown()

	// 模拟 SafeShutdown 已完成清扫、处理器还未观察到 shutdown 标记的时刻
	h.registry.CloseAll()

	transport := newFakeTransport()
	s := NewSession("1", transport, 4)
	done := make(chan models.DisconnectReason, 1)
	go func() { done <- h.Serve(context.Background(), s) }()

	select {
	case reason := <-done:
		assert.Equal(t, models.DisconnectReasonServerShutdown, reason)
	case <-time.After(time.Second):
		t.Fatal("清扫之后注册的会话不应挂起")
	}
	assert.True(t, s.IsClosed())
	assert.Equal(t, 0, h.GetClientCount())
}

// TestConnectionAudit 连接记录携带请求元数据，断开时写入原因与推送数
func TestConnectionAudit(t *testing.T) {
	h := newTestHub(t, nil)
	repo := newRecordingAuditRepo()
	h.SetConnectionRecordRepository(repo)

	transport := newFakeTransport()
	s := NewSession("4", transport, h.SendQueueSize()).
		WithClient("10.0.0.8", "relay-test").
		WithMetadata(map[string]any{"origin": "https://app.example"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan models.DisconnectReason, 1)
	go func() { done <- h.Serve(ctx, s) }()
	transport.waitKind(t, models.EventKindConnected, time.Second)

	require.NoError(t, h.Dispatch(upstreamEnvelope(t, models.EventKindShiftCreated, "4", nil)))
	transport.waitKind(t, models.EventKindShiftCreated, time.Second)

	cancel()
	assert.Equal(t, models.DisconnectReasonContextDone, <-done)

	assert.Eventually(t, func() bool {
		created, reasons, _ := repo.snapshot()
		return len(created) == 1 && reasons[s.ID] != ""
	}, 2*time.Second, 10*time.Millisecond)

	created, reasons, sent := repo.snapshot()
	record := created[0]
	assert.Equal(t, s.ID, record.ConnectionID)
	assert.Equal(t, "4", record.TenantID)
	assert.Equal(t, "10.0.0.8", record.ClientIP)
	assert.Equal(t, "relay-test", record.UserAgent)
	assert.Equal(t, "https://app.example", record.Metadata.GetString("origin"))
	assert.Equal(t, models.DisconnectReasonContextDone, reasons[s.ID])
	assert.GreaterOrEqual(t, sent[s.ID], int64(2), "connected 与 shift_created 均已写出")
}

// TestClientDisconnect 请求上下文结束时注销
func TestClientDisconnect(t *testing.T) {
	h := newTestHub(t, nil)
	transport := newFakeTransport()
	s := NewSession("5", transport, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan models.DisconnectReason, 1)
	go func() { done <- h.Serve(ctx, s) }()
	transport.waitKind(t, models.EventKindConnected, time.Second)

	cancel()
	select {
	case reason := <-done:
		assert.Equal(t, models.DisconnectReasonContextDone, reason)
	case <-time.After(time.Second):
		t.Fatal("取消上下文后连接应结束")
	}
	assert.Equal(t, 0, h.GetTenantClientCount("5"))
	assert.Empty(t, h.GetRegistry().Tenants())
}

// TestDedupSuppressesDuplicate 同一 eventId 只投递一次
func TestDedupSuppressesDuplicate(t *testing.T) {
	h := newTestHub(t, nil)
	h.SetDeduplicator(NewMemoryDeduplicator(time.Minute))
	_, transport, _ := connect(t, h, "1")

	env := upstreamEnvelope(t, models.EventKindShiftCreated, "1", nil)
	env.EventID = "evt-1"
	dup := *env
	dup.Source = models.SourceKindDatabase

	require.NoError(t, h.Dispatch(env))
	require.NoError(t, h.Dispatch(&dup))
	transport.waitKind(t, models.EventKindShiftCreated, time.Second)

	assert.Eventually(t, func() bool { return h.DroppedCount() == 1 }, time.Second, 10*time.Millisecond)
	count := 0
	for _, e := range transport.envelopes() {
		if e.EventKind == models.EventKindShiftCreated {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestMemoryDeduplicatorWindow(t *testing.T) {
	d := NewMemoryDeduplicator(time.Minute)
	now := time.Now()
	d.now = func() time.Time { return now }

	assert.False(t, d.Seen(context.Background(), "a"))
	assert.True(t, d.Seen(context.Background(), "a"))

	now = now.Add(2 * time.Minute)
	assert.False(t, d.Seen(context.Background(), "a"), "窗口过期后重新投递")
	assert.Equal(t, 1, d.Len())
}

func TestRedisDeduplicator(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	d := NewRedisDeduplicator(client, "", time.Minute, nil)
	assert.False(t, d.Seen(context.Background(), "x"))
	assert.True(t, d.Seen(context.Background(), "x"))
	assert.True(t, mr.Exists("relay:dedup:x"))

	// Redis 不可用时使用本地窗口
	broken := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer broken.Close()
	fallback := NewRedisDeduplicator(broken, "", time.Minute, nil)
	assert.False(t, fallback.Seen(context.Background(), "y"))
	assert.True(t, fallback.Seen(context.Background(), "y"))
}

func TestHealthAndStats(t *testing.T) {
	collector := metrics.NewCollector("relay_test")
	h := newTestHub(t, nil, WithMetrics(collector))
	h.SetChannelProvider(func() []string { return []string{"shift_created_1"} })

	connect(t, h, "1")
	connect(t, h, "1")
	connect(t, h, "2")

	health := h.Health()
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 3, health.ConnectedClients)
	assert.Len(t, health.Clients, 3)
	assert.Equal(t, []string{"shift_created_1"}, health.Channels)

	stats, err := h.Stats(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalClients)
	assert.Equal(t, map[TenantID]int{"1": 2, "2": 1}, stats.WorksetConnections)
	assert.Nil(t, stats.Cluster)
	assert.Equal(t, "test-node", stats.NodeID)
}

// TestClusterStats 节点统计上报到 Redis 后可汇总
func TestClusterStats(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	repo := repository.NewRedisNodeStatsRepository(client, nil)
	config := wscconfig.Default()
	h := NewHub(config, WithLogger(middleware.NewNoOpLogger()), WithNodeID("node-a"), WithStatsSyncInterval(50*time.Millisecond))
	h.SetStatsRepository(repo)
	go h.Run()
	h.WaitForStart()
	defer h.Shutdown()

	connect(t, h, "4")

	assert.Eventually(t, func() bool {
		stats, err := h.Stats(context.Background(), true)
		return err == nil && stats.Cluster != nil && stats.Cluster.WorksetConnections["4"] == 1
	}, 2*time.Second, 20*time.Millisecond)
}

// TestPublishClusterFallsBackToLocal 未配置 PubSub 时本地投递
func TestPublishClusterFallsBackToLocal(t *testing.T) {
	h := newTestHub(t, nil)
	_, transport, _ := connect(t, h, "8")

	env, err := models.NewEnvelope(models.EventKindTrigger, "8", models.TriggerPayload{Message: "manual"})
	require.NoError(t, err)
	require.NoError(t, h.PublishCluster(context.Background(), env))

	transport.waitKind(t, models.EventKindTrigger, time.Second)
}

// TestPublishClusterViaPubSub 通过 PubSub 转发的触发事件在本节点投递
func TestPublishClusterViaPubSub(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	config := wscconfig.Default()
	h := NewHub(config, WithLogger(middleware.NewNoOpLogger()))
	h.SetPubSub(cachex.NewPubSub(client, cachex.PubSubConfig{Namespace: "relay"}))
	go h.Run()
	h.WaitForStart()
	defer h.Shutdown()

	_, transport, _ := connect(t, h, "6")
	// 等待订阅就绪
	time.Sleep(100 * time.Millisecond)

	env, err := models.NewEnvelope(models.EventKindTrigger, "6", models.TriggerPayload{Message: "cluster"})
	require.NoError(t, err)
	require.NoError(t, h.PublishCluster(context.Background(), env))

	got := transport.waitKind(t, models.EventKindTrigger, 2*time.Second)
	assert.Equal(t, env.EventID, got.EventID)
}
