/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-26 16:02:13
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-13 17:22:41
 * @FilePath: \go-relay\repository\node_stats_repository_test.go
 * @Description: 节点统计仓库测试（miniredis）
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	wscconfig "github.com/kamalyes/go-config/pkg/wsc"
	"github.com/kamalyes/go-relay/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStatsRepo(t *testing.T) (*RedisNodeStatsRepository, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisNodeStatsRepository(client, &wscconfig.Stats{KeyPrefix: "test:stats:", TTL: time.Minute}), mr
}

// TestReportTenantCountsAggregates 多节点上报后汇总
func TestReportTenantCountsAggregates(t *testing.T) {
	repo, _ := newTestStatsRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ReportTenantCounts(ctx, "node-a", map[models.TenantID]int{"1": 2, "2": 1}))
	require.NoError(t, repo.ReportTenantCounts(ctx, "node-b", map[models.TenantID]int{"1": 3}))

	stats, err := repo.GetClusterStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"node-a", "node-b"}, stats.Nodes)
	assert.Equal(t, int64(6), stats.TotalClients)
	assert.Equal(t, int64(5), stats.WorksetConnections["1"])
	assert.Equal(t, int64(1), stats.WorksetConnections["2"])
}

// TestReportTenantCountsOverwrites 再次上报会覆盖旧的租户计数
func TestReportTenantCountsOverwrites(t *testing.T) {
	repo, _ := newTestStatsRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ReportTenantCounts(ctx, "node-a", map[models.TenantID]int{"1": 2, "2": 1}))
	require.NoError(t, repo.ReportTenantCounts(ctx, "node-a", map[models.TenantID]int{"2": 4}))

	stats, err := repo.GetClusterStats(ctx)
	require.NoError(t, err)
	_, has := stats.WorksetConnections["1"]
	assert.False(t, has, "租户1已无连接")
	assert.Equal(t, int64(4), stats.WorksetConnections["2"])
}

// TestClusterStatsSkipsExpiredNodes 心跳过期的节点不计入汇总
func TestClusterStatsSkipsExpiredNodes(t *testing.T) {
	repo, mr := newTestStatsRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ReportTenantCounts(ctx, "node-old", map[models.TenantID]int{"1": 9}))
	mr.FastForward(2 * time.Minute)
	require.NoError(t, repo.ReportTenantCounts(ctx, "node-new", map[models.TenantID]int{"1": 1}))

	stats, err := repo.GetClusterStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"node-new"}, stats.Nodes)
	assert.Equal(t, int64(1), stats.TotalClients)

	members, err := mr.Members(repo.nodesSetKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"node-new"}, members)
}

func TestRemoveNode(t *testing.T) {
	repo, mr := newTestStatsRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SetStartTime(ctx, "node-a", time.Now().Unix()))
	require.NoError(t, repo.ReportTenantCounts(ctx, "node-a", map[models.TenantID]int{"1": 1}))
	require.NoError(t, repo.IncrementEventsDelivered(ctx, "node-a", 5))
	assert.Equal(t, "5", mr.HGet(repo.nodeKey("node-a"), FieldEventsDelivered))

	require.NoError(t, repo.RemoveNode(ctx, "node-a"))
	assert.False(t, mr.Exists(repo.nodeKey("node-a")))
	assert.False(t, mr.Exists(repo.tenantsKey("node-a")))

	stats, err := repo.GetClusterStats(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats.Nodes)
}
