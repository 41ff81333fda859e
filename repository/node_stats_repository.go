/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-26 14:45:30
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-13 17:22:41
 * @FilePath: \go-relay\repository\node_stats_repository.go
 * @Description: 节点连接统计 Redis 存储 - 支持按租户分片的多节点部署
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package repository

import (
	"context"
	"sort"
	"strconv"
	"time"

	wscconfig "github.com/kamalyes/go-config/pkg/wsc"
	"github.com/kamalyes/go-relay/models"
	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/redis/go-redis/v9"
)

// Redis Hash 字段常量
const (
	FieldActiveConnections = "active_connections"
	FieldEventsDelivered   = "events_delivered"
	FieldStartTime         = "start_time"
)

// Redis Key 常量
const (
	DefaultStatsKeyPrefix = "relay:stats:"
	KeyPrefixNode         = "node:"
	KeyPrefixTenants      = "tenants:"
	KeyPrefixHeartbeat    = "heartbeat:"
	KeySuffixNodes        = "nodes"
)

// NodeStatsRepository 节点统计仓库接口
type NodeStatsRepository interface {
	// SetStartTime 记录节点启动时间
	SetStartTime(ctx context.Context, nodeID string, startTime int64) error

	// ReportTenantCounts 上报本节点各租户连接数（全量覆盖）并刷新心跳
	ReportTenantCounts(ctx context.Context, nodeID string, counts map[models.TenantID]int) error

	// IncrementEventsDelivered 累加投递数
	IncrementEventsDelivered(ctx context.Context, nodeID string, delta int64) error

	// RemoveNode 节点下线时清理
	RemoveNode(ctx context.Context, nodeID string) error

	// GetClusterStats 汇总所有存活节点的统计
	GetClusterStats(ctx context.Context) (*models.ClusterStats, error)
}

// RedisNodeStatsRepository Redis 实现
type RedisNodeStatsRepository struct {
	client      *redis.Client
	keyPrefix   string
	statsExpire time.Duration // 心跳与统计过期时间，节点宕机后自动从汇总中消失
}

// NewRedisNodeStatsRepository 创建 Redis 节点统计仓库
func NewRedisNodeStatsRepository(client *redis.Client, config *wscconfig.Stats) *RedisNodeStatsRepository {
	if config == nil {
		config = &wscconfig.Stats{}
	}
	return &RedisNodeStatsRepository{
		client:      client,
		keyPrefix:   mathx.IF(config.KeyPrefix == "", DefaultStatsKeyPrefix, config.KeyPrefix),
		statsExpire: mathx.IF(config.TTL == 0, 2*time.Minute, config.TTL),
	}
}

func (r *RedisNodeStatsRepository) nodeKey(nodeID string) string {
	return r.keyPrefix + KeyPrefixNode + nodeID
}

func (r *RedisNodeStatsRepository) tenantsKey(nodeID string) string {
	return r.keyPrefix + KeyPrefixTenants + nodeID
}

func (r *RedisNodeStatsRepository) heartbeatKey(nodeID string) string {
	return r.keyPrefix + KeyPrefixHeartbeat + nodeID
}

func (r *RedisNodeStatsRepository) nodesSetKey() string {
	return r.keyPrefix + KeySuffixNodes
}

// SetStartTime 记录节点启动时间
func (r *RedisNodeStatsRepository) SetStartTime(ctx context.Context, nodeID string, startTime int64) error {
	key := r.nodeKey(nodeID)
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, FieldStartTime, startTime)
	pipe.Expire(ctx, key, r.statsExpire)
	pipe.SAdd(ctx, r.nodesSetKey(), nodeID)
	_, err := pipe.Exec(ctx)
	return err
}

// ReportTenantCounts 全量覆盖租户连接数，同时刷新心跳
func (r *RedisNodeStatsRepository) ReportTenantCounts(ctx context.Context, nodeID string, counts map[models.TenantID]int) error {
	tenantsKey := r.tenantsKey(nodeID)
	nodeKey := r.nodeKey(nodeID)

	total := 0
	values := make(map[string]any, len(counts))
	for tenant, n := range counts {
		values[string(tenant)] = n
		total += n
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, tenantsKey)
	if len(values) > 0 {
		pipe.HSet(ctx, tenantsKey, values)
		pipe.Expire(ctx, tenantsKey, r.statsExpire)
	}
	pipe.HSet(ctx, nodeKey, FieldActiveConnections, total)
	pipe.Expire(ctx, nodeKey, r.statsExpire)
	pipe.SAdd(ctx, r.nodesSetKey(), nodeID)
	pipe.Set(ctx, r.heartbeatKey(nodeID), time.Now().Unix(), r.statsExpire)
	_, err := pipe.Exec(ctx)
	return err
}

// IncrementEventsDelivered 累加投递数
func (r *RedisNodeStatsRepository) IncrementEventsDelivered(ctx context.Context, nodeID string, delta int64) error {
	key := r.nodeKey(nodeID)
	pipe := r.client.Pipeline()
	pipe.HIncrBy(ctx, key, FieldEventsDelivered, delta)
	pipe.Expire(ctx, key, r.statsExpire)
	_, err := pipe.Exec(ctx)
	return err
}

// RemoveNode 节点下线时清理
func (r *RedisNodeStatsRepository) RemoveNode(ctx context.Context, nodeID string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.nodeKey(nodeID), r.tenantsKey(nodeID), r.heartbeatKey(nodeID))
	pipe.SRem(ctx, r.nodesSetKey(), nodeID)
	_, err := pipe.Exec(ctx)
	return err
}

// GetClusterStats 汇总所有心跳未过期节点的租户连接数
// 心跳已过期的节点会顺带从节点集合中移除
func (r *RedisNodeStatsRepository) GetClusterStats(ctx context.Context) (*models.ClusterStats, error) {
	nodeIDs, err := r.client.SMembers(ctx, r.nodesSetKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(nodeIDs)

	stats := &models.ClusterStats{
		Nodes:              make([]string, 0, len(nodeIDs)),
		WorksetConnections: make(map[models.TenantID]int64),
	}

	for _, nodeID := range nodeIDs {
		alive, err := r.client.Exists(ctx, r.heartbeatKey(nodeID)).Result()
		if err != nil {
			return nil, err
		}
		if alive == 0 {
			r.client.SRem(ctx, r.nodesSetKey(), nodeID)
			continue
		}

		tenants, err := r.client.HGetAll(ctx, r.tenantsKey(nodeID)).Result()
		if err != nil {
			return nil, err
		}
		stats.Nodes = append(stats.Nodes, nodeID)
		for tenant, v := range tenants {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				continue
			}
			stats.WorksetConnections[models.TenantID(tenant)] += n
			stats.TotalClients += n
		}
	}

	return stats, nil
}
