/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-29 10:47:53
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 11:48:20
 * @FilePath: \go-relay\hub\dedup.go
 * @Description: 事件去重窗口 - 同一 eventId 在窗口内只投递一次
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduplicator 事件去重器
type Deduplicator interface {
	// Seen 标记并返回该 eventId 在窗口内是否已出现过
	Seen(ctx context.Context, eventID string) bool
}

// MemoryDeduplicator 进程内去重窗口
type MemoryDeduplicator struct {
	mu        sync.Mutex
	window    time.Duration
	seen      map[string]time.Time
	lastPrune time.Time
	now       func() time.Time
}

// NewMemoryDeduplicator 创建进程内去重器
func NewMemoryDeduplicator(window time.Duration) *MemoryDeduplicator {
	return &MemoryDeduplicator{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Seen 实现 Deduplicator
func (d *MemoryDeduplicator) Seen(_ context.Context, eventID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if now.Sub(d.lastPrune) >= d.window {
		for id, at := range d.seen {
			if now.Sub(at) >= d.window {
				delete(d.seen, id)
			}
		}
		d.lastPrune = now
	}

	if at, ok := d.seen[eventID]; ok && now.Sub(at) < d.window {
		return true
	}
	d.seen[eventID] = now
	return false
}

// Len 窗口内记录数
func (d *MemoryDeduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// RedisDeduplicator 基于 SETNX 的集群去重，Redis 不可用时退化为进程内窗口
type RedisDeduplicator struct {
	client    redis.UniversalClient
	keyPrefix string
	window    time.Duration
	fallback  *MemoryDeduplicator
	logger    RelayLogger
}

// NewRedisDeduplicator 创建 Redis 去重器
func NewRedisDeduplicator(client redis.UniversalClient, keyPrefix string, window time.Duration, log RelayLogger) *RedisDeduplicator {
	if keyPrefix == "" {
		keyPrefix = "relay:dedup:"
	}
	return &RedisDeduplicator{
		client:    client,
		keyPrefix: keyPrefix,
		window:    window,
		fallback:  NewMemoryDeduplicator(window),
		logger:    log,
	}
}

// Seen 实现 Deduplicator
func (d *RedisDeduplicator) Seen(ctx context.Context, eventID string) bool {
	ok, err := d.client.SetNX(ctx, d.keyPrefix+eventID, 1, d.window).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.WarnKV("Redis去重失败，使用本地窗口", "event_id", eventID, "error", err)
		}
		return d.fallback.Seen(ctx, eventID)
	}
	return !ok
}
