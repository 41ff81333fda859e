/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-28 11:02:57
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 11:48:20
 * @FilePath: \go-relay\hub\registry.go
 * @Description: 连接注册表 - 租户 -> 活跃会话集合
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"sort"
	"sync"

	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// Registry 租户到会话集合的映射
// 租户的会话集合为空时立即删除该租户键
type Registry struct {
	mu      sync.RWMutex
	tenants map[TenantID]map[string]*Session
	index   map[string]*Session
	closed  bool // CloseAll 之后拒绝新会话
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{
		tenants: make(map[TenantID]map[string]*Session),
		index:   make(map[string]*Session),
	}
}

// Register 注册会话，注册表已关闭时返回 false
func (r *Registry) Register(s *Session) bool {
	return syncx.WithLockReturnValue(&r.mu, func() bool {
		if r.closed {
			return false
		}
		set, ok := r.tenants[s.TenantID]
		if !ok {
			set = make(map[string]*Session)
			r.tenants[s.TenantID] = set
		}
		set[s.ID] = s
		r.index[s.ID] = s
		return true
	})
}

// Unregister 注销会话（幂等），实际删除时返回 true
func (r *Registry) Unregister(id string) bool {
	return syncx.WithLockReturnValue(&r.mu, func() bool {
		s, ok := r.index[id]
		if !ok {
			return false
		}
		delete(r.index, id)

		if set, ok := r.tenants[s.TenantID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.tenants, s.TenantID)
			}
		}
		return true
	})
}

// Get 按ID查找
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.index[id]
	return s, ok
}

// Sessions 返回租户会话的快照
func (r *Registry) Sessions(tenant TenantID) []*Session {
	return syncx.WithRLockReturnValue(&r.mu, func() []*Session {
		set := r.tenants[tenant]
		out := make([]*Session, 0, len(set))
		for _, s := range set {
			out = append(out, s)
		}
		return out
	})
}

// ForEach 在快照上遍历租户的会话，回调中可安全地注册/注销
func (r *Registry) ForEach(tenant TenantID, fn func(*Session)) {
	for _, s := range r.Sessions(tenant) {
		fn(s)
	}
}

// Snapshot 所有会话的快照，按连接时间排序
func (r *Registry) Snapshot() []*Session {
	out := syncx.WithRLockReturnValue(&r.mu, func() []*Session {
		all := make([]*Session, 0, len(r.index))
		for _, s := range r.index {
			all = append(all, s)
		}
		return all
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// CountsByTenant 各租户连接数（只包含非空租户）
func (r *Registry) CountsByTenant() map[TenantID]int {
	return syncx.WithRLockReturnValue(&r.mu, func() map[TenantID]int {
		counts := make(map[TenantID]int, len(r.tenants))
		for tenant, set := range r.tenants {
			counts[tenant] = len(set)
		}
		return counts
	})
}

// Tenants 当前有连接的租户，升序
func (r *Registry) Tenants() []TenantID {
	tenants := syncx.WithRLockReturnValue(&r.mu, func() []TenantID {
		out := make([]TenantID, 0, len(r.tenants))
		for tenant := range r.tenants {
			out = append(out, tenant)
		}
		return out
	})
	sort.Slice(tenants, func(i, j int) bool { return tenants[i] < tenants[j] })
	return tenants
}

// CloseAll 清空并关闭注册表，返回被移除的会话
func (r *Registry) CloseAll() []*Session {
	removed := syncx.WithLockReturnValue(&r.mu, func() []*Session {
		r.closed = true
		out := make([]*Session, 0, len(r.index))
		for _, s := range r.index {
			out = append(out, s)
		}
		r.tenants = make(map[TenantID]map[string]*Session)
		r.index = make(map[string]*Session)
		return out
	})
	return removed
}

// Count 租户连接数
func (r *Registry) Count(tenant TenantID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tenants[tenant])
}

// Total 总连接数
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.index)
}
