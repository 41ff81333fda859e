/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-26 10:14:09
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-13 17:22:41
 * @FilePath: \go-relay\repository\connection_repository.go
 * @Description: 推送连接审计记录仓库
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	wscconfig "github.com/kamalyes/go-config/pkg/wsc"
	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-relay/models"
	sqlbuilder "github.com/kamalyes/go-sqlbuilder/repository"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
	"gorm.io/gorm"
)

// ConnectionRecordRepository 推送连接记录仓储接口
// 每个下游连接一条记录，通过 connection_id 唯一标识
type ConnectionRecordRepository interface {
	// Create 连接建立时写入记录
	Create(ctx context.Context, record *models.ConnectionRecord) error

	// MarkDisconnected 标记连接已断开并写入推送统计
	MarkDisconnected(ctx context.Context, connectionID string, reason models.DisconnectReason, message string, eventsSent int64) error

	// GetByConnectionID 根据连接ID获取记录
	GetByConnectionID(ctx context.Context, connectionID string) (*models.ConnectionRecord, error)

	// List 条件查询
	List(ctx context.Context, opts *ConnectionQueryOptions) ([]*models.ConnectionRecord, error)

	// Count 条件计数
	Count(ctx context.Context, opts *ConnectionQueryOptions) (int64, error)

	// CleanupInactiveRecords 清理指定时间之前断开的记录
	CleanupInactiveRecords(ctx context.Context, before time.Time) (int64, error)

	// Close 停止后台清理任务
	Close() error
}

// ConnectionQueryOptions 连接查询选项
type ConnectionQueryOptions struct {
	TenantID   string // 租户过滤
	NodeID     string // 节点过滤
	ClientIP   string // 客户端IP过滤
	Protocol   string // 协议过滤
	IsActive   *bool  // 是否活跃（nil表示不过滤）
	IsAbnormal *bool  // 是否异常（nil表示不过滤）
	Limit      int    // 限制数量
	Offset     int    // 偏移量
}

// connectionRecordRepositoryImpl 基于 GORM 的实现
type connectionRecordRepositoryImpl struct {
	db         *gorm.DB
	logger     logger.ILogger
	cancelFunc context.CancelFunc
}

// NewConnectionRecordRepository 创建连接记录仓储实例
// config 为 nil 或未开启自动清理时不启动后台任务
func NewConnectionRecordRepository(db *gorm.DB, config *wscconfig.ConnectionRecord, log logger.ILogger) ConnectionRecordRepository {
	ctx, cancel := context.WithCancel(context.Background())

	repo := &connectionRecordRepositoryImpl{
		db:         db,
		logger:     log,
		cancelFunc: cancel,
	}

	if config != nil && config.EnableAutoCleanup && config.CleanupDaysAgo > 0 {
		go repo.startCleanupScheduler(ctx, config.CleanupDaysAgo)
	}

	return repo
}

func (r *connectionRecordRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.ConnectionRecord{})
}

// Create 连接建立时写入记录
func (r *connectionRecordRepositoryImpl) Create(ctx context.Context, record *models.ConnectionRecord) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if record.ConnectionID == "" {
		return fmt.Errorf("connection_id cannot be empty")
	}
	if record.ConnectedAt.IsZero() {
		record.ConnectedAt = time.Now()
	}
	record.IsActive = true

	return r.db.WithContext(ctx).Create(record).Error
}

// MarkDisconnected 标记连接已断开
// 时长由数据库按 connected_at 计算，只需一次 UPDATE
func (r *connectionRecordRepositoryImpl) MarkDisconnected(ctx context.Context, connectionID string, reason models.DisconnectReason, message string, eventsSent int64) error {
	now := time.Now()
	updates := map[string]any{
		"disconnected_at":    now,
		"disconnect_reason":  string(reason),
		"disconnect_message": message,
		"duration":           gorm.Expr("TIMESTAMPDIFF(SECOND, connected_at, ?)", now),
		"events_sent":        eventsSent,
		"is_active":          false,
		"is_abnormal":        reason.IsAbnormal(),
	}

	return r.getDB(ctx).
		Where("connection_id = ?", connectionID).
		Updates(updates).Error
}

// GetByConnectionID 根据连接ID获取记录，不存在返回 nil, nil
func (r *connectionRecordRepositoryImpl) GetByConnectionID(ctx context.Context, connectionID string) (*models.ConnectionRecord, error) {
	var record models.ConnectionRecord
	err := r.getDB(ctx).
		Where("connection_id = ?", connectionID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// List 通用列表查询，按连接时间倒序
func (r *connectionRecordRepositoryImpl) List(ctx context.Context, opts *ConnectionQueryOptions) ([]*models.ConnectionRecord, error) {
	query := sqlbuilder.NewQuery().AddOrder("connected_at", "DESC")
	if opts != nil && opts.Limit > 0 {
		query.Limit(opts.Limit)
	}

	gormDB := r.applyQueryOptions(r.getDB(ctx), opts)
	gormDB = sqlbuilder.ApplyOrders(gormDB, query.Orders)
	if query.LimitValue != nil {
		gormDB = gormDB.Limit(*query.LimitValue)
	}
	if opts != nil && opts.Offset > 0 {
		gormDB = gormDB.Offset(opts.Offset)
	}

	var records []*models.ConnectionRecord
	err := gormDB.Find(&records).Error
	return records, err
}

// Count 条件计数
func (r *connectionRecordRepositoryImpl) Count(ctx context.Context, opts *ConnectionQueryOptions) (int64, error) {
	var count int64
	err := r.applyQueryOptions(r.getDB(ctx), opts).Count(&count).Error
	return count, err
}

// applyQueryOptions 使用 go-sqlbuilder 构建过滤条件
func (r *connectionRecordRepositoryImpl) applyQueryOptions(query *gorm.DB, opts *ConnectionQueryOptions) *gorm.DB {
	if opts == nil {
		return query
	}

	sqlQuery := sqlbuilder.NewQuery().
		AddFilterIfNotEmpty("tenant_id", opts.TenantID).
		AddFilterIfNotEmpty("node_id", opts.NodeID).
		AddFilterIfNotEmpty("client_ip", opts.ClientIP).
		AddFilterIfNotEmpty("protocol", opts.Protocol).
		AddFilterIfNotEmpty("is_active", opts.IsActive).
		AddFilterIfNotEmpty("is_abnormal", opts.IsAbnormal)

	return sqlbuilder.ApplyFilters(query, sqlQuery.Filters)
}

// CleanupInactiveRecords 清理非活跃记录
func (r *connectionRecordRepositoryImpl) CleanupInactiveRecords(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("disconnected_at < ? AND is_active = ?", before, false).
		Delete(&models.ConnectionRecord{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// startCleanupScheduler 每天清理一次 daysAgo 天前断开的记录
func (r *connectionRecordRepositoryImpl) startCleanupScheduler(ctx context.Context, daysAgo int) {
	r.cleanupOldData(ctx, daysAgo)

	syncx.NewEventLoop(ctx).
		OnTicker(24*time.Hour, func() {
			r.cleanupOldData(ctx, daysAgo)
		}).
		OnPanic(func(rec any) {
			r.logger.Errorf("⚠️ 连接记录清理任务 panic: %v", rec)
		}).
		OnShutdown(func() {
			r.logger.Info("🛑 连接记录清理任务已停止")
		}).
		Run()
}

func (r *connectionRecordRepositoryImpl) cleanupOldData(ctx context.Context, daysAgo int) {
	before := time.Now().AddDate(0, 0, -daysAgo)

	deleted, err := r.CleanupInactiveRecords(ctx, before)
	if err != nil {
		r.logger.Warnf("⚠️ 清理历史连接记录失败: %v", err)
	} else if deleted > 0 {
		r.logger.Infof("🧹 已清理 %d 天前的连接记录，删除 %d 条", daysAgo, deleted)
	}
}

// Close 停止后台清理任务
func (r *connectionRecordRepositoryImpl) Close() error {
	if r.cancelFunc != nil {
		r.cancelFunc()
	}
	return nil
}
