/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-10-02 14:51:20
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 15:20:11
 * @FilePath: \go-relay\source\postgres.go
 * @Description: PostgreSQL LISTEN/NOTIFY 数据源
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package source

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/kamalyes/go-relay/metrics"
	"github.com/kamalyes/go-relay/middleware"
	"github.com/kamalyes/go-relay/models"
)

// Listener LISTEN 连接，*pq.Listener 满足该接口
type Listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// ListenerFactory 创建 Listener，事件回调由数据源提供
type ListenerFactory func(callback pq.EventCallbackType) Listener

// PQListenerFactory 基于 lib/pq 的 Listener 工厂
func PQListenerFactory(dsn string, minReconnect, maxReconnect time.Duration) ListenerFactory {
	return func(callback pq.EventCallbackType) Listener {
		return pq.NewListener(dsn, minReconnect, maxReconnect, callback)
	}
}

// PostgresSourceConfig PostgreSQL 数据源配置
type PostgresSourceConfig struct {
	Channels     []string
	StartTimeout time.Duration // 等待首次连接的超时
	PingInterval time.Duration // 空闲健康检查间隔
}

// PostgresSource LISTEN/NOTIFY 适配器
// 断线重连由 pq.Listener 按最小/最大间隔自动完成
type PostgresSource struct {
	factory  ListenerFactory
	config   PostgresSourceConfig
	pipeline *Pipeline
	logger   middleware.RelayLogger
	metrics  *metrics.Collector

	mu       sync.Mutex
	listener Listener
	cancel   context.CancelFunc
	done     chan struct{}
	events   chan pq.ListenerEventType
}

// NewPostgresSource 创建 PostgreSQL 数据源
func NewPostgresSource(factory ListenerFactory, config PostgresSourceConfig, pipeline *Pipeline, log middleware.RelayLogger, m *metrics.Collector) *PostgresSource {
	if log == nil {
		log = middleware.NewNoOpLogger()
	}
	if config.StartTimeout <= 0 {
		config.StartTimeout = 10 * time.Second
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 90 * time.Second
	}
	return &PostgresSource{
		factory:  factory,
		config:   config,
		pipeline: pipeline,
		logger:   log,
		metrics:  m,
	}
}

// Name 实现 Source
func (s *PostgresSource) Name() models.SourceKind { return models.SourceKindDatabase }

// Channels 实现 Source
func (s *PostgresSource) Channels() []string {
	return append([]string(nil), s.config.Channels...)
}

// onEvent pq 连接状态回调
func (s *PostgresSource) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		s.metrics.SourceUp(s.Name(), true)
		s.logger.InfoKV("PostgreSQL 监听连接已建立")
	case pq.ListenerEventDisconnected:
		s.metrics.SourceUp(s.Name(), false)
		s.logger.WarnKV("PostgreSQL 监听连接断开", "error", err)
	case pq.ListenerEventReconnected:
		s.metrics.SourceUp(s.Name(), true)
		s.metrics.SourceReconnect(s.Name())
		s.logger.InfoKV("PostgreSQL 监听连接已恢复")
	case pq.ListenerEventConnectionAttemptFailed:
		s.metrics.SourceUp(s.Name(), false)
		s.logger.WarnKV("PostgreSQL 连接尝试失败", "error", err)
	}

	s.mu.Lock()
	events := s.events
	s.mu.Unlock()
	if events != nil {
		select {
		case events <- ev:
		default:
		}
	}
}

// Start 实现 Source，等待首次连接结果
func (s *PostgresSource) Start(ctx context.Context) error {
	if len(s.config.Channels) == 0 {
		return models.NewUpstreamConnectError(s.Name(), errors.New("no channels configured"))
	}

	events := make(chan pq.ListenerEventType, 8)
	s.mu.Lock()
	s.events = events
	s.mu.Unlock()

	listener := s.factory(s.onEvent)

	if err := s.awaitConnected(ctx, events); err != nil {
		_ = listener.Close()
		return models.NewUpstreamConnectError(s.Name(), err)
	}

	for _, channel := range s.config.Channels {
		if err := listener.Listen(channel); err != nil {
			_ = listener.Close()
			return models.NewUpstreamConnectError(s.Name(), err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.listener = listener
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.logger.InfoKV("PostgreSQL LISTEN 已建立", "channels", len(s.config.Channels))
	go s.receiveLoop(runCtx, listener)
	return nil
}

func (s *PostgresSource) awaitConnected(ctx context.Context, events <-chan pq.ListenerEventType) error {
	timer := time.NewTimer(s.config.StartTimeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-events:
			switch ev {
			case pq.ListenerEventConnected:
				return nil
			case pq.ListenerEventConnectionAttemptFailed:
				return errors.New("connection attempt failed")
			}
		case <-timer.C:
			return errors.New("timed out waiting for listener connection")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// receiveLoop 接收通知；nil 通知表示连接已重建，期间的通知可能丢失
func (s *PostgresSource) receiveLoop(ctx context.Context, listener Listener) {
	defer close(s.done)

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	notifications := listener.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			if n == nil {
				s.logger.WarnKV("PostgreSQL 监听重连，期间的通知可能丢失")
				continue
			}
			s.handle(ctx, n)
		case <-ticker.C:
			if err := listener.Ping(); err != nil {
				s.logger.WarnKV("PostgreSQL 监听健康检查失败", "error", err)
			}
		}
	}
}

func (s *PostgresSource) handle(ctx context.Context, n *pq.Notification) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorKV("PostgreSQL 通知处理 panic", "panic", r, "channel", n.Channel)
		}
	}()
	_ = s.pipeline.Handle(ctx, s.Name(), n.Channel, []byte(n.Extra))
}

// Stop 实现 Source
func (s *PostgresSource) Stop() error {
	s.mu.Lock()
	cancel, listener, done := s.cancel, s.listener, s.done
	s.cancel = nil
	s.listener = nil
	s.events = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.logger.WarnKV("PostgreSQL 接收循环退出超时")
	}

	s.metrics.SourceUp(s.Name(), false)
	s.logger.InfoKV("PostgreSQL LISTEN 已停止")
	return listener.Close()
}
