/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-10-02 10:33:58
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 15:20:11
 * @FilePath: \go-relay\source\redis.go
 * @Description: Redis Pub/Sub 数据源
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package source

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/redis/go-redis/v9"

	"github.com/kamalyes/go-relay/metrics"
	"github.com/kamalyes/go-relay/middleware"
	"github.com/kamalyes/go-relay/models"
)

// RedisSourceConfig Redis 数据源配置
type RedisSourceConfig struct {
	Channels     []string      // 精确订阅的频道
	Patterns     []string      // PSUBSCRIBE 模式，非空时优先于 Channels
	StartTimeout time.Duration // 初始订阅确认超时
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
}

// RedisSource Redis Pub/Sub 适配器
type RedisSource struct {
	client   redis.UniversalClient
	config   RedisSourceConfig
	pipeline *Pipeline
	logger   middleware.RelayLogger
	metrics  *metrics.Collector

	mu     sync.Mutex
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisSource 创建 Redis 数据源
func NewRedisSource(client redis.UniversalClient, config RedisSourceConfig, pipeline *Pipeline, log middleware.RelayLogger, m *metrics.Collector) *RedisSource {
	if log == nil {
		log = middleware.NewNoOpLogger()
	}
	if config.StartTimeout <= 0 {
		config.StartTimeout = 5 * time.Second
	}
	if config.MinBackoff <= 0 {
		config.MinBackoff = 500 * time.Millisecond
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}
	return &RedisSource{
		client:   client,
		config:   config,
		pipeline: pipeline,
		logger:   log,
		metrics:  m,
	}
}

// Name 实现 Source
func (s *RedisSource) Name() models.SourceKind { return models.SourceKindBroker }

// Channels 实现 Source
func (s *RedisSource) Channels() []string {
	if len(s.config.Patterns) > 0 {
		return append([]string(nil), s.config.Patterns...)
	}
	return append([]string(nil), s.config.Channels...)
}

// subscribe 建立订阅并等待服务端确认
func (s *RedisSource) subscribe(ctx context.Context) (*redis.PubSub, error) {
	var ps *redis.PubSub
	if len(s.config.Patterns) > 0 {
		ps = s.client.PSubscribe(ctx, s.config.Patterns...)
	} else {
		ps = s.client.Subscribe(ctx, s.config.Channels...)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, s.config.StartTimeout)
	defer cancel()
	if _, err := ps.Receive(confirmCtx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return ps, nil
}

// Start 实现 Source，初始订阅失败直接返回错误
func (s *RedisSource) Start(ctx context.Context) error {
	if len(s.config.Channels) == 0 && len(s.config.Patterns) == 0 {
		return models.NewUpstreamConnectError(s.Name(), errors.New("no channels configured"))
	}

	ps, err := s.subscribe(ctx)
	if err != nil {
		s.metrics.SourceUp(s.Name(), false)
		return models.NewUpstreamConnectError(s.Name(), err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.pubsub = ps
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.metrics.SourceUp(s.Name(), true)
	s.logger.InfoKV("Redis 订阅已建立",
		"channels", len(s.config.Channels),
		"patterns", s.config.Patterns,
	)

	go s.receiveLoop(runCtx, ps)
	return nil
}

// receiveLoop 接收消息，连接异常时按退避重建订阅
func (s *RedisSource) receiveLoop(ctx context.Context, ps *redis.PubSub) {
	defer close(s.done)

	b := &backoff.Backoff{
		Min:    s.config.MinBackoff,
		Max:    s.config.MaxBackoff,
		Factor: 2,
		Jitter: true,
	}

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.metrics.SourceUp(s.Name(), false)
			s.logger.WarnKV("Redis 订阅中断", "error", err, "attempt", b.Attempt())

			ps = s.resubscribe(ctx, ps, b)
			if ps == nil {
				return
			}
			continue
		}

		s.handle(ctx, msg)
	}
}

// resubscribe 重建订阅直到成功或上下文结束
func (s *RedisSource) resubscribe(ctx context.Context, old *redis.PubSub, b *backoff.Backoff) *redis.PubSub {
	_ = old.Close()
	for {
		delay := b.Duration()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		ps, err := s.subscribe(ctx)
		if err != nil {
			s.logger.WarnKV("Redis 重新订阅失败", "error", err, "attempt", b.Attempt(), "next_delay", delay.String())
			continue
		}

		b.Reset()
		s.mu.Lock()
		s.pubsub = ps
		s.mu.Unlock()
		s.metrics.SourceUp(s.Name(), true)
		s.metrics.SourceReconnect(s.Name())
		s.logger.InfoKV("Redis 订阅已恢复")
		return ps
	}
}

// handle 处理单条消息，panic 被捕获
func (s *RedisSource) handle(ctx context.Context, msg *redis.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorKV("Redis 消息处理 panic", "panic", r, "channel", msg.Channel)
		}
	}()
	_ = s.pipeline.Handle(ctx, s.Name(), msg.Channel, []byte(msg.Payload))
}

// Stop 实现 Source
func (s *RedisSource) Stop() error {
	s.mu.Lock()
	cancel, ps, done := s.cancel, s.pubsub, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	var err error
	if ps != nil {
		err = ps.Close()
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.logger.WarnKV("Redis 接收循环退出超时")
	}
	s.metrics.SourceUp(s.Name(), false)
	s.logger.InfoKV("Redis 订阅已停止")
	return err
}
