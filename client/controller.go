/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-10-05 14:40:05
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 17:36:40
 * @FilePath: \go-relay\client\controller.go
 * @Description: 客户端重连控制器
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-toolbox/pkg/syncx"

	"github.com/kamalyes/go-relay/middleware"
	"github.com/kamalyes/go-relay/models"
)

// 默认值
const (
	DefaultBaseDelay  = time.Second
	DefaultMaxRetries = 5
)

// Config 控制器配置
type Config struct {
	BaseDelay   time.Duration // 线性策略的基础延迟
	MaxRetries  int           // 连续失败达到该次数后放弃
	Policy      DelayPolicy   // 为空时使用 LinearDelay{Base: BaseDelay}
	IdleTimeout time.Duration // 超过该时长未收到任何帧视为连接失效，0 表示不检测
}

// Option 控制器可选项
type Option func(*Controller)

// WithLogger 设置日志器
func WithLogger(l middleware.RelayLogger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSleep 替换等待函数，返回错误表示等待被取消
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) { c.sleep = sleep }
}

// Controller 维护一条下行流，按状态机处理断线与重连
//
//	DISCONNECTED → CONNECTING → CONNECTED → ERROR → BACKOFF → CONNECTING → ... → GAVE_UP
type Controller struct {
	dialer Dialer
	config Config
	logger middleware.RelayLogger
	sm     *syncx.StateMachine[models.ConnectionState]
	sleep  func(ctx context.Context, d time.Duration) error

	retries  atomic.Int32
	attempts atomic.Int64
	running  atomic.Bool

	cbMu          sync.RWMutex
	onStateChange func(from, to models.ConnectionState)
	onEnvelope    func(env *models.Envelope)
	onGaveUp      func(err error)
	onError       func(err error)
}

// NewController 创建重连控制器
func NewController(dialer Dialer, config Config, opts ...Option) *Controller {
	config.BaseDelay = mathx.IfNotZero(config.BaseDelay, DefaultBaseDelay)
	config.MaxRetries = mathx.IfNotZero(config.MaxRetries, DefaultMaxRetries)
	if config.Policy == nil {
		config.Policy = LinearDelay{Base: config.BaseDelay}
	}

	sm := syncx.NewStateMachine(models.ConnectionStateDisconnected)
	sm.AllowTransitions(models.ConnectionStateDisconnected, models.ConnectionStateConnecting)
	sm.AllowTransitions(models.ConnectionStateConnecting, models.ConnectionStateConnected, models.ConnectionStateError, models.ConnectionStateDisconnected)
	sm.AllowTransitions(models.ConnectionStateConnected, models.ConnectionStateError, models.ConnectionStateDisconnected)
	sm.AllowTransitions(models.ConnectionStateError, models.ConnectionStateBackoff, models.ConnectionStateGaveUp, models.ConnectionStateDisconnected)
	sm.AllowTransitions(models.ConnectionStateBackoff, models.ConnectionStateConnecting, models.ConnectionStateDisconnected)
	// 放弃之后可由调用方再次 Run 重新开始
	sm.AllowTransitions(models.ConnectionStateGaveUp, models.ConnectionStateConnecting)

	c := &Controller{
		dialer: dialer,
		config: config,
		logger: middleware.NewNoOpLogger(),
		sm:     sm,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnStateChange 状态变化回调
func (c *Controller) OnStateChange(f func(from, to models.ConnectionState)) {
	syncx.WithLock(&c.cbMu, func() { c.onStateChange = f })
}

// OnEnvelope 收到信封回调（包括 connected 与 heartbeat）
func (c *Controller) OnEnvelope(f func(env *models.Envelope)) {
	syncx.WithLock(&c.cbMu, func() { c.onEnvelope = f })
}

// OnGaveUp 放弃重连回调
func (c *Controller) OnGaveUp(f func(err error)) {
	syncx.WithLock(&c.cbMu, func() { c.onGaveUp = f })
}

// OnError 连接错误回调
func (c *Controller) OnError(f func(err error)) {
	syncx.WithLock(&c.cbMu, func() { c.onError = f })
}

// State 当前状态
func (c *Controller) State() models.ConnectionState { return c.sm.CurrentState() }

// Retries 当前连续失败次数
func (c *Controller) Retries() int { return int(c.retries.Load()) }

// Attempts 累计拨号次数
func (c *Controller) Attempts() int64 { return c.attempts.Load() }

// Run 建立并维持连接，阻塞直到 ctx 结束（返回 nil）或放弃重连（返回 ReconnectGaveUp 错误）
// 每次调用重试计数从零开始
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return nil
	}
	defer c.running.Store(false)
	c.retries.Store(0)

	for {
		c.transition(models.ConnectionStateConnecting)
		c.attempts.Add(1)

		err := c.connectAndConsume(ctx)
		if ctx.Err() != nil {
			c.transition(models.ConnectionStateDisconnected)
			return nil
		}

		c.transition(models.ConnectionStateError)
		c.emitError(err)
		retries := int(c.retries.Add(1))

		if retries >= c.config.MaxRetries {
			c.transition(models.ConnectionStateGaveUp)
			gaveUp := models.NewReconnectGaveUpError(retries)
			c.logger.ErrorKV("重连次数已用尽", "retries", retries, "attempts", c.attempts.Load(), "error", err)
			c.emitGaveUp(gaveUp)
			return gaveUp
		}

		delay := c.config.Policy.Delay(retries)
		c.transition(models.ConnectionStateBackoff)
		c.logger.WarnKV("连接失败，等待重连", "retry", retries, "delay", delay.String(), "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			c.transition(models.ConnectionStateDisconnected)
			return nil
		}
	}
}

// connectAndConsume 拨号并持续读取，直到流出错
func (c *Controller) connectAndConsume(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.dialer.Dial(streamCtx)
	if err != nil {
		return err
	}
	defer stream.Close()

	c.transition(models.ConnectionStateConnected)
	c.retries.Store(0)
	c.logger.InfoKV("流已连接", "attempts", c.attempts.Load())

	frames := make(chan *models.Envelope)
	errCh := make(chan error, 1)
	go func() {
		for {
			env, err := stream.Next()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case frames <- env:
			case <-streamCtx.Done():
				return
			}
		}
	}()

	var idle <-chan time.Time
	var timer *time.Timer
	if c.config.IdleTimeout > 0 {
		timer = time.NewTimer(c.config.IdleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case env := <-frames:
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(c.config.IdleTimeout)
			}
			c.emitEnvelope(env)
		case <-idle:
			return models.NewStreamIdleError(c.config.IdleTimeout.String())
		}
	}
}

func (c *Controller) transition(to models.ConnectionState) {
	from := c.sm.CurrentState()
	if from == to {
		return
	}
	if err := c.sm.TransitionTo(to); err != nil {
		c.logger.WarnKV("非法状态转换", "from", from, "to", to, "error", err)
		return
	}
	if f := syncx.WithRLockReturnValue(&c.cbMu, func() func(from, to models.ConnectionState) { return c.onStateChange }); f != nil {
		f(from, to)
	}
}

func (c *Controller) emitEnvelope(env *models.Envelope) {
	if f := syncx.WithRLockReturnValue(&c.cbMu, func() func(*models.Envelope) { return c.onEnvelope }); f != nil {
		f(env)
	}
}

func (c *Controller) emitError(err error) {
	if f := syncx.WithRLockReturnValue(&c.cbMu, func() func(error) { return c.onError }); f != nil {
		f(err)
	}
}

func (c *Controller) emitGaveUp(err error) {
	if f := syncx.WithRLockReturnValue(&c.cbMu, func() func(error) { return c.onGaveUp }); f != nil {
		f(err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
