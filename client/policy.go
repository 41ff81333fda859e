/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-10-05 10:02:19
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 17:36:40
 * @FilePath: \go-relay\client\policy.go
 * @Description: 重连延迟策略
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package client

import (
	"time"

	"github.com/jpillora/backoff"
)

// DelayPolicy 根据连续失败次数（从 1 开始）计算下一次重连前的等待时间
type DelayPolicy interface {
	Delay(retry int) time.Duration
}

// DelayFunc 函数形式的 DelayPolicy
type DelayFunc func(retry int) time.Duration

// Delay 实现 DelayPolicy
func (f DelayFunc) Delay(retry int) time.Duration { return f(retry) }

// LinearDelay 线性延迟：Base × retry
type LinearDelay struct {
	Base time.Duration
	Max  time.Duration // 0 表示不封顶
}

// Delay 实现 DelayPolicy
func (p LinearDelay) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := p.Base * time.Duration(retry)
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// ExponentialDelay 指数退避
type ExponentialDelay struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter bool
}

// Delay 实现 DelayPolicy
func (p ExponentialDelay) Delay(retry int) time.Duration {
	b := &backoff.Backoff{
		Min:    p.Min,
		Max:    p.Max,
		Factor: p.Factor,
		Jitter: p.Jitter,
	}
	if retry < 1 {
		retry = 1
	}
	return b.ForAttempt(float64(retry - 1))
}
