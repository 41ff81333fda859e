/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-29 11:32:08
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 11:48:20
 * @FilePath: \go-relay\hub\distributed.go
 * @Description: 集群触发 - 通过 PubSub 让所有节点投递手动触发事件
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"context"
	"encoding/json"

	"github.com/kamalyes/go-toolbox/pkg/syncx"

	"github.com/kamalyes/go-relay/models"
)

// ClusterTriggerChannel 集群触发频道
const ClusterTriggerChannel = "relay:trigger"

// clusterMessage 集群间转发的消息
type clusterMessage struct {
	NodeID   string    `json:"nodeId"`
	Envelope *Envelope `json:"envelope"`
}

// PublishCluster 向集群广播信封，所有节点（包括本节点）都会投递
// 未配置 PubSub 时直接在本节点投递
func (h *Hub) PublishCluster(ctx context.Context, env *Envelope) error {
	if h.pubsub == nil {
		return h.Dispatch(env)
	}

	data, err := json.Marshal(&clusterMessage{NodeID: h.nodeID, Envelope: env})
	if err != nil {
		return err
	}
	if err := h.pubsub.Publish(ctx, ClusterTriggerChannel, string(data)); err != nil {
		h.logger.WarnKV("集群触发发布失败，改为本地投递", "tenant_id", env.TenantID, "error", err)
		return h.Dispatch(env)
	}

	h.logger.DebugKV("集群触发已发布", "tenant_id", env.TenantID, "event_kind", env.EventKind)
	return nil
}

// SubscribeClusterChannel 订阅集群触发频道
func (h *Hub) SubscribeClusterChannel(ctx context.Context) error {
	if h.pubsub == nil {
		return models.ErrPubSubNotSet
	}

	channel := ClusterTriggerChannel
	h.logger.InfoKV("订阅集群触发频道", "channel", channel)

	syncx.Go(ctx).
		OnPanic(func(r any) {
			h.logger.ErrorKV("集群频道订阅 panic", "panic", r, "channel", channel)
		}).
		Exec(func() {
			_, err := h.pubsub.Subscribe([]string{channel}, func(subCtx context.Context, ch string, msg string) error {
				return h.handleClusterMessage(msg)
			})
			if err != nil {
				h.logger.ErrorKV("订阅集群频道失败", "error", err, "channel", channel)
			}

			syncx.NewEventLoop(ctx).
				OnShutdown(func() {
					h.logger.InfoKV("集群频道订阅已停止", "channel", channel)
				}).
				Run()
		})

	return nil
}

// handleClusterMessage 处理集群消息
func (h *Hub) handleClusterMessage(msg string) error {
	var cm clusterMessage
	if err := json.Unmarshal([]byte(msg), &cm); err != nil {
		h.logger.ErrorKV("解析集群消息失败", "error", err)
		return err
	}
	if cm.Envelope == nil || cm.Envelope.TenantID.IsEmpty() {
		return models.ErrTenantRequired
	}
	return h.Dispatch(cm.Envelope)
}
