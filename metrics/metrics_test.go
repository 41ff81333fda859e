/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-25 10:02:44
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-12 15:20:19
 * @FilePath: \go-relay\metrics\metrics_test.go
 * @Description: 指标收集测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kamalyes/go-relay/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector("relay-test")

	c.ConnectionOpened(models.TransportProtocolSSE)
	c.ConnectionOpened(models.TransportProtocolSSE)
	c.ConnectionClosed(models.TransportProtocolSSE)
	c.EventReceived(models.SourceKindBroker)
	c.EventDelivered(models.EventKindShiftUpdated, 3)
	c.EventDropped(DropReasonUnresolved)
	c.SourceUp(models.SourceKindDatabase, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.connections.WithLabelValues("sse")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.eventsDelivered.WithLabelValues("shift_updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsDropped.WithLabelValues(DropReasonUnresolved)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sourceUp.WithLabelValues("database")))
}

// TestCollectorNilSafe nil 收集器所有方法都是空操作
func TestCollectorNilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ConnectionOpened(models.TransportProtocolWebSocket)
		c.EventDropped(DropReasonDecode)
		c.HeartbeatSent()
		c.SourceReconnect(models.SourceKindBroker)
	})
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector("relay")
	c.HeartbeatSent()

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "relay_heartbeats_sent_total 1"))
}
