/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-09-29 15:30:14
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 11:48:20
 * @FilePath: \go-relay\hub\websocket.go
 * @Description: WebSocket 传输层 - 每个文本帧一个 JSON 信封
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kamalyes/go-relay/models"
)

// 客户端只发控制帧，读取上限很小
const wsReadLimit = 4096

// ConfigureUpgrader 配置 WebSocket 升级器
// origins 为空或包含 "*" 时允许所有来源
func ConfigureUpgrader(bufferSize int, origins []string) *websocket.Upgrader {
	upgrader := &websocket.Upgrader{
		ReadBufferSize:  bufferSize,
		WriteBufferSize: bufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	if len(origins) > 0 {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			for _, allowed := range origins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		}
	}
	return upgrader
}

// WebSocketTransport gorilla/websocket 传输
type WebSocketTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
}

// NewWebSocketTransport 包装已升级的连接
func NewWebSocketTransport(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketTransport {
	conn.SetReadLimit(wsReadLimit)
	return &WebSocketTransport{conn: conn, writeTimeout: writeTimeout}
}

// Protocol 实现 Transport
func (t *WebSocketTransport) Protocol() models.TransportProtocol {
	return models.TransportProtocolWebSocket
}

// Write 实现 Transport
func (t *WebSocketTransport) Write(env *Envelope) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	return t.conn.WriteJSON(env)
}

// Close 实现 Transport
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = t.conn.Close()
	})
	return err
}

// ReadLoop 读取客户端帧直到连接关闭，用于感知客户端主动断开
// 客户端发来的数据帧被忽略
func (t *WebSocketTransport) ReadLoop() models.DisconnectReason {
	for {
		if _, _, err := t.conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return models.DisconnectReasonClientRequest
			}
			return models.DisconnectReasonUnknown
		}
	}
}
