/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-10-05 11:18:44
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-10-14 17:36:40
 * @FilePath: \go-relay\client\dialer.go
 * @Description: 流式连接拨号器 - SSE 与 WebSocket
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */

package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/kamalyes/go-relay/models"
	"github.com/kamalyes/go-relay/protocol"
)

// Stream 一条已建立的下行流
type Stream interface {
	// Next 阻塞读取下一个信封，流结束或出错时返回错误
	Next() (*models.Envelope, error)
	Close() error
}

// Dialer 建立下行流
type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}

// SSEDialer 通过 HTTP GET 建立 SSE 流
type SSEDialer struct {
	URL      string
	Client   *http.Client
	Header   http.Header
	MaxFrame int
}

// Dial 实现 Dialer
func (d *SSEDialer) Dial(ctx context.Context) (Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return nil, err
	}
	for k, values := range d.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	httpClient := d.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, models.NewBadStatusError(resp.StatusCode)
	}

	return &sseStream{body: resp.Body, reader: protocol.NewSSEReader(resp.Body, d.MaxFrame)}, nil
}

type sseStream struct {
	body      io.ReadCloser
	reader    *protocol.SSEReader
	closeOnce sync.Once
}

func (s *sseStream) Next() (*models.Envelope, error) {
	for {
		ev, err := s.reader.Next(nil)
		if err != nil {
			return nil, err
		}
		if len(ev.Data) == 0 {
			continue
		}
		var env models.Envelope
		if err := json.Unmarshal(ev.Data, &env); err != nil {
			return nil, models.NewDecodeError(err)
		}
		return &env, nil
	}
}

func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.body.Close() })
	return err
}

// WebSocketDialer 通过 /ws 建立 WebSocket 流
type WebSocketDialer struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
}

// Dial 实现 Dialer
func (d *WebSocketDialer) Dial(ctx context.Context) (Stream, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, models.NewBadStatusError(resp.StatusCode)
		}
		return nil, err
	}
	return &wsStream{conn: conn}, nil
}

type wsStream struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

func (s *wsStream) Next() (*models.Envelope, error) {
	var env models.Envelope
	if err := s.conn.ReadJSON(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.conn.Close() })
	return err
}
